package registration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/bengaluru-wedding-fraternity/event-registration/events"
	"github.com/bengaluru-wedding-fraternity/event-registration/ptr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Repository = &mockRepository{}

type mockRepository struct {
	CreateAttendeeFunc              func(ctx context.Context, attendee NewAttendee) (Attendee, error)
	GetAttendeeFunc                 func(ctx context.Context, id int64) (Attendee, error)
	GetAttendeeByEmailFunc          func(ctx context.Context, email string) (Attendee, error)
	GetAllAttendeesFunc             func(ctx context.Context) ([]Attendee, error)
	GetAttendeesCountFunc           func(ctx context.Context) (int, error)
	UpdateAttendeePaymentStatusFunc func(ctx context.Context, id int64, isPaid bool) (Attendee, error)
	MarkAttendeePaidFunc            func(ctx context.Context, id int64) (Attendee, bool, error)
}

func (m *mockRepository) CreateAttendee(ctx context.Context, attendee NewAttendee) (Attendee, error) {
	return m.CreateAttendeeFunc(ctx, attendee)
}

func (m *mockRepository) GetAttendee(ctx context.Context, id int64) (Attendee, error) {
	return m.GetAttendeeFunc(ctx, id)
}

func (m *mockRepository) GetAttendeeByEmail(ctx context.Context, email string) (Attendee, error) {
	return m.GetAttendeeByEmailFunc(ctx, email)
}

func (m *mockRepository) GetAllAttendees(ctx context.Context) ([]Attendee, error) {
	return m.GetAllAttendeesFunc(ctx)
}

func (m *mockRepository) GetAttendeesCount(ctx context.Context) (int, error) {
	return m.GetAttendeesCountFunc(ctx)
}

func (m *mockRepository) UpdateAttendeePaymentStatus(ctx context.Context, id int64, isPaid bool) (Attendee, error) {
	return m.UpdateAttendeePaymentStatusFunc(ctx, id, isPaid)
}

func (m *mockRepository) MarkAttendeePaid(ctx context.Context, id int64) (Attendee, bool, error) {
	return m.MarkAttendeePaidFunc(ctx, id)
}

func validSubmission() Submission {
	return Submission{
		Name:    "Asha Rao",
		Company: "Rao Events",
		Email:   "asha@example.com",
		Phone:   "9876543210",
		Role:    "planner",
	}
}

func openEvent() events.Event {
	return events.Event{
		Name:            "Wedding Fraternity Meetup",
		RegistrationFee: money.New(100000, money.INR),
	}
}

func TestSubmissionValidate(t *testing.T) {
	tests := []struct {
		name           string
		modify         func(s *Submission)
		expectedFields map[string]string
	}{
		{
			name:           "blank name",
			modify:         func(s *Submission) { s.Name = "   " },
			expectedFields: map[string]string{"name": "name is required"},
		},
		{
			name:           "name too short",
			modify:         func(s *Submission) { s.Name = "A" },
			expectedFields: map[string]string{"name": "name must be at least 2 characters"},
		},
		{
			name:           "missing company",
			modify:         func(s *Submission) { s.Company = "" },
			expectedFields: map[string]string{"company": "company is required"},
		},
		{
			name:           "email without at sign",
			modify:         func(s *Submission) { s.Email = "asha.example.com" },
			expectedFields: map[string]string{"email": "email must be a valid email address"},
		},
		{
			name:           "email without dotted domain",
			modify:         func(s *Submission) { s.Email = "asha@example" },
			expectedFields: map[string]string{"email": "email must be a valid email address"},
		},
		{
			name:           "short phone",
			modify:         func(s *Submission) { s.Phone = "12345" },
			expectedFields: map[string]string{"phone": "phone must be at least 10 characters"},
		},
		{
			name:   "unknown role",
			modify: func(s *Submission) { s.Role = "astronaut" },
			expectedFields: map[string]string{
				"role": "role must be one of [photographer planner decorator venue caterer fashion makeup other]",
			},
		},
		{
			name: "every field invalid",
			modify: func(s *Submission) {
				*s = Submission{}
			},
			expectedFields: map[string]string{
				"name":    "name is required",
				"company": "company is required",
				"email":   "email is required",
				"phone":   "phone is required",
				"role":    "role is required",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := validSubmission()
			tc.modify(&s)

			_, err := s.Validate()

			var regErr *Error
			require.True(t, errors.As(err, &regErr))
			assert.Equal(t, REASON_VALIDATION_FAILED, regErr.Reason)
			assert.Equal(t, tc.expectedFields, regErr.Fields)
		})
	}

	t.Run("valid submission is trimmed and normalized", func(t *testing.T) {
		s := Submission{
			Name:         "  Asha Rao ",
			Company:      " Rao Events",
			Email:        " Asha@Example.COM ",
			Phone:        " 9876543210 ",
			Role:         "planner",
			Expectations: ptr.String("  meet venue owners  "),
		}

		attendee, err := s.Validate()

		assert.NoError(t, err)
		assert.Equal(t, NewAttendee{
			Name:         "Asha Rao",
			Company:      "Rao Events",
			Email:        "asha@example.com",
			Phone:        "9876543210",
			Role:         ROLE_PLANNER,
			Expectations: ptr.String("meet venue owners"),
		}, attendee)
	})

	t.Run("blank expectations are dropped", func(t *testing.T) {
		s := validSubmission()
		s.Expectations = ptr.String("   ")

		attendee, err := s.Validate()

		assert.NoError(t, err)
		assert.Nil(t, attendee.Expectations)
	})
}

func TestAttemptRegistration(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var created NewAttendee
		repo := &mockRepository{
			CreateAttendeeFunc: func(ctx context.Context, attendee NewAttendee) (Attendee, error) {
				created = attendee
				return Attendee{ID: 1, Name: attendee.Name, Email: attendee.Email, Role: attendee.Role}, nil
			},
		}
		s := validSubmission()
		s.Email = "ASHA@example.com"

		attendee, err := AttemptRegistration(context.Background(), s, openEvent(), repo)

		assert.NoError(t, err)
		assert.Equal(t, int64(1), attendee.ID)
		assert.False(t, attendee.IsPaid)
		assert.Equal(t, "asha@example.com", created.Email)
	})

	t.Run("invalid submission is never written", func(t *testing.T) {
		repo := &mockRepository{
			CreateAttendeeFunc: func(ctx context.Context, attendee NewAttendee) (Attendee, error) {
				t.Fatal("CreateAttendee should not be called")
				return Attendee{}, nil
			},
		}
		s := validSubmission()
		s.Phone = "123"

		_, err := AttemptRegistration(context.Background(), s, openEvent(), repo)

		assert.True(t, HasReason(err, REASON_VALIDATION_FAILED))
	})

	t.Run("registration closed", func(t *testing.T) {
		repo := &mockRepository{
			CreateAttendeeFunc: func(ctx context.Context, attendee NewAttendee) (Attendee, error) {
				t.Fatal("CreateAttendee should not be called")
				return Attendee{}, nil
			},
		}
		event := openEvent()
		event.RegistrationCloseTime = ptr.Time(time.Now().Add(-time.Hour))

		_, err := AttemptRegistration(context.Background(), validSubmission(), event, repo)

		assert.True(t, HasReason(err, REASON_REGISTRATION_CLOSED))
	})

	t.Run("duplicate email is passed through", func(t *testing.T) {
		repo := &mockRepository{
			CreateAttendeeFunc: func(ctx context.Context, attendee NewAttendee) (Attendee, error) {
				return Attendee{}, NewAttendeeAlreadyExistsError("exists", nil)
			},
		}

		_, err := AttemptRegistration(context.Background(), validSubmission(), openEvent(), repo)

		assert.True(t, HasReason(err, REASON_ATTENDEE_ALREADY_EXISTS))
	})
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "asha@example.com", NormalizeEmail("  Asha@Example.com\t"))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestHasReason(t *testing.T) {
	wrapped := errors.Join(errors.New("outer"), NewAttendeeDoesNotExistError("missing", nil))

	assert.True(t, HasReason(wrapped, REASON_ATTENDEE_DOES_NOT_EXIST))
	assert.False(t, HasReason(wrapped, REASON_ATTENDEE_ALREADY_EXISTS))
	assert.False(t, HasReason(errors.New("plain"), REASON_ATTENDEE_DOES_NOT_EXIST))
	assert.False(t, HasReason(nil, REASON_ATTENDEE_DOES_NOT_EXIST))
}
