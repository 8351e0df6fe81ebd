package registration

import (
	"context"
	"strings"
	"time"

	"github.com/bengaluru-wedding-fraternity/event-registration/events"
)

type Repository interface {
	CreateAttendee(ctx context.Context, attendee NewAttendee) (Attendee, error)
	GetAttendee(ctx context.Context, id int64) (Attendee, error)
	GetAttendeeByEmail(ctx context.Context, email string) (Attendee, error)
	GetAllAttendees(ctx context.Context) ([]Attendee, error)
	GetAttendeesCount(ctx context.Context) (int, error)
	// UpdateAttendeePaymentStatus replaces only the paid flag. Calling it again with
	// the same value must succeed and leave the record unchanged.
	UpdateAttendeePaymentStatus(ctx context.Context, id int64, isPaid bool) (Attendee, error)
	// MarkAttendeePaid sets the paid flag and reports whether this call is the
	// one that flipped it. Of any number of concurrent calls for one attendee,
	// exactly one sees changed=true.
	MarkAttendeePaid(ctx context.Context, id int64) (attendee Attendee, changed bool, err error)
}

type Role string

const (
	ROLE_PHOTOGRAPHER Role = "photographer"
	ROLE_PLANNER      Role = "planner"
	ROLE_DECORATOR    Role = "decorator"
	ROLE_VENUE        Role = "venue"
	ROLE_CATERER      Role = "caterer"
	ROLE_FASHION      Role = "fashion"
	ROLE_MAKEUP       Role = "makeup"
	ROLE_OTHER        Role = "other"
)

var Roles = []Role{
	ROLE_PHOTOGRAPHER,
	ROLE_PLANNER,
	ROLE_DECORATOR,
	ROLE_VENUE,
	ROLE_CATERER,
	ROLE_FASHION,
	ROLE_MAKEUP,
	ROLE_OTHER,
}

type Attendee struct {
	ID           int64
	Name         string
	Company      string
	Email        string
	Phone        string
	Role         Role
	Expectations *string
	RegisteredAt time.Time
	IsPaid       bool
}

// NewAttendee is the validated data a store needs to create an Attendee.
// The store assigns ID and RegisteredAt, and always starts IsPaid at false.
type NewAttendee struct {
	Name         string
	Company      string
	Email        string
	Phone        string
	Role         Role
	Expectations *string
}

// NormalizeEmail is applied before an email is stored or looked up, so the
// uniqueness constraint is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AttemptRegistration validates the submission and creates exactly one attendee
// record. Email uniqueness is left to the repository, which reports a duplicate
// as REASON_ATTENDEE_ALREADY_EXISTS.
func AttemptRegistration(ctx context.Context, submission Submission, event events.Event, repo Repository) (Attendee, error) {
	if !event.IsRegistrationOpen(time.Now()) {
		return Attendee{}, NewRegistrationIsClosedError(*event.RegistrationCloseTime)
	}

	newAttendee, err := submission.Validate()
	if err != nil {
		return Attendee{}, err
	}

	return repo.CreateAttendee(ctx, newAttendee)
}
