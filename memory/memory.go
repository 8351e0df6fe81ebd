package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/bengaluru-wedding-fraternity/event-registration/registration"
)

var _ registration.Repository = &Store{}

// Store keeps attendees for the lifetime of the process. Email uniqueness is
// enforced the same way the durable stores enforce it.
type Store struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]registration.Attendee
	byEmail map[string]int64
	now     func() time.Time
}

func New() *Store {
	return &Store{
		nextID:  1,
		byID:    make(map[int64]registration.Attendee),
		byEmail: make(map[string]int64),
		now:     time.Now,
	}
}

func (s *Store) CreateAttendee(_ context.Context, attendee registration.NewAttendee) (registration.Attendee, error) {
	email := registration.NormalizeEmail(attendee.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[email]; taken {
		return registration.Attendee{}, registration.NewAttendeeAlreadyExistsError(fmt.Sprintf("Attendee with email %q already exists", email), nil)
	}

	created := registration.Attendee{
		ID:           s.nextID,
		Name:         attendee.Name,
		Company:      attendee.Company,
		Email:        email,
		Phone:        attendee.Phone,
		Role:         attendee.Role,
		Expectations: copyString(attendee.Expectations),
		RegisteredAt: s.now().UTC(),
		IsPaid:       false,
	}
	s.nextID++

	s.byID[created.ID] = created
	s.byEmail[email] = created.ID

	return clone(created), nil
}

func (s *Store) GetAttendee(_ context.Context, id int64) (registration.Attendee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attendee, ok := s.byID[id]
	if !ok {
		return registration.Attendee{}, notFound(id)
	}
	return clone(attendee), nil
}

func (s *Store) GetAttendeeByEmail(_ context.Context, email string) (registration.Attendee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[registration.NormalizeEmail(email)]
	if !ok {
		return registration.Attendee{}, registration.NewAttendeeDoesNotExistError(fmt.Sprintf("Attendee with email %q does not exist", email), nil)
	}
	return clone(s.byID[id]), nil
}

func (s *Store) GetAllAttendees(_ context.Context) ([]registration.Attendee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attendees := make([]registration.Attendee, 0, len(s.byID))
	for _, a := range s.byID {
		attendees = append(attendees, clone(a))
	}
	slices.SortFunc(attendees, func(a, b registration.Attendee) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return attendees, nil
}

func (s *Store) GetAttendeesCount(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.byID), nil
}

func (s *Store) UpdateAttendeePaymentStatus(_ context.Context, id int64, isPaid bool) (registration.Attendee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attendee, ok := s.byID[id]
	if !ok {
		return registration.Attendee{}, notFound(id)
	}

	attendee.IsPaid = isPaid
	s.byID[id] = attendee

	return clone(attendee), nil
}

func (s *Store) MarkAttendeePaid(_ context.Context, id int64) (registration.Attendee, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attendee, ok := s.byID[id]
	if !ok {
		return registration.Attendee{}, false, notFound(id)
	}
	if attendee.IsPaid {
		return clone(attendee), false, nil
	}

	attendee.IsPaid = true
	s.byID[id] = attendee

	return clone(attendee), true, nil
}

func notFound(id int64) *registration.Error {
	return registration.NewAttendeeDoesNotExistError(fmt.Sprintf("Attendee %d does not exist", id), nil)
}

// clone detaches the returned record from the stored one.
func clone(a registration.Attendee) registration.Attendee {
	a.Expectations = copyString(a.Expectations)
	return a
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
