package events

import (
	"time"

	"github.com/Rhymond/go-money"
)

// Event is the one event this site takes registrations for. It is loaded from
// configuration at startup and is the only source of the registration fee.
type Event struct {
	Name                  string
	Description           string
	Venue                 Venue
	StartTime             time.Time
	EndTime               time.Time
	RegistrationCloseTime *time.Time
	RegistrationFee       *money.Money
}

func (e Event) IsRegistrationOpen(now time.Time) bool {
	if e.RegistrationCloseTime == nil {
		return true
	}
	return !now.After(*e.RegistrationCloseTime)
}
