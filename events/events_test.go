package events

import (
	"testing"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/stretchr/testify/assert"
)

func TestIsRegistrationOpen(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name      string
		closeTime *time.Time
		expected  bool
	}{
		{name: "no close time is always open", closeTime: nil, expected: true},
		{name: "close time in the future", closeTime: &future, expected: true},
		{name: "close time in the past", closeTime: &past, expected: false},
		{name: "closing exactly now is still open", closeTime: &now, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := Event{
				Name:                  "Test Event",
				RegistrationCloseTime: tt.closeTime,
				RegistrationFee:       money.New(100000, money.INR),
			}

			assert.Equal(t, tt.expected, event.IsRegistrationOpen(now))
		})
	}
}

func TestVenueLabel(t *testing.T) {
	tests := []struct {
		name     string
		venue    Venue
		expected string
	}{
		{name: "name and city", venue: Venue{Name: "Palace Grounds", City: "Bengaluru"}, expected: "Palace Grounds, Bengaluru"},
		{name: "city only", venue: Venue{City: "Bengaluru"}, expected: "Bengaluru"},
		{name: "name only", venue: Venue{Name: "Palace Grounds "}, expected: "Palace Grounds"},
		{name: "empty", venue: Venue{}, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.venue.Label())
		})
	}
}
