package events

import "strings"

// Venue is where the event is held, as shown on the event page and in the
// confirmation email.
type Venue struct {
	Name string
	City string
}

// Label joins the venue name and city, skipping whichever is empty.
func (v Venue) Label() string {
	parts := make([]string, 0, 2)
	for _, p := range []string{v.Name, v.City} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
