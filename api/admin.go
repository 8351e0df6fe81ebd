package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type attendeesResponse struct {
	Success bool           `json:"success"`
	Data    []attendeeJSON `json:"data"`
}

func (a *API) getAdminAttendees(w http.ResponseWriter, r *http.Request) {
	attendees, err := a.db.GetAllAttendees(r.Context())
	if err != nil {
		a.writeError(w, r, err, "Failed to list attendees")
		return
	}

	data := make([]attendeeJSON, 0, len(attendees))
	for _, attendee := range attendees {
		data = append(data, attendeeToJSON(attendee))
	}

	writeJSON(w, http.StatusOK, attendeesResponse{Success: true, Data: data})
}

func (a *API) getAdminAttendee(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "Attendee id must be a number"})
		return
	}

	attendee, err := a.db.GetAttendee(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err, "Failed to fetch attendee")
		return
	}

	writeJSON(w, http.StatusOK, attendeeResponse{Success: true, Data: attendeeToJSON(attendee)})
}
