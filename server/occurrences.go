package server

import (
	"net/http"
	"time"

	"github.com/zemetia/eventcal/recurrence"
	"github.com/zemetia/eventcal/schedule"
)

// occurrenceJSON flattens an Occurrence for the wire. occurrenceDate is
// date-only and refers to the rule-generated date; start/end are rendered in
// the requested timezone.
type occurrenceJSON struct {
	EventID        string          `json:"eventId"`
	Title          string          `json:"title"`
	Location       string          `json:"location,omitempty"`
	Type           string          `json:"type,omitempty"`
	Visibility     string          `json:"visibility,omitempty"`
	Capacity       int             `json:"capacity,omitempty"`
	OccurrenceDate recurrence.Date `json:"occurrenceDate"`
	StartDatetime  time.Time       `json:"startDatetime"`
	EndDatetime    time.Time       `json:"endDatetime"`
	IsException    bool            `json:"isException"`
	Recurring      bool            `json:"recurring"`
}

func toOccurrenceJSON(occ schedule.Occurrence) occurrenceJSON {
	return occurrenceJSON{
		EventID:        occ.Event.ID,
		Title:          occ.Title,
		Location:       occ.Location,
		Type:           occ.Event.Type,
		Visibility:     occ.Event.Visibility,
		Capacity:       occ.Event.Capacity,
		OccurrenceDate: occ.Date,
		StartDatetime:  occ.Start,
		EndDatetime:    occ.End,
		IsException:    occ.IsException,
		Recurring:      occ.Event.Recurring(),
	}
}

// handleListOccurrences serves GET /occurrences?start=&end=&timezone=&type=.
func (s *Server) handleListOccurrences(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	rangeStart, err := recurrence.ParseDate(q.Get("start"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid parameters", "start must be an ISO-8601 date")
		return
	}
	rangeEnd, err := recurrence.ParseDate(q.Get("end"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid parameters", "end must be an ISO-8601 date")
		return
	}

	display := time.UTC
	if tz := q.Get("timezone"); tz != "" {
		display, err = time.LoadLocation(tz)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "invalid parameters", "timezone must be an IANA identifier")
			return
		}
	}

	filter := schedule.Filter{Type: q.Get("type")}
	occurrences, err := s.query.ListOccurrences(r.Context(), rangeStart, rangeEnd, display, filter)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	out := make([]occurrenceJSON, 0, len(occurrences))
	for _, occ := range occurrences {
		out = append(out, toOccurrenceJSON(occ))
	}
	writeJSON(w, http.StatusOK, out)
}
