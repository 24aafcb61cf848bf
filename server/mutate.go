package server

import (
	"encoding/json"
	"net/http"

	"github.com/samber/mo"

	"github.com/zemetia/eventcal/recurrence"
	"github.com/zemetia/eventcal/schedule"
	"github.com/zemetia/eventcal/storage"
)

// mutateRequest is the body of PATCH /events/{id}/occurrences/{date}.
// Absent fields keep the base event's values.
type mutateRequest struct {
	Scope     string                `json:"scope"`
	Title     *string               `json:"title,omitempty"`
	Location  *string               `json:"location,omitempty"`
	StartTime *recurrence.TimeOfDay `json:"startTime,omitempty"`
	EndTime   *recurrence.TimeOfDay `json:"endTime,omitempty"`
}

func (m mutateRequest) changes() schedule.Changes {
	var c schedule.Changes
	if m.Title != nil {
		c.Title = mo.Some(*m.Title)
	}
	if m.Location != nil {
		c.Location = mo.Some(*m.Location)
	}
	if m.StartTime != nil {
		c.StartTime = mo.Some(*m.StartTime)
	}
	if m.EndTime != nil {
		c.EndTime = mo.Some(*m.EndTime)
	}
	return c
}

type eventJSON struct {
	ID        string               `json:"id"`
	Title     string               `json:"title"`
	Location  string               `json:"location,omitempty"`
	EventDate recurrence.Date      `json:"eventDate"`
	StartTime recurrence.TimeOfDay `json:"startTime"`
	EndTime   recurrence.TimeOfDay `json:"endTime"`
	Timezone  string               `json:"timezone,omitempty"`
	Rule      *recurrence.Rule     `json:"recurrenceRule,omitempty"`
	Type      string               `json:"type,omitempty"`
}

func toEventJSON(ev storage.Event) eventJSON {
	return eventJSON{
		ID:        ev.ID,
		Title:     ev.Title,
		Location:  ev.Location,
		EventDate: ev.EventDate,
		StartTime: ev.StartTime,
		EndTime:   ev.EndTime,
		Timezone:  ev.Timezone,
		Rule:      ev.Rule,
		Type:      ev.Type,
	}
}

type splitResultJSON struct {
	Original  eventJSON  `json:"original"`
	Successor *eventJSON `json:"successor,omitempty"`
}

func toSplitResultJSON(result *schedule.SplitResult) splitResultJSON {
	out := splitResultJSON{Original: toEventJSON(result.Original)}
	if result.Successor != nil {
		succ := toEventJSON(*result.Successor)
		out.Successor = &succ
	}
	return out
}

func parseOccurrencePath(r *http.Request) (string, recurrence.Date, error) {
	id := r.PathValue("id")
	date, err := recurrence.ParseDate(r.PathValue("date"))
	return id, date, err
}

// handleEditOccurrence serves PATCH /events/{id}/occurrences/{date}.
func (s *Server) handleEditOccurrence(w http.ResponseWriter, r *http.Request) {
	id, date, err := parseOccurrencePath(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid parameters", "occurrence date must be an ISO-8601 date")
		return
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	var req mutateRequest
	if err := dec.Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid json", err.Error())
		return
	}
	scope, err := schedule.ParseScope(req.Scope)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid parameters", `scope must be "single" or "future"`)
		return
	}

	result, err := s.splitter.EditOccurrence(r.Context(), id, date, scope, req.changes())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSplitResultJSON(result))
}

// handleDeleteOccurrence serves DELETE /events/{id}/occurrences/{date}.
// Scope comes from the "scope" query parameter and defaults to single.
func (s *Server) handleDeleteOccurrence(w http.ResponseWriter, r *http.Request) {
	id, date, err := parseOccurrencePath(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid parameters", "occurrence date must be an ISO-8601 date")
		return
	}

	scope := schedule.ScopeSingle
	if raw := r.URL.Query().Get("scope"); raw != "" {
		scope, err = schedule.ParseScope(raw)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "invalid parameters", `scope must be "single" or "future"`)
			return
		}
	}

	result, err := s.splitter.DeleteOccurrence(r.Context(), id, date, scope)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSplitResultJSON(result))
}
