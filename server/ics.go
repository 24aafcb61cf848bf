package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/emersion/go-ical"

	"github.com/zemetia/eventcal/recurrence"
	"github.com/zemetia/eventcal/storage"
)

const icsDateTimeUTC = "20060102T150405Z"

// handleCalendarFeed serves GET /calendar.ics. Recurring events are exported
// as master VEVENTs carrying RRULE plus EXDATE for cancellations, with
// RECURRENCE-ID override components for modified occurrences, so standard
// calendar clients reconstruct the same occurrence set the JSON API serves.
func (s *Server) handleCalendarFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	today := recurrence.DateOf(time.Now().UTC())
	rangeStart, rangeEnd := today, today.AddDays(365)
	if raw := q.Get("start"); raw != "" {
		d, err := recurrence.ParseDate(raw)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "invalid parameters", "start must be an ISO-8601 date")
			return
		}
		rangeStart = d
		rangeEnd = d.AddDays(365)
	}
	if raw := q.Get("end"); raw != "" {
		d, err := recurrence.ParseDate(raw)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "invalid parameters", "end must be an ISO-8601 date")
			return
		}
		rangeEnd = d
	}

	events, err := s.store.FindEventsOverlapping(r.Context(), rangeStart, rangeEnd)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, "-//zemetia//eventcal//EN")
	cal.Props.SetText(ical.PropVersion, "2.0")

	now := time.Now().UTC()
	for i := range events {
		components, err := s.eventComponents(r.Context(), &events[i], now)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		cal.Children = append(cal.Children, components...)
	}

	w.Header().Set(headerContentType, mimeTypeCalendar)
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		s.logger.Error("failed to encode calendar feed", "error", err)
	}
}

// eventComponents renders one event as a master VEVENT plus any override
// components. All instants are emitted in UTC.
func (s *Server) eventComponents(ctx context.Context, event *storage.Event, now time.Time) ([]*ical.Component, error) {
	loc := time.UTC
	if event.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(event.Timezone); err != nil {
			return nil, fmt.Errorf("event %s: invalid timezone %q: %w", event.ID, event.Timezone, err)
		}
	}

	master := ical.NewEvent()
	master.Props.SetText(ical.PropUID, event.ID)
	master.Props.SetText(ical.PropSummary, event.Title)
	if event.Location != "" {
		master.Props.SetText(ical.PropLocation, event.Location)
	}
	master.Props.SetDateTime(ical.PropDateTimeStamp, now)
	master.Props.SetDateTime(ical.PropDateTimeStart, event.EventDate.At(event.StartTime, loc).UTC())
	master.Props.SetDateTime(ical.PropDateTimeEnd, event.EventDate.At(event.EndTime, loc).UTC())

	components := []*ical.Component{master.Component}
	if !event.Recurring() {
		return components, nil
	}

	ruleStr, err := event.NormalizedRule().RRule()
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", event.ID, err)
	}
	rruleProp := ical.NewProp("RRULE")
	rruleProp.Value = ruleStr
	master.Props.Add(rruleProp)

	exceptions, err := s.store.ListExceptions(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	for _, exc := range exceptions {
		occurrenceStart := exc.Date.At(event.StartTime, loc).UTC()
		switch exc.Kind {
		case storage.ExceptionCancelled:
			exdate := ical.NewProp("EXDATE")
			exdate.Value = occurrenceStart.Format(icsDateTimeUTC)
			master.Props.Add(exdate)
		case storage.ExceptionModified:
			override := ical.NewEvent()
			override.Props.SetText(ical.PropUID, event.ID)
			override.Props.SetText(ical.PropSummary, exc.Title.OrElse(event.Title))
			if location := exc.Location.OrElse(event.Location); location != "" {
				override.Props.SetText(ical.PropLocation, location)
			}
			override.Props.SetDateTime(ical.PropDateTimeStamp, now)
			override.Props.SetDateTime(ical.PropDateTimeStart,
				exc.Date.At(exc.StartTime.OrElse(event.StartTime), loc).UTC())
			override.Props.SetDateTime(ical.PropDateTimeEnd,
				exc.Date.At(exc.EndTime.OrElse(event.EndTime), loc).UTC())
			recurrenceID := ical.NewProp("RECURRENCE-ID")
			recurrenceID.Value = occurrenceStart.Format(icsDateTimeUTC)
			override.Props.Add(recurrenceID)
			components = append(components, override.Component)
		}
	}
	return components, nil
}
