// Package server exposes the occurrence engine over HTTP: a read-only
// occurrence query, occurrence-level mutations with single/future scope,
// and an iCalendar feed.
package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/zemetia/eventcal/recurrence"
	"github.com/zemetia/eventcal/schedule"
	"github.com/zemetia/eventcal/storage"
)

const (
	headerContentType = "Content-Type"

	mimeTypeJSON     = "application/json; charset=utf-8"
	mimeTypeProblem  = "application/problem+json"
	mimeTypeCalendar = "text/calendar; charset=utf-8"
)

// Server routes HTTP requests to the occurrence engine.
type Server struct {
	store    storage.Store
	query    *schedule.QueryService
	splitter *schedule.Splitter
	logger   *slog.Logger
	mux      *http.ServeMux
}

// New creates a Server. A nil logger falls back to slog.Default.
func New(store storage.Store, query *schedule.QueryService, splitter *schedule.Splitter, logger *slog.Logger) (*Server, error) {
	if store == nil || query == nil || splitter == nil {
		return nil, errors.New("store, query service and splitter are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:    store,
		query:    query,
		splitter: splitter,
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /occurrences", s.handleListOccurrences)
	s.mux.HandleFunc("GET /calendar.ics", s.handleCalendarFeed)
	s.mux.HandleFunc("PATCH /events/{id}/occurrences/{date}", s.handleEditOccurrence)
	s.mux.HandleFunc("DELETE /events/{id}/occurrences/{date}", s.handleDeleteOccurrence)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("received request",
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr)
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set(headerContentType, mimeTypeJSON)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// writeEngineError maps engine errors onto HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "not found", err.Error())
	case errors.Is(err, schedule.ErrConcurrentModification):
		writeProblem(w, http.StatusConflict, "concurrent modification", err.Error())
	case errors.Is(err, schedule.ErrInvalidSplitPoint),
		errors.Is(err, schedule.ErrNotRecurring),
		errors.Is(err, recurrence.ErrInvalidRule),
		errors.Is(err, recurrence.ErrInvalidRange),
		errors.Is(err, storage.ErrInvalidInput):
		writeProblem(w, http.StatusBadRequest, "invalid request", err.Error())
	case errors.Is(err, storage.ErrStorageUnavailable):
		writeProblem(w, http.StatusServiceUnavailable, "storage unavailable", err.Error())
	default:
		s.logger.Error("internal error", "error", err)
		writeProblem(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}
