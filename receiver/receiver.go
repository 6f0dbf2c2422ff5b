// Package receiver implements the submission endpoint the engine posts to.
//
// It exposes POST /api/submit, which accepts a serialized extraction record,
// stores it in SQLite with upsert semantics, and answers with the status
// envelope the engine's transport understands.
package receiver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/evalwatch/extract"
	"github.com/hazyhaar/evalwatch/observability"
)

// Config holds the settings needed to create a Service.
type Config struct {
	DB      *sql.DB
	Labels  Labels                 // zero value falls back to DefaultLabels
	Journal *observability.Journal // nil disables the submission journal
	Logger  *slog.Logger
}

// Service handles record submissions.
type Service struct {
	store   *Store
	journal *observability.Journal
	logger  *slog.Logger
}

// New creates a Service and applies the database schema.
func New(cfg Config) (*Service, error) {
	store, err := NewStore(cfg.DB, cfg.Labels)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, journal: cfg.Journal, logger: logger}, nil
}

// Router returns the HTTP handler for the service.
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors)
	r.Post("/api/submit", s.handleSubmit)
	return r
}

// cors answers preflight requests and opens the endpoint to any origin.
// The engine runs against arbitrary observed pages, so the origin set is
// not known in advance.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Service) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var rec extract.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		s.respondError(w, "failed to process submitted data", err)
		return
	}

	if err := s.store.Save(r.Context(), rec); err != nil {
		if !errors.Is(err, ErrMissingUserID) {
			s.logger.Error("receiver: save failed", "session_id", rec.SessionID, "error", err)
		}
		s.journalEvent(r.Context(), "record_rejected", rec, err.Error(), false)
		s.respondError(w, "failed to store submitted data", err)
		return
	}

	s.logger.Info("receiver: record stored",
		"user_id", rec.UserID,
		"session_id", rec.SessionID,
		"groups", len(rec.EduGroups))
	s.journalEvent(r.Context(), "record_stored", rec, "", true)

	respond(w, map[string]string{
		"status":  "success",
		"message": "data received and stored",
	})
}

func (s *Service) journalEvent(ctx context.Context, eventType string, rec extract.Record, detail string, ok bool) {
	if s.journal == nil {
		return
	}
	s.journal.Record(ctx, observability.Event{
		Type:      eventType,
		UserID:    rec.UserID,
		SessionID: rec.SessionID,
		Detail:    detail,
		Success:   ok,
	})
}

func (s *Service) respondError(w http.ResponseWriter, msg string, err error) {
	respond(w, map[string]string{
		"status":  "error",
		"message": msg,
		"error":   err.Error(),
	})
}

// respond always answers 200 with a status envelope. The engine reads the
// status field, not the HTTP code.
func respond(w http.ResponseWriter, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}
