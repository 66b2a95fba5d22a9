// Package api exposes the booking assistant over HTTP.
//
// Clients create a session, post user messages to it and receive the
// assistant reply in the standard JSON envelope.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/BookingPipe/internal/models"
	"github.com/BTreeMap/BookingPipe/internal/store"
)

const (
	// DefaultAddr is the listen address used when none is configured.
	DefaultAddr = ":8080"

	shutdownTimeout = 10 * time.Second
)

// TurnProcessor runs one conversation turn and returns the reply.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, sessionID, text string) (string, error)
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address, e.g. ":8080".
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// Server serves the session endpoints. Turns for the same session are
// processed one at a time; different sessions run concurrently.
type Server struct {
	turns TurnProcessor
	st    store.SessionStore
	addr  string
	locks *sessionLocks
	now   func() time.Time
}

// NewServer creates an API server.
func NewServer(turns TurnProcessor, st store.SessionStore, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{
		turns: turns,
		st:    st,
		addr:  cfg.Addr,
		locks: newSessionLocks(),
		now:   time.Now,
	}
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("POST /sessions", s.createSessionHandler)
	mux.HandleFunc("GET /sessions/{id}", s.getSessionHandler)
	mux.HandleFunc("DELETE /sessions/{id}", s.deleteSessionHandler)
	mux.HandleFunc("POST /sessions/{id}/messages", s.postMessageHandler)
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("Server.Run: shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server.Run: graceful shutdown failed", "error", err)
			return err
		}
		return nil
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "healthy"}))
}

// createSessionHandler handles POST /sessions.
func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	if err := s.st.SaveSession(r.Context(), models.NewSession(id, s.now())); err != nil {
		slog.Error("Server.createSessionHandler: failed to save session", "session", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create session"))
		return
	}
	slog.Info("Server.createSessionHandler: session created", "session", id)
	writeJSONResponse(w, http.StatusCreated, models.Success(models.MessageReply{SessionID: id}))
}

// getSessionHandler handles GET /sessions/{id}.
func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.st.GetSession(r.Context(), id)
	if err != nil {
		slog.Error("Server.getSessionHandler: failed to load session", "session", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return
	}
	if sess == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error(models.ErrSessionNotFound.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sess))
}

// deleteSessionHandler handles DELETE /sessions/{id}.
func (s *Server) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	unlock := s.locks.lock(id)
	defer unlock()
	if err := s.st.DeleteSession(r.Context(), id); err != nil {
		slog.Error("Server.deleteSessionHandler: failed to delete session", "session", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete session"))
		return
	}
	slog.Info("Server.deleteSessionHandler: session reset", "session", id)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session reset", nil))
}

// postMessageHandler handles POST /sessions/{id}/messages.
func (s *Server) postMessageHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req models.MessageRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		slog.Warn("Server.postMessageHandler: failed to decode JSON", "session", id, "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	unlock := s.locks.lock(id)
	reply, err := s.turns.ProcessTurn(r.Context(), id, req.Text)
	unlock()

	if err != nil {
		if errors.Is(err, models.ErrEmptySessionID) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		if reply == "" {
			slog.Error("Server.postMessageHandler: turn failed", "session", id, "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
			return
		}
		// The turn produced a reply but could not be fully persisted.
		slog.Warn("Server.postMessageHandler: turn completed with error", "session", id, "error", err)
	}
	writeJSONResponse(w, http.StatusOK, models.Success(models.MessageReply{SessionID: id, Reply: reply}))
}
