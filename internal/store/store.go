// Package store provides storage backends for BookingPipe conversation sessions.
//
// It includes an in-memory store and persistent SQLite, PostgreSQL and Redis stores.
// Every backend hands out copies so callers may mutate a loaded session freely
// until they save it back.
package store

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/BookingPipe/internal/models"
)

// SessionStore persists conversation sessions keyed by session id.
type SessionStore interface {
	// GetSession returns a copy of the session, or nil when it does not exist.
	GetSession(ctx context.Context, id string) (*models.Session, error)
	// SaveSession stores a copy of the session under session.ID.
	SaveSession(ctx context.Context, session *models.Session) error
	// DeleteSession removes the session. Deleting a missing session is not an error.
	DeleteSession(ctx context.Context, id string) error
	// Close releases backend resources.
	Close() error
}

// Pruner is implemented by stores that can drop idle sessions on request.
// Redis expires sessions by itself and does not implement it.
type Pruner interface {
	// PruneSessions deletes sessions last updated before the cutoff and
	// returns how many were removed.
	PruneSessions(ctx context.Context, before time.Time) (int64, error)
}

// DSN types reported by DetectDSNType.
const (
	DSNTypeSQLite   = "sqlite"
	DSNTypePostgres = "postgres"
	DSNTypeRedis    = "redis"
)

// Opts holds configuration for store backends.
type Opts struct {
	DSN        string        // database connection string or file path
	SessionTTL time.Duration // expiry for backends that support it (Redis); zero means no expiry
}

// Option configures store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithRedisURL sets the Redis connection URL (redis://host:port/db).
func WithRedisURL(url string) Option {
	return func(o *Opts) { o.DSN = url }
}

// WithSessionTTL sets the session expiry for backends that support it.
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.SessionTTL = ttl }
}

// DetectDSNType classifies a DSN as postgres, redis or sqlite.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"), strings.Contains(lower, "host="):
		return DSNTypePostgres
	case strings.HasPrefix(lower, "redis://"), strings.HasPrefix(lower, "rediss://"):
		return DSNTypeRedis
	default:
		return DSNTypeSQLite
	}
}

// NewStore builds the backend selected by the configured DSN. An empty DSN
// yields an in-memory store.
func NewStore(opts ...Option) (SessionStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Info("NewStore: no DSN configured, using in-memory session store")
		return NewInMemoryStore(), nil
	}
	kind := DetectDSNType(cfg.DSN)
	slog.Debug("NewStore: selecting backend", "type", kind)
	switch kind {
	case DSNTypePostgres:
		return NewPostgresStore(opts...)
	case DSNTypeRedis:
		return NewRedisStore(opts...)
	default:
		return NewSQLiteStore(opts...)
	}
}

// InMemoryStore keeps sessions in a map. It is safe for concurrent use.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*models.Session)}
}

func (s *InMemoryStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	if id == "" {
		return nil, models.ErrEmptySessionID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return sess.Clone(), nil
}

func (s *InMemoryStore) SaveSession(ctx context.Context, session *models.Session) error {
	if err := validateSession(session); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *InMemoryStore) DeleteSession(ctx context.Context, id string) error {
	if id == "" {
		return models.ErrEmptySessionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// PruneSessions deletes sessions whose UpdatedAt is before the cutoff.
func (s *InMemoryStore) PruneSessions(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, sess := range s.sessions {
		if sess.UpdatedAt.Before(before) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *InMemoryStore) Close() error {
	return nil
}

func validateSession(session *models.Session) error {
	if session == nil {
		return models.ErrNilSession
	}
	if session.ID == "" {
		return models.ErrEmptySessionID
	}
	return nil
}
