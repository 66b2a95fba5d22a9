// Package store provides storage backends for BookingPipe.
//
// This file implements a Redis-backed session store with optional expiry.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/BookingPipe/internal/models"
	"github.com/go-redis/redis/v8"
)

// sessionKeyPrefix namespaces session keys in Redis.
const sessionKeyPrefix = "bookingpipe:session:"

// RedisStore persists sessions as JSON values. Sessions expire after the
// configured TTL of inactivity; a zero TTL keeps them until deleted.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to the Redis URL given by the DSN option.
func NewRedisStore(opts ...Option) (*RedisStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("RedisStore.NewRedisStore: creating Redis store", "DSN_set", cfg.DSN != "", "ttl", cfg.SessionTTL)
	if cfg.DSN == "" {
		slog.Error("RedisStore DSN not set")
		return nil, fmt.Errorf("redis URL not set")
	}
	redisOpts, err := redis.ParseURL(cfg.DSN)
	if err != nil {
		slog.Error("RedisStore invalid URL", "error", err)
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Error("Redis ping failed", "error", err)
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	slog.Debug("Redis ping successful")
	return NewRedisStoreWithClient(client, cfg.SessionTTL), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

// GetSession loads a session, returning nil when it does not exist or has expired.
func (s *RedisStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	if id == "" {
		return nil, models.ErrEmptySessionID
	}
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		slog.Debug("RedisStore GetSession not found", "sessionID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("RedisStore GetSession failed", "error", err, "sessionID", id)
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	session, err := unmarshalSession(data)
	if err != nil {
		slog.Error("RedisStore GetSession decode failed", "error", err, "sessionID", id)
		return nil, err
	}
	return session, nil
}

// SaveSession stores a session and refreshes its expiry.
func (s *RedisStore) SaveSession(ctx context.Context, session *models.Session) error {
	if err := validateSession(session); err != nil {
		return err
	}
	data, err := marshalSession(session)
	if err != nil {
		slog.Error("RedisStore SaveSession encode failed", "error", err, "sessionID", session.ID)
		return err
	}
	if err := s.client.Set(ctx, sessionKey(session.ID), data, s.ttl).Err(); err != nil {
		slog.Error("RedisStore SaveSession failed", "error", err, "sessionID", session.ID)
		return fmt.Errorf("failed to save session %s: %w", session.ID, err)
	}
	slog.Debug("RedisStore SaveSession succeeded", "sessionID", session.ID, "ttl", s.ttl)
	return nil
}

// DeleteSession removes a session.
func (s *RedisStore) DeleteSession(ctx context.Context, id string) error {
	if id == "" {
		return models.ErrEmptySessionID
	}
	if err := s.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		slog.Error("RedisStore DeleteSession failed", "error", err, "sessionID", id)
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	slog.Debug("RedisStore DeleteSession succeeded", "sessionID", id)
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
