package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// SessionStore persists processing sessions so the upload handler, the
// background pipeline and the progress stream can share state.
type SessionStore interface {
	Put(ctx context.Context, session *ProcessingSession) error
	Get(ctx context.Context, sessionID string) (*ProcessingSession, error)
	Update(ctx context.Context, sessionID string, fn func(*ProcessingSession)) error
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]*ProcessingSession, error)
	DeleteAfter(sessionID string, delay time.Duration)
}

// ErrSessionNotFound is returned when a session ID is unknown.
var ErrSessionNotFound = fmt.Errorf("session not found")

// MemorySessionStore keeps sessions in process memory. It is the default
// store for single-instance deployments.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*ProcessingSession
	logger   *slog.Logger
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*ProcessingSession),
		logger:   slog.Default().With("component", "session-store"),
	}
}

func (s *MemorySessionStore) Put(ctx context.Context, session *ProcessingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.sessions[session.SessionID] = &copied
	return nil
}

func (s *MemorySessionStore) Get(ctx context.Context, sessionID string) (*ProcessingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copied := *session
	copied.Messages = append([]SessionMessage(nil), session.Messages...)
	return &copied, nil
}

func (s *MemorySessionStore) Update(ctx context.Context, sessionID string, fn func(*ProcessingSession)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	fn(session)
	session.UpdatedAt = time.Now()
	return nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemorySessionStore) List(ctx context.Context) ([]*ProcessingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]*ProcessingSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		copied := *session
		sessions = append(sessions, &copied)
	}
	return sessions, nil
}

// DeleteAfter removes the session once delay has passed. Used to keep
// finished sessions visible to late pollers for a grace period.
func (s *MemorySessionStore) DeleteAfter(sessionID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		if err := s.Delete(context.Background(), sessionID); err != nil {
			s.logger.Warn("Deferred session cleanup failed", "session_id", sessionID, "error", err)
		}
	})
}

// RedisSessionStoreConfig holds Redis connection settings for session
// persistence.
type RedisSessionStoreConfig struct {
	Address    string        `json:"address"`
	Password   string        `json:"password"`
	Database   int           `json:"database"`
	KeyPrefix  string        `json:"key_prefix"`
	SessionTTL time.Duration `json:"session_ttl"`
}

// RedisSessionStore persists sessions in Redis as JSON values so multiple
// server instances can serve progress for the same upload.
type RedisSessionStore struct {
	client *redis.Client
	config *RedisSessionStoreConfig
	logger *slog.Logger
}

// NewRedisSessionStore connects to Redis and verifies the connection.
func NewRedisSessionStore(config *RedisSessionStoreConfig) (*RedisSessionStore, error) {
	if config == nil {
		return nil, fmt.Errorf("redis session store config cannot be nil")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "ragwork:session:"
	}
	if config.SessionTTL == 0 {
		config.SessionTTL = time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.Database,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisSessionStore{
		client: client,
		config: config,
		logger: slog.Default().With("component", "redis-session-store"),
	}, nil
}

func (s *RedisSessionStore) key(sessionID string) string {
	return s.config.KeyPrefix + sessionID
}

func (s *RedisSessionStore) Put(ctx context.Context, session *ProcessingSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(session.SessionID), data, s.config.SessionTTL).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Get(ctx context.Context, sessionID string) (*ProcessingSession, error) {
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	var session ProcessingSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// Update applies fn under a best-effort read-modify-write. Sessions have a
// single writer (the pipeline goroutine), so optimistic concurrency is
// sufficient here.
func (s *RedisSessionStore) Update(ctx context.Context, sessionID string, fn func(*ProcessingSession)) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	fn(session)
	session.UpdatedAt = time.Now()
	return s.Put(ctx, session)
}

func (s *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.key(sessionID)).Err()
}

func (s *RedisSessionStore) List(ctx context.Context) ([]*ProcessingSession, error) {
	keys, err := s.client.Keys(ctx, s.config.KeyPrefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	sessions := make([]*ProcessingSession, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var session ProcessingSession
		if err := json.Unmarshal(data, &session); err != nil {
			continue
		}
		sessions = append(sessions, &session)
	}
	return sessions, nil
}

func (s *RedisSessionStore) DeleteAfter(sessionID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		if err := s.Delete(context.Background(), sessionID); err != nil {
			s.logger.Warn("Deferred session cleanup failed", "session_id", sessionID, "error", err)
		}
	})
}
