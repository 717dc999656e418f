// Package redis stores review sessions in Redis so several API replicas can
// share them.
package redis

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"bid-review/pkg/errors"
	"bid-review/session"
)

const keyPrefix = "bidreview:session:"

// Config configures the Redis connection.
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	TTL      time.Duration
	LockTTL  time.Duration
}

// DefaultConfig returns default Redis configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:     "localhost:6379",
		PoolSize: 100,
		TTL:      24 * time.Hour,
		LockTTL:  30 * time.Second,
	}
}

// SessionStore keeps sessions as JSON values with a sliding TTL.
type SessionStore struct {
	rdb    *redis.Client
	locker *redislock.Client
	ttl    time.Duration
	lock   time.Duration
}

// NewSessionStore connects to Redis and verifies the connection.
func NewSessionStore(ctx context.Context, cfg *Config) (*SessionStore, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	log.Info().Str("addr", cfg.Addr).Msg("Connected to redis session store")

	return &SessionStore{
		rdb:    rdb,
		locker: redislock.New(rdb),
		ttl:    cfg.TTL,
		lock:   lockTTL,
	}, nil
}

func sessionKey(id string) string {
	return keyPrefix + id
}

func lockKey(id string) string {
	return keyPrefix + id + ":lock"
}

// Get loads a session.
func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, errors.NewSessionNotFoundError(id)
	}
	return sess, nil
}

func (s *SessionStore) load(ctx context.Context, id string) (*session.Session, error) {
	val, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if goerrors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return decodeSession(val)
}

func decodeSession(data []byte) (*session.Session, error) {
	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &sess, nil
}

// Update applies fn under a distributed lock on the session.
func (s *SessionStore) Update(ctx context.Context, id string, fn func(*session.Session) error) (*session.Session, error) {
	if id == "" {
		id = session.New("").ID
	}

	lock, err := s.locker.Obtain(ctx, lockKey(id), s.lock, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 100),
	})
	if goerrors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("session %s is busy", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock session %s: %w", id, err)
	}
	defer func() {
		_ = lock.Release(ctx)
	}()

	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		sess = session.New(id)
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	sess.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.rdb.Set(ctx, sessionKey(id), data, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("failed to save session %s: %w", id, err)
	}
	return sess, nil
}

// Delete removes a session.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, sessionKey(id)).Err()
}

// Close closes the Redis client.
func (s *SessionStore) Close() error {
	return s.rdb.Close()
}
