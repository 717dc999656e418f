// Package memory provides in-process session and history stores.
package memory

import (
	"context"
	"sync"
	"time"

	"bid-review/pkg/errors"
	"bid-review/session"
)

// SessionStore keeps sessions in memory. A zero TTL keeps them forever.
type SessionStore struct {
	sessions map[string]*session.Session
	ttl      time.Duration
	now      func() time.Time
	mu       sync.Mutex
}

// NewSessionStore creates an in-memory session store.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*session.Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *SessionStore) expired(sess *session.Session) bool {
	return s.ttl > 0 && s.now().Sub(sess.UpdatedAt) > s.ttl
}

// Get returns a copy of the session.
func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || s.expired(sess) {
		delete(s.sessions, id)
		return nil, errors.NewSessionNotFoundError(id)
	}
	return sess.Clone(), nil
}

// Update applies fn to the session under the store lock.
func (s *SessionStore) Update(ctx context.Context, id string, fn func(*session.Session) error) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || s.expired(sess) {
		sess = session.New(id)
		sess.CreatedAt = s.now().UTC()
	} else {
		sess = sess.Clone()
	}

	if err := fn(sess); err != nil {
		return nil, err
	}
	sess.UpdatedAt = s.now().UTC()
	s.sessions[sess.ID] = sess
	return sess.Clone(), nil
}

// Delete removes a session.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Sweep removes expired sessions and returns how many were dropped.
func (s *SessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, sess := range s.sessions {
		if s.expired(sess) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// Close is a no-op.
func (s *SessionStore) Close() error {
	return nil
}
