package auth

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// Session is a server-side login session addressed by an opaque token.
type Session struct {
	Token     string
	User      User
	CreatedAt time.Time
	LastSeen  time.Time
	ExpiresAt time.Time
}

// Sessions stores sessions in process memory. A session ends TTL after it
// was created, or earlier once it has been idle for longer than Idle.
type Sessions struct {
	TTL  time.Duration
	Idle time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewSessions returns an empty session store.
func NewSessions(ttl, idle time.Duration, now func() time.Time) *Sessions {
	if now == nil {
		now = time.Now
	}
	return &Sessions{TTL: ttl, Idle: idle, sessions: make(map[string]*Session), now: now}
}

// GenerateToken returns 32 random bytes, hex encoded.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Create starts a session for u.
func (s *Sessions) Create(u User) (Session, error) {
	token, err := GenerateToken()
	if err != nil {
		return Session{}, err
	}
	now := s.now()
	sess := &Session{Token: token, User: u, CreatedAt: now, LastSeen: now, ExpiresAt: now.Add(s.TTL)}

	s.mu.Lock()
	s.sessions[token] = sess
	s.mu.Unlock()
	return *sess, nil
}

// Touch validates token and records activity. ok is false for unknown,
// expired or idle sessions; the latter two are removed.
func (s *Sessions) Touch(token string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, found := s.sessions[token]
	if !found {
		return Session{}, false
	}
	now := s.now()
	if s.expired(sess, now) {
		delete(s.sessions, token)
		return Session{}, false
	}
	sess.LastSeen = now
	return *sess, true
}

// Delete ends a session. Unknown tokens are ignored.
func (s *Sessions) Delete(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// Sweep drops every expired or idle session and returns how many were removed.
func (s *Sessions) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for token, sess := range s.sessions {
		if s.expired(sess, now) {
			delete(s.sessions, token)
			n++
		}
	}
	return n
}

// Len returns the number of live and not yet swept sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Sessions) expired(sess *Session, now time.Time) bool {
	return !now.Before(sess.ExpiresAt) || now.Sub(sess.LastSeen) > s.Idle
}
