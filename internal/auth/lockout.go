package auth

import (
	"sync"
	"time"
)

const (
	MaxFailedLoginAttempts = 10
	AccountLockoutDuration = 15 * time.Minute
)

// Lockout counts consecutive failed logins per username.
type Lockout struct {
	mu          sync.Mutex
	failures    map[string]int
	lockedUntil map[string]time.Time
	now         func() time.Time
}

// NewLockout returns a tracker using now as its clock (time.Now when nil).
func NewLockout(now func() time.Time) *Lockout {
	if now == nil {
		now = time.Now
	}
	return &Lockout{
		failures:    make(map[string]int),
		lockedUntil: make(map[string]time.Time),
		now:         now,
	}
}

// IsLocked reports whether username is currently locked. An expired lock
// is cleared.
func (l *Lockout) IsLocked(username string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	until, ok := l.lockedUntil[username]
	if !ok {
		return false
	}
	if l.now().Before(until) {
		return true
	}
	delete(l.lockedUntil, username)
	delete(l.failures, username)
	return false
}

// Fail records a failed attempt and reports whether it locked the account.
func (l *Lockout) Fail(username string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.failures[username]++
	if l.failures[username] >= MaxFailedLoginAttempts {
		l.lockedUntil[username] = l.now().Add(AccountLockoutDuration)
		return true
	}
	return false
}

// Reset clears the counter after a successful login.
func (l *Lockout) Reset(username string) {
	l.mu.Lock()
	delete(l.failures, username)
	delete(l.lockedUntil, username)
	l.mu.Unlock()
}
