package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		password string
		wantErr  bool
	}{
		{"Short123!", true},
		{"Short12345!", true},
		{"Shorter1234!", false},
		{"alllowercase", true},
		{"123456789012", true},
		{"lower1234567", true},
		{"lowerUPPER!!", false},
		{"Password1234", false},
		{"ExactlyTwelve", true},
		{"ExactlyTwel1", false},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			err := ValidatePasswordStrength(tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePasswordStrength(%q) error = %v, wantErr %v", tt.password, err, tt.wantErr)
			}
		})
	}
}

func TestStaticVerifier(t *testing.T) {
	v, err := NewStaticVerifier([]Credential{{Username: "employee", PasswordHash: mustHash(t, "s3cret")}})
	require.NoError(t, err)
	ctx := context.Background()

	u, err := v.Verify(ctx, "employee", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, User{Username: "employee", Role: RoleEmployee}, u)

	_, err = v.Verify(ctx, "employee", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = v.Verify(ctx, "nobody", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestStaticVerifierRejectsPlaintext(t *testing.T) {
	_, err := NewStaticVerifier([]Credential{{Username: "employee", PasswordHash: "password"}})
	assert.Error(t, err)
}

func TestHashPassword(t *testing.T) {
	h, err := HashPassword("changeme")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(h), []byte("changeme")))
}

func TestLockout(t *testing.T) {
	clock := newClock()
	l := NewLockout(clock.Now)

	for i := 1; i < MaxFailedLoginAttempts; i++ {
		assert.False(t, l.Fail("employee"), "attempt %d", i)
	}
	assert.False(t, l.IsLocked("employee"))
	assert.True(t, l.Fail("employee"))
	assert.True(t, l.IsLocked("employee"))
	assert.False(t, l.IsLocked("other"))

	clock.Advance(AccountLockoutDuration)
	assert.False(t, l.IsLocked("employee"))
	assert.False(t, l.Fail("employee"), "counter restarts after the lock expires")
}

func TestLockoutReset(t *testing.T) {
	l := NewLockout(nil)
	for i := 0; i < MaxFailedLoginAttempts-1; i++ {
		l.Fail("employee")
	}
	l.Reset("employee")
	assert.False(t, l.Fail("employee"))
}

func TestSessionsActivityKeepsSessionAlive(t *testing.T) {
	clock := newClock()
	s := NewSessions(24*time.Hour, 30*time.Minute, clock.Now)
	sess, err := s.Create(User{Username: "employee", Role: RoleEmployee})
	require.NoError(t, err)
	assert.Len(t, sess.Token, 64)

	// 80 minutes of activity outlives the idle timeout several times over
	for i := 0; i < 4; i++ {
		clock.Advance(20 * time.Minute)
		got, ok := s.Touch(sess.Token)
		require.True(t, ok, "touch %d", i)
		assert.Equal(t, "employee", got.User.Username)
		assert.Equal(t, sess.ExpiresAt, got.ExpiresAt)
		assert.Equal(t, clock.Now(), got.LastSeen)
	}
	assert.Equal(t, 1, s.Len())
}

func TestSessionsAbsoluteTTL(t *testing.T) {
	clock := newClock()
	s := NewSessions(24*time.Hour, 30*time.Minute, clock.Now)
	sess, err := s.Create(User{Username: "employee", Role: RoleEmployee})
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(24*time.Hour), sess.ExpiresAt)

	for elapsed := 15 * time.Minute; elapsed < 24*time.Hour; elapsed += 15 * time.Minute {
		clock.Advance(15 * time.Minute)
		_, ok := s.Touch(sess.Token)
		require.True(t, ok, "touch at %s", elapsed)
	}

	clock.Advance(15 * time.Minute)
	_, ok := s.Touch(sess.Token)
	assert.False(t, ok, "an active session still ends at its TTL")
	assert.Zero(t, s.Len())
}

func TestSessionsIdleTimeout(t *testing.T) {
	clock := newClock()
	s := NewSessions(24*time.Hour, 30*time.Minute, clock.Now)
	sess, err := s.Create(User{Username: "employee"})
	require.NoError(t, err)

	clock.Advance(31 * time.Minute)
	_, ok := s.Touch(sess.Token)
	assert.False(t, ok)
	assert.Zero(t, s.Len())
}

func TestSessionsDeleteAndSweep(t *testing.T) {
	clock := newClock()
	s := NewSessions(time.Hour, time.Hour, clock.Now)
	a, err := s.Create(User{Username: "a"})
	require.NoError(t, err)
	_, err = s.Create(User{Username: "b"})
	require.NoError(t, err)

	s.Delete(a.Token)
	_, ok := s.Touch(a.Token)
	assert.False(t, ok)

	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, s.Sweep())
	assert.Zero(t, s.Len())
}
