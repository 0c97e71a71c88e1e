package auth

import (
	"context"
	"errors"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

// RoleEmployee is the only role allowed to use the application.
const RoleEmployee = "employee"

var ErrInvalidCredentials = errors.New("invalid username or password")

// User is an authenticated principal.
type User struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Verifier checks a username/password pair.
type Verifier interface {
	Verify(ctx context.Context, username, password string) (User, error)
}

// Credential is a stored account with a bcrypt hash.
type Credential struct {
	Username     string
	PasswordHash string
	Role         string
}

// StaticVerifier verifies against a fixed set of bcrypt credentials.
type StaticVerifier struct {
	creds map[string]Credential
	dummy []byte
}

// NewStaticVerifier indexes creds by username. An empty role means employee.
func NewStaticVerifier(creds []Credential) (*StaticVerifier, error) {
	v := &StaticVerifier{creds: make(map[string]Credential, len(creds))}
	for _, c := range creds {
		if c.Role == "" {
			c.Role = RoleEmployee
		}
		if _, err := bcrypt.Cost([]byte(c.PasswordHash)); err != nil {
			return nil, errors.New("user " + c.Username + ": password_hash is not a bcrypt hash")
		}
		v.creds[c.Username] = c
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("batchqc-dummy"), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	v.dummy = dummy
	return v, nil
}

func (v *StaticVerifier) Verify(ctx context.Context, username, password string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	c, ok := v.creds[username]
	if !ok {
		// keep timing close to the known-user path
		_ = bcrypt.CompareHashAndPassword(v.dummy, []byte(password))
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return User{Username: c.Username, Role: c.Role}, nil
}

// HashPassword returns a bcrypt hash at the default cost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ValidatePasswordStrength checks password complexity.
func ValidatePasswordStrength(password string) error {
	if len(password) < 12 {
		return errors.New("password must be at least 12 characters")
	}

	var (
		hasUpper   = regexp.MustCompile(`[A-Z]`).MatchString
		hasLower   = regexp.MustCompile(`[a-z]`).MatchString
		hasNumber  = regexp.MustCompile(`[0-9]`).MatchString
		hasSpecial = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>_\-+=]`).MatchString
	)

	checks := 0
	for _, has := range []func(string) bool{hasUpper, hasLower, hasNumber, hasSpecial} {
		if has(password) {
			checks++
		}
	}
	if checks < 3 {
		return errors.New("password must contain at least 3 of: uppercase, lowercase, numbers, special characters")
	}
	return nil
}
