// Package auth guards the admin routes with a single shared secret.
//
// A successful login exchanges the secret for a random session token that
// expires after a configured TTL. The admin guard accepts a live session token
// or the secret itself as the bearer credential.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/brightline-electric/servicesite/internal/httputil"
)

const (
	// DefaultSessionTTL is the session lifetime when none is configured.
	DefaultSessionTTL = 12 * time.Hour

	tokenBytes = 32
)

var (
	// ErrSecretMissing indicates neither a password nor a hash was configured.
	ErrSecretMissing = errors.New("admin secret is not configured")
	// ErrInvalidCredentials indicates a wrong admin password.
	ErrInvalidCredentials = errors.New("invalid password")
	// ErrBearerTokenMissing indicates the Authorization header carried no bearer token.
	ErrBearerTokenMissing = errors.New("missing or malformed Authorization bearer token")
	// ErrBearerTokenInvalid indicates an unknown or expired bearer token.
	ErrBearerTokenInvalid = errors.New("invalid or expired bearer token")
	// ErrTooManyAttempts indicates the client spent its guessing budget.
	ErrTooManyAttempts = errors.New("too many login attempts, try again later")
)

// Config configures an Authenticator. PasswordHash, a bcrypt hash, takes
// precedence over Password.
type Config struct {
	Password     string
	PasswordHash string
	SessionTTL   time.Duration
}

// Session is an issued admin session.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// Authenticator verifies the admin secret and tracks issued sessions.
type Authenticator struct {
	password []byte
	hash     []byte
	ttl      time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]time.Time
}

// NewAuthenticator validates cfg and returns an Authenticator.
func NewAuthenticator(cfg Config) (*Authenticator, error) {
	a := &Authenticator{
		ttl:      cfg.SessionTTL,
		now:      time.Now,
		sessions: make(map[string]time.Time),
	}
	if a.ttl <= 0 {
		a.ttl = DefaultSessionTTL
	}

	switch hash := strings.TrimSpace(cfg.PasswordHash); {
	case hash != "":
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("admin password hash: %w", err)
		}
		a.hash = []byte(hash)
	case cfg.Password != "":
		a.password = []byte(cfg.Password)
	default:
		return nil, ErrSecretMissing
	}
	return a, nil
}

// Login checks password and issues a new session.
func (a *Authenticator) Login(password string) (Session, error) {
	if !a.verify(password) {
		return Session{}, ErrInvalidCredentials
	}

	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return Session{}, fmt.Errorf("generating session token: %w", err)
	}
	s := Session{
		Token:     hex.EncodeToString(raw),
		ExpiresAt: a.now().Add(a.ttl),
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.pruneLocked()
	a.sessions[s.Token] = s.ExpiresAt
	return s, nil
}

// Logout revokes a session token. Unknown tokens are ignored.
func (a *Authenticator) Logout(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, token)
}

// AuthenticateHTTP validates the bearer credential of r.
//
// Live session tokens always pass. Any other bearer is treated as a guess at
// the admin secret and draws on the per-client budget of limiter, which the
// login route shares: a blocked client gets ErrTooManyAttempts before the
// secret is compared, and every wrong guess spends one attempt. A nil
// limiter disables throttling.
func (a *Authenticator) AuthenticateHTTP(r *http.Request, limiter *LoginLimiter) error {
	presented := BearerToken(r)
	if presented == "" {
		return ErrBearerTokenMissing
	}
	if a.validSession(presented) {
		return nil
	}

	key := clientKey(r)
	if limiter.Blocked(key) {
		return ErrTooManyAttempts
	}
	if a.verify(presented) {
		return nil
	}
	limiter.Allow(key)
	return ErrBearerTokenInvalid
}

func (a *Authenticator) validSession(token string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	expires, ok := a.sessions[token]
	if !ok {
		return false
	}
	if !a.now().Before(expires) {
		delete(a.sessions, token)
		return false
	}
	return true
}

func (a *Authenticator) verify(password string) bool {
	if password == "" {
		return false
	}
	if a.hash != nil {
		return bcrypt.CompareHashAndPassword(a.hash, []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare(a.password, []byte(password)) == 1
}

func (a *Authenticator) pruneLocked() {
	now := a.now()
	for token, expires := range a.sessions {
		if !now.Before(expires) {
			delete(a.sessions, token)
		}
	}
}

// RequireAdmin rejects requests without a valid admin bearer credential.
func RequireAdmin(a *Authenticator, limiter *LoginLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := a.AuthenticateHTTP(r, limiter)
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, ErrTooManyAttempts):
				limiter.reject(w, r)
			default:
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				httputil.RespondProblem(w, r, http.StatusUnauthorized, err.Error())
			}
		})
	}
}

// BearerToken returns the bearer credential of r, or "".
func BearerToken(r *http.Request) string {
	return parseBearerToken(r.Header.Get("Authorization"))
}

func parseBearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
