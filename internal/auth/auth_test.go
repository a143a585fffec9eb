package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func bearer(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/admin/services", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestNewAuthenticator_RequiresSecret(t *testing.T) {
	_, err := NewAuthenticator(Config{})
	assert.ErrorIs(t, err, ErrSecretMissing)

	_, err = NewAuthenticator(Config{PasswordHash: "not-a-bcrypt-hash"})
	assert.Error(t, err)
}

func TestLogin_PlainPassword(t *testing.T) {
	a, err := NewAuthenticator(Config{Password: "s3cret"})
	require.NoError(t, err)

	_, err = a.Login("wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = a.Login("")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	s, err := a.Login("s3cret")
	require.NoError(t, err)
	assert.Len(t, s.Token, 2*tokenBytes)
	assert.WithinDuration(t, time.Now().Add(DefaultSessionTTL), s.ExpiresAt, time.Minute)

	assert.NoError(t, a.AuthenticateHTTP(bearer(s.Token), nil))
}

func TestLogin_BcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	a, err := NewAuthenticator(Config{Password: "ignored", PasswordHash: string(hash)})
	require.NoError(t, err)

	_, err = a.Login("ignored")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = a.Login("s3cret")
	require.NoError(t, err)
	assert.NoError(t, a.AuthenticateHTTP(bearer("s3cret"), nil))
}

func TestAuthenticateHTTP(t *testing.T) {
	a, err := NewAuthenticator(Config{Password: "s3cret", SessionTTL: time.Hour})
	require.NoError(t, err)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	s, err := a.Login("s3cret")
	require.NoError(t, err)

	assert.ErrorIs(t, a.AuthenticateHTTP(bearer(""), nil), ErrBearerTokenMissing)
	assert.ErrorIs(t, a.AuthenticateHTTP(bearer("nope"), nil), ErrBearerTokenInvalid)
	assert.NoError(t, a.AuthenticateHTTP(bearer("s3cret"), nil))
	assert.NoError(t, a.AuthenticateHTTP(bearer(s.Token), nil))

	req := bearer("")
	req.Header.Set("Authorization", "Basic "+s.Token)
	assert.ErrorIs(t, a.AuthenticateHTTP(req, nil), ErrBearerTokenMissing)

	now = now.Add(time.Hour)
	assert.ErrorIs(t, a.AuthenticateHTTP(bearer(s.Token), nil), ErrBearerTokenInvalid)
}

func TestLogout(t *testing.T) {
	a, err := NewAuthenticator(Config{Password: "s3cret"})
	require.NoError(t, err)
	s, err := a.Login("s3cret")
	require.NoError(t, err)

	a.Logout(s.Token)
	assert.ErrorIs(t, a.AuthenticateHTTP(bearer(s.Token), nil), ErrBearerTokenInvalid)
}

func TestRequireAdmin(t *testing.T) {
	a, err := NewAuthenticator(Config{Password: "s3cret"})
	require.NoError(t, err)
	h := RequireAdmin(a, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, bearer(""))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, `Bearer realm="admin"`, resp.Header().Get("WWW-Authenticate"))

	resp = httptest.NewRecorder()
	h.ServeHTTP(resp, bearer("s3cret"))
	assert.Equal(t, http.StatusNoContent, resp.Code)
}

func TestRequireAdmin_ThrottlesSecretGuesses(t *testing.T) {
	a, err := NewAuthenticator(Config{Password: "s3cret"})
	require.NoError(t, err)
	s, err := a.Login("s3cret")
	require.NoError(t, err)

	limiter := NewLoginLimiter(3)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	h := RequireAdmin(a, limiter)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	serve := func(token string) *httptest.ResponseRecorder {
		req := bearer(token)
		req.RemoteAddr = "203.0.113.9:52000"
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)
		return resp
	}

	for range 3 {
		assert.Equal(t, http.StatusUnauthorized, serve("guess").Code)
	}
	resp := serve("guess")
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, "20", resp.Header().Get("Retry-After"))

	// The secret is not even compared while the client is blocked.
	assert.Equal(t, http.StatusTooManyRequests, serve("s3cret").Code)
	assert.NoError(t, a.AuthenticateHTTP(bearer("s3cret"), nil))

	// Sessions issued by the login route keep working.
	assert.Equal(t, http.StatusNoContent, serve(s.Token).Code)

	now = now.Add(21 * time.Second)
	assert.Equal(t, http.StatusNoContent, serve("s3cret").Code)
}

func TestRequireAdmin_CorrectSecretDoesNotSpendBudget(t *testing.T) {
	a, err := NewAuthenticator(Config{Password: "s3cret"})
	require.NoError(t, err)
	limiter := NewLoginLimiter(1)

	h := RequireAdmin(a, limiter)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for range 5 {
		req := bearer("s3cret")
		req.RemoteAddr = "203.0.113.10:52000"
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusNoContent, resp.Code)
	}
}

func TestParseBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{header: "", want: ""},
		{header: "Bearer abc", want: "abc"},
		{header: "bearer  abc ", want: "abc"},
		{header: "Token abc", want: ""},
		{header: "Bearer", want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseBearerToken(tt.header), tt.header)
	}
}
