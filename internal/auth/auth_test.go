package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starter/internal/cache"
	"starter/internal/models"
)

func testConfig() Config {
	return Config{
		Secret:     "test-secret-with-enough-entropy",
		Issuer:     "starter",
		Audience:   "starter-clients",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}
}

func testUser() *models.User {
	u := &models.User{UserName: "alice", Email: "alice@x.com"}
	u.ID = 42
	return u
}

func TestAccessTokenRoundTrip(t *testing.T) {
	tk := NewTokens(testConfig())
	raw, exp, err := tk.Access(testUser(), []string{"Admin"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), exp, 5*time.Second)

	c, err := tk.Parse(raw)
	require.NoError(t, err)
	assert.EqualValues(t, 42, c.UserID)
	assert.Equal(t, "alice", c.Name)
	assert.Equal(t, "alice@x.com", c.Email)
	assert.Equal(t, []string{"Admin"}, c.Roles)
	assert.Equal(t, "42", c.Subject)
	assert.NotEmpty(t, c.ID)
}

func TestAccessTokenRejected(t *testing.T) {
	cfg := testConfig()
	tk := NewTokens(cfg)
	raw, _, err := tk.Access(testUser(), nil)
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		other := cfg
		other.Secret = "another-secret"
		_, err := NewTokens(other).Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
	t.Run("wrong audience", func(t *testing.T) {
		other := cfg
		other.Audience = "someone-else"
		_, err := NewTokens(other).Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
	t.Run("expired", func(t *testing.T) {
		late := NewTokens(cfg)
		late.now = func() time.Time { return time.Now().Add(time.Hour) }
		_, err := late.Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
	t.Run("alg none", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = tk.Parse(unsigned)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
	t.Run("empty", func(t *testing.T) {
		_, err := tk.Parse("  ")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestRefreshTokenShape(t *testing.T) {
	tk := NewTokens(testConfig())
	a, err := tk.Refresh()
	require.NoError(t, err)
	b, err := tk.Refresh()
	require.NoError(t, err)

	assert.NotEqual(t, a.Raw, b.Raw)
	id, secret, ok := strings.Cut(a.Raw, ".")
	require.True(t, ok)
	assert.Len(t, id, 26)
	assert.NotEmpty(t, secret)
	assert.Equal(t, HashRefresh(a.Raw), a.Hash)
	assert.Len(t, a.Hash, 64)
	assert.NotContains(t, a.Hash, a.Raw)
}

func TestPasswordHashing(t *testing.T) {
	h, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, VerifyPassword(h, "correct horse"))
	assert.False(t, VerifyPassword(h, "wrong horse"))
	assert.False(t, VerifyPassword("", "correct horse"))

	_, err = HashPassword("short")
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, err = HashPassword(strings.Repeat("a", MaxPasswordBytes))
	require.NoError(t, err)
	_, err = HashPassword(strings.Repeat("a", MaxPasswordBytes+1))
	assert.ErrorIs(t, err, ErrLongPassword)
	// 40 символов кириллицы: 80 байт
	assert.ErrorIs(t, CheckPassword(strings.Repeat("ж", 40)), ErrLongPassword)
}

func TestResetTokenLifecycle(t *testing.T) {
	rt := NewResetTokens("secret", 30*time.Minute)
	tok, exp := rt.Issue(7, "hash-v1")
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), exp, 5*time.Second)

	id, err := rt.UserID(tok)
	require.NoError(t, err)
	assert.EqualValues(t, 7, id)
	require.NoError(t, rt.Verify(tok, "hash-v1"))

	// ссылка из письма приходит URL-кодированной
	encoded := url.QueryEscape(tok)
	id, err = rt.UserID(encoded)
	require.NoError(t, err)
	assert.EqualValues(t, 7, id)
	require.NoError(t, rt.Verify(encoded, "hash-v1"))

	// после смены пароля токен больше не действует
	assert.ErrorIs(t, rt.Verify(tok, "hash-v2"), ErrInvalidToken)
}

func TestResetTokenRejected(t *testing.T) {
	rt := NewResetTokens("secret", time.Minute)
	tok, _ := rt.Issue(7, "h")

	late := NewResetTokens("secret", time.Minute)
	late.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err := late.UserID(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	assert.ErrorIs(t, NewResetTokens("other", time.Minute).Verify(tok, "h"), ErrInvalidToken)

	for _, bad := range []string{"", "no-dot", "!!!.???", "Zm9v.YmFy"} {
		_, err := rt.UserID(bad)
		assert.ErrorIs(t, err, ErrInvalidToken, bad)
	}
}

type countingLoader struct {
	mu    sync.Mutex
	calls map[string]int
	perms map[string][]string
}

func (l *countingLoader) RolePermissions(_ context.Context, role string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[role]++
	return append([]string(nil), l.perms[role]...), nil
}

func newLoader() *countingLoader {
	return &countingLoader{
		calls: map[string]int{},
		perms: map[string][]string{
			"Admin": {"Users_Read", "Users_Delete"},
			"User":  {"Notifications_Read"},
		},
	}
}

func TestResolverCachesAndInvalidates(t *testing.T) {
	ctx := context.Background()
	l := newLoader()
	r := NewResolver(l, cache.NewMemory(), cache.Options{Sliding: time.Minute, Absolute: time.Hour})

	perms, err := r.Resolve(ctx, []string{"Admin", "User"})
	require.NoError(t, err)
	assert.Len(t, perms, 3)
	_, err = r.Resolve(ctx, []string{"Admin"})
	require.NoError(t, err)
	assert.Equal(t, 1, l.calls["Admin"])

	l.perms["Admin"] = append(l.perms["Admin"], "Roles_Read")
	r.Invalidate(ctx, "Admin")
	perms, err = r.Resolve(ctx, []string{"Admin"})
	require.NoError(t, err)
	assert.Equal(t, 2, l.calls["Admin"])
	assert.Contains(t, perms, "Roles_Read")
}

func TestMiddlewareGates(t *testing.T) {
	tk := NewTokens(testConfig())
	mw := NewMiddleware(tk, NewResolver(newLoader(), cache.NewMemory(), cache.Options{}))

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFrom(r.Context())
		_, _ = w.Write([]byte(p.UserName))
	})
	h := mw.Authenticate(Require("Users_Delete")(ok))

	admin, _, err := tk.Access(testUser(), []string{"Admin"})
	require.NoError(t, err)
	plain, _, err := tk.Access(testUser(), []string{"User"})
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
		{"basic scheme", "Basic Zm9vOmJhcg==", http.StatusUnauthorized},
		{"missing permission", "Bearer " + plain, http.StatusForbidden},
		{"granted", "Bearer " + admin, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodDelete, "/api/users/1", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
			if tc.want == http.StatusOK {
				assert.Equal(t, "alice", rec.Body.String())
			} else {
				assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestRequireAuthAllowsAnyPrincipal(t *testing.T) {
	tk := NewTokens(testConfig())
	mw := NewMiddleware(tk, NewResolver(newLoader(), cache.NewMemory(), cache.Options{}))
	h := mw.Authenticate(RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	raw, _, err := tk.Access(testUser(), nil)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
}
