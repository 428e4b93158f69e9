package auth

import (
	"net/http"
	"strings"

	"starter/internal/logs"
	"starter/internal/middleware"
	"starter/internal/models"
)

// Middleware проверяет bearer-токен и кладёт Principal в контекст запроса.
type Middleware struct {
	tokens   *Tokens
	resolver *Resolver
}

func NewMiddleware(tokens *Tokens, resolver *Resolver) *Middleware {
	return &Middleware{tokens: tokens, resolver: resolver}
}

// Authenticate пропускает запросы без заголовка Authorization (доступ решают
// RequireAuth/Require), но отвечает 401 на некорректный или просроченный токен.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if h == "" {
			next.ServeHTTP(w, r)
			return
		}
		raw, ok := bearer(h)
		if !ok {
			unauthorized(w, r, "unsupported authorization scheme")
			return
		}
		p, err := m.Principal(r, raw)
		if err != nil {
			logs.WithRequest(middleware.GetRequestID(r), 0).Debugf("auth: %v", err)
			unauthorized(w, r, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// Principal разбирает access-токен и разрешает права его ролей.
func (m *Middleware) Principal(r *http.Request, raw string) (*Principal, error) {
	claims, err := m.tokens.Parse(raw)
	if err != nil {
		return nil, err
	}
	perms, err := m.resolver.Resolve(r.Context(), claims.Roles)
	if err != nil {
		return nil, err
	}
	return &Principal{
		UserID:      claims.UserID,
		UserName:    claims.Name,
		Email:       claims.Email,
		Roles:       claims.Roles,
		Permissions: perms,
	}, nil
}

func bearer(h string) (string, bool) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFrom(r.Context()); !ok {
			unauthorized(w, r, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Require пропускает только пользователей с правом perm.
func Require(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				unauthorized(w, r, "authentication required")
				return
			}
			if !p.Has(perm) {
				models.WriteProblemAt(w, http.StatusForbidden, "Forbidden",
					"missing permission "+perm, r.URL.Path, reqExtra(r))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	models.WriteProblemAt(w, http.StatusUnauthorized, "Unauthorized", detail, r.URL.Path, reqExtra(r))
}

func reqExtra(r *http.Request) map[string]any {
	return map[string]any{"reqid": middleware.GetRequestID(r)}
}
