package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starter/internal/auth"
	"starter/internal/cache"
	"starter/internal/mail"
	"starter/internal/metrics"
	"starter/internal/middleware"
	"starter/internal/models"
	"starter/internal/repo"
	"starter/internal/service"
)

const adminPassword = "admin-password-1"

type outbox struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (o *outbox) Send(_ context.Context, m mail.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, m)
	return nil
}

type testAPI struct {
	t       *testing.T
	srv     *httptest.Server
	outbox  *outbox
	metrics *metrics.Metrics
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()
	r := service.NewRepos(repo.Memory())
	audit := service.NewAuditService(r.AuditLogs)
	users := service.NewUserService(r, audit)
	roles := service.NewRoleService(r, audit)
	perms := service.NewPermissionService(r, audit)

	tokens := auth.NewTokens(auth.Config{
		Secret: "api-test-secret", Issuer: "starter", Audience: "starter",
		AccessTTL: 5 * time.Minute, RefreshTTL: time.Hour,
	})
	resolver := auth.NewResolver(roles, cache.NewMemory(), cache.Options{Sliding: time.Minute, Absolute: time.Hour})
	roles.OnPermissionsChanged(resolver.Invalidate)
	perms.OnPermissionsChanged(resolver.Invalidate)

	box := &outbox{}
	m := metrics.New()
	authSvc := service.NewAuthService(service.AuthDeps{
		Repos: r, Users: users, Tokens: tokens,
		Reset:    auth.NewResetTokens("api-test-secret", time.Hour),
		Mailer:   box,
		ResetURL: "https://app.example.com/reset",
		Audit:    audit,
	})
	require.NoError(t, service.Seed(ctx, r, users, roles, service.SeedOptions{
		AdminEmail: "admin@x.com", AdminUserName: "admin", AdminPassword: adminPassword,
	}))

	router := mux.NewRouter().StrictSlash(true)
	router.Use(middleware.RequestID, middleware.Recoverer)
	Register(router, Deps{
		Users:         users,
		Roles:         roles,
		Permissions:   perms,
		Settings:      service.NewSettingsService(r, audit),
		Notifications: service.NewNotificationService(r, audit),
		Audit:         audit,
		Auth:          authSvc,
		Authn:         auth.NewMiddleware(tokens, resolver),
		Metrics:       m,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testAPI{t: t, srv: srv, outbox: box, metrics: m}
}

type response struct {
	*http.Response
	body []byte
}

func (r response) decode(v any) {
	if err := json.Unmarshal(r.body, v); err != nil {
		panic(err)
	}
}

func (a *testAPI) do(method, path, token string, body any) response {
	a.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rd)
	require.NoError(a.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.srv.Client().Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	return response{Response: resp, body: raw}
}

func (a *testAPI) login(login, password string) models.AuthResponse {
	a.t.Helper()
	resp := a.do(http.MethodPost, "/api/auth/login", "", models.LoginRequest{UserNameOrEmail: login, Password: password})
	require.Equal(a.t, http.StatusOK, resp.StatusCode, string(resp.body))
	var out models.AuthResponse
	resp.decode(&out)
	return out
}

func (a *testAPI) register(name string) models.AuthResponse {
	a.t.Helper()
	resp := a.do(http.MethodPost, "/api/auth/register", "", models.RegisterRequest{
		UserName: name, Email: name + "@x.com", Password: "user-password-1",
	})
	require.Equal(a.t, http.StatusOK, resp.StatusCode, string(resp.body))
	var out models.AuthResponse
	resp.decode(&out)
	return out
}

func TestGenericRoutesRequirePermissions(t *testing.T) {
	a := newTestAPI(t)

	resp := a.do(http.MethodGet, "/api/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))

	resp = a.do(http.MethodGet, "/api/users", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	user := a.register("bob")
	resp = a.do(http.MethodGet, "/api/users", user.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	admin := a.login("admin", adminPassword)
	resp = a.do(http.MethodGet, "/api/users", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var all []models.UserDTO
	resp.decode(&all)
	assert.Len(t, all, 2)
	assert.NotContains(t, string(resp.body), "passwordHash")
}

func TestPagedListing(t *testing.T) {
	a := newTestAPI(t)
	admin := a.login("admin@x.com", adminPassword)
	for _, n := range []string{"carol", "dave", "erin", "frank"} {
		a.register(n)
	}

	resp := a.do(http.MethodGet, "/api/users/paged?pageNumber=2&pageSize=2&sortBy=userName&sortDirection=desc", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(resp.body))
	var page repo.Paged[models.UserDTO]
	resp.decode(&page)
	assert.EqualValues(t, 5, page.TotalCount)
	assert.Equal(t, 3, page.TotalPages)
	assert.True(t, page.HasPrevious)
	assert.True(t, page.HasNext)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "dave", page.Items[0].UserName)
	assert.Equal(t, "carol", page.Items[1].UserName)

	resp = a.do(http.MethodGet, "/api/users/paged?pageSize=10&sortBy=nonexistentField", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.decode(&page)
	assert.Len(t, page.Items, 5)
	assert.Equal(t, "admin", page.Items[0].UserName)

	resp = a.do(http.MethodGet, "/api/users/paged?searchTerm=ERIN", admin.AccessToken, nil)
	resp.decode(&page)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "erin", page.Items[0].UserName)
}

func TestCRUDLifecycle(t *testing.T) {
	a := newTestAPI(t)
	token := a.login("admin", adminPassword).AccessToken

	resp := a.do(http.MethodPost, "/api/roles", token, models.RoleDTO{Name: "Editors", Description: "edit, review"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(resp.body))
	var role models.RoleDTO
	resp.decode(&role)
	assert.True(t, strings.HasSuffix(resp.Header.Get("Location"), "/api/roles/"+jsonID(role.ID)))

	mismatch := role
	mismatch.ID = role.ID + 100
	resp = a.do(http.MethodPut, "/api/roles/"+jsonID(role.ID), token, mismatch)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	first := role
	first.Description = "v2"
	resp = a.do(http.MethodPut, "/api/roles/"+jsonID(role.ID), token, first)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(resp.body))

	stale := role
	stale.Description = "v2 from another tab"
	resp = a.do(http.MethodPut, "/api/roles/"+jsonID(role.ID), token, stale)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = a.do(http.MethodPost, "/api/roles", token, models.RoleDTO{Name: "editors"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = a.do(http.MethodPost, "/api/roles", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = a.do(http.MethodDelete, "/api/roles/"+jsonID(role.ID), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", strings.TrimSpace(string(resp.body)))

	resp = a.do(http.MethodGet, "/api/roles/"+jsonID(role.ID), token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var p models.Problem
	resp.decode(&p)
	assert.Equal(t, 404, p.Status)
	assert.Equal(t, "/api/roles/"+jsonID(role.ID), p.Instance)
}

func jsonID(id uint) string {
	raw, _ := json.Marshal(id)
	return string(raw)
}

func TestExportCSV(t *testing.T) {
	a := newTestAPI(t)
	token := a.login("admin", adminPassword).AccessToken
	resp := a.do(http.MethodPost, "/api/roles", token, models.RoleDTO{Name: "Quoted", Description: `says "hi", twice`})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = a.do(http.MethodGet, "/api/roles/export/csv?searchTerm=quoted", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/csv"))
	assert.Regexp(t, regexp.MustCompile(`attachment; filename="role_export_\d{14}\.csv"`), resp.Header.Get("Content-Disposition"))
	assert.Contains(t, string(resp.body), `"says ""hi"", twice"`)

	rows, err := csv.NewReader(bytes.NewReader(resp.body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Id", rows[0][0])

	resp = a.do(http.MethodGet, "/api/roles/export/xlsx", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".xlsx")
	assert.Equal(t, "PK", string(resp.body[:2]))
}

func TestAuditLogsAreReadOnly(t *testing.T) {
	a := newTestAPI(t)
	token := a.login("admin", adminPassword).AccessToken
	a.do(http.MethodPost, "/api/roles", token, models.RoleDTO{Name: "Audited"})

	resp := a.do(http.MethodGet, "/api/auditlogs/paged?searchTerm=Role", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page repo.Paged[models.AuditLogDTO]
	resp.decode(&page)
	require.NotEmpty(t, page.Items)

	resp = a.do(http.MethodDelete, "/api/auditlogs/"+jsonID(page.Items[0].ID), token, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestAuthFlow(t *testing.T) {
	a := newTestAPI(t)
	first := a.register("gina")

	resp := a.do(http.MethodGet, "/api/auth/validate", first.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var v models.ValidateResponse
	resp.decode(&v)
	assert.True(t, v.Valid)
	assert.Equal(t, []string{"User"}, v.Roles)

	resp = a.do(http.MethodGet, "/api/auth/me", first.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me models.MeResponse
	resp.decode(&me)
	assert.Equal(t, "gina", me.User.UserName)
	assert.Contains(t, me.Permissions, "Settings_Read")

	resp = a.do(http.MethodPost, "/api/auth/refresh", "", models.RefreshRequest{RefreshToken: first.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var second models.AuthResponse
	resp.decode(&second)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	resp = a.do(http.MethodPost, "/api/auth/refresh", "", models.RefreshRequest{RefreshToken: first.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = a.do(http.MethodPost, "/api/auth/logout", "", models.RefreshRequest{RefreshToken: "unknown"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = a.do(http.MethodPost, "/api/auth/login", "", models.LoginRequest{UserNameOrEmail: "gina", Password: "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	scrape := httptest.NewRecorder()
	a.metrics.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, scrape.Body.String(), `auth_events_total{event="refresh",outcome="fail"} 1`)
	assert.Contains(t, scrape.Body.String(), `auth_events_total{event="login",outcome="fail"} 1`)
}

func TestPasswordResetOverHTTP(t *testing.T) {
	a := newTestAPI(t)
	a.register("hank")

	unknown := a.do(http.MethodPost, "/api/auth/forgot-password", "", models.ForgotPasswordRequest{Email: "ghost@x.com"})
	known := a.do(http.MethodPost, "/api/auth/forgot-password", "", models.ForgotPasswordRequest{Email: "hank@x.com"})
	require.Equal(t, http.StatusOK, unknown.StatusCode)
	require.Equal(t, http.StatusOK, known.StatusCode)
	assert.Equal(t, string(unknown.body), string(known.body))
	require.Len(t, a.outbox.sent, 1)

	link := regexp.MustCompile(`https://app\.example\.com/reset\?token=(\S+)`).FindStringSubmatch(a.outbox.sent[0].Text)
	require.Len(t, link, 2)
	token, err := url.QueryUnescape(link[1])
	require.NoError(t, err)

	resp := a.do(http.MethodPost, "/api/auth/reset-password", "", models.ResetPasswordRequest{Token: token, NewPassword: "fresh-password-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(resp.body))
	a.login("hank", "fresh-password-1")

	resp = a.do(http.MethodPost, "/api/auth/reset-password", "", models.ResetPasswordRequest{Token: token, NewPassword: "again-password-1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNotificationsForOwner(t *testing.T) {
	a := newTestAPI(t)
	admin := a.login("admin", adminPassword).AccessToken
	ivy := a.register("ivy")
	jack := a.register("jack")

	resp := a.do(http.MethodPost, "/api/notifications", admin, models.NotificationDTO{UserID: ivy.User.ID, Title: "Welcome", Type: "info"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(resp.body))
	var n models.NotificationDTO
	resp.decode(&n)

	resp = a.do(http.MethodGet, "/api/notifications/mine/unread-count", ivy.AccessToken, nil)
	var cnt models.CountResponse
	resp.decode(&cnt)
	assert.EqualValues(t, 1, cnt.Count)

	resp = a.do(http.MethodPost, "/api/notifications/"+jsonID(n.ID)+"/read", jack.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = a.do(http.MethodPost, "/api/notifications/"+jsonID(n.ID)+"/read", ivy.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = a.do(http.MethodGet, "/api/notifications/mine?unreadOnly=true", ivy.AccessToken, nil)
	var page repo.Paged[models.NotificationDTO]
	resp.decode(&page)
	assert.Empty(t, page.Items)

	// обычный пользователь не создаёт уведомления другим
	resp = a.do(http.MethodPost, "/api/notifications", ivy.AccessToken, models.NotificationDTO{UserID: jack.User.ID, Title: "spam"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestPermissionChangesApplyImmediately(t *testing.T) {
	a := newTestAPI(t)
	admin := a.login("admin", adminPassword).AccessToken
	kate := a.register("kate")

	resp := a.do(http.MethodPut, "/api/settings/key/theme", admin, models.SettingsDTO{Value: "light", Category: "ui"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(resp.body))

	resp = a.do(http.MethodGet, "/api/settings/key/theme", kate.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = a.do(http.MethodPut, "/api/settings/key/theme", kate.AccessToken, models.SettingsDTO{Value: "dark"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = a.do(http.MethodPut, "/api/settings/key/theme?scope=user", kate.AccessToken, models.SettingsDTO{Value: "dark"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = a.do(http.MethodGet, "/api/settings/key/theme", kate.AccessToken, nil)
	var st models.SettingsDTO
	resp.decode(&st)
	assert.Equal(t, "dark", st.Value)

	// снимаем Settings_Read с роли User: кэш прав сбрасывается сразу
	resp = a.do(http.MethodGet, "/api/roles/paged?searchTerm=User", admin, nil)
	var roles repo.Paged[models.RoleDTO]
	resp.decode(&roles)
	require.Len(t, roles.Items, 1)
	resp = a.do(http.MethodGet, "/api/permissions/by-resource/settings", admin, nil)
	var perms []models.PermissionDTO
	resp.decode(&perms)
	var readID uint
	for _, p := range perms {
		if p.Name == "Settings_Read" {
			readID = p.ID
		}
	}
	require.NotZero(t, readID)

	resp = a.do(http.MethodDelete, "/api/roles/"+jsonID(roles.Items[0].ID)+"/permissions/"+jsonID(readID), admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(resp.body))

	resp = a.do(http.MethodGet, "/api/settings/key/theme", kate.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestUserRoleRoutes(t *testing.T) {
	a := newTestAPI(t)
	admin := a.login("admin", adminPassword).AccessToken
	leo := a.register("leo")

	resp := a.do(http.MethodGet, "/api/users/by-email/LEO@x.com", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var u models.UserDTO
	resp.decode(&u)
	assert.Equal(t, leo.User.ID, u.ID)

	resp = a.do(http.MethodGet, "/api/users/by-username/leo", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = a.do(http.MethodGet, "/api/roles/paged?searchTerm=Admin", admin, nil)
	var roles repo.Paged[models.RoleDTO]
	resp.decode(&roles)
	require.Len(t, roles.Items, 1)
	adminRole := roles.Items[0].ID

	resp = a.do(http.MethodPost, "/api/users/"+jsonID(u.ID)+"/roles/"+jsonID(adminRole), admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(resp.body))

	resp = a.do(http.MethodGet, "/api/users/"+jsonID(u.ID)+"/roles", admin, nil)
	var got []models.RoleDTO
	resp.decode(&got)
	assert.Len(t, got, 2)

	resp = a.do(http.MethodPut, "/api/users/"+jsonID(u.ID)+"/roles", admin, models.IDsRequest{IDs: []uint{adminRole}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.decode(&got)
	require.Len(t, got, 1)
	assert.Equal(t, "Admin", got[0].Name)

	resp = a.do(http.MethodPost, "/api/users/change-password", leo.AccessToken, models.ChangePasswordRequest{
		CurrentPassword: "user-password-1", NewPassword: "new-password-22",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(resp.body))
	a.login("leo", "new-password-22")
}
