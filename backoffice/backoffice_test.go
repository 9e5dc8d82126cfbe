package backoffice

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"axiscyber/admin"
	"axiscyber/config"
	"axiscyber/models"
	"axiscyber/testutil"
	"axiscyber/views"
)

const password = "correct-horse-battery"

type purgeCounter struct{ n int }

func (p *purgeCounter) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (p *purgeCounter) Set(context.Context, string, []byte) error { return nil }
func (p *purgeCounter) Purge(context.Context) error { p.n++; return nil }

type harness struct {
	t      *testing.T
	router *gin.Engine
	db     *gorm.DB
	cache  *purgeCounter
}

func setup(t *testing.T) *harness {
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t, &models.AdminUser{})
	cfg := &config.Config{BackofficeEmails: []string{"ops@axiscyber.tech"}}

	h := &harness{t: t, db: db, cache: &purgeCounter{}}
	adminModule := admin.NewAdminModule(db, admin.Options{Cache: h.cache})

	h.router = gin.New()
	h.router.Use(sessions.Sessions(admin.SessionCookie, cookie.NewStore([]byte("0123456789abcdefghijklmnopqrstuv"))))
	require.NoError(t, views.Install(h.router, views.Site{Name: "Axis Cyber"}))
	adminModule.RegisterRoutes(h.router)
	NewBackofficeModule(db, adminModule.RequireAuth, cfg.IsBackofficeEmail, h.cache).RegisterRoutes(h.router)

	for _, email := range []string{"ops@axiscyber.tech", "editor@axiscyber.tech"} {
		_, err := admin.CreateUser(context.Background(), db, email, "User", password, models.RoleAdmin)
		require.NoError(t, err)
	}
	return h
}

func (h *harness) signIn(email string) []*http.Cookie {
	form := url.Values{"email": {email}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	require.Equal(h.t, http.StatusFound, w.Code)
	return w.Result().Cookies()
}

func (h *harness) do(cookies []*http.Cookie, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	var env map[string]any
	json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func (h *harness) userID(email string) string {
	var user models.AdminUser
	require.NoError(h.t, h.db.Where("email = ?", email).First(&user).Error)
	return strconv.FormatUint(uint64(user.ID), 10)
}

func TestBackoffice_Access(t *testing.T) {
	h := setup(t)

	w, _ := h.do(nil, http.MethodGet, "/backoffice/api/users", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env := h.do(h.signIn("editor@axiscyber.tech"), http.MethodGet, "/backoffice/api/users", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, false, env["success"])

	w, env = h.do(h.signIn("ops@axiscyber.tech"), http.MethodGet, "/backoffice/api/users", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, env["total"])
	assert.NotContains(t, w.Body.String(), "password")
}

func TestBackoffice_CreateUser(t *testing.T) {
	h := setup(t)
	ops := h.signIn("ops@axiscyber.tech")

	w, env := h.do(ops, http.MethodPost, "/backoffice/api/users", map[string]any{
		"email": "New@AxisCyber.tech", "name": "New", "password": password,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := env["data"].(map[string]any)
	assert.Equal(t, "new@axiscyber.tech", data["email"])
	assert.Equal(t, models.RoleEditor, data["role"])

	w, _ = h.do(ops, http.MethodPost, "/backoffice/api/users", map[string]any{
		"email": "new@axiscyber.tech", "password": password,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, env = h.do(ops, http.MethodPost, "/backoffice/api/users", map[string]any{
		"email": "short@axiscyber.tech", "password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env["fields"], "password")

	w, env = h.do(ops, http.MethodPost, "/backoffice/api/users", map[string]any{
		"email": "nope", "password": password,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env["fields"], "email")
}

func TestBackoffice_ToggleActive(t *testing.T) {
	h := setup(t)
	ops := h.signIn("ops@axiscyber.tech")
	editor := h.signIn("editor@axiscyber.tech")

	w, _ := h.do(ops, http.MethodPost, "/backoffice/api/users/"+h.userID("ops@axiscyber.tech")+"/toggle-active", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env := h.do(ops, http.MethodPost, "/backoffice/api/users/"+h.userID("editor@axiscyber.tech")+"/toggle-active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, env["data"].(map[string]any)["active"])

	// The disabled account's session stops working immediately.
	w, _ = h.do(editor, http.MethodGet, "/admin/api/services", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = h.do(ops, http.MethodPost, "/backoffice/api/users/999/toggle-active", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBackoffice_SetPassword(t *testing.T) {
	h := setup(t)
	ops := h.signIn("ops@axiscyber.tech")
	path := "/backoffice/api/users/" + h.userID("editor@axiscyber.tech") + "/password"

	w, _ := h.do(ops, http.MethodPost, path, map[string]any{"password": "tiny"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = h.do(ops, http.MethodPost, path, map[string]any{"password": "a-brand-new-passphrase"})
	require.Equal(t, http.StatusOK, w.Code)

	var user models.AdminUser
	require.NoError(t, h.db.Where("email = ?", "editor@axiscyber.tech").First(&user).Error)
	assert.True(t, admin.CheckPassword("a-brand-new-passphrase", user.PasswordHash))
	assert.False(t, admin.CheckPassword(password, user.PasswordHash))
}

func TestBackoffice_PurgeCache(t *testing.T) {
	h := setup(t)

	w, _ := h.do(h.signIn("ops@axiscyber.tech"), http.MethodPost, "/backoffice/api/cache/purge", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, h.cache.n)
}
