package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devhaven/auth-service/internal/account/memstore"
	"github.com/devhaven/auth-service/internal/auth/linker"
	"github.com/devhaven/auth-service/internal/auth/manager"
	"github.com/devhaven/auth-service/internal/auth/provider"
	"github.com/devhaven/auth-service/internal/auth/provider/github"
	"github.com/devhaven/auth-service/internal/auth/state"
	"github.com/devhaven/auth-service/internal/metrics"
	"github.com/devhaven/auth-service/internal/session"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gho_x","token_type":"bearer"}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":12345,"login":"alice","email":null}`))
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"email":"a@x.com","primary":true,"verified":true}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	gh, err := github.New("id", "secret", github.Options{
		TokenURL:   srv.URL + "/login/oauth/access_token",
		APIURL:     srv.URL,
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	registry, err := provider.NewRegistry(gh)
	require.NoError(t, err)

	sessions := session.NewMemoryStore()
	accounts := memstore.New()
	m := metrics.New()
	mgr := manager.New(registry, state.New(sessions, 0), sessions, linker.New(accounts), accounts,
		manager.Options{Metrics: m})

	return newRouter(mgr, session.CookieOptions{Name: "session"}, m)
}

func call(r http.Handler, method, path string, body any, cookies []*http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := call(newTestRouter(t), http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestFullLoginFlow(t *testing.T) {
	r := newTestRouter(t)

	rec := call(r, http.MethodGet, "/api/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(r, http.MethodPost, "/api/auth/login", map[string]any{"provider": "github"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var login struct {
		AuthURL string `json:"auth_url"`
		State   string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	rec = call(r, http.MethodPost, "/api/auth/callback",
		map[string]any{"code": "c", "state": login.State}, cookies)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cb struct {
		Success bool `json:"success"`
		User    struct {
			ID    int64  `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cb))
	assert.True(t, cb.Success)
	assert.Equal(t, "a@x.com", cb.User.Email)

	anonymous := cookies
	cookies = rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.NotEqual(t, anonymous[0].Value, cookies[0].Value)

	rec = call(r, http.MethodGet, "/api/auth/profile", nil, anonymous)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(r, http.MethodGet, "/api/me", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_id":`)

	rec = call(r, http.MethodGet, "/api/auth/profile", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = call(r, http.MethodPost, "/api/auth/logout", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = call(r, http.MethodGet, "/api/auth/profile", nil, cookies)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(r, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `auth_callbacks_total{outcome="success",provider="github",step="session_established"} 1`)
}

func TestCallbackWithForgedState(t *testing.T) {
	r := newTestRouter(t)

	rec := call(r, http.MethodPost, "/api/auth/login", map[string]any{"provider": "github"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()

	rec = call(r, http.MethodPost, "/api/auth/callback",
		map[string]any{"code": "c", "state": "forged"}, cookies)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)

	rec = call(r, http.MethodGet, "/api/me", nil, cookies)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPlantedSessionCookieIsNeverAuthenticated(t *testing.T) {
	r := newTestRouter(t)
	planted := []*http.Cookie{{Name: "session", Value: "attacker-chosen-id"}}

	rec := call(r, http.MethodPost, "/api/auth/login", map[string]any{"provider": "github"}, planted)
	require.Equal(t, http.StatusOK, rec.Code)
	issued := rec.Result().Cookies()
	require.Len(t, issued, 1)
	assert.NotEqual(t, "attacker-chosen-id", issued[0].Value)

	var login struct {
		State string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))

	// The state is bound to the issued session, not the planted one.
	rec = call(r, http.MethodPost, "/api/auth/callback",
		map[string]any{"code": "c", "state": login.State}, planted)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(r, http.MethodPost, "/api/auth/callback",
		map[string]any{"code": "c", "state": login.State}, issued)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	authenticated := rec.Result().Cookies()
	require.Len(t, authenticated, 1)
	assert.NotEqual(t, "attacker-chosen-id", authenticated[0].Value)
	assert.NotEqual(t, issued[0].Value, authenticated[0].Value)

	for _, c := range [][]*http.Cookie{planted, issued} {
		rec = call(r, http.MethodGet, "/api/auth/profile", nil, c)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec = call(r, http.MethodGet, "/api/auth/profile", nil, authenticated)
	assert.Equal(t, http.StatusOK, rec.Code)
}
