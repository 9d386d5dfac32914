package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/whatsassist/gateway/internal/backend"
	"github.com/whatsassist/gateway/internal/config"
	"github.com/whatsassist/gateway/internal/handlers"
	"github.com/whatsassist/gateway/internal/middleware"
	"github.com/whatsassist/gateway/internal/repository"
	"github.com/whatsassist/gateway/internal/service"
)

type captureNotifier struct {
	mu   sync.Mutex
	code string
}

func (n *captureNotifier) SendOTP(ctx context.Context, to, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.code = code
	return nil
}

func (n *captureNotifier) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.code
}

func newTestServer(t *testing.T, backendURL string) (*httptest.Server, *captureNotifier) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &config.Config{
		Auth:    config.AuthConfig{Email: "owner@example.com", Password: "arinsharma123"},
		JWT:     config.JWTConfig{SecretKey: strings.Repeat("k", 32), Expiry: 24 * time.Hour},
		OTP:     config.OTPConfig{Store: config.StoreMemory, Expiry: 5 * time.Minute},
		Backend: config.BackendConfig{BaseURL: backendURL, Timeout: time.Second},
	}

	jwtService, err := service.NewJWTService(&cfg.JWT, logger)
	require.NoError(t, err)

	notifier := &captureNotifier{}
	authHandlers := handlers.NewAuthHandlers(
		service.NewCredentialService(&cfg.Auth, logger),
		service.NewOTPService(repository.NewMemoryOTPRepository(), &cfg.OTP, logger),
		jwtService,
		notifier,
		cfg.IsProduction(),
		logger,
	)
	dashboardHandlers := handlers.NewDashboardHandlers(backend.NewClient(&cfg.Backend, logger), logger)

	handler := setupRouter(
		authHandlers,
		dashboardHandlers,
		middleware.NewAuthMiddleware(jwtService, logger),
		middleware.NewGatekeeper(jwtService, logger),
		logger,
	)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, notifier
}

func noRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func get(t *testing.T, client *http.Client, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: middleware.AuthCookieName, Value: token})
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func postLogin(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url+"/api/auth/login", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestLoginFlowEndToEnd(t *testing.T) {
	backendSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"task":"Ship it"}]`))
	}))
	defer backendSrv.Close()

	srv, notifier := newTestServer(t, backendSrv.URL)
	client := noRedirectClient()

	// Anonymous dashboard visit bounces to login.
	resp := get(t, client, srv.URL+"/dashboard", "")
	require.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp = get(t, client, srv.URL+"/login", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Protected API rejects anonymous callers.
	resp = get(t, client, srv.URL+"/api/tasks", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Step one: password only.
	resp = postLogin(t, srv.URL, `{"password":"arinsharma123"}`)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	code := notifier.last()
	require.Len(t, code, 6)

	// Step two: password and code.
	resp = postLogin(t, srv.URL, `{"password":"arinsharma123","otp":"`+code+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Message string `json:"message"`
		Token   string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	require.NotEmpty(t, body.Token)

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == middleware.AuthCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, body.Token, cookie.Value)

	// Authenticated login visit bounces to dashboard.
	resp = get(t, client, srv.URL+"/login", body.Token)
	require.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))

	resp = get(t, client, srv.URL+"/dashboard", body.Token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = get(t, client, srv.URL+"/", body.Token)
	require.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp = get(t, client, srv.URL+"/api/tasks", body.Token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthBypassesGatekeeper(t *testing.T) {
	srv, _ := newTestServer(t, "http://127.0.0.1:1")

	resp := get(t, noRedirectClient(), srv.URL+"/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWrongPasswordEndToEnd(t *testing.T) {
	srv, notifier := newTestServer(t, "http://127.0.0.1:1")

	resp := postLogin(t, srv.URL, `{"password":"wrong"}`)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, notifier.last())
}
