package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"gatekeep.org/internal/auth"
	"gatekeep.org/internal/obs"
	"gatekeep.org/internal/store/mem"
)

var obsOnce sync.Once

type capturedMail struct {
	email string
	token string
}

type captureNotifier struct {
	mu   sync.Mutex
	last capturedMail
}

func (n *captureNotifier) SendEmailConfirmation(_ context.Context, email, token string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.last = capturedMail{email: email, token: token}
	return nil
}

func (n *captureNotifier) token() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last.token
}

type apiClient struct {
	baseURL  string
	client   *http.Client
	t        *testing.T
	notifier *captureNotifier
	store    *mem.Store
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()
	obsOnce.Do(obs.Init)

	store := mem.New()
	store.SeedRole(auth.Role{Name: "admin"}, []auth.Permission{
		{Name: "user:manage", ResourceType: "user", Action: auth.ActionManage},
		{Name: "user:read", ResourceType: "user", Action: auth.ActionRead},
	})
	store.SeedRole(auth.Role{Name: "user"}, []auth.Permission{
		{Name: "user:read", ResourceType: "user", Action: auth.ActionRead},
		{Name: "user:update", ResourceType: "user", Action: auth.ActionUpdate},
	})

	codec, err := auth.NewCodec("test-secret")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	authSvc, err := auth.NewService(store, codec)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	notifier := &captureNotifier{}
	userSvc, err := auth.NewUserService(store, codec, notifier)
	if err != nil {
		t.Fatalf("NewUserService: %v", err)
	}

	api := New(ReadyProbe{}, "test", authSvc, userSvc)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL:  srv.URL,
		client:   srv.Client(),
		t:        t,
		notifier: notifier,
		store:    store,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) get(path string, headers map[string]string) *http.Response {
	return c.do(http.MethodGet, path, nil, headers)
}

// signup registers and confirms an account through the public endpoints.
func (c *apiClient) signup(email, password string) {
	c.t.Helper()
	resp := c.post("/v1/users", map[string]any{
		"email":    email,
		"password": password,
		"name":     "Test User",
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("register status: %d", resp.StatusCode)
	}

	resp = c.post("/v1/users/confirm-email", map[string]any{
		"token": c.notifier.token(),
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("confirm status: %d", resp.StatusCode)
	}
}

func (c *apiClient) login(email, password string) tokenPairResponse {
	c.t.Helper()
	resp := c.post("/v1/auth/login", map[string]any{
		"email":    email,
		"password": password,
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("login status: %d", resp.StatusCode)
	}
	var pair tokenPairResponse
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		c.t.Fatalf("decode login response: %v", err)
	}
	return pair
}

func authz(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

const testPassword = "Sup3r$ecret"

func TestRegisterLoginMeFlow(t *testing.T) {
	api := newTestAPI(t)
	api.signup("alice@example.com", testPassword)
	pair := api.login("alice@example.com", testPassword)

	if pair.TokenType != "Bearer" {
		t.Fatalf("unexpected token type: %s", pair.TokenType)
	}

	resp := api.get("/v1/users/me", authz(pair.AccessToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status: %d", resp.StatusCode)
	}
	me := decode[userResponse](t, resp)
	if me.Email != "alice@example.com" || me.Role != "user" || !me.Active {
		t.Fatalf("unexpected profile: %+v", me)
	}
}

func TestLoginBadCredentialsGeneric(t *testing.T) {
	api := newTestAPI(t)
	api.signup("alice@example.com", testPassword)

	for _, body := range []map[string]any{
		{"email": "alice@example.com", "password": "Wr0ng!pass"},
		{"email": "ghost@example.com", "password": testPassword},
	} {
		resp := api.post("/v1/auth/login", body, nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
		errBody := decode[map[string]any](t, resp)
		if errBody["error"] != "authentication required" {
			t.Fatalf("failure detail leaked: %v", errBody["error"])
		}
	}
}

func TestRegisterWeakPassword(t *testing.T) {
	api := newTestAPI(t)
	resp := api.post("/v1/users", map[string]any{
		"email":    "weak@example.com",
		"password": "feeble",
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestRegisterWithRoleName(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/users", map[string]any{
		"email":    "bob@example.com",
		"password": testPassword,
		"name":     "Bob",
		"role":     "user",
	}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register with role field: status %d, want 201", resp.StatusCode)
	}

	resp = api.post("/v1/users", map[string]any{
		"email":    "carol@example.com",
		"password": testPassword,
		"role":     "ghost",
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown role, got %d", resp.StatusCode)
	}
}

func TestConfirmEmailBadToken(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/users/confirm-email", map[string]any{
		"token": "not-a-token",
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad confirmation token, got %d", resp.StatusCode)
	}
}

func TestRegisterDuplicateEmailConflict(t *testing.T) {
	api := newTestAPI(t)
	api.signup("alice@example.com", testPassword)

	resp := api.post("/v1/users", map[string]any{
		"email":    "alice@example.com",
		"password": testPassword,
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestRefreshRotation(t *testing.T) {
	api := newTestAPI(t)
	api.signup("alice@example.com", testPassword)
	pair := api.login("alice@example.com", testPassword)

	resp := api.post("/v1/auth/refresh", map[string]any{"refresh_token": pair.RefreshToken}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status: %d", resp.StatusCode)
	}
	next := decode[tokenPairResponse](t, resp)
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh token not rotated")
	}

	// Reusing the consumed token is a generic 401.
	resp = api.post("/v1/auth/refresh", map[string]any{"refresh_token": pair.RefreshToken}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 on reuse, got %d", resp.StatusCode)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	api := newTestAPI(t)
	api.signup("alice@example.com", testPassword)
	pair := api.login("alice@example.com", testPassword)

	resp := api.post("/v1/auth/logout", nil, authz(pair.AccessToken))
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status: %d", resp.StatusCode)
	}

	resp = api.get("/v1/users/me", authz(pair.AccessToken))
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", resp.StatusCode)
	}

	resp = api.post("/v1/auth/refresh", map[string]any{"refresh_token": pair.RefreshToken}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 refreshing after logout, got %d", resp.StatusCode)
	}
}

func TestFingerprintBoundToken(t *testing.T) {
	api := newTestAPI(t)
	api.signup("alice@example.com", testPassword)

	resp := api.post("/v1/auth/login", map[string]any{
		"email":    "alice@example.com",
		"password": testPassword,
	}, map[string]string{fingerprintHeader: "device-abc"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status: %d", resp.StatusCode)
	}
	pair := decode[tokenPairResponse](t, resp)

	headers := authz(pair.AccessToken)
	headers[fingerprintHeader] = "device-abc"
	resp = api.get("/v1/users/me", headers)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("matching fingerprint rejected: %d", resp.StatusCode)
	}

	headers[fingerprintHeader] = "device-xyz"
	resp = api.get("/v1/users/me", headers)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 on fingerprint mismatch, got %d", resp.StatusCode)
	}
}

func TestProtectedEndpointsRequireToken(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/v1/users/me", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	resp = api.post("/v1/auth/logout", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestChangePasswordFlow(t *testing.T) {
	api := newTestAPI(t)
	api.signup("alice@example.com", testPassword)
	pair := api.login("alice@example.com", testPassword)

	const newPassword = "N3w!passWord"
	resp := api.do(http.MethodPut, "/v1/users/me/password", map[string]any{
		"current_password": testPassword,
		"new_password":     newPassword,
	}, authz(pair.AccessToken))
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("change password status: %d", resp.StatusCode)
	}

	resp = api.post("/v1/auth/login", map[string]any{
		"email":    "alice@example.com",
		"password": testPassword,
	}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatal("old password still accepted")
	}
	api.login("alice@example.com", newPassword)
}

func TestAdminPermissionEndpoints(t *testing.T) {
	api := newTestAPI(t)
	api.signup("alice@example.com", testPassword)

	// Provision an active admin directly in the store; quicker than the
	// register-and-confirm round trip.
	seedAdmin(t, api.store, "root@example.com")
	adminPair := api.login("root@example.com", testPassword)
	userPair := api.login("alice@example.com", testPassword)

	me := decode[userResponse](t, api.get("/v1/users/me", authz(userPair.AccessToken)))

	// A regular user cannot touch the admin surface.
	resp := api.do(http.MethodPut, "/v1/admin/users/1/permissions", map[string]any{
		"permission": "user:manage",
		"granted":    true,
	}, authz(userPair.AccessToken))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", resp.StatusCode)
	}

	// Admin grants alice user:manage.
	resp = api.do(http.MethodPut, "/v1/admin/users/"+itoa(me.ID)+"/permissions", map[string]any{
		"permission": "user:manage",
		"granted":    true,
	}, authz(adminPair.AccessToken))
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("set override status: %d", resp.StatusCode)
	}

	resp = api.get("/v1/admin/users/"+itoa(me.ID)+"/permissions", authz(adminPair.AccessToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get permissions status: %d", resp.StatusCode)
	}
	perms := decode[permissionsResponse](t, resp)
	if !perms.Permissions.Has("user", auth.ActionManage) {
		t.Fatalf("override not visible: %+v", perms)
	}
	if len(perms.Overrides) != 1 || !perms.Overrides[0].Granted {
		t.Fatalf("unexpected overrides: %+v", perms.Overrides)
	}
}

func TestAdminDeleteUser(t *testing.T) {
	api := newTestAPI(t)
	api.signup("alice@example.com", testPassword)
	adminID := seedAdmin(t, api.store, "root@example.com")
	adminPair := api.login("root@example.com", testPassword)
	userPair := api.login("alice@example.com", testPassword)

	me := decode[userResponse](t, api.get("/v1/users/me", authz(userPair.AccessToken)))

	resp := api.do(http.MethodDelete, "/v1/admin/users/"+itoa(me.ID), nil, authz(adminPair.AccessToken))
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status: %d", resp.StatusCode)
	}

	// Deleting an admin account is refused outright.
	resp = api.do(http.MethodDelete, "/v1/admin/users/"+itoa(adminID), nil, authz(adminPair.AccessToken))
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 deleting admin, got %d", resp.StatusCode)
	}
}

func TestSelfDeleteForbiddenForAdmins(t *testing.T) {
	api := newTestAPI(t)
	seedAdmin(t, api.store, "root@example.com")
	adminPair := api.login("root@example.com", testPassword)

	resp := api.do(http.MethodDelete, "/v1/users/me", nil, authz(adminPair.AccessToken))
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestHealthAndInfoPublic(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/healthz", "/readyz", "/v1/info"} {
		resp := api.get(path, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status: %d", path, resp.StatusCode)
		}
	}
}

func TestRequestIDEchoed(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/healthz", map[string]string{"X-Request-Id": "req-test-1"})
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-Id"); got != "req-test-1" {
		t.Fatalf("request id not echoed: %q", got)
	}

	resp = api.get("/healthz", nil)
	resp.Body.Close()
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatal("expected generated request id")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	api := newTestAPI(t)
	resp := api.get("/v1/auth/login", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Allow") != "POST" {
		t.Fatalf("missing Allow header: %q", resp.Header.Get("Allow"))
	}
}

// seedAdmin provisions an active admin account directly in the store.
func seedAdmin(t *testing.T, store *mem.Store, email string) int64 {
	t.Helper()
	ctx := context.Background()
	role, err := store.Roles(ctx).FindByName(ctx, "admin")
	if err != nil {
		t.Fatalf("admin role missing: %v", err)
	}
	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	user := &auth.User{Email: email, Name: "Root", PasswordHash: hash, RoleID: role.ID}
	if err := store.Users(ctx).Create(ctx, user); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Users(ctx).Activate(ctx, user.ID); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	return user.ID
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
