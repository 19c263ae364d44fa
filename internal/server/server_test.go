package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/washdeskhq/washdesk/internal/auth"
	"github.com/washdeskhq/washdesk/internal/common"
	"github.com/washdeskhq/washdesk/internal/models"
	"github.com/washdeskhq/washdesk/internal/storage/memory"
)

// --- Test harness ---

// fakeGateway implements interfaces.PaystackClient without the network.
type fakeGateway struct {
	initErr    error
	verifyErr  error
	verifyResp *models.PaystackTransaction
	lastInit   *models.PaystackInitRequest
}

func (g *fakeGateway) Initialize(ctx context.Context, req *models.PaystackInitRequest) (*models.PaystackInitData, error) {
	g.lastInit = req
	if g.initErr != nil {
		return nil, g.initErr
	}
	return &models.PaystackInitData{
		AuthorizationURL: "https://checkout.paystack.test/" + req.Reference,
		AccessCode:       "AC_test",
		Reference:        req.Reference,
	}, nil
}

func (g *fakeGateway) Verify(ctx context.Context, reference string) (*models.PaystackTransaction, error) {
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	tx := *g.verifyResp
	tx.Reference = reference
	return &tx, nil
}

type testServer struct {
	t       *testing.T
	cfg     *common.Config
	server  *Server
	storage *memory.Store
	gateway *fakeGateway
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Auth.JWTSecret = "test-secret-key"
	store := memory.NewStore()
	gw := &fakeGateway{}
	srv := NewServer(cfg, common.NewSilentLogger(), store, gw)
	return &testServer{t: t, cfg: cfg, server: srv, storage: store, gateway: gw}
}

// seedUser creates an active account directly in storage.
func (ts *testServer) seedUser(username, role, password string) *models.User {
	ts.t.Helper()
	hash, err := hashPassword(password)
	if err != nil {
		ts.t.Fatalf("hashPassword failed: %v", err)
	}
	user := &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := ts.storage.Users().Create(context.Background(), user); err != nil {
		ts.t.Fatalf("seed user %s: %v", username, err)
	}
	return user
}

// seedClient creates a client account with its customer profile.
func (ts *testServer) seedClient(username, password string) (*models.User, *models.Customer) {
	ts.t.Helper()
	user := ts.seedUser(username, models.RoleClient, password)
	customer := &models.Customer{UserID: user.ID, PhoneNumber: "+233200000001"}
	if err := ts.storage.Customers().Create(context.Background(), customer); err != nil {
		ts.t.Fatalf("seed customer for %s: %v", username, err)
	}
	return user, customer
}

// request performs an API call against the full middleware stack.
func (ts *testServer) request(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	ts.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			ts.t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	r := httptest.NewRequest(method, path, reader)
	r.Header.Set("Accept", "application/json")
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, r)
	return w
}

// login exchanges credentials for a token pair through the API.
func (ts *testServer) login(username, password string) (string, string) {
	ts.t.Helper()
	rec := ts.request(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if rec.Code != http.StatusOK {
		ts.t.Fatalf("login %s: status %d, body %s", username, rec.Code, rec.Body.String())
	}
	body := decodeBody(ts.t, rec)
	access, _ := body["access"].(string)
	refresh, _ := body["refresh"].(string)
	if access == "" || refresh == "" {
		ts.t.Fatalf("login %s: missing tokens in %v", username, body)
	}
	return access, refresh
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	code, _ := decodeBody(t, rec)["error_code"].(string)
	return code
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

// expiredIssuer mints already-expired access tokens signed with the same secret.
func (ts *testServer) expiredIssuer() *auth.TokenIssuer {
	return auth.NewTokenIssuer(&common.AuthConfig{
		JWTSecret:          ts.cfg.Auth.JWTSecret,
		AccessTokenExpiry:  "-1m",
		RefreshTokenExpiry: ts.cfg.Auth.RefreshTokenExpiry,
	})
}

// --- System ---

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}

	rec = ts.request(http.MethodDelete, "/api/health", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for DELETE, got %d", rec.Code)
	}
}

// --- Login ---

func TestLogin_Success(t *testing.T) {
	ts := newTestServer(t)
	ts.seedUser("adjoa", models.RoleAdmin, "correct-horse-battery")

	rec := ts.request(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "adjoa",
		"password": "correct-horse-battery",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["access"] == "" || body["refresh"] == "" {
		t.Error("expected token pair in response")
	}
	if body["requires_password_change"] != false {
		t.Errorf("expected requires_password_change=false, got %v", body["requires_password_change"])
	}
	user, ok := body["user"].(map[string]interface{})
	if !ok || user["username"] != "adjoa" {
		t.Errorf("expected user adjoa, got %v", body["user"])
	}

	cookies := rec.Result().Cookies()
	names := map[string]bool{}
	for _, c := range cookies {
		names[c.Name] = true
	}
	if !names[auth.AccessCookie] || !names[auth.RefreshCookie] {
		t.Errorf("expected both auth cookies, got %v", names)
	}
}

func TestLogin_DefaultPasswordFlagsChange(t *testing.T) {
	ts := newTestServer(t)
	ts.seedUser("kofi", models.RoleEmployee, ts.cfg.Auth.DefaultPassword)

	rec := ts.request(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "kofi",
		"password": ts.cfg.Auth.DefaultPassword,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["requires_password_change"] != true {
		t.Error("expected requires_password_change=true for default password")
	}
	if body["message"] == nil {
		t.Error("expected change-password message")
	}
}

func TestLogin_Failures(t *testing.T) {
	ts := newTestServer(t)
	ts.seedUser("adjoa", models.RoleAdmin, "correct-horse-battery")
	inactive := ts.seedUser("gone", models.RoleEmployee, "some-password-1")
	inactive.IsActive = false
	if err := ts.storage.Users().Update(context.Background(), inactive); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	rec := ts.request(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "adjoa"})
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "MISSING_FIELDS" {
		t.Errorf("missing password: got %d %s", rec.Code, errorCode(t, rec))
	}

	rec = ts.request(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "adjoa", "password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "INVALID_CREDENTIALS" {
		t.Errorf("bad password: got %d %s", rec.Code, errorCode(t, rec))
	}

	rec = ts.request(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "nobody", "password": "whatever-123",
	})
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "INVALID_CREDENTIALS" {
		t.Errorf("unknown user: got %d %s", rec.Code, errorCode(t, rec))
	}

	rec = ts.request(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "gone", "password": "some-password-1",
	})
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "ACCOUNT_INACTIVE" {
		t.Errorf("inactive user: got %d %s", rec.Code, errorCode(t, rec))
	}
}

// --- Middleware auth ---

func TestProtectedRoute_RequiresCredential(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(http.MethodGet, "/api/services", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if errorCode(t, rec) != "NO_TOKEN" {
		t.Errorf("expected NO_TOKEN, got %s", errorCode(t, rec))
	}

	rec = ts.request(http.MethodGet, "/api/services", "not-a-token", nil)
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "INVALID_TOKEN" {
		t.Errorf("garbage token: got %d %s", rec.Code, errorCode(t, rec))
	}
}

func TestTransparentRefresh_PiggybacksNewTokens(t *testing.T) {
	ts := newTestServer(t)
	user := ts.seedUser("ama", models.RoleAdmin, "a-strong-password")
	_, refresh := ts.login("ama", "a-strong-password")

	expiredAccess, err := ts.expiredIssuer().SignAccess(user)
	if err != nil {
		t.Fatalf("sign expired access: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/api/services", nil)
	r.Header.Set("Accept", "application/json")
	r.Header.Set("Authorization", "Bearer "+expiredAccess)
	r.Header.Set("X-Refresh-Token", refresh)
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 after transparent refresh, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	newAccess, _ := body["new_access_token"].(string)
	if newAccess == "" || body["token_refreshed"] != true {
		t.Fatal("expected refreshed credentials piggybacked on the response")
	}
	newRefresh, _ := body["new_refresh_token"].(string)
	if newRefresh == "" || body["token_rotated"] != true {
		t.Fatal("expected rotated refresh credential in the response")
	}

	// The presented refresh credential was rotated out.
	rec := ts.request(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": refresh})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected old refresh token to be revoked, got %d", rec.Code)
	}

	// The minted pair works.
	rec = ts.request(http.MethodGet, "/api/services", newAccess, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("new access token rejected: %d", rec.Code)
	}
}

func TestTransparentRefresh_ExpiredWithoutRefreshFails(t *testing.T) {
	ts := newTestServer(t)
	user := ts.seedUser("ama", models.RoleAdmin, "a-strong-password")

	expiredAccess, err := ts.expiredIssuer().SignAccess(user)
	if err != nil {
		t.Fatalf("sign expired access: %v", err)
	}

	rec := ts.request(http.MethodGet, "/api/services", expiredAccess, nil)
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "INVALID_TOKEN" {
		t.Errorf("expected INVALID_TOKEN, got %d %s", rec.Code, errorCode(t, rec))
	}
}

// --- Explicit refresh ---

func TestAuthRefresh_AlwaysRotates(t *testing.T) {
	ts := newTestServer(t)
	ts.seedUser("ama", models.RoleAdmin, "a-strong-password")
	_, refresh := ts.login("ama", "a-strong-password")

	rec := ts.request(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": refresh})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	newAccess, _ := body["access"].(string)
	newRefresh, _ := body["refresh"].(string)
	if newAccess == "" || newRefresh == "" {
		t.Fatal("expected a fresh token pair")
	}
	if newRefresh == refresh {
		t.Error("expected refresh token to rotate")
	}

	// Replay of the spent credential fails.
	rec = ts.request(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": refresh})
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "INVALID_TOKEN" {
		t.Errorf("replay: got %d %s", rec.Code, errorCode(t, rec))
	}

	// The replacement still works.
	rec = ts.request(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": newRefresh})
	if rec.Code != http.StatusOK {
		t.Errorf("replacement refresh rejected: %d", rec.Code)
	}
}

func TestAuthRefresh_FromCookie(t *testing.T) {
	ts := newTestServer(t)
	ts.seedUser("ama", models.RoleAdmin, "a-strong-password")
	_, refresh := ts.login("ama", "a-strong-password")

	r := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	r.Header.Set("Accept", "application/json")
	r.AddCookie(&http.Cookie{Name: auth.RefreshCookie, Value: refresh})
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAuthRefresh_MissingToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(http.MethodPost, "/api/auth/refresh", "", nil)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "MISSING_TOKEN" {
		t.Errorf("expected MISSING_TOKEN, got %d %s", rec.Code, errorCode(t, rec))
	}
}

// --- Logout ---

func TestLogout_RevokesRefreshToken(t *testing.T) {
	ts := newTestServer(t)
	ts.seedUser("ama", models.RoleAdmin, "a-strong-password")
	access, refresh := ts.login("ama", "a-strong-password")

	rec := ts.request(http.MethodPost, "/api/auth/logout", access, map[string]string{"refresh_token": refresh})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Cookies are cleared.
	for _, c := range rec.Result().Cookies() {
		if (c.Name == auth.AccessCookie || c.Name == auth.RefreshCookie) && c.MaxAge >= 0 && c.Value != "" {
			t.Errorf("expected cookie %s to be cleared", c.Name)
		}
	}

	// The revoked credential is unusable.
	rec = ts.request(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": refresh})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected revoked refresh to fail, got %d", rec.Code)
	}
}

func TestLogout_RejectsAnotherUsersToken(t *testing.T) {
	ts := newTestServer(t)
	ts.seedUser("ama", models.RoleAdmin, "a-strong-password")
	ts.seedUser("kofi", models.RoleEmployee, "another-password1")
	access, _ := ts.login("ama", "a-strong-password")
	_, otherRefresh := ts.login("kofi", "another-password1")

	rec := ts.request(http.MethodPost, "/api/auth/logout", access, map[string]string{"refresh_token": otherRefresh})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for someone else's refresh token, got %d", rec.Code)
	}

	// kofi's credential is untouched.
	rec = ts.request(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": otherRefresh})
	if rec.Code != http.StatusOK {
		t.Errorf("expected kofi's refresh to still work, got %d", rec.Code)
	}
}

// --- Password change ---

func TestChangePassword(t *testing.T) {
	ts := newTestServer(t)
	ts.seedUser("ama", models.RoleAdmin, "a-strong-password")
	access, _ := ts.login("ama", "a-strong-password")

	rec := ts.request(http.MethodPut, "/api/auth/password", access, map[string]string{
		"old_password":     "a-strong-password",
		"new_password":     "an-even-stronger-one",
		"confirm_password": "an-even-stronger-one",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Old password no longer works, new one does.
	rec = ts.request(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "ama", "password": "a-strong-password",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected old password to be rejected, got %d", rec.Code)
	}
	ts.login("ama", "an-even-stronger-one")
}

func TestChangePassword_WrongOldPassword(t *testing.T) {
	ts := newTestServer(t)
	ts.seedUser("ama", models.RoleAdmin, "a-strong-password")
	access, _ := ts.login("ama", "a-strong-password")

	rec := ts.request(http.MethodPut, "/api/auth/password", access, map[string]string{
		"old_password":     "not-my-password",
		"new_password":     "an-even-stronger-one",
		"confirm_password": "an-even-stronger-one",
	})
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "INVALID_CREDENTIALS" {
		t.Errorf("expected INVALID_CREDENTIALS, got %d %s", rec.Code, errorCode(t, rec))
	}
}

// --- Browser pages ---

func TestLoginPage_RendersForBrowsers(t *testing.T) {
	ts := newTestServer(t)

	r := httptest.NewRequest(http.MethodGet, "/api/auth/login", nil)
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("expected HTML content type, got %s", ct)
	}
	if !strings.Contains(w.Body.String(), "Sign in") {
		t.Error("expected login page content")
	}
}
