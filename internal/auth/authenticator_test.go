package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/washdeskhq/washdesk/internal/apperr"
	"github.com/washdeskhq/washdesk/internal/common"
	"github.com/washdeskhq/washdesk/internal/models"
	"github.com/washdeskhq/washdesk/internal/storage/memory"
)

type authTest struct {
	store         *memory.Store
	issuer        *TokenIssuer
	expiredIssuer *TokenIssuer
	auth          *Authenticator
	user          *models.User
}

func newAuthTest(t *testing.T, rotate bool) *authTest {
	t.Helper()
	store := memory.NewStore()

	user := &models.User{Username: "ama", Email: "ama@example.com", Role: models.RoleClient, IsActive: true}
	if err := store.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	issuer := testIssuer("test-secret", "30m")
	return &authTest{
		store:  store,
		issuer: issuer,
		// Shares the secret but signs already-expired access credentials.
		expiredIssuer: testIssuer("test-secret", "-1m"),
		auth:          NewAuthenticator(issuer, store, common.NewSilentLogger(), rotate),
		user:          user,
	}
}

func (at *authTest) request(t *testing.T, access string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	r.Header.Set("Accept", "application/json")
	if access != "" {
		r.Header.Set("Authorization", "Bearer "+access)
	}
	return r
}

func errCode(err error) apperr.Code {
	return apperr.From(err).Code
}

func TestAuthenticateFastPath(t *testing.T) {
	at := newAuthTest(t, true)
	access, err := at.issuer.SignAccess(at.user)
	if err != nil {
		t.Fatalf("SignAccess: %v", err)
	}

	identity, outcome, err := at.auth.Authenticate(at.request(t, access))
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if identity.User.ID != at.user.ID {
		t.Errorf("resolved wrong user: %d", identity.User.ID)
	}
	if outcome != nil {
		t.Error("fast path must not mint new credentials")
	}
}

func TestAuthenticateNoCredential(t *testing.T) {
	at := newAuthTest(t, true)
	_, _, err := at.auth.Authenticate(at.request(t, ""))
	if errCode(err) != apperr.AuthMissing {
		t.Errorf("expected NO_TOKEN, got %v", err)
	}
}

func TestAuthenticateGarbageCredential(t *testing.T) {
	at := newAuthTest(t, true)
	_, _, err := at.auth.Authenticate(at.request(t, "garbage"))
	if errCode(err) != apperr.AuthInvalid {
		t.Errorf("expected INVALID_TOKEN, got %v", err)
	}
}

func TestAuthenticateInactiveUser(t *testing.T) {
	at := newAuthTest(t, true)
	at.user.IsActive = false
	if err := at.store.Users().Update(context.Background(), at.user); err != nil {
		t.Fatalf("deactivate user: %v", err)
	}
	access, _ := at.issuer.SignAccess(at.user)

	_, _, err := at.auth.Authenticate(at.request(t, access))
	if errCode(err) != apperr.AccountInactive {
		t.Errorf("expected ACCOUNT_INACTIVE, got %v", err)
	}
}

func TestAutoRefreshWithHeader(t *testing.T) {
	at := newAuthTest(t, false)
	expired, _ := at.expiredIssuer.SignAccess(at.user)
	refresh, _, err := at.issuer.SignRefresh(at.user)
	if err != nil {
		t.Fatalf("SignRefresh: %v", err)
	}

	r := at.request(t, expired)
	r.Header.Set("X-Refresh-Token", refresh)

	identity, outcome, err := at.auth.Authenticate(r)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if identity.User.ID != at.user.ID {
		t.Errorf("resolved wrong user: %d", identity.User.ID)
	}
	if outcome == nil || outcome.NewAccessToken == "" {
		t.Fatal("expected a freshly minted access credential")
	}
	if outcome.Rotated || outcome.NewRefreshToken != "" {
		t.Error("rotation disabled, refresh credential must not rotate")
	}

	// The minted credential is immediately usable.
	if _, err := at.issuer.Parse(outcome.NewAccessToken, TypeAccess); err != nil {
		t.Errorf("minted access credential does not parse: %v", err)
	}
}

func TestAutoRefreshRotation(t *testing.T) {
	at := newAuthTest(t, true)
	expired, _ := at.expiredIssuer.SignAccess(at.user)
	refresh, jti, err := at.issuer.SignRefresh(at.user)
	if err != nil {
		t.Fatalf("SignRefresh: %v", err)
	}

	r := at.request(t, expired)
	r.Header.Set("X-Refresh-Token", refresh)

	_, outcome, err := at.auth.Authenticate(r)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !outcome.Rotated || outcome.NewRefreshToken == "" {
		t.Fatal("expected the refresh credential to rotate")
	}

	revoked, err := at.store.Tokens().IsRevoked(context.Background(), jti)
	if err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if !revoked {
		t.Error("presented refresh credential must be revoked on rotation")
	}

	// Replaying the consumed credential surfaces the original expiry error,
	// not a distinct refresh failure.
	r2 := at.request(t, expired)
	r2.Header.Set("X-Refresh-Token", refresh)
	_, _, err = at.auth.Authenticate(r2)
	if errCode(err) != apperr.AuthInvalid {
		t.Errorf("expected INVALID_TOKEN on replay, got %v", err)
	}

	// The rotated replacement works.
	r3 := at.request(t, expired)
	r3.Header.Set("X-Refresh-Token", outcome.NewRefreshToken)
	if _, _, err := at.auth.Authenticate(r3); err != nil {
		t.Errorf("rotated replacement rejected: %v", err)
	}
}

func TestAutoRefreshWithoutRotationIsReusable(t *testing.T) {
	at := newAuthTest(t, false)
	expired, _ := at.expiredIssuer.SignAccess(at.user)
	refresh, _, _ := at.issuer.SignRefresh(at.user)

	for i := 0; i < 2; i++ {
		r := at.request(t, expired)
		r.Header.Set("X-Refresh-Token", refresh)
		if _, _, err := at.auth.Authenticate(r); err != nil {
			t.Fatalf("attempt %d failed: %v", i+1, err)
		}
	}
}

func TestExpiredWithoutRefreshSurfacesOriginalError(t *testing.T) {
	at := newAuthTest(t, true)
	expired, _ := at.expiredIssuer.SignAccess(at.user)

	_, _, err := at.auth.Authenticate(at.request(t, expired))
	if errCode(err) != apperr.AuthInvalid {
		t.Errorf("expected INVALID_TOKEN, got %v", err)
	}
}

func TestExpiredWithBadRefreshSurfacesOriginalError(t *testing.T) {
	at := newAuthTest(t, true)
	expired, _ := at.expiredIssuer.SignAccess(at.user)

	cases := map[string]string{
		"garbage refresh":         "garbage",
		"access token as refresh": expired,
	}
	for name, refresh := range cases {
		t.Run(name, func(t *testing.T) {
			r := at.request(t, expired)
			r.Header.Set("X-Refresh-Token", refresh)
			_, _, err := at.auth.Authenticate(r)
			if errCode(err) != apperr.AuthInvalid {
				t.Errorf("expected INVALID_TOKEN, got %v", err)
			}
		})
	}
}

func TestRefreshForDeactivatedUserConflated(t *testing.T) {
	at := newAuthTest(t, true)
	expired, _ := at.expiredIssuer.SignAccess(at.user)
	refresh, _, _ := at.issuer.SignRefresh(at.user)

	at.user.IsActive = false
	if err := at.store.Users().Update(context.Background(), at.user); err != nil {
		t.Fatalf("deactivate user: %v", err)
	}

	r := at.request(t, expired)
	r.Header.Set("X-Refresh-Token", refresh)
	_, _, err := at.auth.Authenticate(r)
	if errCode(err) != apperr.AuthInvalid {
		t.Errorf("refresh failure must surface the original expiry error, got %v", err)
	}
}

func TestRefreshFromBodyPreservesBody(t *testing.T) {
	at := newAuthTest(t, false)
	expired, _ := at.expiredIssuer.SignAccess(at.user)
	refresh, _, _ := at.issuer.SignRefresh(at.user)

	payload, _ := json.Marshal(map[string]string{
		"refresh_token": refresh,
		"note":          "original payload",
	})
	r := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(payload))
	r.Header.Set("Accept", "application/json")
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Authorization", "Bearer "+expired)

	_, outcome, err := at.auth.Authenticate(r)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if outcome == nil {
		t.Fatal("expected a refresh outcome")
	}

	// The handler downstream can still read the full body.
	data, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("re-read body: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("body was consumed by the refresh peek: %s", data)
	}
}

func TestRefreshFromQueryAndCookie(t *testing.T) {
	at := newAuthTest(t, false)
	expired, _ := at.expiredIssuer.SignAccess(at.user)
	refresh, _, _ := at.issuer.SignRefresh(at.user)

	t.Run("query parameter", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/orders?refresh_token="+refresh, nil)
		r.Header.Set("Accept", "application/json")
		r.Header.Set("Authorization", "Bearer "+expired)
		if _, outcome, err := at.auth.Authenticate(r); err != nil || outcome == nil {
			t.Errorf("query refresh failed: %v", err)
		}
	})

	t.Run("cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		r.Header.Set("Accept", "application/json")
		r.Header.Set("Authorization", "Bearer "+expired)
		r.AddCookie(&http.Cookie{Name: RefreshCookie, Value: refresh})
		if _, outcome, err := at.auth.Authenticate(r); err != nil || outcome == nil {
			t.Errorf("cookie refresh failed: %v", err)
		}
	})
}

func TestCookieAccessOnlyForBrowserRequests(t *testing.T) {
	at := newAuthTest(t, true)
	access, _ := at.issuer.SignAccess(at.user)

	browser := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	browser.AddCookie(&http.Cookie{Name: AccessCookie, Value: access})
	if _, _, err := at.auth.Authenticate(browser); err != nil {
		t.Errorf("browser cookie auth failed: %v", err)
	}

	api := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	api.Header.Set("Accept", "application/json")
	api.AddCookie(&http.Cookie{Name: AccessCookie, Value: access})
	_, _, err := at.auth.Authenticate(api)
	if !errors.Is(err, apperr.New(apperr.AuthMissing, http.StatusUnauthorized, "")) {
		t.Errorf("API requests must not fall back to cookies, got %v", err)
	}
}
