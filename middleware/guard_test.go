package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mealkart/authcore"
)

type mapProvider struct {
	mu     sync.Mutex
	byID   map[string]authcore.UserRecord
	byName map[string]string
}

func newMapProvider() *mapProvider {
	return &mapProvider{
		byID:   make(map[string]authcore.UserRecord),
		byName: make(map[string]string),
	}
}

func (p *mapProvider) GetUserByUsername(_ context.Context, username string) (authcore.UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.byName[username]
	if !ok {
		return authcore.UserRecord{}, authcore.ErrUserNotFound
	}
	return p.byID[id], nil
}

func (p *mapProvider) GetUserByID(_ context.Context, userID string) (authcore.UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	record, ok := p.byID[userID]
	if !ok {
		return authcore.UserRecord{}, authcore.ErrUserNotFound
	}
	return record, nil
}

func (p *mapProvider) CreateUser(_ context.Context, record authcore.UserRecord) (authcore.UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.byName[record.Username]; exists {
		return authcore.UserRecord{}, authcore.ErrDuplicateUser
	}
	p.byID[record.UserID] = record
	p.byName[record.Username] = record.UserID
	return record, nil
}

func (p *mapProvider) UpdateUser(_ context.Context, record authcore.UserRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byID[record.UserID] = record
	return nil
}

func (p *mapProvider) setRole(userID string, role authcore.Role) {
	p.mu.Lock()
	defer p.mu.Unlock()
	record := p.byID[userID]
	record.Role = role
	p.byID[userID] = record
}

type fixture struct {
	engine   *authcore.Engine
	provider *mapProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	provider := newMapProvider()
	engine, err := authcore.New().
		WithConfig(authcore.Config{
			JWT:      authcore.JWTConfig{Secret: []byte("0123456789abcdef0123456789abcdef")},
			Password: authcore.PasswordConfig{Cost: 10},
			// Middleware tests need direct tokens for every role.
			OTP: authcore.OTPConfig{
				SkipRoles: []authcore.Role{
					authcore.RoleUser, authcore.RoleRestaurant, authcore.RoleAdmin,
				},
			},
		}).
		WithRedis(client).
		WithUserProvider(provider).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })

	return &fixture{engine: engine, provider: provider}
}

// loginAs creates an account with the given role and returns a live token.
func (f *fixture) loginAs(t *testing.T, username string, role authcore.Role) string {
	t.Helper()

	result, err := f.engine.CreateAccount(context.Background(), authcore.CreateAccountRequest{
		Username: username,
		Password: "test-password",
	})
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	f.provider.setRole(result.UserID, role)

	login, err := f.engine.Login(context.Background(), username, "test-password")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if login.RequireOTP {
		t.Fatal("fixture config should skip OTP for every role")
	}
	return login.Token
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"user": identity.Username})
	})
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid error body %q: %v", rec.Body.String(), err)
	}
	return body["error"]
}

func TestGuardRejectsMissingToken(t *testing.T) {
	f := newFixture(t)
	handler := Guard(f.engine)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if cause := errorBody(t, rec); cause != "no token" {
		t.Fatalf("cause = %q, want no token", cause)
	}
}

func TestGuardDistinguishesInvalidToken(t *testing.T) {
	f := newFixture(t)
	handler := Guard(f.engine)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if cause := errorBody(t, rec); cause != "invalid token" {
		t.Fatalf("cause = %q, want invalid token", cause)
	}
}

func TestGuardReportsSessionExpiry(t *testing.T) {
	f := newFixture(t)
	token := f.loginAs(t, "root", authcore.RoleAdmin)

	if err := f.engine.Logout(context.Background(), token); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	handler := Guard(f.engine)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if cause := errorBody(t, rec); cause != "session expired" {
		t.Fatalf("cause = %q, want session expired", cause)
	}
}

func TestGuardPassesValidToken(t *testing.T) {
	f := newFixture(t)
	token := f.loginAs(t, "root", authcore.RoleAdmin)

	handler := Guard(f.engine)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rec.Code, rec.Body.String())
	}
}

func TestOptionalLetsAnonymousThrough(t *testing.T) {
	f := newFixture(t)

	var sawIdentity bool
	handler := Optional(f.engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawIdentity = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/menu", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if sawIdentity {
		t.Fatal("anonymous request must not carry an identity")
	}

	// A broken token is treated like no token, not an error.
	req := httptest.NewRequest(http.MethodGet, "/menu", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if sawIdentity {
		t.Fatal("broken token must not carry an identity")
	}
}

func TestOptionalAttachesIdentityWhenPresent(t *testing.T) {
	f := newFixture(t)
	token := f.loginAs(t, "root", authcore.RoleAdmin)

	var username string
	handler := Optional(f.engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identity, ok := IdentityFromContext(r.Context()); ok {
			username = identity.Username
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/menu", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if username != "root" {
		t.Fatalf("username = %q, want root", username)
	}
}

func TestRequireRoleForbidsWrongRole(t *testing.T) {
	f := newFixture(t)
	token := f.loginAs(t, "owner", authcore.RoleAdmin)

	handler := Guard(f.engine)(RequireRole(authcore.RoleRestaurant)(okHandler()))
	req := httptest.NewRequest(http.MethodGet, "/restaurant/menu", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}

	var body struct {
		Error   string   `json:"error"`
		Allowed []string `json:"allowed"`
		Role    string   `json:"role"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body %q: %v", rec.Body.String(), err)
	}
	if body.Role != "admin" {
		t.Fatalf("actual role = %q, want admin", body.Role)
	}
	if len(body.Allowed) != 1 || body.Allowed[0] != "restaurant" {
		t.Fatalf("allowed = %v, want [restaurant]", body.Allowed)
	}
}

func TestRequireRoleAdmitsAllowedRole(t *testing.T) {
	f := newFixture(t)
	token := f.loginAs(t, "owner", authcore.RoleAdmin)

	handler := Guard(f.engine)(RequireRole(authcore.RoleRestaurant, authcore.RoleAdmin)(okHandler()))
	req := httptest.NewRequest(http.MethodGet, "/restaurant/menu", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRequireOwnerOrAdmin(t *testing.T) {
	f := newFixture(t)

	ownerOnly := RequireOwnerOrAdmin(func(r *http.Request) string {
		return r.URL.Query().Get("user")
	})

	adminToken := f.loginAs(t, "root", authcore.RoleAdmin)

	// Admin reaches any user's resource.
	handler := Guard(f.engine)(ownerOnly(okHandler()))
	req := httptest.NewRequest(http.MethodGet, "/profile?user=someone-else", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d, want 200", rec.Code)
	}

	userToken := f.loginAs(t, "customer", authcore.RoleUser)
	userIdentity, err := f.engine.Validate(context.Background(), userToken)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	// Owner reaches their own resource.
	req = httptest.NewRequest(http.MethodGet, "/profile?user="+userIdentity.UserID, nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner status = %d, want 200", rec.Code)
	}

	// Someone else's id in the path is refused for the same principal.
	req = httptest.NewRequest(http.MethodGet, "/profile?user=not-me", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign id status = %d, want 403", rec.Code)
	}
}
