package authcore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/mealkart/authcore/fieldcrypt"
	authjwt "github.com/mealkart/authcore/jwt"
)

// expiredTestToken signs an access token for the given user and session whose
// exp already passed, using the test secret and the default issuer.
func expiredTestToken(t *testing.T, userID, sessionID string) string {
	t.Helper()

	now := time.Now()
	claims := authjwt.AccessClaims{
		UID:      userID,
		Username: "root",
		SID:      sessionID,
		Role:     string(RoleAdmin),
		RegisteredClaims: jwtlib.RegisteredClaims{
			ExpiresAt: jwtlib.NewNumericDate(now.Add(-time.Minute)),
			IssuedAt:  jwtlib.NewNumericDate(now.Add(-time.Hour)),
			Issuer:    "authcore",
		},
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}
	return token
}

func fieldCryptoTestConfig() fieldcrypt.Config {
	return fieldcrypt.Config{
		Enabled: true,
		Secret:  "test-field-encryption-secret",
	}
}

// memoryProvider is an in-memory UserProvider for tests. Records are stored
// exactly as handed over, so tests can inspect what the engine persisted
// (including sealed PII).
type memoryProvider struct {
	mu       sync.Mutex
	byID     map[string]UserRecord
	byName   map[string]string
	failNext error
}

func newMemoryProvider() *memoryProvider {
	return &memoryProvider{
		byID:   make(map[string]UserRecord),
		byName: make(map[string]string),
	}
}

func (p *memoryProvider) GetUserByUsername(_ context.Context, username string) (UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.byName[username]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return p.byID[id], nil
}

func (p *memoryProvider) GetUserByID(_ context.Context, userID string) (UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	record, ok := p.byID[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return record, nil
}

func (p *memoryProvider) CreateUser(_ context.Context, record UserRecord) (UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.byName[record.Username]; exists {
		return UserRecord{}, ErrDuplicateUser
	}
	p.byID[record.UserID] = record
	p.byName[record.Username] = record.UserID
	return record, nil
}

func (p *memoryProvider) UpdateUser(_ context.Context, record UserRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext != nil {
		err := p.failNext
		p.failNext = nil
		return err
	}
	if _, ok := p.byID[record.UserID]; !ok {
		return ErrUserNotFound
	}
	p.byID[record.UserID] = record
	return nil
}

// raw returns the stored record without going through the engine, for
// asserting on at-rest state.
func (p *memoryProvider) raw(userID string) (UserRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	record, ok := p.byID[userID]
	return record, ok
}

// recordingMailer captures sent OTP codes.
type recordingMailer struct {
	mu    sync.Mutex
	codes []string
	err   error
}

func (m *recordingMailer) SendOTP(_ context.Context, _, code string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.codes = append(m.codes, code)
	return nil
}

func (m *recordingMailer) lastCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.codes) == 0 {
		return ""
	}
	return m.codes[len(m.codes)-1]
}

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type testEngine struct {
	engine   *Engine
	provider *memoryProvider
	mailer   *recordingMailer
	redis    *miniredis.Miniredis
}

func newTestEngine(t *testing.T, mutate func(*Config)) *testEngine {
	t.Helper()
	return buildTestEngine(t, mutate, nil)
}

func newTestEngineWithSink(t *testing.T, sink AuditSink) *testEngine {
	t.Helper()
	return buildTestEngine(t, nil, sink)
}

func buildTestEngine(t *testing.T, mutate func(*Config), sink AuditSink) *testEngine {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := defaultConfig()
	cfg.JWT.Secret = testSecret
	cfg.Session.CleanupInterval = 0
	cfg.Password.Cost = 10
	cfg.FieldCrypto = fieldCryptoTestConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	provider := newMemoryProvider()
	mailer := &recordingMailer{}

	builder := New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserProvider(provider).
		WithMailer(mailer)
	if sink != nil {
		builder = builder.WithAuditSink(sink)
	}
	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })

	return &testEngine{engine: engine, provider: provider, mailer: mailer, redis: mr}
}

// createUser registers an account through the engine and returns its id.
func (te *testEngine) createUser(t *testing.T, username, pass string, role Role) string {
	t.Helper()
	result, err := te.engine.CreateAccount(context.Background(), CreateAccountRequest{
		Username: username,
		Password: pass,
		Email:    username + "@example.com",
		Phone:    "+15550100",
		Address:  "1 Main St",
	})
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if role != "" && role != result.Role {
		record, _ := te.provider.raw(result.UserID)
		record.Role = role
		te.provider.byID[result.UserID] = record
	}
	return result.UserID
}

// login runs the full login flow including OTP confirmation when required.
func (te *testEngine) login(t *testing.T, username, pass string) LoginResult {
	t.Helper()
	result, err := te.engine.Login(context.Background(), username, pass)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !result.RequireOTP {
		return result
	}
	code := te.mailer.lastCode()
	if code == "" {
		t.Fatal("OTP required but no code was mailed")
	}
	confirmed, err := te.engine.ConfirmOTP(context.Background(), result.ChallengeID, code)
	if err != nil {
		t.Fatalf("ConfirmOTP failed: %v", err)
	}
	return confirmed
}
