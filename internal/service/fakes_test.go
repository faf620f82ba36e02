package service

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"stexs-auth/internal/domain"
	"stexs-auth/internal/repository/memory"
)

var sentCodePattern = regexp.MustCompile(`\b[0-9A-F]{8}\b`)

type captureSender struct {
	mu       sync.Mutex
	lastTo   string
	lastCode string
	sent     int
	err      error
}

func (s *captureSender) Send(_ context.Context, to, _, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.lastTo = to
	s.lastCode = sentCodePattern.FindString(text)
	s.sent++
	return nil
}

func (s *captureSender) code() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCode
}

type testClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newTestClock() *testClock {
	return &testClock{cur: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(d)
}

// testEnv cablea todos los servicios sobre el mismo store y el mismo reloj.
type testEnv struct {
	db     *memory.Store
	clock  *testClock
	sender *captureSender
	totp   *TOTPEngine
	tokens *TokenService
	mfa    *MFAService
	users  *UserService
	signIn *SignInService
	oauth2 *OAuth2Service
}

var testTokenConfig = TokenConfig{
	Keys: TokenKeys{
		Access:        []byte("access-secret"),
		Refresh:       []byte("refresh-secret"),
		SignInConfirm: []byte("sign-in-confirm-secret"),
	},
	Issuer:           "stexs-auth",
	Audience:         "stexs",
	AccessTTL:        time.Hour,
	OAuth2AccessTTL:  time.Hour,
	SignInConfirmTTL: 10 * time.Minute,
	RefreshTTL:       30 * 24 * time.Hour,
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		db:     memory.NewStore(),
		clock:  newTestClock(),
		sender: &captureSender{},
		totp:   newTestTOTPEngine(),
	}
	env.tokens = NewTokenService(testTokenConfig, env.db.RefreshTokens(), env.db, nil)
	env.tokens.now = env.clock.Now
	env.mfa = NewMFAService(MFAConfig{EmailCodeTTL: 5 * time.Minute}, env.db.MFA(), env.totp, env.sender, nil)
	env.mfa.now = env.clock.Now
	env.users = NewUserService(nil, env.db.Users(), env.db.MFA(), env.db, env.sender, 10*time.Minute)
	env.users.now = env.clock.Now
	env.signIn = NewSignInService(env.db.Users(), env.mfa, env.tokens, nil)
	env.oauth2 = NewOAuth2Service(env.db.OAuth2(), env.tokens, env.db, 5*time.Minute, nil)
	env.oauth2.now = env.clock.Now
	return env
}

const testPassword = "Correct-Horse-9"

// seedUser guarda un usuario verificado con su perfil MFA vacio.
func (e *testEnv) seedUser(t *testing.T, emailAddr, username string) domain.UserCredential {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	now := e.clock.Now()
	user := domain.UserCredential{
		ID:              uuid.NewString(),
		Email:           emailAddr,
		Username:        username,
		PasswordHash:    string(hash),
		EmailVerifiedAt: &now,
		CreatedAt:       now,
	}
	ctx := context.Background()
	if err := e.db.Users().Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := e.db.MFA().Create(ctx, user.ID); err != nil {
		t.Fatalf("create mfa profile: %v", err)
	}
	return user
}

func (e *testEnv) enableTOTP(t *testing.T, userID string) string {
	t.Helper()
	ctx := context.Background()
	enrollment, err := e.mfa.Enable(ctx, userID, domain.MFATypeTOTP, "")
	if err != nil {
		t.Fatalf("enable totp: %v", err)
	}
	if err := e.mfa.Verify(ctx, userID, domain.MFATypeTOTP, e.totpCode(t, enrollment.Secret)); err != nil {
		t.Fatalf("verify totp: %v", err)
	}
	return enrollment.Secret
}

func (e *testEnv) enableEmailMFA(t *testing.T, userID string) {
	t.Helper()
	ctx := context.Background()
	if err := e.mfa.SendCode(ctx, userID); err != nil {
		t.Fatalf("send code: %v", err)
	}
	if _, err := e.mfa.Enable(ctx, userID, domain.MFATypeEmail, e.sender.code()); err != nil {
		t.Fatalf("enable email mfa: %v", err)
	}
}

func (e *testEnv) totpCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := e.totp.Code(secret, e.clock.Now())
	if err != nil {
		t.Fatalf("totp code: %v", err)
	}
	return code
}

const (
	testRedirectURL  = "https://app.example.com/callback"
	testClientSecret = "s3cret-client-value"
)

func (e *testEnv) seedClient(t *testing.T, userScopes, clientScopes []string) domain.OAuth2Client {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testClientSecret), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash client secret: %v", err)
	}
	client := domain.OAuth2Client{
		ID:             uuid.NewString(),
		ClientID:       uuid.NewString(),
		ClientSecret:   string(hash),
		Name:           "Inventory Viewer",
		RedirectURL:    testRedirectURL,
		OrganizationID: uuid.NewString(),
		UserScopes:     userScopes,
		ClientScopes:   clientScopes,
		CreatedAt:      e.clock.Now(),
	}
	if err := e.db.OAuth2().CreateClient(context.Background(), client); err != nil {
		t.Fatalf("create client: %v", err)
	}
	return client
}
