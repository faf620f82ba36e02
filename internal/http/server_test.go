package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"stexs-auth/internal/domain"
	"stexs-auth/internal/repository/memory"
	"stexs-auth/internal/service"
)

const testPassword = "Correct-Horse-9"

var sentCodePattern = regexp.MustCompile(`\b[0-9A-F]{8}\b`)

type recordingSender struct {
	mu       sync.Mutex
	lastTo   string
	lastCode string
}

func (s *recordingSender) Send(_ context.Context, to, _, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTo = to
	s.lastCode = sentCodePattern.FindString(text)
	return nil
}

func (s *recordingSender) code() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCode
}

type testServer struct {
	router *gin.Engine
	store  *memory.Store
	sender *recordingSender
	tokens *service.TokenService
	totp   *service.TOTPEngine
}

func newTestServer(t *testing.T, limiters RateLimiters) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	srv := &testServer{
		store:  memory.NewStore(),
		sender: &recordingSender{},
		totp:   service.NewTOTPEngine(service.TOTPConfig{Issuer: "stexs", Skew: 1}),
	}
	srv.tokens = service.NewTokenService(service.TokenConfig{
		Keys: service.TokenKeys{
			Access:        []byte("access-secret"),
			Refresh:       []byte("refresh-secret"),
			SignInConfirm: []byte("sign-in-confirm-secret"),
		},
		Issuer:   "stexs-auth",
		Audience: "stexs",
	}, srv.store.RefreshTokens(), srv.store, logger)
	mfa := service.NewMFAService(service.MFAConfig{}, srv.store.MFA(), srv.totp, srv.sender, logger)
	users := service.NewUserService(logger, srv.store.Users(), srv.store.MFA(), srv.store, srv.sender, 0)
	signIn := service.NewSignInService(srv.store.Users(), mfa, srv.tokens, logger)
	oauth2 := service.NewOAuth2Service(srv.store.OAuth2(), srv.tokens, srv.store, 5*time.Minute, logger)

	router, err := NewRouter(logger, srv.tokens, limiters,
		NewUserHandler(logger, users),
		NewSignInHandler(logger, signIn, srv.tokens),
		NewMFAHandler(logger, mfa, srv.tokens),
		NewOAuth2Handler(logger, oauth2),
	)
	require.NoError(t, err)
	srv.router = router
	return srv
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) seedUser(t *testing.T, emailAddr, username string) domain.UserCredential {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	now := time.Now().UTC()
	user := domain.UserCredential{
		ID:              uuid.NewString(),
		Email:           emailAddr,
		Username:        username,
		PasswordHash:    string(hash),
		EmailVerifiedAt: &now,
		CreatedAt:       now,
	}
	require.NoError(t, s.store.Users().Create(context.Background(), user))
	require.NoError(t, s.store.MFA().Create(context.Background(), user.ID))
	return user
}

func (s *testServer) signInTokens(t *testing.T, identifier string) service.TokenResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/sign-in", "", gin.H{"identifier": identifier, "password": testPassword})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tokens service.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokens))
	require.NotEmpty(t, tokens.AccessToken)
	return tokens
}

type errorBody struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code string         `json:"code"`
		Data map[string]any `json:"data"`
	} `json:"errors"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	require.False(t, body.Success)
	require.NotEmpty(t, body.Errors)
	return body
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeError(t, rec).Errors[0].Code
}
