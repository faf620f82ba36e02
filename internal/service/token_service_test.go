package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stexs-auth/internal/domain"
)

func TestTokenService_IssuePasswordGrant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp, err := env.tokens.Issue(ctx, IssueInput{Subject: "user-1", GrantType: domain.GrantPassword})
	require.NoError(t, err)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, env.clock.Now().Add(time.Hour).Unix(), resp.Expires)

	access, err := env.tokens.ParseAccess(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.GrantPassword, access.GrantType)
	assert.Equal(t, "authenticated", access.Role)
	assert.Equal(t, "user-1", access.Subject)
	assert.Equal(t, "stexs-auth", access.Issuer)
	assert.NotEmpty(t, access.SessionID)

	refresh, err := env.tokens.ParseRefresh(resp.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, access.SessionID, refresh.SessionID)

	rows := env.db.RefreshRows("user-1", domain.GrantPassword)
	require.Len(t, rows, 1)
	assert.Equal(t, refresh.ID, rows[0].Token)
	require.NotNil(t, rows[0].SessionID)
	assert.Equal(t, access.SessionID, *rows[0].SessionID)
	assert.Nil(t, rows[0].ConnectionID)
}

func TestTokenService_ClientCredentialsHasNoRefreshToken(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.tokens.Issue(context.Background(), IssueInput{
		Subject:   "client-1",
		GrantType: domain.GrantClientCredentials,
		ClientID:  "client-1",
		Scopes:    []string{"organization.read"},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.RefreshToken)
	assert.Zero(t, env.db.CountRefreshTokens())

	claims, err := env.tokens.ParseAccess(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, []string{"organization.read"}, claims.Scopes)
	assert.Empty(t, claims.SessionID)
}

func TestTokenService_KeysAreNotInterchangeable(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.tokens.Issue(context.Background(), IssueInput{Subject: "user-1", GrantType: domain.GrantPassword})
	require.NoError(t, err)
	ticket, err := env.tokens.IssueSignInConfirm("user-1", []domain.MFAType{domain.MFATypeTOTP})
	require.NoError(t, err)

	_, err = env.tokens.ParseRefresh(resp.AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
	_, err = env.tokens.ParseAccess(resp.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
	_, err = env.tokens.ParseSignInConfirm(resp.AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
	_, err = env.tokens.ParseAccess(ticket.Token)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	claims, err := env.tokens.ParseSignInConfirm(ticket.Token)
	require.NoError(t, err)
	assert.Equal(t, []domain.MFAType{domain.MFATypeTOTP}, claims.Types)
	assert.Equal(t, env.clock.Now().Add(10*time.Minute).Unix(), ticket.Expires)
}

func TestTokenService_RejectsForeignAudience(t *testing.T) {
	env := newTestEnv(t)
	cfg := testTokenConfig
	cfg.Audience = "other-audience"
	other := NewTokenService(cfg, env.db.RefreshTokens(), nil, nil)
	other.now = env.clock.Now

	resp, err := other.Issue(context.Background(), IssueInput{Subject: "user-1", GrantType: domain.GrantPassword})
	require.NoError(t, err)

	_, err = env.tokens.ParseAccess(resp.AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
	_, err = env.tokens.ParseAccess("not-a-jwt")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenService_AccessTokenExpires(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.tokens.Issue(context.Background(), IssueInput{Subject: "user-1", GrantType: domain.GrantPassword})
	require.NoError(t, err)

	env.clock.Advance(time.Hour - time.Second)
	_, err = env.tokens.ParseAccess(resp.AccessToken)
	require.NoError(t, err)

	env.clock.Advance(2 * time.Second)
	_, err = env.tokens.ParseAccess(resp.AccessToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenService_RefreshPasswordSessionRekeys(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.tokens.Issue(ctx, IssueInput{Subject: "user-1", GrantType: domain.GrantPassword})
	require.NoError(t, err)
	firstClaims, err := env.tokens.ParseAccess(first.AccessToken)
	require.NoError(t, err)

	second, err := env.tokens.RefreshPasswordSession(ctx, first.RefreshToken)
	require.NoError(t, err)
	secondClaims, err := env.tokens.ParseAccess(second.AccessToken)
	require.NoError(t, err)
	assert.NotEqual(t, firstClaims.SessionID, secondClaims.SessionID)

	rows := env.db.RefreshRows("user-1", domain.GrantPassword)
	require.Len(t, rows, 1)
	assert.Equal(t, secondClaims.SessionID, *rows[0].SessionID)

	_, err = env.tokens.RefreshPasswordSession(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestTokenService_RefreshPasswordSessionRejectsOtherGrants(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.tokens.Issue(context.Background(), IssueInput{
		Subject:      "user-1",
		GrantType:    domain.GrantAuthorizationCode,
		ConnectionID: "conn-1",
	})
	require.NoError(t, err)

	_, err = env.tokens.RefreshPasswordSession(context.Background(), resp.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidGrantType)
}

func TestTokenService_RevokeSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.tokens.Issue(ctx, IssueInput{Subject: "user-1", GrantType: domain.GrantPassword})
	require.NoError(t, err)
	_, err = env.tokens.Issue(ctx, IssueInput{Subject: "user-1", GrantType: domain.GrantPassword})
	require.NoError(t, err)
	claims, err := env.tokens.ParseAccess(first.AccessToken)
	require.NoError(t, err)

	require.NoError(t, env.tokens.RevokeSession(ctx, "user-1", claims.SessionID))
	assert.Len(t, env.db.RefreshRows("user-1", domain.GrantPassword), 1)
	assert.ErrorIs(t, env.tokens.RevokeSession(ctx, "user-1", claims.SessionID), ErrSessionNotFound)

	require.NoError(t, env.tokens.RevokeAllSessions(ctx, "user-1"))
	assert.Empty(t, env.db.RefreshRows("user-1", domain.GrantPassword))
	assert.ErrorIs(t, env.tokens.RevokeAllSessions(ctx, "user-1"), ErrSessionNotFound)
}

func TestTokenService_StoreFailureIsInternal(t *testing.T) {
	env := newTestEnv(t)
	env.db.FailRefreshInserts(errors.New("connection reset"))

	_, err := env.tokens.Issue(context.Background(), IssueInput{Subject: "user-1", GrantType: domain.GrantPassword})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidRefreshToken)
	assert.Contains(t, err.Error(), "connection reset")
}
