package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"stexs-auth/internal/domain"
)

var (
	testUserScopes   = []string{"inventory.read", "profile.read"}
	testClientScopes = []string{"organization.read"}
)

func authorizeTestClient(t *testing.T, env *testEnv, userID string, client domain.OAuth2Client) AuthorizationCodeResponse {
	t.Helper()
	resp, err := env.oauth2.Authorize(context.Background(), AuthorizeInput{
		UserID:      userID,
		ClientID:    client.ClientID,
		RedirectURL: testRedirectURL,
		Scopes:      []string{"profile.read"},
	})
	require.NoError(t, err)
	return resp
}

func exchangeTestCode(env *testEnv, client domain.OAuth2Client, code string) (TokenResponse, error) {
	return env.oauth2.ExchangeAuthorizationCode(context.Background(), ExchangeInput{
		Code:         code,
		ClientID:     client.ClientID,
		ClientSecret: testClientSecret,
	})
}

func TestOAuth2Service_AuthorizeRejectsUnknownClients(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "ana@example.com", "ana")
	client := env.seedClient(t, testUserScopes, testClientScopes)

	cases := []struct {
		name string
		in   AuthorizeInput
	}{
		{name: "malformed client id", in: AuthorizeInput{ClientID: "nope", RedirectURL: testRedirectURL, Scopes: []string{"profile.read"}}},
		{name: "unknown client", in: AuthorizeInput{ClientID: uuid.NewString(), RedirectURL: testRedirectURL, Scopes: []string{"profile.read"}}},
		{name: "redirect mismatch", in: AuthorizeInput{ClientID: client.ClientID, RedirectURL: "https://evil.example.com", Scopes: []string{"profile.read"}}},
		{name: "scope outside client", in: AuthorizeInput{ClientID: client.ClientID, RedirectURL: testRedirectURL, Scopes: []string{"profile.write"}}},
		{name: "client scope requested by user", in: AuthorizeInput{ClientID: client.ClientID, RedirectURL: testRedirectURL, Scopes: []string{"organization.read"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.in.UserID = user.ID
			_, err := env.oauth2.Authorize(context.Background(), tc.in)
			assert.ErrorIs(t, err, ErrClientNotFound)
		})
	}
}

func TestOAuth2Service_AuthorizeReplacesPendingCode(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "ana@example.com", "ana")
	client := env.seedClient(t, testUserScopes, testClientScopes)

	first := authorizeTestClient(t, env, user.ID, client)
	assert.Equal(t, env.clock.Now().Add(5*time.Minute).Unix(), first.Expires)
	second := authorizeTestClient(t, env, user.ID, client)
	require.NotEqual(t, first.Code, second.Code)
	assert.Equal(t, 1, env.db.CountAuthorizationCodes())

	_, err := exchangeTestCode(env, client, first.Code)
	assert.ErrorIs(t, err, ErrInvalidAuthorizationCode)
	_, err = exchangeTestCode(env, client, second.Code)
	require.NoError(t, err)

	_, err = env.oauth2.Authorize(context.Background(), AuthorizeInput{
		UserID:      user.ID,
		ClientID:    client.ClientID,
		RedirectURL: testRedirectURL,
		Scopes:      []string{"profile.read"},
	})
	assert.ErrorIs(t, err, ErrAlreadyConnected)
}

func TestOAuth2Service_ExchangeIssuesConnectedTokens(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "ana@example.com", "ana")
	client := env.seedClient(t, testUserScopes, testClientScopes)
	code := authorizeTestClient(t, env, user.ID, client)

	resp, err := exchangeTestCode(env, client, code.Code)
	require.NoError(t, err)
	require.NotEmpty(t, resp.RefreshToken)

	claims, err := env.tokens.ParseAccess(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.GrantAuthorizationCode, claims.GrantType)
	assert.Equal(t, user.ID, claims.Subject)
	assert.Equal(t, client.ClientID, claims.ClientID)
	assert.Equal(t, client.OrganizationID, claims.OrganizationID)
	assert.Equal(t, []string{"profile.read"}, claims.Scopes)
	assert.Empty(t, claims.SessionID)

	conns, err := env.oauth2.Connections(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	rows := env.db.RefreshRows(user.ID, domain.GrantAuthorizationCode)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].ConnectionID)
	assert.Equal(t, conns[0].ID, *rows[0].ConnectionID)
}

func TestOAuth2Service_ExchangeIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "ana@example.com", "ana")
	client := env.seedClient(t, testUserScopes, testClientScopes)
	code := authorizeTestClient(t, env, user.ID, client)

	var successes, rejected atomic.Int32
	var g errgroup.Group
	for range 8 {
		g.Go(func() error {
			_, err := exchangeTestCode(env, client, code.Code)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrInvalidAuthorizationCode):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(7), rejected.Load())
	assert.Equal(t, 1, env.db.CountConnections())
}

func TestOAuth2Service_ExchangeExpiry(t *testing.T) {
	cases := []struct {
		name    string
		elapsed time.Duration
		wantErr error
	}{
		{name: "before expiry", elapsed: 4*time.Minute + 59*time.Second},
		{name: "after expiry", elapsed: 5*time.Minute + time.Second, wantErr: ErrCodeExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			user := env.seedUser(t, "ana@example.com", "ana")
			client := env.seedClient(t, testUserScopes, testClientScopes)
			code := authorizeTestClient(t, env, user.ID, client)

			env.clock.Advance(tc.elapsed)
			_, err := exchangeTestCode(env, client, code.Code)
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Zero(t, env.db.CountConnections())

			_, err = exchangeTestCode(env, client, code.Code)
			assert.ErrorIs(t, err, ErrInvalidAuthorizationCode, "expired code is deleted")
		})
	}
}

func TestOAuth2Service_ExchangeRollsBackWhenIssueFails(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "ana@example.com", "ana")
	client := env.seedClient(t, testUserScopes, testClientScopes)
	code := authorizeTestClient(t, env, user.ID, client)

	env.db.FailRefreshInserts(errors.New("connection reset"))
	_, err := exchangeTestCode(env, client, code.Code)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidAuthorizationCode)
	assert.Equal(t, 1, env.db.CountAuthorizationCodes(), "code must survive a failed exchange")
	assert.Zero(t, env.db.CountConnections())
	assert.Zero(t, env.db.CountRefreshTokens())

	env.db.FailRefreshInserts(nil)
	_, err = exchangeTestCode(env, client, code.Code)
	require.NoError(t, err)
	assert.Equal(t, 1, env.db.CountConnections())
}

func TestOAuth2Service_ExchangeAfterConcurrentConnection(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "ana@example.com", "ana")
	client := env.seedClient(t, testUserScopes, testClientScopes)
	first := authorizeTestClient(t, env, user.ID, client)

	// Un Authorize que paso su chequeo de conexion antes de este canje deja
	// un codigo nuevo para el mismo par usuario/cliente.
	_, err := exchangeTestCode(env, client, first.Code)
	require.NoError(t, err)
	late, err := env.db.OAuth2().UpsertAuthorizationCode(context.Background(), domain.OAuth2AuthorizationCode{
		ID:        uuid.NewString(),
		Code:      uuid.NewString(),
		UserID:    user.ID,
		ClientID:  client.ID,
		Scopes:    []string{"profile.read"},
		CreatedAt: env.clock.Now(),
	})
	require.NoError(t, err)

	_, err = exchangeTestCode(env, client, late.Code)
	assert.ErrorIs(t, err, ErrAlreadyConnected)
	assert.Equal(t, 1, env.db.CountConnections())
	assert.Len(t, env.db.RefreshRows(user.ID, domain.GrantAuthorizationCode), 1)
}

func TestOAuth2Service_ExchangeRejectsBadClientSecret(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "ana@example.com", "ana")
	client := env.seedClient(t, testUserScopes, testClientScopes)
	code := authorizeTestClient(t, env, user.ID, client)

	_, err := env.oauth2.ExchangeAuthorizationCode(context.Background(), ExchangeInput{
		Code:         code.Code,
		ClientID:     client.ClientID,
		ClientSecret: "wrong",
	})
	assert.ErrorIs(t, err, ErrInvalidClientCredentials)
	assert.Equal(t, 1, env.db.CountAuthorizationCodes(), "code survives a failed client authentication")

	_, err = exchangeTestCode(env, client, "not-a-uuid")
	assert.ErrorIs(t, err, ErrInvalidAuthorizationCode)
}

func TestOAuth2Service_ClientCredentials(t *testing.T) {
	env := newTestEnv(t)
	client := env.seedClient(t, testUserScopes, testClientScopes)

	resp, err := env.oauth2.ClientCredentials(context.Background(), client.ClientID, testClientSecret)
	require.NoError(t, err)
	assert.Empty(t, resp.RefreshToken)

	claims, err := env.tokens.ParseAccess(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.GrantClientCredentials, claims.GrantType)
	assert.Equal(t, client.ClientID, claims.Subject)
	assert.Equal(t, testClientScopes, claims.Scopes)

	_, err = env.oauth2.ClientCredentials(context.Background(), client.ClientID, "wrong")
	assert.ErrorIs(t, err, ErrInvalidClientCredentials)

	noScopes := env.seedClient(t, testUserScopes, nil)
	_, err = env.oauth2.ClientCredentials(context.Background(), noScopes.ClientID, testClientSecret)
	assert.ErrorIs(t, err, ErrNoClientScopesSelected)
}

func TestOAuth2Service_RefreshRotatesInPlace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "ana@example.com", "ana")
	client := env.seedClient(t, testUserScopes, testClientScopes)
	code := authorizeTestClient(t, env, user.ID, client)

	resp, err := exchangeTestCode(env, client, code.Code)
	require.NoError(t, err)
	rows := env.db.RefreshRows(user.ID, domain.GrantAuthorizationCode)
	require.Len(t, rows, 1)
	recordID := rows[0].ID

	previous := resp.RefreshToken
	for range 3 {
		next, err := env.oauth2.Refresh(ctx, previous)
		require.NoError(t, err)
		require.NotEqual(t, previous, next.RefreshToken)

		claims, err := env.tokens.ParseAccess(next.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, []string{"profile.read"}, claims.Scopes)

		_, err = env.oauth2.Refresh(ctx, previous)
		assert.ErrorIs(t, err, ErrInvalidRefreshToken)
		previous = next.RefreshToken
	}

	rows = env.db.RefreshRows(user.ID, domain.GrantAuthorizationCode)
	require.Len(t, rows, 1)
	assert.Equal(t, recordID, rows[0].ID)
	assert.Equal(t, 1, env.db.CountConnections())
}

func TestOAuth2Service_RefreshRejectsPasswordTokens(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.tokens.Issue(context.Background(), IssueInput{Subject: "user-1", GrantType: domain.GrantPassword})
	require.NoError(t, err)

	_, err = env.oauth2.Refresh(context.Background(), resp.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidGrantType)
	_, err = env.oauth2.Refresh(context.Background(), resp.AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestOAuth2Service_Revoke(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "ana@example.com", "ana")
	other := env.seedUser(t, "bob@example.com", "bob")
	client := env.seedClient(t, testUserScopes, testClientScopes)
	code := authorizeTestClient(t, env, user.ID, client)
	resp, err := exchangeTestCode(env, client, code.Code)
	require.NoError(t, err)

	assert.ErrorIs(t, env.oauth2.Revoke(ctx, other.ID, resp.RefreshToken), ErrInvalidRefreshToken)

	require.NoError(t, env.oauth2.Revoke(ctx, user.ID, resp.RefreshToken))
	assert.Zero(t, env.db.CountConnections())
	assert.Empty(t, env.db.RefreshRows(user.ID, domain.GrantAuthorizationCode))
	assert.ErrorIs(t, env.oauth2.Revoke(ctx, user.ID, resp.RefreshToken), ErrAlreadyRevoked)

	_, err = env.oauth2.Refresh(ctx, resp.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestOAuth2Service_DeleteConnection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "ana@example.com", "ana")
	other := env.seedUser(t, "bob@example.com", "bob")
	client := env.seedClient(t, testUserScopes, testClientScopes)
	code := authorizeTestClient(t, env, user.ID, client)
	_, err := exchangeTestCode(env, client, code.Code)
	require.NoError(t, err)

	conns, err := env.oauth2.Connections(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, conns, 1)

	assert.ErrorIs(t, env.oauth2.DeleteConnection(ctx, other.ID, conns[0].ID), ErrConnectionNotFound)
	require.NoError(t, env.oauth2.DeleteConnection(ctx, user.ID, conns[0].ID))
	assert.ErrorIs(t, env.oauth2.DeleteConnection(ctx, user.ID, conns[0].ID), ErrConnectionNotFound)
	assert.Empty(t, env.db.RefreshRows(user.ID, domain.GrantAuthorizationCode))
}
