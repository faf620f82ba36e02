package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"stexs-auth/internal/domain"
	"stexs-auth/internal/repository"
)

// OAuth2Service implementa los grants authorization_code, client_credentials
// y refresh_token, mas la gestion de conexiones.
type OAuth2Service struct {
	store   repository.OAuth2Repository
	tokens  *TokenService
	tx      TxRunner
	logger  *zap.Logger
	codeTTL time.Duration
	now     func() time.Time
}

func NewOAuth2Service(store repository.OAuth2Repository, tokens *TokenService, tx TxRunner, codeTTL time.Duration, logger *zap.Logger) *OAuth2Service {
	if codeTTL <= 0 {
		codeTTL = 5 * time.Minute
	}
	if tx == nil {
		tx = noTx{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OAuth2Service{
		store:   store,
		tokens:  tokens,
		tx:      tx,
		logger:  logger,
		codeTTL: codeTTL,
		now:     time.Now,
	}
}

type AuthorizeInput struct {
	UserID      string
	ClientID    string
	RedirectURL string
	Scopes      []string
}

type AuthorizationCodeResponse struct {
	Code    string `json:"code"`
	Expires int64  `json:"expires"`
}

type ExchangeInput struct {
	Code         string
	ClientID     string
	ClientSecret string
}

// Authorize emite un codigo reemplazando cualquier otro sin canjear del mismo par.
func (s *OAuth2Service) Authorize(ctx context.Context, in AuthorizeInput) (AuthorizationCodeResponse, error) {
	if _, err := uuid.Parse(in.ClientID); err != nil {
		return AuthorizationCodeResponse{}, ErrClientNotFound
	}
	client, ok, err := s.store.GetClientByRedirect(ctx, in.ClientID, in.RedirectURL)
	if err != nil {
		return AuthorizationCodeResponse{}, s.internal("fetch client", err, zap.String("client_id", in.ClientID))
	}
	if !ok || len(in.Scopes) == 0 || !isSubset(in.Scopes, client.UserScopes) {
		s.logger.Debug("authorize rejected", zap.String("client_id", in.ClientID))
		return AuthorizationCodeResponse{}, ErrClientNotFound
	}

	connected, err := s.store.ConnectionExists(ctx, in.UserID, client.ID)
	if err != nil {
		return AuthorizationCodeResponse{}, s.internal("check connection", err, zap.String("user_id", in.UserID))
	}
	if connected {
		return AuthorizationCodeResponse{}, ErrAlreadyConnected
	}

	code, err := s.store.UpsertAuthorizationCode(ctx, domain.OAuth2AuthorizationCode{
		ID:        uuid.NewString(),
		Code:      uuid.NewString(),
		UserID:    in.UserID,
		ClientID:  client.ID,
		Scopes:    slices.Compact(slices.Sorted(slices.Values(in.Scopes))),
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return AuthorizationCodeResponse{}, s.internal("upsert authorization code", err, zap.String("user_id", in.UserID))
	}
	return AuthorizationCodeResponse{
		Code:    code.Code,
		Expires: code.CreatedAt.Add(s.codeTTL).Unix(),
	}, nil
}

// ExchangeAuthorizationCode borra el codigo y emite tokens en una transaccion.
// Un codigo vencido se borra igualmente y no emite nada.
func (s *OAuth2Service) ExchangeAuthorizationCode(ctx context.Context, in ExchangeInput) (TokenResponse, error) {
	client, err := s.authenticateClient(ctx, in.ClientID, in.ClientSecret)
	if err != nil {
		return TokenResponse{}, err
	}
	if _, err := uuid.Parse(in.Code); err != nil {
		return TokenResponse{}, ErrInvalidAuthorizationCode
	}

	var (
		resp    TokenResponse
		expired bool
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		code, ok, err := s.store.ConsumeAuthorizationCode(ctx, in.Code, client.ID)
		if err != nil {
			return s.internal("consume authorization code", err, zap.String("client_id", client.ClientID))
		}
		if !ok {
			return ErrInvalidAuthorizationCode
		}
		if IsExpired(code.CreatedAt, s.codeTTL, s.now()) {
			expired = true
			return nil
		}

		conn := domain.OAuth2Connection{
			ID:        uuid.NewString(),
			UserID:    code.UserID,
			ClientID:  client.ID,
			Scopes:    code.Scopes,
			CreatedAt: s.now().UTC(),
		}
		if err := s.store.CreateConnection(ctx, conn); err != nil {
			// Otro canje creo la conexion despues del chequeo de Authorize.
			if isUniqueViolation(err) {
				return ErrAlreadyConnected
			}
			return s.internal("create connection", err, zap.String("user_id", code.UserID))
		}
		resp, err = s.tokens.Issue(ctx, IssueInput{
			Subject:        code.UserID,
			GrantType:      domain.GrantAuthorizationCode,
			ClientID:       client.ClientID,
			OrganizationID: client.OrganizationID,
			Scopes:         code.Scopes,
			ConnectionID:   conn.ID,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInvalidAuthorizationCode) {
			s.logger.Debug("authorization code not found", zap.String("client_id", client.ClientID))
		}
		return TokenResponse{}, err
	}
	if expired {
		s.logger.Debug("authorization code expired", zap.String("client_id", client.ClientID))
		return TokenResponse{}, ErrCodeExpired
	}
	return resp, nil
}

// ClientCredentials emite solo un access token a nombre del propio cliente.
func (s *OAuth2Service) ClientCredentials(ctx context.Context, clientID, clientSecret string) (TokenResponse, error) {
	client, err := s.authenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return TokenResponse{}, err
	}
	if len(client.ClientScopes) == 0 {
		return TokenResponse{}, ErrNoClientScopesSelected
	}
	return s.tokens.Issue(ctx, IssueInput{
		Subject:        client.ClientID,
		GrantType:      domain.GrantClientCredentials,
		ClientID:       client.ClientID,
		OrganizationID: client.OrganizationID,
		Scopes:         client.ClientScopes,
	})
}

// Refresh rota en sitio la fila del refresh token; la conexion conserva su identidad.
func (s *OAuth2Service) Refresh(ctx context.Context, refreshToken string) (TokenResponse, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return TokenResponse{}, err
	}
	if claims.GrantType != domain.GrantAuthorizationCode {
		return TokenResponse{}, ErrInvalidGrantType
	}
	resp, err := s.tokens.Issue(ctx, IssueInput{
		Subject:         claims.Subject,
		GrantType:       domain.GrantAuthorizationCode,
		ClientID:        claims.ClientID,
		OrganizationID:  claims.OrganizationID,
		Scopes:          claims.Scopes,
		OldRefreshToken: claims.ID,
	})
	if errors.Is(err, ErrInvalidRefreshToken) {
		s.logger.Debug("refresh token not found", zap.String("user_id", claims.Subject))
	}
	return resp, err
}

// Revoke borra la conexion asociada al refresh token presentado.
func (s *OAuth2Service) Revoke(ctx context.Context, userID, refreshToken string) error {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return err
	}
	if claims.GrantType != domain.GrantAuthorizationCode {
		return ErrInvalidGrantType
	}
	if claims.Subject != userID {
		return ErrInvalidRefreshToken
	}
	n, err := s.store.DeleteConnectionByRefreshToken(ctx, userID, claims.ID)
	if err != nil {
		return s.internal("revoke connection", err, zap.String("user_id", userID))
	}
	if n == 0 {
		return ErrAlreadyRevoked
	}
	return nil
}

func (s *OAuth2Service) DeleteConnection(ctx context.Context, userID, connectionID string) error {
	n, err := s.store.DeleteConnection(ctx, connectionID, userID)
	if err != nil {
		return s.internal("delete connection", err, zap.String("user_id", userID))
	}
	if n == 0 {
		return ErrConnectionNotFound
	}
	return nil
}

func (s *OAuth2Service) Connections(ctx context.Context, userID string) ([]domain.OAuth2Connection, error) {
	conns, err := s.store.ListConnections(ctx, userID)
	if err != nil {
		return nil, s.internal("list connections", err, zap.String("user_id", userID))
	}
	return conns, nil
}

func (s *OAuth2Service) authenticateClient(ctx context.Context, clientID, clientSecret string) (domain.OAuth2Client, error) {
	if _, err := uuid.Parse(clientID); err != nil {
		return domain.OAuth2Client{}, ErrInvalidClientCredentials
	}
	client, ok, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return domain.OAuth2Client{}, s.internal("fetch client", err, zap.String("client_id", clientID))
	}
	if !ok || bcrypt.CompareHashAndPassword([]byte(client.ClientSecret), []byte(clientSecret)) != nil {
		s.logger.Debug("client authentication failed", zap.String("client_id", clientID))
		return domain.OAuth2Client{}, ErrInvalidClientCredentials
	}
	return client, nil
}

func (s *OAuth2Service) internal(op string, err error, fields ...zap.Field) error {
	s.logger.Error(op+" failed", append(fields, zap.Error(err))...)
	return fmt.Errorf("%s: %w", op, err)
}

func isSubset(requested, allowed []string) bool {
	for _, scope := range requested {
		if !slices.Contains(allowed, scope) {
			return false
		}
	}
	return true
}
