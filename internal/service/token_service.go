package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"stexs-auth/internal/domain"
	"stexs-auth/internal/repository"
)

const (
	tokenTypeBearer   = "bearer"
	roleAuthenticated = "authenticated"
)

// TokenKeys agrupa una clave HMAC por clase de token.
type TokenKeys struct {
	Access        []byte
	Refresh       []byte
	SignInConfirm []byte
}

type TokenConfig struct {
	Keys             TokenKeys
	Issuer           string
	Audience         string
	AccessTTL        time.Duration
	OAuth2AccessTTL  time.Duration
	SignInConfirmTTL time.Duration
	RefreshTTL       time.Duration
}

// TokenService emite, valida y rota tokens firmados.
type TokenService struct {
	cfg           TokenConfig
	refreshTokens repository.RefreshTokenRepository
	tx            TxRunner
	logger        *zap.Logger
	now           func() time.Time
}

// Claims cubre los tres tipos de token; los campos vacios se omiten al firmar.
type Claims struct {
	GrantType      domain.GrantType `json:"grant_type"`
	Role           string           `json:"role,omitempty"`
	SessionID      string           `json:"session_id,omitempty"`
	ClientID       string           `json:"client_id,omitempty"`
	OrganizationID string           `json:"organization_id,omitempty"`
	Scopes         []string         `json:"scopes,omitempty"`
	Types          []domain.MFAType `json:"types,omitempty"`
	jwt.RegisteredClaims
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	Expires      int64  `json:"expires"`
}

// SignInConfirmTicket puentea la verificacion de password y la de MFA.
type SignInConfirmTicket struct {
	Token   string           `json:"token"`
	Types   []domain.MFAType `json:"types"`
	Expires int64            `json:"expires"`
}

// IssueInput describe una emision. RefreshToken reutiliza un jti existente;
// OldRefreshToken rota esa fila en lugar de insertar una nueva.
type IssueInput struct {
	Subject         string
	GrantType       domain.GrantType
	ClientID        string
	OrganizationID  string
	Scopes          []string
	ConnectionID    string
	RefreshToken    string
	OldRefreshToken string
}

func NewTokenService(cfg TokenConfig, refreshTokens repository.RefreshTokenRepository, tx TxRunner, logger *zap.Logger) *TokenService {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.OAuth2AccessTTL <= 0 {
		cfg.OAuth2AccessTTL = cfg.AccessTTL
	}
	if cfg.SignInConfirmTTL <= 0 {
		cfg.SignInConfirmTTL = 10 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	if tx == nil {
		tx = noTx{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenService{
		cfg:           cfg,
		refreshTokens: refreshTokens,
		tx:            tx,
		logger:        logger,
		now:           time.Now,
	}
}

// Issue firma el access token y, salvo client_credentials, persiste y firma el
// refresh token. Ambos tokens se firman antes de tocar el store.
func (s *TokenService) Issue(ctx context.Context, in IssueInput) (TokenResponse, error) {
	if strings.TrimSpace(in.Subject) == "" {
		return TokenResponse{}, errors.New("token subject is required")
	}
	now := s.now().UTC()
	ttl := s.cfg.OAuth2AccessTTL
	if in.GrantType == domain.GrantPassword {
		ttl = s.cfg.AccessTTL
	}

	claims := Claims{
		GrantType:      in.GrantType,
		Role:           roleAuthenticated,
		ClientID:       in.ClientID,
		OrganizationID: in.OrganizationID,
		Scopes:         in.Scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			Subject:   in.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if in.GrantType == domain.GrantPassword {
		claims.SessionID = uuid.NewString()
	}

	access, err := sign(claims, s.cfg.Keys.Access)
	if err != nil {
		return TokenResponse{}, err
	}
	resp := TokenResponse{
		AccessToken: access,
		TokenType:   tokenTypeBearer,
		Expires:     claims.ExpiresAt.Unix(),
	}
	if in.GrantType == domain.GrantClientCredentials {
		return resp, nil
	}

	jti := in.RefreshToken
	if jti == "" {
		jti = uuid.NewString()
	}
	refreshClaims := claims
	refreshClaims.ID = jti
	refreshClaims.ExpiresAt = jwt.NewNumericDate(now.Add(s.cfg.RefreshTTL))
	refresh, err := sign(refreshClaims, s.cfg.Keys.Refresh)
	if err != nil {
		return TokenResponse{}, err
	}

	if err := s.persistRefresh(ctx, in, claims.SessionID, jti, now); err != nil {
		return TokenResponse{}, err
	}
	resp.RefreshToken = refresh
	return resp, nil
}

func (s *TokenService) persistRefresh(ctx context.Context, in IssueInput, sessionID, jti string, now time.Time) error {
	if in.OldRefreshToken != "" {
		n, err := s.refreshTokens.Rotate(ctx, in.Subject, in.OldRefreshToken, jti)
		if err != nil {
			s.logger.Error("rotate refresh token failed", zap.Error(err), zap.String("user_id", in.Subject))
			return fmt.Errorf("rotate refresh token: %w", err)
		}
		if n == 0 {
			return ErrInvalidRefreshToken
		}
		return nil
	}

	rec := domain.RefreshTokenRecord{
		ID:        uuid.NewString(),
		Token:     jti,
		UserID:    in.Subject,
		GrantType: in.GrantType,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if sessionID != "" {
		rec.SessionID = &sessionID
	}
	if in.ConnectionID != "" {
		connectionID := in.ConnectionID
		rec.ConnectionID = &connectionID
	}
	if err := s.refreshTokens.Insert(ctx, rec); err != nil {
		s.logger.Error("insert refresh token failed", zap.Error(err), zap.String("user_id", in.Subject))
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// IssueSignInConfirm firma el ticket de confirmacion con su propia clave.
func (s *TokenService) IssueSignInConfirm(subject string, types []domain.MFAType) (SignInConfirmTicket, error) {
	now := s.now().UTC()
	claims := Claims{
		GrantType: domain.GrantSignInConfirm,
		Types:     types,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.SignInConfirmTTL)),
		},
	}
	token, err := sign(claims, s.cfg.Keys.SignInConfirm)
	if err != nil {
		return SignInConfirmTicket{}, err
	}
	return SignInConfirmTicket{Token: token, Types: types, Expires: claims.ExpiresAt.Unix()}, nil
}

// RefreshPasswordSession borra la fila presentada y emite un par con un
// session_id nuevo. La sesion anterior deja de existir.
func (s *TokenService) RefreshPasswordSession(ctx context.Context, refreshToken string) (TokenResponse, error) {
	claims, err := s.ParseRefresh(refreshToken)
	if err != nil {
		return TokenResponse{}, err
	}
	if claims.GrantType != domain.GrantPassword || claims.SessionID == "" || claims.ID == "" {
		return TokenResponse{}, ErrInvalidGrantType
	}

	var resp TokenResponse
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		n, err := s.refreshTokens.DeleteSessionToken(ctx, claims.Subject, claims.ID, claims.SessionID)
		if err != nil {
			s.logger.Error("delete session refresh token failed", zap.Error(err), zap.String("user_id", claims.Subject))
			return fmt.Errorf("delete session refresh token: %w", err)
		}
		if n == 0 {
			return ErrInvalidRefreshToken
		}
		resp, err = s.Issue(ctx, IssueInput{Subject: claims.Subject, GrantType: domain.GrantPassword})
		return err
	})
	if err != nil {
		return TokenResponse{}, err
	}
	return resp, nil
}

// RevokeSession borra los refresh tokens de una sesion de password.
func (s *TokenService) RevokeSession(ctx context.Context, userID, sessionID string) error {
	n, err := s.refreshTokens.DeleteSession(ctx, userID, sessionID)
	if err != nil {
		s.logger.Error("delete session failed", zap.Error(err), zap.String("user_id", userID))
		return fmt.Errorf("delete session: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// RevokeAllSessions borra todas las sesiones de password del usuario.
func (s *TokenService) RevokeAllSessions(ctx context.Context, userID string) error {
	n, err := s.refreshTokens.DeleteAllSessions(ctx, userID)
	if err != nil {
		s.logger.Error("delete all sessions failed", zap.Error(err), zap.String("user_id", userID))
		return fmt.Errorf("delete all sessions: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *TokenService) ParseAccess(token string) (Claims, error) {
	return s.parse(token, s.cfg.Keys.Access)
}

func (s *TokenService) ParseRefresh(token string) (Claims, error) {
	claims, err := s.parse(token, s.cfg.Keys.Refresh)
	if err != nil {
		return Claims{}, err
	}
	if claims.ID == "" {
		return Claims{}, ErrTokenInvalid
	}
	return claims, nil
}

func (s *TokenService) ParseSignInConfirm(token string) (Claims, error) {
	claims, err := s.parse(token, s.cfg.Keys.SignInConfirm)
	if err != nil {
		return Claims{}, err
	}
	if claims.GrantType != domain.GrantSignInConfirm {
		return Claims{}, ErrInvalidGrantType
	}
	return claims, nil
}

func (s *TokenService) parse(tokenString string, key []byte) (Claims, error) {
	if len(key) == 0 || strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrTokenInvalid
	}
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Claims{}, ErrTokenInvalid
	}
	return claims, nil
}

func sign(claims Claims, key []byte) (string, error) {
	if len(key) == 0 {
		return "", ErrTokenInvalid
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}
