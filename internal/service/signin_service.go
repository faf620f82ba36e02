package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"stexs-auth/internal/domain"
	"stexs-auth/internal/repository"
)

// SignInService conduce la maquina de estados de inicio de sesion:
// credenciales, confirmacion MFA opcional y emision de la sesion.
type SignInService struct {
	users  repository.UserRepository
	mfa    *MFAService
	tokens *TokenService
	logger *zap.Logger
}

// SignInResult lleva tokens si no hay MFA, o un ticket de confirmacion si lo hay.
type SignInResult struct {
	Tokens  *TokenResponse
	Confirm *SignInConfirmTicket
}

func NewSignInService(users repository.UserRepository, mfa *MFAService, tokens *TokenService, logger *zap.Logger) *SignInService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignInService{users: users, mfa: mfa, tokens: tokens, logger: logger}
}

// SignIn verifica identificador y password. El orden de rechazos es fijo:
// credenciales, baneo, email sin verificar, y recien entonces MFA.
func (s *SignInService) SignIn(ctx context.Context, identifier, password string) (SignInResult, error) {
	identifier = normalizeIdentifier(identifier)
	if identifier == "" || password == "" {
		return SignInResult{}, ErrInvalidCredentials
	}

	user, ok, err := s.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		s.logger.Error("fetch user for sign-in failed", zap.Error(err))
		return SignInResult{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok || user.PasswordHash == "" {
		return SignInResult{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return SignInResult{}, ErrInvalidCredentials
	}
	if user.Banned() {
		s.logger.Warn("sign-in attempt on banned account", zap.String("user_id", user.ID))
		return SignInResult{}, ErrAccountBanned
	}
	if !user.EmailVerified() {
		return SignInResult{}, ErrEmailNotVerified
	}

	types, err := s.mfa.ActiveTypes(ctx, user.ID)
	if err != nil {
		return SignInResult{}, err
	}
	if len(types) == 0 {
		tokens, err := s.tokens.Issue(ctx, IssueInput{Subject: user.ID, GrantType: domain.GrantPassword})
		if err != nil {
			return SignInResult{}, err
		}
		return SignInResult{Tokens: &tokens}, nil
	}

	ticket, err := s.tokens.IssueSignInConfirm(user.ID, types)
	if err != nil {
		return SignInResult{}, err
	}
	return SignInResult{Confirm: &ticket}, nil
}

// Confirm canjea un ticket de confirmacion y un codigo MFA por una sesion.
func (s *SignInService) Confirm(ctx context.Context, ticket string, t domain.MFAType, code string) (TokenResponse, error) {
	claims, err := s.tokens.ParseSignInConfirm(ticket)
	if err != nil {
		return TokenResponse{}, err
	}
	if !slices.Contains(claims.Types, t) {
		return TokenResponse{}, ErrUnsupportedType
	}
	if err := s.mfa.Challenge(ctx, claims.Subject, t, code); err != nil {
		return TokenResponse{}, err
	}
	return s.tokens.Issue(ctx, IssueInput{Subject: claims.Subject, GrantType: domain.GrantPassword})
}

// SignOut cierra la sesion del access token presentado.
func (s *SignInService) SignOut(ctx context.Context, claims Claims) error {
	if claims.GrantType != domain.GrantPassword || claims.SessionID == "" {
		return ErrInvalidGrantType
	}
	return s.tokens.RevokeSession(ctx, claims.Subject, claims.SessionID)
}

// SignOutEverywhere cierra todas las sesiones; si el usuario tiene MFA activo
// exige un codigo de uno de sus metodos.
func (s *SignInService) SignOutEverywhere(ctx context.Context, userID string, t domain.MFAType, code string) error {
	types, err := s.mfa.ActiveTypes(ctx, userID)
	if err != nil {
		return err
	}
	if len(types) > 0 {
		if t == "" || strings.TrimSpace(code) == "" {
			return ErrMFARequired
		}
		if !slices.Contains(types, t) {
			return ErrUnsupportedType
		}
		if err := s.mfa.Challenge(ctx, userID, t, code); err != nil {
			return err
		}
	}
	return s.tokens.RevokeAllSessions(ctx, userID)
}

// normalizeIdentifier pasa a minusculas como lower() en SQL. Un Caser no se
// comparte entre goroutines.
func normalizeIdentifier(identifier string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(identifier))
}
