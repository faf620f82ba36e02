package service

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// Rechazos de dominio. La capa HTTP traduce cada uno a un codigo estable.
var (
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrEmailNotVerified        = errors.New("email not verified")
	ErrAccountBanned           = errors.New("account banned")
	ErrUserNotFound            = errors.New("user not found")
	ErrUserAlreadyExists       = errors.New("user already exists")
	ErrEmailAlreadyVerified    = errors.New("email already verified")
	ErrVerificationCodeInvalid = errors.New("verification code invalid")
	ErrVerificationCodeExpired = errors.New("verification code expired")
	ErrEmailSendFailure        = errors.New("email send failed")

	ErrInvalidCode             = errors.New("invalid code")
	ErrMFACodeExpired          = errors.New("mfa code expired")
	ErrUnsupportedType         = errors.New("unsupported mfa type")
	ErrTOTPAlreadyEnabled      = errors.New("totp already enabled")
	ErrTOTPAlreadyVerified     = errors.New("totp already verified")
	ErrTOTPAlreadyDisabled     = errors.New("totp already disabled")
	ErrTOTPDisabled            = errors.New("totp disabled")
	ErrEmailMFAAlreadyEnabled  = errors.New("email mfa already enabled")
	ErrEmailMFAAlreadyDisabled = errors.New("email mfa already disabled")
	ErrEmailMFADisabled        = errors.New("email mfa disabled")
	ErrCannotDisableLastMethod = errors.New("cannot disable last mfa method")
	ErrMFARequired             = errors.New("mfa confirmation required")
	ErrMFAProfileNotFound      = errors.New("mfa profile not found")

	ErrClientNotFound           = errors.New("client not found")
	ErrAlreadyConnected         = errors.New("client already connected")
	ErrInvalidAuthorizationCode = errors.New("invalid authorization code")
	ErrCodeExpired              = errors.New("authorization code expired")
	ErrInvalidClientCredentials = errors.New("invalid client credentials")
	ErrNoClientScopesSelected   = errors.New("no client scopes selected")
	ErrInvalidRefreshToken      = errors.New("invalid refresh token")
	ErrConnectionNotFound       = errors.New("connection not found")
	ErrAlreadyRevoked           = errors.New("connection already revoked")
	ErrSessionNotFound          = errors.New("session not found")
	ErrUnsupportedGrantType     = errors.New("unsupported grant type")

	ErrTokenInvalid     = errors.New("token invalid")
	ErrTokenExpired     = errors.New("token expired")
	ErrInvalidGrantType = errors.New("invalid grant type")
)

// isUniqueViolation detecta una carrera resuelta por una restriccion UNIQUE.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
