package domain

import "time"

// GrantType es el mecanismo por el que se obtuvo un token.
type GrantType string

const (
	GrantPassword          GrantType = "password"
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantClientCredentials GrantType = "client_credentials"
	GrantRefreshToken      GrantType = "refresh_token"
	GrantSignInConfirm     GrantType = "sign_in_confirm"
)

// RefreshTokenRecord es la fila persistida de un refresh token. SessionID solo
// existe para sesiones de password; ConnectionID solo para conexiones OAuth2.
type RefreshTokenRecord struct {
	ID           string
	Token        string
	UserID       string
	GrantType    GrantType
	SessionID    *string
	ConnectionID *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
