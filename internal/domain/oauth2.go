package domain

import "time"

// ScopeType separa scopes que un usuario concede de los que usa el propio cliente.
type ScopeType string

const (
	ScopeTypeUser   ScopeType = "user"
	ScopeTypeClient ScopeType = "client"
)

// OAuth2Client es una aplicacion de terceros registrada.
type OAuth2Client struct {
	ID             string    `json:"id"`
	ClientID       string    `json:"client_id"`
	ClientSecret   string    `json:"-"`
	Name           string    `json:"name"`
	RedirectURL    string    `json:"redirect_url"`
	OrganizationID string    `json:"organization_id"`
	UserScopes     []string  `json:"user_scopes"`
	ClientScopes   []string  `json:"client_scopes"`
	CreatedAt      time.Time `json:"created_at"`
}

// OAuth2AuthorizationCode es de un solo uso; se borra al canjearse.
type OAuth2AuthorizationCode struct {
	ID        string
	Code      string
	UserID    string
	ClientID  string
	Scopes    []string
	CreatedAt time.Time
}

// OAuth2Connection enlaza un usuario con un cliente autorizado.
type OAuth2Connection struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ClientID  string    `json:"client_id"`
	Scopes    []string  `json:"scopes"`
	CreatedAt time.Time `json:"created_at"`
}
