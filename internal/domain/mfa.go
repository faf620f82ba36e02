package domain

import "time"

// MFAType identifica un metodo de segundo factor.
type MFAType string

const (
	MFATypeTOTP  MFAType = "totp"
	MFATypeEmail MFAType = "email"
)

func (t MFAType) Valid() bool {
	return t == MFATypeTOTP || t == MFATypeEmail
}

// MFAProfile guarda el estado de segundo factor de un usuario. Hay una fila por usuario.
type MFAProfile struct {
	UserID          string
	Email           string
	EmailEnabled    bool
	EmailCode       string
	EmailCodeSentAt *time.Time
	TOTPSecret      string
	TOTPVerifiedAt  *time.Time
}

func (p MFAProfile) TOTPEnabled() bool {
	return p.TOTPVerifiedAt != nil
}

// ActiveTypes devuelve los metodos activos en orden estable.
func (p MFAProfile) ActiveTypes() []MFAType {
	types := make([]MFAType, 0, 2)
	if p.TOTPEnabled() {
		types = append(types, MFATypeTOTP)
	}
	if p.EmailEnabled {
		types = append(types, MFATypeEmail)
	}
	return types
}

// MFAStatus es la vista publica del perfil.
type MFAStatus struct {
	Email bool `json:"email"`
	TOTP  bool `json:"totp"`
}

func (p MFAProfile) Status() MFAStatus {
	return MFAStatus{Email: p.EmailEnabled, TOTP: p.TOTPEnabled()}
}
