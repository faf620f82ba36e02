package domain

import "time"

// UserCredential es la fila de credenciales de un usuario.
type UserCredential struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	Username           string     `json:"username"`
	PasswordHash       string     `json:"-"`
	EmailVerifiedAt    *time.Time `json:"email_verified_at,omitempty"`
	VerificationCode   string     `json:"-"`
	VerificationSentAt *time.Time `json:"-"`
	BannedAt           *time.Time `json:"-"`
	CreatedAt          time.Time  `json:"created_at"`
}

func (u UserCredential) EmailVerified() bool {
	return u.EmailVerifiedAt != nil
}

func (u UserCredential) Banned() bool {
	return u.BannedAt != nil
}
