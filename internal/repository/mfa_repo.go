package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stexs-auth/internal/db"
	"stexs-auth/internal/domain"
)

// MFARepository persiste el perfil de segundo factor. Cada mutacion es una
// actualizacion condicional; el llamador interpreta cero filas afectadas.
type MFARepository interface {
	Create(ctx context.Context, userID string) error
	Get(ctx context.Context, userID string) (domain.MFAProfile, bool, error)
	SetTOTPSecret(ctx context.Context, userID, secret string) (int64, error)
	MarkTOTPVerified(ctx context.Context, userID string, verifiedAt time.Time) (int64, error)
	DisableTOTP(ctx context.Context, userID string) (int64, error)
	SetEmailCode(ctx context.Context, userID, codeHash string, sentAt time.Time) (int64, error)
	EnableEmail(ctx context.Context, userID, codeHash string) (int64, error)
	DisableEmail(ctx context.Context, userID, codeHash string) (int64, error)
	ConsumeEmailCode(ctx context.Context, userID, codeHash string) (int64, error)
}

type PgMFARepository struct {
	pool *pgxpool.Pool
}

func NewPgMFARepository(pool *pgxpool.Pool) *PgMFARepository {
	return &PgMFARepository{pool: pool}
}

func (r *PgMFARepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgMFARepository) Create(ctx context.Context, userID string) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `INSERT INTO mfa_profiles (user_id) VALUES ($1)`, userID)
	return err
}

func (r *PgMFARepository) Get(ctx context.Context, userID string) (domain.MFAProfile, bool, error) {
	const query = `
		SELECT m.user_id, u.email, m.email_enabled, COALESCE(m.email_code, ''), m.email_code_sent_at,
			COALESCE(m.totp_secret, ''), m.totp_verified_at
		FROM mfa_profiles AS m
		INNER JOIN users AS u ON u.id = m.user_id
		WHERE m.user_id = $1
	`
	var p domain.MFAProfile
	err := db.Conn(ctx, r.pool).QueryRow(ctx, query, userID).Scan(
		&p.UserID,
		&p.Email,
		&p.EmailEnabled,
		&p.EmailCode,
		&p.EmailCodeSentAt,
		&p.TOTPSecret,
		&p.TOTPVerifiedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.MFAProfile{}, false, nil
	}
	if err != nil {
		return domain.MFAProfile{}, false, err
	}
	return p, true, nil
}

func (r *PgMFARepository) SetTOTPSecret(ctx context.Context, userID, secret string) (int64, error) {
	return r.exec(ctx, `
		UPDATE mfa_profiles SET totp_secret = $2
		WHERE user_id = $1 AND totp_verified_at IS NULL
	`, userID, secret)
}

func (r *PgMFARepository) MarkTOTPVerified(ctx context.Context, userID string, verifiedAt time.Time) (int64, error) {
	return r.exec(ctx, `
		UPDATE mfa_profiles SET totp_verified_at = $2
		WHERE user_id = $1 AND totp_secret IS NOT NULL AND totp_verified_at IS NULL
	`, userID, verifiedAt)
}

// DisableTOTP exige que el email siga activo para no dejar al usuario sin metodos.
func (r *PgMFARepository) DisableTOTP(ctx context.Context, userID string) (int64, error) {
	return r.exec(ctx, `
		UPDATE mfa_profiles SET totp_secret = NULL, totp_verified_at = NULL
		WHERE user_id = $1 AND totp_verified_at IS NOT NULL AND email_enabled = TRUE
	`, userID)
}

func (r *PgMFARepository) SetEmailCode(ctx context.Context, userID, codeHash string, sentAt time.Time) (int64, error) {
	return r.exec(ctx, `
		UPDATE mfa_profiles SET email_code = $2, email_code_sent_at = $3
		WHERE user_id = $1
	`, userID, codeHash, sentAt)
}

func (r *PgMFARepository) EnableEmail(ctx context.Context, userID, codeHash string) (int64, error) {
	return r.exec(ctx, `
		UPDATE mfa_profiles SET email_enabled = TRUE, email_code = NULL, email_code_sent_at = NULL
		WHERE user_id = $1 AND email_enabled = FALSE AND email_code = $2
	`, userID, codeHash)
}

// DisableEmail exige que TOTP siga verificado para no dejar al usuario sin metodos.
func (r *PgMFARepository) DisableEmail(ctx context.Context, userID, codeHash string) (int64, error) {
	return r.exec(ctx, `
		UPDATE mfa_profiles SET email_enabled = FALSE, email_code = NULL, email_code_sent_at = NULL
		WHERE user_id = $1 AND email_enabled = TRUE AND email_code = $2 AND totp_verified_at IS NOT NULL
	`, userID, codeHash)
}

func (r *PgMFARepository) ConsumeEmailCode(ctx context.Context, userID, codeHash string) (int64, error) {
	return r.exec(ctx, `
		UPDATE mfa_profiles SET email_code = NULL, email_code_sent_at = NULL
		WHERE user_id = $1 AND email_code = $2
	`, userID, codeHash)
}
