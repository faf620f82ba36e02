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

// UserRepository define el contrato de persistencia para credenciales de usuario.
type UserRepository interface {
	Create(ctx context.Context, user domain.UserCredential) error
	GetByID(ctx context.Context, id string) (domain.UserCredential, bool, error)
	GetByIdentifier(ctx context.Context, identifier string) (domain.UserCredential, bool, error)
	UpdateVerificationCode(ctx context.Context, id, codeHash string, sentAt time.Time) (int64, error)
	MarkEmailVerified(ctx context.Context, id, codeHash string, verifiedAt time.Time) (int64, error)
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

const userColumns = `id, email, username, password_hash, email_verified_at,
	COALESCE(verification_code, ''), verification_sent_at, banned_at, created_at`

func scanUser(row pgx.Row) (domain.UserCredential, bool, error) {
	var u domain.UserCredential
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Username,
		&u.PasswordHash,
		&u.EmailVerifiedAt,
		&u.VerificationCode,
		&u.VerificationSentAt,
		&u.BannedAt,
		&u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserCredential{}, false, nil
	}
	if err != nil {
		return domain.UserCredential{}, false, err
	}
	return u, true, nil
}

func (r *PgUserRepository) Create(ctx context.Context, user domain.UserCredential) error {
	const query = `
		INSERT INTO users (id, email, username, password_hash, verification_code, verification_sent_at, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
	`
	_, err := db.Conn(ctx, r.pool).Exec(ctx, query,
		user.ID,
		user.Email,
		user.Username,
		user.PasswordHash,
		user.VerificationCode,
		user.VerificationSentAt,
		user.CreatedAt,
	)
	return err
}

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.UserCredential, bool, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(db.Conn(ctx, r.pool).QueryRow(ctx, query, id))
}

// GetByIdentifier busca por email o username sin distinguir mayusculas.
func (r *PgUserRepository) GetByIdentifier(ctx context.Context, identifier string) (domain.UserCredential, bool, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1) OR lower(username) = lower($1) LIMIT 1`
	return scanUser(db.Conn(ctx, r.pool).QueryRow(ctx, query, identifier))
}

func (r *PgUserRepository) UpdateVerificationCode(ctx context.Context, id, codeHash string, sentAt time.Time) (int64, error) {
	const query = `
		UPDATE users
		SET verification_code = $2, verification_sent_at = $3
		WHERE id = $1 AND email_verified_at IS NULL
	`
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, query, id, codeHash, sentAt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MarkEmailVerified solo afecta la fila si el codigo presentado sigue siendo el vigente.
func (r *PgUserRepository) MarkEmailVerified(ctx context.Context, id, codeHash string, verifiedAt time.Time) (int64, error) {
	const query = `
		UPDATE users
		SET email_verified_at = $3, verification_code = NULL, verification_sent_at = NULL
		WHERE id = $1 AND verification_code = $2 AND email_verified_at IS NULL
	`
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, query, id, codeHash, verifiedAt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
