package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"stexs-auth/internal/db"
	"stexs-auth/internal/domain"
)

// RefreshTokenRepository persiste los jti de refresh tokens emitidos.
type RefreshTokenRepository interface {
	Insert(ctx context.Context, rec domain.RefreshTokenRecord) error
	Rotate(ctx context.Context, userID, oldToken, newToken string) (int64, error)
	DeleteSessionToken(ctx context.Context, userID, token, sessionID string) (int64, error)
	DeleteSession(ctx context.Context, userID, sessionID string) (int64, error)
	DeleteAllSessions(ctx context.Context, userID string) (int64, error)
}

type PgRefreshTokenRepository struct {
	pool *pgxpool.Pool
}

func NewPgRefreshTokenRepository(pool *pgxpool.Pool) *PgRefreshTokenRepository {
	return &PgRefreshTokenRepository{pool: pool}
}

func (r *PgRefreshTokenRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgRefreshTokenRepository) Insert(ctx context.Context, rec domain.RefreshTokenRecord) error {
	const query = `
		INSERT INTO refresh_tokens (id, token, user_id, grant_type, session_id, connection_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`
	_, err := db.Conn(ctx, r.pool).Exec(ctx, query,
		rec.ID,
		rec.Token,
		rec.UserID,
		string(rec.GrantType),
		rec.SessionID,
		rec.ConnectionID,
		rec.CreatedAt,
	)
	return err
}

// Rotate reescribe el jti de una fila OAuth2 conservando su identidad.
func (r *PgRefreshTokenRepository) Rotate(ctx context.Context, userID, oldToken, newToken string) (int64, error) {
	return r.exec(ctx, `
		UPDATE refresh_tokens
		SET token = $3, updated_at = CURRENT_TIMESTAMP
		WHERE token = $2 AND user_id = $1 AND grant_type = 'authorization_code' AND session_id IS NULL
	`, userID, oldToken, newToken)
}

func (r *PgRefreshTokenRepository) DeleteSessionToken(ctx context.Context, userID, token, sessionID string) (int64, error) {
	return r.exec(ctx, `
		DELETE FROM refresh_tokens
		WHERE user_id = $1 AND grant_type = 'password' AND token = $2 AND session_id = $3
	`, userID, token, sessionID)
}

func (r *PgRefreshTokenRepository) DeleteSession(ctx context.Context, userID, sessionID string) (int64, error) {
	return r.exec(ctx, `
		DELETE FROM refresh_tokens
		WHERE user_id = $1 AND grant_type = 'password' AND session_id = $2
	`, userID, sessionID)
}

func (r *PgRefreshTokenRepository) DeleteAllSessions(ctx context.Context, userID string) (int64, error) {
	return r.exec(ctx, `
		DELETE FROM refresh_tokens
		WHERE user_id = $1 AND grant_type = 'password'
	`, userID)
}
