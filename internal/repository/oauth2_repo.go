package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stexs-auth/internal/db"
	"stexs-auth/internal/domain"
)

// OAuth2Repository persiste clientes, codigos de autorizacion y conexiones.
type OAuth2Repository interface {
	CreateClient(ctx context.Context, client domain.OAuth2Client) error
	GetClient(ctx context.Context, clientID string) (domain.OAuth2Client, bool, error)
	GetClientByRedirect(ctx context.Context, clientID, redirectURL string) (domain.OAuth2Client, bool, error)
	ConnectionExists(ctx context.Context, userID, clientRowID string) (bool, error)
	UpsertAuthorizationCode(ctx context.Context, code domain.OAuth2AuthorizationCode) (domain.OAuth2AuthorizationCode, error)
	ConsumeAuthorizationCode(ctx context.Context, code, clientRowID string) (domain.OAuth2AuthorizationCode, bool, error)
	CreateConnection(ctx context.Context, conn domain.OAuth2Connection) error
	ListConnections(ctx context.Context, userID string) ([]domain.OAuth2Connection, error)
	DeleteConnection(ctx context.Context, id, userID string) (int64, error)
	DeleteConnectionByRefreshToken(ctx context.Context, userID, token string) (int64, error)
}

type PgOAuth2Repository struct {
	pool *pgxpool.Pool
}

func NewPgOAuth2Repository(pool *pgxpool.Pool) *PgOAuth2Repository {
	return &PgOAuth2Repository{pool: pool}
}

const clientSelect = `
	SELECT c.id, c.client_id, c.client_secret, c.name, c.redirect_url, c.organization_id, c.created_at,
		COALESCE(array_agg(s.scope ORDER BY s.scope) FILTER (WHERE s.type = 'user'), '{}'),
		COALESCE(array_agg(s.scope ORDER BY s.scope) FILTER (WHERE s.type = 'client'), '{}')
	FROM oauth2_clients AS c
	LEFT JOIN oauth2_client_scopes AS s ON s.client_id = c.id
`

func scanClient(row pgx.Row) (domain.OAuth2Client, bool, error) {
	var c domain.OAuth2Client
	err := row.Scan(
		&c.ID,
		&c.ClientID,
		&c.ClientSecret,
		&c.Name,
		&c.RedirectURL,
		&c.OrganizationID,
		&c.CreatedAt,
		&c.UserScopes,
		&c.ClientScopes,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.OAuth2Client{}, false, nil
	}
	if err != nil {
		return domain.OAuth2Client{}, false, err
	}
	return c, true, nil
}

// CreateClient inserta el cliente y sus scopes en una sola transaccion.
func (r *PgOAuth2Repository) CreateClient(ctx context.Context, client domain.OAuth2Client) error {
	return db.NewTxManager(r.pool).WithinTx(ctx, func(ctx context.Context) error {
		conn := db.Conn(ctx, r.pool)
		_, err := conn.Exec(ctx, `
			INSERT INTO oauth2_clients (id, client_id, client_secret, name, redirect_url, organization_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, client.ID, client.ClientID, client.ClientSecret, client.Name, client.RedirectURL, client.OrganizationID, client.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert client: %w", err)
		}
		scopes := map[domain.ScopeType][]string{
			domain.ScopeTypeUser:   client.UserScopes,
			domain.ScopeTypeClient: client.ClientScopes,
		}
		for scopeType, names := range scopes {
			for _, name := range names {
				if _, err := conn.Exec(ctx, `
					INSERT INTO oauth2_client_scopes (client_id, scope, type) VALUES ($1, $2, $3)
					ON CONFLICT DO NOTHING
				`, client.ID, name, string(scopeType)); err != nil {
					return fmt.Errorf("insert client scope: %w", err)
				}
			}
		}
		return nil
	})
}

func (r *PgOAuth2Repository) GetClient(ctx context.Context, clientID string) (domain.OAuth2Client, bool, error) {
	query := clientSelect + ` WHERE c.client_id = $1 GROUP BY c.id`
	return scanClient(db.Conn(ctx, r.pool).QueryRow(ctx, query, clientID))
}

func (r *PgOAuth2Repository) GetClientByRedirect(ctx context.Context, clientID, redirectURL string) (domain.OAuth2Client, bool, error) {
	query := clientSelect + ` WHERE c.client_id = $1 AND c.redirect_url = $2 GROUP BY c.id`
	return scanClient(db.Conn(ctx, r.pool).QueryRow(ctx, query, clientID, redirectURL))
}

func (r *PgOAuth2Repository) ConnectionExists(ctx context.Context, userID, clientRowID string) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM oauth2_connections WHERE user_id = $1 AND client_id = $2)
	`, userID, clientRowID).Scan(&exists)
	return exists, err
}

// UpsertAuthorizationCode reemplaza cualquier codigo previo sin canjear del par (usuario, cliente).
func (r *PgOAuth2Repository) UpsertAuthorizationCode(ctx context.Context, code domain.OAuth2AuthorizationCode) (domain.OAuth2AuthorizationCode, error) {
	const query = `
		INSERT INTO oauth2_authorization_codes (id, code, user_id, client_id, scopes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, client_id)
		DO UPDATE SET code = EXCLUDED.code, scopes = EXCLUDED.scopes, created_at = EXCLUDED.created_at
		RETURNING id, code, created_at
	`
	err := db.Conn(ctx, r.pool).QueryRow(ctx, query,
		code.ID,
		code.Code,
		code.UserID,
		code.ClientID,
		code.Scopes,
		code.CreatedAt,
	).Scan(&code.ID, &code.Code, &code.CreatedAt)
	return code, err
}

// ConsumeAuthorizationCode borra el codigo y devuelve la fila borrada; a lo sumo
// un llamador concurrente la obtiene.
func (r *PgOAuth2Repository) ConsumeAuthorizationCode(ctx context.Context, code, clientRowID string) (domain.OAuth2AuthorizationCode, bool, error) {
	const query = `
		DELETE FROM oauth2_authorization_codes
		WHERE code = $1 AND client_id = $2
		RETURNING id, code, user_id, client_id, scopes, created_at
	`
	var c domain.OAuth2AuthorizationCode
	err := db.Conn(ctx, r.pool).QueryRow(ctx, query, code, clientRowID).Scan(
		&c.ID,
		&c.Code,
		&c.UserID,
		&c.ClientID,
		&c.Scopes,
		&c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.OAuth2AuthorizationCode{}, false, nil
	}
	if err != nil {
		return domain.OAuth2AuthorizationCode{}, false, err
	}
	return c, true, nil
}

func (r *PgOAuth2Repository) CreateConnection(ctx context.Context, conn domain.OAuth2Connection) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO oauth2_connections (id, user_id, client_id, scopes, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, conn.ID, conn.UserID, conn.ClientID, conn.Scopes, conn.CreatedAt)
	return err
}

func (r *PgOAuth2Repository) ListConnections(ctx context.Context, userID string) ([]domain.OAuth2Connection, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, user_id, client_id, scopes, created_at
		FROM oauth2_connections
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OAuth2Connection
	for rows.Next() {
		var c domain.OAuth2Connection
		if err := rows.Scan(&c.ID, &c.UserID, &c.ClientID, &c.Scopes, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteConnection borra la conexion; sus refresh tokens caen en cascada.
func (r *PgOAuth2Repository) DeleteConnection(ctx context.Context, id, userID string) (int64, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		DELETE FROM oauth2_connections WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgOAuth2Repository) DeleteConnectionByRefreshToken(ctx context.Context, userID, token string) (int64, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		DELETE FROM oauth2_connections AS c
		USING refresh_tokens AS t
		WHERE t.connection_id = c.id
			AND t.token = $2
			AND t.user_id = $1
			AND t.grant_type = 'authorization_code'
	`, userID, token)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
