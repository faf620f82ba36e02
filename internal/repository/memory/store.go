package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"stexs-auth/internal/domain"
	"stexs-auth/internal/repository"
)

// Store reproduce en memoria los predicados de las consultas pgx. Lo usan
// los tests de servicio y de HTTP.
type Store struct {
	mu      sync.Mutex
	txMu    sync.Mutex
	users   map[string]domain.UserCredential
	mfa     map[string]domain.MFAProfile
	refresh map[string]domain.RefreshTokenRecord
	clients map[string]domain.OAuth2Client
	codes   map[string]domain.OAuth2AuthorizationCode
	conns   map[string]domain.OAuth2Connection

	refreshInsertErr error
}

func NewStore() *Store {
	return &Store{
		users:   make(map[string]domain.UserCredential),
		mfa:     make(map[string]domain.MFAProfile),
		refresh: make(map[string]domain.RefreshTokenRecord),
		clients: make(map[string]domain.OAuth2Client),
		codes:   make(map[string]domain.OAuth2AuthorizationCode),
		conns:   make(map[string]domain.OAuth2Connection),
	}
}

type UserRepository struct{ db *Store }

func (r UserRepository) Create(_ context.Context, user domain.UserCredential) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.users[user.ID] = user
	return nil
}

func (r UserRepository) GetByID(_ context.Context, id string) (domain.UserCredential, bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	return u, ok, nil
}

func (r UserRepository) GetByIdentifier(_ context.Context, identifier string) (domain.UserCredential, bool, error) {
	key := strings.ToLower(identifier)
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, u := range r.db.users {
		if strings.ToLower(u.Email) == key || strings.ToLower(u.Username) == key {
			return u, true, nil
		}
	}
	return domain.UserCredential{}, false, nil
}

func (r UserRepository) UpdateVerificationCode(_ context.Context, id, codeHash string, sentAt time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok || u.EmailVerifiedAt != nil {
		return 0, nil
	}
	u.VerificationCode = codeHash
	u.VerificationSentAt = &sentAt
	r.db.users[id] = u
	return 1, nil
}

func (r UserRepository) MarkEmailVerified(_ context.Context, id, codeHash string, verifiedAt time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok || u.EmailVerifiedAt != nil || u.VerificationCode != codeHash {
		return 0, nil
	}
	u.EmailVerifiedAt = &verifiedAt
	u.VerificationCode = ""
	u.VerificationSentAt = nil
	r.db.users[id] = u
	return 1, nil
}

type MFARepository struct{ db *Store }

func (r MFARepository) Create(_ context.Context, userID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.mfa[userID] = domain.MFAProfile{UserID: userID}
	return nil
}

func (r MFARepository) Get(_ context.Context, userID string) (domain.MFAProfile, bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.mfa[userID]
	if !ok {
		return domain.MFAProfile{}, false, nil
	}
	p.Email = r.db.users[userID].Email
	return p, true, nil
}

// update aplica fn solo si cond se cumple sobre la fila actual.
func (r MFARepository) update(userID string, cond func(domain.MFAProfile) bool, fn func(*domain.MFAProfile)) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.mfa[userID]
	if !ok || !cond(p) {
		return 0, nil
	}
	fn(&p)
	r.db.mfa[userID] = p
	return 1, nil
}

func (r MFARepository) SetTOTPSecret(_ context.Context, userID, secret string) (int64, error) {
	return r.update(userID,
		func(p domain.MFAProfile) bool { return p.TOTPVerifiedAt == nil },
		func(p *domain.MFAProfile) { p.TOTPSecret = secret })
}

func (r MFARepository) MarkTOTPVerified(_ context.Context, userID string, verifiedAt time.Time) (int64, error) {
	return r.update(userID,
		func(p domain.MFAProfile) bool { return p.TOTPSecret != "" && p.TOTPVerifiedAt == nil },
		func(p *domain.MFAProfile) { p.TOTPVerifiedAt = &verifiedAt })
}

func (r MFARepository) DisableTOTP(_ context.Context, userID string) (int64, error) {
	return r.update(userID,
		func(p domain.MFAProfile) bool { return p.TOTPVerifiedAt != nil && p.EmailEnabled },
		func(p *domain.MFAProfile) { p.TOTPSecret, p.TOTPVerifiedAt = "", nil })
}

func (r MFARepository) SetEmailCode(_ context.Context, userID, codeHash string, sentAt time.Time) (int64, error) {
	return r.update(userID,
		func(domain.MFAProfile) bool { return true },
		func(p *domain.MFAProfile) { p.EmailCode, p.EmailCodeSentAt = codeHash, &sentAt })
}

func (r MFARepository) EnableEmail(_ context.Context, userID, codeHash string) (int64, error) {
	return r.update(userID,
		func(p domain.MFAProfile) bool { return !p.EmailEnabled && p.EmailCode == codeHash },
		func(p *domain.MFAProfile) { p.EmailEnabled, p.EmailCode, p.EmailCodeSentAt = true, "", nil })
}

func (r MFARepository) DisableEmail(_ context.Context, userID, codeHash string) (int64, error) {
	return r.update(userID,
		func(p domain.MFAProfile) bool {
			return p.EmailEnabled && p.EmailCode == codeHash && p.TOTPVerifiedAt != nil
		},
		func(p *domain.MFAProfile) { p.EmailEnabled, p.EmailCode, p.EmailCodeSentAt = false, "", nil })
}

func (r MFARepository) ConsumeEmailCode(_ context.Context, userID, codeHash string) (int64, error) {
	return r.update(userID,
		func(p domain.MFAProfile) bool { return p.EmailCode != "" && p.EmailCode == codeHash },
		func(p *domain.MFAProfile) { p.EmailCode, p.EmailCodeSentAt = "", nil })
}

type RefreshTokenRepository struct{ db *Store }

func (r RefreshTokenRepository) Insert(_ context.Context, rec domain.RefreshTokenRecord) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.refreshInsertErr != nil {
		return r.db.refreshInsertErr
	}
	r.db.refresh[rec.ID] = rec
	return nil
}

func (r RefreshTokenRepository) Rotate(_ context.Context, userID, oldToken, newToken string) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for id, rec := range r.db.refresh {
		if rec.Token == oldToken && rec.UserID == userID && rec.GrantType == domain.GrantAuthorizationCode && rec.SessionID == nil {
			rec.Token = newToken
			r.db.refresh[id] = rec
			return 1, nil
		}
	}
	return 0, nil
}

func (r RefreshTokenRepository) deleteWhere(match func(domain.RefreshTokenRecord) bool) int64 {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for id, rec := range r.db.refresh {
		if match(rec) {
			delete(r.db.refresh, id)
			n++
		}
	}
	return n
}

func (r RefreshTokenRepository) DeleteSessionToken(_ context.Context, userID, token, sessionID string) (int64, error) {
	return r.deleteWhere(func(rec domain.RefreshTokenRecord) bool {
		return rec.UserID == userID && rec.GrantType == domain.GrantPassword && rec.Token == token &&
			rec.SessionID != nil && *rec.SessionID == sessionID
	}), nil
}

func (r RefreshTokenRepository) DeleteSession(_ context.Context, userID, sessionID string) (int64, error) {
	return r.deleteWhere(func(rec domain.RefreshTokenRecord) bool {
		return rec.UserID == userID && rec.GrantType == domain.GrantPassword && rec.SessionID != nil && *rec.SessionID == sessionID
	}), nil
}

func (r RefreshTokenRepository) DeleteAllSessions(_ context.Context, userID string) (int64, error) {
	return r.deleteWhere(func(rec domain.RefreshTokenRecord) bool {
		return rec.UserID == userID && rec.GrantType == domain.GrantPassword
	}), nil
}

type OAuth2Repository struct{ db *Store }

func (r OAuth2Repository) CreateClient(_ context.Context, client domain.OAuth2Client) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.clients[client.ClientID] = client
	return nil
}

func (r OAuth2Repository) GetClient(_ context.Context, clientID string) (domain.OAuth2Client, bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.clients[clientID]
	return c, ok, nil
}

func (r OAuth2Repository) GetClientByRedirect(_ context.Context, clientID, redirectURL string) (domain.OAuth2Client, bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.clients[clientID]
	if !ok || c.RedirectURL != redirectURL {
		return domain.OAuth2Client{}, false, nil
	}
	return c, true, nil
}

func (r OAuth2Repository) ConnectionExists(_ context.Context, userID, clientRowID string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, c := range r.db.conns {
		if c.UserID == userID && c.ClientID == clientRowID {
			return true, nil
		}
	}
	return false, nil
}

func (r OAuth2Repository) UpsertAuthorizationCode(_ context.Context, code domain.OAuth2AuthorizationCode) (domain.OAuth2AuthorizationCode, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for id, existing := range r.db.codes {
		if existing.UserID == code.UserID && existing.ClientID == code.ClientID {
			existing.Code, existing.Scopes, existing.CreatedAt = code.Code, code.Scopes, code.CreatedAt
			r.db.codes[id] = existing
			return existing, nil
		}
	}
	r.db.codes[code.ID] = code
	return code, nil
}

func (r OAuth2Repository) ConsumeAuthorizationCode(_ context.Context, code, clientRowID string) (domain.OAuth2AuthorizationCode, bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for id, c := range r.db.codes {
		if c.Code == code && c.ClientID == clientRowID {
			delete(r.db.codes, id)
			return c, true, nil
		}
	}
	return domain.OAuth2AuthorizationCode{}, false, nil
}

func (r OAuth2Repository) CreateConnection(_ context.Context, conn domain.OAuth2Connection) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.conns {
		if existing.UserID == conn.UserID && existing.ClientID == conn.ClientID {
			return &pgconn.PgError{Code: "23505", ConstraintName: "oauth2_connections_user_id_client_id_key"}
		}
	}
	r.db.conns[conn.ID] = conn
	return nil
}

func (r OAuth2Repository) ListConnections(_ context.Context, userID string) ([]domain.OAuth2Connection, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.OAuth2Connection
	for _, c := range r.db.conns {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b domain.OAuth2Connection) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// deleteConnection borra la conexion y, como ON DELETE CASCADE, sus refresh tokens.
func (r OAuth2Repository) deleteConnection(id string) {
	delete(r.db.conns, id)
	for rid, rec := range r.db.refresh {
		if rec.ConnectionID != nil && *rec.ConnectionID == id {
			delete(r.db.refresh, rid)
		}
	}
}

func (r OAuth2Repository) DeleteConnection(_ context.Context, id, userID string) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.conns[id]
	if !ok || c.UserID != userID {
		return 0, nil
	}
	r.deleteConnection(id)
	return 1, nil
}

func (r OAuth2Repository) DeleteConnectionByRefreshToken(_ context.Context, userID, token string) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, rec := range r.db.refresh {
		if rec.Token == token && rec.UserID == userID && rec.GrantType == domain.GrantAuthorizationCode && rec.ConnectionID != nil {
			if _, ok := r.db.conns[*rec.ConnectionID]; !ok {
				return 0, nil
			}
			r.deleteConnection(*rec.ConnectionID)
			return 1, nil
		}
	}
	return 0, nil
}

// RefreshRows lista las filas de refresh token de un usuario para un grant.
func (db *Store) RefreshRows(userID string, grant domain.GrantType) []domain.RefreshTokenRecord {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []domain.RefreshTokenRecord
	for _, rec := range db.refresh {
		if rec.UserID == userID && rec.GrantType == grant {
			out = append(out, rec)
		}
	}
	return out
}

func (db *Store) Users() UserRepository                 { return UserRepository{db} }
func (db *Store) MFA() MFARepository                    { return MFARepository{db} }
func (db *Store) RefreshTokens() RefreshTokenRepository { return RefreshTokenRepository{db} }
func (db *Store) OAuth2() OAuth2Repository              { return OAuth2Repository{db} }

// PutUser reemplaza la fila del usuario tal cual.
func (db *Store) PutUser(user domain.UserCredential) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users[user.ID] = user
}

// FailRefreshInserts hace fallar los Insert de refresh token con err.
func (db *Store) FailRefreshInserts(err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.refreshInsertErr = err
}

func (db *Store) CountRefreshTokens() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.refresh)
}

func (db *Store) CountAuthorizationCodes() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.codes)
}

func (db *Store) CountConnections() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.conns)
}

var (
	_ repository.UserRepository         = UserRepository{}
	_ repository.MFARepository          = MFARepository{}
	_ repository.RefreshTokenRepository = RefreshTokenRepository{}
	_ repository.OAuth2Repository       = OAuth2Repository{}
)
