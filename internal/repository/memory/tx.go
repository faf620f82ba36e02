package memory

import (
	"context"
	"maps"

	"stexs-auth/internal/domain"
)

type txKey struct{}

type snapshot struct {
	users   map[string]domain.UserCredential
	mfa     map[string]domain.MFAProfile
	refresh map[string]domain.RefreshTokenRecord
	clients map[string]domain.OAuth2Client
	codes   map[string]domain.OAuth2AuthorizationCode
	conns   map[string]domain.OAuth2Connection
}

// WithinTx ejecuta fn de forma serializada y, si devuelve error, restaura el
// estado previo. Las llamadas anidadas se unen a la transaccion en curso.
func (db *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	db.txMu.Lock()
	defer db.txMu.Unlock()

	before := db.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, struct{}{})); err != nil {
		db.restore(before)
		return err
	}
	return nil
}

func (db *Store) snapshot() snapshot {
	db.mu.Lock()
	defer db.mu.Unlock()
	return snapshot{
		users:   maps.Clone(db.users),
		mfa:     maps.Clone(db.mfa),
		refresh: maps.Clone(db.refresh),
		clients: maps.Clone(db.clients),
		codes:   maps.Clone(db.codes),
		conns:   maps.Clone(db.conns),
	}
}

func (db *Store) restore(s snapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users, db.mfa, db.refresh = s.users, s.mfa, s.refresh
	db.clients, db.codes, db.conns = s.clients, s.codes, s.conns
}
