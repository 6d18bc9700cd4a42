package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/staybook/hotel-server-go/internal/model"
)

type AuthSessionRepository interface {
	FindActiveByTokenHash(ctx context.Context, tokenHash string) (*model.AuthSession, error)
	Create(ctx context.Context, params model.CreateAuthSessionParams) (*model.AuthSession, error)
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) AuthSessionRepository
}

type authSessionRepo struct {
	db sqlxDB
}

func NewAuthSessionRepository(db *sqlx.DB) AuthSessionRepository {
	return &authSessionRepo{db: db}
}

func (r *authSessionRepo) WithTx(tx *sqlx.Tx) AuthSessionRepository {
	return &authSessionRepo{db: tx}
}

func (r *authSessionRepo) FindActiveByTokenHash(ctx context.Context, tokenHash string) (*model.AuthSession, error) {
	var session model.AuthSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM auth_sessions
		WHERE token_hash = $1 AND expires_at > NOW()
	`, tokenHash)
	return HandleNotFound(&session, err)
}

func (r *authSessionRepo) Create(ctx context.Context, params model.CreateAuthSessionParams) (*model.AuthSession, error) {
	var session model.AuthSession
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO auth_sessions (id, token_hash, user_id, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, params.ID, params.TokenHash, params.UserID, params.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *authSessionRepo) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM auth_sessions WHERE token_hash = $1
	`, tokenHash)
	return err
}

func (r *authSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM auth_sessions WHERE expires_at < NOW()
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
