package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/set-night/sofia/internal/domain"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type BindingRepo struct {
	db DBTX
}

func NewBindingRepo(db DBTX) *BindingRepo {
	return &BindingRepo{db: db}
}

const getBinding = `SELECT chat_id, session_id, temporary, mode FROM chat_bindings WHERE chat_id = $1`

func (r *BindingRepo) GetBinding(ctx context.Context, chatID int64) (domain.ChatBinding, bool, error) {
	var (
		b    domain.ChatBinding
		mode string
	)
	err := r.db.QueryRow(ctx, getBinding, chatID).Scan(&b.ChatID, &b.SessionID, &b.Temporary, &mode)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ChatBinding{}, false, nil
	}
	if err != nil {
		return domain.ChatBinding{}, false, fmt.Errorf("get binding: %w", err)
	}
	b.Mode = domain.ParseMode(mode)
	return b, true, nil
}

const saveBinding = `
INSERT INTO chat_bindings (chat_id, session_id, temporary, mode, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (chat_id) DO UPDATE
SET session_id = EXCLUDED.session_id,
    temporary  = EXCLUDED.temporary,
    mode       = EXCLUDED.mode,
    updated_at = NOW()`

func (r *BindingRepo) SaveBinding(ctx context.Context, b domain.ChatBinding) error {
	if _, err := r.db.Exec(ctx, saveBinding, b.ChatID, b.SessionID, b.Temporary, string(b.Mode)); err != nil {
		return fmt.Errorf("save binding: %w", err)
	}
	return nil
}
