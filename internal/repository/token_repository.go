package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"

	"erms/api/internal/models"
)

// TokenMutator receives the current refresh-token hash list (oldest first) and
// returns the list to persist. It runs while the user row is locked.
type TokenMutator func(hashes []string) []string

func (r *UserRepository) GetByIDWithTokens(ctx context.Context, id string) (models.User, error) {
	query := `SELECT ` + userColumns + `, refresh_token_hashes FROM users WHERE id = $1`

	var user models.User
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.Role,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.RefreshTokenHashes,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

// MutateRefreshTokens applies fn as one atomic read-modify-write. The row lock
// serializes concurrent logins, refreshes and logouts of the same user.
func (r *UserRepository) MutateRefreshTokens(ctx context.Context, userID string, fn TokenMutator) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const selectQuery = `SELECT refresh_token_hashes FROM users WHERE id = $1 FOR UPDATE`
	var hashes []string
	if err := tx.QueryRow(ctx, selectQuery, userID).Scan(&hashes); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lock token list: %w", err)
	}

	next := fn(slices.Clone(hashes))
	if next == nil {
		next = []string{}
	}

	const updateQuery = `UPDATE users SET refresh_token_hashes = $2 WHERE id = $1`
	if _, err := tx.Exec(ctx, updateQuery, userID, next); err != nil {
		return fmt.Errorf("write token list: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *UserRepository) ClearRefreshTokens(ctx context.Context, userID string) error {
	const query = `UPDATE users SET refresh_token_hashes = '{}' WHERE id = $1`
	return r.execOne(ctx, query, userID)
}

// ClearRefreshTokensForInactive revokes leftover sessions of deactivated users
// and returns how many users were affected.
func (r *UserRepository) ClearRefreshTokensForInactive(ctx context.Context) (int64, error) {
	const query = `
		UPDATE users
		SET refresh_token_hashes = '{}'
		WHERE is_active = FALSE AND cardinality(refresh_token_hashes) > 0
	`
	cmd, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
