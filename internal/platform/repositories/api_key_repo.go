package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"dealflow/internal/platform/models"
)

type APIKeyRepository struct {
	db *sql.DB
}

func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

const apiKeyColumns = `id, user_id, name, key_hash, key_prefix, created_at, last_used_at, deleted_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *APIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	return insertAPIKey(ctx, r.db, key)
}

func insertAPIKey(ctx context.Context, ex execer, key *models.APIKey) error {
	if key.ID == "" {
		key.ID = "key_" + uuid.NewString()
	}
	if key.CreatedAt == 0 {
		key.CreatedAt = time.Now().Unix()
	}

	_, err := ex.ExecContext(ctx, `
		INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix, key.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetActiveByHash returns the live key with the given hash, or nil.
func (r *APIKeyRepository) GetActiveByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = ? AND deleted_at IS NULL`, hash)
	return scanAPIKey(row)
}

// GetActiveByID returns the user's live key with the given id, or nil.
func (r *APIKeyRepository) GetActiveByID(ctx context.Context, userID, id string) (*models.APIKey, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE id = ? AND user_id = ? AND deleted_at IS NULL`, id, userID)
	return scanAPIKey(row)
}

// NameInUse is a fast path for a friendly error; idx_api_keys_user_name_live is what enforces it.
func (r *APIKeyRepository) NameInUse(ctx context.Context, userID, name string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM api_keys WHERE user_id = ? AND name = ? AND deleted_at IS NULL`, userID, name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *APIKeyRepository) ListActiveByUser(ctx context.Context, userID string) ([]*models.APIKey, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE user_id = ? AND deleted_at IS NULL ORDER BY created_at DESC, name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := []*models.APIKey{}
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (r *APIKeyRepository) SoftDelete(ctx context.Context, userID, id string) error {
	return softDeleteAPIKey(ctx, r.db, userID, id)
}

func softDeleteAPIKey(ctx context.Context, ex execer, userID, id string) error {
	res, err := ex.ExecContext(ctx, `UPDATE api_keys SET deleted_at = ? WHERE id = ? AND user_id = ? AND deleted_at IS NULL`, time.Now().Unix(), id, userID)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// Rotate soft-deletes oldID and inserts replacement in one transaction.
func (r *APIKeyRepository) Rotate(ctx context.Context, userID, oldID string, replacement *models.APIKey) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := softDeleteAPIKey(ctx, tx, userID, oldID); err != nil {
		return err
	}
	if err := insertAPIKey(ctx, tx, replacement); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *APIKeyRepository) UpdateLastUsed(ctx context.Context, id string, timestamp int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = ? WHERE id = ?`, timestamp, id)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAPIKey(s scanner) (*models.APIKey, error) {
	var k models.APIKey
	var lastUsed, deleted sql.NullInt64

	err := s.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.CreatedAt, &lastUsed, &deleted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if lastUsed.Valid {
		k.LastUsedAt = &lastUsed.Int64
	}
	if deleted.Valid {
		k.DeletedAt = &deleted.Int64
	}
	return &k, nil
}
