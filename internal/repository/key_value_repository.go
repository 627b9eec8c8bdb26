package repository

import (
	"context"
	"database/sql"

	"github.com/supplysync/server/internal/models"
)

// KeyValueRepository persists cursors and flags
type KeyValueRepository struct {
	db DBTX
}

// NewKeyValueRepository creates a new KeyValueRepository
func NewKeyValueRepository(db DBTX) *KeyValueRepository {
	return &KeyValueRepository{db: db}
}

// GetInt returns the integer value of a key, or nil if it was never set
func (r *KeyValueRepository) GetInt(ctx context.Context, key models.KeyType) (*int64, error) {
	var value sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT value_int FROM key_value_store WHERE id = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !value.Valid {
		return nil, nil
	}
	return &value.Int64, nil
}

// GetCursor returns the integer value of a key, defaulting to 0
func (r *KeyValueRepository) GetCursor(ctx context.Context, key models.KeyType) (int64, error) {
	value, err := r.GetInt(ctx, key)
	if err != nil || value == nil {
		return 0, err
	}
	return *value, nil
}

// SetInt stores an integer value
func (r *KeyValueRepository) SetInt(ctx context.Context, key models.KeyType, value int64) error {
	query := `INSERT INTO key_value_store (id, value_int) VALUES ($1, $2)
			  ON CONFLICT (id) DO UPDATE SET value_int = EXCLUDED.value_int`
	_, err := r.db.ExecContext(ctx, query, key, value)
	return err
}

// GetString returns the string value of a key, or nil if it was never set
func (r *KeyValueRepository) GetString(ctx context.Context, key models.KeyType) (*string, error) {
	var value sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT value_string FROM key_value_store WHERE id = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !value.Valid {
		return nil, nil
	}
	return &value.String, nil
}

// SetString stores a string value
func (r *KeyValueRepository) SetString(ctx context.Context, key models.KeyType, value string) error {
	query := `INSERT INTO key_value_store (id, value_string) VALUES ($1, $2)
			  ON CONFLICT (id) DO UPDATE SET value_string = EXCLUDED.value_string`
	_, err := r.db.ExecContext(ctx, query, key, value)
	return err
}

// GetBool reads a flag stored as an integer
func (r *KeyValueRepository) GetBool(ctx context.Context, key models.KeyType) (bool, error) {
	value, err := r.GetInt(ctx, key)
	if err != nil || value == nil {
		return false, err
	}
	return *value != 0, nil
}

// SetBool stores a flag as an integer
func (r *KeyValueRepository) SetBool(ctx context.Context, key models.KeyType, value bool) error {
	var v int64
	if value {
		v = 1
	}
	return r.SetInt(ctx, key, v)
}
