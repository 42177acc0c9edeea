package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/devicekeep/server/internal/model"
	"github.com/google/uuid"
)

// DeviceTokenRepo defines the interface for per-device refresh token storage
type DeviceTokenRepo interface {
	Create(ctx context.Context, accountID uuid.UUID, deviceID, tokenHash string, expiresAt time.Time) (model.DeviceToken, error)
	ReplaceForDevice(ctx context.Context, accountID uuid.UUID, deviceID, tokenHash string, expiresAt time.Time) (model.DeviceToken, error)
	FindByAccountAndDevice(ctx context.Context, accountID uuid.UUID, deviceID string) (model.DeviceToken, error)
	UpdateByID(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error
	DeleteByAccountAndDevice(ctx context.Context, accountID uuid.UUID, deviceID string) error
	DeleteAllByAccount(ctx context.Context, accountID uuid.UUID) error
	DeleteByID(ctx context.Context, id uuid.UUID) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type deviceTokenRepo struct {
	db *sql.DB
}

// NewDeviceTokenRepo creates a new DeviceTokenRepo instance
func NewDeviceTokenRepo(db *sql.DB) DeviceTokenRepo {
	return &deviceTokenRepo{db: db}
}

type execQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertDeviceToken(ctx context.Context, q execQueryer, accountID uuid.UUID, deviceID, tokenHash string, expiresAt time.Time) (model.DeviceToken, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return model.DeviceToken{}, fmt.Errorf("generate device token id: %w", err)
	}

	var createdAt time.Time
	err = q.QueryRowContext(ctx, `
		INSERT INTO device_tokens (id, account_id, device_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, id, accountID, deviceID, tokenHash, expiresAt.UTC()).Scan(&createdAt)
	if err != nil {
		return model.DeviceToken{}, fmt.Errorf("insert device token: %w", err)
	}

	return model.DeviceToken{
		ID:        id,
		AccountID: accountID,
		DeviceID:  deviceID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: createdAt.UTC(),
	}, nil
}

// Create inserts a device token row. Fails if the (account, device) pair already has one.
func (r *deviceTokenRepo) Create(ctx context.Context, accountID uuid.UUID, deviceID, tokenHash string, expiresAt time.Time) (model.DeviceToken, error) {
	return insertDeviceToken(ctx, r.db, accountID, deviceID, tokenHash, expiresAt)
}

// ReplaceForDevice removes any token for the (account, device) pair and inserts a new one
// in a single transaction, so a concurrent reader sees either the old row or the new one.
func (r *deviceTokenRepo) ReplaceForDevice(ctx context.Context, accountID uuid.UUID, deviceID, tokenHash string, expiresAt time.Time) (model.DeviceToken, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.DeviceToken{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Serialize concurrent logins for the same pair; released on COMMIT/ROLLBACK.
	_, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`, accountID.String(), deviceID)
	if err != nil {
		return model.DeviceToken{}, fmt.Errorf("advisory lock: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM device_tokens
		WHERE account_id = $1 AND device_id = $2
	`, accountID, deviceID)
	if err != nil {
		return model.DeviceToken{}, fmt.Errorf("delete existing device token: %w", err)
	}

	token, err := insertDeviceToken(ctx, tx, accountID, deviceID, tokenHash, expiresAt)
	if err != nil {
		return model.DeviceToken{}, err
	}

	if err := tx.Commit(); err != nil {
		return model.DeviceToken{}, fmt.Errorf("commit: %w", err)
	}
	return token, nil
}

// FindByAccountAndDevice returns the token row for the pair regardless of expiry or revocation
func (r *deviceTokenRepo) FindByAccountAndDevice(ctx context.Context, accountID uuid.UUID, deviceID string) (model.DeviceToken, error) {
	var t model.DeviceToken
	var idStr, accountIDStr string
	var revokedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT id, account_id, device_id, token_hash, expires_at, revoked_at, created_at
		FROM device_tokens
		WHERE account_id = $1 AND device_id = $2
	`, accountID, deviceID).Scan(
		&idStr,
		&accountIDStr,
		&t.DeviceID,
		&t.TokenHash,
		&t.ExpiresAt,
		&revokedAt,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.DeviceToken{}, ErrNotFound
		}
		return model.DeviceToken{}, fmt.Errorf("find device token: %w", err)
	}

	t.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.DeviceToken{}, fmt.Errorf("parse device token ID: %w", err)
	}
	t.AccountID, err = uuid.Parse(accountIDStr)
	if err != nil {
		return model.DeviceToken{}, fmt.Errorf("parse account ID: %w", err)
	}
	t.ExpiresAt = t.ExpiresAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	t.RevokedAt = nullTimePtr(revokedAt)
	return t, nil
}

// UpdateByID rotates the hash and expiry of an existing row in place
func (r *deviceTokenRepo) UpdateByID(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE device_tokens
		SET token_hash = $2, expires_at = $3
		WHERE id = $1
	`, id, tokenHash, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("rotate device token: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByAccountAndDevice removes the token for one device. Missing rows are not an error.
func (r *deviceTokenRepo) DeleteByAccountAndDevice(ctx context.Context, accountID uuid.UUID, deviceID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM device_tokens WHERE account_id = $1 AND device_id = $2
	`, accountID, deviceID)
	if err != nil {
		return fmt.Errorf("delete device token: %w", err)
	}
	return nil
}

// DeleteAllByAccount removes every device token owned by the account
func (r *deviceTokenRepo) DeleteAllByAccount(ctx context.Context, accountID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM device_tokens WHERE account_id = $1
	`, accountID)
	if err != nil {
		return fmt.Errorf("delete device tokens for account: %w", err)
	}
	return nil
}

// DeleteByID removes a single row by its id
func (r *deviceTokenRepo) DeleteByID(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM device_tokens WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete device token by id: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpired removes rows that expired before the given instant and returns how many were removed
func (r *deviceTokenRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM device_tokens WHERE expires_at < $1
	`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired device tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired device tokens rows affected: %w", err)
	}
	return n, nil
}
