package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/devicekeep/server/internal/model"
	"github.com/google/uuid"
)

// AccountRepo defines the interface for account repository operations
type AccountRepo interface {
	FindByUsername(ctx context.Context, username string) (model.Account, error)
	FindByID(ctx context.Context, id uuid.UUID) (model.Account, error)
	Create(ctx context.Context, username, passwordHash string) (model.Account, error)
	Update(ctx context.Context, id uuid.UUID, update model.AccountUpdate) error
}

type accountRepo struct {
	db *sql.DB
}

// NewAccountRepo creates a new AccountRepo instance
func NewAccountRepo(db *sql.DB) AccountRepo {
	return &accountRepo{db: db}
}

const accountColumns = `
	id, username, password_hash, failed_login_attempts, lock_until,
	last_login_at, password_changed_at, is_active, deleted_at, created_at, updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (model.Account, error) {
	var a model.Account
	var idStr string
	var lockUntil, lastLoginAt, passwordChangedAt, deletedAt sql.NullTime
	err := row.Scan(
		&idStr,
		&a.Username,
		&a.PasswordHash,
		&a.FailedLoginAttempts,
		&lockUntil,
		&lastLoginAt,
		&passwordChangedAt,
		&a.IsActive,
		&deletedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return model.Account{}, err
	}
	a.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.Account{}, fmt.Errorf("parse account ID: %w", err)
	}
	a.LockUntil = nullTimePtr(lockUntil)
	a.LastLoginAt = nullTimePtr(lastLoginAt)
	a.PasswordChangedAt = nullTimePtr(passwordChangedAt)
	a.DeletedAt = nullTimePtr(deletedAt)
	return a, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

// FindByUsername returns the live (not soft-deleted) account with the given username
func (r *accountRepo) FindByUsername(ctx context.Context, username string) (model.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts
		WHERE username = $1 AND deleted_at IS NULL
	`
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, ErrNotFound
		}
		return model.Account{}, fmt.Errorf("query account by username: %w", err)
	}
	return a, nil
}

// FindByID returns the account with the given id, including soft-deleted ones
func (r *accountRepo) FindByID(ctx context.Context, id uuid.UUID) (model.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts
		WHERE id = $1
	`
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, ErrNotFound
		}
		return model.Account{}, fmt.Errorf("query account by id: %w", err)
	}
	return a, nil
}

// Create inserts a new active account. A taken username yields ErrDuplicateUsername.
func (r *accountRepo) Create(ctx context.Context, username, passwordHash string) (model.Account, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return model.Account{}, fmt.Errorf("generate account id: %w", err)
	}
	query := `
		INSERT INTO accounts (id, username, password_hash)
		VALUES ($1, $2, $3)
		RETURNING ` + accountColumns
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, id, username, passwordHash))
	if err != nil {
		if isUniqueViolation(err) {
			return model.Account{}, ErrDuplicateUsername
		}
		return model.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return a, nil
}

// Update writes only the fields supplied in update
func (r *accountRepo) Update(ctx context.Context, id uuid.UUID, update model.AccountUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.PasswordHash != nil {
		add("password_hash", *update.PasswordHash)
	}
	if update.PasswordChangedAt.Set {
		add("password_changed_at", update.PasswordChangedAt.Value)
	}
	if update.FailedLoginAttempts != nil {
		add("failed_login_attempts", *update.FailedLoginAttempts)
	}
	if update.LockUntil.Set {
		add("lock_until", update.LockUntil.Value)
	}
	if update.LastLoginAt.Set {
		add("last_login_at", update.LastLoginAt.Value)
	}
	if update.IsActive != nil {
		add("is_active", *update.IsActive)
	}
	if update.DeletedAt.Set {
		add("deleted_at", update.DeletedAt.Value)
	}
	sets = append(sets, "updated_at = now()")

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE accounts SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
