package model

import (
	"time"

	"github.com/google/uuid"
)

// Account represents a registered user and its login protection state
type Account struct {
	ID                  uuid.UUID
	Username            string
	PasswordHash        string
	FailedLoginAttempts int
	LockUntil           *time.Time
	LastLoginAt         *time.Time
	PasswordChangedAt   *time.Time
	IsActive            bool
	DeletedAt           *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsLocked reports whether the account is locked out at the given instant
func (a Account) IsLocked(now time.Time) bool {
	return a.LockUntil != nil && now.Before(*a.LockUntil)
}

// IsDeleted reports whether the account has been soft deleted
func (a Account) IsDeleted() bool {
	return a.DeletedAt != nil
}

// NullTime is a partial-update value for a nullable timestamp column.
// Set=false leaves the column untouched; Set=true with a nil Value clears it.
type NullTime struct {
	Set   bool
	Value *time.Time
}

// SetTime returns a NullTime that writes t
func SetTime(t time.Time) NullTime {
	return NullTime{Set: true, Value: &t}
}

// ClearTime returns a NullTime that writes NULL
func ClearTime() NullTime {
	return NullTime{Set: true}
}

// AccountUpdate lists the mutable account fields; nil / unset fields are not written
type AccountUpdate struct {
	PasswordHash        *string
	PasswordChangedAt   NullTime
	FailedLoginAttempts *int
	LockUntil           NullTime
	LastLoginAt         NullTime
	IsActive            *bool
	DeletedAt           NullTime
}

// IsEmpty reports whether the update would write nothing
func (u AccountUpdate) IsEmpty() bool {
	return u.PasswordHash == nil &&
		!u.PasswordChangedAt.Set &&
		u.FailedLoginAttempts == nil &&
		!u.LockUntil.Set &&
		!u.LastLoginAt.Set &&
		u.IsActive == nil &&
		!u.DeletedAt.Set
}

// Apply copies the supplied fields of u onto a
func (u AccountUpdate) Apply(a *Account) {
	if u.PasswordHash != nil {
		a.PasswordHash = *u.PasswordHash
	}
	if u.PasswordChangedAt.Set {
		a.PasswordChangedAt = copyTime(u.PasswordChangedAt.Value)
	}
	if u.FailedLoginAttempts != nil {
		a.FailedLoginAttempts = *u.FailedLoginAttempts
	}
	if u.LockUntil.Set {
		a.LockUntil = copyTime(u.LockUntil.Value)
	}
	if u.LastLoginAt.Set {
		a.LastLoginAt = copyTime(u.LastLoginAt.Value)
	}
	if u.IsActive != nil {
		a.IsActive = *u.IsActive
	}
	if u.DeletedAt.Set {
		a.DeletedAt = copyTime(u.DeletedAt.Value)
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// DeviceToken is the refresh-token record bound to one (account, device) pair
type DeviceToken struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	DeviceID  string
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// IsActive reports whether the token is neither revoked nor expired at now
func (d DeviceToken) IsActive(now time.Time) bool {
	return d.RevokedAt == nil && now.Before(d.ExpiresAt)
}

// UserSummary is the public view of an account returned to callers
type UserSummary struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

// Summary returns the public view of the account
func (a Account) Summary() UserSummary {
	return UserSummary{ID: a.ID, Username: a.Username}
}
