package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicekeep/server/internal/model"
	"github.com/devicekeep/server/internal/repo"
)

func TestAccounts_createAndFind(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	created, err := s.Accounts().Create(ctx, "john", "hash")
	require.NoError(t, err)
	assert.True(t, created.IsActive)
	assert.Zero(t, created.FailedLoginAttempts)

	byName, err := s.Accounts().FindByUsername(ctx, "john")
	require.NoError(t, err)
	assert.Equal(t, created, byName)

	byID, err := s.Accounts().FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, byID)

	_, err = s.Accounts().FindByUsername(ctx, "jane")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	_, err = s.Accounts().FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestAccounts_duplicateUsername(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	_, err := s.Accounts().Create(ctx, "john", "hash")
	require.NoError(t, err)
	_, err = s.Accounts().Create(ctx, "john", "other")
	assert.ErrorIs(t, err, repo.ErrDuplicateUsername)

	_, err = s.Accounts().Create(ctx, "jane", "")
	assert.Error(t, err)
}

func TestAccounts_partialUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	a, err := s.Accounts().Create(ctx, "john", "hash")
	require.NoError(t, err)

	lockUntil := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)
	attempts := 5
	require.NoError(t, s.Accounts().Update(ctx, a.ID, model.AccountUpdate{
		FailedLoginAttempts: &attempts,
		LockUntil:           model.SetTime(lockUntil),
	}))
	got, err := s.Accounts().FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.FailedLoginAttempts)
	require.NotNil(t, got.LockUntil)
	assert.Equal(t, lockUntil, *got.LockUntil)
	assert.Equal(t, "hash", got.PasswordHash, "unsupplied fields are untouched")

	require.NoError(t, s.Accounts().Update(ctx, a.ID, model.AccountUpdate{LockUntil: model.ClearTime()}))
	got, err = s.Accounts().FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LockUntil, "explicit clear writes null")
	assert.Equal(t, 5, got.FailedLoginAttempts)

	assert.ErrorIs(t, s.Accounts().Update(ctx, uuid.New(), model.AccountUpdate{FailedLoginAttempts: &attempts}), repo.ErrNotFound)
}

func TestAccounts_softDeleteHidesUsername(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	a, err := s.Accounts().Create(ctx, "john", "hash")
	require.NoError(t, err)

	require.NoError(t, s.Accounts().Update(ctx, a.ID, model.AccountUpdate{DeletedAt: model.SetTime(time.Now())}))

	_, err = s.Accounts().FindByUsername(ctx, "john")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	got, err := s.Accounts().FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted())
}

func TestDeviceTokens_lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	a, err := s.Accounts().Create(ctx, "john", "hash")
	require.NoError(t, err)
	tokens := s.DeviceTokens()
	exp := time.Now().Add(time.Hour)

	first, err := tokens.Create(ctx, a.ID, "d1", "h1", exp)
	require.NoError(t, err)
	_, err = tokens.Create(ctx, a.ID, "d1", "h2", exp)
	assert.Error(t, err, "one row per (account, device)")
	_, err = tokens.Create(ctx, uuid.New(), "d1", "h1", exp)
	assert.Error(t, err, "unknown account")

	replaced, err := tokens.ReplaceForDevice(ctx, a.ID, "d1", "h3", exp)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, replaced.ID)
	assert.Equal(t, 1, s.CountDeviceTokens(a.ID))

	require.NoError(t, tokens.UpdateByID(ctx, replaced.ID, "h4", exp.Add(time.Hour)))
	got, err := tokens.FindByAccountAndDevice(ctx, a.ID, "d1")
	require.NoError(t, err)
	assert.Equal(t, replaced.ID, got.ID)
	assert.Equal(t, "h4", got.TokenHash)
	assert.ErrorIs(t, tokens.UpdateByID(ctx, uuid.New(), "h", exp), repo.ErrNotFound)

	require.NoError(t, tokens.DeleteByAccountAndDevice(ctx, a.ID, "d1"))
	require.NoError(t, tokens.DeleteByAccountAndDevice(ctx, a.ID, "d1"), "idempotent")
	_, err = tokens.FindByAccountAndDevice(ctx, a.ID, "d1")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestDeviceTokens_bulkDeletes(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	john, err := s.Accounts().Create(ctx, "john", "hash")
	require.NoError(t, err)
	jane, err := s.Accounts().Create(ctx, "jane", "hash")
	require.NoError(t, err)
	tokens := s.DeviceTokens()
	now := time.Now()

	_, err = tokens.Create(ctx, john.ID, "d1", "h", now.Add(time.Hour))
	require.NoError(t, err)
	old, err := tokens.Create(ctx, john.ID, "d2", "h", now.Add(-time.Minute))
	require.NoError(t, err)
	_, err = tokens.Create(ctx, jane.ID, "d1", "h", now.Add(time.Hour))
	require.NoError(t, err)

	n, err := tokens.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.ErrorIs(t, tokens.DeleteByID(ctx, old.ID), repo.ErrNotFound)

	require.NoError(t, tokens.DeleteAllByAccount(ctx, john.ID))
	assert.Equal(t, 0, s.CountDeviceTokens(john.ID))
	assert.Equal(t, 1, s.CountDeviceTokens(jane.ID))
}
