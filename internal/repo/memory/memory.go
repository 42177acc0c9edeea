// Package memory provides in-process implementations of the repo interfaces.
// It backs DEV_MODE without a database and the handler and service tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devicekeep/server/internal/model"
	"github.com/devicekeep/server/internal/repo"
	"github.com/google/uuid"
)

type deviceKey struct {
	accountID uuid.UUID
	deviceID  string
}

// Store holds accounts and device tokens behind a single mutex
type Store struct {
	mu         sync.Mutex
	now        func() time.Time
	accounts   map[uuid.UUID]model.Account
	byUsername map[string]uuid.UUID
	tokens     map[uuid.UUID]model.DeviceToken
	byDevice   map[deviceKey]uuid.UUID
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		now:        time.Now,
		accounts:   make(map[uuid.UUID]model.Account),
		byUsername: make(map[string]uuid.UUID),
		tokens:     make(map[uuid.UUID]model.DeviceToken),
		byDevice:   make(map[deviceKey]uuid.UUID),
	}
}

// Accounts returns the store as an AccountRepo
func (s *Store) Accounts() repo.AccountRepo { return accountRepo{s} }

// DeviceTokens returns the store as a DeviceTokenRepo
func (s *Store) DeviceTokens() repo.DeviceTokenRepo { return deviceTokenRepo{s} }

// CountDeviceTokens returns the number of token rows owned by the account
func (s *Store) CountDeviceTokens(accountID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.tokens {
		if t.AccountID == accountID {
			n++
		}
	}
	return n
}

type accountRepo struct{ s *Store }

func (r accountRepo) FindByUsername(_ context.Context, username string) (model.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id, ok := r.s.byUsername[username]
	if !ok {
		return model.Account{}, repo.ErrNotFound
	}
	a := r.s.accounts[id]
	if a.IsDeleted() {
		return model.Account{}, repo.ErrNotFound
	}
	return a, nil
}

func (r accountRepo) FindByID(_ context.Context, id uuid.UUID) (model.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.accounts[id]
	if !ok {
		return model.Account{}, repo.ErrNotFound
	}
	return a, nil
}

func (r accountRepo) Create(_ context.Context, username, passwordHash string) (model.Account, error) {
	if passwordHash == "" {
		return model.Account{}, fmt.Errorf("insert account: empty password hash")
	}
	id, err := uuid.NewV7()
	if err != nil {
		return model.Account{}, fmt.Errorf("generate account id: %w", err)
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, taken := r.s.byUsername[username]; taken {
		return model.Account{}, repo.ErrDuplicateUsername
	}
	now := r.s.now().UTC()
	a := model.Account{
		ID:           id,
		Username:     username,
		PasswordHash: passwordHash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.s.accounts[id] = a
	r.s.byUsername[username] = id
	return a, nil
}

func (r accountRepo) Update(_ context.Context, id uuid.UUID, update model.AccountUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.accounts[id]
	if !ok {
		return repo.ErrNotFound
	}
	update.Apply(&a)
	a.UpdatedAt = r.s.now().UTC()
	r.s.accounts[id] = a
	return nil
}

type deviceTokenRepo struct{ s *Store }

func (r deviceTokenRepo) insertLocked(accountID uuid.UUID, deviceID, tokenHash string, expiresAt time.Time) (model.DeviceToken, error) {
	key := deviceKey{accountID, deviceID}
	if _, exists := r.s.byDevice[key]; exists {
		return model.DeviceToken{}, fmt.Errorf("insert device token: duplicate (account, device)")
	}
	if _, ok := r.s.accounts[accountID]; !ok {
		return model.DeviceToken{}, fmt.Errorf("insert device token: unknown account %s", accountID)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return model.DeviceToken{}, fmt.Errorf("generate device token id: %w", err)
	}
	t := model.DeviceToken{
		ID:        id,
		AccountID: accountID,
		DeviceID:  deviceID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: r.s.now().UTC(),
	}
	r.s.tokens[id] = t
	r.s.byDevice[key] = id
	return t, nil
}

func (r deviceTokenRepo) deleteLocked(id uuid.UUID) bool {
	t, ok := r.s.tokens[id]
	if !ok {
		return false
	}
	delete(r.s.tokens, id)
	delete(r.s.byDevice, deviceKey{t.AccountID, t.DeviceID})
	return true
}

func (r deviceTokenRepo) Create(_ context.Context, accountID uuid.UUID, deviceID, tokenHash string, expiresAt time.Time) (model.DeviceToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.insertLocked(accountID, deviceID, tokenHash, expiresAt)
}

func (r deviceTokenRepo) ReplaceForDevice(_ context.Context, accountID uuid.UUID, deviceID, tokenHash string, expiresAt time.Time) (model.DeviceToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if id, ok := r.s.byDevice[deviceKey{accountID, deviceID}]; ok {
		r.deleteLocked(id)
	}
	return r.insertLocked(accountID, deviceID, tokenHash, expiresAt)
}

func (r deviceTokenRepo) FindByAccountAndDevice(_ context.Context, accountID uuid.UUID, deviceID string) (model.DeviceToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id, ok := r.s.byDevice[deviceKey{accountID, deviceID}]
	if !ok {
		return model.DeviceToken{}, repo.ErrNotFound
	}
	return r.s.tokens[id], nil
}

func (r deviceTokenRepo) UpdateByID(_ context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tokens[id]
	if !ok {
		return repo.ErrNotFound
	}
	t.TokenHash = tokenHash
	t.ExpiresAt = expiresAt.UTC()
	r.s.tokens[id] = t
	return nil
}

func (r deviceTokenRepo) DeleteByAccountAndDevice(_ context.Context, accountID uuid.UUID, deviceID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if id, ok := r.s.byDevice[deviceKey{accountID, deviceID}]; ok {
		r.deleteLocked(id)
	}
	return nil
}

func (r deviceTokenRepo) DeleteAllByAccount(_ context.Context, accountID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, t := range r.s.tokens {
		if t.AccountID == accountID {
			r.deleteLocked(id)
		}
	}
	return nil
}

func (r deviceTokenRepo) DeleteByID(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if !r.deleteLocked(id) {
		return repo.ErrNotFound
	}
	return nil
}

func (r deviceTokenRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, t := range r.s.tokens {
		if t.ExpiresAt.Before(before) {
			r.deleteLocked(id)
			n++
		}
	}
	return n, nil
}
