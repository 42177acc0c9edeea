package auth

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/devicekeep/server/internal/model"
	"github.com/devicekeep/server/internal/repo"
	"github.com/google/uuid"
)

const (
	defaultMaxFailedLogins = 5
	defaultLockDuration    = 15 * time.Minute
)

// Logout scopes
const (
	LogoutCurrent    = "current"
	LogoutAllDevices = "all_devices"
)

// AuthResult is returned by register, login and refresh
type AuthResult struct {
	User         model.UserSummary `json:"user"`
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken"`
}

// LockoutPolicy controls account protection after failed logins
type LockoutPolicy struct {
	MaxFailedAttempts int
	LockDuration      time.Duration
}

// AuthService orchestrates registration, login, refresh rotation and logout
type AuthService struct {
	hasher     *Hasher
	jwtService *JWTService
	accounts   repo.AccountRepo
	tokens     repo.DeviceTokenRepo
	policy     LockoutPolicy
	now        func() time.Time

	// compared against when the username is unknown, so both paths cost one bcrypt check
	dummyHash string
}

// NewAuthService creates a new auth service
func NewAuthService(
	hasher *Hasher,
	jwtService *JWTService,
	accounts repo.AccountRepo,
	tokens repo.DeviceTokenRepo,
	policy LockoutPolicy,
) *AuthService {
	if policy.MaxFailedAttempts <= 0 {
		policy.MaxFailedAttempts = defaultMaxFailedLogins
	}
	if policy.LockDuration <= 0 {
		policy.LockDuration = defaultLockDuration
	}
	dummy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		log.Printf("auth: failed to prepare dummy hash: %v", err)
	}
	return &AuthService{
		dummyHash:  dummy,
		hasher:     hasher,
		jwtService: jwtService,
		accounts:   accounts,
		tokens:     tokens,
		policy:     policy,
		now:        time.Now,
	}
}

// SetClock replaces the time source for lockout and expiry decisions; intended for tests
func (s *AuthService) SetClock(now func() time.Time) {
	s.now = now
}

// Register creates an account and its first device session.
// Input is assumed validated upstream (confirmation match, password complexity).
func (s *AuthService) Register(ctx context.Context, username, password, deviceID string) (AuthResult, error) {
	if username == "" || password == "" || deviceID == "" {
		return AuthResult{}, newError(KindValidation, "username, password and device id are required")
	}

	_, err := s.accounts.FindByUsername(ctx, username)
	switch {
	case err == nil:
		return AuthResult{}, newError(KindConflict, msgUsernameTaken)
	case !errors.Is(err, repo.ErrNotFound):
		return AuthResult{}, s.internal("register", err)
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return AuthResult{}, s.internal("register", err)
	}

	account, err := s.accounts.Create(ctx, username, passwordHash)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicateUsername) {
			return AuthResult{}, newError(KindConflict, msgUsernameTaken)
		}
		return AuthResult{}, s.internal("register", err)
	}

	result, err := s.startSession(ctx, account, deviceID)
	if err != nil {
		return AuthResult{}, s.internal("register", err)
	}
	return result, nil
}

// Login verifies credentials, applies the lockout policy and starts a fresh session for the device
func (s *AuthService) Login(ctx context.Context, username, password, deviceID string) (AuthResult, error) {
	if deviceID == "" {
		return AuthResult{}, newError(KindValidation, "device id is required")
	}

	account, err := s.accounts.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.hasher.Verify(password, s.dummyHash)
			return AuthResult{}, newError(KindUnauthorized, msgInvalidCredentials)
		}
		return AuthResult{}, s.internal("login", err)
	}

	now := s.now().UTC()
	if account.IsLocked(now) {
		return AuthResult{}, &LockedError{Until: *account.LockUntil}
	}

	if !s.hasher.Verify(password, account.PasswordHash) {
		if err := s.recordFailedLogin(ctx, account, now); err != nil {
			return AuthResult{}, s.internal("login", err)
		}
		return AuthResult{}, newError(KindUnauthorized, msgInvalidCredentials)
	}

	if !account.IsActive {
		return AuthResult{}, newError(KindForbidden, msgAccountDisabled)
	}

	if err := s.recordSuccessfulLogin(ctx, account, now); err != nil {
		return AuthResult{}, s.internal("login", err)
	}

	result, err := s.startSession(ctx, account, deviceID)
	if err != nil {
		return AuthResult{}, s.internal("login", err)
	}
	return result, nil
}

// RefreshToken rotates the device's refresh token in place.
// accountID and deviceID come from an already verified refresh token; rawRefreshToken
// is compared against the stored hash so rotated-out tokens are rejected.
func (s *AuthService) RefreshToken(ctx context.Context, accountID uuid.UUID, deviceID, rawRefreshToken string) (AuthResult, error) {
	if deviceID == "" || rawRefreshToken == "" {
		return AuthResult{}, newError(KindUnauthorized, msgInvalidRefresh)
	}

	stored, err := s.tokens.FindByAccountAndDevice(ctx, accountID, deviceID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return AuthResult{}, newError(KindUnauthorized, msgInvalidRefresh)
		}
		return AuthResult{}, s.internal("refresh", err)
	}

	now := s.now().UTC()
	if !stored.IsActive(now) || !s.hasher.Verify(rawRefreshToken, stored.TokenHash) {
		return AuthResult{}, newError(KindUnauthorized, msgInvalidRefresh)
	}

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return AuthResult{}, newError(KindNotFound, msgAccountNotFound)
		}
		return AuthResult{}, s.internal("refresh", err)
	}
	if account.IsDeleted() {
		return AuthResult{}, newError(KindNotFound, msgAccountNotFound)
	}
	if !account.IsActive {
		return AuthResult{}, newError(KindForbidden, msgAccountDisabled)
	}

	result, refreshHash, err := s.issueTokens(account, deviceID)
	if err != nil {
		return AuthResult{}, s.internal("refresh", err)
	}

	// Same row id: concurrent refreshes on one device serialize on the row update.
	if err := s.tokens.UpdateByID(ctx, stored.ID, refreshHash, now.Add(s.jwtService.RefreshTTL())); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return AuthResult{}, newError(KindUnauthorized, msgInvalidRefresh)
		}
		return AuthResult{}, s.internal("refresh", err)
	}
	return result, nil
}

// Logout ends the session for one device, or for every device when scope is LogoutAllDevices.
// Logging out a device without a session is not an error.
func (s *AuthService) Logout(ctx context.Context, accountID uuid.UUID, deviceID, scope string) error {
	if scope == "" {
		scope = LogoutCurrent
	}

	switch scope {
	case LogoutCurrent:
		if deviceID == "" {
			return newError(KindValidation, "device id is required")
		}
		if err := s.tokens.DeleteByAccountAndDevice(ctx, accountID, deviceID); err != nil {
			return s.internal("logout", err)
		}
	case LogoutAllDevices:
		if err := s.tokens.DeleteAllByAccount(ctx, accountID); err != nil {
			return s.internal("logout", err)
		}
	default:
		return newError(KindValidation, "logout type must be one of current, all_devices")
	}
	return nil
}

// Me returns the public view of a live account
func (s *AuthService) Me(ctx context.Context, accountID uuid.UUID) (model.UserSummary, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.UserSummary{}, newError(KindNotFound, msgAccountNotFound)
		}
		return model.UserSummary{}, s.internal("me", err)
	}
	if account.IsDeleted() {
		return model.UserSummary{}, newError(KindNotFound, msgAccountNotFound)
	}
	return account.Summary(), nil
}

// SweepExpiredTokens deletes device tokens that have expired
func (s *AuthService) SweepExpiredTokens(ctx context.Context) (int64, error) {
	n, err := s.tokens.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, s.internal("sweep", err)
	}
	return n, nil
}

// recordFailedLogin is a read-modify-write on the account row; concurrent
// failures may lose increments but never corrupt the row.
func (s *AuthService) recordFailedLogin(ctx context.Context, account model.Account, now time.Time) error {
	attempts := account.FailedLoginAttempts + 1
	update := model.AccountUpdate{FailedLoginAttempts: &attempts}
	if attempts >= s.policy.MaxFailedAttempts {
		update.LockUntil = model.SetTime(now.Add(s.policy.LockDuration))
		log.Printf("auth: account %s locked after %d failed logins", account.ID, attempts)
	}
	return s.accounts.Update(ctx, account.ID, update)
}

func (s *AuthService) recordSuccessfulLogin(ctx context.Context, account model.Account, now time.Time) error {
	zero := 0
	return s.accounts.Update(ctx, account.ID, model.AccountUpdate{
		FailedLoginAttempts: &zero,
		LockUntil:           model.ClearTime(),
		LastLoginAt:         model.SetTime(now),
	})
}

// startSession issues a token pair and replaces any session the device already has
func (s *AuthService) startSession(ctx context.Context, account model.Account, deviceID string) (AuthResult, error) {
	result, refreshHash, err := s.issueTokens(account, deviceID)
	if err != nil {
		return AuthResult{}, err
	}
	expiresAt := s.now().UTC().Add(s.jwtService.RefreshTTL())
	if _, err := s.tokens.ReplaceForDevice(ctx, account.ID, deviceID, refreshHash, expiresAt); err != nil {
		return AuthResult{}, err
	}
	return result, nil
}

func (s *AuthService) issueTokens(account model.Account, deviceID string) (AuthResult, string, error) {
	accessToken, err := s.jwtService.SignAccessToken(account.ID, account.Username)
	if err != nil {
		return AuthResult{}, "", err
	}
	refreshToken, err := s.jwtService.SignRefreshToken(account.ID, account.Username, deviceID)
	if err != nil {
		return AuthResult{}, "", err
	}
	refreshHash, err := s.hasher.Hash(refreshToken)
	if err != nil {
		return AuthResult{}, "", err
	}
	return AuthResult{
		User:         account.Summary(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, refreshHash, nil
}

// internal logs the cause and returns the opaque internal error
func (s *AuthService) internal(op string, err error) error {
	log.Printf("auth: %s failed: %v", op, err)
	return &Error{Kind: KindInternal, Message: msgInternal, Cause: err}
}
