package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// TokenPayload is the identity carried by access and refresh tokens
type TokenPayload struct {
	Subject   uuid.UUID
	Username  string
	DeviceID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// JWTClaims represents the JWT token claims for both signing domains
type JWTClaims struct {
	Username  string `json:"username"`
	DeviceID  string `json:"device_id,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// SignToken signs payload with secret, expiring expiresInSeconds after now
func SignToken(payload TokenPayload, tokenType string, secret []byte, expiresInSeconds int64, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("sign %s token: empty secret", tokenType)
	}
	if expiresInSeconds <= 0 {
		return "", fmt.Errorf("sign %s token: non-positive expiry", tokenType)
	}

	issuedAt := now.Truncate(time.Second)
	claims := &JWTClaims{
		Username:  payload.Username,
		DeviceID:  payload.DeviceID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   payload.Subject.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Duration(expiresInSeconds) * time.Second)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return tokenString, nil
}

// VerifyToken checks signature, expiry and token type, and returns the payload.
// Every failure is reported as ErrInvalidToken.
func VerifyToken(tokenString, tokenType string, secret []byte, now time.Time) (TokenPayload, error) {
	if len(secret) == 0 || tokenString == "" {
		return TokenPayload{}, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return TokenPayload{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return TokenPayload{}, ErrInvalidToken
	}
	if claims.TokenType != tokenType {
		return TokenPayload{}, fmt.Errorf("%w: expected %s token", ErrInvalidToken, tokenType)
	}
	subject, err := uuid.Parse(claims.Subject)
	if err != nil {
		return TokenPayload{}, fmt.Errorf("%w: malformed subject", ErrInvalidToken)
	}

	return TokenPayload{
		Subject:   subject,
		Username:  claims.Username,
		DeviceID:  claims.DeviceID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// TokenConfig is the externally supplied signing configuration
type TokenConfig struct {
	AccessSecret     string
	RefreshSecret    string
	AccessExpiresIn  string
	RefreshExpiresIn string
}

// JWTService signs and verifies the two token domains
type JWTService struct {
	accessSecret   []byte
	refreshSecret  []byte
	accessSeconds  int64
	refreshSeconds int64
	now            func() time.Time
}

// NewJWTService validates cfg and creates a JWT service
func NewJWTService(cfg TokenConfig) (*JWTService, error) {
	if cfg.AccessSecret == "" {
		return nil, errors.New("access token secret is required")
	}
	if cfg.RefreshSecret == "" {
		return nil, errors.New("refresh token secret is required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh token secrets must differ")
	}
	accessSeconds, err := ExpirySeconds(cfg.AccessExpiresIn)
	if err != nil {
		return nil, fmt.Errorf("access token expiry: %w", err)
	}
	refreshSeconds, err := ExpirySeconds(cfg.RefreshExpiresIn)
	if err != nil {
		return nil, fmt.Errorf("refresh token expiry: %w", err)
	}

	return &JWTService{
		accessSecret:   []byte(cfg.AccessSecret),
		refreshSecret:  []byte(cfg.RefreshSecret),
		accessSeconds:  accessSeconds,
		refreshSeconds: refreshSeconds,
		now:            time.Now,
	}, nil
}

// SetClock replaces the time source; intended for tests
func (s *JWTService) SetClock(now func() time.Time) {
	s.now = now
}

// RefreshTTL returns the refresh token lifetime
func (s *JWTService) RefreshTTL() time.Duration {
	return time.Duration(s.refreshSeconds) * time.Second
}

// SignAccessToken creates an access token for the account
func (s *JWTService) SignAccessToken(accountID uuid.UUID, username string) (string, error) {
	payload := TokenPayload{Subject: accountID, Username: username}
	return SignToken(payload, tokenTypeAccess, s.accessSecret, s.accessSeconds, s.now())
}

// SignRefreshToken creates a refresh token bound to the device
func (s *JWTService) SignRefreshToken(accountID uuid.UUID, username, deviceID string) (string, error) {
	payload := TokenPayload{Subject: accountID, Username: username, DeviceID: deviceID}
	return SignToken(payload, tokenTypeRefresh, s.refreshSecret, s.refreshSeconds, s.now())
}

// VerifyAccessToken verifies a token against the access domain only
func (s *JWTService) VerifyAccessToken(tokenString string) (TokenPayload, error) {
	return VerifyToken(tokenString, tokenTypeAccess, s.accessSecret, s.now())
}

// VerifyRefreshToken verifies a token against the refresh domain only
func (s *JWTService) VerifyRefreshToken(tokenString string) (TokenPayload, error) {
	return VerifyToken(tokenString, tokenTypeRefresh, s.refreshSecret, s.now())
}
