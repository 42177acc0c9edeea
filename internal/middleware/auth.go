package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/devicekeep/server/internal/auth"
)

// DeviceIDHeader carries the caller-declared device identifier
const DeviceIDHeader = "X-Device-Id"

const maxDeviceIDLength = 128

type contextKey string

const (
	userIDKey       contextKey = "user_id"
	usernameKey     contextKey = "username"
	deviceIDKey     contextKey = "device_id"
	refreshTokenKey contextKey = "refresh_token"
)

// TokenVerifier verifies the two token domains
type TokenVerifier interface {
	VerifyAccessToken(tokenString string) (auth.TokenPayload, error)
	VerifyRefreshToken(tokenString string) (auth.TokenPayload, error)
}

// DeviceIDMiddleware requires a well-formed X-Device-Id header and attaches it to the context
func DeviceIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deviceID := strings.TrimSpace(r.Header.Get(DeviceIDHeader))
		if deviceID == "" {
			respondWithError(w, http.StatusBadRequest, "missing "+DeviceIDHeader+" header")
			return
		}
		if len(deviceID) > maxDeviceIDLength {
			respondWithError(w, http.StatusBadRequest, DeviceIDHeader+" header is too long")
			return
		}

		ctx := context.WithValue(r.Context(), deviceIDKey, deviceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AccessTokenMiddleware validates the bearer access token and attaches its subject to the context
func AccessTokenMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(w, r)
			if !ok {
				return
			}

			payload, err := verifier.VerifyAccessToken(tokenString)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, payload.Subject)
			ctx = context.WithValue(ctx, usernameKey, payload.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RefreshTokenMiddleware validates the bearer refresh token. It must run after
// DeviceIDMiddleware; a token issued to another device is rejected.
func RefreshTokenMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(w, r)
			if !ok {
				return
			}

			payload, err := verifier.VerifyRefreshToken(tokenString)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "invalid refresh token")
				return
			}

			deviceID, _ := GetDeviceID(r.Context())
			if payload.DeviceID == "" || payload.DeviceID != deviceID {
				respondWithError(w, http.StatusUnauthorized, "invalid refresh token")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, payload.Subject)
			ctx = context.WithValue(ctx, usernameKey, payload.Username)
			ctx = context.WithValue(ctx, refreshTokenKey, tokenString)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		respondWithError(w, http.StatusUnauthorized, "missing authorization header")
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		respondWithError(w, http.StatusUnauthorized, "invalid authorization header format")
		return "", false
	}

	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		respondWithError(w, http.StatusUnauthorized, "missing token")
		return "", false
	}
	return tokenString, true
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(userIDKey).(uuid.UUID)
	return userID, ok
}

// GetUsername extracts the token's username from context
func GetUsername(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(usernameKey).(string)
	return username, ok
}

// GetDeviceID extracts device ID from context
func GetDeviceID(ctx context.Context) (string, bool) {
	deviceID, ok := ctx.Value(deviceIDKey).(string)
	return deviceID, ok
}

// GetRefreshToken returns the raw refresh token verified by RefreshTokenMiddleware
func GetRefreshToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(refreshTokenKey).(string)
	return token, ok
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]string{"error": message}
	_ = json.NewEncoder(w).Encode(response)
}
