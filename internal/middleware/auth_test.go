package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicekeep/server/internal/auth"
)

func newJWT(t *testing.T) *auth.JWTService {
	t.Helper()
	svc, err := auth.NewJWTService(auth.TokenConfig{
		AccessSecret:     "access-secret",
		RefreshSecret:    "refresh-secret",
		AccessExpiresIn:  "15m",
		RefreshExpiresIn: "30d",
	})
	require.NoError(t, err)
	return svc
}

type seen struct {
	userID   uuid.UUID
	username string
	deviceID string
	refresh  string
	called   bool
}

func capture(s *seen) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.called = true
		s.userID, _ = GetUserID(r.Context())
		s.username, _ = GetUsername(r.Context())
		s.deviceID, _ = GetDeviceID(r.Context())
		s.refresh, _ = GetRefreshToken(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestDeviceIDMiddleware(t *testing.T) {
	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusBadRequest},
		{"blank", "   ", http.StatusBadRequest},
		{"too long", strings.Repeat("x", maxDeviceIDLength+1), http.StatusBadRequest},
		{"ok", " phone-1 ", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var s seen
			req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
			if tc.header != "" {
				req.Header.Set(DeviceIDHeader, tc.header)
			}
			rec := httptest.NewRecorder()
			DeviceIDMiddleware(capture(&s)).ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "phone-1", s.deviceID)
			} else {
				assert.False(t, s.called)
				assert.Contains(t, rec.Body.String(), "error")
			}
		})
	}
}

func TestAccessTokenMiddleware(t *testing.T) {
	jwtService := newJWT(t)
	accountID := uuid.New()
	access, err := jwtService.SignAccessToken(accountID, "john")
	require.NoError(t, err)
	refresh, err := jwtService.SignRefreshToken(accountID, "john", "d1")
	require.NoError(t, err)

	t.Run("valid access token", func(t *testing.T) {
		var s seen
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+access)
		rec := httptest.NewRecorder()
		AccessTokenMiddleware(jwtService)(capture(&s)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, accountID, s.userID)
		assert.Equal(t, "john", s.username)
	})

	rejected := map[string]string{
		"no header":     "",
		"wrong scheme":  "Basic " + access,
		"empty token":   "Bearer  ",
		"garbage":       "Bearer not-a-jwt",
		"refresh token": "Bearer " + refresh,
	}
	for name, header := range rejected {
		t.Run(name, func(t *testing.T) {
			var s seen
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			AccessTokenMiddleware(jwtService)(capture(&s)).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, s.called)
		})
	}
}

func TestRefreshTokenMiddleware(t *testing.T) {
	jwtService := newJWT(t)
	accountID := uuid.New()
	refresh, err := jwtService.SignRefreshToken(accountID, "john", "d1")
	require.NoError(t, err)
	access, err := jwtService.SignAccessToken(accountID, "john")
	require.NoError(t, err)

	handler := func(s *seen) http.Handler {
		return DeviceIDMiddleware(RefreshTokenMiddleware(jwtService)(capture(s)))
	}

	t.Run("matching device", func(t *testing.T) {
		var s seen
		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
		req.Header.Set("Authorization", "Bearer "+refresh)
		req.Header.Set(DeviceIDHeader, "d1")
		rec := httptest.NewRecorder()
		handler(&s).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, accountID, s.userID)
		assert.Equal(t, "d1", s.deviceID)
		assert.Equal(t, refresh, s.refresh)
	})

	t.Run("other device", func(t *testing.T) {
		var s seen
		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
		req.Header.Set("Authorization", "Bearer "+refresh)
		req.Header.Set(DeviceIDHeader, "d2")
		rec := httptest.NewRecorder()
		handler(&s).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, s.called)
	})

	t.Run("access token is not a refresh token", func(t *testing.T) {
		var s seen
		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
		req.Header.Set("Authorization", "Bearer "+access)
		req.Header.Set(DeviceIDHeader, "d1")
		rec := httptest.NewRecorder()
		handler(&s).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, s.called)
	})
}
