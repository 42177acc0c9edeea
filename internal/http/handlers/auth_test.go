package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/devicekeep/server/internal/auth"
	"github.com/devicekeep/server/internal/middleware"
	"github.com/devicekeep/server/internal/model"
)

type mockAuthService struct {
	mock.Mock
}

func (m *mockAuthService) Register(ctx context.Context, username, password, deviceID string) (auth.AuthResult, error) {
	args := m.Called(ctx, username, password, deviceID)
	return args.Get(0).(auth.AuthResult), args.Error(1)
}

func (m *mockAuthService) Login(ctx context.Context, username, password, deviceID string) (auth.AuthResult, error) {
	args := m.Called(ctx, username, password, deviceID)
	return args.Get(0).(auth.AuthResult), args.Error(1)
}

func (m *mockAuthService) RefreshToken(ctx context.Context, accountID uuid.UUID, deviceID, raw string) (auth.AuthResult, error) {
	args := m.Called(ctx, accountID, deviceID, raw)
	return args.Get(0).(auth.AuthResult), args.Error(1)
}

func (m *mockAuthService) Logout(ctx context.Context, accountID uuid.UUID, deviceID, scope string) error {
	return m.Called(ctx, accountID, deviceID, scope).Error(0)
}

func (m *mockAuthService) Me(ctx context.Context, accountID uuid.UUID) (model.UserSummary, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(model.UserSummary), args.Error(1)
}

func postLogin(h *AuthHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set(middleware.DeviceIDHeader, "d1")
	rec := httptest.NewRecorder()
	middleware.DeviceIDMiddleware(http.HandlerFunc(h.HandleLogin)).ServeHTTP(rec, req)
	return rec
}

func TestHandleLogin_errorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"unauthorized", &auth.Error{Kind: auth.KindUnauthorized, Message: "invalid username or password"}, http.StatusUnauthorized, "invalid username or password"},
		{"validation", &auth.Error{Kind: auth.KindValidation, Message: "bad"}, http.StatusBadRequest, "bad"},
		{"conflict", &auth.Error{Kind: auth.KindConflict, Message: "taken"}, http.StatusConflict, "taken"},
		{"not found", &auth.Error{Kind: auth.KindNotFound, Message: "gone"}, http.StatusNotFound, "gone"},
		{"forbidden", &auth.Error{Kind: auth.KindForbidden, Message: "account is disabled"}, http.StatusForbidden, "account is disabled"},
		{"internal hides cause", &auth.Error{Kind: auth.KindInternal, Message: "internal error", Cause: errors.New("pq: secret detail")}, http.StatusInternalServerError, "internal error"},
		{"unknown error", errors.New("raw failure"), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockAuthService{}
			svc.On("Login", mock.Anything, "john", "Password1!", "d1").Return(auth.AuthResult{}, tc.err)

			rec := postLogin(NewAuthHandler(svc), `{"username":"john","password":"Password1!"}`)

			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.body)
			assert.NotContains(t, rec.Body.String(), "pq:")
			assert.NotContains(t, rec.Body.String(), "raw failure")
		})
	}
}

func TestHandleLogin_lockedSetsRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := &mockAuthService{}
	svc.On("Login", mock.Anything, "john", "Password1!", "d1").
		Return(auth.AuthResult{}, &auth.LockedError{Until: now.Add(90 * time.Second)})

	h := NewAuthHandler(svc)
	h.now = func() time.Time { return now }
	rec := postLogin(h, `{"username":"john","password":"Password1!"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "90", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "locked")
}

func TestHandleLogin_badBodies(t *testing.T) {
	svc := &mockAuthService{}
	h := NewAuthHandler(svc)

	for _, body := range []string{``, `not json`, `{"username":"john","password":"x","extra":1}`, `{"username":"","password":""}`} {
		rec := postLogin(h, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
	svc.AssertNotCalled(t, "Login", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleLogin_success(t *testing.T) {
	svc := &mockAuthService{}
	result := auth.AuthResult{
		User:         model.UserSummary{ID: uuid.New(), Username: "john"},
		AccessToken:  "access",
		RefreshToken: "refresh",
	}
	svc.On("Login", mock.Anything, "john", "Password1!", "d1").Return(result, nil)

	rec := postLogin(NewAuthHandler(svc), `{"username":" john ","password":"Password1!"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"user":{"id":"`+result.User.ID.String()+`","username":"john"},"accessToken":"access","refreshToken":"refresh"}`,
		rec.Body.String())
	svc.AssertExpectations(t)
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	for name, tc := range map[string]struct {
		db     Pinger
		status int
		body   string
	}{
		"memory store": {nil, http.StatusOK, `{"ok":true}`},
		"db up":        {fakePinger{}, http.StatusOK, `{"ok":true}`},
		"db down":      {fakePinger{errors.New("down")}, http.StatusServiceUnavailable, `{"ok":false}`},
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(tc.db).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tc.status, rec.Code)
			assert.JSONEq(t, tc.body, rec.Body.String())
		})
	}
}
