package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/devicekeep/server/internal/auth"
	"github.com/devicekeep/server/internal/middleware"
	"github.com/devicekeep/server/internal/model"
	"github.com/devicekeep/server/internal/observability"
)

const maxJSONBodyBytes = 1 << 20

// AuthService is the orchestrator surface the handlers depend on
type AuthService interface {
	Register(ctx context.Context, username, password, deviceID string) (auth.AuthResult, error)
	Login(ctx context.Context, username, password, deviceID string) (auth.AuthResult, error)
	RefreshToken(ctx context.Context, accountID uuid.UUID, deviceID, rawRefreshToken string) (auth.AuthResult, error)
	Logout(ctx context.Context, accountID uuid.UUID, deviceID, scope string) error
	Me(ctx context.Context, accountID uuid.UUID) (model.UserSummary, error)
}

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService AuthService
	now         func() time.Time
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService AuthService) *AuthHandler {
	return &AuthHandler{authService: authService, now: time.Now}
}

// HandleRegister handles POST /auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	deviceID, _ := middleware.GetDeviceID(r.Context())
	result, err := h.authService.Register(r.Context(), req.Username, req.Password, deviceID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// HandleLogin handles POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	deviceID, _ := middleware.GetDeviceID(r.Context())
	result, err := h.authService.Login(r.Context(), req.Username, req.Password, deviceID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleRefresh handles POST /auth/refresh. The refresh guard has already verified the token.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	rawToken, hasToken := middleware.GetRefreshToken(r.Context())
	if !ok || !hasToken {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	deviceID, _ := middleware.GetDeviceID(r.Context())
	result, err := h.authService.RefreshToken(r.Context(), userID, deviceID, rawToken)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleLogout handles POST /auth/logout. An empty body means type "current".
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req logoutRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	deviceID, _ := middleware.GetDeviceID(r.Context())
	if err := h.authService.Logout(r.Context(), userID, deviceID, req.Type); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMe handles GET /me (protected). Returns the authenticated user.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.authService.Me(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// writeServiceError maps an orchestrator failure to a status code and a client-safe body
func (h *AuthHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var locked *auth.LockedError
	if errors.As(err, &locked) {
		retryAfter := int(locked.Until.Sub(h.now()).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeError(w, http.StatusForbidden, auth.PublicMessage(err))
		return
	}

	kind := auth.KindOf(err)
	if kind == auth.KindInternal {
		deviceID, _ := middleware.GetDeviceID(r.Context())
		log.Printf("%s %s failed: %v", r.Method, r.URL.Path, err)
		observability.CaptureError(err, map[string]string{
			"route":     r.URL.Path,
			"device_id": deviceID,
		})
	}
	writeError(w, statusForKind(kind), auth.PublicMessage(err))
}

func statusForKind(kind auth.Kind) int {
	switch kind {
	case auth.KindValidation:
		return http.StatusBadRequest
	case auth.KindUnauthorized:
		return http.StatusUnauthorized
	case auth.KindForbidden:
		return http.StatusForbidden
	case auth.KindNotFound:
		return http.StatusNotFound
	case auth.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a single JSON object into dst. allowEmpty accepts a missing body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// writeError sends a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
