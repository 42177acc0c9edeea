package handlers

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 64
	minPasswordLength = 8
	maxPasswordLength = 200
)

type registerRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type logoutRequest struct {
	Type string `json:"type"`
}

// validate returns a client-facing message for the first failed rule, or ""
func (req *registerRequest) validate() string {
	req.Username = strings.TrimSpace(req.Username)
	if msg := validateUsername(req.Username); msg != "" {
		return msg
	}
	if msg := validatePassword(req.Password); msg != "" {
		return msg
	}
	if req.Password != req.ConfirmPassword {
		return "password confirmation does not match"
	}
	return ""
}

func (req *loginRequest) validate() string {
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return "username and password are required"
	}
	if utf8.RuneCountInString(req.Username) > maxUsernameLength || len(req.Password) > maxPasswordLength {
		return "username or password is too long"
	}
	return ""
}

func validateUsername(username string) string {
	n := utf8.RuneCountInString(username)
	if n < minUsernameLength || n > maxUsernameLength {
		return "username must be between 3 and 64 characters"
	}
	for _, r := range username {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "username must not contain whitespace"
		}
	}
	return ""
}

func validatePassword(password string) string {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return "password must be at least 8 characters"
	}
	if len(password) > maxPasswordLength {
		return "password is too long"
	}
	var hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsLetter(r) && !unicode.IsSpace(r):
			hasSymbol = true
		}
	}
	if !hasDigit {
		return "password must contain at least one digit"
	}
	if !hasSymbol {
		return "password must contain at least one symbol"
	}
	return ""
}
