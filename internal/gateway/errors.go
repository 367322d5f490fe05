package gateway

import (
	"errors"
	"net/http"
	"sort"
	"strings"
)

var (
	ErrUsernameTaken      = errors.New("username taken")
	ErrEmailTaken         = errors.New("email taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUserNotFound       = errors.New("user not found")
)

const (
	msgInternal           = "Something went wrong, try again later."
	msgValidation         = "Validation failed"
	msgUsernameTaken      = "Username already exists"
	msgEmailTaken         = "Email already exists"
	msgInvalidCredentials = "Invalid credentials"
	msgInvalidToken       = "Invalid or expired token"
)

// FriendlyError carries a stable code and a message safe to show a client.
type FriendlyError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *FriendlyError) Error() string {
	return e.Message
}

func (e *FriendlyError) Unwrap() error { return e.Cause }

// ValidationError lists field-level problems keyed by request field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "validation failed: " + strings.Join(names, ", ")
}

// httpStatus maps a service error onto the status, code, message and field
// errors of the reply.
func httpStatus(err error) (int, string, string, map[string]string) {
	var validation *ValidationError
	if errors.As(err, &validation) {
		return http.StatusBadRequest, "VALIDATION_FAILED", msgValidation, validation.Fields
	}
	switch {
	case errors.Is(err, ErrUsernameTaken):
		return http.StatusConflict, "USERNAME_TAKEN", msgUsernameTaken, map[string]string{"username": msgUsernameTaken}
	case errors.Is(err, ErrEmailTaken):
		return http.StatusConflict, "EMAIL_TAKEN", msgEmailTaken, map[string]string{"email": msgEmailTaken}
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", msgInvalidCredentials, nil
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrUserNotFound):
		return http.StatusUnauthorized, "INVALID_TOKEN", msgInvalidToken, nil
	}
	var friendly *FriendlyError
	if errors.As(err, &friendly) {
		return http.StatusServiceUnavailable, friendly.Code, friendly.Message, nil
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR", msgInternal, nil
}
