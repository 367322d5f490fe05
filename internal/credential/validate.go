package credential

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 20
	minPasswordLen = 8
	maxPasswordLen = 72
	maxEmailLen    = 254
)

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// ValidateUsername returns a user-facing message, or "" when valid.
func ValidateUsername(username string) string {
	switch {
	case username == "":
		return "Username is required"
	case len(username) < minUsernameLen || len(username) > maxUsernameLen:
		return "Username must be between 3 and 20 characters"
	case !usernamePattern.MatchString(username):
		return "Username can only contain letters, numbers, and underscores"
	}
	return ""
}

func ValidateEmail(email string) string {
	switch {
	case email == "":
		return "Email is required"
	case len(email) > maxEmailLen || !emailPattern.MatchString(email):
		return "Please provide a valid email address"
	}
	return ""
}

// ValidatePassword enforces length plus upper, lower, digit and symbol.
// bcrypt ignores input past 72 bytes, so longer passwords are refused.
func ValidatePassword(password string) string {
	if password == "" {
		return "Password is required"
	}
	if len(password) < minPasswordLen {
		return "Password must be at least 8 characters long"
	}
	if len(password) > maxPasswordLen {
		return "Password must be at most 72 characters long"
	}
	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	if !upper || !lower || !digit || !symbol {
		return "Password must contain uppercase, lowercase, number, and special character"
	}
	return ""
}

func ValidateConfirmation(password, confirm string) string {
	if confirm == "" {
		return "Please confirm your password"
	}
	if password != confirm {
		return "Passwords do not match"
	}
	return ""
}

// ValidateSignup returns field errors keyed by JSON field name; empty when valid.
func ValidateSignup(req SignupRequest) map[string]string {
	out := map[string]string{}
	if msg := ValidateUsername(req.Username); msg != "" {
		out["username"] = msg
	}
	if msg := ValidateEmail(req.Email); msg != "" {
		out["email"] = msg
	}
	if msg := ValidatePassword(req.Password); msg != "" {
		out["password"] = msg
	}
	if msg := ValidateConfirmation(req.Password, req.ConfirmPassword); msg != "" {
		out["confirmPassword"] = msg
	}
	return out
}

func ValidateLogin(req LoginRequest) map[string]string {
	out := map[string]string{}
	if strings.TrimSpace(req.EmailOrUsername) == "" {
		out["emailOrUsername"] = "Email or username is required"
	}
	if req.Password == "" {
		out["password"] = "Password is required"
	}
	return out
}
