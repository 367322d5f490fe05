// Package credential defines the contract between the terminal and the
// account API: request shapes, the normalized Result every call returns, and
// the HTTP client that implements it.
package credential

import "context"

// UserRef identifies an account. It is replaced wholesale on
// re-authentication, never patched.
type UserRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// FailureKind classifies an unsuccessful Result.
type FailureKind int

const (
	FailureNone FailureKind = iota
	// FailureValidation covers field checks: length, required, pattern, confirmation mismatch.
	FailureValidation
	// FailureConflict means the username or email is already taken.
	FailureConflict
	// FailureAuth means the credentials were rejected.
	FailureAuth
	// FailureTokenInvalid means the presented token is expired, invalid or revoked.
	FailureTokenInvalid
	// FailureTransport means the server could not be reached; its state is unknown.
	FailureTransport
	// FailureServer covers 5xx responses and unreadable replies.
	FailureServer
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureValidation:
		return "validation"
	case FailureConflict:
		return "conflict"
	case FailureAuth:
		return "auth"
	case FailureTokenInvalid:
		return "token_invalid"
	case FailureTransport:
		return "transport"
	case FailureServer:
		return "server"
	default:
		return "unknown"
	}
}

// Result is the normalized outcome of every Service call. Raw transport
// errors never escape a Service implementation.
type Result struct {
	Success      bool
	Message      string
	FieldErrors  map[string]string
	User         *UserRef
	Token        string
	RefreshToken string
	Failure      FailureKind
}

// Failed builds an unsuccessful Result.
func Failed(kind FailureKind, message string) Result {
	return Result{Success: false, Message: message, Failure: kind}
}

type SignupRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type LoginRequest struct {
	EmailOrUsername string `json:"emailOrUsername"`
	Password        string `json:"password"`
}

// Service performs account operations against the account API.
type Service interface {
	Signup(ctx context.Context, req SignupRequest) Result
	Login(ctx context.Context, req LoginRequest) Result
	// Logout invalidates the access token and, when non-empty, the refresh token.
	Logout(ctx context.Context, token, refreshToken string) Result
	Me(ctx context.Context, token string) Result
	Refresh(ctx context.Context, refreshToken string) Result
}
