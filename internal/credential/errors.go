package credential

import (
	"context"
	"errors"
	"net"
	"net/http"
)

const (
	msgTransport   = "Could not reach the server. Check your connection and try again."
	msgTimeout     = "The server took too long to respond. Please try again."
	msgCancelled   = "Request cancelled."
	msgServerFault = "Server error, please try again later."
	msgRateLimited = "Too many attempts. Please wait a moment and try again."
	msgBadReply    = "Unexpected response from server, please try again later."
)

// transportFailure maps an error from http.Client.Do into a Result.
func transportFailure(err error) Result {
	if errors.Is(err, context.Canceled) {
		return Failed(FailureTransport, msgCancelled)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Failed(FailureTransport, msgTimeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Failed(FailureTransport, msgTimeout)
	}
	return Failed(FailureTransport, msgTransport)
}

// statusFailure classifies a non-2xx reply. op decides what a 401 means: for
// calls that present a token it is the token-invalid subtype.
func statusFailure(op operation, status int, env envelope) Result {
	message := env.Message
	var kind FailureKind
	switch {
	case status >= 500:
		return Failed(FailureServer, msgServerFault)
	case status == http.StatusTooManyRequests:
		return Failed(FailureServer, msgRateLimited)
	case status == http.StatusBadRequest:
		kind = FailureValidation
	case status == http.StatusConflict:
		kind = FailureConflict
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = FailureAuth
		if op.presentsToken {
			kind = FailureTokenInvalid
		}
	default:
		kind = FailureServer
	}
	if message == "" {
		message = defaultMessage(kind)
	}
	res := Failed(kind, message)
	if len(env.Errors) > 0 {
		res.FieldErrors = env.Errors
	}
	return res
}

func defaultMessage(kind FailureKind) string {
	switch kind {
	case FailureValidation:
		return "Validation failed"
	case FailureConflict:
		return "Username or email already exists"
	case FailureAuth:
		return "Invalid credentials"
	case FailureTokenInvalid:
		return "Session expired, please log in again"
	default:
		return msgServerFault
	}
}
