package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"termfolio/internal/logging"
)

const (
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 64 * 1024
)

type operation struct {
	name          string
	method        string
	path          string
	presentsToken bool
}

var (
	opSignup  = operation{name: "signup", method: http.MethodPost, path: "/auth/signup"}
	opLogin   = operation{name: "login", method: http.MethodPost, path: "/auth/login"}
	opLogout  = operation{name: "logout", method: http.MethodPost, path: "/auth/logout", presentsToken: true}
	opMe      = operation{name: "me", method: http.MethodGet, path: "/auth/me", presentsToken: true}
	opRefresh = operation{name: "refresh", method: http.MethodPost, path: "/auth/refresh", presentsToken: true}
)

// envelope is the JSON body every /auth endpoint replies with.
type envelope struct {
	Success      bool              `json:"success"`
	Message      string            `json:"message"`
	Code         string            `json:"code,omitempty"`
	User         *UserRef          `json:"user,omitempty"`
	Token        string            `json:"token,omitempty"`
	RefreshToken string            `json:"refreshToken,omitempty"`
	Errors       map[string]string `json:"errors,omitempty"`
}

// HTTPClient implements Service against the account API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	logger  *log.Logger
}

// NewHTTPClient returns a client for baseURL. A nil httpClient gets a 10s timeout.
func NewHTTPClient(baseURL string, httpClient *http.Client, logger *log.Logger) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logging.OrDefault(logger),
	}
}

var _ Service = (*HTTPClient)(nil)

func (c *HTTPClient) Signup(ctx context.Context, req SignupRequest) Result {
	if errs := ValidateSignup(req); len(errs) > 0 {
		res := Failed(FailureValidation, "Validation failed")
		res.FieldErrors = errs
		return res
	}
	return c.authenticate(ctx, opSignup, req)
}

func (c *HTTPClient) Login(ctx context.Context, req LoginRequest) Result {
	if errs := ValidateLogin(req); len(errs) > 0 {
		res := Failed(FailureValidation, "Validation failed")
		res.FieldErrors = errs
		return res
	}
	return c.authenticate(ctx, opLogin, req)
}

func (c *HTTPClient) Logout(ctx context.Context, token, refreshToken string) Result {
	var body any
	if refreshToken != "" {
		body = map[string]string{"refreshToken": refreshToken}
	}
	env, res, ok := c.do(ctx, opLogout, token, body)
	if !ok {
		return res
	}
	return Result{Success: true, Message: env.Message}
}

func (c *HTTPClient) Me(ctx context.Context, token string) Result {
	if token == "" {
		return Failed(FailureTokenInvalid, defaultMessage(FailureTokenInvalid))
	}
	env, res, ok := c.do(ctx, opMe, token, nil)
	if !ok {
		return res
	}
	if env.User == nil {
		return Failed(FailureServer, msgBadReply)
	}
	return Result{Success: true, Message: env.Message, User: env.User, Token: token}
}

func (c *HTTPClient) Refresh(ctx context.Context, refreshToken string) Result {
	if refreshToken == "" {
		return Failed(FailureTokenInvalid, defaultMessage(FailureTokenInvalid))
	}
	env, res, ok := c.do(ctx, opRefresh, "", map[string]string{"refreshToken": refreshToken})
	if !ok {
		return res
	}
	if env.User == nil || env.Token == "" {
		return Failed(FailureServer, msgBadReply)
	}
	return Result{Success: true, Message: env.Message, User: env.User, Token: env.Token, RefreshToken: env.RefreshToken}
}

func (c *HTTPClient) authenticate(ctx context.Context, op operation, body any) Result {
	env, res, ok := c.do(ctx, op, "", body)
	if !ok {
		return res
	}
	if env.User == nil || env.Token == "" {
		return Failed(FailureServer, msgBadReply)
	}
	return Result{Success: true, Message: env.Message, User: env.User, Token: env.Token, RefreshToken: env.RefreshToken}
}

// do performs one request. ok is false when res carries a failure.
func (c *HTTPClient) do(ctx context.Context, op operation, token string, body any) (envelope, Result, bool) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return envelope{}, Failed(FailureServer, msgServerFault), false
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, op.method, c.baseURL+op.path, reader)
	if err != nil {
		c.logger.Warn("credential request build failed", "event", "credential_request_invalid", "op", op.name, "error", err)
		return envelope{}, Failed(FailureTransport, msgTransport), false
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("credential request failed", "event", "credential_transport_failure", "op", op.name, "error", err)
		return envelope{}, transportFailure(err), false
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&env)
	c.logger.Debug("credential request", "event", "credential_response", "op", op.name, "status", resp.StatusCode, "duration_ms", time.Since(started).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return env, statusFailure(op, resp.StatusCode, env), false
	}
	if decodeErr != nil || !env.Success {
		return env, Failed(FailureServer, msgBadReply), false
	}
	return env, Result{}, true
}
