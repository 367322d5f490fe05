package gateway

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"termfolio/internal/credential"
	"termfolio/internal/logging"
	"termfolio/internal/ratelimit"
)

const (
	maxAuthBodyBytes = 8 * 1024
	msgRateLimited   = "Too many requests, slow down."
)

// reply is the JSON body of every /auth response.
type reply struct {
	Success      bool                `json:"success"`
	Message      string              `json:"message"`
	Code         string              `json:"code,omitempty"`
	User         *credential.UserRef `json:"user,omitempty"`
	Token        string              `json:"token,omitempty"`
	RefreshToken string              `json:"refreshToken,omitempty"`
	Errors       map[string]string   `json:"errors,omitempty"`
}

type refreshBody struct {
	RefreshToken string `json:"refreshToken"`
}

// Handler serves the account API and, when configured, the websocket terminal.
type Handler struct {
	svc      *Service
	limiter  *ratelimit.Limiter
	terminal http.Handler
	logger   *log.Logger
}

// HandlerOption customizes a Handler.
type HandlerOption func(*Handler)

// WithLimiter throttles /auth requests per client IP.
func WithLimiter(l *ratelimit.Limiter) HandlerOption {
	return func(h *Handler) { h.limiter = l }
}

// WithTerminal mounts a handler at GET /terminal.
func WithTerminal(t http.Handler) HandlerOption {
	return func(h *Handler) { h.terminal = t }
}

func WithHandlerLogger(l *log.Logger) HandlerOption {
	return func(h *Handler) { h.logger = l }
}

func NewHandler(svc *Service, opts ...HandlerOption) *Handler {
	h := &Handler{svc: svc}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = logging.OrDefault(h.logger)
	return h
}

func (h *Handler) Routes() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeErr(w, http.StatusNotFound, "NOT_FOUND", "endpoint not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		h.logRejection(req, "route", "method_not_allowed", "")
		writeErr(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)

	auth := r.PathPrefix("/auth").Subrouter()
	auth.Use(h.rateLimit)
	auth.HandleFunc("/signup", h.signup).Methods(http.MethodPost)
	auth.HandleFunc("/login", h.login).Methods(http.MethodPost)
	auth.HandleFunc("/logout", h.logout).Methods(http.MethodPost)
	auth.HandleFunc("/me", h.me).Methods(http.MethodGet)
	auth.HandleFunc("/refresh", h.refresh).Methods(http.MethodPost)

	if h.terminal != nil {
		r.Handle("/terminal", h.terminal).Methods(http.MethodGet)
	}
	return instrumentGatewayRequests(h.logger, r)
}

func instrumentGatewayRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		observer := &statusObserver{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(observer, r)
		logger.Info("http request",
			"event", "gateway_http_request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", observer.status,
			"duration_ms", time.Since(started).Milliseconds(),
			"remote", r.RemoteAddr,
		)
	})
}

type statusObserver struct {
	http.ResponseWriter
	status int
}

func (o *statusObserver) WriteHeader(status int) {
	o.status = status
	o.ResponseWriter.WriteHeader(status)
}

func (o *statusObserver) Flush() {
	if flusher, ok := o.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack lets the websocket upgrader take over the connection.
func (o *statusObserver) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := o.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	o.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.limiter != nil && !h.limiter.Allow(clientIP(r)) {
			h.logRejection(r, "rate_limit", "rate_limited", "")
			writeErr(w, http.StatusTooManyRequests, "RATE_LIMITED", msgRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, reply{Success: true, Message: "ok"})
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	var req credential.SignupRequest
	if err := decodeJSONBody(w, r, maxAuthBodyBytes, &req); err != nil {
		h.logRejection(r, "signup", "bad_json", err.Error())
		return
	}
	sess, err := h.svc.Signup(r.Context(), req)
	if err != nil {
		h.writeMappedErr(w, r, "signup", err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionReply("Account created", sess))
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req credential.LoginRequest
	if err := decodeJSONBody(w, r, maxAuthBodyBytes, &req); err != nil {
		h.logRejection(r, "login", "bad_json", err.Error())
		return
	}
	sess, err := h.svc.Login(r.Context(), req)
	if err != nil {
		h.writeMappedErr(w, r, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionReply("Logged in", sess))
}

// logout always succeeds; a missing or invalid token has nothing to revoke.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	var body refreshBody
	if err := decodeOptionalJSONBody(w, r, maxAuthBodyBytes, &body); err != nil {
		h.logRejection(r, "logout", "bad_json", err.Error())
		return
	}
	token, _ := bearerToken(r)
	h.svc.Logout(r.Context(), token, body.RefreshToken)
	writeJSON(w, http.StatusOK, reply{Success: true, Message: "Logged out"})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		h.logRejection(r, "me", "missing_bearer_token", "")
		writeErr(w, http.StatusUnauthorized, "INVALID_TOKEN", msgInvalidToken)
		return
	}
	user, err := h.svc.Me(r.Context(), token)
	if err != nil {
		h.writeMappedErr(w, r, "me", err)
		return
	}
	writeJSON(w, http.StatusOK, reply{Success: true, User: userRef(user)})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshBody
	if err := decodeJSONBody(w, r, maxAuthBodyBytes, &body); err != nil {
		h.logRejection(r, "refresh", "bad_json", err.Error())
		return
	}
	if strings.TrimSpace(body.RefreshToken) == "" {
		h.writeMappedErr(w, r, "refresh", &ValidationError{Fields: map[string]string{"refreshToken": "Refresh token is required"}})
		return
	}
	sess, err := h.svc.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		h.writeMappedErr(w, r, "refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionReply("Token refreshed", sess))
}

func sessionReply(message string, sess Session) reply {
	return reply{
		Success:      true,
		Message:      message,
		User:         userRef(sess.User),
		Token:        sess.Token,
		RefreshToken: sess.RefreshToken,
	}
}

func userRef(u UserRecord) *credential.UserRef {
	return &credential.UserRef{ID: u.ID, Username: u.Username, Email: u.Email}
}

func (h *Handler) logRejection(r *http.Request, operation string, reason string, details string) {
	h.logger.Warn("request rejected",
		"event", "gateway_request_rejected",
		"operation", operation,
		"method", r.Method,
		"path", r.URL.Path,
		"reason", reason,
		"details", details,
		"remote", r.RemoteAddr,
	)
}

func (h *Handler) writeMappedErr(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status, code, message, fields := httpStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "event", "gateway_internal_error", "operation", operation, "error", err)
	} else {
		h.logRejection(r, operation, strings.ToLower(code), "")
	}
	writeJSON(w, status, reply{Success: false, Message: message, Code: code, Errors: fields})
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, maxBytes int64, target any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(target); err != nil {
		var syntaxErr *json.SyntaxError
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &syntaxErr):
			writeErr(w, http.StatusBadRequest, "BAD_JSON", "request body must be valid JSON")
		case errors.As(err, &maxBytesErr):
			writeErr(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body exceeds max size")
		case strings.Contains(err.Error(), "unknown field"):
			writeErr(w, http.StatusBadRequest, "BAD_JSON", "request contains unknown fields")
		default:
			writeErr(w, http.StatusBadRequest, "BAD_JSON", "request body must be valid JSON")
		}
		return err
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		writeErr(w, http.StatusBadRequest, "BAD_JSON", "request body must contain exactly one JSON object")
		if err == nil {
			err = errors.New("trailing data after JSON object")
		}
		return err
	}
	return nil
}

// decodeOptionalJSONBody accepts an empty body and leaves target untouched.
func decodeOptionalJSONBody(w http.ResponseWriter, r *http.Request, maxBytes int64, target any) error {
	if r.Body == nil {
		return nil
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		writeErr(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body exceeds max size")
		return fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))
	return decodeJSONBody(w, r, maxBytes, target)
}

func bearerToken(r *http.Request) (string, bool) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

// clientIP is the peer address without port. Forwarding headers are ignored.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeErr(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, reply{Success: false, Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
