// Package router builds the SSH middleware chain that runs before a terminal
// session starts: admission control, then identity and session metadata.
package router

import (
	"fmt"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"

	"termfolio/internal/logging"
	"termfolio/internal/ratelimit"
)

const (
	msgRateLimited        = "rate limit exceeded\n"
	msgMaxSessions        = "max sessions exceeded\n"
	defaultMaxSessionSlot = 32
)

// Descriptor names a middleware so the startup log can list the chain.
type Descriptor struct {
	Name       string
	Middleware wish.Middleware
}

// ChainOptions configures DefaultChain.
type ChainOptions struct {
	Limiter     *ratelimit.Limiter
	MaxSessions int
	Logger      *log.Logger
	Now         func() time.Time
}

// DefaultChain returns the middleware in execution order: rate limiting,
// max sessions, identity, session metadata.
func DefaultChain(opts ChainOptions) []Descriptor {
	logger := logging.OrDefault(opts.Logger)
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.New(0, 0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return []Descriptor{
		{Name: "rate-limit", Middleware: RateLimit(opts.Limiter, logger)},
		{Name: "max-sessions", Middleware: MaxSessions(opts.MaxSessions, logger)},
		{Name: "identity", Middleware: identityResolution()},
		{Name: "session-metadata", Middleware: sessionMetadata(opts.Now, logger)},
	}
}

// Names lists the descriptors' names in order.
func Names(chain []Descriptor) []string {
	out := make([]string, 0, len(chain))
	for _, d := range chain {
		out = append(out, d.Name)
	}
	return out
}

// MiddlewareFromDescriptors returns the middleware in chain order. Compose
// wraps them so the first runs first.
func MiddlewareFromDescriptors(chain []Descriptor) []wish.Middleware {
	out := make([]wish.Middleware, 0, len(chain))
	for _, d := range chain {
		out = append(out, d.Middleware)
	}
	return out
}

// Compose wraps h so middleware[0] is the outermost layer.
func Compose(h ssh.Handler, middleware ...wish.Middleware) ssh.Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}

// ForWish orders h and middleware for wish.WithMiddleware, which runs the
// last element first.
func ForWish(h ssh.Handler, middleware ...wish.Middleware) []wish.Middleware {
	out := make([]wish.Middleware, 0, len(middleware)+1)
	out = append(out, func(ssh.Handler) ssh.Handler { return h })
	for i := len(middleware) - 1; i >= 0; i-- {
		out = append(out, middleware[i])
	}
	return out
}

// RateLimit refuses sessions from a remote IP whose bucket is empty.
func RateLimit(limiter *ratelimit.Limiter, logger *log.Logger) wish.Middleware {
	return func(next ssh.Handler) ssh.Handler {
		return func(s ssh.Session) {
			ip := RemoteIP(s)
			if !limiter.Allow(ip) {
				logger.Warn("session throttled", "event", "rate_limit_throttled", "remote_ip", ip)
				_, _ = s.Write([]byte(msgRateLimited))
				_ = s.Exit(1)
				return
			}
			next(s)
		}
	}
}

// MaxSessions caps concurrent sessions. A slot is released exactly once,
// when the handler returns, panics, or the session context ends.
func MaxSessions(limit int, logger *log.Logger) wish.Middleware {
	if limit <= 0 {
		limit = defaultMaxSessionSlot
	}
	slots := make(chan struct{}, limit)

	return func(next ssh.Handler) ssh.Handler {
		return func(s ssh.Session) {
			select {
			case slots <- struct{}{}:
			default:
				logger.Warn("session refused", "event", "max_sessions_exceeded", "limit", limit, "remote_ip", RemoteIP(s))
				_, _ = s.Write([]byte(msgMaxSessions))
				_ = s.Exit(1)
				return
			}

			var once sync.Once
			release := func() { once.Do(func() { <-slots }) }
			stop := make(chan struct{})
			defer close(stop)
			go func() {
				select {
				case <-s.Context().Done():
					release()
				case <-stop:
				}
			}()

			defer release()
			defer func() {
				if r := recover(); r != nil {
					logger.Error("session handler panicked", "event", "session_panic", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
				}
			}()
			next(s)
		}
	}
}

// RemoteIP is the session's peer address without port.
func RemoteIP(s ssh.Session) string {
	remote := s.RemoteAddr()
	if remote == nil {
		return "unknown"
	}

	host, _, err := net.SplitHostPort(remote.String())
	if err != nil {
		return remote.String()
	}

	if host == "" {
		return "unknown"
	}
	return host
}
