// Package server wires configuration, the SSH front end, the account API and
// per-connection terminals into one runnable unit.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/activeterm"
	gossh "golang.org/x/crypto/ssh"

	"termfolio/internal/command"
	"termfolio/internal/config"
	"termfolio/internal/credential"
	"termfolio/internal/gateway"
	"termfolio/internal/kv"
	"termfolio/internal/logging"
	"termfolio/internal/ratelimit"
	"termfolio/internal/router"
	"termfolio/internal/theme"
)

// Version is stamped at build time.
var Version = "dev"

const (
	maintenanceInterval = time.Minute
	shutdownTimeout     = 10 * time.Second
	sshBurst            = 10
	httpBurst           = 10
	msgNoPTY            = "interactive terminal requires an attached PTY"
)

// Runtime wires config, middleware, the wish server and the HTTP server as a
// testable unit.
type Runtime struct {
	cfg    config.Config
	logger *log.Logger

	db          *sql.DB
	service     *gateway.Service
	revocations *gateway.MemoryRevocations
	sshLimiter  *ratelimit.Limiter
	httpLimiter *ratelimit.Limiter
	terminals   *Terminals

	chain      []router.Descriptor
	sshServer  *ssh.Server
	httpServer *http.Server
}

// New builds every component but does not listen yet.
func New(cfg config.Config, logger *log.Logger) (*Runtime, error) {
	logger = logging.OrDefault(logger)
	if err := cfg.ValidateServe(); err != nil {
		return nil, err
	}
	variant, _, err := theme.Lookup(cfg.Theme)
	if err != nil {
		return nil, fmt.Errorf("theme %q: %w", cfg.Theme, err)
	}
	table, err := LoadTable(cfg.ContentPath)
	if err != nil {
		return nil, err
	}

	db, err := gateway.OpenDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	r := &Runtime{cfg: cfg, logger: logger, db: db}
	if err := r.buildAPI(); err != nil {
		_ = db.Close()
		return nil, err
	}

	r.terminals = NewTerminals(TerminalsConfig{
		State:       kv.NewDir(cfg.StateDir),
		Credentials: credential.NewHTTPClient(cfg.APIURL, nil, logger),
		Table:       table,
		Host:        cfg.PromptHost,
		Theme:       variant,
		Logger:      logger,
	})

	r.httpServer = &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: gateway.NewHandler(r.service,
			gateway.WithLimiter(r.httpLimiter),
			gateway.WithTerminal(gateway.NewTerminalHandler(r.terminals, logger)),
			gateway.WithHandlerLogger(logger),
		).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	r.sshLimiter = ratelimit.New(cfg.RateLimitPerMinute, sshBurst)
	r.chain = router.DefaultChain(router.ChainOptions{
		Limiter:     r.sshLimiter,
		MaxSessions: cfg.MaxSessions,
		Logger:      logger,
	})
	middleware := append(router.MiddlewareFromDescriptors(r.chain), activeterm.Middleware())

	r.sshServer, err = wish.NewServer(
		wish.WithAddress(cfg.SSHAddress()),
		wish.WithHostKeyPath(cfg.HostKeyPath),
		wish.WithIdleTimeout(cfg.IdleTimeout),
		// Anyone may connect; accounts live inside the terminal.
		wish.WithPublicKeyAuth(func(ssh.Context, ssh.PublicKey) bool { return true }),
		wish.WithKeyboardInteractiveAuth(func(ssh.Context, gossh.KeyboardInteractiveChallenge) bool { return true }),
		wish.WithMiddleware(router.ForWish(r.sessionHandler, middleware...)...),
	)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("build ssh server: %w", err)
	}
	return r, nil
}

func (r *Runtime) buildAPI() error {
	tokens, err := gateway.NewTokenIssuer([]byte(r.cfg.JWTSecret), r.cfg.AccessTTL, nil)
	if err != nil {
		return err
	}
	store := gateway.NewSQLiteStore(r.db)
	r.revocations = gateway.NewMemoryRevocations(nil)
	r.service, err = gateway.NewService(store, store, tokens, gateway.Options{
		RefreshTTL:  r.cfg.RefreshTTL,
		Revocations: r.revocations,
		Logger:      r.logger,
	})
	if err != nil {
		return err
	}
	r.httpLimiter = ratelimit.New(r.cfg.AuthRatePerMinute, httpBurst)
	return nil
}

// LoadTable loads the command content at path, or the built-in content when path is empty.
func LoadTable(path string) (*command.Table, error) {
	if path == "" {
		return command.NewTable(command.DefaultContent()), nil
	}
	content, err := command.LoadContent(path)
	if err != nil {
		return nil, fmt.Errorf("load content: %w", err)
	}
	return command.NewTable(content), nil
}

func (r *Runtime) MiddlewareIDs() []string { return router.Names(r.chain) }

func (r *Runtime) Address() string { return r.sshServer.Addr }

func (r *Runtime) HTTPAddress() string { return r.httpServer.Addr }

// Terminals exposes the terminal factory shared by SSH and websocket clients.
func (r *Runtime) Terminals() *Terminals { return r.terminals }

// Run serves SSH and HTTP until ctx is cancelled, SIGINT/SIGTERM arrives, or
// either listener fails.
func (r *Runtime) Run(ctx context.Context) error {
	ctx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	defer r.db.Close()

	errCh := make(chan error, 2)
	go func() {
		err := r.sshServer.ListenAndServe()
		if errors.Is(err, ssh.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()
	go func() {
		err := r.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()
	go r.revocations.Run(ctx, maintenanceInterval)
	go r.maintain(ctx)

	r.logger.Info("startup",
		"event", "startup",
		"version", Version,
		"ssh_addr", r.Address(),
		"http_addr", r.HTTPAddress(),
		"middleware", r.MiddlewareIDs(),
		"host_key_path", r.cfg.HostKeyPath,
		"idle_timeout", r.cfg.IdleTimeout,
		"max_sessions", r.cfg.MaxSessions,
	)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := r.sshServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
		r.logger.Warn("ssh shutdown", "event", "shutdown_error", "listener", "ssh", "error", err)
	}
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("http shutdown", "event", "shutdown_error", "listener", "http", "error", err)
	}
	r.logger.Info("shutdown", "event", "shutdown")
	return runErr
}

// maintain evicts idle rate-limit buckets and expired refresh tokens.
func (r *Runtime) maintain(ctx context.Context) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.sweep(ctx, now)
		}
	}
}

func (r *Runtime) sweep(ctx context.Context, now time.Time) {
	buckets := r.sshLimiter.Sweep(now) + r.httpLimiter.Sweep(now)
	purged, err := r.service.PurgeExpired(ctx)
	if err != nil {
		r.logger.Warn("refresh token purge failed", "event", "maintenance_error", "error", err)
		return
	}
	r.logger.Debug("maintenance", "event", "maintenance", "buckets_evicted", buckets, "refresh_tokens_purged", purged)
}

// sessionHandler runs one terminal for an SSH session.
func (r *Runtime) sessionHandler(s ssh.Session) {
	pty, _, ok := s.Pty()
	if !ok {
		wish.Println(s, msgNoPTY)
		_ = s.Exit(1)
		return
	}
	id, ok := router.IdentityFrom(s.Context())
	if !ok {
		id = router.ResolveIdentity(s)
	}
	if err := r.terminals.Run(s.Context(), id.Namespace, pty.Term, s, s); err != nil {
		r.logger.Error("terminal failed", "event", "terminal_failed", "namespace", id.Namespace, "error", err)
		_ = s.Exit(1)
		return
	}
	_ = s.Exit(0)
}
