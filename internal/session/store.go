// Package session holds the terminal's authentication state: who is logged
// in, whether a credential call is in flight, and the last error. It is the
// only writer of the persisted credential.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/charmbracelet/log"

	"termfolio/internal/credential"
	"termfolio/internal/kv"
	"termfolio/internal/logging"
)

// Phase is the lifecycle phase of a Session.
type Phase int

const (
	PhaseUnauthenticated Phase = iota
	PhaseAuthenticating
	PhaseAuthenticated
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

const msgSessionExpired = "Your session has expired. Please log in again."

// Persisted keys.
const (
	KeyToken        = "auth_token"
	KeyRefreshToken = "refresh_token"
	KeyUser         = "auth_user"
)

// Action names the transition that produced a Snapshot.
type Action string

const (
	ActionInitial          Action = "initial"
	ActionAuthStarted      Action = "auth-started"
	ActionSignupSucceeded  Action = "signup-succeeded"
	ActionLoginSucceeded   Action = "login-succeeded"
	ActionLogoutCompleted  Action = "logout-completed"
	ActionRestoreSucceeded Action = "restore-succeeded"
	ActionRestoreFailed    Action = "restore-failed"
	ActionErrorOccurred    Action = "error-occurred"
	ActionErrorCleared     Action = "error-cleared"
	ActionSessionExpired   Action = "session-expired"
)

// Snapshot is an immutable copy of the session state. Seq increases with
// every broadcast so receivers can discard stale deliveries.
type Snapshot struct {
	Seq       uint64
	Phase     Phase
	User      *credential.UserRef
	LastError string
	Action    Action
	// Failure classifies LastError for ActionErrorOccurred.
	Failure credential.FailureKind
}

// Username returns the identity's username, or "" when anonymous.
func (s Snapshot) Username() string {
	if s.User == nil {
		return ""
	}
	return s.User.Username
}

// Authenticated reports whether an identity is attached.
func (s Snapshot) Authenticated() bool { return s.User != nil }

// Busy reports whether a credential call is outstanding.
func (s Snapshot) Busy() bool { return s.Phase == PhaseAuthenticating }

// Runner executes an operation's network half. The default runs it on a new
// goroutine; tests pass a synchronous runner.
type Runner func(func())

// Option configures a Store.
type Option func(*Store)

func WithRunner(r Runner) Option {
	return func(s *Store) {
		if r != nil {
			s.run = r
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = logging.OrDefault(l) }
}

// Store is the single source of truth for the terminal's identity.
type Store struct {
	svc    credential.Service
	tokens kv.Store
	run    Runner
	logger *log.Logger

	mu           sync.Mutex
	phase        Phase
	user         *credential.UserRef
	lastError    string
	failure      credential.FailureKind
	seq          uint64
	nextOp       uint64
	appliedOp    uint64
	subscribers  map[int]func(Snapshot)
	nextSubID    int
	notifyMu     sync.Mutex
	lastNotified uint64
}

// New returns an anonymous Store. Call Restore to pick up a persisted credential.
func New(svc credential.Service, tokens kv.Store, opts ...Option) *Store {
	s := &Store{
		svc:         svc,
		tokens:      tokens,
		run:         func(f func()) { go f() },
		logger:      log.Default(),
		phase:       PhaseUnauthenticated,
		subscribers: map[int]func(Snapshot){},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(ActionInitial)
}

// Subscribe registers fn for every subsequent transition. Calls are
// serialized and delivered in transition order.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		})
	}
}

// Signup moves to authenticating before returning, then applies the outcome
// when the call resolves.
func (s *Store) Signup(ctx context.Context, req credential.SignupRequest) {
	op := s.begin()
	s.run(func() {
		res := s.svc.Signup(ctx, req)
		s.resolveAuth(op, res, ActionSignupSucceeded)
	})
}

// Login behaves like Signup.
func (s *Store) Login(ctx context.Context, req credential.LoginRequest) {
	op := s.begin()
	s.run(func() {
		res := s.svc.Login(ctx, req)
		s.resolveAuth(op, res, ActionLoginSucceeded)
	})
}

// Logout clears the local session immediately and unconditionally; remote
// invalidation is best-effort and its outcome is ignored.
func (s *Store) Logout(ctx context.Context) {
	token := s.read(KeyToken)
	refresh := s.read(KeyRefreshToken)

	s.mu.Lock()
	s.nextOp++
	op := s.nextOp
	s.appliedOp = op
	s.phase = PhaseUnauthenticated
	s.user = nil
	s.lastError = ""
	s.failure = credential.FailureNone
	s.eraseLocked()
	snap := s.advanceLocked(ActionLogoutCompleted)
	s.mu.Unlock()
	s.notify(snap)

	if token == "" {
		return
	}
	s.run(func() {
		res := s.svc.Logout(ctx, token, refresh)
		if !res.Success {
			s.logger.Debug("remote logout failed", "event", "session_logout_remote_failed", "failure", res.Failure)
		}
	})
}

// ClearError returns to the phase implied by identity presence.
func (s *Store) ClearError() {
	s.mu.Lock()
	if s.phase != PhaseError {
		s.mu.Unlock()
		return
	}
	s.phase = phaseFor(s.user)
	s.lastError = ""
	s.failure = credential.FailureNone
	snap := s.advanceLocked(ActionErrorCleared)
	s.mu.Unlock()
	s.notify(snap)
}

// Restore silently re-attaches a persisted credential. It runs the network
// calls on the store's runner and never surfaces errors to the caller.
func (s *Store) Restore(ctx context.Context) {
	token := s.read(KeyToken)
	refresh := s.read(KeyRefreshToken)
	if token == "" && refresh == "" {
		return
	}

	s.mu.Lock()
	s.nextOp++
	op := s.nextOp
	s.mu.Unlock()

	s.run(func() {
		res := credential.Failed(credential.FailureTokenInvalid, "")
		if token != "" {
			res = s.svc.Me(ctx, token)
		}
		authFailed := res.Failure == credential.FailureTokenInvalid || res.Failure == credential.FailureAuth
		if !res.Success && authFailed && refresh != "" {
			res = s.svc.Refresh(ctx, refresh)
		}
		s.resolveRestore(op, res)
	})
}

// Verify re-checks the persisted token with the server in the background and
// expires the session if it was revoked or has run out. Other failures are
// ignored.
func (s *Store) Verify(ctx context.Context) {
	token := s.read(KeyToken)
	if token == "" {
		return
	}
	s.mu.Lock()
	op := s.nextOp
	s.mu.Unlock()

	s.run(func() {
		res := s.svc.Me(ctx, token)
		if res.Success || res.Failure != credential.FailureTokenInvalid {
			return
		}
		s.mu.Lock()
		if op != s.nextOp {
			s.mu.Unlock()
			return
		}
		snap, ok := s.expireLocked(msgSessionExpired)
		s.mu.Unlock()
		if ok {
			s.notify(snap)
		}
	})
}

func (s *Store) expireLocked(message string) (Snapshot, bool) {
	if s.user == nil {
		return Snapshot{}, false
	}
	s.nextOp++
	s.appliedOp = s.nextOp
	s.user = nil
	s.phase = PhaseUnauthenticated
	s.lastError = message
	s.eraseLocked()
	return s.advanceLocked(ActionSessionExpired), true
}

func (s *Store) begin() uint64 {
	s.mu.Lock()
	s.nextOp++
	op := s.nextOp
	s.phase = PhaseAuthenticating
	s.lastError = ""
	s.failure = credential.FailureNone
	snap := s.advanceLocked(ActionAuthStarted)
	s.mu.Unlock()
	s.notify(snap)
	return op
}

func (s *Store) resolveAuth(op uint64, res credential.Result, success Action) {
	s.mu.Lock()
	if s.staleLocked(op) {
		s.mu.Unlock()
		s.logger.Debug("stale auth resolution dropped", "event", "session_stale_resolution", "op", op)
		return
	}
	s.appliedOp = op

	if res.Success && res.User != nil {
		user := *res.User
		s.user = &user
		s.phase = PhaseAuthenticated
		s.lastError = ""
		s.failure = credential.FailureNone
		s.persistLocked(res)
		snap := s.advanceLocked(success)
		s.mu.Unlock()
		s.notify(snap)
		return
	}

	// A failed attempt never clears an existing identity.
	s.phase = PhaseError
	s.lastError = res.Message
	s.failure = res.Failure
	snap := s.advanceLocked(ActionErrorOccurred)
	s.mu.Unlock()
	s.notify(snap)
}

func (s *Store) resolveRestore(op uint64, res credential.Result) {
	s.mu.Lock()
	if s.staleLocked(op) {
		s.mu.Unlock()
		s.logger.Debug("stale restore resolution dropped", "event", "session_stale_resolution", "op", op)
		return
	}
	s.appliedOp = op

	if res.Success && res.User != nil {
		user := *res.User
		s.user = &user
		s.phase = PhaseAuthenticated
		s.persistLocked(res)
		snap := s.advanceLocked(ActionRestoreSucceeded)
		s.mu.Unlock()
		s.notify(snap)
		s.logger.Info("session restored", "event", "session_restored", "username", user.Username)
		return
	}

	switch res.Failure {
	case credential.FailureTransport, credential.FailureServer:
		// Server state unknown: keep the credential for the next start.
	default:
		s.eraseLocked()
	}
	s.user = nil
	s.phase = PhaseUnauthenticated
	snap := s.advanceLocked(ActionRestoreFailed)
	s.mu.Unlock()
	s.notify(snap)
	s.logger.Info("session restore failed", "event", "session_restore_failed", "failure", res.Failure)
}

func (s *Store) persistLocked(res credential.Result) {
	if s.tokens == nil {
		return
	}
	if res.Token != "" {
		if err := s.tokens.Set(KeyToken, res.Token); err != nil {
			s.logger.Warn("persist token failed", "event", "session_persist_failed", "error", err)
		}
	}
	if res.RefreshToken != "" {
		if err := s.tokens.Set(KeyRefreshToken, res.RefreshToken); err != nil {
			s.logger.Warn("persist refresh token failed", "event", "session_persist_failed", "error", err)
		}
	}
	if res.User != nil {
		data, err := json.Marshal(res.User)
		if err == nil {
			err = s.tokens.Set(KeyUser, string(data))
		}
		if err != nil {
			s.logger.Warn("persist user failed", "event", "session_persist_failed", "error", err)
		}
	}
}

func (s *Store) eraseLocked() {
	if s.tokens == nil {
		return
	}
	if err := s.tokens.Delete(KeyToken, KeyRefreshToken, KeyUser); err != nil {
		s.logger.Warn("erase credential failed", "event", "session_erase_failed", "error", err)
	}
}

// read treats any storage error as "no value".
func (s *Store) read(key string) string {
	if s.tokens == nil {
		return ""
	}
	v, err := s.tokens.Get(key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logger.Debug("read credential failed", "event", "session_read_failed", "key", key, "error", err)
		}
		return ""
	}
	return v
}

// PersistedUser returns the cached user document, if any and well-formed. It
// is only a display hint; the server decides whether the session survives.
func (s *Store) PersistedUser() (credential.UserRef, bool) {
	raw := s.read(KeyUser)
	if raw == "" {
		return credential.UserRef{}, false
	}
	var u credential.UserRef
	if err := json.Unmarshal([]byte(raw), &u); err != nil || u.Username == "" {
		return credential.UserRef{}, false
	}
	return u, true
}

func (s *Store) advanceLocked(action Action) Snapshot {
	s.seq++
	return s.snapshotLocked(action)
}

func (s *Store) snapshotLocked(action Action) Snapshot {
	snap := Snapshot{
		Seq:       s.seq,
		Phase:     s.phase,
		LastError: s.lastError,
		Action:    action,
		Failure:   s.failure,
	}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

// staleLocked reports whether a newer operation has started or been applied
// since op began. Only the latest operation may change state.
func (s *Store) staleLocked(op uint64) bool {
	return op != s.nextOp || op < s.appliedOp
}

// notify delivers snap to every subscriber. notifyMu serializes deliveries;
// a snapshot older than one already delivered is skipped.
func (s *Store) notify(snap Snapshot) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if snap.Seq <= s.lastNotified {
		return
	}
	s.lastNotified = snap.Seq

	s.mu.Lock()
	subs := make([]func(Snapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

func phaseFor(user *credential.UserRef) Phase {
	if user != nil {
		return PhaseAuthenticated
	}
	return PhaseUnauthenticated
}
