package session

import (
	"context"
	"sync"
	"testing"

	"termfolio/internal/credential"
	"termfolio/internal/kv"
	"termfolio/internal/logging"
)

type stubService struct {
	mu      sync.Mutex
	signup  credential.Result
	login   credential.Result
	logout  credential.Result
	me      credential.Result
	refresh credential.Result

	logoutCalls  int
	logoutTokens []string
	meCalls      int
	refreshCalls int
}

func (s *stubService) Signup(context.Context, credential.SignupRequest) credential.Result {
	return s.signup
}

func (s *stubService) Login(context.Context, credential.LoginRequest) credential.Result {
	return s.login
}

func (s *stubService) Logout(_ context.Context, token, refresh string) credential.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logoutCalls++
	s.logoutTokens = append(s.logoutTokens, token, refresh)
	return s.logout
}

func (s *stubService) Me(context.Context, string) credential.Result {
	s.meCalls++
	return s.me
}

func (s *stubService) Refresh(context.Context, string) credential.Result {
	s.refreshCalls++
	return s.refresh
}

func syncRunner(f func()) { f() }

func newTestStore(svc credential.Service, tokens kv.Store, opts ...Option) *Store {
	base := []Option{WithRunner(syncRunner), WithLogger(logging.Discard())}
	return New(svc, tokens, append(base, opts...)...)
}

func success(username, token string) credential.Result {
	return credential.Result{
		Success:      true,
		Message:      "ok",
		User:         &credential.UserRef{ID: "u-" + username, Username: username, Email: username + "@example.com"},
		Token:        token,
		RefreshToken: "refresh-" + token,
	}
}

type recorder struct {
	snaps []Snapshot
}

func (r *recorder) record(s Snapshot) { r.snaps = append(r.snaps, s) }

func (r *recorder) phases() []Phase {
	out := make([]Phase, 0, len(r.snaps))
	for _, s := range r.snaps {
		out = append(out, s.Phase)
	}
	return out
}

func equalPhases(a, b []Phase) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSignupSuccessPersistsCredential(t *testing.T) {
	tokens := kv.NewMemoryStore()
	svc := &stubService{signup: success("bob", "tok-1")}
	store := newTestStore(svc, tokens)
	rec := &recorder{}
	store.Subscribe(rec.record)

	store.Signup(context.Background(), credential.SignupRequest{Username: "bob"})

	want := []Phase{PhaseAuthenticating, PhaseAuthenticated}
	if !equalPhases(rec.phases(), want) {
		t.Fatalf("phases = %v, want %v", rec.phases(), want)
	}
	snap := store.Snapshot()
	if snap.Username() != "bob" || snap.Phase != PhaseAuthenticated {
		t.Fatalf("snapshot = %+v", snap)
	}
	if got, _ := tokens.Get(KeyToken); got != "tok-1" {
		t.Fatalf("persisted token = %q", got)
	}
	if got, _ := tokens.Get(KeyRefreshToken); got != "refresh-tok-1" {
		t.Fatalf("persisted refresh token = %q", got)
	}
	user, ok := store.PersistedUser()
	if !ok || user.Username != "bob" {
		t.Fatalf("PersistedUser() = %+v, %v", user, ok)
	}
}

func TestLoginFailureKeepsIdentity(t *testing.T) {
	tokens := kv.NewMemoryStore()
	svc := &stubService{login: success("alice", "tok-a")}
	store := newTestStore(svc, tokens)
	store.Login(context.Background(), credential.LoginRequest{EmailOrUsername: "alice"})

	svc.login = credential.Failed(credential.FailureAuth, "Invalid credentials")
	store.Login(context.Background(), credential.LoginRequest{EmailOrUsername: "alice"})

	snap := store.Snapshot()
	if snap.Phase != PhaseError || snap.LastError != "Invalid credentials" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Username() != "alice" {
		t.Fatalf("failed login cleared identity: %+v", snap)
	}
	if snap.Failure != credential.FailureAuth {
		t.Fatalf("Failure = %v", snap.Failure)
	}

	store.ClearError()
	snap = store.Snapshot()
	if snap.Phase != PhaseAuthenticated || snap.LastError != "" {
		t.Fatalf("after ClearError snapshot = %+v", snap)
	}
}

func TestClearErrorWithoutIdentity(t *testing.T) {
	svc := &stubService{login: credential.Failed(credential.FailureAuth, "Invalid credentials")}
	store := newTestStore(svc, kv.NewMemoryStore())
	store.Login(context.Background(), credential.LoginRequest{})
	store.ClearError()
	if snap := store.Snapshot(); snap.Phase != PhaseUnauthenticated {
		t.Fatalf("phase = %v", snap.Phase)
	}
}

func TestClearErrorOutsideErrorPhaseIsNoop(t *testing.T) {
	store := newTestStore(&stubService{}, kv.NewMemoryStore())
	rec := &recorder{}
	store.Subscribe(rec.record)
	store.ClearError()
	if len(rec.snaps) != 0 {
		t.Fatalf("unexpected broadcast: %+v", rec.snaps)
	}
}

func TestLoginLogoutRoundTrip(t *testing.T) {
	tokens := kv.NewMemoryStore()
	svc := &stubService{
		login:  success("carol", "tok-c"),
		logout: credential.Failed(credential.FailureTransport, "unreachable"),
	}
	store := newTestStore(svc, tokens)
	initial := store.Snapshot()

	store.Login(context.Background(), credential.LoginRequest{EmailOrUsername: "carol"})
	store.Logout(context.Background())

	snap := store.Snapshot()
	if snap.Phase != initial.Phase || snap.User != nil || snap.LastError != "" {
		t.Fatalf("round trip snapshot = %+v, want %+v", snap, initial)
	}
	for _, key := range []string{KeyToken, KeyRefreshToken, KeyUser} {
		if _, err := tokens.Get(key); err != kv.ErrNotFound {
			t.Fatalf("key %s still persisted (err=%v)", key, err)
		}
	}
	if svc.logoutCalls != 1 || svc.logoutTokens[0] != "tok-c" || svc.logoutTokens[1] != "refresh-tok-c" {
		t.Fatalf("remote logout = %d %v", svc.logoutCalls, svc.logoutTokens)
	}
}

func TestLogoutWithoutTokenSkipsRemote(t *testing.T) {
	svc := &stubService{}
	store := newTestStore(svc, kv.NewMemoryStore())
	store.Logout(context.Background())
	if svc.logoutCalls != 0 {
		t.Fatalf("logoutCalls = %d", svc.logoutCalls)
	}
}

func TestStaleResolutionDropped(t *testing.T) {
	svc := &stubService{login: success("dave", "tok-d")}
	var pending []func()
	deferred := func(f func()) { pending = append(pending, f) }
	store := newTestStore(svc, kv.NewMemoryStore(), WithRunner(deferred))

	store.Login(context.Background(), credential.LoginRequest{EmailOrUsername: "dave"})
	if !store.Snapshot().Busy() {
		t.Fatal("Login should move to authenticating synchronously")
	}
	store.Logout(context.Background())
	for _, f := range pending {
		f()
	}

	snap := store.Snapshot()
	if snap.User != nil || snap.Phase != PhaseUnauthenticated {
		t.Fatalf("stale login resolution applied: %+v", snap)
	}
}

func TestSubscribersSeeIncreasingSequence(t *testing.T) {
	svc := &stubService{signup: success("erin", "tok-e")}
	store := newTestStore(svc, kv.NewMemoryStore())
	rec := &recorder{}
	unsubscribe := store.Subscribe(rec.record)

	store.Signup(context.Background(), credential.SignupRequest{})
	store.Logout(context.Background())
	unsubscribe()
	store.Signup(context.Background(), credential.SignupRequest{})

	if len(rec.snaps) != 3 {
		t.Fatalf("got %d snapshots, want 3", len(rec.snaps))
	}
	for i := 1; i < len(rec.snaps); i++ {
		if rec.snaps[i].Seq <= rec.snaps[i-1].Seq {
			t.Fatalf("sequence not increasing: %d then %d", rec.snaps[i-1].Seq, rec.snaps[i].Seq)
		}
	}
	if rec.snaps[2].Action != ActionLogoutCompleted {
		t.Fatalf("last action = %s", rec.snaps[2].Action)
	}
}

func TestRestore(t *testing.T) {
	tests := []struct {
		name         string
		token        string
		refresh      string
		me           credential.Result
		refreshRes   credential.Result
		wantUser     string
		wantKept     bool
		wantRefresh  int
		wantBroadcst bool
	}{
		{
			name:         "no token",
			wantKept:     false,
			wantBroadcst: false,
		},
		{
			name:         "valid token",
			token:        "tok",
			me:           success("frank", ""),
			wantUser:     "frank",
			wantKept:     true,
			wantBroadcst: true,
		},
		{
			name:         "expired token refreshed",
			token:        "tok",
			refresh:      "ref",
			me:           credential.Failed(credential.FailureTokenInvalid, "expired"),
			refreshRes:   success("gina", "tok-new"),
			wantUser:     "gina",
			wantKept:     true,
			wantRefresh:  1,
			wantBroadcst: true,
		},
		{
			name:         "expired token without refresh",
			token:        "tok",
			me:           credential.Failed(credential.FailureTokenInvalid, "expired"),
			wantKept:     false,
			wantBroadcst: true,
		},
		{
			name:         "refresh rejected",
			token:        "tok",
			refresh:      "ref",
			me:           credential.Failed(credential.FailureTokenInvalid, "expired"),
			refreshRes:   credential.Failed(credential.FailureTokenInvalid, "revoked"),
			wantKept:     false,
			wantRefresh:  1,
			wantBroadcst: true,
		},
		{
			name:         "server unreachable keeps credential",
			token:        "tok",
			refresh:      "ref",
			me:           credential.Failed(credential.FailureTransport, "unreachable"),
			wantKept:     true,
			wantBroadcst: true,
		},
		{
			name:         "server fault keeps credential",
			token:        "tok",
			me:           credential.Failed(credential.FailureServer, "boom"),
			wantKept:     true,
			wantBroadcst: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := kv.NewMemoryStore()
			if tt.token != "" {
				_ = tokens.Set(KeyToken, tt.token)
			}
			if tt.refresh != "" {
				_ = tokens.Set(KeyRefreshToken, tt.refresh)
			}
			svc := &stubService{me: tt.me, refresh: tt.refreshRes}
			store := newTestStore(svc, tokens)
			rec := &recorder{}
			store.Subscribe(rec.record)

			store.Restore(context.Background())

			snap := store.Snapshot()
			if snap.Username() != tt.wantUser {
				t.Fatalf("user = %q, want %q", snap.Username(), tt.wantUser)
			}
			if tt.wantUser == "" && snap.Phase != PhaseUnauthenticated {
				t.Fatalf("phase = %v", snap.Phase)
			}
			_, err := tokens.Get(KeyToken)
			if kept := err == nil; kept != tt.wantKept {
				t.Fatalf("token kept = %v, want %v", kept, tt.wantKept)
			}
			if svc.refreshCalls != tt.wantRefresh {
				t.Fatalf("refresh calls = %d, want %d", svc.refreshCalls, tt.wantRefresh)
			}
			if got := len(rec.snaps) > 0; got != tt.wantBroadcst {
				t.Fatalf("broadcast = %v, want %v", got, tt.wantBroadcst)
			}
		})
	}
}

func TestRestoreRotatesTokens(t *testing.T) {
	tokens := kv.NewMemoryStore()
	_ = tokens.Set(KeyToken, "old")
	_ = tokens.Set(KeyRefreshToken, "ref-old")
	svc := &stubService{
		me:      credential.Failed(credential.FailureTokenInvalid, "expired"),
		refresh: success("hank", "new"),
	}
	store := newTestStore(svc, tokens)
	store.Restore(context.Background())

	if got, _ := tokens.Get(KeyToken); got != "new" {
		t.Fatalf("token = %q, want rotated", got)
	}
	if got, _ := tokens.Get(KeyRefreshToken); got != "refresh-new" {
		t.Fatalf("refresh token = %q, want rotated", got)
	}
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name      string
		me        credential.Result
		wantPhase Phase
		wantToken bool
	}{
		{name: "still valid", me: success("jay", "tok-j"), wantPhase: PhaseAuthenticated, wantToken: true},
		{name: "revoked", me: credential.Result{Failure: credential.FailureTokenInvalid, Message: "invalid"}, wantPhase: PhaseUnauthenticated},
		{name: "server unreachable", me: credential.Result{Failure: credential.FailureTransport, Message: "down"}, wantPhase: PhaseAuthenticated, wantToken: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := kv.NewMemoryStore()
			svc := &stubService{login: success("jay", "tok-j"), me: tt.me}
			store := newTestStore(svc, tokens)
			store.Login(context.Background(), credential.LoginRequest{})

			store.Verify(context.Background())

			if svc.meCalls != 1 {
				t.Fatalf("me calls = %d, want 1", svc.meCalls)
			}
			if got := store.Snapshot().Phase; got != tt.wantPhase {
				t.Fatalf("phase = %v, want %v", got, tt.wantPhase)
			}
			_, err := tokens.Get(KeyToken)
			if (err == nil) != tt.wantToken {
				t.Fatalf("token persisted = %v, want %v", err == nil, tt.wantToken)
			}
		})
	}
}

func TestVerifyWithoutTokenIsNoop(t *testing.T) {
	svc := &stubService{}
	store := newTestStore(svc, kv.NewMemoryStore())

	store.Verify(context.Background())

	if svc.meCalls != 0 {
		t.Fatalf("me calls = %d, want 0", svc.meCalls)
	}
}

func TestConcurrentSubscribersSerialized(t *testing.T) {
	svc := &stubService{login: success("jo", "tok-j")}
	store := New(svc, kv.NewMemoryStore(), WithLogger(logging.Discard()))

	var mu sync.Mutex
	var last uint64
	ordered := true
	done := make(chan struct{}, 64)
	store.Subscribe(func(s Snapshot) {
		mu.Lock()
		if s.Seq <= last {
			ordered = false
		}
		last = s.Seq
		mu.Unlock()
		if s.Phase == PhaseAuthenticated {
			done <- struct{}{}
		}
	})

	store.Login(context.Background(), credential.LoginRequest{})
	<-done

	mu.Lock()
	defer mu.Unlock()
	if !ordered {
		t.Fatal("subscriber observed out-of-order snapshots")
	}
}
