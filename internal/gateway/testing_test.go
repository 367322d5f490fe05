package gateway

import (
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"termfolio/internal/logging"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store       *SQLiteStore
	tokens      *TokenIssuer
	revocations *MemoryRevocations
	svc         *Service
	clock       *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := OpenDB(":memory:")
	if err != nil {
		t.Fatalf("OpenDB() error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	c := newClock()
	tokens, err := NewTokenIssuer(testSecret, time.Hour, c.Now)
	if err != nil {
		t.Fatalf("NewTokenIssuer() error: %v", err)
	}
	store := NewSQLiteStore(db)
	revocations := NewMemoryRevocations(c.Now)
	svc, err := NewService(store, store, tokens, Options{
		RefreshTTL:  24 * time.Hour,
		BcryptCost:  bcrypt.MinCost,
		Revocations: revocations,
		Logger:      logging.Discard(),
		Now:         c.Now,
	})
	if err != nil {
		t.Fatalf("NewService() error: %v", err)
	}
	return &fixture{store: store, tokens: tokens, revocations: revocations, svc: svc, clock: c}
}
