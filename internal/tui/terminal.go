package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"termfolio/internal/credential"
	"termfolio/internal/keys"
	"termfolio/internal/logging"
	"termfolio/internal/session"
)

// escapeTimeout is how long a lone ESC waits for the rest of a sequence.
const escapeTimeout = 50 * time.Millisecond

// Store is the session store as seen by a Terminal.
type Store interface {
	SessionController
	Subscribe(fn func(session.Snapshot)) (unsubscribe func())
	Restore(ctx context.Context)
	PersistedUser() (credential.UserRef, bool)
}

// Terminal runs one Dispatcher against an input stream. Keys and session
// snapshots are applied on a single goroutine; pending snapshots are always
// applied before the next key.
type Terminal struct {
	in     io.Reader
	store  Store
	d      *Dispatcher
	logger *log.Logger

	mu     sync.Mutex
	queued []session.Snapshot
	wake   chan struct{}
}

// NewTerminal wires a dispatcher built from opts to store. opts.Session is
// replaced by store.
func NewTerminal(in io.Reader, store Store, opts Options) *Terminal {
	opts.Session = store
	return &Terminal{
		in:     in,
		store:  store,
		d:      NewDispatcher(opts),
		logger: logging.OrDefault(opts.Logger),
		wake:   make(chan struct{}, 1),
	}
}

// Dispatcher exposes the terminal's input state machine.
func (t *Terminal) Dispatcher() *Dispatcher { return t.d }

// Run prints the banner, names the cached user while the persisted
// credential is checked, and processes input until EOF, Ctrl+D on an empty
// line, or ctx is done.
func (t *Terminal) Run(ctx context.Context) error {
	unsubscribe := t.store.Subscribe(t.enqueue)
	defer unsubscribe()

	chunks := make(chan []byte)
	readErr := make(chan error, 1)
	go t.read(ctx, chunks, readErr)

	var notices []string
	if user, ok := t.store.PersistedUser(); ok {
		notices = append(notices, fmt.Sprintf("Restoring session for %s...", user.Username))
	}
	t.d.Start(notices...)
	t.store.Restore(ctx)

	var dec keys.Decoder
	for {
		t.drain()

		var flush <-chan time.Time
		if dec.Pending() {
			flush = time.After(escapeTimeout)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-t.wake:
		case <-flush:
			if t.dispatchAll(dec.Flush()) {
				return nil
			}
		case chunk := <-chunks:
			if t.dispatchAll(dec.Feed(chunk)) {
				return nil
			}
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// dispatchAll feeds keys to the dispatcher and reports whether the user
// asked to leave.
func (t *Terminal) dispatchAll(ks []keys.Key) bool {
	for _, k := range ks {
		t.drain()
		if k.Kind == keys.KindCtrlD {
			if t.d.CanExit() {
				t.d.write("\r\nBye.\r\n")
				return true
			}
			continue
		}
		t.d.Dispatch(k)
	}
	return false
}

func (t *Terminal) read(ctx context.Context, chunks chan<- []byte, readErr chan<- error) {
	buf := make([]byte, 1024)
	for {
		n, err := t.in.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			readErr <- err
			return
		}
	}
}

// enqueue is the store subscriber. It never blocks so the store can notify
// from inside a dispatcher call.
func (t *Terminal) enqueue(snap session.Snapshot) {
	t.mu.Lock()
	t.queued = append(t.queued, snap)
	t.mu.Unlock()
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *Terminal) drain() {
	for {
		t.mu.Lock()
		queued := t.queued
		t.queued = nil
		t.mu.Unlock()
		if len(queued) == 0 {
			return
		}
		for _, snap := range queued {
			t.d.OnSession(snap)
		}
	}
}
