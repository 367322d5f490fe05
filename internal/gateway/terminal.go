package gateway

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"termfolio/internal/logging"
)

var validClientIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)

const (
	maxTerminalFrameBytes = 4 * 1024
	terminalWriteTimeout  = 10 * time.Second
)

// TerminalRunner runs one interactive terminal until in is exhausted or ctx
// is done. clientID identifies the browser so its credential persists.
type TerminalRunner interface {
	RunTerminal(ctx context.Context, clientID string, in io.Reader, out io.Writer) error
}

// TerminalHandler upgrades GET /terminal?client=<id> to a websocket. Incoming
// text or binary frames are raw keyboard bytes; output goes out as text frames.
type TerminalHandler struct {
	runner   TerminalRunner
	upgrader websocket.Upgrader
	logger   *log.Logger
}

func NewTerminalHandler(runner TerminalRunner, logger *log.Logger) *TerminalHandler {
	return &TerminalHandler{
		runner: runner,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  maxTerminalFrameBytes,
			WriteBufferSize: maxTerminalFrameBytes,
		},
		logger: logging.OrDefault(logger),
	}
}

func (t *TerminalHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client")
	if !validClientIDPattern.MatchString(clientID) {
		writeErr(w, http.StatusBadRequest, "INVALID_REQUEST", "client must be 8-64 characters of letters, digits, '_' or '-'")
		return
	}

	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		t.logger.Warn("websocket upgrade failed", "event", "terminal_upgrade_failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxTerminalFrameBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	in, feed := io.Pipe()
	go func() {
		defer cancel()
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				_ = feed.Close()
				return
			}
			if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
				continue
			}
			if _, err := feed.Write(data); err != nil {
				return
			}
		}
	}()

	t.logger.Info("terminal connected", "event", "terminal_connected", "remote", r.RemoteAddr)
	out := &frameWriter{conn: conn}
	if err := t.runner.RunTerminal(ctx, clientID, in, out); err != nil {
		t.logger.Warn("terminal ended with error", "event", "terminal_failed", "remote", r.RemoteAddr, "error", err)
	}
	_ = in.Close()
	out.close()
	t.logger.Info("terminal disconnected", "event", "terminal_disconnected", "remote", r.RemoteAddr)
}

// frameWriter sends each Write as one text frame.
type frameWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (f *frameWriter) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_ = f.conn.SetWriteDeadline(time.Now().Add(terminalWriteTimeout))
	if err := f.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (f *frameWriter) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = f.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
