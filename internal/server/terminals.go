package server

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"termfolio/internal/command"
	"termfolio/internal/credential"
	"termfolio/internal/kv"
	"termfolio/internal/logging"
	"termfolio/internal/session"
	"termfolio/internal/theme"
	"termfolio/internal/tui"
)

const (
	browserTerm      = "xterm-256color"
	maxNamespaceSize = 64
)

// Terminals starts one terminal per connection. Every terminal gets its own
// session store backed by the credential file of its namespace.
type Terminals struct {
	state       *kv.Dir
	credentials credential.Service
	table       *command.Table
	host        string
	variant     theme.Variant
	logger      *log.Logger
}

type TerminalsConfig struct {
	State       *kv.Dir
	Credentials credential.Service
	Table       *command.Table
	Host        string
	Theme       theme.Variant
	Logger      *log.Logger
}

func NewTerminals(cfg TerminalsConfig) *Terminals {
	table := cfg.Table
	if table == nil {
		table = command.NewTable(command.DefaultContent())
	}
	variant := cfg.Theme
	if variant == "" {
		variant = theme.VariantDefault
	}
	return &Terminals{
		state:       cfg.State,
		credentials: cfg.Credentials,
		table:       table,
		host:        cfg.Host,
		variant:     variant,
		logger:      logging.OrDefault(cfg.Logger),
	}
}

// Run runs a terminal for namespace until in is exhausted, the user exits or
// ctx is done. term is the client's TERM value and selects the color depth.
func (t *Terminals) Run(ctx context.Context, namespace, term string, in io.Reader, out io.Writer) error {
	tokens, err := t.state.Namespace(namespace)
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	store := session.New(t.credentials, tokens, session.WithLogger(t.logger))

	palette, profile, err := theme.Resolve(t.variant, term)
	if err != nil {
		return fmt.Errorf("resolve theme: %w", err)
	}
	painter := theme.NewPainter(out, t.variant, palette, profile)

	terminal := tui.NewTerminal(in, store, tui.Options{
		Out:     out,
		Table:   t.table,
		Host:    t.host,
		Painter: painter,
		Logger:  t.logger.With("namespace", namespace),
		Context: ctx,
	})
	return terminal.Run(ctx)
}

// RunTerminal serves a browser terminal. The client id picks the namespace.
func (t *Terminals) RunTerminal(ctx context.Context, clientID string, in io.Reader, out io.Writer) error {
	namespace := "ws-" + clientID
	if len(namespace) > maxNamespaceSize {
		namespace = namespace[:maxNamespaceSize]
	}
	return t.Run(ctx, namespace, browserTerm, in, out)
}
