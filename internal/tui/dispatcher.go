// Package tui is the terminal core: it routes every keystroke to line
// editing, the form collector or command dispatch, and keeps the prompt in
// step with the session.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"termfolio/internal/command"
	"termfolio/internal/credential"
	"termfolio/internal/form"
	"termfolio/internal/keys"
	"termfolio/internal/logging"
	"termfolio/internal/session"
	"termfolio/internal/theme"
)

const (
	msgBusy          = "Please wait: authentication in progress."
	msgFormDisabled  = "(disabled during authentication)"
	msgInternalError = "Something went wrong. Please try again."
)

// SessionController is the part of the session store the dispatcher drives.
type SessionController interface {
	Snapshot() session.Snapshot
	Signup(ctx context.Context, req credential.SignupRequest)
	Login(ctx context.Context, req credential.LoginRequest)
	Logout(ctx context.Context)
	ClearError()
	Verify(ctx context.Context)
}

// Options configures a Dispatcher.
type Options struct {
	Out     io.Writer
	Table   *command.Table
	Session SessionController
	// Host is shown in the prompt after the "@".
	Host    string
	Painter *theme.Painter
	Logger  *log.Logger
	// Context bounds credential calls started from this terminal.
	Context context.Context
}

// pendingAuth tracks a credential operation started from this terminal.
type pendingAuth struct {
	action   command.AuthAction
	detached bool
}

// Dispatcher is the terminal input state machine. It is owned by a single
// goroutine and performs no locking.
type Dispatcher struct {
	out     io.Writer
	table   *command.Table
	session SessionController
	host    string
	painter *theme.Painter
	logger  *log.Logger
	ctx     context.Context

	line    LineBuffer
	history History
	form    *form.Collector
	snap    session.Snapshot
	pending *pendingAuth
}

func NewDispatcher(opts Options) *Dispatcher {
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	painter := opts.Painter
	if painter == nil {
		painter = theme.Plain()
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	table := opts.Table
	if table == nil {
		table = command.NewTable(command.DefaultContent())
	}
	d := &Dispatcher{
		out:     out,
		table:   table,
		session: opts.Session,
		host:    promptHost(opts.Host),
		painter: painter,
		logger:  logging.OrDefault(opts.Logger),
		ctx:     ctx,
		form:    form.NewCollector(out),
	}
	if d.session != nil {
		d.snap = d.session.Snapshot()
	}
	return d
}

// Start prints the banner, any notices and the first prompt.
func (d *Dispatcher) Start(notices ...string) {
	if motd := d.table.Content().MOTD; motd != "" {
		d.write(d.painter.Paint(theme.RoleHeading, motd) + "\r\n")
	}
	for _, n := range notices {
		d.writeLine(d.painter.Paint(theme.RoleMuted, n))
	}
	d.drawPrompt()
}

// PromptText is the unstyled prompt for the last applied session snapshot.
func (d *Dispatcher) PromptText() string { return PromptText(d.snap, d.host) }

// Busy reports whether a credential call is outstanding.
func (d *Dispatcher) Busy() bool { return d.snap.Busy() }

// Buffer is the current command line.
func (d *Dispatcher) Buffer() string { return d.line.String() }

// FormActive reports whether a form is collecting fields.
func (d *Dispatcher) FormActive() bool { return d.form.Active() }

// CanExit reports whether Ctrl+D should end the terminal: no form and an
// empty line.
func (d *Dispatcher) CanExit() bool { return !d.form.Active() && d.line.Len() == 0 }

// History returns the submitted commands.
func (d *Dispatcher) History() []string { return d.history.Entries() }

// Theme is the active palette.
func (d *Dispatcher) Theme() theme.Variant { return d.painter.Variant() }

// Dispatch processes one keystroke.
func (d *Dispatcher) Dispatch(k keys.Key) {
	switch {
	case d.form.OnPassword():
		if k.Kind == keys.KindCtrlL {
			d.write(clearScreen + d.form.Label() + d.form.MaskedInput())
			return
		}
		d.form.HandlePasswordKey(k)
	case d.form.Active():
		d.dispatchFormText(k)
	default:
		d.dispatchIdle(k)
	}
}

func (d *Dispatcher) dispatchFormText(k keys.Key) {
	if k.Printable() {
		d.insert(k.Rune)
		return
	}
	switch k.Kind {
	case keys.KindBackspace:
		if d.line.Backspace() {
			d.write("\b \b")
		}
	case keys.KindEnter:
		value := d.line.String()
		d.line.Reset()
		d.form.Submit(value)
	case keys.KindUp, keys.KindDown, keys.KindTab:
		d.write("\r\n" + d.painter.Paint(theme.RoleMuted, msgFormDisabled) + "\r\n" + d.form.Label() + d.line.String())
	case keys.KindCtrlC:
		d.form.Cancel()
	case keys.KindCtrlL:
		d.write(clearScreen + d.form.Label() + d.line.String())
	}
}

func (d *Dispatcher) dispatchIdle(k keys.Key) {
	if k.Printable() {
		d.insert(k.Rune)
		return
	}
	switch k.Kind {
	case keys.KindBackspace:
		if d.line.Backspace() {
			d.write("\b \b")
		}
	case keys.KindEnter:
		d.submit()
	case keys.KindTab:
		d.autocomplete()
	case keys.KindUp:
		if recalled, ok := d.history.Up(); ok {
			d.line.Set(recalled)
			d.Refresh()
		}
	case keys.KindDown:
		if recalled, ok := d.history.Down(); ok {
			d.line.Set(recalled)
			d.Refresh()
		}
	case keys.KindCtrlL:
		d.line.Reset()
		d.history.ResetCursor()
		d.write(clearScreen)
		d.drawPrompt()
	case keys.KindCtrlC:
		if d.pending != nil {
			d.pending.detached = true
		}
		d.line.Reset()
		d.history.ResetCursor()
		d.write("^C\r\n")
		d.drawPrompt()
	}
}

func (d *Dispatcher) insert(b byte) {
	d.line.Insert(b)
	d.write(string(b))
}

// Refresh redraws the prompt and the current line in place.
func (d *Dispatcher) Refresh() {
	d.write(clearLine)
	d.drawPrompt()
}

func (d *Dispatcher) drawPrompt() {
	d.write(RenderPrompt(d.snap, d.host, d.painter) + d.line.String())
}

func (d *Dispatcher) submit() {
	line := d.line.String()
	d.line.Reset()
	d.history.ResetCursor()
	d.write("\r\n")

	if strings.TrimSpace(line) == "" {
		d.drawPrompt()
		return
	}

	kind, _, known := d.table.Lookup(line)
	if d.Busy() && !(known && (kind == command.KindHelp || kind == command.KindClear)) {
		d.writeLine(d.painter.Paint(theme.RoleMuted, msgBusy))
		d.drawPrompt()
		return
	}

	d.history.Append(line)
	snap := d.snap
	if snap.Phase == session.PhaseError {
		d.session.ClearError()
		// The command sees the cleared state; the store's notification arrives later.
		snap.Phase = session.PhaseUnauthenticated
		if snap.Authenticated() {
			snap.Phase = session.PhaseAuthenticated
		}
		snap.LastError = ""
		snap.Failure = credential.FailureNone
	}

	res := d.table.Execute(line, command.Context{
		Session: snap,
		History: d.history.Entries(),
		Theme:   d.painter.Variant(),
		Painter: d.painter,
	})
	if known && kind == command.KindAuthStatus && snap.Authenticated() {
		d.session.Verify(d.ctx)
	}
	d.apply(res)
}

func (d *Dispatcher) apply(res command.Result) {
	switch res.Kind {
	case command.ResultText:
		if res.Text != "" {
			text := res.Text
			if res.Error {
				text = d.painter.Paint(theme.RoleDanger, text)
			}
			d.writeLine(text)
		}
		d.drawPrompt()
	case command.ResultClearScreen:
		d.write(clearScreen)
		d.drawPrompt()
	case command.ResultSetTheme:
		_, palette, err := theme.Lookup(string(res.Theme))
		if err != nil {
			d.writeLine(d.painter.Paint(theme.RoleDanger, err.Error()))
		} else {
			d.painter = d.painter.WithVariant(res.Theme, palette)
			d.writeLine("Theme set to " + d.painter.Paint(theme.RoleAccent, string(res.Theme)) + ".")
		}
		d.drawPrompt()
	case command.ResultEnterAuthFlow:
		d.enterAuthFlow(res.Flow)
	}
}

func (d *Dispatcher) enterAuthFlow(action command.AuthAction) {
	switch action {
	case command.AuthLogout:
		d.pending = &pendingAuth{action: action}
		d.session.Logout(d.ctx)
		d.drawPromptIfPending()
	case command.AuthSignup, command.AuthLogin:
		flow := form.FlowLogin
		intro := "Log in to your account. Press Ctrl+C to cancel."
		if action == command.AuthSignup {
			flow = form.FlowSignup
			intro = "Create an account. Press Ctrl+C to cancel."
		}
		d.writeLine(d.painter.Paint(theme.RoleMuted, intro))
		err := d.form.Start(form.Fields(flow),
			func(values map[string]string) { d.completeForm(action, values) },
			func() { d.cancelForm(flow) },
		)
		if err != nil {
			d.logger.Error("start form failed", "event", "form_start_failed", "flow", flow, "error", err)
			d.drawPrompt()
		}
	}
}

// completeForm hands collected values to the session store. A panic here
// leaves the terminal usable.
func (d *Dispatcher) completeForm(action command.AuthAction, values map[string]string) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("form completion panicked", "event", "form_complete_panic", "panic", fmt.Sprint(r))
			d.pending = nil
			d.line.Reset()
			d.writeLine(d.painter.Paint(theme.RoleDanger, msgInternalError))
			d.drawPrompt()
		}
	}()

	d.pending = &pendingAuth{action: action}
	if action == command.AuthSignup {
		d.writeLine(d.painter.Paint(theme.RoleMuted, "Creating account..."))
		d.session.Signup(d.ctx, form.SignupRequest(values))
	} else {
		d.writeLine(d.painter.Paint(theme.RoleMuted, "Logging in..."))
		d.session.Login(d.ctx, form.LoginRequest(values))
	}
	d.drawPromptIfPending()
}

func (d *Dispatcher) cancelForm(flow form.Flow) {
	d.line.Reset()
	d.write("^C\r\n")
	d.writeLine(d.painter.Paint(theme.RoleMuted, cancelNotice(flow)))
	d.drawPrompt()
}

func cancelNotice(flow form.Flow) string {
	if flow == form.FlowSignup {
		return "Signup cancelled."
	}
	return "Login cancelled."
}

// drawPromptIfPending shows a prompt while an operation is in flight. When
// the outcome was already applied, its handler drew the prompt.
func (d *Dispatcher) drawPromptIfPending() {
	if d.pending != nil {
		d.drawPrompt()
	}
}

// OnSession applies a session snapshot. Snapshots not newer than the last
// applied one are ignored.
func (d *Dispatcher) OnSession(snap session.Snapshot) {
	if snap.Seq <= d.snap.Seq {
		return
	}
	prev := d.snap
	d.snap = snap
	identityChanged := prev.Username() != snap.Username()

	message := d.outcomeMessage(snap)
	if d.form.Active() {
		// The field prompt owns the line; the new prompt shows after the form.
		return
	}
	switch {
	case message != "":
		d.write(clearLine + message + "\r\n")
		d.drawPrompt()
	case identityChanged:
		d.Refresh()
	}
}

// outcomeMessage resolves the pending operation, if snap settles it, and
// returns the line to print. Detached operations print nothing.
func (d *Dispatcher) outcomeMessage(snap session.Snapshot) string {
	var message string
	settled := true
	switch snap.Action {
	case session.ActionSignupSucceeded:
		message = d.painter.Paint(theme.RoleSuccess, fmt.Sprintf("Account created. Welcome, %s!", snap.Username()))
	case session.ActionLoginSucceeded:
		message = d.painter.Paint(theme.RoleSuccess, fmt.Sprintf("Welcome back, %s!", snap.Username()))
	case session.ActionErrorOccurred:
		message = d.painter.Paint(theme.RoleDanger, snap.LastError)
	case session.ActionLogoutCompleted:
		message = "Logged out."
	case session.ActionRestoreSucceeded:
		return d.painter.Paint(theme.RoleMuted, fmt.Sprintf("Session restored. Logged in as %s.", snap.Username()))
	case session.ActionSessionExpired:
		return d.painter.Paint(theme.RoleDanger, snap.LastError)
	default:
		settled = false
	}
	if !settled {
		return ""
	}
	if d.pending == nil || d.pending.detached {
		d.pending = nil
		return ""
	}
	d.pending = nil
	return message
}

func (d *Dispatcher) autocomplete() {
	prefix := strings.ToLower(d.line.String())
	var matches []string
	for _, name := range d.table.Names() {
		if strings.HasPrefix(name, prefix) {
			matches = append(matches, name)
		}
	}
	switch len(matches) {
	case 0:
	case 1:
		suffix := matches[0][len(prefix):]
		if suffix != "" {
			d.line.InsertString(suffix)
			d.write(suffix)
		}
	default:
		d.write("\r\n" + strings.Join(matches, " ") + "\r\n")
		d.drawPrompt()
	}
}

// writeLine writes s followed by a line break, translating embedded newlines.
func (d *Dispatcher) writeLine(s string) {
	d.write(strings.ReplaceAll(s, "\n", "\r\n") + "\r\n")
}

func (d *Dispatcher) write(s string) {
	if s == "" {
		return
	}
	if _, err := io.WriteString(d.out, s); err != nil {
		d.logger.Debug("terminal write failed", "event", "terminal_write_failed", "error", err)
	}
}
