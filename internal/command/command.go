// Package command maps submitted lines to handlers. Every handler returns a
// Result; the dispatcher acts on its variant.
package command

import (
	"fmt"
	"sort"
	"strings"

	"termfolio/internal/session"
	"termfolio/internal/theme"
)

// Kind enumerates every command. The set is closed: run switches over it
// exhaustively and TestEveryKindHandled guards additions.
type Kind int

const (
	KindHelp Kind = iota
	KindAbout
	KindProjects
	KindSocials
	KindWhoami
	KindHistory
	KindClear
	KindTheme
	KindSignup
	KindLogin
	KindLogout
	KindAuthStatus
	kindCount
)

// ResultKind tags a Result.
type ResultKind int

const (
	ResultText ResultKind = iota
	ResultClearScreen
	ResultEnterAuthFlow
	ResultSetTheme
)

// AuthAction is the account operation requested by ResultEnterAuthFlow.
type AuthAction int

const (
	AuthSignup AuthAction = iota
	AuthLogin
	AuthLogout
)

// Result is the outcome of one command. Text is written verbatim and
// newline-terminated; Flow and Theme are set only for their variants.
type Result struct {
	Kind  ResultKind
	Text  string
	Error bool
	Flow  AuthAction
	Theme theme.Variant
}

func Text(s string) Result { return Result{Kind: ResultText, Text: s} }

func Errorf(format string, args ...any) Result {
	return Result{Kind: ResultText, Text: fmt.Sprintf(format, args...), Error: true}
}

func ClearScreen() Result { return Result{Kind: ResultClearScreen} }

func EnterAuthFlow(flow AuthAction) Result { return Result{Kind: ResultEnterAuthFlow, Flow: flow} }

func SetTheme(v theme.Variant) Result { return Result{Kind: ResultSetTheme, Theme: v} }

// Context carries the read-only state a handler may consult.
type Context struct {
	Session session.Snapshot
	History []string
	Theme   theme.Variant
	Painter *theme.Painter
}

func (c Context) paint(role theme.Role, s string) string {
	return c.Painter.Paint(role, s)
}

type entry struct {
	name    string
	kind    Kind
	usage   string
	summary string
	hidden  bool
}

var entries = []entry{
	{name: "help", kind: KindHelp, summary: "list available commands"},
	{name: "about", kind: KindAbout, summary: "who I am"},
	{name: "projects", kind: KindProjects, summary: "things I have built"},
	{name: "socials", kind: KindSocials, summary: "where to find me"},
	{name: "whoami", kind: KindWhoami, summary: "show the current user"},
	{name: "history", kind: KindHistory, summary: "show submitted commands"},
	{name: "clear", kind: KindClear, summary: "clear the screen"},
	{name: "theme", kind: KindTheme, usage: "theme [name]", summary: "list or switch color themes"},
	{name: "signup", kind: KindSignup, summary: "create an account"},
	{name: "login", kind: KindLogin, summary: "log in to your account"},
	{name: "logout", kind: KindLogout, summary: "log out"},
	{name: "auth signup", kind: KindSignup, hidden: true},
	{name: "auth login", kind: KindLogin, hidden: true},
	{name: "auth logout", kind: KindLogout, hidden: true},
	{name: "auth status", kind: KindAuthStatus, summary: "show authentication state"},
}

// Table resolves and runs commands.
type Table struct {
	content Content
	byName  map[string]Kind
	names   []string
}

func NewTable(content Content) *Table {
	t := &Table{content: content, byName: make(map[string]Kind, len(entries))}
	for _, e := range entries {
		t.byName[e.name] = e.kind
		if !strings.Contains(e.name, " ") {
			t.names = append(t.names, e.name)
		}
	}
	sort.Strings(t.names)
	return t
}

// Content returns the portfolio the table renders.
func (t *Table) Content() Content { return t.content }

// Names lists single-token command names for autocomplete.
func (t *Table) Names() []string {
	return append([]string(nil), t.names...)
}

// Lookup resolves line to a command, trying the two-token name first.
func (t *Table) Lookup(line string) (kind Kind, args []string, ok bool) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return 0, nil, false
	}
	if len(fields) >= 2 {
		if k, found := t.byName[fields[0]+" "+fields[1]]; found {
			return k, fields[2:], true
		}
	}
	if k, found := t.byName[fields[0]]; found {
		return k, fields[1:], true
	}
	return 0, nil, false
}

// Execute runs line. Unmatched input yields a "command not found" text.
func (t *Table) Execute(line string, ctx Context) Result {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Text("")
	}
	kind, args, ok := t.Lookup(line)
	if !ok {
		return Errorf("command not found: %s\nType 'help' to see available commands.", fields[0])
	}
	return t.run(kind, args, ctx)
}

func (t *Table) run(kind Kind, args []string, ctx Context) Result {
	switch kind {
	case KindHelp:
		return Text(t.help(ctx))
	case KindAbout:
		return Text(t.about(ctx))
	case KindProjects:
		return Text(t.projects(ctx))
	case KindSocials:
		return Text(t.socials(ctx))
	case KindWhoami:
		if name := ctx.Session.Username(); name != "" {
			return Text(name)
		}
		return Text("guest")
	case KindHistory:
		return Text(history(ctx.History))
	case KindClear:
		return ClearScreen()
	case KindTheme:
		return themeCommand(args, ctx)
	case KindSignup, KindLogin:
		if name := ctx.Session.Username(); name != "" {
			return Errorf("You are already logged in as %s. Run 'logout' first.", name)
		}
		if kind == KindSignup {
			return EnterAuthFlow(AuthSignup)
		}
		return EnterAuthFlow(AuthLogin)
	case KindLogout:
		if !ctx.Session.Authenticated() {
			return Errorf("You are not logged in.")
		}
		return EnterAuthFlow(AuthLogout)
	case KindAuthStatus:
		return Text(status(ctx.Session))
	default:
		panic(fmt.Sprintf("command: unhandled kind %d", kind))
	}
}

func (t *Table) help(ctx Context) string {
	var b strings.Builder
	b.WriteString(ctx.paint(theme.RoleHeading, "Available commands:"))
	for _, e := range entries {
		if e.hidden {
			continue
		}
		usage := e.usage
		if usage == "" {
			usage = e.name
		}
		fmt.Fprintf(&b, "\n  %s %s", ctx.paint(theme.RoleAccent, fmt.Sprintf("%-14s", usage)), e.summary)
	}
	b.WriteString("\n\n" + ctx.paint(theme.RoleMuted, "Tab completes, Up/Down recall history, Ctrl+L clears, Ctrl+C cancels."))
	return b.String()
}

func (t *Table) about(ctx Context) string {
	var b strings.Builder
	b.WriteString(ctx.paint(theme.RoleHeading, t.content.Name))
	if t.content.Tagline != "" {
		b.WriteString("\n" + ctx.paint(theme.RoleMuted, t.content.Tagline))
	}
	if about := strings.TrimRight(t.content.About, "\n"); about != "" {
		b.WriteString("\n\n" + about)
	}
	return b.String()
}

func (t *Table) projects(ctx Context) string {
	if len(t.content.Projects) == 0 {
		return "No projects yet."
	}
	var b strings.Builder
	b.WriteString(ctx.paint(theme.RoleHeading, "Projects"))
	for _, p := range t.content.Projects {
		fmt.Fprintf(&b, "\n\n  %s", ctx.paint(theme.RoleAccent, p.Name))
		if len(p.Tags) > 0 {
			b.WriteString(" " + ctx.paint(theme.RoleMuted, "["+strings.Join(p.Tags, ", ")+"]"))
		}
		if p.Description != "" {
			b.WriteString("\n  " + p.Description)
		}
		if p.URL != "" {
			b.WriteString("\n  " + ctx.paint(theme.RolePath, p.URL))
		}
	}
	return b.String()
}

func (t *Table) socials(ctx Context) string {
	if len(t.content.Socials) == 0 {
		return "No links yet."
	}
	var b strings.Builder
	b.WriteString(ctx.paint(theme.RoleHeading, "Find me"))
	for _, l := range t.content.Socials {
		fmt.Fprintf(&b, "\n  %s %s", ctx.paint(theme.RoleAccent, fmt.Sprintf("%-10s", l.Name)), l.URL)
	}
	return b.String()
}

func history(lines []string) string {
	if len(lines) == 0 {
		return "No commands yet."
	}
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%4d  %s", i+1, line)
	}
	return b.String()
}

func themeCommand(args []string, ctx Context) Result {
	if len(args) == 0 {
		var b strings.Builder
		b.WriteString("Themes:")
		for _, name := range theme.Names() {
			marker := " "
			if theme.Variant(name) == ctx.Theme {
				marker = "*"
			}
			fmt.Fprintf(&b, "\n %s %s", marker, name)
		}
		b.WriteString("\nUsage: theme <name>")
		return Text(b.String())
	}
	variant, _, err := theme.Lookup(args[0])
	if err != nil {
		return Errorf("Unknown theme: %s. Available: %s", args[0], strings.Join(theme.Names(), ", "))
	}
	return SetTheme(variant)
}

func status(s session.Snapshot) string {
	switch {
	case s.Busy():
		return "Authentication in progress."
	case s.Authenticated():
		return fmt.Sprintf("Logged in as %s (%s).", s.User.Username, s.User.Email)
	case s.Phase == session.PhaseError && s.LastError != "":
		return "Not logged in. Last error: " + s.LastError
	default:
		return "Not logged in."
	}
}
