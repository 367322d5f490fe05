package command

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"termfolio/internal/credential"
	"termfolio/internal/session"
	"termfolio/internal/theme"
)

func loggedIn(name string) session.Snapshot {
	return session.Snapshot{
		Seq:   1,
		Phase: session.PhaseAuthenticated,
		User:  &credential.UserRef{ID: "1", Username: name, Email: name + "@x.com"},
	}
}

func TestLookupPrefersTwoTokenName(t *testing.T) {
	table := NewTable(DefaultContent())

	tests := []struct {
		line     string
		wantKind Kind
		wantArgs int
		wantOK   bool
	}{
		{line: "help", wantKind: KindHelp, wantOK: true},
		{line: "  HELP  ", wantKind: KindHelp, wantOK: true},
		{line: "auth status", wantKind: KindAuthStatus, wantOK: true},
		{line: "auth login now", wantKind: KindLogin, wantArgs: 1, wantOK: true},
		{line: "theme matrix", wantKind: KindTheme, wantArgs: 1, wantOK: true},
		{line: "auth", wantOK: false},
		{line: "nope", wantOK: false},
		{line: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			kind, args, ok := table.Lookup(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("Lookup(%q) ok = %v", tt.line, ok)
			}
			if ok && (kind != tt.wantKind || len(args) != tt.wantArgs) {
				t.Fatalf("Lookup(%q) = %d %v", tt.line, kind, args)
			}
		})
	}
}

func TestEveryKindHandled(t *testing.T) {
	table := NewTable(DefaultContent())
	named := map[Kind]bool{}
	for _, e := range entries {
		named[e.kind] = true
	}
	for k := Kind(0); k < kindCount; k++ {
		if !named[k] {
			t.Fatalf("kind %d has no command name", k)
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("kind %d not handled: %v", k, r)
				}
			}()
			table.run(k, nil, Context{})
		}()
	}
}

func TestNamesExcludeCompound(t *testing.T) {
	names := NewTable(DefaultContent()).Names()
	for _, n := range names {
		if strings.Contains(n, " ") {
			t.Fatalf("Names() contains compound %q", n)
		}
	}
	if len(names) == 0 || names[0] != "about" {
		t.Fatalf("Names() = %v", names)
	}
}

func TestExecuteUnknown(t *testing.T) {
	res := NewTable(DefaultContent()).Execute("frobnicate now", Context{})
	if res.Kind != ResultText || !res.Error {
		t.Fatalf("Execute() = %+v", res)
	}
	if !strings.HasPrefix(res.Text, "command not found: frobnicate") {
		t.Fatalf("Text = %q", res.Text)
	}
}

func TestExecuteVariants(t *testing.T) {
	table := NewTable(DefaultContent())
	anon := session.Snapshot{}

	tests := []struct {
		name     string
		line     string
		ctx      Context
		wantKind ResultKind
		wantErr  bool
		check    func(t *testing.T, r Result)
	}{
		{name: "clear", line: "clear", wantKind: ResultClearScreen},
		{name: "signup anonymous", line: "signup", ctx: Context{Session: anon}, wantKind: ResultEnterAuthFlow, check: func(t *testing.T, r Result) {
			if r.Flow != AuthSignup {
				t.Fatalf("Flow = %d", r.Flow)
			}
		}},
		{name: "auth login anonymous", line: "auth login", wantKind: ResultEnterAuthFlow, check: func(t *testing.T, r Result) {
			if r.Flow != AuthLogin {
				t.Fatalf("Flow = %d", r.Flow)
			}
		}},
		{name: "login while logged in", line: "login", ctx: Context{Session: loggedIn("bob")}, wantKind: ResultText, wantErr: true},
		{name: "logout anonymous", line: "logout", wantKind: ResultText, wantErr: true},
		{name: "logout logged in", line: "logout", ctx: Context{Session: loggedIn("bob")}, wantKind: ResultEnterAuthFlow, check: func(t *testing.T, r Result) {
			if r.Flow != AuthLogout {
				t.Fatalf("Flow = %d", r.Flow)
			}
		}},
		{name: "whoami guest", line: "whoami", wantKind: ResultText, check: func(t *testing.T, r Result) {
			if r.Text != "guest" {
				t.Fatalf("Text = %q", r.Text)
			}
		}},
		{name: "whoami user", line: "whoami", ctx: Context{Session: loggedIn("bob")}, wantKind: ResultText, check: func(t *testing.T, r Result) {
			if r.Text != "bob" {
				t.Fatalf("Text = %q", r.Text)
			}
		}},
		{name: "auth status", line: "auth status", ctx: Context{Session: loggedIn("bob")}, wantKind: ResultText, check: func(t *testing.T, r Result) {
			if r.Text != "Logged in as bob (bob@x.com)." {
				t.Fatalf("Text = %q", r.Text)
			}
		}},
		{name: "theme switch", line: "theme Matrix", wantKind: ResultSetTheme, check: func(t *testing.T, r Result) {
			if r.Theme != theme.VariantMatrix {
				t.Fatalf("Theme = %s", r.Theme)
			}
		}},
		{name: "theme unknown", line: "theme neon", wantKind: ResultText, wantErr: true},
		{name: "theme list", line: "theme", ctx: Context{Theme: theme.VariantMono}, wantKind: ResultText, check: func(t *testing.T, r Result) {
			if !strings.Contains(r.Text, "* mono") {
				t.Fatalf("current theme not marked: %q", r.Text)
			}
		}},
		{name: "history", line: "history", ctx: Context{History: []string{"help", "about"}}, wantKind: ResultText, check: func(t *testing.T, r Result) {
			if r.Text != "   1  help\n   2  about" {
				t.Fatalf("Text = %q", r.Text)
			}
		}},
		{name: "projects", line: "projects", wantKind: ResultText, check: func(t *testing.T, r Result) {
			if !strings.Contains(r.Text, "termfolio") {
				t.Fatalf("Text = %q", r.Text)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := table.Execute(tt.line, tt.ctx)
			if r.Kind != tt.wantKind || r.Error != tt.wantErr {
				t.Fatalf("Execute(%q) = %+v", tt.line, r)
			}
			if tt.check != nil {
				tt.check(t, r)
			}
		})
	}
}

func TestHelpListsVisibleCommands(t *testing.T) {
	text := NewTable(DefaultContent()).Execute("help", Context{}).Text
	for _, want := range []string{"about", "projects", "theme [name]", "auth status"} {
		if !strings.Contains(text, want) {
			t.Fatalf("help missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "auth signup") {
		t.Fatalf("help lists hidden alias:\n%s", text)
	}
}

func TestLoadContent(t *testing.T) {
	c, err := LoadContent("")
	if err != nil || c.Name == "" || len(c.Projects) == 0 {
		t.Fatalf("LoadContent(\"\") = %+v, %v", c, err)
	}

	path := filepath.Join(t.TempDir(), "content.yaml")
	doc := "name: Ada\nabout: engines\nsocials:\n  - name: Web\n    url: https://ada.dev\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err = LoadContent(path)
	if err != nil {
		t.Fatalf("LoadContent() error: %v", err)
	}
	if c.Name != "Ada" || len(c.Socials) != 1 || c.Socials[0].URL != "https://ada.dev" {
		t.Fatalf("LoadContent() = %+v", c)
	}

	if err := os.WriteFile(path, []byte("about: nameless\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadContent(path); err == nil {
		t.Fatal("LoadContent() expected error for missing name")
	}
}
