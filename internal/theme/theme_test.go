package theme

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestDetectTermProfileTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		term string
		want TermProfile
	}{
		{name: "xterm", term: "xterm", want: TermProfile{Colors: 16, IsTTY: true}},
		{name: "xterm-256color", term: "xterm-256color", want: TermProfile{Colors: 256, IsTTY: true}},
		{name: "screen", term: "screen", want: TermProfile{Colors: 8, IsTTY: true}},
		{name: "screen variant", term: "screen-bce", want: TermProfile{Colors: 8, IsTTY: true}},
		{name: "dumb", term: "dumb", want: TermProfile{Colors: 0, IsTTY: false}},
		{name: "empty", term: "", want: TermProfile{Colors: 0, IsTTY: false}},
		{name: "kitty truecolor", term: "xterm-kitty", want: TermProfile{Colors: 1 << 24, TrueColor: true, IsTTY: true}},
		{name: "unknown truecolor", term: "foot-truecolor", want: TermProfile{Colors: 1 << 24, TrueColor: true, IsTTY: true}},
		{name: "case folded", term: " XTERM-256COLOR ", want: TermProfile{Colors: 256, IsTTY: true}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := DetectTermProfile(tt.term)
			if got != tt.want {
				t.Fatalf("DetectTermProfile(%q) = %+v, want %+v", tt.term, got, tt.want)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()

	variant, palette, err := Lookup(" Dracula ")
	if err != nil {
		t.Fatalf("Lookup() unexpected error: %v", err)
	}
	if variant != VariantDracula || palette != palettes[VariantDracula] {
		t.Fatalf("Lookup() = %s %+v", variant, palette)
	}

	if _, _, err := Lookup("neon"); !errors.Is(err, ErrUnknownVariant) {
		t.Fatalf("Lookup(neon) error = %v, want ErrUnknownVariant", err)
	}
}

func TestNamesSorted(t *testing.T) {
	t.Parallel()

	names := Names()
	if len(names) != len(palettes) {
		t.Fatalf("Names() = %v", names)
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("Names() not sorted: %v", names)
		}
	}
}

func TestResolveDegradesOnDumbTerminal(t *testing.T) {
	t.Parallel()

	palette, profile, err := Resolve(VariantMatrix, "dumb")
	if err != nil {
		t.Fatalf("Resolve() unexpected error: %v", err)
	}
	if profile.IsTTY || palette != monoPalette() {
		t.Fatalf("expected mono palette for dumb terminal, got %+v", palette)
	}

	palette, _, err = Resolve(VariantMatrix, "xterm-256color")
	if err != nil {
		t.Fatalf("Resolve() unexpected error: %v", err)
	}
	if palette != palettes[VariantMatrix] {
		t.Fatalf("expected matrix palette, got %+v", palette)
	}
}

func TestResolveImmutability(t *testing.T) {
	t.Parallel()

	first, _, err := Resolve(VariantDefault, "wezterm")
	if err != nil {
		t.Fatalf("Resolve() unexpected error: %v", err)
	}
	first.User.Foreground = "#000000"

	second, _, _ := Resolve(VariantDefault, "wezterm")
	if second.User.Foreground != "#50FA7B" {
		t.Fatalf("expected immutable palette, got %q", second.User.Foreground)
	}
}

func TestPainter(t *testing.T) {
	t.Parallel()

	if got := Plain().Paint(RoleUser, "bob"); got != "bob" {
		t.Fatalf("plain Paint() = %q", got)
	}

	var buf bytes.Buffer
	palette, profile, _ := Resolve(VariantDefault, "xterm-kitty")
	p := NewPainter(&buf, VariantDefault, palette, profile)
	got := p.Paint(RoleDanger, "error")
	if !strings.Contains(got, "error") || !strings.Contains(got, "\x1b[") {
		t.Fatalf("truecolor Paint() = %q, want styled text", got)
	}

	mono := p.WithVariant(VariantMono, monoPalette())
	if mono.Variant() != VariantMono {
		t.Fatalf("WithVariant() variant = %s", mono.Variant())
	}
}
