package theme

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Variant identifies a named palette.
type Variant string

const (
	VariantDefault   Variant = "default"
	VariantDracula   Variant = "dracula"
	VariantMatrix    Variant = "matrix"
	VariantSolarized Variant = "solarized"
	VariantMono      Variant = "mono"
)

// Role is a semantic color slot. Output code asks for a role, never a color.
type Role int

const (
	RoleUser Role = iota
	RoleHost
	RolePath
	RoleHeading
	RoleAccent
	RoleMuted
	RoleDanger
	RoleSuccess
)

// Style describes presentational attributes for one role.
type Style struct {
	Foreground string
	Bold       bool
}

// Palette maps every role to a style.
type Palette struct {
	User    Style
	Host    Style
	Path    Style
	Heading Style
	Accent  Style
	Muted   Style
	Danger  Style
	Success Style
}

// Style returns the style for role.
func (p Palette) Style(role Role) Style {
	switch role {
	case RoleUser:
		return p.User
	case RoleHost:
		return p.Host
	case RolePath:
		return p.Path
	case RoleHeading:
		return p.Heading
	case RoleAccent:
		return p.Accent
	case RoleMuted:
		return p.Muted
	case RoleDanger:
		return p.Danger
	case RoleSuccess:
		return p.Success
	default:
		return Style{}
	}
}

// TermProfile describes terminal rendering capabilities derived from TERM.
type TermProfile struct {
	Colors    int
	TrueColor bool
	IsTTY     bool
}

// ErrUnknownVariant is returned when a requested variant is not known.
var ErrUnknownVariant = errors.New("unknown theme variant")

var (
	termProfileCache sync.Map
	knownProfiles    = map[string]TermProfile{
		"dumb":           {Colors: 0, TrueColor: false, IsTTY: false},
		"ansi":           {Colors: 8, TrueColor: false, IsTTY: true},
		"linux":          {Colors: 16, TrueColor: false, IsTTY: true},
		"xterm":          {Colors: 16, TrueColor: false, IsTTY: true},
		"xterm-256color": {Colors: 256, TrueColor: false, IsTTY: true},
		"screen":         {Colors: 8, TrueColor: false, IsTTY: true},
		"tmux":           {Colors: 256, TrueColor: false, IsTTY: true},
		"vt100":          {Colors: 8, TrueColor: false, IsTTY: true},
		"xterm-kitty":    {Colors: 1 << 24, TrueColor: true, IsTTY: true},
		"wezterm":        {Colors: 1 << 24, TrueColor: true, IsTTY: true},
	}
)

var palettes = map[Variant]Palette{
	VariantDefault: {
		User:    Style{Foreground: "#50FA7B", Bold: true},
		Host:    Style{Foreground: "#8BE9FD", Bold: true},
		Path:    Style{Foreground: "#BD93F9"},
		Heading: Style{Foreground: "#F1FA8C", Bold: true},
		Accent:  Style{Foreground: "#8BE9FD"},
		Muted:   Style{Foreground: "#6272A4"},
		Danger:  Style{Foreground: "#FF5555", Bold: true},
		Success: Style{Foreground: "#50FA7B"},
	},
	VariantDracula: {
		User:    Style{Foreground: "#FF79C6", Bold: true},
		Host:    Style{Foreground: "#BD93F9", Bold: true},
		Path:    Style{Foreground: "#8BE9FD"},
		Heading: Style{Foreground: "#FF79C6", Bold: true},
		Accent:  Style{Foreground: "#BD93F9"},
		Muted:   Style{Foreground: "#6272A4"},
		Danger:  Style{Foreground: "#FF5555", Bold: true},
		Success: Style{Foreground: "#50FA7B"},
	},
	VariantMatrix: {
		User:    Style{Foreground: "#00FF41", Bold: true},
		Host:    Style{Foreground: "#008F11", Bold: true},
		Path:    Style{Foreground: "#00FF41"},
		Heading: Style{Foreground: "#00FF41", Bold: true},
		Accent:  Style{Foreground: "#008F11"},
		Muted:   Style{Foreground: "#003B00"},
		Danger:  Style{Foreground: "#FF3B3B", Bold: true},
		Success: Style{Foreground: "#00FF41"},
	},
	VariantSolarized: {
		User:    Style{Foreground: "#859900", Bold: true},
		Host:    Style{Foreground: "#268BD2", Bold: true},
		Path:    Style{Foreground: "#2AA198"},
		Heading: Style{Foreground: "#B58900", Bold: true},
		Accent:  Style{Foreground: "#268BD2"},
		Muted:   Style{Foreground: "#586E75"},
		Danger:  Style{Foreground: "#DC322F", Bold: true},
		Success: Style{Foreground: "#859900"},
	},
	VariantMono: monoPalette(),
}

// Names lists the known variants in sorted order.
func Names() []string {
	out := make([]string, 0, len(palettes))
	for v := range palettes {
		out = append(out, string(v))
	}
	sort.Strings(out)
	return out
}

// Lookup resolves a variant by case-insensitive name.
func Lookup(name string) (Variant, Palette, error) {
	variant := Variant(strings.ToLower(strings.TrimSpace(name)))
	p, ok := palettes[variant]
	if !ok {
		return "", Palette{}, fmt.Errorf("%w: %s", ErrUnknownVariant, name)
	}
	return variant, p, nil
}

// Resolve returns the palette for variant, degraded to monochrome when the
// terminal described by term cannot render color.
func Resolve(variant Variant, term string) (Palette, TermProfile, error) {
	p, ok := palettes[variant]
	if !ok {
		return Palette{}, TermProfile{}, fmt.Errorf("%w: %s", ErrUnknownVariant, variant)
	}
	profile := DetectTermProfile(term)
	if !profile.IsTTY || profile.Colors == 0 {
		return monoPalette(), profile, nil
	}
	return p, profile, nil
}

// DetectTermProfile maps TERM to a terminal capability profile.
func DetectTermProfile(term string) TermProfile {
	norm := strings.ToLower(strings.TrimSpace(term))
	if cached, ok := termProfileCache.Load(norm); ok {
		return cached.(TermProfile)
	}

	profile := detectTermProfileUncached(norm)
	termProfileCache.Store(norm, profile)
	return profile
}

func detectTermProfileUncached(norm string) TermProfile {
	if norm == "" {
		return TermProfile{Colors: 0, TrueColor: false, IsTTY: false}
	}

	if p, ok := knownProfiles[norm]; ok {
		return p
	}

	profile := TermProfile{Colors: 16, TrueColor: false, IsTTY: true}
	if strings.Contains(norm, "truecolor") || strings.Contains(norm, "24bit") || strings.Contains(norm, "kitty") || strings.Contains(norm, "wezterm") {
		profile.TrueColor = true
		profile.Colors = 1 << 24
	}
	if strings.Contains(norm, "256") {
		profile.Colors = 256
	}
	if strings.Contains(norm, "dumb") {
		profile = TermProfile{Colors: 0, TrueColor: false, IsTTY: false}
	}
	if strings.Contains(norm, "screen") {
		profile.Colors = 8
	}

	return profile
}

func monoPalette() Palette {
	return Palette{
		User:    Style{Bold: true},
		Host:    Style{Bold: true},
		Heading: Style{Bold: true},
		Danger:  Style{Bold: true},
	}
}
