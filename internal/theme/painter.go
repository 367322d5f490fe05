package theme

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Painter applies a palette to output text.
type Painter struct {
	variant  Variant
	palette  Palette
	renderer *lipgloss.Renderer
	plain    bool
}

// NewPainter returns a painter for the given terminal. A zero profile
// (non-TTY or TERM=dumb) yields a painter that returns text unchanged.
func NewPainter(w io.Writer, variant Variant, palette Palette, profile TermProfile) *Painter {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(colorProfile(profile))
	return &Painter{
		variant:  variant,
		palette:  palette,
		renderer: r,
		plain:    !profile.IsTTY,
	}
}

// Plain returns a painter that never emits escape sequences.
func Plain() *Painter {
	return &Painter{variant: VariantMono, palette: monoPalette(), plain: true}
}

// Variant is the active palette name.
func (p *Painter) Variant() Variant { return p.variant }

// WithVariant returns a painter sharing p's renderer with another palette.
func (p *Painter) WithVariant(variant Variant, palette Palette) *Painter {
	return &Painter{variant: variant, palette: palette, renderer: p.renderer, plain: p.plain}
}

// Paint styles s for role.
func (p *Painter) Paint(role Role, s string) string {
	if p == nil || p.plain || p.renderer == nil || s == "" {
		return s
	}
	st := p.palette.Style(role)
	style := p.renderer.NewStyle().Bold(st.Bold)
	if st.Foreground != "" {
		style = style.Foreground(lipgloss.Color(st.Foreground))
	}
	return style.Render(s)
}

func colorProfile(profile TermProfile) termenv.Profile {
	switch {
	case !profile.IsTTY || profile.Colors == 0:
		return termenv.Ascii
	case profile.TrueColor:
		return termenv.TrueColor
	case profile.Colors >= 256:
		return termenv.ANSI256
	default:
		return termenv.ANSI
	}
}
