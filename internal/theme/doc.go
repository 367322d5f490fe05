// Package theme resolves named color palettes for the terminal and paints
// output text with them.
//
// Integration example:
//
//	variant, _, err := theme.Lookup("dracula")
//	if err != nil {
//		return err
//	}
//	palette, profile, _ := theme.Resolve(variant, os.Getenv("TERM"))
//	painter := theme.NewPainter(w, variant, palette, profile)
//	fmt.Fprint(w, painter.Paint(theme.RoleUser, "bob"))
package theme
