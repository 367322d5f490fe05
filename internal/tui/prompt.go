package tui

import (
	"termfolio/internal/session"
	"termfolio/internal/theme"
)

const (
	// DefaultHost is shown after the "@" when no host is configured.
	DefaultHost = "termfolio"
	guestName   = "guest"

	clearLine   = "\r\x1b[K"
	clearScreen = "\x1b[2J\x1b[H"
)

// PromptText is the unstyled prompt for snap.
func PromptText(snap session.Snapshot, host string) string {
	return promptUser(snap) + "@" + promptHost(host) + ":~$ "
}

// RenderPrompt is PromptText styled by painter. A plain painter returns
// exactly PromptText.
func RenderPrompt(snap session.Snapshot, host string, painter *theme.Painter) string {
	return painter.Paint(theme.RoleUser, promptUser(snap)) +
		"@" + painter.Paint(theme.RoleHost, promptHost(host)) +
		":" + painter.Paint(theme.RolePath, "~") + "$ "
}

func promptUser(snap session.Snapshot) string {
	if name := snap.Username(); name != "" {
		return name
	}
	return guestName
}

func promptHost(host string) string {
	if host == "" {
		return DefaultHost
	}
	return host
}
