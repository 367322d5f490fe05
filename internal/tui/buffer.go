package tui

// LineBuffer is the command line being edited. Characters are always
// appended at the end; there is no cursor movement within the line.
type LineBuffer struct {
	buf []byte
}

func (l *LineBuffer) Insert(b byte) { l.buf = append(l.buf, b) }

func (l *LineBuffer) InsertString(s string) { l.buf = append(l.buf, s...) }

// Backspace removes the last character. It reports false on an empty line.
func (l *LineBuffer) Backspace() bool {
	if len(l.buf) == 0 {
		return false
	}
	l.buf = l.buf[:len(l.buf)-1]
	return true
}

func (l *LineBuffer) Set(s string) { l.buf = append(l.buf[:0], s...) }

func (l *LineBuffer) Reset() { l.buf = l.buf[:0] }

func (l *LineBuffer) Len() int { return len(l.buf) }

func (l *LineBuffer) String() string { return string(l.buf) }

// History is the append-only list of submitted commands with a recall
// cursor. The cursor ranges over [0, len]; len means a fresh empty line.
type History struct {
	entries []string
	cursor  int
}

// Append records line and parks the cursor past the end.
func (h *History) Append(line string) {
	h.entries = append(h.entries, line)
	h.cursor = len(h.entries)
}

// Up moves to the previous entry. It reports false when already at the
// oldest entry or when history is empty.
func (h *History) Up() (string, bool) {
	if h.cursor == 0 {
		return "", false
	}
	h.cursor--
	return h.entries[h.cursor], true
}

// Down moves to the next entry; stepping past the newest yields "".
func (h *History) Down() (string, bool) {
	if h.cursor >= len(h.entries) {
		return "", false
	}
	h.cursor++
	if h.cursor == len(h.entries) {
		return "", true
	}
	return h.entries[h.cursor], true
}

// ResetCursor parks the cursor on the fresh line.
func (h *History) ResetCursor() { h.cursor = len(h.entries) }

func (h *History) Cursor() int { return h.cursor }

func (h *History) Len() int { return len(h.entries) }

// Entries returns a copy of the recorded lines.
func (h *History) Entries() []string {
	return append([]string(nil), h.entries...)
}
