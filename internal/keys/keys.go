// Package keys turns raw terminal input bytes into logical keystrokes.
package keys

// Kind identifies a logical key.
type Kind int

const (
	KindRune Kind = iota
	KindEnter
	KindBackspace
	KindTab
	KindUp
	KindDown
	KindLeft
	KindRight
	KindHome
	KindEnd
	KindDelete
	KindCtrlC
	KindCtrlD
	KindCtrlL
	KindEscape
	// KindUnknown covers control bytes and escape sequences with no binding.
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindRune:
		return "rune"
	case KindEnter:
		return "enter"
	case KindBackspace:
		return "backspace"
	case KindTab:
		return "tab"
	case KindUp:
		return "up"
	case KindDown:
		return "down"
	case KindLeft:
		return "left"
	case KindRight:
		return "right"
	case KindHome:
		return "home"
	case KindEnd:
		return "end"
	case KindDelete:
		return "delete"
	case KindCtrlC:
		return "ctrl+c"
	case KindCtrlD:
		return "ctrl+d"
	case KindCtrlL:
		return "ctrl+l"
	case KindEscape:
		return "escape"
	default:
		return "unknown"
	}
}

// Key is one decoded keystroke. Rune is set only for KindRune and is always
// in the printable range 0x20-0x7E.
type Key struct {
	Kind Kind
	Rune byte
}

// Printable reports whether k appends a character to a line.
func (k Key) Printable() bool { return k.Kind == KindRune }

func Rune(b byte) Key { return Key{Kind: KindRune, Rune: b} }

func Of(kind Kind) Key { return Key{Kind: kind} }

const (
	esc        = 0x1b
	maxEscape  = 16
	byteCtrlC  = 0x03
	byteCtrlD  = 0x04
	byteBS     = 0x08
	byteTab    = 0x09
	byteLF     = 0x0a
	byteCtrlL  = 0x0c
	byteCR     = 0x0d
	byteDelete = 0x7f
)

// Decoder is a streaming decoder. Escape sequences split across Feed calls
// are reassembled; a CR immediately followed by LF yields a single Enter.
type Decoder struct {
	pending []byte
	afterCR bool
}

// Feed decodes data and returns the completed keys.
func (d *Decoder) Feed(data []byte) []Key {
	var out []Key
	for _, b := range data {
		if len(d.pending) > 0 {
			d.pending = append(d.pending, b)
			key, done := parseEscape(d.pending)
			if done {
				out = append(out, key)
				d.pending = d.pending[:0]
			} else if len(d.pending) >= maxEscape {
				out = append(out, Of(KindUnknown))
				d.pending = d.pending[:0]
			}
			continue
		}

		if b == byteLF && d.afterCR {
			d.afterCR = false
			continue
		}
		d.afterCR = b == byteCR

		switch {
		case b == esc:
			d.pending = append(d.pending[:0], b)
		case b == byteCR || b == byteLF:
			out = append(out, Of(KindEnter))
		case b == byteDelete || b == byteBS:
			out = append(out, Of(KindBackspace))
		case b == byteTab:
			out = append(out, Of(KindTab))
		case b == byteCtrlC:
			out = append(out, Of(KindCtrlC))
		case b == byteCtrlD:
			out = append(out, Of(KindCtrlD))
		case b == byteCtrlL:
			out = append(out, Of(KindCtrlL))
		case b >= 0x20 && b <= 0x7e:
			out = append(out, Rune(b))
		default:
			out = append(out, Of(KindUnknown))
		}
	}
	return out
}

// Flush emits a lone pending ESC as KindEscape. Transports call it when no
// further input arrived shortly after an ESC byte.
func (d *Decoder) Flush() []Key {
	if len(d.pending) == 0 {
		return nil
	}
	var key Key
	if len(d.pending) == 1 {
		key = Of(KindEscape)
	} else {
		key = Of(KindUnknown)
	}
	d.pending = d.pending[:0]
	return []Key{key}
}

// Pending reports whether a partial escape sequence is buffered.
func (d *Decoder) Pending() bool { return len(d.pending) > 0 }

func parseEscape(seq []byte) (Key, bool) {
	if len(seq) < 2 {
		return Key{}, false
	}
	switch seq[1] {
	case '[':
		return parseCSI(seq)
	case 'O':
		if len(seq) < 3 {
			return Key{}, false
		}
		return Of(finalKey(seq[2])), true
	default:
		// Alt+key and other two-byte escapes have no binding.
		return Of(KindUnknown), true
	}
}

func parseCSI(seq []byte) (Key, bool) {
	if len(seq) < 3 {
		return Key{}, false
	}
	last := seq[len(seq)-1]
	switch {
	case last == '~':
		if len(seq) == 4 {
			switch seq[2] {
			case '1', '7':
				return Of(KindHome), true
			case '3':
				return Of(KindDelete), true
			case '4', '8':
				return Of(KindEnd), true
			}
		}
		return Of(KindUnknown), true
	case last >= 0x40 && last <= 0x7e:
		// Modified arrows (ESC [ 1 ; 5 A) map to the plain key.
		return Of(finalKey(last)), true
	default:
		// Parameter or intermediate byte: keep reading.
		return Key{}, false
	}
}

func finalKey(b byte) Kind {
	switch b {
	case 'A':
		return KindUp
	case 'B':
		return KindDown
	case 'C':
		return KindRight
	case 'D':
		return KindLeft
	case 'H':
		return KindHome
	case 'F':
		return KindEnd
	default:
		return KindUnknown
	}
}
