// Package form collects a fixed sequence of fields from the terminal, one
// prompt at a time, with masked entry for password fields.
package form

import (
	"errors"
	"io"

	"termfolio/internal/keys"
)

// Kind is the input kind of a field.
type Kind int

const (
	KindText Kind = iota
	KindPassword
)

// FieldSpec describes one prompt. Validate, when set, runs on completion with
// the values collected so far; a non-nil error re-prompts the same field.
type FieldSpec struct {
	Name     string
	Label    string
	Kind     Kind
	Validate func(value string, collected map[string]string) error
}

// ErrNoFields is returned by Start for an empty field list.
var ErrNoFields = errors.New("form has no fields")

const mask = "*"

// Collector drives one form at a time. It is not safe for concurrent use;
// the terminal's event loop owns it.
type Collector struct {
	out io.Writer

	active     bool
	fields     []FieldSpec
	index      int
	values     map[string]string
	password   []byte
	onComplete func(map[string]string)
	onCancel   func()
}

func NewCollector(out io.Writer) *Collector {
	return &Collector{out: out}
}

// Start begins prompting fields in order. Any form already in progress is
// discarded without firing its callbacks.
func (c *Collector) Start(fields []FieldSpec, onComplete func(map[string]string), onCancel func()) error {
	if len(fields) == 0 {
		return ErrNoFields
	}
	c.teardown()
	c.active = true
	c.fields = append([]FieldSpec(nil), fields...)
	c.index = 0
	c.values = make(map[string]string, len(fields))
	c.onComplete = onComplete
	c.onCancel = onCancel
	c.promptCurrent()
	return nil
}

// Active reports whether a form is in progress.
func (c *Collector) Active() bool { return c.active }

// Index is the position of the current field. It only moves forward while a
// form is active and is reset only by Start.
func (c *Collector) Index() int { return c.index }

// Current returns the field being prompted.
func (c *Collector) Current() (FieldSpec, bool) {
	if !c.active {
		return FieldSpec{}, false
	}
	return c.fields[c.index], true
}

// OnPassword reports whether the current field is masked.
func (c *Collector) OnPassword() bool {
	f, ok := c.Current()
	return ok && f.Kind == KindPassword
}

// Label returns the prompt text of the current field, "" when idle.
func (c *Collector) Label() string {
	f, ok := c.Current()
	if !ok {
		return ""
	}
	return f.Label + ": "
}

// MaskedInput is the on-screen rendering of the password typed so far.
func (c *Collector) MaskedInput() string {
	out := make([]byte, len(c.password))
	for i := range out {
		out[i] = mask[0]
	}
	return string(out)
}

// Submit completes the current text field with value. It returns false when
// no text field is awaiting input.
func (c *Collector) Submit(value string) bool {
	f, ok := c.Current()
	if !ok || f.Kind != KindText {
		return false
	}
	c.complete(value)
	return true
}

// HandlePasswordKey consumes a keystroke for the current password field.
// Navigation keys are swallowed. It returns false when no password field is
// active.
func (c *Collector) HandlePasswordKey(k keys.Key) bool {
	if !c.OnPassword() {
		return false
	}
	switch k.Kind {
	case keys.KindRune:
		c.password = append(c.password, k.Rune)
		c.write(mask)
	case keys.KindBackspace:
		if len(c.password) > 0 {
			c.password[len(c.password)-1] = 0
			c.password = c.password[:len(c.password)-1]
			c.write("\b \b")
		}
	case keys.KindEnter:
		value := string(c.password)
		c.wipePassword()
		c.complete(value)
	case keys.KindCtrlC:
		c.Cancel()
	}
	return true
}

// Cancel abandons the form and fires onCancel exactly once.
func (c *Collector) Cancel() {
	if !c.active {
		return
	}
	onCancel := c.onCancel
	c.teardown()
	if onCancel != nil {
		onCancel()
	}
}

func (c *Collector) complete(value string) {
	f := c.fields[c.index]
	c.write("\r\n")
	if f.Validate != nil {
		if err := f.Validate(value, c.values); err != nil {
			c.write(err.Error() + "\r\n")
			c.promptCurrent()
			return
		}
	}
	c.values[f.Name] = value

	if c.index+1 < len(c.fields) {
		c.index++
		c.promptCurrent()
		return
	}

	values := c.values
	onComplete := c.onComplete
	c.values = nil
	c.teardown()
	if onComplete != nil {
		onComplete(values)
	}
}

// teardown discards all form state except the index.
func (c *Collector) teardown() {
	c.wipePassword()
	c.active = false
	c.fields = nil
	c.values = nil
	c.onComplete = nil
	c.onCancel = nil
}

func (c *Collector) wipePassword() {
	for i := range c.password {
		c.password[i] = 0
	}
	c.password = c.password[:0]
}

func (c *Collector) promptCurrent() {
	c.write(c.Label())
}

func (c *Collector) write(s string) {
	if c.out == nil || s == "" {
		return
	}
	_, _ = io.WriteString(c.out, s)
}
