package views

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Composer is the single-line input for sending messages.
type Composer struct {
	*tview.InputField
	onSend func(text string)
}

// NewComposer creates a new message composer.
func NewComposer() *Composer {
	input := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)

	c := &Composer{InputField: input}

	input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || c.onSend == nil {
			return
		}
		text := strings.TrimSpace(c.GetText())
		c.SetText("")
		if text != "" {
			c.onSend(text)
		}
	})

	return c
}

// SetOnSend sets the callback when a message is submitted. Whitespace
// is trimmed; blank input sends nothing.
func (c *Composer) SetOnSend(fn func(text string)) {
	c.onSend = fn
}
