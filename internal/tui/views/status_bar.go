package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/chet-im/chet/internal/status"
)

// StatusBar displays persistent session and connection status.
type StatusBar struct {
	*tview.TextView
	session string
	state   status.State
	reason  string
	flash   string
}

// NewStatusBar creates a new status bar.
func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, state: status.Disconnected}
}

// SetSession updates the session name display.
func (sb *StatusBar) SetSession(name string) {
	sb.session = name
	sb.render()
}

// SetState updates the connection state display.
func (sb *StatusBar) SetState(st status.State, reason string) {
	sb.state = st
	sb.reason = reason
	sb.render()
}

// SetFlash sets a temporary message.
func (sb *StatusBar) SetFlash(msg string) {
	sb.flash = msg
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	stateText := string(sb.state)
	switch sb.state {
	case status.Authenticated:
		stateText = "[green]" + stateText + "[-]"
	case status.Degraded:
		stateText = "[red]" + stateText + "[-]"
		if sb.reason != "" {
			stateText += " (" + tview.Escape(sb.reason) + ")"
		}
	}

	clock := time.Now().Format("15:04")

	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s | %s", sb.session, stateText, clock)
	if sb.flash != "" {
		line += fmt.Sprintf(" | [yellow]%s[-]", tview.Escape(sb.flash))
	}

	fmt.Fprint(sb, line)
}
