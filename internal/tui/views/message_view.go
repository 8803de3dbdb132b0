package views

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/chet-im/chet/internal/model"
	"github.com/chet-im/chet/internal/scroll"
)

// MessageView displays the loaded message window for a single chat.
type MessageView struct {
	*tview.TextView
	lineCount int
}

// NewMessageView creates a new message view.
func NewMessageView() *MessageView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Messages ")

	return &MessageView{TextView: tv}
}

// Update re-renders the view from the chat's message window. Messages
// arrive oldest first.
func (mv *MessageView) Update(chat *model.Chat, selfID string) {
	mv.Clear()
	mv.lineCount = 0

	if chat == nil {
		return
	}
	mv.SetTitle(fmt.Sprintf(" %s ", chat.Name))

	names := make(map[string]string, len(chat.Users))
	for _, u := range chat.Users {
		names[u.ID] = u.DisplayName
	}

	for _, m := range chat.Messages {
		body := sanitizeForTerminal(m.Content)
		if m.System() {
			fmt.Fprintf(mv, "[::d]-- %s --[-:-:-]\n\n", tview.Escape(body))
			mv.lineCount += 2
			continue
		}

		sender := names[*m.Creator]
		if sender == "" {
			sender = *m.Creator
		}
		if *m.Creator == selfID {
			sender = "You"
		}

		ts := formatTimestamp(m.CreatedTS)
		fmt.Fprintf(mv, "[::b]%s[-:-:-] [::d]%s[-:-:-]\n%s\n\n", tview.Escape(sender), ts, tview.Escape(body))
		mv.lineCount += 3
	}
}

// Viewport reports the current scroll position in line units.
func (mv *MessageView) Viewport() scroll.Viewport {
	row, _ := mv.GetScrollOffset()
	_, _, _, height := mv.GetInnerRect()
	return scroll.Viewport{
		ScrollTop:    float64(row),
		ScrollHeight: float64(mv.lineCount),
		ClientHeight: float64(height),
	}
}

// Apply executes a scroll plan against the text view.
func (mv *MessageView) Apply(plan scroll.Plan) {
	switch plan.Kind {
	case scroll.PlanScrollToBottom:
		mv.ScrollToEnd()
	case scroll.PlanScrollBy:
		row, _ := mv.GetScrollOffset()
		mv.ScrollTo(row+int(plan.Delta), 0)
	}
}
