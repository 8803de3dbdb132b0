package views

import (
	"time"

	"github.com/rivo/tview"

	"github.com/chet-im/chet/internal/model"
)

// ChatList is the main chat list table, sorted by recency upstream.
type ChatList struct {
	*tview.Table
	chats []model.Chat
}

// NewChatList creates a new chat list table.
func NewChatList() *ChatList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true).SetTitle(" Chats ")

	return &ChatList{Table: table}
}

// Update refreshes the chat list. self is used to compute the unread
// marker; it may be nil before the roster has loaded.
func (cl *ChatList) Update(chats []model.Chat, self *model.User) {
	cl.chats = chats
	cl.Clear()

	cl.SetCell(0, 0, tview.NewTableCell(" Name").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 1, tview.NewTableCell(" Last Message").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 2, tview.NewTableCell(" Time").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, chat := range chats {
		row := i + 1
		name := chat.Name
		if unread(chat, self) {
			name = "* " + name
		}

		preview := ""
		if n := len(chat.Messages); n > 0 {
			preview = sanitizeForTerminal(chat.Messages[n-1].Content)
		}

		cl.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(name)).SetMaxWidth(30).SetExpansion(1))
		cl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(preview)).SetMaxWidth(40).SetExpansion(2))
		cl.SetCell(row, 2, tview.NewTableCell(" "+formatTimestamp(chat.LastMessageTS)).SetMaxWidth(12))
	}
}

// SelectedChat returns the ID of the currently selected chat.
func (cl *ChatList) SelectedChat() string {
	row, _ := cl.GetSelection()
	idx := row - 1 // account for header
	if idx >= 0 && idx < len(cl.chats) {
		return cl.chats[idx].ID
	}
	return ""
}

// unread reports whether the chat has messages newer than our own
// read marker in its roster entry.
func unread(chat model.Chat, self *model.User) bool {
	if self == nil {
		return false
	}
	for _, u := range chat.Users {
		if u.ID == self.ID {
			return chat.LastMessageTS > u.LastMessageSeenTS
		}
	}
	return false
}

func formatTimestamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
