package model

// User is a chat participant as known to the backend.
type User struct {
	ID                string `json:"id"`
	DisplayName       string `json:"display_name"`
	ProfileImage      string `json:"profile_image"`
	LastMessageSeenTS int64  `json:"last_message_seen_ts"`
}

// Message is a single chat message. Messages are immutable once created;
// the engine only appends or merges windows, never edits in place.
type Message struct {
	ID        string  `json:"id"`
	ChatID    string  `json:"chat_id"`
	Creator   *string `json:"creator"` // nil means system message
	Content   string  `json:"content"`
	CreatedTS int64   `json:"created_at"`
}

// Chat holds the loaded window of a conversation. Messages are ordered by
// CreatedTS ascending within the window. LastMessageTS tracks the newest
// message across the whole chat, which can be newer than the last element
// of the window when pages are not fully loaded.
type Chat struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Users         []User    `json:"users"`
	Messages      []Message `json:"messages"`
	LastMessageTS int64     `json:"last_message_ts"`
}

// System reports whether the message was generated by the backend rather
// than a participant.
func (m *Message) System() bool {
	return m.Creator == nil
}

// CreatedBy reports whether the message was created by the given user.
func (m *Message) CreatedBy(userID string) bool {
	return m.Creator != nil && *m.Creator == userID
}

// EarliestTS returns the timestamp of the oldest loaded message, or the
// chat's LastMessageTS when the window is empty. This is the cursor for
// fetching the next older history page.
func (c *Chat) EarliestTS() int64 {
	if len(c.Messages) == 0 {
		return c.LastMessageTS
	}
	return c.Messages[0].CreatedTS
}

// Clone returns a deep copy of the chat, safe for readers to hold after
// the cache lock is released.
func (c *Chat) Clone() *Chat {
	cp := *c
	cp.Users = append([]User(nil), c.Users...)
	cp.Messages = append([]Message(nil), c.Messages...)
	return &cp
}
