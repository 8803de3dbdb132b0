// Package cache holds the in-memory source of truth for chats and
// messages. It is mutated only by the sync engine and read by the UI
// through point-in-time snapshots.
package cache

import (
	"sort"
	"sync"

	"github.com/chet-im/chet/internal/bus"
	"github.com/chet-im/chet/internal/model"
)

// Cache is the reconciled chat state for one session. Every merge runs
// under the exclusive lock and is observable atomically; readers get
// deep copies and never hold the lock past producing a value.
type Cache struct {
	mu    sync.RWMutex
	chats []model.Chat
	self  *model.User
	bus   *bus.Bus
}

// New creates an empty cache. The bus may be nil in tests.
func New(b *bus.Bus) *Cache {
	return &Cache{bus: b}
}

func (c *Cache) emit(kind string, payload any) {
	if c.bus != nil {
		c.bus.Emit(kind, payload)
	}
}

// ReplaceChats installs an authoritative chat list snapshot, discarding
// everything previously loaded. Used for the bootstrap GetChats
// response after connect and reconnect.
func (c *Cache) ReplaceChats(chats []model.Chat) {
	c.mu.Lock()
	c.chats = make([]model.Chat, len(chats))
	for i := range chats {
		c.chats[i] = *chats[i].Clone()
	}
	c.sortLocked()
	c.mu.Unlock()

	c.emit(bus.KindCacheChats, len(chats))
}

// PrependOlder splices a history page in front of the chat's loaded
// window: [older..., existing...]. LastMessageTS is not touched; the
// page extends the window backward only. Returns false when the chat
// is unknown and the page was dropped.
func (c *Cache) PrependOlder(chatID string, older []model.Message) bool {
	c.mu.Lock()
	chat := c.findLocked(chatID)
	if chat == nil {
		c.mu.Unlock()
		return false
	}
	merged := make([]model.Message, 0, len(older)+len(chat.Messages))
	merged = append(merged, older...)
	merged = append(merged, chat.Messages...)
	chat.Messages = merged
	c.mu.Unlock()

	c.emit(bus.KindCacheHistory, chatID)
	return true
}

// ApplyNewMessage appends a live message to its chat's window, bumps
// LastMessageTS and re-sorts the chat list by recency. Messages for
// chats not in the cache are dropped; the next full refresh will
// reconcile them. A message whose id is already in the window is also
// dropped: the response echo and the server push can both deliver the
// sender's own message. Returns false when dropped.
func (c *Cache) ApplyNewMessage(msg model.Message) bool {
	c.mu.Lock()
	chat := c.findLocked(msg.ChatID)
	if chat == nil {
		c.mu.Unlock()
		return false
	}
	for i := range chat.Messages {
		if chat.Messages[i].ID == msg.ID {
			c.mu.Unlock()
			return false
		}
	}
	chat.Messages = append(chat.Messages, msg)
	chat.LastMessageTS = msg.CreatedTS
	c.sortLocked()
	c.mu.Unlock()

	c.emit(bus.KindCacheMessage, msg)
	return true
}

// ApplyUserJoined adds the user to the chat's participant set. The
// join is idempotent: an existing participant with the same id is left
// alone.
func (c *Cache) ApplyUserJoined(chatID string, user model.User) bool {
	c.mu.Lock()
	chat := c.findLocked(chatID)
	if chat == nil {
		c.mu.Unlock()
		return false
	}
	for i := range chat.Users {
		if chat.Users[i].ID == user.ID {
			c.mu.Unlock()
			return true
		}
	}
	chat.Users = append(chat.Users, user)
	c.mu.Unlock()

	c.emit(bus.KindCacheUser, chatID)
	return true
}

// ApplyChatRead moves the read receipt of one participant in one chat.
// Application is last-write-wins: an out-of-order older receipt
// overwrites a newer one, matching the server's event order semantics.
func (c *Cache) ApplyChatRead(chatID, userID string, ts int64) bool {
	c.mu.Lock()
	chat := c.findLocked(chatID)
	if chat == nil {
		c.mu.Unlock()
		return false
	}
	for i := range chat.Users {
		if chat.Users[i].ID == userID {
			chat.Users[i].LastMessageSeenTS = ts
			c.mu.Unlock()
			c.emit(bus.KindCacheRead, chatID)
			return true
		}
	}
	c.mu.Unlock()
	return false
}

// SetSelf replaces the cached representation of the authenticated
// user. Chat participant records are not touched.
func (c *Cache) SetSelf(user model.User) {
	c.mu.Lock()
	u := user
	c.self = &u
	c.mu.Unlock()

	c.emit(bus.KindCacheSelf, user.ID)
}

// Self returns a copy of the authenticated user, or nil before the
// bootstrap GetSelf response lands.
func (c *Cache) Self() *model.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.self == nil {
		return nil
	}
	u := *c.self
	return &u
}

// Snapshot returns a deep copy of the chat list in recency order.
func (c *Cache) Snapshot() []model.Chat {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Chat, len(c.chats))
	for i := range c.chats {
		out[i] = *c.chats[i].Clone()
	}
	return out
}

// Chat returns a deep copy of one chat by id.
func (c *Cache) Chat(id string) (*model.Chat, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chat := c.findLocked(id)
	if chat == nil {
		return nil, false
	}
	return chat.Clone(), true
}

func (c *Cache) findLocked(id string) *model.Chat {
	for i := range c.chats {
		if c.chats[i].ID == id {
			return &c.chats[i]
		}
	}
	return nil
}

// sortLocked orders chats by LastMessageTS descending. The sort is
// stable so ties keep their current relative order.
func (c *Cache) sortLocked() {
	sort.SliceStable(c.chats, func(i, j int) bool {
		return c.chats[i].LastMessageTS > c.chats[j].LastMessageTS
	})
}
