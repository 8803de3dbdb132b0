package bus

import "time"

// Event kinds published by the engine. Subscribers filter by namespace
// prefix, e.g. "cache." receives every cache mutation.
const (
	KindStatusChanged = "session.status_changed"

	KindCacheChats   = "cache.chats_replaced"
	KindCacheMessage = "cache.message_appended"
	KindCacheHistory = "cache.history_prepended"
	KindCacheUser    = "cache.user_joined"
	KindCacheRead    = "cache.read_updated"
	KindCacheSelf    = "cache.self_updated"

	KindCallSignal = "call.signal"
)

// Event is a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
