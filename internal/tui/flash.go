package tui

import (
	"sync"
	"time"
)

// Flash is a transient status-bar notice.
type Flash struct {
	mu       sync.Mutex
	message  string
	deadline time.Time
}

// Set replaces the notice; it disappears after d.
func (f *Flash) Set(msg string, d time.Duration) {
	f.mu.Lock()
	f.message = msg
	f.deadline = time.Now().Add(d)
	f.mu.Unlock()
}

// Get returns the active notice, or "" once it has expired.
func (f *Flash) Get() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.message == "" || time.Now().After(f.deadline) {
		return ""
	}
	return f.message
}
