// Package scroll decides when to fetch older history pages based on
// viewport position, and how to keep the visual scroll offset stable
// when a page is spliced in above the current content.
package scroll

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/chet-im/chet/internal/model"
)

// nearEdge is the pixel distance within which the viewport counts as
// touching the top or bottom of the content.
const nearEdge = 16

// Fetcher issues history and read-receipt requests. Implemented by the
// engine.
type Fetcher interface {
	FetchOlder(ctx context.Context, chatID string, beforeTS int64) ([]model.Message, error)
	MarkRead(ctx context.Context, chatID string, ts int64) error
}

// Store is the chat cache surface the controller needs.
type Store interface {
	Chat(id string) (*model.Chat, bool)
	PrependOlder(chatID string, msgs []model.Message) bool
}

// Viewport is one reading of the scroll element, supplied by the UI.
type Viewport struct {
	ScrollTop    float64
	ScrollHeight float64
	ClientHeight float64
}

func (v Viewport) nearTop() bool {
	return v.ScrollTop <= nearEdge
}

func (v Viewport) nearBottom() bool {
	return v.ScrollTop+v.ClientHeight >= v.ScrollHeight-nearEdge
}

// PlanKind tells the UI what to do with its scroll offset.
type PlanKind int

const (
	// PlanNone leaves the viewport alone.
	PlanNone PlanKind = iota
	// PlanScrollBy moves the offset by Delta to compensate for
	// content spliced in above.
	PlanScrollBy
	// PlanScrollToBottom pins the viewport to the newest message.
	PlanScrollToBottom
)

// Plan is the controller's instruction for the UI after an evaluation.
type Plan struct {
	Kind  PlanKind
	Delta float64
}

type state int

const (
	checkNeed state = iota
	goDown
	goTo
)

// Controller is the pagination state machine for the active chat. It
// is driven by scroll events and cache changes; each Evaluate call
// runs one transition.
type Controller struct {
	fetcher Fetcher
	store   Store
	logger  *zap.Logger

	mu        sync.Mutex
	chatID    string
	state     state
	oldHeight float64
	inflight  bool
	exhausted map[string]bool
}

// New creates a controller in CheckNeed.
func New(f Fetcher, s Store, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		fetcher:   f,
		store:     s,
		logger:    logger,
		state:     checkNeed,
		exhausted: make(map[string]bool),
	}
}

// SetChat switches the active chat and pins the next evaluation to the
// bottom of its window.
func (c *Controller) SetChat(chatID string) {
	c.mu.Lock()
	c.chatID = chatID
	c.state = goDown
	c.mu.Unlock()
}

// NoteSent is called after the user sends a message so the next
// evaluation scrolls down to it.
func (c *Controller) NoteSent() {
	c.mu.Lock()
	c.state = goDown
	c.mu.Unlock()
}

// Reset clears the exhausted-history markers. Called when the chat
// list is replaced by a bootstrap refresh, since every window starts
// over.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.exhausted = make(map[string]bool)
	c.state = checkNeed
	c.mu.Unlock()
}

// Evaluate runs one state machine step against the current viewport
// reading and returns the scroll adjustment the UI should apply. A
// fetch triggered here prepends the page to the cache; the resulting
// redraw re-evaluates and picks up the offset compensation.
func (c *Controller) Evaluate(ctx context.Context, vp Viewport) Plan {
	c.mu.Lock()
	chatID := c.chatID
	if chatID == "" {
		c.mu.Unlock()
		return Plan{}
	}

	switch c.state {
	case goDown:
		c.state = checkNeed
		c.mu.Unlock()
		return Plan{Kind: PlanScrollToBottom}

	case goTo:
		old := c.oldHeight
		c.state = checkNeed
		c.mu.Unlock()
		return Plan{Kind: PlanScrollBy, Delta: vp.ScrollHeight - old}
	}

	// CheckNeed from here on.
	if c.inflight {
		c.mu.Unlock()
		return Plan{}
	}
	exhausted := c.exhausted[chatID]
	c.mu.Unlock()

	chat, ok := c.store.Chat(chatID)
	if !ok {
		return Plan{}
	}

	if vp.nearBottom() && len(chat.Messages) > 0 {
		c.markRead(chat)
	}

	if !vp.nearTop() || exhausted {
		return Plan{}
	}

	c.mu.Lock()
	c.inflight = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.inflight = false
		c.mu.Unlock()
	}()

	page, err := c.fetcher.FetchOlder(ctx, chatID, chat.EarliestTS())
	if err != nil {
		c.logger.Warn("history fetch failed", zap.String("chat", chatID), zap.Error(err))
		return Plan{}
	}

	if len(page) == 0 {
		// History is exhausted; remember it so every scroll tick near
		// the top does not refetch the same empty page.
		c.mu.Lock()
		c.exhausted[chatID] = true
		c.mu.Unlock()
		return Plan{}
	}

	if !c.store.PrependOlder(chatID, page) {
		return Plan{}
	}

	c.mu.Lock()
	c.state = goTo
	c.oldHeight = vp.ScrollHeight
	c.mu.Unlock()
	return Plan{}
}

// markRead pushes the read receipt to the newest known message. Fire
// and forget: a failed receipt is retried by the next evaluation.
func (c *Controller) markRead(chat *model.Chat) {
	go func() {
		if err := c.fetcher.MarkRead(context.Background(), chat.ID, chat.LastMessageTS); err != nil {
			c.logger.Debug("mark read failed", zap.String("chat", chat.ID), zap.Error(err))
		}
	}()
}
