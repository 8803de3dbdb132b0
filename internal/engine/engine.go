// Package engine owns the websocket connection to the CHET backend.
// It multiplexes request/response pairs and unsolicited push events
// over one logical connection and reconciles everything into the
// cache. Exactly one engine runs per authenticated session.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chet-im/chet/internal/archive"
	"github.com/chet-im/chet/internal/bus"
	"github.com/chet-im/chet/internal/cache"
	"github.com/chet-im/chet/internal/correlate"
	"github.com/chet-im/chet/internal/model"
	"github.com/chet-im/chet/internal/status"
	"github.com/chet-im/chet/internal/wire"
)

// ErrNotConnected is returned by Issue when the session is not
// authenticated. Requests never queue while disconnected; callers fail
// fast and retry after the session recovers.
var ErrNotConnected = errors.New("not connected")

// ServerError is an application-level Err result for one request. It
// affects only the original caller, never the cache or other pending
// requests.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "server: " + e.Message
}

// TokenSource supplies the bearer token for the websocket handshake.
// Token errors keep the engine disconnected and retrying.
type TokenSource interface {
	Token() (string, error)
}

// Config carries the engine's connection settings.
type Config struct {
	// ServerURL is the websocket base, e.g. ws://localhost:3030.
	ServerURL string
	// Backoff is the fixed delay between reconnect attempts.
	// Defaults to 10s.
	Backoff time.Duration
}

type outbound struct {
	id    uuid.UUID
	frame []byte
}

// Engine is the connection supervisor and dispatch loop.
type Engine struct {
	cfg     Config
	tokens  TokenSource
	cache   *cache.Cache
	table   *correlate.Table
	machine *status.Machine
	store   *archive.DB
	bus     *bus.Bus
	logger  *zap.Logger

	requests chan outbound
	cancel   context.CancelFunc

	// selfID is the authenticated user's id, learned from the GetSelf
	// bootstrap response. Only the loop goroutine touches it.
	selfID string
}

// New creates an engine. The archive may be nil to disable
// write-through persistence.
func New(cfg Config, tokens TokenSource, c *cache.Cache, m *status.Machine, store *archive.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	if cfg.Backoff <= 0 {
		cfg.Backoff = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:      cfg,
		tokens:   tokens,
		cache:    c,
		table:    correlate.NewTable(),
		machine:  m,
		store:    store,
		bus:      b,
		logger:   logger,
		requests: make(chan outbound, 32),
	}
}

// Start launches the supervisor loop.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	go e.run(ctx)
}

// Stop tears the engine down.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

// Issue sends one request over the connection and awaits its response.
// Returns ErrNotConnected immediately when the session is not
// authenticated, a ServerError when the backend rejects the request,
// or the context error when the caller gives up first.
func (e *Engine) Issue(ctx context.Context, payload wire.ClientPayload) (*wire.ResData, error) {
	if e.machine.Current() != status.Authenticated {
		return nil, ErrNotConnected
	}

	id, ch := e.table.Register()
	frame, err := wire.EncodeClient(&wire.ClientMessage{ID: id, Data: payload})
	if err != nil {
		e.table.Forget(id)
		return nil, fmt.Errorf("encode %s: %w", payload.Kind(), err)
	}

	select {
	case e.requests <- outbound{id: id, frame: frame}:
	case <-ctx.Done():
		e.table.Forget(id)
		return nil, ctx.Err()
	}

	select {
	case out := <-ch:
		return out.Data, out.Err
	case <-ctx.Done():
		// The completion, if it ever arrives, is discarded silently.
		e.table.Forget(id)
		return nil, ctx.Err()
	}
}

// SendMessage sends a chat message and returns the server's echo.
func (e *Engine) SendMessage(ctx context.Context, chatID, content string) (*model.Message, error) {
	res, err := e.Issue(ctx, wire.ClientPayload{
		NewMessage: &wire.NewMessageRequest{ChatID: chatID, Content: content},
	})
	if err != nil {
		return nil, err
	}
	return res.NewMessage, nil
}

// FetchOlder requests the history page strictly older than beforeTS.
// The caller decides how to splice the page into the cache.
func (e *Engine) FetchOlder(ctx context.Context, chatID string, beforeTS int64) ([]model.Message, error) {
	res, err := e.Issue(ctx, wire.ClientPayload{
		GetMessages: &wire.GetMessagesRequest{ChatID: chatID, LastMessageTS: beforeTS},
	})
	if err != nil {
		return nil, err
	}
	if res.Kind() != wire.KindGetMessages {
		return nil, fmt.Errorf("unexpected response kind %s", res.Kind())
	}
	return res.GetMessages, nil
}

// MarkRead moves the caller's read receipt in a chat.
func (e *Engine) MarkRead(ctx context.Context, chatID string, ts int64) error {
	_, err := e.Issue(ctx, wire.ClientPayload{
		SetChatRead: &wire.SetChatReadRequest{ChatID: chatID, LastMessageTS: ts},
	})
	return err
}

// CreateChat creates a chat and returns it.
func (e *Engine) CreateChat(ctx context.Context, name string) (*model.Chat, error) {
	res, err := e.Issue(ctx, wire.ClientPayload{CreateChat: &wire.CreateChatRequest{Name: name}})
	if err != nil {
		return nil, err
	}
	return res.CreateChat, nil
}

// JoinChat joins a chat by invite code and returns it.
func (e *Engine) JoinChat(ctx context.Context, code string) (*model.Chat, error) {
	res, err := e.Issue(ctx, wire.ClientPayload{JoinChat: &wire.JoinChatRequest{Code: code}})
	if err != nil {
		return nil, err
	}
	return res.JoinChat, nil
}

// UpdateProfile updates the caller's profile.
func (e *Engine) UpdateProfile(ctx context.Context, req wire.ProfileUpdateRequest) (*model.User, error) {
	res, err := e.Issue(ctx, wire.ClientPayload{ProfileUpdate: &req})
	if err != nil {
		return nil, err
	}
	return res.ProfileUpdate, nil
}

// SendCallSignal routes one opaque media payload to the backend.
func (e *Engine) SendCallSignal(ctx context.Context, raw json.RawMessage) (*wire.ResData, error) {
	return e.Issue(ctx, wire.ClientPayload{CallSignal: raw})
}
