package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chet-im/chet/internal/bus"
	"github.com/chet-im/chet/internal/correlate"
	"github.com/chet-im/chet/internal/model"
	"github.com/chet-im/chet/internal/status"
	"github.com/chet-im/chet/internal/wire"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second

	// tokenRecheck is the poll interval while no usable token exists.
	tokenRecheck = time.Second
)

// run is the supervisor loop: acquire a token, connect, serve until
// the transport fails, back off, repeat. Nothing in here may terminate
// the process; the worst case is staying disconnected and retrying.
func (e *Engine) run(ctx context.Context) {
	for ctx.Err() == nil {
		token, err := e.tokens.Token()
		if err != nil || token == "" {
			if err != nil {
				e.logger.Warn("auth token unavailable", zap.Error(err))
			}
			if !sleep(ctx, tokenRecheck) {
				return
			}
			continue
		}

		_ = e.machine.Transition(status.Connecting)
		conn, err := e.dial(ctx, token)
		if err != nil {
			e.logger.Warn("connect failed", zap.Error(err))
			_ = e.machine.Transition(status.Disconnected)
			if !sleep(ctx, e.cfg.Backoff) {
				return
			}
			continue
		}

		_ = e.machine.Transition(status.Authenticated)
		e.logger.Info("session authenticated", zap.String("server", e.cfg.ServerURL))

		e.serve(ctx, conn)

		// Unblock everyone awaiting a response; nothing survives a drop.
		e.drainRequests()
		e.table.FailAll(ErrNotConnected)
		if cur := e.machine.Current(); cur != status.Disconnected {
			_ = e.machine.Transition(status.Disconnected)
		}

		if !sleep(ctx, e.cfg.Backoff) {
			return
		}
	}
}

func (e *Engine) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	u, err := url.Parse(e.cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake rejected (%s): %w", resp.Status, err)
		}
		return nil, err
	}
	return conn, nil
}

// serve owns one established connection: it issues the bootstrap
// requests, then multiplexes outbound requests, inbound frames and
// liveness probes until the transport fails or the context ends.
func (e *Engine) serve(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	// A request can pass the fail-fast check just as the previous
	// connection goes down, leaving its frame in the queue. Fail it
	// here rather than sending it on a connection it never targeted.
	e.drainRequests()

	done := make(chan struct{})
	defer close(done)

	frames := make(chan []byte, 64)
	readErr := make(chan error, 1)
	go func() {
		conn.SetReadLimit(1 << 20)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			kind, payload, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			if kind != websocket.TextMessage {
				continue
			}
			select {
			case frames <- payload:
			case <-done:
				return
			}
		}
	}()

	if err := e.bootstrap(conn); err != nil {
		e.logger.Warn("bootstrap failed", zap.Error(err))
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case req := <-e.requests:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, req.frame); err != nil {
				e.logger.Warn("write failed", zap.Error(err))
				e.table.Resolve(req.id, correlate.Outcome{Err: ErrNotConnected})
				return
			}

		case payload := <-frames:
			e.dispatch(payload)

		case err := <-readErr:
			e.observeClose(err)
			return

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				e.logger.Warn("liveness probe failed", zap.Error(err))
				return
			}

		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// bootstrap reissues the baseline requests on every (re)connect, so
// the cache never serves stale pre-drop state: GetChats fully replaces
// the chat list, GetSelf refreshes the authenticated identity.
func (e *Engine) bootstrap(conn *websocket.Conn) error {
	for _, payload := range []wire.ClientPayload{{GetChats: true}, {GetSelf: true}} {
		id, _ := e.table.Register()
		frame, err := wire.EncodeClient(&wire.ClientMessage{ID: id, Data: payload})
		if err != nil {
			e.table.Forget(id)
			return err
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			e.table.Forget(id)
			return err
		}
	}
	return nil
}

// observeClose classifies the transport failure that ended the
// connection. A policy-violation close means the backend rejected the
// token mid-session.
func (e *Engine) observeClose(err error) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) && ce.Code == websocket.ClosePolicyViolation {
		e.logger.Warn("session degraded", zap.String("reason", ce.Text))
		_ = e.machine.TransitionReason(status.Degraded, ce.Text)
		return
	}
	e.logger.Warn("connection closed", zap.Error(err))
}

// dispatch decodes and applies one inbound frame. Malformed frames are
// logged and dropped; they never tear down the connection.
func (e *Engine) dispatch(payload []byte) {
	msg, err := wire.DecodeServer(payload)
	if err != nil {
		e.logger.Warn("dropping malformed frame", zap.Error(err))
		return
	}

	switch {
	case msg.RequestResponse != nil:
		e.dispatchResponse(msg.RequestResponse)

	case msg.NewMessage != nil:
		m := *msg.NewMessage
		// Own messages arrive twice, response echo plus push. Skip the
		// push when the identity is known; before the GetSelf response
		// lands the cache's id dedupe catches the second copy.
		if e.selfID != "" && m.CreatedBy(e.selfID) {
			return
		}
		e.cache.ApplyNewMessage(m)
		e.persistMessages(m)

	case msg.UserJoined != nil:
		e.cache.ApplyUserJoined(msg.UserJoined.ChatID, msg.UserJoined.User)

	case msg.SetChatRead != nil:
		u := msg.SetChatRead
		e.cache.ApplyChatRead(u.ChatID, u.UserID, u.LastMessageTS)

	case msg.ProfileUpdated != nil:
		e.cache.SetSelf(*msg.ProfileUpdated)

	case msg.ProducerAdded != nil, msg.ProducerRemove != nil:
		// Routed verbatim; the media collaborator subscribes on the bus.
		e.bus.Emit(bus.KindCallSignal, msg)
	}
}

// dispatchResponse applies cache-affecting response payloads, then
// resolves the waiting caller. Responses for unknown ids are silently
// discarded by the table.
func (e *Engine) dispatchResponse(rr *wire.RequestResponse) {
	if rr.Data.Err != nil {
		e.table.Resolve(rr.ID, correlate.Outcome{Err: &ServerError{Message: *rr.Data.Err}})
		return
	}
	res := rr.Data.Ok
	if res == nil {
		e.logger.Warn("dropping empty response", zap.String("id", rr.ID.String()))
		return
	}

	switch res.Kind() {
	case wire.KindGetChats:
		e.cache.ReplaceChats(res.GetChats)
		e.persistChats(res.GetChats)
	case wire.KindGetSelf:
		e.selfID = res.GetSelf.ID
		e.cache.SetSelf(*res.GetSelf)
	case wire.KindProfileUpdate:
		e.cache.SetSelf(*res.ProfileUpdate)
	case wire.KindNewMessage:
		e.cache.ApplyNewMessage(*res.NewMessage)
		e.persistMessages(*res.NewMessage)
	case wire.KindGetMessages:
		e.persistMessages(res.GetMessages...)
	case wire.KindCallSignal:
		e.bus.Emit(bus.KindCallSignal, res.CallSignal)
	}

	e.table.Resolve(rr.ID, correlate.Outcome{Data: res})
}

func (e *Engine) persistChats(chats []model.Chat) {
	if e.store == nil {
		return
	}
	if err := e.store.UpsertChats(chats); err != nil {
		e.logger.Error("archive chats failed", zap.Error(err))
	}
}

func (e *Engine) persistMessages(msgs ...model.Message) {
	if e.store == nil || len(msgs) == 0 {
		return
	}
	if err := e.store.InsertMessages(msgs); err != nil {
		e.logger.Error("archive messages failed", zap.Error(err))
	}
}

// drainRequests fails any request that raced into the queue while the
// connection was going down.
func (e *Engine) drainRequests() {
	for {
		select {
		case req := <-e.requests:
			e.table.Resolve(req.id, correlate.Outcome{Err: ErrNotConnected})
		default:
			return
		}
	}
}

// sleep waits d or until ctx ends; reports whether the context is
// still alive.
func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
