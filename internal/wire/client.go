// Package wire implements the CHET websocket wire format: JSON
// envelopes whose payloads are externally tagged unions. Unit variants
// encode as bare strings ("GetChats"), struct variants as single-key
// objects ({"GetMessages": {...}}).
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Request kinds carried in a ClientMessage.
const (
	KindGetChats      = "GetChats"
	KindGetSelf       = "GetSelf"
	KindGetMessages   = "GetMessages"
	KindNewMessage    = "NewMessage"
	KindCreateChat    = "CreateChat"
	KindJoinChat      = "JoinChat"
	KindProfileUpdate = "ProfileUpdate"
	KindSetChatRead   = "SetChatRead"
	KindCallSignal    = "MS"
)

// GetMessagesRequest asks for the history page strictly older than
// LastMessageTS in the given chat.
type GetMessagesRequest struct {
	ChatID        string `json:"chat_id"`
	LastMessageTS int64  `json:"last_message_ts"`
}

// NewMessageRequest sends a message to a chat.
type NewMessageRequest struct {
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
}

// CreateChatRequest creates a new chat owned by the caller.
type CreateChatRequest struct {
	Name string `json:"name"`
}

// JoinChatRequest joins an existing chat by invite code.
type JoinChatRequest struct {
	Code string `json:"code"`
}

// ProfileUpdateRequest updates the caller's profile. Nil fields are
// left unchanged by the server.
type ProfileUpdateRequest struct {
	DisplayName  *string `json:"display_name"`
	ProfileImage *string `json:"profile_image"`
}

// SetChatReadRequest moves the caller's read receipt in a chat.
type SetChatReadRequest struct {
	ChatID        string `json:"chat_id"`
	LastMessageTS int64  `json:"last_message_ts"`
}

// ClientPayload is the request union. Exactly one variant is set.
type ClientPayload struct {
	GetChats      bool
	GetSelf       bool
	GetMessages   *GetMessagesRequest
	NewMessage    *NewMessageRequest
	CreateChat    *CreateChatRequest
	JoinChat      *JoinChatRequest
	ProfileUpdate *ProfileUpdateRequest
	SetChatRead   *SetChatReadRequest
	CallSignal    json.RawMessage
}

// Kind returns the tag of the set variant, or "" for an empty payload.
func (p *ClientPayload) Kind() string {
	switch {
	case p.GetChats:
		return KindGetChats
	case p.GetSelf:
		return KindGetSelf
	case p.GetMessages != nil:
		return KindGetMessages
	case p.NewMessage != nil:
		return KindNewMessage
	case p.CreateChat != nil:
		return KindCreateChat
	case p.JoinChat != nil:
		return KindJoinChat
	case p.ProfileUpdate != nil:
		return KindProfileUpdate
	case p.SetChatRead != nil:
		return KindSetChatRead
	case p.CallSignal != nil:
		return KindCallSignal
	}
	return ""
}

// MarshalJSON encodes the payload in the tagged representation.
func (p ClientPayload) MarshalJSON() ([]byte, error) {
	switch {
	case p.GetChats:
		return json.Marshal(KindGetChats)
	case p.GetSelf:
		return json.Marshal(KindGetSelf)
	case p.GetMessages != nil:
		return tagged(KindGetMessages, p.GetMessages)
	case p.NewMessage != nil:
		return tagged(KindNewMessage, p.NewMessage)
	case p.CreateChat != nil:
		return tagged(KindCreateChat, p.CreateChat)
	case p.JoinChat != nil:
		return tagged(KindJoinChat, p.JoinChat)
	case p.ProfileUpdate != nil:
		return tagged(KindProfileUpdate, p.ProfileUpdate)
	case p.SetChatRead != nil:
		return tagged(KindSetChatRead, p.SetChatRead)
	case p.CallSignal != nil:
		return tagged(KindCallSignal, p.CallSignal)
	}
	return nil, fmt.Errorf("empty client payload")
}

// UnmarshalJSON decodes either a bare-string unit variant or a
// single-key object variant.
func (p *ClientPayload) UnmarshalJSON(data []byte) error {
	*p = ClientPayload{}

	var unit string
	if err := json.Unmarshal(data, &unit); err == nil {
		switch unit {
		case KindGetChats:
			p.GetChats = true
			return nil
		case KindGetSelf:
			p.GetSelf = true
			return nil
		}
		return fmt.Errorf("unknown request kind %q", unit)
	}

	tag, body, err := splitTagged(data)
	if err != nil {
		return err
	}
	switch tag {
	case KindGetMessages:
		p.GetMessages = new(GetMessagesRequest)
		return json.Unmarshal(body, p.GetMessages)
	case KindNewMessage:
		p.NewMessage = new(NewMessageRequest)
		return json.Unmarshal(body, p.NewMessage)
	case KindCreateChat:
		p.CreateChat = new(CreateChatRequest)
		return json.Unmarshal(body, p.CreateChat)
	case KindJoinChat:
		p.JoinChat = new(JoinChatRequest)
		return json.Unmarshal(body, p.JoinChat)
	case KindProfileUpdate:
		p.ProfileUpdate = new(ProfileUpdateRequest)
		return json.Unmarshal(body, p.ProfileUpdate)
	case KindSetChatRead:
		p.SetChatRead = new(SetChatReadRequest)
		return json.Unmarshal(body, p.SetChatRead)
	case KindCallSignal:
		p.CallSignal = append(json.RawMessage(nil), body...)
		return nil
	}
	return fmt.Errorf("unknown request kind %q", tag)
}

// ClientMessage is the outgoing envelope: a correlation id plus one
// request payload.
type ClientMessage struct {
	ID   uuid.UUID     `json:"id"`
	Data ClientPayload `json:"data"`
}

// EncodeClient serializes a client message for the wire.
func EncodeClient(msg *ClientMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeClient parses a client message. Used by tests standing in for
// the server.
func DecodeClient(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode client message: %w", err)
	}
	return &msg, nil
}

// tagged wraps a value in the single-key object representation.
func tagged(tag string, v any) ([]byte, error) {
	return json.Marshal(map[string]any{tag: v})
}

// splitTagged unpacks a single-key object into its tag and body.
func splitTagged(data []byte) (string, json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", nil, err
	}
	if len(obj) != 1 {
		return "", nil, fmt.Errorf("tagged union must have exactly one key, got %d", len(obj))
	}
	for tag, body := range obj {
		return tag, body, nil
	}
	return "", nil, fmt.Errorf("unreachable")
}
