package wire

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/chet-im/chet/internal/model"
)

// Server message tags. Request kinds double as ResData tags.
const (
	KindRequestResponse = "RequestResponse"
	KindUserJoined      = "UserJoined"
	KindProfileUpdated  = "ProfileUpdated"
	KindProducerAdded   = "ProducerAdded"
	KindProducerRemove  = "ProducerRemove"
)

// UserJoined announces a new participant in a chat.
type UserJoined struct {
	ChatID string     `json:"chat_id"`
	User   model.User `json:"user"`
}

// ChatReadUpdate moves a participant's read receipt.
type ChatReadUpdate struct {
	ChatID        string `json:"chat_id"`
	UserID        string `json:"user_id"`
	LastMessageTS int64  `json:"last_message_ts"`
}

// ProducerChange is an opaque call-signaling notification, routed to
// the media collaborator verbatim.
type ProducerChange struct {
	ParticipantID string `json:"participant_id"`
	ProducerID    string `json:"producer_id"`
}

// ResData is the union of successful response payloads. Exactly one
// variant is set; SetChatRead has no body.
type ResData struct {
	GetChats      []model.Chat
	GetSelf       *model.User
	GetMessages   []model.Message
	NewMessage    *model.Message
	CreateChat    *model.Chat
	JoinChat      *model.Chat
	ProfileUpdate *model.User
	SetChatRead   bool
	CallSignal    json.RawMessage
}

// Kind returns the tag of the set variant.
func (r *ResData) Kind() string {
	switch {
	case r.GetChats != nil:
		return KindGetChats
	case r.GetSelf != nil:
		return KindGetSelf
	case r.GetMessages != nil:
		return KindGetMessages
	case r.NewMessage != nil:
		return KindNewMessage
	case r.CreateChat != nil:
		return KindCreateChat
	case r.JoinChat != nil:
		return KindJoinChat
	case r.ProfileUpdate != nil:
		return KindProfileUpdate
	case r.SetChatRead:
		return KindSetChatRead
	case r.CallSignal != nil:
		return KindCallSignal
	}
	return ""
}

func (r ResData) MarshalJSON() ([]byte, error) {
	switch {
	case r.GetChats != nil:
		return tagged(KindGetChats, r.GetChats)
	case r.GetSelf != nil:
		return tagged(KindGetSelf, r.GetSelf)
	case r.GetMessages != nil:
		return tagged(KindGetMessages, r.GetMessages)
	case r.NewMessage != nil:
		return tagged(KindNewMessage, r.NewMessage)
	case r.CreateChat != nil:
		return tagged(KindCreateChat, r.CreateChat)
	case r.JoinChat != nil:
		return tagged(KindJoinChat, r.JoinChat)
	case r.ProfileUpdate != nil:
		return tagged(KindProfileUpdate, r.ProfileUpdate)
	case r.SetChatRead:
		return json.Marshal(KindSetChatRead)
	case r.CallSignal != nil:
		return tagged(KindCallSignal, r.CallSignal)
	}
	return nil, fmt.Errorf("empty response payload")
}

func (r *ResData) UnmarshalJSON(data []byte) error {
	*r = ResData{}

	var unit string
	if err := json.Unmarshal(data, &unit); err == nil {
		if unit == KindSetChatRead {
			r.SetChatRead = true
			return nil
		}
		return fmt.Errorf("unknown response kind %q", unit)
	}

	tag, body, err := splitTagged(data)
	if err != nil {
		return err
	}
	switch tag {
	case KindGetChats:
		r.GetChats = []model.Chat{}
		return json.Unmarshal(body, &r.GetChats)
	case KindGetSelf:
		r.GetSelf = new(model.User)
		return json.Unmarshal(body, r.GetSelf)
	case KindGetMessages:
		r.GetMessages = []model.Message{}
		return json.Unmarshal(body, &r.GetMessages)
	case KindNewMessage:
		r.NewMessage = new(model.Message)
		return json.Unmarshal(body, r.NewMessage)
	case KindCreateChat:
		r.CreateChat = new(model.Chat)
		return json.Unmarshal(body, r.CreateChat)
	case KindJoinChat:
		r.JoinChat = new(model.Chat)
		return json.Unmarshal(body, r.JoinChat)
	case KindProfileUpdate:
		r.ProfileUpdate = new(model.User)
		return json.Unmarshal(body, r.ProfileUpdate)
	case KindCallSignal:
		r.CallSignal = append(json.RawMessage(nil), body...)
		return nil
	}
	return fmt.Errorf("unknown response kind %q", tag)
}

// Result is the serde-style result wrapper: {"Ok": ResData} or
// {"Err": "message"}.
type Result struct {
	Ok  *ResData
	Err *string
}

func (r Result) MarshalJSON() ([]byte, error) {
	if r.Err != nil {
		return tagged("Err", r.Err)
	}
	if r.Ok != nil {
		return tagged("Ok", r.Ok)
	}
	return nil, fmt.Errorf("empty result")
}

func (r *Result) UnmarshalJSON(data []byte) error {
	*r = Result{}
	tag, body, err := splitTagged(data)
	if err != nil {
		return err
	}
	switch tag {
	case "Ok":
		r.Ok = new(ResData)
		return json.Unmarshal(body, r.Ok)
	case "Err":
		r.Err = new(string)
		return json.Unmarshal(body, r.Err)
	}
	return fmt.Errorf("unknown result tag %q", tag)
}

// RequestResponse answers one outstanding client request.
type RequestResponse struct {
	ID   uuid.UUID `json:"id"`
	Data Result    `json:"data"`
}

// ServerMessage is the inbound union: one response or push variant is
// set.
type ServerMessage struct {
	RequestResponse *RequestResponse
	NewMessage      *model.Message
	UserJoined      *UserJoined
	SetChatRead     *ChatReadUpdate
	ProfileUpdated  *model.User
	ProducerAdded   *ProducerChange
	ProducerRemove  *ProducerChange
}

// Kind returns the tag of the set variant.
func (m *ServerMessage) Kind() string {
	switch {
	case m.RequestResponse != nil:
		return KindRequestResponse
	case m.NewMessage != nil:
		return KindNewMessage
	case m.UserJoined != nil:
		return KindUserJoined
	case m.SetChatRead != nil:
		return KindSetChatRead
	case m.ProfileUpdated != nil:
		return KindProfileUpdated
	case m.ProducerAdded != nil:
		return KindProducerAdded
	case m.ProducerRemove != nil:
		return KindProducerRemove
	}
	return ""
}

func (m ServerMessage) MarshalJSON() ([]byte, error) {
	switch {
	case m.RequestResponse != nil:
		return tagged(KindRequestResponse, m.RequestResponse)
	case m.NewMessage != nil:
		return tagged(KindNewMessage, m.NewMessage)
	case m.UserJoined != nil:
		return tagged(KindUserJoined, m.UserJoined)
	case m.SetChatRead != nil:
		return tagged(KindSetChatRead, m.SetChatRead)
	case m.ProfileUpdated != nil:
		return tagged(KindProfileUpdated, m.ProfileUpdated)
	case m.ProducerAdded != nil:
		return tagged(KindProducerAdded, m.ProducerAdded)
	case m.ProducerRemove != nil:
		return tagged(KindProducerRemove, m.ProducerRemove)
	}
	return nil, fmt.Errorf("empty server message")
}

func (m *ServerMessage) UnmarshalJSON(data []byte) error {
	*m = ServerMessage{}
	tag, body, err := splitTagged(data)
	if err != nil {
		return err
	}
	switch tag {
	case KindRequestResponse:
		m.RequestResponse = new(RequestResponse)
		return json.Unmarshal(body, m.RequestResponse)
	case KindNewMessage:
		m.NewMessage = new(model.Message)
		return json.Unmarshal(body, m.NewMessage)
	case KindUserJoined:
		m.UserJoined = new(UserJoined)
		return json.Unmarshal(body, m.UserJoined)
	case KindSetChatRead:
		m.SetChatRead = new(ChatReadUpdate)
		return json.Unmarshal(body, m.SetChatRead)
	case KindProfileUpdated:
		m.ProfileUpdated = new(model.User)
		return json.Unmarshal(body, m.ProfileUpdated)
	case KindProducerAdded:
		m.ProducerAdded = new(ProducerChange)
		return json.Unmarshal(body, m.ProducerAdded)
	case KindProducerRemove:
		m.ProducerRemove = new(ProducerChange)
		return json.Unmarshal(body, m.ProducerRemove)
	}
	return fmt.Errorf("unknown server message kind %q", tag)
}

// EncodeServer serializes a server message. Used by tests standing in
// for the server.
func EncodeServer(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeServer parses an inbound frame. A non-nil error means the
// frame is dropped by the caller; decode failures never tear down the
// connection.
func DecodeServer(data []byte) (*ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode server message: %w", err)
	}
	return &msg, nil
}
