package wire

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/chet-im/chet/internal/model"
)

func TestEncodeUnitVariant(t *testing.T) {
	id := uuid.New()
	data, err := EncodeClient(&ClientMessage{ID: id, Data: ClientPayload{GetChats: true}})
	if err != nil {
		t.Fatal(err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if string(raw["data"]) != `"GetChats"` {
		t.Errorf("data = %s, want bare string \"GetChats\"", raw["data"])
	}
}

func TestEncodeStructVariant(t *testing.T) {
	msg := &ClientMessage{
		ID: uuid.New(),
		Data: ClientPayload{
			GetMessages: &GetMessagesRequest{ChatID: "general", LastMessageTS: 100},
		},
	}
	data, err := EncodeClient(msg)
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := DecodeClient(data)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.ID != msg.ID {
		t.Errorf("id = %s, want %s", decoded.ID, msg.ID)
	}
	if decoded.Data.Kind() != KindGetMessages {
		t.Fatalf("kind = %q, want %q", decoded.Data.Kind(), KindGetMessages)
	}
	if decoded.Data.GetMessages.ChatID != "general" || decoded.Data.GetMessages.LastMessageTS != 100 {
		t.Errorf("request = %+v", decoded.Data.GetMessages)
	}
}

func TestClientPayloadRoundTrip(t *testing.T) {
	name := "alice"
	payloads := []ClientPayload{
		{GetChats: true},
		{GetSelf: true},
		{NewMessage: &NewMessageRequest{ChatID: "c1", Content: "hi"}},
		{CreateChat: &CreateChatRequest{Name: "room"}},
		{JoinChat: &JoinChatRequest{Code: "XYZ"}},
		{ProfileUpdate: &ProfileUpdateRequest{DisplayName: &name}},
		{SetChatRead: &SetChatReadRequest{ChatID: "c1", LastMessageTS: 42}},
		{CallSignal: json.RawMessage(`{"t":"Consume","c":"p1"}`)},
	}
	for _, p := range payloads {
		t.Run(p.Kind(), func(t *testing.T) {
			data, err := json.Marshal(p)
			if err != nil {
				t.Fatal(err)
			}
			var back ClientPayload
			if err := json.Unmarshal(data, &back); err != nil {
				t.Fatal(err)
			}
			if back.Kind() != p.Kind() {
				t.Errorf("kind = %q, want %q", back.Kind(), p.Kind())
			}
		})
	}
}

func TestDecodeServerPush(t *testing.T) {
	payload := `{"NewMessage":{"id":"m1","chat_id":"general","creator":"u1","content":"hello","created_at":1700000000000}}`
	msg, err := DecodeServer([]byte(payload))
	if err != nil {
		t.Fatal(err)
	}
	if msg.Kind() != KindNewMessage {
		t.Fatalf("kind = %q, want NewMessage", msg.Kind())
	}
	if msg.NewMessage.ChatID != "general" || *msg.NewMessage.Creator != "u1" {
		t.Errorf("message = %+v", msg.NewMessage)
	}
}

func TestDecodeSystemMessage(t *testing.T) {
	payload := `{"NewMessage":{"id":"m1","chat_id":"general","creator":null,"content":"bob joined","created_at":1}}`
	msg, err := DecodeServer([]byte(payload))
	if err != nil {
		t.Fatal(err)
	}
	if !msg.NewMessage.System() {
		t.Error("null creator should decode as system message")
	}
}

func TestDecodeRequestResponseOk(t *testing.T) {
	id := uuid.New()
	payload := `{"RequestResponse":{"id":"` + id.String() + `","data":{"Ok":{"GetChats":[{"id":"c1","name":"general","users":[],"messages":[],"last_message_ts":5}]}}}}`
	msg, err := DecodeServer([]byte(payload))
	if err != nil {
		t.Fatal(err)
	}
	rr := msg.RequestResponse
	if rr == nil || rr.ID != id {
		t.Fatalf("response = %+v, want id %s", rr, id)
	}
	if rr.Data.Err != nil || rr.Data.Ok == nil {
		t.Fatalf("result = %+v, want Ok", rr.Data)
	}
	if rr.Data.Ok.Kind() != KindGetChats || len(rr.Data.Ok.GetChats) != 1 {
		t.Errorf("payload = %+v", rr.Data.Ok)
	}
}

func TestDecodeRequestResponseErr(t *testing.T) {
	payload := `{"RequestResponse":{"id":"` + uuid.NewString() + `","data":{"Err":"chat not found"}}}`
	msg, err := DecodeServer([]byte(payload))
	if err != nil {
		t.Fatal(err)
	}
	if msg.RequestResponse.Data.Err == nil || *msg.RequestResponse.Data.Err != "chat not found" {
		t.Errorf("result = %+v, want Err(chat not found)", msg.RequestResponse.Data)
	}
}

func TestDecodeEmptyHistoryPage(t *testing.T) {
	payload := `{"RequestResponse":{"id":"` + uuid.NewString() + `","data":{"Ok":{"GetMessages":[]}}}}`
	msg, err := DecodeServer([]byte(payload))
	if err != nil {
		t.Fatal(err)
	}
	res := msg.RequestResponse.Data.Ok
	// An empty page must still decode as the GetMessages variant: the
	// pagination controller relies on it to detect exhausted history.
	if res.Kind() != KindGetMessages {
		t.Fatalf("kind = %q, want GetMessages", res.Kind())
	}
	if len(res.GetMessages) != 0 {
		t.Errorf("got %d messages, want 0", len(res.GetMessages))
	}
}

func TestDecodeMalformedFrames(t *testing.T) {
	frames := []string{
		``,
		`not json`,
		`{}`,
		`{"NewMessage":{},"UserJoined":{}}`,
		`{"Bogus":{}}`,
		`{"UserJoined":"not an object"}`,
	}
	for _, f := range frames {
		if _, err := DecodeServer([]byte(f)); err == nil {
			t.Errorf("DecodeServer(%q) should fail", f)
		}
	}
}

func TestCallSignalOpaque(t *testing.T) {
	raw := `{"t":"Produce","c":["audio",{"codecs":[]}]}`
	payload := `{"RequestResponse":{"id":"` + uuid.NewString() + `","data":{"Ok":{"MS":` + raw + `}}}}`
	msg, err := DecodeServer([]byte(payload))
	if err != nil {
		t.Fatal(err)
	}
	res := msg.RequestResponse.Data.Ok
	if res.Kind() != KindCallSignal {
		t.Fatalf("kind = %q, want MS", res.Kind())
	}
	// The payload is routed verbatim; it must survive untouched.
	var got, want any
	if err := json.Unmarshal(res.CallSignal, &got); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(raw), &want); err != nil {
		t.Fatal(err)
	}
	if string(res.CallSignal) == "" {
		t.Error("call signal dropped")
	}
}

func TestServerMessageRoundTrip(t *testing.T) {
	creator := "u1"
	msgs := []*ServerMessage{
		{NewMessage: &model.Message{ID: "m", ChatID: "c", Creator: &creator, Content: "x", CreatedTS: 9}},
		{UserJoined: &UserJoined{ChatID: "c", User: model.User{ID: "u2", DisplayName: "Bob"}}},
		{SetChatRead: &ChatReadUpdate{ChatID: "c", UserID: "u1", LastMessageTS: 7}},
		{ProfileUpdated: &model.User{ID: "u1", DisplayName: "Alice"}},
		{ProducerAdded: &ProducerChange{ParticipantID: "p", ProducerID: "pr"}},
		{ProducerRemove: &ProducerChange{ParticipantID: "p", ProducerID: "pr"}},
	}
	for _, m := range msgs {
		t.Run(m.Kind(), func(t *testing.T) {
			data, err := EncodeServer(m)
			if err != nil {
				t.Fatal(err)
			}
			back, err := DecodeServer(data)
			if err != nil {
				t.Fatal(err)
			}
			if back.Kind() != m.Kind() {
				t.Errorf("kind = %q, want %q", back.Kind(), m.Kind())
			}
		})
	}
}
