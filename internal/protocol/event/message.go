package event

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Kind classifies one inbound payload.
type Kind int

const (
	KindUnknown Kind = iota
	KindHeartbeat
	KindEvent
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindHeartbeat:
		return "heartbeat"
	case KindEvent:
		return "event"
	case KindResponse:
		return "response"
	default:
		return "unknown"
	}
}

// Data is the raw JSON value of an inbound data field.
type Data json.RawMessage

// IsNull reports whether the field was absent or JSON null.
func (d Data) IsNull() bool {
	t := bytes.TrimSpace(d)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// String returns JSON strings unquoted and any other value as its raw JSON
// text. Null yields "".
func (d Data) String() string {
	if d.IsNull() {
		return ""
	}
	var s string
	if err := json.Unmarshal(d, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(d))
}

// Decode unmarshals the field into v. A JSON string whose content is itself
// JSON is decoded one level deeper, since the server embeds objects as text.
func (d Data) Decode(v any) error {
	if d.IsNull() {
		return ErrDataNull
	}
	var s string
	if err := json.Unmarshal(d, &s); err == nil {
		return json.Unmarshal([]byte(s), v)
	}
	return json.Unmarshal(d, v)
}

func (d Data) MarshalJSON() ([]byte, error) {
	if d.IsNull() {
		return []byte("null"), nil
	}
	return json.RawMessage(d).MarshalJSON()
}

// Inbound is a server event.
type Inbound struct {
	ID   string
	Name string
	Data Data
}

// Response is a server reply to a client event.
type Response struct {
	ID      string
	Code    int
	Message string
	Data    Data
}

// Message is one classified inbound payload.
type Message struct {
	Kind     Kind
	Event    Inbound
	Response Response
	Raw      string
}

// Parse classifies a decoded frame payload. Empty text, "null" and empty
// objects are heartbeats. Invalid JSON returns ErrNotJSON; valid JSON with
// neither an event nor a code key is KindUnknown.
func Parse(payload string) (Message, error) {
	msg := Message{Raw: payload}
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" || strings.EqualFold(trimmed, "null") {
		msg.Kind = KindHeartbeat
		return msg, nil
	}
	if !json.Valid([]byte(trimmed)) {
		return msg, ErrNotJSON
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		msg.Kind = KindUnknown
		return msg, nil
	}
	if len(fields) == 0 {
		msg.Kind = KindHeartbeat
		return msg, nil
	}

	id := rawString(fields["id"])
	if raw, ok := fields["event"]; ok {
		msg.Kind = KindEvent
		msg.Event = Inbound{ID: id, Name: rawString(raw), Data: Data(fields["data"])}
		return msg, nil
	}
	if raw, ok := fields["code"]; ok {
		var code int
		if err := json.Unmarshal(raw, &code); err != nil {
			msg.Kind = KindUnknown
			return msg, nil
		}
		msg.Kind = KindResponse
		msg.Response = Response{
			ID:      id,
			Code:    code,
			Message: rawString(fields["message"]),
			Data:    Data(fields["data"]),
		}
		return msg, nil
	}
	msg.Kind = KindUnknown
	return msg, nil
}

func rawString(raw json.RawMessage) string {
	return Data(raw).String()
}
