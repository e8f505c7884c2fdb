package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Outbound event names.
const (
	ClientConnect        = "ClientConnect"
	Speak                = "Speak"
	SpeakWithNoInterrupt = "SpeakWithNoInterrupt"
	DetectSpeech         = "DetectSpeech"
	Interrupt            = "Interrupt"
	InterruptAndSpeak    = "InterruptAndSpeak"
	Silence              = "Silence"
	ClientDisConnect     = "ClientDisConnect"
)

// Inbound event names. ClientConnect is shared with the outbound set: the
// server echoes the same wire name when the session is ready.
const (
	RecognitionComplete = "RecognitionComplete"
	SpeakComplete       = "SpeakComplete"
	SpeakInterrupted    = "SpeakInterrupted"
	NoInputTimeout      = "NoInputTimeout"
)

var (
	ErrEmptyEventName = errors.New("event: empty event name")
	ErrNotJSON        = errors.New("event: non-JSON payload")
	ErrDataNull       = errors.New("event: data is null")
)

// Event is the outbound envelope. Data is always carried as a JSON string
// or null.
type Event struct {
	ID   string
	Name string
	Data *string
}

type wireEvent struct {
	ID    *string `json:"id"`
	Event string  `json:"event"`
	Data  *string `json:"data"`
}

// New builds an Event, canonicalizing data to its string form.
func New(id, name string, data any) (Event, error) {
	if strings.TrimSpace(name) == "" {
		return Event{}, ErrEmptyEventName
	}
	text, err := Canonicalize(data)
	if err != nil {
		return Event{}, fmt.Errorf("event %s: %w", name, err)
	}
	return Event{ID: id, Name: name, Data: text}, nil
}

// Canonicalize converts caller data to the string carried in the data
// field. nil maps to null; strings and raw bytes pass through; maps,
// slices and structs are JSON encoded; other scalars use their fmt form.
func Canonicalize(data any) (*string, error) {
	var s string
	switch v := data.(type) {
	case nil:
		return nil, nil
	case string:
		s = v
	case *string:
		if v == nil {
			return nil, nil
		}
		s = *v
	case []byte:
		s = string(v)
	case json.RawMessage:
		s = string(v)
	case fmt.Stringer:
		s = v.String()
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		s = fmt.Sprint(v)
	default:
		b, err := marshalCompact(v)
		if err != nil {
			return nil, err
		}
		s = string(b)
	}
	return &s, nil
}

// Marshal returns the JSON object sent on the wire.
func (e Event) Marshal() ([]byte, error) {
	if strings.TrimSpace(e.Name) == "" {
		return nil, ErrEmptyEventName
	}
	w := wireEvent{Event: e.Name, Data: e.Data}
	if e.ID != "" {
		id := e.ID
		w.ID = &id
	}
	return marshalCompact(w)
}

// DataString returns the data text, or "" when null.
func (e Event) DataString() string {
	if e.Data == nil {
		return ""
	}
	return *e.Data
}

// Decode parses an outbound envelope. It is the inverse of Marshal and is
// used by peers and tests reading what a client sent.
func Decode(payload []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(payload, &w); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrNotJSON, err)
	}
	if strings.TrimSpace(w.Event) == "" {
		return Event{}, ErrEmptyEventName
	}
	e := Event{Name: w.Event, Data: w.Data}
	if w.ID != nil {
		e.ID = *w.ID
	}
	return e, nil
}

// marshalCompact encodes v without HTML escaping so non-ASCII and markup
// in speech text reach the server verbatim.
func marshalCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
