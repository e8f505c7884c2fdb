package event

import (
	"errors"
	"testing"
)

func TestParseHeartbeats(t *testing.T) {
	for _, in := range []string{"", "   ", "null", "NULL", " Null ", "{}"} {
		msg, err := Parse(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if msg.Kind != KindHeartbeat {
			t.Fatalf("parse %q: expected heartbeat, got %s", in, msg.Kind)
		}
	}
}

func TestParseNonJSON(t *testing.T) {
	_, err := Parse("not json at all")
	if !errors.Is(err, ErrNotJSON) {
		t.Fatalf("expected ErrNotJSON, got %v", err)
	}
}

func TestParseEvent(t *testing.T) {
	msg, err := Parse(`{"id":"leg-a","event":"RecognitionComplete","data":"hello"}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Kind != KindEvent {
		t.Fatalf("expected event, got %s", msg.Kind)
	}
	if msg.Event.Name != RecognitionComplete || msg.Event.ID != "leg-a" {
		t.Fatalf("unexpected event: %+v", msg.Event)
	}
	if msg.Event.Data.String() != "hello" {
		t.Fatalf("unexpected data=%q", msg.Event.Data.String())
	}
}

func TestParseEventWinsOverCode(t *testing.T) {
	msg, err := Parse(`{"event":"SpeakComplete","code":200}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Kind != KindEvent {
		t.Fatalf("expected event, got %s", msg.Kind)
	}
}

func TestParseResponse(t *testing.T) {
	msg, err := Parse(`{"code":200,"message":"ok","data":null}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Kind != KindResponse {
		t.Fatalf("expected response, got %s", msg.Kind)
	}
	if msg.Response.Code != 200 || msg.Response.Message != "ok" || !msg.Response.Data.IsNull() {
		t.Fatalf("unexpected response: %+v", msg.Response)
	}
}

func TestParseUnknownShapes(t *testing.T) {
	for _, in := range []string{`{"foo":1}`, `[1,2,3]`, `42`, `{"code":"abc"}`} {
		msg, err := Parse(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if msg.Kind != KindUnknown {
			t.Fatalf("parse %q: expected unknown, got %s", in, msg.Kind)
		}
	}
}

func TestDataDecodeObjectAndEmbeddedString(t *testing.T) {
	for _, raw := range []string{`{"rtpPort":5004}`, `"{\"rtpPort\":5004}"`} {
		var res ConnectResult
		if err := Data(raw).Decode(&res); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
		if res.RTPPort != 5004 {
			t.Fatalf("decode %s: unexpected port=%d", raw, res.RTPPort)
		}
	}
}

func TestDataDecodeNull(t *testing.T) {
	var res ConnectResult
	if err := Data("null").Decode(&res); !errors.Is(err, ErrDataNull) {
		t.Fatalf("expected ErrDataNull, got %v", err)
	}
	if err := Data(nil).Decode(&res); !errors.Is(err, ErrDataNull) {
		t.Fatalf("expected ErrDataNull for absent data, got %v", err)
	}
}

func TestDataStringForms(t *testing.T) {
	if got := Data(`{"a":1}`).String(); got != `{"a":1}` {
		t.Fatalf("object string=%q", got)
	}
	if got := Data(`"text"`).String(); got != "text" {
		t.Fatalf("string=%q", got)
	}
	if got := Data(nil).String(); got != "" {
		t.Fatalf("null string=%q", got)
	}
}
