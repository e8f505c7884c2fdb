package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/mrcplink/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecorders(t *testing.T) {
	testlog.Start(t)
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordSent("Speak")
	m.RecordSent("Speak")
	m.RecordSendError("DetectSpeech")
	m.RecordReceived("RecognitionComplete", true)
	m.RecordResponse(200)
	m.RecordDispatchError(KindNonJSON)
	m.RecordFrame()
	m.RecordResync(12)
	m.ConnectionOpened()
	m.ConnectionClosed(true)

	if got := testutil.ToFloat64(m.eventsSent.WithLabelValues("Speak")); got != 2 {
		t.Fatalf("events sent=%v", got)
	}
	if got := testutil.ToFloat64(m.sendErrors.WithLabelValues("DetectSpeech")); got != 1 {
		t.Fatalf("send errors=%v", got)
	}
	if got := testutil.ToFloat64(m.eventsReceived.WithLabelValues("RecognitionComplete", "true")); got != 1 {
		t.Fatalf("events received=%v", got)
	}
	if got := testutil.ToFloat64(m.responses.WithLabelValues("200")); got != 1 {
		t.Fatalf("responses=%v", got)
	}
	if got := testutil.ToFloat64(m.resyncDiscarded); got != 12 {
		t.Fatalf("resync discarded=%v", got)
	}
	if got := testutil.ToFloat64(m.connectionsActive); got != 0 {
		t.Fatalf("connections active=%v", got)
	}
	if got := testutil.ToFloat64(m.connectionsLost); got != 1 {
		t.Fatalf("connections lost=%v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	testlog.Start(t)
	var m *Metrics
	m.RecordSent("Speak")
	m.RecordResync(3)
	m.ConnectionClosed(false)
}

func TestDefaultMetricsIsIdempotent(t *testing.T) {
	testlog.Start(t)
	if DefaultMetrics() != DefaultMetrics() {
		t.Fatalf("expected a single default metrics instance")
	}
}

func TestRouterServesMetricsAndHealth(t *testing.T) {
	testlog.Start(t)
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.RecordFrame()

	srv := httptest.NewServer(NewRouter(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status=%d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(body), "mrcplink_client_frames_decoded_total 1") {
		t.Fatalf("metrics body missing frame counter:\n%s", body)
	}
}
