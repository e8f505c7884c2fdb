package callflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/mrcplink/internal/client"
	"github.com/danmuck/mrcplink/internal/observability"
	"github.com/danmuck/mrcplink/internal/protocol/event"
	"github.com/danmuck/mrcplink/internal/protocol/session"
	"github.com/danmuck/mrcplink/internal/testutil/mrcptest"
	"github.com/danmuck/mrcplink/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus"
)

const legID = "a-leg"

func newLegClient(t *testing.T, addr string) *client.Client {
	t.Helper()
	cfg := session.DefaultConfig()
	cfg.ReadTimeout = 50 * time.Millisecond
	cfg.DisconnectGrace = 20 * time.Millisecond
	c, err := client.New(client.Config{
		Address:   addr,
		SessionID: legID,
		Session:   cfg,
		Metrics:   observability.NewMetrics(prometheus.NewRegistry()),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func expectSpeak(t *testing.T, srv *mrcptest.Server, text string) {
	t.Helper()
	ev := srv.NextNamed(event.Speak)
	if ev.DataString() != text {
		t.Fatalf("speak text=%q want %q", ev.DataString(), text)
	}
}

func TestEchoGreetsAndStartsRecognition(t *testing.T) {
	testlog.Start(t)
	srv := mrcptest.NewServer(t)
	c := newLegClient(t, srv.Addr())
	NewEcho(c, EchoConfig{WelcomeText: "welcome", DetectSpeech: event.DefaultDetectSpeechParams()})

	if err := c.Connect(context.Background(), nil); err != nil {
		t.Fatalf("connect: %v", err)
	}
	srv.NextNamed(event.ClientConnect)

	srv.SendEvent(legID, event.ClientConnect, nil)
	first := srv.Next()
	if first.Name != event.Speak || first.DataString() != "welcome" {
		t.Fatalf("first=%+v want Speak welcome", first)
	}
	second := srv.Next()
	if second.Name != event.DetectSpeech {
		t.Fatalf("second=%s want DetectSpeech", second.Name)
	}
	if second.DataString() != `{"StartInputTimers":true,"NoInputTimeout":60000,"SpeechCompleteTimeout":800,"AutomaticInterruption":true}` {
		t.Fatalf("detect speech data=%q", second.DataString())
	}
}

func TestEchoRepeatsRecognizedText(t *testing.T) {
	testlog.Start(t)
	srv := mrcptest.NewServer(t)
	c := newLegClient(t, srv.Addr())
	NewEcho(c, DefaultEchoConfig())

	if err := c.Connect(context.Background(), nil); err != nil {
		t.Fatalf("connect: %v", err)
	}
	srv.NextNamed(event.ClientConnect)

	srv.SendEvent(legID, event.RecognitionComplete, "今天天气怎么样")
	expectSpeak(t, srv, "今天天气怎么样")

	srv.SendEvent(legID, event.NoInputTimeout, nil)
	expectSpeak(t, srv, DefaultNoInputText)

	srv.SendEvent(legID, event.RecognitionComplete, "   ")
	srv.SendEvent(legID, event.SpeakComplete, nil)
	srv.SendEvent(legID, event.SpeakInterrupted, nil)
	if !srv.Quiet(150 * time.Millisecond) {
		t.Fatalf("unexpected outbound event after blank recognition or speak completion")
	}
}

func TestEchoEmptyTextsFallBackToDefaults(t *testing.T) {
	testlog.Start(t)
	c := newLegClient(t, "127.0.0.1:1")
	e := NewEcho(c, EchoConfig{})
	if e.cfg.WelcomeText != DefaultWelcomeText || e.cfg.NoInputText != DefaultNoInputText {
		t.Fatalf("cfg=%+v", e.cfg)
	}
}

func TestSpyPublishesPortAndStartsRecognition(t *testing.T) {
	testlog.Start(t)
	srv := mrcptest.NewServer(t)
	c := newLegClient(t, srv.Addr())
	texts := make(chan string, 1)
	cfg := DefaultSpyConfig()
	cfg.OnText = func(text string) { texts <- text }
	spy := NewSpy(c, cfg)

	if err := c.Connect(context.Background(), spy.ConnectParams()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	connect := srv.NextNamed(event.ClientConnect)
	if connect.DataString() != `{"Type":"spy"}` {
		t.Fatalf("connect data=%q", connect.DataString())
	}

	srv.SendEvent(legID, event.ClientConnect, `{"rtpPort":5004}`)
	port, err := spy.WaitPort(context.Background())
	if err != nil {
		t.Fatalf("wait port: %v", err)
	}
	if port != 5004 {
		t.Fatalf("port=%d want 5004", port)
	}
	detect := srv.NextNamed(event.DetectSpeech)
	if detect.DataString() != `{"StartInputTimers":false,"NoInputTimeout":60000,"SpeechCompleteTimeout":800,"AutomaticInterruption":true}` {
		t.Fatalf("detect speech data=%q", detect.DataString())
	}

	srv.SendEvent(legID, event.RecognitionComplete, "overheard")
	select {
	case text := <-texts:
		if text != "overheard" {
			t.Fatalf("text=%q", text)
		}
	case <-time.After(mrcptest.WaitTimeout):
		t.Fatalf("recognition callback not invoked")
	}
}

func TestSpyMissingPort(t *testing.T) {
	testlog.Start(t)
	srv := mrcptest.NewServer(t)
	c := newLegClient(t, srv.Addr())
	spy := NewSpy(c, DefaultSpyConfig())

	if err := c.Connect(context.Background(), spy.ConnectParams()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	srv.NextNamed(event.ClientConnect)

	srv.SendEvent(legID, event.ClientConnect, map[string]any{"other": 1})
	if _, err := spy.WaitPort(context.Background()); !errors.Is(err, ErrNoRTPPort) {
		t.Fatalf("err=%v want ErrNoRTPPort", err)
	}
	if !srv.Quiet(100 * time.Millisecond) {
		t.Fatalf("detect speech sent without a port")
	}
}

func TestSpyWaitPortTimeout(t *testing.T) {
	testlog.Start(t)
	srv := mrcptest.NewServer(t)
	c := newLegClient(t, srv.Addr())
	cfg := DefaultSpyConfig()
	cfg.PortTimeout = 50 * time.Millisecond
	spy := NewSpy(c, cfg)

	if err := c.Connect(context.Background(), spy.ConnectParams()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := spy.WaitPort(context.Background()); !errors.Is(err, ErrPortTimeout) {
		t.Fatalf("err=%v want ErrPortTimeout", err)
	}
}

func TestSpyWaitPortConnectionEnded(t *testing.T) {
	testlog.Start(t)
	srv := mrcptest.NewServer(t)
	c := newLegClient(t, srv.Addr())
	spy := NewSpy(c, DefaultSpyConfig())

	if err := c.Connect(context.Background(), spy.ConnectParams()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	srv.DropClient()
	if _, err := spy.WaitPort(context.Background()); !errors.Is(err, ErrNoRTPPort) {
		t.Fatalf("err=%v want ErrNoRTPPort", err)
	}
}

func TestRunDisconnectsOnCancel(t *testing.T) {
	testlog.Start(t)
	srv := mrcptest.NewServer(t)
	c := newLegClient(t, srv.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- Run(ctx, c, nil) }()

	srv.NextNamed(event.ClientConnect)
	cancel()
	srv.NextNamed(event.ClientDisConnect)
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(mrcptest.WaitTimeout):
		t.Fatalf("run did not return after cancel")
	}
	if c.State() != client.StateClosed {
		t.Fatalf("state=%s", c.State())
	}
}

func TestRunReportsLostConnection(t *testing.T) {
	testlog.Start(t)
	srv := mrcptest.NewServer(t)
	c := newLegClient(t, srv.Addr())

	errc := make(chan error, 1)
	go func() { errc <- Run(context.Background(), c, nil) }()

	srv.NextNamed(event.ClientConnect)
	srv.DropClient()
	select {
	case err := <-errc:
		if !errors.Is(err, client.ErrConnectionLost) {
			t.Fatalf("run err=%v want ErrConnectionLost", err)
		}
	case <-time.After(mrcptest.WaitTimeout):
		t.Fatalf("run did not return after peer drop")
	}
}

func TestRunConnectFailure(t *testing.T) {
	testlog.Start(t)
	c := newLegClient(t, mrcptest.ClosedAddr(t))
	if err := Run(context.Background(), c, nil); !errors.Is(err, client.ErrConnectFailed) {
		t.Fatalf("run err=%v want ErrConnectFailed", err)
	}
}
