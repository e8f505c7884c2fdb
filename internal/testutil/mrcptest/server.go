// Package mrcptest runs an in-process EasyMrcp peer on loopback for tests.
package mrcptest

import (
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/mrcplink/internal/protocol/event"
	"github.com/danmuck/mrcplink/internal/protocol/frame"
)

const WaitTimeout = 2 * time.Second

// Server accepts client connections and decodes every frame they send.
type Server struct {
	t      testing.TB
	ln     net.Listener
	events chan event.Event
	ready  chan struct{}

	mu    sync.Mutex
	conn  net.Conn
	conns []net.Conn
	raw   []string
	once  sync.Once
	wg    sync.WaitGroup
}

func NewServer(t testing.TB) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &Server{
		t:      t,
		ln:     ln,
		events: make(chan event.Event, 256),
		ready:  make(chan struct{}),
	}
	s.wg.Add(1)
	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conn = conn
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		s.once.Do(func() { close(s.ready) })
		s.wg.Add(1)
		go s.readLoop(conn)
	}
}

func (s *Server) readLoop(conn net.Conn) {
	defer s.wg.Done()
	r := frame.NewReader(conn)
	for {
		msgs, err := r.ReadMessages()
		for _, m := range msgs {
			s.mu.Lock()
			s.raw = append(s.raw, m)
			s.mu.Unlock()
			ev, derr := event.Decode([]byte(m))
			if derr != nil {
				continue
			}
			select {
			case s.events <- ev:
			default:
			}
		}
		if err != nil {
			return
		}
	}
}

// Conn returns the most recently accepted connection.
func (s *Server) Conn() net.Conn {
	s.t.Helper()
	select {
	case <-s.ready:
	case <-time.After(WaitTimeout):
		s.t.Fatalf("mrcptest: no client connected within %v", WaitTimeout)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Next returns the next decoded client event.
func (s *Server) Next() event.Event {
	s.t.Helper()
	select {
	case ev := <-s.events:
		return ev
	case <-time.After(WaitTimeout):
		s.t.Fatalf("mrcptest: no client event within %v", WaitTimeout)
		return event.Event{}
	}
}

// NextNamed skips client events until one named name arrives.
func (s *Server) NextNamed(name string) event.Event {
	s.t.Helper()
	deadline := time.After(WaitTimeout)
	for {
		select {
		case ev := <-s.events:
			if ev.Name == name {
				return ev
			}
		case <-deadline:
			s.t.Fatalf("mrcptest: no %s event within %v", name, WaitTimeout)
			return event.Event{}
		}
	}
}

// Quiet reports whether no client event arrives within d.
func (s *Server) Quiet(d time.Duration) bool {
	select {
	case <-s.events:
		return false
	case <-time.After(d):
		return true
	}
}

// Payloads returns every raw payload received so far.
func (s *Server) Payloads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.raw))
	copy(out, s.raw)
	return out
}

// SendEvent writes {"id":..,"event":name,"data":data} with data embedded as
// given, so objects stay objects and strings stay strings.
func (s *Server) SendEvent(id, name string, data any) {
	s.t.Helper()
	s.SendJSON(map[string]any{"id": id, "event": name, "data": data})
}

func (s *Server) SendResponse(id string, code int, message string, data any) {
	s.t.Helper()
	s.SendJSON(map[string]any{"id": id, "code": code, "message": message, "data": data})
}

func (s *Server) SendJSON(v any) {
	s.t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		s.t.Fatalf("mrcptest: marshal: %v", err)
	}
	s.SendPayload(string(b))
}

func (s *Server) SendPayload(payload string) {
	s.t.Helper()
	b, err := frame.EncodeString(payload)
	if err != nil {
		s.t.Fatalf("mrcptest: encode: %v", err)
	}
	s.SendRaw(b)
}

func (s *Server) SendRaw(b []byte) {
	s.t.Helper()
	conn := s.Conn()
	if _, err := conn.Write(b); err != nil {
		s.t.Fatalf("mrcptest: write: %v", err)
	}
}

// DropClient closes the current client connection from the server side.
func (s *Server) DropClient() {
	s.t.Helper()
	_ = s.Conn().Close()
}

func (s *Server) Close() {
	_ = s.ln.Close()
	s.mu.Lock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// ClosedAddr returns a loopback address with no listener.
func ClosedAddr(t testing.TB) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		t.Fatalf("close listener: %v", err)
	}
	return addr
}
