package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Excellence-arch/anonchat-go/internal/domain"
)

func testConfig(url string) Config {
	return Config{
		URL:                  url,
		PingInterval:         50 * time.Millisecond,
		PongWait:             200 * time.Millisecond,
		WriteWait:            time.Second,
		MaxMessageSize:       4096,
		ReconnectBase:        25 * time.Millisecond,
		MaxReconnectAttempts: 3,
	}
}

type statusRecorder struct {
	mu       sync.Mutex
	statuses []domain.ConnectionStatus
}

func (r *statusRecorder) record(s domain.ConnectionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *statusRecorder) last() (domain.ConnectionStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return 0, false
	}
	return r.statuses[len(r.statuses)-1], true
}

type wsTestServer struct {
	t      *testing.T
	srv    *httptest.Server
	mu     sync.Mutex
	conn   *websocket.Conn
	auths  []string
	frames chan []byte
}

func newWSTestServer(t *testing.T) *wsTestServer {
	t.Helper()
	s := &wsTestServer{t: t, frames: make(chan []byte, 16)}
	upgrader := websocket.Upgrader{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.auths = append(s.auths, r.Header.Get("Authorization"))
		s.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.frames <- msg
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsTestServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsTestServer) push(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestConnectDeliversFramesAndSends(t *testing.T) {
	server := newWSTestServer(t)

	var mu sync.Mutex
	var received [][]byte
	m := NewManager(testConfig(server.url()), func(raw []byte) {
		mu.Lock()
		received = append(received, raw)
		mu.Unlock()
	}, nil)
	defer m.Disconnect()

	if err := m.Connect(context.Background(), "tok-1"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !m.IsConnected() {
		t.Fatal("expected connected")
	}

	// Credential rides the handshake.
	server.mu.Lock()
	auth := server.auths[0]
	server.mu.Unlock()
	if auth != "Bearer tok-1" {
		t.Errorf("unexpected authorization header %q", auth)
	}

	// Idempotent while connected.
	if err := m.Connect(context.Background(), "tok-1"); err != nil {
		t.Fatalf("second connect: %v", err)
	}

	if err := m.Send([]byte(`{"type":"typing_start","receiverId":"p1"}`)); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case frame := <-server.frames:
		if !strings.Contains(string(frame), "typing_start") {
			t.Errorf("unexpected frame %s", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive frame")
	}

	if err := server.push([]byte(`{"type":"chat_updated"}`)); err != nil {
		t.Fatalf("push: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	})
}

func TestBackoffDelaysIncreaseThenStop(t *testing.T) {
	rec := &statusRecorder{}
	m := NewManager(testConfig("ws://127.0.0.1:0"), func([]byte) {}, rec.record)

	var mu sync.Mutex
	var dials []time.Time
	m.dial = func(ctx context.Context, url string, header http.Header) (*websocket.Conn, error) {
		mu.Lock()
		dials = append(dials, time.Now())
		mu.Unlock()
		return nil, errors.New("connection refused")
	}

	if err := m.Connect(context.Background(), "tok"); err == nil {
		t.Fatal("expected dial error")
	}

	// Initial dial plus one per allowed attempt.
	waitFor(t, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(dials) == 4
	})

	// No dials beyond the cap.
	time.Sleep(200 * time.Millisecond)
	mu.Lock()
	if len(dials) != 4 {
		t.Fatalf("expected 4 dials, got %d", len(dials))
	}
	gaps := make([]time.Duration, 0, 3)
	for i := 1; i < len(dials); i++ {
		gaps = append(gaps, dials[i].Sub(dials[i-1]))
	}
	mu.Unlock()

	for i := 1; i < len(gaps); i++ {
		if gaps[i] <= gaps[i-1] {
			t.Errorf("expected strictly increasing delays, got %v", gaps)
		}
	}

	last, ok := rec.last()
	if !ok || last != domain.StatusDisconnected {
		t.Errorf("expected terminal disconnected status, got %v", last)
	}
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	m := NewManager(testConfig("ws://127.0.0.1:0"), func([]byte) {}, nil)

	var mu sync.Mutex
	dials := 0
	m.dial = func(ctx context.Context, url string, header http.Header) (*websocket.Conn, error) {
		mu.Lock()
		dials++
		mu.Unlock()
		return nil, errors.New("connection refused")
	}

	m.Connect(context.Background(), "tok")
	m.Disconnect()

	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if dials != 1 {
		t.Errorf("expected reconnect to be cancelled, got %d dials", dials)
	}
}

func TestConnectCancelsPendingReconnect(t *testing.T) {
	server := newWSTestServer(t)
	m := NewManager(testConfig(server.url()), func([]byte) {}, nil)
	defer m.Disconnect()

	realDial := m.dial
	var mu sync.Mutex
	dials := 0
	failFirst := true
	m.dial = func(ctx context.Context, url string, header http.Header) (*websocket.Conn, error) {
		mu.Lock()
		dials++
		fail := failFirst
		failFirst = false
		mu.Unlock()
		if fail {
			return nil, errors.New("connection refused")
		}
		return realDial(ctx, url, header)
	}

	// The failed dial arms the reconnect timer.
	if err := m.Connect(context.Background(), "tok"); err == nil {
		t.Fatal("expected dial error")
	}

	// A caller retry before the timer fires must supersede it.
	if err := m.Connect(context.Background(), "tok"); err != nil {
		t.Fatalf("second connect: %v", err)
	}
	if !m.IsConnected() {
		t.Fatal("expected connected")
	}

	// Past the backoff delay the stale timer must not dial again.
	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	got := dials
	mu.Unlock()
	if got != 2 {
		t.Errorf("expected 2 dials, got %d", got)
	}
	if !m.IsConnected() {
		t.Error("expected session to stay up")
	}
}

func TestDisconnectIsNoOpWhenNotConnected(t *testing.T) {
	m := NewManager(testConfig("ws://127.0.0.1:0"), func([]byte) {}, nil)
	m.Disconnect()
	m.Disconnect()
	if m.IsConnected() {
		t.Error("expected not connected")
	}
}

func TestAttemptCounterResetsOnSuccess(t *testing.T) {
	server := newWSTestServer(t)
	rec := &statusRecorder{}
	m := NewManager(testConfig(server.url()), func([]byte) {}, rec.record)
	defer m.Disconnect()

	failures := 2
	realDial := m.dial
	var mu sync.Mutex
	m.dial = func(ctx context.Context, url string, header http.Header) (*websocket.Conn, error) {
		mu.Lock()
		if failures > 0 {
			failures--
			mu.Unlock()
			return nil, errors.New("connection refused")
		}
		mu.Unlock()
		return realDial(ctx, url, header)
	}

	m.Connect(context.Background(), "tok")

	waitFor(t, 3*time.Second, func() bool { return m.IsConnected() })

	m.mu.Lock()
	attempt := m.attempt
	m.mu.Unlock()
	if attempt != 0 {
		t.Errorf("expected attempt counter reset on success, got %d", attempt)
	}

	last, _ := rec.last()
	if last != domain.StatusConnected {
		t.Errorf("expected connected status, got %v", last)
	}
}

func TestSendWhenDisconnected(t *testing.T) {
	m := NewManager(testConfig("ws://127.0.0.1:0"), func([]byte) {}, nil)
	if err := m.Send([]byte("x")); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}
