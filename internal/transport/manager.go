package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Excellence-arch/anonchat-go/internal/domain"
	"github.com/Excellence-arch/anonchat-go/pkg/log"
)

// Config holds transport settings.
type Config struct {
	URL            string
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64

	ReconnectBase        time.Duration
	MaxReconnectAttempts int
}

// FrameHandler receives raw inbound frames in arrival order. It is
// called from the read pump goroutine, one frame at a time.
type FrameHandler func(raw []byte)

// StatusHandler receives link state transitions.
type StatusHandler func(status domain.ConnectionStatus)

type dialFunc func(ctx context.Context, url string, header http.Header) (*websocket.Conn, error)

// Manager owns the lifecycle of one websocket session: connect,
// authenticate, reconnect with backoff, disconnect. It holds no domain
// state; decoded traffic reaches the rest of the engine only through the
// frame handler.
type Manager struct {
	cfg      Config
	onFrame  FrameHandler
	onStatus StatusHandler
	dial     dialFunc

	mu         sync.Mutex
	conn       *websocket.Conn
	send       chan []byte
	stop       chan struct{}
	credential string
	attempt    int
	retry      *time.Timer
	closed     bool
}

func NewManager(cfg Config, onFrame FrameHandler, onStatus StatusHandler) *Manager {
	return &Manager{
		cfg:      cfg,
		onFrame:  onFrame,
		onStatus: onStatus,
		dial: func(ctx context.Context, url string, header http.Header) (*websocket.Conn, error) {
			conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
			if resp != nil && resp.Body != nil {
				resp.Body.Close()
			}
			return conn, err
		},
		closed: true,
	}
}

// Connect opens the session with the given credential. Idempotent while
// already connected. A failed dial schedules a reconnect and returns the
// dial error; retries continue in the background up to the attempt cap.
func (m *Manager) Connect(ctx context.Context, credential string) error {
	m.mu.Lock()
	if m.conn != nil {
		m.mu.Unlock()
		return nil
	}
	// This dial supersedes any reconnect already on the clock.
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	m.credential = credential
	m.closed = false
	m.attempt = 0
	m.mu.Unlock()

	return m.connect(ctx)
}

func (m *Manager) connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return domain.ErrNotConnected
	}
	if m.conn != nil {
		m.mu.Unlock()
		return nil
	}
	credential := m.credential
	m.mu.Unlock()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+credential)

	conn, err := m.dial(ctx, m.cfg.URL, header)
	if err != nil {
		log.L().Warn().Err(err).Str(log.FieldStatus, "dial_failed").Msg("websocket dial failed")
		m.scheduleReconnect()
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.Close()
		return domain.ErrNotConnected
	}
	if m.conn != nil {
		// Lost the race against another dial; the established session wins.
		m.mu.Unlock()
		conn.Close()
		return nil
	}
	m.conn = conn
	m.send = make(chan []byte, 256)
	m.stop = make(chan struct{})
	m.attempt = 0
	send, stop := m.send, m.stop
	m.mu.Unlock()

	go m.writePump(conn, send, stop)
	go m.readPump(conn)

	m.setStatus(domain.StatusConnected)
	return nil
}

// Disconnect tears the session down and cancels any pending reconnect.
// Safe to call when not connected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.closed = true
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	conn := m.conn
	m.teardownLocked()
	m.mu.Unlock()

	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(m.cfg.WriteWait))
		conn.Close()
	}
	m.setStatus(domain.StatusDisconnected)
}

// IsConnected reports whether the session is currently up.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Send enqueues an outbound frame without blocking. Returns
// ErrNotConnected when the link is down or the outbound buffer is full.
func (m *Manager) Send(payload []byte) error {
	m.mu.Lock()
	send := m.send
	connected := m.conn != nil
	m.mu.Unlock()

	if !connected {
		return domain.ErrNotConnected
	}
	select {
	case send <- payload:
		return nil
	default:
		return domain.ErrNotConnected
	}
}

func (m *Manager) readPump(conn *websocket.Conn) {
	defer m.handleDrop(conn)

	conn.SetReadLimit(m.cfg.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.L().Warn().Err(err).Msg("websocket read error")
			}
			return
		}
		m.onFrame(message)
	}
}

func (m *Manager) writePump(conn *websocket.Conn, send chan []byte, stop chan struct{}) {
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-stop:
			return
		case message := <-send:
			conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleDrop runs when the read pump exits. An explicit Disconnect has
// already cleaned up; anything else is a transport failure that feeds
// the backoff schedule.
func (m *Manager) handleDrop(conn *websocket.Conn) {
	conn.Close()

	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.teardownLocked()
	closed := m.closed
	m.mu.Unlock()

	if !closed {
		m.scheduleReconnect()
	}
}

func (m *Manager) teardownLocked() {
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	m.conn = nil
	m.send = nil
}

// scheduleReconnect arms the backoff timer: delay = base * attempt,
// stopping for good once the attempt cap is reached.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.attempt++
	attempt := m.attempt
	if attempt > m.cfg.MaxReconnectAttempts {
		m.closed = true
		m.mu.Unlock()
		log.L().Error().Int(log.FieldAttempt, attempt-1).Msg("reconnect attempts exhausted")
		m.setStatus(domain.StatusDisconnected)
		return
	}
	delay := m.cfg.ReconnectBase * time.Duration(attempt)
	if m.retry != nil {
		m.retry.Stop()
	}
	m.retry = time.AfterFunc(delay, func() {
		m.connect(context.Background())
	})
	m.mu.Unlock()

	log.L().Info().
		Int(log.FieldAttempt, attempt).
		Dur("delay", delay).
		Msg("reconnect scheduled")
	m.setStatus(domain.StatusReconnecting)
}

func (m *Manager) setStatus(status domain.ConnectionStatus) {
	if m.onStatus != nil {
		m.onStatus(status)
	}
}
