package webserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/dj-oyu/carcam/internal/logger"
	"github.com/dj-oyu/carcam/internal/metrics"
	"github.com/dj-oyu/carcam/pkg/types"
	"github.com/gorilla/websocket"
)

const telemetryWriteWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The control page is served from a different port than the stream
	// and is opened by IP, so any origin is accepted.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// TelemetryBroadcaster fans position and auto-mode updates out to
// websocket clients.
type TelemetryBroadcaster struct {
	mu      sync.Mutex
	clients map[int]chan types.Telemetry
	nextID  int
	closed  bool

	snapshot func() types.Telemetry
	ping     time.Duration
	metrics  *metrics.Metrics
	log      logger.Module
}

// NewTelemetryBroadcaster creates a broadcaster. snapshot supplies the
// first message every new client receives.
func NewTelemetryBroadcaster(snapshot func() types.Telemetry, ping time.Duration, m *metrics.Metrics) *TelemetryBroadcaster {
	if ping <= 0 {
		ping = DefaultConfig().PingInterval
	}
	return &TelemetryBroadcaster{
		clients:  make(map[int]chan types.Telemetry),
		snapshot: snapshot,
		ping:     ping,
		metrics:  m,
		log:      logger.For("Telemetry"),
	}
}

// Subscribe adds a client and returns its event channel. A closed
// broadcaster hands out an already closed channel.
func (tb *TelemetryBroadcaster) Subscribe() (int, <-chan types.Telemetry) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	ch := make(chan types.Telemetry, 4)
	if tb.closed {
		close(ch)
		return -1, ch
	}
	id := tb.nextID
	tb.nextID++
	tb.clients[id] = ch
	tb.metrics.TelemetryClients.Add(1)

	tb.log.Debug("Client #%d subscribed (total clients: %d)", id, len(tb.clients))
	return id, ch
}

// Unsubscribe removes a client and closes its channel.
func (tb *TelemetryBroadcaster) Unsubscribe(id int) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if ch, ok := tb.clients[id]; ok {
		close(ch)
		delete(tb.clients, id)
		tb.metrics.TelemetryClients.Add(-1)
		tb.log.Debug("Client #%d unsubscribed (remaining clients: %d)", id, len(tb.clients))
	}
}

// Publish delivers t to every client. Clients whose buffer is full miss
// this event.
func (tb *TelemetryBroadcaster) Publish(t types.Telemetry) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	for id, ch := range tb.clients {
		select {
		case ch <- t:
		default:
			tb.log.Debug("Client #%d too slow, event dropped", id)
		}
	}
}

// Clients returns the number of subscribers.
func (tb *TelemetryBroadcaster) Clients() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.clients)
}

// Close disconnects every client. Later subscribers are closed at once.
func (tb *TelemetryBroadcaster) Close() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if tb.closed {
		return
	}
	tb.closed = true
	for id, ch := range tb.clients {
		close(ch)
		delete(tb.clients, id)
		tb.metrics.TelemetryClients.Add(-1)
	}
}

// ServeHTTP upgrades the request and streams telemetry as JSON text
// messages until either side goes away.
func (tb *TelemetryBroadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		tb.log.Warn("Upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	defer conn.Close()

	id, events := tb.Subscribe()
	defer tb.Unsubscribe(id)
	tb.log.Info("Telemetry client %s connected", r.RemoteAddr)

	// Reads only detect the peer closing; clients send nothing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if err := tb.write(conn, tb.snapshot()); err != nil {
		return
	}

	ticker := time.NewTicker(tb.ping)
	defer ticker.Stop()

	for {
		select {
		case t, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(telemetryWriteWait))
				return
			}
			if err := tb.write(conn, t); err != nil {
				tb.log.Debug("Telemetry client %s: %v", r.RemoteAddr, err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(telemetryWriteWait)); err != nil {
				tb.log.Debug("Ping to %s failed: %v", r.RemoteAddr, err)
				return
			}
		case <-gone:
			tb.log.Info("Telemetry client %s disconnected", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (tb *TelemetryBroadcaster) write(conn *websocket.Conn, t types.Telemetry) error {
	if err := conn.SetWriteDeadline(time.Now().Add(telemetryWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(t)
}
