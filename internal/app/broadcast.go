package app

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Envelope is the frame shape pushed to websocket subscribers.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Broadcaster fans out events to connected websocket clients. Slow clients
// are dropped rather than allowed to stall the hub.
type Broadcaster struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	sent    uint64
}

type wsClient struct {
	conn    *websocket.Conn
	sendCh  chan []byte
	closeCh chan struct{}
	once    sync.Once
}

// NewBroadcaster creates an empty hub.
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Broadcaster{
		logger: logger.Named("broadcast"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect from arbitrary origins
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// HandleWS upgrades an HTTP request and registers the client.
func (b *Broadcaster) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	client := &wsClient{
		conn:    conn,
		sendCh:  make(chan []byte, 64),
		closeCh: make(chan struct{}),
	}

	b.mu.Lock()
	b.clients[client] = struct{}{}
	count := len(b.clients)
	b.mu.Unlock()

	b.logger.Info("ws client connected",
		zap.String("remote", r.RemoteAddr),
		zap.Int("clients", count),
	)

	go b.writeLoop(client)
	go b.readLoop(client)
}

// Broadcast sends one typed event to every connected client.
func (b *Broadcaster) Broadcast(eventType string, data any) {
	payload, err := json.Marshal(Envelope{Type: eventType, Data: data})
	if err != nil {
		b.logger.Warn("broadcast marshal failed",
			zap.String("type", eventType),
			zap.Error(err),
		)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for client := range b.clients {
		select {
		case client.sendCh <- payload:
		default:
			// Client can't keep up
			delete(b.clients, client)
			client.shutdown()
		}
	}
	b.sent++
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// EventsSent returns the number of broadcast events so far.
func (b *Broadcaster) EventsSent() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sent
}

// Close disconnects every client.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for client := range b.clients {
		delete(b.clients, client)
		client.shutdown()
	}
}

func (b *Broadcaster) remove(client *wsClient) {
	b.mu.Lock()
	if _, ok := b.clients[client]; ok {
		delete(b.clients, client)
	}
	b.mu.Unlock()
	client.shutdown()
}

func (b *Broadcaster) writeLoop(client *wsClient) {
	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case payload := <-client.sendCh:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				b.remove(client)
				return
			}
		case <-ping.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				b.remove(client)
				return
			}
		case <-client.closeCh:
			return
		}
	}
}

// readLoop drains inbound frames so pongs and close frames are processed.
func (b *Broadcaster) readLoop(client *wsClient) {
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			b.remove(client)
			return
		}
	}
}

func (c *wsClient) shutdown() {
	c.once.Do(func() {
		close(c.closeCh)
		c.conn.Close()
	})
}
