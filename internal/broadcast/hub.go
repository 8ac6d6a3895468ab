package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	clientBuffer = 256
	pingEvery    = 45 * time.Second
	readTimeout  = 90 * time.Second
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(*http.Request) bool { return true },
	EnableCompression: true,
}

type client struct {
	id   string
	conn *websocket.Conn
	out  chan []byte
	done chan struct{}
}

// Hub fans envelopes out to connected socket clients. A client whose buffer
// is full misses messages rather than stalling the publisher.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	log     *slog.Logger

	// OnConnect returns messages sent to a client right after it joins.
	OnConnect func(ctx context.Context) []Envelope
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{clients: make(map[*client]struct{}), log: logger}
}

func (h *Hub) Publish(ctx context.Context, topic string, payload any) error {
	env, err := NewEnvelope(topic, payload)
	if err != nil {
		return err
	}
	return h.Forward(env)
}

// Forward sends an already built envelope, as received from a relay.
func (h *Hub) Forward(env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.out <- raw:
		default:
			h.log.Warn("socket client lagging, message dropped", "client_id", c.id, "event", env.Event)
		}
	}
	return nil
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams envelopes until the peer leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("socket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	cl := &client{id: uuid.NewString(), conn: conn, out: make(chan []byte, clientBuffer), done: make(chan struct{})}
	if h.OnConnect != nil {
		for _, env := range h.OnConnect(r.Context()) {
			raw, err := json.Marshal(env)
			if err != nil {
				continue
			}
			select {
			case cl.out <- raw:
			default:
			}
		}
	}
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
	h.log.Info("socket client connected", "client_id", cl.id, "remote", r.RemoteAddr)

	go h.writeLoop(cl)

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	close(cl.done)
	h.mu.Lock()
	delete(h.clients, cl)
	h.mu.Unlock()
	h.log.Info("socket client disconnected", "client_id", cl.id)
}

func (h *Hub) writeLoop(cl *client) {
	ping := time.NewTicker(pingEvery)
	defer ping.Stop()
	for {
		select {
		case raw := <-cl.out:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cl.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				_ = cl.conn.Close()
				return
			}
		case <-ping.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = cl.conn.Close()
				return
			}
		case <-cl.done:
			return
		}
	}
}
