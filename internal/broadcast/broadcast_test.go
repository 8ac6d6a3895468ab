package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type sink struct {
	topics []string
	err    error
}

func (s *sink) Publish(ctx context.Context, topic string, payload any) error {
	s.topics = append(s.topics, topic)
	return s.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFanoutJoinsErrors(t *testing.T) {
	ok := &sink{}
	bad := &sink{err: errors.New("down")}
	err := Fanout{ok, nil, bad}.Publish(context.Background(), "priceTick", []int{1})
	if err == nil || !strings.Contains(err.Error(), "down") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(ok.topics) != 1 || len(bad.topics) != 1 {
		t.Fatalf("every sink should be called: ok=%v bad=%v", ok.topics, bad.topics)
	}
}

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope("marketEvent", map[string]string{"type": "CRASH"})
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if env.Event != "marketEvent" || string(env.Data) != `{"type":"CRASH"}` || env.SentAt.IsZero() {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if _, err := NewEnvelope("bad", make(chan int)); err == nil {
		t.Fatalf("expected encode error")
	}
}

func dialHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for h.Clients() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, h.Clients())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubSnapshotThenBroadcast(t *testing.T) {
	h := NewHub(quietLogger())
	h.OnConnect = func(ctx context.Context) []Envelope {
		env, _ := NewEnvelope("leaderboard", []map[string]any{{"username": "alice", "rank": 1}})
		return []Envelope{env}
	}
	conn := dialHub(t, h)

	first := readEnvelope(t, conn)
	if first.Event != "leaderboard" {
		t.Fatalf("expected leaderboard snapshot first, got %s", first.Event)
	}

	waitForClients(t, h, 1)
	if err := h.Publish(context.Background(), "priceTick", []map[string]any{{"symbol": "AAPL", "price": 150.25}}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	got := readEnvelope(t, conn)
	if got.Event != "priceTick" {
		t.Fatalf("expected priceTick, got %s", got.Event)
	}
	var quotes []map[string]any
	if err := json.Unmarshal(got.Data, &quotes); err != nil || quotes[0]["symbol"] != "AAPL" {
		t.Fatalf("unexpected data %s err=%v", got.Data, err)
	}
}

func TestHubPublishWithoutClients(t *testing.T) {
	h := NewHub(quietLogger())
	if err := h.Publish(context.Background(), "priceTick", []int{}); err != nil {
		t.Fatalf("publishing to nobody must succeed: %v", err)
	}
}

func TestHubForgetsDisconnectedClients(t *testing.T) {
	h := NewHub(quietLogger())
	conn := dialHub(t, h)
	waitForClients(t, h, 1)
	_ = conn.Close()

	deadline := time.Now().Add(3 * time.Second)
	for h.Clients() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client still registered after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Needs a reachable Redis named by STOCKSIM_TEST_REDIS_ADDR.
func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("STOCKSIM_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("STOCKSIM_TEST_REDIS_ADDR not set")
	}
	client := NewRedisClient(addr, "", 0)
	t.Cleanup(func() { _ = client.Close() })

	h := NewHub(quietLogger())
	conn := dialHub(t, h)
	waitForClients(t, h, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	relay := NewRedisRelay(client, "stocksim:test", h, quietLogger())
	go func() { _ = relay.Run(ctx) }()
	time.Sleep(200 * time.Millisecond)

	pub := NewRedisPublisher(client, "stocksim:test")
	if err := pub.Publish(ctx, "marketEvent", map[string]string{"type": "SURGE"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := readEnvelope(t, conn); got.Event != "marketEvent" {
		t.Fatalf("expected relayed marketEvent, got %s", got.Event)
	}
}
