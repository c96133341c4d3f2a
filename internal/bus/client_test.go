package bus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type testBroker struct {
	srv *httptest.Server

	mu         sync.Mutex
	subscribed []string
	received   []frame

	connCh chan *websocket.Conn
}

func newTestBroker(t *testing.T) *testBroker {
	t.Helper()
	b := &testBroker{connCh: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{}

	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		var sub subscribeFrame
		if err := conn.ReadJSON(&sub); err != nil {
			conn.Close()
			return
		}
		b.mu.Lock()
		b.subscribed = sub.Topics
		b.mu.Unlock()
		b.connCh <- conn

		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			b.mu.Lock()
			b.received = append(b.received, f)
			b.mu.Unlock()
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *testBroker) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http")
}

func (b *testBroker) waitConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-b.connCh:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatalf("broker never saw a subscribed connection")
		return nil
	}
}

func (b *testBroker) topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.subscribed))
	copy(out, b.subscribed)
	return out
}

func (b *testBroker) frames() []frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]frame, len(b.received))
	copy(out, b.received)
	return out
}

func TestClientSubscribesOnDial(t *testing.T) {
	broker := newTestBroker(t)

	c, err := Dial(context.Background(), broker.url(), []string{"hermes/intent/#", "hermes/tts/sayFinished"}, func(string, []byte) {})
	if err != nil {
		t.Fatalf("Dial error = %v", err)
	}
	defer c.Close()
	broker.waitConn(t)

	topics := broker.topics()
	if len(topics) != 2 || topics[0] != "hermes/intent/#" || topics[1] != "hermes/tts/sayFinished" {
		t.Fatalf("subscribed topics = %v", topics)
	}
}

func TestClientPublish(t *testing.T) {
	broker := newTestBroker(t)

	c, err := Dial(context.Background(), broker.url(), nil, func(string, []byte) {})
	if err != nil {
		t.Fatalf("Dial error = %v", err)
	}
	defer c.Close()
	broker.waitConn(t)

	if err := c.Publish("hermes/tts/say", []byte(`{"text":"hello"}`)); err != nil {
		t.Fatalf("Publish error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		frames := broker.frames()
		if len(frames) == 1 {
			if frames[0].Topic != "hermes/tts/say" || string(frames[0].Payload) != `{"text":"hello"}` {
				t.Fatalf("unexpected frame: %+v", frames[0])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("broker never received the published frame")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestClientDispatchesInbound(t *testing.T) {
	broker := newTestBroker(t)

	type record struct {
		topic   string
		payload string
	}
	recordCh := make(chan record, 1)

	c, err := Dial(context.Background(), broker.url(), []string{"hermes/intent/#"}, func(topic string, payload []byte) {
		recordCh <- record{topic: topic, payload: string(payload)}
	})
	if err != nil {
		t.Fatalf("Dial error = %v", err)
	}
	defer c.Close()
	conn := broker.waitConn(t)

	if err := conn.WriteJSON(frame{Topic: "hermes/intent/Light.On", Payload: []byte(`{"sessionId":"s1"}`)}); err != nil {
		t.Fatalf("broker write error = %v", err)
	}

	select {
	case got := <-recordCh:
		if got.topic != "hermes/intent/Light.On" || got.payload != `{"sessionId":"s1"}` {
			t.Fatalf("unexpected record: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("handler never invoked")
	}
}

func TestClientReconnectsAndResubscribes(t *testing.T) {
	broker := newTestBroker(t)

	c, err := Dial(context.Background(), broker.url(), []string{"hermes/intent/#"}, func(string, []byte) {})
	if err != nil {
		t.Fatalf("Dial error = %v", err)
	}
	defer c.Close()

	first := broker.waitConn(t)
	first.Close()

	second := broker.waitConn(t)
	defer second.Close()
	if topics := broker.topics(); len(topics) != 1 || topics[0] != "hermes/intent/#" {
		t.Fatalf("resubscribe topics = %v", topics)
	}
}

func TestClientDialFailure(t *testing.T) {
	if _, err := Dial(context.Background(), "ws://127.0.0.1:1/nope", nil, func(string, []byte) {}); err == nil {
		t.Fatalf("expected dial error")
	}
}
