package bus

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	dialTimeout      = 10 * time.Second
	writeTimeout     = 10 * time.Second
	readLimit        = 4 << 20
	reconnectInitial = time.Second
	reconnectMax     = 30 * time.Second
)

// frame is the wire format: one topic/payload record per websocket text
// message. Payload is base64 in JSON, which keeps binary play-bytes legal.
type frame struct {
	Topic   string `json:"topic"`
	Payload []byte `json:"payload"`
}

type subscribeFrame struct {
	Type   string   `json:"type"`
	Topics []string `json:"topics"`
}

// Client is a websocket bus connection. Publishes are queued and dropped if
// the queue saturates; inbound frames are dispatched to the handler on the
// read goroutine. Lost connections reconnect with capped backoff and
// resubscribe.
type Client struct {
	url     string
	topics  []string
	handler Handler

	outbound chan frame
	done     chan struct{}
	once     sync.Once

	mu   sync.Mutex
	conn *websocket.Conn
}

// Dial connects to the broker, subscribes, and starts the read/write pumps.
func Dial(ctx context.Context, url string, topics []string, handler Handler) (*Client, error) {
	c := &Client{
		url:      url,
		topics:   topics,
		handler:  handler,
		outbound: make(chan frame, 256),
		done:     make(chan struct{}),
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.setConn(conn)
	go c.run(conn)
	return c, nil
}

// Publish queues a record for delivery. It never blocks; if the outbound
// queue is full the record is dropped, matching the bus's fire-and-forget
// contract.
func (c *Client) Publish(topic string, payload []byte) error {
	select {
	case c.outbound <- frame{Topic: topic, Payload: payload}:
	default:
		log.Printf("bus: outbound queue full, dropping publish to %s", topic)
	}
	return nil
}

func (c *Client) Close() error {
	c.once.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.mu.Unlock()
	})
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.url, nil)
	if err != nil {
		return nil, err
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(subscribeFrame{Type: "subscribe", Topics: c.topics}); err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetReadLimit(readLimit)
	return conn, nil
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) run(conn *websocket.Conn) {
	backoff := reconnectInitial
	for {
		stop := make(chan struct{})
		go c.writePump(conn, stop)
		c.readLoop(conn)
		close(stop)
		conn.Close()

		select {
		case <-c.done:
			return
		default:
		}

		for {
			log.Printf("bus: connection lost, reconnecting in %s", backoff)
			select {
			case <-c.done:
				return
			case <-time.After(backoff):
			}

			next, err := c.dial(context.Background())
			if err != nil {
				log.Printf("bus: reconnect failed: %v", err)
				if backoff *= 2; backoff > reconnectMax {
					backoff = reconnectMax
				}
				continue
			}
			conn = next
			c.setConn(conn)
			backoff = reconnectInitial
			break
		}
	}
}

func (c *Client) writePump(conn *websocket.Conn, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case f := <-c.outbound:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(f); err != nil {
				// The read loop will notice the dead connection and
				// trigger the reconnect; this frame is lost.
				return
			}
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Printf("bus: invalid frame: %v", err)
			continue
		}
		c.handler(f.Topic, f.Payload)
	}
}
