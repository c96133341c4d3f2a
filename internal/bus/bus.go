// Package bus carries Hermes-style topic/payload records between the
// dialogue manager and its pipeline peers. The manager only needs
// fire-and-forget publish and asynchronous subscription dispatch; delivery
// acknowledgment is never assumed.
package bus

import (
	"sync"

	"github.com/lbartoli/parley/internal/hermes"
)

// Handler receives one inbound record.
type Handler func(topic string, payload []byte)

// Publisher is the outbound half of a bus connection.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Local is an in-process bus used by tests and by the HTTP-only mode when
// no broker is configured. Dispatch is synchronous in topic order per
// publisher, mirroring the per-topic ordering a real broker gives us.
type Local struct {
	mu   sync.RWMutex
	subs []localSub
}

type localSub struct {
	patterns []string
	handler  Handler
}

func NewLocal() *Local {
	return &Local{}
}

// Subscribe registers a handler for MQTT-style topic patterns.
func (l *Local) Subscribe(patterns []string, handler Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs = append(l.subs, localSub{patterns: patterns, handler: handler})
}

func (l *Local) Publish(topic string, payload []byte) error {
	l.mu.RLock()
	subs := make([]localSub, len(l.subs))
	copy(subs, l.subs)
	l.mu.RUnlock()

	for _, sub := range subs {
		for _, pattern := range sub.patterns {
			if hermes.MatchTopic(pattern, topic) {
				sub.handler(topic, payload)
				break
			}
		}
	}
	return nil
}
