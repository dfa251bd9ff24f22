// Package realtime fans notification payloads out to connected websocket clients.
package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aldoetobex/legal-bid-backend/pkg/models"
)

// UserTopic is the topic a single user's connections subscribe to.
func UserTopic(id uuid.UUID) string { return "user:" + id.String() }

// RoleTopic is the topic every connection of a role subscribes to.
func RoleTopic(role models.Role) string { return "role:" + string(role) }

// Hub is an in-process topic fan-out. Slow subscribers drop messages rather than
// blocking publishers.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
	log  *zap.Logger
	buf  int
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{}), log: log, buf: 16}
}

// Subscription receives payloads published to any of its topics until Close.
type Subscription struct {
	C      <-chan []byte
	ch     chan []byte
	topics []string
	hub    *Hub
	once   sync.Once
}

// Subscribe registers a new subscription on topics.
func (h *Hub) Subscribe(topics ...string) *Subscription {
	ch := make(chan []byte, h.buf)
	s := &Subscription{C: ch, ch: ch, topics: topics, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range topics {
		if h.subs[t] == nil {
			h.subs[t] = make(map[*Subscription]struct{})
		}
		h.subs[t][s] = struct{}{}
	}
	return s
}

// Close unregisters the subscription and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		for _, t := range s.topics {
			delete(h.subs[t], s)
			if len(h.subs[t]) == 0 {
				delete(h.subs, t)
			}
		}
		close(s.ch)
		h.mu.Unlock()
	})
}

// Publish delivers payload to local subscribers of topic. Having no subscribers
// is not an error; the notification stays in the inbox.
func (h *Hub) Publish(ctx context.Context, topic string, payload []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[topic] {
		select {
		case s.ch <- payload:
		case <-ctx.Done():
			return ctx.Err()
		default:
			h.log.Warn("realtime subscriber is slow, dropping message", zap.String("topic", topic))
		}
	}
	return nil
}

// Subscribers reports how many subscriptions listen on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}
