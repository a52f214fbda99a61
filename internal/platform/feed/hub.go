package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// subscriptionBuffer is the per-subscription channel capacity. A consumer
// that falls further behind gets a coalesced refresh notice instead of the
// notices it missed.
const subscriptionBuffer = 64

// subscription is an in-process channel subscriber for a single topic.
type subscription struct {
	topic string
	ch    chan Notice
}

// ClientMessage represents an inbound message from a WebSocket client.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Client represents a single WebSocket connection.
type Client struct {
	ID     string
	Topics []string
	Send   chan []byte
}

// Hub fans notices out to topic subscribers. It serves two kinds of
// consumers: in-process channel subscriptions and WebSocket clients. All
// operations are thread-safe via sync.RWMutex.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[*subscription]struct{} // topic -> channel subscribers
	clients map[string]map[*Client]struct{}       // topic -> websocket clients
	all     map[*Client]struct{}                  // all connected websocket clients
	logger  zerolog.Logger
}

// NewHub creates a Hub ready to accept subscribers.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		subs:    make(map[string]map[*subscription]struct{}),
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Subscribe opens an in-process subscription to a topic. The returned cancel
// function releases the subscription; it is safe to call more than once.
// Notices already in the channel buffer may still be received after cancel.
func (h *Hub) Subscribe(topic string) (<-chan Notice, func()) {
	sub := &subscription{
		topic: topic,
		ch:    make(chan Notice, subscriptionBuffer),
	}

	h.mu.Lock()
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[*subscription]struct{})
	}
	h.subs[topic][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if subscribers, ok := h.subs[topic]; ok {
				delete(subscribers, sub)
				if len(subscribers) == 0 {
					delete(h.subs, topic)
				}
			}
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers a notice to every subscriber of its topic. Publish never
// blocks on a slow consumer: when a subscription buffer is full the oldest
// queued notice is dropped and a refresh notice takes its place, so the
// consumer always learns that it must re-fetch.
func (h *Hub) Publish(_ context.Context, notice Notice) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[notice.Topic] {
		select {
		case sub.ch <- notice:
		default:
			h.overflow(sub, notice)
		}
	}

	h.broadcastClients(notice)
	return nil
}

// overflow handles a full subscription buffer by discarding the oldest
// queued notice and enqueueing a coalesced refresh in its place.
func (h *Hub) overflow(sub *subscription, notice Notice) {
	select {
	case <-sub.ch:
	default:
	}
	refresh := Notice{
		Topic:  sub.topic,
		Entity: notice.Entity,
		Action: ActionRefresh,
		At:     time.Now().UTC(),
	}
	select {
	case sub.ch <- refresh:
	default:
	}
	h.logger.Warn().Str("topic", sub.topic).Msg("feed subscriber behind, coalesced to refresh")
}

// broadcastClients serializes the notice once and fans it out to WebSocket
// clients of the topic. A client with a full send buffer is skipped.
func (h *Hub) broadcastClients(notice Notice) {
	clients, ok := h.clients[notice.Topic]
	if !ok {
		return
	}

	data, err := json.Marshal(notice)
	if err != nil {
		h.logger.Error().Err(err).Msg("marshal feed notice")
		return
	}

	for client := range clients {
		select {
		case client.Send <- data:
		default:
			// Client buffer full; skip to avoid blocking.
		}
	}
}

// Register adds a WebSocket client to the hub and subscribes it to its
// initial topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}

	for _, topic := range client.Topics {
		if h.clients[topic] == nil {
			h.clients[topic] = make(map[*Client]struct{})
		}
		h.clients[topic][client] = struct{}{}
	}
}

// Unregister removes a WebSocket client from the hub and all topic
// subscriptions, and closes the client's Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}

	for _, topic := range client.Topics {
		if subscribers, ok := h.clients[topic]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, topic)
			}
		}
	}

	delete(h.all, client)
	close(client.Send)
}

// SubscribeClient dynamically adds topics to an already-registered client.
func (h *Hub) SubscribeClient(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, topic := range topics {
		if h.clients[topic] == nil {
			h.clients[topic] = make(map[*Client]struct{})
		}
		h.clients[topic][client] = struct{}{}
	}
	client.Topics = append(client.Topics, topics...)
}

// UnsubscribeClient dynamically removes topics from an already-registered
// client.
func (h *Hub) UnsubscribeClient(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	removeSet := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		removeSet[t] = struct{}{}
	}

	for _, topic := range topics {
		if subscribers, ok := h.clients[topic]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, topic)
			}
		}
	}

	remaining := make([]string, 0, len(client.Topics))
	for _, t := range client.Topics {
		if _, rm := removeSet[t]; !rm {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

// ProcessMessage handles an inbound ClientMessage, dispatching to
// SubscribeClient or UnsubscribeClient as appropriate.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.SubscribeClient(client, msg.Topics)
	case "unsubscribe":
		h.UnsubscribeClient(client, msg.Topics)
	}
}

// ClientCount returns the total number of connected WebSocket clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of WebSocket clients subscribed to a topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}
