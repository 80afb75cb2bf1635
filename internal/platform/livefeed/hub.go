// Package livefeed pushes domain events to connected WebSocket clients.
// Clients subscribe to topics; every published event is delivered to the
// subscribers of each topic it matches.
//
// Topics derived from an event:
//
//	<event type>            e.g. "prediction.created"
//	patient:<id>            when the payload carries patientId
//	encounter:<id>          when the payload carries encounterId
//	*                       every event
package livefeed

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/medrec/medrec/internal/platform/events"
)

const (
	TopicAll    = "*"
	sendBufSize = 64
)

// ClientMessage is what a client sends to change its subscriptions. Topic
// and Topics may both be set; they are merged.
type ClientMessage struct {
	Action string   `json:"action"`
	Topic  string   `json:"topic,omitempty"`
	Topics []string `json:"topics,omitempty"`
}

func (m ClientMessage) topics() []string {
	if m.Topic == "" {
		return m.Topics
	}
	return append([]string{m.Topic}, m.Topics...)
}

type Client struct {
	ID   string
	Send chan []byte

	topics map[string]struct{}
}

func NewClient(id string, topics ...string) *Client {
	c := &Client{ID: id, Send: make(chan []byte, sendBufSize), topics: make(map[string]struct{})}
	for _, t := range topics {
		c.topics[t] = struct{}{}
	}
	return c
}

// Hub tracks clients by topic. It implements events.Publisher so it can sit
// next to the broker publishers.
type Hub struct {
	mu      sync.RWMutex
	byTopic map[string]map[*Client]struct{}
	all     map[*Client]struct{}
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		byTopic: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[c] = struct{}{}
	for t := range c.topics {
		h.addLocked(c, t)
	}
}

// Unregister drops the client and closes its Send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[c]; !ok {
		return
	}
	for t := range c.topics {
		h.removeLocked(c, t)
	}
	delete(h.all, c)
	close(c.Send)
}

func (h *Hub) Subscribe(c *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, t := range topics {
		if t == "" {
			continue
		}
		c.topics[t] = struct{}{}
		if _, ok := h.all[c]; ok {
			h.addLocked(c, t)
		}
	}
}

func (h *Hub) Unsubscribe(c *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, t := range topics {
		delete(c.topics, t)
		h.removeLocked(c, t)
	}
}

func (h *Hub) ProcessMessage(c *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(c, msg.topics())
	case "unsubscribe":
		h.Unsubscribe(c, msg.topics())
	}
}

func (h *Hub) addLocked(c *Client, topic string) {
	subs := h.byTopic[topic]
	if subs == nil {
		subs = make(map[*Client]struct{})
		h.byTopic[topic] = subs
	}
	subs[c] = struct{}{}
}

func (h *Hub) removeLocked(c *Client, topic string) {
	if subs, ok := h.byTopic[topic]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.byTopic, topic)
		}
	}
}

// Publish delivers evt once to every client subscribed to any of its topics.
// Slow clients whose buffer is full miss the event.
func (h *Hub) Publish(_ context.Context, evt events.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[*Client]struct{})
	for _, topic := range Topics(evt) {
		for c := range h.byTopic[topic] {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			select {
			case c.Send <- data:
			default:
				h.logger.Warn().Str("client_id", c.ID).Str("type", evt.Type).Msg("live feed client too slow, event dropped")
			}
		}
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.all {
		close(c.Send)
	}
	h.all = make(map[*Client]struct{})
	h.byTopic = make(map[string]map[*Client]struct{})
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byTopic[topic])
}

// Topics lists the topics an event is delivered to.
func Topics(evt events.Event) []string {
	topics := []string{TopicAll, evt.Type}

	var ids struct {
		PatientID   string `json:"patientId"`
		EncounterID string `json:"encounterId"`
	}
	if len(evt.Data) > 0 && json.Unmarshal(evt.Data, &ids) == nil {
		if ids.PatientID != "" {
			topics = append(topics, "patient:"+ids.PatientID)
		}
		if ids.EncounterID != "" {
			topics = append(topics, "encounter:"+ids.EncounterID)
		}
	}
	return topics
}
