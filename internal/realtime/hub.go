// Package realtime fans out analytics activity to connected dashboards.
// Delivery is best-effort: a subscriber that cannot keep up loses messages
// rather than slowing ingestion down.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is one broadcast payload. Timestamp is assigned by the hub at
// publish time, never taken from the client.
type Message struct {
	Type      string          `json:"type"`
	ProjectID uint            `json:"project_id"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Message types published by the collector.
const (
	MessagePageView     = "pageview"
	MessageEvent        = "event"
	MessageHeatmapBatch = "heatmap_batch"
	MessageLiveCount    = "live_count"
)

// Subscriber is one dashboard connection. Receive from C until it is
// closed; the hub closes it on Unsubscribe.
type Subscriber struct {
	ID        string
	ProjectID uint
	C         chan Message
}

// Hub routes messages to subscribers grouped by project.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[uint]map[string]*Subscriber

	bufferSize int
	logger     *slog.Logger

	onDropped func() // optional metrics hook
	onSent    func()
}

// NewHub creates a hub whose subscriber channels buffer bufferSize messages.
func NewHub(logger *slog.Logger, bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Hub{
		subscribers: make(map[uint]map[string]*Subscriber),
		bufferSize:  bufferSize,
		logger:      logger,
	}
}

// SetMetricsHooks registers counters called on every delivered and dropped
// message. Must be called before the hub is in use.
func (h *Hub) SetMetricsHooks(onSent, onDropped func()) {
	h.onSent = onSent
	h.onDropped = onDropped
}

// Subscribe registers a new dashboard connection for a project.
func (h *Hub) Subscribe(projectID uint) *Subscriber {
	sub := &Subscriber{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		C:         make(chan Message, h.bufferSize),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	group, exists := h.subscribers[projectID]
	if !exists {
		group = make(map[string]*Subscriber)
		h.subscribers[projectID] = group
	}
	group[sub.ID] = sub

	h.logger.Debug("subscriber joined",
		slog.String("subscriber_id", sub.ID),
		slog.Uint64("project_id", uint64(projectID)))
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Removing an
// already-removed subscriber is a no-op; the channel closes once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	group, exists := h.subscribers[sub.ProjectID]
	if !exists {
		return
	}
	if _, present := group[sub.ID]; !present {
		return
	}
	delete(group, sub.ID)
	if len(group) == 0 {
		delete(h.subscribers, sub.ProjectID)
	}
	close(sub.C)

	h.logger.Debug("subscriber left", slog.String("subscriber_id", sub.ID))
}

// Publish stamps the message with the server clock and fans it out to every
// subscriber of its project. Full subscribers are skipped, never waited on.
func (h *Hub) Publish(msg Message) {
	msg.Timestamp = time.Now().UTC()

	h.mu.RLock()
	defer h.mu.RUnlock()

	group, exists := h.subscribers[msg.ProjectID]
	if !exists {
		return
	}
	for _, sub := range group {
		select {
		case sub.C <- msg:
			if h.onSent != nil {
				h.onSent()
			}
		default:
			if h.onDropped != nil {
				h.onDropped()
			}
		}
	}
}

// PublishJSON marshals payload and publishes it under the given type.
// Marshal failures are logged and dropped; broadcast never blocks ingestion.
func (h *Hub) PublishJSON(projectID uint, messageType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal broadcast payload",
			slog.Any("error", err),
			slog.String("type", messageType))
		return
	}
	h.Publish(Message{Type: messageType, ProjectID: projectID, Payload: raw})
}

// SubscriberCount reports active subscribers for a project.
func (h *Hub) SubscriberCount(projectID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[projectID])
}
