package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Hub maintains lesson_id -> set of connections and broadcasts lesson events.
// With Redis, events are published and the subscription delivers them to local clients,
// so every instance (this one included) delivers each event once.
type Hub struct {
	// lessonID -> map[clientID]*Client
	lessons  map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func() // cancel Redis subscription per lesson
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	PublishLessonEvent(ctx context.Context, lessonID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to lesson channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeLesson(lessonID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub. Both Redis arguments may be nil for a single instance.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		lessons:  make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client to a lesson room. Starts the Redis subscription for the lesson on its first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.lessons[c.LessonID] == nil {
		h.lessons[c.LessonID] = make(map[string]*Client)
		if h.redisSub != nil {
			lessonID := c.LessonID
			cancel, err := h.redisSub.SubscribeLesson(lessonID, func(event string, payload []byte) {
				h.Broadcast(lessonID, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[lessonID] = cancel
			} else {
				h.logger.Warn("lesson subscription failed", zap.String("lesson_id", lessonID.String()), zap.Error(err))
			}
		}
	}
	h.lessons[c.LessonID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client joined lesson feed", zap.String("client_id", c.ID), zap.String("lesson_id", c.LessonID.String()))
}

// Unregister removes a client from a lesson room. Cancels the Redis subscription when the last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.lessons[c.LessonID]; ok {
		if _, present := m[c.ID]; present {
			delete(m, c.ID)
			close(c.send)
		}
		if len(m) == 0 {
			delete(h.lessons, c.LessonID)
			if cancel, ok := h.subs[c.LessonID]; ok {
				cancel()
				delete(h.subs, c.LessonID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left lesson feed", zap.String("client_id", c.ID), zap.String("lesson_id", c.LessonID.String()))
}

// Broadcast sends a message to all clients of a lesson on this instance.
func (h *Hub) Broadcast(lessonID uuid.UUID, event string, payload any) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			h.logger.Warn("marshal lesson event failed", zap.String("event", event), zap.Error(err))
			return
		}
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.lessons[lessonID] {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// Notify delivers a committed lesson event to every subscriber of the lesson on every instance.
func (h *Hub) Notify(ctx context.Context, lessonID uuid.UUID, event string, data any) {
	if h.redis == nil {
		h.Broadcast(lessonID, event, data)
		return
	}
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Warn("marshal lesson event failed", zap.String("event", event), zap.Error(err))
		return
	}
	if err := h.redis.PublishLessonEvent(ctx, lessonID, event, payload); err != nil {
		h.logger.Warn("publish lesson event failed, delivering locally",
			zap.String("lesson_id", lessonID.String()), zap.String("event", event), zap.Error(err))
		h.Broadcast(lessonID, event, json.RawMessage(payload))
	}
}

// Watchers returns the number of connected clients following a lesson.
func (h *Hub) Watchers(lessonID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.lessons[lessonID])
}
