package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event types published on the outbound channel
const (
	TypeBedOccupancy      = "bed.occupancy"
	TypeEquipmentAlert    = "equipment.alert"
	TypeSessionDischarged = "session.discharged"
)

// Event is the envelope of every published message
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// BedOccupancyPayload reports a bed claimed or released
type BedOccupancyPayload struct {
	SessionID uint   `json:"session_id"`
	SlotID    uint   `json:"slot_id"`
	BedNumber int    `json:"bed_number"`
	Date      string `json:"session_date"`
	Action    string `json:"action"` // claimed, released
}

// SessionDischargedPayload reports a session reaching the discharged state
type SessionDischargedPayload struct {
	SessionID uint   `json:"session_id"`
	PatientID uint   `json:"patient_id"`
	Outcome   string `json:"outcome"`
}

// EquipmentAlertPayload reports a reuse counter entering an alert band
type EquipmentAlertPayload struct {
	PatientID     uint   `json:"patient_id"`
	SessionID     uint   `json:"session_id"`
	Item          string `json:"item"`
	Status        string `json:"status"`
	Count         int    `json:"count"`
	RemainingUses int    `json:"remaining_uses"`
	Message       string `json:"message"`
}

// Publisher delivers events to interested collaborators. Delivery is best
// effort; implementations log failures instead of returning them.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload interface{})
}

// NewEvent wraps payload in an envelope with a fresh id
func NewEvent(eventType string, payload interface{}) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// RedisPublisher publishes JSON events over redis pub/sub on "<prefix>.<type>"
type RedisPublisher struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

func NewRedisPublisher(client *redis.Client, prefix string, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix, logger: logger}
}

// Channel returns the channel name for an event type
func (p *RedisPublisher) Channel(eventType string) string {
	if p.prefix == "" {
		return eventType
	}
	return p.prefix + "." + eventType
}

func (p *RedisPublisher) Publish(ctx context.Context, eventType string, payload interface{}) {
	ev := NewEvent(eventType, payload)
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("failed to marshal event", zap.String("type", eventType), zap.Error(err))
		return
	}
	if err := p.client.Publish(ctx, p.Channel(eventType), data).Err(); err != nil {
		p.logger.Warn("failed to publish event",
			zap.String("type", eventType),
			zap.String("event_id", ev.ID),
			zap.Error(err),
		)
		return
	}
	p.logger.Debug("event published", zap.String("type", eventType), zap.String("event_id", ev.ID))
}

// NopPublisher drops every event; used when redis is not configured
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, interface{}) {}
