package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/observability"
)

// Event names delivered over client sockets.
const (
	EventMessageNew      = "message:new"
	EventMessageUpdate   = "message:update"
	EventReactionUpdate  = "reaction:update"
	EventNotificationNew = "notification:new"
	EventSessionReady    = "session:ready"
	EventRoomJoined      = "room:joined"
	EventRoomLeft        = "room:left"
	EventError           = "error"
	EventResync          = "resync"
	EventPong            = "pong"
)

// Envelope is the frame written to a client socket.
type Envelope struct {
	Event   string          `json:"event"`
	Room    RoomKey         `json:"room,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	SentAt  time.Time       `json:"sent_at"`
}

// NewEnvelope marshals payload into an envelope addressed to room.
func NewEnvelope(room RoomKey, event string, payload interface{}, sentAt time.Time) (Envelope, error) {
	envelope := Envelope{Event: event, Room: room, SentAt: sentAt}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		envelope.Payload = raw
	}
	return envelope, nil
}

func resyncEnvelope(at time.Time) Envelope {
	return Envelope{Event: EventResync, SentAt: at}
}

// Publisher fans events out to the connections joined to a room.
type Publisher interface {
	Publish(ctx context.Context, room RoomKey, event string, payload interface{}) error
}

// Bus is the process-wide room multicaster.
type Bus struct {
	registry *Registry
	relay    *Relay
	logger   zerolog.Logger
	now      func() time.Time
}

// NewBus builds a multicaster over registry. relay may be nil for a single node.
func NewBus(registry *Registry, relay *Relay, logger zerolog.Logger) *Bus {
	return &Bus{
		registry: registry,
		relay:    relay,
		logger:   logger.With().Str("component", "realtime_bus").Logger(),
		now:      time.Now,
	}
}

// Start attaches the bus to the cluster relay so envelopes published on other
// nodes reach local connections.
func (b *Bus) Start(ctx context.Context) error {
	if b.relay == nil {
		return nil
	}
	return b.relay.Start(ctx, func(envelope Envelope) {
		b.Deliver(envelope)
	})
}

// Publish delivers payload to every connection joined to room. Delivery is
// best effort; only a payload that cannot be encoded is reported.
func (b *Bus) Publish(ctx context.Context, room RoomKey, event string, payload interface{}) error {
	envelope, err := NewEnvelope(room, event, payload, b.now().UTC())
	if err != nil {
		return err
	}

	delivered := b.Deliver(envelope)
	observability.RealtimeEventsPublished().WithLabelValues(event).Inc()
	b.logger.Debug().Str("room", room.String()).Str("event", event).Int("delivered", delivered).Msg("event published")

	if b.relay != nil {
		if err := b.relay.Forward(ctx, envelope); err != nil {
			b.logger.Warn().Err(err).Str("room", room.String()).Str("event", event).Msg("failed to relay event")
		}
	}

	return nil
}

// Deliver enqueues envelope on a snapshot of the room's local connections and
// returns how many accepted it. A connection with a full queue loses this
// envelope only.
func (b *Bus) Deliver(envelope Envelope) int {
	targets := b.registry.Snapshot(envelope.Room)
	delivered := 0
	for _, conn := range targets {
		if conn.Enqueue(envelope) {
			delivered++
			continue
		}
		observability.RealtimeDeliveriesDropped().WithLabelValues(envelope.Event).Inc()
		b.logger.Warn().
			Str("room", envelope.Room.String()).
			Str("event", envelope.Event).
			Str("connection_id", conn.ID()).
			Msg("dropping event for slow connection")
	}
	return delivered
}

// Send writes an envelope straight to one connection, bypassing rooms.
func (b *Bus) Send(conn *Connection, event string, payload interface{}) error {
	envelope, err := NewEnvelope("", event, payload, b.now().UTC())
	if err != nil {
		return err
	}
	if !conn.Enqueue(envelope) {
		observability.RealtimeDeliveriesDropped().WithLabelValues(event).Inc()
	}
	return nil
}
