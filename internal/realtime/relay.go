package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Relay forwards envelopes between nodes so a publish on one node reaches
// connections held by the others. Either transport may be nil.
type Relay struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	nodeID       string
	logger       zerolog.Logger
}

type relayEvent struct {
	Source   string    `json:"source"`
	Envelope Envelope  `json:"envelope"`
	SentAt   time.Time `json:"sent_at"`
}

// NewRelay returns nil when there is nothing to relay through.
func NewRelay(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) *Relay {
	if channelBase == "" || (redisClient == nil && natsConn == nil) {
		return nil
	}

	return &Relay{
		redis:        redisClient,
		redisChannel: channelBase + ":realtime",
		nats:         natsConn,
		natsSubject:  strings.ReplaceAll(channelBase, ":", ".") + ".realtime",
		nodeID:       uuid.NewString(),
		logger:       logger.With().Str("component", "realtime_relay").Logger(),
	}
}

// NodeID identifies this process on the relay.
func (r *Relay) NodeID() string {
	return r.nodeID
}

// Forward publishes envelope to the other nodes.
func (r *Relay) Forward(ctx context.Context, envelope Envelope) error {
	payload, err := json.Marshal(relayEvent{
		Source:   r.nodeID,
		Envelope: envelope,
		SentAt:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	var errs []error
	if r.redis != nil {
		if err := r.redis.Publish(ctx, r.redisChannel, payload).Err(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.nats != nil {
		if err := r.nats.Publish(r.natsSubject, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Start subscribes to the relay transports. The redis subscription is
// confirmed before Start returns; consumption stops when ctx is cancelled.
func (r *Relay) Start(ctx context.Context, deliver func(Envelope)) error {
	if r.redis != nil {
		pubsub := r.redis.Subscribe(ctx, r.redisChannel)
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			return err
		}
		go r.consumeRedis(ctx, pubsub, deliver)
	}

	if r.nats != nil {
		sub, err := r.nats.Subscribe(r.natsSubject, func(msg *nats.Msg) {
			r.handle(msg.Data, deliver)
		})
		if err != nil {
			return err
		}
		go func() {
			<-ctx.Done()
			if err := sub.Drain(); err != nil {
				r.logger.Warn().Err(err).Msg("failed to drain realtime nats subscription")
			}
		}()
	}

	return nil
}

func (r *Relay) consumeRedis(ctx context.Context, pubsub *redis.PubSub, deliver func(Envelope)) {
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return
			}
			r.logger.Error().Err(err).Msg("realtime redis subscription closed")
			return
		}
		r.handle([]byte(msg.Payload), deliver)
	}
}

func (r *Relay) handle(data []byte, deliver func(Envelope)) {
	var event relayEvent
	if err := json.Unmarshal(data, &event); err != nil {
		r.logger.Warn().Err(err).Msg("invalid realtime relay event")
		return
	}
	if event.Source == r.nodeID {
		return
	}
	deliver(event.Envelope)
}
