package realtime

import (
	"context"
	"encoding/json"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"deleonpos/backend/internal/domain"
)

const relayChannelPrefix = "deleonpos:events:"

type relayEnvelope struct {
	Origin string       `json:"origin"`
	Event  domain.Event `json:"event"`
}

// RedisRelay shares events between server instances over redis pub/sub. Events
// published here reach the local hub of every other instance; the origin
// instance delivers to its own hub directly.
type RedisRelay struct {
	client     *redis.Client
	local      Publisher
	instanceID string
}

func NewRedisRelay(client *redis.Client, local Publisher, instanceID string) *RedisRelay {
	return &RedisRelay{client: client, local: local, instanceID: instanceID}
}

func (r *RedisRelay) Publish(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(relayEnvelope{Origin: r.instanceID, Event: event})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, relayChannelPrefix+event.TenantID, payload).Err()
}

// Run forwards relayed events to the local publisher until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.PSubscribe(ctx, relayChannelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver(ctx, msg.Channel, msg.Payload)
		}
	}
}

func (r *RedisRelay) deliver(ctx context.Context, channel string, payload string) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		log.Warn().Err(err).Str("channel", channel).Msg("discarding malformed relayed event")
		return
	}
	if env.Origin == r.instanceID {
		return
	}
	if env.Event.TenantID == "" {
		env.Event.TenantID = strings.TrimPrefix(channel, relayChannelPrefix)
	}
	if err := r.local.Publish(ctx, env.Event); err != nil {
		log.Warn().Err(err).Str("event", env.Event.Type).Msg("local delivery of relayed event failed")
	}
}
