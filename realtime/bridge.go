package realtime

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

// Bridge fans mutation descriptors out across instances through a Redis
// pub/sub channel. REST handlers publish here after a durable write; every
// instance's subscription loop hands received envelopes to its local hub, so
// room members connected anywhere get the broadcast exactly once at most.
type Bridge struct {
	rc      *redis.Client
	channel string
	logger  *log.Logger
}

// NewBridge creates a bridge publishing on the given channel.
func NewBridge(rc *redis.Client, channel string, logger *log.Logger) *Bridge {
	return &Bridge{rc: rc, channel: channel, logger: logger}
}

// Broadcast publishes a mutation to the room's subscribers on every instance,
// excluding the originating connection. Fire-and-forget: a failed publish is
// logged, never surfaced to the mutation's caller.
func (b *Bridge) Broadcast(room, origin string, m domain.Mutation) {
	payload, err := sonic.Marshal(m)
	if err != nil {
		b.logger.Errorf("marshal mutation: %v", err)
		return
	}
	env := Envelope{Room: room, Origin: origin, Payload: payload}
	data, err := sonic.Marshal(env)
	if err != nil {
		b.logger.Errorf("marshal envelope: %v", err)
		return
	}
	if err := b.rc.Publish(context.Background(), b.channel, data).Err(); err != nil {
		b.logger.Errorf("publish mutation: %v", err)
	}
}

// Subscribe listens for envelopes and delivers them to the hub until ctx is
// cancelled, reconnecting when the pub/sub channel closes.
func (b *Bridge) Subscribe(ctx context.Context, hub *Hub) {
	for {
		sub := b.rc.Subscribe(ctx, b.channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var env Envelope
				if err := sonic.UnmarshalString(msg.Payload, &env); err != nil {
					b.logger.Errorf("unable to parse envelope: %v", err)
					continue
				}
				hub.Deliver(env)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		b.logger.Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}
