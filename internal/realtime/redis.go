package realtime

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "realtime:"

// RedisBridge publishes through Redis so every instance's Hub sees every payload.
type RedisBridge struct {
	rdb *redis.Client
	hub *Hub
	log *zap.Logger
}

func NewRedisBridge(rdb *redis.Client, hub *Hub, log *zap.Logger) *RedisBridge {
	return &RedisBridge{rdb: rdb, hub: hub, log: log}
}

// Publish sends payload to all instances, including this one.
func (b *RedisBridge) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.rdb.Publish(ctx, channelPrefix+topic, payload).Err()
}

// Run relays Redis messages into the local hub until ctx is done.
func (b *RedisBridge) Run(ctx context.Context) error {
	ps := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return err
	}
	b.log.Info("realtime redis bridge subscribed")

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			topic := strings.TrimPrefix(msg.Channel, channelPrefix)
			if err := b.hub.Publish(ctx, topic, []byte(msg.Payload)); err != nil {
				b.log.Warn("realtime relay failed", zap.String("topic", topic), zap.Error(err))
			}
		}
	}
}
