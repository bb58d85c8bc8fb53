// Package messenger is a thin Redis pub/sub wrapper used to coordinate
// multiple processes, primarily to broadcast cache reload requests. With
// no Redis configured it degrades to local-only no-ops.
package messenger

import (
	"context"

	"github.com/go-redis/redis/v8"

	"github.com/scrims-network/guildkeeper/pkg/observability"
)

// ChannelReload carries operator-issued "reload all caches" broadcasts
const ChannelReload = "guildkeeper:reload"

// Messenger publishes and subscribes on Redis channels. A nil client is
// valid and turns every operation into a no-op.
type Messenger struct {
	client *redis.Client
	logger *observability.Logger
}

func New(client *redis.Client, logger *observability.Logger) *Messenger {
	return &Messenger{
		client: client,
		logger: logger.WithComponent("messenger"),
	}
}

// Enabled reports whether a Redis client is configured
func (m *Messenger) Enabled() bool { return m.client != nil }

// Publish sends a payload on a channel. No-op without Redis.
func (m *Messenger) Publish(ctx context.Context, channel, payload string) error {
	if m.client == nil {
		return nil
	}
	if err := m.client.Publish(ctx, channel, payload).Err(); err != nil {
		m.logger.WithError(err).WithField("channel", channel).Warn("publish failed")
		return err
	}
	return nil
}

// Subscribe delivers messages on the channel to handler until the returned
// stop function is called or ctx is done. No-op without Redis.
func (m *Messenger) Subscribe(ctx context.Context, channel string, handler func(payload string)) func() {
	if m.client == nil {
		return func() {}
	}

	sub := m.client.Subscribe(ctx, channel)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ch := sub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				m.handle(handler, msg.Payload)
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		_ = sub.Close()
		<-done
	}
}

func (m *Messenger) handle(handler func(string), payload string) {
	defer observability.RecoverPanic(m.logger, "messenger handler")
	handler(payload)
}
