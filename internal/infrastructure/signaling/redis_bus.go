package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"ringlink/internal/core/domain"
	"ringlink/internal/core/ports"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus carries call signaling over Redis pub/sub, one channel per call
// id. Delivery is best-effort: messages published before a peer subscribed
// are lost, and no ordering is guaranteed across message kinds.
type RedisBus struct {
	client *redis.Client
	logger *zap.SugaredLogger
}

func NewRedisBus(client *redis.Client, logger *zap.SugaredLogger) *RedisBus {
	return &RedisBus{
		client: client,
		logger: logger,
	}
}

func topicKey(callID domain.CallID) string {
	return "ringlink:call:" + string(callID)
}

func (b *RedisBus) Open(ctx context.Context, callID domain.CallID) (ports.SignalingChannel, error) {
	pubsub := b.client.Subscribe(ctx, topicKey(callID))

	// Wait for the subscription to be confirmed so messages sent right
	// after Open are not silently dropped by this side.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to call topic: %w", err)
	}

	ch := &redisChannel{
		bus:    b,
		callID: callID,
		pubsub: pubsub,
		done:   make(chan struct{}),
	}
	go ch.readLoop()
	return ch, nil
}

type redisChannel struct {
	bus    *RedisBus
	callID domain.CallID
	pubsub *redis.PubSub

	mu      sync.Mutex
	handler func(msg domain.SignalMessage)
	closed  bool
	done    chan struct{}
}

func (c *redisChannel) Send(ctx context.Context, msg domain.SignalMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal signal message: %w", err)
	}

	if err := c.bus.client.Publish(ctx, topicKey(c.callID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish signal message: %w", err)
	}

	c.bus.logger.Debugw("published signal",
		"call_id", c.callID,
		"kind", msg.Kind,
		"sender_id", msg.SenderID,
	)
	return nil
}

func (c *redisChannel) OnMessage(handler func(msg domain.SignalMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

func (c *redisChannel) readLoop() {
	ch := c.pubsub.Channel()
	for {
		select {
		case <-c.done:
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}

			var msg domain.SignalMessage
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				c.bus.logger.Warnw("failed to unmarshal signal message",
					"call_id", c.callID,
					"error", err,
				)
				continue
			}

			c.mu.Lock()
			handler := c.handler
			c.mu.Unlock()
			if handler != nil {
				handler(msg)
			}
		}
	}
}

func (c *redisChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	return c.pubsub.Close()
}
