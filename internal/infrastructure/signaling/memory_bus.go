package signaling

import (
	"context"
	"sync"

	"ringlink/internal/core/domain"
	"ringlink/internal/core/ports"

	"go.uber.org/zap"
)

// MemoryBus is an in-process broadcast bus for single-node deployments and
// tests. Topics are scoped by call id; every message is delivered to all
// open channels on the topic, the sender included.
type MemoryBus struct {
	topics map[domain.CallID]map[*memoryChannel]struct{}
	mu     sync.RWMutex
	logger *zap.SugaredLogger
}

func NewMemoryBus(logger *zap.SugaredLogger) *MemoryBus {
	return &MemoryBus{
		topics: make(map[domain.CallID]map[*memoryChannel]struct{}),
		logger: logger,
	}
}

func (b *MemoryBus) Open(ctx context.Context, callID domain.CallID) (ports.SignalingChannel, error) {
	ch := &memoryChannel{
		bus:    b,
		callID: callID,
	}

	b.mu.Lock()
	subs, ok := b.topics[callID]
	if !ok {
		subs = make(map[*memoryChannel]struct{})
		b.topics[callID] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	return ch, nil
}

func (b *MemoryBus) broadcast(callID domain.CallID, msg domain.SignalMessage) {
	b.mu.RLock()
	subs := make([]*memoryChannel, 0, len(b.topics[callID]))
	for ch := range b.topics[callID] {
		subs = append(subs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range subs {
		ch.deliver(msg)
	}
}

func (b *MemoryBus) remove(ch *memoryChannel) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.topics[ch.callID]
	if !ok {
		return
	}
	delete(subs, ch)
	if len(subs) == 0 {
		delete(b.topics, ch.callID)
	}
}

type memoryChannel struct {
	bus    *MemoryBus
	callID domain.CallID

	mu      sync.Mutex
	handler func(msg domain.SignalMessage)
	closed  bool
}

func (c *memoryChannel) Send(ctx context.Context, msg domain.SignalMessage) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil
	}
	c.bus.broadcast(c.callID, msg)
	return nil
}

func (c *memoryChannel) OnMessage(handler func(msg domain.SignalMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

func (c *memoryChannel) deliver(msg domain.SignalMessage) {
	c.mu.Lock()
	handler := c.handler
	closed := c.closed
	c.mu.Unlock()

	if closed || handler == nil {
		// No handler attached yet; the message is lost. The call protocol
		// tolerates single-shot loss via the ring timeout.
		return
	}
	handler(msg)
}

func (c *memoryChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.bus.remove(c)
	return nil
}
