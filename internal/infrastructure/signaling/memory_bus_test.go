package signaling

import (
	"context"
	"sync"
	"testing"
	"time"

	"ringlink/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestMemoryBus_BroadcastIncludesSender(t *testing.T) {
	bus := NewMemoryBus(zap.NewNop().Sugar())
	ctx := context.Background()

	a, err := bus.Open(ctx, "call-1")
	assert.NoError(t, err)
	b, err := bus.Open(ctx, "call-1")
	assert.NoError(t, err)
	defer a.Close()
	defer b.Close()

	var mu sync.Mutex
	var gotA, gotB []domain.SignalMessage
	a.OnMessage(func(msg domain.SignalMessage) {
		mu.Lock()
		gotA = append(gotA, msg)
		mu.Unlock()
	})
	b.OnMessage(func(msg domain.SignalMessage) {
		mu.Lock()
		gotB = append(gotB, msg)
		mu.Unlock()
	})

	err = a.Send(ctx, domain.SignalMessage{Kind: domain.SignalCallEnded, SenderID: "user-a"})
	assert.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	// broadcast semantics: both subscribers receive the message, the
	// sender included; filtering is the consumer's job
	assert.Len(t, gotA, 1)
	assert.Len(t, gotB, 1)
	assert.Equal(t, domain.UserID("user-a"), gotB[0].SenderID)
}

func TestMemoryBus_TopicsAreIsolatedByCallID(t *testing.T) {
	bus := NewMemoryBus(zap.NewNop().Sugar())
	ctx := context.Background()

	a, _ := bus.Open(ctx, "call-1")
	other, _ := bus.Open(ctx, "call-2")
	defer a.Close()
	defer other.Close()

	received := make(chan domain.SignalMessage, 1)
	other.OnMessage(func(msg domain.SignalMessage) {
		received <- msg
	})

	_ = a.Send(ctx, domain.SignalMessage{Kind: domain.SignalOffer, SenderID: "user-a"})

	select {
	case <-received:
		t.Fatal("message leaked across call topics")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBus_MessageBeforeHandlerIsLost(t *testing.T) {
	bus := NewMemoryBus(zap.NewNop().Sugar())
	ctx := context.Background()

	a, _ := bus.Open(ctx, "call-1")
	b, _ := bus.Open(ctx, "call-1")
	defer a.Close()
	defer b.Close()

	// b has no handler yet; delivery is best-effort and the message is lost
	_ = a.Send(ctx, domain.SignalMessage{Kind: domain.SignalOffer, SenderID: "user-a"})

	received := make(chan domain.SignalMessage, 1)
	b.OnMessage(func(msg domain.SignalMessage) {
		received <- msg
	})

	select {
	case <-received:
		t.Fatal("expected pre-subscribe message to be dropped")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBus_CloseUnsubscribes(t *testing.T) {
	bus := NewMemoryBus(zap.NewNop().Sugar())
	ctx := context.Background()

	a, _ := bus.Open(ctx, "call-1")
	b, _ := bus.Open(ctx, "call-1")

	received := make(chan domain.SignalMessage, 1)
	b.OnMessage(func(msg domain.SignalMessage) {
		received <- msg
	})
	assert.NoError(t, b.Close())
	assert.NoError(t, b.Close()) // idempotent

	_ = a.Send(ctx, domain.SignalMessage{Kind: domain.SignalCallEnded, SenderID: "user-a"})

	select {
	case <-received:
		t.Fatal("closed channel must not receive messages")
	case <-time.After(50 * time.Millisecond):
	}
}
