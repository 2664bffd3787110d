package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stockledger/backend/internal/domain/shared"
)

type recordingHandler struct {
	mu         sync.Mutex
	eventTypes []string
	received   []shared.DomainEvent
	err        error
	panicMsg   string
}

func (h *recordingHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if h.panicMsg != "" {
		panic(h.panicMsg)
	}
	h.mu.Lock()
	h.received = append(h.received, event)
	h.mu.Unlock()
	return h.err
}

func (h *recordingHandler) EventTypes() []string {
	return h.eventTypes
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.received)
}

func newTestEvent(eventType string) shared.DomainEvent {
	e := shared.NewBaseDomainEvent(eventType, "InventorySnapshot", uuid.New())
	return &e
}

func TestInMemoryEventBus_PublishSubscribe(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers to matching handler", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		handler := &recordingHandler{eventTypes: []string{"inventory.stock_received"}}
		bus.Subscribe(handler)

		err := bus.Publish(ctx, newTestEvent("inventory.stock_received"))
		require.NoError(t, err)
		assert.Equal(t, 1, handler.count())
	})

	t.Run("skips non-matching handler", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		handler := &recordingHandler{eventTypes: []string{"inventory.stock_received"}}
		bus.Subscribe(handler)

		err := bus.Publish(ctx, newTestEvent("inventory.stock_issued"))
		require.NoError(t, err)
		assert.Equal(t, 0, handler.count())
	})

	t.Run("wildcard handler receives everything", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		handler := &recordingHandler{}
		bus.Subscribe(handler)

		err := bus.Publish(ctx,
			newTestEvent("inventory.stock_received"),
			newTestEvent("inventory.stock_issued"),
		)
		require.NoError(t, err)
		assert.Equal(t, 2, handler.count())
	})

	t.Run("explicit event types override handler declaration", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		handler := &recordingHandler{eventTypes: []string{"inventory.stock_received"}}
		bus.Subscribe(handler, "inventory.stock_issued")

		require.NoError(t, bus.Publish(ctx, newTestEvent("inventory.stock_received")))
		assert.Equal(t, 0, handler.count())
		require.NoError(t, bus.Publish(ctx, newTestEvent("inventory.stock_issued")))
		assert.Equal(t, 1, handler.count())
	})
}

func TestInMemoryEventBus_FailureIsolation(t *testing.T) {
	ctx := context.Background()

	t.Run("handler error does not fail publish", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		failing := &recordingHandler{
			eventTypes: []string{"inventory.stock_received"},
			err:        errors.New("boom"),
		}
		healthy := &recordingHandler{eventTypes: []string{"inventory.stock_received"}}
		bus.Subscribe(failing)
		bus.Subscribe(healthy)

		err := bus.Publish(ctx, newTestEvent("inventory.stock_received"))
		require.NoError(t, err)
		assert.Equal(t, 1, healthy.count())
	})

	t.Run("handler panic is recovered", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		panicking := &recordingHandler{
			eventTypes: []string{"inventory.stock_received"},
			panicMsg:   "handler exploded",
		}
		bus.Subscribe(panicking)

		assert.NotPanics(t, func() {
			_ = bus.Publish(ctx, newTestEvent("inventory.stock_received"))
		})
	})
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := &recordingHandler{eventTypes: []string{"inventory.stock_received"}}
	bus.Subscribe(handler)

	require.NoError(t, bus.Publish(ctx, newTestEvent("inventory.stock_received")))
	assert.Equal(t, 1, handler.count())

	bus.Unsubscribe(handler)
	require.NoError(t, bus.Publish(ctx, newTestEvent("inventory.stock_received")))
	assert.Equal(t, 1, handler.count())
}

func TestInMemoryEventBus_ConcurrentPublish(t *testing.T) {
	ctx := context.Background()
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := &recordingHandler{eventTypes: []string{"inventory.stock_received"}}
	bus.Subscribe(handler)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = bus.Publish(ctx, newTestEvent("inventory.stock_received"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, handler.count())
}

func TestInMemoryEventBus_Lifecycle(t *testing.T) {
	ctx := context.Background()
	bus := NewInMemoryEventBus(zap.NewNop())

	require.NoError(t, bus.Start(ctx))
	require.NoError(t, bus.Stop(ctx))
}
