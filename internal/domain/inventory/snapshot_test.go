package inventory

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockledger/backend/internal/domain/shared"
)

func testKey() StockKey {
	return StockKey{
		ProductID:   uuid.New(),
		WarehouseID: uuid.New(),
		LocationID:  uuid.New(),
	}
}

func TestStockKey_Validate(t *testing.T) {
	t.Run("valid key", func(t *testing.T) {
		assert.NoError(t, testKey().Validate())
	})

	t.Run("missing product", func(t *testing.T) {
		key := testKey()
		key.ProductID = uuid.Nil
		assert.Error(t, key.Validate())
	})

	t.Run("missing warehouse", func(t *testing.T) {
		key := testKey()
		key.WarehouseID = uuid.Nil
		assert.Error(t, key.Validate())
	})

	t.Run("missing location", func(t *testing.T) {
		key := testKey()
		key.LocationID = uuid.Nil
		assert.Error(t, key.Validate())
	})
}

func TestStockKey_String(t *testing.T) {
	a := testKey()
	b := a
	assert.Equal(t, a.String(), b.String())

	b.LotNumber = "LOT-001"
	assert.NotEqual(t, a.String(), b.String())
}

func TestNewInventorySnapshot(t *testing.T) {
	t.Run("creates empty snapshot", func(t *testing.T) {
		key := testKey()
		s, err := NewInventorySnapshot(key)
		require.NoError(t, err)
		assert.Equal(t, key, s.Key())
		assert.True(t, s.Quantity.IsZero())
		assert.True(t, s.ReservedQuantity.IsZero())
		assert.True(t, s.UnitCost.IsZero())
		assert.Equal(t, 1, s.Version)
	})

	t.Run("rejects invalid key", func(t *testing.T) {
		_, err := NewInventorySnapshot(StockKey{})
		assert.Error(t, err)
	})
}

func TestInventorySnapshot_Receive(t *testing.T) {
	t.Run("first receipt sets cost directly", func(t *testing.T) {
		s, _ := NewInventorySnapshot(testKey())
		err := s.Receive(decimal.NewFromInt(100), decimal.NewFromFloat(10.50))
		require.NoError(t, err)

		assert.True(t, s.Quantity.Equal(decimal.NewFromInt(100)))
		assert.True(t, s.UnitCost.Equal(decimal.NewFromFloat(10.50)))
	})

	t.Run("recomputes weighted average cost", func(t *testing.T) {
		s, _ := NewInventorySnapshot(testKey())
		require.NoError(t, s.Receive(decimal.NewFromInt(100), decimal.NewFromInt(10)))
		require.NoError(t, s.Receive(decimal.NewFromInt(50), decimal.NewFromInt(16)))

		// (100*10 + 50*16) / 150 = 1800/150 = 12
		assert.True(t, s.Quantity.Equal(decimal.NewFromInt(150)))
		assert.True(t, s.UnitCost.Equal(decimal.NewFromInt(12)), "got %s", s.UnitCost)
	})

	t.Run("receipt into zero quantity resets cost", func(t *testing.T) {
		s, _ := NewInventorySnapshot(testKey())
		require.NoError(t, s.Receive(decimal.NewFromInt(10), decimal.NewFromInt(5)))
		require.NoError(t, s.Issue(decimal.NewFromInt(10)))
		require.NoError(t, s.Receive(decimal.NewFromInt(10), decimal.NewFromInt(9)))

		assert.True(t, s.UnitCost.Equal(decimal.NewFromInt(9)))
	})

	t.Run("rejects non-positive quantity", func(t *testing.T) {
		s, _ := NewInventorySnapshot(testKey())
		assert.Error(t, s.Receive(decimal.Zero, decimal.NewFromInt(10)))
		assert.Error(t, s.Receive(decimal.NewFromInt(-5), decimal.NewFromInt(10)))
	})

	t.Run("rejects negative cost", func(t *testing.T) {
		s, _ := NewInventorySnapshot(testKey())
		assert.Error(t, s.Receive(decimal.NewFromInt(10), decimal.NewFromInt(-1)))
	})

	t.Run("emits stock received event and bumps version", func(t *testing.T) {
		s, _ := NewInventorySnapshot(testKey())
		v := s.Version
		require.NoError(t, s.Receive(decimal.NewFromInt(5), decimal.NewFromInt(2)))

		events := s.GetDomainEvents()
		require.Len(t, events, 1)
		assert.Equal(t, EventStockReceived, events[0].EventType())
		assert.Equal(t, v+1, s.Version)
	})
}

func TestInventorySnapshot_Issue(t *testing.T) {
	t.Run("decreases quantity keeping average cost", func(t *testing.T) {
		s, _ := NewInventorySnapshot(testKey())
		require.NoError(t, s.Receive(decimal.NewFromInt(100), decimal.NewFromInt(12)))
		require.NoError(t, s.Issue(decimal.NewFromInt(40)))

		assert.True(t, s.Quantity.Equal(decimal.NewFromInt(60)))
		assert.True(t, s.UnitCost.Equal(decimal.NewFromInt(12)))
	})

	t.Run("fails on insufficient stock", func(t *testing.T) {
		s, _ := NewInventorySnapshot(testKey())
		require.NoError(t, s.Receive(decimal.NewFromInt(10), decimal.NewFromInt(1)))

		err := s.Issue(decimal.NewFromInt(11))
		assert.ErrorIs(t, err, shared.ErrInsufficientStock)
		assert.True(t, s.Quantity.Equal(decimal.NewFromInt(10)))
	})

	t.Run("reservations do not block an issue", func(t *testing.T) {
		s, _ := NewInventorySnapshot(testKey())
		require.NoError(t, s.Receive(decimal.NewFromInt(10), decimal.NewFromInt(1)))
		require.NoError(t, s.Reserve(decimal.NewFromInt(8)))

		// Available is 2, but issue checks on-hand
		require.NoError(t, s.Issue(decimal.NewFromInt(5)))
		assert.True(t, s.Quantity.Equal(decimal.NewFromInt(5)))
		// Reserved was clamped to the new on-hand
		assert.True(t, s.ReservedQuantity.Equal(decimal.NewFromInt(5)))
	})

	t.Run("emits reorder alert when dropping to threshold", func(t *testing.T) {
		s, _ := NewInventorySnapshot(testKey())
		require.NoError(t, s.Receive(decimal.NewFromInt(100), decimal.NewFromInt(1)))
		require.NoError(t, s.SetReorderPolicy(decimal.NewFromInt(20), decimal.NewFromInt(50)))
		s.ClearDomainEvents()

		require.NoError(t, s.Issue(decimal.NewFromInt(80)))

		var sawAlert bool
		for _, e := range s.GetDomainEvents() {
			if e.EventType() == EventStockBelowReorderLevel {
				sawAlert = true
			}
		}
		assert.True(t, sawAlert)
	})

	t.Run("no reorder alert when threshold unset", func(t *testing.T) {
		s, _ := NewInventorySnapshot(testKey())
		require.NoError(t, s.Receive(decimal.NewFromInt(10), decimal.NewFromInt(1)))
		s.ClearDomainEvents()

		require.NoError(t, s.Issue(decimal.NewFromInt(10)))
		for _, e := range s.GetDomainEvents() {
			assert.NotEqual(t, EventStockBelowReorderLevel, e.EventType())
		}
	})
}

func TestInventorySnapshot_Reserve(t *testing.T) {
	t.Run("reserve reduces available, not on-hand", func(t *testing.T) {
		s, _ := NewInventorySnapshot(testKey())
		require.NoError(t, s.Receive(decimal.NewFromInt(10), decimal.NewFromInt(1)))
		require.NoError(t, s.Reserve(decimal.NewFromInt(4)))

		assert.True(t, s.Quantity.Equal(decimal.NewFromInt(10)))
		assert.True(t, s.AvailableQuantity().Equal(decimal.NewFromInt(6)))
	})

	t.Run("reserve fails beyond available", func(t *testing.T) {
		s, _ := NewInventorySnapshot(testKey())
		require.NoError(t, s.Receive(decimal.NewFromInt(10), decimal.NewFromInt(1)))
		require.NoError(t, s.Reserve(decimal.NewFromInt(7)))

		err := s.Reserve(decimal.NewFromInt(4))
		assert.ErrorIs(t, err, shared.ErrInsufficientStock)
	})

	t.Run("release returns quantity to available", func(t *testing.T) {
		s, _ := NewInventorySnapshot(testKey())
		require.NoError(t, s.Receive(decimal.NewFromInt(10), decimal.NewFromInt(1)))
		require.NoError(t, s.Reserve(decimal.NewFromInt(6)))
		require.NoError(t, s.ReleaseReservation(decimal.NewFromInt(2)))

		assert.True(t, s.ReservedQuantity.Equal(decimal.NewFromInt(4)))
		assert.True(t, s.AvailableQuantity().Equal(decimal.NewFromInt(6)))
	})

	t.Run("cannot release more than reserved", func(t *testing.T) {
		s, _ := NewInventorySnapshot(testKey())
		require.NoError(t, s.Receive(decimal.NewFromInt(10), decimal.NewFromInt(1)))
		require.NoError(t, s.Reserve(decimal.NewFromInt(3)))

		assert.Error(t, s.ReleaseReservation(decimal.NewFromInt(5)))
	})
}

func TestInventorySnapshot_ReorderAndValue(t *testing.T) {
	s, _ := NewInventorySnapshot(testKey())
	require.NoError(t, s.Receive(decimal.NewFromInt(30), decimal.NewFromFloat(2.5)))

	assert.True(t, s.TotalValue().Equal(decimal.NewFromInt(75)))
	assert.False(t, s.IsBelowReorderLevel())

	require.NoError(t, s.SetReorderPolicy(decimal.NewFromInt(30), decimal.NewFromInt(100)))
	assert.True(t, s.IsBelowReorderLevel())

	assert.Error(t, s.SetReorderPolicy(decimal.NewFromInt(-1), decimal.Zero))
}

func TestInventorySnapshot_SetExpiry(t *testing.T) {
	s, _ := NewInventorySnapshot(testKey())
	mfg := time.Now().AddDate(0, -1, 0)
	exp := time.Now().AddDate(1, 0, 0)

	s.SetExpiry(&mfg, &exp)
	require.NotNil(t, s.ExpirationDate)
	assert.True(t, s.ExpirationDate.Equal(exp))
}
