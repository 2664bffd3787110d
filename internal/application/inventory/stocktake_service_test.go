package inventory

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockledger/backend/internal/domain/inventory"
)

// seedWarehouse loads three stock keys into one warehouse and returns them
func seedWarehouse(t *testing.T, env *testEnv) (uuid.UUID, []StockKeyRequest) {
	t.Helper()
	warehouseID := uuid.New()
	keys := make([]StockKeyRequest, 3)
	for i, qty := range []int64{100, 50, 20} {
		keys[i] = StockKeyRequest{
			ProductID:   uuid.New(),
			WarehouseID: warehouseID,
			LocationID:  uuid.New(),
		}
		seedStock(t, env, keys[i], qty, 10)
	}
	return warehouseID, keys
}

func countAll(t *testing.T, env *testEnv, st *StocktakeResponse, counts map[uuid.UUID]int64) *StocktakeResponse {
	t.Helper()
	ctx := context.Background()
	resp := st
	for _, d := range st.Details {
		counted, ok := counts[d.ProductID]
		if !ok {
			counted = d.SystemQuantity.IntPart()
		}
		var err error
		resp, err = env.counting.RecordCount(ctx, env.actor, st.ID, RecordCountRequest{
			DetailID:        d.ID,
			CountedQuantity: decimal.NewFromInt(counted),
		})
		require.NoError(t, err)
	}
	return resp
}

func TestStocktakeService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("covers the whole warehouse by default", func(t *testing.T) {
		env := newTestEnv()
		warehouseID, _ := seedWarehouse(t, env)

		st, err := env.counting.Create(ctx, env.actor, CreateStocktakeRequest{
			WarehouseID: warehouseID,
			Description: "annual count",
		})
		require.NoError(t, err)

		assert.Equal(t, inventory.StocktakePending.String(), st.Status)
		assert.Len(t, st.Details, 3)
		assert.True(t, strings.HasPrefix(st.StocktakeNumber, "ST-"))
	})

	t.Run("product scope narrows the details", func(t *testing.T) {
		env := newTestEnv()
		warehouseID, keys := seedWarehouse(t, env)

		st, err := env.counting.Create(ctx, env.actor, CreateStocktakeRequest{
			WarehouseID: warehouseID,
			ProductIDs:  []uuid.UUID{keys[0].ProductID},
		})
		require.NoError(t, err)
		require.Len(t, st.Details, 1)
		assert.Equal(t, keys[0].ProductID, st.Details[0].ProductID)
	})

	t.Run("empty scope is rejected", func(t *testing.T) {
		env := newTestEnv()
		_, err := env.counting.Create(ctx, env.actor, CreateStocktakeRequest{
			WarehouseID: uuid.New(),
		})
		assert.Error(t, err)
	})

	t.Run("unknown acting user is rejected", func(t *testing.T) {
		env := newTestEnv()
		warehouseID, _ := seedWarehouse(t, env)
		env.counting.SetUserLookup(knownUsers{env.actor.UserID})

		_, err := env.counting.Create(ctx, Actor{UserID: uuid.New()}, CreateStocktakeRequest{
			WarehouseID: warehouseID,
		})
		assert.Error(t, err)

		st, err := env.counting.Create(ctx, env.actor, CreateStocktakeRequest{WarehouseID: warehouseID})
		require.NoError(t, err)

		_, err = env.counting.RecordCount(ctx, Actor{UserID: uuid.New()}, st.ID, RecordCountRequest{
			DetailID:        st.Details[0].ID,
			CountedQuantity: decimal.NewFromInt(1),
		})
		assert.Error(t, err)
	})

	t.Run("numbers are sequential within a day", func(t *testing.T) {
		env := newTestEnv()
		warehouseID, _ := seedWarehouse(t, env)

		a, err := env.counting.Create(ctx, env.actor, CreateStocktakeRequest{WarehouseID: warehouseID})
		require.NoError(t, err)
		b, err := env.counting.Create(ctx, env.actor, CreateStocktakeRequest{WarehouseID: warehouseID})
		require.NoError(t, err)
		assert.NotEqual(t, a.StocktakeNumber, b.StocktakeNumber)
	})
}

func TestStocktakeService_ReconcileFlow(t *testing.T) {
	ctx := context.Background()

	t.Run("differences become adjustment movements atomically", func(t *testing.T) {
		env := newTestEnv()
		warehouseID, keys := seedWarehouse(t, env)

		st, err := env.counting.Create(ctx, env.actor, CreateStocktakeRequest{WarehouseID: warehouseID})
		require.NoError(t, err)
		_, err = env.counting.Start(ctx, env.actor, st.ID)
		require.NoError(t, err)

		// keys[0]: 100 -> 95 shortage, keys[1]: 50 -> 53 overage, keys[2] matches
		resp := countAll(t, env, st, map[uuid.UUID]int64{
			keys[0].ProductID: 95,
			keys[1].ProductID: 53,
		})
		resp, err = env.counting.FinishCounting(ctx, env.actor, st.ID)
		require.NoError(t, err)
		assert.Equal(t, inventory.StocktakeCounted.String(), resp.Status)
		assert.Equal(t, 2, resp.DifferenceCount)

		resp, err = env.counting.Reconcile(ctx, env.actor, st.ID)
		require.NoError(t, err)
		assert.Equal(t, inventory.StocktakeReconciled.String(), resp.Status)

		// Snapshots now match the counted quantities
		snap0, err := env.movements.GetSnapshot(ctx, keys[0])
		require.NoError(t, err)
		assert.True(t, snap0.Quantity.Equal(decimal.NewFromInt(95)))
		snap1, err := env.movements.GetSnapshot(ctx, keys[1])
		require.NoError(t, err)
		assert.True(t, snap1.Quantity.Equal(decimal.NewFromInt(53)))

		// Adjustments reference the stocktake number on the ledger:
		// the shortage leaves, the overage comes in
		txs, err := env.ledger.FindByReference(ctx, inventory.ReferenceStocktake, resp.StocktakeNumber)
		require.NoError(t, err)
		require.Len(t, txs, 2)
		byProduct := make(map[uuid.UUID]inventory.MovementType, 2)
		for _, tx := range txs {
			byProduct[tx.ProductID] = tx.Type
		}
		assert.Equal(t, inventory.MovementAdjustmentOut, byProduct[keys[0].ProductID])
		assert.Equal(t, inventory.MovementAdjustmentIn, byProduct[keys[1].ProductID])

		// Every difference detail is linked to its adjustment
		for _, d := range resp.Details {
			if !d.Difference.IsZero() {
				assert.NotNil(t, d.AdjustmentTransactionID)
			}
		}

		resp, err = env.counting.Complete(ctx, env.actor, st.ID)
		require.NoError(t, err)
		assert.Equal(t, inventory.StocktakeCompleted.String(), resp.Status)
		assert.Contains(t, env.publisher.eventTypes(), inventory.EventStocktakeReconciled)
	})

	t.Run("clean count completes without reconciliation", func(t *testing.T) {
		env := newTestEnv()
		warehouseID, _ := seedWarehouse(t, env)

		st, err := env.counting.Create(ctx, env.actor, CreateStocktakeRequest{WarehouseID: warehouseID})
		require.NoError(t, err)
		_, err = env.counting.Start(ctx, env.actor, st.ID)
		require.NoError(t, err)
		countAll(t, env, st, nil)
		_, err = env.counting.FinishCounting(ctx, env.actor, st.ID)
		require.NoError(t, err)

		resp, err := env.counting.Complete(ctx, env.actor, st.ID)
		require.NoError(t, err)
		assert.Equal(t, inventory.StocktakeCompleted.String(), resp.Status)
	})

	t.Run("movement after freeze shows up as difference", func(t *testing.T) {
		env := newTestEnv()
		warehouseID, keys := seedWarehouse(t, env)

		st, err := env.counting.Create(ctx, env.actor, CreateStocktakeRequest{
			WarehouseID: warehouseID,
			ProductIDs:  []uuid.UUID{keys[0].ProductID},
		})
		require.NoError(t, err)

		// Stock moves between freeze and count
		_, err = env.movements.Issue(ctx, env.actor, IssueStockRequest{
			StockKeyRequest: keys[0],
			Quantity:        decimal.NewFromInt(10),
			ReferenceID:     "SO-9",
		})
		require.NoError(t, err)

		_, err = env.counting.Start(ctx, env.actor, st.ID)
		require.NoError(t, err)
		// Counter finds the true shelf quantity of 90
		resp := countAll(t, env, st, map[uuid.UUID]int64{keys[0].ProductID: 90})
		_, err = env.counting.FinishCounting(ctx, env.actor, st.ID)
		require.NoError(t, err)

		// Frozen system quantity was 100, so the count reports a
		// shortage of 10
		require.Len(t, resp.Details, 1)
		assert.True(t, resp.Details[0].Difference.Equal(decimal.NewFromInt(10)))
	})

	t.Run("counting can begin without an explicit start", func(t *testing.T) {
		env := newTestEnv()
		warehouseID, _ := seedWarehouse(t, env)

		st, err := env.counting.Create(ctx, env.actor, CreateStocktakeRequest{WarehouseID: warehouseID})
		require.NoError(t, err)

		resp, err := env.counting.RecordCount(ctx, env.actor, st.ID, RecordCountRequest{
			DetailID:        st.Details[0].ID,
			CountedQuantity: decimal.NewFromInt(99),
		})
		require.NoError(t, err)
		assert.Equal(t, inventory.StocktakeInProgress.String(), resp.Status)
	})

	t.Run("cancel stops the workflow", func(t *testing.T) {
		env := newTestEnv()
		warehouseID, _ := seedWarehouse(t, env)

		st, err := env.counting.Create(ctx, env.actor, CreateStocktakeRequest{WarehouseID: warehouseID})
		require.NoError(t, err)
		resp, err := env.counting.Cancel(ctx, env.actor, st.ID, CancelStocktakeRequest{Reason: "rescheduled"})
		require.NoError(t, err)
		assert.Equal(t, inventory.StocktakeCancelled.String(), resp.Status)

		_, err = env.counting.Start(ctx, env.actor, st.ID)
		assert.Error(t, err)
	})

	t.Run("reconcile requires counted status", func(t *testing.T) {
		env := newTestEnv()
		warehouseID, _ := seedWarehouse(t, env)

		st, err := env.counting.Create(ctx, env.actor, CreateStocktakeRequest{WarehouseID: warehouseID})
		require.NoError(t, err)
		_, err = env.counting.Reconcile(ctx, env.actor, st.ID)
		assert.Error(t, err)
	})
}

func TestStocktakeService_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("rescope rebuilds details and refreezes quantities", func(t *testing.T) {
		env := newTestEnv()
		warehouseID, keys := seedWarehouse(t, env)

		st, err := env.counting.Create(ctx, env.actor, CreateStocktakeRequest{
			WarehouseID: warehouseID,
			Description: "annual count",
		})
		require.NoError(t, err)
		require.Len(t, st.Details, 3)

		// Stock moves after the original freeze
		_, err = env.movements.Issue(ctx, env.actor, IssueStockRequest{
			StockKeyRequest: keys[0],
			Quantity:        decimal.NewFromInt(10),
			ReferenceID:     "SO-12",
		})
		require.NoError(t, err)

		resp, err := env.counting.Update(ctx, env.actor, st.ID, UpdateStocktakeRequest{
			Description: "aisle 4 only",
			ProductIDs:  []uuid.UUID{keys[0].ProductID},
		})
		require.NoError(t, err)

		assert.Equal(t, "aisle 4 only", resp.Description)
		require.Len(t, resp.Details, 1)
		assert.Equal(t, keys[0].ProductID, resp.Details[0].ProductID)
		// Refrozen after the issue of 10
		assert.True(t, resp.Details[0].SystemQuantity.Equal(decimal.NewFromInt(90)))
	})

	t.Run("rejected once counting has started", func(t *testing.T) {
		env := newTestEnv()
		warehouseID, _ := seedWarehouse(t, env)

		st, err := env.counting.Create(ctx, env.actor, CreateStocktakeRequest{WarehouseID: warehouseID})
		require.NoError(t, err)
		_, err = env.counting.Start(ctx, env.actor, st.ID)
		require.NoError(t, err)

		_, err = env.counting.Update(ctx, env.actor, st.ID, UpdateStocktakeRequest{})
		assert.Error(t, err)
	})

	t.Run("empty scope is rejected", func(t *testing.T) {
		env := newTestEnv()
		warehouseID, _ := seedWarehouse(t, env)

		st, err := env.counting.Create(ctx, env.actor, CreateStocktakeRequest{WarehouseID: warehouseID})
		require.NoError(t, err)

		_, err = env.counting.Update(ctx, env.actor, st.ID, UpdateStocktakeRequest{
			ProductIDs: []uuid.UUID{uuid.New()},
		})
		assert.Error(t, err)
	})
}

func TestStocktakeService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("pending stocktake can be deleted", func(t *testing.T) {
		env := newTestEnv()
		warehouseID, _ := seedWarehouse(t, env)

		st, err := env.counting.Create(ctx, env.actor, CreateStocktakeRequest{WarehouseID: warehouseID})
		require.NoError(t, err)

		require.NoError(t, env.counting.Delete(ctx, env.actor, st.ID))
		_, err = env.counting.Get(ctx, st.ID)
		assert.Error(t, err)
	})

	t.Run("cancelled stocktake keeps its record", func(t *testing.T) {
		env := newTestEnv()
		warehouseID, _ := seedWarehouse(t, env)

		st, err := env.counting.Create(ctx, env.actor, CreateStocktakeRequest{WarehouseID: warehouseID})
		require.NoError(t, err)
		_, err = env.counting.Cancel(ctx, env.actor, st.ID, CancelStocktakeRequest{Reason: "duplicate"})
		require.NoError(t, err)

		assert.Error(t, env.counting.Delete(ctx, env.actor, st.ID))
		_, err = env.counting.Get(ctx, st.ID)
		assert.NoError(t, err)
	})

	t.Run("in-progress stocktake cannot be deleted", func(t *testing.T) {
		env := newTestEnv()
		warehouseID, _ := seedWarehouse(t, env)

		st, err := env.counting.Create(ctx, env.actor, CreateStocktakeRequest{WarehouseID: warehouseID})
		require.NoError(t, err)
		_, err = env.counting.Start(ctx, env.actor, st.ID)
		require.NoError(t, err)

		err = env.counting.Delete(ctx, env.actor, st.ID)
		assert.Error(t, err)
		// Still there
		_, err = env.counting.Get(ctx, st.ID)
		assert.NoError(t, err)
	})
}

func TestStocktakeService_Queries(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	warehouseID, _ := seedWarehouse(t, env)

	created, err := env.counting.Create(ctx, env.actor, CreateStocktakeRequest{WarehouseID: warehouseID})
	require.NoError(t, err)

	byNumber, err := env.counting.GetByNumber(ctx, created.StocktakeNumber)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byNumber.ID)

	status := inventory.StocktakePending
	page, err := env.counting.List(ctx, inventory.StocktakeFilter{
		WarehouseID: &warehouseID,
		Status:      &status,
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	// List responses skip details
	assert.Empty(t, page.Items[0].Details)
	assert.Equal(t, 3, page.Items[0].DetailCount)
}
