package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appinv "github.com/stockledger/backend/internal/application/inventory"
	"github.com/stockledger/backend/internal/domain/inventory"
	"github.com/stockledger/backend/internal/domain/shared"
	"github.com/stockledger/backend/internal/infrastructure/config"
)

var errLedgerDown = errors.New("ledger write refused")

func openTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(&config.DatabaseConfig{
		Driver:       "sqlite",
		SQLitePath:   filepath.Join(t.TempDir(), "stockledger.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// faultyLedgerScope wraps a real transaction scope and refuses ledger
// writes once the fail predicate fires, so a multi-write operation
// dies partway through and the rollback can be observed.
type faultyLedgerScope struct {
	inner appinv.TransactionScope
	fail  func(*inventory.InventoryTransaction) bool
}

func (s *faultyLedgerScope) Execute(ctx context.Context, fn func(appinv.TransactionalRepositories) error) error {
	return s.inner.Execute(ctx, func(repos appinv.TransactionalRepositories) error {
		return fn(&faultyRepositories{TransactionalRepositories: repos, fail: s.fail})
	})
}

type faultyRepositories struct {
	appinv.TransactionalRepositories
	fail func(*inventory.InventoryTransaction) bool
}

func (r *faultyRepositories) Transactions() inventory.TransactionRepository {
	return &faultyTransactionRepo{
		TransactionRepository: r.TransactionalRepositories.Transactions(),
		fail:                  r.fail,
	}
}

type faultyTransactionRepo struct {
	inventory.TransactionRepository
	fail func(*inventory.InventoryTransaction) bool
}

func (r *faultyTransactionRepo) Save(ctx context.Context, tx *inventory.InventoryTransaction) error {
	if r.fail(tx) {
		return errLedgerDown
	}
	return r.TransactionRepository.Save(ctx, tx)
}

func TestGormTransactionScope_RollsBackFailedTransfer(t *testing.T) {
	ctx := context.Background()
	db := openTestDatabase(t)
	scope := NewGormTransactionScope(db.DB)
	keys := appinv.NewKeyedMutex()
	actor := appinv.Actor{UserID: uuid.New(), Name: "casey"}

	source := appinv.StockKeyRequest{
		ProductID:   uuid.New(),
		WarehouseID: uuid.New(),
		LocationID:  uuid.New(),
	}
	movements := appinv.NewMovementService(scope, keys, zap.NewNop())
	_, err := movements.Receive(ctx, actor, appinv.ReceiveStockRequest{
		StockKeyRequest: source,
		Quantity:        decimal.NewFromInt(100),
		UnitCost:        decimal.NewFromInt(10),
		ReferenceID:     "PO-1",
	})
	require.NoError(t, err)

	// The outbound leg commits its writes, then the inbound leg's
	// ledger insert dies. The whole transfer must unwind.
	failing := &faultyLedgerScope{inner: scope, fail: func(tx *inventory.InventoryTransaction) bool {
		return tx.Type == inventory.MovementTransferIn
	}}
	transfers := appinv.NewTransferService(failing, keys, zap.NewNop())
	req := appinv.TransferStockRequest{
		ProductID:       source.ProductID,
		FromWarehouseID: source.WarehouseID,
		FromLocationID:  source.LocationID,
		ToWarehouseID:   source.WarehouseID,
		ToLocationID:    uuid.New(),
		Quantity:        decimal.NewFromInt(40),
	}
	_, err = transfers.Transfer(ctx, actor, req)
	require.ErrorIs(t, err, errLedgerDown)

	snapshots := NewGormSnapshotRepository(db.DB)
	src, err := snapshots.FindByKey(ctx, source.ToKey())
	require.NoError(t, err)
	assert.True(t, src.Quantity.Equal(decimal.NewFromInt(100)),
		"source must keep its full quantity, got %s", src.Quantity)

	_, err = snapshots.FindByKey(ctx, req.DestinationKey())
	assert.ErrorIs(t, err, shared.ErrNotFound, "destination snapshot must not survive the rollback")

	// Only the seeding receipt is on the ledger
	ledger := NewGormTransactionRepository(db.DB)
	txs, err := ledger.FindBySnapshot(ctx, src.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, inventory.MovementGoodsReceipt, txs[0].Type)

	sum, err := ledger.SumSignedQuantity(ctx, src.ID)
	require.NoError(t, err)
	assert.True(t, sum.Equal(src.Quantity), "ledger and snapshot must still agree")
}

func TestGormTransactionScope_RollsBackFailedReconcile(t *testing.T) {
	ctx := context.Background()
	db := openTestDatabase(t)
	scope := NewGormTransactionScope(db.DB)
	keys := appinv.NewKeyedMutex()
	actor := appinv.Actor{UserID: uuid.New(), Name: "casey"}

	warehouseID := uuid.New()
	keyA := appinv.StockKeyRequest{ProductID: uuid.New(), WarehouseID: warehouseID, LocationID: uuid.New()}
	keyB := appinv.StockKeyRequest{ProductID: uuid.New(), WarehouseID: warehouseID, LocationID: uuid.New()}
	movements := appinv.NewMovementService(scope, keys, zap.NewNop())
	for _, seed := range []struct {
		key appinv.StockKeyRequest
		qty int64
	}{{keyA, 100}, {keyB, 50}} {
		_, err := movements.Receive(ctx, actor, appinv.ReceiveStockRequest{
			StockKeyRequest: seed.key,
			Quantity:        decimal.NewFromInt(seed.qty),
			UnitCost:        decimal.NewFromInt(10),
			ReferenceID:     "PO-1",
		})
		require.NoError(t, err)
	}

	// First adjustment write goes through, the second one dies
	var ledgerWrites int
	failing := &faultyLedgerScope{inner: scope, fail: func(*inventory.InventoryTransaction) bool {
		ledgerWrites++
		return ledgerWrites > 1
	}}
	counting := appinv.NewStocktakeService(failing, keys, zap.NewNop())

	st, err := counting.Create(ctx, actor, appinv.CreateStocktakeRequest{WarehouseID: warehouseID})
	require.NoError(t, err)
	require.Len(t, st.Details, 2)
	for _, d := range st.Details {
		counted := decimal.NewFromInt(95) // shortage
		if d.ProductID == keyB.ProductID {
			counted = decimal.NewFromInt(53) // overage
		}
		_, err = counting.RecordCount(ctx, actor, st.ID, appinv.RecordCountRequest{
			DetailID:        d.ID,
			CountedQuantity: counted,
		})
		require.NoError(t, err)
	}
	_, err = counting.FinishCounting(ctx, actor, st.ID)
	require.NoError(t, err)

	_, err = counting.Reconcile(ctx, actor, st.ID)
	require.ErrorIs(t, err, errLedgerDown)
	assert.Equal(t, 2, ledgerWrites, "one adjustment must have been written before the failure")

	// The stocktake is still frozen and unlinked, ready to reconcile again
	reloaded, err := counting.Get(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.StocktakeCounted.String(), reloaded.Status)
	for _, d := range reloaded.Details {
		assert.Nil(t, d.AdjustmentTransactionID)
	}

	// Neither snapshot moved
	snapshots := NewGormSnapshotRepository(db.DB)
	snapA, err := snapshots.FindByKey(ctx, keyA.ToKey())
	require.NoError(t, err)
	assert.True(t, snapA.Quantity.Equal(decimal.NewFromInt(100)))
	snapB, err := snapshots.FindByKey(ctx, keyB.ToKey())
	require.NoError(t, err)
	assert.True(t, snapB.Quantity.Equal(decimal.NewFromInt(50)))

	// No adjustment survived on the ledger
	ledger := NewGormTransactionRepository(db.DB)
	txs, err := ledger.FindByReference(ctx, inventory.ReferenceStocktake, reloaded.StocktakeNumber)
	require.NoError(t, err)
	assert.Empty(t, txs)
}
