package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockledger/backend/internal/domain/shared"
)

// SnapshotFilter narrows snapshot list queries
type SnapshotFilter struct {
	shared.Filter
	ProductID         *uuid.UUID
	WarehouseID       *uuid.UUID
	LocationID        *uuid.UUID
	LotNumber         *string
	BelowReorderLevel bool
	ExpiringBefore    *time.Time
}

// TransactionFilter narrows ledger queries
type TransactionFilter struct {
	shared.Filter
	SnapshotID    *uuid.UUID
	ProductID     *uuid.UUID
	WarehouseID   *uuid.UUID
	Type          *MovementType
	ReferenceType *ReferenceType
	ReferenceID   *string
	DateFrom      *time.Time
	DateTo        *time.Time
}

// StocktakeFilter narrows stocktake list queries
type StocktakeFilter struct {
	shared.Filter
	WarehouseID *uuid.UUID
	Status      *StocktakeStatus
}

// WarehouseValuation is one row of the valuation report
type WarehouseValuation struct {
	WarehouseID   uuid.UUID       `json:"warehouse_id"`
	ProductCount  int64           `json:"product_count"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	TotalValue    decimal.Decimal `json:"total_value"`
}

// SnapshotRepository persists inventory snapshots
type SnapshotRepository interface {
	Save(ctx context.Context, snapshot *InventorySnapshot) error
	// Update persists changes with an optimistic lock on Version and
	// returns ErrConcurrencyConflict when the row was modified underneath.
	Update(ctx context.Context, snapshot *InventorySnapshot) error
	FindByID(ctx context.Context, id uuid.UUID) (*InventorySnapshot, error)
	FindByKey(ctx context.Context, key StockKey) (*InventorySnapshot, error)
	FindByWarehouse(ctx context.Context, warehouseID uuid.UUID) ([]InventorySnapshot, error)
	List(ctx context.Context, filter SnapshotFilter) (shared.Paginated[InventorySnapshot], error)
	FindBelowReorderLevel(ctx context.Context, warehouseID *uuid.UUID) ([]InventorySnapshot, error)
	ValuationByWarehouse(ctx context.Context, warehouseID *uuid.UUID) ([]WarehouseValuation, error)
}

// CostLayerRepository persists FIFO cost layers
type CostLayerRepository interface {
	Save(ctx context.Context, layer *CostLayer) error
	Update(ctx context.Context, layer *CostLayer) error
	FindByID(ctx context.Context, id uuid.UUID) (*CostLayer, error)
	// FindByKey returns all layers for a key including exhausted ones,
	// ordered by receipt date then creation date.
	FindByKey(ctx context.Context, key StockKey) ([]CostLayer, error)
	// FindConsumableByKey returns only layers with remaining quantity,
	// in FIFO order.
	FindConsumableByKey(ctx context.Context, key StockKey) ([]CostLayer, error)
}

// TransactionRepository persists the append-only movement ledger.
// There is deliberately no Update or Delete; corrections are new rows.
type TransactionRepository interface {
	Save(ctx context.Context, tx *InventoryTransaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*InventoryTransaction, error)
	FindBySnapshot(ctx context.Context, snapshotID uuid.UUID) ([]InventoryTransaction, error)
	FindByReference(ctx context.Context, refType ReferenceType, refID string) ([]InventoryTransaction, error)
	List(ctx context.Context, filter TransactionFilter) (shared.Paginated[InventoryTransaction], error)
	// SumSignedQuantity recomputes on-hand from the ledger for one key,
	// used by the reconciliation check against the snapshot.
	SumSignedQuantity(ctx context.Context, snapshotID uuid.UUID) (decimal.Decimal, error)
}

// StocktakeRepository persists stocktake requests and their details
type StocktakeRepository interface {
	Save(ctx context.Context, stocktake *StocktakeRequest) error
	Update(ctx context.Context, stocktake *StocktakeRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*StocktakeRequest, error)
	FindByNumber(ctx context.Context, stocktakeNumber string) (*StocktakeRequest, error)
	List(ctx context.Context, filter StocktakeFilter) (shared.Paginated[StocktakeRequest], error)
	// Delete removes a stocktake and its details. The status guard
	// lives in the application layer; the repository deletes
	// unconditionally.
	Delete(ctx context.Context, id uuid.UUID) error
	// NextSequence returns the next number in the per-prefix counter,
	// used to build stocktake numbers like ST-20260829-0001.
	NextSequence(ctx context.Context, prefix string) (int64, error)
}
