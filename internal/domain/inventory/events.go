package inventory

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockledger/backend/internal/domain/shared"
)

// Event type constants
const (
	EventStockReceived          = "inventory.stock_received"
	EventStockIssued            = "inventory.stock_issued"
	EventStockReserved          = "inventory.stock_reserved"
	EventReservationReleased    = "inventory.reservation_released"
	EventStockBelowReorderLevel = "inventory.stock_below_reorder_level"
	EventStockAdjusted          = "inventory.stock_adjusted"
	EventStockTransferred       = "inventory.stock_transferred"
	EventStocktakeStarted       = "inventory.stocktake_started"
	EventStocktakeCounted       = "inventory.stocktake_counted"
	EventStocktakeReconciled    = "inventory.stocktake_reconciled"
	EventStocktakeCompleted     = "inventory.stocktake_completed"
	EventStocktakeCancelled     = "inventory.stocktake_cancelled"
)

const aggregateSnapshot = "InventorySnapshot"
const aggregateStocktake = "StocktakeRequest"

// StockReceivedEvent fires when stock is received into a snapshot
type StockReceivedEvent struct {
	shared.BaseDomainEvent
	ProductID   uuid.UUID       `json:"product_id"`
	WarehouseID uuid.UUID       `json:"warehouse_id"`
	LocationID  uuid.UUID       `json:"location_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	NewQuantity decimal.Decimal `json:"new_quantity"`
	NewUnitCost decimal.Decimal `json:"new_unit_cost"`
}

// NewStockReceivedEvent creates a stock received event
func NewStockReceivedEvent(s *InventorySnapshot, quantity, unitCost decimal.Decimal) *StockReceivedEvent {
	return &StockReceivedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventStockReceived, aggregateSnapshot, s.ID),
		ProductID:       s.ProductID,
		WarehouseID:     s.WarehouseID,
		LocationID:      s.LocationID,
		Quantity:        quantity,
		UnitCost:        unitCost,
		NewQuantity:     s.Quantity,
		NewUnitCost:     s.UnitCost,
	}
}

// StockIssuedEvent fires when stock is issued from a snapshot
type StockIssuedEvent struct {
	shared.BaseDomainEvent
	ProductID   uuid.UUID       `json:"product_id"`
	WarehouseID uuid.UUID       `json:"warehouse_id"`
	LocationID  uuid.UUID       `json:"location_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	NewQuantity decimal.Decimal `json:"new_quantity"`
}

// NewStockIssuedEvent creates a stock issued event
func NewStockIssuedEvent(s *InventorySnapshot, quantity decimal.Decimal) *StockIssuedEvent {
	return &StockIssuedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventStockIssued, aggregateSnapshot, s.ID),
		ProductID:       s.ProductID,
		WarehouseID:     s.WarehouseID,
		LocationID:      s.LocationID,
		Quantity:        quantity,
		NewQuantity:     s.Quantity,
	}
}

// StockReservedEvent fires when stock is held for pending demand
type StockReservedEvent struct {
	shared.BaseDomainEvent
	ProductID         uuid.UUID       `json:"product_id"`
	WarehouseID       uuid.UUID       `json:"warehouse_id"`
	Quantity          decimal.Decimal `json:"quantity"`
	ReservedQuantity  decimal.Decimal `json:"reserved_quantity"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
}

// NewStockReservedEvent creates a stock reserved event
func NewStockReservedEvent(s *InventorySnapshot, quantity decimal.Decimal) *StockReservedEvent {
	return &StockReservedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventStockReserved, aggregateSnapshot, s.ID),
		ProductID:         s.ProductID,
		WarehouseID:       s.WarehouseID,
		Quantity:          quantity,
		ReservedQuantity:  s.ReservedQuantity,
		AvailableQuantity: s.AvailableQuantity(),
	}
}

// ReservationReleasedEvent fires when a hold is released back to available
type ReservationReleasedEvent struct {
	shared.BaseDomainEvent
	ProductID         uuid.UUID       `json:"product_id"`
	WarehouseID       uuid.UUID       `json:"warehouse_id"`
	Quantity          decimal.Decimal `json:"quantity"`
	ReservedQuantity  decimal.Decimal `json:"reserved_quantity"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
}

// NewReservationReleasedEvent creates a reservation released event
func NewReservationReleasedEvent(s *InventorySnapshot, quantity decimal.Decimal) *ReservationReleasedEvent {
	return &ReservationReleasedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventReservationReleased, aggregateSnapshot, s.ID),
		ProductID:         s.ProductID,
		WarehouseID:       s.WarehouseID,
		Quantity:          quantity,
		ReservedQuantity:  s.ReservedQuantity,
		AvailableQuantity: s.AvailableQuantity(),
	}
}

// StockBelowReorderLevelEvent fires when an issue drops on-hand to or
// below the configured reorder threshold.
type StockBelowReorderLevelEvent struct {
	shared.BaseDomainEvent
	ProductID       uuid.UUID       `json:"product_id"`
	WarehouseID     uuid.UUID       `json:"warehouse_id"`
	LocationID      uuid.UUID       `json:"location_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	ReorderLevel    decimal.Decimal `json:"reorder_level"`
	ReorderQuantity decimal.Decimal `json:"reorder_quantity"`
}

// NewStockBelowReorderLevelEvent creates a reorder alert event
func NewStockBelowReorderLevelEvent(s *InventorySnapshot) *StockBelowReorderLevelEvent {
	return &StockBelowReorderLevelEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventStockBelowReorderLevel, aggregateSnapshot, s.ID),
		ProductID:       s.ProductID,
		WarehouseID:     s.WarehouseID,
		LocationID:      s.LocationID,
		Quantity:        s.Quantity,
		ReorderLevel:    s.ReorderLevel,
		ReorderQuantity: s.ReorderQuantity,
	}
}

// StockAdjustedEvent fires for ADJUSTMENT_IN / ADJUSTMENT_OUT movements
type StockAdjustedEvent struct {
	shared.BaseDomainEvent
	ProductID   uuid.UUID       `json:"product_id"`
	WarehouseID uuid.UUID       `json:"warehouse_id"`
	Type        MovementType    `json:"movement_type"`
	Quantity    decimal.Decimal `json:"quantity"`
	NewQuantity decimal.Decimal `json:"new_quantity"`
	Reason      string          `json:"reason"`
}

// NewStockAdjustedEvent creates a stock adjusted event
func NewStockAdjustedEvent(s *InventorySnapshot, movementType MovementType, quantity decimal.Decimal, reason string) *StockAdjustedEvent {
	return &StockAdjustedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventStockAdjusted, aggregateSnapshot, s.ID),
		ProductID:       s.ProductID,
		WarehouseID:     s.WarehouseID,
		Type:            movementType,
		Quantity:        quantity,
		NewQuantity:     s.Quantity,
		Reason:          reason,
	}
}

// StockTransferredEvent fires once per completed transfer, carrying
// both legs. The aggregate is the destination snapshot.
type StockTransferredEvent struct {
	shared.BaseDomainEvent
	ProductID       uuid.UUID       `json:"product_id"`
	FromWarehouseID uuid.UUID       `json:"from_warehouse_id"`
	FromLocationID  uuid.UUID       `json:"from_location_id"`
	ToWarehouseID   uuid.UUID       `json:"to_warehouse_id"`
	ToLocationID    uuid.UUID       `json:"to_location_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
}

// NewStockTransferredEvent creates a stock transferred event
func NewStockTransferredEvent(dest *InventorySnapshot, source StockKey, quantity, unitCost decimal.Decimal) *StockTransferredEvent {
	return &StockTransferredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventStockTransferred, aggregateSnapshot, dest.ID),
		ProductID:       dest.ProductID,
		FromWarehouseID: source.WarehouseID,
		FromLocationID:  source.LocationID,
		ToWarehouseID:   dest.WarehouseID,
		ToLocationID:    dest.LocationID,
		Quantity:        quantity,
		UnitCost:        unitCost,
	}
}

// StocktakeStartedEvent fires when counting begins
type StocktakeStartedEvent struct {
	shared.BaseDomainEvent
	StocktakeNumber string    `json:"stocktake_number"`
	WarehouseID     uuid.UUID `json:"warehouse_id"`
	DetailCount     int       `json:"detail_count"`
}

// NewStocktakeStartedEvent creates a stocktake started event
func NewStocktakeStartedEvent(st *StocktakeRequest) *StocktakeStartedEvent {
	return &StocktakeStartedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventStocktakeStarted, aggregateStocktake, st.ID),
		StocktakeNumber: st.StocktakeNumber,
		WarehouseID:     st.WarehouseID,
		DetailCount:     len(st.Details),
	}
}

// StocktakeCountedEvent fires when all details have recorded counts
type StocktakeCountedEvent struct {
	shared.BaseDomainEvent
	StocktakeNumber string `json:"stocktake_number"`
	DifferenceCount int    `json:"difference_count"`
}

// NewStocktakeCountedEvent creates a stocktake counted event
func NewStocktakeCountedEvent(st *StocktakeRequest) *StocktakeCountedEvent {
	return &StocktakeCountedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventStocktakeCounted, aggregateStocktake, st.ID),
		StocktakeNumber: st.StocktakeNumber,
		DifferenceCount: len(st.DifferenceDetails()),
	}
}

// StocktakeReconciledEvent fires after adjustments have been posted
type StocktakeReconciledEvent struct {
	shared.BaseDomainEvent
	StocktakeNumber string          `json:"stocktake_number"`
	AdjustmentCount int             `json:"adjustment_count"`
	NetQuantity     decimal.Decimal `json:"net_quantity"`
}

// NewStocktakeReconciledEvent creates a stocktake reconciled event
func NewStocktakeReconciledEvent(st *StocktakeRequest, adjustmentCount int, netQuantity decimal.Decimal) *StocktakeReconciledEvent {
	return &StocktakeReconciledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventStocktakeReconciled, aggregateStocktake, st.ID),
		StocktakeNumber: st.StocktakeNumber,
		AdjustmentCount: adjustmentCount,
		NetQuantity:     netQuantity,
	}
}

// StocktakeCompletedEvent fires when a stocktake is closed
type StocktakeCompletedEvent struct {
	shared.BaseDomainEvent
	StocktakeNumber string `json:"stocktake_number"`
}

// NewStocktakeCompletedEvent creates a stocktake completed event
func NewStocktakeCompletedEvent(st *StocktakeRequest) *StocktakeCompletedEvent {
	return &StocktakeCompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventStocktakeCompleted, aggregateStocktake, st.ID),
		StocktakeNumber: st.StocktakeNumber,
	}
}

// StocktakeCancelledEvent fires when a stocktake is abandoned
type StocktakeCancelledEvent struct {
	shared.BaseDomainEvent
	StocktakeNumber string `json:"stocktake_number"`
	Reason          string `json:"reason"`
}

// NewStocktakeCancelledEvent creates a stocktake cancelled event
func NewStocktakeCancelledEvent(st *StocktakeRequest, reason string) *StocktakeCancelledEvent {
	return &StocktakeCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventStocktakeCancelled, aggregateStocktake, st.ID),
		StocktakeNumber: st.StocktakeNumber,
		Reason:          reason,
	}
}
