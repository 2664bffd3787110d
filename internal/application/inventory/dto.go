package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockledger/backend/internal/domain/inventory"
)

// StockKeyRequest identifies a stock key in operation requests
type StockKeyRequest struct {
	ProductID    uuid.UUID `json:"product_id"`
	WarehouseID  uuid.UUID `json:"warehouse_id"`
	LocationID   uuid.UUID `json:"location_id"`
	LotNumber    string    `json:"lot_number"`
	SerialNumber string    `json:"serial_number"`
}

// ToKey converts the request to a domain stock key
func (r StockKeyRequest) ToKey() inventory.StockKey {
	return inventory.StockKey{
		ProductID:    r.ProductID,
		WarehouseID:  r.WarehouseID,
		LocationID:   r.LocationID,
		LotNumber:    r.LotNumber,
		SerialNumber: r.SerialNumber,
	}
}

// ReceiveStockRequest records a goods receipt
type ReceiveStockRequest struct {
	StockKeyRequest
	Quantity        decimal.Decimal `json:"quantity"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	ReferenceType   string          `json:"reference_type"`
	ReferenceID     string          `json:"reference_id"`
	Notes           string          `json:"notes"`
	ManufactureDate *time.Time      `json:"manufacture_date"`
	ExpirationDate  *time.Time      `json:"expiration_date"`
}

// IssueStockRequest records a goods issue
type IssueStockRequest struct {
	StockKeyRequest
	Quantity      decimal.Decimal `json:"quantity"`
	ReferenceType string          `json:"reference_type"`
	ReferenceID   string          `json:"reference_id"`
	Notes         string          `json:"notes"`
}

// AdjustDirection is the direction of a manual adjustment
type AdjustDirection string

const (
	AdjustIn  AdjustDirection = "IN"
	AdjustOut AdjustDirection = "OUT"
)

// AdjustStockRequest records a manual stock correction
type AdjustStockRequest struct {
	StockKeyRequest
	Direction   AdjustDirection `json:"direction"`
	Quantity    decimal.Decimal `json:"quantity"`
	ReferenceID string          `json:"reference_id"`
	Reason      string          `json:"reason"`
}

// ReserveStockRequest holds stock against pending demand
type ReserveStockRequest struct {
	StockKeyRequest
	Quantity      decimal.Decimal `json:"quantity"`
	ReferenceType string          `json:"reference_type"`
	ReferenceID   string          `json:"reference_id"`
}

// ReleaseReservationRequest returns held stock to available
type ReleaseReservationRequest struct {
	StockKeyRequest
	Quantity      decimal.Decimal `json:"quantity"`
	ReferenceType string          `json:"reference_type"`
	ReferenceID   string          `json:"reference_id"`
}

// TransferStockRequest moves stock between two warehouse locations
type TransferStockRequest struct {
	ProductID       uuid.UUID       `json:"product_id"`
	LotNumber       string          `json:"lot_number"`
	SerialNumber    string          `json:"serial_number"`
	FromWarehouseID uuid.UUID       `json:"from_warehouse_id"`
	FromLocationID  uuid.UUID       `json:"from_location_id"`
	ToWarehouseID   uuid.UUID       `json:"to_warehouse_id"`
	ToLocationID    uuid.UUID       `json:"to_location_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	ReferenceID     string          `json:"reference_id"`
	Notes           string          `json:"notes"`
}

// SourceKey returns the stock key stock leaves from
func (r TransferStockRequest) SourceKey() inventory.StockKey {
	return inventory.StockKey{
		ProductID:    r.ProductID,
		WarehouseID:  r.FromWarehouseID,
		LocationID:   r.FromLocationID,
		LotNumber:    r.LotNumber,
		SerialNumber: r.SerialNumber,
	}
}

// DestinationKey returns the stock key stock arrives at
func (r TransferStockRequest) DestinationKey() inventory.StockKey {
	return inventory.StockKey{
		ProductID:    r.ProductID,
		WarehouseID:  r.ToWarehouseID,
		LocationID:   r.ToLocationID,
		LotNumber:    r.LotNumber,
		SerialNumber: r.SerialNumber,
	}
}

// SetReorderPolicyRequest configures reorder alerting for one key
type SetReorderPolicyRequest struct {
	StockKeyRequest
	ReorderLevel    decimal.Decimal `json:"reorder_level"`
	ReorderQuantity decimal.Decimal `json:"reorder_quantity"`
}

// SnapshotResponse is the API representation of an inventory snapshot
type SnapshotResponse struct {
	ID                uuid.UUID       `json:"id"`
	ProductID         uuid.UUID       `json:"product_id"`
	WarehouseID       uuid.UUID       `json:"warehouse_id"`
	LocationID        uuid.UUID       `json:"location_id"`
	LotNumber         string          `json:"lot_number,omitempty"`
	SerialNumber      string          `json:"serial_number,omitempty"`
	Quantity          decimal.Decimal `json:"quantity"`
	ReservedQuantity  decimal.Decimal `json:"reserved_quantity"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	TotalValue        decimal.Decimal `json:"total_value"`
	ReorderLevel      decimal.Decimal `json:"reorder_level"`
	ReorderQuantity   decimal.Decimal `json:"reorder_quantity"`
	BelowReorderLevel bool            `json:"below_reorder_level"`
	ManufactureDate   *time.Time      `json:"manufacture_date,omitempty"`
	ExpirationDate    *time.Time      `json:"expiration_date,omitempty"`
	Version           int             `json:"version"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// ToSnapshotResponse converts a domain snapshot to its API shape
func ToSnapshotResponse(s *inventory.InventorySnapshot) SnapshotResponse {
	return SnapshotResponse{
		ID:                s.ID,
		ProductID:         s.ProductID,
		WarehouseID:       s.WarehouseID,
		LocationID:        s.LocationID,
		LotNumber:         s.LotNumber,
		SerialNumber:      s.SerialNumber,
		Quantity:          s.Quantity,
		ReservedQuantity:  s.ReservedQuantity,
		AvailableQuantity: s.AvailableQuantity(),
		UnitCost:          s.UnitCost,
		TotalValue:        s.TotalValue(),
		ReorderLevel:      s.ReorderLevel,
		ReorderQuantity:   s.ReorderQuantity,
		BelowReorderLevel: s.IsBelowReorderLevel(),
		ManufactureDate:   s.ManufactureDate,
		ExpirationDate:    s.ExpirationDate,
		Version:           s.Version,
		UpdatedAt:         s.UpdatedAt,
	}
}

// TransactionResponse is the API representation of one ledger entry
type TransactionResponse struct {
	ID              uuid.UUID       `json:"id"`
	SnapshotID      uuid.UUID       `json:"snapshot_id"`
	ProductID       uuid.UUID       `json:"product_id"`
	WarehouseID     uuid.UUID       `json:"warehouse_id"`
	LocationID      uuid.UUID       `json:"location_id"`
	LotNumber       string          `json:"lot_number,omitempty"`
	SerialNumber    string          `json:"serial_number,omitempty"`
	Type            string          `json:"type"`
	Quantity        decimal.Decimal `json:"quantity"`
	SignedQuantity  decimal.Decimal `json:"signed_quantity"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	BalanceBefore   decimal.Decimal `json:"balance_before"`
	BalanceAfter    decimal.Decimal `json:"balance_after"`
	ReferenceType   string          `json:"reference_type"`
	ReferenceID     string          `json:"reference_id"`
	Notes           string          `json:"notes,omitempty"`
	OperatorID      *uuid.UUID      `json:"operator_id,omitempty"`
	TransactionDate time.Time       `json:"transaction_date"`
}

// ToTransactionResponse converts a domain transaction to its API shape
func ToTransactionResponse(t *inventory.InventoryTransaction) TransactionResponse {
	return TransactionResponse{
		ID:              t.ID,
		SnapshotID:      t.SnapshotID,
		ProductID:       t.ProductID,
		WarehouseID:     t.WarehouseID,
		LocationID:      t.LocationID,
		LotNumber:       t.LotNumber,
		SerialNumber:    t.SerialNumber,
		Type:            t.Type.String(),
		Quantity:        t.Quantity,
		SignedQuantity:  t.SignedQuantity(),
		UnitCost:        t.UnitCost,
		TotalCost:       t.TotalCost,
		BalanceBefore:   t.BalanceBefore,
		BalanceAfter:    t.BalanceAfter,
		ReferenceType:   t.ReferenceType.String(),
		ReferenceID:     t.ReferenceID,
		Notes:           t.Notes,
		OperatorID:      t.OperatorID,
		TransactionDate: t.TransactionDate,
	}
}

// CostLayerResponse is the API representation of one FIFO cost layer
type CostLayerResponse struct {
	ID            uuid.UUID       `json:"id"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	ReceiptDate   time.Time       `json:"receipt_date"`
	ReferenceType string          `json:"reference_type,omitempty"`
	ReferenceID   string          `json:"reference_id,omitempty"`
	Exhausted     bool            `json:"exhausted"`
}

// ToCostLayerResponse converts a domain cost layer to its API shape
func ToCostLayerResponse(l *inventory.CostLayer) CostLayerResponse {
	return CostLayerResponse{
		ID:            l.ID,
		Quantity:      l.Quantity,
		UnitCost:      l.UnitCost,
		ReceiptDate:   l.ReceiptDate,
		ReferenceType: l.ReferenceType.String(),
		ReferenceID:   l.ReferenceID,
		Exhausted:     l.Exhausted,
	}
}

// MovementResult bundles the ledger entry and the updated snapshot
// returned by every movement operation.
type MovementResult struct {
	Transaction TransactionResponse `json:"transaction"`
	Snapshot    SnapshotResponse    `json:"snapshot"`
}

// TransferResult carries both legs of a completed transfer
type TransferResult struct {
	Outbound MovementResult `json:"outbound"`
	Inbound  MovementResult `json:"inbound"`
}

// AvailabilityResponse answers an availability check
type AvailabilityResponse struct {
	Available         bool            `json:"available"`
	OnHand            decimal.Decimal `json:"on_hand"`
	Reserved          decimal.Decimal `json:"reserved"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
	Requested         decimal.Decimal `json:"requested"`
}

// LedgerCheckResponse reports the ledger-vs-snapshot consistency check
type LedgerCheckResponse struct {
	SnapshotID       uuid.UUID       `json:"snapshot_id"`
	SnapshotQuantity decimal.Decimal `json:"snapshot_quantity"`
	LedgerQuantity   decimal.Decimal `json:"ledger_quantity"`
	Consistent       bool            `json:"consistent"`
}
