package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockledger/backend/internal/domain/shared"
)

// MovementType classifies an inventory transaction
type MovementType string

const (
	// MovementGoodsReceipt is stock arriving from a supplier or production
	MovementGoodsReceipt MovementType = "GOODS_RECEIPT"
	// MovementGoodsIssue is stock leaving for a sale or consumption
	MovementGoodsIssue MovementType = "GOODS_ISSUE"
	// MovementAdjustmentIn is a positive correction (found stock)
	MovementAdjustmentIn MovementType = "ADJUSTMENT_IN"
	// MovementAdjustmentOut is a negative correction (shrinkage, damage)
	MovementAdjustmentOut MovementType = "ADJUSTMENT_OUT"
	// MovementTransferIn is stock arriving from another warehouse/location
	MovementTransferIn MovementType = "TRANSFER_IN"
	// MovementTransferOut is stock leaving for another warehouse/location
	MovementTransferOut MovementType = "TRANSFER_OUT"
	// MovementReservation holds stock for pending demand; on-hand is untouched
	MovementReservation MovementType = "RESERVATION"
	// MovementReservationRelease returns held stock to available
	MovementReservationRelease MovementType = "RESERVATION_RELEASE"
)

// String returns the string representation of MovementType
func (t MovementType) String() string {
	return string(t)
}

// IsValid returns true if the movement type is known
func (t MovementType) IsValid() bool {
	switch t {
	case MovementGoodsReceipt, MovementGoodsIssue,
		MovementAdjustmentIn, MovementAdjustmentOut,
		MovementTransferIn, MovementTransferOut,
		MovementReservation, MovementReservationRelease:
		return true
	}
	return false
}

// IsInbound returns true if this movement adds on-hand quantity
func (t MovementType) IsInbound() bool {
	switch t {
	case MovementGoodsReceipt, MovementAdjustmentIn, MovementTransferIn:
		return true
	}
	return false
}

// IsOutbound returns true if this movement removes on-hand quantity
func (t MovementType) IsOutbound() bool {
	switch t {
	case MovementGoodsIssue, MovementAdjustmentOut, MovementTransferOut:
		return true
	}
	return false
}

// AffectsOnHand returns false for reservation movements, which only
// shift quantity between available and reserved.
func (t MovementType) AffectsOnHand() bool {
	return t.IsInbound() || t.IsOutbound()
}

// ReferenceType identifies the document that caused a movement
type ReferenceType string

const (
	ReferencePurchaseOrder    ReferenceType = "PURCHASE_ORDER"
	ReferenceSalesOrder       ReferenceType = "SALES_ORDER"
	ReferenceStocktake        ReferenceType = "STOCKTAKE"
	ReferenceTransfer         ReferenceType = "TRANSFER"
	ReferenceManualAdjustment ReferenceType = "MANUAL_ADJUSTMENT"
	ReferenceInitialStock     ReferenceType = "INITIAL_STOCK"
)

// String returns the string representation of ReferenceType
func (r ReferenceType) String() string {
	return string(r)
}

// IsValid returns true if the reference type is known
func (r ReferenceType) IsValid() bool {
	switch r {
	case ReferencePurchaseOrder, ReferenceSalesOrder, ReferenceStocktake,
		ReferenceTransfer, ReferenceManualAdjustment, ReferenceInitialStock:
		return true
	}
	return false
}

// InventoryTransaction is one immutable row of the movement ledger.
// Corrections are made with new transactions, never by editing old ones.
// Quantity is always positive; the sign is implied by Type, so for any
// stock key: sum(SignedQuantity) == snapshot.Quantity at all times.
type InventoryTransaction struct {
	shared.BaseEntity
	SnapshotID      uuid.UUID       `gorm:"type:uuid;not null;index:idx_inv_tx_snapshot"`
	ProductID       uuid.UUID       `gorm:"type:uuid;not null;index:idx_inv_tx_product"`
	WarehouseID     uuid.UUID       `gorm:"type:uuid;not null;index:idx_inv_tx_warehouse"`
	LocationID      uuid.UUID       `gorm:"type:uuid;not null"`
	LotNumber       string          `gorm:"type:varchar(50);not null;default:''"`
	SerialNumber    string          `gorm:"type:varchar(50);not null;default:''"`
	Type            MovementType    `gorm:"type:varchar(30);not null;index:idx_inv_tx_type"`
	Quantity        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UnitCost        decimal.Decimal `gorm:"type:decimal(18,4);not null"` // Weighted COGS for outbound, acquisition cost for inbound
	TotalCost       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	BalanceBefore   decimal.Decimal `gorm:"type:decimal(18,4);not null"` // On-hand before the movement
	BalanceAfter    decimal.Decimal `gorm:"type:decimal(18,4);not null"` // On-hand after the movement
	ReferenceType   ReferenceType   `gorm:"type:varchar(30);not null;index:idx_inv_tx_ref"`
	ReferenceID     string          `gorm:"type:varchar(50);not null;index:idx_inv_tx_ref"`
	Notes           string          `gorm:"type:varchar(255)"`
	OperatorID      *uuid.UUID      `gorm:"type:uuid"`
	TransactionDate time.Time       `gorm:"type:timestamptz;not null;index"`
}

// TableName returns the table name for GORM
func (InventoryTransaction) TableName() string {
	return "inventory_transactions"
}

// NewInventoryTransaction creates a validated ledger entry
func NewInventoryTransaction(
	snapshotID uuid.UUID,
	key StockKey,
	movementType MovementType,
	quantity, unitCost, balanceBefore, balanceAfter decimal.Decimal,
	refType ReferenceType,
	refID string,
) (*InventoryTransaction, error) {
	if snapshotID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Snapshot ID cannot be empty")
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if !movementType.IsValid() {
		return nil, shared.NewDomainError("INVALID_INPUT", "Invalid movement type")
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_INPUT", "Quantity must be positive")
	}
	if unitCost.IsNegative() {
		return nil, shared.NewDomainError("INVALID_INPUT", "Unit cost cannot be negative")
	}
	if !refType.IsValid() {
		return nil, shared.NewDomainError("INVALID_INPUT", "Invalid reference type")
	}
	if refID == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Reference ID cannot be empty")
	}

	return &InventoryTransaction{
		BaseEntity:      shared.NewBaseEntity(),
		SnapshotID:      snapshotID,
		ProductID:       key.ProductID,
		WarehouseID:     key.WarehouseID,
		LocationID:      key.LocationID,
		LotNumber:       key.LotNumber,
		SerialNumber:    key.SerialNumber,
		Type:            movementType,
		Quantity:        quantity,
		UnitCost:        unitCost,
		TotalCost:       quantity.Mul(unitCost),
		BalanceBefore:   balanceBefore,
		BalanceAfter:    balanceAfter,
		ReferenceType:   refType,
		ReferenceID:     refID,
		TransactionDate: time.Now(),
	}, nil
}

// WithNotes sets a free-text note on the transaction
func (t *InventoryTransaction) WithNotes(notes string) *InventoryTransaction {
	t.Notes = notes
	return t
}

// WithOperator records the acting user
func (t *InventoryTransaction) WithOperator(operatorID uuid.UUID) *InventoryTransaction {
	t.OperatorID = &operatorID
	return t
}

// WithTransactionDate overrides the default transaction timestamp
func (t *InventoryTransaction) WithTransactionDate(date time.Time) *InventoryTransaction {
	t.TransactionDate = date
	return t
}

// Key returns the stock key of this transaction
func (t *InventoryTransaction) Key() StockKey {
	return StockKey{
		ProductID:    t.ProductID,
		WarehouseID:  t.WarehouseID,
		LocationID:   t.LocationID,
		LotNumber:    t.LotNumber,
		SerialNumber: t.SerialNumber,
	}
}

// SignedQuantity returns the quantity with sign implied by type.
// Reservation movements contribute zero to on-hand.
func (t *InventoryTransaction) SignedQuantity() decimal.Decimal {
	switch {
	case t.Type.IsInbound():
		return t.Quantity
	case t.Type.IsOutbound():
		return t.Quantity.Neg()
	default:
		return decimal.Zero
	}
}

// SignedTotalCost returns the total cost with sign implied by type
func (t *InventoryTransaction) SignedTotalCost() decimal.Decimal {
	switch {
	case t.Type.IsInbound():
		return t.TotalCost
	case t.Type.IsOutbound():
		return t.TotalCost.Neg()
	default:
		return decimal.Zero
	}
}
