package inventory

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockledger/backend/internal/domain/shared"
)

// StockKey identifies one inventory ledger line: a product at a specific
// warehouse location, optionally narrowed to a lot and/or serial number.
type StockKey struct {
	ProductID    uuid.UUID
	WarehouseID  uuid.UUID
	LocationID   uuid.UUID
	LotNumber    string
	SerialNumber string
}

// Validate checks that all required key components are present
func (k StockKey) Validate() error {
	if k.ProductID == uuid.Nil {
		return shared.NewDomainError("INVALID_INPUT", "Product ID cannot be empty")
	}
	if k.WarehouseID == uuid.Nil {
		return shared.NewDomainError("INVALID_INPUT", "Warehouse ID cannot be empty")
	}
	if k.LocationID == uuid.Nil {
		return shared.NewDomainError("INVALID_INPUT", "Location ID cannot be empty")
	}
	return nil
}

// String returns a canonical representation, usable as a lock key
func (k StockKey) String() string {
	return strings.Join([]string{
		k.ProductID.String(),
		k.WarehouseID.String(),
		k.LocationID.String(),
		k.LotNumber,
		k.SerialNumber,
	}, "/")
}

// InventorySnapshot is the current on-hand record for one stock key.
// It is the aggregate root for inventory movements; every quantity or
// cost change must go through its methods so the ledger invariant
// (sum of signed transaction quantities == Quantity) can be maintained
// by the movement engine.
//
// Zero-quantity snapshots persist for history and reorder alerting.
type InventorySnapshot struct {
	shared.BaseAggregateRoot
	ProductID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_snapshot_key,priority:1"`
	WarehouseID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_snapshot_key,priority:2"`
	LocationID       uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_snapshot_key,priority:3"`
	LotNumber        string          `gorm:"type:varchar(50);not null;default:'';uniqueIndex:idx_snapshot_key,priority:4"`
	SerialNumber     string          `gorm:"type:varchar(50);not null;default:'';uniqueIndex:idx_snapshot_key,priority:5"`
	Quantity         decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"` // On-hand quantity, never negative
	ReservedQuantity decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"` // Held for pending orders
	UnitCost         decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"` // Moving weighted average cost
	ReorderLevel     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	ReorderQuantity  decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	ManufactureDate  *time.Time
	ExpirationDate   *time.Time
}

// TableName returns the table name for GORM
func (InventorySnapshot) TableName() string {
	return "inventory_snapshots"
}

// NewInventorySnapshot creates an empty snapshot for a stock key.
// Snapshots come into existence on the first movement referencing the key.
func NewInventorySnapshot(key StockKey) (*InventorySnapshot, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return &InventorySnapshot{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ProductID:         key.ProductID,
		WarehouseID:       key.WarehouseID,
		LocationID:        key.LocationID,
		LotNumber:         key.LotNumber,
		SerialNumber:      key.SerialNumber,
		Quantity:          decimal.Zero,
		ReservedQuantity:  decimal.Zero,
		UnitCost:          decimal.Zero,
		ReorderLevel:      decimal.Zero,
		ReorderQuantity:   decimal.Zero,
	}, nil
}

// Key returns the stock key of this snapshot
func (s *InventorySnapshot) Key() StockKey {
	return StockKey{
		ProductID:    s.ProductID,
		WarehouseID:  s.WarehouseID,
		LocationID:   s.LocationID,
		LotNumber:    s.LotNumber,
		SerialNumber: s.SerialNumber,
	}
}

// AvailableQuantity is always derived, never stored
func (s *InventorySnapshot) AvailableQuantity() decimal.Decimal {
	return s.Quantity.Sub(s.ReservedQuantity)
}

// Receive increases on-hand quantity and recomputes the weighted average
// unit cost: (oldQty*oldCost + qty*cost) / (oldQty + qty).
func (s *InventorySnapshot) Receive(quantity, unitCost decimal.Decimal) error {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_INPUT", "Quantity must be positive")
	}
	if unitCost.IsNegative() {
		return shared.NewDomainError("INVALID_INPUT", "Unit cost cannot be negative")
	}

	if s.Quantity.IsZero() {
		s.UnitCost = unitCost.Round(4)
	} else {
		totalValue := s.Quantity.Mul(s.UnitCost).Add(quantity.Mul(unitCost))
		s.UnitCost = totalValue.Div(s.Quantity.Add(quantity)).Round(4)
	}
	s.Quantity = s.Quantity.Add(quantity)
	s.touch()

	s.AddDomainEvent(NewStockReceivedEvent(s, quantity, unitCost))
	return nil
}

// Issue decreases on-hand quantity. The check is against total on-hand
// quantity, not available quantity; reservations do not block an issue.
func (s *InventorySnapshot) Issue(quantity decimal.Decimal) error {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_INPUT", "Quantity must be positive")
	}
	if s.Quantity.LessThan(quantity) {
		return shared.ErrInsufficientStock
	}

	s.Quantity = s.Quantity.Sub(quantity)
	// Reserved can never exceed on-hand
	if s.ReservedQuantity.GreaterThan(s.Quantity) {
		s.ReservedQuantity = s.Quantity
	}
	s.touch()

	s.AddDomainEvent(NewStockIssuedEvent(s, quantity))
	if s.IsBelowReorderLevel() {
		s.AddDomainEvent(NewStockBelowReorderLevelEvent(s))
	}
	return nil
}

// Reserve holds a quantity against pending demand. Reservations move
// quantity from available to reserved; on-hand quantity is untouched.
func (s *InventorySnapshot) Reserve(quantity decimal.Decimal) error {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_INPUT", "Quantity must be positive")
	}
	if s.AvailableQuantity().LessThan(quantity) {
		return shared.ErrInsufficientStock
	}

	s.ReservedQuantity = s.ReservedQuantity.Add(quantity)
	s.touch()

	s.AddDomainEvent(NewStockReservedEvent(s, quantity))
	return nil
}

// ReleaseReservation returns a reserved quantity to available
func (s *InventorySnapshot) ReleaseReservation(quantity decimal.Decimal) error {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_INPUT", "Quantity must be positive")
	}
	if s.ReservedQuantity.LessThan(quantity) {
		return shared.NewDomainError("INVALID_INPUT", "Cannot release more than is reserved")
	}

	s.ReservedQuantity = s.ReservedQuantity.Sub(quantity)
	s.touch()

	s.AddDomainEvent(NewReservationReleasedEvent(s, quantity))
	return nil
}

// SetReorderPolicy sets the reorder threshold and suggested reorder quantity
func (s *InventorySnapshot) SetReorderPolicy(level, quantity decimal.Decimal) error {
	if level.IsNegative() || quantity.IsNegative() {
		return shared.NewDomainError("INVALID_INPUT", "Reorder values cannot be negative")
	}
	s.ReorderLevel = level
	s.ReorderQuantity = quantity
	s.touch()
	return nil
}

// SetExpiry records lot dates carried on the snapshot
func (s *InventorySnapshot) SetExpiry(manufactureDate, expirationDate *time.Time) {
	s.ManufactureDate = manufactureDate
	s.ExpirationDate = expirationDate
	s.touch()
}

// IsBelowReorderLevel returns true if on-hand has dropped to or below the threshold
func (s *InventorySnapshot) IsBelowReorderLevel() bool {
	return s.ReorderLevel.GreaterThan(decimal.Zero) && s.Quantity.LessThanOrEqual(s.ReorderLevel)
}

// CanIssue returns true if the on-hand quantity covers the requested quantity
func (s *InventorySnapshot) CanIssue(quantity decimal.Decimal) bool {
	return s.Quantity.GreaterThanOrEqual(quantity)
}

// TotalValue returns on-hand quantity valued at the running average cost
func (s *InventorySnapshot) TotalValue() decimal.Decimal {
	return s.Quantity.Mul(s.UnitCost)
}

func (s *InventorySnapshot) touch() {
	s.UpdatedAt = time.Now()
	s.IncrementVersion()
}
