package inventory

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockledger/backend/internal/domain/shared"
)

// CostLayer records one inbound quantity at one acquisition cost.
// Layers are consumed FIFO by receipt date; an exhausted layer keeps its
// row (Quantity zero, Exhausted true) for audit but is skipped by
// future consumption.
type CostLayer struct {
	shared.BaseEntity
	ProductID     uuid.UUID       `gorm:"type:uuid;not null;index:idx_cost_layer_key,priority:1"`
	WarehouseID   uuid.UUID       `gorm:"type:uuid;not null;index:idx_cost_layer_key,priority:2"`
	LocationID    uuid.UUID       `gorm:"type:uuid;not null;index:idx_cost_layer_key,priority:3"`
	LotNumber     string          `gorm:"type:varchar(50);not null;default:''"`
	SerialNumber  string          `gorm:"type:varchar(50);not null;default:''"`
	Quantity      decimal.Decimal `gorm:"type:decimal(18,4);not null"` // Remaining quantity in this layer
	UnitCost      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ReceiptDate   time.Time       `gorm:"type:timestamptz;not null;index"`
	ReferenceType ReferenceType   `gorm:"type:varchar(30)"`
	ReferenceID   string          `gorm:"type:varchar(50)"`
	Exhausted     bool            `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (CostLayer) TableName() string {
	return "cost_layers"
}

// NewCostLayer creates a layer for an inbound event
func NewCostLayer(key StockKey, quantity, unitCost decimal.Decimal, receiptDate time.Time, refType ReferenceType, refID string) (*CostLayer, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_INPUT", "Layer quantity must be positive")
	}
	if unitCost.IsNegative() {
		return nil, shared.NewDomainError("INVALID_INPUT", "Layer unit cost cannot be negative")
	}
	return &CostLayer{
		BaseEntity:    shared.NewBaseEntity(),
		ProductID:     key.ProductID,
		WarehouseID:   key.WarehouseID,
		LocationID:    key.LocationID,
		LotNumber:     key.LotNumber,
		SerialNumber:  key.SerialNumber,
		Quantity:      quantity,
		UnitCost:      unitCost,
		ReceiptDate:   receiptDate,
		ReferenceType: refType,
		ReferenceID:   refID,
	}, nil
}

// Key returns the stock key of this layer
func (l *CostLayer) Key() StockKey {
	return StockKey{
		ProductID:    l.ProductID,
		WarehouseID:  l.WarehouseID,
		LocationID:   l.LocationID,
		LotNumber:    l.LotNumber,
		SerialNumber: l.SerialNumber,
	}
}

// HasStock returns true if the layer still has consumable quantity
func (l *CostLayer) HasStock() bool {
	return !l.Exhausted && l.Quantity.GreaterThan(decimal.Zero)
}

// Consume decrements the layer's remaining quantity, returning the
// quantity actually taken (capped at what remains).
func (l *CostLayer) Consume(quantity decimal.Decimal) decimal.Decimal {
	taken := decimal.Min(quantity, l.Quantity)
	l.Quantity = l.Quantity.Sub(taken)
	if l.Quantity.IsZero() {
		l.Exhausted = true
	}
	l.UpdatedAt = time.Now()
	return taken
}

// LayerConsumption records how much was taken from one layer during an issue
type LayerConsumption struct {
	LayerID   uuid.UUID
	Quantity  decimal.Decimal
	UnitCost  decimal.Decimal
	TotalCost decimal.Decimal
	Exhausted bool // True if this consumption empties the layer
}

// ConsumptionPlan is the full FIFO consumption for one outbound movement.
// WeightedUnitCost drives the cost of goods recorded on the ledger entry.
type ConsumptionPlan struct {
	Consumptions     []LayerConsumption
	TotalQuantity    decimal.Decimal
	TotalCost        decimal.Decimal
	WeightedUnitCost decimal.Decimal
}

// PlanConsumption walks layers oldest-first (receipt date, then creation
// date) and allocates the requested quantity across them. It fails with
// InsufficientStock when the layers cannot cover the request; layers are
// not mutated — call ApplyConsumption with the returned plan.
func PlanConsumption(layers []CostLayer, requested decimal.Decimal) (*ConsumptionPlan, error) {
	if requested.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_INPUT", "Requested quantity must be positive")
	}

	consumable := make([]CostLayer, 0, len(layers))
	for _, l := range layers {
		if l.HasStock() {
			consumable = append(consumable, l)
		}
	}
	sort.Slice(consumable, func(i, j int) bool {
		if !consumable[i].ReceiptDate.Equal(consumable[j].ReceiptDate) {
			return consumable[i].ReceiptDate.Before(consumable[j].ReceiptDate)
		}
		return consumable[i].CreatedAt.Before(consumable[j].CreatedAt)
	})

	if TotalRemaining(consumable).LessThan(requested) {
		return nil, shared.ErrInsufficientStock
	}

	plan := &ConsumptionPlan{
		Consumptions:  make([]LayerConsumption, 0, len(consumable)),
		TotalQuantity: decimal.Zero,
		TotalCost:     decimal.Zero,
	}
	remaining := requested
	for _, layer := range consumable {
		if remaining.IsZero() {
			break
		}
		take := decimal.Min(remaining, layer.Quantity)
		cost := take.Mul(layer.UnitCost)
		plan.Consumptions = append(plan.Consumptions, LayerConsumption{
			LayerID:   layer.ID,
			Quantity:  take,
			UnitCost:  layer.UnitCost,
			TotalCost: cost,
			Exhausted: take.Equal(layer.Quantity),
		})
		plan.TotalQuantity = plan.TotalQuantity.Add(take)
		plan.TotalCost = plan.TotalCost.Add(cost)
		remaining = remaining.Sub(take)
	}
	if plan.TotalQuantity.GreaterThan(decimal.Zero) {
		plan.WeightedUnitCost = plan.TotalCost.Div(plan.TotalQuantity).Round(4)
	}
	return plan, nil
}

// ApplyConsumption executes a plan against the actual layer entities
func ApplyConsumption(layers []*CostLayer, plan *ConsumptionPlan) error {
	if plan == nil {
		return shared.NewDomainError("INVALID_INPUT", "Consumption plan cannot be nil")
	}
	byID := make(map[uuid.UUID]*CostLayer, len(layers))
	for _, l := range layers {
		byID[l.ID] = l
	}
	for _, c := range plan.Consumptions {
		layer, ok := byID[c.LayerID]
		if !ok {
			return shared.NewDomainError("NOT_FOUND", "Cost layer not found: "+c.LayerID.String())
		}
		taken := layer.Consume(c.Quantity)
		if !taken.Equal(c.Quantity) {
			return shared.NewDomainError("OPERATION_FAILED", "Cost layer consumption mismatch")
		}
	}
	return nil
}

// TotalRemaining sums the consumable quantity across layers
func TotalRemaining(layers []CostLayer) decimal.Decimal {
	total := decimal.Zero
	for _, l := range layers {
		if l.HasStock() {
			total = total.Add(l.Quantity)
		}
	}
	return total
}
