package inventory

import (
	"github.com/shopspring/decimal"

	"github.com/stockledger/backend/internal/domain/shared"
)

// OverageCostPolicy decides what unit cost to book for stock that
// appears out of nowhere (ADJUSTMENT_IN from a stocktake overage or a
// manual correction). Shortages always leave at the running average
// cost, so no policy applies to them.
type OverageCostPolicy string

const (
	// OverageCostCurrentAverage books the overage at the snapshot's
	// running average cost. Default: value-neutral per unit.
	OverageCostCurrentAverage OverageCostPolicy = "CURRENT_AVERAGE"
	// OverageCostLastReceipt books the overage at the most recent
	// cost layer's unit cost.
	OverageCostLastReceipt OverageCostPolicy = "LAST_RECEIPT"
	// OverageCostZero books the overage at zero cost, diluting the
	// average. Conservative valuation.
	OverageCostZero OverageCostPolicy = "ZERO"
)

// IsValid returns true if the policy is known
func (p OverageCostPolicy) IsValid() bool {
	switch p {
	case OverageCostCurrentAverage, OverageCostLastReceipt, OverageCostZero:
		return true
	}
	return false
}

// ResolveOverageCost computes the unit cost for an adjustment-in
// according to the policy. Layers are the key's current cost layers,
// used only by LAST_RECEIPT.
func ResolveOverageCost(policy OverageCostPolicy, snapshot *InventorySnapshot, layers []CostLayer) (decimal.Decimal, error) {
	switch policy {
	case OverageCostCurrentAverage, "":
		return snapshot.UnitCost, nil
	case OverageCostLastReceipt:
		var latest *CostLayer
		for i := range layers {
			if latest == nil || layers[i].ReceiptDate.After(latest.ReceiptDate) {
				latest = &layers[i]
			}
		}
		if latest == nil {
			// No receipt history to draw from, fall back to the average
			return snapshot.UnitCost, nil
		}
		return latest.UnitCost, nil
	case OverageCostZero:
		return decimal.Zero, nil
	default:
		return decimal.Zero, shared.NewDomainError("INVALID_INPUT", "Unknown overage cost policy")
	}
}
