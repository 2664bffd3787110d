package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockledger/backend/internal/domain/inventory"
)

// CreateStocktakeRequest opens a stocktake over a warehouse. When
// ProductIDs is empty every snapshot in the warehouse is included,
// zero-quantity ones too; counting empty shelves is the point.
type CreateStocktakeRequest struct {
	WarehouseID uuid.UUID   `json:"warehouse_id"`
	Description string      `json:"description"`
	ProductIDs  []uuid.UUID `json:"product_ids"`
	LocationID  *uuid.UUID  `json:"location_id"`
}

// UpdateStocktakeRequest rescopes a pending stocktake. The detail set
// is rebuilt from current snapshots, so system quantities are refrozen
// as of the update.
type UpdateStocktakeRequest struct {
	Description string      `json:"description"`
	ProductIDs  []uuid.UUID `json:"product_ids"`
	LocationID  *uuid.UUID  `json:"location_id"`
}

// RecordCountRequest records the physical count for one detail line
type RecordCountRequest struct {
	DetailID        uuid.UUID       `json:"detail_id"`
	CountedQuantity decimal.Decimal `json:"counted_quantity"`
	Notes           string          `json:"notes"`
}

// CancelStocktakeRequest abandons a stocktake with a reason
type CancelStocktakeRequest struct {
	Reason string `json:"reason"`
}

// StocktakeDetailResponse is the API representation of one count line
type StocktakeDetailResponse struct {
	ID                      uuid.UUID       `json:"id"`
	SnapshotID              uuid.UUID       `json:"snapshot_id"`
	ProductID               uuid.UUID       `json:"product_id"`
	LocationID              uuid.UUID       `json:"location_id"`
	LotNumber               string          `json:"lot_number,omitempty"`
	SerialNumber            string          `json:"serial_number,omitempty"`
	SystemQuantity          decimal.Decimal `json:"system_quantity"`
	CountedQuantity         decimal.Decimal `json:"counted_quantity"`
	Counted                 bool            `json:"counted"`
	Difference              decimal.Decimal `json:"difference"`
	DifferenceValue         decimal.Decimal `json:"difference_value"`
	UnitCost                decimal.Decimal `json:"unit_cost"`
	CountedBy               *uuid.UUID      `json:"counted_by,omitempty"`
	CountedAt               *time.Time      `json:"counted_at,omitempty"`
	AdjustmentTransactionID *uuid.UUID      `json:"adjustment_transaction_id,omitempty"`
	Notes                   string          `json:"notes,omitempty"`
}

// ToStocktakeDetailResponse converts a domain detail to its API shape
func ToStocktakeDetailResponse(d *inventory.StocktakeDetail) StocktakeDetailResponse {
	return StocktakeDetailResponse{
		ID:                      d.ID,
		SnapshotID:              d.SnapshotID,
		ProductID:               d.ProductID,
		LocationID:              d.LocationID,
		LotNumber:               d.LotNumber,
		SerialNumber:            d.SerialNumber,
		SystemQuantity:          d.SystemQuantity,
		CountedQuantity:         d.CountedQuantity,
		Counted:                 d.Counted,
		Difference:              d.Difference(),
		DifferenceValue:         d.DifferenceValue(),
		UnitCost:                d.UnitCost,
		CountedBy:               d.CountedBy,
		CountedAt:               d.CountedAt,
		AdjustmentTransactionID: d.AdjustmentTransactionID,
		Notes:                   d.Notes,
	}
}

// StocktakeResponse is the API representation of a stocktake
type StocktakeResponse struct {
	ID              uuid.UUID                 `json:"id"`
	StocktakeNumber string                    `json:"stocktake_number"`
	WarehouseID     uuid.UUID                 `json:"warehouse_id"`
	Status          string                    `json:"status"`
	Description     string                    `json:"description,omitempty"`
	Details         []StocktakeDetailResponse `json:"details,omitempty"`
	DetailCount     int                       `json:"detail_count"`
	CountedCount    int                       `json:"counted_count"`
	DifferenceCount int                       `json:"difference_count"`
	NetDifference   decimal.Decimal           `json:"net_difference"`
	NetValue        decimal.Decimal           `json:"net_value"`
	CreatedBy       *uuid.UUID                `json:"created_by,omitempty"`
	CreatedAt       time.Time                 `json:"created_at"`
	StartedAt       *time.Time                `json:"started_at,omitempty"`
	CountedAt       *time.Time                `json:"counted_at,omitempty"`
	ReconciledAt    *time.Time                `json:"reconciled_at,omitempty"`
	CompletedAt     *time.Time                `json:"completed_at,omitempty"`
	CancelledAt     *time.Time                `json:"cancelled_at,omitempty"`
	CancelReason    string                    `json:"cancel_reason,omitempty"`
}

// ToStocktakeResponse converts a domain stocktake to its API shape.
// Details are included when withDetails is set; list endpoints skip
// them to keep pages light.
func ToStocktakeResponse(st *inventory.StocktakeRequest, withDetails bool) StocktakeResponse {
	resp := StocktakeResponse{
		ID:              st.ID,
		StocktakeNumber: st.StocktakeNumber,
		WarehouseID:     st.WarehouseID,
		Status:          st.Status.String(),
		Description:     st.Description,
		DetailCount:     len(st.Details),
		DifferenceCount: len(st.DifferenceDetails()),
		NetDifference:   st.NetDifferenceQuantity(),
		NetValue:        st.NetDifferenceValue(),
		CreatedBy:       st.CreatedBy,
		CreatedAt:       st.CreatedAt,
		StartedAt:       st.StartedAt,
		CountedAt:       st.CountedAt,
		ReconciledAt:    st.ReconciledAt,
		CompletedAt:     st.CompletedAt,
		CancelledAt:     st.CancelledAt,
		CancelReason:    st.CancelReason,
	}
	for i := range st.Details {
		if st.Details[i].Counted {
			resp.CountedCount++
		}
		if withDetails {
			resp.Details = append(resp.Details, ToStocktakeDetailResponse(&st.Details[i]))
		}
	}
	return resp
}
