package inventory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockledger/backend/internal/domain/shared"
)

// StocktakeStatus is the lifecycle state of a stocktake
type StocktakeStatus string

const (
	// StocktakePending means the stocktake is created but counting has not begun
	StocktakePending StocktakeStatus = "PENDING"
	// StocktakeInProgress means counting is underway
	StocktakeInProgress StocktakeStatus = "IN_PROGRESS"
	// StocktakeCounted means every detail has a recorded count
	StocktakeCounted StocktakeStatus = "COUNTED"
	// StocktakeReconciled means adjustment movements have been posted
	StocktakeReconciled StocktakeStatus = "RECONCILED"
	// StocktakeCompleted means the stocktake is closed
	StocktakeCompleted StocktakeStatus = "COMPLETED"
	// StocktakeCancelled means the stocktake was abandoned before reconciliation
	StocktakeCancelled StocktakeStatus = "CANCELLED"
)

// String returns the string representation of StocktakeStatus
func (s StocktakeStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is known
func (s StocktakeStatus) IsValid() bool {
	switch s {
	case StocktakePending, StocktakeInProgress, StocktakeCounted,
		StocktakeReconciled, StocktakeCompleted, StocktakeCancelled:
		return true
	}
	return false
}

// IsTerminal returns true if no further transitions are allowed
func (s StocktakeStatus) IsTerminal() bool {
	return s == StocktakeCompleted || s == StocktakeCancelled
}

// CanCancel returns true if the stocktake may still be abandoned.
// Once adjustments are posted (RECONCILED) cancellation is no longer
// possible; the movements would have to be reversed explicitly.
func (s StocktakeStatus) CanCancel() bool {
	switch s {
	case StocktakePending, StocktakeInProgress, StocktakeCounted:
		return true
	}
	return false
}

// StocktakeDetail is one line of a stocktake: a stock key with its
// system (expected) quantity frozen at creation and the physical count.
// Counted is explicit; a zero CountedQuantity with Counted true is a
// legitimate "shelf is empty" observation, not a missing count.
type StocktakeDetail struct {
	shared.BaseEntity
	StocktakeID             uuid.UUID       `gorm:"type:uuid;not null;index:idx_stocktake_detail"`
	SnapshotID              uuid.UUID       `gorm:"type:uuid;not null"`
	ProductID               uuid.UUID       `gorm:"type:uuid;not null"`
	WarehouseID             uuid.UUID       `gorm:"type:uuid;not null"`
	LocationID              uuid.UUID       `gorm:"type:uuid;not null"`
	LotNumber               string          `gorm:"type:varchar(50);not null;default:''"`
	SerialNumber            string          `gorm:"type:varchar(50);not null;default:''"`
	SystemQuantity          decimal.Decimal `gorm:"type:decimal(18,4);not null"` // On-hand at stocktake creation
	CountedQuantity         decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Counted                 bool            `gorm:"not null;default:false"`
	UnitCost                decimal.Decimal `gorm:"type:decimal(18,4);not null"` // Average cost at stocktake creation
	CountedBy               *uuid.UUID      `gorm:"type:uuid"`
	CountedAt               *time.Time
	AdjustmentTransactionID *uuid.UUID `gorm:"type:uuid"` // Set during reconciliation if a difference was posted
	Notes                   string     `gorm:"type:varchar(255)"`
}

// TableName returns the table name for GORM
func (StocktakeDetail) TableName() string {
	return "stocktake_details"
}

// Key returns the stock key of this detail line
func (d *StocktakeDetail) Key() StockKey {
	return StockKey{
		ProductID:    d.ProductID,
		WarehouseID:  d.WarehouseID,
		LocationID:   d.LocationID,
		LotNumber:    d.LotNumber,
		SerialNumber: d.SerialNumber,
	}
}

// Difference returns system minus counted quantity. Positive means
// shortage (less on the shelf than the book), negative means overage.
func (d *StocktakeDetail) Difference() decimal.Decimal {
	return d.SystemQuantity.Sub(d.CountedQuantity)
}

// HasDifference returns true if the count disagrees with the book quantity
func (d *StocktakeDetail) HasDifference() bool {
	return d.Counted && !d.Difference().IsZero()
}

// DifferenceValue values the difference at the frozen average cost
func (d *StocktakeDetail) DifferenceValue() decimal.Decimal {
	return d.Difference().Mul(d.UnitCost)
}

// StocktakeRequest is the aggregate root for a physical count cycle.
// System quantities are frozen when details are added; movements that
// happen between creation and count show up as differences, which is
// why counting windows should be short and movement-quiet.
type StocktakeRequest struct {
	shared.BaseAggregateRoot
	StocktakeNumber string            `gorm:"type:varchar(50);not null;uniqueIndex"`
	WarehouseID     uuid.UUID         `gorm:"type:uuid;not null;index"`
	Status          StocktakeStatus   `gorm:"type:varchar(20);not null;index"`
	Description     string            `gorm:"type:varchar(255)"`
	Details         []StocktakeDetail `gorm:"foreignKey:StocktakeID"`
	CreatedBy       *uuid.UUID        `gorm:"type:uuid"`
	StartedAt       *time.Time
	CountedAt       *time.Time
	ReconciledAt    *time.Time
	CompletedAt     *time.Time
	CancelledAt     *time.Time
	CancelReason    string `gorm:"type:varchar(255)"`
}

// TableName returns the table name for GORM
func (StocktakeRequest) TableName() string {
	return "stocktake_requests"
}

// NewStocktakeRequest creates a stocktake in PENDING state
func NewStocktakeRequest(stocktakeNumber string, warehouseID uuid.UUID, description string) (*StocktakeRequest, error) {
	if stocktakeNumber == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Stocktake number cannot be empty")
	}
	if warehouseID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Warehouse ID cannot be empty")
	}
	return &StocktakeRequest{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		StocktakeNumber:   stocktakeNumber,
		WarehouseID:       warehouseID,
		Status:            StocktakePending,
		Description:       description,
		Details:           make([]StocktakeDetail, 0),
	}, nil
}

// AddDetail snapshots one stock key into the stocktake scope. The
// system quantity and unit cost are frozen from the snapshot as of now.
func (st *StocktakeRequest) AddDetail(snapshot *InventorySnapshot) error {
	if st.Status != StocktakePending {
		return shared.NewDomainError("INVALID_STATUS", "Details can only be added to a pending stocktake")
	}
	if snapshot == nil {
		return shared.NewDomainError("INVALID_INPUT", "Snapshot cannot be nil")
	}
	if snapshot.WarehouseID != st.WarehouseID {
		return shared.NewDomainError("INVALID_INPUT", "Snapshot belongs to a different warehouse")
	}
	for _, d := range st.Details {
		if d.SnapshotID == snapshot.ID {
			return shared.NewDomainError("INVALID_INPUT", "Snapshot already included in this stocktake")
		}
	}

	st.Details = append(st.Details, StocktakeDetail{
		BaseEntity:     shared.NewBaseEntity(),
		StocktakeID:    st.ID,
		SnapshotID:     snapshot.ID,
		ProductID:      snapshot.ProductID,
		WarehouseID:    snapshot.WarehouseID,
		LocationID:     snapshot.LocationID,
		LotNumber:      snapshot.LotNumber,
		SerialNumber:   snapshot.SerialNumber,
		SystemQuantity: snapshot.Quantity,
		UnitCost:       snapshot.UnitCost,
	})
	st.touch()
	return nil
}

// ReplaceDetails swaps the stocktake scope wholesale, refreezing system
// quantities and unit costs from the given snapshots. Only allowed
// while the stocktake is still PENDING.
func (st *StocktakeRequest) ReplaceDetails(snapshots []*InventorySnapshot) error {
	if st.Status != StocktakePending {
		return shared.NewDomainError("INVALID_STATUS", "Details can only be replaced on a pending stocktake")
	}
	previous := st.Details
	version := st.Version
	st.Details = make([]StocktakeDetail, 0, len(snapshots))
	for _, snapshot := range snapshots {
		if err := st.AddDetail(snapshot); err != nil {
			st.Details = previous
			st.Version = version
			return err
		}
	}
	// AddDetail bumps the version per line; a rescope counts as one change
	st.Version = version
	st.touch()
	return nil
}

// Start moves the stocktake from PENDING to IN_PROGRESS
func (st *StocktakeRequest) Start() error {
	if st.Status != StocktakePending {
		return shared.NewDomainError("INVALID_STATUS",
			fmt.Sprintf("Cannot start a stocktake in status %s", st.Status))
	}
	if len(st.Details) == 0 {
		return shared.NewDomainError("INVALID_INPUT", "Cannot start a stocktake with no details")
	}

	now := time.Now()
	st.Status = StocktakeInProgress
	st.StartedAt = &now
	st.touch()

	st.AddDomainEvent(NewStocktakeStartedEvent(st))
	return nil
}

// RecordCount records the physical count for one detail line. The
// first count on a pending stocktake starts it; counts can be
// re-recorded while IN_PROGRESS and the latest one wins.
func (st *StocktakeRequest) RecordCount(detailID uuid.UUID, countedQuantity decimal.Decimal, countedBy uuid.UUID, notes string) error {
	if st.Status == StocktakePending {
		if err := st.Start(); err != nil {
			return err
		}
	}
	if st.Status != StocktakeInProgress {
		return shared.NewDomainError("INVALID_STATUS", "Counts can only be recorded while the stocktake is in progress")
	}
	if countedQuantity.IsNegative() {
		return shared.NewDomainError("INVALID_INPUT", "Counted quantity cannot be negative")
	}

	for i := range st.Details {
		if st.Details[i].ID != detailID {
			continue
		}
		now := time.Now()
		st.Details[i].CountedQuantity = countedQuantity
		st.Details[i].Counted = true
		st.Details[i].CountedBy = &countedBy
		st.Details[i].CountedAt = &now
		st.Details[i].Notes = notes
		st.Details[i].UpdatedAt = now
		st.touch()
		return nil
	}
	return shared.NewDomainError("NOT_FOUND", "Stocktake detail not found")
}

// AllCounted returns true if every detail has an explicit count
func (st *StocktakeRequest) AllCounted() bool {
	for _, d := range st.Details {
		if !d.Counted {
			return false
		}
	}
	return len(st.Details) > 0
}

// FinishCounting moves the stocktake to COUNTED once every detail has
// a recorded count.
func (st *StocktakeRequest) FinishCounting() error {
	if st.Status != StocktakeInProgress {
		return shared.NewDomainError("INVALID_STATUS",
			fmt.Sprintf("Cannot finish counting in status %s", st.Status))
	}
	if !st.AllCounted() {
		return shared.NewDomainError("INVALID_STATUS", "Not all details have been counted")
	}

	now := time.Now()
	st.Status = StocktakeCounted
	st.CountedAt = &now
	st.touch()

	st.AddDomainEvent(NewStocktakeCountedEvent(st))
	return nil
}

// DifferenceDetails returns the details whose count disagrees with the book
func (st *StocktakeRequest) DifferenceDetails() []*StocktakeDetail {
	diffs := make([]*StocktakeDetail, 0)
	for i := range st.Details {
		if st.Details[i].HasDifference() {
			diffs = append(diffs, &st.Details[i])
		}
	}
	return diffs
}

// NetDifferenceQuantity sums all signed differences
func (st *StocktakeRequest) NetDifferenceQuantity() decimal.Decimal {
	net := decimal.Zero
	for _, d := range st.Details {
		if d.Counted {
			net = net.Add(d.Difference())
		}
	}
	return net
}

// NetDifferenceValue sums all differences valued at frozen average cost
func (st *StocktakeRequest) NetDifferenceValue() decimal.Decimal {
	net := decimal.Zero
	for _, d := range st.Details {
		if d.Counted {
			net = net.Add(d.DifferenceValue())
		}
	}
	return net
}

// MarkReconciled records that adjustment movements were posted for all
// differences. The caller (the reconciliation service) posts the
// movements and links each detail to its adjustment transaction before
// calling this.
func (st *StocktakeRequest) MarkReconciled() error {
	if st.Status != StocktakeCounted {
		return shared.NewDomainError("INVALID_STATUS",
			fmt.Sprintf("Cannot reconcile a stocktake in status %s", st.Status))
	}
	for _, d := range st.DifferenceDetails() {
		if d.AdjustmentTransactionID == nil {
			return shared.NewDomainError("INVALID_STATUS", "A difference detail has no adjustment transaction linked")
		}
	}

	now := time.Now()
	st.Status = StocktakeReconciled
	st.ReconciledAt = &now
	st.touch()

	st.AddDomainEvent(NewStocktakeReconciledEvent(st, len(st.DifferenceDetails()), st.NetDifferenceQuantity()))
	return nil
}

// LinkAdjustment ties a detail line to the adjustment transaction that
// corrected its difference.
func (st *StocktakeRequest) LinkAdjustment(detailID, transactionID uuid.UUID) error {
	if st.Status != StocktakeCounted {
		return shared.NewDomainError("INVALID_STATUS", "Adjustments can only be linked during reconciliation")
	}
	for i := range st.Details {
		if st.Details[i].ID == detailID {
			st.Details[i].AdjustmentTransactionID = &transactionID
			st.Details[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return shared.NewDomainError("NOT_FOUND", "Stocktake detail not found")
}

// Complete closes the stocktake. A stocktake with no differences may
// complete directly from COUNTED; otherwise it must be reconciled first.
func (st *StocktakeRequest) Complete() error {
	switch st.Status {
	case StocktakeReconciled:
	case StocktakeCounted:
		if len(st.DifferenceDetails()) > 0 {
			return shared.NewDomainError("INVALID_STATUS", "Stocktake has differences that must be reconciled first")
		}
	default:
		return shared.NewDomainError("INVALID_STATUS",
			fmt.Sprintf("Cannot complete a stocktake in status %s", st.Status))
	}

	now := time.Now()
	st.Status = StocktakeCompleted
	st.CompletedAt = &now
	st.touch()

	st.AddDomainEvent(NewStocktakeCompletedEvent(st))
	return nil
}

// Cancel abandons the stocktake. Allowed from PENDING, IN_PROGRESS and
// COUNTED; once reconciled the adjustments are already on the ledger.
func (st *StocktakeRequest) Cancel(reason string) error {
	if !st.Status.CanCancel() {
		return shared.NewDomainError("INVALID_STATUS",
			fmt.Sprintf("Cannot cancel a stocktake in status %s", st.Status))
	}

	now := time.Now()
	st.Status = StocktakeCancelled
	st.CancelledAt = &now
	st.CancelReason = reason
	st.touch()

	st.AddDomainEvent(NewStocktakeCancelledEvent(st, reason))
	return nil
}

func (st *StocktakeRequest) touch() {
	st.UpdatedAt = time.Now()
	st.IncrementVersion()
}
