package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockledger/backend/internal/domain/inventory"
	"github.com/stockledger/backend/internal/domain/shared"
)

// movementInput carries the common parameters of one movement leg
type movementInput struct {
	key       inventory.StockKey
	movement  inventory.MovementType
	quantity  decimal.Decimal
	unitCost  decimal.Decimal // Acquisition cost for inbound; ignored for outbound (FIFO decides)
	refType   inventory.ReferenceType
	refID     string
	notes     string
	operator  *uuid.UUID
	mfgDate   *time.Time
	expDate   *time.Time
	receiptAt time.Time // Cost layer receipt date; zero means now
}

// applyReceipt executes one inbound movement against the transactional
// repositories: find-or-create the snapshot, recompute the weighted
// average, append a cost layer, and write the ledger entry. The caller
// owns locking, the surrounding transaction, and event publication.
func applyReceipt(ctx context.Context, repos TransactionalRepositories, in movementInput) (*inventory.InventoryTransaction, *inventory.InventorySnapshot, error) {
	if !in.movement.IsInbound() {
		return nil, nil, shared.NewDomainError("INVALID_INPUT", "Movement type is not inbound")
	}

	snapshot, created, err := findOrCreateSnapshot(ctx, repos, in.key)
	if err != nil {
		return nil, nil, err
	}

	balanceBefore := snapshot.Quantity
	if err := snapshot.Receive(in.quantity, in.unitCost); err != nil {
		return nil, nil, err
	}
	if in.mfgDate != nil || in.expDate != nil {
		snapshot.SetExpiry(in.mfgDate, in.expDate)
	}

	receiptAt := in.receiptAt
	if receiptAt.IsZero() {
		receiptAt = time.Now()
	}
	layer, err := inventory.NewCostLayer(in.key, in.quantity, in.unitCost, receiptAt, in.refType, in.refID)
	if err != nil {
		return nil, nil, err
	}
	if err := repos.CostLayers().Save(ctx, layer); err != nil {
		return nil, nil, err
	}

	tx, err := inventory.NewInventoryTransaction(
		snapshot.ID, in.key, in.movement,
		in.quantity, in.unitCost, balanceBefore, snapshot.Quantity,
		in.refType, in.refID,
	)
	if err != nil {
		return nil, nil, err
	}
	tx.WithNotes(in.notes)
	if in.operator != nil {
		tx.WithOperator(*in.operator)
	}
	if err := repos.Transactions().Save(ctx, tx); err != nil {
		return nil, nil, err
	}

	if created {
		err = repos.Snapshots().Save(ctx, snapshot)
	} else {
		err = repos.Snapshots().Update(ctx, snapshot)
	}
	if err != nil {
		return nil, nil, err
	}
	return tx, snapshot, nil
}

// applyIssue executes one outbound movement: consume cost layers FIFO,
// decrement the snapshot, and write the ledger entry costed at the
// weighted cost of the consumed layers.
func applyIssue(ctx context.Context, repos TransactionalRepositories, in movementInput) (*inventory.InventoryTransaction, *inventory.InventorySnapshot, error) {
	if !in.movement.IsOutbound() {
		return nil, nil, shared.NewDomainError("INVALID_INPUT", "Movement type is not outbound")
	}

	snapshot, err := repos.Snapshots().FindByKey(ctx, in.key)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil, shared.ErrInsufficientStock
		}
		return nil, nil, err
	}

	layers, err := repos.CostLayers().FindConsumableByKey(ctx, in.key)
	if err != nil {
		return nil, nil, err
	}
	plan, err := inventory.PlanConsumption(layers, in.quantity)
	if err != nil {
		return nil, nil, err
	}

	balanceBefore := snapshot.Quantity
	if err := snapshot.Issue(in.quantity); err != nil {
		return nil, nil, err
	}

	ptrs := make([]*inventory.CostLayer, 0, len(layers))
	for i := range layers {
		ptrs = append(ptrs, &layers[i])
	}
	if err := inventory.ApplyConsumption(ptrs, plan); err != nil {
		return nil, nil, err
	}
	consumed := make(map[uuid.UUID]struct{}, len(plan.Consumptions))
	for _, c := range plan.Consumptions {
		consumed[c.LayerID] = struct{}{}
	}
	for _, l := range ptrs {
		if _, ok := consumed[l.ID]; !ok {
			continue
		}
		if err := repos.CostLayers().Update(ctx, l); err != nil {
			return nil, nil, err
		}
	}

	tx, err := inventory.NewInventoryTransaction(
		snapshot.ID, in.key, in.movement,
		in.quantity, plan.WeightedUnitCost, balanceBefore, snapshot.Quantity,
		in.refType, in.refID,
	)
	if err != nil {
		return nil, nil, err
	}
	tx.WithNotes(in.notes)
	if in.operator != nil {
		tx.WithOperator(*in.operator)
	}
	if err := repos.Transactions().Save(ctx, tx); err != nil {
		return nil, nil, err
	}

	if err := repos.Snapshots().Update(ctx, snapshot); err != nil {
		return nil, nil, err
	}
	return tx, snapshot, nil
}

// applyReservation executes a reservation or release. Reservations only
// move quantity between available and reserved; no cost layers change
// and the ledger entry carries zero cost.
func applyReservation(ctx context.Context, repos TransactionalRepositories, in movementInput) (*inventory.InventoryTransaction, *inventory.InventorySnapshot, error) {
	snapshot, err := repos.Snapshots().FindByKey(ctx, in.key)
	if err != nil {
		return nil, nil, err
	}

	balance := snapshot.Quantity
	switch in.movement {
	case inventory.MovementReservation:
		err = snapshot.Reserve(in.quantity)
	case inventory.MovementReservationRelease:
		err = snapshot.ReleaseReservation(in.quantity)
	default:
		err = shared.NewDomainError("INVALID_INPUT", "Movement type is not a reservation")
	}
	if err != nil {
		return nil, nil, err
	}

	tx, err := inventory.NewInventoryTransaction(
		snapshot.ID, in.key, in.movement,
		in.quantity, decimal.Zero, balance, balance,
		in.refType, in.refID,
	)
	if err != nil {
		return nil, nil, err
	}
	tx.WithNotes(in.notes)
	if in.operator != nil {
		tx.WithOperator(*in.operator)
	}
	if err := repos.Transactions().Save(ctx, tx); err != nil {
		return nil, nil, err
	}

	if err := repos.Snapshots().Update(ctx, snapshot); err != nil {
		return nil, nil, err
	}
	return tx, snapshot, nil
}

// findOrCreateSnapshot loads the snapshot for a key, creating an empty
// one on first use. The created snapshot is not persisted yet; the
// caller saves it together with the movement.
func findOrCreateSnapshot(ctx context.Context, repos TransactionalRepositories, key inventory.StockKey) (*inventory.InventorySnapshot, bool, error) {
	snapshot, err := repos.Snapshots().FindByKey(ctx, key)
	if err == nil {
		return snapshot, false, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, false, err
	}
	snapshot, err = inventory.NewInventorySnapshot(key)
	if err != nil {
		return nil, false, err
	}
	return snapshot, true, nil
}

// snapshotBefore reads the pre-movement state of a key for the audit
// trail. A key that has never moved has no before state.
func snapshotBefore(ctx context.Context, repos TransactionalRepositories, key inventory.StockKey) (*SnapshotResponse, error) {
	snapshot, err := repos.Snapshots().FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	r := ToSnapshotResponse(snapshot)
	return &r, nil
}

// resolveAdjustmentInCost reads the state needed to apply the overage
// cost policy for an adjustment-in. A missing snapshot resolves to zero
// cost; the stock genuinely has no cost history.
func resolveAdjustmentInCost(ctx context.Context, repos TransactionalRepositories, key inventory.StockKey, policy inventory.OverageCostPolicy) (decimal.Decimal, error) {
	snapshot, err := repos.Snapshots().FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	layers, err := repos.CostLayers().FindByKey(ctx, key)
	if err != nil {
		return decimal.Zero, err
	}
	return inventory.ResolveOverageCost(policy, snapshot, layers)
}
