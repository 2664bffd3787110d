package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stockledger/backend/internal/domain/inventory"
	"github.com/stockledger/backend/internal/domain/shared"
)

// MovementService executes inventory movements. Every mutation runs
// under the per-key lock and inside one database transaction, so the
// snapshot update, cost layer changes and ledger append land atomically.
type MovementService struct {
	scope          TransactionScope
	keys           *KeyedMutex
	logger         *zap.Logger
	eventPublisher shared.EventPublisher
	products       ProductLookup
	warehouses     WarehouseLookup
	locations      LocationLookup
	permissions    PermissionGate
	audit          AuditSink
	overagePolicy  inventory.OverageCostPolicy
}

// NewMovementService creates a MovementService
func NewMovementService(scope TransactionScope, keys *KeyedMutex, logger *zap.Logger) *MovementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MovementService{
		scope:         scope,
		keys:          keys,
		logger:        logger,
		overagePolicy: inventory.OverageCostCurrentAverage,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *MovementService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetLookups wires the external reference validators (optional)
func (s *MovementService) SetLookups(products ProductLookup, warehouses WarehouseLookup, locations LocationLookup) {
	s.products = products
	s.warehouses = warehouses
	s.locations = locations
}

// SetPermissionGate wires the permission checker (optional)
func (s *MovementService) SetPermissionGate(gate PermissionGate) {
	s.permissions = gate
}

// SetAuditSink wires the audit trail sink (optional)
func (s *MovementService) SetAuditSink(sink AuditSink) {
	s.audit = sink
}

// SetOveragePolicy configures how adjustment-in stock is costed
func (s *MovementService) SetOveragePolicy(policy inventory.OverageCostPolicy) error {
	if !policy.IsValid() {
		return shared.NewDomainError("INVALID_INPUT", "Unknown overage cost policy")
	}
	s.overagePolicy = policy
	return nil
}

// Receive books a goods receipt: quantity in, new cost layer, weighted
// average recomputed.
func (s *MovementService) Receive(ctx context.Context, actor Actor, req ReceiveStockRequest) (*MovementResult, error) {
	if err := s.checkPermission(ctx, actor, PermissionStockReceive); err != nil {
		return nil, err
	}
	key := req.ToKey()
	if err := s.validateReferences(ctx, key); err != nil {
		return nil, err
	}
	refType, err := parseReferenceType(req.ReferenceType, inventory.ReferencePurchaseOrder)
	if err != nil {
		return nil, err
	}

	in := movementInput{
		key:      key,
		movement: inventory.MovementGoodsReceipt,
		quantity: req.Quantity,
		unitCost: req.UnitCost,
		refType:  refType,
		refID:    req.ReferenceID,
		notes:    req.Notes,
		operator: &actor.UserID,
		mfgDate:  req.ManufactureDate,
		expDate:  req.ExpirationDate,
	}
	return s.runMovement(ctx, actor, "inventory.receive", in, applyReceipt)
}

// Issue books a goods issue costed at FIFO layer consumption
func (s *MovementService) Issue(ctx context.Context, actor Actor, req IssueStockRequest) (*MovementResult, error) {
	if err := s.checkPermission(ctx, actor, PermissionStockIssue); err != nil {
		return nil, err
	}
	key := req.ToKey()
	refType, err := parseReferenceType(req.ReferenceType, inventory.ReferenceSalesOrder)
	if err != nil {
		return nil, err
	}

	in := movementInput{
		key:      key,
		movement: inventory.MovementGoodsIssue,
		quantity: req.Quantity,
		refType:  refType,
		refID:    req.ReferenceID,
		notes:    req.Notes,
		operator: &actor.UserID,
	}
	return s.runMovement(ctx, actor, "inventory.issue", in, applyIssue)
}

// Adjust books a manual correction. Adjustment-in cost follows the
// configured overage policy; adjustment-out leaves at FIFO cost like
// any other issue.
func (s *MovementService) Adjust(ctx context.Context, actor Actor, req AdjustStockRequest) (*MovementResult, error) {
	if err := s.checkPermission(ctx, actor, PermissionStockAdjust); err != nil {
		return nil, err
	}
	key := req.ToKey()
	if err := key.Validate(); err != nil {
		return nil, err
	}
	refID := req.ReferenceID
	if refID == "" {
		refID = "ADJ-" + uuid.New().String()[:8]
	}

	var result *MovementResult
	var before *SnapshotResponse
	unlock := s.keys.Lock(key.String())
	defer unlock()

	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		b, err := snapshotBefore(ctx, repos, key)
		if err != nil {
			return err
		}
		before = b

		in := movementInput{
			key:      key,
			quantity: req.Quantity,
			refType:  inventory.ReferenceManualAdjustment,
			refID:    refID,
			notes:    req.Reason,
			operator: &actor.UserID,
		}

		var tx *inventory.InventoryTransaction
		var snapshot *inventory.InventorySnapshot
		var applyErr error
		switch req.Direction {
		case AdjustIn:
			in.movement = inventory.MovementAdjustmentIn
			in.unitCost, applyErr = resolveAdjustmentInCost(ctx, repos, key, s.overagePolicy)
			if applyErr != nil {
				return applyErr
			}
			tx, snapshot, applyErr = applyReceipt(ctx, repos, in)
		case AdjustOut:
			in.movement = inventory.MovementAdjustmentOut
			tx, snapshot, applyErr = applyIssue(ctx, repos, in)
		default:
			return shared.NewDomainError("INVALID_INPUT", "Adjustment direction must be IN or OUT")
		}
		if applyErr != nil {
			return applyErr
		}

		snapshot.AddDomainEvent(inventory.NewStockAdjustedEvent(snapshot, in.movement, req.Quantity, req.Reason))
		result = &MovementResult{
			Transaction: ToTransactionResponse(tx),
			Snapshot:    ToSnapshotResponse(snapshot),
		}
		s.publishDomainEvents(ctx, snapshot)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor, "inventory.adjust", result.Transaction.ID,
		fmt.Sprintf("%s %s x %s", req.Direction, key.ProductID, req.Quantity),
		before, result.Snapshot)
	s.logger.Info("stock adjusted",
		zap.String("direction", string(req.Direction)),
		zap.String("product_id", key.ProductID.String()),
		zap.String("quantity", req.Quantity.String()))
	return result, nil
}

// Reserve holds stock against pending demand
func (s *MovementService) Reserve(ctx context.Context, actor Actor, req ReserveStockRequest) (*MovementResult, error) {
	if err := s.checkPermission(ctx, actor, PermissionStockReserve); err != nil {
		return nil, err
	}
	refType, err := parseReferenceType(req.ReferenceType, inventory.ReferenceSalesOrder)
	if err != nil {
		return nil, err
	}
	in := movementInput{
		key:      req.ToKey(),
		movement: inventory.MovementReservation,
		quantity: req.Quantity,
		refType:  refType,
		refID:    req.ReferenceID,
		operator: &actor.UserID,
	}
	return s.runMovement(ctx, actor, "inventory.reserve", in, applyReservation)
}

// ReleaseReservation returns held stock to available
func (s *MovementService) ReleaseReservation(ctx context.Context, actor Actor, req ReleaseReservationRequest) (*MovementResult, error) {
	if err := s.checkPermission(ctx, actor, PermissionStockReserve); err != nil {
		return nil, err
	}
	refType, err := parseReferenceType(req.ReferenceType, inventory.ReferenceSalesOrder)
	if err != nil {
		return nil, err
	}
	in := movementInput{
		key:      req.ToKey(),
		movement: inventory.MovementReservationRelease,
		quantity: req.Quantity,
		refType:  refType,
		refID:    req.ReferenceID,
		operator: &actor.UserID,
	}
	return s.runMovement(ctx, actor, "inventory.release_reservation", in, applyReservation)
}

// SetReorderPolicy configures the reorder threshold for one key
func (s *MovementService) SetReorderPolicy(ctx context.Context, actor Actor, req SetReorderPolicyRequest) (*SnapshotResponse, error) {
	if err := s.checkPermission(ctx, actor, PermissionStockAdjust); err != nil {
		return nil, err
	}
	key := req.ToKey()
	if err := key.Validate(); err != nil {
		return nil, err
	}

	var resp *SnapshotResponse
	unlock := s.keys.Lock(key.String())
	defer unlock()

	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		snapshot, created, err := findOrCreateSnapshot(ctx, repos, key)
		if err != nil {
			return err
		}
		if err := snapshot.SetReorderPolicy(req.ReorderLevel, req.ReorderQuantity); err != nil {
			return err
		}
		if created {
			err = repos.Snapshots().Save(ctx, snapshot)
		} else {
			err = repos.Snapshots().Update(ctx, snapshot)
		}
		if err != nil {
			return err
		}
		r := ToSnapshotResponse(snapshot)
		resp = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// runMovement is the shared mutation path: lock the key, run the apply
// function in one transaction, publish events, audit and log.
func (s *MovementService) runMovement(
	ctx context.Context,
	actor Actor,
	action string,
	in movementInput,
	apply func(context.Context, TransactionalRepositories, movementInput) (*inventory.InventoryTransaction, *inventory.InventorySnapshot, error),
) (*MovementResult, error) {
	if err := in.key.Validate(); err != nil {
		return nil, err
	}
	if in.refID == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Reference ID cannot be empty")
	}

	var result *MovementResult
	var before *SnapshotResponse
	unlock := s.keys.Lock(in.key.String())
	defer unlock()

	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		b, err := snapshotBefore(ctx, repos, in.key)
		if err != nil {
			return err
		}
		before = b

		tx, snapshot, err := apply(ctx, repos, in)
		if err != nil {
			return err
		}
		result = &MovementResult{
			Transaction: ToTransactionResponse(tx),
			Snapshot:    ToSnapshotResponse(snapshot),
		}
		s.publishDomainEvents(ctx, snapshot)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor, action, result.Transaction.ID,
		fmt.Sprintf("%s %s x %s", in.movement, in.key.ProductID, in.quantity),
		before, result.Snapshot)
	s.logger.Info("stock movement applied",
		zap.String("type", in.movement.String()),
		zap.String("product_id", in.key.ProductID.String()),
		zap.String("warehouse_id", in.key.WarehouseID.String()),
		zap.String("quantity", in.quantity.String()),
		zap.String("reference", in.refID))
	return result, nil
}

// GetSnapshot returns the snapshot for one stock key
func (s *MovementService) GetSnapshot(ctx context.Context, req StockKeyRequest) (*SnapshotResponse, error) {
	key := req.ToKey()
	if err := key.Validate(); err != nil {
		return nil, err
	}
	var resp *SnapshotResponse
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		snapshot, err := repos.Snapshots().FindByKey(ctx, key)
		if err != nil {
			return err
		}
		r := ToSnapshotResponse(snapshot)
		resp = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ListSnapshots returns snapshots matching the filter, paginated
func (s *MovementService) ListSnapshots(ctx context.Context, filter inventory.SnapshotFilter) (shared.Paginated[SnapshotResponse], error) {
	var page shared.Paginated[SnapshotResponse]
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		result, err := repos.Snapshots().List(ctx, filter)
		if err != nil {
			return err
		}
		items := make([]SnapshotResponse, 0, len(result.Items))
		for i := range result.Items {
			items = append(items, ToSnapshotResponse(&result.Items[i]))
		}
		page = shared.NewPaginated(items, result.Total, result.Page, result.PageSize)
		return nil
	})
	return page, err
}

// GetLedger returns ledger entries matching the filter, paginated
func (s *MovementService) GetLedger(ctx context.Context, filter inventory.TransactionFilter) (shared.Paginated[TransactionResponse], error) {
	var page shared.Paginated[TransactionResponse]
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		result, err := repos.Transactions().List(ctx, filter)
		if err != nil {
			return err
		}
		items := make([]TransactionResponse, 0, len(result.Items))
		for i := range result.Items {
			items = append(items, ToTransactionResponse(&result.Items[i]))
		}
		page = shared.NewPaginated(items, result.Total, result.Page, result.PageSize)
		return nil
	})
	return page, err
}

// GetCostLayers returns all cost layers for one key, exhausted included
func (s *MovementService) GetCostLayers(ctx context.Context, req StockKeyRequest) ([]CostLayerResponse, error) {
	key := req.ToKey()
	if err := key.Validate(); err != nil {
		return nil, err
	}
	var out []CostLayerResponse
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		layers, err := repos.CostLayers().FindByKey(ctx, key)
		if err != nil {
			return err
		}
		out = make([]CostLayerResponse, 0, len(layers))
		for i := range layers {
			out = append(out, ToCostLayerResponse(&layers[i]))
		}
		return nil
	})
	return out, err
}

// CheckAvailability answers whether a quantity could be reserved now
func (s *MovementService) CheckAvailability(ctx context.Context, req StockKeyRequest, quantity decimal.Decimal) (*AvailabilityResponse, error) {
	key := req.ToKey()
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_INPUT", "Quantity must be positive")
	}

	resp := &AvailabilityResponse{
		Requested:         quantity,
		OnHand:            decimal.Zero,
		Reserved:          decimal.Zero,
		AvailableQuantity: decimal.Zero,
	}
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		snapshot, err := repos.Snapshots().FindByKey(ctx, key)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil // unknown key means zero available
			}
			return err
		}
		resp.OnHand = snapshot.Quantity
		resp.Reserved = snapshot.ReservedQuantity
		resp.AvailableQuantity = snapshot.AvailableQuantity()
		resp.Available = snapshot.AvailableQuantity().GreaterThanOrEqual(quantity)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ListBelowReorderLevel returns snapshots at or below their threshold
func (s *MovementService) ListBelowReorderLevel(ctx context.Context, warehouseID *uuid.UUID) ([]SnapshotResponse, error) {
	var out []SnapshotResponse
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		snapshots, err := repos.Snapshots().FindBelowReorderLevel(ctx, warehouseID)
		if err != nil {
			return err
		}
		out = make([]SnapshotResponse, 0, len(snapshots))
		for i := range snapshots {
			out = append(out, ToSnapshotResponse(&snapshots[i]))
		}
		return nil
	})
	return out, err
}

// Valuation returns on-hand value grouped by warehouse
func (s *MovementService) Valuation(ctx context.Context, warehouseID *uuid.UUID) ([]inventory.WarehouseValuation, error) {
	var out []inventory.WarehouseValuation
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		rows, err := repos.Snapshots().ValuationByWarehouse(ctx, warehouseID)
		if err != nil {
			return err
		}
		out = rows
		return nil
	})
	return out, err
}

// VerifyLedger recomputes on-hand from the ledger and compares it with
// the snapshot, reporting drift.
func (s *MovementService) VerifyLedger(ctx context.Context, snapshotID uuid.UUID) (*LedgerCheckResponse, error) {
	var resp *LedgerCheckResponse
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		snapshot, err := repos.Snapshots().FindByID(ctx, snapshotID)
		if err != nil {
			return err
		}
		ledgerQty, err := repos.Transactions().SumSignedQuantity(ctx, snapshotID)
		if err != nil {
			return err
		}
		resp = &LedgerCheckResponse{
			SnapshotID:       snapshotID,
			SnapshotQuantity: snapshot.Quantity,
			LedgerQuantity:   ledgerQty,
			Consistent:       snapshot.Quantity.Equal(ledgerQty),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *MovementService) checkPermission(ctx context.Context, actor Actor, permission string) error {
	if s.permissions == nil {
		return nil
	}
	return s.permissions.Check(ctx, actor, permission)
}

// validateReferences checks product/warehouse/location existence via
// the wired lookups. Lookups are optional; nil means trust the caller.
func (s *MovementService) validateReferences(ctx context.Context, key inventory.StockKey) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if s.products != nil {
		ok, err := s.products.Exists(ctx, key.ProductID)
		if err != nil {
			return err
		}
		if !ok {
			return shared.NewDomainError("NOT_FOUND", "Product not found")
		}
	}
	if s.warehouses != nil {
		ok, err := s.warehouses.Exists(ctx, key.WarehouseID)
		if err != nil {
			return err
		}
		if !ok {
			return shared.NewDomainError("NOT_FOUND", "Warehouse not found")
		}
	}
	if s.locations != nil {
		ok, err := s.locations.ExistsInWarehouse(ctx, key.WarehouseID, key.LocationID)
		if err != nil {
			return err
		}
		if !ok {
			return shared.NewDomainError("NOT_FOUND", "Location not found in warehouse")
		}
	}
	return nil
}

// publishDomainEvents publishes and clears the aggregate's pending events
func (s *MovementService) publishDomainEvents(ctx context.Context, root shared.AggregateRoot) {
	if s.eventPublisher == nil {
		return
	}
	events := root.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	// Publish errors are logged by the event bus, not propagated
	_ = s.eventPublisher.Publish(ctx, events...)
	root.ClearDomainEvents()
}

func (s *MovementService) recordAudit(ctx context.Context, actor Actor, action string, entityID uuid.UUID, detail string, before, after any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		Actor:      actor,
		Action:     action,
		EntityType: "InventoryTransaction",
		EntityID:   entityID,
		Detail:     detail,
		Before:     before,
		After:      after,
		OccurredAt: time.Now(),
	})
}

// parseReferenceType maps an optional request string to a domain
// reference type, falling back when the request leaves it empty.
func parseReferenceType(raw string, fallback inventory.ReferenceType) (inventory.ReferenceType, error) {
	if raw == "" {
		return fallback, nil
	}
	rt := inventory.ReferenceType(raw)
	if !rt.IsValid() {
		return "", shared.NewDomainError("INVALID_INPUT", "Invalid reference type")
	}
	return rt, nil
}
