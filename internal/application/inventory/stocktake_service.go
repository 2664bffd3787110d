package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stockledger/backend/internal/domain/inventory"
	"github.com/stockledger/backend/internal/domain/shared"
)

// StocktakeService drives the physical count workflow from creation
// through reconciliation. Reconciliation posts every adjustment and the
// status change inside one transaction: either all differences hit the
// ledger or none do.
type StocktakeService struct {
	scope          TransactionScope
	keys           *KeyedMutex
	logger         *zap.Logger
	eventPublisher shared.EventPublisher
	permissions    PermissionGate
	audit          AuditSink
	warehouses     WarehouseLookup
	users          UserLookup
	overagePolicy  inventory.OverageCostPolicy
}

// NewStocktakeService creates a StocktakeService
func NewStocktakeService(scope TransactionScope, keys *KeyedMutex, logger *zap.Logger) *StocktakeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StocktakeService{
		scope:         scope,
		keys:          keys,
		logger:        logger,
		overagePolicy: inventory.OverageCostCurrentAverage,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *StocktakeService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetPermissionGate wires the permission checker (optional)
func (s *StocktakeService) SetPermissionGate(gate PermissionGate) {
	s.permissions = gate
}

// SetAuditSink wires the audit trail sink (optional)
func (s *StocktakeService) SetAuditSink(sink AuditSink) {
	s.audit = sink
}

// SetWarehouseLookup wires warehouse existence checks (optional)
func (s *StocktakeService) SetWarehouseLookup(lookup WarehouseLookup) {
	s.warehouses = lookup
}

// SetUserLookup wires actor existence checks (optional)
func (s *StocktakeService) SetUserLookup(lookup UserLookup) {
	s.users = lookup
}

// SetOveragePolicy configures how overage adjustments are costed
func (s *StocktakeService) SetOveragePolicy(policy inventory.OverageCostPolicy) error {
	if !policy.IsValid() {
		return shared.NewDomainError("INVALID_INPUT", "Unknown overage cost policy")
	}
	s.overagePolicy = policy
	return nil
}

// Create opens a stocktake over a warehouse, freezing the system
// quantity of every in-scope snapshot.
func (s *StocktakeService) Create(ctx context.Context, actor Actor, req CreateStocktakeRequest) (*StocktakeResponse, error) {
	if err := s.checkPermission(ctx, actor, PermissionStocktakeManage); err != nil {
		return nil, err
	}
	if err := s.checkActor(ctx, actor); err != nil {
		return nil, err
	}
	if req.WarehouseID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Warehouse ID cannot be empty")
	}
	if s.warehouses != nil {
		ok, err := s.warehouses.Exists(ctx, req.WarehouseID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, shared.NewDomainError("NOT_FOUND", "Warehouse not found")
		}
	}

	productScope := make(map[uuid.UUID]struct{}, len(req.ProductIDs))
	for _, id := range req.ProductIDs {
		productScope[id] = struct{}{}
	}

	var resp *StocktakeResponse
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		snapshots, err := repos.Snapshots().FindByWarehouse(ctx, req.WarehouseID)
		if err != nil {
			return err
		}

		prefix := "ST-" + time.Now().Format("20060102")
		seq, err := repos.Stocktakes().NextSequence(ctx, prefix)
		if err != nil {
			return err
		}
		number := fmt.Sprintf("%s-%04d", prefix, seq)

		st, err := inventory.NewStocktakeRequest(number, req.WarehouseID, req.Description)
		if err != nil {
			return err
		}
		st.CreatedBy = &actor.UserID

		for i := range snapshots {
			if len(productScope) > 0 {
				if _, ok := productScope[snapshots[i].ProductID]; !ok {
					continue
				}
			}
			if req.LocationID != nil && snapshots[i].LocationID != *req.LocationID {
				continue
			}
			if err := st.AddDetail(&snapshots[i]); err != nil {
				return err
			}
		}
		if len(st.Details) == 0 {
			return shared.NewDomainError("INVALID_INPUT", "No inventory matches the stocktake scope")
		}

		if err := repos.Stocktakes().Save(ctx, st); err != nil {
			return err
		}
		r := ToStocktakeResponse(st, true)
		resp = &r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor, "stocktake.create", resp.ID, resp.StocktakeNumber, nil, resp)
	s.logger.Info("stocktake created",
		zap.String("number", resp.StocktakeNumber),
		zap.String("warehouse_id", req.WarehouseID.String()),
		zap.Int("details", resp.DetailCount))
	return resp, nil
}

// Update rescopes a pending stocktake: the description is replaced and
// the detail set is rebuilt from current snapshots under the new
// product and location scope. Recorded counts do not survive a rescope,
// which is why this is only allowed before counting starts.
func (s *StocktakeService) Update(ctx context.Context, actor Actor, stocktakeID uuid.UUID, req UpdateStocktakeRequest) (*StocktakeResponse, error) {
	if err := s.checkPermission(ctx, actor, PermissionStocktakeManage); err != nil {
		return nil, err
	}

	productScope := make(map[uuid.UUID]struct{}, len(req.ProductIDs))
	for _, id := range req.ProductIDs {
		productScope[id] = struct{}{}
	}

	var resp, before *StocktakeResponse
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		st, err := repos.Stocktakes().FindByID(ctx, stocktakeID)
		if err != nil {
			return err
		}
		b := ToStocktakeResponse(st, true)
		before = &b

		snapshots, err := repos.Snapshots().FindByWarehouse(ctx, st.WarehouseID)
		if err != nil {
			return err
		}
		scoped := make([]*inventory.InventorySnapshot, 0, len(snapshots))
		for i := range snapshots {
			if len(productScope) > 0 {
				if _, ok := productScope[snapshots[i].ProductID]; !ok {
					continue
				}
			}
			if req.LocationID != nil && snapshots[i].LocationID != *req.LocationID {
				continue
			}
			scoped = append(scoped, &snapshots[i])
		}
		if len(scoped) == 0 {
			return shared.NewDomainError("INVALID_INPUT", "No inventory matches the stocktake scope")
		}

		if err := st.ReplaceDetails(scoped); err != nil {
			return err
		}
		st.Description = req.Description

		if err := repos.Stocktakes().Update(ctx, st); err != nil {
			return err
		}
		r := ToStocktakeResponse(st, true)
		resp = &r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor, "stocktake.update", resp.ID, resp.StocktakeNumber, before, resp)
	s.logger.Info("stocktake rescoped",
		zap.String("number", resp.StocktakeNumber),
		zap.Int("details", resp.DetailCount))
	return resp, nil
}

// Delete removes a stocktake that never left PENDING. Anything that
// entered counting keeps its record; cancellation is the way out once
// counting has started.
func (s *StocktakeService) Delete(ctx context.Context, actor Actor, stocktakeID uuid.UUID) error {
	if err := s.checkPermission(ctx, actor, PermissionStocktakeManage); err != nil {
		return err
	}

	var number string
	var before *StocktakeResponse
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		st, err := repos.Stocktakes().FindByID(ctx, stocktakeID)
		if err != nil {
			return err
		}
		if st.Status != inventory.StocktakePending {
			return shared.NewDomainError("INVALID_STATUS",
				fmt.Sprintf("Cannot delete a stocktake in status %s", st.Status))
		}
		number = st.StocktakeNumber
		b := ToStocktakeResponse(st, true)
		before = &b
		return repos.Stocktakes().Delete(ctx, stocktakeID)
	})
	if err != nil {
		return err
	}

	s.recordAudit(ctx, actor, "stocktake.delete", stocktakeID, number, before, nil)
	s.logger.Info("stocktake deleted",
		zap.String("number", number),
		zap.String("stocktake_id", stocktakeID.String()))
	return nil
}

// Start begins counting
func (s *StocktakeService) Start(ctx context.Context, actor Actor, stocktakeID uuid.UUID) (*StocktakeResponse, error) {
	if err := s.checkPermission(ctx, actor, PermissionStocktakeManage); err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, stocktakeID, "stocktake.start", func(st *inventory.StocktakeRequest) error {
		return st.Start()
	})
}

// RecordCount stores the physical count for one detail line
func (s *StocktakeService) RecordCount(ctx context.Context, actor Actor, stocktakeID uuid.UUID, req RecordCountRequest) (*StocktakeResponse, error) {
	if err := s.checkPermission(ctx, actor, PermissionStocktakeCount); err != nil {
		return nil, err
	}
	if err := s.checkActor(ctx, actor); err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, stocktakeID, "stocktake.count", func(st *inventory.StocktakeRequest) error {
		return st.RecordCount(req.DetailID, req.CountedQuantity, actor.UserID, req.Notes)
	})
}

// FinishCounting closes the counting phase once every line has a count
func (s *StocktakeService) FinishCounting(ctx context.Context, actor Actor, stocktakeID uuid.UUID) (*StocktakeResponse, error) {
	if err := s.checkPermission(ctx, actor, PermissionStocktakeCount); err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, stocktakeID, "stocktake.finish_counting", func(st *inventory.StocktakeRequest) error {
		return st.FinishCounting()
	})
}

// Reconcile posts one adjustment movement per difference and marks the
// stocktake reconciled, all in a single transaction. Overages come in
// under the configured cost policy; shortages leave at FIFO cost.
func (s *StocktakeService) Reconcile(ctx context.Context, actor Actor, stocktakeID uuid.UUID) (*StocktakeResponse, error) {
	if err := s.checkPermission(ctx, actor, PermissionStocktakeManage); err != nil {
		return nil, err
	}

	// Pre-read to learn which stock keys need locking. Status and
	// differences are re-validated inside the transaction.
	keys, err := s.differenceKeys(ctx, stocktakeID)
	if err != nil {
		return nil, err
	}
	unlock := s.keys.LockMany(keys...)
	defer unlock()

	var resp, before *StocktakeResponse
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		st, err := repos.Stocktakes().FindByID(ctx, stocktakeID)
		if err != nil {
			return err
		}
		if st.Status != inventory.StocktakeCounted {
			return shared.NewDomainError("INVALID_STATUS",
				fmt.Sprintf("Cannot reconcile a stocktake in status %s", st.Status))
		}
		b := ToStocktakeResponse(st, true)
		before = &b

		snapshots := make([]*inventory.InventorySnapshot, 0)
		for _, d := range st.DifferenceDetails() {
			diff := d.Difference()
			in := movementInput{
				key:      d.Key(),
				refType:  inventory.ReferenceStocktake,
				refID:    st.StocktakeNumber,
				notes:    d.Notes,
				operator: &actor.UserID,
			}

			var tx *inventory.InventoryTransaction
			var snapshot *inventory.InventorySnapshot
			if diff.IsPositive() {
				// Shortage: the shelf holds less than the book
				in.movement = inventory.MovementAdjustmentOut
				in.quantity = diff
				tx, snapshot, err = applyIssue(ctx, repos, in)
			} else {
				// Overage: priced by the configured cost policy
				in.movement = inventory.MovementAdjustmentIn
				in.quantity = diff.Neg()
				in.unitCost, err = resolveAdjustmentInCost(ctx, repos, d.Key(), s.overagePolicy)
				if err != nil {
					return err
				}
				tx, snapshot, err = applyReceipt(ctx, repos, in)
			}
			if err != nil {
				return err
			}
			if err := st.LinkAdjustment(d.ID, tx.ID); err != nil {
				return err
			}
			snapshots = append(snapshots, snapshot)
		}

		if err := st.MarkReconciled(); err != nil {
			return err
		}
		if err := repos.Stocktakes().Update(ctx, st); err != nil {
			return err
		}

		for _, snapshot := range snapshots {
			s.publishDomainEvents(ctx, snapshot)
		}
		s.publishDomainEvents(ctx, st)

		r := ToStocktakeResponse(st, true)
		resp = &r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor, "stocktake.reconcile", resp.ID,
		fmt.Sprintf("%s: %d adjustments", resp.StocktakeNumber, resp.DifferenceCount),
		before, resp)
	s.logger.Info("stocktake reconciled",
		zap.String("number", resp.StocktakeNumber),
		zap.Int("adjustments", resp.DifferenceCount),
		zap.String("net_difference", resp.NetDifference.String()))
	return resp, nil
}

// Complete closes the stocktake
func (s *StocktakeService) Complete(ctx context.Context, actor Actor, stocktakeID uuid.UUID) (*StocktakeResponse, error) {
	if err := s.checkPermission(ctx, actor, PermissionStocktakeManage); err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, stocktakeID, "stocktake.complete", func(st *inventory.StocktakeRequest) error {
		return st.Complete()
	})
}

// Cancel abandons the stocktake before reconciliation
func (s *StocktakeService) Cancel(ctx context.Context, actor Actor, stocktakeID uuid.UUID, req CancelStocktakeRequest) (*StocktakeResponse, error) {
	if err := s.checkPermission(ctx, actor, PermissionStocktakeManage); err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, stocktakeID, "stocktake.cancel", func(st *inventory.StocktakeRequest) error {
		return st.Cancel(req.Reason)
	})
}

// Get returns one stocktake with its details
func (s *StocktakeService) Get(ctx context.Context, stocktakeID uuid.UUID) (*StocktakeResponse, error) {
	var resp *StocktakeResponse
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		st, err := repos.Stocktakes().FindByID(ctx, stocktakeID)
		if err != nil {
			return err
		}
		r := ToStocktakeResponse(st, true)
		resp = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetByNumber returns one stocktake looked up by its number
func (s *StocktakeService) GetByNumber(ctx context.Context, number string) (*StocktakeResponse, error) {
	var resp *StocktakeResponse
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		st, err := repos.Stocktakes().FindByNumber(ctx, number)
		if err != nil {
			return err
		}
		r := ToStocktakeResponse(st, true)
		resp = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// List returns stocktakes matching the filter, without details
func (s *StocktakeService) List(ctx context.Context, filter inventory.StocktakeFilter) (shared.Paginated[StocktakeResponse], error) {
	var page shared.Paginated[StocktakeResponse]
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		result, err := repos.Stocktakes().List(ctx, filter)
		if err != nil {
			return err
		}
		items := make([]StocktakeResponse, 0, len(result.Items))
		for i := range result.Items {
			items = append(items, ToStocktakeResponse(&result.Items[i], false))
		}
		page = shared.NewPaginated(items, result.Total, result.Page, result.PageSize)
		return nil
	})
	return page, err
}

// mutate is the shared load-modify-save path for status transitions
func (s *StocktakeService) mutate(ctx context.Context, actor Actor, stocktakeID uuid.UUID, action string, fn func(*inventory.StocktakeRequest) error) (*StocktakeResponse, error) {
	var resp, before *StocktakeResponse
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		st, err := repos.Stocktakes().FindByID(ctx, stocktakeID)
		if err != nil {
			return err
		}
		b := ToStocktakeResponse(st, true)
		before = &b
		if err := fn(st); err != nil {
			return err
		}
		if err := repos.Stocktakes().Update(ctx, st); err != nil {
			return err
		}
		s.publishDomainEvents(ctx, st)
		r := ToStocktakeResponse(st, true)
		resp = &r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor, action, resp.ID, resp.StocktakeNumber, before, resp)
	s.logger.Info("stocktake updated",
		zap.String("action", action),
		zap.String("number", resp.StocktakeNumber),
		zap.String("status", resp.Status))
	return resp, nil
}

// differenceKeys collects the lock keys of all difference lines
func (s *StocktakeService) differenceKeys(ctx context.Context, stocktakeID uuid.UUID) ([]string, error) {
	var keys []string
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		st, err := repos.Stocktakes().FindByID(ctx, stocktakeID)
		if err != nil {
			return err
		}
		for _, d := range st.DifferenceDetails() {
			keys = append(keys, d.Key().String())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// checkActor validates that the acting user exists when a lookup is wired
func (s *StocktakeService) checkActor(ctx context.Context, actor Actor) error {
	if s.users == nil {
		return nil
	}
	ok, err := s.users.Exists(ctx, actor.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return shared.NewDomainError("NOT_FOUND", "User not found")
	}
	return nil
}

func (s *StocktakeService) checkPermission(ctx context.Context, actor Actor, permission string) error {
	if s.permissions == nil {
		return nil
	}
	return s.permissions.Check(ctx, actor, permission)
}

func (s *StocktakeService) publishDomainEvents(ctx context.Context, root shared.AggregateRoot) {
	if s.eventPublisher == nil {
		return
	}
	events := root.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	_ = s.eventPublisher.Publish(ctx, events...)
	root.ClearDomainEvents()
}

func (s *StocktakeService) recordAudit(ctx context.Context, actor Actor, action string, entityID uuid.UUID, detail string, before, after any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		Actor:      actor,
		Action:     action,
		EntityType: "StocktakeRequest",
		EntityID:   entityID,
		Detail:     detail,
		Before:     before,
		After:      after,
		OccurredAt: time.Now(),
	})
}
