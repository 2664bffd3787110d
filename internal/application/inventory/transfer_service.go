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

// TransferService moves stock between warehouse locations. A transfer
// is one atomic transaction containing both legs: the outbound leg
// consumes the source's FIFO layers and the inbound leg receives at
// the consumed weighted cost, so no value is created or destroyed.
type TransferService struct {
	scope          TransactionScope
	keys           *KeyedMutex
	logger         *zap.Logger
	eventPublisher shared.EventPublisher
	permissions    PermissionGate
	audit          AuditSink
}

// NewTransferService creates a TransferService
func NewTransferService(scope TransactionScope, keys *KeyedMutex, logger *zap.Logger) *TransferService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransferService{
		scope:  scope,
		keys:   keys,
		logger: logger,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *TransferService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetPermissionGate wires the permission checker (optional)
func (s *TransferService) SetPermissionGate(gate PermissionGate) {
	s.permissions = gate
}

// SetAuditSink wires the audit trail sink (optional)
func (s *TransferService) SetAuditSink(sink AuditSink) {
	s.audit = sink
}

// Transfer moves stock from one location to another
func (s *TransferService) Transfer(ctx context.Context, actor Actor, req TransferStockRequest) (*TransferResult, error) {
	if s.permissions != nil {
		if err := s.permissions.Check(ctx, actor, PermissionStockTransfer); err != nil {
			return nil, err
		}
	}

	source := req.SourceKey()
	dest := req.DestinationKey()
	if err := source.Validate(); err != nil {
		return nil, err
	}
	if err := dest.Validate(); err != nil {
		return nil, err
	}
	if source == dest {
		return nil, shared.NewDomainError("INVALID_INPUT", "Source and destination must differ")
	}

	refID := req.ReferenceID
	if refID == "" {
		refID = "TRF-" + uuid.New().String()[:8]
	}

	// Both keys locked in sorted order; two opposing transfers on the
	// same pair of keys cannot deadlock.
	unlock := s.keys.LockMany(source.String(), dest.String())
	defer unlock()

	var result *TransferResult
	var beforeSource, beforeDest *SnapshotResponse
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		if beforeSource, err = snapshotBefore(ctx, repos, source); err != nil {
			return err
		}
		if beforeDest, err = snapshotBefore(ctx, repos, dest); err != nil {
			return err
		}

		outTx, outSnap, err := applyIssue(ctx, repos, movementInput{
			key:      source,
			movement: inventory.MovementTransferOut,
			quantity: req.Quantity,
			refType:  inventory.ReferenceTransfer,
			refID:    refID,
			notes:    req.Notes,
			operator: &actor.UserID,
		})
		if err != nil {
			return err
		}

		// The inbound leg carries the weighted cost of what actually
		// left the source, plus its lot dates.
		inTx, inSnap, err := applyReceipt(ctx, repos, movementInput{
			key:      dest,
			movement: inventory.MovementTransferIn,
			quantity: req.Quantity,
			unitCost: outTx.UnitCost,
			refType:  inventory.ReferenceTransfer,
			refID:    refID,
			notes:    req.Notes,
			operator: &actor.UserID,
			mfgDate:  outSnap.ManufactureDate,
			expDate:  outSnap.ExpirationDate,
		})
		if err != nil {
			return err
		}

		inSnap.AddDomainEvent(inventory.NewStockTransferredEvent(inSnap, source, req.Quantity, outTx.UnitCost))

		result = &TransferResult{
			Outbound: MovementResult{
				Transaction: ToTransactionResponse(outTx),
				Snapshot:    ToSnapshotResponse(outSnap),
			},
			Inbound: MovementResult{
				Transaction: ToTransactionResponse(inTx),
				Snapshot:    ToSnapshotResponse(inSnap),
			},
		}
		s.publishDomainEvents(ctx, outSnap)
		s.publishDomainEvents(ctx, inSnap)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.audit != nil {
		s.audit.Record(ctx, AuditEntry{
			Actor:      actor,
			Action:     "inventory.transfer",
			EntityType: "InventoryTransaction",
			EntityID:   result.Outbound.Transaction.ID,
			Detail: fmt.Sprintf("%s x %s from %s to %s",
				req.ProductID, req.Quantity, req.FromWarehouseID, req.ToWarehouseID),
			Before:     []*SnapshotResponse{beforeSource, beforeDest},
			After:      []SnapshotResponse{result.Outbound.Snapshot, result.Inbound.Snapshot},
			OccurredAt: time.Now(),
		})
	}
	s.logger.Info("stock transferred",
		zap.String("product_id", req.ProductID.String()),
		zap.String("from_warehouse", req.FromWarehouseID.String()),
		zap.String("to_warehouse", req.ToWarehouseID.String()),
		zap.String("quantity", req.Quantity.String()),
		zap.String("reference", refID))
	return result, nil
}

func (s *TransferService) publishDomainEvents(ctx context.Context, root shared.AggregateRoot) {
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
