package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Permission names checked before inventory operations
const (
	PermissionStockReceive    = "inventory.stock.receive"
	PermissionStockIssue      = "inventory.stock.issue"
	PermissionStockAdjust     = "inventory.stock.adjust"
	PermissionStockTransfer   = "inventory.stock.transfer"
	PermissionStockReserve    = "inventory.stock.reserve"
	PermissionStocktakeManage = "inventory.stocktake.manage"
	PermissionStocktakeCount  = "inventory.stocktake.count"
	PermissionInventoryRead   = "inventory.read"
)

// Actor is the authenticated user performing an operation
type Actor struct {
	UserID uuid.UUID
	Name   string
}

// ProductLookup resolves product references from the catalog context.
// Inventory does not own product data; it only needs existence and a
// flag for whether the product tracks lots or serials.
type ProductLookup interface {
	Exists(ctx context.Context, productID uuid.UUID) (bool, error)
}

// WarehouseLookup resolves warehouse references
type WarehouseLookup interface {
	Exists(ctx context.Context, warehouseID uuid.UUID) (bool, error)
}

// LocationLookup resolves storage locations within a warehouse
type LocationLookup interface {
	ExistsInWarehouse(ctx context.Context, warehouseID, locationID uuid.UUID) (bool, error)
}

// UserLookup validates user references and resolves display names,
// used for requestedBy/countedBy checks and to fill in audit entries
// when the caller only supplied an ID
type UserLookup interface {
	Exists(ctx context.Context, userID uuid.UUID) (bool, error)
	DisplayName(ctx context.Context, userID uuid.UUID) (string, error)
}

// PermissionGate decides whether an actor may perform an operation.
// Implementations return shared.ErrForbidden when access is denied.
type PermissionGate interface {
	Check(ctx context.Context, actor Actor, permission string) error
}

// AuditEntry is one record in the audit trail. Before and After carry
// the mutated record's response DTO on either side of the change; nil
// when the operation created (no before) or removed (no after) it.
type AuditEntry struct {
	Actor      Actor
	Action     string
	EntityType string
	EntityID   uuid.UUID
	Detail     string
	Before     any
	After      any
	OccurredAt time.Time
}

// AuditSink receives audit entries for completed operations. Sinks
// must not fail the business operation; errors are logged and dropped.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry)
}
