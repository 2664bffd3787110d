package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockledger/backend/internal/domain/inventory"
	"github.com/stockledger/backend/internal/domain/shared"
)

// GormSnapshotRepository implements inventory.SnapshotRepository using GORM
type GormSnapshotRepository struct {
	db *gorm.DB
}

// NewGormSnapshotRepository creates a new GormSnapshotRepository
func NewGormSnapshotRepository(db *gorm.DB) *GormSnapshotRepository {
	return &GormSnapshotRepository{db: db}
}

// Save inserts a new snapshot
func (r *GormSnapshotRepository) Save(ctx context.Context, snapshot *inventory.InventorySnapshot) error {
	return r.db.WithContext(ctx).Create(snapshot).Error
}

// Update persists a modified snapshot with an optimistic lock on Version.
// The aggregate increments Version on every mutation, so the row must
// still carry the previous version for the update to apply.
func (r *GormSnapshotRepository) Update(ctx context.Context, snapshot *inventory.InventorySnapshot) error {
	result := r.db.WithContext(ctx).
		Model(snapshot).
		Where("id = ? AND version = ?", snapshot.ID, snapshot.Version-1).
		Updates(map[string]interface{}{
			"quantity":          snapshot.Quantity,
			"reserved_quantity": snapshot.ReservedQuantity,
			"unit_cost":         snapshot.UnitCost,
			"reorder_level":     snapshot.ReorderLevel,
			"reorder_quantity":  snapshot.ReorderQuantity,
			"manufacture_date":  snapshot.ManufactureDate,
			"expiration_date":   snapshot.ExpirationDate,
			"version":           snapshot.Version,
			"updated_at":        snapshot.UpdatedAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// FindByID finds a snapshot by its ID
func (r *GormSnapshotRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.InventorySnapshot, error) {
	var snapshot inventory.InventorySnapshot
	if err := r.db.WithContext(ctx).First(&snapshot, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &snapshot, nil
}

// FindByKey finds the snapshot for one stock key
func (r *GormSnapshotRepository) FindByKey(ctx context.Context, key inventory.StockKey) (*inventory.InventorySnapshot, error) {
	var snapshot inventory.InventorySnapshot
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND warehouse_id = ? AND location_id = ? AND lot_number = ? AND serial_number = ?",
			key.ProductID, key.WarehouseID, key.LocationID, key.LotNumber, key.SerialNumber).
		First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &snapshot, nil
}

// FindByWarehouse finds all snapshots in a warehouse
func (r *GormSnapshotRepository) FindByWarehouse(ctx context.Context, warehouseID uuid.UUID) ([]inventory.InventorySnapshot, error) {
	var snapshots []inventory.InventorySnapshot
	if err := r.db.WithContext(ctx).
		Where("warehouse_id = ?", warehouseID).
		Order("product_id ASC, location_id ASC").
		Find(&snapshots).Error; err != nil {
		return nil, err
	}
	return snapshots, nil
}

// List returns a page of snapshots matching the filter
func (r *GormSnapshotRepository) List(ctx context.Context, filter inventory.SnapshotFilter) (shared.Paginated[inventory.InventorySnapshot], error) {
	query := r.db.WithContext(ctx).Model(&inventory.InventorySnapshot{})
	query = applySnapshotFilter(query, filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return shared.Paginated[inventory.InventorySnapshot]{}, err
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	orderBy := ValidateSortField(filter.OrderBy, SnapshotSortFields, "updated_at")
	orderDir := ValidateSortOrder(filter.OrderDir)

	var snapshots []inventory.InventorySnapshot
	err := query.
		Order(orderBy + " " + orderDir).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&snapshots).Error
	if err != nil {
		return shared.Paginated[inventory.InventorySnapshot]{}, err
	}

	return shared.NewPaginated(snapshots, total, page, pageSize), nil
}

// FindBelowReorderLevel finds snapshots at or below their reorder threshold
func (r *GormSnapshotRepository) FindBelowReorderLevel(ctx context.Context, warehouseID *uuid.UUID) ([]inventory.InventorySnapshot, error) {
	query := r.db.WithContext(ctx).
		Where("reorder_level > 0 AND quantity <= reorder_level")
	if warehouseID != nil {
		query = query.Where("warehouse_id = ?", *warehouseID)
	}

	var snapshots []inventory.InventorySnapshot
	if err := query.Order("warehouse_id ASC, product_id ASC").Find(&snapshots).Error; err != nil {
		return nil, err
	}
	return snapshots, nil
}

// ValuationByWarehouse aggregates on-hand quantity and value per warehouse
func (r *GormSnapshotRepository) ValuationByWarehouse(ctx context.Context, warehouseID *uuid.UUID) ([]inventory.WarehouseValuation, error) {
	query := r.db.WithContext(ctx).
		Model(&inventory.InventorySnapshot{}).
		Select("warehouse_id, COUNT(DISTINCT product_id) AS product_count, COALESCE(SUM(quantity), 0) AS total_quantity, COALESCE(SUM(quantity * unit_cost), 0) AS total_value").
		Group("warehouse_id")
	if warehouseID != nil {
		query = query.Where("warehouse_id = ?", *warehouseID)
	}

	var rows []inventory.WarehouseValuation
	if err := query.Order("warehouse_id ASC").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// applySnapshotFilter applies the typed filter fields to the query
func applySnapshotFilter(query *gorm.DB, filter inventory.SnapshotFilter) *gorm.DB {
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.WarehouseID != nil {
		query = query.Where("warehouse_id = ?", *filter.WarehouseID)
	}
	if filter.LocationID != nil {
		query = query.Where("location_id = ?", *filter.LocationID)
	}
	if filter.LotNumber != nil {
		query = query.Where("lot_number = ?", *filter.LotNumber)
	}
	if filter.BelowReorderLevel {
		query = query.Where("reorder_level > 0 AND quantity <= reorder_level")
	}
	if filter.ExpiringBefore != nil {
		query = query.Where("expiration_date IS NOT NULL AND expiration_date < ?", *filter.ExpiringBefore)
	}
	return query
}

// normalizePage clamps paging inputs to sane values
func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 200 {
		pageSize = 200
	}
	return page, pageSize
}

var _ inventory.SnapshotRepository = (*GormSnapshotRepository)(nil)
