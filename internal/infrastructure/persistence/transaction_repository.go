package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/stockledger/backend/internal/domain/inventory"
	"github.com/stockledger/backend/internal/domain/shared"
)

// GormTransactionRepository implements inventory.TransactionRepository
// using GORM. The ledger is append-only; this type deliberately has no
// update or delete methods.
type GormTransactionRepository struct {
	db *gorm.DB
}

// NewGormTransactionRepository creates a new GormTransactionRepository
func NewGormTransactionRepository(db *gorm.DB) *GormTransactionRepository {
	return &GormTransactionRepository{db: db}
}

// Save appends a ledger entry
func (r *GormTransactionRepository) Save(ctx context.Context, tx *inventory.InventoryTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

// FindByID finds a ledger entry by its ID
func (r *GormTransactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.InventoryTransaction, error) {
	var tx inventory.InventoryTransaction
	if err := r.db.WithContext(ctx).First(&tx, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &tx, nil
}

// FindBySnapshot returns the full ledger for one snapshot, oldest first
func (r *GormTransactionRepository) FindBySnapshot(ctx context.Context, snapshotID uuid.UUID) ([]inventory.InventoryTransaction, error) {
	var txs []inventory.InventoryTransaction
	if err := r.db.WithContext(ctx).
		Where("snapshot_id = ?", snapshotID).
		Order("transaction_date ASC, created_at ASC").
		Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}

// FindByReference returns all movements caused by one source document
func (r *GormTransactionRepository) FindByReference(ctx context.Context, refType inventory.ReferenceType, refID string) ([]inventory.InventoryTransaction, error) {
	var txs []inventory.InventoryTransaction
	if err := r.db.WithContext(ctx).
		Where("reference_type = ? AND reference_id = ?", refType, refID).
		Order("transaction_date ASC, created_at ASC").
		Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}

// List returns a page of ledger entries matching the filter
func (r *GormTransactionRepository) List(ctx context.Context, filter inventory.TransactionFilter) (shared.Paginated[inventory.InventoryTransaction], error) {
	query := r.db.WithContext(ctx).Model(&inventory.InventoryTransaction{})
	query = applyTransactionFilter(query, filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return shared.Paginated[inventory.InventoryTransaction]{}, err
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	orderBy := ValidateSortField(filter.OrderBy, TransactionSortFields, "transaction_date")
	orderDir := ValidateSortOrder(filter.OrderDir)

	var txs []inventory.InventoryTransaction
	err := query.
		Order(orderBy + " " + orderDir).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&txs).Error
	if err != nil {
		return shared.Paginated[inventory.InventoryTransaction]{}, err
	}

	return shared.NewPaginated(txs, total, page, pageSize), nil
}

// SumSignedQuantity recomputes on-hand quantity from the ledger for one
// snapshot. Inbound rows count positive, outbound negative, reservation
// rows zero. This is the reconciliation check against the snapshot.
func (r *GormTransactionRepository) SumSignedQuantity(ctx context.Context, snapshotID uuid.UUID) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	err := r.db.WithContext(ctx).
		Model(&inventory.InventoryTransaction{}).
		Select(`COALESCE(SUM(CASE
			WHEN type IN ('GOODS_RECEIPT', 'ADJUSTMENT_IN', 'TRANSFER_IN') THEN quantity
			WHEN type IN ('GOODS_ISSUE', 'ADJUSTMENT_OUT', 'TRANSFER_OUT') THEN -quantity
			ELSE 0
		END), 0) AS total`).
		Where("snapshot_id = ?", snapshotID).
		Scan(&result).Error
	if err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}

// applyTransactionFilter applies the typed filter fields to the query
func applyTransactionFilter(query *gorm.DB, filter inventory.TransactionFilter) *gorm.DB {
	if filter.SnapshotID != nil {
		query = query.Where("snapshot_id = ?", *filter.SnapshotID)
	}
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.WarehouseID != nil {
		query = query.Where("warehouse_id = ?", *filter.WarehouseID)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.ReferenceType != nil {
		query = query.Where("reference_type = ?", *filter.ReferenceType)
	}
	if filter.ReferenceID != nil {
		query = query.Where("reference_id = ?", *filter.ReferenceID)
	}
	if filter.DateFrom != nil {
		query = query.Where("transaction_date >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("transaction_date <= ?", *filter.DateTo)
	}
	return query
}

var _ inventory.TransactionRepository = (*GormTransactionRepository)(nil)
