package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockledger/backend/internal/domain/inventory"
	"github.com/stockledger/backend/internal/domain/shared"
)

// GormCostLayerRepository implements inventory.CostLayerRepository using GORM
type GormCostLayerRepository struct {
	db *gorm.DB
}

// NewGormCostLayerRepository creates a new GormCostLayerRepository
func NewGormCostLayerRepository(db *gorm.DB) *GormCostLayerRepository {
	return &GormCostLayerRepository{db: db}
}

// Save inserts a new cost layer
func (r *GormCostLayerRepository) Save(ctx context.Context, layer *inventory.CostLayer) error {
	return r.db.WithContext(ctx).Create(layer).Error
}

// Update persists consumption changes to a layer
func (r *GormCostLayerRepository) Update(ctx context.Context, layer *inventory.CostLayer) error {
	result := r.db.WithContext(ctx).
		Model(layer).
		Where("id = ?", layer.ID).
		Updates(map[string]interface{}{
			"quantity":   layer.Quantity,
			"exhausted":  layer.Exhausted,
			"updated_at": layer.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a cost layer by its ID
func (r *GormCostLayerRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.CostLayer, error) {
	var layer inventory.CostLayer
	if err := r.db.WithContext(ctx).First(&layer, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &layer, nil
}

// FindByKey returns all layers for a key, exhausted included, in FIFO order
func (r *GormCostLayerRepository) FindByKey(ctx context.Context, key inventory.StockKey) ([]inventory.CostLayer, error) {
	var layers []inventory.CostLayer
	if err := r.keyQuery(ctx, key).Find(&layers).Error; err != nil {
		return nil, err
	}
	return layers, nil
}

// FindConsumableByKey returns only layers with remaining quantity, in FIFO order
func (r *GormCostLayerRepository) FindConsumableByKey(ctx context.Context, key inventory.StockKey) ([]inventory.CostLayer, error) {
	var layers []inventory.CostLayer
	if err := r.keyQuery(ctx, key).
		Where("exhausted = ? AND quantity > 0", false).
		Find(&layers).Error; err != nil {
		return nil, err
	}
	return layers, nil
}

func (r *GormCostLayerRepository) keyQuery(ctx context.Context, key inventory.StockKey) *gorm.DB {
	return r.db.WithContext(ctx).
		Where("product_id = ? AND warehouse_id = ? AND location_id = ? AND lot_number = ? AND serial_number = ?",
			key.ProductID, key.WarehouseID, key.LocationID, key.LotNumber, key.SerialNumber).
		Order("receipt_date ASC, created_at ASC")
}

var _ inventory.CostLayerRepository = (*GormCostLayerRepository)(nil)
