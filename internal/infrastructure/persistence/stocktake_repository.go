package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stockledger/backend/internal/domain/inventory"
	"github.com/stockledger/backend/internal/domain/shared"
)

// sequenceCounter backs StocktakeRepository.NextSequence. One row per
// number prefix (e.g. "ST-20260829"), incremented atomically.
type sequenceCounter struct {
	Prefix string `gorm:"primaryKey;type:varchar(50)"`
	Value  int64  `gorm:"not null;default:0"`
}

func (sequenceCounter) TableName() string {
	return "sequence_counters"
}

// GormStocktakeRepository implements inventory.StocktakeRepository using GORM
type GormStocktakeRepository struct {
	db *gorm.DB
}

// NewGormStocktakeRepository creates a new GormStocktakeRepository
func NewGormStocktakeRepository(db *gorm.DB) *GormStocktakeRepository {
	return &GormStocktakeRepository{db: db}
}

// Save inserts a new stocktake with its details
func (r *GormStocktakeRepository) Save(ctx context.Context, stocktake *inventory.StocktakeRequest) error {
	return r.db.WithContext(ctx).Create(stocktake).Error
}

// Update persists a modified stocktake with an optimistic lock on Version.
// Detail rows are upserted alongside the header in one transaction.
func (r *GormStocktakeRepository) Update(ctx context.Context, stocktake *inventory.StocktakeRequest) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.
			Model(&inventory.StocktakeRequest{}).
			Where("id = ? AND version = ?", stocktake.ID, stocktake.Version-1).
			Updates(map[string]interface{}{
				"status":        stocktake.Status,
				"description":   stocktake.Description,
				"started_at":    stocktake.StartedAt,
				"counted_at":    stocktake.CountedAt,
				"reconciled_at": stocktake.ReconciledAt,
				"completed_at":  stocktake.CompletedAt,
				"cancelled_at":  stocktake.CancelledAt,
				"cancel_reason": stocktake.CancelReason,
				"version":       stocktake.Version,
				"updated_at":    stocktake.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrConcurrencyConflict
		}

		detailIDs := make([]uuid.UUID, 0, len(stocktake.Details))
		for i := range stocktake.Details {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				UpdateAll: true,
			}).Create(&stocktake.Details[i]).Error; err != nil {
				return err
			}
			detailIDs = append(detailIDs, stocktake.Details[i].ID)
		}

		// Prune rows dropped by a scope replacement
		if len(detailIDs) > 0 {
			if err := tx.
				Where("stocktake_id = ? AND id NOT IN ?", stocktake.ID, detailIDs).
				Delete(&inventory.StocktakeDetail{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes a stocktake header with its detail rows
func (r *GormStocktakeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("stocktake_id = ?", id).
			Delete(&inventory.StocktakeDetail{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&inventory.StocktakeRequest{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// FindByID loads a stocktake with its details
func (r *GormStocktakeRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.StocktakeRequest, error) {
	var stocktake inventory.StocktakeRequest
	err := r.db.WithContext(ctx).
		Preload("Details").
		First(&stocktake, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &stocktake, nil
}

// FindByNumber loads a stocktake by its business number
func (r *GormStocktakeRepository) FindByNumber(ctx context.Context, stocktakeNumber string) (*inventory.StocktakeRequest, error) {
	var stocktake inventory.StocktakeRequest
	err := r.db.WithContext(ctx).
		Preload("Details").
		First(&stocktake, "stocktake_number = ?", stocktakeNumber).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &stocktake, nil
}

// List returns a page of stocktakes matching the filter. Details are not
// loaded; list views only need the header fields.
func (r *GormStocktakeRepository) List(ctx context.Context, filter inventory.StocktakeFilter) (shared.Paginated[inventory.StocktakeRequest], error) {
	query := r.db.WithContext(ctx).Model(&inventory.StocktakeRequest{})
	if filter.WarehouseID != nil {
		query = query.Where("warehouse_id = ?", *filter.WarehouseID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return shared.Paginated[inventory.StocktakeRequest]{}, err
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	orderBy := ValidateSortField(filter.OrderBy, StocktakeSortFields, "created_at")
	orderDir := ValidateSortOrder(filter.OrderDir)

	var stocktakes []inventory.StocktakeRequest
	err := query.
		Order(orderBy + " " + orderDir).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&stocktakes).Error
	if err != nil {
		return shared.Paginated[inventory.StocktakeRequest]{}, err
	}

	return shared.NewPaginated(stocktakes, total, page, pageSize), nil
}

// NextSequence atomically increments and returns the counter for a prefix
func (r *GormStocktakeRepository) NextSequence(ctx context.Context, prefix string) (int64, error) {
	counter := sequenceCounter{Prefix: prefix, Value: 1}
	err := r.db.WithContext(ctx).
		Clauses(
			clause.OnConflict{
				Columns:   []clause.Column{{Name: "prefix"}},
				DoUpdates: clause.Assignments(map[string]interface{}{"value": gorm.Expr("sequence_counters.value + 1")}),
			},
			clause.Returning{},
		).
		Create(&counter).Error
	if err != nil {
		return 0, err
	}
	return counter.Value, nil
}

var _ inventory.StocktakeRepository = (*GormStocktakeRepository)(nil)
