package persistence

import (
	"context"

	"gorm.io/gorm"

	appinv "github.com/stockledger/backend/internal/application/inventory"
	"github.com/stockledger/backend/internal/domain/inventory"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// It provides atomic execution of multiple repository operations.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appinv.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := &gormTransactionalRepositories{tx: tx}
		return fn(repos)
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

// Snapshots returns the snapshot repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Snapshots() inventory.SnapshotRepository {
	return NewGormSnapshotRepository(r.tx)
}

// CostLayers returns the cost layer repository scoped to the current transaction.
func (r *gormTransactionalRepositories) CostLayers() inventory.CostLayerRepository {
	return NewGormCostLayerRepository(r.tx)
}

// Transactions returns the ledger repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Transactions() inventory.TransactionRepository {
	return NewGormTransactionRepository(r.tx)
}

// Stocktakes returns the stocktake repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Stocktakes() inventory.StocktakeRepository {
	return NewGormStocktakeRepository(r.tx)
}

// Ensure GormTransactionScope implements TransactionScope
var _ appinv.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ appinv.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
