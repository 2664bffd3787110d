package inventory

import (
	"context"

	"github.com/stockledger/backend/internal/domain/inventory"
)

// TransactionScope provides transactional access to inventory repositories.
// When a function is executed within a transaction scope, all repository operations
// will be part of the same database transaction and will be committed or rolled back atomically.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all inventory repositories within
// a transaction. All repositories returned share the same underlying database
// transaction, which is what lets a movement write its snapshot update, cost
// layer changes and ledger entry atomically, and lets a stocktake reconciliation
// post many adjustments plus the status change as one unit.
type TransactionalRepositories interface {
	// Snapshots returns the snapshot repository scoped to the current transaction
	Snapshots() inventory.SnapshotRepository
	// CostLayers returns the cost layer repository scoped to the current transaction
	CostLayers() inventory.CostLayerRepository
	// Transactions returns the movement ledger repository scoped to the current transaction
	Transactions() inventory.TransactionRepository
	// Stocktakes returns the stocktake repository scoped to the current transaction
	Stocktakes() inventory.StocktakeRepository
}

// NoOpTransactionScope is a transaction scope that doesn't actually use transactions.
// This is useful for testing or when transaction support is not required.
type NoOpTransactionScope struct {
	snapshotRepo  inventory.SnapshotRepository
	costLayerRepo inventory.CostLayerRepository
	txRepo        inventory.TransactionRepository
	stocktakeRepo inventory.StocktakeRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(
	snapshotRepo inventory.SnapshotRepository,
	costLayerRepo inventory.CostLayerRepository,
	txRepo inventory.TransactionRepository,
	stocktakeRepo inventory.StocktakeRepository,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		snapshotRepo:  snapshotRepo,
		costLayerRepo: costLayerRepo,
		txRepo:        txRepo,
		stocktakeRepo: stocktakeRepo,
	}
}

// Execute runs the function without a real transaction (for testing/compatibility).
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// Snapshots returns the snapshot repository.
func (s *NoOpTransactionScope) Snapshots() inventory.SnapshotRepository {
	return s.snapshotRepo
}

// CostLayers returns the cost layer repository.
func (s *NoOpTransactionScope) CostLayers() inventory.CostLayerRepository {
	return s.costLayerRepo
}

// Transactions returns the movement ledger repository.
func (s *NoOpTransactionScope) Transactions() inventory.TransactionRepository {
	return s.txRepo
}

// Stocktakes returns the stocktake repository.
func (s *NoOpTransactionScope) Stocktakes() inventory.StocktakeRepository {
	return s.stocktakeRepo
}

// Ensure NoOpTransactionScope implements both interfaces
var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
