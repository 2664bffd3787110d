package inventory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stockledger/backend/internal/domain/inventory"
	"github.com/stockledger/backend/internal/domain/shared"
)

// In-memory repositories backing the service tests. They hold the
// aggregates directly; Update is a no-op beyond existence checks since
// services mutate the loaded instances.

type memSnapshotRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*inventory.InventorySnapshot
}

func newMemSnapshotRepo() *memSnapshotRepo {
	return &memSnapshotRepo{items: make(map[uuid.UUID]*inventory.InventorySnapshot)}
}

func (r *memSnapshotRepo) Save(_ context.Context, s *inventory.InventorySnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[s.ID] = s
	return nil
}

func (r *memSnapshotRepo) Update(_ context.Context, s *inventory.InventorySnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[s.ID]; !ok {
		return shared.ErrNotFound
	}
	r.items[s.ID] = s
	return nil
}

func (r *memSnapshotRepo) FindByID(_ context.Context, id uuid.UUID) (*inventory.InventorySnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return s, nil
}

func (r *memSnapshotRepo) FindByKey(_ context.Context, key inventory.StockKey) (*inventory.InventorySnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.items {
		if s.Key() == key {
			return s, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memSnapshotRepo) FindByWarehouse(_ context.Context, warehouseID uuid.UUID) ([]inventory.InventorySnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]inventory.InventorySnapshot, 0)
	for _, s := range r.items {
		if s.WarehouseID == warehouseID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *memSnapshotRepo) List(_ context.Context, filter inventory.SnapshotFilter) (shared.Paginated[inventory.InventorySnapshot], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]inventory.InventorySnapshot, 0)
	for _, s := range r.items {
		if filter.WarehouseID != nil && s.WarehouseID != *filter.WarehouseID {
			continue
		}
		if filter.ProductID != nil && s.ProductID != *filter.ProductID {
			continue
		}
		out = append(out, *s)
	}
	return shared.NewPaginated(out, int64(len(out)), 1, 20), nil
}

func (r *memSnapshotRepo) FindBelowReorderLevel(_ context.Context, warehouseID *uuid.UUID) ([]inventory.InventorySnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]inventory.InventorySnapshot, 0)
	for _, s := range r.items {
		if warehouseID != nil && s.WarehouseID != *warehouseID {
			continue
		}
		if s.IsBelowReorderLevel() {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *memSnapshotRepo) ValuationByWarehouse(_ context.Context, warehouseID *uuid.UUID) ([]inventory.WarehouseValuation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byWarehouse := make(map[uuid.UUID]*inventory.WarehouseValuation)
	for _, s := range r.items {
		if warehouseID != nil && s.WarehouseID != *warehouseID {
			continue
		}
		row, ok := byWarehouse[s.WarehouseID]
		if !ok {
			row = &inventory.WarehouseValuation{
				WarehouseID:   s.WarehouseID,
				TotalQuantity: decimal.Zero,
				TotalValue:    decimal.Zero,
			}
			byWarehouse[s.WarehouseID] = row
		}
		row.ProductCount++
		row.TotalQuantity = row.TotalQuantity.Add(s.Quantity)
		row.TotalValue = row.TotalValue.Add(s.TotalValue())
	}
	out := make([]inventory.WarehouseValuation, 0, len(byWarehouse))
	for _, row := range byWarehouse {
		out = append(out, *row)
	}
	return out, nil
}

type memCostLayerRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*inventory.CostLayer
}

func newMemCostLayerRepo() *memCostLayerRepo {
	return &memCostLayerRepo{items: make(map[uuid.UUID]*inventory.CostLayer)}
}

func (r *memCostLayerRepo) Save(_ context.Context, l *inventory.CostLayer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[l.ID] = l
	return nil
}

func (r *memCostLayerRepo) Update(_ context.Context, l *inventory.CostLayer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[l.ID]; !ok {
		return shared.ErrNotFound
	}
	r.items[l.ID] = l
	return nil
}

func (r *memCostLayerRepo) FindByID(_ context.Context, id uuid.UUID) (*inventory.CostLayer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.items[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return l, nil
}

func (r *memCostLayerRepo) byKey(key inventory.StockKey, consumableOnly bool) []inventory.CostLayer {
	out := make([]inventory.CostLayer, 0)
	for _, l := range r.items {
		if l.Key() != key {
			continue
		}
		if consumableOnly && !l.HasStock() {
			continue
		}
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReceiptDate.Equal(out[j].ReceiptDate) {
			return out[i].ReceiptDate.Before(out[j].ReceiptDate)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *memCostLayerRepo) FindByKey(_ context.Context, key inventory.StockKey) ([]inventory.CostLayer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byKey(key, false), nil
}

func (r *memCostLayerRepo) FindConsumableByKey(_ context.Context, key inventory.StockKey) ([]inventory.CostLayer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byKey(key, true), nil
}

type memTransactionRepo struct {
	mu    sync.Mutex
	items []*inventory.InventoryTransaction
}

func newMemTransactionRepo() *memTransactionRepo {
	return &memTransactionRepo{}
}

func (r *memTransactionRepo) Save(_ context.Context, tx *inventory.InventoryTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, tx)
	return nil
}

func (r *memTransactionRepo) FindByID(_ context.Context, id uuid.UUID) (*inventory.InventoryTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.items {
		if tx.ID == id {
			return tx, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memTransactionRepo) FindBySnapshot(_ context.Context, snapshotID uuid.UUID) ([]inventory.InventoryTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]inventory.InventoryTransaction, 0)
	for _, tx := range r.items {
		if tx.SnapshotID == snapshotID {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (r *memTransactionRepo) FindByReference(_ context.Context, refType inventory.ReferenceType, refID string) ([]inventory.InventoryTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]inventory.InventoryTransaction, 0)
	for _, tx := range r.items {
		if tx.ReferenceType == refType && tx.ReferenceID == refID {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (r *memTransactionRepo) List(_ context.Context, filter inventory.TransactionFilter) (shared.Paginated[inventory.InventoryTransaction], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]inventory.InventoryTransaction, 0)
	for _, tx := range r.items {
		if filter.SnapshotID != nil && tx.SnapshotID != *filter.SnapshotID {
			continue
		}
		if filter.Type != nil && tx.Type != *filter.Type {
			continue
		}
		out = append(out, *tx)
	}
	return shared.NewPaginated(out, int64(len(out)), 1, 20), nil
}

func (r *memTransactionRepo) SumSignedQuantity(_ context.Context, snapshotID uuid.UUID) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := decimal.Zero
	for _, tx := range r.items {
		if tx.SnapshotID == snapshotID {
			sum = sum.Add(tx.SignedQuantity())
		}
	}
	return sum, nil
}

type memStocktakeRepo struct {
	mu       sync.Mutex
	items    map[uuid.UUID]*inventory.StocktakeRequest
	counters map[string]int64
}

func newMemStocktakeRepo() *memStocktakeRepo {
	return &memStocktakeRepo{
		items:    make(map[uuid.UUID]*inventory.StocktakeRequest),
		counters: make(map[string]int64),
	}
}

func (r *memStocktakeRepo) Save(_ context.Context, st *inventory.StocktakeRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[st.ID] = st
	return nil
}

func (r *memStocktakeRepo) Update(_ context.Context, st *inventory.StocktakeRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[st.ID]; !ok {
		return shared.ErrNotFound
	}
	r.items[st.ID] = st
	return nil
}

func (r *memStocktakeRepo) FindByID(_ context.Context, id uuid.UUID) (*inventory.StocktakeRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.items[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return st, nil
}

func (r *memStocktakeRepo) FindByNumber(_ context.Context, number string) (*inventory.StocktakeRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.items {
		if st.StocktakeNumber == number {
			return st, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memStocktakeRepo) List(_ context.Context, filter inventory.StocktakeFilter) (shared.Paginated[inventory.StocktakeRequest], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]inventory.StocktakeRequest, 0)
	for _, st := range r.items {
		if filter.WarehouseID != nil && st.WarehouseID != *filter.WarehouseID {
			continue
		}
		if filter.Status != nil && st.Status != *filter.Status {
			continue
		}
		out = append(out, *st)
	}
	return shared.NewPaginated(out, int64(len(out)), 1, 20), nil
}

func (r *memStocktakeRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *memStocktakeRepo) NextSequence(_ context.Context, prefix string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[prefix]++
	return r.counters[prefix], nil
}

// knownUsers is a UserLookup recognizing a fixed set of user IDs
type knownUsers []uuid.UUID

func (u knownUsers) Exists(_ context.Context, userID uuid.UUID) (bool, error) {
	for _, id := range u {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (u knownUsers) DisplayName(_ context.Context, _ uuid.UUID) (string, error) {
	return "", nil
}

// capturePublisher records published events for assertions
type capturePublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *capturePublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *capturePublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.EventType())
	}
	return types
}

// denyAllGate rejects every permission check
type denyAllGate struct{}

func (denyAllGate) Check(context.Context, Actor, string) error {
	return shared.ErrForbidden
}

// captureAudit records audit entries for assertions
type captureAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (a *captureAudit) Record(_ context.Context, entry AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
}

// testEnv bundles the wired services over in-memory storage
type testEnv struct {
	snapshots  *memSnapshotRepo
	layers     *memCostLayerRepo
	ledger     *memTransactionRepo
	stocktakes *memStocktakeRepo
	publisher  *capturePublisher
	audit      *captureAudit
	movements  *MovementService
	transfers  *TransferService
	counting   *StocktakeService
	actor      Actor
}

func newTestEnv() *testEnv {
	env := &testEnv{
		snapshots:  newMemSnapshotRepo(),
		layers:     newMemCostLayerRepo(),
		ledger:     newMemTransactionRepo(),
		stocktakes: newMemStocktakeRepo(),
		publisher:  &capturePublisher{},
		audit:      &captureAudit{},
		actor:      Actor{UserID: uuid.New(), Name: "tester"},
	}
	scope := NewNoOpTransactionScope(env.snapshots, env.layers, env.ledger, env.stocktakes)
	keys := NewKeyedMutex()
	logger := zap.NewNop()

	env.movements = NewMovementService(scope, keys, logger)
	env.movements.SetEventPublisher(env.publisher)
	env.movements.SetAuditSink(env.audit)

	env.transfers = NewTransferService(scope, keys, logger)
	env.transfers.SetEventPublisher(env.publisher)
	env.transfers.SetAuditSink(env.audit)

	env.counting = NewStocktakeService(scope, keys, logger)
	env.counting.SetEventPublisher(env.publisher)
	env.counting.SetAuditSink(env.audit)

	return env
}

func stockKeyRequest() StockKeyRequest {
	return StockKeyRequest{
		ProductID:   uuid.New(),
		WarehouseID: uuid.New(),
		LocationID:  uuid.New(),
	}
}
