package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	inventoryapp "github.com/stockledger/backend/internal/application/inventory"
	"github.com/stockledger/backend/internal/domain/inventory"
	"github.com/stockledger/backend/internal/domain/shared"
	"github.com/stockledger/backend/internal/interfaces/http/middleware"
)

// In-memory repositories backing the handler tests. Services mutate the
// loaded aggregates directly, so Update only checks existence.

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
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return shared.NewPaginated(out, int64(len(out)), page, pageSize), nil
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
		if filter.ProductID != nil && tx.ProductID != *filter.ProductID {
			continue
		}
		if filter.Type != nil && tx.Type != *filter.Type {
			continue
		}
		out = append(out, *tx)
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return shared.NewPaginated(out, int64(len(out)), page, pageSize), nil
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
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return shared.NewPaginated(out, int64(len(out)), page, pageSize), nil
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

// apiEnv wires real services over in-memory storage behind a test router
type apiEnv struct {
	router     *gin.Engine
	userID     uuid.UUID
	movements  *inventoryapp.MovementService
	transfers  *inventoryapp.TransferService
	stocktakes *inventoryapp.StocktakeService
	actor      inventoryapp.Actor
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()

	scope := inventoryapp.NewNoOpTransactionScope(
		newMemSnapshotRepo(),
		newMemCostLayerRepo(),
		newMemTransactionRepo(),
		newMemStocktakeRepo(),
	)
	keys := inventoryapp.NewKeyedMutex()
	logger := zap.NewNop()

	env := &apiEnv{
		userID:     uuid.New(),
		movements:  inventoryapp.NewMovementService(scope, keys, logger),
		transfers:  inventoryapp.NewTransferService(scope, keys, logger),
		stocktakes: inventoryapp.NewStocktakeService(scope, keys, logger),
	}
	env.actor = inventoryapp.Actor{UserID: env.userID, Name: "tester"}

	router := gin.New()
	router.Use(middleware.RequestID())
	api := router.Group("/api/v1")
	NewInventoryHandler(env.movements, env.transfers).RegisterRoutes(api)
	NewStocktakeHandler(env.stocktakes).RegisterRoutes(api)
	env.router = router
	return env
}

// request performs an authenticated JSON request against the test router
func (env *apiEnv) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", env.userID.String())
	req.Header.Set("X-User-Name", "tester")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

// anonymousRequest performs a request without identity headers
func (env *apiEnv) anonymousRequest(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.True(t, envelope.Success, "expected success envelope, got %s", w.Body.String())
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Success bool `json:"success"`
		Error   *struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error, "expected error envelope, got %s", w.Body.String())
	return envelope.Error.Code
}
