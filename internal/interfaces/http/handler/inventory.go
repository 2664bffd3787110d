package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	inventoryapp "github.com/stockledger/backend/internal/application/inventory"
	"github.com/stockledger/backend/internal/domain/inventory"
	"github.com/stockledger/backend/internal/domain/shared"
)

// parseDateTime parses a datetime string in the formats clients send
func parseDateTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// InventoryHandler handles stock movement and snapshot query endpoints
type InventoryHandler struct {
	BaseHandler
	movements *inventoryapp.MovementService
	transfers *inventoryapp.TransferService
}

// NewInventoryHandler creates a new InventoryHandler
func NewInventoryHandler(movements *inventoryapp.MovementService, transfers *inventoryapp.TransferService) *InventoryHandler {
	return &InventoryHandler{
		movements: movements,
		transfers: transfers,
	}
}

// RegisterRoutes registers inventory routes
func (h *InventoryHandler) RegisterRoutes(rg *gin.RouterGroup) {
	inv := rg.Group("/inventory")
	{
		movements := inv.Group("/movements")
		{
			movements.POST("/receipts", h.Receive)
			movements.POST("/issues", h.Issue)
			movements.POST("/adjustments", h.Adjust)
			movements.POST("/reservations", h.Reserve)
			movements.POST("/reservations/release", h.ReleaseReservation)
		}

		inv.POST("/transfers", h.Transfer)
		inv.PUT("/reorder-policy", h.SetReorderPolicy)

		snapshots := inv.Group("/snapshots")
		{
			snapshots.GET("", h.ListSnapshots)
			snapshots.GET("/by-key", h.GetSnapshot)
			snapshots.GET("/:id/ledger-check", h.VerifyLedger)
		}

		inv.GET("/transactions", h.ListTransactions)
		inv.GET("/cost-layers", h.GetCostLayers)
		inv.GET("/availability", h.CheckAvailability)
		inv.GET("/reorder-alerts", h.ListReorderAlerts)
		inv.GET("/valuation", h.GetValuation)
	}
}

// actor resolves the acting user from request headers
func (h *InventoryHandler) actor(c *gin.Context) (inventoryapp.Actor, bool) {
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Missing or invalid X-User-ID header")
		return inventoryapp.Actor{}, false
	}
	return inventoryapp.Actor{UserID: userID, Name: getUserName(c)}, true
}

// StockKeyBody identifies one stock key in request bodies
type StockKeyBody struct {
	ProductID    string `json:"product_id" binding:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440000"`
	WarehouseID  string `json:"warehouse_id" binding:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440001"`
	LocationID   string `json:"location_id" binding:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440002"`
	LotNumber    string `json:"lot_number" example:"LOT-2026-001"`
	SerialNumber string `json:"serial_number" example:"SN-0042"`
}

func (b StockKeyBody) toRequest() inventoryapp.StockKeyRequest {
	return inventoryapp.StockKeyRequest{
		ProductID:    uuid.MustParse(b.ProductID),
		WarehouseID:  uuid.MustParse(b.WarehouseID),
		LocationID:   uuid.MustParse(b.LocationID),
		LotNumber:    b.LotNumber,
		SerialNumber: b.SerialNumber,
	}
}

// ReceiveStockBody is the request body for recording a goods receipt
type ReceiveStockBody struct {
	StockKeyBody
	Quantity        float64 `json:"quantity" binding:"required,gt=0" example:"50.0"`
	UnitCost        float64 `json:"unit_cost" binding:"gte=0" example:"15.50"`
	ReferenceType   string  `json:"reference_type" binding:"required" example:"PURCHASE_ORDER"`
	ReferenceID     string  `json:"reference_id" binding:"required" example:"PO-2026-001"`
	Notes           string  `json:"notes" example:"Received from supplier ABC"`
	ManufactureDate string  `json:"manufacture_date" example:"2026-01-15"`
	ExpirationDate  string  `json:"expiration_date" example:"2027-01-15"`
}

// Receive records a goods receipt for a stock key
func (h *InventoryHandler) Receive(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var body ReceiveStockBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	req := inventoryapp.ReceiveStockRequest{
		StockKeyRequest: body.toRequest(),
		Quantity:        toDecimal(body.Quantity),
		UnitCost:        toDecimal(body.UnitCost),
		ReferenceType:   body.ReferenceType,
		ReferenceID:     body.ReferenceID,
		Notes:           body.Notes,
	}
	if body.ManufactureDate != "" {
		t, err := parseDateTime(body.ManufactureDate)
		if err != nil {
			h.BadRequest(c, "Invalid manufacture_date format")
			return
		}
		req.ManufactureDate = &t
	}
	if body.ExpirationDate != "" {
		t, err := parseDateTime(body.ExpirationDate)
		if err != nil {
			h.BadRequest(c, "Invalid expiration_date format")
			return
		}
		req.ExpirationDate = &t
	}

	result, err := h.movements.Receive(c.Request.Context(), actor, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// IssueStockBody is the request body for recording a goods issue
type IssueStockBody struct {
	StockKeyBody
	Quantity      float64 `json:"quantity" binding:"required,gt=0" example:"10.0"`
	ReferenceType string  `json:"reference_type" binding:"required" example:"SALES_ORDER"`
	ReferenceID   string  `json:"reference_id" binding:"required" example:"SO-2026-001"`
	Notes         string  `json:"notes" example:"Shipped to customer"`
}

// Issue records a goods issue; cost of goods comes from FIFO layers
func (h *InventoryHandler) Issue(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var body IssueStockBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.movements.Issue(c.Request.Context(), actor, inventoryapp.IssueStockRequest{
		StockKeyRequest: body.toRequest(),
		Quantity:        toDecimal(body.Quantity),
		ReferenceType:   body.ReferenceType,
		ReferenceID:     body.ReferenceID,
		Notes:           body.Notes,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// AdjustStockBody is the request body for a manual stock correction
type AdjustStockBody struct {
	StockKeyBody
	Direction   string  `json:"direction" binding:"required,oneof=IN OUT" example:"OUT"`
	Quantity    float64 `json:"quantity" binding:"required,gt=0" example:"2.0"`
	ReferenceID string  `json:"reference_id" binding:"required" example:"ADJ-2026-017"`
	Reason      string  `json:"reason" binding:"required,min=1,max=255" example:"2 units damaged in handling"`
}

// Adjust records a manual stock correction in either direction
func (h *InventoryHandler) Adjust(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var body AdjustStockBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.movements.Adjust(c.Request.Context(), actor, inventoryapp.AdjustStockRequest{
		StockKeyRequest: body.toRequest(),
		Direction:       inventoryapp.AdjustDirection(body.Direction),
		Quantity:        toDecimal(body.Quantity),
		ReferenceID:     body.ReferenceID,
		Reason:          body.Reason,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// ReservationBody is the request body for reserving or releasing stock
type ReservationBody struct {
	StockKeyBody
	Quantity      float64 `json:"quantity" binding:"required,gt=0" example:"5.0"`
	ReferenceType string  `json:"reference_type" binding:"required" example:"SALES_ORDER"`
	ReferenceID   string  `json:"reference_id" binding:"required" example:"SO-2026-002"`
}

// Reserve holds available stock against pending demand
func (h *InventoryHandler) Reserve(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var body ReservationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.movements.Reserve(c.Request.Context(), actor, inventoryapp.ReserveStockRequest{
		StockKeyRequest: body.toRequest(),
		Quantity:        toDecimal(body.Quantity),
		ReferenceType:   body.ReferenceType,
		ReferenceID:     body.ReferenceID,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// ReleaseReservation returns held stock to available
func (h *InventoryHandler) ReleaseReservation(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var body ReservationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.movements.ReleaseReservation(c.Request.Context(), actor, inventoryapp.ReleaseReservationRequest{
		StockKeyRequest: body.toRequest(),
		Quantity:        toDecimal(body.Quantity),
		ReferenceType:   body.ReferenceType,
		ReferenceID:     body.ReferenceID,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// TransferStockBody is the request body for a warehouse transfer
type TransferStockBody struct {
	ProductID       string  `json:"product_id" binding:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440000"`
	LotNumber       string  `json:"lot_number" example:"LOT-2026-001"`
	SerialNumber    string  `json:"serial_number" example:""`
	FromWarehouseID string  `json:"from_warehouse_id" binding:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440001"`
	FromLocationID  string  `json:"from_location_id" binding:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440002"`
	ToWarehouseID   string  `json:"to_warehouse_id" binding:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440003"`
	ToLocationID    string  `json:"to_location_id" binding:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440004"`
	Quantity        float64 `json:"quantity" binding:"required,gt=0" example:"20.0"`
	ReferenceID     string  `json:"reference_id" binding:"required" example:"TRF-2026-005"`
	Notes           string  `json:"notes" example:"Rebalancing to east warehouse"`
}

// Transfer moves stock between two warehouse locations atomically
func (h *InventoryHandler) Transfer(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var body TransferStockBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.transfers.Transfer(c.Request.Context(), actor, inventoryapp.TransferStockRequest{
		ProductID:       uuid.MustParse(body.ProductID),
		LotNumber:       body.LotNumber,
		SerialNumber:    body.SerialNumber,
		FromWarehouseID: uuid.MustParse(body.FromWarehouseID),
		FromLocationID:  uuid.MustParse(body.FromLocationID),
		ToWarehouseID:   uuid.MustParse(body.ToWarehouseID),
		ToLocationID:    uuid.MustParse(body.ToLocationID),
		Quantity:        toDecimal(body.Quantity),
		ReferenceID:     body.ReferenceID,
		Notes:           body.Notes,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// ReorderPolicyBody is the request body for configuring reorder alerts
type ReorderPolicyBody struct {
	StockKeyBody
	ReorderLevel    float64 `json:"reorder_level" binding:"gte=0" example:"20.0"`
	ReorderQuantity float64 `json:"reorder_quantity" binding:"gte=0" example:"100.0"`
}

// SetReorderPolicy configures the reorder level for one stock key
func (h *InventoryHandler) SetReorderPolicy(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var body ReorderPolicyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.movements.SetReorderPolicy(c.Request.Context(), actor, inventoryapp.SetReorderPolicyRequest{
		StockKeyRequest: body.toRequest(),
		ReorderLevel:    toDecimal(body.ReorderLevel),
		ReorderQuantity: toDecimal(body.ReorderQuantity),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// StockKeyQuery identifies one stock key in query strings
type StockKeyQuery struct {
	ProductID    string `form:"product_id" binding:"required,uuid"`
	WarehouseID  string `form:"warehouse_id" binding:"required,uuid"`
	LocationID   string `form:"location_id" binding:"required,uuid"`
	LotNumber    string `form:"lot_number"`
	SerialNumber string `form:"serial_number"`
}

func (q StockKeyQuery) toRequest() inventoryapp.StockKeyRequest {
	return inventoryapp.StockKeyRequest{
		ProductID:    uuid.MustParse(q.ProductID),
		WarehouseID:  uuid.MustParse(q.WarehouseID),
		LocationID:   uuid.MustParse(q.LocationID),
		LotNumber:    q.LotNumber,
		SerialNumber: q.SerialNumber,
	}
}

// GetSnapshot returns the snapshot for one fully-qualified stock key
func (h *InventoryHandler) GetSnapshot(c *gin.Context) {
	var query StockKeyQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.movements.GetSnapshot(c.Request.Context(), query.toRequest())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ListSnapshotsQuery filters snapshot list requests
type ListSnapshotsQuery struct {
	Page              int    `form:"page" binding:"omitempty,min=1"`
	PageSize          int    `form:"page_size" binding:"omitempty,min=1,max=200"`
	OrderBy           string `form:"order_by"`
	OrderDir          string `form:"order_dir" binding:"omitempty,oneof=asc desc ASC DESC"`
	ProductID         string `form:"product_id" binding:"omitempty,uuid"`
	WarehouseID       string `form:"warehouse_id" binding:"omitempty,uuid"`
	LocationID        string `form:"location_id" binding:"omitempty,uuid"`
	LotNumber         string `form:"lot_number"`
	BelowReorderLevel bool   `form:"below_reorder_level"`
	ExpiringBefore    string `form:"expiring_before"`
}

// ListSnapshots returns a filtered page of inventory snapshots
func (h *InventoryHandler) ListSnapshots(c *gin.Context) {
	var query ListSnapshotsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := inventory.SnapshotFilter{
		Filter: shared.Filter{
			Page:     query.Page,
			PageSize: query.PageSize,
			OrderBy:  query.OrderBy,
			OrderDir: query.OrderDir,
		},
		BelowReorderLevel: query.BelowReorderLevel,
	}
	if query.ProductID != "" {
		id := uuid.MustParse(query.ProductID)
		filter.ProductID = &id
	}
	if query.WarehouseID != "" {
		id := uuid.MustParse(query.WarehouseID)
		filter.WarehouseID = &id
	}
	if query.LocationID != "" {
		id := uuid.MustParse(query.LocationID)
		filter.LocationID = &id
	}
	if query.LotNumber != "" {
		filter.LotNumber = &query.LotNumber
	}
	if query.ExpiringBefore != "" {
		t, err := parseDateTime(query.ExpiringBefore)
		if err != nil {
			h.BadRequest(c, "Invalid expiring_before format")
			return
		}
		filter.ExpiringBefore = &t
	}

	result, err := h.movements.ListSnapshots(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, result.Items, result.Total, result.Page, result.PageSize)
}

// ListTransactionsQuery filters movement ledger requests
type ListTransactionsQuery struct {
	Page          int    `form:"page" binding:"omitempty,min=1"`
	PageSize      int    `form:"page_size" binding:"omitempty,min=1,max=200"`
	OrderBy       string `form:"order_by"`
	OrderDir      string `form:"order_dir" binding:"omitempty,oneof=asc desc ASC DESC"`
	SnapshotID    string `form:"snapshot_id" binding:"omitempty,uuid"`
	ProductID     string `form:"product_id" binding:"omitempty,uuid"`
	WarehouseID   string `form:"warehouse_id" binding:"omitempty,uuid"`
	Type          string `form:"type"`
	ReferenceType string `form:"reference_type"`
	ReferenceID   string `form:"reference_id"`
	DateFrom      string `form:"date_from"`
	DateTo        string `form:"date_to"`
}

// ListTransactions returns a filtered page of the movement ledger
func (h *InventoryHandler) ListTransactions(c *gin.Context) {
	var query ListTransactionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := inventory.TransactionFilter{
		Filter: shared.Filter{
			Page:     query.Page,
			PageSize: query.PageSize,
			OrderBy:  query.OrderBy,
			OrderDir: query.OrderDir,
		},
	}
	if query.SnapshotID != "" {
		id := uuid.MustParse(query.SnapshotID)
		filter.SnapshotID = &id
	}
	if query.ProductID != "" {
		id := uuid.MustParse(query.ProductID)
		filter.ProductID = &id
	}
	if query.WarehouseID != "" {
		id := uuid.MustParse(query.WarehouseID)
		filter.WarehouseID = &id
	}
	if query.Type != "" {
		movementType := inventory.MovementType(query.Type)
		if !movementType.IsValid() {
			h.BadRequest(c, "Invalid movement type")
			return
		}
		filter.Type = &movementType
	}
	if query.ReferenceType != "" {
		refType := inventory.ReferenceType(query.ReferenceType)
		if !refType.IsValid() {
			h.BadRequest(c, "Invalid reference type")
			return
		}
		filter.ReferenceType = &refType
	}
	if query.ReferenceID != "" {
		filter.ReferenceID = &query.ReferenceID
	}
	if query.DateFrom != "" {
		t, err := parseDateTime(query.DateFrom)
		if err != nil {
			h.BadRequest(c, "Invalid date_from format")
			return
		}
		filter.DateFrom = &t
	}
	if query.DateTo != "" {
		t, err := parseDateTime(query.DateTo)
		if err != nil {
			h.BadRequest(c, "Invalid date_to format")
			return
		}
		filter.DateTo = &t
	}

	result, err := h.movements.GetLedger(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, result.Items, result.Total, result.Page, result.PageSize)
}

// GetCostLayers returns open FIFO layers for one stock key, oldest first
func (h *InventoryHandler) GetCostLayers(c *gin.Context) {
	var query StockKeyQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	layers, err := h.movements.GetCostLayers(c.Request.Context(), query.toRequest())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, layers)
}

// AvailabilityQuery asks whether a quantity can be issued
type AvailabilityQuery struct {
	StockKeyQuery
	Quantity float64 `form:"quantity" binding:"required,gt=0"`
}

// CheckAvailability answers whether the requested quantity is available
func (h *InventoryHandler) CheckAvailability(c *gin.Context) {
	var query AvailabilityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.movements.CheckAvailability(c.Request.Context(), query.toRequest(), toDecimal(query.Quantity))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// warehouseScope parses the optional warehouse_id query parameter
func (h *InventoryHandler) warehouseScope(c *gin.Context) (*uuid.UUID, bool) {
	raw := c.Query("warehouse_id")
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		h.BadRequest(c, "Invalid warehouse ID format")
		return nil, false
	}
	return &id, true
}

// ListReorderAlerts returns snapshots at or below their reorder level
func (h *InventoryHandler) ListReorderAlerts(c *gin.Context) {
	warehouseID, ok := h.warehouseScope(c)
	if !ok {
		return
	}

	snapshots, err := h.movements.ListBelowReorderLevel(c.Request.Context(), warehouseID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, snapshots)
}

// GetValuation returns per-warehouse stock valuation totals
func (h *InventoryHandler) GetValuation(c *gin.Context) {
	warehouseID, ok := h.warehouseScope(c)
	if !ok {
		return
	}

	valuations, err := h.movements.Valuation(c.Request.Context(), warehouseID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, valuations)
}

// VerifyLedger recomputes on-hand from the ledger for one snapshot
func (h *InventoryHandler) VerifyLedger(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid snapshot ID format")
		return
	}

	result, err := h.movements.VerifyLedger(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
