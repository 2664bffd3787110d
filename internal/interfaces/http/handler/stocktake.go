package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	inventoryapp "github.com/stockledger/backend/internal/application/inventory"
	"github.com/stockledger/backend/internal/domain/inventory"
	"github.com/stockledger/backend/internal/domain/shared"
)

// StocktakeHandler handles physical count workflow endpoints
type StocktakeHandler struct {
	BaseHandler
	stocktakes *inventoryapp.StocktakeService
}

// NewStocktakeHandler creates a new StocktakeHandler
func NewStocktakeHandler(stocktakes *inventoryapp.StocktakeService) *StocktakeHandler {
	return &StocktakeHandler{stocktakes: stocktakes}
}

// RegisterRoutes registers stocktake routes
func (h *StocktakeHandler) RegisterRoutes(rg *gin.RouterGroup) {
	stocktakes := rg.Group("/stocktakes")
	{
		stocktakes.POST("", h.Create)
		stocktakes.GET("", h.List)
		stocktakes.GET("/by-number/:number", h.GetByNumber)
		stocktakes.GET("/:id", h.Get)
		stocktakes.PUT("/:id", h.Update)
		stocktakes.DELETE("/:id", h.Delete)
		stocktakes.POST("/:id/start", h.Start)
		stocktakes.POST("/:id/counts", h.RecordCount)
		stocktakes.POST("/:id/finish-counting", h.FinishCounting)
		stocktakes.POST("/:id/reconcile", h.Reconcile)
		stocktakes.POST("/:id/complete", h.Complete)
		stocktakes.POST("/:id/cancel", h.Cancel)
	}
}

// actor resolves the acting user from request headers
func (h *StocktakeHandler) actor(c *gin.Context) (inventoryapp.Actor, bool) {
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Missing or invalid X-User-ID header")
		return inventoryapp.Actor{}, false
	}
	return inventoryapp.Actor{UserID: userID, Name: getUserName(c)}, true
}

// stocktakeID parses the :id path parameter
func (h *StocktakeHandler) stocktakeID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid stocktake ID format")
		return uuid.Nil, false
	}
	return id, true
}

// CreateStocktakeBody is the request body for opening a stocktake
type CreateStocktakeBody struct {
	WarehouseID string   `json:"warehouse_id" binding:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440001"`
	Description string   `json:"description" binding:"max=255" example:"Q3 full count"`
	ProductIDs  []string `json:"product_ids" binding:"omitempty,dive,uuid"`
	LocationID  string   `json:"location_id" binding:"omitempty,uuid"`
}

// Create opens a new stocktake and freezes its paper quantities
func (h *StocktakeHandler) Create(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var body CreateStocktakeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	req := inventoryapp.CreateStocktakeRequest{
		WarehouseID: uuid.MustParse(body.WarehouseID),
		Description: body.Description,
	}
	for _, raw := range body.ProductIDs {
		req.ProductIDs = append(req.ProductIDs, uuid.MustParse(raw))
	}
	if body.LocationID != "" {
		id := uuid.MustParse(body.LocationID)
		req.LocationID = &id
	}

	result, err := h.stocktakes.Create(c.Request.Context(), actor, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// UpdateStocktakeBody is the request body for rescoping a pending stocktake
type UpdateStocktakeBody struct {
	Description string   `json:"description" binding:"max=255" example:"Q3 full count, aisle 4 only"`
	ProductIDs  []string `json:"product_ids" binding:"omitempty,dive,uuid"`
	LocationID  string   `json:"location_id" binding:"omitempty,uuid"`
}

// Update rescopes a pending stocktake, refreezing system quantities
func (h *StocktakeHandler) Update(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.stocktakeID(c)
	if !ok {
		return
	}

	var body UpdateStocktakeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	req := inventoryapp.UpdateStocktakeRequest{
		Description: body.Description,
	}
	for _, raw := range body.ProductIDs {
		req.ProductIDs = append(req.ProductIDs, uuid.MustParse(raw))
	}
	if body.LocationID != "" {
		locationID := uuid.MustParse(body.LocationID)
		req.LocationID = &locationID
	}

	result, err := h.stocktakes.Update(c.Request.Context(), actor, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Delete removes a stocktake that never left PENDING
func (h *StocktakeHandler) Delete(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.stocktakeID(c)
	if !ok {
		return
	}

	if err := h.stocktakes.Delete(c.Request.Context(), actor, id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Get returns one stocktake with its count details
func (h *StocktakeHandler) Get(c *gin.Context) {
	id, ok := h.stocktakeID(c)
	if !ok {
		return
	}

	result, err := h.stocktakes.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// GetByNumber returns one stocktake by its document number
func (h *StocktakeHandler) GetByNumber(c *gin.Context) {
	number := c.Param("number")
	if number == "" {
		h.BadRequest(c, "Stocktake number is required")
		return
	}

	result, err := h.stocktakes.GetByNumber(c.Request.Context(), number)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ListStocktakesQuery filters stocktake list requests
type ListStocktakesQuery struct {
	Page        int    `form:"page" binding:"omitempty,min=1"`
	PageSize    int    `form:"page_size" binding:"omitempty,min=1,max=200"`
	OrderBy     string `form:"order_by"`
	OrderDir    string `form:"order_dir" binding:"omitempty,oneof=asc desc ASC DESC"`
	WarehouseID string `form:"warehouse_id" binding:"omitempty,uuid"`
	Status      string `form:"status"`
}

// List returns a filtered page of stocktakes
func (h *StocktakeHandler) List(c *gin.Context) {
	var query ListStocktakesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := inventory.StocktakeFilter{
		Filter: shared.Filter{
			Page:     query.Page,
			PageSize: query.PageSize,
			OrderBy:  query.OrderBy,
			OrderDir: query.OrderDir,
		},
	}
	if query.WarehouseID != "" {
		id := uuid.MustParse(query.WarehouseID)
		filter.WarehouseID = &id
	}
	if query.Status != "" {
		status := inventory.StocktakeStatus(query.Status)
		if !status.IsValid() {
			h.BadRequest(c, "Invalid stocktake status")
			return
		}
		filter.Status = &status
	}

	result, err := h.stocktakes.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, result.Items, result.Total, result.Page, result.PageSize)
}

// Start moves a draft stocktake into counting
func (h *StocktakeHandler) Start(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.stocktakeID(c)
	if !ok {
		return
	}

	result, err := h.stocktakes.Start(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// RecordCountBody is the request body for recording one counted quantity
type RecordCountBody struct {
	DetailID        string  `json:"detail_id" binding:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440010"`
	CountedQuantity float64 `json:"counted_quantity" binding:"gte=0" example:"47.0"`
	Notes           string  `json:"notes" example:"Two boxes found in overflow area"`
}

// RecordCount records a physical count for one stocktake line
func (h *StocktakeHandler) RecordCount(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.stocktakeID(c)
	if !ok {
		return
	}

	var body RecordCountBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.stocktakes.RecordCount(c.Request.Context(), actor, id, inventoryapp.RecordCountRequest{
		DetailID:        uuid.MustParse(body.DetailID),
		CountedQuantity: toDecimal(body.CountedQuantity),
		Notes:           body.Notes,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// FinishCounting closes the counting phase once every line is counted
func (h *StocktakeHandler) FinishCounting(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.stocktakeID(c)
	if !ok {
		return
	}

	result, err := h.stocktakes.FinishCounting(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Reconcile posts adjustment movements for every counted variance
func (h *StocktakeHandler) Reconcile(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.stocktakeID(c)
	if !ok {
		return
	}

	result, err := h.stocktakes.Reconcile(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Complete closes a reconciled stocktake
func (h *StocktakeHandler) Complete(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.stocktakeID(c)
	if !ok {
		return
	}

	result, err := h.stocktakes.Complete(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// CancelStocktakeBody is the request body for cancelling a stocktake
type CancelStocktakeBody struct {
	Reason string `json:"reason" binding:"required,min=1,max=255" example:"Duplicate of ST-2026-00012"`
}

// Cancel abandons a stocktake before reconciliation
func (h *StocktakeHandler) Cancel(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.stocktakeID(c)
	if !ok {
		return
	}

	var body CancelStocktakeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.stocktakes.Cancel(c.Request.Context(), actor, id, inventoryapp.CancelStocktakeRequest{
		Reason: body.Reason,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
