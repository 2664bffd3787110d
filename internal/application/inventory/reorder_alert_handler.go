package inventory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/stockledger/backend/internal/domain/inventory"
	"github.com/stockledger/backend/internal/domain/shared"
)

// ReorderAlertHandler listens for stock dropping to its reorder level
// and pushes an alert through the configured notifier. Notification
// failure never fails the movement that raised the event.
type ReorderAlertHandler struct {
	logger   *zap.Logger
	notifier ReorderAlertNotifier
}

// ReorderAlertNotifier delivers reorder alerts. Implementations can
// target different channels (in-app, email, purchasing queue).
type ReorderAlertNotifier interface {
	SendAlert(ctx context.Context, alert ReorderAlert) error
}

// ReorderAlert is one replenishment suggestion
type ReorderAlert struct {
	ProductID       string `json:"product_id"`
	WarehouseID     string `json:"warehouse_id"`
	LocationID      string `json:"location_id"`
	CurrentQuantity string `json:"current_quantity"`
	ReorderLevel    string `json:"reorder_level"`
	ReorderQuantity string `json:"reorder_quantity"`
	AlertType       string `json:"alert_type"` // "low_stock" or "out_of_stock"
}

// NewReorderAlertHandler creates a handler for reorder level events
func NewReorderAlertHandler(logger *zap.Logger) *ReorderAlertHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReorderAlertHandler{logger: logger}
}

// WithNotifier sets the notifier for sending alerts
func (h *ReorderAlertHandler) WithNotifier(notifier ReorderAlertNotifier) *ReorderAlertHandler {
	h.notifier = notifier
	return h
}

// EventTypes returns the event types this handler is interested in
func (h *ReorderAlertHandler) EventTypes() []string {
	return []string{inventory.EventStockBelowReorderLevel}
}

// Handle processes a StockBelowReorderLevelEvent
func (h *ReorderAlertHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	alertEvent, ok := event.(*inventory.StockBelowReorderLevelEvent)
	if !ok {
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			inventory.EventStockBelowReorderLevel, event.EventType())
	}

	alertType := "low_stock"
	if alertEvent.Quantity.IsZero() {
		alertType = "out_of_stock"
	}

	h.logger.Warn("stock at or below reorder level",
		zap.String("product_id", alertEvent.ProductID.String()),
		zap.String("warehouse_id", alertEvent.WarehouseID.String()),
		zap.String("quantity", alertEvent.Quantity.String()),
		zap.String("reorder_level", alertEvent.ReorderLevel.String()),
		zap.String("alert_type", alertType),
	)

	if h.notifier == nil {
		return nil
	}
	alert := ReorderAlert{
		ProductID:       alertEvent.ProductID.String(),
		WarehouseID:     alertEvent.WarehouseID.String(),
		LocationID:      alertEvent.LocationID.String(),
		CurrentQuantity: alertEvent.Quantity.String(),
		ReorderLevel:    alertEvent.ReorderLevel.String(),
		ReorderQuantity: alertEvent.ReorderQuantity.String(),
		AlertType:       alertType,
	}
	if err := h.notifier.SendAlert(ctx, alert); err != nil {
		h.logger.Error("failed to send reorder alert",
			zap.String("product_id", alert.ProductID),
			zap.Error(err),
		)
	}
	return nil
}

var _ shared.EventHandler = (*ReorderAlertHandler)(nil)

// LoggingReorderAlertNotifier logs alerts instead of delivering them.
// Useful in development and as the default wiring.
type LoggingReorderAlertNotifier struct {
	logger *zap.Logger
}

// NewLoggingReorderAlertNotifier creates a logging notifier
func NewLoggingReorderAlertNotifier(logger *zap.Logger) *LoggingReorderAlertNotifier {
	return &LoggingReorderAlertNotifier{logger: logger}
}

// SendAlert logs the reorder alert
func (n *LoggingReorderAlertNotifier) SendAlert(_ context.Context, alert ReorderAlert) error {
	n.logger.Warn("REORDER ALERT",
		zap.String("type", alert.AlertType),
		zap.String("product_id", alert.ProductID),
		zap.String("warehouse_id", alert.WarehouseID),
		zap.String("current_qty", alert.CurrentQuantity),
		zap.String("reorder_level", alert.ReorderLevel),
		zap.String("suggested_qty", alert.ReorderQuantity),
	)
	return nil
}

var _ ReorderAlertNotifier = (*LoggingReorderAlertNotifier)(nil)
