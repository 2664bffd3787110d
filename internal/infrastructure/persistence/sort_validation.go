package persistence

import (
	"strings"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// SnapshotSortFields contains allowed sort fields for inventory snapshots
var SnapshotSortFields = map[string]bool{
	"id":              true,
	"created_at":      true,
	"updated_at":      true,
	"product_id":      true,
	"warehouse_id":    true,
	"location_id":     true,
	"lot_number":      true,
	"quantity":        true,
	"unit_cost":       true,
	"reorder_level":   true,
	"expiration_date": true,
}

// TransactionSortFields contains allowed sort fields for the movement ledger
var TransactionSortFields = map[string]bool{
	"id":               true,
	"created_at":       true,
	"transaction_date": true,
	"type":             true,
	"product_id":       true,
	"warehouse_id":     true,
	"quantity":         true,
	"reference_type":   true,
	"reference_id":     true,
}

// StocktakeSortFields contains allowed sort fields for stocktakes
var StocktakeSortFields = map[string]bool{
	"id":               true,
	"created_at":       true,
	"updated_at":       true,
	"stocktake_number": true,
	"warehouse_id":     true,
	"status":           true,
	"started_at":       true,
	"completed_at":     true,
}
