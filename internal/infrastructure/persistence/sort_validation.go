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

// JobSortFields contains allowed sort fields for ledger jobs
var JobSortFields = map[string]bool{
	"id":              true,
	"created_at":      true,
	"updated_at":      true,
	"type":            true,
	"subtype":         true,
	"status":          true,
	"total_items":     true,
	"processed_items": true,
	"failed_items":    true,
	"started_at":      true,
	"completed_at":    true,
}

// StoreSortFields contains allowed sort fields for connected stores
var StoreSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"name":       true,
	"platform":   true,
	"is_active":  true,
}

// ProductSortFields contains allowed sort fields for products
var ProductSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"title":      true,
	"sku":        true,
	"price":      true,
	"stock":      true,
	"status":     true,
}

// LinkSortFields contains allowed sort fields for product-store links
var LinkSortFields = map[string]bool{
	"id":           true,
	"created_at":   true,
	"updated_at":   true,
	"product_id":   true,
	"store_id":     true,
	"sync_status":  true,
	"last_sync_at": true,
}
