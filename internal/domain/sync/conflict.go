package sync

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/dropcraft/backend/internal/domain/catalog"
	"github.com/dropcraft/backend/internal/domain/platform"
)

// Field names compared between local and remote snapshots. The set is fixed:
// adding a field is a policy decision, not a call-site change.
const (
	FieldTitle          = "title"
	FieldDescription    = "description"
	FieldPrice          = "price"
	FieldCompareAtPrice = "compare_at_price"
	FieldStock          = "stock"
	FieldStatus         = "status"
)

// priceEpsilon is the tolerance for numeric field comparison, avoiding
// floating-point false positives from platform round-tripping.
var priceEpsilon = decimal.NewFromFloat(0.01)

// criticalFields encode money or inventory risk; their divergence is never
// silently auto-resolved except under the local_wins strategy.
var criticalFields = map[string]bool{
	FieldPrice:          true,
	FieldStock:          true,
	FieldCompareAtPrice: true,
}

// IsCriticalField returns true for fields biased toward manual review.
func IsCriticalField(field string) bool {
	return criticalFields[field]
}

// Conflict is a detected divergence between local and remote state for one
// (product, store, field) triple. It is a transient computation result
// consumed immediately by the resolver, never persisted as such.
type Conflict struct {
	ProductID       uuid.UUID
	StoreID         uuid.UUID
	Field           string
	LocalValue      string
	RemoteValue     string
	LocalUpdatedAt  time.Time
	RemoteUpdatedAt time.Time
}

// IsCritical returns true if the conflicted field is a critical field.
func (c Conflict) IsCritical() bool {
	return IsCriticalField(c.Field)
}

// DetectConflicts compares the comparable field set of a local product
// snapshot against a pulled remote snapshot and returns one conflict per
// diverging field. Numeric fields are equal within epsilon; string fields are
// equal after NFC normalization and trimming.
func DetectConflicts(local *catalog.Product, remote *platform.Product, storeID uuid.UUID) []Conflict {
	if local == nil || remote == nil {
		return nil
	}

	conflicts := make([]Conflict, 0)

	add := func(field, localVal, remoteVal string) {
		conflicts = append(conflicts, Conflict{
			ProductID:       local.ID,
			StoreID:         storeID,
			Field:           field,
			LocalValue:      localVal,
			RemoteValue:     remoteVal,
			LocalUpdatedAt:  local.UpdatedAt,
			RemoteUpdatedAt: remote.UpdatedAt,
		})
	}

	if !stringsEqual(local.Title, remote.Title) {
		add(FieldTitle, local.Title, remote.Title)
	}
	if !stringsEqual(local.Description, remote.Description) {
		add(FieldDescription, local.Description, remote.Description)
	}
	if !decimalsEqual(local.Price, remote.Price) {
		add(FieldPrice, local.Price.String(), remote.Price.String())
	}
	if !decimalsEqual(local.CompareAtPrice, remote.CompareAtPrice) {
		add(FieldCompareAtPrice, local.CompareAtPrice.String(), remote.CompareAtPrice.String())
	}
	if local.Stock != remote.Stock {
		add(FieldStock,
			decimal.NewFromInt(int64(local.Stock)).String(),
			decimal.NewFromInt(int64(remote.Stock)).String())
	}
	if !stringsEqual(local.Status, string(remote.Status)) {
		add(FieldStatus, local.Status, string(remote.Status))
	}

	return conflicts
}

// stringsEqual compares strings after NFC normalization and trimming, so a
// platform re-encoding a title does not register as a divergence.
func stringsEqual(a, b string) bool {
	return norm.NFC.String(strings.TrimSpace(a)) == norm.NFC.String(strings.TrimSpace(b))
}

// decimalsEqual compares decimals within the shared epsilon.
func decimalsEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(priceEpsilon)
}
