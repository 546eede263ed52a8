package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound  = errors.New("catalog: product not found")
	ErrInvalidProductID = errors.New("catalog: invalid product ID")
)

// Product is the local catalog snapshot the sync engine reads and writes.
// Only the fields that cross the platform boundary are modeled here; the
// wider catalog (categories, units, attachments) is owned elsewhere.
type Product struct {
	ID             uuid.UUID
	OwnerID        uuid.UUID
	Title          string
	Description    string
	SKU            string
	Price          decimal.Decimal
	CompareAtPrice decimal.Decimal
	Stock          int
	Currency       string
	ImageURLs      []string
	Tags           []string
	Status         string
	Weight         decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Repository is the narrow catalog surface the sync engine depends on.
type Repository interface {
	// FindByID finds a product by id.
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)

	// FindByIDs loads a set of products keyed by id.
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Product, error)

	// UpdateFields writes the given field values onto a product, the apply
	// step for pull-direction conflict resolutions.
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
}
