package platform

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Platform Errors
// ---------------------------------------------------------------------------

var (
	// Adapter/transport errors
	ErrPlatformNotConfigured   = errors.New("platform: platform not configured")
	ErrPlatformUnavailable     = errors.New("platform: platform temporarily unavailable")
	ErrPlatformRequestFailed   = errors.New("platform: platform request failed")
	ErrPlatformInvalidResponse = errors.New("platform: invalid platform response")
	ErrPlatformAuthFailed      = errors.New("platform: platform authentication failed")
	ErrPlatformRateLimited     = errors.New("platform: platform rate limited")
	ErrPlatformValidation      = errors.New("platform: platform rejected the payload")
	ErrProductNotFound         = errors.New("platform: product not found on platform")

	// Credential errors
	ErrInvalidCredentials = errors.New("platform: invalid or incomplete credentials")

	// Registry errors
	ErrUnknownPlatform = errors.New("platform: unknown platform code")

	// Store/link errors
	ErrStoreNotFound       = errors.New("platform: store not found")
	ErrLinkNotFound        = errors.New("platform: product store link not found")
	ErrInvalidStoreID      = errors.New("platform: invalid store ID")
	ErrInvalidProductID    = errors.New("platform: invalid product ID")
	ErrInvalidOwnerID      = errors.New("platform: invalid owner ID")
	ErrInvalidPlatformCode = errors.New("platform: invalid platform code")
)

// ---------------------------------------------------------------------------
// Code identifies a remote e-commerce platform
// ---------------------------------------------------------------------------

// Code identifies a remote e-commerce platform.
type Code string

const (
	// CodeShopify represents Shopify stores
	CodeShopify Code = "shopify"
	// CodeWooCommerce represents WooCommerce stores
	CodeWooCommerce Code = "woocommerce"
)

// IsValid returns true if the platform code is a supported platform.
func (c Code) IsValid() bool {
	switch c {
	case CodeShopify, CodeWooCommerce:
		return true
	default:
		return false
	}
}

// String returns the string representation of the platform code.
func (c Code) String() string {
	return string(c)
}

// ---------------------------------------------------------------------------
// Product value objects
// ---------------------------------------------------------------------------

// ProductStatus represents the listing state of a product on a platform.
type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "active"
	ProductStatusDraft    ProductStatus = "draft"
	ProductStatusArchived ProductStatus = "archived"
)

// Product is the normalized, adapter-agnostic representation of a remote
// product. It is the contract boundary between the sync orchestrator and any
// concrete adapter; no platform-specific shape leaks past it.
type Product struct {
	// ExternalID is the product id on the platform (empty for new products)
	ExternalID string
	// Title is the product title
	Title string
	// Description is the product description (may contain HTML)
	Description string
	// SKU is the stock keeping unit
	SKU string
	// Price is the selling price
	Price decimal.Decimal
	// CompareAtPrice is the original/strike-through price (zero if unset)
	CompareAtPrice decimal.Decimal
	// Stock is the available quantity
	Stock int
	// Currency is the price currency (ISO 4217)
	Currency string
	// ImageURLs contains product image URLs in display order
	ImageURLs []string
	// Tags contains free-form product tags
	Tags []string
	// Status is the listing state on the platform
	Status ProductStatus
	// Weight is the product weight in grams
	Weight decimal.Decimal
	// Variants contains the product variants, if any
	Variants []Variant
	// UpdatedAt is when the product was last modified on its source system
	UpdatedAt time.Time
}

// Variant is one sellable variation of a product.
type Variant struct {
	// ExternalID is the variant id on the platform (empty for new variants)
	ExternalID string
	// SKU is the variant stock keeping unit
	SKU string
	// Title is the variant option name (e.g. "Blue / L")
	Title string
	// Price is the variant price
	Price decimal.Decimal
	// CompareAtPrice is the variant strike-through price
	CompareAtPrice decimal.Decimal
	// Stock is the variant quantity
	Stock int
}

// PushResult carries the platform-assigned identity of a pushed product so
// the caller can persist it on the product store link.
type PushResult struct {
	// ExternalID is the product id assigned by the platform
	ExternalID string
	// URL is the storefront or admin URL of the product, when known
	URL string
}

// ---------------------------------------------------------------------------
// Adapter port
// ---------------------------------------------------------------------------

// Adapter is the normalized capability contract to one remote e-commerce
// platform. Concrete implementations (Shopify, WooCommerce) live in the
// infrastructure layer; credentials are validated at construction, so an
// adapter value is always ready to make calls.
type Adapter interface {
	// Code returns the platform this adapter speaks to.
	Code() Code

	// TestConnection verifies credentials and reachability without mutating
	// any remote state.
	TestConnection(ctx context.Context) error

	// PushProduct creates the product when ExternalID is empty, otherwise
	// updates the existing remote product. The returned external id must be
	// persisted by the caller.
	PushProduct(ctx context.Context, p *Product) (*PushResult, error)

	// PullProduct fetches the product's remote state, normalized into the
	// shared Product shape. This is the read side feeding conflict detection.
	PullProduct(ctx context.Context, externalID string) (*Product, error)

	// UpdateStock sets the available quantity of a product, performing any
	// secondary lookups the platform requires transparently.
	UpdateStock(ctx context.Context, externalID string, quantity int) error

	// UpdatePrice sets the selling price of a product.
	UpdatePrice(ctx context.Context, externalID string, price decimal.Decimal) error

	// DeleteProduct removes the product from the platform.
	DeleteProduct(ctx context.Context, externalID string) error
}

// Credentials is the decoded credential set for one store. Which fields are
// required depends on the platform; each adapter constructor validates the
// fields it needs and fails fast before any network call.
type Credentials struct {
	// ShopURL is the store base URL (Shopify domain or WooCommerce site URL)
	ShopURL string
	// AccessToken is the API access token (Shopify)
	AccessToken string
	// ConsumerKey is the REST consumer key (WooCommerce)
	ConsumerKey string
	// ConsumerSecret is the REST consumer secret (WooCommerce)
	ConsumerSecret string
	// APIVersion overrides the default platform API version
	APIVersion string
}

// Registry resolves a platform code to a ready adapter for a given store's
// credentials. It is a closed registry: adding a platform means adding one
// registry entry, never a conditional branch at a call site.
type Registry interface {
	// New constructs an adapter for the platform with the given credentials.
	New(code Code, creds Credentials) (Adapter, error)

	// Codes returns the platform codes this registry can construct.
	Codes() []Code
}

// ---------------------------------------------------------------------------
// Store entity
// ---------------------------------------------------------------------------

// Store is a connected remote storefront owned by a user.
type Store struct {
	ID       uuid.UUID
	OwnerID  uuid.UUID
	Name     string
	Platform Code
	// CredentialsCiphertext holds the encrypted credential blob; decoding is
	// the secrets layer's concern.
	CredentialsCiphertext []byte
	IsActive              bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// NewStore creates a connected store record.
func NewStore(ownerID uuid.UUID, name string, code Code, credentialsCiphertext []byte) (*Store, error) {
	if ownerID == uuid.Nil {
		return nil, ErrInvalidOwnerID
	}
	if !code.IsValid() {
		return nil, ErrInvalidPlatformCode
	}
	if name == "" {
		return nil, errors.New("platform: store name is required")
	}

	now := time.Now()
	return &Store{
		ID:                    uuid.New(),
		OwnerID:               ownerID,
		Name:                  name,
		Platform:              code,
		CredentialsCiphertext: credentialsCiphertext,
		IsActive:              true,
		CreatedAt:             now,
		UpdatedAt:             now,
	}, nil
}

// StoreRepository persists connected stores.
type StoreRepository interface {
	// FindByID finds a store by id.
	FindByID(ctx context.Context, id uuid.UUID) (*Store, error)

	// FindByIDForOwner finds a store by id scoped to its owner.
	FindByIDForOwner(ctx context.Context, ownerID, id uuid.UUID) (*Store, error)

	// ListActiveByOwner lists a user's active stores.
	ListActiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]Store, error)

	// Save creates or updates a store.
	Save(ctx context.Context, s *Store) error
}
