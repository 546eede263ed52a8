package ecommerce

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dropcraft/backend/internal/domain/platform"
)

// ---------------------------------------------------------------------------
// Shopify Admin REST API wire types
// ---------------------------------------------------------------------------

// ShopifyProductEnvelope wraps a single product in requests and responses.
type ShopifyProductEnvelope struct {
	Product ShopifyProduct `json:"product"`
}

// ShopifyProduct is the Admin API product shape. Pricing lives on variants;
// a product without explicit variants still carries one default variant.
type ShopifyProduct struct {
	ID          int64            `json:"id,omitempty"`
	Title       string           `json:"title"`
	BodyHTML    string           `json:"body_html,omitempty"`
	Vendor      string           `json:"vendor,omitempty"`
	ProductType string           `json:"product_type,omitempty"`
	Status      string           `json:"status,omitempty"`
	Tags        string           `json:"tags,omitempty"`
	Variants    []ShopifyVariant `json:"variants,omitempty"`
	Images      []ShopifyImage   `json:"images,omitempty"`
	UpdatedAt   time.Time        `json:"updated_at,omitempty"`
}

// ShopifyVariant is one sellable variant. Price is a decimal string on the
// wire; InventoryItemID is the handle needed for stock mutations.
type ShopifyVariant struct {
	ID                int64  `json:"id,omitempty"`
	SKU               string `json:"sku,omitempty"`
	Title             string `json:"title,omitempty"`
	Price             string `json:"price,omitempty"`
	CompareAtPrice    string `json:"compare_at_price,omitempty"`
	InventoryQuantity int    `json:"inventory_quantity,omitempty"`
	InventoryItemID   int64  `json:"inventory_item_id,omitempty"`
	Grams             int    `json:"grams,omitempty"`
}

// ShopifyImage is a product image reference.
type ShopifyImage struct {
	ID  int64  `json:"id,omitempty"`
	Src string `json:"src"`
}

// ShopifyInventoryLevelsEnvelope wraps inventory level listings.
type ShopifyInventoryLevelsEnvelope struct {
	InventoryLevels []ShopifyInventoryLevel `json:"inventory_levels"`
}

// ShopifyInventoryLevel ties an inventory item to a stock location.
type ShopifyInventoryLevel struct {
	InventoryItemID int64 `json:"inventory_item_id"`
	LocationID      int64 `json:"location_id"`
	Available       int   `json:"available"`
}

// ShopifyInventorySetRequest is the body of inventory_levels/set.json.
type ShopifyInventorySetRequest struct {
	LocationID      int64 `json:"location_id"`
	InventoryItemID int64 `json:"inventory_item_id"`
	Available       int   `json:"available"`
}

// ShopifyErrorResponse is the error shape the Admin API returns. Errors may
// be a plain string or a field map, so it stays raw.
type ShopifyErrorResponse struct {
	Errors any `json:"errors"`
}

// ---------------------------------------------------------------------------
// Conversions between wire and normalized shapes
// ---------------------------------------------------------------------------

// toShopifyProduct maps a normalized product onto the Shopify wire shape.
func toShopifyProduct(p *platform.Product) ShopifyProduct {
	sp := ShopifyProduct{
		Title:    p.Title,
		BodyHTML: p.Description,
		Status:   string(p.Status),
		Tags:     strings.Join(p.Tags, ", "),
	}

	if len(p.Variants) > 0 {
		for _, v := range p.Variants {
			sp.Variants = append(sp.Variants, ShopifyVariant{
				ID:                parseID(v.ExternalID),
				SKU:               v.SKU,
				Title:             v.Title,
				Price:             v.Price.StringFixed(2),
				CompareAtPrice:    compareAtString(v.CompareAtPrice),
				InventoryQuantity: v.Stock,
			})
		}
	} else {
		// Shopify models pricing exclusively on variants, so a simple
		// product is written as its single default variant.
		sp.Variants = []ShopifyVariant{{
			SKU:               p.SKU,
			Price:             p.Price.StringFixed(2),
			CompareAtPrice:    compareAtString(p.CompareAtPrice),
			InventoryQuantity: p.Stock,
			Grams:             int(p.Weight.IntPart()),
		}}
	}

	for _, src := range p.ImageURLs {
		sp.Images = append(sp.Images, ShopifyImage{Src: src})
	}
	return sp
}

// toPlatformProduct normalizes a Shopify product. The first variant supplies
// the product-level price and stock.
func (sp *ShopifyProduct) toPlatformProduct() *platform.Product {
	p := &platform.Product{
		ExternalID:  strconv.FormatInt(sp.ID, 10),
		Title:       sp.Title,
		Description: sp.BodyHTML,
		Status:      shopifyStatusToPlatform(sp.Status),
		Tags:        splitTags(sp.Tags),
		UpdatedAt:   sp.UpdatedAt,
	}

	for _, img := range sp.Images {
		p.ImageURLs = append(p.ImageURLs, img.Src)
	}

	for i, v := range sp.Variants {
		variant := platform.Variant{
			ExternalID:     strconv.FormatInt(v.ID, 10),
			SKU:            v.SKU,
			Title:          v.Title,
			Price:          parseDecimal(v.Price),
			CompareAtPrice: parseDecimal(v.CompareAtPrice),
			Stock:          v.InventoryQuantity,
		}
		p.Variants = append(p.Variants, variant)

		if i == 0 {
			p.SKU = v.SKU
			p.Price = variant.Price
			p.CompareAtPrice = variant.CompareAtPrice
			p.Stock = v.InventoryQuantity
			p.Weight = decimal.NewFromInt(int64(v.Grams))
		}
	}
	return p
}

func shopifyStatusToPlatform(status string) platform.ProductStatus {
	switch status {
	case "active":
		return platform.ProductStatusActive
	case "archived":
		return platform.ProductStatusArchived
	default:
		return platform.ProductStatusDraft
	}
}

// compareAtString renders a compare-at price, empty when unset so the field
// is omitted on the wire.
func compareAtString(d decimal.Decimal) string {
	if d.IsZero() {
		return ""
	}
	return d.StringFixed(2)
}

// parseDecimal parses a wire decimal string, zero on empty or garbage.
func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// splitTags parses Shopify's comma-separated tag string.
func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// parseID parses a numeric external id, zero on empty.
func parseID(s string) int64 {
	if s == "" {
		return 0
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
