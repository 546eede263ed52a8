package ecommerce

import (
	"strconv"
	"time"

	"github.com/dropcraft/backend/internal/domain/platform"
)

// ---------------------------------------------------------------------------
// WooCommerce REST API wire types
// ---------------------------------------------------------------------------

// WooProduct is the WooCommerce product shape. Unlike Shopify, pricing and
// stock live flat on the product; regular_price is the list price and
// sale_price the discounted one.
type WooProduct struct {
	ID               int64      `json:"id,omitempty"`
	Name             string     `json:"name"`
	Description      string     `json:"description,omitempty"`
	ShortDescription string     `json:"short_description,omitempty"`
	SKU              string     `json:"sku,omitempty"`
	RegularPrice     string     `json:"regular_price,omitempty"`
	SalePrice        string     `json:"sale_price,omitempty"`
	Price            string     `json:"price,omitempty"`
	StockQuantity    *int       `json:"stock_quantity,omitempty"`
	ManageStock      bool       `json:"manage_stock"`
	Status           string     `json:"status,omitempty"`
	Permalink        string     `json:"permalink,omitempty"`
	Images           []WooImage `json:"images,omitempty"`
	Tags             []WooTag   `json:"tags,omitempty"`
	Weight           string     `json:"weight,omitempty"`
	DateModifiedGMT  WooTime    `json:"date_modified_gmt,omitempty"`
}

// WooImage is a product image reference.
type WooImage struct {
	ID  int64  `json:"id,omitempty"`
	Src string `json:"src"`
}

// WooTag is a product tag reference.
type WooTag struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name"`
}

// WooTime handles WooCommerce's timezone-less timestamp format.
type WooTime struct {
	time.Time
}

// UnmarshalJSON parses "2006-01-02T15:04:05" timestamps, tolerating RFC3339.
func (t *WooTime) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `""` {
		t.Time = time.Time{}
		return nil
	}
	s = s[1 : len(s)-1]
	parsed, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339, s)
		if err != nil {
			t.Time = time.Time{}
			return nil
		}
	}
	t.Time = parsed.UTC()
	return nil
}

// MarshalJSON renders the WooCommerce timestamp format.
func (t WooTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + t.Format("2006-01-02T15:04:05") + `"`), nil
}

// WooErrorResponse is the REST API error shape.
type WooErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ---------------------------------------------------------------------------
// Conversions between wire and normalized shapes
// ---------------------------------------------------------------------------

// toWooProduct maps a normalized product onto the WooCommerce wire shape.
// A compare-at price becomes regular_price with the actual price as
// sale_price, matching how WooCommerce models strike-through pricing.
func toWooProduct(p *platform.Product) WooProduct {
	stock := p.Stock
	wp := WooProduct{
		Name:          p.Title,
		Description:   p.Description,
		SKU:           p.SKU,
		StockQuantity: &stock,
		ManageStock:   true,
		Status:        wooStatusFromPlatform(p.Status),
	}

	if p.CompareAtPrice.IsPositive() {
		wp.RegularPrice = p.CompareAtPrice.StringFixed(2)
		wp.SalePrice = p.Price.StringFixed(2)
	} else {
		wp.RegularPrice = p.Price.StringFixed(2)
	}

	if p.Weight.IsPositive() {
		wp.Weight = p.Weight.String()
	}
	for _, src := range p.ImageURLs {
		wp.Images = append(wp.Images, WooImage{Src: src})
	}
	for _, tag := range p.Tags {
		wp.Tags = append(wp.Tags, WooTag{Name: tag})
	}
	return wp
}

// toPlatformProduct normalizes a WooCommerce product.
func (wp *WooProduct) toPlatformProduct() *platform.Product {
	p := &platform.Product{
		ExternalID:  strconv.FormatInt(wp.ID, 10),
		Title:       wp.Name,
		Description: wp.Description,
		SKU:         wp.SKU,
		Status:      wooStatusToPlatform(wp.Status),
		Weight:      parseDecimal(wp.Weight),
		UpdatedAt:   wp.DateModifiedGMT.Time,
	}

	// An active sale means sale_price is what buyers pay and regular_price
	// is the strike-through.
	if wp.SalePrice != "" {
		p.Price = parseDecimal(wp.SalePrice)
		p.CompareAtPrice = parseDecimal(wp.RegularPrice)
	} else if wp.RegularPrice != "" {
		p.Price = parseDecimal(wp.RegularPrice)
	} else {
		p.Price = parseDecimal(wp.Price)
	}

	if wp.StockQuantity != nil {
		p.Stock = *wp.StockQuantity
	}
	for _, img := range wp.Images {
		p.ImageURLs = append(p.ImageURLs, img.Src)
	}
	for _, tag := range wp.Tags {
		p.Tags = append(p.Tags, tag.Name)
	}
	return p
}

func wooStatusFromPlatform(status platform.ProductStatus) string {
	switch status {
	case platform.ProductStatusActive:
		return "publish"
	case platform.ProductStatusArchived:
		return "private"
	default:
		return "draft"
	}
}

func wooStatusToPlatform(status string) platform.ProductStatus {
	switch status {
	case "publish":
		return platform.ProductStatusActive
	case "private":
		return platform.ProductStatusArchived
	default:
		return platform.ProductStatusDraft
	}
}
