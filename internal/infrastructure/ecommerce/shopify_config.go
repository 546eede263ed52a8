package ecommerce

import (
	"errors"
	"strings"
)

// ShopifyDefaultAPIVersion is the Admin API version used when none is configured.
const ShopifyDefaultAPIVersion = "2024-01"

// Errors for Shopify configuration
var (
	ErrShopifyConfigMissingShopURL = errors.New("shopify: shop URL is required")
	ErrShopifyConfigMissingToken   = errors.New("shopify: access token is required")
)

// ShopifyConfig holds configuration for the Shopify Admin REST API.
type ShopifyConfig struct {
	// ShopURL is the myshopify.com domain of the store
	ShopURL string
	// AccessToken is the Admin API access token
	AccessToken string
	// APIVersion is the Admin API version, e.g. "2024-01"
	APIVersion string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
}

// NewShopifyConfig creates a Shopify configuration with defaults.
func NewShopifyConfig(shopURL, accessToken string) *ShopifyConfig {
	return &ShopifyConfig{
		ShopURL:        shopURL,
		AccessToken:    accessToken,
		APIVersion:     ShopifyDefaultAPIVersion,
		TimeoutSeconds: 30,
	}
}

// Validate validates the Shopify configuration, normalizing the shop URL.
func (c *ShopifyConfig) Validate() error {
	if c.ShopURL == "" {
		return ErrShopifyConfigMissingShopURL
	}
	if c.AccessToken == "" {
		return ErrShopifyConfigMissingToken
	}
	if c.APIVersion == "" {
		c.APIVersion = ShopifyDefaultAPIVersion
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if !strings.HasPrefix(c.ShopURL, "http://") && !strings.HasPrefix(c.ShopURL, "https://") {
		c.ShopURL = "https://" + c.ShopURL
	}
	c.ShopURL = strings.TrimRight(c.ShopURL, "/")
	return nil
}

// BaseURL returns the versioned Admin API base URL.
func (c *ShopifyConfig) BaseURL() string {
	return c.ShopURL + "/admin/api/" + c.APIVersion
}
