package ecommerce

import (
	"errors"
	"strings"
)

// WooCommerceAPIPrefix is the REST API route prefix.
const WooCommerceAPIPrefix = "/wp-json/wc/v3"

// Errors for WooCommerce configuration
var (
	ErrWooConfigMissingSiteURL        = errors.New("woocommerce: site URL is required")
	ErrWooConfigMissingConsumerKey    = errors.New("woocommerce: consumer key is required")
	ErrWooConfigMissingConsumerSecret = errors.New("woocommerce: consumer secret is required")
)

// WooCommerceConfig holds configuration for the WooCommerce REST API.
type WooCommerceConfig struct {
	// SiteURL is the WordPress site base URL
	SiteURL string
	// ConsumerKey is the REST API consumer key
	ConsumerKey string
	// ConsumerSecret is the REST API consumer secret
	ConsumerSecret string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
}

// NewWooCommerceConfig creates a WooCommerce configuration with defaults.
func NewWooCommerceConfig(siteURL, consumerKey, consumerSecret string) *WooCommerceConfig {
	return &WooCommerceConfig{
		SiteURL:        siteURL,
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		TimeoutSeconds: 30,
	}
}

// Validate validates the WooCommerce configuration, normalizing the site URL.
func (c *WooCommerceConfig) Validate() error {
	if c.SiteURL == "" {
		return ErrWooConfigMissingSiteURL
	}
	if c.ConsumerKey == "" {
		return ErrWooConfigMissingConsumerKey
	}
	if c.ConsumerSecret == "" {
		return ErrWooConfigMissingConsumerSecret
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if !strings.HasPrefix(c.SiteURL, "http://") && !strings.HasPrefix(c.SiteURL, "https://") {
		c.SiteURL = "https://" + c.SiteURL
	}
	c.SiteURL = strings.TrimRight(c.SiteURL, "/")
	return nil
}

// BaseURL returns the REST API base URL.
func (c *WooCommerceConfig) BaseURL() string {
	return c.SiteURL + WooCommerceAPIPrefix
}
