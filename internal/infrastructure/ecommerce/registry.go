package ecommerce

import (
	"fmt"
	"sort"

	"github.com/dropcraft/backend/internal/domain/platform"
)

// adapterFactory builds a ready adapter from decoded store credentials.
type adapterFactory func(creds platform.Credentials) (platform.Adapter, error)

// AdapterRegistry implements platform.Registry over a closed factory table.
// The table is fixed at construction; supporting a new platform means adding
// a factory here and nowhere else.
type AdapterRegistry struct {
	factories map[platform.Code]adapterFactory
}

// NewAdapterRegistry creates the registry with all supported platforms.
func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{
		factories: map[platform.Code]adapterFactory{
			platform.CodeShopify: func(creds platform.Credentials) (platform.Adapter, error) {
				cfg := NewShopifyConfig(creds.ShopURL, creds.AccessToken)
				if creds.APIVersion != "" {
					cfg.APIVersion = creds.APIVersion
				}
				return NewShopifyAdapter(cfg)
			},
			platform.CodeWooCommerce: func(creds platform.Credentials) (platform.Adapter, error) {
				cfg := NewWooCommerceConfig(creds.ShopURL, creds.ConsumerKey, creds.ConsumerSecret)
				return NewWooCommerceAdapter(cfg)
			},
		},
	}
}

// New constructs an adapter for the platform with the given credentials.
func (r *AdapterRegistry) New(code platform.Code, creds platform.Credentials) (platform.Adapter, error) {
	factory, ok := r.factories[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", platform.ErrUnknownPlatform, code)
	}
	return factory(creds)
}

// Codes returns the supported platform codes, sorted.
func (r *AdapterRegistry) Codes() []platform.Code {
	codes := make([]platform.Code, 0, len(r.factories))
	for code := range r.factories {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

var _ platform.Registry = (*AdapterRegistry)(nil)
