package ecommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dropcraft/backend/internal/domain/platform"
)

// WooCommerceAdapter implements platform.Adapter for the WooCommerce REST API.
type WooCommerceAdapter struct {
	config     *WooCommerceConfig
	httpClient *http.Client
}

// NewWooCommerceAdapter creates a WooCommerce adapter with the given configuration.
func NewWooCommerceAdapter(config *WooCommerceConfig) (*WooCommerceAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", platform.ErrInvalidCredentials, err)
	}
	return &WooCommerceAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
	}, nil
}

// Code returns the platform code this adapter handles.
func (a *WooCommerceAdapter) Code() platform.Code {
	return platform.CodeWooCommerce
}

// TestConnection verifies credentials with a minimal product listing.
func (a *WooCommerceAdapter) TestConnection(ctx context.Context) error {
	_, err := a.doRequest(ctx, http.MethodGet, "/products?per_page=1", nil)
	return err
}

// PushProduct creates or updates the product on WooCommerce.
func (a *WooCommerceAdapter) PushProduct(ctx context.Context, p *platform.Product) (*platform.PushResult, error) {
	wp := toWooProduct(p)
	body, err := json.Marshal(wp)
	if err != nil {
		return nil, fmt.Errorf("woocommerce: failed to encode product: %w", err)
	}

	method := http.MethodPost
	path := "/products"
	if p.ExternalID != "" {
		method = http.MethodPut
		path = "/products/" + p.ExternalID
	}

	respBody, err := a.doRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	var resp WooProduct
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", platform.ErrPlatformInvalidResponse, err)
	}
	if resp.ID == 0 {
		return nil, fmt.Errorf("%w: response missing product id", platform.ErrPlatformInvalidResponse)
	}

	return &platform.PushResult{
		ExternalID: strconv.FormatInt(resp.ID, 10),
		URL:        resp.Permalink,
	}, nil
}

// PullProduct fetches the remote product, normalized.
func (a *WooCommerceAdapter) PullProduct(ctx context.Context, externalID string) (*platform.Product, error) {
	respBody, err := a.doRequest(ctx, http.MethodGet, "/products/"+externalID, nil)
	if err != nil {
		return nil, err
	}

	var resp WooProduct
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", platform.ErrPlatformInvalidResponse, err)
	}
	return resp.toPlatformProduct(), nil
}

// UpdateStock sets the stock quantity. WooCommerce mutates stock directly on
// the product, no secondary lookups needed.
func (a *WooCommerceAdapter) UpdateStock(ctx context.Context, externalID string, quantity int) error {
	update := map[string]any{
		"manage_stock":   true,
		"stock_quantity": quantity,
	}
	body, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("woocommerce: failed to encode stock update: %w", err)
	}
	_, err = a.doRequest(ctx, http.MethodPut, "/products/"+externalID, body)
	return err
}

// UpdatePrice sets the regular price of the product.
func (a *WooCommerceAdapter) UpdatePrice(ctx context.Context, externalID string, price decimal.Decimal) error {
	update := map[string]any{
		"regular_price": price.StringFixed(2),
	}
	body, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("woocommerce: failed to encode price update: %w", err)
	}
	_, err = a.doRequest(ctx, http.MethodPut, "/products/"+externalID, body)
	return err
}

// DeleteProduct removes the product, bypassing the trash.
func (a *WooCommerceAdapter) DeleteProduct(ctx context.Context, externalID string) error {
	_, err := a.doRequest(ctx, http.MethodDelete, "/products/"+externalID+"?force=true", nil)
	return err
}

// doRequest performs one authenticated REST call with the same single
// in-call 429 retry as the Shopify adapter.
func (a *WooCommerceAdapter) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	respBody, status, err := a.doRequestOnce(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if status == http.StatusTooManyRequests {
		if err := sleepRetryAfter(ctx, retryAfterOf(respBody.header)); err != nil {
			return nil, err
		}
		respBody, status, err = a.doRequestOnce(ctx, method, path, body)
		if err != nil {
			return nil, err
		}
	}
	return a.checkResponse(respBody.data, status)
}

func (a *WooCommerceAdapter) doRequestOnce(ctx context.Context, method, path string, body []byte) (responseData, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.config.BaseURL()+path, reader)
	if err != nil {
		return responseData{}, 0, fmt.Errorf("woocommerce: failed to create request: %w", err)
	}
	req.SetBasicAuth(a.config.ConsumerKey, a.config.ConsumerSecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return responseData{}, 0, fmt.Errorf("%w: %v", platform.ErrPlatformUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return responseData{}, 0, fmt.Errorf("woocommerce: failed to read response: %w", err)
	}
	return responseData{data: data, header: resp.Header}, resp.StatusCode, nil
}

// checkResponse maps HTTP status codes onto the shared platform sentinels.
func (a *WooCommerceAdapter) checkResponse(body []byte, status int) ([]byte, error) {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, fmt.Errorf("%w: HTTP %d", platform.ErrPlatformAuthFailed, status)
	case status == http.StatusNotFound:
		return nil, platform.ErrProductNotFound
	case status == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: HTTP 429", platform.ErrPlatformRateLimited)
	case status == http.StatusBadRequest:
		return nil, fmt.Errorf("%w: %s", platform.ErrPlatformValidation, wooErrorDetail(body))
	case status >= 500:
		return nil, fmt.Errorf("%w: HTTP %d", platform.ErrPlatformUnavailable, status)
	case status >= 400:
		return nil, fmt.Errorf("%w: HTTP %d: %s", platform.ErrPlatformRequestFailed, status, wooErrorDetail(body))
	}
	return body, nil
}

// wooErrorDetail extracts the code and message of a REST error body.
func wooErrorDetail(body []byte) string {
	var errResp WooErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		return errResp.Code + ": " + errResp.Message
	}
	const limit = 200
	if len(body) > limit {
		body = body[:limit]
	}
	return string(body)
}

var _ platform.Adapter = (*WooCommerceAdapter)(nil)
