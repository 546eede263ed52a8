// Package ecommerce contains the concrete platform adapters behind the
// normalized platform.Adapter port, one per remote e-commerce platform.
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

// maxResponseSize caps how much of a platform response is read (10MB).
const maxResponseSize = 10 * 1024 * 1024

// maxRetryAfter bounds how long an in-call 429 micro-retry will sleep before
// giving up and surfacing the rate limit to the task retry machinery.
const maxRetryAfter = 30 * time.Second

// ShopifyAdapter implements platform.Adapter for the Shopify Admin REST API.
type ShopifyAdapter struct {
	config     *ShopifyConfig
	httpClient *http.Client
}

// NewShopifyAdapter creates a Shopify adapter with the given configuration.
func NewShopifyAdapter(config *ShopifyConfig) (*ShopifyAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", platform.ErrInvalidCredentials, err)
	}
	return &ShopifyAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
	}, nil
}

// Code returns the platform code this adapter handles.
func (a *ShopifyAdapter) Code() platform.Code {
	return platform.CodeShopify
}

// TestConnection verifies credentials by fetching the shop resource.
func (a *ShopifyAdapter) TestConnection(ctx context.Context) error {
	_, err := a.doRequest(ctx, http.MethodGet, "/shop.json", nil)
	return err
}

// PushProduct creates or updates the product on Shopify, depending on
// whether it already carries an external id.
func (a *ShopifyAdapter) PushProduct(ctx context.Context, p *platform.Product) (*platform.PushResult, error) {
	envelope := ShopifyProductEnvelope{Product: toShopifyProduct(p)}
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("shopify: failed to encode product: %w", err)
	}

	method := http.MethodPost
	path := "/products.json"
	if p.ExternalID != "" {
		method = http.MethodPut
		path = "/products/" + p.ExternalID + ".json"
		envelope.Product.ID = parseID(p.ExternalID)
		if body, err = json.Marshal(envelope); err != nil {
			return nil, fmt.Errorf("shopify: failed to encode product: %w", err)
		}
	}

	respBody, err := a.doRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	var resp ShopifyProductEnvelope
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", platform.ErrPlatformInvalidResponse, err)
	}
	if resp.Product.ID == 0 {
		return nil, fmt.Errorf("%w: response missing product id", platform.ErrPlatformInvalidResponse)
	}

	externalID := strconv.FormatInt(resp.Product.ID, 10)
	return &platform.PushResult{
		ExternalID: externalID,
		URL:        a.config.ShopURL + "/admin/products/" + externalID,
	}, nil
}

// PullProduct fetches the remote product, normalized.
func (a *ShopifyAdapter) PullProduct(ctx context.Context, externalID string) (*platform.Product, error) {
	respBody, err := a.doRequest(ctx, http.MethodGet, "/products/"+externalID+".json", nil)
	if err != nil {
		return nil, err
	}

	var resp ShopifyProductEnvelope
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", platform.ErrPlatformInvalidResponse, err)
	}
	return resp.Product.toPlatformProduct(), nil
}

// UpdateStock sets available inventory. Shopify tracks stock per inventory
// item and location, so the variant's inventory item and its first level are
// looked up before the set call.
func (a *ShopifyAdapter) UpdateStock(ctx context.Context, externalID string, quantity int) error {
	respBody, err := a.doRequest(ctx, http.MethodGet, "/products/"+externalID+".json", nil)
	if err != nil {
		return err
	}

	var productResp ShopifyProductEnvelope
	if err := json.Unmarshal(respBody, &productResp); err != nil {
		return fmt.Errorf("%w: %v", platform.ErrPlatformInvalidResponse, err)
	}
	if len(productResp.Product.Variants) == 0 {
		return fmt.Errorf("%w: product %s has no variants", platform.ErrPlatformInvalidResponse, externalID)
	}
	inventoryItemID := productResp.Product.Variants[0].InventoryItemID
	if inventoryItemID == 0 {
		return fmt.Errorf("%w: product %s has no inventory item", platform.ErrPlatformInvalidResponse, externalID)
	}

	levelsPath := "/inventory_levels.json?inventory_item_ids=" + strconv.FormatInt(inventoryItemID, 10)
	respBody, err = a.doRequest(ctx, http.MethodGet, levelsPath, nil)
	if err != nil {
		return err
	}

	var levels ShopifyInventoryLevelsEnvelope
	if err := json.Unmarshal(respBody, &levels); err != nil {
		return fmt.Errorf("%w: %v", platform.ErrPlatformInvalidResponse, err)
	}
	if len(levels.InventoryLevels) == 0 {
		return fmt.Errorf("%w: no inventory level for item %d", platform.ErrPlatformInvalidResponse, inventoryItemID)
	}

	setReq := ShopifyInventorySetRequest{
		LocationID:      levels.InventoryLevels[0].LocationID,
		InventoryItemID: inventoryItemID,
		Available:       quantity,
	}
	body, err := json.Marshal(setReq)
	if err != nil {
		return fmt.Errorf("shopify: failed to encode inventory set: %w", err)
	}

	_, err = a.doRequest(ctx, http.MethodPost, "/inventory_levels/set.json", body)
	return err
}

// UpdatePrice sets the price of the product's first variant.
func (a *ShopifyAdapter) UpdatePrice(ctx context.Context, externalID string, price decimal.Decimal) error {
	respBody, err := a.doRequest(ctx, http.MethodGet, "/products/"+externalID+".json", nil)
	if err != nil {
		return err
	}

	var productResp ShopifyProductEnvelope
	if err := json.Unmarshal(respBody, &productResp); err != nil {
		return fmt.Errorf("%w: %v", platform.ErrPlatformInvalidResponse, err)
	}
	if len(productResp.Product.Variants) == 0 {
		return fmt.Errorf("%w: product %s has no variants", platform.ErrPlatformInvalidResponse, externalID)
	}
	variantID := productResp.Product.Variants[0].ID

	update := map[string]any{
		"variant": map[string]any{
			"id":    variantID,
			"price": price.StringFixed(2),
		},
	}
	body, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("shopify: failed to encode variant update: %w", err)
	}

	_, err = a.doRequest(ctx, http.MethodPut, "/variants/"+strconv.FormatInt(variantID, 10)+".json", body)
	return err
}

// DeleteProduct removes the product from Shopify.
func (a *ShopifyAdapter) DeleteProduct(ctx context.Context, externalID string) error {
	_, err := a.doRequest(ctx, http.MethodDelete, "/products/"+externalID+".json", nil)
	return err
}

// doRequest performs one authenticated Admin API call. A 429 response is
// retried once in-call after honoring Retry-After; a second 429 surfaces as
// the rate limit sentinel for the task layer's slower backoff schedule.
func (a *ShopifyAdapter) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
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

type responseData struct {
	data   []byte
	header http.Header
}

func (a *ShopifyAdapter) doRequestOnce(ctx context.Context, method, path string, body []byte) (responseData, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.config.BaseURL()+path, reader)
	if err != nil {
		return responseData{}, 0, fmt.Errorf("shopify: failed to create request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", a.config.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return responseData{}, 0, fmt.Errorf("%w: %v", platform.ErrPlatformUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return responseData{}, 0, fmt.Errorf("shopify: failed to read response: %w", err)
	}
	return responseData{data: data, header: resp.Header}, resp.StatusCode, nil
}

// checkResponse maps HTTP status codes onto the shared platform sentinels.
func (a *ShopifyAdapter) checkResponse(body []byte, status int) ([]byte, error) {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, fmt.Errorf("%w: HTTP %d", platform.ErrPlatformAuthFailed, status)
	case status == http.StatusNotFound:
		return nil, platform.ErrProductNotFound
	case status == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: HTTP 429", platform.ErrPlatformRateLimited)
	case status == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: %s", platform.ErrPlatformValidation, errorDetail(body))
	case status >= 500:
		return nil, fmt.Errorf("%w: HTTP %d", platform.ErrPlatformUnavailable, status)
	case status >= 400:
		return nil, fmt.Errorf("%w: HTTP %d: %s", platform.ErrPlatformRequestFailed, status, errorDetail(body))
	}
	return body, nil
}

// errorDetail extracts the errors field of a Shopify error body, raw body on
// parse failure.
func errorDetail(body []byte) string {
	var errResp ShopifyErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Errors != nil {
		return fmt.Sprintf("%v", errResp.Errors)
	}
	const limit = 200
	if len(body) > limit {
		body = body[:limit]
	}
	return string(body)
}

// retryAfterOf parses the Retry-After header, one second when missing.
func retryAfterOf(header http.Header) time.Duration {
	raw := header.Get("Retry-After")
	if raw == "" {
		return time.Second
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs <= 0 {
		return time.Second
	}
	return time.Duration(secs * float64(time.Second))
}

// sleepRetryAfter waits out a rate limit window, bailing early when the wait
// is unreasonably long or the context ends first.
func sleepRetryAfter(ctx context.Context, wait time.Duration) error {
	if wait > maxRetryAfter {
		return fmt.Errorf("%w: retry-after %s exceeds in-call budget", platform.ErrPlatformRateLimited, wait)
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ platform.Adapter = (*ShopifyAdapter)(nil)
