// Package backends holds HTTP adapters for the external commerce
// collaborators: checkout creation and shipping-rate quoting. Both are
// opaque calls; the core never depends on their internals.
package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/storeops/cart-recovery/internal/carts"
	"github.com/storeops/cart-recovery/internal/checkouts"
)

// HTTPCommerce implements checkouts.Backend and checkouts.ShippingRater
// against the storefront's commerce API.
type HTTPCommerce struct {
	baseURL string
	client  *http.Client
}

// NewHTTPCommerce returns an adapter for the given base URL.
func NewHTTPCommerce(baseURL string) *HTTPCommerce {
	return &HTTPCommerce{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type createCheckoutPayload struct {
	Items    []carts.Item       `json:"items"`
	Customer checkouts.Customer `json:"customer"`
}

// CreateCheckout implements checkouts.Backend.
func (h *HTTPCommerce) CreateCheckout(ctx context.Context, items []carts.Item, customer checkouts.Customer) (checkouts.CreatedOrder, error) {
	body, err := json.Marshal(createCheckoutPayload{Items: items, Customer: customer})
	if err != nil {
		return checkouts.CreatedOrder{}, fmt.Errorf("marshal checkout payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/checkouts", bytes.NewReader(body))
	if err != nil {
		return checkouts.CreatedOrder{}, fmt.Errorf("build checkout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return checkouts.CreatedOrder{}, fmt.Errorf("checkout request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return checkouts.CreatedOrder{}, fmt.Errorf("checkout backend returned %d", resp.StatusCode)
	}

	var created checkouts.CreatedOrder
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return checkouts.CreatedOrder{}, fmt.Errorf("decode checkout response: %w", err)
	}
	return created, nil
}

// Rates implements checkouts.ShippingRater. A backend failure degrades
// to an empty list; the checkout UI shows no options and retries.
func (h *HTTPCommerce) Rates(ctx context.Context, checkoutID, postalCode string) ([]checkouts.ShippingRate, error) {
	endpoint := fmt.Sprintf("%s/shipping-rates?checkout_id=%s&postal_code=%s",
		h.baseURL, url.QueryEscape(checkoutID), url.QueryEscape(postalCode))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build rates request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return []checkouts.ShippingRate{}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return []checkouts.ShippingRate{}, nil
	}

	var rates []checkouts.ShippingRate
	if err := json.NewDecoder(resp.Body).Decode(&rates); err != nil {
		return []checkouts.ShippingRate{}, nil
	}
	return rates, nil
}
