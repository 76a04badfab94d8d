package checkouts

import (
	"context"

	"github.com/storeops/cart-recovery/internal/carts"
)

// CreatedOrder is the result of a successful checkout creation on the
// commerce backend.
type CreatedOrder struct {
	OrderRef   string `json:"order_ref"`
	PaymentURL string `json:"payment_url,omitempty"`
}

// ShippingRate is a single shipping option quoted by the carrier
// backend.
type ShippingRate struct {
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	DeliveryTime string  `json:"delivery_time"`
}

// Backend creates real checkouts on the commerce platform. The call is
// opaque and may be slow; Start never holds a store lock across it and
// mutates local state only after it succeeds.
type Backend interface {
	CreateCheckout(ctx context.Context, items []carts.Item, customer Customer) (CreatedOrder, error)
}

// ShippingRater quotes shipping options for a checkout. Implementations
// return an empty list when the carrier backend is unavailable.
type ShippingRater interface {
	Rates(ctx context.Context, checkoutID, postalCode string) ([]ShippingRate, error)
}
