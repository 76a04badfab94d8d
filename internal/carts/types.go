package carts

import "time"

// Cart statuses
const (
	StatusOpen      = "open"
	StatusUpdated   = "updated"
	StatusAbandoned = "abandoned"
	StatusConverted = "converted"
)

// Item is a single cart line item. Quantity is always >= 1 for stored
// items; setting a quantity of zero removes the line instead.
type Item struct {
	ID        string  `json:"id"`
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Attribution carries optional marketing attribution captured at cart
// creation (UTM-style source/campaign tags).
type Attribution struct {
	Source   string `json:"source,omitempty"`
	Campaign string `json:"campaign,omitempty"`
}

// Cart is a pre-checkout collection of line items tied to a browsing
// session. Status only moves forward: {open|updated} -> abandoned or
// {open|updated} -> converted; both targets are terminal.
type Cart struct {
	ID          string       `json:"id"`
	SessionID   string       `json:"session_id"`
	Items       []Item       `json:"items"`
	Status      string       `json:"status"`
	Attribution *Attribution `json:"attribution,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Terminal reports whether the cart can no longer be mutated.
func (c Cart) Terminal() bool {
	return c.Status == StatusAbandoned || c.Status == StatusConverted
}

// Value is the cart total: sum of unit price times quantity.
func (c Cart) Value() float64 {
	var total float64
	for _, it := range c.Items {
		total += it.UnitPrice * float64(it.Quantity)
	}
	return total
}
