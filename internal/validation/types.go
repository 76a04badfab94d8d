package validation

// SeedItem is a single line item in a cart creation request.
type SeedItem struct {
	ProductID string  `json:"product_id" validate:"required"`
	Name      string  `json:"name" validate:"required"`
	Quantity  int     `json:"quantity" validate:"required,min=1"`
	UnitPrice float64 `json:"unit_price" validate:"required,gt=0"`
}

// CreateCartRequest is the payload for POST /carts.
type CreateCartRequest struct {
	SessionID string     `json:"session_id" validate:"required"`
	Items     []SeedItem `json:"items" validate:"required,min=1,dive"`
	Source    string     `json:"source,omitempty"`
	Campaign  string     `json:"campaign,omitempty"`
}

// SetQuantityRequest is the payload for PUT /carts/:id/items/:itemId.
// Quantity zero removes the line item.
type SetQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,gte=0"`
}

// CustomerPayload is the progressively filled customer snapshot.
type CustomerPayload struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Phone    string `json:"phone,omitempty"`
	Document string `json:"document,omitempty"`
}

// ConsentPayload captures both consent flags explicitly; absent fields
// are rejected rather than defaulted.
type ConsentPayload struct {
	Transactional *bool `json:"transactional" validate:"required"`
	Marketing     *bool `json:"marketing" validate:"required"`
}

// StartCheckoutRequest is the payload for POST /checkouts.
type StartCheckoutRequest struct {
	CartID   string          `json:"cart_id" validate:"required"`
	Customer CustomerPayload `json:"customer" validate:"required"`
	Consent  ConsentPayload  `json:"consent" validate:"required"`
}

// AdvanceRequest is the payload for POST /checkouts/:id/advance.
type AdvanceRequest struct {
	Step     string          `json:"step" validate:"required,oneof=personal_data shipping payment upsell completed"`
	Customer CustomerPayload `json:"customer"`
}

// AddOfferRequest is the payload for POST /checkouts/:id/offers.
type AddOfferRequest struct {
	ID    string  `json:"id" validate:"required"`
	Name  string  `json:"name" validate:"required"`
	Price float64 `json:"price" validate:"required,gt=0"`
}

// InteractRequest is the payload for POST /checkouts/:id/interact.
type InteractRequest struct {
	Step string `json:"step,omitempty" validate:"omitempty,oneof=personal_data shipping payment upsell"`
}

// UpdateLogRequest is the payload for PATCH /recovery/logs/:id.
type UpdateLogRequest struct {
	Status *string `json:"status,omitempty" validate:"omitempty,oneof=pending contacted recovered not_recovered"`
	Notes  *string `json:"notes,omitempty"`
}

// DispatchRequest is the payload for POST /recovery/logs/:id/dispatch.
type DispatchRequest struct {
	Template string `json:"template" validate:"required"`
}
