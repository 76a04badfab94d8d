package checkouts

import "time"

// Checkout statuses
const (
	StatusStarted       = "started"
	StatusInProgress    = "in_progress"
	StatusAbandoned     = "abandoned"
	StatusCompleted     = "completed"
	StatusPaymentFailed = "payment_failed"
)

// Funnel steps, in order.
const (
	StepPersonalData = "personal_data"
	StepShipping     = "shipping"
	StepPayment      = "payment"
	StepUpsell       = "upsell"
	StepCompleted    = "completed"
)

var stepRank = map[string]int{
	StepPersonalData: 0,
	StepShipping:     1,
	StepPayment:      2,
	StepUpsell:       3,
	StepCompleted:    4,
}

// ValidStep reports whether s names a known funnel step.
func ValidStep(s string) bool {
	_, ok := stepRank[s]
	return ok
}

// Consent is the customer's contact permission record, captured once at
// checkout start and immutable afterwards. Marketing-flavored recovery
// messages require Marketing to be true.
type Consent struct {
	Transactional bool `json:"transactional"`
	Marketing     bool `json:"marketing"`
}

// Customer is the progressively filled customer snapshot.
type Customer struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Document string `json:"document,omitempty"`
}

// Contact returns the best available contact handle.
func (c Customer) Contact() string {
	if c.Phone != "" {
		return c.Phone
	}
	return c.Email
}

// Offer is an add-on (order bump / upsell) accepted during checkout.
type Offer struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Checkout is a cart that entered the purchase funnel.
// completed and abandoned are terminal; the current step only moves
// forward through the funnel, except that payment may be re-entered for
// retries.
type Checkout struct {
	ID        string    `json:"id"`
	CartID    string    `json:"cart_id"`
	OrderRef  string    `json:"order_ref,omitempty"`
	Customer  Customer  `json:"customer"`
	Consent   *Consent  `json:"consent,omitempty"`
	Step      string    `json:"step"`
	Status    string    `json:"status"`
	Offers    []Offer   `json:"offers,omitempty"`
	Total     float64   `json:"total"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the checkout can no longer be mutated.
func (c Checkout) Terminal() bool {
	return c.Status == StatusCompleted || c.Status == StatusAbandoned
}
