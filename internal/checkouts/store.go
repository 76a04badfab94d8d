package checkouts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/storeops/cart-recovery/internal/carts"
)

// ErrNotFound is returned when the referenced checkout does not exist.
var ErrNotFound = errors.New("checkout not found")

// ErrInvalidTransition is returned for operations on a terminal
// checkout, or when starting from a cart that is already terminal.
var ErrInvalidTransition = errors.New("invalid checkout transition")

// ErrEmptyCart is returned when starting a checkout from a cart with no
// line items.
var ErrEmptyCart = errors.New("cart has no items")

// ErrExternalCall is returned when the commerce backend call fails.
// Local state is left untouched in that case so the caller can retry.
var ErrExternalCall = errors.New("checkout backend call failed")

// ErrStepBackwards is returned when Advance targets an earlier funnel
// step. Payment is exempt: it may be re-entered for retries.
var ErrStepBackwards = errors.New("funnel step cannot move backwards")

// ErrStillActive is returned by AbandonIfInactiveSince when the
// session's activity was refreshed after the caller took its snapshot.
var ErrStillActive = errors.New("checkout has recent activity")

// Store owns all checkout sessions. It spawns them from the cart store
// and is the only component allowed to convert a cart.
type Store struct {
	mu        sync.Mutex
	checkouts map[string]*Checkout

	carts   *carts.Store
	backend Backend
	nowFunc func() time.Time
	newID   func() string
}

// NewStore creates an empty checkout store bound to the cart store and
// the external checkout-creation backend.
func NewStore(cartStore *carts.Store, backend Backend) *Store {
	return &Store{
		checkouts: map[string]*Checkout{},
		carts:     cartStore,
		backend:   backend,
		nowFunc:   time.Now,
		newID:     uuid.NewString,
	}
}

// Start spawns a checkout from a cart. The external backend is called
// first, with no lock held; only once it confirms creation is the cart
// converted and the checkout recorded. On any failure nothing changes
// locally: no checkout exists and the cart keeps its status.
func (s *Store) Start(ctx context.Context, cartID string, customer Customer, consent Consent) (Checkout, error) {
	cart, err := s.carts.Get(cartID)
	if err != nil {
		return Checkout{}, err
	}
	if cart.Terminal() {
		return Checkout{}, fmt.Errorf("start checkout from cart %s (status %s): %w", cartID, cart.Status, ErrInvalidTransition)
	}
	if len(cart.Items) == 0 {
		return Checkout{}, fmt.Errorf("start checkout from cart %s: %w", cartID, ErrEmptyCart)
	}

	created, err := s.backend.CreateCheckout(ctx, cart.Items, customer)
	if err != nil {
		return Checkout{}, fmt.Errorf("%w: %v", ErrExternalCall, err)
	}

	// The backend confirmed; convert the cart and record the session.
	if err := s.carts.Convert(cartID); err != nil {
		return Checkout{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	consentCopy := consent
	checkout := &Checkout{
		ID:        s.newID(),
		CartID:    cartID,
		OrderRef:  created.OrderRef,
		Customer:  customer,
		Consent:   &consentCopy,
		Step:      StepPersonalData,
		Status:    StatusStarted,
		Total:     cart.Value(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.checkouts[checkout.ID] = checkout
	return copyCheckout(checkout), nil
}

// Get returns a copy of the checkout.
func (s *Store) Get(checkoutID string) (Checkout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.checkouts[checkoutID]
	if !ok {
		return Checkout{}, fmt.Errorf("get checkout %s: %w", checkoutID, ErrNotFound)
	}
	return copyCheckout(c), nil
}

// Advance merges the partial customer details, moves the funnel to
// nextStep and marks the session in progress. Steps only move forward,
// except that payment may be re-entered.
func (s *Store) Advance(checkoutID string, partial Customer, nextStep string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.checkouts[checkoutID]
	if !ok {
		return fmt.Errorf("advance checkout %s: %w", checkoutID, ErrNotFound)
	}
	if c.Terminal() {
		return fmt.Errorf("advance checkout %s: %w", checkoutID, ErrInvalidTransition)
	}
	if !ValidStep(nextStep) {
		return fmt.Errorf("advance checkout %s: unknown step %q", checkoutID, nextStep)
	}
	if stepRank[nextStep] < stepRank[c.Step] && nextStep != StepPayment {
		return fmt.Errorf("advance checkout %s from %s to %s: %w", checkoutID, c.Step, nextStep, ErrStepBackwards)
	}

	mergeCustomer(&c.Customer, partial)
	c.Step = nextStep
	c.Status = StatusInProgress
	c.UpdatedAt = s.nowFunc()
	return nil
}

// AddOffer appends an accepted add-on offer and bumps the running
// total. Re-adding an offer id is a no-op, so retried submissions never
// double-charge.
func (s *Store) AddOffer(checkoutID string, offer Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.checkouts[checkoutID]
	if !ok {
		return fmt.Errorf("add offer to checkout %s: %w", checkoutID, ErrNotFound)
	}
	if c.Terminal() {
		return fmt.Errorf("add offer to checkout %s: %w", checkoutID, ErrInvalidTransition)
	}
	for _, existing := range c.Offers {
		if existing.ID == offer.ID {
			return nil
		}
	}
	c.Offers = append(c.Offers, offer)
	c.Total += offer.Price
	c.UpdatedAt = s.nowFunc()
	return nil
}

// Complete finishes the checkout. Terminal; further calls are no-ops.
func (s *Store) Complete(checkoutID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.checkouts[checkoutID]
	if !ok {
		return fmt.Errorf("complete checkout %s: %w", checkoutID, ErrNotFound)
	}
	if c.Terminal() {
		return nil
	}
	c.Status = StatusCompleted
	c.Step = StepCompleted
	c.UpdatedAt = s.nowFunc()
	return nil
}

// Interact records a lightweight user interaction that does not map to
// a funnel advance (for example re-engaging with the payment page).
// Started sessions are promoted to in progress. An optional step is
// honored under the same forward-only rule as Advance.
func (s *Store) Interact(checkoutID, optionalStep string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.checkouts[checkoutID]
	if !ok {
		return fmt.Errorf("interact with checkout %s: %w", checkoutID, ErrNotFound)
	}
	if c.Terminal() {
		return fmt.Errorf("interact with checkout %s: %w", checkoutID, ErrInvalidTransition)
	}
	if optionalStep != "" {
		if !ValidStep(optionalStep) {
			return fmt.Errorf("interact with checkout %s: unknown step %q", checkoutID, optionalStep)
		}
		if stepRank[optionalStep] >= stepRank[c.Step] || optionalStep == StepPayment {
			c.Step = optionalStep
		}
	}
	if c.Status == StatusStarted {
		c.Status = StatusInProgress
	}
	c.UpdatedAt = s.nowFunc()
	return nil
}

// FailPayment flags a failed payment attempt. The session stays open;
// a later Advance or Interact re-enters the payment step.
func (s *Store) FailPayment(checkoutID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.checkouts[checkoutID]
	if !ok {
		return fmt.Errorf("fail payment on checkout %s: %w", checkoutID, ErrNotFound)
	}
	if c.Terminal() {
		return fmt.Errorf("fail payment on checkout %s: %w", checkoutID, ErrInvalidTransition)
	}
	c.Status = StatusPaymentFailed
	c.UpdatedAt = s.nowFunc()
	return nil
}

// Abandon marks the checkout abandoned unconditionally (beyond the
// terminal check). Sweeping goes through AbandonIfInactiveSince.
func (s *Store) Abandon(checkoutID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.checkouts[checkoutID]
	if !ok {
		return fmt.Errorf("abandon checkout %s: %w", checkoutID, ErrNotFound)
	}
	if c.Terminal() {
		return fmt.Errorf("abandon checkout %s: %w", checkoutID, ErrInvalidTransition)
	}
	c.Status = StatusAbandoned
	return nil
}

// AbandonIfInactiveSince marks the checkout abandoned only if it is
// still non-terminal and its last activity is strictly before the
// cutoff. The re-check and the transition happen under one lock, so an
// Advance or Interact landing after the caller's snapshot wins the
// race.
func (s *Store) AbandonIfInactiveSince(checkoutID string, cutoff time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.checkouts[checkoutID]
	if !ok {
		return fmt.Errorf("abandon checkout %s: %w", checkoutID, ErrNotFound)
	}
	if c.Terminal() {
		return fmt.Errorf("abandon checkout %s: %w", checkoutID, ErrInvalidTransition)
	}
	if !c.UpdatedAt.Before(cutoff) {
		return fmt.Errorf("abandon checkout %s: %w", checkoutID, ErrStillActive)
	}
	c.Status = StatusAbandoned
	return nil
}

// InactiveSince returns copies of all started / in-progress checkouts
// whose last activity is strictly before the cutoff. Sessions sitting
// in payment_failed are included too: a customer who never retried is
// as gone as one who never paid.
func (s *Store) InactiveSince(cutoff time.Time) []Checkout {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Checkout
	for _, c := range s.checkouts {
		if c.Terminal() {
			continue
		}
		if c.UpdatedAt.Before(cutoff) {
			out = append(out, copyCheckout(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out
}

// List returns copies of all checkouts, oldest first.
func (s *Store) List() []Checkout {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Checkout, 0, len(s.checkouts))
	for _, c := range s.checkouts {
		out = append(out, copyCheckout(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// WithClock overrides the store clock. Test hook.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.nowFunc = now
	return s
}

func mergeCustomer(dst *Customer, partial Customer) {
	if partial.Name != "" {
		dst.Name = partial.Name
	}
	if partial.Email != "" {
		dst.Email = partial.Email
	}
	if partial.Phone != "" {
		dst.Phone = partial.Phone
	}
	if partial.Document != "" {
		dst.Document = partial.Document
	}
}

func copyCheckout(c *Checkout) Checkout {
	out := *c
	out.Offers = append([]Offer(nil), c.Offers...)
	if c.Consent != nil {
		consent := *c.Consent
		out.Consent = &consent
	}
	return out
}
