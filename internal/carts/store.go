package carts

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when the referenced cart does not exist.
var ErrNotFound = errors.New("cart not found")

// ErrInvalidTransition is returned when an operation is attempted on a
// cart that already reached a terminal status.
var ErrInvalidTransition = errors.New("cart is in a terminal status")

// ErrStillActive is returned by AbandonIfInactiveSince when the cart's
// activity was refreshed after the caller took its snapshot.
var ErrStillActive = errors.New("cart has recent activity")

// Store owns all carts. Every status transition, including the ones
// performed by the abandonment sweeper, goes through its methods so the
// forward-only lifecycle cannot be bypassed.
type Store struct {
	mu      sync.Mutex
	carts   map[string]*Cart
	nowFunc func() time.Time
	newID   func() string
}

// NewStore creates an empty cart store.
func NewStore() *Store {
	return &Store{
		carts:   map[string]*Cart{},
		nowFunc: time.Now,
		newID:   uuid.NewString,
	}
}

// CreateFromSeed produces a new open cart from the given line items.
// Items without an ID get one assigned.
func (s *Store) CreateFromSeed(sessionID string, items []Item, attribution *Attribution) Cart {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	cart := &Cart{
		ID:          s.newID(),
		SessionID:   sessionID,
		Status:      StatusOpen,
		Attribution: attribution,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, it := range items {
		if it.ID == "" {
			it.ID = s.newID()
		}
		cart.Items = append(cart.Items, it)
	}
	s.carts[cart.ID] = cart
	return snapshot(cart)
}

// Get returns a copy of the cart.
func (s *Store) Get(cartID string) (Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[cartID]
	if !ok {
		return Cart{}, fmt.Errorf("get cart %s: %w", cartID, ErrNotFound)
	}
	return snapshot(cart), nil
}

// Touch records a user interaction: refreshes the last-activity
// timestamp and promotes open carts to updated. Terminal carts are left
// untouched.
func (s *Store) Touch(cartID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[cartID]
	if !ok {
		return fmt.Errorf("touch cart %s: %w", cartID, ErrNotFound)
	}
	if cart.Terminal() {
		return fmt.Errorf("touch cart %s: %w", cartID, ErrInvalidTransition)
	}
	if cart.Status == StatusOpen {
		cart.Status = StatusUpdated
	}
	cart.UpdatedAt = s.nowFunc()
	return nil
}

// SetItemQuantity replaces the quantity of a line item, removing the
// line entirely when quantity <= 0. The cart is forced to updated and
// its last-activity timestamp refreshed. Terminal carts are not changed.
func (s *Store) SetItemQuantity(cartID, itemID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[cartID]
	if !ok {
		return fmt.Errorf("set quantity on cart %s: %w", cartID, ErrNotFound)
	}
	if cart.Terminal() {
		return fmt.Errorf("set quantity on cart %s: %w", cartID, ErrInvalidTransition)
	}

	idx := -1
	for i := range cart.Items {
		if cart.Items[i].ID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("set quantity: item %s: %w", itemID, ErrNotFound)
	}

	if quantity <= 0 {
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	} else {
		cart.Items[idx].Quantity = quantity
	}
	cart.Status = StatusUpdated
	cart.UpdatedAt = s.nowFunc()
	return nil
}

// Convert marks the cart converted. Called by the checkout store once
// the external checkout creation has been confirmed.
func (s *Store) Convert(cartID string) error {
	return s.transition(cartID, StatusConverted)
}

// Abandon marks the cart abandoned unconditionally (beyond the
// terminal check). Sweeping goes through AbandonIfInactiveSince.
func (s *Store) Abandon(cartID string) error {
	return s.transition(cartID, StatusAbandoned)
}

// AbandonIfInactiveSince marks the cart abandoned only if it is still
// non-terminal and its last activity is strictly before the cutoff.
// The re-check and the transition happen under one lock, so a Touch or
// quantity edit landing after the caller's snapshot wins the race.
func (s *Store) AbandonIfInactiveSince(cartID string, cutoff time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[cartID]
	if !ok {
		return fmt.Errorf("abandon cart %s: %w", cartID, ErrNotFound)
	}
	if cart.Terminal() {
		return fmt.Errorf("abandon cart %s: %w", cartID, ErrInvalidTransition)
	}
	if !cart.UpdatedAt.Before(cutoff) {
		return fmt.Errorf("abandon cart %s: %w", cartID, ErrStillActive)
	}
	cart.Status = StatusAbandoned
	return nil
}

func (s *Store) transition(cartID, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[cartID]
	if !ok {
		return fmt.Errorf("transition cart %s to %s: %w", cartID, target, ErrNotFound)
	}
	if cart.Terminal() {
		return fmt.Errorf("transition cart %s to %s: %w", cartID, target, ErrInvalidTransition)
	}
	cart.Status = target
	return nil
}

// InactiveSince returns copies of all non-terminal carts whose last
// activity is strictly before the cutoff.
func (s *Store) InactiveSince(cutoff time.Time) []Cart {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Cart
	for _, cart := range s.carts {
		if cart.Terminal() {
			continue
		}
		if cart.UpdatedAt.Before(cutoff) {
			out = append(out, snapshot(cart))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out
}

// List returns copies of all carts, oldest first.
func (s *Store) List() []Cart {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Cart, 0, len(s.carts))
	for _, cart := range s.carts {
		out = append(out, snapshot(cart))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// WithClock overrides the store clock. Test hook.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.nowFunc = now
	return s
}

func snapshot(c *Cart) Cart {
	out := *c
	out.Items = append([]Item(nil), c.Items...)
	if c.Attribution != nil {
		attr := *c.Attribution
		out.Attribution = &attr
	}
	return out
}
