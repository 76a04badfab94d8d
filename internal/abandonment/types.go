package abandonment

import (
	"context"
	"time"

	"github.com/storeops/cart-recovery/internal/checkouts"
)

// Log types
const (
	TypeCartAbandoned     = "CART_ABANDONED"
	TypeCheckoutAbandoned = "CHECKOUT_ABANDONED"
)

// Recovery statuses
const (
	RecoveryPending      = "pending"
	RecoveryContacted    = "contacted"
	RecoveryRecovered    = "recovered"
	RecoveryNotRecovered = "not_recovered"
)

// FunnelStepCart marks logs created from a cart that never entered the
// checkout funnel.
const FunnelStepCart = "cart"

// ItemSummary is a compact name + quantity pair shown to operators and
// rendered into recovery messages.
type ItemSummary struct {
	Name     string `json:"name" dynamodbav:"name"`
	Quantity int    `json:"quantity" dynamodbav:"quantity"`
}

// Log is a single abandonment record. At most one log exists per
// reference id (the abandoned cart or checkout); the repositories make
// that structural via CreateIfAbsent.
type Log struct {
	ID              string             `json:"id" dynamodbav:"id"`
	ReferenceID     string             `json:"reference_id" dynamodbav:"reference_id"`
	Type            string             `json:"type" dynamodbav:"type"`
	Recovery        string             `json:"recovery_status" dynamodbav:"recovery_status"`
	FunnelStep      string             `json:"funnel_step" dynamodbav:"funnel_step"`
	CustomerName    string             `json:"customer_name,omitempty" dynamodbav:"customer_name,omitempty"`
	CustomerContact string             `json:"customer_contact,omitempty" dynamodbav:"customer_contact,omitempty"`
	Consent         *checkouts.Consent `json:"consent,omitempty" dynamodbav:"consent,omitempty"`
	Value           float64            `json:"value" dynamodbav:"value"`
	Items           []ItemSummary      `json:"items" dynamodbav:"items,omitempty"`
	AbandonedAt     time.Time          `json:"abandoned_at" dynamodbav:"abandoned_at"`
	Notes           string             `json:"notes,omitempty" dynamodbav:"notes,omitempty"`
	CreatedAt       time.Time          `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at" dynamodbav:"updated_at"`
}

// Patch is a partial update applied by recovery tooling. Only the
// recovery status and operator notes are externally mutable.
type Patch struct {
	Recovery *string
	Notes    *string
}

// Filter narrows Query results. Zero values match everything.
type Filter struct {
	Recovery string
	Type     string
	MinValue float64
	Since    time.Time
	Until    time.Time
}

// Matches reports whether the log passes the filter.
func (f Filter) Matches(l Log) bool {
	if f.Recovery != "" && l.Recovery != f.Recovery {
		return false
	}
	if f.Type != "" && l.Type != f.Type {
		return false
	}
	if f.MinValue > 0 && l.Value < f.MinValue {
		return false
	}
	if !f.Since.IsZero() && l.AbandonedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && l.AbandonedAt.After(f.Until) {
		return false
	}
	return true
}

// ValidRecoveryStatus reports whether s is a known recovery status.
func ValidRecoveryStatus(s string) bool {
	switch s {
	case RecoveryPending, RecoveryContacted, RecoveryRecovered, RecoveryNotRecovered:
		return true
	}
	return false
}

// LogRepo stores abandonment records keyed by reference id.
type LogRepo interface {
	// CreateIfAbsent inserts the log only if no record shares its
	// reference id. Returns true when a new record was created.
	CreateIfAbsent(ctx context.Context, log Log) (bool, error)

	// Get fetches a log by its id. Returns (nil, nil) when absent.
	Get(ctx context.Context, logID string) (*Log, error)

	// FindByReference fetches a log by reference id. Returns (nil, nil)
	// when absent.
	FindByReference(ctx context.Context, referenceID string) (*Log, error)

	// Update applies a partial patch and returns the updated log.
	Update(ctx context.Context, logID string, patch Patch) (*Log, error)

	// Query returns all logs passing the filter, newest first.
	Query(ctx context.Context, filter Filter) ([]Log, error)
}
