package abandonment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/storeops/cart-recovery/internal/carts"
	"github.com/storeops/cart-recovery/internal/checkouts"
)

// Report summarizes a single sweep tick.
type Report struct {
	CartsAbandoned     int
	CheckoutsAbandoned int
	LogsCreated        int
	Duration           time.Duration
}

// MetricsEmitter receives sweep reports. The CloudWatch emitter in
// internal/aws implements it; a nil emitter disables metrics.
type MetricsEmitter interface {
	EmitSweep(ctx context.Context, report Report)
}

// Sweeper periodically reclassifies inactive carts and checkouts as
// abandoned and writes deduplicated abandonment logs. All transitions
// go through the stores' own mutation paths, so the sweeper can never
// resurrect a terminal entity.
type Sweeper struct {
	carts     *carts.Store
	checkouts *checkouts.Store
	logs      LogRepo

	cartTimeout     time.Duration
	checkoutTimeout time.Duration

	metrics MetricsEmitter
	logger  *slog.Logger
	nowFunc func() time.Time
	newID   func() string

	// Logs whose write failed after the entity was already transitioned;
	// retried at the start of the next tick.
	pending []Log
}

// NewSweeper wires a sweeper. The checkout timeout must be strictly
// greater than the cart timeout: a session that reached the funnel gets
// more patience than a browsing cart.
func NewSweeper(cartStore *carts.Store, checkoutStore *checkouts.Store, logs LogRepo, cartTimeout, checkoutTimeout time.Duration, logger *slog.Logger) (*Sweeper, error) {
	if cartTimeout <= 0 {
		return nil, fmt.Errorf("cart timeout must be positive, got %s", cartTimeout)
	}
	if checkoutTimeout <= cartTimeout {
		return nil, fmt.Errorf("checkout timeout (%s) must be greater than cart timeout (%s)", checkoutTimeout, cartTimeout)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		carts:           cartStore,
		checkouts:       checkoutStore,
		logs:            logs,
		cartTimeout:     cartTimeout,
		checkoutTimeout: checkoutTimeout,
		logger:          logger,
		nowFunc:         time.Now,
		newID:           uuid.NewString,
	}, nil
}

// WithMetrics attaches a metrics emitter.
func (s *Sweeper) WithMetrics(m MetricsEmitter) *Sweeper {
	s.metrics = m
	return s
}

// WithClock overrides the sweeper clock. Test hook.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.nowFunc = now
	return s
}

// Sweep runs one tick. Carts and checkouts whose last activity is older
// than their timeout are transitioned to abandoned, and a log is
// created for each unless one already exists for the same reference id.
// Each transition re-checks inactivity under the store lock, so a user
// action landing between the candidate snapshot and the transition wins
// and the entity is skipped. Running Sweep twice against unchanged data
// is observably idempotent.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	started := s.nowFunc()
	var report Report

	s.flushPending(ctx, &report)

	cartCutoff := started.Add(-s.cartTimeout)
	for _, cart := range s.carts.InactiveSince(cartCutoff) {
		if err := s.carts.AbandonIfInactiveSince(cart.ID, cartCutoff); err != nil {
			// Still-active and terminal mean a user action won the race;
			// no log is written for those.
			if !errors.Is(err, carts.ErrStillActive) && !errors.Is(err, carts.ErrInvalidTransition) {
				s.logger.Error("sweep: abandon cart", "cart_id", cart.ID, "error", err)
			}
			continue
		}
		report.CartsAbandoned++
		s.writeLog(ctx, s.cartLog(cart, started), &report)
	}

	checkoutCutoff := started.Add(-s.checkoutTimeout)
	for _, checkout := range s.checkouts.InactiveSince(checkoutCutoff) {
		if err := s.checkouts.AbandonIfInactiveSince(checkout.ID, checkoutCutoff); err != nil {
			if !errors.Is(err, checkouts.ErrStillActive) && !errors.Is(err, checkouts.ErrInvalidTransition) {
				s.logger.Error("sweep: abandon checkout", "checkout_id", checkout.ID, "error", err)
			}
			continue
		}
		report.CheckoutsAbandoned++
		s.writeLog(ctx, s.checkoutLog(checkout, started), &report)
	}

	report.Duration = s.nowFunc().Sub(started)
	if report.CartsAbandoned > 0 || report.CheckoutsAbandoned > 0 {
		s.logger.Info("sweep finished",
			"carts_abandoned", report.CartsAbandoned,
			"checkouts_abandoned", report.CheckoutsAbandoned,
			"logs_created", report.LogsCreated,
		)
	}
	if s.metrics != nil {
		s.metrics.EmitSweep(ctx, report)
	}
	return report, nil
}

// writeLog records the abandonment. A failed write is kept and retried
// on the next tick: the entity is already abandoned, so the log is the
// only outstanding side effect.
func (s *Sweeper) writeLog(ctx context.Context, log Log, report *Report) {
	created, err := s.logs.CreateIfAbsent(ctx, log)
	if err != nil {
		s.logger.Error("sweep: create log", "reference_id", log.ReferenceID, "error", err)
		s.pending = append(s.pending, log)
		return
	}
	if created {
		report.LogsCreated++
	}
}

func (s *Sweeper) flushPending(ctx context.Context, report *Report) {
	if len(s.pending) == 0 {
		return
	}
	retry := s.pending
	s.pending = nil
	for _, log := range retry {
		created, err := s.logs.CreateIfAbsent(ctx, log)
		if err != nil {
			s.logger.Error("sweep: retry log", "reference_id", log.ReferenceID, "error", err)
			s.pending = append(s.pending, log)
			continue
		}
		if created {
			report.LogsCreated++
		}
	}
}

// Run drives periodic sweeps until the context is canceled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started",
		"interval", interval.String(),
		"cart_timeout", s.cartTimeout.String(),
		"checkout_timeout", s.checkoutTimeout.String(),
	)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("sweep failed", "error", err)
			}
		}
	}
}

func (s *Sweeper) cartLog(cart carts.Cart, now time.Time) Log {
	items := make([]ItemSummary, 0, len(cart.Items))
	for _, it := range cart.Items {
		items = append(items, ItemSummary{Name: it.Name, Quantity: it.Quantity})
	}
	notes := ""
	if cart.Attribution != nil {
		notes = attributionNote(cart.Attribution)
	}
	return Log{
		ID:          s.newID(),
		ReferenceID: cart.ID,
		Type:        TypeCartAbandoned,
		Recovery:    RecoveryPending,
		FunnelStep:  FunnelStepCart,
		Value:       cart.Value(),
		Items:       items,
		AbandonedAt: now,
		Notes:       notes,
	}
}

func (s *Sweeper) checkoutLog(checkout checkouts.Checkout, now time.Time) Log {
	log := Log{
		ID:              s.newID(),
		ReferenceID:     checkout.ID,
		Type:            TypeCheckoutAbandoned,
		Recovery:        RecoveryPending,
		FunnelStep:      checkout.Step,
		CustomerName:    checkout.Customer.Name,
		CustomerContact: checkout.Customer.Contact(),
		Consent:         checkout.Consent,
		Value:           checkout.Total,
		AbandonedAt:     now,
	}
	// Item summary comes from the originating cart when it is still
	// resolvable; the checkout itself only carries a total.
	if cart, err := s.carts.Get(checkout.CartID); err == nil {
		for _, it := range cart.Items {
			log.Items = append(log.Items, ItemSummary{Name: it.Name, Quantity: it.Quantity})
		}
		if cart.Attribution != nil {
			log.Notes = attributionNote(cart.Attribution)
		}
	}
	return log
}

func attributionNote(attr *carts.Attribution) string {
	switch {
	case attr.Source != "" && attr.Campaign != "":
		return fmt.Sprintf("source=%s campaign=%s", attr.Source, attr.Campaign)
	case attr.Source != "":
		return "source=" + attr.Source
	case attr.Campaign != "":
		return "campaign=" + attr.Campaign
	}
	return ""
}
