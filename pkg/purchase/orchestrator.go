package purchase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/paywallkit/pkg/plan"
	"github.com/dmitrymomot/paywallkit/pkg/promo"
)

// Orchestrator owns the purchase lifecycle: plan selection, the purchase
// state machine, promo coordination and subscription status. All state
// transitions are serialized through a single mutex; overlapping user actions
// are rejected by the machine's preconditions rather than queued.
type Orchestrator struct {
	billing   Billing
	engine    *promo.Engine
	listeners Listeners
	log       *slog.Logger
	userID    string
	autoReset time.Duration

	mu       sync.Mutex
	state    State
	selected *plan.Plan
	applied  *promo.Application
	applying bool
	lastErr  string
	status   *Status
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPromoEngine enables the promo actions (validate, apply, remove).
func WithPromoEngine(engine *promo.Engine) Option {
	return func(o *Orchestrator) {
		if engine != nil {
			o.engine = engine
		}
	}
}

// WithListeners registers the lifecycle callback set.
func WithListeners(l Listeners) Option {
	return func(o *Orchestrator) { o.listeners = l }
}

// WithLogger sets the logger, ignoring nil for safety.
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// WithUserID binds the orchestrator to a stable user identifier, used for
// promo validation keys and redemption records.
func WithUserID(userID string) Option {
	return func(o *Orchestrator) { o.userID = userID }
}

// WithAutoReset schedules the transient success/error states to return to
// idle after the given delay. Without it the return to idle is caller-driven
// via Reset, which keeps tests deterministic.
func WithAutoReset(delay time.Duration) Option {
	return func(o *Orchestrator) {
		if delay > 0 {
			o.autoReset = delay
		}
	}
}

// NewOrchestrator creates an Orchestrator in the idle state.
// Panics if billing is nil to fail fast during initialization.
func NewOrchestrator(billing Billing, opts ...Option) *Orchestrator {
	if billing == nil {
		panic("purchase: Billing is required")
	}

	o := &Orchestrator{
		billing: billing,
		log:     slog.New(slog.DiscardHandler),
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SelectPlan sets the selected plan. Allowed from any state and never changes
// the purchase state. Selecting a plan different from the one a live promo
// was applied to drops the application: the promo was priced against the old
// plan and must be re-applied.
func (o *Orchestrator) SelectPlan(p plan.Plan) {
	o.mu.Lock()

	var removed *promo.Application
	if o.applied != nil && o.applied.OriginalPlan.ID != p.ID {
		removed = o.applied
		o.applied = nil
	}
	selected := p
	o.selected = &selected

	listeners := o.listeners
	o.mu.Unlock()

	if removed != nil {
		listeners.promoRemoved(*removed)
	}
}

// Purchase executes payment for the selected plan. It fails fast with
// ErrNoPlanSelected when nothing is selected (no state transition occurs) and
// rejects re-entrant calls with ErrPurchaseInProgress while processing.
//
// On success the machine lands in success, the subscription status is
// refreshed and an applied promo is redeemed and cleared. Redemption failure
// is logged, never rolled back: purchase success is final. On failure the
// machine lands in error with the failure message, leaving the selected plan
// and applied promo untouched so the user can retry without re-entering the
// code.
func (o *Orchestrator) Purchase(ctx context.Context) error {
	o.mu.Lock()

	if o.selected == nil {
		o.mu.Unlock()
		return ErrNoPlanSelected
	}
	if o.state == StateProcessing {
		o.mu.Unlock()
		return ErrPurchaseInProgress
	}

	// Transient success/error states roll back to idle so a fresh purchase
	// can start; processing never does.
	if o.state == StateSuccess || o.state == StateError {
		o.state, _ = next(o.state, eventReset)
		o.lastErr = ""
	}

	to, ok := next(o.state, eventStart)
	if !ok {
		o.mu.Unlock()
		return ErrPurchaseInProgress
	}
	o.state = to

	selected := *o.selected
	var promoCode string
	if o.applied != nil {
		promoCode = o.applied.Code.Code
	}
	listeners := o.listeners
	o.mu.Unlock()

	listeners.purchaseStarted(selected)

	info, err := o.billing.Purchase(ctx, selected, promoCode)
	if err != nil {
		o.mu.Lock()
		o.state, _ = next(o.state, eventFail)
		o.lastErr = err.Error()
		o.mu.Unlock()

		listeners.purchaseFailed(selected, err)
		o.scheduleReset()
		return errors.Join(ErrPurchaseFailed, err)
	}

	o.mu.Lock()
	o.state, _ = next(o.state, eventSucceed)
	applied := o.applied
	o.mu.Unlock()

	listeners.purchaseCompleted(*info)

	if _, err := o.RefreshStatus(ctx); err != nil {
		o.log.WarnContext(ctx, "status refresh after purchase failed", slog.Any("error", err))
	}

	// Redemption is fired before the promo state is cleared, and it is
	// fire-and-forget: the purchase already succeeded and its outcome is
	// independent of redemption bookkeeping.
	if applied != nil && o.engine != nil {
		if err := o.engine.Redeem(ctx, applied.Code.Code, o.userID, info.TransactionID); err != nil {
			o.log.WarnContext(ctx, "promo redemption failed after successful purchase",
				slog.String("code", applied.Code.Code), slog.Any("error", err))
		}
	}

	o.mu.Lock()
	if o.applied == applied {
		o.applied = nil
	}
	o.mu.Unlock()

	o.scheduleReset()
	return nil
}

// Restore replays previously completed purchases through the billing
// collaborator and refreshes the subscription status. It is independent of
// the purchase state and never touches the selected plan or promo state.
func (o *Orchestrator) Restore(ctx context.Context) ([]Info, error) {
	o.mu.Lock()
	listeners := o.listeners
	o.mu.Unlock()

	listeners.restoreStarted()

	infos, err := o.billing.Restore(ctx)
	if err != nil {
		listeners.restoreFailed(err)
		return nil, errors.Join(ErrRestoreFailed, err)
	}

	if _, err := o.RefreshStatus(ctx); err != nil {
		o.log.WarnContext(ctx, "status refresh after restore failed", slog.Any("error", err))
	}

	listeners.restoreCompleted(infos)
	return infos, nil
}

// ValidatePromo checks a promo code against the currently selected plan
// without applying it. The result is a value; see promo.Engine.Validate.
func (o *Orchestrator) ValidatePromo(ctx context.Context, code string) (promo.Validation, error) {
	o.mu.Lock()
	engine := o.engine
	var planID string
	if o.selected != nil {
		planID = o.selected.ID
	}
	userID := o.userID
	o.mu.Unlock()

	if engine == nil {
		return promo.Validation{}, ErrNoPromoEngine
	}
	return engine.Validate(ctx, code, planID, userID), nil
}

// ApplyPromo validates the code against the selected plan and, on success,
// replaces the selection with the discounted plan. Fails fast with
// ErrSelectPlanFirst when no plan is selected; no validation call is made in
// that case. Concurrent applies are rejected, and a result arriving after the
// selection changed is discarded rather than applied to the wrong plan.
func (o *Orchestrator) ApplyPromo(ctx context.Context, code string) error {
	o.mu.Lock()
	if o.engine == nil {
		o.mu.Unlock()
		return ErrNoPromoEngine
	}
	if o.selected == nil {
		o.mu.Unlock()
		return ErrSelectPlanFirst
	}
	if o.state == StateProcessing {
		o.mu.Unlock()
		return ErrPurchaseInProgress
	}
	if o.applying {
		o.mu.Unlock()
		return ErrPromoInProgress
	}
	o.applying = true

	// Apply against the base plan so re-applying a code on an already
	// discounted selection never stacks discounts.
	target := *o.selected
	if o.applied != nil {
		target = o.applied.OriginalPlan
	}
	userID := o.userID
	listeners := o.listeners
	o.mu.Unlock()

	app, err := o.engine.Apply(ctx, code, target, userID)

	o.mu.Lock()
	o.applying = false
	if err != nil {
		o.mu.Unlock()
		listeners.promoError(code, err)
		return err
	}

	// The selection may have moved while the validation was in flight;
	// a stale result is dropped, not applied.
	current := o.selected
	if current == nil || (current.ID != app.OriginalPlan.ID && (o.applied == nil || o.applied.OriginalPlan.ID != app.OriginalPlan.ID)) {
		o.mu.Unlock()
		o.log.Debug("discarding stale promo application",
			slog.String("code", app.Code.Code), slog.String("plan", app.OriginalPlan.ID))
		return nil
	}

	o.applied = app
	discounted := app.DiscountedPlan
	o.selected = &discounted
	o.mu.Unlock()

	listeners.promoApplied(*app)
	return nil
}

// RemovePromo restores the selection to the plan the promo was applied to and
// clears the application record entirely. Code, validation and applied state
// reset together, never partially. No-op when nothing is applied.
func (o *Orchestrator) RemovePromo() {
	o.mu.Lock()
	if o.applied == nil {
		o.mu.Unlock()
		return
	}

	removed := *o.applied
	original := removed.OriginalPlan
	o.selected = &original
	o.applied = nil
	listeners := o.listeners
	o.mu.Unlock()

	listeners.promoRemoved(removed)
}

// RefreshStatus fetches the subscription status from the billing collaborator
// and updates the read model.
func (o *Orchestrator) RefreshStatus(ctx context.Context) (Status, error) {
	st, err := o.billing.GetStatus(ctx)
	if err != nil {
		return Status{}, errors.Join(ErrStatusFetch, err)
	}

	o.mu.Lock()
	fresh := st.clone()
	o.status = &fresh
	listeners := o.listeners
	o.mu.Unlock()

	listeners.statusRefreshed(fresh)
	return fresh, nil
}

// HydrateStatus seeds the cached status read model without a billing call and
// without notifying listeners. Used by session bootstrap to surface the
// last-known status before the first refresh completes.
func (o *Orchestrator) HydrateStatus(st Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	hydrated := st.clone()
	o.status = &hydrated
}

// IsFeatureUnlocked reports whether the current subscription status grants
// access to the feature. False when no status is known yet.
func (o *Orchestrator) IsFeatureUnlocked(featureID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status == nil {
		return false
	}
	return o.status.Unlocks(featureID)
}

// Hide closes the paywall surface: it clears the selection, the last error
// and any applied promo, and returns the transient success/error states to
// idle. Hiding while a purchase is processing is disallowed: the in-flight
// charge's outcome must not be silently discarded.
func (o *Orchestrator) Hide() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateProcessing {
		return ErrPurchaseInProgress
	}

	o.selected = nil
	o.applied = nil
	o.lastErr = ""
	if o.state == StateSuccess || o.state == StateError {
		o.state, _ = next(o.state, eventReset)
	}
	return nil
}

// Reset returns the transient success/error states to idle and clears the
// captured error message. No-op in idle, rejected while processing.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateProcessing {
		return ErrPurchaseInProgress
	}
	if to, ok := next(o.state, eventReset); ok {
		o.state = to
	}
	o.lastErr = ""
	return nil
}

// scheduleReset arms the optional auto-return to idle after success/error.
func (o *Orchestrator) scheduleReset() {
	if o.autoReset <= 0 {
		return
	}
	time.AfterFunc(o.autoReset, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if to, ok := next(o.state, eventReset); ok {
			o.state = to
			o.lastErr = ""
		}
	})
}

// State returns the current purchase state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// SelectedPlan returns a copy of the selected plan, or nil when none is
// selected. While a promo is applied this is the discounted plan.
func (o *Orchestrator) SelectedPlan() *plan.Plan {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.selected == nil {
		return nil
	}
	selected := *o.selected
	return &selected
}

// AppliedPromo returns a copy of the live promo application, or nil.
func (o *Orchestrator) AppliedPromo() *promo.Application {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.applied == nil {
		return nil
	}
	applied := *o.applied
	return &applied
}

// LastError returns the captured message of the last failed purchase.
func (o *Orchestrator) LastError() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Status returns a copy of the last known subscription status, or an error
// when none has been fetched or hydrated yet.
func (o *Orchestrator) Status() (Status, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status == nil {
		return Status{}, ErrNoStatus
	}
	return o.status.clone(), nil
}
