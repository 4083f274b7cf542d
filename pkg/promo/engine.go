package promo

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/paywallkit/pkg/discount"
	"github.com/dmitrymomot/paywallkit/pkg/plan"
)

// Engine validates promo codes, applies discounts to plans and tracks
// redemption through the catalog collaborator.
type Engine struct {
	plans   map[string]plan.Plan
	catalog Catalog
	remote  RemoteValidator
	cache   *ValidationCache
	clock   func() time.Time
	log     *slog.Logger

	mu       sync.Mutex
	inflight map[string]*inflightValidation
}

type inflightValidation struct {
	done   chan struct{}
	result Validation
}

// EngineOption configures an Engine instance.
type EngineOption func(*engineConfig)

type engineConfig struct {
	ttl    time.Duration
	clock  func() time.Time
	remote RemoteValidator
	log    *slog.Logger
}

// WithTTL overrides the validation cache TTL (default 5 minutes).
func WithTTL(ttl time.Duration) EngineOption {
	return func(c *engineConfig) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock injects a clock for deterministic expiry and timestamps in tests.
func WithClock(clock func() time.Time) EngineOption {
	return func(c *engineConfig) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithRemoteValidator delegates the validation decision to a backend instead
// of local catalog logic. Outcomes are still cached locally.
func WithRemoteValidator(remote RemoteValidator) EngineOption {
	return func(c *engineConfig) {
		if remote != nil {
			c.remote = remote
		}
	}
}

// WithLogger sets the logger, ignoring nil for safety.
func WithLogger(log *slog.Logger) EngineOption {
	return func(c *engineConfig) {
		if log != nil {
			c.log = log
		}
	}
}

// NewEngine creates an Engine, loading plans from the source up front.
// Panics if the plans source or catalog is nil to fail fast during
// initialization.
func NewEngine(ctx context.Context, src plan.Source, catalog Catalog, opts ...EngineOption) (*Engine, error) {
	if src == nil {
		panic("promo: plan.Source is required")
	}
	if catalog == nil {
		panic("promo: Catalog is required")
	}

	cfg := &engineConfig{
		ttl:   DefaultCacheTTL,
		clock: time.Now,
		log:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(plan.ErrFailedToLoadPlans, err)
	}

	return &Engine{
		plans:    plans,
		catalog:  catalog,
		remote:   cfg.remote,
		cache:    NewValidationCache(cfg.ttl, cfg.clock),
		clock:    cfg.clock,
		log:      cfg.log,
		inflight: make(map[string]*inflightValidation),
	}, nil
}

// Validate checks a promo code against the catalog. It always returns a
// value, never an error: transport failures are recovered into an invalid
// Validation with ReasonValidationError. Every outcome, valid or not, is
// cached under the (code, plan, user) composite key before returning.
//
// Concurrent calls for the same key are collapsed into a single catalog
// request; all callers observe the same result.
func (e *Engine) Validate(ctx context.Context, code, planID, userID string) Validation {
	canonical := Canonicalize(code)
	if canonical == "" {
		return Validation{
			Valid:   false,
			Message: "Enter a promo code.",
			Reason:  ReasonValidationError,
		}
	}

	key := CacheKey(canonical, planID, userID)
	if cached, ok := e.cache.Get(key); ok {
		return cached
	}

	e.mu.Lock()
	if call, ok := e.inflight[key]; ok {
		e.mu.Unlock()
		select {
		case <-call.done:
			return call.result
		case <-ctx.Done():
			return Validation{
				Valid:   false,
				Message: "Could not validate the promo code. Please try again.",
				Reason:  ReasonValidationError,
			}
		}
	}
	call := &inflightValidation{done: make(chan struct{})}
	e.inflight[key] = call
	e.mu.Unlock()

	result := e.validate(ctx, canonical, planID, userID)
	e.cache.Set(key, result)

	e.mu.Lock()
	delete(e.inflight, key)
	e.mu.Unlock()

	call.result = result
	close(call.done)
	return result
}

// validate performs the uncached validation decision.
func (e *Engine) validate(ctx context.Context, canonical, planID, userID string) Validation {
	if e.remote != nil {
		result, err := e.remote.ValidateCode(ctx, canonical, planID, userID)
		if err != nil {
			e.log.WarnContext(ctx, "remote promo validation failed",
				slog.String("code", canonical), slog.Any("error", err))
			return Validation{
				Valid:   false,
				Message: "Could not validate the promo code. Please try again.",
				Reason:  ReasonValidationError,
			}
		}
		return result
	}

	found, err := e.catalog.FindByCode(ctx, canonical)
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) {
			return Validation{
				Valid:   false,
				Message: "This promo code does not exist.",
				Reason:  ReasonCodeNotFound,
			}
		}
		e.log.WarnContext(ctx, "promo catalog lookup failed",
			slog.String("code", canonical), slog.Any("error", err))
		return Validation{
			Valid:   false,
			Message: "Could not validate the promo code. Please try again.",
			Reason:  ReasonValidationError,
		}
	}

	if !found.WithinWindow(e.clock()) {
		return Validation{
			Valid:   false,
			Message: "This promo code has expired.",
			Reason:  ReasonCodeExpired,
		}
	}

	if found.Exhausted() {
		return Validation{
			Valid:   false,
			Message: "This promo code has reached its usage limit.",
			Reason:  ReasonCodeExhausted,
		}
	}

	if planID != "" && !found.AppliesTo(planID) {
		return Validation{
			Valid:   false,
			Message: "This promo code does not apply to the selected plan.",
			Reason:  ReasonPlanNotApplicable,
		}
	}

	result := Validation{
		Valid:   true,
		Code:    found,
		Message: "Promo code applied: " + found.Discount.Describe() + ".",
	}
	if p, ok := e.plans[planID]; ok {
		price := discount.ComputePrice(p.Price, found.Discount)
		result.DiscountedPrice = &price
	}
	return result
}

// Apply validates the code against the given plan (reusing the cache) and,
// on success, returns the application record binding the code to the original
// plan and its discounted derivation. Apply mutates no orchestrator state;
// the caller feeds the discounted plan back into its selection.
func (e *Engine) Apply(ctx context.Context, code string, p plan.Plan, userID string) (*Application, error) {
	v := e.Validate(ctx, code, p.ID, userID)
	if !v.Valid {
		return nil, errors.Join(ErrInvalidPromoCode, errors.New(v.Message))
	}
	// A remote backend may answer valid without echoing the code definition;
	// without the discount rule there is nothing to apply.
	if v.Code == nil {
		return nil, errors.Join(ErrInvalidPromoCode, errors.New("validation outcome carries no code definition"))
	}

	discounted := p.WithPrice(discount.ComputePrice(p.Price, v.Code.Discount))
	return &Application{
		Code:           *v.Code,
		OriginalPlan:   p,
		DiscountedPlan: discounted,
		AppliedAt:      e.clock(),
	}, nil
}

// Redeem durably records usage of the code. Callers treat redemption as
// idempotent; duplicate detection is the catalog's responsibility.
func (e *Engine) Redeem(ctx context.Context, code, userID, purchaseID string) error {
	if err := e.catalog.Redeem(ctx, Canonicalize(code), userID, purchaseID); err != nil {
		return errors.Join(ErrRedeemFailed, err)
	}
	return nil
}

// HasUserUsed reports whether the user redeemed the code before. It fails
// open: any catalog failure resolves to false so a transient check never
// blocks a legitimate purchase.
func (e *Engine) HasUserUsed(ctx context.Context, code, userID string) bool {
	used, err := e.catalog.HasUsed(ctx, Canonicalize(code), userID)
	if err != nil {
		e.log.DebugContext(ctx, "promo usage check failed, failing open",
			slog.String("code", Canonicalize(code)), slog.Any("error", err))
		return false
	}
	return used
}

// ClearCache drops all cached validations immediately.
func (e *Engine) ClearCache() {
	e.cache.Clear()
}
