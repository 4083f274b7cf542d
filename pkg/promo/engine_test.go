package promo_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/paywallkit/pkg/discount"
	"github.com/dmitrymomot/paywallkit/pkg/plan"
	"github.com/dmitrymomot/paywallkit/pkg/promo"
)

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) FindByCode(ctx context.Context, code string) (*promo.Code, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*promo.Code), args.Error(1)
}

func (m *mockCatalog) Redeem(ctx context.Context, code, userID, purchaseID string) error {
	args := m.Called(ctx, code, userID, purchaseID)
	return args.Error(0)
}

func (m *mockCatalog) HasUsed(ctx context.Context, code, userID string) (bool, error) {
	args := m.Called(ctx, code, userID)
	return args.Bool(0), args.Error(1)
}

type mockRemote struct {
	mock.Mock
}

func (m *mockRemote) ValidateCode(ctx context.Context, code, planID, userID string) (promo.Validation, error) {
	args := m.Called(ctx, code, planID, userID)
	return args.Get(0).(promo.Validation), args.Error(1)
}

func testPlans() plan.Source {
	return plan.NewInMemSource(
		plan.Plan{
			ID:        "monthly",
			Name:      "Monthly",
			Price:     decimal.RequireFromString("9.99"),
			Currency:  "USD",
			Interval:  plan.IntervalMonthly,
			Features:  []string{"premium"},
			ProductID: "price_monthly_999",
		},
		plan.Plan{
			ID:        "yearly",
			Name:      "Yearly",
			Price:     decimal.RequireFromString("79.99"),
			Currency:  "USD",
			Interval:  plan.IntervalYearly,
			Features:  []string{"premium"},
			ProductID: "price_yearly_7999",
		},
	)
}

func newEngine(t *testing.T, catalog promo.Catalog, opts ...promo.EngineOption) *promo.Engine {
	t.Helper()
	engine, err := promo.NewEngine(t.Context(), testPlans(), catalog, opts...)
	require.NoError(t, err)
	return engine
}

func TestEngineValidate(t *testing.T) {
	t.Parallel()

	t.Run("valid code computes discounted price", func(t *testing.T) {
		t.Parallel()

		catalog := new(mockCatalog)
		code := save20()
		catalog.On("FindByCode", mock.Anything, "SAVE20").Return(&code, nil).Once()

		engine := newEngine(t, catalog)
		v := engine.Validate(t.Context(), "save20", "monthly", "user-1")

		require.True(t, v.Valid)
		assert.Equal(t, promo.ReasonNone, v.Reason)
		require.NotNil(t, v.Code)
		assert.Equal(t, "SAVE20", v.Code.Code)
		require.NotNil(t, v.DiscountedPrice)
		assert.True(t, v.DiscountedPrice.Equal(decimal.RequireFromString("7.992")),
			"got %s", v.DiscountedPrice)
		assert.NotEmpty(t, v.Message)
		catalog.AssertExpectations(t)
	})

	t.Run("unknown code", func(t *testing.T) {
		t.Parallel()

		catalog := new(mockCatalog)
		catalog.On("FindByCode", mock.Anything, "NOPE").Return(nil, promo.ErrCodeNotFound).Once()

		engine := newEngine(t, catalog)
		v := engine.Validate(t.Context(), "nope", "monthly", "user-1")

		assert.False(t, v.Valid)
		assert.Equal(t, promo.ReasonCodeNotFound, v.Reason)
		assert.Nil(t, v.DiscountedPrice)
	})

	t.Run("catalog failure is recovered into a value", func(t *testing.T) {
		t.Parallel()

		catalog := new(mockCatalog)
		catalog.On("FindByCode", mock.Anything, "SAVE20").Return(nil, errors.New("boom")).Once()

		engine := newEngine(t, catalog)
		v := engine.Validate(t.Context(), "SAVE20", "monthly", "user-1")

		assert.False(t, v.Valid)
		assert.Equal(t, promo.ReasonValidationError, v.Reason)
	})

	t.Run("expired code", func(t *testing.T) {
		t.Parallel()

		now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
		expired := save20()
		expired.ValidUntil = now.Add(-time.Hour)

		catalog := new(mockCatalog)
		catalog.On("FindByCode", mock.Anything, "SAVE20").Return(&expired, nil).Once()

		engine := newEngine(t, catalog, promo.WithClock(func() time.Time { return now }))
		v := engine.Validate(t.Context(), "SAVE20", "monthly", "user-1")

		assert.False(t, v.Valid)
		assert.Equal(t, promo.ReasonCodeExpired, v.Reason)
	})

	t.Run("not yet valid code", func(t *testing.T) {
		t.Parallel()

		now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
		future := save20()
		future.ValidFrom = now.Add(time.Hour)

		catalog := new(mockCatalog)
		catalog.On("FindByCode", mock.Anything, "SAVE20").Return(&future, nil).Once()

		engine := newEngine(t, catalog, promo.WithClock(func() time.Time { return now }))
		v := engine.Validate(t.Context(), "SAVE20", "monthly", "user-1")

		assert.False(t, v.Valid)
		assert.Equal(t, promo.ReasonCodeExpired, v.Reason)
	})

	t.Run("exhausted code fails regardless of date validity", func(t *testing.T) {
		t.Parallel()

		exhausted := save20()
		exhausted.MaxUses = 100
		exhausted.CurrentUses = 100
		exhausted.ValidUntil = time.Now().Add(24 * time.Hour)

		catalog := new(mockCatalog)
		catalog.On("FindByCode", mock.Anything, "SAVE20").Return(&exhausted, nil).Once()

		engine := newEngine(t, catalog)
		v := engine.Validate(t.Context(), "SAVE20", "monthly", "user-1")

		assert.False(t, v.Valid)
		assert.Equal(t, promo.ReasonCodeExhausted, v.Reason)
	})

	t.Run("plan not applicable", func(t *testing.T) {
		t.Parallel()

		special := promo.Code{
			ID:   "promo-2",
			Code: "SPECIAL50",
			Discount: discount.Rule{
				Kind:  discount.KindPercentage,
				Value: decimal.RequireFromString("50"),
			},
			Active:          true,
			ApplicablePlans: []string{"yearly"},
		}

		catalog := new(mockCatalog)
		catalog.On("FindByCode", mock.Anything, "SPECIAL50").Return(&special, nil).Once()

		engine := newEngine(t, catalog)
		v := engine.Validate(t.Context(), "SPECIAL50", "monthly", "user-1")

		assert.False(t, v.Valid)
		assert.Equal(t, promo.ReasonPlanNotApplicable, v.Reason)
	})

	t.Run("empty code short-circuits without a catalog call", func(t *testing.T) {
		t.Parallel()

		catalog := new(mockCatalog)
		engine := newEngine(t, catalog)

		v := engine.Validate(t.Context(), "   ", "monthly", "user-1")
		assert.False(t, v.Valid)
		assert.Equal(t, promo.ReasonValidationError, v.Reason)
		catalog.AssertNotCalled(t, "FindByCode", mock.Anything, mock.Anything)
	})
}

func TestEngineValidateCaching(t *testing.T) {
	t.Parallel()

	t.Run("second call within TTL is served from cache", func(t *testing.T) {
		t.Parallel()

		catalog := new(mockCatalog)
		code := save20()
		catalog.On("FindByCode", mock.Anything, "SAVE20").Return(&code, nil).Once()

		engine := newEngine(t, catalog)

		first := engine.Validate(t.Context(), "SAVE20", "monthly", "user-1")
		second := engine.Validate(t.Context(), "save 20", "monthly", "user-1")

		assert.Equal(t, first, second)
		catalog.AssertNumberOfCalls(t, "FindByCode", 1)
	})

	t.Run("negative outcomes are cached too", func(t *testing.T) {
		t.Parallel()

		catalog := new(mockCatalog)
		catalog.On("FindByCode", mock.Anything, "TYPO").Return(nil, promo.ErrCodeNotFound).Once()

		engine := newEngine(t, catalog)

		first := engine.Validate(t.Context(), "TYPO", "monthly", "user-1")
		second := engine.Validate(t.Context(), "TYPO", "monthly", "user-1")

		assert.Equal(t, first, second)
		assert.Equal(t, promo.ReasonCodeNotFound, second.Reason)
		catalog.AssertNumberOfCalls(t, "FindByCode", 1)
	})

	t.Run("expired entry re-queries the catalog", func(t *testing.T) {
		t.Parallel()

		now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
		var mu sync.Mutex
		clock := func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}

		catalog := new(mockCatalog)
		code := save20()
		catalog.On("FindByCode", mock.Anything, "SAVE20").Return(&code, nil).Twice()

		engine := newEngine(t, catalog,
			promo.WithClock(clock),
			promo.WithTTL(5*time.Minute),
		)

		engine.Validate(t.Context(), "SAVE20", "monthly", "user-1")

		mu.Lock()
		now = now.Add(5*time.Minute + time.Second)
		mu.Unlock()

		engine.Validate(t.Context(), "SAVE20", "monthly", "user-1")
		catalog.AssertNumberOfCalls(t, "FindByCode", 2)
	})

	t.Run("different composite keys trigger separate lookups", func(t *testing.T) {
		t.Parallel()

		catalog := new(mockCatalog)
		code := save20()
		catalog.On("FindByCode", mock.Anything, "SAVE20").Return(&code, nil).Twice()

		engine := newEngine(t, catalog)
		engine.Validate(t.Context(), "SAVE20", "monthly", "user-1")
		engine.Validate(t.Context(), "SAVE20", "yearly", "user-1")

		catalog.AssertNumberOfCalls(t, "FindByCode", 2)
	})

	t.Run("clear cache forces a re-query", func(t *testing.T) {
		t.Parallel()

		catalog := new(mockCatalog)
		code := save20()
		catalog.On("FindByCode", mock.Anything, "SAVE20").Return(&code, nil).Twice()

		engine := newEngine(t, catalog)
		engine.Validate(t.Context(), "SAVE20", "monthly", "user-1")
		engine.ClearCache()
		engine.Validate(t.Context(), "SAVE20", "monthly", "user-1")

		catalog.AssertNumberOfCalls(t, "FindByCode", 2)
	})
}

// countingCatalog serves a fixed code with an artificial delay, counting
// lookups, to observe in-flight de-duplication.
type countingCatalog struct {
	code  promo.Code
	delay time.Duration
	calls atomic.Int64
}

func (c *countingCatalog) FindByCode(ctx context.Context, code string) (*promo.Code, error) {
	c.calls.Add(1)
	time.Sleep(c.delay)
	cp := c.code
	return &cp, nil
}

func (c *countingCatalog) Redeem(ctx context.Context, code, userID, purchaseID string) error {
	return nil
}

func (c *countingCatalog) HasUsed(ctx context.Context, code, userID string) (bool, error) {
	return false, nil
}

func TestEngineValidateSingleFlight(t *testing.T) {
	t.Parallel()

	catalog := &countingCatalog{code: save20(), delay: 50 * time.Millisecond}
	engine := newEngine(t, catalog)

	const n = 10
	results := make([]promo.Validation, n)

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = engine.Validate(context.Background(), "SAVE20", "monthly", "user-1")
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), catalog.calls.Load(), "concurrent validations must collapse into one catalog call")
	for _, v := range results {
		assert.True(t, v.Valid)
	}
}

func TestEngineValidateRemote(t *testing.T) {
	t.Parallel()

	t.Run("delegates the decision to the backend", func(t *testing.T) {
		t.Parallel()

		price := decimal.RequireFromString("7.99")
		remoteResult := promo.Validation{Valid: true, DiscountedPrice: &price, Message: "Promo applied."}

		remote := new(mockRemote)
		remote.On("ValidateCode", mock.Anything, "SAVE20", "monthly", "user-1").Return(remoteResult, nil).Once()

		catalog := new(mockCatalog)
		engine := newEngine(t, catalog, promo.WithRemoteValidator(remote))

		v := engine.Validate(t.Context(), "save20", "monthly", "user-1")
		assert.Equal(t, remoteResult, v)

		// Cached like local outcomes.
		engine.Validate(t.Context(), "SAVE20", "monthly", "user-1")
		remote.AssertNumberOfCalls(t, "ValidateCode", 1)
		catalog.AssertNotCalled(t, "FindByCode", mock.Anything, mock.Anything)
	})

	t.Run("backend failure is recovered into a value", func(t *testing.T) {
		t.Parallel()

		remote := new(mockRemote)
		remote.On("ValidateCode", mock.Anything, "SAVE20", "monthly", "user-1").
			Return(promo.Validation{}, errors.New("503")).Once()

		engine := newEngine(t, new(mockCatalog), promo.WithRemoteValidator(remote))

		v := engine.Validate(t.Context(), "SAVE20", "monthly", "user-1")
		assert.False(t, v.Valid)
		assert.Equal(t, promo.ReasonValidationError, v.Reason)
	})
}

func TestEngineApply(t *testing.T) {
	t.Parallel()

	monthly := plan.Plan{
		ID:       "monthly",
		Name:     "Monthly",
		Price:    decimal.RequireFromString("9.99"),
		Currency: "USD",
		Interval: plan.IntervalMonthly,
		Features: []string{"premium"},
	}

	t.Run("success binds original and discounted plans", func(t *testing.T) {
		t.Parallel()

		now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
		catalog := new(mockCatalog)
		code := save20()
		catalog.On("FindByCode", mock.Anything, "SAVE20").Return(&code, nil).Once()

		engine := newEngine(t, catalog, promo.WithClock(func() time.Time { return now }))

		app, err := engine.Apply(t.Context(), "save20", monthly, "user-1")
		require.NoError(t, err)

		assert.Equal(t, "SAVE20", app.Code.Code)
		assert.True(t, app.OriginalPlan.Equal(monthly))
		assert.True(t, app.DiscountedPlan.Price.Equal(decimal.RequireFromString("7.992")))
		require.NotNil(t, app.DiscountedPlan.OriginalPrice)
		assert.True(t, app.DiscountedPlan.OriginalPrice.Equal(decimal.RequireFromString("9.99")))
		assert.Equal(t, now, app.AppliedAt)
	})

	t.Run("valid outcome without a code definition cannot be applied", func(t *testing.T) {
		t.Parallel()

		remote := new(mockRemote)
		remote.On("ValidateCode", mock.Anything, "SAVE20", "monthly", "user-1").
			Return(promo.Validation{Valid: true, Message: "Promo applied."}, nil).Once()

		engine := newEngine(t, new(mockCatalog), promo.WithRemoteValidator(remote))

		app, err := engine.Apply(t.Context(), "SAVE20", monthly, "user-1")
		require.ErrorIs(t, err, promo.ErrInvalidPromoCode)
		assert.Nil(t, app)
	})

	t.Run("invalid code fails with a typed error", func(t *testing.T) {
		t.Parallel()

		catalog := new(mockCatalog)
		catalog.On("FindByCode", mock.Anything, "NOPE").Return(nil, promo.ErrCodeNotFound).Once()

		engine := newEngine(t, catalog)

		_, err := engine.Apply(t.Context(), "NOPE", monthly, "user-1")
		require.ErrorIs(t, err, promo.ErrInvalidPromoCode)
	})

	t.Run("apply reuses the validation cache", func(t *testing.T) {
		t.Parallel()

		catalog := new(mockCatalog)
		code := save20()
		catalog.On("FindByCode", mock.Anything, "SAVE20").Return(&code, nil).Once()

		engine := newEngine(t, catalog)
		engine.Validate(t.Context(), "SAVE20", "monthly", "user-1")

		_, err := engine.Apply(t.Context(), "SAVE20", monthly, "user-1")
		require.NoError(t, err)
		catalog.AssertNumberOfCalls(t, "FindByCode", 1)
	})
}

func TestEngineRedeem(t *testing.T) {
	t.Parallel()

	t.Run("records usage at the catalog", func(t *testing.T) {
		t.Parallel()

		catalog := new(mockCatalog)
		catalog.On("Redeem", mock.Anything, "SAVE20", "user-1", "txn-1").Return(nil).Once()

		engine := newEngine(t, catalog)
		require.NoError(t, engine.Redeem(t.Context(), "save20", "user-1", "txn-1"))
		catalog.AssertExpectations(t)
	})

	t.Run("wraps catalog failures", func(t *testing.T) {
		t.Parallel()

		catalog := new(mockCatalog)
		catalog.On("Redeem", mock.Anything, "SAVE20", "user-1", "").Return(errors.New("boom")).Once()

		engine := newEngine(t, catalog)
		require.ErrorIs(t, engine.Redeem(t.Context(), "SAVE20", "user-1", ""), promo.ErrRedeemFailed)
	})
}

func TestEngineHasUserUsed(t *testing.T) {
	t.Parallel()

	t.Run("reports catalog answer", func(t *testing.T) {
		t.Parallel()

		catalog := new(mockCatalog)
		catalog.On("HasUsed", mock.Anything, "SAVE20", "user-1").Return(true, nil).Once()

		engine := newEngine(t, catalog)
		assert.True(t, engine.HasUserUsed(t.Context(), "SAVE20", "user-1"))
	})

	t.Run("fails open on catalog failure", func(t *testing.T) {
		t.Parallel()

		catalog := new(mockCatalog)
		catalog.On("HasUsed", mock.Anything, "SAVE20", "user-1").Return(false, errors.New("timeout")).Once()

		engine := newEngine(t, catalog)
		assert.False(t, engine.HasUserUsed(t.Context(), "SAVE20", "user-1"))
	})
}
