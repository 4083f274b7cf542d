package plan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Source defines how plans are loaded into consumers (promo engine, session).
type Source interface {
	Load(ctx context.Context) (map[string]Plan, error)
}

type inMemSource struct {
	mu    sync.RWMutex
	plans map[string]Plan
}

// NewInMemSource returns an in-memory Source with a deep copy of the given plans.
// Panics if no plans are provided to ensure consumers always have at least one
// valid plan. Deep copying prevents external modifications from affecting the
// source's state.
func NewInMemSource(plans ...Plan) Source {
	if len(plans) < 1 {
		panic("plan: at least one plan is required")
	}
	plansCopy := make(map[string]Plan, len(plans))
	for _, p := range plans {
		plansCopy[p.ID] = p.clone()
	}
	return &inMemSource{plans: plansCopy}
}

// Load returns a copy of all available plans from memory.
func (s *inMemSource) Load(ctx context.Context) (map[string]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plansCopy := make(map[string]Plan, len(s.plans))
	for id, p := range s.plans {
		if err := validate(p); err != nil {
			return nil, errors.Join(err, fmt.Errorf("plan %q", id))
		}
		plansCopy[id] = p.clone()
	}
	return plansCopy, nil
}

type yamlSource struct {
	path string
}

// NewYAMLSource returns a Source that reads a plan catalog file on every Load.
// Re-reading keeps the source cheap to construct and lets callers decide when
// catalog changes take effect.
func NewYAMLSource(path string) Source {
	return &yamlSource{path: path}
}

type yamlPlan struct {
	ID              string   `yaml:"id"`
	Name            string   `yaml:"name"`
	Description     string   `yaml:"description"`
	Price           string   `yaml:"price"`
	Currency        string   `yaml:"currency"`
	Interval        string   `yaml:"interval"`
	Features        []string `yaml:"features"`
	DiscountPercent int      `yaml:"discount_percent"`
	Popular         bool     `yaml:"popular"`
	ProductID       string   `yaml:"product_id"`
}

type yamlCatalog struct {
	Plans []yamlPlan `yaml:"plans"`
}

func (s *yamlSource) Load(ctx context.Context) (map[string]Plan, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	var catalog yamlCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	if len(catalog.Plans) == 0 {
		return nil, errors.Join(ErrFailedToLoadPlans, errors.New("catalog file contains no plans"))
	}

	plans := make(map[string]Plan, len(catalog.Plans))
	for _, yp := range catalog.Plans {
		price, err := decimal.NewFromString(yp.Price)
		if err != nil {
			return nil, errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %q has invalid price %q: %w", yp.ID, yp.Price, err))
		}

		p := Plan{
			ID:              yp.ID,
			Name:            yp.Name,
			Description:     yp.Description,
			Price:           price,
			Currency:        yp.Currency,
			Interval:        Interval(yp.Interval),
			Features:        yp.Features,
			DiscountPercent: yp.DiscountPercent,
			Popular:         yp.Popular,
			ProductID:       yp.ProductID,
		}
		if err := validate(p); err != nil {
			return nil, errors.Join(err, fmt.Errorf("plan %q", yp.ID))
		}
		if _, exists := plans[p.ID]; exists {
			return nil, errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("duplicate plan ID %q", p.ID))
		}
		plans[p.ID] = p
	}
	return plans, nil
}
