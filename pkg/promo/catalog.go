package promo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/paywallkit/pkg/discount"
)

// Catalog is the collaborator holding promo code definitions and redemption
// bookkeeping. Duplicate redemption detection is the catalog's concern, not
// the engine's.
type Catalog interface {
	// FindByCode returns the code in canonical form.
	// Returns ErrCodeNotFound when the code is absent or inactive.
	FindByCode(ctx context.Context, code string) (*Code, error)

	// Redeem durably records usage of the code by the user.
	Redeem(ctx context.Context, code, userID, purchaseID string) error

	// HasUsed reports whether the user has redeemed the code before.
	HasUsed(ctx context.Context, code, userID string) (bool, error)
}

type inMemCatalog struct {
	mu    sync.RWMutex
	codes map[string]Code
	usage map[string]map[string]bool // canonical code -> user IDs
}

// NewInMemCatalog returns a Catalog seeded with the given codes. Code strings
// are canonicalized on insertion so lookups match regardless of input casing.
func NewInMemCatalog(codes ...Code) Catalog {
	c := &inMemCatalog{
		codes: make(map[string]Code, len(codes)),
		usage: make(map[string]map[string]bool),
	}
	for _, code := range codes {
		code.Code = Canonicalize(code.Code)
		c.codes[code.Code] = code.clone()
	}
	return c
}

func (c *inMemCatalog) FindByCode(ctx context.Context, code string) (*Code, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	found, ok := c.codes[Canonicalize(code)]
	if !ok || !found.Active {
		return nil, ErrCodeNotFound
	}
	cp := found.clone()
	return &cp, nil
}

func (c *inMemCatalog) Redeem(ctx context.Context, code, userID, purchaseID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	canonical := Canonicalize(code)
	found, ok := c.codes[canonical]
	if !ok {
		return ErrCodeNotFound
	}

	found.CurrentUses++
	c.codes[canonical] = found

	if c.usage[canonical] == nil {
		c.usage[canonical] = make(map[string]bool)
	}
	c.usage[canonical][userID] = true
	return nil
}

func (c *inMemCatalog) HasUsed(ctx context.Context, code, userID string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.usage[Canonicalize(code)][userID], nil
}

type yamlCode struct {
	ID              string   `yaml:"id"`
	Code            string   `yaml:"code"`
	Kind            string   `yaml:"kind"`
	Value           string   `yaml:"value"`
	TrialDays       int      `yaml:"trial_days"`
	MaxUses         int      `yaml:"max_uses"`
	ValidFrom       string   `yaml:"valid_from"`
	ValidUntil      string   `yaml:"valid_until"`
	Active          bool     `yaml:"active"`
	ApplicablePlans []string `yaml:"applicable_plans"`
	NewCustomers    bool     `yaml:"new_customers_only"`
}

type yamlPromoCatalog struct {
	Codes []yamlCode `yaml:"promo_codes"`
}

// NewYAMLCatalog reads a promo catalog file and returns an in-memory Catalog
// seeded from it. Timestamps use RFC 3339; empty timestamps mean unbounded.
func NewYAMLCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrNetwork, err)
	}

	var catalog yamlPromoCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse promo catalog: %w", err)
	}

	codes := make([]Code, 0, len(catalog.Codes))
	for _, yc := range catalog.Codes {
		value := decimal.Zero
		if yc.Value != "" {
			value, err = decimal.NewFromString(yc.Value)
			if err != nil {
				return nil, fmt.Errorf("promo code %q has invalid value %q: %w", yc.Code, yc.Value, err)
			}
		}

		code := Code{
			ID:   yc.ID,
			Code: yc.Code,
			Discount: discount.Rule{
				Kind:      discount.Kind(yc.Kind),
				Value:     value,
				TrialDays: yc.TrialDays,
			},
			MaxUses:          yc.MaxUses,
			Active:           yc.Active,
			ApplicablePlans:  yc.ApplicablePlans,
			NewCustomersOnly: yc.NewCustomers,
		}

		if yc.ValidFrom != "" {
			code.ValidFrom, err = time.Parse(time.RFC3339, yc.ValidFrom)
			if err != nil {
				return nil, fmt.Errorf("promo code %q has invalid valid_from: %w", yc.Code, err)
			}
		}
		if yc.ValidUntil != "" {
			code.ValidUntil, err = time.Parse(time.RFC3339, yc.ValidUntil)
			if err != nil {
				return nil, fmt.Errorf("promo code %q has invalid valid_until: %w", yc.Code, err)
			}
		}

		codes = append(codes, code)
	}
	return NewInMemCatalog(codes...), nil
}
