package promo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/paywallkit/pkg/discount"
)

// RemoteValidator delegates the validation decision (code resolution, window,
// usage and plan checks, discount pricing) to a backend instead of local
// catalog logic. The engine still canonicalizes input and caches outcomes.
type RemoteValidator interface {
	ValidateCode(ctx context.Context, code, planID, userID string) (Validation, error)
}

// HTTPCatalog talks to a promo backend over an authenticated JSON API. It
// implements both Catalog and RemoteValidator.
type HTTPCatalog struct {
	baseURL string
	token   string
	client  *http.Client
}

// HTTPCatalogOption configures an HTTPCatalog.
type HTTPCatalogOption func(*HTTPCatalog)

// WithHTTPClient sets a custom HTTP client, ignoring nil for safety. The
// client's timeout bounds every catalog call; the engine adds no timeout
// layer of its own.
func WithHTTPClient(client *http.Client) HTTPCatalogOption {
	return func(c *HTTPCatalog) {
		if client != nil {
			c.client = client
		}
	}
}

// NewHTTPCatalog creates a catalog client for the given base URL. Requests
// carry the token as a bearer credential.
func NewHTTPCatalog(baseURL, token string, opts ...HTTPCatalogOption) (*HTTPCatalog, error) {
	if baseURL == "" {
		return nil, errors.New("promo: catalog base URL is required")
	}

	c := &HTTPCatalog{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type wireCode struct {
	ID              string   `json:"id"`
	Code            string   `json:"code"`
	DiscountKind    string   `json:"discount_kind"`
	DiscountValue   string   `json:"discount_value"`
	TrialDays       int      `json:"trial_days,omitempty"`
	MaxUses         int      `json:"max_uses,omitempty"`
	CurrentUses     int      `json:"current_uses,omitempty"`
	ValidFrom       string   `json:"valid_from,omitempty"`
	ValidUntil      string   `json:"valid_until,omitempty"`
	Active          bool     `json:"active"`
	ApplicablePlans []string `json:"applicable_plans,omitempty"`
	NewCustomers    bool     `json:"new_customers_only,omitempty"`
}

type wireValidation struct {
	Valid           bool      `json:"valid"`
	Code            *wireCode `json:"code,omitempty"`
	DiscountedPrice string    `json:"discounted_price,omitempty"`
	Message         string    `json:"message"`
	Reason          string    `json:"reason,omitempty"`
}

func (w wireCode) toDomain() (Code, error) {
	value := decimal.Zero
	if w.DiscountValue != "" {
		var err error
		value, err = decimal.NewFromString(w.DiscountValue)
		if err != nil {
			return Code{}, fmt.Errorf("invalid discount value %q: %w", w.DiscountValue, err)
		}
	}

	code := Code{
		ID:   w.ID,
		Code: Canonicalize(w.Code),
		Discount: discount.Rule{
			Kind:      discount.Kind(w.DiscountKind),
			Value:     value,
			TrialDays: w.TrialDays,
		},
		MaxUses:          w.MaxUses,
		CurrentUses:      w.CurrentUses,
		Active:           w.Active,
		ApplicablePlans:  w.ApplicablePlans,
		NewCustomersOnly: w.NewCustomers,
	}

	if w.ValidFrom != "" {
		t, err := time.Parse(time.RFC3339, w.ValidFrom)
		if err != nil {
			return Code{}, fmt.Errorf("invalid valid_from: %w", err)
		}
		code.ValidFrom = t
	}
	if w.ValidUntil != "" {
		t, err := time.Parse(time.RFC3339, w.ValidUntil)
		if err != nil {
			return Code{}, fmt.Errorf("invalid valid_until: %w", err)
		}
		code.ValidUntil = t
	}
	return code, nil
}

// FindByCode resolves a code from the backend.
func (c *HTTPCatalog) FindByCode(ctx context.Context, code string) (*Code, error) {
	var wire wireCode
	path := "/promo-codes/" + url.PathEscape(Canonicalize(code))
	if err := c.do(ctx, http.MethodGet, path, nil, &wire); err != nil {
		return nil, err
	}

	domain, err := wire.toDomain()
	if err != nil {
		return nil, errors.Join(ErrNetwork, err)
	}
	if !domain.Active {
		return nil, ErrCodeNotFound
	}
	return &domain, nil
}

// Redeem records usage of a code on the backend.
func (c *HTTPCatalog) Redeem(ctx context.Context, code, userID, purchaseID string) error {
	body := map[string]string{"user_id": userID}
	if purchaseID != "" {
		body["purchase_id"] = purchaseID
	}
	path := "/promo-codes/" + url.PathEscape(Canonicalize(code)) + "/redeem"
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// HasUsed queries the backend for prior redemption by the user.
func (c *HTTPCatalog) HasUsed(ctx context.Context, code, userID string) (bool, error) {
	var out struct {
		Used bool `json:"used"`
	}
	path := "/promo-codes/" + url.PathEscape(Canonicalize(code)) + "/usage?user_id=" + url.QueryEscape(userID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return false, err
	}
	return out.Used, nil
}

// ValidateCode asks the backend to perform the full validation decision.
func (c *HTTPCatalog) ValidateCode(ctx context.Context, code, planID, userID string) (Validation, error) {
	body := map[string]string{"code": Canonicalize(code)}
	if planID != "" {
		body["plan_id"] = planID
	}
	if userID != "" {
		body["user_id"] = userID
	}

	var wire wireValidation
	if err := c.do(ctx, http.MethodPost, "/promo-codes/validate", body, &wire); err != nil {
		return Validation{}, err
	}

	v := Validation{
		Valid:   wire.Valid,
		Message: wire.Message,
		Reason:  Reason(wire.Reason),
	}
	if wire.Code != nil {
		domain, err := wire.Code.toDomain()
		if err != nil {
			return Validation{}, errors.Join(ErrNetwork, err)
		}
		v.Code = &domain
	}
	if wire.Valid && wire.DiscountedPrice != "" {
		price, err := decimal.NewFromString(wire.DiscountedPrice)
		if err != nil {
			return Validation{}, errors.Join(ErrNetwork, fmt.Errorf("invalid discounted price: %w", err))
		}
		v.DiscountedPrice = &price
	}
	return v, nil
}

func (c *HTTPCatalog) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Join(ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Join(ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrCodeNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return errors.Join(ErrNetwork, fmt.Errorf("unexpected status %d from %s %s", resp.StatusCode, method, path))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Join(ErrNetwork, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}
