package purchase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"

	"github.com/dmitrymomot/paywallkit/pkg/plan"
)

// PaddleConfig holds configuration for the Paddle billing adapter.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY,required"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleBilling implements Billing on top of Paddle transactions.
//
// Paddle pushes subscription state through webhooks rather than serving a
// poll endpoint, so the adapter keeps a webhook-fed view: HandleWebhook
// verifies and applies incoming events, and GetStatus/Restore serve from that
// view. Wire HandleWebhook into the webhook route of the backing service.
type PaddleBilling struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
	plans    map[string]plan.Plan // keyed by provider price ID

	mu        sync.RWMutex
	status    *Status
	purchases []Info
}

// NewPaddleBilling creates the adapter and loads the plan catalog so webhook
// events can be mapped back to plan entitlements.
func NewPaddleBilling(ctx context.Context, config PaddleConfig, src plan.Source) (*PaddleBilling, error) {
	if config.APIKey == "" {
		return nil, errors.New("paddle API key is required")
	}
	if config.WebhookSecret == "" {
		return nil, errors.New("paddle webhook secret is required")
	}
	if src == nil {
		return nil, errors.New("plan source is required")
	}

	var client *paddle.SDK
	var err error

	switch strings.ToLower(config.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(config.APIKey)
	case "production", "":
		client, err = paddle.New(config.APIKey)
	default:
		return nil, fmt.Errorf("invalid paddle environment: %s", config.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(plan.ErrFailedToLoadPlans, err)
	}

	byPriceID := make(map[string]plan.Plan, len(plans))
	for _, p := range plans {
		if p.ProductID != "" {
			byPriceID[p.ProductID] = p
		}
	}

	return &PaddleBilling{
		client:   client,
		verifier: paddle.NewWebhookVerifier(config.WebhookSecret),
		plans:    byPriceID,
	}, nil
}

// Purchase creates a Paddle transaction for the plan's price ID. The promo
// code and plan travel in custom data so webhook processing can tie the
// transaction back to this purchase.
func (b *PaddleBilling) Purchase(ctx context.Context, p plan.Plan, promoCode string) (*Info, error) {
	if p.ProductID == "" {
		return nil, fmt.Errorf("plan %q has no provider price ID", p.ID)
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  p.ProductID,
		Quantity: 1,
	})

	req := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			"plan_id": p.ID,
		},
	}
	if promoCode != "" {
		req.CustomData["promo_code"] = promoCode
	}

	transaction, err := b.client.TransactionsClient.CreateTransaction(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle transaction: %w", err)
	}

	now := time.Now().UTC()
	info := &Info{
		TransactionID:  transaction.ID,
		ProductID:      p.ProductID,
		PurchaseDate:   now,
		ExpirationDate: expirationFor(p.Interval, now),
		FinalPrice:     p.Price,
		Currency:       p.Currency,
	}

	b.mu.Lock()
	b.purchases = append(b.purchases, *info)
	b.mu.Unlock()

	return info, nil
}

// Restore returns the purchases known to the webhook-fed view.
func (b *PaddleBilling) Restore(ctx context.Context) ([]Info, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.purchases), nil
}

// GetStatus returns the webhook-fed subscription status.
func (b *PaddleBilling) GetStatus(ctx context.Context) (*Status, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.status == nil {
		return nil, ErrNoStatus
	}
	st := b.status.clone()
	return &st, nil
}

// HandleWebhook verifies and applies an incoming Paddle webhook event,
// keeping the adapter's entitlement view current. The signature comes from
// the Paddle-Signature header.
func (b *PaddleBilling) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request for verification: %w", err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := b.verifier.Verify(req)
	if err != nil {
		return fmt.Errorf("webhook verification error: %w", err)
	}
	if !valid {
		return errors.New("webhook signature verification failed")
	}

	var event struct {
		EventID   string         `json:"event_id"`
		EventType string         `json:"event_type"`
		Data      map[string]any `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	switch event.EventType {
	case "transaction.completed", "subscription.created", "subscription.activated", "subscription.updated", "subscription.resumed":
		b.applyActivation(event.Data)
	case "subscription.canceled", "subscription.past_due":
		b.applyDeactivation(event.Data, event.EventType == "subscription.canceled")
	}
	return nil
}

// applyActivation marks the status active with the plan's features as
// entitlements, resolved through the event's price ID.
func (b *PaddleBilling) applyActivation(data map[string]any) {
	priceID := extractPriceID(data)

	entitlements := []string{PremiumEntitlement}
	var expiration *time.Time

	if p, ok := b.plans[priceID]; ok {
		entitlements = append(slices.Clone(p.Features), PremiumEntitlement)
		expiration = expirationFor(p.Interval, time.Now().UTC())
	}

	trialing := false
	if status, ok := data["status"].(string); ok {
		trialing = status == "trialing"
	}

	b.mu.Lock()
	b.status = &Status{
		Active:         true,
		Entitlements:   entitlements,
		ExpirationDate: expiration,
		WillRenew:      true,
		TrialPeriod:    trialing,
	}
	b.mu.Unlock()
}

func (b *PaddleBilling) applyDeactivation(data map[string]any, cancelled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status == nil {
		b.status = &Status{}
	}
	b.status.WillRenew = false
	if cancelled {
		b.status.Active = false
	}
}

// extractPriceID digs the price ID out of the event's first line item,
// handling both subscription and transaction payload shapes.
func extractPriceID(data map[string]any) string {
	items, ok := data["items"].([]any)
	if !ok || len(items) == 0 {
		return ""
	}
	item, ok := items[0].(map[string]any)
	if !ok {
		return ""
	}
	if priceID, ok := item["price_id"].(string); ok {
		return priceID
	}
	if price, ok := item["price"].(map[string]any); ok {
		if priceID, ok := price["id"].(string); ok {
			return priceID
		}
	}
	return ""
}

// expirationFor returns when access purchased now runs out, or nil for
// lifetime plans.
func expirationFor(interval plan.Interval, from time.Time) *time.Time {
	var until time.Time
	switch interval {
	case plan.IntervalMonthly:
		until = from.AddDate(0, 1, 0)
	case plan.IntervalYearly:
		until = from.AddDate(1, 0, 0)
	default:
		return nil
	}
	return &until
}
