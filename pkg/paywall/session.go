package paywall

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/paywallkit/pkg/plan"
	"github.com/dmitrymomot/paywallkit/pkg/promo"
	"github.com/dmitrymomot/paywallkit/pkg/purchase"
)

// Deps carries the collaborators a Session is built from.
type Deps struct {
	Config  Config
	Billing purchase.Billing
	Plans   plan.Source
	Store   Store

	// Catalog serves promo codes locally. When nil and Config.CatalogURL is
	// set, an authenticated HTTP catalog is constructed and also used as the
	// remote validator.
	Catalog promo.Catalog

	// Listeners are forwarded to the orchestrator; the session chains its own
	// status write-through onto OnStatusRefreshed.
	Listeners purchase.Listeners

	Logger *slog.Logger
}

// Session is the bootstrapped paywall: a provisioned user id, a promo engine
// and a purchase orchestrator bound together with persistent status.
type Session struct {
	userID string
	engine *promo.Engine
	orch   *purchase.Orchestrator
	store  Store
	log    *slog.Logger
}

// NewSession performs the one-time paywall initialization: it provisions a
// stable per-device user id (creating and persisting a UUID on first run),
// builds the promo engine and orchestrator, hydrates the last-known
// subscription status from the store, and registers a write-through listener
// persisting every later refresh.
func NewSession(ctx context.Context, deps Deps) (*Session, error) {
	if deps.Billing == nil {
		return nil, errors.New("paywall: Billing is required")
	}
	if deps.Plans == nil {
		return nil, errors.New("paywall: plan.Source is required")
	}
	if deps.Store == nil {
		return nil, errors.New("paywall: Store is required")
	}

	log := deps.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	userID, err := provisionUserID(ctx, deps.Store)
	if err != nil {
		return nil, err
	}

	catalog := deps.Catalog
	var remote promo.RemoteValidator
	if catalog == nil {
		if deps.Config.CatalogURL == "" {
			return nil, errors.New("paywall: either Catalog or Config.CatalogURL is required")
		}
		httpCatalog, err := promo.NewHTTPCatalog(deps.Config.CatalogURL, deps.Config.CatalogToken)
		if err != nil {
			return nil, err
		}
		catalog = httpCatalog
		remote = httpCatalog
	}

	engineOpts := []promo.EngineOption{
		promo.WithTTL(deps.Config.PromoCacheTTL),
		promo.WithLogger(log),
	}
	if remote != nil {
		engineOpts = append(engineOpts, promo.WithRemoteValidator(remote))
	}

	engine, err := promo.NewEngine(ctx, deps.Plans, catalog, engineOpts...)
	if err != nil {
		return nil, err
	}

	session := &Session{
		userID: userID,
		engine: engine,
		store:  deps.Store,
		log:    log,
	}

	listeners := deps.Listeners
	userRefresh := listeners.OnStatusRefreshed
	listeners.OnStatusRefreshed = func(status purchase.Status) {
		session.persistStatus(status)
		if userRefresh != nil {
			userRefresh(status)
		}
	}

	session.orch = purchase.NewOrchestrator(deps.Billing,
		purchase.WithPromoEngine(engine),
		purchase.WithListeners(listeners),
		purchase.WithUserID(userID),
		purchase.WithAutoReset(deps.Config.AutoResetDelay),
		purchase.WithLogger(log),
	)

	// Surface the last-known status before the first refresh completes so
	// feature gates resolve offline.
	if cached, err := deps.Store.Status(ctx, userID); err == nil {
		session.orch.HydrateStatus(*cached)
	} else if !errors.Is(err, ErrStatusNotFound) {
		log.WarnContext(ctx, "failed to hydrate cached subscription status", slog.Any("error", err))
	}

	return session, nil
}

// provisionUserID loads the persisted user id, creating one on first run.
func provisionUserID(ctx context.Context, store Store) (string, error) {
	userID, err := store.UserID(ctx)
	if err == nil {
		return userID, nil
	}
	if !errors.Is(err, ErrUserIDNotFound) {
		return "", err
	}

	userID = uuid.NewString()
	if err := store.SaveUserID(ctx, userID); err != nil {
		return "", err
	}
	return userID, nil
}

// persistStatus writes a refreshed status through to the store.
// The listener carries no context, so the write is bounded independently.
func (s *Session) persistStatus(status purchase.Status) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.store.SaveStatus(ctx, s.userID, status); err != nil {
		s.log.Warn("failed to persist subscription status", slog.Any("error", err))
	}
}

// UserID returns the provisioned per-device user identifier.
func (s *Session) UserID() string {
	return s.userID
}

// Orchestrator exposes the purchase action set and read model.
func (s *Session) Orchestrator() *purchase.Orchestrator {
	return s.orch
}

// Engine exposes the promo engine for direct validation queries.
func (s *Session) Engine() *promo.Engine {
	return s.engine
}
