package paywall

import (
	"context"
	"sync"

	"github.com/dmitrymomot/paywallkit/pkg/purchase"
)

// Store persists the paywall's per-device state: a stable user identifier and
// the last-fetched subscription status. It is read once at bootstrap and
// written after every status refresh.
type Store interface {
	// UserID returns the persisted user identifier.
	// Returns ErrUserIDNotFound when none has been provisioned yet.
	UserID(ctx context.Context) (string, error)

	// SaveUserID persists the user identifier.
	SaveUserID(ctx context.Context, userID string) error

	// Status returns the last persisted status for the user.
	// Returns ErrStatusNotFound when none has been saved yet.
	Status(ctx context.Context, userID string) (*purchase.Status, error)

	// SaveStatus persists the status for the user.
	SaveStatus(ctx context.Context, userID string, status purchase.Status) error
}

// MemoryStore is an in-memory Store, useful for tests and previews where
// nothing should survive a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	userID   string
	statuses map[string]purchase.Status
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{statuses: make(map[string]purchase.Status)}
}

func (m *MemoryStore) UserID(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.userID == "" {
		return "", ErrUserIDNotFound
	}
	return m.userID, nil
}

func (m *MemoryStore) SaveUserID(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userID = userID
	return nil
}

func (m *MemoryStore) Status(ctx context.Context, userID string) (*purchase.Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.statuses[userID]
	if !ok {
		return nil, ErrStatusNotFound
	}
	return &status, nil
}

func (m *MemoryStore) SaveStatus(ctx context.Context, userID string, status purchase.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[userID] = status
	return nil
}
