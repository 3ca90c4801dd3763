// Package idempotency remembers which inbound messages a consumer has already
// handled, keyed by the sender's message id.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/fulfillment-backend/pkg/redis"
)

// DefaultTTL applies when NewManager gets a zero ttl; a mark without expiry
// would grow Redis forever.
const DefaultTTL = 24 * time.Hour

var (
	ErrConsumerRequired  = errors.New("idempotency: consumer name is required")
	ErrMessageIDRequired = errors.New("idempotency: message id is required")
)

// Manager marks <consumer, message id> pairs with SETNX. Keys take the form
// <prefix>:idempotency:processed:<consumer>:<id>.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	now   func() time.Time
}

func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency: store is required")
	case ttl < 0:
		return nil, errors.New("idempotency: ttl must be non-negative")
	case ttl == 0:
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// CheckAndMarkProcessed reports whether id was already seen by consumer and
// claims it when it was not. The stored value is the claim time.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer, id string) (bool, error) {
	key, err := m.key(consumer, id)
	if err != nil {
		return false, err
	}
	claimed, err := m.store.SetNX(ctx, key, m.now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return false, fmt.Errorf("idempotency: mark %s: %w", consumer, err)
	}
	return !claimed, nil
}

// Delete releases the mark so a failed handler can be retried.
func (m *Manager) Delete(ctx context.Context, consumer, id string) error {
	key, err := m.key(consumer, id)
	if err != nil {
		return err
	}
	if err := m.store.Del(ctx, key); err != nil {
		return fmt.Errorf("idempotency: release %s: %w", consumer, err)
	}
	return nil
}

func (m *Manager) key(consumer, id string) (string, error) {
	if consumer = strings.TrimSpace(consumer); consumer == "" {
		return "", ErrConsumerRequired
	}
	if id = strings.TrimSpace(id); id == "" {
		return "", ErrMessageIDRequired
	}
	return m.store.IdempotencyKey("processed:"+consumer, id), nil
}
