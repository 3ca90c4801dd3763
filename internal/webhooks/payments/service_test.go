package payments

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fulfillment-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox/idempotency"
)

type memoryStore struct {
	keys map[string]string
	err  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]string{}}
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, error) {
	return m.keys[key], nil
}

func (m *memoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = "1"
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "fulfillment:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

type stubConfirmer struct {
	calls int
	err   error
}

func (s *stubConfirmer) ConfirmPayment(ctx context.Context, orderID uuid.UUID, paymentRef string) (*orders.ConfirmPaymentResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &orders.ConfirmPaymentResult{}, nil
}

func newTestService(t *testing.T, store *memoryStore, confirmer *stubConfirmer) *Service {
	t.Helper()
	guard, err := idempotency.NewManager(store, time.Hour)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Orders: confirmer,
		Guard:  guard,
		Secret: "whsec_test",
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return svc
}

func TestHandlePaidIsProcessedOnce(t *testing.T) {
	store := newMemoryStore()
	confirmer := &stubConfirmer{}
	svc := newTestService(t, store, confirmer)
	event := Event{OrderID: uuid.New(), PaymentRef: "pay_123", Status: "PAID"}

	outcome, err := svc.Handle(context.Background(), event)
	require.NoError(t, err)
	assert.True(t, outcome.Processed)
	assert.Contains(t, store.keys, "fulfillment:idempotency:processed:payments-webhook:pay_123")

	outcome, err = svc.Handle(context.Background(), event)
	require.NoError(t, err)
	assert.True(t, outcome.Duplicate)
	assert.Equal(t, 1, confirmer.calls)
}

func TestHandleFailureReleasesKey(t *testing.T) {
	store := newMemoryStore()
	confirmer := &stubConfirmer{err: pkgerrors.New(pkgerrors.CodeDependency, "db down")}
	svc := newTestService(t, store, confirmer)
	event := Event{OrderID: uuid.New(), PaymentRef: "pay_9", Status: "paid"}

	_, err := svc.Handle(context.Background(), event)
	require.Error(t, err)
	assert.Empty(t, store.keys)

	confirmer.err = nil
	outcome, err := svc.Handle(context.Background(), event)
	require.NoError(t, err)
	assert.True(t, outcome.Processed)
	assert.Equal(t, 2, confirmer.calls)
}

func TestHandleIgnoresOtherStatuses(t *testing.T) {
	store := newMemoryStore()
	confirmer := &stubConfirmer{}
	svc := newTestService(t, store, confirmer)

	outcome, err := svc.Handle(context.Background(), Event{OrderID: uuid.New(), PaymentRef: "pay_1", Status: "failed"})
	require.NoError(t, err)
	assert.True(t, outcome.Ignored)
	assert.Zero(t, confirmer.calls)
	assert.Empty(t, store.keys)
}

func TestHandleValidation(t *testing.T) {
	svc := newTestService(t, newMemoryStore(), &stubConfirmer{})

	_, err := svc.Handle(context.Background(), Event{OrderID: uuid.New(), Status: "paid"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Handle(context.Background(), Event{PaymentRef: "pay_1", Status: "paid"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestHandleGuardError(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("redis unavailable")
	confirmer := &stubConfirmer{}
	svc := newTestService(t, store, confirmer)

	_, err := svc.Handle(context.Background(), Event{OrderID: uuid.New(), PaymentRef: "pay_1", Status: "paid"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Zero(t, confirmer.calls)
}

func TestVerifySignature(t *testing.T) {
	svc := newTestService(t, newMemoryStore(), &stubConfirmer{})
	body := []byte(`{"order_id":"x"}`)

	assert.NoError(t, svc.VerifySignature(body, hex.EncodeToString(Sign(body, "whsec_test"))))
	assert.True(t, pkgerrors.IsCode(svc.VerifySignature(body, hex.EncodeToString(Sign(body, "other"))), pkgerrors.CodeUnauthorized))
	assert.True(t, pkgerrors.IsCode(svc.VerifySignature(body, "zz"), pkgerrors.CodeUnauthorized))
	assert.True(t, pkgerrors.IsCode(svc.VerifySignature(body, ""), pkgerrors.CodeUnauthorized))
}
