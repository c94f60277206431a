package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	squarewebhook "github.com/angelmondragon/voucherz-backend/internal/webhooks/square"
	"github.com/angelmondragon/voucherz-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/voucherz-backend/pkg/square"
)

var testSigning = SquareSigning{
	SignatureKey:    "sig-key",
	NotificationURL: "https://api.voucherz.test/api/v1/webhooks/square",
}

func newTestManager(t *testing.T) (*idempotency.Manager, *inMemoryStore) {
	t.Helper()
	store := newInMemoryStore()
	manager, err := idempotency.NewManager(store, time.Hour)
	require.NoError(t, err)
	return manager, store
}

func postEvent(handler http.HandlerFunc, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set(square.SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSquareWebhookProcessesOnceAndDropsDuplicates(t *testing.T) {
	payload := buildPaymentEvent(t, "payment.updated")
	signature := square.Sign(testSigning.SignatureKey, testSigning.NotificationURL, payload)
	service := &fakeSquareWebhookService{}
	manager, _ := newTestManager(t)
	handler := SquareWebhook(service, testSigning, manager, nil)

	rec := postEvent(handler, payload, signature)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, service.calls)

	rec = postEvent(handler, payload, signature)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, service.calls)
}

func TestSquareWebhookRejectsBadSignature(t *testing.T) {
	payload := buildPaymentEvent(t, "payment.updated")
	service := &fakeSquareWebhookService{}
	manager, _ := newTestManager(t)
	handler := SquareWebhook(service, testSigning, manager, nil)

	assert.Equal(t, http.StatusUnauthorized, postEvent(handler, payload, "").Code)

	wrongURL := square.Sign(testSigning.SignatureKey, "https://elsewhere.test/hook", payload)
	assert.Equal(t, http.StatusUnauthorized, postEvent(handler, payload, wrongURL).Code)
	assert.Equal(t, 0, service.calls)
}

func TestSquareWebhookFailureAllowsRedelivery(t *testing.T) {
	payload := buildPaymentEvent(t, "payment.updated")
	signature := square.Sign(testSigning.SignatureKey, testSigning.NotificationURL, payload)
	service := &fakeSquareWebhookService{err: errors.New("db down")}
	manager, store := newTestManager(t)
	handler := SquareWebhook(service, testSigning, manager, nil)

	rec := postEvent(handler, payload, signature)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, store.data)

	service.err = nil
	rec = postEvent(handler, payload, signature)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, service.calls)
}

func TestSquareWebhookRejectsMalformedJSON(t *testing.T) {
	payload := []byte(`{"event_id":`)
	signature := square.Sign(testSigning.SignatureKey, testSigning.NotificationURL, payload)
	manager, _ := newTestManager(t)
	handler := SquareWebhook(&fakeSquareWebhookService{}, testSigning, manager, nil)

	assert.Equal(t, http.StatusBadRequest, postEvent(handler, payload, signature).Code)
}

func buildPaymentEvent(t *testing.T, eventType string) []byte {
	t.Helper()
	event := &squarewebhook.SquareWebhookEvent{
		MerchantID: "merchant",
		EventID:    "evt_" + uuid.NewString(),
		Type:       eventType,
		Data: squarewebhook.SquareWebhookData{
			Type: "payment",
			ID:   "pay_" + uuid.NewString(),
			Object: squarewebhook.SquareWebhookObject{
				Payment: &squarewebhook.SquarePayment{
					ID:      "pay_1",
					OrderID: "order-1",
					Status:  "COMPLETED",
				},
			},
		},
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return payload
}

type fakeSquareWebhookService struct {
	calls int
	err   error
}

func (f *fakeSquareWebhookService) HandleEvent(ctx context.Context, event *squarewebhook.SquareWebhookEvent) error {
	f.calls++
	return f.err
}

type inMemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{data: make(map[string]string)}
}

func (s *inMemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *inMemoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("vz:idempotency:%s:%s", scope, id)
}

func (s *inMemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}
