package middleware

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/voucherz-backend/pkg/errors"
)

const reservationPattern = "/api/v1/campaigns/{campaignId}/reservations"

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	str, _ := value.(string)
	f.data[key] = str
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func requestWithPattern(method, url, pattern string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func reservationRequest(customer uuid.UUID, key, body string) *http.Request {
	req := requestWithPattern(http.MethodPost, "/api/v1/campaigns/c1/reservations", reservationPattern, strings.NewReader(body))
	req = req.WithContext(WithCustomerID(req.Context(), customer))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req
}

func TestRouteTTLSelection(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		pattern string
		want    time.Duration
		ok      bool
	}{
		{"reserve", http.MethodPost, reservationPattern, criticalIdempotencyTTL, true},
		{"redeem", http.MethodPost, "/api/v1/vouchers/{shortCode}/redeem", defaultIdempotencyTTL, true},
		{"transfer", http.MethodPost, "/api/v1/vouchers/{shortCode}/transfer", defaultIdempotencyTTL, true},
		{"cancel", http.MethodDelete, "/api/v1/vouchers/{shortCode}/reservation", 0, false},
		{"read", http.MethodGet, "/api/v1/vouchers/{shortCode}", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ttl, ok := routeTTL(tt.method, tt.pattern)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, ttl)
			}
		})
	}
}

func TestIdempotencyMiddlewareRequiresHeader(t *testing.T) {
	store := newFakeStore()
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	resp := httptest.NewRecorder()
	Idempotency(store, nil)(handler).ServeHTTP(resp, reservationRequest(uuid.New(), "", `{}`))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.False(t, handlerCalled)
}

func TestIdempotencyMiddlewareReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	customer := uuid.New()
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"short_code":"AAAAAAAAAAAAA"}`))
	})

	first := httptest.NewRecorder()
	mw(handler).ServeHTTP(first, reservationRequest(customer, "abc", `{}`))
	require.Equal(t, http.StatusCreated, first.Code)

	replay := httptest.NewRecorder()
	mw(handler).ServeHTTP(replay, reservationRequest(customer, "abc", `{}`))
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, "application/json", replay.Header().Get("Content-Type"))
	assert.Equal(t, `{"short_code":"AAAAAAAAAAAAA"}`, strings.TrimSpace(replay.Body.String()))
	assert.Equal(t, 1, calls)
}

func TestIdempotencyMiddlewareNeverStoresValidationCode(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	customer := uuid.New()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"short_code":"AAAAAAAAAAAAA","payment_url":"https://pay","validation_code":"s3cr3t-code"}}`))
	})

	first := httptest.NewRecorder()
	mw(handler).ServeHTTP(first, reservationRequest(customer, "abc", `{}`))
	require.Equal(t, http.StatusCreated, first.Code)
	assert.Contains(t, first.Body.String(), "s3cr3t-code")

	require.Len(t, store.data, 1)
	for _, raw := range store.data {
		var stored storedResponse
		require.NoError(t, json.Unmarshal([]byte(raw), &stored))
		body, err := base64.StdEncoding.DecodeString(stored.Body)
		require.NoError(t, err)
		assert.NotContains(t, string(body), "s3cr3t-code")
		assert.NotContains(t, string(body), "validation_code")
	}

	replay := httptest.NewRecorder()
	mw(handler).ServeHTTP(replay, reservationRequest(customer, "abc", `{}`))
	require.Equal(t, http.StatusCreated, replay.Code)

	var env struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(replay.Body.Bytes(), &env))
	assert.Equal(t, "AAAAAAAAAAAAA", env.Data["short_code"])
	assert.Equal(t, "https://pay", env.Data["payment_url"])
	assert.NotContains(t, env.Data, "validation_code")
}

func TestStripSecretLeavesOtherBodiesAlone(t *testing.T) {
	for _, body := range []string{
		`{"short_code":"AAAAAAAAAAAAA"}`,
		`{"data":{"short_code":"AAAAAAAAAAAAA","status":"used"}}`,
		`{"data":null}`,
		`not json`,
	} {
		assert.Equal(t, body, string(stripSecret([]byte(body))))
	}
}

func TestIdempotencyMiddlewareScopesKeysByCustomer(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	})

	mw(handler).ServeHTTP(httptest.NewRecorder(), reservationRequest(uuid.New(), "same", `{}`))
	mw(handler).ServeHTTP(httptest.NewRecorder(), reservationRequest(uuid.New(), "same", `{}`))

	assert.Equal(t, 2, calls)
}

func TestIdempotencyMiddlewareDetectsBodyChange(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	customer := uuid.New()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mw(handler).ServeHTTP(httptest.NewRecorder(), reservationRequest(customer, "xyz", `{"a":1}`))

	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, reservationRequest(customer, "xyz", `{"a":2}`))
	require.Equal(t, http.StatusConflict, resp.Code)

	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	assert.Equal(t, string(pkgerrors.CodeIdempotency), payload.Error.Code)
}

func TestIdempotencyMiddlewareRejectsWhileInFlight(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	customer := uuid.New()

	var inner *httptest.ResponseRecorder
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = httptest.NewRecorder()
		mw(http.NotFoundHandler()).ServeHTTP(inner, reservationRequest(customer, "busy", `{}`))
		w.WriteHeader(http.StatusCreated)
	})

	outer := httptest.NewRecorder()
	mw(handler).ServeHTTP(outer, reservationRequest(customer, "busy", `{}`))

	assert.Equal(t, http.StatusCreated, outer.Code)
	require.NotNil(t, inner)
	assert.Equal(t, http.StatusConflict, inner.Code)
	assert.Equal(t, "1", inner.Header().Get("Retry-After"))
}

func TestIdempotencyMiddlewareReleasesKeyOnServerError(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	customer := uuid.New()
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	first := httptest.NewRecorder()
	mw(handler).ServeHTTP(first, reservationRequest(customer, "retry", `{}`))
	require.Equal(t, http.StatusServiceUnavailable, first.Code)
	assert.Empty(t, store.data)

	second := httptest.NewRecorder()
	mw(handler).ServeHTTP(second, reservationRequest(customer, "retry", `{}`))
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, 2, calls)
}

func TestIdempotencyMiddlewareMarksReplays(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	customer := uuid.New()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	first := httptest.NewRecorder()
	mw(handler).ServeHTTP(first, reservationRequest(customer, "k", `{}`))
	assert.Empty(t, first.Header().Get("Idempotent-Replayed"))

	second := httptest.NewRecorder()
	mw(handler).ServeHTTP(second, reservationRequest(customer, "k", `{}`))
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
}

func TestIdempotencyMiddlewareSkipsOtherRoutes(t *testing.T) {
	store := newFakeStore()
	req := requestWithPattern(http.MethodGet, "/api/v1/vouchers/ABC", "/api/v1/vouchers/{shortCode}", nil)
	resp := httptest.NewRecorder()
	Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, store.data)
}
