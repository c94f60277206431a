package routes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	webhookcontrollers "github.com/angelmondragon/voucherz-backend/api/controllers/webhooks"
	internalvouchers "github.com/angelmondragon/voucherz-backend/internal/vouchers"
	squarewebhook "github.com/angelmondragon/voucherz-backend/internal/webhooks/square"
	pkgAuth "github.com/angelmondragon/voucherz-backend/pkg/auth"
	"github.com/angelmondragon/voucherz-backend/pkg/config"
	"github.com/angelmondragon/voucherz-backend/pkg/enums"
	"github.com/angelmondragon/voucherz-backend/pkg/logger"
	"github.com/angelmondragon/voucherz-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/voucherz-backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type memoryRedis struct {
	mu     sync.Mutex
	data   map[string]string
	counts map[string]int64
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{data: map[string]string{}, counts: map[string]int64{}}
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (m *memoryRedis) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprintf("%v", value)
	return nil
}

func (m *memoryRedis) IdempotencyKey(scope, id string) string {
	return "vz:idempotency:" + scope + ":" + id
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryRedis) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[scope]++
	return m.counts[scope] <= limit, m.counts[scope], nil
}

func (m *memoryRedis) Ping(context.Context) error {
	return nil
}

var testPartner = uuid.MustParse("5d1f0c2e-8a4b-4c7e-9f31-2b6a7d0e9c11")

type stubVouchers struct {
	mu       sync.Mutex
	reserves int
}

func (s *stubVouchers) Reserve(_ context.Context, _ uuid.UUID, _ uuid.UUID) (*internalvouchers.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserves++
	return &internalvouchers.Reservation{ShortCode: internalvouchers.ShortCode(uint64(s.reserves))}, nil
}

func (s *stubVouchers) Cancel(context.Context, string) (enums.ReleaseOutcome, error) {
	return enums.ReleaseOutcomeReleased, nil
}

func (s *stubVouchers) Redeem(context.Context, string, string) error {
	return nil
}

func (s *stubVouchers) Transfer(context.Context, string, uuid.UUID, uuid.UUID) (string, error) {
	return "rotated", nil
}

func (s *stubVouchers) Get(_ context.Context, code string) (*internalvouchers.VoucherView, error) {
	return &internalvouchers.VoucherView{ShortCode: code, PartnerID: testPartner}, nil
}

func (s *stubVouchers) CampaignPartner(context.Context, uuid.UUID) (uuid.UUID, error) {
	return testPartner, nil
}

func (s *stubVouchers) ListByCampaign(context.Context, uuid.UUID, *enums.VoucherStatus, pagination.Params) (pagination.Page[internalvouchers.VoucherView], error) {
	return pagination.Page[internalvouchers.VoucherView]{Items: []internalvouchers.VoucherView{}}, nil
}

func (s *stubVouchers) ListByOwner(context.Context, uuid.UUID, pagination.Params) (pagination.Page[internalvouchers.VoucherView], error) {
	return pagination.Page[internalvouchers.VoucherView]{Items: []internalvouchers.VoucherView{}}, nil
}

type stubWebhook struct{}

func (stubWebhook) HandleEvent(context.Context, *squarewebhook.SquareWebhookEvent) error {
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "voucherz", ExpirationMinutes: 30},
		Vouchers: config.VouchersConfig{
			ReserveRateLimit:  1,
			ReserveRateWindow: time.Minute,
		},
	}
}

func newTestRouter(t *testing.T) (http.Handler, *stubVouchers) {
	t.Helper()
	store := newMemoryRedis()
	dedup, err := idempotency.NewManager(store, time.Hour)
	require.NoError(t, err)
	vouchers := &stubVouchers{}
	return NewRouter(RouterParams{
		Config:        testConfig(),
		Logger:        logger.Nop(),
		DB:            stubPinger{},
		Redis:         store,
		Vouchers:      vouchers,
		SquareWebhook: stubWebhook{},
		SquareSigning: webhookcontrollers.SquareSigning{SignatureKey: "key", NotificationURL: "https://example.test/hook"},
		WebhookDedup:  dedup,
		Metrics:       http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }),
	}), vouchers
}

func bearer(t *testing.T, role enums.ActorRole) string {
	t.Helper()
	payload := pkgAuth.AccessTokenPayload{SubjectID: uuid.New(), Role: role}
	if role == enums.ActorRolePartner {
		partner := testPartner
		payload.PartnerID = &partner
	}
	token, err := pkgAuth.MintAccessToken(testConfig().JWT, time.Now(), payload)
	require.NoError(t, err)
	return "Bearer " + token
}

func do(router http.Handler, method, path, auth, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestPublicRoutes(t *testing.T) {
	router, _ := newTestRouter(t)

	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/health/live", "", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/health/ready", "", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/metrics", "", "", nil).Code)
	// reachable without a bearer token but still signature checked
	assert.Equal(t, http.StatusUnauthorized, do(router, http.MethodPost, "/api/v1/webhooks/square", "", `{}`, nil).Code)
}

func TestAPIRequiresToken(t *testing.T) {
	router, _ := newTestRouter(t)

	assert.Equal(t, http.StatusUnauthorized, do(router, http.MethodGet, "/api/v1/me/vouchers", "", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/api/v1/me/vouchers", bearer(t, enums.ActorRoleCustomer), "", nil).Code)
}

func TestCampaignListingRequiresStaffRole(t *testing.T) {
	router, _ := newTestRouter(t)
	path := "/api/v1/campaigns/" + uuid.NewString() + "/vouchers"

	assert.Equal(t, http.StatusForbidden, do(router, http.MethodGet, path, bearer(t, enums.ActorRoleCustomer), "", nil).Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, path, bearer(t, enums.ActorRolePartner), "", nil).Code)
}

func TestReservationRouteIsIdempotentAndRateLimited(t *testing.T) {
	router, vouchers := newTestRouter(t)
	path := "/api/v1/campaigns/" + uuid.NewString() + "/reservations"
	auth := bearer(t, enums.ActorRoleCustomer)

	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, path, auth, "", nil).Code)

	first := do(router, http.MethodPost, path, auth, "", map[string]string{"Idempotency-Key": "k1"})
	require.Equal(t, http.StatusCreated, first.Code)
	replay := do(router, http.MethodPost, path, auth, "", map[string]string{"Idempotency-Key": "k1"})
	require.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, first.Body.String(), replay.Body.String())
	assert.Equal(t, 1, vouchers.reserves)

	limited := do(router, http.MethodPost, path, auth, "", map[string]string{"Idempotency-Key": "k2"})
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
}

func TestVoucherRoutes(t *testing.T) {
	router, _ := newTestRouter(t)
	code := internalvouchers.ShortCode(9)
	staff := bearer(t, enums.ActorRoleAdmin)

	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/api/v1/vouchers/"+code, staff, "", nil).Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodDelete, "/api/v1/vouchers/"+code+"/reservation", staff, "", nil).Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodPost, "/api/v1/vouchers/"+code+"/redeem", staff, `{"validation_code":"abc"}`, map[string]string{"Idempotency-Key": "r1"}).Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodPost, "/api/v1/vouchers/"+code+"/transfer", staff, `{"new_owner_id":"`+uuid.NewString()+`"}`, map[string]string{"Idempotency-Key": "t1"}).Code)
}
