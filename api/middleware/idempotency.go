package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/voucherz-backend/api/responses"
	pkgerrors "github.com/angelmondragon/voucherz-backend/pkg/errors"
	"github.com/angelmondragon/voucherz-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/voucherz-backend/pkg/redis"
)

const (
	idempotencyHeader      = "Idempotency-Key"
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	// inFlightTTL bounds how long a crashed request can hold its key.
	inFlightTTL = 2 * time.Minute
	// secretField never reaches the store; replays answer without it.
	secretField = "validation_code"
)

// ResponseStore is what the idempotency middleware needs from Redis.
type ResponseStore interface {
	pkgredis.IdempotencyStore
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

type idempotencyRule struct {
	method string
	prefix string
	suffix string
	ttl    time.Duration
}

var idempotencyRules = []idempotencyRule{
	{method: http.MethodPost, prefix: "/api/v1/vouchers/", suffix: "/redeem", ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, prefix: "/api/v1/vouchers/", suffix: "/transfer", ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, prefix: "/api/v1/campaigns/", suffix: "/reservations", ttl: criticalIdempotencyTTL},
}

// storedResponse is the Redis value behind an Idempotency-Key. A record
// without Status is a claim held by a request still running.
type storedResponse struct {
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body,omitempty"`
}

func (s storedResponse) inFlight() bool { return s.Status == 0 }

// Idempotency makes the mutating voucher routes safe to retry. The first
// request claims the key, runs, and stores its response; later requests with
// the same key and body get that response back, minus the validation code.
// 5xx responses release the key so the client can try again.
func Idempotency(store ResponseStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := hashBody(body)
			key := store.IdempotencyKey(requestScope(r), clientKey)

			claim, _ := json.Marshal(storedResponse{RequestHash: hash})
			claimed, err := store.SetNX(ctx, key, string(claim), inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replay(ctx, logg, w, store, key, hash)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)
			persist(context.WithoutCancel(ctx), logg, store, key, hash, capture, ttl)
		})
	}
}

func replay(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, store ResponseStore, key, hash string) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// the claim expired or was released between SetNX and Get
		w.Header().Set("Retry-After", "1")
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this key is still in progress"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency record"))
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case stored.RequestHash != hash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case stored.inFlight():
		w.Header().Set("Retry-After", "1")
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this key is still in progress"))
	default:
		body, err := base64.StdEncoding.DecodeString(stored.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode stored body"))
			return
		}
		if stored.ContentType != "" {
			w.Header().Set("Content-Type", stored.ContentType)
		}
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(stored.Status)
		_, _ = w.Write(body)
	}
}

func persist(ctx context.Context, logg *logger.Logger, store ResponseStore, key, hash string, capture *responseCapture, ttl time.Duration) {
	status := capture.status
	if status == 0 {
		status = http.StatusOK
	}
	if status >= http.StatusInternalServerError {
		if err := store.Del(ctx, key); err != nil && logg != nil {
			logg.Error(ctx, "release idempotency key", err)
		}
		return
	}

	record, err := json.Marshal(storedResponse{
		RequestHash: hash,
		Status:      status,
		ContentType: capture.Header().Get("Content-Type"),
		Body:        base64.StdEncoding.EncodeToString(stripSecret(capture.body.Bytes())),
	})
	if err == nil {
		err = store.Set(ctx, key, string(record), ttl)
	}
	if err != nil && logg != nil {
		logg.Error(ctx, "persist idempotency record", err)
	}
}

// stripSecret drops the plaintext validation code from a success envelope.
// Bodies that are not a JSON object carrying it come back unchanged.
func stripSecret(body []byte) []byte {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return body
	}
	var data map[string]json.RawMessage
	if err := json.Unmarshal(envelope["data"], &data); err != nil {
		return body
	}
	if _, ok := data[secretField]; !ok {
		return body
	}
	delete(data, secretField)

	rawData, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	envelope["data"] = rawData
	out, err := json.Marshal(envelope)
	if err != nil {
		return nil
	}
	return out
}

// requestScope keys a record by caller and concrete path, so two customers
// can use the same Idempotency-Key value independently.
func requestScope(r *http.Request) string {
	return strings.Join([]string{
		CustomerIDFromContext(r.Context()).String(),
		r.Method,
		r.URL.Path,
	}, "|")
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.RawStdEncoding.EncodeToString(sum[:])
}

func routePattern(r *http.Request) string {
	// Mounted on the /api/v1 router the match is still partial ("/api/v1/*"),
	// so fall back to the concrete path.
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" && !strings.HasSuffix(pattern, "*") {
			return pattern
		}
	}
	return r.URL.Path
}

func routeTTL(method, pattern string) (time.Duration, bool) {
	for _, rule := range idempotencyRules {
		if rule.method == method && strings.HasPrefix(pattern, rule.prefix) && strings.HasSuffix(pattern, rule.suffix) {
			return rule.ttl, true
		}
	}
	return 0, false
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
