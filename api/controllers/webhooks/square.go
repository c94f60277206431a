package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/angelmondragon/voucherz-backend/api/responses"
	squarewebhook "github.com/angelmondragon/voucherz-backend/internal/webhooks/square"
	pkgerrors "github.com/angelmondragon/voucherz-backend/pkg/errors"
	"github.com/angelmondragon/voucherz-backend/pkg/logger"
	"github.com/angelmondragon/voucherz-backend/pkg/square"
)

// SquareConsumer namespaces processed Square events in the idempotency store.
const SquareConsumer = "square-webhook"

const maxWebhookBody = 1 << 20

type SquareWebhookService interface {
	HandleEvent(ctx context.Context, event *squarewebhook.SquareWebhookEvent) error
}

type eventDeduper interface {
	Claim(ctx context.Context, consumer, eventID string) (bool, error)
	Release(ctx context.Context, consumer, eventID string) error
}

// SquareSigning holds what Square signs a notification with.
type SquareSigning struct {
	SignatureKey    string
	NotificationURL string
}

// SquareWebhook verifies and dispatches Square payment notifications.
func SquareWebhook(svc SquareWebhookService, signing SquareSigning, dedup eventDeduper, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if dedup == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency manager unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get(square.SignatureHeader)
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "square signature missing"))
			return
		}
		if !square.VerifySignature(signing.SignatureKey, signing.NotificationURL, payload, sigHeader) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid square signature"))
			return
		}

		var event squarewebhook.SquareWebhookEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event"))
			return
		}

		eventID := event.DedupID()
		if eventID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "event id missing"))
			return
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"square_event_id":   eventID,
				"square_event_type": event.Type,
			})
		}

		claimed, err := dedup.Claim(ctx, SquareConsumer, eventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim square event"))
			return
		}
		if !claimed {
			if logg != nil {
				logg.Info(ctx, "square event redelivered")
			}
			responses.WriteSuccess(w, nil)
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			if delErr := dedup.Release(context.WithoutCancel(ctx), SquareConsumer, eventID); delErr != nil && logg != nil {
				logg.Error(ctx, "square webhook idempotency release failed", delErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, "square event processed")
		}
		responses.WriteSuccess(w, nil)
	}
}
