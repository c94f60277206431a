package squarewebhook

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/voucherz-backend/internal/vouchers"
	pkgerrors "github.com/angelmondragon/voucherz-backend/pkg/errors"
	"github.com/angelmondragon/voucherz-backend/pkg/logger"
)

const paymentStatusCompleted = "COMPLETED"

type saleConfirmer interface {
	ConfirmSale(ctx context.Context, paymentRequestID string) error
}

type lostSaleRecorder interface {
	Record(ctx context.Context, paymentRequestID, paymentID, eventID string) error
}

type lostSaleCounter interface {
	IncLostSale()
}

type ServiceParams struct {
	Sales     saleConfirmer
	LostSales lostSaleRecorder
	Metrics   lostSaleCounter
	Logger    *logger.Logger
}

// Service turns Square payment notifications into sale confirmations.
type Service struct {
	sales     saleConfirmer
	lostSales lostSaleRecorder
	metrics   lostSaleCounter
	logg      *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Sales == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "sale confirmer required")
	}
	if params.LostSales == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "lost sale recorder required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		sales:     params.Sales,
		lostSales: params.LostSales,
		metrics:   params.Metrics,
		logg:      params.Logger,
	}, nil
}

type SquareWebhookEvent struct {
	MerchantID string            `json:"merchant_id"`
	EventID    string            `json:"event_id"`
	Type       string            `json:"type"`
	CreatedAt  string            `json:"created_at"`
	Data       SquareWebhookData `json:"data"`
}

type SquareWebhookData struct {
	Type   string              `json:"type"`
	ID     string              `json:"id"`
	Object SquareWebhookObject `json:"object"`
}

type SquareWebhookObject struct {
	Payment *SquarePayment `json:"payment"`
}

// SquarePayment is the subset of the Square payment object we act on. OrderID
// is the id the payment link was created with, i.e. our payment request id.
type SquarePayment struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	Status      string `json:"status"`
	ReferenceID string `json:"reference_id"`
}

// DedupID is the key used to drop redelivered events.
func (e *SquareWebhookEvent) DedupID() string {
	if id := strings.TrimSpace(e.EventID); id != "" {
		return id
	}
	return strings.TrimSpace(e.Data.ID)
}

// HandleEvent confirms the sale behind a completed payment. Other event types
// and non-terminal payment states are acknowledged without side effects.
func (s *Service) HandleEvent(ctx context.Context, event *SquareWebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "square event required")
	}

	switch strings.ToLower(event.Type) {
	case "payment.created", "payment.updated":
	default:
		return nil
	}

	payment := event.Data.Object.Payment
	if payment == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment payload missing")
	}
	if !strings.EqualFold(payment.Status, paymentStatusCompleted) {
		return nil
	}
	orderID := strings.TrimSpace(payment.OrderID)
	if orderID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment order id missing")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"square_event_id":   event.EventID,
		"square_payment_id": payment.ID,
	})

	err := s.sales.ConfirmSale(ctx, orderID)
	if errors.Is(err, vouchers.ErrVoucherNotFound) {
		return s.recordLostSale(ctx, orderID, payment.ID, event.EventID, err)
	}
	return err
}

// recordLostSale handles money that arrived after the reservation was
// released. The row must land before the event is acknowledged; a failed
// write is returned so Square redelivers.
func (s *Service) recordLostSale(ctx context.Context, orderID, paymentID, eventID string, cause error) error {
	s.logg.Error(ctx, "completed payment has no reserved voucher", cause)
	if err := s.lostSales.Record(ctx, orderID, strings.TrimSpace(paymentID), strings.TrimSpace(eventID)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record lost sale")
	}
	if s.metrics != nil {
		s.metrics.IncLostSale()
	}
	return nil
}
