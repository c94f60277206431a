package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/voucherz-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/voucherz-backend/pkg/errors"
	"github.com/angelmondragon/voucherz-backend/pkg/logger"
	"github.com/angelmondragon/voucherz-backend/pkg/square"
)

// PaymentInput is everything the gateway needs to ask a customer for money.
type PaymentInput struct {
	CustomerID  uuid.UUID
	Amount      decimal.Decimal
	Currency    enums.Currency
	PartnerID   uuid.UUID
	Description string
	ReferenceID string
}

// PaymentRequest identifies a created payment and where the customer pays it.
type PaymentRequest struct {
	ID  string
	URL string
}

// Rejection is a definitive refusal caused by the partner's payment setup.
// Retrying the same input will not help.
type Rejection struct {
	PartnerID uuid.UUID
	Reason    string
	Err       error
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("payment rejected for partner %s: %s: %v", r.PartnerID, r.Reason, r.Err)
	}
	return fmt.Sprintf("payment rejected for partner %s: %s", r.PartnerID, r.Reason)
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

// IsRejection reports whether err carries a *Rejection.
func IsRejection(err error) bool {
	var rejection *Rejection
	return errors.As(err, &rejection)
}

type linkCreator interface {
	CreatePaymentLink(ctx context.Context, params square.PaymentLinkParams) (*square.PaymentLink, error)
}

// SquareGateway creates Square payment links on the partner's location.
type SquareGateway struct {
	client    linkCreator
	locations map[uuid.UUID]string
	logg      *logger.Logger
}

func NewSquareGateway(client linkCreator, locations map[uuid.UUID]string, logg *logger.Logger) (*SquareGateway, error) {
	if client == nil {
		return nil, errors.New("square client required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &SquareGateway{client: client, locations: locations, logg: logg}, nil
}

// GeneratePayment creates a payment link. Unknown partners, unsupported
// currencies and Square 4xx responses come back as *Rejection; anything else
// is a dependency failure.
func (g *SquareGateway) GeneratePayment(ctx context.Context, input PaymentInput) (PaymentRequest, error) {
	location, ok := g.locations[input.PartnerID]
	if !ok || strings.TrimSpace(location) == "" {
		return PaymentRequest{}, &Rejection{PartnerID: input.PartnerID, Reason: "no square location configured"}
	}
	if !input.Currency.IsValid() {
		return PaymentRequest{}, &Rejection{PartnerID: input.PartnerID, Reason: fmt.Sprintf("unsupported currency %q", input.Currency)}
	}
	amount, err := MinorUnits(input.Amount, input.Currency)
	if err != nil {
		return PaymentRequest{}, &Rejection{PartnerID: input.PartnerID, Reason: "invalid amount", Err: err}
	}

	link, err := g.client.CreatePaymentLink(ctx, square.PaymentLinkParams{
		LocationID:     location,
		Name:           input.Description,
		AmountMinor:    amount,
		Currency:       input.Currency.String(),
		Note:           input.ReferenceID,
		BuyerReference: input.CustomerID.String(),
	})
	if err != nil {
		if rejected(err) {
			g.logg.Warn(g.logg.WithField(ctx, "partner_id", input.PartnerID.String()), "square rejected payment link")
			return PaymentRequest{}, &Rejection{PartnerID: input.PartnerID, Reason: "square rejected payment link", Err: err}
		}
		return PaymentRequest{}, err
	}
	return PaymentRequest{ID: link.OrderID, URL: link.URL}, nil
}

func rejected(err error) bool {
	typed := pkgerrors.As(err)
	if typed == nil {
		return false
	}
	switch typed.Code() {
	case pkgerrors.CodeValidation, pkgerrors.CodeUnauthorized, pkgerrors.CodeForbidden, pkgerrors.CodeNotFound, pkgerrors.CodeStateConflict:
		return true
	default:
		return false
	}
}

// MinorUnits converts a decimal price into the currency's smallest unit.
// Prices with more precision than the currency allows are refused.
func MinorUnits(amount decimal.Decimal, currency enums.Currency) (int64, error) {
	if amount.Sign() <= 0 {
		return 0, fmt.Errorf("amount must be positive, got %s", amount)
	}
	shifted := amount.Shift(currency.Exponent())
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more precision than %s allows", amount, currency)
	}
	return shifted.IntPart(), nil
}
