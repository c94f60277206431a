package square

import (
	"strings"

	sq "github.com/square/square-go-sdk"
	"github.com/square/square-go-sdk/checkout"
)

// PaymentLinkParams describes a quick-pay checkout link for one voucher.
type PaymentLinkParams struct {
	LocationID     string
	Name           string
	AmountMinor    int64
	Currency       string
	Note           string
	BuyerReference string
	IdempotencyKey string
}

func (p PaymentLinkParams) toSquareRequest(idempotencyKey string) *checkout.CreatePaymentLinkRequest {
	req := &checkout.CreatePaymentLinkRequest{
		IdempotencyKey: ptrString(idempotencyKey),
		QuickPay: &sq.QuickPay{
			Name:       strings.TrimSpace(p.Name),
			PriceMoney: moneyPtr(p.AmountMinor, p.Currency),
			LocationID: strings.TrimSpace(p.LocationID),
		},
	}
	if trimmed := strings.TrimSpace(p.Note); trimmed != "" {
		req.PaymentNote = ptrString(trimmed)
	}
	if trimmed := strings.TrimSpace(p.BuyerReference); trimmed != "" {
		req.Description = ptrString(trimmed)
	}
	return req
}

func (p PaymentLinkParams) validate() error {
	switch {
	case strings.TrimSpace(p.LocationID) == "":
		return errLocationRequired
	case strings.TrimSpace(p.Name) == "":
		return errNameRequired
	case p.AmountMinor <= 0:
		return errAmountRequired
	case strings.TrimSpace(p.Currency) == "":
		return errCurrencyRequired
	}
	return nil
}

func moneyPtr(amount int64, currency string) *sq.Money {
	money := &sq.Money{Amount: &amount}
	if trimmed := strings.ToUpper(strings.TrimSpace(currency)); trimmed != "" {
		c := sq.Currency(trimmed)
		money.Currency = &c
	}
	return money
}

func ptrString(value string) *string {
	return &value
}
