package square

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	"github.com/square/square-go-sdk/checkout"
	sqclient "github.com/square/square-go-sdk/client"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/voucherz-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/voucherz-backend/pkg/errors"
	"github.com/angelmondragon/voucherz-backend/pkg/logger"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"
)

var (
	errAccessTokenRequired = errors.New("square access token is required")
	errInvalidSquareEnv    = fmt.Errorf("square environment must be %q or %q", sandboxEnv, productionEnv)
	errLoggerRequired      = errors.New("square logger is required")
	errLocationRequired    = errors.New("square location id is required")
	errNameRequired        = errors.New("payment link name is required")
	errAmountRequired      = errors.New("payment link amount must be positive")
	errCurrencyRequired    = errors.New("payment link currency is required")
	errEmptyPaymentLink    = errors.New("square returned an empty payment link")
)

var baseURLs = map[string]string{
	sandboxEnv:    "https://connect.squareupsandbox.com",
	productionEnv: "https://connect.squareup.com",
}

type paymentLinks interface {
	Create(ctx context.Context, request *checkout.CreatePaymentLinkRequest, opts ...sqoption.RequestOption) (*sq.CreatePaymentLinkResponse, error)
}

// Client creates the Square checkout links customers pay vouchers through,
// and carries the webhook signing material for verifying Square callbacks.
type Client struct {
	links           paymentLinks
	environment     string
	signatureKey    string
	notificationURL string
	logger          *logger.Logger
}

type PaymentLink struct {
	ID      string
	OrderID string
	URL     string
}

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env := strings.TrimSpace(strings.ToLower(cfg.Environment()))
	baseURL, ok := baseURLs[env]
	if !ok {
		return nil, errInvalidSquareEnv
	}
	accessToken := strings.TrimSpace(cfg.AccessToken)
	if accessToken == "" {
		return nil, errAccessTokenRequired
	}

	sdk := sqclient.NewClient(
		sqoption.WithBaseURL(baseURL),
		sqoption.WithToken(accessToken),
	)
	logg.Info(logg.WithField(ctx, "square_env", env), "square client ready")

	return &Client{
		links:           sdk.Checkout.PaymentLinks,
		environment:     env,
		signatureKey:    strings.TrimSpace(cfg.WebhookSignatureKey),
		notificationURL: strings.TrimSpace(cfg.WebhookURL),
		logger:          logg,
	}, nil
}

func (c *Client) Environment() string { return c.environment }

func (c *Client) SignatureKey() string { return c.signatureKey }

// NotificationURL is where Square posts webhooks. It is part of the signed
// payload, so it must match the subscription exactly.
func (c *Client) NotificationURL() string { return c.notificationURL }

// NewIdempotencyKey returns "<prefix>-<uuid>", defaulting the prefix to vz.
func NewIdempotencyKey(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "vz"
	}
	return prefix + "-" + uuid.NewString()
}

// CreatePaymentLink creates a quick-pay checkout link. Square echoes the
// link's order id back in payment webhooks.
func (c *Client) CreatePaymentLink(ctx context.Context, params PaymentLinkParams) (*PaymentLink, error) {
	if err := params.validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment link request")
	}
	key := strings.TrimSpace(params.IdempotencyKey)
	if key == "" {
		key = NewIdempotencyKey("payment_link.create")
	}

	ctx = c.logger.WithFields(ctx, redacted(map[string]any{
		"square_op":   "create_payment_link",
		"location_id": params.LocationID,
		"amount":      params.AmountMinor,
		"currency":    params.Currency,
	}))

	resp, err := c.links.Create(ctx, params.toSquareRequest(key))
	if err != nil {
		mapped := mapError(err, "create payment link")
		c.logger.Error(ctx, "square call failed", mapped)
		return nil, mapped
	}

	link := resp.GetPaymentLink()
	if link == nil || stringValue(link.GetURL()) == "" || stringValue(link.GetOrderID()) == "" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, errEmptyPaymentLink, "square create payment link failed")
	}
	out := &PaymentLink{
		ID:      stringValue(link.GetID()),
		OrderID: stringValue(link.GetOrderID()),
		URL:     stringValue(link.GetURL()),
	}
	c.logger.Info(c.logger.WithFields(ctx, map[string]any{
		"payment_link_id": out.ID,
		"order_id":        out.OrderID,
	}), "square payment link created")
	return out, nil
}

var sensitiveKeys = []string{"token", "secret", "signature", "email", "phone"}

func redacted(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
		lower := strings.ToLower(k)
		for _, s := range sensitiveKeys {
			if strings.Contains(lower, s) {
				out[k] = "[REDACTED]"
				break
			}
		}
	}
	return out
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
