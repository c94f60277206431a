package vouchers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/voucherz-backend/api/middleware"
	"github.com/angelmondragon/voucherz-backend/api/responses"
	"github.com/angelmondragon/voucherz-backend/api/validators"
	internalvouchers "github.com/angelmondragon/voucherz-backend/internal/vouchers"
	"github.com/angelmondragon/voucherz-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/voucherz-backend/pkg/errors"
	"github.com/angelmondragon/voucherz-backend/pkg/logger"
	"github.com/angelmondragon/voucherz-backend/pkg/pagination"
)

// Service is the slice of the voucher engine the HTTP layer drives.
type Service interface {
	Reserve(ctx context.Context, campaignID, ownerID uuid.UUID) (*internalvouchers.Reservation, error)
	Cancel(ctx context.Context, shortCode string) (enums.ReleaseOutcome, error)
	Redeem(ctx context.Context, shortCode, validationCode string) error
	Transfer(ctx context.Context, shortCode string, oldOwnerID, newOwnerID uuid.UUID) (string, error)
	Get(ctx context.Context, shortCode string) (*internalvouchers.VoucherView, error)
	ListByCampaign(ctx context.Context, campaignID uuid.UUID, status *enums.VoucherStatus, params pagination.Params) (pagination.Page[internalvouchers.VoucherView], error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, params pagination.Params) (pagination.Page[internalvouchers.VoucherView], error)
	CampaignPartner(ctx context.Context, campaignID uuid.UUID) (uuid.UUID, error)
}

type redeemRequest struct {
	ValidationCode string `json:"validation_code" validate:"required,max=64"`
}

type transferRequest struct {
	NewOwnerID string `json:"new_owner_id" validate:"required,uuid"`
}

type transferResponse struct {
	ShortCode      string    `json:"short_code"`
	OwnerID        uuid.UUID `json:"owner_id"`
	ValidationCode string    `json:"validation_code"`
}

type cancelResponse struct {
	ShortCode string               `json:"short_code"`
	Outcome   enums.ReleaseOutcome `json:"outcome"`
}

// Reserve allocates one voucher of the campaign to the calling customer and
// returns the payment link plus the plaintext validation code.
func Reserve(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "voucher service unavailable"))
			return
		}

		customerID, err := requireCustomer(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		campaignID, err := parseCampaignID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithCampaignID(ctx, campaignID.String())
		}
		reservation, err := svc.Reserve(ctx, campaignID, customerID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, reservation)
	}
}

// ListByCampaign pages through a campaign's vouchers. Partner staff only see
// their own partner's campaigns.
func ListByCampaign(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "voucher service unavailable"))
			return
		}

		campaignID, err := parseCampaignID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := authorizeCampaign(r, svc, campaignID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := parsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var status *enums.VoucherStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := enums.ParseVoucherStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			status = &parsed
		}

		page, err := svc.ListByCampaign(r.Context(), campaignID, status, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// ListMine pages through the vouchers owned by the calling customer.
func ListMine(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "voucher service unavailable"))
			return
		}

		customerID, err := requireCustomer(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := parsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListByOwner(r.Context(), customerID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// Get returns one voucher. Customers only see their own, partner staff the
// ones of their partner's campaigns, admins any.
func Get(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "voucher service unavailable"))
			return
		}

		shortCode, err := parseShortCode(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Get(r.Context(), shortCode)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := authorizeView(r, view); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// Cancel hands a reserved voucher back to stock. A busy voucher lock yields
// 202 and the release finishes in the background.
func Cancel(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "voucher service unavailable"))
			return
		}

		shortCode, err := parseShortCode(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Get(r.Context(), shortCode)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := authorizeView(r, view); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := svc.Cancel(r.Context(), shortCode)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusOK
		if outcome == enums.ReleaseOutcomePending {
			status = http.StatusAccepted
		}
		responses.WriteSuccessStatus(w, status, cancelResponse{ShortCode: shortCode, Outcome: outcome})
	}
}

// Redeem marks a voucher used. Knowing the validation code is the proof of
// possession, so any authenticated caller may redeem.
func Redeem(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "voucher service unavailable"))
			return
		}

		shortCode, err := parseShortCode(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body redeemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		code := validators.SanitizeString(body.ValidationCode, 64)
		if err := svc.Redeem(r.Context(), shortCode, code); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"short_code": shortCode,
			"status":     enums.VoucherStatusUsed,
		})
	}
}

// Transfer gives a sold voucher owned by the caller to another customer. The
// rotated validation code is returned once.
func Transfer(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "voucher service unavailable"))
			return
		}

		customerID, err := requireCustomer(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		shortCode, err := parseShortCode(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body transferRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		newOwner, err := uuid.Parse(body.NewOwnerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid new owner id"))
			return
		}

		code, err := svc.Transfer(r.Context(), shortCode, customerID, newOwner)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, transferResponse{
			ShortCode:      shortCode,
			OwnerID:        newOwner,
			ValidationCode: code,
		})
	}
}

func requireCustomer(r *http.Request) (uuid.UUID, error) {
	id := middleware.CustomerIDFromContext(r.Context())
	if id == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "customer context missing")
	}
	return id, nil
}

// Vouchers outside the caller's reach are reported as missing so their
// existence is not revealed.
func authorizeView(r *http.Request, view *internalvouchers.VoucherView) error {
	ctx := r.Context()
	switch middleware.RoleFromContext(ctx) {
	case enums.ActorRoleAdmin:
		return nil
	case enums.ActorRolePartner:
		partnerID := middleware.PartnerIDFromContext(ctx)
		if partnerID == nil || *partnerID != view.PartnerID {
			return internalvouchers.ErrVoucherNotFound
		}
		return nil
	}
	customerID := middleware.CustomerIDFromContext(ctx)
	if view.OwnerID == nil || *view.OwnerID != customerID {
		return internalvouchers.ErrVoucherNotFound
	}
	return nil
}

func authorizeCampaign(r *http.Request, svc Service, campaignID uuid.UUID) error {
	ctx := r.Context()
	if middleware.RoleFromContext(ctx) == enums.ActorRoleAdmin {
		return nil
	}
	partnerID := middleware.PartnerIDFromContext(ctx)
	if partnerID == nil {
		return pkgerrors.New(pkgerrors.CodeForbidden, "partner context missing")
	}
	owner, err := svc.CampaignPartner(ctx, campaignID)
	if err != nil {
		return err
	}
	if owner != *partnerID {
		return internalvouchers.ErrCampaignNotFound
	}
	return nil
}

func parseCampaignID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "campaignId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "campaign id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid campaign id")
	}
	return id, nil
}

func parseShortCode(r *http.Request) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "shortCode")))
	if _, err := internalvouchers.ParseShortCode(code); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid short code")
	}
	return code, nil
}

func parsePage(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}
