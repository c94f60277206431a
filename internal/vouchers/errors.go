package vouchers

import pkgerrors "github.com/angelmondragon/voucherz-backend/pkg/errors"

var (
	ErrVoucherNotFound                    = pkgerrors.New(pkgerrors.CodeNotFound, "voucher not found")
	ErrCampaignNotFound                   = pkgerrors.New(pkgerrors.CodeNotFound, "campaign not found")
	ErrCampaignNotActive                  = pkgerrors.New(pkgerrors.CodeStateConflict, "campaign is not active")
	ErrNoAvailableVouchers                = pkgerrors.New(pkgerrors.CodeConflict, "no available vouchers")
	ErrVoucherIsUsed                      = pkgerrors.New(pkgerrors.CodeStateConflict, "voucher is used")
	ErrNotAnOwner                         = pkgerrors.New(pkgerrors.CodeForbidden, "customer does not own this voucher")
	ErrWrongValidationCode                = pkgerrors.New(pkgerrors.CodeValidation, "wrong validation code")
	ErrInvalidPartnerPaymentConfiguration = pkgerrors.New(pkgerrors.CodePaymentConfiguration, "partner payment configuration is invalid")

	// ErrOwnerMissing means a unit reached payment confirmation without an owner.
	// It indicates corrupted state and must never be retried.
	ErrOwnerMissing = pkgerrors.New(pkgerrors.CodeInvariant, "voucher has no owner")
)
