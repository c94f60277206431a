package vouchers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/voucherz-backend/internal/campaigns"
	"github.com/angelmondragon/voucherz-backend/internal/payments"
	"github.com/angelmondragon/voucherz-backend/pkg/db/models"
	"github.com/angelmondragon/voucherz-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/voucherz-backend/pkg/errors"
	"github.com/angelmondragon/voucherz-backend/pkg/logger"
	"github.com/angelmondragon/voucherz-backend/pkg/metrics"
	"github.com/angelmondragon/voucherz-backend/pkg/outbox"
	"github.com/angelmondragon/voucherz-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/voucherz-backend/pkg/pagination"
)

const (
	defaultLockTimeout     = 2 * time.Second
	defaultReserveAttempts = 5
	soldEventVersion       = 1
)

var errNotReserved = errors.New("voucher left reserved state")

type ServiceParams struct {
	DB            txRunner
	Repository    *Repository
	Campaigns     *campaigns.Repository
	CampaignLocks locker
	Gateway       paymentGateway
	Compensator   releaser
	Scheduler     releaseScheduler
	Outbox        eventEmitter
	Logger        *logger.Logger
	Metrics       *metrics.VoucherMetrics

	LockTimeout     time.Duration
	ReserveAttempts int

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Service is the voucher lifecycle engine: allocation, payment hand-off,
// cancellation, sale confirmation, redemption and transfer.
type Service struct {
	db          txRunner
	repo        *Repository
	campaigns   *campaigns.Repository
	locks       locker
	gateway     paymentGateway
	compensator releaser
	scheduler   releaseScheduler
	outbox      eventEmitter
	logg        *logger.Logger
	metrics     *metrics.VoucherMetrics

	lockTimeout time.Duration
	attempts    int
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.DB == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	case params.Repository == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "voucher repository required")
	case params.Campaigns == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "campaign repository required")
	case params.CampaignLocks == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "campaign locks required")
	case params.Gateway == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	case params.Compensator == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "compensator required")
	case params.Scheduler == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "release scheduler required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}

	svc := &Service{
		db:          params.DB,
		repo:        params.Repository,
		campaigns:   params.Campaigns,
		locks:       params.CampaignLocks,
		gateway:     params.Gateway,
		compensator: params.Compensator,
		scheduler:   params.Scheduler,
		outbox:      params.Outbox,
		logg:        params.Logger,
		metrics:     params.Metrics,
		lockTimeout: params.LockTimeout,
		attempts:    params.ReserveAttempts,
		now:         params.Now,
		sleep:       params.Sleep,
	}
	if svc.lockTimeout <= 0 {
		svc.lockTimeout = defaultLockTimeout
	}
	if svc.attempts <= 0 {
		svc.attempts = defaultReserveAttempts
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	if svc.sleep == nil {
		svc.sleep = sleepContext
	}
	return svc, nil
}

type allocation struct {
	shortCode string
	secret    Secret
}

// Reserve allocates one voucher of campaignID to ownerID and opens a payment
// for it. The campaign lock is held only around the inventory transaction;
// the gateway call happens after it is released.
func (s *Service) Reserve(ctx context.Context, campaignID, ownerID uuid.UUID) (*Reservation, error) {
	started := time.Now()
	outcome := metrics.OutcomeError
	defer func() { s.metrics.ObserveReservation(outcome, time.Since(started)) }()

	ctx = s.logg.WithCampaignID(ctx, campaignID.String())
	ctx = s.logg.WithCustomerID(ctx, ownerID.String())

	campaign, err := s.loadCampaign(ctx, campaignID)
	if err != nil {
		if errors.Is(err, ErrCampaignNotFound) {
			outcome = metrics.OutcomeNotFound
		}
		return nil, err
	}
	if !campaign.ActiveAt(s.now()) {
		outcome = metrics.OutcomeNotActive
		return nil, ErrCampaignNotActive
	}
	if campaign.SoldOut() {
		outcome = metrics.OutcomeSoldOut
		return nil, ErrNoAvailableVouchers
	}

	// Distinct per call so two reservations by the same customer never
	// release each other's lock.
	lockOwner := ownerID.String() + ":" + uuid.NewString()
	lockName := campaignID.String()

	for attempt := 1; attempt <= s.attempts; attempt++ {
		acquired, err := s.locks.TryAcquire(ctx, lockName, lockOwner, s.lockTimeout)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire campaign lock")
		}
		if !acquired {
			s.metrics.IncLockContention("campaign")
			if attempt == s.attempts {
				break
			}
			if err := s.sleep(ctx, s.lockTimeout); err != nil {
				return nil, err
			}
			continue
		}

		alloc, err := s.allocate(ctx, campaign, ownerID)
		if relErr := s.locks.Release(context.WithoutCancel(ctx), lockName, lockOwner); relErr != nil {
			s.logg.Error(ctx, "failed to release campaign lock", relErr)
		}
		if err != nil {
			if errors.Is(err, ErrNoAvailableVouchers) {
				outcome = metrics.OutcomeSoldOut
			}
			return nil, err
		}

		reservation, outcomeLabel, err := s.requestPayment(ctx, campaign, ownerID, alloc)
		outcome = outcomeLabel
		return reservation, err
	}

	outcome = metrics.OutcomeLockExhausted
	s.logg.Warn(s.logg.WithField(ctx, "attempts", s.attempts), "campaign lock still held after all reservation attempts")
	return nil, ErrNoAvailableVouchers
}

func (s *Service) allocate(ctx context.Context, campaign *models.Campaign, ownerID uuid.UUID) (allocation, error) {
	var alloc allocation
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		camps := s.campaigns.WithTx(tx)
		now := s.now()

		secret, err := NewSecret()
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate validation code")
		}

		unit, err := repo.FindInStock(ctx, campaign.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find in-stock voucher")
		}
		if unit != nil {
			reserved, err := repo.ReserveInStock(ctx, unit.ID, ownerID, secret.Hash, now)
			if err != nil {
				s.logg.Error(ctx, "reserve in-stock voucher failed", err)
				return ErrNoAvailableVouchers
			}
			if !reserved {
				return ErrNoAvailableVouchers
			}
			if err := incrementBought(ctx, camps, campaign.ID); err != nil {
				return err
			}
			alloc = allocation{shortCode: unit.Code(), secret: secret}
			return nil
		}

		count, err := repo.CountByCampaign(ctx, campaign.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count campaign vouchers")
		}
		if count >= int64(campaign.VouchersTotalCount) {
			return ErrNoAvailableVouchers
		}

		voucher := models.Voucher{
			CampaignID:         campaign.ID,
			Status:             enums.VoucherStatusReserved,
			OwnerID:            &ownerID,
			ValidationCodeHash: &secret.Hash,
			PurchasedAt:        &now,
		}
		if err := repo.Create(ctx, &voucher); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create voucher")
		}
		code, err := repo.SetShortCode(ctx, voucher.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign short code")
		}
		if err := incrementBought(ctx, camps, campaign.ID); err != nil {
			return err
		}
		alloc = allocation{shortCode: code, secret: secret}
		return nil
	})
	return alloc, err
}

func incrementBought(ctx context.Context, camps *campaigns.Repository, campaignID uuid.UUID) error {
	err := camps.IncrementBought(ctx, campaignID)
	if errors.Is(err, campaigns.ErrCapacityReached) {
		return ErrNoAvailableVouchers
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment bought counter")
	}
	return nil
}

func (s *Service) requestPayment(ctx context.Context, campaign *models.Campaign, ownerID uuid.UUID, alloc allocation) (*Reservation, string, error) {
	ctx = s.logg.WithShortCode(ctx, alloc.shortCode)

	payment, err := s.gateway.GeneratePayment(ctx, payments.PaymentInput{
		CustomerID:  ownerID,
		Amount:      campaign.Price,
		Currency:    campaign.Currency,
		PartnerID:   campaign.PartnerID,
		Description: campaign.Name,
		ReferenceID: alloc.shortCode,
	})
	if err != nil {
		s.compensate(ctx, alloc.shortCode)
		if payments.IsRejection(err) {
			s.logg.Warn(ctx, "payment gateway rejected partner configuration")
			return nil, metrics.OutcomeGatewayReject, wrapAs(ErrInvalidPartnerPaymentConfiguration, err)
		}
		s.logg.Error(ctx, "payment gateway failed", err)
		return nil, metrics.OutcomeGatewayError, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment gateway unavailable")
	}

	link := models.PaymentRequest{ID: payment.ID, ShortCode: alloc.shortCode, PaymentURL: payment.URL}
	if err := s.repo.CreatePaymentRequest(ctx, &link); err != nil {
		s.logg.Error(ctx, "failed to record payment request", err)
		s.compensate(ctx, alloc.shortCode)
		return nil, metrics.OutcomeError, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment request")
	}

	s.logg.Info(s.logg.WithField(ctx, "payment_request_id", payment.ID), "voucher reserved")
	return &Reservation{
		ShortCode:        alloc.shortCode,
		PaymentRequestID: payment.ID,
		PaymentURL:       payment.URL,
		ValidationCode:   alloc.secret.Code,
	}, metrics.OutcomeReserved, nil
}

// compensate releases a reservation whose payment could not be opened. A busy
// voucher lock or a failed attempt hands the code to the supervisor.
func (s *Service) compensate(ctx context.Context, shortCode string) {
	outcome, err := s.compensator.Release(context.WithoutCancel(ctx), shortCode)
	if err != nil {
		s.logg.Error(ctx, "compensating release failed, scheduling retry", err)
		s.scheduler.Schedule(shortCode)
		return
	}
	if outcome == enums.ReleaseOutcomePending {
		s.scheduler.Schedule(shortCode)
	}
}

// Cancel gives a reserved voucher back to stock. ReleaseOutcomePending means
// the voucher lock was busy and the release continues in the background.
func (s *Service) Cancel(ctx context.Context, shortCode string) (enums.ReleaseOutcome, error) {
	ctx = s.logg.WithShortCode(ctx, shortCode)

	voucher, err := s.repo.GetByShortCode(ctx, shortCode)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrVoucherNotFound
	}
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load voucher")
	}
	if voucher.Status != enums.VoucherStatusReserved {
		return "", ErrVoucherNotFound
	}

	outcome, err := s.compensator.Release(ctx, shortCode)
	if err != nil {
		return "", err
	}
	switch outcome {
	case enums.ReleaseOutcomeReleased:
		return outcome, nil
	case enums.ReleaseOutcomePending:
		s.scheduler.Schedule(shortCode)
		s.logg.Info(ctx, "voucher lock busy, release scheduled")
		return outcome, nil
	default:
		return "", ErrVoucherNotFound
	}
}

// Redeem marks a voucher used after checking its campaign and validation code.
// Of two concurrent redemptions of the same voucher exactly one succeeds.
func (s *Service) Redeem(ctx context.Context, shortCode, validationCode string) error {
	ctx = s.logg.WithShortCode(ctx, shortCode)

	voucher, err := s.repo.GetWithSecret(ctx, shortCode)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.metrics.IncRedemption("not_found")
		return ErrVoucherNotFound
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load voucher")
	}

	campaign, err := s.loadCampaign(ctx, voucher.CampaignID)
	if err != nil {
		return err
	}
	if !campaign.ActiveAt(s.now()) {
		s.metrics.IncRedemption("not_active")
		return ErrCampaignNotActive
	}
	if voucher.ValidationCodeHash == nil || !MatchesHash(validationCode, *voucher.ValidationCodeHash) {
		s.metrics.IncRedemption("wrong_code")
		return ErrWrongValidationCode
	}

	used, err := s.repo.MarkUsed(ctx, voucher.ID, s.now())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark voucher used")
	}
	if !used {
		s.metrics.IncRedemption("already_used")
		return ErrVoucherIsUsed
	}
	s.metrics.IncRedemption("redeemed")
	s.logg.Info(ctx, "voucher redeemed")
	return nil
}

// Transfer moves a sold voucher to a new owner and rotates its validation
// code. The new plaintext code is returned.
func (s *Service) Transfer(ctx context.Context, shortCode string, oldOwnerID, newOwnerID uuid.UUID) (string, error) {
	if newOwnerID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "new owner required")
	}
	ctx = s.logg.WithShortCode(ctx, shortCode)

	voucher, err := s.repo.GetByShortCode(ctx, shortCode)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrVoucherNotFound
	}
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load voucher")
	}
	if err := checkTransferable(voucher, oldOwnerID); err != nil {
		return "", err
	}

	secret, err := NewSecret()
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate validation code")
	}
	moved, err := s.repo.UpdateOwner(ctx, voucher.ID, oldOwnerID, newOwnerID, secret.Hash)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update voucher owner")
	}
	if !moved {
		// Lost a race with a redemption or another transfer; report what changed.
		current, err := s.repo.GetByShortCode(ctx, shortCode)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload voucher")
		}
		if err := checkTransferable(current, oldOwnerID); err != nil {
			return "", err
		}
		return "", ErrVoucherIsUsed
	}

	s.logg.Info(s.logg.WithField(ctx, "new_owner_id", newOwnerID.String()), "voucher transferred")
	return secret.Code, nil
}

func checkTransferable(voucher *models.Voucher, ownerID uuid.UUID) error {
	if voucher.Status != enums.VoucherStatusSold {
		return ErrVoucherIsUsed
	}
	if voucher.OwnerID == nil || *voucher.OwnerID != ownerID {
		return ErrNotAnOwner
	}
	return nil
}

// ConfirmSale records a completed payment. It is idempotent per payment
// request: only the first confirmation marks the voucher sold and queues the
// sold event.
func (s *Service) ConfirmSale(ctx context.Context, paymentRequestID string) error {
	ctx = s.logg.WithField(ctx, "payment_request_id", paymentRequestID)

	link, err := s.repo.GetPaymentRequest(ctx, paymentRequestID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrVoucherNotFound
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment request")
	}
	if link.ConfirmedAt != nil {
		return nil
	}
	ctx = s.logg.WithShortCode(ctx, link.ShortCode)

	voucher, err := s.repo.GetByShortCode(ctx, link.ShortCode)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrVoucherNotFound
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load voucher")
	}
	if voucher.Status == enums.VoucherStatusSold || voucher.Status == enums.VoucherStatusUsed {
		return nil
	}
	if voucher.OwnerID == nil {
		s.logg.Error(ctx, "paid voucher has no owner", ErrOwnerMissing)
		return ErrOwnerMissing
	}

	campaign, err := s.loadCampaign(ctx, voucher.CampaignID)
	if err != nil {
		return err
	}

	soldAt := s.now()
	confirmed := false
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		first, err := repo.ConfirmPaymentRequest(ctx, link.ID, soldAt)
		if err != nil {
			return err
		}
		if !first {
			return nil
		}
		sold, err := repo.MarkSold(ctx, voucher.ID)
		if err != nil {
			return err
		}
		if !sold {
			return errNotReserved
		}
		confirmed = true
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventVoucherSold,
			AggregateType: enums.AggregateVoucher,
			AggregateID:   link.ShortCode,
			Actor:         &outbox.ActorRef{CustomerID: *voucher.OwnerID, Role: "customer"},
			Version:       soldEventVersion,
			OccurredAt:    soldAt,
			Data: payloads.VoucherSoldEvent{
				ShortCode:        link.ShortCode,
				CampaignID:       campaign.ID,
				PartnerID:        campaign.PartnerID,
				CustomerID:       *voucher.OwnerID,
				PaymentRequestID: link.ID,
				Amount:           campaign.Price,
				Currency:         campaign.Currency,
				SoldAt:           soldAt,
			},
		})
	})
	if errors.Is(err, errNotReserved) {
		return s.resolveLostSale(ctx, link.ShortCode)
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm sale")
	}
	if confirmed {
		s.metrics.IncSale()
		s.logg.Info(ctx, "voucher sold")
	}
	return nil
}

// resolveLostSale runs when the voucher changed state between the read and the
// confirming transaction.
func (s *Service) resolveLostSale(ctx context.Context, shortCode string) error {
	voucher, err := s.repo.GetByShortCode(ctx, shortCode)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrVoucherNotFound
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload voucher")
	}
	if voucher.Status == enums.VoucherStatusSold || voucher.Status == enums.VoucherStatusUsed {
		return nil
	}
	return ErrVoucherNotFound
}

func (s *Service) Get(ctx context.Context, shortCode string) (*VoucherView, error) {
	voucher, err := s.repo.GetByShortCode(ctx, shortCode)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVoucherNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load voucher")
	}
	campaign, err := s.loadCampaign(ctx, voucher.CampaignID)
	if err != nil {
		return nil, err
	}
	view := toView(*voucher)
	view.PartnerID = campaign.PartnerID
	return &view, nil
}

// CampaignPartner returns the partner that runs campaignID.
func (s *Service) CampaignPartner(ctx context.Context, campaignID uuid.UUID) (uuid.UUID, error) {
	campaign, err := s.loadCampaign(ctx, campaignID)
	if err != nil {
		return uuid.Nil, err
	}
	return campaign.PartnerID, nil
}

func (s *Service) ListByCampaign(ctx context.Context, campaignID uuid.UUID, status *enums.VoucherStatus, params pagination.Params) (pagination.Page[VoucherView], error) {
	page, err := s.repo.ListByCampaign(ctx, campaignID, status, params)
	if err != nil {
		return pagination.Page[VoucherView]{}, listError(err)
	}
	return toViewPage(page), nil
}

func (s *Service) ListByOwner(ctx context.Context, ownerID uuid.UUID, params pagination.Params) (pagination.Page[VoucherView], error) {
	page, err := s.repo.ListByOwner(ctx, ownerID, params)
	if err != nil {
		return pagination.Page[VoucherView]{}, listError(err)
	}
	return toViewPage(page), nil
}

func listError(err error) error {
	if errors.Is(err, pagination.ErrInvalidCursor) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list vouchers")
}

func toViewPage(page pagination.Page[models.Voucher]) pagination.Page[VoucherView] {
	out := pagination.Page[VoucherView]{
		Items:      make([]VoucherView, 0, len(page.Items)),
		NextCursor: page.NextCursor,
	}
	for _, v := range page.Items {
		out.Items = append(out.Items, toView(v))
	}
	return out
}

func (s *Service) loadCampaign(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	campaign, err := s.campaigns.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load campaign")
	}
	return campaign, nil
}

// wrapAs keeps cause while making errors.Is(err, sentinel) true.
func wrapAs(sentinel *pkgerrors.Error, cause error) error {
	return pkgerrors.Wrap(sentinel.Code(), cause, sentinel.Message())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
