package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Reservation outcomes reported by VoucherMetrics.
const (
	OutcomeReserved      = "reserved"
	OutcomeSoldOut       = "sold_out"
	OutcomeNotActive     = "not_active"
	OutcomeNotFound      = "not_found"
	OutcomeGatewayReject = "gateway_rejected"
	OutcomeGatewayError  = "gateway_error"
	OutcomeLockExhausted = "lock_exhausted"
	OutcomeError         = "error"
)

// VoucherMetrics covers the allocation engine. A nil receiver records nothing.
type VoucherMetrics struct {
	reservations    *prometheus.CounterVec
	reserveDuration prometheus.Histogram
	lockContention  *prometheus.CounterVec
	releases        *prometheus.CounterVec
	releaseRetries  prometheus.Counter
	deadLetters     prometheus.Counter
	sales           prometheus.Counter
	lostSales       prometheus.Counter
	redemptions     *prometheus.CounterVec
}

func NewVoucherMetrics(reg prometheus.Registerer) *VoucherMetrics {
	if reg == nil {
		return &VoucherMetrics{}
	}
	m := &VoucherMetrics{
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voucher_reservations_total",
			Help: "Reservation attempts by outcome.",
		}, []string{"outcome"}),
		reserveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "voucher_reserve_duration_seconds",
			Help:    "End to end reservation latency including the payment gateway.",
			Buckets: prometheus.DefBuckets,
		}),
		lockContention: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voucher_lock_contention_total",
			Help: "Lock acquisitions that found the lock already held.",
		}, []string{"scope"}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voucher_releases_total",
			Help: "Compensator runs by outcome.",
		}, []string{"outcome"}),
		releaseRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voucher_release_retries_total",
			Help: "Background release attempts made by the supervisor.",
		}),
		deadLetters: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voucher_release_dead_letters_total",
			Help: "Reserved vouchers the supervisor gave up releasing.",
		}),
		sales: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voucher_sales_total",
			Help: "Confirmed voucher sales.",
		}),
		lostSales: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voucher_lost_sales_total",
			Help: "Completed payments whose reservation had already been released.",
		}),
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voucher_redemptions_total",
			Help: "Redemption attempts by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.reservations, m.reserveDuration, m.lockContention, m.releases, m.releaseRetries, m.deadLetters, m.sales, m.lostSales, m.redemptions)
	return m
}

func (m *VoucherMetrics) ObserveReservation(outcome string, duration time.Duration) {
	if m == nil || m.reservations == nil {
		return
	}
	m.reservations.WithLabelValues(normalizeLabel(outcome)).Inc()
	m.reserveDuration.Observe(duration.Seconds())
}

func (m *VoucherMetrics) IncLockContention(scope string) {
	if m == nil || m.lockContention == nil {
		return
	}
	m.lockContention.WithLabelValues(normalizeLabel(scope)).Inc()
}

func (m *VoucherMetrics) IncRelease(outcome string) {
	if m == nil || m.releases == nil {
		return
	}
	m.releases.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *VoucherMetrics) IncReleaseRetry() {
	if m == nil || m.releaseRetries == nil {
		return
	}
	m.releaseRetries.Inc()
}

func (m *VoucherMetrics) IncDeadLetter() {
	if m == nil || m.deadLetters == nil {
		return
	}
	m.deadLetters.Inc()
}

func (m *VoucherMetrics) IncSale() {
	if m == nil || m.sales == nil {
		return
	}
	m.sales.Inc()
}

func (m *VoucherMetrics) IncLostSale() {
	if m == nil || m.lostSales == nil {
		return
	}
	m.lostSales.Inc()
}

func (m *VoucherMetrics) IncRedemption(result string) {
	if m == nil || m.redemptions == nil {
		return
	}
	m.redemptions.WithLabelValues(normalizeLabel(result)).Inc()
}
