package enums

import "slices"

// OutboxAggregateType maps to aggregate_type_enum.
type OutboxAggregateType string

const AggregateVoucher OutboxAggregateType = "voucher"

// OutboxEventType maps to event_type_enum.
type OutboxEventType string

const EventVoucherSold OutboxEventType = "voucher_sold"

// OutboxDLQErrorReason maps to outbox_dlq_error_reason_enum.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains([]OutboxAggregateType{AggregateVoucher}, a)
}

func (e OutboxEventType) IsValid() bool {
	return slices.Contains([]OutboxEventType{EventVoucherSold}, e)
}

func (r OutboxDLQErrorReason) IsValid() bool {
	return slices.Contains([]OutboxDLQErrorReason{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable}, r)
}
