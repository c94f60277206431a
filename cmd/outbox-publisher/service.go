package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/voucherz-backend/pkg/config"
	"github.com/angelmondragon/voucherz-backend/pkg/db/models"
	"github.com/angelmondragon/voucherz-backend/pkg/enums"
	"github.com/angelmondragon/voucherz-backend/pkg/logger"
	"github.com/angelmondragon/voucherz-backend/pkg/metrics"
	"github.com/angelmondragon/voucherz-backend/pkg/outbox"
	"github.com/angelmondragon/voucherz-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// outcome is what happened to a single outbox row inside a batch.
type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDeadLettered
)

type RelayParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
	Metrics          *metrics.OutboxMetrics
}

// Relay moves committed outbox rows onto their Pub/Sub topics. Rows are
// claimed with SKIP LOCKED so several relays can run side by side.
type Relay struct {
	logg     *logger.Logger
	db       dbClient
	pubsub   pubSubClient
	repo     outboxRepository
	registry registryResolver
	dlq      dlqRepository
	metrics  *metrics.OutboxMetrics

	newPublisher publisherFactory
	pubMu        sync.Mutex
	publishers   map[string]publisher

	batchSize   int
	maxAttempts int
	poll        time.Duration
	jitter      *rand.Rand
}

func NewRelay(params RelayParams) (*Relay, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		client := params.PubSub
		factory = func(topic string) publisher {
			return wrapGCPPublisher(client.Publisher(topic))
		}
	}

	cfg := params.Config.Outbox
	return &Relay{
		logg:         params.Logger,
		db:           params.DB,
		pubsub:       params.PubSub,
		repo:         params.Repository,
		registry:     params.Registry,
		dlq:          params.DLQRepository,
		metrics:      params.Metrics,
		newPublisher: factory,
		publishers:   map[string]publisher{},
		batchSize:    positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts:  positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		poll:         time.Duration(positiveOr(cfg.PollIntervalMS, defaultPollMs)) * time.Millisecond,
		jitter:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func positiveOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// Run drains the outbox until ctx is canceled. Full batches are followed
// immediately by another drain; empty ones wait one poll interval.
func (r *Relay) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": r.db.Ping,
		"pubsub":   r.pubsub.Ping,
	} {
		if err := ping(ctx); err != nil {
			r.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}
	defer r.stopPublishers()

	wait := r.poll
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox relay context canceled")
			return err
		}

		claimed, err := r.drain(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay batch error", err)
			wait = nextBackoff(wait, r.poll, maxBackoff)
		case claimed > 0:
			wait = r.poll
			continue
		default:
			wait = r.poll
		}

		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// drain claims one batch and settles every row in it within a single
// transaction. It returns how many rows were claimed.
func (r *Relay) drain(ctx context.Context) (int, error) {
	claimed := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.repo.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox batch: %w", err)
		}
		claimed = len(events)
		for _, event := range events {
			if _, err := r.dispatch(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

// dispatch publishes one row and records the result. The returned error is
// reserved for bookkeeping failures that must abort the batch.
func (r *Relay) dispatch(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (outcome, error) {
	resolved, err := r.registry.Resolve(event)
	if err != nil {
		return outcomeDeadLettered, r.deadLetter(ctx, tx, event, "", enums.OutboxDLQReasonNonRetryable, err)
	}
	topic := resolved.Descriptor.Topic

	pubErr := r.deliver(ctx, event, resolved)
	if pubErr == nil {
		if err := r.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return outcomePublished, fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		r.metrics.IncPublished(string(event.EventType))
		r.logg.Info(r.logg.WithFields(ctx, r.fields(event, topic, resolved.Envelope)), "outbox event published")
		return outcomePublished, nil
	}

	var nonRetryable registry.NonRetryableError
	if errors.As(pubErr, &nonRetryable) {
		return outcomeDeadLettered, r.deadLetter(ctx, tx, event, topic, enums.OutboxDLQReasonNonRetryable, pubErr)
	}
	if event.AttemptCount+1 >= r.maxAttempts {
		return outcomeDeadLettered, r.deadLetter(ctx, tx, event, topic, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("max publish attempts reached: %w", pubErr))
	}

	fields := r.fields(event, topic, resolved.Envelope)
	fields["attempt_count"] = event.AttemptCount + 1
	fields["error"] = pubErr.Error()
	r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox publish failed, will retry")
	r.metrics.IncFailed(string(event.EventType))
	if err := r.repo.MarkFailedTx(tx, event.ID, pubErr); err != nil {
		return outcomeRetry, fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	return outcomeRetry, nil
}

// deadLetter copies the row into outbox_dlq and pins its attempt count so it
// is never claimed again.
func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, topic string, reason enums.OutboxDLQErrorReason, cause error) error {
	fields := r.fields(event, topic, outbox.PayloadEnvelope{})
	fields["error_reason"] = reason
	fields["error"] = cause.Error()
	r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox event dead-lettered")
	r.metrics.IncDLQ(string(event.EventType), string(reason))

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := r.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := r.repo.MarkTerminalTx(tx, event.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

// deliver sends the stored payload verbatim; consumers dedupe on the
// event_id attribute.
func (r *Relay) deliver(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := r.publisherFor(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	msg := &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID,
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

func (r *Relay) publisherFor(topic string) publisher {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	if pub, ok := r.publishers[topic]; ok {
		return pub
	}
	pub := r.newPublisher(topic)
	if pub != nil {
		r.publishers[topic] = pub
	}
	return pub
}

func (r *Relay) stopPublishers() {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	for topic, pub := range r.publishers {
		if s, ok := pub.(interface{ Stop() }); ok {
			s.Stop()
		}
		delete(r.publishers, topic)
	}
}

func (r *Relay) fields(event models.OutboxEvent, topic string, envelope outbox.PayloadEnvelope) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"attempt_count":  event.AttemptCount,
	}
	if topic != "" {
		fields["topic"] = topic
	}
	if envelope.EventID != "" {
		fields["event_id"] = envelope.EventID
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func (r *Relay) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	d += time.Duration(r.jitter.Int63n(int64(jitterWindow)))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, limit time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	if next := current * 2; next < limit {
		return next
	}
	return limit
}

func wrapGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return gcpPublisher{p}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
