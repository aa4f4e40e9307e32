package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"studiobook/internal/events"
	"studiobook/internal/metrics"
	"studiobook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// OutboxStore persists notifications until they are delivered.
type OutboxStore interface {
	CreateOutboxMessage(ctx context.Context, msg *models.OutboxMessage) error
	GetPendingOutboxMessages(ctx context.Context, limit int) ([]models.OutboxMessage, error)
	UpdateOutboxStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// Sink delivers one notification to subscribers outside the process.
type Sink interface {
	Deliver(ctx context.Context, msg models.OutboxMessage) error
}

// Notification is the envelope subscribers receive.
type Notification struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// NotifyWorker consumes outbox messages and hands them to a Sink with retries.
type NotifyWorker struct {
	store         OutboxStore
	sink          Sink
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.OutboxMessage
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// NewNotifyWorker builds a worker with sane defaults. redisClient may be nil, in which
// case dead letters are only kept in the outbox table.
func NewNotifyWorker(store OutboxStore, sink Sink, redisClient *redis.Client, retry RetryPolicy, pollInterval time.Duration, logger *zerolog.Logger) *NotifyWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 1 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &NotifyWorker{
		store:         store,
		sink:          sink,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.OutboxMessage, 128),
		deadLetterKey: "studiobook:notify:deadletter",
		pollInterval:  pollInterval,
		batchSize:     20,
		logger:        logger,
	}
}

// Handle persists the event and schedules it for delivery. It matches events.EventHandler.
func (w *NotifyWorker) Handle(event *events.Event) error {
	if event == nil || event.Type == "" {
		return errors.New("event type is required")
	}

	msg := models.OutboxMessage{
		EventType: event.Type,
		Payload:   string(event.Payload),
		Status:    models.OutboxPending,
	}
	if msg.Payload == "" {
		msg.Payload = "{}"
	}

	if err := w.store.CreateOutboxMessage(context.Background(), &msg); err != nil {
		return fmt.Errorf("persist outbox message: %w", err)
	}

	select {
	case w.queue <- msg:
	default:
		w.logger.Warn().Int64("id", msg.ID).Msg("notify queue full, message left to polling")
	}
	return nil
}

// Start runs the delivery loop until ctx is done.
func (w *NotifyWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("notify worker started")
	defer w.logger.Info().Msg("notify worker stopped")

	for {
		if ctx.Err() != nil {
			return
		}
		if msg, ok := w.tryLocalQueue(); ok {
			w.process(ctx, &msg)
			continue
		}

		msgs, err := w.store.GetPendingOutboxMessages(ctx, w.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error().Err(err).Msg("fetch pending notifications")
			w.wait(ctx)
			continue
		}
		if len(msgs) == 0 {
			w.wait(ctx)
			continue
		}

		for i := range msgs {
			w.process(ctx, &msgs[i])
		}
	}
}

// wait sleeps for the poll interval or until a queued message arrives.
func (w *NotifyWorker) wait(ctx context.Context) {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	case msg := <-w.queue:
		w.process(ctx, &msg)
	}
}

// tryLocalQueue takes a freshly published message without blocking.
func (w *NotifyWorker) tryLocalQueue() (models.OutboxMessage, bool) {
	select {
	case m := <-w.queue:
		return m, true
	default:
		return models.OutboxMessage{}, false
	}
}

func (w *NotifyWorker) process(ctx context.Context, msg *models.OutboxMessage) {
	if !json.Valid([]byte(msg.Payload)) {
		w.fail(ctx, msg, errors.New("payload is not valid JSON"))
		return
	}

	if err := w.sink.Deliver(ctx, *msg); err != nil {
		w.retryOrFail(ctx, msg, err)
		return
	}

	if err := w.store.UpdateOutboxStatus(ctx, msg.ID, models.OutboxDelivered, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("id", msg.ID).Msg("mark notification delivered")
	}
	metrics.IncNotification(models.OutboxDelivered)
}

func (w *NotifyWorker) retryOrFail(ctx context.Context, msg *models.OutboxMessage, cause error) {
	attempt := msg.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.fail(ctx, msg, cause)
		return
	}

	next := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.store.UpdateOutboxStatus(ctx, msg.ID, models.OutboxRetry, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("id", msg.ID).Msg("mark notification retry")
	}
	w.logger.Warn().Err(cause).Int64("id", msg.ID).Int("attempt", attempt).Time("next_retry_at", next).Msg("notification delivery failed")
	metrics.IncNotification(models.OutboxRetry)
}

func (w *NotifyWorker) fail(ctx context.Context, msg *models.OutboxMessage, cause error) {
	if err := w.store.UpdateOutboxStatus(ctx, msg.ID, models.OutboxFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("id", msg.ID).Msg("mark notification failed")
	}
	w.logger.Error().Err(cause).Int64("id", msg.ID).Str("type", msg.EventType).Msg("notification dead-lettered")
	metrics.IncNotification(models.OutboxFailed)
	w.pushDeadLetter(ctx, msg)
}

func (w *NotifyWorker) pushDeadLetter(ctx context.Context, msg *models.OutboxMessage) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		w.logger.Error().Err(err).Int64("id", msg.ID).Msg("encode dead letter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("id", msg.ID).Msg("dead letter push")
	}
}
