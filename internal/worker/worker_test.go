package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"studiobook/internal/database"
	"studiobook/internal/events"
	"studiobook/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type fakeSink struct {
	mu        sync.Mutex
	err       error
	delivered []models.OutboxMessage
}

func (f *fakeSink) Deliver(_ context.Context, msg models.OutboxMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.delivered = append(f.delivered, msg)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered)
}

func publish(t *testing.T, w *NotifyWorker) models.OutboxMessage {
	t.Helper()
	payload, _ := json.Marshal(events.BookingEventPayload{BookingID: 1, State: "CONTATTARE"})
	if err := w.Handle(&events.Event{Type: events.EventBookingCreated, Payload: payload}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	msg, ok := w.tryLocalQueue()
	if !ok {
		t.Fatalf("expected message in local queue")
	}
	return msg
}

func TestProcessSuccess(t *testing.T) {
	db := newTestDB(t)
	sink := &fakeSink{}
	w := NewNotifyWorker(db, sink, nil, RetryPolicy{}, 0, nil)

	ctx := context.Background()
	msg := publish(t, w)
	w.process(ctx, &msg)

	got, err := db.GetOutboxMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Status != models.OutboxDelivered {
		t.Fatalf("expected status=delivered, got %s", got.Status)
	}
	if got.ProcessedAt == nil {
		t.Fatalf("expected processed_at to be set")
	}
	if sink.count() != 1 {
		t.Fatalf("expected 1 delivery, got %d", sink.count())
	}
}

func TestProcessRetry(t *testing.T) {
	db := newTestDB(t)
	sink := &fakeSink{err: errors.New("boom")}
	w := NewNotifyWorker(db, sink, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Second}, 0, nil)

	ctx := context.Background()
	msg := publish(t, w)
	w.process(ctx, &msg)

	got, err := db.GetOutboxMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Status != models.OutboxRetry {
		t.Fatalf("expected status=retry, got %s", got.Status)
	}
	if got.RetryCount != 1 {
		t.Fatalf("expected retry_count=1, got %d", got.RetryCount)
	}
	if got.NextRetryAt == nil || got.NextRetryAt.Before(time.Now()) {
		t.Fatalf("expected next_retry_at in future, got %v", got.NextRetryAt)
	}
}

func TestProcessDeadLetter(t *testing.T) {
	db := newTestDB(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	w := NewNotifyWorker(db, &fakeSink{err: errors.New("fatal")}, client, RetryPolicy{MaxRetries: 1}, 0, nil)

	ctx := context.Background()
	msg := publish(t, w)
	w.process(ctx, &msg)

	got, _ := db.GetOutboxMessage(ctx, msg.ID)
	if got.Status != models.OutboxFailed {
		t.Fatalf("expected status=failed, got %s", got.Status)
	}
	n, err := client.LLen(ctx, w.deadLetterKey).Result()
	if err != nil || n != 1 {
		t.Fatalf("expected one dead letter, got %d (%v)", n, err)
	}
}

func TestProcessInvalidPayload(t *testing.T) {
	db := newTestDB(t)
	sink := &fakeSink{}
	w := NewNotifyWorker(db, sink, nil, RetryPolicy{}, 0, nil)

	ctx := context.Background()
	msg := models.OutboxMessage{EventType: "broken", Payload: "not json"}
	if err := db.CreateOutboxMessage(ctx, &msg); err != nil {
		t.Fatalf("create: %v", err)
	}
	w.process(ctx, &msg)

	got, _ := db.GetOutboxMessage(ctx, msg.ID)
	if got.Status != models.OutboxFailed {
		t.Fatalf("expected status=failed, got %s", got.Status)
	}
	if sink.count() != 0 {
		t.Fatalf("sink must not see invalid payloads")
	}
}

func TestHandleValidation(t *testing.T) {
	w := NewNotifyWorker(newTestDB(t), &fakeSink{}, nil, RetryPolicy{}, 0, nil)
	if err := w.Handle(&events.Event{}); err == nil {
		t.Fatalf("expected error for empty event type")
	}
	if err := w.Handle(nil); err == nil {
		t.Fatalf("expected error for nil event")
	}
}

func TestStartDeliversPolledMessages(t *testing.T) {
	db := newTestDB(t)
	sink := &fakeSink{}
	w := NewNotifyWorker(db, sink, nil, RetryPolicy{}, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Written directly so only polling can find it.
	if err := db.CreateOutboxMessage(ctx, &models.OutboxMessage{EventType: events.EventHolidayCreated, Payload: `{}`}); err != nil {
		t.Fatalf("create: %v", err)
	}

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if sink.count() != 1 {
		t.Fatalf("expected 1 delivery, got %d", sink.count())
	}
}

func TestStartDrainsLocalQueue(t *testing.T) {
	db := newTestDB(t)
	sink := &fakeSink{}
	// Polling never fires during the test, so delivery must come from the queue.
	w := NewNotifyWorker(db, sink, nil, RetryPolicy{}, time.Hour, nil)

	payload, _ := json.Marshal(events.BookingEventPayload{BookingID: 2, State: "CONTATTARE"})
	if err := w.Handle(&events.Event{Type: events.EventBookingCreated, Payload: payload}); err != nil {
		t.Fatalf("handle: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if sink.count() != 1 {
		t.Fatalf("expected 1 delivery, got %d", sink.count())
	}
	if _, ok := w.tryLocalQueue(); ok {
		t.Fatalf("expected local queue to be empty")
	}
}

func TestRedisSink(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, "studiobook:events")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	sink := NewRedisSink(client, "studiobook:events", "studiobook:feed")
	sink.feedLimit = 2
	for i := int64(1); i <= 3; i++ {
		msg := models.OutboxMessage{ID: i, EventType: events.EventBookingCreated, Payload: `{"booking_id":1}`}
		if err := sink.Deliver(ctx, msg); err != nil {
			t.Fatalf("deliver: %v", err)
		}
	}

	select {
	case m := <-sub.Channel():
		var n Notification
		if err := json.Unmarshal([]byte(m.Payload), &n); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if n.ID != 1 || n.Type != events.EventBookingCreated {
			t.Fatalf("unexpected notification %+v", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no message published")
	}

	n, err := client.LLen(ctx, "studiobook:feed").Result()
	if err != nil || n != 2 {
		t.Fatalf("expected feed capped at 2, got %d (%v)", n, err)
	}
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}
	d1 := policy.NextDelay(1)
	d2 := policy.NextDelay(2)
	d3 := policy.NextDelay(5)

	if d1 != time.Second {
		t.Fatalf("attempt1 expected 1s, got %s", d1)
	}
	if d2 != 2*time.Second {
		t.Fatalf("attempt2 expected 2s, got %s", d2)
	}
	if d3 != 5*time.Second {
		t.Fatalf("attempt5 expected capped 5s, got %s", d3)
	}
}

func TestRetryPolicyExhausted(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3}
	if policy.Exhausted(2) || !policy.Exhausted(3) {
		t.Fatalf("expected exhaustion exactly at attempt 3")
	}
	if (RetryPolicy{}).Exhausted(100) {
		t.Fatalf("zero MaxRetries must never give up")
	}
	if d := (RetryPolicy{InitialDelay: time.Minute}).NextDelay(50); d != maxBackoff {
		t.Fatalf("expected uncapped policy to stop at %s, got %s", maxBackoff, d)
	}
	if d := (RetryPolicy{}).NextDelay(0); d != time.Second {
		t.Fatalf("expected default 1s, got %s", d)
	}
}
