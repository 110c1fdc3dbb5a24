package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestQueue(maxDeliveries int) (*Memory, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	q := NewMemory(maxDeliveries)
	q.now = clock.now
	return q, clock
}

func TestReceiveHidesMessageUntilVisibilityExpires(t *testing.T) {
	q, clock := newTestQueue(0)
	ctx := context.Background()

	if err := q.Enqueue(ctx, Message{TaskID: "t1"}, 0); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	msgs, _ := q.Receive(ctx, 10, time.Minute)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Deliveries != 1 {
		t.Errorf("Deliveries = %d, want 1", msgs[0].Deliveries)
	}

	if again, _ := q.Receive(ctx, 10, time.Minute); len(again) != 0 {
		t.Fatalf("message redelivered while invisible")
	}

	clock.advance(2 * time.Minute)
	redelivered, _ := q.Receive(ctx, 10, time.Minute)
	if len(redelivered) != 1 || redelivered[0].Deliveries != 2 {
		t.Fatalf("expected redelivery with Deliveries=2, got %+v", redelivered)
	}

	// The first delivery's receipt is stale now.
	if err := q.Ack(ctx, msgs[0]); !errors.Is(err, ErrReceiptMismatch) {
		t.Errorf("stale ack error = %v, want ErrReceiptMismatch", err)
	}
	if err := q.Ack(ctx, redelivered[0]); err != nil {
		t.Errorf("Ack failed: %v", err)
	}
	if q.Len() != 0 {
		t.Errorf("Len = %d after ack", q.Len())
	}
}

func TestDelayedEnqueue(t *testing.T) {
	q, clock := newTestQueue(0)
	ctx := context.Background()

	q.Enqueue(ctx, Message{TaskID: "t1"}, 30*time.Second)
	if msgs, _ := q.Receive(ctx, 10, time.Minute); len(msgs) != 0 {
		t.Fatal("delayed message delivered early")
	}
	clock.advance(30 * time.Second)
	if msgs, _ := q.Receive(ctx, 10, time.Minute); len(msgs) != 1 {
		t.Fatal("delayed message not delivered")
	}
}

func TestRetryAndDeadLetter(t *testing.T) {
	q, clock := newTestQueue(2)
	ctx := context.Background()
	q.Enqueue(ctx, Message{TaskID: "t1"}, 0)

	for i := 0; i < 2; i++ {
		msgs, _ := q.Receive(ctx, 1, time.Minute)
		if len(msgs) != 1 {
			t.Fatalf("delivery %d: got %d messages", i+1, len(msgs))
		}
		if err := q.Retry(ctx, msgs[0], time.Second); err != nil {
			t.Fatalf("Retry failed: %v", err)
		}
		clock.advance(time.Second)
	}

	if msgs, _ := q.Receive(ctx, 1, time.Minute); len(msgs) != 0 {
		t.Fatalf("message delivered past max deliveries")
	}
	dead, _ := q.ListDeadLetters(ctx, 0)
	if len(dead) != 1 || dead[0].TaskID != "t1" {
		t.Errorf("dead letters = %+v", dead)
	}
}

func TestReceiveRespectsMax(t *testing.T) {
	q, _ := newTestQueue(0)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		q.Enqueue(ctx, Message{}, 0)
	}
	msgs, _ := q.Receive(ctx, 3, time.Minute)
	if len(msgs) != 3 {
		t.Errorf("got %d messages, want 3", len(msgs))
	}
}
