package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alphauslabs/buckshot/internal/queue"
)

type fakeHandler struct {
	mu      sync.Mutex
	fail    map[string]int // task ID → remaining failures
	handled map[string]int
	running int
	peak    int
	delay   time.Duration
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{fail: map[string]int{}, handled: map[string]int{}}
}

func (h *fakeHandler) Handle(ctx context.Context, msg queue.Message) error {
	h.mu.Lock()
	h.running++
	if h.running > h.peak {
		h.peak = h.running
	}
	h.mu.Unlock()

	time.Sleep(h.delay)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.running--
	h.handled[msg.TaskID]++
	if h.fail[msg.TaskID] > 0 {
		h.fail[msg.TaskID]--
		return errors.New("boom")
	}
	return nil
}

func (h *fakeHandler) total() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.handled {
		n += c
	}
	return n
}

func enqueue(t *testing.T, q queue.Queue, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		msg := queue.Message{TaskID: fmt.Sprintf("task-%d", i), JobID: "job-1"}
		if err := q.Enqueue(context.Background(), msg, 0); err != nil {
			t.Fatal(err)
		}
	}
}

func TestPollAcksHandledMessages(t *testing.T) {
	q := queue.NewMemory(queue.DefaultMaxDeliveries)
	h := newFakeHandler()
	enqueue(t, q, 3)

	d := New(q, h, Options{Concurrency: 2, BatchSize: 10, Visibility: time.Minute})
	n, err := d.Poll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || h.total() != 3 {
		t.Errorf("polled %d, handled %d; want 3", n, h.total())
	}
	if q.Len() != 0 {
		t.Errorf("queue length = %d, want 0", q.Len())
	}
}

func TestPollRetriesFailedMessages(t *testing.T) {
	q := queue.NewMemory(queue.DefaultMaxDeliveries)
	h := newFakeHandler()
	h.fail["task-0"] = 2
	enqueue(t, q, 1)

	d := New(q, h, Options{Concurrency: 1, BatchSize: 1, Visibility: time.Minute})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := d.Poll(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if got := h.handled["task-0"]; got != 3 {
		t.Errorf("handled %d times, want 3", got)
	}
	if q.Len() != 0 {
		t.Errorf("queue length = %d, want 0", q.Len())
	}
}

func TestPollDeadLettersAfterMaxDeliveries(t *testing.T) {
	q := queue.NewMemory(2)
	h := newFakeHandler()
	h.fail["task-0"] = 10
	enqueue(t, q, 1)

	d := New(q, h, Options{Concurrency: 1, BatchSize: 1, Visibility: time.Minute})
	for i := 0; i < 4; i++ {
		d.Poll(context.Background())
	}
	if got := h.handled["task-0"]; got != 2 {
		t.Errorf("handled %d times, want 2", got)
	}
	dead, _ := q.ListDeadLetters(context.Background(), 0)
	if len(dead) != 1 {
		t.Errorf("dead letters = %d, want 1", len(dead))
	}
}

func TestPollBoundsConcurrency(t *testing.T) {
	q := queue.NewMemory(queue.DefaultMaxDeliveries)
	h := newFakeHandler()
	h.delay = 20 * time.Millisecond
	enqueue(t, q, 8)

	d := New(q, h, Options{Concurrency: 3, BatchSize: 8, Visibility: time.Minute})
	if _, err := d.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.peak > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", h.peak)
	}
	if h.total() != 8 {
		t.Errorf("handled %d, want 8", h.total())
	}
}

func TestStartAndStop(t *testing.T) {
	q := queue.NewMemory(queue.DefaultMaxDeliveries)
	h := newFakeHandler()
	enqueue(t, q, 5)

	d := New(q, h, Options{
		Concurrency:      2,
		BatchSize:        2,
		PollInterval:     10 * time.Millisecond,
		Visibility:       time.Minute,
		UploadsPerSecond: 1000,
	})
	d.Start(context.Background())

	deadline := time.Now().Add(5 * time.Second)
	for q.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	d.Stop()
	d.Stop()

	if q.Len() != 0 || h.total() != 5 {
		t.Errorf("queue length %d, handled %d; want 0 and 5", q.Len(), h.total())
	}
}
