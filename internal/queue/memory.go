package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryItem struct {
	msg       Message
	visibleAt time.Time
	receipt   string
}

// Memory is an in-process Queue for single-node deployments and tests.
type Memory struct {
	mu            sync.Mutex
	items         map[string]*memoryItem
	dead          []Message
	maxDeliveries int
	now           func() time.Time
}

var _ Queue = (*Memory)(nil)

// NewMemory returns an empty in-memory queue.
func NewMemory(maxDeliveries int) *Memory {
	if maxDeliveries <= 0 {
		maxDeliveries = DefaultMaxDeliveries
	}
	return &Memory{
		items:         make(map[string]*memoryItem),
		maxDeliveries: maxDeliveries,
		now:           time.Now,
	}
}

func (q *Memory) Enqueue(ctx context.Context, msg Message, delay time.Duration) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.receipt = ""

	q.mu.Lock()
	defer q.mu.Unlock()
	q.items[msg.ID] = &memoryItem{msg: msg, visibleAt: q.now().Add(delay)}
	return nil
}

func (q *Memory) Receive(ctx context.Context, max int, visibility time.Duration) ([]Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var ready []*memoryItem
	for _, it := range q.items {
		if !it.visibleAt.After(now) {
			ready = append(ready, it)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].visibleAt.Before(ready[j].visibleAt) })

	var out []Message
	for _, it := range ready {
		if len(out) >= max {
			break
		}
		if it.msg.Deliveries >= q.maxDeliveries {
			delete(q.items, it.msg.ID)
			q.dead = append(q.dead, it.msg)
			continue
		}
		it.msg.Deliveries++
		it.receipt = uuid.New().String()
		it.visibleAt = now.Add(visibility)

		msg := it.msg
		msg.receipt = it.receipt
		out = append(out, msg)
	}
	return out, nil
}

func (q *Memory) Ack(ctx context.Context, msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	it, ok := q.items[msg.ID]
	if !ok {
		return nil
	}
	if it.receipt != msg.receipt {
		return ErrReceiptMismatch
	}
	delete(q.items, msg.ID)
	return nil
}

func (q *Memory) Retry(ctx context.Context, msg Message, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	it, ok := q.items[msg.ID]
	if !ok || it.receipt != msg.receipt {
		return ErrReceiptMismatch
	}
	it.receipt = ""
	it.visibleAt = q.now().Add(delay)
	return nil
}

// ListDeadLetters returns messages that exceeded the delivery limit.
func (q *Memory) ListDeadLetters(ctx context.Context, limit int) ([]Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if limit <= 0 || limit > len(q.dead) {
		limit = len(q.dead)
	}
	out := make([]Message, limit)
	copy(out, q.dead[:limit])
	return out, nil
}

// Len returns the number of messages not yet acknowledged.
func (q *Memory) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
