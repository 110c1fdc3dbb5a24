// Package queue delivers task messages to executors with at-least-once,
// visibility-timeout semantics.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrReceiptMismatch is returned by Ack and Retry when the message was
// redelivered to another consumer after its visibility timeout lapsed.
var ErrReceiptMismatch = errors.New("message receipt no longer valid")

// DefaultMaxDeliveries is the delivery count after which a message is
// moved to the dead-letter set.
const DefaultMaxDeliveries = 10

// Message identifies one upload task.
type Message struct {
	ID        string `json:"id"`
	TaskID    string `json:"taskId"`
	JobID     string `json:"jobId"`
	AccountID string `json:"accountId"`

	// Deliveries counts how many times the message has been received.
	Deliveries int `json:"deliveries"`

	receipt string
}

// Receipt identifies this particular delivery.
func (m Message) Receipt() string {
	return m.receipt
}

// Queue is the message transport between the decomposer and executors.
type Queue interface {
	// Enqueue makes msg visible after delay.
	Enqueue(ctx context.Context, msg Message, delay time.Duration) error
	// Receive returns up to max visible messages and hides them for visibility.
	Receive(ctx context.Context, max int, visibility time.Duration) ([]Message, error)
	// Ack permanently removes a received message.
	Ack(ctx context.Context, msg Message) error
	// Retry makes a received message visible again after delay.
	Retry(ctx context.Context, msg Message, delay time.Duration) error
}

// DeadLetterLister is implemented by queues that keep dead letters.
type DeadLetterLister interface {
	ListDeadLetters(ctx context.Context, limit int) ([]Message, error)
}
