package queue

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/spanner"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
)

// Schema is the DDL for the durable queue table.
var Schema = []string{
	`CREATE TABLE QueueMessages (
		MessageId    STRING(36) NOT NULL,
		TaskId       STRING(36) NOT NULL,
		JobId        STRING(36) NOT NULL,
		AccountId    STRING(36) NOT NULL,
		Deliveries   INT64 NOT NULL,
		VisibleAt    TIMESTAMP NOT NULL,
		Receipt      STRING(36),
		DeadLettered BOOL NOT NULL,
		CreatedAt    TIMESTAMP NOT NULL,
	) PRIMARY KEY (MessageId)`,
	`CREATE INDEX QueueMessagesByVisibility ON QueueMessages(DeadLettered, VisibleAt)`,
}

var queueColumns = []string{
	"MessageId", "TaskId", "JobId", "AccountId", "Deliveries", "VisibleAt", "Receipt", "DeadLettered", "CreatedAt",
}

// Spanner is a durable Queue stored in a Spanner table. Messages are claimed
// inside read-write transactions so concurrent workers never receive the
// same delivery.
type Spanner struct {
	client        *spanner.Client
	maxDeliveries int
}

var _ Queue = (*Spanner)(nil)

// NewSpanner returns a queue over the QueueMessages table.
func NewSpanner(client *spanner.Client, maxDeliveries int) *Spanner {
	if maxDeliveries <= 0 {
		maxDeliveries = DefaultMaxDeliveries
	}
	return &Spanner{client: client, maxDeliveries: maxDeliveries}
}

func (q *Spanner) Enqueue(ctx context.Context, msg Message, delay time.Duration) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	_, err := q.client.Apply(ctx, []*spanner.Mutation{
		spanner.InsertOrUpdate("QueueMessages", queueColumns, []interface{}{
			msg.ID, msg.TaskID, msg.JobID, msg.AccountID, int64(msg.Deliveries), now.Add(delay), nil, false, now,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue message: %w", err)
	}
	return nil
}

func (q *Spanner) Receive(ctx context.Context, max int, visibility time.Duration) ([]Message, error) {
	var out []Message
	_, err := q.client.ReadWriteTransaction(ctx, func(ctx context.Context, txn *spanner.ReadWriteTransaction) error {
		out = out[:0]
		now := time.Now().UTC()

		stmt := spanner.Statement{
			SQL: `SELECT MessageId, TaskId, JobId, AccountId, Deliveries
			      FROM QueueMessages@{FORCE_INDEX=QueueMessagesByVisibility}
			      WHERE DeadLettered = false AND VisibleAt <= @now
			      ORDER BY VisibleAt
			      LIMIT @max`,
			Params: map[string]interface{}{"now": now, "max": int64(max)},
		}
		iter := txn.Query(ctx, stmt)
		defer iter.Stop()

		var mutations []*spanner.Mutation
		for {
			row, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return fmt.Errorf("failed to iterate queue: %w", err)
			}

			var msg Message
			var deliveries int64
			if err := row.Columns(&msg.ID, &msg.TaskID, &msg.JobID, &msg.AccountID, &deliveries); err != nil {
				return fmt.Errorf("failed to parse queue row: %w", err)
			}

			if int(deliveries) >= q.maxDeliveries {
				mutations = append(mutations, spanner.Update("QueueMessages",
					[]string{"MessageId", "DeadLettered"},
					[]interface{}{msg.ID, true},
				))
				continue
			}

			msg.Deliveries = int(deliveries) + 1
			msg.receipt = uuid.New().String()
			mutations = append(mutations, spanner.Update("QueueMessages",
				[]string{"MessageId", "Deliveries", "VisibleAt", "Receipt"},
				[]interface{}{msg.ID, int64(msg.Deliveries), now.Add(visibility), msg.receipt},
			))
			out = append(out, msg)
		}

		if len(mutations) == 0 {
			return nil
		}
		return txn.BufferWrite(mutations)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive messages: %w", err)
	}
	return out, nil
}

func (q *Spanner) Ack(ctx context.Context, msg Message) error {
	return q.withReceipt(ctx, msg, func() *spanner.Mutation {
		return spanner.Delete("QueueMessages", spanner.Key{msg.ID})
	})
}

func (q *Spanner) Retry(ctx context.Context, msg Message, delay time.Duration) error {
	return q.withReceipt(ctx, msg, func() *spanner.Mutation {
		return spanner.Update("QueueMessages",
			[]string{"MessageId", "VisibleAt", "Receipt"},
			[]interface{}{msg.ID, time.Now().UTC().Add(delay), nil},
		)
	})
}

// withReceipt applies the mutation only if msg still holds the current receipt.
func (q *Spanner) withReceipt(ctx context.Context, msg Message, mutation func() *spanner.Mutation) error {
	_, err := q.client.ReadWriteTransaction(ctx, func(ctx context.Context, txn *spanner.ReadWriteTransaction) error {
		row, err := txn.ReadRow(ctx, "QueueMessages", spanner.Key{msg.ID}, []string{"Receipt"})
		if err != nil {
			return err
		}
		var receipt spanner.NullString
		if err := row.Columns(&receipt); err != nil {
			return fmt.Errorf("failed to parse receipt: %w", err)
		}
		if !receipt.Valid || receipt.StringVal != msg.receipt {
			return ErrReceiptMismatch
		}
		return txn.BufferWrite([]*spanner.Mutation{mutation()})
	})
	if spanner.ErrCode(err) == codes.NotFound {
		return nil
	}
	return err
}

// ListDeadLetters returns messages that exceeded the delivery limit.
func (q *Spanner) ListDeadLetters(ctx context.Context, limit int) ([]Message, error) {
	stmt := spanner.Statement{
		SQL: `SELECT MessageId, TaskId, JobId, AccountId, Deliveries
		      FROM QueueMessages WHERE DeadLettered = true ORDER BY CreatedAt LIMIT @limit`,
		Params: map[string]interface{}{"limit": int64(limit)},
	}
	iter := q.client.Single().Query(ctx, stmt)
	defer iter.Stop()

	var out []Message
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate dead letters: %w", err)
		}
		var msg Message
		var deliveries int64
		if err := row.Columns(&msg.ID, &msg.TaskID, &msg.JobID, &msg.AccountID, &deliveries); err != nil {
			return nil, fmt.Errorf("failed to parse dead letter: %w", err)
		}
		msg.Deliveries = int(deliveries)
		out = append(out, msg)
	}
	return out, nil
}
