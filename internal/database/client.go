package database

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/spanner"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
)

const maxConflictRetries = 10

// Client is a Store backed by Cloud Spanner.
type Client struct {
	client *spanner.Client
}

var _ Store = (*Client)(nil)

// NewClient connects to projects/<project>/instances/<instance>/databases/<database>.
func NewClient(ctx context.Context, projectID, instance, database string) (*Client, error) {
	db := DatabasePath(projectID, instance, database)
	client, err := spanner.NewClient(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to create spanner client: %w", err)
	}
	return &Client{client: client}, nil
}

// DatabasePath returns the fully qualified Spanner database name.
func DatabasePath(projectID, instance, database string) string {
	return fmt.Sprintf("projects/%s/instances/%s/databases/%s", projectID, instance, database)
}

// Spanner exposes the underlying client for components sharing the database.
func (c *Client) Spanner() *spanner.Client {
	return c.client
}

// Close releases the session pool.
func (c *Client) Close() error {
	c.client.Close()
	return nil
}

// RunInTransaction runs fn inside a Spanner read-write transaction. Aborts
// are retried by the client library; version conflicts are retried here.
func (c *Client) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		_, err = c.client.ReadWriteTransaction(ctx, func(ctx context.Context, txn *spanner.ReadWriteTransaction) error {
			return fn(ctx, &spannerTx{txn: txn})
		})
		if !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", maxConflictRetries, err)
}

type rowReader interface {
	ReadRow(ctx context.Context, table string, key spanner.Key, columns []string) (*spanner.Row, error)
	Query(ctx context.Context, statement spanner.Statement) *spanner.RowIterator
}

func readOne[T any](ctx context.Context, r rowReader, table, id string, columns []string) (*T, error) {
	row, err := r.ReadRow(ctx, table, spanner.Key{id}, columns)
	if err != nil {
		if spanner.ErrCode(err) == codes.NotFound {
			return nil, fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}
	var out T
	if err := row.ToStruct(&out); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", table, err)
	}
	return &out, nil
}

func queryAll[T any](ctx context.Context, r rowReader, stmt spanner.Statement) ([]*T, error) {
	iter := r.Query(ctx, stmt)
	defer iter.Stop()

	var out []*T
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate rows: %w", err)
		}

		var item T
		if err := row.ToStruct(&item); err != nil {
			return nil, fmt.Errorf("failed to parse row: %w", err)
		}
		out = append(out, &item)
	}
	return out, nil
}

func queryCount(ctx context.Context, r rowReader, stmt spanner.Statement) (int64, error) {
	iter := r.Query(ctx, stmt)
	defer iter.Stop()

	row, err := iter.Next()
	if err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	var n int64
	if err := row.Columns(&n); err != nil {
		return 0, fmt.Errorf("failed to parse count: %w", err)
	}
	return n, nil
}
