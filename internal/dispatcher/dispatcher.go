// Package dispatcher pulls task messages off the queue and hands them to a
// handler with bounded concurrency and a global upload rate.
package dispatcher

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/alphauslabs/buckshot/internal/queue"
)

// Handler processes one message. A nil error acknowledges it.
type Handler interface {
	Handle(ctx context.Context, msg queue.Message) error
}

// Options tunes polling and throughput.
type Options struct {
	Concurrency  int
	BatchSize    int
	PollInterval time.Duration
	// Visibility hides a received message from other consumers while it is
	// being handled.
	Visibility time.Duration
	// UploadsPerSecond caps handler starts across the worker. Zero means
	// unlimited.
	UploadsPerSecond float64
	// RetryBaseDelay and RetryMaxDelay bound redelivery of failed messages.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// Dispatcher polls the queue until stopped.
type Dispatcher struct {
	queue   queue.Queue
	handler Handler
	limiter *rate.Limiter
	opts    Options

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(q queue.Queue, h Handler, opts Options) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = opts.Concurrency
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	limit := rate.Inf
	if opts.UploadsPerSecond > 0 {
		limit = rate.Limit(opts.UploadsPerSecond)
	}
	return &Dispatcher{
		queue:   q,
		handler: h,
		limiter: rate.NewLimiter(limit, opts.Concurrency),
		opts:    opts,
		done:    make(chan struct{}),
	}
}

// Start polls in the background. Cancelling ctx aborts in-flight handlers;
// Stop lets them finish.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		log.Printf("Dispatcher started (concurrency %d, batch %d)", d.opts.Concurrency, d.opts.BatchSize)

		ticker := time.NewTicker(d.opts.PollInterval)
		defer ticker.Stop()

		for {
			// Keep draining while batches come back full.
			for {
				n, err := d.Poll(ctx)
				if err != nil {
					log.Printf("Failed to poll queue: %v", err)
					break
				}
				if n < d.opts.BatchSize || d.stopped() {
					break
				}
			}

			select {
			case <-ctx.Done():
				log.Println("Dispatcher stopped: context cancelled")
				return
			case <-d.done:
				log.Println("Dispatcher stopped")
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop signals the poll loop to exit and waits for in-flight messages.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
	})
	d.wg.Wait()
}

func (d *Dispatcher) stopped() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

// Poll receives one batch, handles every message and returns the batch size.
func (d *Dispatcher) Poll(ctx context.Context) (int, error) {
	msgs, err := d.queue.Receive(ctx, d.opts.BatchSize, d.opts.Visibility)
	if err != nil {
		return 0, err
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	g := new(errgroup.Group)
	g.SetLimit(d.opts.Concurrency)
	for _, msg := range msgs {
		g.Go(func() error {
			d.dispatch(ctx, msg)
			return nil
		})
	}
	g.Wait()
	return len(msgs), nil
}

func (d *Dispatcher) dispatch(ctx context.Context, msg queue.Message) {
	if err := d.limiter.Wait(ctx); err != nil {
		d.retry(ctx, msg, err)
		return
	}

	if err := d.handler.Handle(ctx, msg); err != nil {
		d.retry(ctx, msg, err)
		return
	}
	if err := d.queue.Ack(ctx, msg); err != nil {
		log.Printf("Failed to ack message %s (task %s): %v", msg.ID, msg.TaskID, err)
	}
}

func (d *Dispatcher) retry(ctx context.Context, msg queue.Message, cause error) {
	delay := queue.Backoff(d.opts.RetryBaseDelay, d.opts.RetryMaxDelay, int64(msg.Deliveries))
	log.Printf("Message %s (task %s) failed on delivery %d, retrying in %s: %v",
		msg.ID, msg.TaskID, msg.Deliveries, delay.Round(time.Millisecond), cause)
	if err := d.queue.Retry(context.WithoutCancel(ctx), msg, delay); err != nil {
		log.Printf("Failed to retry message %s: %v", msg.ID, err)
	}
}
