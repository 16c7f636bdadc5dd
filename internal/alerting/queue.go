package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/kozaktomas/reunite/internal/constants"
	"github.com/kozaktomas/reunite/internal/logging"
	"github.com/kozaktomas/reunite/internal/metrics"
)

// ErrQueueStopped is returned by Stop when the queue is not running.
var ErrQueueStopped = errors.New("dispatch queue is not running")

// Handler delivers one alert.
type Handler interface {
	Dispatch(ctx context.Context, alertID int64) error
}

// RetryConfig controls redelivery of failed alerts.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns the retry policy used when none is configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  constants.DefaultDispatchMaxAttempts,
		InitialDelay: constants.DefaultDispatchRetryDelay,
		MaxDelay:     time.Minute,
		Multiplier:   2,
	}
}

// delay returns the backoff before the given retry (1-based).
func (c RetryConfig) delay(retry int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(retry-1))
	if c.MaxDelay > 0 && d > float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return time.Duration(d)
}

// QueueOptions configures a Queue.
type QueueOptions struct {
	Workers int
	Size    int
	Retry   RetryConfig
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Queue delivers alerts on background workers so detection never waits on
// the network. Delivery is at-least-once within the retry budget; alerts that
// exhaust it stay undispatched in the store.
type Queue struct {
	handler Handler
	opts    QueueOptions
	log     *slog.Logger

	mu      sync.RWMutex
	jobs    chan int64
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewQueue creates a stopped queue.
func NewQueue(handler Handler, opts QueueOptions) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = constants.DefaultDispatchWorkers
	}
	if opts.Size <= 0 {
		opts.Size = constants.DefaultDispatchQueueSize
	}
	def := DefaultRetryConfig()
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = def.MaxAttempts
	}
	if opts.Retry.InitialDelay <= 0 {
		opts.Retry.InitialDelay = def.InitialDelay
	}
	if opts.Retry.MaxDelay <= 0 {
		opts.Retry.MaxDelay = def.MaxDelay
	}
	if opts.Retry.Multiplier < 1 {
		opts.Retry.Multiplier = def.Multiplier
	}
	return &Queue{handler: handler, opts: opts, log: logging.OrDiscard(opts.Logger)}
}

// Start launches the workers. It is a no-op when already running.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}

	ctx, q.cancel = context.WithCancel(ctx)
	q.jobs = make(chan int64, q.opts.Size)
	q.running = true

	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, q.jobs)
	}
	q.log.Info("dispatch queue started", "workers", q.opts.Workers, "size", q.opts.Size)
}

// Enqueue schedules delivery without blocking. It returns false when the
// queue is stopped or full; the alert then stays undispatched in the store.
func (q *Queue) Enqueue(alertID int64) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.running {
		q.log.Warn("dispatch queue not running, alert left undispatched", "alert_id", alertID)
		q.opts.Metrics.RecordDispatch(metrics.DispatchDropped)
		return false
	}

	select {
	case q.jobs <- alertID:
		q.opts.Metrics.SetQueueLength(len(q.jobs))
		return true
	default:
		q.log.Warn("dispatch queue full, alert left undispatched", "alert_id", alertID, "size", q.opts.Size)
		q.opts.Metrics.RecordDispatch(metrics.DispatchDropped)
		return false
	}
}

// Len returns the number of alerts waiting for a worker.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.jobs == nil {
		return 0
	}
	return len(q.jobs)
}

// Stop stops accepting alerts and waits up to timeout for queued ones to be
// delivered. After the timeout in-flight deliveries are cancelled.
func (q *Queue) Stop(timeout time.Duration) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return ErrQueueStopped
	}
	q.running = false
	close(q.jobs)
	cancel := q.cancel
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancel()
		q.log.Info("dispatch queue drained")
		return nil
	case <-time.After(timeout):
		cancel()
		<-done
		return fmt.Errorf("dispatch queue did not drain within %s", timeout)
	}
}

func (q *Queue) worker(ctx context.Context, jobs <-chan int64) {
	defer q.wg.Done()
	for id := range jobs {
		q.opts.Metrics.SetQueueLength(len(jobs))
		q.deliver(ctx, id)
	}
}

// deliver runs the handler with exponential backoff between attempts.
func (q *Queue) deliver(ctx context.Context, alertID int64) {
	retry := q.opts.Retry
	var err error
	for attempt := 1; attempt <= retry.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			q.log.Warn("dispatch cancelled", "alert_id", alertID, "attempt", attempt)
			q.opts.Metrics.RecordDispatch(metrics.DispatchFailed)
			return
		}

		err = q.handler.Dispatch(ctx, alertID)
		if err == nil {
			return
		}
		if IsPermanent(err) {
			q.log.Error("alert dispatch failed permanently", "alert_id", alertID, "error", err)
			q.opts.Metrics.RecordDispatch(metrics.DispatchFailed)
			return
		}
		if attempt == retry.MaxAttempts {
			break
		}

		wait := retry.delay(attempt)
		q.log.Warn("alert dispatch failed, retrying",
			"alert_id", alertID, "attempt", attempt, "max_attempts", retry.MaxAttempts,
			"retry_in", wait, "error", err)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
	}

	q.log.Error("alert dispatch gave up", "alert_id", alertID, "attempts", retry.MaxAttempts, "error", err)
	q.opts.Metrics.RecordDispatch(metrics.DispatchFailed)
}
