// Package outbox mirrors committed ledger writes into the off-chain index.
// Mirroring is asynchronous: the write path enqueues a task after the ledger
// commit and returns, and the worker applies tasks to the index with retries.
// The index store's block-sequence guard makes replays and out-of-order
// arrivals harmless, so the worker never has to coordinate between tasks.
package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"landledger/internal/audit"
	"landledger/internal/audit/publisher"
	"landledger/internal/domain"
	"landledger/internal/index"
	"landledger/internal/platform/metrics"
)

// Kind tags what ledger mutation a task mirrors.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Task carries one committed ledger state to the index.
type Task struct {
	Kind        Kind
	Record      domain.LandRecord
	BlockNumber uint64
}

// Option configures a Worker.
type Option func(*Worker)

// WithRetryLimit caps the apply attempts per task.
func WithRetryLimit(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.retryLimit = n
		}
	}
}

// WithRetryInterval sets the initial backoff interval, mainly for tests.
func WithRetryInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.retryInterval = d
		}
	}
}

// WithAudit emits a trail event when a task is abandoned.
func WithAudit(pub *publisher.Publisher) Option {
	return func(w *Worker) { w.audit = pub }
}

// Worker consumes mirror tasks from a buffered inbox and applies them to the
// index store. A task that exhausts its retries marks the row failed so
// operators can requeue it; the ledger commit is never rolled back.
type Worker struct {
	store   index.Store
	inbox   chan Task
	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   *publisher.Publisher

	retryLimit    int
	retryInterval time.Duration
}

func NewWorker(store index.Store, buffer int, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Worker {
	if buffer <= 0 {
		buffer = 256
	}
	w := &Worker{
		store:         store,
		inbox:         make(chan Task, buffer),
		logger:        logger,
		metrics:       m,
		retryLimit:    5,
		retryInterval: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Enqueue hands a committed write to the worker. It blocks until buffer space
// is available or the context is cancelled; a committed ledger write must not
// be silently dropped.
func (w *Worker) Enqueue(ctx context.Context, task Task) error {
	select {
	case w.inbox <- task:
		w.observeBacklog()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes tasks until the context is cancelled, then drains whatever
// the inbox still holds. Every queued task mirrors a committed ledger write,
// so cancellation must not strand it.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain(ctx)
			return ctx.Err()
		case task := <-w.inbox:
			w.observeBacklog()
			w.process(ctx, task)
		}
	}
}

// drain applies the remaining inbox under a fresh deadline; the parent
// context is already cancelled at this point.
func (w *Worker) drain(ctx context.Context) {
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	for {
		select {
		case task := <-w.inbox:
			w.observeBacklog()
			w.process(drainCtx, task)
		default:
			return
		}
	}
}

func (w *Worker) process(ctx context.Context, task Task) {
	err := w.apply(ctx, task)
	if err == nil {
		w.metrics.MirrorTasks.WithLabelValues(string(task.Kind), "ok").Inc()
		w.confirm(ctx, task)
		return
	}
	if ctx.Err() != nil {
		return
	}

	w.metrics.MirrorTasks.WithLabelValues(string(task.Kind), "failed").Inc()
	w.metrics.MirrorFailed.Inc()
	w.logger.Error("mirror task abandoned after retries",
		"kind", task.Kind,
		"property_id", task.Record.PropertyID,
		"block", task.BlockNumber,
		"error", err,
	)

	// Flag the row so reads report the divergence and operators can requeue.
	// Deletes have no row left to flag.
	if task.Kind != KindDelete {
		if serr := w.store.SetVerification(ctx, task.Record.PropertyID, domain.VerificationFailed); serr != nil && !errors.Is(serr, index.ErrNotFound) {
			w.logger.Error("failed to flag unmirrored row",
				"property_id", task.Record.PropertyID, "error", serr)
		}
	}
	w.metrics.ReconcileBacklog.Inc()

	if w.audit != nil {
		_ = w.audit.Emit(ctx, audit.Event{
			Action:     audit.ActionMirrorFailed,
			Actor:      "outbox-worker",
			PropertyID: task.Record.PropertyID,
			Outcome:    "abandoned",
			Reason:     err.Error(),
		})
	}
}

// confirm promotes a freshly mirrored row to verified. The mirrored payload
// is the ledger's own committed record, so once it lands the two stores agree
// by construction. Stale tasks the sequence guard dropped leave the row on
// whatever newer state already holds it, hence the block check.
func (w *Worker) confirm(ctx context.Context, task Task) {
	if task.Kind == KindDelete {
		return
	}
	row, err := w.store.GetByKey(ctx, task.Record.PropertyID)
	if err != nil || row.BlockNumber != task.BlockNumber {
		return
	}
	if err := w.store.SetVerification(ctx, task.Record.PropertyID, domain.VerificationVerified); err != nil && !errors.Is(err, index.ErrNotFound) {
		w.logger.Warn("mirrored row left pending",
			"property_id", task.Record.PropertyID, "error", err)
	}
}

func (w *Worker) apply(ctx context.Context, task Task) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = w.retryInterval
	retries := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(w.retryLimit-1)), ctx)

	return backoff.Retry(func() error {
		err := w.applyOnce(ctx, task)
		if err == nil {
			return nil
		}
		// Only store outages are worth retrying.
		if errors.Is(err, index.ErrUnavailable) {
			return err
		}
		return backoff.Permanent(err)
	}, retries)
}

func (w *Worker) applyOnce(ctx context.Context, task Task) error {
	patch := index.Patch{
		Record:      task.Record,
		BlockNumber: task.BlockNumber,
		Delete:      task.Kind == KindDelete,
	}
	if task.Kind == KindCreate {
		err := w.store.Insert(ctx, task.Record, task.BlockNumber)
		if err == nil || errors.Is(err, index.ErrDuplicateKey) {
			// A duplicate means a replayed task; the seq guard resolves it.
			if err != nil {
				return w.store.Apply(ctx, patch)
			}
			return nil
		}
		return err
	}
	return w.store.Apply(ctx, patch)
}

func (w *Worker) observeBacklog() {
	w.metrics.MirrorQueueDepth.Set(float64(len(w.inbox)))
}
