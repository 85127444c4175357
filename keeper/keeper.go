// Package keeper runs the permissionless renewal role in the background.
//
// A Worker periodically lists subscriptions whose payment is due and renews
// each one, earning the plan's keeper reward for its account. Failures on
// one subscription never stop a sweep.
package keeper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/plan"
	"github.com/xraph/cadence/subscription"
	"github.com/xraph/cadence/types"
)

// Defaults for a Worker.
const (
	DefaultInterval  = time.Minute
	DefaultMaxCycles = 12
	DefaultBatchSize = 100
)

// maxBackoffShift caps retry backoff at 64 intervals.
const maxBackoffShift = 6

// Engine is the subset of *cadence.Engine the worker drives.
type Engine interface {
	Now() time.Time
	ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error)
	Renew(ctx context.Context, keeper types.Account, planID plan.ID, subscriber types.Account, maxCycles uint32) (*subscription.Renewal, error)
}

// retryState tracks a subscription whose renewal keeps failing.
type retryState struct {
	failures int
	until    time.Time
}

// Sweep summarizes one pass over due subscriptions.
type Sweep struct {
	ID        id.SweepID    `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
	Scanned   int           `json:"scanned"`
	Renewed   int           `json:"renewed"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Deferred  int           `json:"deferred"`
	Cycles    uint64        `json:"cycles"`
	Reward    types.Amount  `json:"reward"`
}

// Worker renews due subscriptions on a fixed interval.
type Worker struct {
	engine    Engine
	account   types.Account
	interval  time.Duration
	maxCycles uint32
	batchSize int
	clock     clock.WithTicker
	logger    *slog.Logger
	onSweep   []func(context.Context, *Sweep)

	mu       sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup

	// sweepMu serializes sweeps and guards backoff.
	sweepMu sync.Mutex
	backoff map[subscription.Key]retryState
}

// Option configures a Worker.
type Option func(*Worker)

// WithInterval sets the time between sweeps.
func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithMaxCycles caps the cycles collected per subscription per renewal.
func WithMaxCycles(n uint32) Option {
	return func(w *Worker) {
		if n > 0 {
			w.maxCycles = n
		}
	}
}

// WithBatchSize caps the subscriptions renewed per sweep.
func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithClock sets the ticker source.
func WithClock(c clock.WithTicker) Option {
	return func(w *Worker) { w.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// WithSweepHook registers fn to run after every sweep.
func WithSweepHook(fn func(context.Context, *Sweep)) Option {
	return func(w *Worker) { w.onSweep = append(w.onSweep, fn) }
}

// New creates a worker that renews on behalf of account.
func New(engine Engine, account types.Account, opts ...Option) *Worker {
	w := &Worker{
		engine:    engine,
		account:   account,
		interval:  DefaultInterval,
		maxCycles: DefaultMaxCycles,
		batchSize: DefaultBatchSize,
		clock:     clock.RealClock{},
		logger:    slog.Default(),
		backoff:   make(map[subscription.Key]retryState),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Account returns the account that collects keeper rewards.
func (w *Worker) Account() types.Account { return w.account }

// Start launches the background loop. It is a no-op if already running.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopChan != nil {
		return nil
	}
	if w.account.IsZero() {
		return errors.New("keeper: account is required")
	}

	stop := make(chan struct{})
	ticker := w.clock.NewTicker(w.interval)
	w.stopChan = stop

	w.wg.Add(1)
	go w.loop(ctx, ticker, stop)

	w.logger.Info("keeper started",
		"account", w.account,
		"interval", w.interval,
		"max_cycles", w.maxCycles,
		"batch_size", w.batchSize,
	)
	return nil
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	stop := w.stopChan
	w.stopChan = nil
	w.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	w.wg.Wait()
	w.logger.Info("keeper stopped", "account", w.account)
}

func (w *Worker) loop(ctx context.Context, ticker clock.Ticker, stop <-chan struct{}) {
	defer w.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C():
			if _, err := w.Sweep(ctx); err != nil {
				w.logger.Error("keeper sweep failed", "error", err)
			}
		}
	}
}

// Sweep attempts up to the batch size of due renewals once, oldest due
// first. Subscriptions whose renewal failed recently are passed over until
// their backoff expires, so non-paying subscribers cannot crowd out the
// rest of the due set.
func (w *Worker) Sweep(ctx context.Context) (*Sweep, error) {
	w.sweepMu.Lock()
	defer w.sweepMu.Unlock()

	start := w.clock.Now()
	sw := &Sweep{
		ID:        id.NewSweepID(),
		StartedAt: start.UTC(),
	}

	dueBy := w.engine.Now()
	attempts, offset := 0, 0

	for attempts < w.batchSize && ctx.Err() == nil {
		page, err := w.engine.ListSubscriptions(ctx, subscription.ListOpts{
			Status: subscription.StatusActive,
			DueBy:  dueBy,
			Limit:  w.batchSize,
			Offset: offset,
		})
		if err != nil {
			if sw.Scanned == 0 {
				return nil, err
			}
			w.logger.Warn("keeper listing failed mid-sweep", "sweep_id", sw.ID, "error", err)
			break
		}

		for _, sub := range page {
			if attempts >= w.batchSize || ctx.Err() != nil {
				break
			}
			sw.Scanned++

			key := sub.Key()
			if st, ok := w.backoff[key]; ok && start.Before(st.until) {
				sw.Deferred++
				offset++
				continue
			}

			attempts++
			rn, err := w.engine.Renew(ctx, w.account, sub.PlanID, sub.Subscriber, w.maxCycles)
			switch {
			case err == nil:
				delete(w.backoff, key)
				sw.Renewed++
				sw.Cycles += rn.Cycles
				sw.Reward = sw.Reward.Add(rn.KeeperReward)
				if !rn.NextDueAt.After(dueBy) {
					// Capped by maxCycles; still due.
					offset++
				}
			case cadence.IsStateError(err):
				// Renewed or canceled since the listing.
				delete(w.backoff, key)
				sw.Skipped++
			default:
				sw.Failed++
				offset++
				until := w.deferRetry(key, start)
				w.logger.Warn("keeper renewal failed",
					"sweep_id", sw.ID,
					"subscriber", sub.Subscriber,
					"plan_id", sub.PlanID,
					"retry_at", until,
					"error", err,
				)
			}
		}

		if len(page) < w.batchSize {
			break
		}
	}

	sw.Elapsed = w.clock.Since(start)

	if sw.Scanned > 0 {
		w.logger.Debug("keeper sweep finished",
			"sweep_id", sw.ID,
			"scanned", sw.Scanned,
			"renewed", sw.Renewed,
			"skipped", sw.Skipped,
			"failed", sw.Failed,
			"deferred", sw.Deferred,
			"cycles", sw.Cycles,
			"reward", sw.Reward,
		)
	}

	for _, fn := range w.onSweep {
		fn(ctx, sw)
	}
	return sw, nil
}

// deferRetry records a failure for key and returns when it may be retried.
// The delay starts at one interval and doubles per consecutive failure.
func (w *Worker) deferRetry(key subscription.Key, now time.Time) time.Time {
	st := w.backoff[key]
	st.failures++
	st.until = now.Add(w.interval << min(st.failures-1, maxBackoffShift))
	w.backoff[key] = st
	return st.until
}
