package fanout

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tapwatch/pkg/logx"
)

const (
	defaultBatchSize     = 3
	defaultBatchInterval = 100 * time.Millisecond
)

type Config struct {
	BatchSize     int
	BatchInterval time.Duration
}

// DeliverFunc sends the dispatch's message to one recipient. The message
// itself is bound into the closure by the caller, keeping the dispatcher
// channel-agnostic.
type DeliverFunc func(ctx context.Context, r Recipient) error

type Dispatcher struct {
	cfg Config
	log logx.Logger
}

func New(cfg Config, log logx.Logger) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BatchInterval <= 0 {
		cfg.BatchInterval = defaultBatchInterval
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{cfg: cfg, log: log}
}

// Dispatch delivers to every recipient in fixed-size batches. Members of a
// batch run concurrently and are all awaited before the next batch starts;
// batch starts are paced at least BatchInterval apart.
//
// Individual failures never abort the run. The returned aggregate always
// accounts for every recipient.
func (d *Dispatcher) Dispatch(ctx context.Context, recipients []Recipient, deliver DeliverFunc, classify Classifier) Aggregate {
	var agg Aggregate
	if len(recipients) == 0 {
		return agg
	}
	if classify == nil {
		classify = func(error) Class { return ClassTransient }
	}

	// Burst 1 so the first batch starts immediately and each subsequent
	// batch waits out the interval.
	limiter := rate.NewLimiter(rate.Every(d.cfg.BatchInterval), 1)

	var mu sync.Mutex
	for start := 0; start < len(recipients); start += d.cfg.BatchSize {
		if err := limiter.Wait(ctx); err != nil {
			// Cancelled mid-dispatch: account for everyone not attempted.
			mu.Lock()
			agg.Errors += len(recipients) - start
			mu.Unlock()
			break
		}

		end := min(start+d.cfg.BatchSize, len(recipients))
		batch := recipients[start:end]

		var wg sync.WaitGroup
		for _, r := range batch {
			wg.Add(1)
			go func(r Recipient) {
				defer wg.Done()
				err := deliver(ctx, r)

				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					agg.Sent++
					return
				}
				switch classify(err) {
				case ClassUnreachable:
					agg.Unreachable++
					agg.Revoked = append(agg.Revoked, r)
				case ClassDropped:
					agg.Dropped++
				default:
					agg.Errors++
					d.log.Error("delivery failed",
						logx.String("recipient", r.RecipientKey()),
						logx.Err(err))
				}
			}(r)
		}
		wg.Wait()
	}

	d.log.Info("fanout finished",
		logx.Int("sent", agg.Sent),
		logx.Int("unreachable", agg.Unreachable),
		logx.Int("errors", agg.Errors),
		logx.Int("dropped", agg.Dropped))
	return agg
}
