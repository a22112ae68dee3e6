// Package relay drains one named stream as a member of a fixed consumer
// group and pushes each entry to a downstream HTTP sink. An entry is
// acknowledged only after the sink confirms acceptance; everything else
// stays pending and is redelivered, giving at-least-once delivery. The
// sink must therefore be idempotent or deduplicate by event id.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/adaptai/edge/internal/eventlog"
)

type Runner struct {
	log      *slog.Logger
	consumer eventlog.Consumer
	sink     Sink
	metrics  *Metrics

	// fetchErrDelay paces the loop after a failed read so a broken log
	// connection does not spin.
	fetchErrDelay time.Duration
}

func NewRunner(log *slog.Logger, consumer eventlog.Consumer, sink Sink, metrics *Metrics) *Runner {
	return &Runner{
		log:           log,
		consumer:      consumer,
		sink:          sink,
		metrics:       metrics,
		fetchErrDelay: 5 * time.Second,
	}
}

// Run consumes until ctx is cancelled. In-flight deliveries are waited for
// before returning so no ack is lost to shutdown.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.consumer.EnsureGroup(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if ctx.Err() != nil {
			return nil
		}

		entries, err := r.consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.metrics.fetchErrorsTotal.Inc()
			r.log.Error("fetch_failed", slog.String("err", err.Error()))

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.fetchErrDelay):
			}
			continue
		}

		for _, entry := range entries {
			r.metrics.fetchedTotal.Inc()

			// One goroutine per entry so a slow sink call cannot
			// stall the polling loop. The entry's own goroutine is
			// the only place its ack may happen.
			wg.Add(1)
			go func(e eventlog.Entry) {
				defer wg.Done()
				r.process(ctx, e)
			}(entry)
		}
	}
}

func (r *Runner) process(ctx context.Context, e eventlog.Entry) {
	defer func() {
		if rec := recover(); rec != nil {
			// A broken entry must not take the relay down; the
			// entry stays pending and is redelivered.
			r.log.Error("entry_panic", slog.String("entry_id", e.ID), slog.Any("panic", rec))
		}
	}()

	doc, err := Normalize(e.Fields)
	if errors.Is(err, ErrResultMalformed) {
		r.metrics.normalizeFailuresTotal.Inc()
		r.log.Error("payload_malformed", slog.String("entry_id", e.ID))
		// Delivered anyway, carrying the fallback error marker.
	}

	if err := r.sink.Deliver(ctx, doc); err != nil {
		// No ack: the entry remains pending and the log redelivers
		// it on a later pass.
		r.metrics.deliveryFailuresTotal.Inc()
		r.log.Error("sink_post_failed", slog.String("entry_id", e.ID), slog.String("err", err.Error()))
		return
	}
	r.metrics.deliveredTotal.Inc()

	if err := r.consumer.Ack(ctx, e); err != nil {
		// Sink accepted but the ack failed; redelivery will produce a
		// duplicate, which downstream tolerates.
		r.metrics.ackFailuresTotal.Inc()
		r.log.Error("ack_failed", slog.String("entry_id", e.ID), slog.String("err", err.Error()))
		return
	}
	r.metrics.ackedTotal.Inc()
}
