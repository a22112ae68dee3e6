// Package publish decouples request handling from event-log appends. The
// handler hands an event to a bounded queue and moves on; a background
// worker drains the queue into the log. A full queue or a failed append is
// observable (error return, counter, log line) instead of vanishing into a
// forgotten background task.
package publish

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adaptai/edge/internal/eventlog"
)

var (
	ErrQueueFull = errors.New("publish: queue full")
	ErrClosed    = errors.New("publish: publisher closed")
)

type Publisher struct {
	log      *slog.Logger
	producer eventlog.Producer

	queue chan map[string]string

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	appendTimeout time.Duration
}

func New(log *slog.Logger, producer eventlog.Producer, queueSize int) *Publisher {
	if queueSize <= 0 {
		queueSize = 256
	}

	p := &Publisher{
		log:           log,
		producer:      producer,
		queue:         make(chan map[string]string, queueSize),
		appendTimeout: 5 * time.Second,
	}

	p.wg.Add(1)
	go p.drain()

	return p
}

// Publish enqueues a copy of the event without blocking; the caller's map
// is left untouched. The copy gets a generated event_id if the caller did
// not set one, so downstream consumers can deduplicate redeliveries.
func (p *Publisher) Publish(fields map[string]string) error {
	// The read lock spans the send so Close cannot close the queue
	// under an in-flight enqueue.
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	event := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		event[k] = v
	}
	if _, ok := event["event_id"]; !ok {
		event["event_id"] = uuid.NewString()
	}

	select {
	case p.queue <- event:
		return nil
	default:
		p.log.Error("publish_queue_full")
		return ErrQueueFull
	}
}

// Close stops accepting events and drains what is already queued.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Publisher) drain() {
	defer p.wg.Done()

	for fields := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.appendTimeout)
		id, err := p.producer.Append(ctx, fields)
		cancel()

		if err != nil {
			// The event is lost at this layer; the log line is the
			// observable trace. Callers needing stronger guarantees
			// should write an outbox row first.
			p.log.Error("publish_append_failed",
				slog.String("event_id", fields["event_id"]),
				slog.String("err", err.Error()),
			)
			continue
		}
		p.log.Info("event_published",
			slog.String("event_id", fields["event_id"]),
			slog.String("entry_id", id),
		)
	}
}
