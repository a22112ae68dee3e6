package relay

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/adaptai/edge/internal/eventlog"
)

func testLogger() *slog.Logger {
	h := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(h).With(
		slog.String("app", "test"),
		slog.String("env", "test"),
	)
}

// scriptedConsumer hands out pre-built batches, then idles. It records
// acks under a lock.
type scriptedConsumer struct {
	mu       sync.Mutex
	batches  [][]eventlog.Entry
	fetchErr error
	acked    []string
}

func (c *scriptedConsumer) EnsureGroup(context.Context) error { return nil }

func (c *scriptedConsumer) Fetch(ctx context.Context) ([]eventlog.Entry, error) {
	c.mu.Lock()
	if c.fetchErr != nil {
		err := c.fetchErr
		c.fetchErr = nil
		c.mu.Unlock()
		return nil, err
	}
	if len(c.batches) > 0 {
		batch := c.batches[0]
		c.batches = c.batches[1:]
		c.mu.Unlock()
		return batch, nil
	}
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return nil, nil
	}
}

func (c *scriptedConsumer) Ack(_ context.Context, e eventlog.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acked = append(c.acked, e.ID)
	return nil
}

func (c *scriptedConsumer) Close() error { return nil }

func (c *scriptedConsumer) ackedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.acked))
	copy(out, c.acked)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func runRelay(t *testing.T, consumer eventlog.Consumer, sink Sink) (cancel context.CancelFunc, done chan struct{}) {
	t.Helper()
	r := NewRunner(testLogger(), consumer, sink, NewMetrics(prometheus.NewRegistry()))
	r.fetchErrDelay = 10 * time.Millisecond

	ctx, cancelFn := context.WithCancel(context.Background())
	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		_ = r.Run(ctx)
	}()
	t.Cleanup(func() {
		cancelFn()
		<-doneCh
	})
	return cancelFn, doneCh
}

func TestRelayAcksAfterSinkSuccess(t *testing.T) {
	var mu sync.Mutex
	var received []map[string]any

	sinkSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var doc map[string]any
		_ = json.NewDecoder(r.Body).Decode(&doc)
		mu.Lock()
		received = append(received, doc)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(sinkSrv.Close)

	consumer := &scriptedConsumer{batches: [][]eventlog.Entry{{
		{ID: "1-0", Fields: map[string]string{"id": "42", "result": `{"ok":true}`}},
	}}}

	runRelay(t, consumer, NewHTTPSink(sinkSrv.URL, time.Second))

	waitFor(t, func() bool { return len(consumer.ackedIDs()) == 1 })

	acked := consumer.ackedIDs()
	if acked[0] != "1-0" {
		t.Fatalf("expected ack of 1-0, got %v", acked)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 sink delivery, got %d", len(received))
	}
	if received[0]["id"] != float64(42) {
		t.Fatalf("expected numeric id 42, got %v", received[0]["id"])
	}
}

func TestRelayLeavesEntryPendingOnSinkFailure(t *testing.T) {
	var calls int
	var mu sync.Mutex

	sinkSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(sinkSrv.Close)

	consumer := &scriptedConsumer{batches: [][]eventlog.Entry{{
		{ID: "1-0", Fields: map[string]string{"id": "1"}},
	}}}

	runRelay(t, consumer, NewHTTPSink(sinkSrv.URL, time.Second))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 1
	})

	// Give a potential stray ack time to land, then check none did.
	time.Sleep(50 * time.Millisecond)
	if acked := consumer.ackedIDs(); len(acked) != 0 {
		t.Fatalf("expected no acks after sink failure, got %v", acked)
	}
}

func TestRelayDeliversMalformedPayloadWithMarker(t *testing.T) {
	var mu sync.Mutex
	var received []map[string]any

	sinkSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var doc map[string]any
		_ = json.NewDecoder(r.Body).Decode(&doc)
		mu.Lock()
		received = append(received, doc)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(sinkSrv.Close)

	consumer := &scriptedConsumer{batches: [][]eventlog.Entry{{
		{ID: "2-0", Fields: map[string]string{"result": `{broken`}},
	}}}

	runRelay(t, consumer, NewHTTPSink(sinkSrv.URL, time.Second))

	waitFor(t, func() bool { return len(consumer.ackedIDs()) == 1 })

	mu.Lock()
	defer mu.Unlock()
	result, ok := received[0]["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected marker object, got %T", received[0]["result"])
	}
	if result["error"] != "invalid result format" {
		t.Fatalf("expected error marker, got %v", result["error"])
	}
}

func TestRelaySurvivesFetchError(t *testing.T) {
	sinkSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(sinkSrv.Close)

	consumer := &scriptedConsumer{
		fetchErr: io.ErrUnexpectedEOF,
		batches: [][]eventlog.Entry{{
			{ID: "3-0", Fields: map[string]string{"id": "9"}},
		}},
	}

	runRelay(t, consumer, NewHTTPSink(sinkSrv.URL, time.Second))

	// The loop must absorb the fetch error and go on to process the
	// following batch.
	waitFor(t, func() bool { return len(consumer.ackedIDs()) == 1 })
}
