package eventlog

import (
	"context"
	"testing"
	"time"

	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

func startKafka(t *testing.T) []string {
	t.Helper()
	ctx := context.Background()

	ctr, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("eventlog-test"))
	if err != nil {
		t.Skipf("docker/container runtime unavailable: %v", err)
	}
	t.Cleanup(func() { _ = ctr.Terminate(ctx) })

	brokers, err := ctr.Brokers(ctx)
	if err != nil {
		t.Fatalf("brokers: %v", err)
	}
	return brokers
}

// fetchOne polls until an entry arrives. Group coordination after a reader
// joins can take several seconds, so the deadline is generous.
func fetchOne(t *testing.T, log *KafkaLog) Entry {
	t.Helper()
	deadline := time.Now().Add(90 * time.Second)
	for time.Now().Before(deadline) {
		entries, err := log.Fetch(context.Background())
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if len(entries) == 1 {
			return entries[0]
		}
	}
	t.Fatalf("no entry fetched before deadline")
	return Entry{}
}

func TestKafkaLogRoundTrip(t *testing.T) {
	brokers := startKafka(t)
	ctx := context.Background()

	cfg := KafkaConfig{
		Brokers: brokers,
		Topic:   "events",
		GroupID: "relay-grp",
		Block:   2 * time.Second,
	}

	log := NewKafkaLog(cfg)
	if err := log.EnsureGroup(ctx); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	if _, err := log.Append(ctx, map[string]string{"id": "42", "result": `{"ok":true}`}); err != nil {
		t.Fatalf("append: %v", err)
	}

	entry := fetchOne(t, log)
	if entry.Fields["id"] != "42" {
		t.Fatalf("expected id field %q, got %q", "42", entry.Fields["id"])
	}
	if err := log.Ack(ctx, entry); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A restarted consumer resumes past the acked entry and sees only
	// what was appended after it.
	restarted := NewKafkaLog(cfg)
	defer restarted.Close()
	if _, err := restarted.Append(ctx, map[string]string{"id": "43"}); err != nil {
		t.Fatalf("append after restart: %v", err)
	}
	next := fetchOne(t, restarted)
	if next.Fields["id"] != "43" {
		t.Fatalf("expected the new entry, got redelivery of %v", next.Fields)
	}
	if err := restarted.Ack(ctx, next); err != nil {
		t.Fatalf("ack after restart: %v", err)
	}
}

func TestKafkaLogUnackedEntryIsRedelivered(t *testing.T) {
	brokers := startKafka(t)
	ctx := context.Background()

	cfg := KafkaConfig{
		Brokers: brokers,
		Topic:   "events",
		GroupID: "relay-grp",
		Block:   2 * time.Second,
	}

	log := NewKafkaLog(cfg)
	if _, err := log.Append(ctx, map[string]string{"n": "1"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := log.Append(ctx, map[string]string{"n": "2"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	first := fetchOne(t, log)
	second := fetchOne(t, log)
	if first.Fields["n"] != "1" || second.Fields["n"] != "2" {
		t.Fatalf("expected entries in order, got %v then %v", first.Fields, second.Fields)
	}

	// Only the later entry is acked; the earlier one failed delivery.
	// Its commit must stay held so the earlier entry is not covered.
	if err := log.Ack(ctx, second); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	restarted := NewKafkaLog(cfg)
	defer restarted.Close()

	replayedFirst := fetchOne(t, restarted)
	if replayedFirst.Fields["n"] != "1" {
		t.Fatalf("expected redelivery of the unacked entry, got %v", replayedFirst.Fields)
	}
	if err := restarted.Ack(ctx, replayedFirst); err != nil {
		t.Fatalf("ack replayed first: %v", err)
	}

	replayedSecond := fetchOne(t, restarted)
	if replayedSecond.Fields["n"] != "2" {
		t.Fatalf("expected redelivery of the held entry, got %v", replayedSecond.Fields)
	}
	if err := restarted.Ack(ctx, replayedSecond); err != nil {
		t.Fatalf("ack replayed second: %v", err)
	}
}
