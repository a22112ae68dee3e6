package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaLog adapts a Kafka topic to the log seam. Consumer groups are
// implicit in Kafka, so EnsureGroup is a no-op; acknowledgment is an offset
// commit, and the entry id is "partition-offset". Entry fields travel as a
// JSON object in the message value.
//
// Commits are released in offset order per partition. Acks may arrive out
// of order when entries are processed concurrently, and a commit is a
// cursor, not a per-message mark: committing offset N+1 would mark an
// unacked offset N consumed. An out-of-order ack is held until every lower
// offset on its partition is acked too.
type KafkaLog struct {
	reader *kafka.Reader
	writer *kafka.Writer
	block  time.Duration
	cursor *commitCursor
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	Block   time.Duration
}

func NewKafkaLog(cfg KafkaConfig) *KafkaLog {
	if cfg.Block == 0 {
		cfg.Block = 5 * time.Second
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		StartOffset:    kafka.FirstOffset,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: time.Second,
	})

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}

	return &KafkaLog{
		reader: reader,
		writer: writer,
		block:  cfg.Block,
		cursor: newCommitCursor(),
	}
}

func (l *KafkaLog) EnsureGroup(context.Context) error {
	// Kafka creates the group on first fetch; there is no cursor to
	// protect here.
	return nil
}

// Fetch returns at most one message per call. The reader already batches
// and prefetches internally, so a one-message surface keeps offset commits
// aligned with acknowledgments.
func (l *KafkaLog) Fetch(ctx context.Context) ([]Entry, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, l.block)
	defer cancel()

	msg, err := l.reader.FetchMessage(fetchCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, nil
		}
		return nil, err
	}

	var fields map[string]string
	if err := json.Unmarshal(msg.Value, &fields); err != nil {
		// Deliver the raw value under a single field rather than
		// dropping the entry.
		fields = map[string]string{"payload": string(msg.Value)}
	}

	l.cursor.track(msg)

	return []Entry{{
		ID:     fmt.Sprintf("%d-%d", msg.Partition, msg.Offset),
		Fields: fields,
		ack:    msg,
	}}, nil
}

func (l *KafkaLog) Ack(ctx context.Context, e Entry) error {
	msg, ok := e.ack.(kafka.Message)
	if !ok {
		return fmt.Errorf("eventlog: entry %s was not fetched from kafka", e.ID)
	}

	commit, ready := l.cursor.ack(msg)
	if !ready {
		// A lower offset on this partition is still in flight. This ack
		// is recorded and committed once that offset is acked; until
		// then a restart redelivers both, which at-least-once allows.
		return nil
	}
	return l.reader.CommitMessages(ctx, commit)
}

// commitCursor tracks fetched offsets per partition and releases only the
// newest message whose whole prefix is acked.
type commitCursor struct {
	mu    sync.Mutex
	parts map[int]*partitionWindow
}

type partitionWindow struct {
	// next is the lowest fetched offset not yet acked.
	next int64
	held map[int64]kafka.Message
}

func newCommitCursor() *commitCursor {
	return &commitCursor{parts: make(map[int]*partitionWindow)}
}

// track records a fetched message. The first offset seen on a partition is
// the resume point of its window.
func (c *commitCursor) track(msg kafka.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.parts[msg.Partition]; !ok {
		c.parts[msg.Partition] = &partitionWindow{
			next: msg.Offset,
			held: make(map[int64]kafka.Message),
		}
	}
}

// ack marks the offset done. When the window advances it returns the
// newest contiguously acked message, the one safe to commit.
func (c *commitCursor) ack(msg kafka.Message) (kafka.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.parts[msg.Partition]
	if !ok {
		return msg, true
	}
	if msg.Offset < p.next {
		// Already covered by an earlier commit.
		return kafka.Message{}, false
	}
	p.held[msg.Offset] = msg

	var last kafka.Message
	released := false
	for {
		m, ok := p.held[p.next]
		if !ok {
			break
		}
		delete(p.held, p.next)
		p.next++
		last = m
		released = true
	}
	return last, released
}

func (l *KafkaLog) Append(ctx context.Context, fields map[string]string) (string, error) {
	value, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("eventlog: marshal entry: %w", err)
	}

	if err := l.writer.WriteMessages(ctx, kafka.Message{Value: value}); err != nil {
		return "", err
	}
	return "", nil
}

func (l *KafkaLog) Close() error {
	rErr := l.reader.Close()
	wErr := l.writer.Close()
	if rErr != nil {
		return rErr
	}
	return wErr
}
