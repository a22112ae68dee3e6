package eventlog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLog reads and appends one named Redis stream. It implements both
// Consumer and Producer.
//
// The first fetches after startup replay this consumer's own pending
// entries (delivered before a crash but never acknowledged) by reading
// from id "0"; once the pending backlog is drained, fetches switch to ">"
// and block for new entries.
type RedisLog struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	count    int64
	block    time.Duration

	// nextID is "0" (or a concrete id) while replaying the pending
	// backlog, ">" once caught up. Fetch is called from a single loop,
	// so no lock is needed.
	nextID string
}

type RedisConfig struct {
	Stream   string
	Group    string
	Consumer string
	Count    int64
	Block    time.Duration
}

func NewRedisLog(client *redis.Client, cfg RedisConfig) *RedisLog {
	if cfg.Count == 0 {
		cfg.Count = 10
	}
	if cfg.Block == 0 {
		cfg.Block = 5 * time.Second
	}
	return &RedisLog{
		client:   client,
		stream:   cfg.Stream,
		group:    cfg.Group,
		consumer: cfg.Consumer,
		count:    cfg.Count,
		block:    cfg.Block,
		nextID:   "0",
	}
}

// EnsureGroup creates the group at the start of the stream, creating the
// stream itself if needed. The BUSYGROUP reply means another member got
// there first; the cursor is left untouched either way.
func (l *RedisLog) EnsureGroup(ctx context.Context) error {
	err := l.client.XGroupCreateMkStream(ctx, l.stream, l.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("eventlog: create group %q on %q: %w", l.group, l.stream, err)
	}
	return nil
}

func (l *RedisLog) Fetch(ctx context.Context) ([]Entry, error) {
	if l.nextID != ">" {
		entries, err := l.read(ctx, l.nextID, 0)
		if err != nil {
			return nil, err
		}
		if len(entries) > 0 {
			l.nextID = entries[len(entries)-1].ID
			return entries, nil
		}
		// Pending backlog drained; only new entries from here on.
		l.nextID = ">"
	}

	return l.read(ctx, ">", l.block)
}

func (l *RedisLog) read(ctx context.Context, id string, block time.Duration) ([]Entry, error) {
	args := &redis.XReadGroupArgs{
		Group:    l.group,
		Consumer: l.consumer,
		Streams:  []string{l.stream, id},
		Count:    l.count,
		Block:    block,
	}
	if block == 0 {
		// go-redis treats 0 as "block forever"; a negative value means
		// do not block at all.
		args.Block = -1
	}

	streams, err := l.client.XReadGroup(ctx, args).Result()
	if err == redis.Nil {
		// Block interval elapsed with nothing new.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, s := range streams {
		for _, msg := range s.Messages {
			fields := make(map[string]string, len(msg.Values))
			for k, v := range msg.Values {
				fields[k] = fmt.Sprint(v)
			}
			entries = append(entries, Entry{ID: msg.ID, Fields: fields})
		}
	}
	return entries, nil
}

func (l *RedisLog) Ack(ctx context.Context, e Entry) error {
	return l.client.XAck(ctx, l.stream, l.group, e.ID).Err()
}

func (l *RedisLog) Append(ctx context.Context, fields map[string]string) (string, error) {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	return l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: l.stream,
		Values: values,
	}).Result()
}

func (l *RedisLog) Close() error {
	return nil
}
