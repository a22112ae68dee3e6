// Package eventlog is the seam between the services and the durable,
// partitioned event log they coordinate through. Producers append entries;
// consumer-group members fetch assigned entries and acknowledge them after
// a terminal outcome. An unacknowledged entry stays in the group's pending
// set and is redelivered, which is what makes delivery at-least-once:
// duplicates are possible and downstream consumers must tolerate them.
//
// Two backends implement the seam: Redis Streams (the default) and Kafka,
// selected by configuration. Entry ids are backend-scoped and only
// meaningful for acknowledgment.
package eventlog

import (
	"context"
)

// Entry is one immutable log record as delivered to a consumer.
type Entry struct {
	// ID is the backend-assigned, monotonically increasing entry id.
	ID string
	// Fields is the structured payload.
	Fields map[string]string

	// ack is backend state needed to acknowledge this entry.
	ack any
}

// Consumer reads entries as a member of a consumer group.
type Consumer interface {
	// EnsureGroup creates the consumer group if it does not exist.
	// An already-existing group is success, not an error, and never
	// resets the group's cursor.
	EnsureGroup(ctx context.Context) error

	// Fetch blocks up to the configured interval and returns entries
	// newly assigned to this consumer. An empty slice with a nil error
	// means the block interval elapsed quietly.
	Fetch(ctx context.Context) ([]Entry, error)

	// Ack marks the entry processed, removing it from the group's
	// pending set.
	Ack(ctx context.Context, e Entry) error

	Close() error
}

// Producer appends entries to the log.
type Producer interface {
	Append(ctx context.Context, fields map[string]string) (string, error)
	Close() error
}
