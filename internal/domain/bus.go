package domain

import (
	"context"
	"time"
)

// Stream and channel names the stages communicate through. All are
// overridable via configuration; these are the defaults.
const (
	StreamSnapshots     = "funding_snapshots"
	StreamOpportunities = "funding_opportunities"
	GroupExecutionGW    = "execution_gateway"
	ChannelConfig       = "config_updates"
	ChannelConfigAudit  = "config_audit"
)

// StreamMessage is a single stream entry: the bus-assigned ID plus the flat
// string fields. Field ordering is not guaranteed.
type StreamMessage struct {
	ID     string
	Fields map[string]string
}

// SignalBus provides the three bus capabilities the pipeline depends on:
// append-only streams with approximate trimming, consumer groups with
// explicit acknowledgement, and fire-and-forget pub/sub.
type SignalBus interface {
	// Publish sends a payload on a pub/sub channel. Late subscribers miss it.
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a channel of payloads; it is closed when ctx ends.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)

	// StreamAppend appends flat fields with an approximate length cap.
	StreamAppend(ctx context.Context, stream string, fields map[string]string) error
	// StreamRead reads up to count entries after lastID, blocking up to
	// block. It returns an empty slice when nothing arrives in time.
	StreamRead(ctx context.Context, stream, lastID string, count int, block time.Duration) ([]StreamMessage, error)
	// StreamRevRange returns the newest count entries, newest first.
	StreamRevRange(ctx context.Context, stream string, count int) ([]StreamMessage, error)

	// EnsureGroup creates the consumer group from the stream start,
	// tolerating an already existing group.
	EnsureGroup(ctx context.Context, stream, group string) error
	// StreamReadGroup reads as the given consumer. id ">" delivers new
	// entries; "0" re-reads this consumer's pending entries. A negative
	// block disables blocking.
	StreamReadGroup(ctx context.Context, stream, group, consumer, id string, count int, block time.Duration) ([]StreamMessage, error)
	// Ack acknowledges processed entries for the group.
	Ack(ctx context.Context, stream, group string, ids ...string) error
}

// ShortCache is a small TTL'd byte cache used for dynamic statistics.
type ShortCache interface {
	// Get returns ErrNotFound on a miss.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}

// RateLimiter provides distributed rate limiting for the API surface.
type RateLimiter interface {
	// Allow reports whether a request for key is permitted under the
	// sliding window limit, counting it when permitted.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
