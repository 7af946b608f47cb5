// Package export publishes statistics snapshots outside the process.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/signalsfoundry/shipping-simulator/internal/stats"
)

// ErrNoSnapshot is returned by Latest before anything has been published.
var ErrNoSnapshot = errors.New("no snapshot published")

// DefaultSnapshotTTL bounds how long the latest snapshot outlives the
// simulator.
const DefaultSnapshotTTL = time.Hour

// RedisPublisher stores the latest snapshot under <prefix>:snapshot:latest
// and announces every snapshot on the <prefix>:snapshots channel.
type RedisPublisher struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// PublisherOption customises a RedisPublisher.
type PublisherOption func(*RedisPublisher)

// WithTTL sets the expiry of the latest-snapshot key. Zero keeps it forever.
func WithTTL(ttl time.Duration) PublisherOption {
	return func(p *RedisPublisher) { p.ttl = ttl }
}

// NewRedisPublisher creates a publisher for redisURL.
// The redisURL should be in the format: redis://[:password@]host[:port][/database]
func NewRedisPublisher(redisURL, prefix string, opts ...PublisherOption) (*RedisPublisher, error) {
	ropts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if prefix == "" {
		prefix = "shipsim"
	}
	p := &RedisPublisher{
		client: redis.NewClient(ropts),
		prefix: prefix,
		ttl:    DefaultSnapshotTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// LatestKey is the key holding the most recent snapshot.
func (p *RedisPublisher) LatestKey() string { return p.prefix + ":snapshot:latest" }

// Channel is the pub/sub channel snapshots are announced on.
func (p *RedisPublisher) Channel() string { return p.prefix + ":snapshots" }

// Publish stores snap as the latest snapshot and announces it.
func (p *RedisPublisher) Publish(ctx context.Context, snap stats.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, p.LatestKey(), payload, p.ttl)
		pipe.Publish(ctx, p.Channel(), payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish snapshot at t=%s: %w", snap.Time, err)
	}
	return nil
}

// Latest reads back the most recent snapshot.
func (p *RedisPublisher) Latest(ctx context.Context) (stats.Snapshot, error) {
	var snap stats.Snapshot
	val, err := p.client.Get(ctx, p.LatestKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return snap, ErrNoSnapshot
	}
	if err != nil {
		return snap, fmt.Errorf("failed to get key %s: %w", p.LatestKey(), err)
	}
	if err := json.Unmarshal(val, &snap); err != nil {
		return snap, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Subscribe returns a subscription to the snapshot channel. Callers close it.
func (p *RedisPublisher) Subscribe(ctx context.Context) *redis.PubSub {
	return p.client.Subscribe(ctx, p.Channel())
}

// Ping checks if Redis is reachable.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
