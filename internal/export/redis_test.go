package export

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/shipping-simulator/internal/stats"
)

func sampleSnapshot() stats.Snapshot {
	return stats.Snapshot{
		Time:      24,
		Customers: 2,
		Segments:  map[string]int{"truck": 2},
		Shipments: stats.ShipmentTotals{Enroute: 1, Delivered: 3},
		CustomerLines: []stats.CustomerLine{
			{Name: "A", Destination: "B", Received: 3, AverageLatency: 2, TotalCost: 300},
		},
	}
}

func TestRedisPublisher_PublishStoresLatest(t *testing.T) {
	mr := miniredis.RunT(t)

	pub, err := NewRedisPublisher("redis://"+mr.Addr(), "test", WithTTL(10*time.Minute))
	require.NoError(t, err)
	defer pub.Close()

	ctx := context.Background()
	require.NoError(t, pub.Ping(ctx))
	require.NoError(t, pub.Publish(ctx, sampleSnapshot()))

	assert.Equal(t, "test:snapshot:latest", pub.LatestKey())
	assert.True(t, mr.Exists(pub.LatestKey()))
	assert.Equal(t, 10*time.Minute, mr.TTL(pub.LatestKey()))

	got, err := pub.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleSnapshot().Time, got.Time)
	assert.Equal(t, 3, got.Shipments.Delivered)
	require.Len(t, got.CustomerLines, 1)
	assert.Equal(t, "B", got.CustomerLines[0].Destination)
}

func TestRedisPublisher_LatestBeforePublish(t *testing.T) {
	mr := miniredis.RunT(t)

	pub, err := NewRedisPublisher("redis://"+mr.Addr(), "")
	require.NoError(t, err)
	defer pub.Close()

	assert.Equal(t, "shipsim:snapshots", pub.Channel())
	_, err = pub.Latest(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestRedisPublisher_AnnouncesOnChannel(t *testing.T) {
	mr := miniredis.RunT(t)

	pub, err := NewRedisPublisher("redis://"+mr.Addr(), "chan")
	require.NoError(t, err)
	defer pub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := pub.Subscribe(ctx)
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, pub.Publish(ctx, sampleSnapshot()))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "chan:snapshots", msg.Channel)

	var snap stats.Snapshot
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &snap))
	assert.Equal(t, 2, snap.Customers)
}

func TestRedisPublisher_PublishFailsWhenServerDown(t *testing.T) {
	mr := miniredis.RunT(t)

	pub, err := NewRedisPublisher("redis://"+mr.Addr(), "down")
	require.NoError(t, err)
	defer pub.Close()

	mr.Close()
	err = pub.Publish(context.Background(), sampleSnapshot())
	assert.Error(t, err)
}

func TestNewRedisPublisher_BadURL(t *testing.T) {
	_, err := NewRedisPublisher("not-a-url", "x")
	assert.Error(t, err)
}
