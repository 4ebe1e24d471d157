package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner = "64b7f0c2a1b2c3d4e5f60001"

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	st, err := NewRedisStore(context.Background(), RedisOptions{Addr: mr.Addr(), LastPositionTTL: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st, mr
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	_, err := NewRedisStore(context.Background(), RedisOptions{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestUpdateLastPosition(t *testing.T) {
	st, mr := newTestRedisStore(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 2, 30, 0, 0, time.UTC)

	require.NoError(t, st.UpdateLastPosition(ctx, owner, 12.9716, 77.5946, at))

	pos, err := st.Rdb.GeoPos(ctx, st.GEOKey, owner).Result()
	require.NoError(t, err)
	require.Len(t, pos, 1)
	require.NotNil(t, pos[0])
	assert.InDelta(t, 12.9716, pos[0].Latitude, 1e-4)
	assert.InDelta(t, 77.5946, pos[0].Longitude, 1e-4)

	hb, err := mr.Get(st.HeartbeatKey(owner))
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T02:30:00.000Z", hb)
	assert.Equal(t, time.Hour, mr.TTL(st.HeartbeatKey(owner)))
}

func TestUpdateLastPosition_IgnoresOlderSamples(t *testing.T) {
	st, mr := newTestRedisStore(t)
	ctx := context.Background()
	newer := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, st.UpdateLastPosition(ctx, owner, 13.0, 77.6, newer))
	require.NoError(t, st.UpdateLastPosition(ctx, owner, 12.0, 77.0, newer.Add(-time.Hour)))

	pos, err := st.Rdb.GeoPos(ctx, st.GEOKey, owner).Result()
	require.NoError(t, err)
	require.NotNil(t, pos[0])
	assert.InDelta(t, 13.0, pos[0].Latitude, 1e-4)
	hb, err := mr.Get(st.HeartbeatKey(owner))
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T09:00:00.000Z", hb)

	require.NoError(t, st.UpdateLastPosition(ctx, owner, 12.5, 77.2, newer.Add(time.Millisecond)))
	pos, err = st.Rdb.GeoPos(ctx, st.GEOKey, owner).Result()
	require.NoError(t, err)
	require.NotNil(t, pos[0])
	assert.InDelta(t, 12.5, pos[0].Latitude, 1e-4)
	hb, err = mr.Get(st.HeartbeatKey(owner))
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T09:00:00.001Z", hb)
}

func TestPublishSample(t *testing.T) {
	st, _ := newTestRedisStore(t)
	ctx := context.Background()

	sub := st.Rdb.Subscribe(ctx, st.EmployeeChannel(owner))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, st.PublishSample(ctx, owner, map[string]float64{"lat": 1, "lng": 2}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "locations:employee:"+owner, msg.Channel)
	assert.JSONEq(t, `{"lat":1,"lng":2}`, msg.Payload)
}

func TestNewRedisStore_DefaultTTL(t *testing.T) {
	st := newRedisStore(redis.NewClient(&redis.Options{Addr: "unused:0"}), 0)
	defer st.Close()
	assert.Equal(t, 48*time.Hour, st.LastPositionTTL)
}
