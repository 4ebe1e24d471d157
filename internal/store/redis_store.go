// internal/store/redis_store.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the live side channel: last known position per employee in a
// GEO set, a heartbeat key, and pub/sub fan-out of accepted samples. The
// durable history lives in the database store, not here.
type RedisStore struct {
	Rdb                 *redis.Client
	LastPositionTTL     time.Duration
	GEOKey              string
	StreamChannelPrefix string
}

type RedisOptions struct {
	Addr            string
	Password        string
	DB              int
	LastPositionTTL time.Duration
}

func NewRedisStore(ctx context.Context, opt RedisOptions) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{Addr: opt.Addr, Password: opt.Password, DB: opt.DB})
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opt.Addr, err)
	}
	return newRedisStore(rdb, opt.LastPositionTTL), nil
}

func newRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &RedisStore{
		Rdb:                 rdb,
		LastPositionTTL:     ttl,
		GEOKey:              "employees:last",
		StreamChannelPrefix: "locations",
	}
}

func (s *RedisStore) Close() error {
	return s.Rdb.Close()
}

// heartbeatLayout is fixed width so heartbeats compare as strings.
const heartbeatLayout = "2006-01-02T15:04:05.000Z07:00"

// moveIfNewer updates the GEO entry and heartbeat unless the stored heartbeat
// is later than the incoming one.
// KEYS: geo set, heartbeat. ARGV: member, lng, lat, heartbeat, ttl ms.
var moveIfNewer = redis.NewScript(`
local prev = redis.call('GET', KEYS[2])
if prev and prev > ARGV[4] then
	return 0
end
redis.call('GEOADD', KEYS[1], ARGV[2], ARGV[3], ARGV[1])
redis.call('SET', KEYS[2], ARGV[4], 'PX', ARGV[5])
return 1
`)

// UpdateLastPosition moves the employee in the GEO set and refreshes the
// heartbeat. A sample older than the current heartbeat leaves both alone.
func (s *RedisStore) UpdateLastPosition(ctx context.Context, ownerID string, lat, lng float64, at time.Time) error {
	return moveIfNewer.Run(ctx, s.Rdb,
		[]string{s.GEOKey, s.HeartbeatKey(ownerID)},
		ownerID,
		strconv.FormatFloat(lng, 'f', -1, 64),
		strconv.FormatFloat(lat, 'f', -1, 64),
		at.UTC().Format(heartbeatLayout),
		s.LastPositionTTL.Milliseconds(),
	).Err()
}

// PublishSample fans the payload out on the employee's channel.
func (s *RedisStore) PublishSample(ctx context.Context, ownerID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.Rdb.Publish(ctx, s.EmployeeChannel(ownerID), data).Err()
}

func (s *RedisStore) HeartbeatKey(ownerID string) string {
	return "employee:heartbeat:" + ownerID
}

func (s *RedisStore) EmployeeChannel(ownerID string) string {
	return s.StreamChannelPrefix + ":employee:" + ownerID
}
