package redis

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/MeteorsLiu/kvbridge/adapter"
	"github.com/MeteorsLiu/kvbridge/storage/common"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var cb = context.Background()

// setIfRoom writes a field unless the hash already holds the maximum
// number of fields. Overwriting an existing field is always allowed.
var setIfRoom = r.NewScript(`
local max = tonumber(ARGV[3])
if max > 0 and redis.call('HEXISTS', KEYS[1], ARGV[1]) == 0 and redis.call('HLEN', KEYS[1]) >= max then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
return 1
`)

type Options func(*RedisClient)

func WithDB(n int) Options {
	return func(c *RedisClient) {
		c.opts.DB = n
	}
}

func WithAddr(addr string) Options {
	return func(c *RedisClient) {
		c.opts.Addr = addr
	}
}

func WithPassword(password string) Options {
	return func(c *RedisClient) {
		c.opts.Password = password
	}
}

// WithHash names the hash holding every item.
func WithHash(name string) Options {
	return func(c *RedisClient) {
		if name != "" {
			c.hash = name
		}
	}
}

func WithMaxEntries(n int) Options {
	return func(c *RedisClient) {
		c.maxEntries = n
	}
}

func WithTimeout(d time.Duration) Options {
	return func(c *RedisClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(log *zap.Logger) Options {
	return func(c *RedisClient) {
		if log != nil {
			c.log = log
		}
	}
}

// RedisClient keeps every item as a field of one hash. Keys are enumerated
// in HKEYS order.
type RedisClient struct {
	db         *r.Client
	opts       *r.Options
	hash       string
	maxEntries int
	timeout    time.Duration
	closed     atomic.Bool
	log        *zap.Logger
}

func ping(c *r.Client, d time.Duration) error {
	ctx, cancel := context.WithTimeout(cb, d)
	defer cancel()
	return c.Ping(ctx).Err()
}

func NewRedis(opts ...Options) (*RedisClient, error) {
	c := &RedisClient{
		opts:    &r.Options{},
		hash:    "storage",
		timeout: 5 * time.Second,
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	c.db = r.NewClient(c.opts)
	if err := ping(c.db, 10*time.Second); err != nil {
		c.db.Close()
		return nil, fmt.Errorf("ping redis %s: %w", c.opts.Addr, err)
	}
	return c, nil
}

var _ adapter.Store = (*RedisClient)(nil)

func (c *RedisClient) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(cb, c.timeout)
}

func (c *RedisClient) SetItem(key, value string) error {
	if key == "" {
		return common.ErrEmptyKey
	}
	if c.closed.Load() {
		return common.ErrClosed
	}
	ctx, cancel := c.ctx()
	defer cancel()
	ok, err := setIfRoom.Run(ctx, c.db, []string{c.hash}, key, value, c.maxEntries).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return common.ErrQuotaExceeded
	}
	return nil
}

func (c *RedisClient) GetItem(key string) (string, bool) {
	if key == "" || c.closed.Load() {
		return "", false
	}
	ctx, cancel := c.ctx()
	defer cancel()
	val, err := c.db.HGet(ctx, c.hash, key).Result()
	switch {
	case err == r.Nil:
		return "", false
	case err != nil:
		c.log.Error("redis hget", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return val, true
}

func (c *RedisClient) RemoveItem(key string) {
	if key == "" || c.closed.Load() {
		return
	}
	ctx, cancel := c.ctx()
	defer cancel()
	if err := c.db.HDel(ctx, c.hash, key).Err(); err != nil {
		c.log.Error("redis hdel", zap.String("key", key), zap.Error(err))
	}
}

func (c *RedisClient) Length() int {
	if c.closed.Load() {
		return 0
	}
	ctx, cancel := c.ctx()
	defer cancel()
	n, err := c.db.HLen(ctx, c.hash).Result()
	if err != nil {
		c.log.Error("redis hlen", zap.Error(err))
		return 0
	}
	return int(n)
}

func (c *RedisClient) Key(index int) (string, bool) {
	keys := c.Keys()
	if index < 0 || index >= len(keys) {
		return "", false
	}
	return keys[index], true
}

func (c *RedisClient) Keys() []string {
	if c.closed.Load() {
		return []string{}
	}
	ctx, cancel := c.ctx()
	defer cancel()
	keys, err := c.db.HKeys(ctx, c.hash).Result()
	if err != nil {
		c.log.Error("redis hkeys", zap.Error(err))
		return []string{}
	}
	return keys
}

// Available pings the server, so a dropped connection makes the store
// unavailable until it comes back.
func (c *RedisClient) Available() bool {
	if c.closed.Load() {
		return false
	}
	if err := ping(c.db, time.Second); err != nil {
		c.log.Warn("redis unavailable", zap.Error(err))
		return false
	}
	return true
}

func (c *RedisClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.db.Close()
}
