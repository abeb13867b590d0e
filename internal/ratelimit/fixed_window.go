package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces limiter keys in Redis.
const DefaultPrefix = "wildwatch:api:ratelimit"

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// Config describes one named fixed-window quota.
type Config struct {
	// Name distinguishes quotas sharing a Redis client, e.g. "login".
	Name   string
	Limit  int
	Window time.Duration
}

// FixedWindowLimiter counts requests per key in a Redis-backed fixed window.
type FixedWindowLimiter struct {
	limit  int
	window time.Duration
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewClient builds the Redis client shared by all limiters of a process.
func NewClient(addr, password string) (*redis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password}), nil
}

// New creates a limiter on an existing client.
func New(client redis.UniversalClient, prefix string, cfg Config) (*FixedWindowLimiter, error) {
	if client == nil {
		return nil, errors.New("rate limiter requires a redis client")
	}
	if cfg.Limit <= 0 || cfg.Window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if name := strings.TrimSpace(cfg.Name); name != "" {
		prefix = prefix + ":" + name
	}
	return &FixedWindowLimiter{
		limit:  cfg.Limit,
		window: cfg.Window,
		client: client,
		prefix: prefix,
		now:    time.Now,
	}, nil
}

// Allow returns true when the key is within quota, plus how long until the
// current window closes. On Redis failures it fails closed.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (bool, time.Duration) {
	if l == nil {
		return false, 0
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	windowMs := l.window.Milliseconds()
	nowMs := l.now().UTC().UnixMilli()
	slot := nowMs / windowMs
	retryAfter := time.Duration((slot+1)*windowMs-nowMs) * time.Millisecond

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)
	count, err := fixedWindowScript.Run(ctx, l.client, []string{redisKey}, windowMs).Int64()
	if err != nil {
		return false, retryAfter
	}
	return count <= int64(l.limit), retryAfter
}
