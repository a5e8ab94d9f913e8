package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConf configures the optional L1/mirror cache. Addr == "" disables it
// entirely; callers should fall back to the disk-backed caches pkg/candidatepool
// and pkg/journal already provide rather than fail when Redis is absent.
type RedisConf struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewClient builds a go-redis client from RedisConf. It does not ping: the
// connection is established lazily on first command, matching how every
// other optional dependency in this repo (Postgres, venues) degrades when
// unconfigured rather than blocking startup.
func NewClient(conf RedisConf) *redis.Client {
	opts := &redis.Options{
		Addr:         conf.Addr,
		Password:     conf.Password,
		DB:           conf.DB,
		DialTimeout:  durationOrDefault(int(conf.DialTimeout/time.Second), 5*time.Second),
		ReadTimeout:  durationOrDefault(int(conf.ReadTimeout/time.Second), 3*time.Second),
		WriteTimeout: durationOrDefault(int(conf.WriteTimeout/time.Second), 3*time.Second),
	}
	return redis.NewClient(opts)
}

// Ping verifies the Redis connection is reachable, with a short bounded
// timeout so a misconfigured cache never hangs process startup.
func Ping(ctx context.Context, client *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}
