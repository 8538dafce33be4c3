// Package redisstore keeps session keys in Redis so several client processes share
// one login.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultPrefix namespaces session keys.
const DefaultPrefix = "ticketline:session:"

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// Timeout bounds each command. Defaults to 2s.
	Timeout time.Duration
}

// Storage implements session.Storage over Redis.
type Storage struct {
	client  redis.Cmdable
	closer  func() error
	prefix  string
	timeout time.Duration
}

// Dial connects to Redis and checks the connection.
func Dial(ctx context.Context, opts Options) (*Storage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", opts.Addr, err)
	}
	s := New(client, opts.Prefix, opts.Timeout)
	s.closer = client.Close
	return s, nil
}

// New wraps an existing client.
func New(client redis.Cmdable, prefix string, timeout time.Duration) *Storage {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Storage{client: client, prefix: prefix, timeout: timeout}
}

// Key returns the redis key for a session key.
func (s *Storage) Key(key string) string {
	return s.prefix + key
}

func (s *Storage) Get(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	v, err := s.client.Get(ctx, s.Key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Storage) Set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Set(ctx, s.Key(key), value, 0).Err()
}

// Delete removes keys with a single DEL.
func (s *Storage) Delete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.Key(k)
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Del(ctx, full...).Err()
}

// Replace clears and writes the session in one MULTI/EXEC.
func (s *Storage) Replace(clear []string, values map[string]string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if len(clear) > 0 {
			full := make([]string, len(clear))
			for i, k := range clear {
				full[i] = s.Key(k)
			}
			p.Del(ctx, full...)
		}
		for k, v := range values {
			p.Set(ctx, s.Key(k), v, 0)
		}
		return nil
	})
	return err
}

// compareAndDelete runs server side, so processes sharing the session race on
// one atomic check.
var compareAndDelete = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if v == false then v = "" end
if v ~= ARGV[1] then return 0 end
redis.call("DEL", unpack(KEYS, 2))
return 1
`)

// CompareAndDelete removes keys only while key holds expected.
func (s *Storage) CompareAndDelete(key, expected string, keys ...string) (bool, error) {
	full := make([]string, 0, len(keys)+1)
	full = append(full, s.Key(key))
	for _, k := range keys {
		full = append(full, s.Key(k))
	}
	if len(full) == 1 {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	n, err := compareAndDelete.Run(ctx, s.client, full, expected).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Close releases a connection opened by Dial.
func (s *Storage) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
