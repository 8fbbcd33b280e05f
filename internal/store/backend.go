package store

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/redis/go-redis/v9"
)

var ErrReadOnly = errors.New("cannot set configuration in env data storage")

// Backend is a flat key -> string store.
type Backend interface {
	// Fetch returns the values of keys; missing keys map to "".
	Fetch(ctx context.Context, keys []string) (map[string]string, error)
	Set(ctx context.Context, key, value string) error
}

type envBackend struct {
	getenv func(string) string
}

func (b envBackend) Fetch(_ context.Context, keys []string) (map[string]string, error) {
	getenv := b.getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = getenv(k)
	}
	return out, nil
}

func (envBackend) Set(context.Context, string, string) error { return ErrReadOnly }

type redisBackend struct {
	client *redis.Client
}

func (b redisBackend) Fetch(ctx context.Context, keys []string) (map[string]string, error) {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	values, err := b.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	if len(values) != len(keys) {
		return nil, errors.New("invalid data length")
	}
	out := make(map[string]string, len(keys))
	for i, k := range keys {
		switch v := values[i].(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = v
		default:
			out[k] = fmt.Sprint(v)
		}
	}
	return out, nil
}

func (b redisBackend) Set(ctx context.Context, key, value string) error {
	res, err := b.client.Set(ctx, key, value, 0).Result()
	if err != nil {
		return err
	}
	if res != "OK" {
		return fmt.Errorf("failed to set %s: reply %q", key, res)
	}
	return nil
}

// RedisPool holds the one Redis client of the process. It is created for
// the first URI asked for and reused afterwards.
type RedisPool struct {
	mu     sync.Mutex
	client *redis.Client
}

func (p *RedisPool) Client(uri string) (*redis.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, err
	}
	// Managed Redis offerings often present self-signed certificates.
	if opts.TLSConfig != nil {
		opts.TLSConfig = &tls.Config{ServerName: opts.TLSConfig.ServerName, InsecureSkipVerify: true} //nolint:gosec
	}
	opts.MaxRetries = -1

	p.client = redis.NewClient(opts)
	return p.client, nil
}

func (p *RedisPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}
