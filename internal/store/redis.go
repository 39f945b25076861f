package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each collection blob under its key in Redis. Update
// atomicity is provided by an in-process per-key mutex: the deployment
// model is a single dashboard server in front of the database, the same
// single-writer assumption the other backends make.
type RedisStore struct {
	client *redis.Client

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRedisStore connects to the Redis instance named by url
// (redis://host:port/db) and verifies it is reachable.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisStore{
		client: client,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

func (r *RedisStore) keyLock(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	return l
}

// Get implements Store.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Put implements Store.
func (r *RedisStore) Put(ctx context.Context, key string, data []byte) error {
	lock := r.keyLock(key)
	lock.Lock()
	defer lock.Unlock()
	return r.client.Set(ctx, key, data, 0).Err()
}

// Delete implements Store.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Update implements Store.
func (r *RedisStore) Update(ctx context.Context, key string, fn func(data []byte, found bool) ([]byte, error)) error {
	lock := r.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	data, found, err := r.Get(ctx, key)
	if err != nil {
		return err
	}
	next, err := fn(data, found)
	if err != nil {
		return err
	}
	if next == nil {
		return r.client.Del(ctx, key).Err()
	}
	return r.client.Set(ctx, key, next, 0).Err()
}

// Close implements Store.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
