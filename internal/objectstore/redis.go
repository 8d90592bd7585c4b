package objectstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gomodule/redigo/redis"
)

// jsonPrefix marks hash fields holding JSON encoded values
const jsonPrefix = "JSON:"

// ConnGetter hands out Redis connections; *redis.Pool satisfies it
type ConnGetter interface {
	Get() redis.Conn
}

// RedisStore keeps every object as a Redis hash. String fields are stored
// verbatim, every other field as JSON behind a "JSON:" prefix.
type RedisStore struct {
	namespace string
	pool      ConnGetter
}

// NewRedisStore creates a store backed by pool
func NewRedisStore(namespace string, pool ConnGetter) *RedisStore {
	return &RedisStore{namespace: namespace, pool: pool}
}

// NewRedisPool creates a connection pool for address
func NewRedisPool(address string) *redis.Pool {
	return &redis.Pool{
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", address)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) > 10*time.Second {
				_, err := c.Do("PING")
				return err
			}
			return nil
		},
		MaxActive:   100,
		IdleTimeout: 1 * time.Minute,
		Wait:        true,
	}
}

// Get returns the object stored under key
func (s *RedisStore) Get(ctx context.Context, key string) (Object, error) {
	conn := s.pool.Get()
	defer conn.Close()

	fields, err := redis.StringMap(conn.Do("HGETALL", KeyName(s.namespace, key)))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}

	obj := make(Object, len(fields))
	for field, raw := range fields {
		if !strings.HasPrefix(raw, jsonPrefix) {
			obj[field] = raw
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(raw, jsonPrefix)), &v); err != nil {
			return nil, fmt.Errorf("failed to decode field %s of %s: %w", field, key, err)
		}
		obj[field] = v
	}
	return obj, nil
}

// Set replaces the hash stored under key in one MULTI/EXEC block
func (s *RedisStore) Set(ctx context.Context, key string, value Object) error {
	name := KeyName(s.namespace, key)
	args := redis.Args{}.Add(name)
	for field, v := range value {
		if str, ok := v.(string); ok {
			args = args.Add(field, str)
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode field %s of %s: %w", field, key, err)
		}
		args = args.Add(field, jsonPrefix+string(b))
	}

	conn := s.pool.Get()
	defer conn.Close()

	if err := conn.Send("MULTI"); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := conn.Send("DEL", name); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if len(args) > 1 {
		if err := conn.Send("HSET", args...); err != nil {
			return fmt.Errorf("failed to write %s: %w", key, err)
		}
	}
	if _, err := conn.Do("EXEC"); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Missing keys are ignored.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	conn := s.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("DEL", KeyName(s.namespace, key)); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Exists reports whether key is stored
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	conn := s.pool.Get()
	defer conn.Close()

	exists, err := redis.Bool(conn.Do("EXISTS", KeyName(s.namespace, key)))
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", key, err)
	}
	return exists, nil
}
