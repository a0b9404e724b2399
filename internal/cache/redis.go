package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platformbuilds/mcp-federation-broker/internal/logger"
	"github.com/platformbuilds/mcp-federation-broker/internal/payload"
)

// Redis is an alternate ResourceCache backend for deployments that
// want cached resources shared across broker replicas rather than
// held in a single process's memory. It implements the same Cache
// contract as Memory; Memory remains the default backend.
type Redis struct {
	client    *redis.Client
	log       logger.Logger
	keyPrefix string
}

// NewRedis dials addr and verifies connectivity before returning.
func NewRedis(addr string, db int, password string, log logger.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Redis{client: client, log: log, keyPrefix: "mcpfed:resource:"}, nil
}

type redisRecord struct {
	Kind int                      `json:"kind"`
	Rows []map[string]interface{} `json:"rows,omitempty"`
	Text string                   `json:"text,omitempty"`
	Data []byte                   `json:"data,omitempty"`
}

func (r *Redis) wireKey(key string) string { return r.keyPrefix + key }

func (r *Redis) GetFresh(key string) (payload.Payload, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	raw, err := r.client.Get(ctx, r.wireKey(key)).Bytes()
	if err == redis.Nil {
		return payload.Payload{}, false
	}
	if err != nil {
		r.log.Warn("redis cache get failed", "key", Fingerprint(key), "error", err)
		return payload.Payload{}, false
	}
	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		r.log.Warn("redis cache decode failed", "key", Fingerprint(key), "error", err)
		return payload.Payload{}, false
	}
	return payload.Payload{
		Kind: payload.Kind(rec.Kind),
		Rows: rec.Rows,
		Text: rec.Text,
		Data: rec.Data,
	}, true
}

func (r *Redis) Put(key string, p payload.Payload, ttlSeconds int) {
	if !p.Cacheable() {
		return
	}
	rec := redisRecord{Kind: int(p.Kind), Rows: p.Rows, Text: p.Text, Data: p.Data}
	data, err := json.Marshal(rec)
	if err != nil {
		r.log.Warn("redis cache encode failed", "key", Fingerprint(key), "error", err)
		return
	}
	ttl := time.Duration(ttlSeconds) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Set(ctx, r.wireKey(key), data, ttl).Err(); err != nil {
		r.log.Warn("redis cache set failed", "key", Fingerprint(key), "error", err)
		return
	}
	_ = r.client.SAdd(ctx, r.keyPrefix+"index", key).Err()
}

func (r *Redis) Invalidate(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = r.client.Del(ctx, r.wireKey(key)).Err()
	_ = r.client.SRem(ctx, r.keyPrefix+"index", key).Err()
}

func (r *Redis) InvalidateByPrefix(prefix string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	keys, err := r.client.SMembers(ctx, r.keyPrefix+"index").Result()
	if err != nil {
		r.log.Warn("redis cache invalidate-by-prefix failed", "error", err)
		return
	}
	for _, k := range keys {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			r.Invalidate(k)
		}
	}
}

func (r *Redis) Clear() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	keys, err := r.client.SMembers(ctx, r.keyPrefix+"index").Result()
	if err != nil {
		return
	}
	for _, k := range keys {
		_ = r.client.Del(ctx, r.wireKey(k)).Err()
	}
	_ = r.client.Del(ctx, r.keyPrefix+"index").Err()
}

func (r *Redis) Size() int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n, err := r.client.SCard(ctx, r.keyPrefix+"index").Result()
	if err != nil {
		return 0
	}
	return int(n)
}
