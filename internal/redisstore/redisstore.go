// Package redisstore provides a Redis-backed session.SnapshotStore, for
// deployments where the tracker host's filesystem is not durable across
// restarts.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sbslab/sbs-session/internal/session"
)

// DefaultTTL bounds how long a snapshot outlives the session that wrote it.
// A snapshot older than any reasonable expiry threshold is useless anyway;
// the TTL keeps dead keys from accumulating.
const DefaultTTL = 24 * time.Hour

// DefaultKey is the Redis key snapshots are stored under.
const DefaultKey = "sbs:session:snapshot"

// RedisClientInterface defines the Redis operations used by the store.
type RedisClientInterface interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Close() error
}

// Store persists session snapshots as a single JSON value in Redis.
type Store struct {
	client RedisClientInterface
	key    string
	ttl    time.Duration
}

// New connects to Redis at addr and verifies the connection.
func New(addr, key string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // no password set
		DB:       0,  // use default DB
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewWithClient(client, key), nil
}

// NewWithClient creates a store around an existing client (useful for
// testing). An empty key selects DefaultKey.
func NewWithClient(client RedisClientInterface, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{client: client, key: key, ttl: DefaultTTL}
}

// SetTTL overrides the snapshot expiration. Zero disables expiry.
func (s *Store) SetTTL(ttl time.Duration) {
	s.ttl = ttl
}

// Save writes the snapshot, replacing any previous one.
func (s *Store) Save(snap *session.Snapshot) error {
	data, err := session.EncodeSnapshot(snap)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot in Redis: %w", err)
	}
	return nil
}

// Load reads the snapshot; a missing key maps to session.ErrNoSnapshot.
func (s *Store) Load() (*session.Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return nil, session.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot from Redis: %w", err)
	}
	return session.DecodeSnapshot(data)
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
