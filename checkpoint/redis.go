package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "catalogscrape"

// RedisOptions configures the Redis checkpoint backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Job      string
}

// RedisStore keeps the job marker in a string key and the visited log in a set.
type RedisStore struct {
	client *redis.Client
	job    string
}

// OpenRedisStore connects and pings the server.
func OpenRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	return NewRedisStore(client, opts.Job), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, job string) *RedisStore {
	return &RedisStore{client: client, job: job}
}

func (s *RedisStore) jobKey() string {
	return fmt.Sprintf("%s:%s:job", redisKeyPrefix, s.job)
}

func (s *RedisStore) visitedKey() string {
	return fmt.Sprintf("%s:%s:visited", redisKeyPrefix, s.job)
}

// LoadJob reads the job marker.
func (s *RedisStore) LoadJob(ctx context.Context) (*Job, error) {
	raw, err := s.client.Get(ctx, s.jobKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoJob
	}
	if err != nil {
		return nil, fmt.Errorf("get job marker: %w", err)
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decode job marker: %w", err)
	}
	return &job, nil
}

// SaveJob writes the job marker.
func (s *RedisStore) SaveJob(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job marker: %w", err)
	}
	if err := s.client.Set(ctx, s.jobKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("set job marker: %w", err)
	}
	return nil
}

// Visited returns the members of the visited set in no particular order.
func (s *RedisStore) Visited(ctx context.Context) ([]string, error) {
	urls, err := s.client.SMembers(ctx, s.visitedKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("read visited set: %w", err)
	}
	return urls, nil
}

// Append adds url to the visited set.
func (s *RedisStore) Append(ctx context.Context, url string) error {
	if err := s.client.SAdd(ctx, s.visitedKey(), url).Err(); err != nil {
		return fmt.Errorf("add visited: %w", err)
	}
	return nil
}

// Reset deletes the visited set.
func (s *RedisStore) Reset(ctx context.Context) error {
	if err := s.client.Del(ctx, s.visitedKey()).Err(); err != nil {
		return fmt.Errorf("reset visited: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
