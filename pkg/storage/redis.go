package storage

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis connection environment variables.
const (
	EnvRedisHost     = "REDIS_HOST"
	EnvRedisPort     = "REDIS_PORT"
	EnvRedisUser     = "REDIS_USER"
	EnvRedisPassword = "REDIS_PASSWORD"
)

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	// TTL applied to every stored object. Zero disables expiry.
	TTL time.Duration `mapstructure:"ttl"`
}

// RedisConfigFromEnv reads REDIS_* variables.
func RedisConfigFromEnv() RedisConfig {
	cfg := RedisConfig{
		Host:     os.Getenv(EnvRedisHost),
		Username: os.Getenv(EnvRedisUser),
		Password: os.Getenv(EnvRedisPassword),
		Port:     6379,
	}
	if port := os.Getenv(EnvRedisPort); port != "" {
		fmt.Sscanf(port, "%d", &cfg.Port)
	}
	return cfg
}

// RedisStorage implements FileStorage over Redis string keys. Paths map to
// keys verbatim; "directories" are key prefixes.
type RedisStorage struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStorage creates a Redis backend and verifies connectivity.
func NewRedisStorage(ctx context.Context, cfg RedisConfig) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, initError(ProviderRedis, err)
	}
	return &RedisStorage{client: client, ttl: cfg.TTL}, nil
}

func (s *RedisStorage) Provider() Provider { return ProviderRedis }

func (s *RedisStorage) Read(ctx context.Context, path string, offset int64, length int64) ([]byte, error) {
	data, err := s.client.Get(ctx, path).Bytes()
	if err == redis.Nil {
		return nil, os.ErrNotExist
	}
	if err != nil {
		return nil, opError("read", path, err)
	}
	if offset > int64(len(data)) {
		return nil, nil
	}
	data = data[offset:]
	if length >= 0 && length < int64(len(data)) {
		data = data[:length]
	}
	return data, nil
}

func (s *RedisStorage) Write(ctx context.Context, path string, data []byte) (int, error) {
	if err := s.client.Set(ctx, path, data, s.ttl).Err(); err != nil {
		return 0, opError("write", path, err)
	}
	return len(data), nil
}

// Mkdir is a no-op: Redis has no directories.
func (s *RedisStorage) Mkdir(ctx context.Context, path string, createParents bool) error {
	return nil
}

func (s *RedisStorage) Exists(ctx context.Context, path string) (bool, error) {
	n, err := s.client.Exists(ctx, path).Result()
	if err != nil {
		return false, opError("stat", path, err)
	}
	return n > 0, nil
}

func (s *RedisStorage) List(ctx context.Context, path string) ([]string, error) {
	prefix := strings.TrimSuffix(path, "/") + "/"
	var names []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		names = append(names, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, opError("list", path, err)
	}
	return names, nil
}

func (s *RedisStorage) Remove(ctx context.Context, path string, recursive bool) error {
	if err := s.client.Del(ctx, path).Err(); err != nil {
		return opError("remove", path, err)
	}
	if !recursive {
		return nil
	}
	iter := s.client.Scan(ctx, 0, strings.TrimSuffix(path, "/")+"/*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return opError("remove", iter.Val(), err)
		}
	}
	return opError("remove", path, iter.Err())
}

func (s *RedisStorage) Copy(ctx context.Context, src, dst string) error {
	data, err := s.Read(ctx, src, 0, -1)
	if err != nil {
		return err
	}
	_, err = s.Write(ctx, dst, data)
	return err
}

func (s *RedisStorage) Size(ctx context.Context, path string) (int64, error) {
	n, err := s.client.StrLen(ctx, path).Result()
	if err != nil {
		return 0, opError("stat", path, err)
	}
	if n == 0 {
		exists, err := s.Exists(ctx, path)
		if err != nil {
			return 0, err
		}
		if !exists {
			return 0, os.ErrNotExist
		}
	}
	return n, nil
}

var _ FileStorage = (*RedisStorage)(nil)
