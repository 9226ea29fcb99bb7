package usage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Zipstack/unstract-sdk-go/pkg/sdkerr"
	"github.com/Zipstack/unstract-sdk-go/pkg/storage"
)

// metricsTTL keeps abandoned start marks from accumulating.
const metricsTTL = 24 * time.Hour

// Operation ids recorded by the latency recorder.
const (
	OpIndex         = "INDEX"
	OpAnswerPrompts = "ANSWER_PROMPTS"
)

// RedisClient is the slice of the go-redis client the recorder needs.
type RedisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// OpMetrics is the Redis-backed per-operation latency recorder. A start
// timestamp is marked under metrics:<run_id>:<op_id>; collecting reads
// the elapsed time and deletes the mark.
type OpMetrics struct {
	client RedisClient
	now    func() time.Time
}

// Metrics is the collected latency record of one operation.
type Metrics struct {
	TimeTaken float64 `json:"time_taken(s)"`
}

// NewOpMetrics connects the recorder, verifying connectivity.
func NewOpMetrics(ctx context.Context, cfg storage.RedisConfig) (*OpMetrics, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindSdk, "could not connect to metrics store", err)
	}
	return &OpMetrics{client: client, now: time.Now}, nil
}

// NewOpMetricsWithClient wraps an already connected client.
func NewOpMetricsWithClient(client RedisClient) *OpMetrics {
	return &OpMetrics{client: client, now: time.Now}
}

func metricsKey(runID, opID string) string {
	return fmt.Sprintf("metrics:%s:%s", runID, opID)
}

// Start marks the beginning of an operation.
func (m *OpMetrics) Start(ctx context.Context, runID, opID string) error {
	timestamp := strconv.FormatFloat(float64(m.now().UnixNano())/1e9, 'f', -1, 64)
	err := m.client.Set(ctx, metricsKey(runID, opID), timestamp, metricsTTL).Err()
	if err != nil {
		return sdkerr.Wrap(sdkerr.KindSdk, "could not record operation start", err)
	}
	return nil
}

// Collect returns the elapsed time since Start and deletes the mark.
// A missing mark yields nil.
func (m *OpMetrics) Collect(ctx context.Context, runID, opID string) (*Metrics, error) {
	key := metricsKey(runID, opID)
	raw, err := m.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindSdk, "could not read operation start", err)
	}

	started, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindSdk, "malformed operation start mark", err)
	}

	if err := m.client.Del(ctx, key).Err(); err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindSdk, "could not clear operation start", err)
	}

	elapsed := float64(m.now().UnixNano())/1e9 - started
	return &Metrics{TimeTaken: elapsed}, nil
}

// Measure wraps an operation with Start and Collect, returning its
// latency alongside the operation error. Metric failures never mask
// the operation result.
func (m *OpMetrics) Measure(ctx context.Context, runID, opID string, op func(ctx context.Context) error) (*Metrics, error) {
	if err := m.Start(ctx, runID, opID); err != nil {
		return nil, op(ctx)
	}
	opErr := op(ctx)
	collected, err := m.Collect(ctx, runID, opID)
	if err != nil {
		return nil, opErr
	}
	return collected, opErr
}

// Close releases the Redis connection.
func (m *OpMetrics) Close() error { return m.client.Close() }
