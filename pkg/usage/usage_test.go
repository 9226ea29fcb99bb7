package usage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zipstack/unstract-sdk-go/pkg/adapter/embedding"
	"github.com/Zipstack/unstract-sdk-go/pkg/adapter/llm"
	"github.com/Zipstack/unstract-sdk-go/pkg/platform"
)

type fakeUsageClient struct {
	records []platform.UsageRecord
	err     error
}

func (f *fakeUsageClient) PushUsage(_ context.Context, record platform.UsageRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}

func TestTokenCounterKnownModel(t *testing.T) {
	counter, err := NewTokenCounter("gpt-4o")
	require.NoError(t, err)
	assert.Greater(t, counter.Count("The capital of Tamilnadu is Chennai."), 0)
	assert.Equal(t, 0, counter.Count(""))
}

func TestTokenCounterUnknownModelFallsBack(t *testing.T) {
	counter, err := NewTokenCounter("some-exotic-model")
	require.NoError(t, err)
	assert.Greater(t, counter.Count("hello world"), 0)
}

func TestPusherForwardsLLMUsage(t *testing.T) {
	client := &fakeUsageClient{}
	pusher := NewPusher(client, "wf-1", "exec-1", "run-1")

	pusher.OnUsage(context.Background(), llm.UsageEvent{
		ExternalService: "openai",
		Model:           "gpt-4o",
		Usage:           llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	})

	require.Len(t, client.records, 1)
	record := client.records[0]
	assert.Equal(t, TypeLLM, record.UsageType)
	assert.Equal(t, "openai", record.ExternalService)
	assert.Equal(t, "wf-1", record.WorkflowID)
	assert.Equal(t, "exec-1", record.ExecutionID)
	assert.Equal(t, 15, record.TotalTokens)
}

func TestPusherForwardsEmbeddingUsage(t *testing.T) {
	client := &fakeUsageClient{}
	pusher := NewPusher(client, "wf-1", "exec-1", "run-1")

	pusher.EmbeddingListener().OnUsage(context.Background(), embedding.UsageEvent{
		ExternalService: "cohere",
		Tokens:          7,
	})

	require.Len(t, client.records, 1)
	assert.Equal(t, TypeEmbedding, client.records[0].UsageType)
	assert.Equal(t, 7, client.records[0].EmbeddingTokens)
	assert.Equal(t, 7, client.records[0].TotalTokens)
}

func TestPusherSwallowsFailures(t *testing.T) {
	client := &fakeUsageClient{err: errors.New("service down")}
	pusher := NewPusher(client, "", "", "")

	// Must not panic or propagate.
	pusher.OnUsage(context.Background(), llm.UsageEvent{ExternalService: "openai"})
	assert.Empty(t, client.records)
}

type fakeRedis struct {
	data map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	val, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(val, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, key := range keys {
		if _, ok := f.data[key]; ok {
			delete(f.data, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Close() error { return nil }

func TestOpMetricsStartCollectDelete(t *testing.T) {
	store := newFakeRedis()
	metrics := NewOpMetricsWithClient(store)

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	metrics.now = func() time.Time { return start }
	require.NoError(t, metrics.Start(context.Background(), "run-1", OpIndex))
	assert.Contains(t, store.data, "metrics:run-1:INDEX")

	metrics.now = func() time.Time { return start.Add(2 * time.Second) }
	collected, err := metrics.Collect(context.Background(), "run-1", OpIndex)
	require.NoError(t, err)
	require.NotNil(t, collected)
	assert.InDelta(t, 2.0, collected.TimeTaken, 1e-6)

	// Collecting deletes the mark; a second collect finds nothing.
	collected, err = metrics.Collect(context.Background(), "run-1", OpIndex)
	require.NoError(t, err)
	assert.Nil(t, collected)
}

func TestOpMetricsMissingKey(t *testing.T) {
	metrics := NewOpMetricsWithClient(newFakeRedis())

	collected, err := metrics.Collect(context.Background(), "run-1", OpAnswerPrompts)
	require.NoError(t, err)
	assert.Nil(t, collected)
}

func TestOpMetricsMeasure(t *testing.T) {
	store := newFakeRedis()
	metrics := NewOpMetricsWithClient(store)

	ran := false
	collected, err := metrics.Measure(context.Background(), "run-1", OpAnswerPrompts,
		func(context.Context) error {
			ran = true
			return nil
		})
	require.NoError(t, err)
	assert.True(t, ran)
	require.NotNil(t, collected)
	assert.GreaterOrEqual(t, collected.TimeTaken, 0.0)
	assert.Empty(t, store.data)
}

func TestOpMetricsMeasurePropagatesOpError(t *testing.T) {
	metrics := NewOpMetricsWithClient(newFakeRedis())

	_, err := metrics.Measure(context.Background(), "run-1", OpIndex,
		func(context.Context) error {
			return errors.New("extraction failed")
		})
	assert.EqualError(t, err, "extraction failed")
}
