package usage

import (
	"context"
	"log/slog"
	"time"

	"github.com/Zipstack/unstract-sdk-go/pkg/adapter/embedding"
	"github.com/Zipstack/unstract-sdk-go/pkg/adapter/llm"
	"github.com/Zipstack/unstract-sdk-go/pkg/platform"
)

// pushTimeout bounds one usage POST; a slow platform service must not
// stall the pipeline.
const pushTimeout = 30 * time.Second

// Usage type labels accepted by the platform service.
const (
	TypeLLM       = "llm"
	TypeEmbedding = "embedding"
)

// UsageClient is the slice of the platform client the pusher needs.
type UsageClient interface {
	PushUsage(ctx context.Context, record platform.UsageRecord) error
}

// Pusher forwards adapter token usage to the platform service. It
// implements both the LLM and the embedding usage listener contracts.
// Push failures are logged and swallowed.
type Pusher struct {
	client      UsageClient
	workflowID  string
	executionID string
	runID       string
	logger      *slog.Logger
}

// NewPusher wires a pusher to a platform client and the identifiers of
// the running execution.
func NewPusher(client UsageClient, workflowID, executionID, runID string) *Pusher {
	return &Pusher{
		client:      client,
		workflowID:  workflowID,
		executionID: executionID,
		runID:       runID,
		logger:      slog.Default(),
	}
}

// OnUsage implements llm.UsageListener.
func (p *Pusher) OnUsage(ctx context.Context, event llm.UsageEvent) {
	p.push(ctx, platform.UsageRecord{
		UsageType:        TypeLLM,
		ExternalService:  event.ExternalService,
		WorkflowID:       p.workflowID,
		ExecutionID:      p.executionID,
		RunID:            p.runID,
		PromptTokens:     event.Usage.PromptTokens,
		CompletionTokens: event.Usage.CompletionTokens,
		TotalTokens:      event.Usage.TotalTokens,
	})
}

// EmbeddingListener adapts the pusher to the embedding listener
// contract.
func (p *Pusher) EmbeddingListener() embedding.UsageListener {
	return embeddingListener{p}
}

type embeddingListener struct {
	pusher *Pusher
}

func (l embeddingListener) OnUsage(ctx context.Context, event embedding.UsageEvent) {
	l.pusher.push(ctx, platform.UsageRecord{
		UsageType:       TypeEmbedding,
		ExternalService: event.ExternalService,
		WorkflowID:      l.pusher.workflowID,
		ExecutionID:     l.pusher.executionID,
		RunID:           l.pusher.runID,
		EmbeddingTokens: event.Tokens,
		TotalTokens:     event.Tokens,
	})
}

func (p *Pusher) push(ctx context.Context, record platform.UsageRecord) {
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()

	if err := p.client.PushUsage(pushCtx, record); err != nil {
		p.logger.Error("failed to push usage record",
			"usage_type", record.UsageType,
			"external_service", record.ExternalService,
			"error", err)
	}
}

var _ llm.UsageListener = (*Pusher)(nil)
