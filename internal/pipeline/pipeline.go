package pipeline

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/civic-stack/triage311/internal/config"
	"github.com/civic-stack/triage311/internal/model"
	"github.com/civic-stack/triage311/pkg/anthropic"
)

// Routing actions surfaced to the resident for terminal outcomes.
const (
	action911      = "Please call 911 immediately. This requires emergency services."
	actionRedirect = "This issue should be directed to another service provider."
)

// Messages attached to extraction failures. The expedited variant keeps
// the urgency visible to whoever handles the fallout.
const (
	msgExtractFailedExpedited = "Failed to extract request details, but this appears to be an urgent 311 matter."
	msgExtractFailed          = "Failed to extract request details."
)

// Pipeline orchestrates the two-stage triage of citizen messages:
// classify first, then extract only for messages staying in 311.
type Pipeline struct {
	cfg       *config.Config
	anthropic anthropic.Client
}

// New creates a Pipeline.
func New(cfg *config.Config, aiClient anthropic.Client) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		anthropic: aiClient,
	}
}

// Run processes a single message end to end. It always produces a
// Result; capability failures surface as fail-closed classifications or
// extraction_failed outcomes, never as a dropped message.
func (p *Pipeline) Run(ctx context.Context, message string) *model.Result {
	log := zap.L().With(zap.Int("message_len", len(message)))
	log.Info("pipeline: processing request")

	result := &model.Result{RawInput: message}

	cls, usage := Classify(ctx, message, p.anthropic, p.cfg.Anthropic, p.cfg.Pipeline.City)
	result.Classification = cls
	result.Usage.Add(usage)

	switch cls.Recommendation {
	case model.RecommendRedirect911:
		result.Outcome = model.OutcomeEmergency
		result.Action = action911
		result.Message = cls.Reason
		return result

	case model.RecommendRedirectOther:
		result.Outcome = model.OutcomeNonServiceable
		result.Action = actionRedirect
		result.Message = cls.Reason
		return result
	}

	// EXPEDITE and PROCESS_NORMALLY both extract.
	extracted, extractUsage, err := Extract(ctx, message, p.anthropic, p.cfg.Anthropic)
	result.Usage.Add(extractUsage)

	expedited := cls.Recommendation == model.RecommendExpedite

	if err != nil || extracted == nil {
		result.Outcome = model.OutcomeExtractionFailed
		if expedited {
			result.Message = msgExtractFailedExpedited
		} else {
			result.Message = msgExtractFailed
		}
		return result
	}

	// Status is only meaningful for fully processed requests; failed
	// extractions keep the urgency in the classification instead. An
	// expedited request is critical no matter what the extractor
	// estimated from the text alone.
	result.Status = model.StatusNormal
	if expedited {
		extracted.Priority = model.PriorityCritical
		result.Status = model.StatusExpedited
	}
	result.Outcome = model.OutcomeProcessed
	result.Extracted = extracted

	log.Info("pipeline: request processed",
		zap.String("outcome", string(result.Outcome)),
		zap.String("status", result.Status),
		zap.String("category", extracted.Category),
		zap.String("priority", string(extracted.Priority)),
		zap.Int("input_tokens", result.Usage.InputTokens),
		zap.Int("output_tokens", result.Usage.OutputTokens),
	)
	return result
}

// RunBatch processes messages concurrently, bounded by
// batch.max_concurrent_requests. Results are positionally aligned with
// the input; a failed message still yields a Result at its slot.
func (p *Pipeline) RunBatch(ctx context.Context, messages []string) []*model.Result {
	results := make([]*model.Result, len(messages))
	if len(messages) == 0 {
		return results
	}

	limit := p.cfg.Batch.MaxConcurrentRequests
	if limit <= 0 {
		limit = 5
	}

	var processed atomic.Int64
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, msg := range messages {
		g.Go(func() error {
			results[i] = p.Run(gCtx, msg)
			n := processed.Add(1)
			if n%25 == 0 {
				zap.L().Info("pipeline: batch progress",
					zap.Int64("processed", n),
					zap.Int("total", len(messages)),
				)
			}
			return nil
		})
	}

	// Workers never return errors; Wait only propagates ctx cancellation.
	_ = g.Wait()

	return results
}
