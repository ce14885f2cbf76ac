package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/civic-stack/triage311/internal/config"
	"github.com/civic-stack/triage311/internal/model"
	"github.com/civic-stack/triage311/internal/resilience"
	"github.com/civic-stack/triage311/pkg/anthropic"
)

const extractSystemPrompt = `You are an assistant that extracts structured information from 311 service request conversations. Focus on identifying the key details needed to create a service request. If any required information is missing, use logical inference or mark as "Unknown".

Respond with a valid JSON object:
{
  "category": "<primary service category, e.g. Public Works, Sanitation, Transportation>",
  "subcategory": "<more specific subcategory>",
  "address": "<full street address of the issue, or "Unknown">",
  "location_details": "<additional location specifics, or "Unknown">",
  "description": "<detailed description of the reported issue>",
  "priority": "<low|medium|high|critical>",
  "notes": "<any extra context or observations, or "Unknown">",
  "confidence": <0.0-1.0>
}`

// extractResponse is the JSON shape requested from the model.
type extractResponse struct {
	Category        string  `json:"category"`
	Subcategory     string  `json:"subcategory"`
	Address         string  `json:"address"`
	LocationDetails string  `json:"location_details"`
	Description     string  `json:"description"`
	Priority        string  `json:"priority"`
	Notes           string  `json:"notes"`
	Confidence      float64 `json:"confidence"`
}

// Extract pulls a structured service request out of a message. On any
// failure it returns nil and the error: downstream must see the absence
// of data, never a fabricated request.
func Extract(ctx context.Context, message string, aiClient anthropic.Client, aiCfg config.AnthropicConfig) (*model.ExtractedRequest, model.TokenUsage, error) {
	usage := model.TokenUsage{}
	log := zap.L().With(zap.String("stage", "extract"))

	req := anthropic.MessageRequest{
		Model:     aiCfg.ExtractModel,
		MaxTokens: int64(aiCfg.MaxTokens),
		System:    anthropic.BuildCachedSystemBlocks(extractSystemPrompt),
		Messages: []anthropic.Message{
			{Role: "user", Content: message},
		},
	}

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("anthropic", "extract")

	resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return aiClient.CreateMessage(ctx, req)
	})
	if err != nil {
		log.Warn("extract: model call failed", zap.Error(err))
		return nil, usage, eris.Wrap(err, "pipeline: extract request")
	}

	usage.Add(model.TokenUsage{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	})
	resp.Usage.LogCost(aiCfg.ExtractModel, "extract")

	var parsed extractResponse
	if err := json.Unmarshal([]byte(cleanJSON(extractText(resp))), &parsed); err != nil {
		log.Warn("extract: failed to parse model json", zap.Error(err))
		return nil, usage, eris.Wrap(err, "pipeline: parse extract json")
	}

	extracted := &model.ExtractedRequest{
		Category:        orUnknown(parsed.Category),
		Subcategory:     orUnknown(parsed.Subcategory),
		Address:         orUnknown(parsed.Address),
		LocationDetails: orUnknown(parsed.LocationDetails),
		Description:     strings.TrimSpace(parsed.Description),
		Priority:        model.ParsePriority(parsed.Priority),
		Notes:           strings.TrimSpace(parsed.Notes),
		Confidence:      parsed.Confidence,
	}
	if extracted.Description == "" {
		extracted.Description = strings.TrimSpace(message)
	}

	log.Debug("extract: done",
		zap.String("category", extracted.Category),
		zap.String("priority", string(extracted.Priority)),
		zap.Float64("confidence", extracted.Confidence),
	)
	return extracted, usage, nil
}

// orUnknown normalizes empty model fields to the Unknown sentinel.
func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.UnknownField
	}
	return s
}
