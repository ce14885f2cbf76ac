package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/civic-stack/triage311/internal/config"
	"github.com/civic-stack/triage311/internal/model"
	"github.com/civic-stack/triage311/internal/resilience"
	"github.com/civic-stack/triage311/pkg/anthropic"
)

const classifySystemPrompt = `You are %s's 311 service triage assistant. Your job is to quickly assess incoming requests to determine:

1. If this is an EMERGENCY requiring immediate attention (defined as an immediate threat to life, safety, or critical infrastructure)
2. If this request BELONGS in %s's 311 non-emergency system

## %s 311 Services (RELEVANT requests)
311 handles non-emergency city service requests including but not limited to:
- Missed trash/recycling pickup or improper disposal
- Pothole repair and street damage
- Street cleaning requests
- Bulk item removal/scheduling
- Needle cleanup/sharps removal
- Broken/damaged street signs
- Graffiti removal
- Traffic signal/light malfunctions
- Parking enforcement and ticket payment
- Streetlight outages
- Park maintenance issues
- Reporting abandoned vehicles
- Rodent activity
- Snow removal issues
- Tree maintenance (city trees)
- Noise complaints
- Broken sidewalks
- Building/housing code violations
- Water/sewer issues on public property

## NOT 311 Services (IRRELEVANT requests)
The following should be directed elsewhere:
- Emergencies requiring immediate response (direct to 911):
  * Active fires or smoke from buildings
  * Medical emergencies
  * Crimes in progress
  * Gas leaks
  * Downed power lines
  * Traffic accidents with injuries
  * Flooding inside buildings causing immediate danger
- Utility issues on private property (direct to the appropriate utility):
  * Electric service problems
  * Gas service problems
  * Cable/internet service
  * Private water/plumbing issues within buildings
- Other non-city services:
  * State highway issues
  * Public transit problems
  * Private property disputes between neighbors
  * Legal questions or advice
  * Social services not provided by the city

Analyze the provided request and respond with a valid JSON object:
{"is_emergency": <true|false>, "belongs_in_311": <true|false>, "reason": "<brief explanation>", "confidence": <0.0-1.0>}`

// classifyResponse is the JSON shape requested from the model. The
// model is never asked for a recommendation; routing is derived from
// the two booleans in code.
type classifyResponse struct {
	IsEmergency  bool    `json:"is_emergency"`
	BelongsIn311 bool    `json:"belongs_in_311"`
	Reason       string  `json:"reason"`
	Confidence   float64 `json:"confidence"`
}

// failClosedReason explains a classification produced without a usable
// model response.
const failClosedReason = "Error processing request, defaulting to normal handling"

// Classify performs the triage stage on a raw citizen message. It never
// returns an error: when the model call fails after retries, or the
// response cannot be parsed, the message is kept in the normal 311
// intake path rather than invented into an emergency or bounced out of
// the system.
func Classify(ctx context.Context, message string, aiClient anthropic.Client, aiCfg config.AnthropicConfig, city string) (model.Classification, model.TokenUsage) {
	usage := model.TokenUsage{}
	log := zap.L().With(zap.String("stage", "classify"))

	req := anthropic.MessageRequest{
		Model:     aiCfg.ClassifyModel,
		MaxTokens: int64(aiCfg.MaxTokens),
		System:    anthropic.BuildCachedSystemBlocks(fmt.Sprintf(classifySystemPrompt, city, city, city)),
		Messages: []anthropic.Message{
			{Role: "user", Content: message},
		},
	}

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("anthropic", "classify")

	resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return aiClient.CreateMessage(ctx, req)
	})
	if err != nil {
		log.Warn("classify: model call failed, using fail-closed default", zap.Error(err))
		return failClosedClassification(), usage
	}

	usage.Add(model.TokenUsage{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	})
	resp.Usage.LogCost(aiCfg.ClassifyModel, "classify")

	var parsed classifyResponse
	if err := json.Unmarshal([]byte(cleanJSON(extractText(resp))), &parsed); err != nil {
		log.Warn("classify: failed to parse model json, using fail-closed default", zap.Error(err))
		return failClosedClassification(), usage
	}
	if parsed.Reason == "" {
		log.Warn("classify: model response missing reason, using fail-closed default")
		return failClosedClassification(), usage
	}

	cls := model.Classification{
		IsEmergency:  parsed.IsEmergency,
		BelongsIn311: parsed.BelongsIn311,
		Reason:       parsed.Reason,
		Confidence:   parsed.Confidence,
	}
	cls.Recommendation = Resolve(cls.IsEmergency, cls.BelongsIn311)

	log.Debug("classify: done",
		zap.Bool("is_emergency", cls.IsEmergency),
		zap.Bool("belongs_in_311", cls.BelongsIn311),
		zap.String("recommendation", string(cls.Recommendation)),
		zap.Float64("confidence", cls.Confidence),
	)
	return cls, usage
}

// failClosedClassification keeps an unclassifiable message inside
// normal 311 intake. Not an emergency (911 referrals must never be
// fabricated) and not bounced out of the system (a resident's report
// must not be dropped because our model call failed).
func failClosedClassification() model.Classification {
	return model.Classification{
		IsEmergency:    false,
		BelongsIn311:   true,
		Reason:         failClosedReason,
		Confidence:     0,
		Recommendation: model.RecommendProcessNormal,
	}
}
