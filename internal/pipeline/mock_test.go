package pipeline

import (
	"context"
	"fmt"

	"github.com/stretchr/testify/mock"

	"github.com/civic-stack/triage311/internal/config"
	"github.com/civic-stack/triage311/pkg/anthropic"
	"github.com/civic-stack/triage311/pkg/geocode"
)

// --- Anthropic Mock ---

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

// --- Geocode Mock ---

type mockGeocoder struct {
	mock.Mock
}

func (m *mockGeocoder) Geocode(ctx context.Context, address string) (*geocode.Result, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*geocode.Result), args.Error(1)
}

// --- Helpers ---

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		ID:      "msg_test",
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}
}

func classifyJSON(isEmergency, belongsIn311 bool, confidence float64) string {
	return fmt.Sprintf(
		`{"is_emergency": %t, "belongs_in_311": %t, "reason": "test reasoning", "confidence": %g}`,
		isEmergency, belongsIn311, confidence,
	)
}

func extractJSON(category, priority string, confidence float64) string {
	return fmt.Sprintf(
		`{"category": %q, "subcategory": "Pothole", "address": "25 Beacon St", "location_details": "near the crosswalk", "description": "large pothole in the road", "priority": %q, "notes": "", "confidence": %g}`,
		category, priority, confidence,
	)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Anthropic.ClassifyModel = "claude-haiku-4-5-20251001"
	cfg.Anthropic.ExtractModel = "claude-sonnet-4-5-20250929"
	cfg.Anthropic.MaxTokens = 1024
	cfg.Pipeline.City = "Boston"
	cfg.Batch.MaxConcurrentRequests = 4
	return cfg
}

// isClassifyReq matches requests against the classify stage by model.
func isClassifyReq(req anthropic.MessageRequest) bool {
	return req.Model == "claude-haiku-4-5-20251001"
}

// isExtractReq matches requests against the extract stage by model.
func isExtractReq(req anthropic.MessageRequest) bool {
	return req.Model == "claude-sonnet-4-5-20250929"
}
