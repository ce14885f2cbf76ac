package main

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/civic-stack/triage311/internal/model"
	"github.com/civic-stack/triage311/internal/pipeline"
	"github.com/civic-stack/triage311/internal/store"
	anthropicpkg "github.com/civic-stack/triage311/pkg/anthropic"
	"github.com/civic-stack/triage311/pkg/geocode"
)

// triageEnv holds the initialized pipeline, assembler, and optional
// store shared by the process/batch/serve/eval commands.
type triageEnv struct {
	Pipeline  *pipeline.Pipeline
	Assembler *pipeline.Assembler
	Store     store.Store // nil unless the command persists
}

// Close releases resources held by the environment.
func (te *triageEnv) Close() {
	if te.Store != nil {
		_ = te.Store.Close()
	}
}

// reviewThresholds maps the configured confidence floors into the
// assembler's policy type.
func reviewThresholds() model.ReviewThresholds {
	return model.ReviewThresholds{
		Triage:         cfg.Pipeline.TriageThreshold,
		Validation:     cfg.Pipeline.ValidationThreshold,
		Classification: cfg.Pipeline.ClassificationThreshold,
		Overall:        cfg.Pipeline.OverallThreshold,
	}
}

// initTriage builds the pipeline and assembler. When withStore is true
// the store is opened and migrated as well. Callers should defer
// env.Close().
func initTriage(ctx context.Context, withStore bool) (*triageEnv, error) {
	if err := cfg.Validate("triage"); err != nil {
		return nil, err
	}

	env := &triageEnv{}
	if withStore {
		st, err := openMigratedStore(ctx)
		if err != nil {
			return nil, err
		}
		env.Store = st
	}

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	env.Pipeline = pipeline.New(cfg, anthropicClient)

	// Geocoding is optional; the assembler tolerates a nil client.
	var geocoder geocode.Client
	if cfg.Geocode.Enabled {
		geocoder = geocode.NewClient(
			geocode.WithRateLimit(cfg.Geocode.RateLimit),
			geocode.WithDefaultCity(cfg.Geocode.DefaultCity),
			geocode.WithHTTPClient(&http.Client{
				Timeout: time.Duration(cfg.Geocode.TimeoutSecs) * time.Second,
			}),
		)
		zap.L().Info("geocoding enabled", zap.Float64("rate_limit", cfg.Geocode.RateLimit))
	}
	env.Assembler = pipeline.NewAssembler(reviewThresholds(), geocoder)

	return env, nil
}
