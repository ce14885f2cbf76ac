// Package evaluate runs the triage pipeline over a labeled CSV and
// scores the output against the expected values.
package evaluate

import (
	"context"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/civic-stack/triage311/internal/fetcher"
	"github.com/civic-stack/triage311/internal/model"
	"github.com/civic-stack/triage311/internal/pipeline"
)

// LabeledCase is one evaluation row: the resident message plus the
// values a reviewer expects the pipeline to produce. Empty expected
// fields are not scored.
type LabeledCase struct {
	RawInput       string `json:"raw_input"`
	Recommendation string `json:"recommendation,omitempty"`
	Category       string `json:"category,omitempty"`
	Department     string `json:"department,omitempty"`
	Priority       string `json:"priority,omitempty"`
}

// CaseResult pairs a labeled case with what the pipeline produced.
type CaseResult struct {
	Case   LabeledCase            `json:"case"`
	Result *model.Result          `json:"result"`
	Record *model.CanonicalRecord `json:"record"`
}

// Metric tracks accuracy for one compared field.
type Metric struct {
	Compared int     `json:"compared"`
	Matched  int     `json:"matched"`
	Accuracy float64 `json:"accuracy"`
}

func (m *Metric) score(expected, actual string) {
	if expected == "" {
		return
	}
	m.Compared++
	if strings.EqualFold(strings.TrimSpace(expected), strings.TrimSpace(actual)) {
		m.Matched++
	}
}

func (m *Metric) finalize() {
	if m.Compared > 0 {
		m.Accuracy = math.Round(float64(m.Matched)/float64(m.Compared)*10000) / 100
	}
}

// Report summarizes an evaluation run.
type Report struct {
	Total          int          `json:"total"`
	Recommendation Metric       `json:"recommendation"`
	Category       Metric       `json:"category"`
	Department     Metric       `json:"department"`
	Priority       Metric       `json:"priority"`
	Cases          []CaseResult `json:"cases"`
}

// Runner evaluates the pipeline against labeled cases.
type Runner struct {
	pipeline    *pipeline.Pipeline
	assembler   *pipeline.Assembler
	concurrency int
}

// NewRunner builds an evaluation runner. Concurrency below 1 defaults
// to serial execution.
func NewRunner(p *pipeline.Pipeline, a *pipeline.Assembler, concurrency int) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{pipeline: p, assembler: a, concurrency: concurrency}
}

// ReadCases parses a labeled evaluation CSV. The file must carry a
// header with a raw_input column; recommendation, category,
// department, and priority columns are optional.
func ReadCases(ctx context.Context, r io.Reader) ([]LabeledCase, error) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})

	var idx map[string]int
	select {
	case header, ok := <-headerCh:
		if !ok {
			if err := <-errCh; err != nil {
				return nil, err
			}
			return nil, nil
		}
		idx = fetcher.HeaderIndex(header)
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "evaluate: waiting for header")
	}
	if _, ok := idx["raw_input"]; !ok {
		return nil, eris.New("evaluate: file has no raw_input column")
	}

	var cases []LabeledCase
	row := 1
	for rec := range rowCh {
		row++
		raw := fetcher.Field(rec, idx, "raw_input")
		if raw == "" {
			zap.L().Warn("evaluate: row missing raw_input, skipping", zap.Int("row", row))
			continue
		}
		cases = append(cases, LabeledCase{
			RawInput:       raw,
			Recommendation: fetcher.Field(rec, idx, "recommendation"),
			Category:       fetcher.Field(rec, idx, "category"),
			Department:     fetcher.Field(rec, idx, "department"),
			Priority:       fetcher.Field(rec, idx, "priority"),
		})
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return cases, nil
}

// Run processes every labeled case through the pipeline and scores the
// comparable fields. Per-case pipeline failures are absorbed by the
// pipeline's own fail-closed behavior; Run only errors on I/O.
func (r *Runner) Run(ctx context.Context, cases []LabeledCase) *Report {
	report := &Report{Total: len(cases), Cases: make([]CaseResult, len(cases))}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, c := range cases {
		g.Go(func() error {
			result := r.pipeline.Run(gctx, c.RawInput)
			record := r.assembler.Assemble(gctx, result)

			mu.Lock()
			defer mu.Unlock()
			report.Cases[i] = CaseResult{Case: c, Result: result, Record: record}
			report.Recommendation.score(c.Recommendation, string(result.Classification.Recommendation))
			report.Category.score(c.Category, record.Category)
			report.Department.score(c.Department, record.Department)
			report.Priority.score(c.Priority, string(record.Priority))
			return nil
		})
	}
	_ = g.Wait() // goroutines never return errors

	for _, m := range []*Metric{
		&report.Recommendation, &report.Category, &report.Department, &report.Priority,
	} {
		m.finalize()
	}

	zap.L().Info("evaluate: run complete",
		zap.Int("total", report.Total),
		zap.Float64("recommendation_accuracy", report.Recommendation.Accuracy),
		zap.Float64("category_accuracy", report.Category.Accuracy),
		zap.Float64("priority_accuracy", report.Priority.Accuracy),
	)
	return report
}
