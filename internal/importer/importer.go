package importer

import (
	"context"
	"io"
	"math/rand"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/civic-stack/triage311/internal/fetcher"
	"github.com/civic-stack/triage311/internal/model"
	"github.com/civic-stack/triage311/internal/store"
)

const defaultBatchSize = 500

// Options controls a single import run.
type Options struct {
	Limit  int     // stop after this many imported rows (0 = no limit)
	Sample float64 // keep this fraction of rows, 0 or 1 = keep all
}

// Stats summarizes an import run.
type Stats struct {
	Processed int   // rows read from the file
	Imported  int64 // rows written to the store
	Skipped   int   // rows dropped (missing ID, sampling, malformed)
}

// Importer streams a 311 export into the store in batches.
type Importer struct {
	store     store.Store
	batchSize int
}

// New returns an Importer flushing every batchSize records.
func New(s store.Store, batchSize int) *Importer {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Importer{store: s, batchSize: batchSize}
}

// Run reads CSV rows from r, transforms them, and upserts them into the
// store. The file must carry a header row with export column names.
func (im *Importer) Run(ctx context.Context, r io.Reader, opts Options) (*Stats, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(streamCtx, r, fetcher.CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})

	var idx map[string]int
	select {
	case header, ok := <-headerCh:
		if !ok {
			// Empty file; drain the error channel for a parse failure.
			if err := <-errCh; err != nil {
				return nil, err
			}
			return &Stats{}, nil
		}
		idx = fetcher.HeaderIndex(header)
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "importer: waiting for header")
	}
	if _, ok := idx["case_enquiry_id"]; !ok {
		return nil, eris.New("importer: file has no case_enquiry_id column")
	}

	stats := &Stats{}
	batch := make([]model.CanonicalRecord, 0, im.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := im.store.ImportRecords(ctx, batch)
		if err != nil {
			return err
		}
		stats.Imported += n
		batch = batch[:0]
		return nil
	}

	limitHit := false
	for row := range rowCh {
		stats.Processed++
		if opts.Sample > 0 && opts.Sample < 1 && rand.Float64() > opts.Sample {
			stats.Skipped++
			continue
		}

		rec, err := TransformRow(row, idx)
		if err != nil {
			stats.Skipped++
			zap.L().Debug("importer: skipping row", zap.Int("row", stats.Processed), zap.Error(err))
			continue
		}

		batch = append(batch, *rec)
		if len(batch) >= im.batchSize {
			if err := flush(); err != nil {
				return stats, err
			}
			zap.L().Info("importer: progress",
				zap.Int("processed", stats.Processed),
				zap.Int64("imported", stats.Imported),
			)
		}

		if opts.Limit > 0 && stats.Processed-stats.Skipped >= opts.Limit {
			limitHit = true
			cancel()
			break
		}
	}
	if limitHit {
		for range rowCh {
		}
	}

	// Surface any parse error before flushing the tail. A limit break
	// cancels the reader, so its errors are expected there.
	if err := <-errCh; err != nil && !limitHit {
		return stats, err
	}
	if err := flush(); err != nil {
		return stats, err
	}

	zap.L().Info("importer: done",
		zap.Int("processed", stats.Processed),
		zap.Int64("imported", stats.Imported),
		zap.Int("skipped", stats.Skipped),
	)
	return stats, nil
}
