package storage

import (
	"context"
	"fmt"
	"iter"

	"github.com/jmoiron/sqlx"

	"azureorm/internal/schema"
)

const DefaultChunkSize = 10_000

// BulkProgress is reported after every committed batch.
type BulkProgress struct {
	Batch    int
	Inserted int64
	// Total is the expected row count, zero when unknown.
	Total int64
}

type BulkOptions struct {
	// ChunkSize is the number of rows per batch. Zero uses the wrapper's
	// configured size.
	ChunkSize int
	// ReportProgress logs every committed batch.
	ReportProgress bool
	// ExpectedCount is included in progress reports when known.
	ExpectedCount int64
	OnBatch       func(BulkProgress)
}

// BulkInsert writes records in batches of opts.ChunkSize. Every batch is
// committed on its own, in order. When a batch fails the returned
// *BulkInsertError tells how many rows were already committed; those rows
// stay in the table.
func BulkInsert[T any, PT modelPtr[T]](ctx context.Context, w *Wrapper, records iter.Seq2[*T, error], opts BulkOptions) (int64, error) {
	t, err := tableOf[T, PT](w)
	if err != nil {
		return 0, err
	}

	rows := func(yield func([]any, error) bool) {
		for rec, err := range records {
			if err == nil && rec == nil {
				err = fmt.Errorf("%w: nil record", schema.ErrTypeMismatch)
			}
			if err != nil {
				yield(nil, err)
				return
			}
			p := PT(rec)
			prepare(p)
			if !yield(schema.Values(p), nil) {
				return
			}
		}
	}
	return w.bulkLoad(ctx, t, rows, opts)
}

// BulkInsertMaps is BulkInsert for rows given as column to value maps.
// Values go through the same assignment rules as Insert: missing nullable
// columns are NULL, missing columns with a default take it, and a row
// missing any other column fails its batch with ErrConstraint.
func BulkInsertMaps[T any, PT modelPtr[T]](ctx context.Context, w *Wrapper, records iter.Seq2[map[string]any, error], opts BulkOptions) (int64, error) {
	t, err := tableOf[T, PT](w)
	if err != nil {
		return 0, err
	}

	rows := func(yield func([]any, error) bool) {
		for fields, err := range records {
			if err != nil {
				yield(nil, err)
				return
			}
			p := PT(new(T))
			fields = withDerived(p, fields)
			if err := checkRequired(t, fields); err != nil {
				yield(nil, err)
				return
			}
			if err := schema.AssignAll(p, fields); err != nil {
				yield(nil, err)
				return
			}
			if err := assignDefaults(p, t, fields); err != nil {
				yield(nil, err)
				return
			}
			schema.Normalize(p)
			if !yield(schema.Values(p), nil) {
				return
			}
		}
	}
	return w.bulkLoad(ctx, t, rows, opts)
}

// assignDefaults sets the default of every column with one that fields
// leave out, since bulk statements write all columns.
func assignDefaults(m schema.Model, t *schema.Table, fields map[string]any) error {
	for _, c := range t.Columns {
		if _, given := fields[c.Name]; given || c.Default == nil {
			continue
		}
		if err := schema.Assign(m, c.Name, c.Default); err != nil {
			return err
		}
	}
	return nil
}

func (w *Wrapper) bulkLoad(ctx context.Context, t *schema.Table, rows iter.Seq2[[]any, error], opts BulkOptions) (int64, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = w.bulk.ChunkSize
	}
	opts.ReportProgress = opts.ReportProgress || w.bulk.ReportProgress
	logger := w.logger.With("table", t.Name)

	var inserted int64
	batch := 0
	chunk := make([][]any, 0, min(opts.ChunkSize, 1024))

	flush := func() error {
		batch++
		err := w.inTx(ctx, func(tx *sqlx.Tx) error {
			return w.dialect.BulkInsert(ctx, tx, t, chunk)
		})
		if err != nil {
			logger.Error("bulk insert batch failed", "batch", batch, "inserted", inserted, "error", err)
			return &BulkInsertError{Batch: batch, Inserted: inserted, Err: err}
		}
		inserted += int64(len(chunk))
		chunk = chunk[:0]

		progress := BulkProgress{Batch: batch, Inserted: inserted, Total: opts.ExpectedCount}
		if opts.ReportProgress {
			if progress.Total > 0 {
				logger.Info("bulk insert progress", "batch", batch, "inserted", inserted, "total", progress.Total)
			} else {
				logger.Info("bulk insert progress", "batch", batch, "inserted", inserted)
			}
		}
		if opts.OnBatch != nil {
			opts.OnBatch(progress)
		}
		return nil
	}

	for row, err := range rows {
		if err != nil {
			return inserted, &BulkInsertError{Batch: batch + 1, Inserted: inserted, Err: fmt.Errorf("read record: %w", err)}
		}
		if err := ctx.Err(); err != nil {
			return inserted, &BulkInsertError{Batch: batch + 1, Inserted: inserted, Err: err}
		}
		chunk = append(chunk, row)
		if len(chunk) >= opts.ChunkSize {
			if err := flush(); err != nil {
				return inserted, err
			}
		}
	}
	if len(chunk) > 0 {
		if err := flush(); err != nil {
			return inserted, err
		}
	}

	logger.Info("finished bulk insert", "total_inserted", inserted, "batches", batch)
	return inserted, nil
}
