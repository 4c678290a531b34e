package importer

import (
	"context"
	"fmt"
	"math"
	"time"

	"cleaning-crm/parsers"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultBatchSize is the number of rows sent to the sink per insert
	DefaultBatchSize = 50

	// DefaultBatchDelay is the pause between batches so progress can be
	// rendered; it is not a rate limit
	DefaultBatchDelay = 50 * time.Millisecond
)

// Progress is reported after every committed batch
type Progress struct {
	Batch     int `json:"batch"`
	Batches   int `json:"batches"`
	Processed int `json:"processed"`
	Total     int `json:"total"`
	Percent   int `json:"percent"`
}

// Result describes a fully successful run
type Result struct {
	Total    int `json:"total"`
	Imported int `json:"imported"`
	Batches  int `json:"batches"`
}

// BatchError stops a run. Rows from earlier batches are already in the store
// and are not rolled back; Imported counts them.
type BatchError struct {
	Batch    int
	Batches  int
	Imported int
	Total    int
	Err      error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d of %d failed (%d of %d rows already imported): %s",
		e.Batch, e.Batches, e.Imported, e.Total, DisplayMessage(e.Err))
}

func (e *BatchError) Unwrap() error { return e.Err }

// Importer submits rows to a Sink in fixed-size batches, strictly in order
type Importer struct {
	sink      Sink
	batchSize int
	delay     time.Duration
	now       func() time.Time
	onSuccess func(Result)
	log       logrus.FieldLogger
}

// Option configures an Importer
type Option func(*Importer)

func WithBatchSize(n int) Option {
	return func(im *Importer) {
		if n > 0 {
			im.batchSize = n
		}
	}
}

func WithDelay(d time.Duration) Option {
	return func(im *Importer) { im.delay = d }
}

func WithClock(now func() time.Time) Option {
	return func(im *Importer) { im.now = now }
}

// WithSuccessHook is called once, after the last batch is committed
func WithSuccessHook(fn func(Result)) Option {
	return func(im *Importer) { im.onSuccess = fn }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(im *Importer) { im.log = log }
}

// NewImporter builds an importer writing to sink
func NewImporter(sink Sink, opts ...Option) *Importer {
	im := &Importer{
		sink:      sink,
		batchSize: DefaultBatchSize,
		delay:     DefaultBatchDelay,
		now:       time.Now,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// BatchSize returns the configured rows per batch
func (im *Importer) BatchSize() int { return im.batchSize }

// Run transforms and inserts rows batch by batch. The first rejected batch
// ends the run with a *BatchError; later batches are never attempted.
func (im *Importer) Run(ctx context.Context, rows []parsers.Record, mapping ColumnMapping, onProgress func(Progress)) (*Result, error) {
	total := len(rows)
	batches := (total + im.batchSize - 1) / im.batchSize
	mapping = mapping.Clone()

	log := im.log.WithFields(logrus.Fields{"rows": total, "batches": batches})
	log.Info("import started")

	processed := 0
	for i := 0; i < total; i += im.batchSize {
		batchNum := i/im.batchSize + 1
		end := i + im.batchSize
		if end > total {
			end = total
		}
		chunk := rows[i:end]

		if err := ctx.Err(); err != nil {
			return nil, &BatchError{Batch: batchNum, Batches: batches, Imported: processed, Total: total, Err: err}
		}

		records := make([]NormalizedRecord, len(chunk))
		for j, row := range chunk {
			records[j] = Transform(row, mapping, im.now())
		}

		if err := im.sink.InsertBatch(ctx, records); err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"batch":    batchNum,
				"imported": processed,
			}).Error("batch rejected, stopping import")
			return nil, &BatchError{Batch: batchNum, Batches: batches, Imported: processed, Total: total, Err: err}
		}

		processed += len(chunk)
		if onProgress != nil {
			onProgress(Progress{
				Batch:     batchNum,
				Batches:   batches,
				Processed: processed,
				Total:     total,
				Percent:   percent(processed, total),
			})
		}
		log.WithFields(logrus.Fields{"batch": batchNum, "processed": processed}).Debug("batch committed")

		if end < total && im.delay > 0 {
			select {
			case <-time.After(im.delay):
			case <-ctx.Done():
				return nil, &BatchError{Batch: batchNum + 1, Batches: batches, Imported: processed, Total: total, Err: ctx.Err()}
			}
		}
	}

	result := Result{Total: total, Imported: processed, Batches: batches}
	log.Info("import finished")
	if im.onSuccess != nil {
		im.onSuccess(result)
	}
	return &result, nil
}

func percent(processed, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(float64(processed) / float64(total) * 100))
}
