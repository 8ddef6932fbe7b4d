package batch

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sakashimaa/sales-pipeline/pkg/domain"
	"github.com/sakashimaa/sales-pipeline/pkg/mylogger"
	"github.com/sakashimaa/sales-pipeline/services/generator/internal/generator"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var ErrInvalidCount = errors.New("record count must not be negative")

// ExportError reports a failed export together with the number of complete
// rows that reached the file before the failure. A partial row after them is
// possible.
type ExportError struct {
	Path    string
	Written int
	Err     error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export to %s failed after %d rows: %v", e.Path, e.Written, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

type EventSource interface {
	Generate(mode generator.Mode) domain.SalesEvent
}

type ProgressRecorder interface {
	BatchRowsWritten(n int)
}

type Exporter struct {
	source        EventSource
	logger        *zap.Logger
	progress      ProgressRecorder
	progressEvery int
	tracer        trace.Tracer
	create        func(path string) (io.WriteCloser, error)
}

func NewExporter(source EventSource, progressEvery int, progress ProgressRecorder, logger *zap.Logger) *Exporter {
	if progressEvery <= 0 {
		progressEvery = 1000
	}

	return &Exporter{
		source:        source,
		logger:        logger,
		progress:      progress,
		progressEvery: progressEvery,
		tracer:        otel.Tracer("generator/batch"),
		create: func(path string) (io.WriteCloser, error) {
			return os.Create(path)
		},
	}
}

// Export truncates path and writes the header plus count generated rows.
// The file is closed on every return path.
func (e *Exporter) Export(ctx context.Context, path string, count int) (written int, err error) {
	ctx, span := e.tracer.Start(ctx, "Exporter.Export")
	defer span.End()

	span.SetAttributes(
		attribute.String("path", path),
		attribute.Int("record_count", count),
	)

	if count < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}

	mylogger.Info(
		ctx,
		e.logger,
		"Generating historical sales records",
		zap.Int("records", count),
		zap.String("path", path),
	)

	f, err := e.create(path)
	if err != nil {
		span.RecordError(err)
		return 0, &ExportError{Path: path, Err: err}
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			span.RecordError(closeErr)
			err = &ExportError{Path: path, Written: written, Err: closeErr}
		}
	}()

	written, err = e.write(ctx, f, count)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(
			ctx,
			e.logger,
			"Batch export failed",
			zap.String("path", path),
			zap.Int("rows_written", written),
			zap.Error(err),
		)

		return written, &ExportError{Path: path, Written: written, Err: err}
	}

	mylogger.Info(
		ctx,
		e.logger,
		"Batch data generation complete",
		zap.String("path", path),
		zap.Int("rows_written", written),
	)

	return written, nil
}

// write returns the number of complete rows that reached w.
func (e *Exporter) write(ctx context.Context, w io.Writer, count int) (int, error) {
	out := &rowCounter{w: w}
	cw := csv.NewWriter(out)

	if err := cw.Write(domain.Header); err != nil {
		return out.dataRows(), err
	}

	flushed := 0
	for i := 1; i <= count; i++ {
		if err := ctx.Err(); err != nil {
			return out.dataRows(), err
		}

		event := e.source.Generate(generator.ModeBatch)
		if err := cw.Write(event.Record()); err != nil {
			return out.dataRows(), err
		}

		if i%e.progressEvery == 0 {
			cw.Flush()
			if err := cw.Error(); err != nil {
				return out.dataRows(), err
			}

			e.recordProgress(i - flushed)
			flushed = i

			mylogger.Debug(ctx, e.logger, "Generated records", zap.Int("rows", i))
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return out.dataRows(), err
	}

	e.recordProgress(count - flushed)

	return count, nil
}

func (e *Exporter) recordProgress(n int) {
	if e.progress != nil && n > 0 {
		e.progress.BatchRowsWritten(n)
	}
}

// rowCounter counts record terminators accepted by the underlying writer.
// Generated fields never contain newlines, so every '\n' ends a row.
type rowCounter struct {
	w     io.Writer
	lines int
}

func (c *rowCounter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.lines += bytes.Count(p[:n], []byte{'\n'})

	return n, err
}

// dataRows excludes the header line.
func (c *rowCounter) dataRows() int {
	return max(c.lines-1, 0)
}
