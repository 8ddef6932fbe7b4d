package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/sakashimaa/sales-pipeline/pkg/mylogger"
	tdomain "github.com/sakashimaa/sales-pipeline/services/transform/internal/domain"
	"github.com/sakashimaa/sales-pipeline/services/transform/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Options struct {
	LandingDir string
	OutputDir  string
	// Now stamps processed_timestamp. Defaults to time.Now.
	Now func() time.Time
}

// Summary counts what a single run did.
type Summary struct {
	Files    int
	Skipped  int
	Failed   int
	Rows     int
	Rejected int
}

type TransformService struct {
	repo   repository.BookmarkRepository
	opts   Options
	logger *zap.Logger
	tracer trace.Tracer
}

func NewTransformService(repo repository.BookmarkRepository, opts Options, logger *zap.Logger) *TransformService {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &TransformService{
		repo:   repo,
		opts:   opts,
		logger: logger,
		tracer: otel.Tracer("transform/service"),
	}
}

// Run transforms every landed CSV file that has no bookmark yet. A failing
// file does not stop the others; their errors are joined in the result.
func (s *TransformService) Run(ctx context.Context) (Summary, error) {
	var summary Summary

	entries, err := os.ReadDir(s.opts.LandingDir)
	if err != nil {
		return summary, fmt.Errorf("failed to list landing dir: %w", err)
	}

	if err := os.MkdirAll(s.opts.OutputDir, 0o755); err != nil {
		return summary, fmt.Errorf("failed to create output dir: %w", err)
	}

	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			continue
		}

		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		info, err := entry.Info()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", entry.Name(), err))
			summary.Failed++
			continue
		}

		key := FileKey(info)
		done, err := s.repo.IsProcessed(ctx, key)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", entry.Name(), err))
			summary.Failed++
			continue
		}
		if done {
			mylogger.Debug(ctx, s.logger, "File already processed", zap.String("file_key", key))
			summary.Skipped++
			continue
		}

		path := filepath.Join(s.opts.LandingDir, entry.Name())

		var rows, rejected int
		ran, err := s.repo.ProcessOnce(ctx, key, func(ctx context.Context) (int, error) {
			var transformErr error
			rows, rejected, transformErr = s.TransformFile(ctx, path)
			return rows, transformErr
		})
		summary.Rejected += rejected
		if err != nil {
			mylogger.Error(ctx, s.logger, "Failed to transform file", zap.String("file", entry.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", entry.Name(), err))
			summary.Failed++
			continue
		}
		if !ran {
			summary.Skipped++
			continue
		}

		summary.Files++
		summary.Rows += rows
	}

	return summary, errors.Join(errs...)
}

// TransformFile writes <output>/<stem>.parquet from one landed file and
// returns the rows written and the rows rejected by casting.
func (s *TransformService) TransformFile(ctx context.Context, path string) (rows int, rejected int, err error) {
	ctx, span := s.tracer.Start(ctx, "TransformService.TransformFile")
	defer func() {
		span.SetAttributes(
			attribute.Int("rows_written", rows),
			attribute.Int("rows_rejected", rejected),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	span.SetAttributes(attribute.String("file", path))

	sales, rejected, err := s.readFile(ctx, path)
	if err != nil {
		return 0, rejected, err
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out := filepath.Join(s.opts.OutputDir, stem+".parquet")
	if err := writeParquet(out, sales); err != nil {
		return 0, rejected, err
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Transformed landed file",
		zap.String("file", path),
		zap.String("output", out),
		zap.Int("rows", len(sales)),
		zap.Int("rejected", rejected),
	)

	return len(sales), rejected, nil
}

func (s *TransformService) readFile(ctx context.Context, path string) ([]tdomain.EnrichedSale, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open landed file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, 0, fmt.Errorf("%w: empty file", ErrSchemaMismatch)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read header: %w", err)
	}

	cols, err := newColumns(header)
	if err != nil {
		return nil, 0, err
	}

	processedAt := s.opts.Now().UTC()

	var (
		sales    []tdomain.EnrichedSale
		rejected int
	)
	for line := 2; ; line++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, rejected, fmt.Errorf("failed to read line %d: %w", line, err)
		}

		sale, err := castRow(cols, record, processedAt)
		if err != nil {
			mylogger.Warn(ctx, s.logger, "Skipping row", zap.String("file", path), zap.Int("line", line), zap.Error(err))
			rejected++
			continue
		}

		sales = append(sales, sale)
	}

	return sales, rejected, nil
}

// writeParquet replaces path only once the whole file is written.
func writeParquet(path string, sales []tdomain.EnrichedSale) (err error) {
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	w := parquet.NewGenericWriter[tdomain.EnrichedSale](f, parquet.Compression(&parquet.Snappy))
	if len(sales) > 0 {
		if _, err := w.Write(sales); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to write parquet rows: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to finish parquet file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close output: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to publish output: %w", err)
	}

	return nil
}

// FileKey identifies one landed version of a file. A file rewritten in
// place gets a new key and is transformed again.
func FileKey(info os.FileInfo) string {
	return fmt.Sprintf("%s@%d", info.Name(), info.ModTime().UnixNano())
}
