package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/sales-pipeline/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// BookmarkRepository remembers which landed files were already transformed.
type BookmarkRepository interface {
	IsProcessed(ctx context.Context, fileKey string) (bool, error)
	// ProcessOnce runs action unless fileKey is bookmarked and bookmarks it
	// only if action succeeds. It reports whether action ran.
	ProcessOnce(ctx context.Context, fileKey string, action func(ctx context.Context) (rows int, err error)) (bool, error)
}

type bookmarkRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewBookmarkRepository(pool *pgxpool.Pool, logger *zap.Logger) BookmarkRepository {
	return &bookmarkRepo{
		pool:   pool,
		tracer: otel.Tracer("transform/bookmark_repo"),
		logger: logger,
	}
}

func (r *bookmarkRepo) IsProcessed(ctx context.Context, fileKey string) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "BookmarkRepository.IsProcessed")
	defer span.End()

	span.SetAttributes(attribute.String("file_key", fileKey))

	query := `
		SELECT EXISTS (
			SELECT 1
			FROM transform_bookmarks
			WHERE file_key = $1
		)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, fileKey).Scan(&exists); err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to query bookmark: %w", err)
	}

	return exists, nil
}

// ProcessOnce holds the bookmark row inside a transaction while action runs,
// so a concurrent run on the same file waits and then skips it.
func (r *bookmarkRepo) ProcessOnce(
	ctx context.Context,
	fileKey string,
	action func(ctx context.Context) (int, error),
) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "BookmarkRepository.ProcessOnce")
	defer span.End()

	span.SetAttributes(attribute.String("file_key", fileKey))

	if fileKey == "" {
		return false, ErrEmptyFileKey
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		rollbackCtx := context.WithoutCancel(ctx)

		if err := tx.Rollback(rollbackCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Error(
				rollbackCtx,
				r.logger,
				"Error rolling back transaction",
				zap.Error(err),
			)
		}
	}()

	insertQuery := `
		INSERT INTO transform_bookmarks (file_key, rows_written)
		VALUES ($1, 0)
	`

	if _, err := tx.Exec(ctx, insertQuery, fileKey); err != nil {
		var pgError *pgconn.PgError
		if errors.As(err, &pgError) && pgError.Code == "23505" {
			mylogger.Info(
				ctx,
				r.logger,
				"File already processed, skipping",
				zap.String("file_key", fileKey),
			)

			return false, nil
		}

		span.RecordError(err)
		return false, fmt.Errorf("failed to save bookmark: %w", err)
	}

	rows, err := action(ctx)
	if err != nil {
		return false, err
	}

	updateQuery := `
		UPDATE transform_bookmarks
		SET rows_written = $2
		WHERE file_key = $1
	`

	if _, err := tx.Exec(ctx, updateQuery, fileKey, rows); err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to update bookmark: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to commit bookmark",
			zap.String("file_key", fileKey),
			zap.Error(err),
		)

		return false, fmt.Errorf("failed to commit bookmark: %w", err)
	}

	span.SetAttributes(attribute.Int("rows_written", rows))

	return true, nil
}
