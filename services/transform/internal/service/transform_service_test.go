package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/sakashimaa/sales-pipeline/pkg/domain"
	tdomain "github.com/sakashimaa/sales-pipeline/services/transform/internal/domain"
	"github.com/sakashimaa/sales-pipeline/services/transform/internal/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var processedAt = time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)

const landedFile = `order_id,product_id,product_name,category,price,quantity,order_date,customer_id,country,total_price
o-1,p-1,Laptop,Electronics,999.99,2,2024-11-02T10:00:00.000001Z,c-1,USA,1999.98
o-2,p-2,Dune,Books,10.99,3,2024-11-03T11:30:00.000000Z,c-2,Japan,
o-3,p-3,Blender,Home Goods,abc,1,2024-11-04T09:00:00.000000Z,c-3,UK,49.99
`

type env struct {
	landing string
	output  string
	repo    *repository.MemoryBookmarks
	svc     *TransformService
}

func newEnv(t *testing.T) env {
	t.Helper()

	e := env{
		landing: t.TempDir(),
		output:  filepath.Join(t.TempDir(), "processed"),
		repo:    repository.NewMemoryBookmarks(),
	}
	e.svc = NewTransformService(e.repo, Options{
		LandingDir: e.landing,
		OutputDir:  e.output,
		Now:        func() time.Time { return processedAt },
	}, zap.NewNop())

	return e
}

func (e env) land(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(e.landing, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestRun_TransformsLandedFiles(t *testing.T) {
	e := newEnv(t)
	e.land(t, "sales_2024.csv", landedFile)
	e.land(t, "notes.txt", "not a csv")

	summary, err := e.svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Summary{Files: 1, Rows: 2, Rejected: 1}, summary)

	rows, err := parquet.ReadFile[tdomain.EnrichedSale](filepath.Join(e.output, "sales_2024.parquet"))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.Equal(t, "o-1", rows[0].OrderID)
	require.Equal(t, 999.99, rows[0].Price)
	require.Equal(t, int32(2), rows[0].Quantity)
	require.Equal(t, 1999.98, rows[0].TotalPrice)
	require.True(t, rows[0].OrderDate.Equal(time.Date(2024, 11, 2, 10, 0, 0, 1000, time.UTC)))
	require.True(t, rows[0].ProcessedTimestamp.Equal(processedAt))

	require.Equal(t, "o-2", rows[1].OrderID)
	require.Equal(t, 32.97, rows[1].TotalPrice)

	entries, err := os.ReadDir(e.output)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestRun_SkipsBookmarkedFiles(t *testing.T) {
	e := newEnv(t)
	e.land(t, "sales.csv", landedFile)

	_, err := e.svc.Run(context.Background())
	require.NoError(t, err)

	summary, err := e.svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Summary{Skipped: 1}, summary)
}

func TestRun_ReprocessesRewrittenFile(t *testing.T) {
	e := newEnv(t)
	path := e.land(t, "sales.csv", landedFile)

	_, err := e.svc.Run(context.Background())
	require.NoError(t, err)

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))

	summary, err := e.svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Files)
}

func TestRun_SchemaMismatchDoesNotStopOtherFiles(t *testing.T) {
	e := newEnv(t)
	e.land(t, "a_broken.csv", "order_id,price\no-1,1.00\n")
	e.land(t, "b_good.csv", landedFile)

	summary, err := e.svc.Run(context.Background())
	require.ErrorIs(t, err, ErrSchemaMismatch)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 1, summary.Files)

	_, statErr := os.Stat(filepath.Join(e.output, "a_broken.parquet"))
	require.True(t, errors.Is(statErr, os.ErrNotExist))

	summary, err = e.svc.Run(context.Background())
	require.ErrorIs(t, err, ErrSchemaMismatch)
	require.Equal(t, 1, summary.Skipped)
	require.Equal(t, 1, summary.Failed)
}

func TestRun_ReadsGeneratorHeader(t *testing.T) {
	e := newEnv(t)

	var b strings.Builder
	b.WriteString(strings.Join(domain.Header, ",") + "\n")
	e.land(t, "empty.csv", b.String())

	summary, err := e.svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Summary{Files: 1}, summary)

	rows, err := parquet.ReadFile[tdomain.EnrichedSale](filepath.Join(e.output, "empty.parquet"))
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestRun_MissingLandingDir(t *testing.T) {
	e := newEnv(t)
	e.svc.opts.LandingDir = filepath.Join(e.landing, "nope")

	_, err := e.svc.Run(context.Background())
	require.ErrorIs(t, err, os.ErrNotExist)
}
