package tests

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/sakashimaa/sales-pipeline/services/transform/internal/domain"
	"github.com/sakashimaa/sales-pipeline/services/transform/internal/repository"
	"github.com/sakashimaa/sales-pipeline/services/transform/internal/service"
	"go.uber.org/zap"
)

const landed = `order_id,product_id,product_name,category,price,quantity,order_date,customer_id,country,total_price
o-1,p-1,Jeans,Apparel,75.00,2,2025-01-10T08:00:00.000000Z,c-1,Canada,150.00
o-2,p-2,Dune,Books,10.99,1,2025-01-11T09:15:00.000000Z,c-2,France,10.99
`

func (s *IntegrationTestSuite) TestProcessOnce_RunsActionOnce() {
	calls := 0
	action := func(context.Context) (int, error) {
		calls++
		return 2, nil
	}

	ran, err := s.Repo.ProcessOnce(s.Ctx, "sales.csv@1", action)
	s.Require().NoError(err)
	s.Require().True(ran)

	ran, err = s.Repo.ProcessOnce(s.Ctx, "sales.csv@1", action)
	s.Require().NoError(err)
	s.Require().False(ran)
	s.Require().Equal(1, calls)

	var count int
	err = s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM transform_bookmarks WHERE file_key = $1`, "sales.csv@1").
		Scan(&count)
	s.Require().NoError(err)
	s.Require().Equal(1, count)

	done, err := s.Repo.IsProcessed(s.Ctx, "sales.csv@1")
	s.Require().NoError(err)
	s.Require().True(done)

	done, err = s.Repo.IsProcessed(s.Ctx, "sales.csv@2")
	s.Require().NoError(err)
	s.Require().False(done)
}

func (s *IntegrationTestSuite) TestProcessOnce_FailedActionRollsBack() {
	errWrite := errors.New("write failed")

	ran, err := s.Repo.ProcessOnce(s.Ctx, "sales.csv@1", func(context.Context) (int, error) {
		return 0, errWrite
	})
	s.Require().ErrorIs(err, errWrite)
	s.Require().False(ran)

	done, err := s.Repo.IsProcessed(s.Ctx, "sales.csv@1")
	s.Require().NoError(err)
	s.Require().False(done)

	_, err = s.Repo.ProcessOnce(s.Ctx, "", func(context.Context) (int, error) { return 0, nil })
	s.Require().ErrorIs(err, repository.ErrEmptyFileKey)
}

func (s *IntegrationTestSuite) TestProcessOnce_ConcurrentRunsTransformOnce() {
	var (
		mu    sync.Mutex
		calls int
	)
	action := func(context.Context) (int, error) {
		mu.Lock()
		calls++
		mu.Unlock()

		time.Sleep(200 * time.Millisecond)
		return 1, nil
	}

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := s.Repo.ProcessOnce(s.Ctx, "sales.csv@7", action)
			s.NoError(err)
		}()
	}
	wg.Wait()

	s.Require().Equal(1, calls)
}

func (s *IntegrationTestSuite) TestRun_BookmarksSurviveRestart() {
	s.land("sales_2025.csv", landed)

	summary, err := s.Service.Run(s.Ctx)
	s.Require().NoError(err)
	s.Require().Equal(service.Summary{Files: 1, Rows: 2}, summary)

	var rows int
	err = s.DbPool.QueryRow(s.Ctx, `SELECT rows_written FROM transform_bookmarks`).Scan(&rows)
	s.Require().NoError(err)
	s.Require().Equal(2, rows)

	sales, err := parquet.ReadFile[domain.EnrichedSale](filepath.Join(s.OutputDir, "sales_2025.parquet"))
	s.Require().NoError(err)
	s.Require().Len(sales, 2)
	s.Require().Equal(150.0, sales[0].TotalPrice)

	restarted := service.NewTransformService(
		repository.NewBookmarkRepository(s.DbPool, zap.NewNop()),
		service.Options{LandingDir: s.LandingDir, OutputDir: s.OutputDir},
		zap.NewNop(),
	)

	summary, err = restarted.Run(s.Ctx)
	s.Require().NoError(err)
	s.Require().Equal(service.Summary{Skipped: 1}, summary)
}
