package implementation

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"research-flowstream/internal/entity"
	"research-flowstream/internal/repository/contract"
	"research-flowstream/pkg/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Runs against a real pgvector container. Enable with PGVECTOR_IT=1.
func TestReportRepository_Pgvector(t *testing.T) {
	if os.Getenv("PGVECTOR_IT") != "1" {
		t.Skip("set PGVECTOR_IT=1 to run the pgvector integration test")
	}
	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("pgvector/pgvector:pg16"),
		tcPostgres.WithDatabase("reports"),
		tcPostgres.WithUsername("flow"),
		tcPostgres.WithPassword("flow"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://flow:flow@%s:%s/reports?sslmode=disable", host, port.Port())
	db, err := database.Open(ctx, dsn, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	repo, err := NewReportRepository(db, "reports")
	require.NoError(t, err)

	_, err = repo.GetCollection(ctx)
	require.ErrorIs(t, err, contract.ErrCollectionNotFound)

	require.NoError(t, repo.CreateCollection(ctx, 3, contract.DistanceCosine))
	require.ErrorIs(t, repo.CreateCollection(ctx, 3, contract.DistanceCosine), contract.ErrCollectionExists)

	info, err := repo.GetCollection(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, info.Dimension)

	a := &entity.Report{Id: uuid.New(), Title: "alpha", Text: "first", Embedding: []float32{1, 0, 0}}
	b := &entity.Report{Id: uuid.New(), Title: "beta", Text: "second", Embedding: []float32{0, 1, 0}}
	require.NoError(t, repo.Upsert(ctx, a))
	require.NoError(t, repo.Upsert(ctx, b))

	a.Text = "first, revised"
	require.NoError(t, repo.Upsert(ctx, a))

	list, err := repo.Scroll(ctx, 50)
	require.NoError(t, err)
	require.Len(t, list, 2)

	hits, err := repo.Search(ctx, []float32{0.9, 0.1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, a.Id, hits[0].Report.Id)
	assert.Equal(t, "first, revised", hits[0].Report.Text)
	assert.Greater(t, hits[0].Score, hits[1].Score)

	err = repo.Upsert(ctx, &entity.Report{Id: uuid.New(), Embedding: []float32{1, 0}})
	assert.ErrorIs(t, err, contract.ErrDimensionMismatch)
}
