package memory

import (
	"context"
	"testing"
	"time"

	"research-flowstream/internal/entity"
	"research-flowstream/internal/repository/contract"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCollection(t *testing.T, dim int) *ReportRepository {
	t.Helper()
	repo := NewReportRepository("reports")
	require.NoError(t, repo.CreateCollection(context.Background(), dim, contract.DistanceCosine))
	return repo
}

func TestCollectionLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewReportRepository("reports")

	_, err := repo.GetCollection(ctx)
	assert.ErrorIs(t, err, contract.ErrCollectionNotFound)

	require.NoError(t, repo.CreateCollection(ctx, 3, contract.DistanceCosine))
	assert.ErrorIs(t, repo.CreateCollection(ctx, 3, contract.DistanceCosine), contract.ErrCollectionExists)

	info, err := repo.GetCollection(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, info.Dimension)
	assert.Equal(t, contract.DistanceCosine, info.Distance)
	assert.Zero(t, info.PointCount)
}

func TestUpsert_OverwritesSameID(t *testing.T) {
	ctx := context.Background()
	repo := newCollection(t, 2)
	id := uuid.New()

	require.NoError(t, repo.Upsert(ctx, &entity.Report{Id: id, Title: "a", Text: "first", Embedding: []float32{1, 0}}))
	require.NoError(t, repo.Upsert(ctx, &entity.Report{Id: id, Title: "a", Text: "second", Embedding: []float32{0, 1}}))

	list, err := repo.Scroll(ctx, 50)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "second", list[0].Text)
}

func TestUpsert_Errors(t *testing.T) {
	ctx := context.Background()
	missing := NewReportRepository("reports")
	assert.ErrorIs(t, missing.Upsert(ctx, &entity.Report{Id: uuid.New()}), contract.ErrCollectionNotFound)

	repo := newCollection(t, 3)
	err := repo.Upsert(ctx, &entity.Report{Id: uuid.New(), Embedding: []float32{1}})
	assert.ErrorIs(t, err, contract.ErrDimensionMismatch)
}

func TestScroll_NewestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	repo := newCollection(t, 2)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	var ids []uuid.UUID
	for i := 0; i < 4; i++ {
		id := uuid.New()
		ids = append(ids, id)
		require.NoError(t, repo.Upsert(ctx, &entity.Report{Id: id, Embedding: []float32{1, 1}}))
	}

	list, err := repo.Scroll(ctx, 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, ids[3], list[0].Id)
	assert.Equal(t, ids[2], list[1].Id)
	assert.Equal(t, ids[1], list[2].Id)
}

func TestSearch_RanksByCosine(t *testing.T) {
	ctx := context.Background()
	repo := newCollection(t, 2)
	near, far, mid := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, repo.Upsert(ctx, &entity.Report{Id: far, Embedding: []float32{0, 1}}))
	require.NoError(t, repo.Upsert(ctx, &entity.Report{Id: near, Embedding: []float32{1, 0}}))
	require.NoError(t, repo.Upsert(ctx, &entity.Report{Id: mid, Embedding: []float32{1, 1}}))

	hits, err := repo.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, near, hits[0].Report.Id)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.Equal(t, mid, hits[1].Report.Id)
	assert.InDelta(t, 0.7071, hits[1].Score, 1e-4)

	_, err = repo.Search(ctx, []float32{1, 0, 0}, 2)
	assert.ErrorIs(t, err, contract.ErrDimensionMismatch)
}

func TestStoredCopiesAreIsolated(t *testing.T) {
	ctx := context.Background()
	repo := newCollection(t, 2)
	vec := []float32{1, 0}
	r := &entity.Report{Id: uuid.New(), Embedding: vec}
	require.NoError(t, repo.Upsert(ctx, r))
	vec[0] = 0

	list, err := repo.Scroll(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, list[0].Embedding)
}
