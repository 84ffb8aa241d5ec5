package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"research-flowstream/internal/entity"
	"research-flowstream/internal/repository/contract"

	"github.com/google/uuid"
)

// ReportRepository keeps a collection in process memory. Contents are lost
// on restart; it backs tests and VECTOR_STORE=memory.
type ReportRepository struct {
	mu        sync.RWMutex
	name      string
	created   bool
	dimension int
	points    map[uuid.UUID]*entity.Report
	now       func() time.Time
}

var _ contract.ReportRepository = (*ReportRepository)(nil)

func NewReportRepository(name string) *ReportRepository {
	return &ReportRepository{
		name:   name,
		points: make(map[uuid.UUID]*entity.Report),
		now:    time.Now,
	}
}

func (r *ReportRepository) GetCollection(ctx context.Context) (*contract.CollectionInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.created {
		return nil, contract.ErrCollectionNotFound
	}
	return &contract.CollectionInfo{
		Name:       r.name,
		Dimension:  r.dimension,
		Distance:   contract.DistanceCosine,
		PointCount: int64(len(r.points)),
	}, nil
}

func (r *ReportRepository) CreateCollection(ctx context.Context, dimension int, distance contract.Distance) error {
	if distance != contract.DistanceCosine {
		return fmt.Errorf("unsupported distance %q", distance)
	}
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.created {
		return fmt.Errorf("%w: %s", contract.ErrCollectionExists, r.name)
	}
	r.created = true
	r.dimension = dimension
	return nil
}

func (r *ReportRepository) Upsert(ctx context.Context, report *entity.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.created {
		return fmt.Errorf("%w: %s", contract.ErrCollectionNotFound, r.name)
	}
	if len(report.Embedding) != r.dimension {
		return fmt.Errorf("%w: got %d, want %d", contract.ErrDimensionMismatch, len(report.Embedding), r.dimension)
	}

	stored := *report
	stored.Embedding = append([]float32(nil), report.Embedding...)
	if prev, ok := r.points[report.Id]; ok {
		stored.CreatedAt = prev.CreatedAt
	} else {
		stored.CreatedAt = r.now()
	}
	r.points[report.Id] = &stored
	report.CreatedAt = stored.CreatedAt
	return nil
}

func (r *ReportRepository) Scroll(ctx context.Context, limit int) ([]*entity.Report, error) {
	if limit <= 0 {
		limit = 50
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.created {
		return nil, fmt.Errorf("%w: %s", contract.ErrCollectionNotFound, r.name)
	}

	all := make([]*entity.Report, 0, len(r.points))
	for _, p := range r.points {
		cp := *p
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].Id.String() < all[j].Id.String()
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *ReportRepository) Search(ctx context.Context, vector []float32, limit int) ([]*entity.ScoredReport, error) {
	if limit <= 0 {
		limit = 5
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.created {
		return nil, fmt.Errorf("%w: %s", contract.ErrCollectionNotFound, r.name)
	}
	if len(vector) != r.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", contract.ErrDimensionMismatch, len(vector), r.dimension)
	}

	scored := make([]*entity.ScoredReport, 0, len(r.points))
	for _, p := range r.points {
		cp := *p
		scored = append(scored, &entity.ScoredReport{Report: &cp, Score: cosine(vector, p.Embedding)})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Report.Id.String() < scored[j].Report.Id.String()
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
