package implementation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync/atomic"

	"research-flowstream/internal/entity"
	"research-flowstream/internal/mapper"
	"research-flowstream/internal/model"
	"research-flowstream/internal/repository/contract"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Postgres error codes the repository maps onto contract errors.
const (
	pgDuplicateTable = "42P07"
	pgUndefinedTable = "42P01"
	pgDataException  = "22000"
)

var collectionNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// ReportRepositoryImpl stores a collection as a pgvector table with an HNSW
// cosine index.
type ReportRepositoryImpl struct {
	db         *gorm.DB
	collection string
	mapper     *mapper.ReportMapper
	// dimension caches the collection's vector size once known; 0 means unknown.
	dimension atomic.Int64
}

func NewReportRepository(db *gorm.DB, collection string) (*ReportRepositoryImpl, error) {
	if !collectionNamePattern.MatchString(collection) {
		return nil, fmt.Errorf("invalid collection name %q", collection)
	}
	return &ReportRepositoryImpl{
		db:         db,
		collection: collection,
		mapper:     mapper.NewReportMapper(),
	}, nil
}

var _ contract.ReportRepository = (*ReportRepositoryImpl)(nil)

func (r *ReportRepositoryImpl) GetCollection(ctx context.Context) (*contract.CollectionInfo, error) {
	var dims []int
	// atttypmod of a vector(n) column is n.
	err := r.db.WithContext(ctx).Raw(
		`SELECT a.atttypmod FROM pg_attribute a
		 WHERE a.attrelid = to_regclass(?) AND a.attname = 'embedding' AND NOT a.attisdropped`,
		r.collection,
	).Scan(&dims).Error
	if err != nil {
		return nil, r.translate(err)
	}
	if len(dims) == 0 {
		return nil, contract.ErrCollectionNotFound
	}

	var count int64
	if err := r.db.WithContext(ctx).Table(r.collection).Count(&count).Error; err != nil {
		return nil, r.translate(err)
	}

	r.dimension.Store(int64(dims[0]))
	return &contract.CollectionInfo{
		Name:       r.collection,
		Dimension:  dims[0],
		Distance:   contract.DistanceCosine,
		PointCount: count,
	}, nil
}

func (r *ReportRepositoryImpl) CreateCollection(ctx context.Context, dimension int, distance contract.Distance) error {
	if distance != contract.DistanceCosine {
		return fmt.Errorf("unsupported distance %q", distance)
	}
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`CREATE EXTENSION IF NOT EXISTS vector`).Error; err != nil {
			return err
		}
		// No IF NOT EXISTS: a concurrent creator must surface as 42P07.
		ddl := fmt.Sprintf(`CREATE TABLE %q (
			id uuid PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			payload jsonb NOT NULL DEFAULT '{}'::jsonb,
			created_at timestamptz NOT NULL DEFAULT now()
		)`, r.collection, dimension)
		if err := tx.Exec(ddl).Error; err != nil {
			return err
		}
		index := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %q USING hnsw (embedding vector_cosine_ops)`,
			r.collection+"_embedding_idx", r.collection)
		if err := tx.Exec(index).Error; err != nil {
			return err
		}
		return tx.Exec(fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %q (created_at DESC, id)`,
			r.collection+"_created_idx", r.collection)).Error
	})
	if err != nil {
		return r.translate(err)
	}

	r.dimension.Store(int64(dimension))
	return nil
}

func (r *ReportRepositoryImpl) Upsert(ctx context.Context, report *entity.Report) error {
	if dim := r.dimension.Load(); dim > 0 && int64(len(report.Embedding)) != dim {
		return fmt.Errorf("%w: got %d, want %d", contract.ErrDimensionMismatch, len(report.Embedding), dim)
	}

	m := r.mapper.ToModel(report)
	err := r.db.WithContext(ctx).Table(r.collection).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"embedding", "payload"}),
		}).
		Create(m).Error
	if err != nil {
		return r.translate(err)
	}
	return nil
}

func (r *ReportRepositoryImpl) Scroll(ctx context.Context, limit int) ([]*entity.Report, error) {
	if limit <= 0 {
		limit = 50
	}
	var points []*model.ReportPoint
	err := r.db.WithContext(ctx).Table(r.collection).
		Order("created_at DESC").
		Order("id").
		Limit(limit).
		Find(&points).Error
	if err != nil {
		return nil, r.translate(err)
	}
	return r.mapper.ToEntities(points), nil
}

func (r *ReportRepositoryImpl) Search(ctx context.Context, vector []float32, limit int) ([]*entity.ScoredReport, error) {
	if limit <= 0 {
		limit = 5
	}
	if dim := r.dimension.Load(); dim > 0 && int64(len(vector)) != dim {
		return nil, fmt.Errorf("%w: got %d, want %d", contract.ErrDimensionMismatch, len(vector), dim)
	}

	// Cosine distance in pgvector is 1 - cosine similarity. Ordering by the
	// raw operator lets the HNSW index serve the query.
	queryVector := pgvector.NewVector(vector)
	var rows []model.ScoredReportPoint
	err := r.db.WithContext(ctx).Table(r.collection).
		Select("*, 1 - (embedding <=> ?) AS score", queryVector).
		Order(gorm.Expr("embedding <=> ?", queryVector)).
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, r.translate(err)
	}
	return r.mapper.ToScored(rows), nil
}

func (r *ReportRepositoryImpl) translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgDuplicateTable:
		return fmt.Errorf("%w: %s", contract.ErrCollectionExists, r.collection)
	case pgUndefinedTable:
		return fmt.Errorf("%w: %s", contract.ErrCollectionNotFound, r.collection)
	case pgDataException:
		// pgvector reports "expected N dimensions, not M" with this code.
		return fmt.Errorf("%w: %s", contract.ErrDimensionMismatch, pgErr.Message)
	}
	return err
}
