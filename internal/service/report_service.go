package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"research-flowstream/internal/dto"
	"research-flowstream/internal/entity"
	"research-flowstream/internal/pkg/logger"
	"research-flowstream/internal/repository/contract"
	"research-flowstream/pkg/embedding"
	"research-flowstream/pkg/events"
	"research-flowstream/pkg/lock"

	"github.com/google/uuid"
)

const (
	reportLogModule = "ReportService"

	DefaultListLimit = 50
	DefaultTopK      = 5
	UntitledReport   = "(untitled)"

	bootstrapLockTTL = 30 * time.Second
)

type IReportService interface {
	EnsureCollection(ctx context.Context) error
	Save(ctx context.Context, id, text, title string) error
	List(ctx context.Context, limit int) ([]*dto.ReportResponse, error)
	Search(ctx context.Context, query string, topK int) ([]*dto.SearchReportResponse, error)
}

type ReportServiceConfig struct {
	Collection   string
	StoreTimeout time.Duration
}

type reportService struct {
	repo      contract.ReportRepository
	embedder  embedding.Embedder
	publisher IPublisherService
	locker    lock.Locker
	logger    logger.ILogger
	cfg       ReportServiceConfig
}

func NewReportService(
	repo contract.ReportRepository,
	embedder embedding.Embedder,
	publisher IPublisherService,
	locker lock.Locker,
	log logger.ILogger,
	cfg ReportServiceConfig,
) IReportService {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 30 * time.Second
	}
	if locker == nil {
		locker = lock.Noop{}
	}
	return &reportService{
		repo:      repo,
		embedder:  embedder,
		publisher: publisher,
		locker:    locker,
		logger:    log,
		cfg:       cfg,
	}
}

// EnsureCollection creates the collection when missing. Losing a creation
// race to another instance counts as success.
func (s *reportService) EnsureCollection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout+bootstrapLockTTL)
	defer cancel()

	release, err := s.locker.Acquire(ctx, "lock:collection:"+s.cfg.Collection, bootstrapLockTTL)
	if err != nil {
		return fmt.Errorf("bootstrap lock: %w", err)
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			s.logger.Warn(reportLogModule, "Failed to release bootstrap lock", map[string]interface{}{"error": err})
		}
	}()

	want := s.embedder.Dimension()
	info, err := s.repo.GetCollection(ctx)
	switch {
	case err == nil:
		if info.Dimension != want {
			return fmt.Errorf("%w: collection %s has %d, embedder produces %d",
				contract.ErrDimensionMismatch, info.Name, info.Dimension, want)
		}
		s.logger.Info(reportLogModule, "Collection ready", map[string]interface{}{
			"collection": info.Name,
			"points":     info.PointCount,
		})
		return nil
	case !errors.Is(err, contract.ErrCollectionNotFound):
		return fmt.Errorf("get collection: %w", err)
	}

	err = s.repo.CreateCollection(ctx, want, contract.DistanceCosine)
	if err != nil && !errors.Is(err, contract.ErrCollectionExists) {
		return fmt.Errorf("create collection: %w", err)
	}
	s.logger.Info(reportLogModule, "Collection created", map[string]interface{}{
		"collection": s.cfg.Collection,
		"dimension":  want,
		"raced":      err != nil,
	})
	return nil
}

// Save embeds text and upserts it under id. Saving the same id again
// overwrites the stored report.
func (s *reportService) Save(ctx context.Context, id, text, title string) error {
	reportID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid report id %q: %w", id, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed report: %w", err)
	}

	report := &entity.Report{
		Id:        reportID,
		Title:     title,
		Text:      text,
		Embedding: vector,
	}
	if err := s.repo.Upsert(ctx, report); err != nil {
		return fmt.Errorf("upsert report: %w", err)
	}

	s.logger.Info(reportLogModule, "Report saved", map[string]interface{}{
		"report_id": id,
		"length":    len(text),
	})
	s.announce(ctx, events.ReportSaved{
		ReportID: id,
		Title:    title,
		Length:   len(text),
		SavedAt:  time.Now().UTC(),
	})
	return nil
}

// announce is best effort; the report is already stored.
func (s *reportService) announce(ctx context.Context, evt events.ReportSaved) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error(reportLogModule, "Failed to encode report event", map[string]interface{}{"error": err})
		return
	}
	if err := s.publisher.Publish(ctx, payload); err != nil {
		s.logger.Warn(reportLogModule, "Failed to publish report event", map[string]interface{}{
			"report_id": evt.ReportID,
			"error":     err,
		})
	}
}

// List scans the store on every call so a completed Save is always visible,
// including saves made by other instances.
func (s *reportService) List(ctx context.Context, limit int) ([]*dto.ReportResponse, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	reports, err := s.repo.Scroll(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("scroll reports: %w", err)
	}

	res := make([]*dto.ReportResponse, 0, len(reports))
	for _, r := range reports {
		res = append(res, &dto.ReportResponse{
			Id:    r.Id.String(),
			Title: titleOrDefault(r.Title),
			Text:  r.Text,
		})
	}
	return res, nil
}

func (s *reportService) Search(ctx context.Context, query string, topK int) ([]*dto.SearchReportResponse, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.repo.Search(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("search reports: %w", err)
	}

	res := make([]*dto.SearchReportResponse, 0, len(hits))
	for _, h := range hits {
		res = append(res, &dto.SearchReportResponse{
			Id:    h.Report.Id.String(),
			Score: h.Score,
			Title: titleOrDefault(h.Report.Title),
			Text:  h.Report.Text,
		})
	}
	return res, nil
}

func titleOrDefault(title string) string {
	if title == "" {
		return UntitledReport
	}
	return title
}
