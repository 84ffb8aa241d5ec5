package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"research-flowstream/internal/dto"
	"research-flowstream/internal/entity"
	"research-flowstream/internal/pkg/logger"
	"research-flowstream/internal/repository/contract"
	"research-flowstream/internal/repository/memory"
	"research-flowstream/pkg/embedding"
	"research-flowstream/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu       sync.Mutex
	payloads [][]byte
	err      error
}

func (p *capturePublisher) Publish(ctx context.Context, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return p.err
}

func newTestReportService(t *testing.T, pub IPublisherService) (IReportService, *memory.ReportRepository) {
	t.Helper()
	repo := memory.NewReportRepository("reports")
	svc := NewReportService(repo, embedding.NewLocalProvider(0), pub, nil, logger.NewNopLogger(), ReportServiceConfig{
		Collection:   "reports",
		StoreTimeout: time.Second,
	})
	require.NoError(t, svc.EnsureCollection(context.Background()))
	return svc, repo
}

func TestEnsureCollection_Idempotent(t *testing.T) {
	svc, repo := newTestReportService(t, nil)
	require.NoError(t, svc.EnsureCollection(context.Background()))

	info, err := repo.GetCollection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, embedding.DefaultDimension, info.Dimension)
}

// racingRepo reports the collection as missing but loses the create race.
type racingRepo struct {
	contract.ReportRepository
}

func (racingRepo) GetCollection(context.Context) (*contract.CollectionInfo, error) {
	return nil, contract.ErrCollectionNotFound
}

func (racingRepo) CreateCollection(context.Context, int, contract.Distance) error {
	return contract.ErrCollectionExists
}

func TestEnsureCollection_LostRaceIsSuccess(t *testing.T) {
	svc := NewReportService(racingRepo{}, embedding.NewLocalProvider(0), nil, nil, logger.NewNopLogger(), ReportServiceConfig{Collection: "reports"})
	assert.NoError(t, svc.EnsureCollection(context.Background()))
}

func TestEnsureCollection_DimensionMismatch(t *testing.T) {
	repo := memory.NewReportRepository("reports")
	require.NoError(t, repo.CreateCollection(context.Background(), 768, contract.DistanceCosine))

	svc := NewReportService(repo, embedding.NewLocalProvider(0), nil, nil, logger.NewNopLogger(), ReportServiceConfig{Collection: "reports"})
	assert.ErrorIs(t, svc.EnsureCollection(context.Background()), contract.ErrDimensionMismatch)
}

func TestSaveThenList_RoundTrip(t *testing.T) {
	svc, _ := newTestReportService(t, nil)
	ctx := context.Background()
	id := uuid.NewString()

	require.NoError(t, svc.Save(ctx, id, "## Graphs\n\nNodes and edges.", "graphs"))

	list, err := svc.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].Id)
	assert.Equal(t, "graphs", list[0].Title)
	assert.Equal(t, "## Graphs\n\nNodes and edges.", list[0].Text)
}

func TestList_SeesEverySave(t *testing.T) {
	svc, _ := newTestReportService(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, uuid.NewString(), "first", "a"))
	first, err := svc.List(ctx, 50)
	require.NoError(t, err)
	require.Len(t, first, 1)

	require.NoError(t, svc.Save(ctx, uuid.NewString(), "second", "b"))
	second, err := svc.List(ctx, 50)
	require.NoError(t, err)
	assert.Len(t, second, 2)
}

// stallingRepo takes the Scroll snapshot and then waits, so a Save can
// complete while a List is still in flight.
type stallingRepo struct {
	*memory.ReportRepository
	scrolled chan struct{}
	resume   chan struct{}
	once     sync.Once
}

func (r *stallingRepo) Scroll(ctx context.Context, limit int) ([]*entity.Report, error) {
	reports, err := r.ReportRepository.Scroll(ctx, limit)
	r.once.Do(func() {
		close(r.scrolled)
		<-r.resume
	})
	return reports, err
}

func TestList_OverlappingSaveIsVisibleAfterward(t *testing.T) {
	repo := &stallingRepo{
		ReportRepository: memory.NewReportRepository("reports"),
		scrolled:         make(chan struct{}),
		resume:           make(chan struct{}),
	}
	svc := NewReportService(repo, embedding.NewLocalProvider(0), nil, nil, logger.NewNopLogger(), ReportServiceConfig{
		Collection:   "reports",
		StoreTimeout: time.Second,
	})
	ctx := context.Background()
	require.NoError(t, svc.EnsureCollection(ctx))

	inFlight := make(chan []*dto.ReportResponse, 1)
	go func() {
		list, err := svc.List(ctx, 50)
		assert.NoError(t, err)
		inFlight <- list
	}()

	<-repo.scrolled
	id := uuid.NewString()
	require.NoError(t, svc.Save(ctx, id, "saved while listing", "overlap"))
	close(repo.resume)
	assert.Empty(t, <-inFlight)

	list, err := svc.List(ctx, 50)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].Id)
}

func TestSave_SameIDOverwrites(t *testing.T) {
	svc, _ := newTestReportService(t, nil)
	ctx := context.Background()
	id := uuid.NewString()

	require.NoError(t, svc.Save(ctx, id, "draft", "t"))
	require.NoError(t, svc.Save(ctx, id, "final", "t"))

	list, err := svc.List(ctx, 50)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "final", list[0].Text)
}

func TestSave_RejectsInvalidID(t *testing.T) {
	svc, _ := newTestReportService(t, nil)
	assert.Error(t, svc.Save(context.Background(), "not-a-uuid", "x", "y"))
}

func TestList_DefaultsMissingTitle(t *testing.T) {
	svc, repo := newTestReportService(t, nil)
	vec, err := embedding.NewLocalProvider(0).Embed(context.Background(), "orphan")
	require.NoError(t, err)
	require.NoError(t, repo.Upsert(context.Background(), &entity.Report{Id: uuid.New(), Text: "orphan", Embedding: vec}))

	list, err := svc.List(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, UntitledReport, list[0].Title)
}

func TestSearch_VerbatimTextRanksFirst(t *testing.T) {
	svc, _ := newTestReportService(t, nil)
	ctx := context.Background()

	texts := map[string]string{
		uuid.NewString(): "Vector databases index embeddings for similarity search.",
		uuid.NewString(): "Sourdough bread needs a lively starter and patience.",
		uuid.NewString(): "Kubernetes schedules containers across a cluster of nodes.",
	}
	var target string
	for id, text := range texts {
		require.NoError(t, svc.Save(ctx, id, text, "t"))
		if text[0] == 'S' {
			target = id
		}
	}

	hits, err := svc.Search(ctx, "Sourdough bread needs a lively starter and patience.", 0)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, target, hits[0].Id)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestSave_PublishesReportSaved(t *testing.T) {
	pub := &capturePublisher{err: errors.New("bus down")}
	svc, _ := newTestReportService(t, pub)
	id := uuid.NewString()

	require.NoError(t, svc.Save(context.Background(), id, "hello", "greeting"))

	require.Len(t, pub.payloads, 1)
	evt, err := events.DecodeReportSaved(pub.payloads[0])
	require.NoError(t, err)
	assert.Equal(t, id, evt.ReportID)
	assert.Equal(t, "greeting", evt.Title)
	assert.Equal(t, 5, evt.Length)
}

type captureForwarder struct {
	got chan events.Event
}

func (f *captureForwarder) Publish(ctx context.Context, event events.Event) error {
	select {
	case f.got <- event:
	default:
	}
	return nil
}

func TestConsumer_ForwardsThroughGoChannel(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	fwd := &captureForwarder{got: make(chan events.Event, 1)}
	consumer := NewConsumerService(pubSub, events.TypeReportSaved, fwd, logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Consume(ctx) }()

	svc, _ := newTestReportService(t, NewPublisherService(pubSub, events.TypeReportSaved))
	id := uuid.NewString()

	// Subscribe runs in the goroutine above; publish until it is attached.
	deadline := time.After(2 * time.Second)
	var evt events.Event
	for evt == nil {
		require.NoError(t, svc.Save(context.Background(), id, "body", "title"))
		select {
		case evt = <-fwd.got:
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatal("event was not forwarded")
		}
	}

	assert.Equal(t, events.TypeReportSaved, evt.EventType())
	assert.Equal(t, id, evt.Payload()["report_id"])

	cancel()
	require.NoError(t, <-done)
}

type failingForwarder struct{ err error }

func (f failingForwarder) Publish(ctx context.Context, event events.Event) error {
	return f.err
}

func TestForwarders_PublishesToAllAndJoinsErrors(t *testing.T) {
	ok := &captureForwarder{got: make(chan events.Event, 1)}
	boom := errors.New("nats down")
	fs := Forwarders{failingForwarder{err: boom}, ok}

	err := fs.Publish(context.Background(), events.ReportSaved{ReportID: "r1"})
	assert.ErrorIs(t, err, boom)

	select {
	case evt := <-ok.got:
		assert.Equal(t, "r1", evt.Payload()["report_id"])
	default:
		t.Fatal("second forwarder was skipped")
	}
}
