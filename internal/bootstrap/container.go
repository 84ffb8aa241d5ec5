package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"research-flowstream/internal/config"
	"research-flowstream/internal/controller"
	"research-flowstream/internal/metrics"
	"research-flowstream/internal/pkg/logger"
	"research-flowstream/internal/repository/contract"
	"research-flowstream/internal/repository/implementation"
	"research-flowstream/internal/repository/memory"
	"research-flowstream/internal/service"
	"research-flowstream/internal/websocket"
	"research-flowstream/pkg/ai/generation"
	"research-flowstream/pkg/ai/pipeline"
	"research-flowstream/pkg/embedding"
	"research-flowstream/pkg/embedding/huggingface"
	"research-flowstream/pkg/events"
	"research-flowstream/pkg/httpclient"
	"research-flowstream/pkg/llm"
	"research-flowstream/pkg/llm/factory"
	"research-flowstream/pkg/lock"
	pktNats "research-flowstream/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	logModule = "Bootstrap"

	embeddingCacheTTL = 10 * time.Minute
)

// Container owns every shared client. Each one is built exactly once here
// and handed to its users; nothing reconstructs them per call.
type Container struct {
	Logger  logger.ILogger
	Metrics *metrics.Recorder

	// Controllers
	ReportController controller.IReportController
	WebSocketHandler *websocket.Handler

	// Core services
	ReportService service.IReportService
	Pipeline      *pipeline.Pipeline

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService
	WebSocketHub    *websocket.Hub

	closers []func()
}

// NewContainer wires the application. db is only required for the pgvector
// store. ctx bounds connection checks and every job stream.
func NewContainer(ctx context.Context, cfg *config.Config, db *gorm.DB, sysLogger logger.ILogger) (*Container, error) {
	c := &Container{Logger: sysLogger, Metrics: metrics.NewRecorder()}

	// 1. Outbound HTTP
	httpClient := httpclient.New(cfg.Generation.ConnectTimeout, cfg.Generation.ReadTimeout)

	// 2. Generation
	genClient := generation.NewClient(newLLMProvider(cfg, httpClient, sysLogger), generation.Config{
		Disabled:   cfg.Generation.Disabled(),
		ChunkSize:  cfg.Generation.ChunkSize,
		LocalDelay: cfg.Generation.LocalDelay,
	}, sysLogger, c.Metrics)

	// 3. Embedding and store
	embedder := embedding.NewCachedEmbedder(newEmbedder(cfg, httpClient), embeddingCacheTTL)

	repo, err := newReportRepository(cfg, db)
	if err != nil {
		return nil, err
	}

	// 4. Coordination
	var rdb *redis.Client
	var locker lock.Locker = lock.Noop{}
	if cfg.App.RedisURL != "" {
		rdb, err = lock.NewRedisClient(ctx, cfg.App.RedisURL)
		if err != nil {
			sysLogger.Warn(logModule, "Redis unavailable, continuing without lock and cluster feed", map[string]interface{}{"error": err})
		} else {
			locker = lock.NewRedisLocker(rdb)
			c.closers = append(c.closers, func() { _ = rdb.Close() })
		}
	}

	// 5. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermillLogger)
	c.closers = append(c.closers, func() { _ = pubSub.Close() })

	if rdb != nil {
		c.WebSocketHub = websocket.NewHub(rdb, sysLogger)
	} else {
		c.WebSocketHub = websocket.NewHub(nil, sysLogger)
	}
	forwarders := service.Forwarders{c.WebSocketHub}

	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(ctx, cfg.App.NatsURL)
		if err != nil {
			sysLogger.Warn(logModule, "NATS unavailable, events stay in-process", map[string]interface{}{"error": err})
		} else {
			forwarders = append(forwarders, natsPub)
			c.closers = append(c.closers, natsPub.Close)
		}
	}

	publisherService := service.NewPublisherService(pubSub, events.TypeReportSaved)
	c.ConsumerService = service.NewConsumerService(pubSub, events.TypeReportSaved, forwarders, sysLogger)

	// 6. Services
	c.ReportService = service.NewReportService(repo, embedder, publisherService, locker, sysLogger, service.ReportServiceConfig{
		Collection:   cfg.Database.Collection,
		StoreTimeout: cfg.Database.StoreTimeout,
	})
	c.Pipeline = pipeline.New(genClient, c.ReportService, sysLogger, c.Metrics)

	// 7. Controllers
	c.ReportController = controller.NewReportController(ctx, c.Pipeline, c.ReportService, sysLogger)
	c.WebSocketHandler = websocket.NewHandler(ctx, c.Pipeline, c.WebSocketHub, sysLogger)

	sysLogger.Info(logModule, "Container ready", map[string]interface{}{
		"vector_store":        cfg.Database.VectorStore,
		"generation_disabled": genClient.Disabled(),
		"embedding_provider":  cfg.Embedding.Provider,
		"redis":               rdb != nil,
		"forwarders":          len(forwarders),
	})
	return c, nil
}

// Close releases clients in reverse construction order.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// newLLMProvider returns nil when generation is disabled or the provider
// cannot be built; the generation client then runs in local mode.
func newLLMProvider(cfg *config.Config, client *http.Client, log logger.ILogger) llm.LLMProvider {
	g := cfg.Generation
	if g.Disabled() {
		log.Info(logModule, "Generation disabled, using local fallback", nil)
		return nil
	}

	baseURL := g.BaseURL
	if g.Provider == "ollama" {
		baseURL = g.OllamaBaseURL
	}
	provider, err := factory.NewLLMProvider(g.Provider, g.ActiveModel(), baseURL, g.APIKey, client)
	if err != nil {
		log.Warn(logModule, "Failed to build LLM provider, using local fallback", map[string]interface{}{"error": err})
		return nil
	}
	return provider
}

func newEmbedder(cfg *config.Config, client *http.Client) embedding.Embedder {
	e := cfg.Embedding
	switch e.Provider {
	case "huggingface":
		return huggingface.NewProvider(e.HFAPIKey, e.HFModel, client)
	case "local":
		return embedding.NewLocalProvider(embedding.DefaultDimension)
	default:
		return embedding.NewOllamaProvider(e.OllamaBaseURL, e.OllamaModel, client)
	}
}

func newReportRepository(cfg *config.Config, db *gorm.DB) (contract.ReportRepository, error) {
	switch cfg.Database.VectorStore {
	case "memory":
		return memory.NewReportRepository(cfg.Database.Collection), nil
	case "pgvector", "":
		if db == nil {
			return nil, fmt.Errorf("pgvector store needs a database connection")
		}
		return implementation.NewReportRepository(db, cfg.Database.Collection)
	default:
		return nil, fmt.Errorf("unsupported vector store: %s", cfg.Database.VectorStore)
	}
}
