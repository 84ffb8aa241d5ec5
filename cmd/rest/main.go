package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"research-flowstream/internal/bootstrap"
	"research-flowstream/internal/config"
	"research-flowstream/internal/pkg/logger"
	"research-flowstream/internal/server"
	"research-flowstream/internal/tracer"
	"research-flowstream/pkg/database"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// 1. Load Configuration
	cfg := config.Load()
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	defer sysLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Initialize Tracer
	shutdownTracer := tracer.InitTracer(tracer.Config{
		Enabled:  cfg.Tracing.Enabled,
		Endpoint: cfg.Tracing.Endpoint,
	}, sysLogger)
	defer shutdownTracer(context.Background())

	// 3. Initialize Database (pgvector store only)
	var db *gorm.DB
	if cfg.Database.VectorStore != "memory" {
		var err error
		db, err = database.Open(ctx, cfg.Database.Connection, !cfg.IsProduction())
		if err != nil {
			log.Panicf("Unable to connect to GORM DB: %v", err)
		}
		defer database.Close(db)
	}

	// 4. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(ctx, cfg, db, sysLogger)
	if err != nil {
		log.Panicf("Unable to build container: %v", err)
	}
	defer container.Close()

	// 5. Collection must exist before traffic is accepted
	if err := container.ReportService.EnsureCollection(ctx); err != nil {
		log.Panicf("Unable to prepare reports collection: %v", err)
	}

	// 6. Run server and background services until a signal or a failure
	srv := server.New(cfg, container)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return container.ConsumerService.Consume(gctx)
	})
	g.Go(func() error {
		container.WebSocketHub.Run(gctx)
		return nil
	})
	g.Go(srv.Run)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		sysLogger.Error("HTTP", "Server stopped with error", map[string]interface{}{"error": err})
		return
	}
	sysLogger.Info("HTTP", "Server stopped", nil)
}
