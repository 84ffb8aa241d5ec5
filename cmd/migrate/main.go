package main

import (
	"context"
	"log"
	"os"
	"time"

	"research-flowstream/internal/config"
	"research-flowstream/internal/pkg/logger"
	"research-flowstream/internal/repository/implementation"
	"research-flowstream/internal/service"
	"research-flowstream/pkg/database"
	"research-flowstream/pkg/embedding"
	"research-flowstream/pkg/lock"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	defer sysLogger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// 2. Connect to Database
	db, err := database.Open(ctx, cfg.Database.Connection, !cfg.IsProduction())
	if err != nil {
		log.Fatal("Error: Failed to connect to database: ", err)
	}
	defer database.Close(db)

	repo, err := implementation.NewReportRepository(db, cfg.Database.Collection)
	if err != nil {
		log.Fatal("Error: ", err)
	}

	// 3. Serialize with other instances when redis is configured
	var locker lock.Locker = lock.Noop{}
	if cfg.App.RedisURL != "" {
		rdb, err := lock.NewRedisClient(ctx, cfg.App.RedisURL)
		if err != nil {
			log.Fatal("Error: Failed to connect to redis: ", err)
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb)
	}

	// 4. Bootstrap the collection. Only the embedder's dimension is read here.
	svc := service.NewReportService(repo, embedding.NewLocalProvider(embedding.DefaultDimension), nil, locker, sysLogger,
		service.ReportServiceConfig{
			Collection:   cfg.Database.Collection,
			StoreTimeout: cfg.Database.StoreTimeout,
		})

	log.Printf("Ensuring collection %q...", cfg.Database.Collection)
	if err := svc.EnsureCollection(ctx); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
	log.Println("Migration completed successfully.")
}
