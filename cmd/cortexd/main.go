package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/BangRocket/mypalclara/internal/api"
	"github.com/BangRocket/mypalclara/internal/cache"
	"github.com/BangRocket/mypalclara/internal/config"
	"github.com/BangRocket/mypalclara/internal/contradiction"
	"github.com/BangRocket/mypalclara/internal/cortex"
	"github.com/BangRocket/mypalclara/internal/dynamics"
	"github.com/BangRocket/mypalclara/internal/embedding"
	"github.com/BangRocket/mypalclara/internal/graph"
	"github.com/BangRocket/mypalclara/internal/intention"
	pgstore "github.com/BangRocket/mypalclara/internal/store"
	"github.com/BangRocket/mypalclara/internal/vectorstore"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting cortexd...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/cortex.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	opts := cortex.Options{
		AgentID:         cfg.Memory.AgentID,
		Detector:        contradiction.NewDetector(contradiction.DefaultRuleset(), logger),
		Scheduler:       dynamics.NewScheduler(dynamics.DefaultParams(), logger),
		Logger:          logger,
		WorkingCap:      cfg.Memory.WorkingCap,
		SemanticTimeout: cfg.Memory.SemanticTimeout(),
	}

	// Archive (PostgreSQL)
	var archive *pgstore.Store
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := pgstore.New(cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without archive", zap.Error(pgErr))
		} else {
			migrationsDir := cfg.Database.Postgres.MigrationsDir
			if migrationsDir == "" {
				migrationsDir = "migrations"
			}
			if mErr := ps.Migrate(context.Background(), migrationsDir); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			archive = ps
			opts.Archive = ps
		}
	}

	// Mirror (Redis)
	var mirror *cache.Mirror
	if cfg.Database.Redis.URL != "" {
		mr, rErr := cache.NewMirror(cfg.Database.Redis.URL, logger)
		if rErr != nil {
			logger.Warn("Redis unavailable, running without mirror", zap.Error(rErr))
		} else {
			mirror = mr
			opts.Mirror = mr
		}
	}

	// Semantic store (Qdrant + embeddings)
	var qdrant *vectorstore.Client
	if cfg.Database.Qdrant.Host != "" {
		embedder, eErr := embedding.NewProvider(embedding.Config{
			Provider:  cfg.Embedding.Provider,
			Endpoint:  cfg.Embedding.Endpoint,
			Model:     cfg.Embedding.Model,
			APIKey:    cfg.Embedding.APIKey,
			Dimension: cfg.Embedding.Dimension,
		})
		if eErr != nil {
			logger.Warn("embedding provider misconfigured, running without semantic store", zap.Error(eErr))
		} else {
			qc, qErr := vectorstore.NewClient(vectorstore.QdrantConfig{
				Host: cfg.Database.Qdrant.Host,
				Port: cfg.Database.Qdrant.Port,
			})
			if qErr != nil {
				logger.Warn("Qdrant unavailable, running without semantic store", zap.Error(qErr))
			} else {
				sem, sErr := vectorstore.NewSemantic(context.Background(), qc, embedder, cfg.Database.Qdrant.Collection, logger)
				if sErr != nil {
					logger.Warn("semantic store init failed", zap.Error(sErr))
					qc.Close()
				} else {
					qdrant = qc
					opts.Semantic = sem
				}
			}
		}
	}

	// Associations (Neo4j)
	var lineage *graph.Store
	if cfg.Database.Neo4j.URI != "" {
		gs, gErr := graph.NewStore(cfg.Database.Neo4j.URI, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, logger)
		if gErr != nil {
			logger.Warn("Neo4j unavailable, running without lineage graph", zap.Error(gErr))
		} else if pErr := gs.Ping(context.Background()); pErr != nil {
			logger.Warn("Neo4j unreachable, running without lineage graph", zap.Error(pErr))
			gs.Close(context.Background())
		} else {
			lineage = gs
			opts.Graph = gs
		}
	}

	manager := cortex.NewManager(opts)

	regOpts := intention.RegistryOptions{
		AgentID: cfg.Memory.AgentID,
		Logger:  logger,
	}
	if archive != nil {
		regOpts.Store = archive
	}
	registry := intention.NewRegistry(regOpts)
	manager.OnSupersession(registry.CascadeSupersession)

	var records api.RecordArchive
	if archive != nil {
		records = archive
	}
	handler := api.NewHandler(manager, registry, records, logger)

	port := fmt.Sprintf("%d", cfg.Server.Port)
	if port == "0" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("cortexd listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Periodic cleanup of expired intentions
	cleanupDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				registry.CleanupExpired(context.Background())
				if archive != nil {
					if n, err := archive.DeleteExpiredIntentions(context.Background(), time.Now()); err == nil && n > 0 {
						logger.Info("pruned expired intentions from archive", zap.Int("count", n))
					}
				}
			case <-cleanupDone:
				return
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down cortexd...")
	close(cleanupDone)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
	if lineage != nil {
		lineage.Close(ctx)
	}
	if qdrant != nil {
		qdrant.Close()
	}
	if mirror != nil {
		mirror.Close()
	}
	if archive != nil {
		archive.Close()
	}
}
