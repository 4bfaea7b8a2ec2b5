package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika-core/adapters/mongo"
	"github.com/satriahrh/arunika-core/adapters/sqlite"
	"github.com/satriahrh/arunika-core/adapters/workerclient"
	"github.com/satriahrh/arunika-core/domain/entities"
	"github.com/satriahrh/arunika-core/domain/repositories"
	"github.com/satriahrh/arunika-core/internal/api"
	"github.com/satriahrh/arunika-core/internal/balancer"
	"github.com/satriahrh/arunika-core/internal/chat"
	"github.com/satriahrh/arunika-core/internal/config"
	"github.com/satriahrh/arunika-core/internal/registry"
	"github.com/satriahrh/arunika-core/internal/satellite"
	"github.com/satriahrh/arunika-core/internal/tools"
	"github.com/satriahrh/arunika-core/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// Initialize logger
	logger, err := newLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	profiles, err := config.LoadSpecialityProfiles(cfg.SpecialityConfig)
	if err != nil {
		logger.Fatal("Failed to load speciality profiles", zap.Error(err))
	}

	archive, closeArchive, err := openArchive(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open chat archive", zap.Error(err))
	}
	defer closeArchive()

	// Worker registry and liveness purge
	reg := registry.New(cfg.WorkerLivenessTimeout, logger)
	cleanup := registry.NewCleanupService(reg, cfg.WorkerLivenessTimeout, cfg.WorkerPurgeAfter, logger)
	cleanup.Start()

	var chatOpts []chat.Option
	if archive != nil {
		chatOpts = append(chatOpts, chat.WithArchive(archive))
	}
	chatManager := chat.NewManager(cfg.ChatExpiration, logger, chatOpts...)

	catalog := tools.NewCatalog()
	if err := tools.RegisterBuiltins(catalog, time.Now); err != nil {
		logger.Fatal("Failed to register tools", zap.Error(err))
	}

	// Worker transport and orchestration
	client := workerclient.New(workerclient.NewHTTPClient(cfg.WorkerTimeout), logger)
	orchestratorDeps := usecase.Dependencies{
		Registry: reg,
		Balancer: balancer.NewRoundRobin(),
		STT:      workerclient.STT{Client: client},
		Router:   workerclient.Router{Client: client},
		LLM:      workerclient.LLM{Client: client},
		TTS:      workerclient.TTS{Client: client},
		Chat:     chatManager,
		Tools:    catalog,
		Profiles: profiles,
		Logger:   logger,
	}
	factory := func(conn *satellite.Connection, session *entities.SatelliteSession) satellite.Pipeline {
		return usecase.NewVoiceSessionOrchestrator(session, conn, orchestratorDeps)
	}
	satellites := satellite.NewManager(factory, satellite.ConnectionOptions{MaxSessionAudio: cfg.MaxSessionAudio}, logger)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	api.InitRoutes(e, api.Dependencies{
		Registry:   reg,
		Satellites: satellites,
		Chat:       chatManager,
		Archive:    archive,
		AuthSecret: []byte(cfg.AuthSecret),
		Logger:     logger,
	})

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Core started",
		zap.String("port", cfg.Port),
		zap.Bool("auth", cfg.AuthEnabled()),
		zap.String("chatArchive", cfg.ChatArchive))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := satellites.Shutdown(ctx); err != nil {
		logger.Warn("Satellites did not close in time", zap.Error(err))
	}
	cleanup.Stop()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	chatManager.Wait()

	logger.Info("Server exited")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if cfg.Development() {
		zapConfig = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zapConfig.Level = level
	return zapConfig.Build()
}

// openArchive connects the configured chat archive. The returned archive is
// nil when archiving is disabled.
func openArchive(cfg *config.Config, logger *zap.Logger) (repositories.ChatArchive, func(), error) {
	switch cfg.ChatArchive {
	case config.ArchiveMongo:
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		client, err := mongo.NewClient(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			return nil, nil, err
		}
		repo := mongo.NewChatRepository(client.Database, logger)
		if err := repo.EnsureIndexes(ctx); err != nil {
			client.Close(context.Background())
			return nil, nil, err
		}
		return repo, func() { client.Close(context.Background()) }, nil

	case config.ArchiveSQLite:
		db, err := sqlite.OpenDB(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		repo, err := sqlite.NewChatRepository(db, logger)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("Using SQLite chat archive", zap.String("path", cfg.SQLitePath))
		return repo, func() { db.Close() }, nil

	default:
		return nil, func() {}, nil
	}
}
