package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"productstudio/blobstore"
	"productstudio/catalog"
	"productstudio/core"
	"productstudio/db"
	"productstudio/gallery"
	"productstudio/imagegen"
	"productstudio/ledger"
	"productstudio/logging"
	"productstudio/metrics"
	"productstudio/shutdown"
	"productstudio/studio"
	"productstudio/webui"
	"productstudio/webui/auth"
)

// Build metadata, set with -ldflags "-X main.Version=...".
var (
	Version   = "dev"
	BuildDate = ""
	GitCommit = ""
)

// Shutdown handler priorities. Lower values run first.
const (
	priorityHTTP     = 10
	priorityCleanup  = 20
	priorityWriter   = 30
	priorityDatabase = 40
	priorityTemp     = 50
	priorityLogger   = 90
)

// App owns every long-lived component of the studio.
type App struct {
	cfg      *core.Config
	logger   *logging.Logger
	database *db.Database
	server   *webui.Server
	health   *webui.HealthMonitor
	manager  *shutdown.Manager
	metrics  *metrics.Store
}

// NewApp opens storage, builds the generation services and wires the HTTP
// server. Nothing is served until Run is called.
func NewApp(ctx context.Context, cfg *core.Config, logger *logging.Logger) (*App, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	database, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	ok := false
	defer func() {
		if !ok {
			database.Close()
		}
	}()

	repo := db.NewRepository(database, nil)
	writer := db.NewAsyncWriter(repo.CreateAsyncWriteHandler())
	writer.Start()
	repo.SetAsyncWriter(writer)

	blobs, err := blobstore.NewLocal(cfg.BlobDir, cfg.PublicBaseURL)
	if err != nil {
		writer.Stop()
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}

	services, err := imagegen.NewServicesFromConfig(ctx, cfg, logger)
	if err != nil {
		writer.Stop()
		return nil, fmt.Errorf("failed to create generation services: %w", err)
	}

	manager := shutdown.NewManager(logger, shutdown.WithTimeout(cfg.ShutdownTimeout))
	store := metrics.NewStore(metrics.StoreConfig{HistoryCapacity: 200, Version: Version}, time.Now())

	accounts := ledger.New(repo, cfg.DefaultTokenBalance, logger)
	assets := catalog.NewService(repo, blobs, catalog.Config{
		MaxProducts:    cfg.MaxProducts,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, logger)
	persister := gallery.NewPersister(blobs, repo, logger)
	resolver := imagegen.NewResolver(&imagegen.RoutingFetcher{
		Local: imagegen.NewBlobFetcher(blobs),
		Remote: imagegen.NewHTTPFetcher(imagegen.HTTPFetcherConfig{
			MaxBytes:     cfg.MaxFetchBytes,
			AllowPrivate: cfg.AllowPrivateFetch,
		}),
	}, logger)

	orchestrator, err := studio.NewOrchestrator(studio.Dependencies{
		Ledger:    accounts,
		Resolver:  resolver,
		Invoker:   services.Generator,
		Persister: persister,
		Events:    repo,
		Metrics:   store,
		Gate:      manager,
	}, studio.CostPolicyFromConfig(cfg.Costs), logger, studio.WithModelName(services.ImageModel))
	if err != nil {
		writer.Stop()
		return nil, err
	}

	content, err := studio.LoadCatalog()
	if err != nil {
		writer.Stop()
		return nil, fmt.Errorf("failed to load prompt catalog: %w", err)
	}

	hash, err := auth.ResolveAdminHash(cfg.AdminPassword, cfg.AdminPasswordHash)
	if err != nil {
		writer.Stop()
		return nil, fmt.Errorf("invalid admin credential: %w", err)
	}
	limiter := webui.NewRateLimiter(auth.DefaultRateLimitAttempts, auth.DefaultRateLimitWindow, auth.DefaultRateLimitBlock)
	guard, err := auth.NewAdminAuth(auth.AdminAuthConfig{PasswordHash: hash, Limiter: limiter}, logger)
	if err != nil {
		writer.Stop()
		return nil, err
	}

	health := webui.NewHealthMonitor(webui.DefaultHealthMonitorConfig(), logger)
	health.Register(webui.CheckFunc{CheckName: "database", Fn: database.Ping})
	health.Register(webui.CheckFunc{CheckName: "blobstore", Fn: func(context.Context) error {
		_, err := os.Stat(blobs.Root())
		return err
	}})

	var provisioner webui.Provisioner
	if cfg.AutoProvisionProfiles {
		provisioner = accounts
	}

	serverConfig := webui.DefaultServerConfig()
	serverConfig.Host = cfg.Host
	serverConfig.Port = cfg.Port
	serverConfig.IdentityHeader = cfg.IdentityHeader
	serverConfig.ShutdownTimeout = cfg.ShutdownTimeout

	server, err := webui.NewServer(serverConfig, webui.ServerDeps{
		Studio: webui.StudioAPIConfig{
			Studio:         orchestrator,
			Accounts:       accounts,
			Profiles:       repo,
			Catalog:        assets,
			Gallery:        persister,
			Progress:       orchestrator.Progress(),
			Enhancer:       services.Enhancer,
			Content:        content,
			MaxUploadBytes: cfg.MaxUploadBytes,
		},
		Admin: webui.AdminAPIConfig{
			Profiles: repo,
			Accounts: accounts,
			Catalog:  assets,
			Gallery:  persister,
			Metrics:  store,
			Events:   repo,
			VersionInfo: webui.VersionInfo{
				Version:   Version,
				BuildDate: BuildDate,
				GitCommit: GitCommit,
			},
		},
		AdminGuard:  guard,
		Provisioner: provisioner,
		Files:       blobs,
		Health:      health,
		Status:      store,
	}, logger)
	if err != nil {
		writer.Stop()
		return nil, err
	}
	orchestrator.Progress().Subscribe(server.Hub())

	limiter.StartCleanupTicker(manager.Context(), time.Minute)
	cleanupDone := database.StartCleanupScheduler(manager.Context(), db.CleanupSchedulerConfig{
		RetentionDays: cfg.EventRetentionDays,
		Interval:      24 * time.Hour,
		OnCleanup: func(result db.CleanupResult, err error) {
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("event retention run failed", zap.Error(err))
				return
			}
			if result.GenerationEventsDeleted > 0 {
				logger.Info("old generation events removed",
					zap.Int64("deleted", result.GenerationEventsDeleted),
					zap.Duration("duration", result.Duration))
			}
		},
	})

	manager.OnShutdownStart(store.SetStopping)
	manager.Register("http-server", priorityHTTP, server.Shutdown)
	manager.Register("event-cleanup", priorityCleanup, func(ctx context.Context) error {
		select {
		case <-cleanupDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	manager.Register("async-writer", priorityWriter, func(ctx context.Context) error {
		if !writer.StopWithTimeout(10 * time.Second) {
			return errors.New("async writer did not drain in time")
		}
		return nil
	})
	manager.Register("database", priorityDatabase, func(ctx context.Context) error {
		return database.Close()
	})
	manager.Register("blob-temp-files", priorityTemp, shutdown.CleanupTempUploads(logger, cfg.BlobDir))
	manager.Register("logger", priorityLogger, shutdown.SyncLogger(logger))

	ok = true
	return &App{
		cfg:      cfg,
		logger:   logger,
		database: database,
		server:   server,
		health:   health,
		manager:  manager,
		metrics:  store,
	}, nil
}

// Run serves HTTP until the shutdown manager's context is cancelled, then
// drains in-flight generations and runs the cleanup handlers. With
// handleSignals set, SIGINT and SIGTERM start the shutdown.
func (a *App) Run(handleSignals bool) error {
	if handleSignals {
		a.manager.Start()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.server.Start(a.manager.Context())
	}()

	a.logger.Info("product studio ready",
		zap.String("addr", a.server.Addr()),
		zap.String("public_base_url", a.cfg.PublicBaseURL),
		zap.String("version", Version))

	var runErr error
	select {
	case err := <-serveErr:
		runErr = err
		a.manager.Trigger()
	case <-a.manager.Context().Done():
	}

	if err := a.manager.Shutdown(); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// Stop starts a graceful shutdown from outside Run.
func (a *App) Stop() {
	a.manager.Trigger()
}

// ExitCode maps the signal that stopped the app to a process exit code.
func (a *App) ExitCode() int {
	return a.manager.ExitCode()
}
