package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arzan03/mediadrop/internal/config"
	"github.com/arzan03/mediadrop/internal/db"
	"github.com/arzan03/mediadrop/internal/middleware"
	"github.com/arzan03/mediadrop/internal/platform"
	"github.com/arzan03/mediadrop/internal/server"
	"github.com/arzan03/mediadrop/internal/services"
	"github.com/arzan03/mediadrop/internal/storage"
	"github.com/arzan03/mediadrop/internal/store"
	"github.com/gofiber/fiber/v2"
)

const (
	archiveWorkers = 4
	archiveTimeout = 10 * time.Minute
)

type App struct {
	Cfg           *config.Config
	Logger        *slog.Logger
	Store         store.Store
	Policy        services.ExpiryPolicy
	Platform      *platform.Client
	Archive       *storage.Archive
	Archiver      *services.Archiver
	Allocator     *services.Allocator
	Gateway       *services.Gateway
	IngestService *services.IngestService
	UploadService *services.UploadService
	AuthService   *services.AuthService
	Sweeper       *services.Sweeper
	RateLimiter   *middleware.RateLimiter
	closeFns      []func() error
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Cfg: cfg, Logger: logger}

	mode, err := services.ParseExpiryMode(cfg.ExpiryMode)
	if err != nil {
		return nil, err
	}
	if mode == services.ModeConsumeOnce {
		a.Policy = services.ConsumeOncePolicy(cfg.ExpiryTTL)
	} else {
		a.Policy = services.TTLPolicy(cfg.ExpiryTTL)
	}

	// Store
	a.Store, err = a.openStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	a.closeFns = append(a.closeFns, a.Store.Close)

	// Platform
	a.Platform = platform.New(platform.Options{
		BaseURL:         cfg.PlatformBaseURL,
		APIVersion:      cfg.PlatformAPIVersion,
		Token:           cfg.PlatformToken,
		PhoneNumberID:   cfg.PlatformPhoneNumberID,
		APITimeout:      cfg.PlatformAPITimeout,
		DownloadTimeout: cfg.PlatformDownloadTimeout,
	}, logger)

	// Optional archive
	var archive services.MediaArchive
	if cfg.ArchiveEnabled {
		a.Archive, err = storage.NewArchive(ctx, storage.MinioOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			Retention: cfg.ExpiryTTL,
		})
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to initialize archive: %w", err)
		}
		archive = a.Archive
		a.Archiver = services.NewArchiver(a.Platform, archive, archiveWorkers, archiveTimeout, logger)
	}

	// Services
	a.Allocator = services.NewAllocator(a.Store, a.Policy, services.AllocatorOptions{
		MaxAttempts: cfg.CodeMaxAttempts,
		MaxDigits:   cfg.CodeMaxDigits,
	}, logger)
	a.Gateway = services.NewGateway(a.Store, a.Platform, archive, a.Policy, services.GatewayOptions{
		PreferOriginalName: cfg.PreferOriginalName,
	}, logger)
	a.IngestService = services.NewIngestService(a.Allocator, a.Platform, a.Archiver, a.Policy, services.IngestOptions{
		PublicURL:  cfg.PublicURL,
		Extensions: services.NewExtensionTable(cfg.MimeTable),
	}, logger)
	a.UploadService = services.NewUploadService(a.Store, archive, a.Policy, logger)
	a.AuthService = services.NewAuthService(cfg.JWTSecret, cfg.AdminUsername, cfg.AdminPasswordHash)
	a.Sweeper = services.NewSweeper(a.Store, a.Policy, cfg.SweepInterval, logger)
	if cfg.DownloadRatePerMinute > 0 {
		a.RateLimiter = middleware.NewRateLimiter(cfg.DownloadRatePerMinute, 10*time.Minute)
	}

	return a, nil
}

func (a *App) openStore(ctx context.Context) (store.Store, error) {
	ttl := a.Policy.TTL

	var st store.Store
	switch a.Cfg.StoreBackend {
	case config.BackendMemory:
		// Already in process; a cache in front would only add staleness.
		return store.NewMemory(ttl), nil
	case config.BackendMongo:
		client, err := db.ConnectMongoDB(ctx, a.Cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		m, err := store.NewMongo(ctx, client, a.Cfg.MongoDatabase, ttl)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		st = m
	case config.BackendBadger:
		b, err := store.OpenBadger(a.Cfg.BadgerDir, ttl)
		if err != nil {
			return nil, err
		}
		st = b
	case config.BackendSQLite, config.BackendPostgres:
		driver := db.DriverSQLite
		if a.Cfg.StoreBackend == config.BackendPostgres {
			driver = db.DriverPostgres
		}
		sqlDB, err := db.OpenSQL(driver, a.Cfg.SQLDSN)
		if err != nil {
			return nil, err
		}
		st = store.NewSQL(sqlDB)
	default:
		return nil, fmt.Errorf("unknown store backend %q", a.Cfg.StoreBackend)
	}

	a.Logger.Info("store ready", "backend", a.Cfg.StoreBackend)
	if a.Cfg.CacheSize > 0 {
		return store.NewCached(st, a.Cfg.CacheSize, a.Cfg.CacheTTL), nil
	}
	return st, nil
}

// Server builds the HTTP application on top of the services.
func (a *App) Server() *fiber.App {
	return server.New(server.Deps{
		Gateway:            a.Gateway,
		Ingest:             a.IngestService,
		Uploads:            a.UploadService,
		Auth:               a.AuthService,
		Store:              a.Store,
		RateLimiter:        a.RateLimiter,
		WebhookVerifyToken: a.Cfg.WebhookVerifyToken,
		Logger:             a.Logger,
	})
}

// RunBackground starts the sweeper and the rate limiter cleanup until ctx
// is done.
func (a *App) RunBackground(ctx context.Context) {
	go a.Sweeper.Run(ctx)
	if a.RateLimiter != nil {
		go a.RateLimiter.Run(ctx, 5*time.Minute)
	}
}

// Close drains pending archive copies and releases the store.
func (a *App) Close() error {
	if a.Archiver != nil {
		a.Archiver.Close()
	}
	var errs []error
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		if err := a.closeFns[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closeFns = nil
	return errors.Join(errs...)
}
