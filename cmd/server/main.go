package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/permitsync/permitsync/internal/config"
	"github.com/permitsync/permitsync/internal/handlers"
	"github.com/permitsync/permitsync/internal/jurisdiction"
	"github.com/permitsync/permitsync/internal/middleware"
	"github.com/permitsync/permitsync/internal/repository"
	"github.com/permitsync/permitsync/internal/services/auth"
	"github.com/permitsync/permitsync/internal/services/documents"
	"github.com/permitsync/permitsync/internal/services/email"
	"github.com/permitsync/permitsync/internal/services/packaging"
	"github.com/permitsync/permitsync/internal/services/portal"
	"github.com/permitsync/permitsync/internal/services/precheck"
	"github.com/permitsync/permitsync/internal/services/queue"
	"github.com/permitsync/permitsync/internal/services/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := repository.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return err
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	loader := jurisdiction.NewLoader(cfg.PacksDir)

	mailer := email.NewLogSender(logger, cfg.EmailFrom)
	authSvc := auth.NewService(auth.NewRedisTokenStore(redisClient), store.Sessions, mailer,
		logger, cfg.JWTSecret, cfg.BaseURL, cfg.MagicLinkTTL, cfg.SessionTTL)

	docs, err := documents.NewService(cfg, store.Documents, logger)
	if err != nil {
		return err
	}
	if err := docs.EnsureBucket(ctx); err != nil {
		return err
	}

	registry := portal.NewRegistry()
	registry.Register(portal.NewMockDriver("accela_mock", "ACC"))
	registry.Register(portal.NewMockDriver("email_mock", "EML"))
	registry.Register(portal.NewMockDriver("upload_mock", "UPL"))
	registry.SetDefault(jurisdiction.PortalAccelaLike, "accela_mock")
	registry.SetDefault(jurisdiction.PortalEmail, "email_mock")
	registry.SetDefault(jurisdiction.PortalUpload, "upload_mock")

	q := queue.New(cfg.QueueWorkers, logger)
	wf := workflow.New(store, loader, registry, q, mailer, logger)
	wf.RegisterHandlers()
	q.Start(ctx)
	defer q.Stop()

	go pollActiveCases(ctx, wf, cfg.PollInterval)
	go sweepSessions(ctx, store, logger)

	pre := precheck.NewOrchestrator(store, loader, logger)
	packager := packaging.NewBuilder(store, loader, logger)

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS)
	limiter.StartCleanup(ctx)
	router.Use(middleware.RateLimit(limiter))

	h := handlers.New(store, loader, authSvc, pre, packager, wf, q, docs, logger)
	h.Register(router, middleware.Auth(authSvc))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", server.Addr, "packs_dir", cfg.PacksDir)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// pollActiveCases refreshes portal statuses on a timer so cases move even
// when nobody polls by hand.
func pollActiveCases(ctx context.Context, wf *workflow.Workflow, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wf.PollActiveCases(ctx)
		}
	}
}

// sweepSessions deletes expired login sessions hourly.
func sweepSessions(ctx context.Context, store *repository.Store, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Sessions.DeleteExpired(ctx)
			if err != nil {
				logger.Error("session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("expired sessions removed", "count", n)
			}
		}
	}
}
