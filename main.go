package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/storefront-support-api/config"
	"github.com/kendall-kelly/storefront-support-api/controllers"
	"github.com/kendall-kelly/storefront-support-api/middleware"
	"github.com/kendall-kelly/storefront-support-api/models"
	"github.com/kendall-kelly/storefront-support-api/realtime"
	"github.com/kendall-kelly/storefront-support-api/services"
	"github.com/kendall-kelly/storefront-support-api/utils"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

// application is the wired HTTP surface plus whatever must be released on exit
type application struct {
	router  *gin.Engine
	hub     *realtime.Hub
	closers []func() error
}

func (a *application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("err", err))
		os.Exit(1)
	}

	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("starting storefront support API")

	if err := config.ConnectDatabase(cfg.DatabaseURL); err != nil {
		logger.Error("failed to connect to database", slog.Any("err", err))
		os.Exit(1)
	}
	db := config.GetDB()
	if err := models.Migrate(db); err != nil {
		logger.Error("failed to migrate database", slog.Any("err", err))
		os.Exit(1)
	}
	logger.Info("database migration completed")

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, db, logger, middleware.EnsureValidToken(cfg, logger))
	if err != nil {
		logger.Error("failed to initialise application", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("shutdown cleanup failed", slog.Any("err", err))
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", srv.Addr))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("err", err))
		}
		return
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("err", err))
	}
}

// newApplication builds services, the realtime hub and the router. auth
// guards every authenticated route.
func newApplication(ctx context.Context, cfg *config.Config, db *gorm.DB, logger *slog.Logger, auth gin.HandlerFunc) (*application, error) {
	if err := utils.RegisterValidators(); err != nil {
		return nil, fmt.Errorf("register validators: %w", err)
	}

	app := &application{}

	store, err := services.NewS3Service(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialise S3: %w", err)
	}
	images := services.NewEvidenceImages(store, logger)

	catalog := services.NewCatalog(db)
	returns := services.NewReturnService(db, catalog, catalog, services.NewLoggingReplacementIssuer(logger), images, cfg.ReturnWindowDays, logger)
	conversations := services.NewConversationService(db, catalog, logger)

	bus, err := newBus(ctx, cfg, logger, app)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.hub = realtime.NewHub(conversations, bus, logger)
	if err := app.hub.Start(ctx); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("start realtime hub: %w", err)
	}
	app.closers = append(app.closers, app.hub.Close)

	app.router = controllers.NewRouter(controllers.RouterDeps{
		DB:             db,
		Logger:         logger,
		Auth:           auth,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RequestTimeout: cfg.DBTimeout,
		AdminScope:     cfg.AdminScope,
		Health:         controllers.NewHealthController(db, app.hub),
		Users:          controllers.NewUserController(db, services.NewAuth0Service(cfg, logger), logger),
		Returns:        controllers.NewReturnController(returns, images, logger),
		Chat:           controllers.NewChatController(conversations, logger),
		Uploads:        controllers.NewUploadController(images, logger),
		WebSocket:      controllers.NewWebSocketController(app.hub, cfg.CORSAllowedOrigins, logger),
	})
	return app, nil
}

// newBus picks redis fan-out when REDIS_URL is set, in-process otherwise
func newBus(ctx context.Context, cfg *config.Config, logger *slog.Logger, app *application) (realtime.Bus, error) {
	if cfg.RedisURL == "" {
		logger.Info("realtime fan-out running in-process")
		return realtime.NewLocalBus(), nil
	}

	client, err := realtime.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, client.Close)

	bus := realtime.NewRedisBus(client, realtime.DefaultChannel, logger)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := bus.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return bus, nil
}
