package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/skin-check/internal/auth"
	"github.com/example/skin-check/internal/handlers"
	"github.com/example/skin-check/internal/repository"
	"github.com/example/skin-check/internal/session"
	"github.com/example/skin-check/internal/storage"
	"github.com/example/skin-check/internal/usecase"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	capability, closeCapability, err := buildCapability(ctx, cfg.Classifier, logger)
	if err != nil {
		return err
	}
	defer closeCapability()

	adapter, err := buildAdapter(capability, cfg.Classifier, logger)
	if err != nil {
		return err
	}
	deps := pipelineDependencies(cfg, adapter)

	if cfg.Database.Driver != "" {
		db, err := openDatabase(ctx, cfg.Database)
		if err != nil {
			return err
		}
		repo := repository.NewDiagnosisRepository(db, logger)
		if err := repo.AutoMigrate(ctx); err != nil {
			return err
		}
		deps.Repository = repo
	} else {
		logger.Warn("no database configured, diagnosis logs are not persisted")
	}

	var sessions handlers.SessionStore
	if cfg.Redis.Addr != "" {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		defer redisCancel()
		client, err := openRedis(redisCtx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()

		cache := usecase.NewRedisCache(client)
		deps.Cache = cache
		sessions = session.NewStore(cache, cfg.Redis.SessionTTL, logger)
	} else {
		logger.Warn("no redis configured, result cache and sessions are disabled")
	}

	if cfg.Storage.Dir != "" {
		store, err := storage.NewLocalStore(cfg.Storage.Dir, cfg.Storage.URLPrefix)
		if err != nil {
			return err
		}
		deps.Storage = store
	}

	uc := usecase.NewDiagnosisUseCase(deps, logger)

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))
	r.MaxMultipartMemory = handlers.MaxUploadSize

	routes := handlers.RouteConfig{
		Identify:     auth.OptionalJWTMiddleware(cfg.Auth.JWTSecret, cfg.Auth.JWTAudience),
		Sessions:     sessions,
		UploadDir:    cfg.Storage.Dir,
		UploadPrefix: cfg.Storage.URLPrefix,
		Logger:       logger,
	}
	if cfg.Auth.JWTSecret != "" {
		routes.Protect = auth.JWTMiddleware(cfg.Auth.JWTSecret, cfg.Auth.JWTAudience)
	} else {
		logger.Warn("no JWT secret configured, /results and /metrics are unauthenticated")
	}
	handlers.RegisterRoutes(r, uc, routes)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	logger.Info("skin-check API listening",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("classifier", cfg.Classifier.Backend),
		zap.Bool("classifier_available", adapter.Available()),
	)
	return serveHTTPServer(server, cfg.HTTP.ShutdownTimeout, logger)
}

func requestLogger(zapLogger *zap.Logger) gin.HandlerFunc {
	httpLogger := zapLogger.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		httpLogger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	sigCh, stopSignals := shutdownSignals(signalCh)
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}

// shutdownSignals returns signalCh when set, otherwise a channel notified
// on SIGINT and SIGTERM.
func shutdownSignals(signalCh <-chan os.Signal) (<-chan os.Signal, func()) {
	if signalCh != nil {
		return signalCh, func() {}
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	return ch, func() { signal.Stop(ch) }
}
