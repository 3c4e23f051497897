package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/skin-check/internal/classifier"
	"github.com/example/skin-check/internal/config"
	"github.com/example/skin-check/internal/grpcclient"
	"github.com/example/skin-check/internal/imaging"
	"github.com/example/skin-check/internal/usecase"
)

// buildCapability opens the configured classifier backend. The returned
// cleanup is never nil. A nil capability selects the degraded path.
func buildCapability(ctx context.Context, cfg config.ClassifierConfig, zapLogger *zap.Logger) (classifier.Capability, func(), error) {
	noop := func() {}

	switch cfg.Backend {
	case config.BackendNone:
		zapLogger.Warn("classifier disabled, predictions will be degraded")
		return nil, noop, nil
	case config.BackendStub:
		zapLogger.Warn("using stub classifier, predictions are random")
		return classifier.NewStubCapability(cfg.StubSeed), noop, nil
	case config.BackendONNX:
		capability, err := classifier.LoadONNX(classifier.ONNXConfig{
			ModelPath:    cfg.ModelPath,
			MetadataPath: cfg.MetadataPath,
			LibraryPath:  cfg.LibraryPath,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("failed to load onnx model: %w", err)
		}
		zapLogger.Info("onnx model loaded",
			zap.String("model", cfg.ModelPath),
			zap.Int("image_size", capability.Metadata.ImageSize),
			zap.String("layout", capability.Metadata.InputLayout().String()),
		)
		return capability, capability.Close, nil
	case config.BackendGRPC:
		remote, conn, err := grpcclient.DialClassifier(ctx, cfg.RemoteAddr, zapLogger)
		if err != nil {
			return nil, noop, err
		}
		return remote, func() { conn.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown classifier backend %q", cfg.Backend)
	}
}

func buildAdapter(capability classifier.Capability, cfg config.ClassifierConfig, zapLogger *zap.Logger) (*classifier.Adapter, error) {
	opts := classifier.Options{InputSize: cfg.InputSize}
	if cfg.Layout != "" {
		layout, err := classifier.ParseLayout(cfg.Layout)
		if err != nil {
			return nil, err
		}
		opts.Layout = &layout
	}
	return classifier.NewAdapter(capability, opts, zapLogger), nil
}

// pipelineDependencies builds the stages shared by every command. The
// optional collaborators are left for the caller.
func pipelineDependencies(cfg *config.Config, adapter *classifier.Adapter) usecase.Dependencies {
	return usecase.Dependencies{
		Decoder:    imaging.NewDecoder(cfg.MaxPixels),
		Analyzer:   newAnalyzer(cfg.Admission),
		Classifier: adapter,
		Display:    usecase.NewDisplayGenerator(cfg.Display),
		ResultTTL:  cfg.Redis.ResultTTL,
	}
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(cfg.Driver) {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access db handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return db, nil
}

func openRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}
