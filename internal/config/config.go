// Package config loads service settings from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/skin-check/internal/admission"
	"github.com/example/skin-check/internal/classifier"
	"github.com/example/skin-check/internal/usecase"
)

// Classifier backends.
const (
	BackendONNX = "onnx"
	BackendStub = "stub"
	BackendGRPC = "grpc"
	BackendNone = "none"
)

// Config is the full service configuration.
type Config struct {
	Log         LogConfig            `yaml:"log"`
	HTTP        HTTPConfig           `yaml:"http"`
	Storage     StorageConfig        `yaml:"storage"`
	Database    DatabaseConfig       `yaml:"database"`
	Redis       RedisConfig          `yaml:"redis"`
	Auth        AuthConfig           `yaml:"auth"`
	Classifier  ClassifierConfig     `yaml:"classifier"`
	Admission   admission.Thresholds `yaml:"admission"`
	Display     usecase.DisplayRange `yaml:"display"`
	MaxPixels   int                  `yaml:"max_pixels"`
	ModelServer ModelServerConfig    `yaml:"model_server"`
	Watch       WatchConfig          `yaml:"watch"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
}

// StorageConfig locates stored uploads. Dir empty disables storage.
type StorageConfig struct {
	Dir       string `yaml:"dir"`
	URLPrefix string `yaml:"url_prefix"`
}

// DatabaseConfig selects the diagnosis log store. Driver is postgres, sqlite,
// or empty to disable persistence.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// RedisConfig configures the result cache and session store. Addr empty
// disables both.
type RedisConfig struct {
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	ResultTTL  time.Duration `yaml:"result_ttl"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// AuthConfig enables bearer auth on /results and /metrics when JWTSecret is set.
type AuthConfig struct {
	JWTSecret   string `yaml:"jwt_secret"`
	JWTAudience string `yaml:"jwt_audience"`
}

type ClassifierConfig struct {
	Backend      string `yaml:"backend"`
	ModelPath    string `yaml:"model_path"`
	MetadataPath string `yaml:"metadata_path"`
	LibraryPath  string `yaml:"library_path"`
	RemoteAddr   string `yaml:"remote_addr"`
	StubSeed     uint64 `yaml:"stub_seed"`
	InputSize    int    `yaml:"input_size"`
	Layout       string `yaml:"layout"`
}

type ModelServerConfig struct {
	Addr string `yaml:"addr"`
}

type WatchConfig struct {
	DebounceMS int `yaml:"debounce_ms"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
		},
		Storage: StorageConfig{Dir: "uploads", URLPrefix: "/uploads"},
		Redis: RedisConfig{
			ResultTTL:  5 * time.Minute,
			SessionTTL: 24 * time.Hour,
		},
		Classifier: ClassifierConfig{
			Backend:      BackendStub,
			MetadataPath: "model_metadata.json",
			ModelPath:    "skin_disease_model.onnx",
		},
		Admission:   admission.DefaultThresholds(),
		Display:     usecase.DefaultDisplayRange(),
		ModelServer: ModelServerConfig{Addr: ":50051"},
		Watch:       WatchConfig{DebounceMS: 500},
	}
}

// Load reads configuration from path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	cfg.fillDefaults()
	return cfg, nil
}

// fillDefaults restores essential values left empty by a partial file.
func (c *Config) fillDefaults() {
	def := DefaultConfig()
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = def.HTTP.Addr
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = def.HTTP.ShutdownTimeout
	}
	if c.Redis.ResultTTL <= 0 {
		c.Redis.ResultTTL = def.Redis.ResultTTL
	}
	if c.Redis.SessionTTL <= 0 {
		c.Redis.SessionTTL = def.Redis.SessionTTL
	}
	if c.Classifier.Backend == "" {
		c.Classifier.Backend = def.Classifier.Backend
	}
	if c.ModelServer.Addr == "" {
		c.ModelServer.Addr = def.ModelServer.Addr
	}
	if c.Watch.DebounceMS <= 0 {
		c.Watch.DebounceMS = def.Watch.DebounceMS
	}
	if c.Display == (usecase.DisplayRange{}) {
		c.Display = def.Display
	}
	if c.Admission.MinSkinRatio == 0 && c.Admission.MaxEdgeRatio == 0 {
		c.Admission = def.Admission
	}
}

// ApplyEnv overrides settings from environment variables.
func (c *Config) ApplyEnv() {
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.HTTP.Addr = getEnv("SKINCHECK_HTTP_ADDR", c.HTTP.Addr)
	c.Storage.Dir = getEnv("SKINCHECK_UPLOAD_DIR", c.Storage.Dir)
	c.Database.Driver = getEnv("DATABASE_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("DATABASE_DSN", c.Database.DSN)
	if c.Database.DSN != "" && c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	if db, err := strconv.Atoi(getEnv("REDIS_DB", "")); err == nil {
		c.Redis.DB = db
	}
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.JWTAudience = getEnv("JWT_AUDIENCE", c.Auth.JWTAudience)
	c.Classifier.Backend = getEnv("CLASSIFIER_BACKEND", c.Classifier.Backend)
	c.Classifier.ModelPath = getEnv("MODEL_PATH", c.Classifier.ModelPath)
	c.Classifier.MetadataPath = getEnv("MODEL_METADATA_PATH", c.Classifier.MetadataPath)
	c.Classifier.LibraryPath = getEnv("ONNXRUNTIME_LIB", c.Classifier.LibraryPath)
	c.Classifier.RemoteAddr = getEnv("CLASSIFIER_ADDR", c.Classifier.RemoteAddr)
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error

	switch c.Classifier.Backend {
	case BackendONNX:
		if c.Classifier.ModelPath == "" || c.Classifier.MetadataPath == "" {
			errs = append(errs, errors.New("classifier: onnx backend needs model_path and metadata_path"))
		}
	case BackendGRPC:
		if c.Classifier.RemoteAddr == "" {
			errs = append(errs, errors.New("classifier: grpc backend needs remote_addr"))
		}
	case BackendStub, BackendNone:
	default:
		errs = append(errs, fmt.Errorf("classifier: unknown backend %q", c.Classifier.Backend))
	}
	if c.Classifier.Layout != "" {
		if _, err := classifier.ParseLayout(c.Classifier.Layout); err != nil {
			errs = append(errs, fmt.Errorf("classifier: %w", err))
		}
	}
	if c.Classifier.InputSize < 0 {
		errs = append(errs, errors.New("classifier: input_size must not be negative"))
	}

	switch strings.ToLower(c.Database.Driver) {
	case "", "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database: unknown driver %q", c.Database.Driver))
	}
	if c.Database.Driver != "" && c.Database.DSN == "" {
		errs = append(errs, errors.New("database: dsn is required when a driver is set"))
	}

	a := c.Admission
	if a.HueMin > a.HueMax || a.SatMin > a.SatMax || a.ValMin > a.ValMax {
		errs = append(errs, errors.New("admission: skin box bounds are inverted"))
	}
	if a.HueMax > 179 {
		errs = append(errs, errors.New("admission: hue_max must be below 180"))
	}
	if a.MinSkinRatio < 0 || a.MinSkinRatio > 1 || a.MaxEdgeRatio < 0 || a.MaxEdgeRatio > 1 {
		errs = append(errs, errors.New("admission: ratios must lie in [0,1]"))
	}
	if a.CannyLow < 0 || a.CannyHigh < 0 {
		errs = append(errs, errors.New("admission: canny thresholds must not be negative"))
	}

	if c.MaxPixels < 0 {
		errs = append(errs, errors.New("max_pixels must not be negative"))
	}

	return errors.Join(errs...)
}

// Save persists the configuration to path.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
