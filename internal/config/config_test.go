package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("expected default addr ':8080', got %q", cfg.HTTP.Addr)
	}
	if cfg.Classifier.Backend != BackendStub {
		t.Errorf("expected default backend %q, got %q", BackendStub, cfg.Classifier.Backend)
	}
	if cfg.Admission.MinSkinRatio != 0.15 || cfg.Admission.MaxEdgeRatio != 0.01 {
		t.Errorf("unexpected admission defaults %+v", cfg.Admission)
	}
	if cfg.Display.RedMin != 60 || cfg.Display.GreenMax != 30 {
		t.Errorf("unexpected display defaults %+v", cfg.Display)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("unexpected error loading non-existent file: %v", err)
	}
	if cfg.HTTP.ShutdownTimeout != 15*time.Second {
		t.Errorf("expected default shutdown timeout, got %v", cfg.HTTP.ShutdownTimeout)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
http:
  addr: ":9090"
classifier:
  backend: none
admission:
  hue_max: 25
  sat_min: 30
  sat_max: 180
  val_min: 60
  val_max: 255
  min_skin_ratio: 0.2
  max_edge_ratio: 0.05
  canny_low: 50
  canny_high: 150
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.HTTP.Addr != ":9090" || cfg.Classifier.Backend != BackendNone {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Admission.HueMax != 25 || cfg.Admission.MinSkinRatio != 0.2 || cfg.Admission.CannyLow != 50 {
		t.Errorf("admission overrides not applied: %+v", cfg.Admission)
	}
	if cfg.HTTP.ShutdownTimeout != 15*time.Second || cfg.Watch.DebounceMS != 500 {
		t.Errorf("defaults not back-filled: %+v", cfg)
	}
	if cfg.Display.RedMax != 90 {
		t.Errorf("expected display defaults, got %+v", cfg.Display)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("http: [unclosed"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSave_And_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.ResultTTL = 2 * time.Minute
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = "file:test.db"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Redis.Addr != "localhost:6379" || loaded.Redis.ResultTTL != 2*time.Minute {
		t.Errorf("redis settings not round-tripped: %+v", loaded.Redis)
	}
	if loaded.Database != cfg.Database {
		t.Errorf("database settings not round-tripped: %+v", loaded.Database)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SKINCHECK_HTTP_ADDR", ":7000")
	t.Setenv("DATABASE_DSN", "host=db")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("CLASSIFIER_BACKEND", "grpc")
	t.Setenv("CLASSIFIER_ADDR", "inference:50051")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	if cfg.HTTP.Addr != ":7000" {
		t.Errorf("expected addr override, got %q", cfg.HTTP.Addr)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.DSN != "host=db" {
		t.Errorf("expected postgres with env dsn, got %+v", cfg.Database)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.DB != 2 {
		t.Errorf("unexpected redis settings %+v", cfg.Redis)
	}
	if cfg.Auth.JWTSecret != "s3cret" {
		t.Errorf("expected jwt secret override")
	}
	if cfg.Classifier.Backend != BackendGRPC || cfg.Classifier.RemoteAddr != "inference:50051" {
		t.Errorf("unexpected classifier settings %+v", cfg.Classifier)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown backend", func(c *Config) { c.Classifier.Backend = "tensorflow" }, "unknown backend"},
		{"grpc without addr", func(c *Config) { c.Classifier.Backend = BackendGRPC }, "remote_addr"},
		{"onnx without model", func(c *Config) { c.Classifier = ClassifierConfig{Backend: BackendONNX} }, "model_path"},
		{"bad layout", func(c *Config) { c.Classifier.Layout = "CHWN" }, "classifier"},
		{"bad driver", func(c *Config) { c.Database = DatabaseConfig{Driver: "mysql", DSN: "x"} }, "unknown driver"},
		{"driver without dsn", func(c *Config) { c.Database.Driver = "sqlite" }, "dsn is required"},
		{"inverted box", func(c *Config) { c.Admission.SatMin = 200 }, "inverted"},
		{"hue out of range", func(c *Config) { c.Admission.HueMax = 200 }, "hue_max"},
		{"ratio out of range", func(c *Config) { c.Admission.MinSkinRatio = 1.5 }, "ratios"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
