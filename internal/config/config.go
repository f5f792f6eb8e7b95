package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/facewatch/internal/constants"
)

var validate = validator.New()

type Config struct {
	Camera      CameraConfig      `yaml:"camera" json:"camera"`
	Detection   DetectionConfig   `yaml:"detection" json:"detection"`
	Performance PerformanceConfig `yaml:"performance" json:"performance"`
	Stability   StabilityConfig   `yaml:"stability" json:"stability"`
	System      SystemConfig      `yaml:"system" json:"system"`
	Database    DatabaseConfig    `yaml:"database" json:"database"`
	FaceService FaceServiceConfig `yaml:"face_service" json:"face_service"`
	Web         WebConfig         `yaml:"web" json:"web"`
}

type CameraConfig struct {
	// Source is a device index ("0"), an rtsp:// or http(s):// URL, "dir:/path" or "watch:/path"
	Source string `yaml:"source" json:"source" validate:"required"`
	Width  int    `yaml:"width" json:"width" validate:"gt=0"`
	Height int    `yaml:"height" json:"height" validate:"gt=0"`
	FPS    int    `yaml:"fps" json:"fps" validate:"gt=0,lte=120"`
}

type DetectionConfig struct {
	Backend      string        `yaml:"backend" json:"backend" validate:"oneof=service opencv dlib"`
	CascadePath  string        `yaml:"cascade_path" json:"cascade_path"`
	ScaleFactor  float64       `yaml:"scale_factor" json:"scale_factor" validate:"gt=1"`
	MinNeighbors int           `yaml:"min_neighbors" json:"min_neighbors" validate:"gte=0"`
	MinSize      int           `yaml:"min_size" json:"min_size" validate:"gt=0"`
	Model        string        `yaml:"model" json:"model" validate:"oneof=hog cnn"`
	Jitters      int           `yaml:"jitters" json:"jitters" validate:"gte=0,lte=100"`
	Tolerance    float64       `yaml:"tolerance" json:"tolerance" validate:"gte=0,lte=1"`
	CacheTimeout time.Duration `yaml:"cache_timeout" json:"cache_timeout" validate:"gt=0"`
	MaxCacheSize int           `yaml:"max_cache_size" json:"max_cache_size" validate:"gt=0"`
	UseCache     bool          `yaml:"use_cache" json:"use_cache"`
}

type PerformanceConfig struct {
	TargetFPS   float64 `yaml:"target_fps" json:"target_fps" validate:"gt=0"`
	MinFPS      float64 `yaml:"min_fps" json:"min_fps" validate:"gt=0,ltfield=TargetFPS"`
	HistorySize int     `yaml:"history_size" json:"history_size" validate:"gt=0"`
	Window      int     `yaml:"window" json:"window" validate:"gt=0,ltefield=HistorySize"`
}

type StabilityConfig struct {
	MaxConsecutiveErrors int           `yaml:"max_consecutive_errors" json:"max_consecutive_errors" validate:"gt=0"`
	Threshold            time.Duration `yaml:"threshold" json:"threshold" validate:"gt=0"`
	ClearCacheAfter      int           `yaml:"clear_cache_after" json:"clear_cache_after" validate:"gt=0"`
	ResetDeviceAfter     int           `yaml:"reset_device_after" json:"reset_device_after" validate:"gtefield=ClearCacheAfter"`
	ResetDelay           time.Duration `yaml:"reset_delay" json:"reset_delay" validate:"gte=0"`
}

type SystemConfig struct {
	DataDir          string `yaml:"data_dir" json:"data_dir" validate:"required"`
	LogLevel         string `yaml:"log_level" json:"log_level" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
	LogFormat        string `yaml:"log_format" json:"log_format" validate:"oneof=text json"`
	LogRetentionDays int    `yaml:"log_retention_days" json:"log_retention_days" validate:"gt=0"`
	EnrollSamples    int    `yaml:"enroll_samples" json:"enroll_samples" validate:"gt=0,lte=50"`
}

type DatabaseConfig struct {
	Driver       string `yaml:"driver" json:"driver" validate:"oneof=sqlite postgres"`
	URL          string `yaml:"url" json:"-"`                                           // SQLite file path or PostgreSQL connection URL
	MaxOpenConns int    `yaml:"max_open_conns" json:"max_open_conns" validate:"gt=0"` // Maximum open connections (default 10)
	MaxIdleConns int    `yaml:"max_idle_conns" json:"max_idle_conns" validate:"gte=0"`
	IndexPath    string `yaml:"index_path" json:"index_path"` // Path to persist the HNSW face index (optional)
}

type FaceServiceConfig struct {
	URL       string        `yaml:"url" json:"url" validate:"omitempty,url"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`
	ModelsDir string        `yaml:"models_dir" json:"models_dir"` // dlib model files for the dlib backend
}

type WebConfig struct {
	Host           string   `yaml:"host" json:"host"`
	Port           int      `yaml:"port" json:"port" validate:"gt=0,lte=65535"`
	APIToken       string   `yaml:"api_token" json:"-"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
}

// Default returns the configuration used when neither a file nor the environment says otherwise.
func Default() Config {
	return Config{
		Camera: CameraConfig{
			Source: "0",
			Width:  640,
			Height: 480,
			FPS:    30,
		},
		Detection: DetectionConfig{
			Backend:      "service",
			ScaleFactor:  1.1,
			MinNeighbors: 5,
			MinSize:      30,
			Model:        "hog",
			Jitters:      1,
			Tolerance:    0.6,
			CacheTimeout: 5 * time.Second,
			MaxCacheSize: 128,
			UseCache:     true,
		},
		Performance: PerformanceConfig{
			TargetFPS:   25,
			MinFPS:      10,
			HistorySize: constants.PerformanceHistorySize,
			Window:      constants.PerformanceWindow,
		},
		Stability: StabilityConfig{
			MaxConsecutiveErrors: 5,
			Threshold:            30 * time.Second,
			ClearCacheAfter:      constants.ClearCacheAfterErrors,
			ResetDeviceAfter:     constants.ResetDeviceAfterErrors,
			ResetDelay:           constants.DeviceResetDelay,
		},
		System: SystemConfig{
			DataDir:          "data",
			LogLevel:         "info",
			LogFormat:        "text",
			LogRetentionDays: constants.DefaultLogRetentionDays,
			EnrollSamples:    5,
		},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			URL:          "data/facewatch.db",
			MaxOpenConns: 10,
			MaxIdleConns: 2,
		},
		FaceService: FaceServiceConfig{
			URL:     "http://localhost:8000",
			Timeout: 10 * time.Second,
		},
		Web: WebConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
	}
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envString returns the environment variable or the default when it is unset or empty.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// applyEnv overlays environment variables on top of file and default values.
func (c *Config) applyEnv() {
	c.Camera.Source = envString("CAMERA_SOURCE", c.Camera.Source)
	c.Database.Driver = envString("DATABASE_DRIVER", c.Database.Driver)
	c.Database.URL = envString("DATABASE_URL", c.Database.URL)
	c.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.IndexPath = envString("HNSW_INDEX_PATH", c.Database.IndexPath)
	c.FaceService.URL = envString("FACE_SERVICE_URL", c.FaceService.URL)
	c.Web.Host = envString("WEB_HOST", c.Web.Host)
	c.Web.Port = envInt("WEB_PORT", c.Web.Port)
	c.Web.APIToken = envString("WEB_API_TOKEN", c.Web.APIToken)
	c.System.LogLevel = envString("LOG_LEVEL", c.System.LogLevel)
	c.System.LogFormat = envString("LOG_FORMAT", c.System.LogFormat)

	if env := os.Getenv("WEB_ALLOWED_ORIGINS"); env != "" {
		c.Web.AllowedOrigins = c.Web.AllowedOrigins[:0]
		for o := range strings.SplitSeq(env, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.Web.AllowedOrigins = append(c.Web.AllowedOrigins, o)
			}
		}
	}
}

// Load builds the configuration from defaults, the optional YAML file at path and the environment.
// A missing file is not an error when path is empty.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path is from trusted CLI flag
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Database.Driver == "postgres" && c.Database.URL == "" {
		return errors.New("invalid configuration: database.url is required for postgres")
	}
	return nil
}

// Merge applies a partial YAML (or JSON) document onto a copy of c and validates the result.
// Only keys present in the patch change. The receiver is never modified.
func (c Config) Merge(patch []byte) (Config, error) {
	merged := c
	merged.Web.AllowedOrigins = append([]string(nil), c.Web.AllowedOrigins...)

	if err := yaml.Unmarshal(patch, &merged); err != nil {
		return c, fmt.Errorf("parsing config patch: %w", err)
	}
	if err := merged.Validate(); err != nil {
		return c, err
	}
	return merged, nil
}

// Redacted returns a copy safe to show in the dashboard.
func (c Config) Redacted() Config {
	out := c
	if out.Database.URL != "" && out.Database.Driver == "postgres" {
		out.Database.URL = "redacted"
	}
	if out.Web.APIToken != "" {
		out.Web.APIToken = "redacted"
	}
	return out
}
