// Package config handles configuration loading and validation for the timeline service.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/yolo-detection/yolo-timeline/internal/db"
	"github.com/yolo-detection/yolo-timeline/internal/models"
)

// SearchPaths are tried in order when no config file is given on the command line.
var SearchPaths = []string{
	"config.yaml",
	"/app/config/config.yaml",
	"/opt/yolo_detection/config.yaml",
}

// Config holds all configuration for the timeline service.
type Config struct {
	Cameras  map[string]CameraConfig `mapstructure:"cameras" yaml:"cameras"`
	Database DatabaseConfig          `mapstructure:"database" yaml:"database"`
	Timeline TimelineConfig          `mapstructure:"timeline" yaml:"timeline"`
	Logging  LoggingConfig           `mapstructure:"logging" yaml:"logging"`
	Metrics  MetricsConfig           `mapstructure:"metrics" yaml:"metrics"`

	// Path is the file the configuration was read from, empty for defaults only.
	Path string `mapstructure:"-" yaml:"-"`
}

// CameraConfig describes one camera. The detection service owns the stream; the
// timeline only uses the name and the enabled flag.
type CameraConfig struct {
	Name                string   `mapstructure:"name" yaml:"name"`
	RTSPURL             string   `mapstructure:"rtsp_url" yaml:"rtsp_url,omitempty"`
	Enabled             *bool    `mapstructure:"enabled" yaml:"enabled"`
	Classes             []string `mapstructure:"classes" yaml:"classes,omitempty"`
	ConfidenceThreshold float64  `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
}

// IsEnabled reports whether the camera is enabled; cameras are enabled unless
// configured otherwise.
func (c CameraConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode,omitempty"`
	PoolSize int    `mapstructure:"pool_size" yaml:"pool_size"`
	// AcquireTimeout bounds the wait for a pooled connection. Zero waits indefinitely.
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout" yaml:"acquire_timeout"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

// PoolConfig converts the section into the pool's connection parameters.
func (d DatabaseConfig) PoolConfig() db.PoolConfig {
	return db.PoolConfig{
		Host:           d.Host,
		Port:           d.Port,
		User:           d.User,
		Password:       d.Password,
		Database:       d.Database,
		SSLMode:        d.SSLMode,
		PoolSize:       d.PoolSize,
		ConnectTimeout: d.ConnectTimeout,
		ProbeTimeout:   d.ProbeTimeout,
	}
}

// TimelineConfig holds HTTP server and media configuration.
type TimelineConfig struct {
	Host                string   `mapstructure:"host" yaml:"host"`
	Port                int      `mapstructure:"port" yaml:"port"`
	StaticFilesPath     string   `mapstructure:"static_files_path" yaml:"static_files_path"`
	EventsDir           string   `mapstructure:"events_dir" yaml:"events_dir"`
	SnapshotsDir        string   `mapstructure:"snapshots_dir" yaml:"snapshots_dir"`
	DetectionServiceURL string   `mapstructure:"detection_service_url" yaml:"detection_service_url"`
	CORSOrigins         []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// Address returns the host:port the HTTP server listens on.
func (t TimelineConfig) Address() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig holds metrics/monitoring configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// FindConfigPath returns explicit if set, otherwise the first of SearchPaths that
// exists. It returns "" when nothing is found.
func FindConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, p := range SearchPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Load reads configuration from the specified file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// YOLO_DATABASE_PASSWORD overrides database.password, and so on.
	v.SetEnvPrefix("YOLO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Expand ${VAR} string values from the environment.
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envVar := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envVar))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Path = configPath
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "192.168.2.15")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "maestro")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "ai_context")
	v.SetDefault("database.sslmode", "")
	v.SetDefault("database.pool_size", 4)
	v.SetDefault("database.acquire_timeout", "0s")
	v.SetDefault("database.probe_timeout", "5s")
	v.SetDefault("database.connect_timeout", "10s")

	// Timeline defaults
	v.SetDefault("timeline.host", "0.0.0.0")
	v.SetDefault("timeline.port", 8080)
	v.SetDefault("timeline.static_files_path", "frontend/dist/browser")
	v.SetDefault("timeline.events_dir", "/mnt/ssd/events")
	v.SetDefault("timeline.snapshots_dir", "/mnt/ssd/snapshots")
	v.SetDefault("timeline.detection_service_url", "http://localhost:8000")
	v.SetDefault("timeline.cors_origins", []string{"http://localhost:4200"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

func (c *Config) normalize() {
	if c.Cameras == nil {
		c.Cameras = map[string]CameraConfig{}
	}
	for id, cam := range c.Cameras {
		if cam.Name == "" {
			cam.Name = id
		}
		if cam.Enabled == nil {
			enabled := true
			cam.Enabled = &enabled
		}
		c.Cameras[id] = cam
	}

	// A relative static path is relative to the config file, not the working directory.
	static := c.Timeline.StaticFilesPath
	if c.Path != "" && static != "" && !filepath.IsAbs(static) {
		c.Timeline.StaticFilesPath = filepath.Join(filepath.Dir(c.Path), static)
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database.port: %d", c.Database.Port)
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database.database is required")
	}
	if c.Database.AcquireTimeout < 0 || c.Database.ProbeTimeout < 0 || c.Database.ConnectTimeout < 0 {
		return fmt.Errorf("database timeouts must not be negative")
	}

	if c.Timeline.Port <= 0 || c.Timeline.Port > 65535 {
		return fmt.Errorf("invalid timeline.port: %d", c.Timeline.Port)
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /: %q", c.Metrics.Path)
	}

	for id, cam := range c.Cameras {
		if cam.ConfidenceThreshold < 0 || cam.ConfidenceThreshold > 1 {
			return fmt.Errorf("camera %s: confidence_threshold must be within [0, 1]", id)
		}
	}

	return nil
}

// CameraList returns the configured cameras ordered by id.
func (c *Config) CameraList() []models.Camera {
	cameras := make([]models.Camera, 0, len(c.Cameras))
	for id, cam := range c.Cameras {
		name := cam.Name
		if name == "" {
			name = id
		}
		cameras = append(cameras, models.Camera{ID: id, Name: name, Enabled: cam.IsEnabled()})
	}
	sort.Slice(cameras, func(i, j int) bool { return cameras[i].ID < cameras[j].ID })
	return cameras
}

// Dump writes the effective configuration as YAML with the database password masked.
func (c *Config) Dump(w io.Writer) error {
	redacted := *c
	if redacted.Database.Password != "" {
		redacted.Database.Password = "REDACTED"
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&redacted); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
