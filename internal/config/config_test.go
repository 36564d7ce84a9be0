package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yolo-detection/yolo-timeline/internal/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "192.168.2.15", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "maestro", cfg.Database.User)
	assert.Equal(t, "ai_context", cfg.Database.Database)
	assert.Equal(t, 4, cfg.Database.PoolSize)
	assert.Zero(t, cfg.Database.AcquireTimeout)
	assert.Equal(t, 5*time.Second, cfg.Database.ProbeTimeout)
	assert.Equal(t, 10*time.Second, cfg.Database.ConnectTimeout)

	assert.Equal(t, "0.0.0.0:8080", cfg.Timeline.Address())
	assert.Equal(t, "frontend/dist/browser", cfg.Timeline.StaticFilesPath)
	assert.Equal(t, "/mnt/ssd/events", cfg.Timeline.EventsDir)
	assert.Equal(t, "/mnt/ssd/snapshots", cfg.Timeline.SnapshotsDir)
	assert.Equal(t, "http://localhost:8000", cfg.Timeline.DetectionServiceURL)
	assert.Equal(t, []string{"http://localhost:4200"}, cfg.Timeline.CORSOrigins)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Empty(t, cfg.CameraList())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
cameras:
  front_door:
    name: Front Door
    rtsp_url: rtsp://cam1/stream
    classes: [person, car]
    confidence_threshold: 0.6
  garage:
    enabled: false
  backyard:
    enabled: true
database:
  host: db.internal
  password: hunter2
  pool_size: 8
  acquire_timeout: 2s
timeline:
  port: 9090
  static_files_path: ui
  cors_origins: ["*"]
logging:
  format: console
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 8, cfg.Database.PoolSize)
	assert.Equal(t, 2*time.Second, cfg.Database.AcquireTimeout)
	assert.Equal(t, 9090, cfg.Timeline.Port)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "ui"), cfg.Timeline.StaticFilesPath)
	assert.Equal(t, []string{"*"}, cfg.Timeline.CORSOrigins)

	assert.Equal(t, []models.Camera{
		{ID: "backyard", Name: "backyard", Enabled: true},
		{ID: "front_door", Name: "Front Door", Enabled: true},
		{ID: "garage", Name: "garage", Enabled: false},
	}, cfg.CameraList())
	assert.Equal(t, []string{"person", "car"}, cfg.Cameras["front_door"].Classes)

	pc := cfg.Database.PoolConfig()
	assert.Equal(t, "db.internal", pc.Host)
	assert.Equal(t, "hunter2", pc.Password)
	assert.Equal(t, 8, pc.PoolSize)
	assert.Equal(t, 5*time.Second, pc.ProbeTimeout)
}

func TestLoad_AbsoluteStaticPathKept(t *testing.T) {
	path := writeConfig(t, "timeline:\n  static_files_path: /srv/ui\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/ui", cfg.Timeline.StaticFilesPath)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("YOLO_DATABASE_PASSWORD", "from-env")
	t.Setenv("YOLO_DATABASE_POOL_SIZE", "2")
	t.Setenv("TIMELINE_EVENTS", "/data/events")

	path := writeConfig(t, "timeline:\n  events_dir: ${TIMELINE_EVENTS}\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Database.Password)
	assert.Equal(t, 2, cfg.Database.PoolSize)
	assert.Equal(t, "/data/events", cfg.Timeline.EventsDir)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty host", func(c *Config) { c.Database.Host = "" }},
		{"bad db port", func(c *Config) { c.Database.Port = 70000 }},
		{"empty database", func(c *Config) { c.Database.Database = "" }},
		{"negative timeout", func(c *Config) { c.Database.AcquireTimeout = -time.Second }},
		{"bad http port", func(c *Config) { c.Timeline.Port = 0 }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"relative metrics path", func(c *Config) { c.Metrics.Path = "metrics" }},
		{"confidence out of range", func(c *Config) {
			c.Cameras["cam"] = CameraConfig{ConfidenceThreshold: 1.5}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestFindConfigPath(t *testing.T) {
	dir := t.TempDir()
	second := filepath.Join(dir, "second.yaml")
	require.NoError(t, os.WriteFile(second, nil, 0o600))

	orig := SearchPaths
	t.Cleanup(func() { SearchPaths = orig })
	SearchPaths = []string{filepath.Join(dir, "first.yaml"), second}

	assert.Equal(t, "/etc/explicit.yaml", FindConfigPath("/etc/explicit.yaml"))
	assert.Equal(t, second, FindConfigPath(""))

	SearchPaths = nil
	assert.Equal(t, "", FindConfigPath(""))
}

func TestDump_RedactsPassword(t *testing.T) {
	path := writeConfig(t, "database:\n  password: hunter2\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, cfg.Dump(&buf))

	out := buf.String()
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "password: REDACTED")
	assert.Contains(t, out, "pool_size: 4")
	assert.Contains(t, out, "probe_timeout: 5s")
	assert.Equal(t, "hunter2", cfg.Database.Password, "Dump must not modify the config")
}
