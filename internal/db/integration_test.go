//go:build integration

package db_test

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/yolo-detection/yolo-timeline/internal/db"
)

func skipIfNoDocker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("Skipping test: Docker not available")
	}
}

// startPostgres runs a throwaway PostgreSQL server with the schema migrated.
func startPostgres(t *testing.T) db.PoolConfig {
	t.Helper()
	skipIfNoDocker(t)
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "maestro",
				"POSTGRES_PASSWORD": "maestro",
				"POSTGRES_DB":       "ai_context",
			},
			WaitingFor: wait.ForAll(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
				wait.ForListeningPort("5432/tcp"),
			).WithDeadline(2 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := db.PoolConfig{
		Host:     host,
		Port:     port.Int(),
		User:     "maestro",
		Password: "maestro",
		Database: "ai_context",
		SSLMode:  "disable",
		PoolSize: 2,
	}
	require.NoError(t, db.RunMigrations(db.Migrations(), cfg.URL()))
	return cfg
}

func seed(t *testing.T, cfg db.PoolConfig) {
	t.Helper()
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, cfg.URL())
	require.NoError(t, err)
	defer conn.Close(ctx)

	stmts := []string{
		`INSERT INTO detection_events (event_id, camera_id, camera_name, started_at, total_detections, status, recording_url)
		 VALUES
		   ('e1', 'front_door', 'Front Door', '2026-02-25 01:00:00', 3, 'completed', '/events/e1.mp4'),
		   ('e2', 'front_door', 'Front Door', '2026-02-25 23:00:00', 2, 'completed', '/events/e2.mp4'),
		   ('e3', 'front_door', 'Front Door', '2026-02-26 01:00:00', 1, 'completed', '/events/e3.mp4'),
		   ('e4', 'front_door', 'Front Door', '2026-02-25 01:30:00', 9, 'active', NULL),
		   ('e5', 'garage',     'Garage',     '2026-02-25 01:10:00', 4, 'completed', NULL)`,
		`INSERT INTO detections (event_id, class_name, confidence, frame_number)
		 VALUES
		   ('e1', 'person', 0.80, 1),
		   ('e1', 'car',    0.95, 1),
		   ('e1', 'person', 0.70, 2)`,
		`INSERT INTO ai_vision_context (event_id, context_text) VALUES ('e1', 'A person walks past a parked car')`,
	}
	for _, stmt := range stmts {
		_, err := conn.Exec(ctx, stmt)
		require.NoError(t, err)
	}
}

func TestIntegration_EventStore(t *testing.T) {
	cfg := startPostgres(t)
	seed(t, cfg)

	pool := db.NewPool(context.Background(), cfg, zaptest.NewLogger(t))
	t.Cleanup(pool.Close)
	require.Equal(t, 2, pool.Stats().TotalConnections)
	store := db.NewEventStore(pool, zaptest.NewLogger(t), 5*time.Second)
	ctx := context.Background()

	t.Run("list filter is half-open and most recent first", func(t *testing.T) {
		camera, start, end := "front_door", "2026-02-25T01:00:00", "2026-02-26T01:00:00"
		res := store.ListEvents(ctx, db.EventFilter{CameraID: &camera, Start: &start, End: &end, Limit: 10})
		require.False(t, res.Degraded, "%v", res.Err)

		var ids []string
		for _, e := range res.Data {
			ids = append(ids, *e.EventID)
		}
		assert.Equal(t, []string{"e2", "e4", "e1"}, ids)
	})

	t.Run("list aggregates detections", func(t *testing.T) {
		camera := "front_door"
		res := store.ListEvents(ctx, db.EventFilter{CameraID: &camera, Limit: 1})
		require.Len(t, res.Data, 1)
		assert.Equal(t, "e3", *res.Data[0].EventID)

		start, end := "2026-02-25T01:00:00", "2026-02-25T01:00:01"
		res = store.ListEvents(ctx, db.EventFilter{Start: &start, End: &end})
		require.Len(t, res.Data, 1)
		e := res.Data[0]
		assert.Equal(t, "car, person", *e.DetectedClasses)
		assert.InDelta(t, 0.95, *e.MaxConfidence, 1e-9)
		assert.Equal(t, "A person walks past a parked car", *e.AIContext)
		assert.Equal(t, "2026-02-25T01:00:00", e.StartedAt.String())
	})

	t.Run("detail orders detections by frame then confidence", func(t *testing.T) {
		res := store.EventDetail(ctx, "e1")
		require.False(t, res.Degraded, "%v", res.Err)
		require.NotNil(t, res.Data)
		require.Len(t, res.Data.Detections, 3)
		assert.Equal(t, "car", *res.Data.Detections[0].ClassName)
		assert.Equal(t, "person", *res.Data.Detections[1].ClassName)
		assert.Equal(t, int64(2), *res.Data.Detections[2].FrameNumber)

		missing := store.EventDetail(ctx, "nope")
		assert.False(t, missing.Degraded)
		assert.Nil(t, missing.Data)
	})

	t.Run("timeline counts completed events per hour", func(t *testing.T) {
		res := store.Timeline(ctx, "front_door", "2026-02-25")
		require.False(t, res.Degraded, "%v", res.Err)
		assert.Equal(t, "2026-02-25T00:00:00", res.Data.Date)
		assert.Equal(t, int64(1), res.Data.Hours[1].EventCount)
		assert.Equal(t, int64(3), res.Data.Hours[1].TotalDetections)
		assert.Equal(t, int64(1), res.Data.Hours[23].EventCount)
		assert.Equal(t, int64(2), res.Data.Hours[23].TotalDetections)

		var total int64
		for _, h := range res.Data.Hours {
			total += h.EventCount
		}
		assert.Equal(t, int64(2), total)
	})

	t.Run("cameras are discovered from events", func(t *testing.T) {
		res := store.CamerasStatus(ctx, nil)
		require.False(t, res.Degraded, "%v", res.Err)
		require.Len(t, res.Data, 2)
		assert.Equal(t, "Front Door", res.Data[0].Name)
		assert.Equal(t, "2026-02-26T01:00:00", res.Data[0].LastEventTime.String())
		assert.Equal(t, "garage", res.Data[1].ID)
	})
}

func TestIntegration_UnreachableServer(t *testing.T) {
	cfg := db.PoolConfig{
		Host:           "127.0.0.1",
		Port:           1,
		Database:       "ai_context",
		PoolSize:       2,
		ConnectTimeout: time.Second,
	}
	pool := db.NewPool(context.Background(), cfg, zaptest.NewLogger(t))
	t.Cleanup(pool.Close)

	assert.Equal(t, db.Stats{}, pool.Stats())
	res := db.NewEventStore(pool, zaptest.NewLogger(t), 100*time.Millisecond).ListEvents(context.Background(), db.EventFilter{})
	assert.True(t, res.Unavailable())
	assert.Empty(t, res.Data)
}
