package db_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yolo-detection/yolo-timeline/internal/db"
	"github.com/yolo-detection/yolo-timeline/internal/db/dbtest"
)

func TestPoolCollector(t *testing.T) {
	connector := dbtest.NewConnector(nil)
	connector.FailNext(1, errors.New("connection refused"))
	pool := newTestPool(t, 3, connector)

	connector.Conns()[0].SetPingErr(errors.New("broken pipe"))
	h, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer h.Release()

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(db.NewPoolCollector(pool)))

	expected := `
# HELP yolo_timeline_db_pool_acquires_total Connections handed out of the idle set.
# TYPE yolo_timeline_db_pool_acquires_total counter
yolo_timeline_db_pool_acquires_total 1
# HELP yolo_timeline_db_pool_acquire_timeouts_total Acquires that gave up waiting for an idle connection.
# TYPE yolo_timeline_db_pool_acquire_timeouts_total counter
yolo_timeline_db_pool_acquire_timeouts_total 0
# HELP yolo_timeline_db_pool_connect_failures_total Failed attempts to open a connection.
# TYPE yolo_timeline_db_pool_connect_failures_total counter
yolo_timeline_db_pool_connect_failures_total 1
# HELP yolo_timeline_db_pool_connections_available Idle connections ready to be acquired.
# TYPE yolo_timeline_db_pool_connections_available gauge
yolo_timeline_db_pool_connections_available 1
# HELP yolo_timeline_db_pool_connections_in_use Connections held by in-flight handles.
# TYPE yolo_timeline_db_pool_connections_in_use gauge
yolo_timeline_db_pool_connections_in_use 1
# HELP yolo_timeline_db_pool_connections_total Connections currently owned by the pool.
# TYPE yolo_timeline_db_pool_connections_total gauge
yolo_timeline_db_pool_connections_total 2
# HELP yolo_timeline_db_pool_size Configured pool size.
# TYPE yolo_timeline_db_pool_size gauge
yolo_timeline_db_pool_size 3
# HELP yolo_timeline_db_pool_stale_replacements_total Dead connections replaced during acquire.
# TYPE yolo_timeline_db_pool_stale_replacements_total counter
yolo_timeline_db_pool_stale_replacements_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected)))
	assert.Equal(t, 8, testutil.CollectAndCount(db.NewPoolCollector(pool)))
}
