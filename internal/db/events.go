package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/yolo-detection/yolo-timeline/internal/models"
	"github.com/yolo-detection/yolo-timeline/internal/timeutil"
)

// DefaultEventLimit is used when a list request carries no usable limit.
const DefaultEventLimit = 100

// querier is satisfied by both Conn and *Handle.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// EventStore runs the read-only timeline queries against the pool.
//
// No method returns an error directly: failures are logged and reported through
// Result with neutral data, so callers always get a renderable shape.
type EventStore struct {
	pool           *Pool
	logger         *zap.Logger
	acquireTimeout time.Duration
}

// NewEventStore creates an event store. A positive acquireTimeout bounds how long
// each operation waits for a connection; zero waits indefinitely.
func NewEventStore(pool *Pool, logger *zap.Logger, acquireTimeout time.Duration) *EventStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventStore{pool: pool, logger: logger, acquireTimeout: acquireTimeout}
}

func (s *EventStore) acquire(ctx context.Context) (*Handle, error) {
	if s.acquireTimeout > 0 {
		return s.pool.AcquireTimeout(ctx, s.acquireTimeout)
	}
	return s.pool.Acquire(ctx)
}

// EventFilter selects events for ListEvents. Nil fields are not filtered on.
type EventFilter struct {
	CameraID *string
	// Start and End bound started_at as [Start, End). Both are ISO-8601 text.
	Start *string
	End   *string
	Limit int
	// Overfetch multiplies Limit so that callers filtering the rows afterwards can
	// still fill the page.
	Overfetch int
}

func (f EventFilter) effectiveLimit() int {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	return limit * max(f.Overfetch, 1)
}

// whereClause accumulates AND-ed conditions with numbered bind parameters.
type whereClause struct {
	conds []string
	args  []any
}

// add appends a condition whose single %d verb becomes the next parameter number.
func (w *whereClause) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

const listEventsSelect = `
	SELECT
		de.event_id,
		de.camera_id,
		de.camera_name,
		de.started_at,
		de.ended_at,
		de.duration_seconds,
		de.total_detections,
		de.status,
		de.recording_url,
		de.snapshot_url,
		STRING_AGG(DISTINCT d.class_name, ', ' ORDER BY d.class_name) AS detected_classes,
		MAX(d.confidence) AS max_confidence,
		avc.context_text AS ai_context
	FROM detection_events de
	LEFT JOIN detections d ON de.event_id = d.event_id
	LEFT JOIN ai_vision_context avc ON de.event_id = avc.event_id`

const listEventsGroupOrder = `
	GROUP BY de.event_id, de.camera_id, de.camera_name, de.started_at,
	         de.ended_at, de.duration_seconds, de.total_detections,
	         de.status, de.recording_url, de.snapshot_url, avc.context_text
	ORDER BY de.started_at DESC
	LIMIT $%d`

// buildListEventsQuery returns the statement and its arguments for f.
func buildListEventsQuery(f EventFilter) (string, []any, error) {
	var where whereClause
	if f.CameraID != nil {
		where.add("de.camera_id = $%d", *f.CameraID)
	}
	if f.Start != nil {
		start, err := timeutil.ParseTimestamp(*f.Start)
		if err != nil {
			return "", nil, fmt.Errorf("start: %w", err)
		}
		where.add("de.started_at >= $%d", start)
	}
	if f.End != nil {
		end, err := timeutil.ParseTimestamp(*f.End)
		if err != nil {
			return "", nil, fmt.Errorf("end: %w", err)
		}
		where.add("de.started_at < $%d", end)
	}

	args := append(where.args, f.effectiveLimit())
	query := listEventsSelect + where.String() + fmt.Sprintf(listEventsGroupOrder, len(args))
	return query, args, nil
}

// ListEvents returns events matching f, most recent first, each with its
// distinct detected classes and highest confidence.
func (s *EventStore) ListEvents(ctx context.Context, f EventFilter) Result[[]models.Event] {
	events := []models.Event{}

	query, args, err := buildListEventsQuery(f)
	if err != nil {
		s.logger.Error("Invalid event filter", zap.Error(err))
		return degradedResult(events, err)
	}

	h, err := s.acquire(ctx)
	if err != nil {
		s.logger.Error("Error querying all events", zap.Error(err))
		return degradedResult(events, err)
	}
	defer h.Release()

	rows, err := h.Query(ctx, query, args...)
	if err != nil {
		s.logger.Error("Error querying all events", zap.Error(err))
		return degradedResult(events, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e                  models.Event
			startedAt, endedAt *time.Time
		)
		if err := rows.Scan(
			&e.EventID, &e.CameraID, &e.CameraName, &startedAt, &endedAt,
			&e.DurationSeconds, &e.TotalDetections, &e.Status,
			&e.RecordingURL, &e.SnapshotURL,
			&e.DetectedClasses, &e.MaxConfidence, &e.AIContext,
		); err != nil {
			s.logger.Error("Error reading event row", zap.Error(err))
			return degradedResult([]models.Event{}, err)
		}
		e.StartedAt = models.NewTimestamp(startedAt)
		e.EndedAt = models.NewTimestamp(endedAt)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("Error querying all events", zap.Error(err))
		return degradedResult([]models.Event{}, err)
	}
	return okResult(events)
}

const eventDetailQuery = `
	SELECT
		de.event_id,
		de.camera_id,
		de.camera_name,
		de.started_at,
		de.ended_at,
		de.duration_seconds,
		de.total_detections,
		de.status,
		de.recording_url,
		de.snapshot_url,
		avc.context_text AS ai_context
	FROM detection_events de
	LEFT JOIN ai_vision_context avc ON de.event_id = avc.event_id
	WHERE de.event_id = $1`

const eventDetectionsQuery = `
	SELECT
		id AS detection_id,
		class_name,
		confidence,
		bbox_x1, bbox_y1, bbox_x2, bbox_y2,
		frame_number,
		detected_at
	FROM detections
	WHERE event_id = $1
	ORDER BY frame_number, confidence DESC`

// EventDetail returns one event and its detections. Data is nil when no event
// has the given id.
func (s *EventStore) EventDetail(ctx context.Context, eventID string) Result[*models.EventDetail] {
	log := s.logger.With(zap.String("event_id", eventID))

	h, err := s.acquire(ctx)
	if err != nil {
		log.Error("Error querying event detail", zap.Error(err))
		return degradedResult[*models.EventDetail](nil, err)
	}
	defer h.Release()

	var (
		ev                 models.EventInfo
		startedAt, endedAt *time.Time
	)
	err = h.QueryRow(ctx, eventDetailQuery, eventID).Scan(
		&ev.EventID, &ev.CameraID, &ev.CameraName, &startedAt, &endedAt,
		&ev.DurationSeconds, &ev.TotalDetections, &ev.Status,
		&ev.RecordingURL, &ev.SnapshotURL, &ev.AIContext,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return okResult[*models.EventDetail](nil)
	}
	if err != nil {
		log.Error("Error querying event detail", zap.Error(err))
		return degradedResult[*models.EventDetail](nil, err)
	}
	ev.StartedAt = models.NewTimestamp(startedAt)
	ev.EndedAt = models.NewTimestamp(endedAt)

	detections, err := queryDetections(ctx, h, eventID)
	if err != nil {
		log.Error("Error querying event detections", zap.Error(err))
		return degradedResult[*models.EventDetail](nil, err)
	}

	return okResult(&models.EventDetail{Event: ev, Detections: detections})
}

func queryDetections(ctx context.Context, q querier, eventID string) ([]models.Detection, error) {
	rows, err := q.Query(ctx, eventDetectionsQuery, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	detections := []models.Detection{}
	for rows.Next() {
		var (
			d          models.Detection
			detectedAt *time.Time
		)
		if err := rows.Scan(
			&d.DetectionID, &d.ClassName, &d.Confidence,
			&d.BBoxX1, &d.BBoxY1, &d.BBoxX2, &d.BBoxY2,
			&d.FrameNumber, &detectedAt,
		); err != nil {
			return nil, err
		}
		d.DetectedAt = models.NewTimestamp(detectedAt)
		detections = append(detections, d)
	}
	return detections, rows.Err()
}
