package db

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/yolo-detection/yolo-timeline/internal/models"
)

const lastEventQuery = `
	SELECT MAX(started_at)
	FROM detection_events
	WHERE camera_id = $1`

const discoverCamerasQuery = `
	SELECT DISTINCT camera_id
	FROM detection_events
	WHERE camera_id IS NOT NULL
	ORDER BY camera_id`

// LastEventTime returns when the most recent event of a camera started. Data is
// nil when the camera has no events.
func (s *EventStore) LastEventTime(ctx context.Context, cameraID string) Result[*models.Timestamp] {
	h, err := s.acquire(ctx)
	if err != nil {
		s.logger.Error("Error querying last event", zap.String("camera_id", cameraID), zap.Error(err))
		return degradedResult[*models.Timestamp](nil, err)
	}
	defer h.Release()

	last, err := queryLastEvent(ctx, h, cameraID)
	if err != nil {
		s.logger.Error("Error querying last event", zap.String("camera_id", cameraID), zap.Error(err))
		return degradedResult[*models.Timestamp](nil, err)
	}
	return okResult(last)
}

func queryLastEvent(ctx context.Context, q querier, cameraID string) (*models.Timestamp, error) {
	var last *time.Time
	if err := q.QueryRow(ctx, lastEventQuery, cameraID).Scan(&last); err != nil {
		return nil, err
	}
	return models.NewTimestamp(last), nil
}

// CamerasStatus lists cameras with the time of their latest event.
//
// When cameras is non-empty only the enabled ones are listed, ordered by id.
// Otherwise cameras are discovered from the event table and named by title-casing
// their ids. All lookups share one connection.
func (s *EventStore) CamerasStatus(ctx context.Context, cameras []models.Camera) Result[[]models.CameraStatus] {
	if len(cameras) > 0 {
		return s.configuredCamerasStatus(ctx, cameras)
	}
	return s.discoveredCamerasStatus(ctx)
}

func (s *EventStore) configuredCamerasStatus(ctx context.Context, cameras []models.Camera) Result[[]models.CameraStatus] {
	enabled := make([]models.Camera, 0, len(cameras))
	for _, cam := range cameras {
		if cam.Enabled {
			enabled = append(enabled, cam)
		}
	}
	sort.Slice(enabled, func(i, j int) bool { return enabled[i].ID < enabled[j].ID })

	statuses := make([]models.CameraStatus, 0, len(enabled))
	for _, cam := range enabled {
		statuses = append(statuses, newCameraStatus(cam.ID, cam.Name))
	}
	if len(statuses) == 0 {
		return okResult(statuses)
	}

	h, err := s.acquire(ctx)
	if err != nil {
		s.logger.Error("Error querying camera last events", zap.Error(err))
		return degradedResult(statuses, err)
	}
	defer h.Release()

	var firstErr error
	for i := range statuses {
		last, err := queryLastEvent(ctx, h, statuses[i].ID)
		if err != nil {
			s.logger.Error("Error querying last event", zap.String("camera_id", statuses[i].ID), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		statuses[i].LastEventTime = last
	}
	if firstErr != nil {
		return degradedResult(statuses, firstErr)
	}
	return okResult(statuses)
}

func (s *EventStore) discoveredCamerasStatus(ctx context.Context) Result[[]models.CameraStatus] {
	h, err := s.acquire(ctx)
	if err != nil {
		s.logger.Error("Error discovering cameras from database", zap.Error(err))
		return degradedResult([]models.CameraStatus{}, err)
	}
	defer h.Release()

	ids, err := queryCameraIDs(ctx, h)
	if err != nil {
		s.logger.Error("Error discovering cameras from database", zap.Error(err))
		return degradedResult([]models.CameraStatus{}, err)
	}

	statuses := make([]models.CameraStatus, 0, len(ids))
	var firstErr error
	for _, id := range ids {
		status := newCameraStatus(id, DisplayName(id))
		last, err := queryLastEvent(ctx, h, id)
		if err != nil {
			s.logger.Error("Error querying last event", zap.String("camera_id", id), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		} else {
			status.LastEventTime = last
		}
		statuses = append(statuses, status)
	}
	if firstErr != nil {
		return degradedResult(statuses, firstErr)
	}
	return okResult(statuses)
}

func queryCameraIDs(ctx context.Context, q querier) ([]string, error) {
	rows, err := q.Query(ctx, discoverCamerasQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func newCameraStatus(id, name string) models.CameraStatus {
	return models.CameraStatus{ID: id, Name: name, Connected: true}
}

// DisplayName turns a snake_case camera id into Title Case words:
// "front_door" becomes "Front Door". Letters after the first of each word are
// kept as they are.
func DisplayName(id string) string {
	words := strings.Split(id, "_")
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		if size == 0 {
			continue
		}
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
