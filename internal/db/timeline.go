package db

import (
	"context"

	"go.uber.org/zap"

	"github.com/yolo-detection/yolo-timeline/internal/models"
	"github.com/yolo-detection/yolo-timeline/internal/timeutil"
)

const timelineQuery = `
	SELECT
		EXTRACT(HOUR FROM started_at)::int AS hour,
		COUNT(*) AS event_count,
		COALESCE(SUM(total_detections), 0)::bigint AS total_detections
	FROM detection_events
	WHERE camera_id = $1
	  AND started_at >= $2
	  AND started_at < $3
	  AND status = 'completed'
	GROUP BY EXTRACT(HOUR FROM started_at)
	ORDER BY hour`

// Timeline returns hourly counts of completed events for one camera on one UTC
// day (date is YYYY-MM-DD). The result always holds 24 hours in order; hours
// without events are zero. On success Date is the canonical start of the day,
// otherwise it echoes the input.
func (s *EventStore) Timeline(ctx context.Context, cameraID, date string) Result[models.Timeline] {
	log := s.logger.With(zap.String("camera_id", cameraID), zap.String("date", date))

	day, err := timeutil.ParseDate(date)
	if err != nil {
		log.Error("Invalid date format for timeline", zap.Error(err))
		return degradedResult(models.EmptyTimeline(cameraID, date), err)
	}
	start, end := timeutil.DayBounds(day)

	h, err := s.acquire(ctx)
	if err != nil {
		log.Error("Error querying timeline", zap.Error(err))
		return degradedResult(models.EmptyTimeline(cameraID, date), err)
	}
	defer h.Release()

	rows, err := h.Query(ctx, timelineQuery, cameraID, start, end)
	if err != nil {
		log.Error("Error querying timeline", zap.Error(err))
		return degradedResult(models.EmptyTimeline(cameraID, date), err)
	}
	defer rows.Close()

	timeline := models.EmptyTimeline(cameraID, timeutil.FormatTimestamp(start))
	for rows.Next() {
		var (
			hour                   int
			count, totalDetections int64
		)
		if err := rows.Scan(&hour, &count, &totalDetections); err != nil {
			log.Error("Error reading timeline row", zap.Error(err))
			return degradedResult(models.EmptyTimeline(cameraID, date), err)
		}
		if hour < 0 || hour >= models.HoursPerDay {
			log.Warn("Ignoring out-of-range timeline hour", zap.Int("hour", hour))
			continue
		}
		timeline.Hours[hour].EventCount = count
		timeline.Hours[hour].TotalDetections = totalDetections
	}
	if err := rows.Err(); err != nil {
		log.Error("Error querying timeline", zap.Error(err))
		return degradedResult(models.EmptyTimeline(cameraID, date), err)
	}
	return okResult(timeline)
}
