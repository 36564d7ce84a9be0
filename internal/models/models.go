// Package models defines the records returned by the event store and served as JSON.
package models

import (
	"time"

	"github.com/yolo-detection/yolo-timeline/internal/timeutil"
)

// Timestamp is a UTC instant rendered as YYYY-MM-DDTHH:MM:SS[.ffffff].
type Timestamp time.Time

// NewTimestamp returns a pointer to t as a Timestamp, or nil for nil.
func NewTimestamp(t *time.Time) *Timestamp {
	if t == nil {
		return nil
	}
	ts := Timestamp(*t)
	return &ts
}

// String formats the timestamp in its canonical form.
func (t Timestamp) String() string { return timeutil.FormatTimestamp(time.Time(t)) }

// MarshalText implements encoding.TextMarshaler.
func (t Timestamp) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// EventInfo is the detection_events row with its AI vision context. Every field is
// nullable and encodes as JSON null when absent.
type EventInfo struct {
	EventID         *string    `json:"event_id"`
	CameraID        *string    `json:"camera_id"`
	CameraName      *string    `json:"camera_name"`
	StartedAt       *Timestamp `json:"started_at"`
	EndedAt         *Timestamp `json:"ended_at"`
	DurationSeconds *float64   `json:"duration_seconds"`
	TotalDetections *int64     `json:"total_detections"`
	Status          *string    `json:"status"`
	RecordingURL    *string    `json:"recording_url"`
	SnapshotURL     *string    `json:"snapshot_url"`
	AIContext       *string    `json:"ai_context"`
}

// Event is an event as listed on the timeline, with its detections aggregated.
type Event struct {
	EventInfo
	// DetectedClasses is the distinct class names joined by ", " in alphabetical order.
	DetectedClasses *string  `json:"detected_classes"`
	MaxConfidence   *float64 `json:"max_confidence"`
}

// Detection is a single detections row.
type Detection struct {
	DetectionID *int64     `json:"detection_id"`
	ClassName   *string    `json:"class_name"`
	Confidence  *float64   `json:"confidence"`
	BBoxX1      *int64     `json:"bbox_x1"`
	BBoxY1      *int64     `json:"bbox_y1"`
	BBoxX2      *int64     `json:"bbox_x2"`
	BBoxY2      *int64     `json:"bbox_y2"`
	FrameNumber *int64     `json:"frame_number"`
	DetectedAt  *Timestamp `json:"detected_at"`
}

// EventDetail is one event with all of its detections, strongest first per frame.
type EventDetail struct {
	Event      EventInfo   `json:"event"`
	Detections []Detection `json:"detections"`
}

// TimelineHour aggregates completed events that started within one hour.
type TimelineHour struct {
	Hour            int   `json:"hour"`
	EventCount      int64 `json:"event_count"`
	TotalDetections int64 `json:"total_detections"`
}

// HoursPerDay is the fixed length of Timeline.Hours.
const HoursPerDay = 24

// Timeline is the per-hour activity of one camera over one UTC day.
type Timeline struct {
	CameraID string         `json:"camera_id"`
	Date     string         `json:"date"`
	Hours    []TimelineHour `json:"hours"`
}

// EmptyTimeline returns a timeline with all 24 hours present and zeroed.
func EmptyTimeline(cameraID, date string) Timeline {
	hours := make([]TimelineHour, HoursPerDay)
	for h := range hours {
		hours[h] = TimelineHour{Hour: h}
	}
	return Timeline{CameraID: cameraID, Date: date, Hours: hours}
}

// Camera is a configured camera as seen by the event store.
type Camera struct {
	ID      string
	Name    string
	Enabled bool
}

// CameraStatus is one entry of the camera status list.
type CameraStatus struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Connected     bool       `json:"connected"`
	BufferSize    int        `json:"buffer_size"`
	LastEventTime *Timestamp `json:"last_event_time"`
}
