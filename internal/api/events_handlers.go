package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yolo-detection/yolo-timeline/internal/db"
	"github.com/yolo-detection/yolo-timeline/internal/models"
	"github.com/yolo-detection/yolo-timeline/internal/timeutil"
)

const (
	maxEventLimit = 1000
	// eventOverfetch leaves room for events dropped by the recording filter.
	eventOverfetch = 3

	degradedHeader = "X-Data-Degraded"
)

// writeResult sends body with 200, or 503 when the database could not be reached.
// Any degraded result, including one caused by malformed input, is flagged with
// X-Data-Degraded.
func writeResult[T any](c *gin.Context, res db.Result[T], body any) {
	status := http.StatusOK
	if res.Degraded {
		c.Header(degradedHeader, "true")
		if res.Unavailable() {
			status = http.StatusServiceUnavailable
		}
	}
	c.JSON(status, body)
}

// parseLimit accepts 1..1000 and falls back to the default for anything else.
func parseLimit(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 || n > maxEventLimit {
		return db.DefaultEventLimit
	}
	return n
}

// optionalQuery returns a pointer to the query value when the key is present.
func optionalQuery(c *gin.Context, key string) *string {
	v, ok := c.GetQuery(key)
	if !ok {
		return nil
	}
	return &v
}

func (s *Server) handleListEvents(c *gin.Context) {
	limit := parseLimit(c.Query("limit"))
	onlyWithRecordings := true
	switch c.Query("only_with_recordings") {
	case "false", "0":
		onlyWithRecordings = false
	}

	filter := db.EventFilter{
		CameraID:  optionalQuery(c, "camera_id"),
		Start:     optionalQuery(c, "start"),
		End:       optionalQuery(c, "end"),
		Limit:     limit,
		Overfetch: eventOverfetch,
	}
	res := s.store.ListEvents(c.Request.Context(), filter)

	events := make([]models.Event, 0, min(limit, len(res.Data)))
	for _, e := range res.Data {
		if len(events) >= limit {
			break
		}
		if onlyWithRecordings && !s.hasRecording(e) {
			continue
		}
		events = append(events, e)
	}

	writeResult(c, res, gin.H{"events": events, "count": len(events)})
}

// hasRecording reports whether the file named by the last path segment of the
// event's recording URL exists in the events directory.
func (s *Server) hasRecording(e models.Event) bool {
	if e.RecordingURL == nil {
		return false
	}
	recording := *e.RecordingURL
	name := recording[strings.LastIndex(recording, "/")+1:]
	if !isValidFilename(name) {
		return false
	}
	info, err := os.Stat(filepath.Join(s.config.Timeline.EventsDir, name))
	return err == nil && info.Mode().IsRegular()
}

func (s *Server) handleEventDetail(c *gin.Context) {
	eventID := c.Param("event_id")

	res := s.store.EventDetail(c.Request.Context(), eventID)
	if res.Data != nil {
		c.JSON(http.StatusOK, res.Data)
		return
	}

	status := http.StatusNotFound
	if res.Degraded {
		c.Header(degradedHeader, "true")
		if res.Unavailable() {
			status = http.StatusServiceUnavailable
		}
	}
	c.JSON(status, gin.H{"error": "Event not found", "event_id": eventID})
}

func (s *Server) handleTimeline(c *gin.Context) {
	cameraID, ok := c.GetQuery("camera_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "camera_id parameter is required"})
		return
	}

	date, ok := c.GetQuery("date")
	if !ok {
		date = timeutil.DateString(s.clock.Now())
	}

	res := s.store.Timeline(c.Request.Context(), cameraID, date)
	writeResult(c, res, res.Data)
}

func (s *Server) handleCamerasStatus(c *gin.Context) {
	res := s.store.CamerasStatus(c.Request.Context(), s.cameras)
	writeResult(c, res, gin.H{"cameras": res.Data})
}
