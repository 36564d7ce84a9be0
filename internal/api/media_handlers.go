package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// isValidFilename accepts a single path segment made only of ASCII letters,
// digits, '-', '_' and '.', and never containing "..".
func isValidFilename(name string) bool {
	if name == "" || strings.Contains(name, "..") {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

func (s *Server) handleEventFile(c *gin.Context) {
	s.serveMediaFile(c, s.config.Timeline.EventsDir)
}

func (s *Server) handleSnapshotFile(c *gin.Context) {
	s.serveMediaFile(c, s.config.Timeline.SnapshotsDir)
}

// serveMediaFile serves the :filename parameter from dir. Range requests are
// supported so the UI can seek within recordings.
func (s *Server) serveMediaFile(c *gin.Context, dir string) {
	filename := c.Param("filename")
	if !isValidFilename(filename) {
		s.logger.Warn("Rejected invalid filename", zap.String("filename", filename))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid filename"})
		return
	}

	path := filepath.Join(dir, filename)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}

	c.File(path)
}
