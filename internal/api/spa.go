package api

import (
	"bytes"
	"html"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	ingressPathHeader = "X-Ingress-Path"
	baseHrefTag       = `<base href="/">`
)

// handleSPA serves the UI for every GET no route claims: a file under the static
// root when one exists, otherwise index.html so client-side routes resolve.
func (s *Server) handleSPA(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if strings.HasPrefix(c.Request.URL.Path, "/api/") {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	root := s.config.Timeline.StaticFilesPath
	// Clean against "/" first so the result can never leave root.
	rel := path.Clean("/" + c.Request.URL.Path)
	if rel != "/" {
		asset := filepath.Join(root, filepath.FromSlash(rel))
		if info, err := os.Stat(asset); err == nil && info.Mode().IsRegular() {
			c.File(asset)
			return
		}
	}

	page, err := os.ReadFile(filepath.Join(root, "index.html"))
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	page = injectBaseHref(page, c.GetHeader(ingressPathHeader))
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

// injectBaseHref rewrites the compiled <base href="/"> to the ingress prefix so
// relative asset URLs resolve behind a path-rewriting proxy.
func injectBaseHref(page []byte, ingressPath string) []byte {
	if ingressPath == "" {
		return page
	}
	if !strings.HasSuffix(ingressPath, "/") {
		ingressPath += "/"
	}
	tag := `<base href="` + html.EscapeString(ingressPath) + `">`
	return bytes.Replace(page, []byte(baseHrefTag), []byte(tag), 1)
}
