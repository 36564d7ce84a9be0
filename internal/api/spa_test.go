package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yolo-detection/yolo-timeline/internal/db/dbtest"
)

const testIndex = `<!doctype html><html><head><base href="/"></head><body><app-root></app-root></body></html>`

func TestSPA(t *testing.T) {
	env := newTestEnv(t, dbtest.NewRouter(), nil)
	root := env.cfg.Timeline.StaticFilesPath
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte(testIndex), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(root, "assets"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(root, "assets", "main.js"), []byte("bootstrap()"), 0o600))

	t.Run("asset", func(t *testing.T) {
		w := env.get(t, "/assets/main.js")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "bootstrap()", w.Body.String())
	})

	t.Run("client route falls back to index", func(t *testing.T) {
		for _, target := range []string{"/", "/cameras/front_door", "/assets/missing.js"} {
			w := env.get(t, target)
			require.Equal(t, http.StatusOK, w.Code, target)
			assert.Equal(t, testIndex, w.Body.String(), target)
			assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
		}
	})

	t.Run("ingress path rewrites base href", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/timeline", nil)
		req.Header.Set(ingressPathHeader, "/api/hassio_ingress/abc123")
		w := env.do(t, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `<base href="/api/hassio_ingress/abc123/">`)
	})

	t.Run("unknown api path is not the UI", func(t *testing.T) {
		w := env.get(t, "/api/nope")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, map[string]any{"error": "not found"}, decode(t, w))
	})

	t.Run("non-GET", func(t *testing.T) {
		w := env.do(t, httptest.NewRequest(http.MethodPost, "/timeline", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("missing index", func(t *testing.T) {
		require.NoError(t, os.Remove(filepath.Join(root, "index.html")))
		w := env.get(t, "/timeline")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestInjectBaseHref(t *testing.T) {
	tests := []struct {
		name    string
		page    string
		ingress string
		want    string
	}{
		{"no ingress", `<base href="/">`, "", `<base href="/">`},
		{"trailing slash added", `<base href="/">`, "/ingress", `<base href="/ingress/">`},
		{"trailing slash kept", `<base href="/">`, "/ingress/", `<base href="/ingress/">`},
		{"escaped", `<base href="/">`, `/a"b`, `<base href="/a&#34;b/">`},
		{"first tag only", `<base href="/"><base href="/">`, "/x", `<base href="/x/"><base href="/">`},
		{"no tag", `<html></html>`, "/x", `<html></html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(injectBaseHref([]byte(tt.page), tt.ingress)))
		})
	}
}
