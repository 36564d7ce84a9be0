package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const (
	snapshotTimeout         = 4 * time.Second
	snapshotBreakerFailures = 5
	defaultSnapshotType     = "image/jpeg"
)

// snapshotProxy forwards live snapshot requests to the detection service. A
// circuit breaker stops hammering the service while it is down.
type snapshotProxy struct {
	target  *url.URL
	proxy   *httputil.ReverseProxy
	breaker *gobreaker.CircuitBreaker[*http.Response]
	timeout time.Duration
}

// newSnapshotProxy returns a proxy for the detection service at rawURL. An empty
// URL yields an unconfigured proxy that answers 503.
func newSnapshotProxy(rawURL string, logger *zap.Logger) (*snapshotProxy, error) {
	p := &snapshotProxy{timeout: snapshotTimeout}
	if strings.TrimSpace(rawURL) == "" {
		return p, nil
	}

	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid detection service URL: %w", err)
	}
	if (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return nil, fmt.Errorf("invalid detection service URL %q: want http(s)://host[:port]", rawURL)
	}
	p.target = target

	p.breaker = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "detection-service-snapshot",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= snapshotBreakerFailures
		},
		// A caller hanging up says nothing about the upstream.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   snapshotTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}

	p.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		Transport: &breakerTransport{breaker: p.breaker, next: transport},
		ModifyResponse: func(resp *http.Response) error {
			// The server applies its own CORS policy.
			for key := range resp.Header {
				if strings.HasPrefix(key, "Access-Control-") {
					resp.Header.Del(key)
				}
			}
			if resp.Header.Get("Content-Type") == "" {
				resp.Header.Set("Content-Type", defaultSnapshotType)
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if errors.Is(err, context.Canceled) {
				logger.Debug("Snapshot request canceled by client", zap.String("path", r.URL.Path))
			} else {
				logger.Warn("Snapshot proxy error",
					zap.String("path", r.URL.Path),
					zap.String("target_host", target.Host),
					zap.Error(err))
			}
			writeJSONError(w, http.StatusBadGateway, "Detection service unavailable")
		},
	}
	return p, nil
}

// configured reports whether a detection service URL was set.
func (p *snapshotProxy) configured() bool {
	return p.target != nil
}

// state returns the breaker state, or "disabled" when unconfigured.
func (p *snapshotProxy) state() string {
	if p.breaker == nil {
		return "disabled"
	}
	return p.breaker.State().String()
}

func (p *snapshotProxy) serve(c *gin.Context, cameraID string) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), p.timeout)
	defer cancel()

	req := c.Request.Clone(ctx)
	req.URL.Path = "/api/cameras/" + cameraID + "/snapshot"
	req.URL.RawPath = "/api/cameras/" + url.PathEscape(cameraID) + "/snapshot"
	req.URL.RawQuery = ""

	p.proxy.ServeHTTP(c.Writer, req)
}

func (s *Server) handleCameraSnapshot(c *gin.Context) {
	if !s.snapshots.configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Detection service URL not configured"})
		return
	}
	s.snapshots.serve(c, c.Param("camera_id"))
}

// breakerTransport runs each round trip through the circuit breaker. Only
// transport failures count; upstream error statuses are passed through.
type breakerTransport struct {
	breaker *gobreaker.CircuitBreaker[*http.Response]
	next    http.RoundTripper
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.breaker.Execute(func() (*http.Response, error) {
		return t.next.RoundTrip(req)
	})
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
