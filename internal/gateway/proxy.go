package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meditrust/hospital-core/internal/apperr"
	"github.com/meditrust/hospital-core/internal/config"
	"github.com/meditrust/hospital-core/internal/discovery"
	"github.com/meditrust/hospital-core/internal/monitoring"
	"github.com/meditrust/hospital-core/pkg/logger"
)

// hopHeaders are stripped when forwarding in either direction.
var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailers", "Transfer-Encoding", "Upgrade",
}

// Proxy forwards routed requests to backend instances picked from the
// registry.
type Proxy struct {
	registry *discovery.Registry
	client   *http.Client
	timeout  time.Duration
	maxBody  int64
	logger   logger.Logger
}

func NewProxy(registry *discovery.Registry, cfg config.GatewayConfig, log logger.Logger) *Proxy {
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 10 << 20
	}
	return &Proxy{
		registry: registry,
		client: &http.Client{
			// Per-request deadlines come from the request context.
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 32,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		timeout: timeout,
		maxBody: maxBody,
		logger:  log,
	}
}

// Handle is the catch-all route: it resolves the backend for the path,
// buffers the body up to the configured limit, and forwards the request with
// the gateway's end-to-end deadline.
func (p *Proxy) Handle(c *gin.Context) {
	service := ServiceFor(c.Request.URL.Path)
	if service == "" {
		renderError(c, apperr.NotFound("Route", c.Request.URL.Path))
		return
	}

	body, err := p.bufferBody(c)
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			renderError(c, appErr)
			return
		}
		renderError(c, apperr.Unexpected("Failed to read request body", err))
		return
	}

	endpoint, release, err := p.registry.Pick(service)
	if err != nil {
		p.logger.Error("No endpoint for service", "service", service, "error", err)
		renderError(c, apperr.UpstreamUnavailable(service))
		return
	}
	defer release()

	ctx, cancel := context.WithTimeout(c.Request.Context(), p.timeout)
	defer cancel()

	upstreamURL := endpoint + c.Request.URL.RequestURI()
	req, err := http.NewRequestWithContext(ctx, c.Request.Method, upstreamURL, bytes.NewReader(body))
	if err != nil {
		renderError(c, apperr.Unexpected("Failed to build upstream request", err))
		return
	}
	copyHeaders(req.Header, c.Request.Header)
	req.Header.Set("X-Forwarded-For", c.ClientIP())

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			monitoring.RecordUpstreamRequest(service, http.StatusGatewayTimeout)
			renderError(c, apperr.UpstreamTimeout(service))
			return
		}
		p.logger.Error("Upstream request failed",
			"service", service, "endpoint", endpoint, "error", err)
		monitoring.RecordUpstreamRequest(service, http.StatusServiceUnavailable)
		renderError(c, apperr.UpstreamUnavailable(service))
		return
	}
	defer resp.Body.Close()

	monitoring.RecordUpstreamRequest(service, resp.StatusCode)

	for _, h := range hopHeaders {
		resp.Header.Del(h)
	}
	for key, values := range resp.Header {
		for _, v := range values {
			c.Writer.Header().Add(key, v)
		}
	}
	c.Status(resp.StatusCode)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		p.logger.Warn("Failed streaming upstream response", "service", service, "error", err)
	}
}

// bufferBody reads at most maxBody bytes; anything larger is rejected with
// 413 before an upstream connection is opened.
func (p *Proxy) bufferBody(c *gin.Context) ([]byte, error) {
	if c.Request.Body == nil {
		return nil, nil
	}
	defer c.Request.Body.Close()

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, p.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > p.maxBody {
		return nil, apperr.PayloadTooLarge()
	}
	return body, nil
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, v := range values {
			dst.Add(key, v)
		}
	}
	for _, h := range hopHeaders {
		dst.Del(h)
	}
}
