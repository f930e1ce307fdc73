// Package gateway issues GET requests to the alert aggregation service and
// turns every failure into one of two typed errors.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/redalert-desktop/redalert/internal/alerts"
	"github.com/redalert-desktop/redalert/internal/ratelimit"
	"github.com/redalert-desktop/redalert/internal/utils"
)

// DefaultUserAgent mimics a desktop browser. Upstream filters naive bots.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// DefaultTimeout bounds a single request/response exchange
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps the upstream body kept on UpstreamHTTPError
const maxErrorBody = 512

// BrowserHeaders returns the fixed header profile sent with every request.
// An empty userAgent selects DefaultUserAgent.
func BrowserHeaders(userAgent string) map[string]string {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return map[string]string{
		"User-Agent":      userAgent,
		"Accept":          "application/json, text/plain, */*",
		"Accept-Language": "he-IL,he;q=0.9,en-US;q=0.8,en;q=0.7",
		"Cache-Control":   "no-cache",
		"Pragma":          "no-cache",
		"Origin":          "https://rocketalert.live",
		"Referer":         "https://rocketalert.live/",
		"Sec-Fetch-Dest":  "empty",
		"Sec-Fetch-Mode":  "cors",
		"Sec-Fetch-Site":  "same-site",
	}
}

// Config holds gateway settings
type Config struct {
	UserAgent string
	// Headers override or extend the browser profile
	Headers map[string]string
	Timeout time.Duration
	Limiter *ratelimit.Limiter
}

// Gateway performs one request/response exchange per call.
// It holds no per-request state and is safe for concurrent use.
type Gateway struct {
	http    *resty.Client
	headers map[string]string
	limiter *ratelimit.Limiter
	logger  *zap.Logger
}

// New creates a gateway
func New(cfg Config, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	headers := BrowserHeaders(cfg.UserAgent)
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	client := resty.New().
		SetTimeout(timeout).
		SetHeaders(headers).
		SetLogger(logger.Sugar())

	return &Gateway{
		http:    client,
		headers: headers,
		limiter: cfg.Limiter,
		logger:  logger,
	}
}

// Headers returns a copy of the header profile, for transports that open
// their own connections to the same upstream.
func (g *Gateway) Headers() map[string]string {
	out := make(map[string]string, len(g.headers))
	for k, v := range g.headers {
		out[k] = v
	}
	return out
}

// BuildURL appends params as a query string. No params yields rawURL as is.
func BuildURL(rawURL string, params url.Values) string {
	if len(params) == 0 {
		return rawURL
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + params.Encode()
}

// Request issues a GET and decodes the envelope.
//
// A transport failure returns *TransportError, a non-2xx status returns
// *UpstreamHTTPError. An envelope with success=false is logged and returned
// unchanged; deciding how to degrade is up to the caller.
func (g *Gateway) Request(ctx context.Context, rawURL string, params url.Values) (alerts.RawEnvelope, error) {
	var env alerts.RawEnvelope
	fullURL := BuildURL(rawURL, params)

	if err := g.limiter.Wait(ctx); err != nil {
		return env, &TransportError{URL: fullURL, Err: err}
	}

	resp, err := g.http.R().
		SetContext(ctx).
		Get(fullURL)
	if err != nil {
		g.logger.Error("Upstream request failed",
			zap.String("url", fullURL),
			zap.Error(err),
		)
		return env, &TransportError{URL: fullURL, Err: err}
	}

	if !resp.IsSuccess() {
		body := utils.Truncate(string(resp.Body()), maxErrorBody)
		g.logger.Error("Upstream returned error status",
			zap.String("url", fullURL),
			zap.Int("status", resp.StatusCode()),
			zap.String("body", utils.EscapeForLogging(body, 200)),
		)
		return env, &UpstreamHTTPError{URL: fullURL, Status: resp.StatusCode(), Body: body}
	}

	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		g.logger.Error("Failed to decode upstream response",
			zap.String("url", fullURL),
			zap.Error(err),
		)
		return env, fmt.Errorf("%w from %s: %v", ErrMalformedResponse, fullURL, err)
	}

	if !env.Success {
		g.logger.Warn("Upstream reported failure",
			zap.String("url", fullURL),
			zap.String("incident_id", env.IncidentID),
		)
	}

	return env, nil
}
