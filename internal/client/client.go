// Package client is the single entry point for alert consumers. It wires the
// gateway, the historical and snapshot services and the live stream behind
// one type and holds nothing but static configuration.
package client

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/redalert-desktop/redalert/internal/alerts"
	"github.com/redalert-desktop/redalert/internal/gateway"
	"github.com/redalert-desktop/redalert/internal/ratelimit"
	"github.com/redalert-desktop/redalert/internal/services"
	"github.com/redalert-desktop/redalert/internal/stream"
)

// Config is the static configuration of a Client
type Config struct {
	BaseURL         string
	UserAgent       string
	Headers         map[string]string
	Timeout         time.Duration
	Limiter         *ratelimit.Limiter
	Location        *time.Location
	MaxRecentAlerts int
	// Transport is the host's server-push capability. Nil disables the
	// live stream: OpenStream reports ErrStreamCapabilityMissing.
	Transport stream.Transport
}

// Client is the facade over every alert query and the live stream
type Client struct {
	endpoints services.Endpoints
	gateway   *gateway.Gateway
	history   *services.HistoryService
	snapshot  *services.SnapshotService
	stream    *stream.Manager
	maxRecent int
}

// New creates a client
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := cfg.BaseURL
	if base == "" {
		base = services.DefaultBaseURL
	}
	maxRecent := cfg.MaxRecentAlerts
	if maxRecent <= 0 {
		maxRecent = services.MaxRecentAlerts
	}

	endpoints := services.NewEndpoints(base)
	gw := gateway.New(gateway.Config{
		UserAgent: cfg.UserAgent,
		Headers:   cfg.Headers,
		Timeout:   cfg.Timeout,
		Limiter:   cfg.Limiter,
	}, logger.Named("gateway"))

	return &Client{
		endpoints: endpoints,
		gateway:   gw,
		history:   services.NewHistoryService(gw, endpoints, cfg.Location, logger.Named("history")).WithMaxRecent(maxRecent),
		snapshot:  services.NewSnapshotService(gw, endpoints, logger.Named("snapshot")),
		stream:    stream.NewManager(cfg.Transport, endpoints.RealTime(), logger.Named("stream")),
		maxRecent: maxRecent,
	}
}

// AlertTypes lists the alert types a caller can query by
func (c *Client) AlertTypes() []alerts.AlertTypeID {
	return []alerts.AlertTypeID{alerts.AlertTypeAll, alerts.AlertTypeRockets, alerts.AlertTypeUAV}
}

// MaxRecentAlerts is the cap applied by GetMostRecentAlerts
func (c *Client) MaxRecentAlerts() int {
	return c.maxRecent
}

// Endpoints returns the upstream URLs in use
func (c *Client) Endpoints() services.Endpoints {
	return c.endpoints
}

// Headers returns the header profile sent upstream, for building transports
func (c *Client) Headers() map[string]string {
	return c.gateway.Headers()
}

// ========== Historical queries ==========

func (c *Client) GetDetailedAlerts(ctx context.Context, q services.Query) (alerts.Envelope[[]alerts.DayBucket], error) {
	return c.history.GetDetailedAlerts(ctx, q)
}

func (c *Client) GetMostRecentAlerts(ctx context.Context, from, to time.Time) []alerts.Alert {
	return c.history.GetMostRecentAlerts(ctx, from, to)
}

func (c *Client) GetTotalAlertsByDay(ctx context.Context, q services.Query) (alerts.RawEnvelope, error) {
	return c.history.GetTotalAlertsByDay(ctx, q)
}

func (c *Client) GetTotalAlerts(ctx context.Context, q services.Query) (alerts.RawEnvelope, error) {
	return c.history.GetTotalAlerts(ctx, q)
}

func (c *Client) GetMostTargetedLocations(ctx context.Context, from, to time.Time, limit int) (alerts.RawEnvelope, error) {
	return c.history.GetMostTargetedLocations(ctx, from, to, limit)
}

func (c *Client) GetMostTargetedRegions(ctx context.Context, from, to time.Time, limit int) (alerts.RawEnvelope, error) {
	return c.history.GetMostTargetedRegions(ctx, from, to, limit)
}

func (c *Client) GetMostRecentAlert(ctx context.Context) (alerts.RawEnvelope, error) {
	return c.history.GetMostRecentAlert(ctx)
}

// ========== Snapshot & stream ==========

// GetRealTimeAlertCache returns the active alert snapshot, unfiltered by type
func (c *Client) GetRealTimeAlertCache(ctx context.Context) services.Snapshot {
	return c.snapshot.GetRealTimeAlertCache(ctx)
}

// OpenStream starts the live stream. See stream.Manager.Open.
func (c *Client) OpenStream(ctx context.Context, onAlert func([]alerts.Alert), onError func(error)) *stream.Handle {
	return c.stream.Open(ctx, onAlert, onError)
}

// ========== Classification ==========

func (c *Client) IsRelevant(a alerts.Alert) bool {
	return alerts.IsRelevant(a)
}

func (c *Client) FilterRelevant(in []alerts.Alert) []alerts.Alert {
	return alerts.FilterRelevant(in)
}
