package services

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/redalert-desktop/redalert/internal/alerts"
	"github.com/redalert-desktop/redalert/internal/gateway"
)

const (
	// MaxRecentAlerts caps GetMostRecentAlerts
	MaxRecentAlerts = 30
	// DefaultTopLimit is the upstream default for the top-N endpoints
	DefaultTopLimit = 10
	// DateLayout formats the from/to query parameters
	DateLayout = "2006-01-02"
)

// Requester performs one upstream GET and returns the raw envelope
type Requester interface {
	Request(ctx context.Context, rawURL string, params url.Values) (alerts.RawEnvelope, error)
}

// Query narrows a historical query. Zero From/To are omitted, and
// AlertTypeAll is never sent upstream.
type Query struct {
	From        time.Time
	To          time.Time
	AlertTypeID alerts.AlertTypeID
}

// HistoryService wraps the read-only historical endpoints
type HistoryService struct {
	req       Requester
	endpoints Endpoints
	loc       *time.Location
	maxRecent int
	logger    *zap.Logger
}

// NewHistoryService creates a history service. loc is used to format date
// parameters; nil means UTC.
func NewHistoryService(req Requester, endpoints Endpoints, loc *time.Location, logger *zap.Logger) *HistoryService {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryService{
		req:       req,
		endpoints: endpoints,
		loc:       loc,
		maxRecent: MaxRecentAlerts,
		logger:    logger,
	}
}

// WithMaxRecent overrides the GetMostRecentAlerts cap. n <= 0 keeps the
// current cap.
func (s *HistoryService) WithMaxRecent(n int) *HistoryService {
	if n > 0 {
		s.maxRecent = n
	}
	return s
}

func (s *HistoryService) rangeParams(from, to time.Time) url.Values {
	params := url.Values{}
	if !from.IsZero() {
		params.Set("from", from.In(s.loc).Format(DateLayout))
	}
	if !to.IsZero() {
		params.Set("to", to.In(s.loc).Format(DateLayout))
	}
	return params
}

func (s *HistoryService) queryParams(q Query) url.Values {
	params := s.rangeParams(q.From, q.To)
	if q.AlertTypeID != alerts.AlertTypeAll {
		params.Set("alertTypeId", strconv.Itoa(int(q.AlertTypeID)))
	}
	return params
}

// fetch issues the request. Upstream sometimes rejects date ranges, so a
// 4xx on a ranged request is retried once without from/to.
func (s *HistoryService) fetch(ctx context.Context, op, rawURL string, params url.Values) (alerts.RawEnvelope, error) {
	env, err := s.req.Request(ctx, rawURL, params)
	if err == nil {
		return env, nil
	}

	var httpErr *gateway.UpstreamHTTPError
	hasRange := params.Has("from") || params.Has("to")
	if hasRange && errors.As(err, &httpErr) && httpErr.IsClientError() {
		s.logger.Warn("Upstream rejected date range, retrying without it",
			zap.String("operation", op),
			zap.String("url", rawURL),
			zap.Int("status", httpErr.Status),
		)
		stripped := url.Values{}
		for k, v := range params {
			if k != "from" && k != "to" {
				stripped[k] = v
			}
		}
		env, err = s.req.Request(ctx, rawURL, stripped)
		if err == nil {
			return env, nil
		}
	}

	s.logger.Error("Historical query failed",
		zap.String("operation", op),
		zap.String("url", rawURL),
		zap.Error(err),
	)
	return env, err
}

// ========== Fail-loud operations ==========

// GetDetailedAlerts returns per-day alerts with every bucket reduced to
// relevant alerts. Upstream buckets are copied, never modified in place.
// Gateway failures are returned.
func (s *HistoryService) GetDetailedAlerts(ctx context.Context, q Query) (alerts.Envelope[[]alerts.DayBucket], error) {
	raw, err := s.fetch(ctx, "GetDetailedAlerts", s.endpoints.Details(), s.queryParams(q))
	if err != nil {
		return alerts.Envelope[[]alerts.DayBucket]{}, err
	}

	if !raw.Success {
		return alerts.Envelope[[]alerts.DayBucket]{Success: false, IncidentID: raw.IncidentID}, nil
	}

	env, err := alerts.DecodeEnvelope[[]alerts.DayBucket](raw)
	if err != nil {
		s.logger.Error("Failed to decode detailed alerts",
			zap.String("url", s.endpoints.Details()),
			zap.Error(err),
		)
		return env, err
	}

	buckets := make([]alerts.DayBucket, len(env.Payload))
	for i, b := range env.Payload {
		buckets[i] = alerts.DayBucket{Date: b.Date, Alerts: alerts.FilterRelevant(b.Alerts)}
	}
	env.Payload = buckets
	return env, nil
}

// GetTotalAlertsByDay returns per-day totals. Gateway failures are returned.
func (s *HistoryService) GetTotalAlertsByDay(ctx context.Context, q Query) (alerts.RawEnvelope, error) {
	return s.fetch(ctx, "GetTotalAlertsByDay", s.endpoints.Daily(), s.queryParams(q))
}

// GetTotalAlerts returns totals over the range. Gateway failures are returned.
func (s *HistoryService) GetTotalAlerts(ctx context.Context, q Query) (alerts.RawEnvelope, error) {
	return s.fetch(ctx, "GetTotalAlerts", s.endpoints.Total(), s.queryParams(q))
}

// GetMostTargetedLocations returns the top places. limit is only sent when
// it differs from DefaultTopLimit; non-positive means the default.
func (s *HistoryService) GetMostTargetedLocations(ctx context.Context, from, to time.Time, limit int) (alerts.RawEnvelope, error) {
	return s.fetch(ctx, "GetMostTargetedLocations", s.endpoints.TopPlace(), s.topParams(from, to, limit))
}

// GetMostTargetedRegions returns the top regions, with the same limit rule
// as GetMostTargetedLocations.
func (s *HistoryService) GetMostTargetedRegions(ctx context.Context, from, to time.Time, limit int) (alerts.RawEnvelope, error) {
	return s.fetch(ctx, "GetMostTargetedRegions", s.endpoints.TopArea(), s.topParams(from, to, limit))
}

// GetMostRecentAlert returns the single latest alert. Gateway failures are returned.
func (s *HistoryService) GetMostRecentAlert(ctx context.Context) (alerts.RawEnvelope, error) {
	return s.fetch(ctx, "GetMostRecentAlert", s.endpoints.Latest(), nil)
}

func (s *HistoryService) topParams(from, to time.Time, limit int) url.Values {
	params := s.rangeParams(from, to)
	if limit > 0 && limit != DefaultTopLimit {
		params.Set("limit", strconv.Itoa(limit))
	}
	return params
}

// ========== Fail-quiet operations ==========

// GetMostRecentAlerts returns at most MaxRecentAlerts (or the WithMaxRecent cap) relevant alerts from the
// first two day buckets, keeping the tail of their concatenation. Buckets
// past the second are ignored. Every failure yields an empty, non-nil slice.
func (s *HistoryService) GetMostRecentAlerts(ctx context.Context, from, to time.Time) []alerts.Alert {
	env, err := s.GetDetailedAlerts(ctx, Query{From: from, To: to})
	if err != nil {
		s.logger.Warn("Recent alerts unavailable", zap.Error(err))
		return []alerts.Alert{}
	}
	if !env.Success || len(env.Payload) == 0 {
		s.logger.Warn("Recent alerts degraded to empty",
			zap.Bool("success", env.Success),
			zap.String("incident_id", env.IncidentID),
		)
		return []alerts.Alert{}
	}
	return mergeRecent(env.Payload, s.maxRecent)
}

func mergeRecent(buckets []alerts.DayBucket, max int) []alerts.Alert {
	var merged []alerts.Alert
	if len(buckets) > 1 {
		merged = make([]alerts.Alert, 0, len(buckets[0].Alerts)+len(buckets[1].Alerts))
		merged = append(merged, buckets[0].Alerts...)
		merged = append(merged, buckets[1].Alerts...)
	} else {
		merged = append([]alerts.Alert{}, buckets[0].Alerts...)
	}
	if len(merged) > max {
		merged = merged[len(merged)-max:]
	}
	return merged
}
