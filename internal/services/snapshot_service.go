package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/redalert-desktop/redalert/internal/alerts"
)

// Snapshot is the deduplicated set of currently active alerts
type Snapshot struct {
	Alerts []alerts.Alert `json:"alerts"`
	Count  int            `json:"count"`
}

// SnapshotService reads the pre-aggregated real-time cache
type SnapshotService struct {
	req       Requester
	endpoints Endpoints
	logger    *zap.Logger
}

// NewSnapshotService creates a snapshot service
func NewSnapshotService(req Requester, endpoints Endpoints, logger *zap.Logger) *SnapshotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotService{req: req, endpoints: endpoints, logger: logger}
}

// GetRealTimeAlertCache flattens the cached alert groups and keeps the first
// alert per location. No relevance filter is applied: the snapshot shows
// every active incident type. Every failure yields an empty snapshot.
func (s *SnapshotService) GetRealTimeAlertCache(ctx context.Context) Snapshot {
	empty := Snapshot{Alerts: []alerts.Alert{}, Count: 0}
	rawURL := s.endpoints.RealTimeCached()

	raw, err := s.req.Request(ctx, rawURL, nil)
	if err != nil {
		s.logger.Warn("Real-time cache unavailable",
			zap.String("url", rawURL),
			zap.Error(err),
		)
		return empty
	}
	if !raw.Success {
		s.logger.Warn("Real-time cache reported failure",
			zap.String("url", rawURL),
			zap.String("incident_id", raw.IncidentID),
		)
		return empty
	}

	env, err := alerts.DecodeEnvelope[[]alerts.AlertGroup](raw)
	if err != nil {
		s.logger.Warn("Failed to decode real-time cache",
			zap.String("url", rawURL),
			zap.Error(err),
		)
		return empty
	}

	deduped := alerts.DedupeByLocation(alerts.Flatten(env.Payload))
	return Snapshot{Alerts: deduped, Count: len(deduped)}
}
