// Package poller periodically reads the fail-quiet snapshot and recent-alert
// surfaces so alerts missed by the live stream still reach the pipeline.
package poller

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/redalert-desktop/redalert/internal/alerts"
	"github.com/redalert-desktop/redalert/internal/database"
	"github.com/redalert-desktop/redalert/internal/services"
)

// DefaultWindow is how far back recent alerts are requested
const DefaultWindow = 24 * time.Hour

// DefaultFreshness is the age past which a recent alert is history, not news.
// It must not exceed the dedup TTL, or expired alerts would be delivered again.
const DefaultFreshness = 5 * time.Minute

// Source is the subset of the client the poller reads
type Source interface {
	GetRealTimeAlertCache(ctx context.Context) services.Snapshot
	GetMostRecentAlerts(ctx context.Context, from, to time.Time) []alerts.Alert
}

// Sink accepts batches for processing
type Sink interface {
	Submit(batch []alerts.Alert, source database.Source) bool
}

// Poller polls Source every interval
type Poller struct {
	src      Source
	sink     Sink
	interval time.Duration
	window   time.Duration
	fresh    time.Duration
	loc      *time.Location
	now      func() time.Time
	logger   *zap.Logger

	lastFingerprint string
}

// New creates a poller
func New(src Source, sink Sink, interval time.Duration, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Poller{
		src:      src,
		sink:     sink,
		interval: interval,
		window:   DefaultWindow,
		fresh:    DefaultFreshness,
		loc:      time.UTC,
		now:      time.Now,
		logger:   logger,
	}
}

// WithFreshness sets the freshness window and the zone upstream timestamps
// are in. Non-positive window or nil loc keep the current value.
func (p *Poller) WithFreshness(window time.Duration, loc *time.Location) *Poller {
	if window > 0 {
		p.fresh = window
	}
	if loc != nil {
		p.loc = loc
	}
	return p
}

// Run polls immediately and then every interval until ctx is done
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("Poller started", zap.Duration("interval", p.interval))

	p.Poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Poller stopped")
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll performs one tick and reports whether a batch was submitted.
// A batch identical to the previous tick's is skipped.
func (p *Poller) Poll(ctx context.Context) bool {
	snapshot := p.src.GetRealTimeAlertCache(ctx)
	now := p.now()
	recent := p.freshOnly(p.src.GetMostRecentAlerts(ctx, now.Add(-p.window), now), now)

	// the snapshot arrives unfiltered
	batch := append(alerts.FilterRelevant(snapshot.Alerts), recent...)
	if len(batch) == 0 {
		return false
	}

	fp := alerts.BatchFingerprint(batch)
	if fp == p.lastFingerprint {
		return false
	}
	p.lastFingerprint = fp

	p.logger.Debug("Poll produced new data",
		zap.Int("active", snapshot.Count),
		zap.Int("recent", len(recent)),
	)
	return p.sink.Submit(batch, database.SourcePoll)
}

// freshOnly keeps recent alerts issued within the freshness window.
// Unparseable timestamps are dropped: their age cannot be proven.
func (p *Poller) freshOnly(recent []alerts.Alert, now time.Time) []alerts.Alert {
	cutoff := now.Add(-p.fresh)
	out := make([]alerts.Alert, 0, len(recent))
	for _, a := range recent {
		issued, err := a.IssuedAt(p.loc)
		if err != nil {
			p.logger.Debug("Skipping recent alert without a usable timestamp",
				zap.String("name", a.Name),
				zap.String("time_stamp", a.TimeStamp),
			)
			continue
		}
		if issued.Before(cutoff) {
			continue
		}
		out = append(out, a)
	}
	return out
}
