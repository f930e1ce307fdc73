// Package pipeline joins the live stream and the poller into one flow:
// relevance check, duplicate suppression, history, feed broadcast and
// notifications for monitored areas.
package pipeline

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/redalert-desktop/redalert/internal/alerts"
	"github.com/redalert-desktop/redalert/internal/database"
	"github.com/redalert-desktop/redalert/internal/dedup"
)

// DefaultQueueSize is the number of batches buffered between sources and the worker
const DefaultQueueSize = 256

// HistoryStore records fresh alerts
type HistoryStore interface {
	SaveAlerts(ctx context.Context, batch []alerts.Alert, source database.Source) (int, error)
}

// Broadcaster pushes fresh alerts to live feed clients
type Broadcaster interface {
	Broadcast(batch []alerts.Alert)
}

// Notifier delivers alerts for monitored areas
type Notifier interface {
	Notify(ctx context.Context, batch []alerts.Alert) error
}

// Options wires the optional stages. Nil stages are skipped.
type Options struct {
	Dedup       dedup.Store
	History     HistoryStore
	Broadcaster Broadcaster
	Notifier    Notifier
	Areas       *alerts.AreaFilter
	QueueSize   int
}

// Stats are cumulative pipeline counters
type Stats struct {
	Received   int64 `json:"received"`
	Fresh      int64 `json:"fresh"`
	Duplicates int64 `json:"duplicates"`
	Notified   int64 `json:"notified"`
	Dropped    int64 `json:"dropped"`
}

type job struct {
	batch  []alerts.Alert
	source database.Source
}

// Pipeline processes alert batches on a single worker
type Pipeline struct {
	opts   Options
	queue  chan job
	logger *zap.Logger

	received   atomic.Int64
	fresh      atomic.Int64
	duplicates atomic.Int64
	notified   atomic.Int64
	dropped    atomic.Int64
}

// New creates a pipeline
func New(opts Options, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Pipeline{opts: opts, queue: make(chan job, size), logger: logger}
}

// Submit queues a batch without blocking. A full queue drops the batch.
func (p *Pipeline) Submit(batch []alerts.Alert, source database.Source) bool {
	if len(batch) == 0 {
		return true
	}
	select {
	case p.queue <- job{batch: batch, source: source}:
		return true
	default:
		p.dropped.Add(1)
		p.logger.Warn("Pipeline queue full, dropping batch",
			zap.String("source", string(source)),
			zap.Int("alerts", len(batch)),
		)
		return false
	}
}

// Run processes queued batches until ctx is done
func (p *Pipeline) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.queue:
			p.Process(ctx, j.batch, j.source)
		}
	}
}

// Process runs one batch through every stage and returns the alerts that
// were new. Dedup failures let the alert through.
func (p *Pipeline) Process(ctx context.Context, batch []alerts.Alert, source database.Source) []alerts.Alert {
	relevant := alerts.FilterRelevant(batch)
	p.received.Add(int64(len(relevant)))

	fresh := p.unseen(ctx, relevant)
	if len(fresh) == 0 {
		return fresh
	}
	p.fresh.Add(int64(len(fresh)))

	if p.opts.History != nil {
		if _, err := p.opts.History.SaveAlerts(ctx, fresh, source); err != nil {
			p.logger.Error("Failed to record alerts", zap.Error(err))
		}
	}

	if p.opts.Broadcaster != nil {
		p.opts.Broadcaster.Broadcast(fresh)
	}

	if p.opts.Notifier != nil {
		monitored := p.opts.Areas.Filter(fresh)
		if len(monitored) > 0 {
			if err := p.opts.Notifier.Notify(ctx, monitored); err != nil {
				p.logger.Warn("Some notifications failed", zap.Error(err))
			}
			p.notified.Add(int64(len(monitored)))
		}
	}

	p.logger.Info("Processed alerts",
		zap.String("source", string(source)),
		zap.Int("fresh", len(fresh)),
		zap.Int("received", len(relevant)),
	)
	return fresh
}

func (p *Pipeline) unseen(ctx context.Context, batch []alerts.Alert) []alerts.Alert {
	out := make([]alerts.Alert, 0, len(batch))
	batchSeen := make(map[string]struct{}, len(batch))
	for _, a := range batch {
		fp := alerts.Fingerprint(a)
		if _, dup := batchSeen[fp]; dup {
			p.duplicates.Add(1)
			continue
		}
		batchSeen[fp] = struct{}{}

		if p.opts.Dedup != nil {
			seen, err := p.opts.Dedup.Seen(ctx, fp)
			if err != nil {
				p.logger.Warn("Dedup check failed, delivering anyway",
					zap.String("fingerprint", fp),
					zap.Error(err),
				)
			} else if seen {
				p.duplicates.Add(1)
				continue
			}
		}
		out = append(out, a)
	}
	return out
}

// Stats returns a snapshot of the counters
func (p *Pipeline) Stats() Stats {
	return Stats{
		Received:   p.received.Load(),
		Fresh:      p.fresh.Load(),
		Duplicates: p.duplicates.Load(),
		Notified:   p.notified.Load(),
		Dropped:    p.dropped.Load(),
	}
}
