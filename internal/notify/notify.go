// Package notify fans relevant alert batches out to external channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/redalert-desktop/redalert/internal/alerts"
)

// Notifier delivers one batch of alerts to a single channel
type Notifier interface {
	Name() string
	Notify(ctx context.Context, batch []alerts.Alert) error
}

// Event is the JSON body published to message brokers
type Event struct {
	Type   string         `json:"type"`
	Alerts []alerts.Alert `json:"alerts"`
	SentAt time.Time      `json:"sent_at"`
}

// NewEvent wraps a batch for publishing
func NewEvent(batch []alerts.Alert) Event {
	return Event{Type: "alerts", Alerts: batch, SentAt: time.Now().UTC()}
}

// FormatMessage renders a batch as chat text, one line per alert type
func FormatMessage(batch []alerts.Alert) string {
	byType := make(map[alerts.AlertTypeID][]string)
	for _, a := range batch {
		place := a.EnglishName
		if place == "" {
			place = a.Name
		}
		byType[a.AlertTypeID] = append(byType[a.AlertTypeID], place)
	}

	types := make([]alerts.AlertTypeID, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	var b strings.Builder
	for _, t := range types {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %s alert: %s", emojiFor(t), titleFor(t), strings.Join(byType[t], ", "))
	}
	if len(batch) > 0 && batch[0].TimeStamp != "" {
		fmt.Fprintf(&b, "\nIssued %s", batch[0].TimeStamp)
	}
	return b.String()
}

func emojiFor(t alerts.AlertTypeID) string {
	switch t {
	case alerts.AlertTypeRockets:
		return "🚀"
	case alerts.AlertTypeUAV:
		return "🛩️"
	default:
		return "🚨"
	}
}

func titleFor(t alerts.AlertTypeID) string {
	switch t {
	case alerts.AlertTypeRockets:
		return "Rocket"
	case alerts.AlertTypeUAV:
		return "UAV"
	default:
		return "Civil defense"
	}
}

// ========== Dispatcher ==========

// Dispatcher sends each batch to every notifier concurrently
type Dispatcher struct {
	notifiers []Notifier
	timeout   time.Duration
	logger    *zap.Logger
}

// NewDispatcher creates a dispatcher. timeout bounds each notifier call;
// zero means no bound beyond ctx.
func NewDispatcher(logger *zap.Logger, timeout time.Duration, notifiers ...Notifier) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{notifiers: notifiers, timeout: timeout, logger: logger}
}

// Len returns the number of configured notifiers
func (d *Dispatcher) Len() int {
	return len(d.notifiers)
}

// Notify delivers batch everywhere and joins the failures. One failing
// notifier never prevents delivery to the others.
func (d *Dispatcher) Notify(ctx context.Context, batch []alerts.Alert) error {
	if len(batch) == 0 || len(d.notifiers) == 0 {
		return nil
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, n := range d.notifiers {
		wg.Add(1)
		go func(n Notifier) {
			defer wg.Done()

			callCtx := ctx
			if d.timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, d.timeout)
				defer cancel()
			}

			if err := n.Notify(callCtx, batch); err != nil {
				d.logger.Warn("Notifier failed",
					zap.String("notifier", n.Name()),
					zap.Int("alerts", len(batch)),
					zap.Error(err),
				)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
				mu.Unlock()
				return
			}
			d.logger.Debug("Notified", zap.String("notifier", n.Name()), zap.Int("alerts", len(batch)))
		}(n)
	}
	wg.Wait()

	return errors.Join(errs...)
}
