package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/redalert-desktop/redalert/internal/alerts"
)

type recordingNotifier struct {
	name string
	err  error
	wait time.Duration

	mu      sync.Mutex
	batches [][]alerts.Alert
}

func (r *recordingNotifier) Name() string { return r.name }

func (r *recordingNotifier) Notify(ctx context.Context, batch []alerts.Alert) error {
	if r.wait > 0 {
		select {
		case <-time.After(r.wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, batch)
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

var sampleBatch = []alerts.Alert{
	{AlertTypeID: alerts.AlertTypeRockets, Name: "שדרות", EnglishName: "Sderot", TimeStamp: "2024-10-07 06:30:00"},
	{AlertTypeID: alerts.AlertTypeUAV, Name: "מטולה", TimeStamp: "2024-10-07 06:30:00"},
	{AlertTypeID: alerts.AlertTypeRockets, Name: "נתיבות", EnglishName: "Netivot", TimeStamp: "2024-10-07 06:30:00"},
}

func TestFormatMessage(t *testing.T) {
	msg := FormatMessage(sampleBatch)
	assert.Equal(t, "🚀 Rocket alert: Sderot, Netivot\n🛩️ UAV alert: מטולה\nIssued 2024-10-07 06:30:00", msg)
	assert.Empty(t, FormatMessage(nil))
}

func TestDispatcher_FanOutAndJoinErrors(t *testing.T) {
	ok := &recordingNotifier{name: "ok"}
	failing := &recordingNotifier{name: "broken", err: errors.New("boom")}

	d := NewDispatcher(zap.NewNop(), 0, ok, failing)
	assert.Equal(t, 2, d.Len())

	err := d.Notify(context.Background(), sampleBatch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: boom")
	assert.Equal(t, 1, ok.count())
	assert.Equal(t, 1, failing.count())
}

func TestDispatcher_EmptyBatchIsNoop(t *testing.T) {
	n := &recordingNotifier{name: "n"}
	d := NewDispatcher(nil, 0, n)

	assert.NoError(t, d.Notify(context.Background(), nil))
	assert.Equal(t, 0, n.count())
	assert.NoError(t, NewDispatcher(nil, 0).Notify(context.Background(), sampleBatch))
}

func TestDispatcher_TimeoutPerNotifier(t *testing.T) {
	slow := &recordingNotifier{name: "slow", wait: time.Second}
	fast := &recordingNotifier{name: "fast"}
	d := NewDispatcher(nil, 20*time.Millisecond, slow, fast)

	err := d.Notify(context.Background(), sampleBatch)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, fast.count())
	assert.Equal(t, 0, slow.count())
}

func TestNewEvent(t *testing.T) {
	ev := NewEvent(sampleBatch)
	assert.Equal(t, "alerts", ev.Type)
	assert.Len(t, ev.Alerts, 3)
	assert.False(t, ev.SentAt.IsZero())
}
