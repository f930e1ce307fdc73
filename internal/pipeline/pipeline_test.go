package pipeline

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
	"github.com/redalert-desktop/redalert/internal/database"
	"github.com/redalert-desktop/redalert/internal/dedup"
	"github.com/redalert-desktop/redalert/internal/testhelpers"
)

type fakeHistory struct {
	mu      sync.Mutex
	saved   []alerts.Alert
	sources []database.Source
	err     error
}

func (f *fakeHistory) SaveAlerts(_ context.Context, batch []alerts.Alert, source database.Source) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, batch...)
	f.sources = append(f.sources, source)
	return len(batch), f.err
}

type fakeBroadcaster struct {
	mu      sync.Mutex
	batches [][]alerts.Alert
}

func (f *fakeBroadcaster) Broadcast(batch []alerts.Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, batch)
}

func (f *fakeBroadcaster) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

type fakeNotifier struct {
	mu      sync.Mutex
	batches [][]alerts.Alert
	err     error
}

func (f *fakeNotifier) Notify(_ context.Context, batch []alerts.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, batch)
	return f.err
}

type failingDedup struct{}

func (failingDedup) Seen(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func (failingDedup) Close() error { return nil }

func rocket(name, ts string) alerts.Alert {
	a := testhelpers.NewAlertBuilder().WithPlace(name, name).WithArea("", "").Build()
	a.TimeStamp = ts
	return a
}

func TestProcess_FullFlow(t *testing.T) {
	store := dedup.NewMemory(time.Minute, time.Hour)
	defer store.Close()
	history := &fakeHistory{}
	feed := &fakeBroadcaster{}
	notifier := &fakeNotifier{}

	p := New(Options{
		Dedup:       store,
		History:     history,
		Broadcaster: feed,
		Notifier:    notifier,
		Areas:       alerts.NewAreaFilter([]string{"sderot"}),
	}, zap.NewNop())

	batch := []alerts.Alert{
		rocket("Sderot", "2024-10-07 06:30:00"),
		rocket("Ashkelon", "2024-10-07 06:30:00"),
		{AlertTypeID: 6, Name: "Earthquake"},
	}

	fresh := p.Process(context.Background(), batch, database.SourceStream)
	require.Len(t, fresh, 2)

	assert.Len(t, history.saved, 2)
	assert.Equal(t, []database.Source{database.SourceStream}, history.sources)
	assert.Equal(t, 1, feed.count())
	require.Len(t, notifier.batches, 1)
	require.Len(t, notifier.batches[0], 1)
	assert.Equal(t, "Sderot", notifier.batches[0][0].Name)

	// the same alerts arriving through the poller are suppressed
	again := p.Process(context.Background(), batch, database.SourcePoll)
	assert.Empty(t, again)
	assert.Equal(t, 1, feed.count())

	stats := p.Stats()
	assert.Equal(t, int64(4), stats.Received)
	assert.Equal(t, int64(2), stats.Fresh)
	assert.Equal(t, int64(2), stats.Duplicates)
	assert.Equal(t, int64(1), stats.Notified)
}

func TestProcess_DuplicatesWithinBatch(t *testing.T) {
	feed := &fakeBroadcaster{}
	p := New(Options{Broadcaster: feed}, nil)

	a := rocket("Haifa", "2024-10-07 06:30:00")
	fresh := p.Process(context.Background(), []alerts.Alert{a, a}, database.SourcePoll)
	assert.Len(t, fresh, 1)
}

func TestProcess_DedupFailureFailsOpen(t *testing.T) {
	feed := &fakeBroadcaster{}
	p := New(Options{Dedup: failingDedup{}, Broadcaster: feed}, nil)

	fresh := p.Process(context.Background(), []alerts.Alert{rocket("Haifa", "t")}, database.SourceStream)
	assert.Len(t, fresh, 1)
	assert.Equal(t, 1, feed.count())
}

func TestProcess_StageErrorsDoNotStopDelivery(t *testing.T) {
	history := &fakeHistory{err: errors.New("disk full")}
	feed := &fakeBroadcaster{}
	notifier := &fakeNotifier{err: errors.New("slack down")}
	p := New(Options{History: history, Broadcaster: feed, Notifier: notifier}, nil)

	fresh := p.Process(context.Background(), []alerts.Alert{rocket("Haifa", "t")}, database.SourceStream)
	assert.Len(t, fresh, 1)
	assert.Equal(t, 1, feed.count())
	assert.Len(t, notifier.batches, 1, "empty area filter notifies everything")
}

func TestProcess_NoMonitoredMatchSkipsNotify(t *testing.T) {
	notifier := &fakeNotifier{}
	p := New(Options{Notifier: notifier, Areas: alerts.NewAreaFilter([]string{"Eilat"})}, nil)

	p.Process(context.Background(), []alerts.Alert{rocket("Haifa", "t")}, database.SourceStream)
	assert.Empty(t, notifier.batches)
}

func TestSubmit_DropsWhenFull(t *testing.T) {
	p := New(Options{QueueSize: 1}, nil)

	assert.True(t, p.Submit([]alerts.Alert{rocket("A", "t")}, database.SourceStream))
	assert.False(t, p.Submit([]alerts.Alert{rocket("B", "t")}, database.SourceStream))
	assert.True(t, p.Submit(nil, database.SourceStream))
	assert.Equal(t, int64(1), p.Stats().Dropped)
}

func TestRun_ProcessesQueueUntilCancelled(t *testing.T) {
	feed := &fakeBroadcaster{}
	p := New(Options{Broadcaster: feed}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	p.Submit([]alerts.Alert{rocket("A", "1")}, database.SourceStream)
	p.Submit([]alerts.Alert{rocket("B", "2")}, database.SourcePoll)
	require.Eventually(t, func() bool { return feed.count() == 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	testhelpers.MustCompleteWithin(t, 2*time.Second, func() { <-done })
}
