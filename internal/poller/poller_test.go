package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/redalert-desktop/redalert/internal/alerts"
	"github.com/redalert-desktop/redalert/internal/database"
	"github.com/redalert-desktop/redalert/internal/dedup"
	"github.com/redalert-desktop/redalert/internal/pipeline"
	"github.com/redalert-desktop/redalert/internal/services"
)

type fakeSource struct {
	mu       sync.Mutex
	snapshot services.Snapshot
	recent   []alerts.Alert
	from, to time.Time
	polls    int
}

func (f *fakeSource) GetRealTimeAlertCache(context.Context) services.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	return f.snapshot
}

func (f *fakeSource) GetMostRecentAlerts(_ context.Context, from, to time.Time) []alerts.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.from, f.to = from, to
	return f.recent
}

func (f *fakeSource) set(snapshot []alerts.Alert, recent []alerts.Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = services.Snapshot{Alerts: snapshot, Count: len(snapshot)}
	f.recent = recent
}

type fakeSink struct {
	mu      sync.Mutex
	batches [][]alerts.Alert
}

func (f *fakeSink) Submit(batch []alerts.Alert, source database.Source) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, batch)
	return true
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func TestPoll_FiltersSnapshotAndSkipsUnchanged(t *testing.T) {
	src := &fakeSource{}
	src.set(
		[]alerts.Alert{
			{AlertTypeID: alerts.AlertTypeRockets, EnglishName: "Sderot"},
			{AlertTypeID: 4, EnglishName: "Hazmat"},
		},
		[]alerts.Alert{{AlertTypeID: alerts.AlertTypeUAV, EnglishName: "Metula", TimeStamp: "2024-10-07 06:00:00"}},
	)
	sink := &fakeSink{}
	now := time.Date(2024, 10, 7, 6, 2, 0, 0, time.UTC)

	p := New(src, sink, time.Second, zap.NewNop())
	p.now = func() time.Time { return now }

	assert.True(t, p.Poll(context.Background()))
	require.Len(t, sink.batches, 1)
	require.Len(t, sink.batches[0], 2)
	assert.Equal(t, "Sderot", sink.batches[0][0].EnglishName)
	assert.Equal(t, "Metula", sink.batches[0][1].EnglishName)
	assert.Equal(t, now.Add(-24*time.Hour), src.from)
	assert.Equal(t, now, src.to)

	assert.False(t, p.Poll(context.Background()), "unchanged data is skipped")
	assert.Equal(t, 1, sink.count())

	src.set(nil, []alerts.Alert{{AlertTypeID: alerts.AlertTypeRockets, EnglishName: "Haifa", TimeStamp: "2024-10-07 06:01:00"}})
	assert.True(t, p.Poll(context.Background()))
	assert.Equal(t, 2, sink.count())
}

func TestPoll_DropsStaleRecentAlerts(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Jerusalem")
	require.NoError(t, err)
	now := time.Date(2024, 10, 7, 12, 0, 0, 0, loc)

	src := &fakeSource{}
	src.set(nil, []alerts.Alert{
		{AlertTypeID: alerts.AlertTypeRockets, EnglishName: "Sderot", TimeStamp: "2024-10-07 09:00:00"},
		{AlertTypeID: alerts.AlertTypeRockets, EnglishName: "Ashkelon", TimeStamp: "2024-10-07 11:58:00"},
		{AlertTypeID: alerts.AlertTypeRockets, EnglishName: "Broken", TimeStamp: "yesterday"},
	})
	sink := &fakeSink{}

	p := New(src, sink, time.Second, zap.NewNop()).WithFreshness(5*time.Minute, loc)
	p.now = func() time.Time { return now }

	require.True(t, p.Poll(context.Background()))
	require.Len(t, sink.batches[0], 1)
	assert.Equal(t, "Ashkelon", sink.batches[0][0].EnglishName)
}

func TestPoll_OldAlertIsNotRedeliveredAfterDedupExpiry(t *testing.T) {
	ttl := 30 * time.Millisecond
	seen := dedup.NewMemory(ttl, time.Hour)
	defer seen.Close()
	notifier := &countingNotifier{counts: map[string]int{}}
	pipe := pipeline.New(pipeline.Options{Dedup: seen, Notifier: notifier}, zap.NewNop())

	now := time.Date(2024, 10, 7, 12, 0, 0, 0, time.UTC)
	old := alerts.Alert{AlertTypeID: alerts.AlertTypeRockets, EnglishName: "Sderot", TimeStamp: "2024-10-07 09:00:00"}
	fresh := alerts.Alert{AlertTypeID: alerts.AlertTypeRockets, EnglishName: "Haifa", TimeStamp: "2024-10-07 11:59:30"}

	src := &fakeSource{}
	src.set(nil, []alerts.Alert{old})
	sink := &processingSink{pipe: pipe}
	p := New(src, sink, time.Second, zap.NewNop())
	p.now = func() time.Time { return now }

	p.Poll(context.Background())
	time.Sleep(2 * ttl)

	// something new shows up next to the old alert
	src.set([]alerts.Alert{fresh}, []alerts.Alert{old})
	p.Poll(context.Background())

	assert.Zero(t, notifier.count("Sderot"))
	assert.Equal(t, 1, notifier.count("Haifa"))
}

// processingSink runs batches through the pipeline synchronously
type processingSink struct {
	pipe *pipeline.Pipeline
}

func (s *processingSink) Submit(batch []alerts.Alert, source database.Source) bool {
	s.pipe.Process(context.Background(), batch, source)
	return true
}

type countingNotifier struct {
	mu     sync.Mutex
	counts map[string]int
}

func (n *countingNotifier) Notify(_ context.Context, batch []alerts.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, a := range batch {
		n.counts[a.EnglishName]++
	}
	return nil
}

func (n *countingNotifier) count(name string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.counts[name]
}

func TestPoll_EmptyDoesNotSubmit(t *testing.T) {
	src := &fakeSource{}
	src.set(nil, nil)
	sink := &fakeSink{}

	assert.False(t, New(src, sink, 0, nil).Poll(context.Background()))
	assert.Zero(t, sink.count())
}

func TestRun_PollsUntilCancelled(t *testing.T) {
	src := &fakeSource{}
	src.set([]alerts.Alert{{AlertTypeID: alerts.AlertTypeRockets, EnglishName: "Sderot"}}, nil)
	sink := &fakeSink{}

	p := New(src, sink, 10*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.polls >= 3
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
	assert.Equal(t, 1, sink.count())
}
