package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/redalert-desktop/redalert/internal/alerts"
	"github.com/redalert-desktop/redalert/internal/services"
	"github.com/redalert-desktop/redalert/internal/stream"
)

func newUpstream(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.URL.RequestURI())
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/v1/alerts/details"):
			fmt.Fprint(w, `{"success":true,"payload":[
				{"date":"2024-10-01","alerts":[{"alertTypeId":1,"name":"A"},{"alertTypeId":7,"name":"X"}]},
				{"date":"2024-10-02","alerts":[{"alertTypeId":2,"name":"B"},{"alertTypeId":1,"name":"C"}]}]}`)
		case strings.HasSuffix(r.URL.Path, "/v2/alerts/real-time/cached"):
			fmt.Fprint(w, `{"success":true,"payload":[
				{"alerts":[{"alertTypeId":1,"englishName":"Tel Aviv","name":"first"}]},
				[{"alertTypeId":1,"englishName":"Tel Aviv","name":"second"},{"alertTypeId":5,"englishName":"Eilat"}]]}`)
		case strings.HasSuffix(r.URL.Path, "/v1/alerts/latest"):
			fmt.Fprint(w, `{"success":true,"payload":{"alertTypeId":1,"name":"Latest"}}`)
		default:
			fmt.Fprint(w, `{"success":true,"payload":[]}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestClient_HistoricalAndSnapshot(t *testing.T) {
	srv, seen := newUpstream(t)
	c := New(Config{BaseURL: srv.URL, MaxRecentAlerts: 2}, zap.NewNop())
	ctx := context.Background()

	env, err := c.GetDetailedAlerts(ctx, services.Query{})
	require.NoError(t, err)
	require.Len(t, env.Payload, 2)
	assert.Len(t, env.Payload[0].Alerts, 1)

	recent := c.GetMostRecentAlerts(ctx, time.Time{}, time.Time{})
	require.Len(t, recent, 2)
	assert.Equal(t, "B", recent[0].Name)
	assert.Equal(t, "C", recent[1].Name)

	snap := c.GetRealTimeAlertCache(ctx)
	assert.Equal(t, 2, snap.Count)
	assert.Equal(t, "first", snap.Alerts[0].Name)

	latest, err := c.GetMostRecentAlert(ctx)
	require.NoError(t, err)
	assert.True(t, latest.Success)

	_, err = c.GetMostTargetedLocations(ctx, time.Time{}, time.Time{}, 5)
	require.NoError(t, err)

	assert.Contains(t, *seen, "/v1/alerts/details")
	assert.Contains(t, *seen, "/v1/alerts/top/place?limit=5")
}

func TestClient_Defaults(t *testing.T) {
	c := New(Config{}, nil)

	assert.Equal(t, services.MaxRecentAlerts, c.MaxRecentAlerts())
	assert.Equal(t, services.DefaultBaseURL+"/v2/alerts/real-time", c.Endpoints().RealTime())
	assert.Equal(t, []alerts.AlertTypeID{alerts.AlertTypeAll, alerts.AlertTypeRockets, alerts.AlertTypeUAV}, c.AlertTypes())
	assert.NotEmpty(t, c.Headers()["User-Agent"])
}

func TestClient_OpenStreamWithoutTransport(t *testing.T) {
	c := New(Config{}, nil)

	var errs []error
	h := c.OpenStream(context.Background(), func([]alerts.Alert) {}, func(err error) { errs = append(errs, err) })

	assert.Nil(t, h)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], stream.ErrStreamCapabilityMissing)
}

type oneShotTransport struct {
	gotURL string
}

func (o *oneShotTransport) Stream(ctx context.Context, url string, onOpen func(), onMessage func([]byte)) error {
	o.gotURL = url
	onOpen()
	onMessage([]byte(`{"alerts":[{"alertTypeId":1,"name":"Haifa"},{"alertTypeId":99,"name":"Other"}]}`))
	<-ctx.Done()
	return nil
}

func TestClient_OpenStreamUsesRealTimeEndpoint(t *testing.T) {
	transport := &oneShotTransport{}
	c := New(Config{BaseURL: "http://agg.test/api", Transport: transport}, nil)

	got := make(chan []alerts.Alert, 1)
	h := c.OpenStream(context.Background(), func(batch []alerts.Alert) { got <- batch }, nil)
	require.NotNil(t, h)
	defer h.Close()

	select {
	case batch := <-got:
		require.Len(t, batch, 1)
		assert.Equal(t, "Haifa", batch[0].Name)
	case <-time.After(2 * time.Second):
		t.Fatal("no batch delivered")
	}
	assert.Equal(t, "http://agg.test/api/v2/alerts/real-time", transport.gotURL)
}

func TestClient_Classification(t *testing.T) {
	c := New(Config{}, nil)
	in := []alerts.Alert{{AlertTypeID: 1}, {AlertTypeID: 3}, {AlertTypeID: 2}}

	assert.True(t, c.IsRelevant(in[0]))
	assert.False(t, c.IsRelevant(in[1]))
	assert.Len(t, c.FilterRelevant(in), 2)
}
