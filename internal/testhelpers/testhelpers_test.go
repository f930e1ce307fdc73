package testhelpers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redalert-desktop/redalert/internal/alerts"
)

func TestAlertBuilder(t *testing.T) {
	at := time.Date(2024, 10, 7, 6, 30, 0, 0, time.UTC)
	a := NewAlertBuilder().
		WithType(alerts.AlertTypeUAV).
		WithPlace("חיפה", "Haifa").
		WithArea("מפרץ", "Bay").
		At(at).
		Build()

	assert.Equal(t, alerts.AlertTypeUAV, a.AlertTypeID)
	assert.Equal(t, "Haifa", a.EnglishName)
	assert.Equal(t, "Bay", a.AreaNameEn)
	assert.Equal(t, "2024-10-07 06:30:00", a.TimeStamp)
	assert.True(t, NewAlertBuilder().KeepAlive().Build().IsKeepAlive())
}

func TestStreamMessage(t *testing.T) {
	data := StreamMessage(t, NewAlertBuilder().Build())

	var msg alerts.StreamMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	require.Len(t, msg.Alerts, 1)
	assert.Equal(t, "Sderot", msg.Alerts[0].EnglishName)
}

func TestHTTPTestContext(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"auth": r.Header.Get("Authorization")})
	})

	var body map[string]string
	NewHTTPTestContext(t, http.MethodGet, "/health", nil).
		WithBearerToken("abc").
		Execute(handler).
		AssertStatus(http.StatusOK).
		AssertHeader("Content-Type", "application/json").
		AssertBodyContains("Bearer abc").
		DecodeJSON(&body)
	assert.Equal(t, "Bearer abc", body["auth"])
}

func TestMustCompleteWithin(t *testing.T) {
	ran := false
	MustCompleteWithin(t, time.Second, func() { ran = true })
	assert.True(t, ran)
}
