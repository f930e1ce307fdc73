// Package testhelpers provides reusable testing utilities for the daemon.
//
// This package contains:
// - HTTP test helpers for driving handlers through a recorder
// - Builders for alerts and stream payloads
// - Timing helpers
package testhelpers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redalert-desktop/redalert/internal/alerts"
)

// ========================================
// HTTP Test Helpers
// ========================================

// HTTPTestContext holds components for HTTP handler testing
type HTTPTestContext struct {
	T        *testing.T
	Recorder *httptest.ResponseRecorder
	Request  *http.Request
}

// NewHTTPTestContext creates a new HTTP test context
func NewHTTPTestContext(t *testing.T, method, path string, body io.Reader) *HTTPTestContext {
	t.Helper()
	return &HTTPTestContext{
		T:        t,
		Recorder: httptest.NewRecorder(),
		Request:  httptest.NewRequest(method, path, body),
	}
}

// WithHeader adds a header to the request
func (ctx *HTTPTestContext) WithHeader(key, value string) *HTTPTestContext {
	ctx.Request.Header.Set(key, value)
	return ctx
}

// WithJSONBody replaces the request body with v encoded as JSON
func (ctx *HTTPTestContext) WithJSONBody(v interface{}) *HTTPTestContext {
	ctx.T.Helper()
	body, err := json.Marshal(v)
	require.NoError(ctx.T, err, "failed to marshal JSON body")
	ctx.Request = httptest.NewRequest(ctx.Request.Method, ctx.Request.URL.String(), bytes.NewReader(body))
	ctx.Request.Header.Set("Content-Type", "application/json")
	return ctx
}

// WithBearerToken adds Authorization Bearer header
func (ctx *HTTPTestContext) WithBearerToken(token string) *HTTPTestContext {
	return ctx.WithHeader("Authorization", "Bearer "+token)
}

// Execute runs the handler
func (ctx *HTTPTestContext) Execute(handler http.Handler) *HTTPTestContext {
	handler.ServeHTTP(ctx.Recorder, ctx.Request)
	return ctx
}

// AssertStatus checks the response status code
func (ctx *HTTPTestContext) AssertStatus(expected int) *HTTPTestContext {
	ctx.T.Helper()
	assert.Equal(ctx.T, expected, ctx.Recorder.Code, "body: %s", ctx.Recorder.Body.String())
	return ctx
}

// AssertBodyContains checks if response body contains substring
func (ctx *HTTPTestContext) AssertBodyContains(substr string) *HTTPTestContext {
	ctx.T.Helper()
	assert.Contains(ctx.T, ctx.Recorder.Body.String(), substr)
	return ctx
}

// AssertHeader checks response header value
func (ctx *HTTPTestContext) AssertHeader(key, expected string) *HTTPTestContext {
	ctx.T.Helper()
	assert.Equal(ctx.T, expected, ctx.Recorder.Header().Get(key), "header %s", key)
	return ctx
}

// DecodeJSON decodes response body as JSON
func (ctx *HTTPTestContext) DecodeJSON(v interface{}) *HTTPTestContext {
	ctx.T.Helper()
	require.NoError(ctx.T, json.NewDecoder(ctx.Recorder.Body).Decode(v), "failed to decode JSON response")
	return ctx
}

// ========================================
// Alert Builders
// ========================================

// AlertBuilder builds alerts.Alert values with sensible defaults
type AlertBuilder struct {
	alert alerts.Alert
}

// NewAlertBuilder starts a rocket alert for a fixed place and time
func NewAlertBuilder() *AlertBuilder {
	return &AlertBuilder{
		alert: alerts.Alert{
			AlertTypeID: alerts.AlertTypeRockets,
			Name:        "שדרות",
			EnglishName: "Sderot",
			TimeStamp:   "2024-10-01 12:00:00",
			AreaNameHe:  "עוטף עזה",
			AreaNameEn:  "Gaza Envelope",
		},
	}
}

// WithType sets the alert type
func (b *AlertBuilder) WithType(t alerts.AlertTypeID) *AlertBuilder {
	b.alert.AlertTypeID = t
	return b
}

// WithPlace sets the Hebrew and English place names
func (b *AlertBuilder) WithPlace(name, englishName string) *AlertBuilder {
	b.alert.Name = name
	b.alert.EnglishName = englishName
	return b
}

// WithArea sets the Hebrew and English area names
func (b *AlertBuilder) WithArea(he, en string) *AlertBuilder {
	b.alert.AreaNameHe = he
	b.alert.AreaNameEn = en
	return b
}

// At sets the issue time, formatted the way upstream does
func (b *AlertBuilder) At(t time.Time) *AlertBuilder {
	b.alert.TimeStamp = t.Format(alerts.TimestampLayout)
	return b
}

// KeepAlive turns the alert into a stream heartbeat
func (b *AlertBuilder) KeepAlive() *AlertBuilder {
	b.alert.Name = alerts.KeepAliveName
	return b
}

// Build returns the alert
func (b *AlertBuilder) Build() alerts.Alert {
	return b.alert
}

// StreamMessage encodes alerts as one live stream event body
func StreamMessage(t *testing.T, batch ...alerts.Alert) []byte {
	t.Helper()
	data, err := json.Marshal(alerts.StreamMessage{Alerts: batch})
	require.NoError(t, err)
	return data
}

// ========================================
// Timing Helpers
// ========================================

// MustCompleteWithin fails the test if the function takes longer than the timeout
func MustCompleteWithin(t *testing.T, timeout time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatalf("function did not complete within %v", timeout)
	}
}
