package services

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"

	"github.com/redalert-desktop/redalert/internal/alerts"
)

type fakeCall struct {
	URL    string
	Params url.Values
}

type fakeResponse struct {
	env alerts.RawEnvelope
	err error
}

// fakeRequester answers calls in order; the last response repeats
type fakeRequester struct {
	mu        sync.Mutex
	calls     []fakeCall
	responses []fakeResponse
}

func (f *fakeRequester) respond(success bool, payload string, err error) *fakeRequester {
	var raw json.RawMessage
	if payload != "" {
		raw = json.RawMessage(payload)
	}
	f.responses = append(f.responses, fakeResponse{env: alerts.RawEnvelope{Success: success, Payload: raw}, err: err})
	return f
}

func (f *fakeRequester) Request(_ context.Context, rawURL string, params url.Values) (alerts.RawEnvelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	copied := url.Values{}
	for k, v := range params {
		copied[k] = append([]string(nil), v...)
	}
	f.calls = append(f.calls, fakeCall{URL: rawURL, Params: copied})

	if len(f.responses) == 0 {
		return alerts.RawEnvelope{Success: true}, nil
	}
	idx := len(f.calls) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	r := f.responses[idx]
	return r.env, r.err
}

func (f *fakeRequester) lastCall() fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}
