package services

import "strings"

// DefaultBaseURL is the aggregation service root
const DefaultBaseURL = "https://agg.rocketalert.live/api"

// Endpoints resolves the versioned upstream paths from one base URL
type Endpoints struct {
	v1 string
	v2 string
}

// NewEndpoints builds endpoints under base. An empty base uses DefaultBaseURL.
func NewEndpoints(base string) Endpoints {
	base = strings.TrimRight(base, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return Endpoints{v1: base + "/v1", v2: base + "/v2"}
}

// Details is the per-day detailed alerts endpoint
func (e Endpoints) Details() string { return e.v1 + "/alerts/details" }

// Daily is the per-day totals endpoint
func (e Endpoints) Daily() string { return e.v1 + "/alerts/daily" }

// Total is the range totals endpoint
func (e Endpoints) Total() string { return e.v1 + "/alerts/total" }

// Latest is the single most recent alert endpoint
func (e Endpoints) Latest() string { return e.v1 + "/alerts/latest" }

// TopPlace is the most targeted places endpoint
func (e Endpoints) TopPlace() string { return e.v1 + "/alerts/top/place" }

// TopArea is the most targeted regions endpoint
func (e Endpoints) TopArea() string { return e.v1 + "/alerts/top/area" }

// RealTimeCached is the active alerts snapshot endpoint
func (e Endpoints) RealTimeCached() string { return e.v2 + "/alerts/real-time/cached" }

// RealTime is the server-push stream endpoint
func (e Endpoints) RealTime() string { return e.v2 + "/alerts/real-time" }
