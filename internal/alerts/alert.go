package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// AlertTypeID discriminates the kind of incident an alert describes
type AlertTypeID int

const (
	// AlertTypeAll is a query-time wildcard. It never appears on a real alert
	// and is never sent upstream.
	AlertTypeAll AlertTypeID = 0
	// AlertTypeRockets marks rocket and missile fire
	AlertTypeRockets AlertTypeID = 1
	// AlertTypeUAV marks hostile aircraft intrusion
	AlertTypeUAV AlertTypeID = 2
)

// String returns a readable name for the alert type
func (t AlertTypeID) String() string {
	switch t {
	case AlertTypeAll:
		return "all"
	case AlertTypeRockets:
		return "rockets"
	case AlertTypeUAV:
		return "uav"
	default:
		return fmt.Sprintf("other(%d)", int(t))
	}
}

// KeepAliveName is carried in the name field of synthetic heartbeat messages
// on the live stream.
const KeepAliveName = "KEEP_ALIVE"

// TimestampLayout is the layout upstream uses for Alert.TimeStamp
const TimestampLayout = "2006-01-02 15:04:05"

// Alert is a single detected event as reported upstream.
// Alerts are values: they are filtered and copied, never mutated.
type Alert struct {
	AlertTypeID  AlertTypeID `json:"alertTypeId"`
	Name         string      `json:"name"`
	EnglishName  string      `json:"englishName"`
	TimeStamp    string      `json:"timeStamp"`
	AreaNameHe   string      `json:"areaNameHe,omitempty"`
	AreaNameEn   string      `json:"areaNameEn,omitempty"`
	Lat          float64     `json:"lat,omitempty"`
	Lon          float64     `json:"lon,omitempty"`
	TaCityID     int         `json:"taCityId,omitempty"`
	CountdownSec int         `json:"countdownSec,omitempty"`
}

// IsKeepAlive reports whether the alert is a stream heartbeat
func (a Alert) IsKeepAlive() bool {
	return a.Name == KeepAliveName
}

// IssuedAt parses TimeStamp in the given location. Upstream reports local
// Israel time without an offset.
func (a Alert) IssuedAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(TimestampLayout, a.TimeStamp, loc)
}

// DayBucket groups the alerts of one calendar day
type DayBucket struct {
	Date   string  `json:"date"`
	Alerts []Alert `json:"alerts"`
}

// AlertGroup is one element of the real-time cache snapshot.
// Upstream sends either {"alerts": [...]} or a bare array; both decode here.
type AlertGroup struct {
	Alerts []Alert `json:"alerts"`
}

// UnmarshalJSON accepts both group shapes
func (g *AlertGroup) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &g.Alerts)
	}
	var obj struct {
		Alerts []Alert `json:"alerts"`
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return err
	}
	g.Alerts = obj.Alerts
	return nil
}

// StreamMessage is the JSON body of one live stream event
type StreamMessage struct {
	Alerts []Alert `json:"alerts"`
}

// Envelope is the response wrapper shared by every request/response endpoint
type Envelope[T any] struct {
	Success    bool   `json:"success"`
	Payload    T      `json:"payload"`
	IncidentID string `json:"incidentId,omitempty"`
}

// RawEnvelope keeps the payload undecoded
type RawEnvelope = Envelope[json.RawMessage]

// DecodeEnvelope converts a raw envelope into a typed one. A missing or null
// payload leaves the zero value, which is what a degraded envelope carries.
func DecodeEnvelope[T any](raw RawEnvelope) (Envelope[T], error) {
	out := Envelope[T]{Success: raw.Success, IncidentID: raw.IncidentID}
	payload := bytes.TrimSpace(raw.Payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return out, nil
	}
	if err := json.Unmarshal(payload, &out.Payload); err != nil {
		return out, fmt.Errorf("failed to decode envelope payload: %w", err)
	}
	return out, nil
}
