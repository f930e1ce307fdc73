package services

// ErrorMode declares how an operation reports upstream failures
type ErrorMode string

const (
	// FailLoud operations log and return gateway errors to the caller
	FailLoud ErrorMode = "fail-loud"
	// FailQuiet operations log every failure and return an empty result
	FailQuiet ErrorMode = "fail-quiet"
)

// OperationErrorModes is the error contract of every query operation.
// The quiet ones back continuously polled dashboard surfaces.
var OperationErrorModes = map[string]ErrorMode{
	"GetDetailedAlerts":        FailLoud,
	"GetTotalAlertsByDay":      FailLoud,
	"GetTotalAlerts":           FailLoud,
	"GetMostTargetedLocations": FailLoud,
	"GetMostTargetedRegions":   FailLoud,
	"GetMostRecentAlert":       FailLoud,
	"GetMostRecentAlerts":      FailQuiet,
	"GetRealTimeAlertCache":    FailQuiet,
}
