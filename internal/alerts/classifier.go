package alerts

// IsRelevant reports whether the alert is a rocket or UAV alert
func IsRelevant(a Alert) bool {
	return a.AlertTypeID == AlertTypeRockets || a.AlertTypeID == AlertTypeUAV
}

// FilterRelevant returns the relevant alerts in input order.
// The result never aliases the input slice.
func FilterRelevant(in []Alert) []Alert {
	out := make([]Alert, 0, len(in))
	for _, a := range in {
		if IsRelevant(a) {
			out = append(out, a)
		}
	}
	return out
}

// Flatten concatenates group alerts, group order first, then in-group order
func Flatten(groups []AlertGroup) []Alert {
	var n int
	for _, g := range groups {
		n += len(g.Alerts)
	}
	out := make([]Alert, 0, n)
	for _, g := range groups {
		out = append(out, g.Alerts...)
	}
	return out
}

// DedupeByLocation keeps the first alert seen for each EnglishName
func DedupeByLocation(in []Alert) []Alert {
	seen := make(map[string]struct{}, len(in))
	out := make([]Alert, 0, len(in))
	for _, a := range in {
		if _, ok := seen[a.EnglishName]; ok {
			continue
		}
		seen[a.EnglishName] = struct{}{}
		out = append(out, a)
	}
	return out
}
