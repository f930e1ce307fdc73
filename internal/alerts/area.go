package alerts

import "strings"

// AreaFilter matches alerts against a set of monitored place names.
// An empty filter matches every alert.
type AreaFilter struct {
	areas map[string]struct{}
}

// NewAreaFilter builds a filter from place names in either language
func NewAreaFilter(areas []string) *AreaFilter {
	f := &AreaFilter{areas: make(map[string]struct{}, len(areas))}
	for _, area := range areas {
		key := normalizeArea(area)
		if key == "" {
			continue
		}
		f.areas[key] = struct{}{}
	}
	return f
}

// Empty reports whether no areas are monitored
func (f *AreaFilter) Empty() bool {
	return f == nil || len(f.areas) == 0
}

// Len returns the number of monitored areas
func (f *AreaFilter) Len() int {
	if f == nil {
		return 0
	}
	return len(f.areas)
}

// Match reports whether the alert's place is monitored
func (f *AreaFilter) Match(a Alert) bool {
	if f.Empty() {
		return true
	}
	for _, name := range []string{a.Name, a.EnglishName} {
		if _, ok := f.areas[normalizeArea(name)]; ok {
			return true
		}
	}
	return false
}

// Filter returns the monitored alerts in input order
func (f *AreaFilter) Filter(in []Alert) []Alert {
	out := make([]Alert, 0, len(in))
	for _, a := range in {
		if f.Match(a) {
			out = append(out, a)
		}
	}
	return out
}

func normalizeArea(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
