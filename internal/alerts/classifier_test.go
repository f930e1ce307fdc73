package alerts

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomAlerts(r *rand.Rand, n int) []Alert {
	out := make([]Alert, n)
	for i := range out {
		out[i] = Alert{
			AlertTypeID: AlertTypeID(r.Intn(6)),
			Name:        fmt.Sprintf("place-%d", r.Intn(8)),
			EnglishName: fmt.Sprintf("Place %d", r.Intn(8)),
			TimeStamp:   fmt.Sprintf("2024-10-07 06:%02d:00", i%60),
		}
	}
	return out
}

func TestIsRelevant(t *testing.T) {
	tests := []struct {
		typeID   AlertTypeID
		expected bool
	}{
		{AlertTypeAll, false},
		{AlertTypeRockets, true},
		{AlertTypeUAV, true},
		{3, false},
		{99, false},
		{-1, false},
	}

	for _, tt := range tests {
		t.Run(tt.typeID.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRelevant(Alert{AlertTypeID: tt.typeID}))
		})
	}
}

func TestFilterRelevant_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		in := randomAlerts(r, r.Intn(40))
		out := FilterRelevant(in)

		for _, a := range out {
			require.True(t, a.AlertTypeID == AlertTypeRockets || a.AlertTypeID == AlertTypeUAV)
		}

		// idempotent
		require.Equal(t, out, FilterRelevant(out))

		// order preserving subsequence of the input
		j := 0
		for _, a := range in {
			if j < len(out) && a == out[j] {
				j++
			}
		}
		require.Equal(t, len(out), j, "kept alerts must appear in input order")

		var want int
		for _, a := range in {
			if IsRelevant(a) {
				want++
			}
		}
		require.Len(t, out, want)
	}
}

func TestFilterRelevant_DoesNotAliasInput(t *testing.T) {
	in := []Alert{{AlertTypeID: AlertTypeRockets, EnglishName: "Haifa"}}
	out := FilterRelevant(in)
	out[0].EnglishName = "changed"
	assert.Equal(t, "Haifa", in[0].EnglishName)
}

func TestFilterRelevant_Empty(t *testing.T) {
	assert.Empty(t, FilterRelevant(nil))
	assert.NotNil(t, FilterRelevant(nil))
}

func TestFlatten_PreservesGroupThenItemOrder(t *testing.T) {
	groups := []AlertGroup{
		{Alerts: []Alert{{EnglishName: "A"}, {EnglishName: "B"}}},
		{},
		{Alerts: []Alert{{EnglishName: "C"}}},
	}

	flat := Flatten(groups)
	require.Len(t, flat, 3)
	assert.Equal(t, "A", flat[0].EnglishName)
	assert.Equal(t, "B", flat[1].EnglishName)
	assert.Equal(t, "C", flat[2].EnglishName)
}

func TestDedupeByLocation_FirstSeenWins(t *testing.T) {
	in := []Alert{
		{EnglishName: "Tel Aviv", TimeStamp: "first", AlertTypeID: AlertTypeRockets},
		{EnglishName: "Haifa"},
		{EnglishName: "Tel Aviv", TimeStamp: "second", AlertTypeID: AlertTypeUAV},
	}

	out := DedupeByLocation(in)
	require.Len(t, out, 2)
	assert.Equal(t, "Tel Aviv", out[0].EnglishName)
	assert.Equal(t, "first", out[0].TimeStamp)
	assert.Equal(t, "Haifa", out[1].EnglishName)
}
