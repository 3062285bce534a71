package history

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	store, err := Open(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestSaveSightingInsertsAndUpserts(t *testing.T) {
	store := openTestStore(t)
	now := time.Now().UTC()

	sighting := Sighting{
		ICAO: "4840D6", Callsign: "KLM1023",
		Lat: floatPtr(52.0), Lon: floatPtr(4.5), AltitudeFt: intPtr(35000),
		SeenAt: now,
	}
	require.NoError(t, store.SaveSighting(sighting))
	require.NoError(t, store.SaveSighting(sighting))

	positions, err := store.PositionsByICAO("4840D6")
	require.NoError(t, err)
	assert.Len(t, positions, 2)

	icaos, err := store.RecentICAOs(1)
	require.NoError(t, err)
	assert.Contains(t, icaos, "4840D6")
}

func TestPositionsGroupsByRoundedLatLonDescendingByCount(t *testing.T) {
	store := openTestStore(t)
	now := time.Now()

	// Two sightings in the same 0.01-degree cell, one elsewhere.
	require.NoError(t, store.SaveSighting(Sighting{ICAO: "AAAAAA", Lat: floatPtr(52.001), Lon: floatPtr(4.001), SeenAt: now}))
	require.NoError(t, store.SaveSighting(Sighting{ICAO: "AAAAAA", Lat: floatPtr(52.004), Lon: floatPtr(4.004), SeenAt: now}))
	require.NoError(t, store.SaveSighting(Sighting{ICAO: "BBBBBB", Lat: floatPtr(10.0), Lon: floatPtr(20.0), SeenAt: now}))
	require.NoError(t, store.SaveSighting(Sighting{ICAO: "CCCCCC", SeenAt: now})) // no position, excluded

	densities, err := store.Positions(1, 10)
	require.NoError(t, err)
	require.Len(t, densities, 2)
	assert.Equal(t, 2, densities[0].Count)
	assert.InDelta(t, 52.0, densities[0].Lat, 0.01)
	assert.InDelta(t, 4.0, densities[0].Lon, 0.01)
	assert.Equal(t, 1, densities[1].Count)
}

func TestAircraftHistoryOrdersNewestFirst(t *testing.T) {
	store := openTestStore(t)
	base := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.SaveSighting(Sighting{
			ICAO:   "ABCDEF",
			SeenAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	hist, err := store.AircraftHistory("ABCDEF", 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.True(t, hist[0].SeenAt.After(hist[1].SeenAt))
}

func TestRecentICAOsExcludesStaleAircraft(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.SaveSighting(Sighting{ICAO: "111111", SeenAt: time.Now().Add(-3 * time.Hour)}))
	require.NoError(t, store.SaveSighting(Sighting{ICAO: "222222", SeenAt: time.Now()}))

	icaos, err := store.RecentICAOs(2)
	require.NoError(t, err)
	assert.NotContains(t, icaos, "111111")
	assert.Contains(t, icaos, "222222")
}

func TestCoverageAnalysisBucketsBySectorAndRange(t *testing.T) {
	store := openTestStore(t)
	rxLat, rxLon := 52.0, 4.5

	// Due north of the receiver, roughly 60nm out.
	northLat := rxLat + 1.0
	require.NoError(t, store.SaveSighting(Sighting{
		ICAO: "N00001", Lat: floatPtr(northLat), Lon: floatPtr(rxLon), AltitudeFt: intPtr(15000),
		SeenAt: time.Now(),
	}))

	analysis, err := store.CoverageAnalysis(rxLat, rxLon, 1)
	require.NoError(t, err)
	assert.Greater(t, analysis.MaxRangeNM, 0.0)
	require.Len(t, analysis.BySector, 8)
	assert.Equal(t, 0, analysis.BySector[0].Sector)
	require.Len(t, analysis.ByAltitudeBand, 5)
	require.NotEmpty(t, analysis.Top)
}

func TestBusiestHoursDescendingOrder(t *testing.T) {
	store := openTestStore(t)
	now := time.Now()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.SaveSighting(Sighting{ICAO: "333333", SeenAt: now}))
	}
	require.NoError(t, store.SaveSighting(Sighting{ICAO: "444444", SeenAt: now.Add(-time.Hour)}))

	hours, err := store.BusiestHours(1)
	require.NoError(t, err)
	require.Len(t, hours, 24)
	assert.GreaterOrEqual(t, hours[0].Count, hours[1].Count)
}
