package basestation

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go1090/internal/tracker"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }
func strPtr(v string) *string     { return &v }

func TestWriteSnapshotEmitsOneRowPerFieldGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	w := New(&buf, logger, 1, 1)

	snap := tracker.Snapshot{
		ICAO:        "4840D6",
		Callsign:    "KLM1023",
		Lat:         floatPtr(52.1),
		Lon:         floatPtr(4.5),
		Altitude:    intPtr(35000),
		GroundSpeed: intPtr(450),
		Heading:     floatPtr(270.0),
		Squawk:      strPtr("7000"),
	}

	require.NoError(t, w.WriteSnapshot(snap))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	for _, line := range lines {
		fields := strings.Split(line, ",")
		assert.Equal(t, TypeTransmission, fields[0])
		assert.Equal(t, "4840D6", fields[4])
	}
}

func TestWriteSnapshotSkipsAbsentFieldGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	w := New(&buf, logger, 1, 1)

	snap := tracker.Snapshot{ICAO: "ABCDEF"}
	require.NoError(t, w.WriteSnapshot(snap))

	assert.Empty(t, buf.String())
}

func TestWriteSnapshotPositionRowHasLatLonAltitude(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	w := New(&buf, logger, 2, 5)

	snap := tracker.Snapshot{
		ICAO:     "112233",
		Lat:      floatPtr(51.5),
		Lon:      floatPtr(-0.1),
		Altitude: intPtr(10000),
	}
	require.NoError(t, w.WriteSnapshot(snap))

	assert.Contains(t, buf.String(), "51.500000")
	assert.Contains(t, buf.String(), "-0.100000")
	assert.Contains(t, buf.String(), "10000")
}
