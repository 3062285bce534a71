// Package basestation writes tracker snapshots out in the BaseStation
// SBS CSV format, for interop with existing BaseStation-format tooling.
// It is a read-only side channel off tracker.Snapshot, not a decode
// path of its own.
package basestation

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"go1090/internal/tracker"
)

// Message types (column 1 of the CSV row). This exporter only ever
// emits MSG rows; the others exist so the format is self-documenting.
const (
	TypeSelectionChange = "SEL"
	TypeNewID           = "ID"
	TypeNewAircraft     = "AIR"
	TypeStatusChange    = "STA"
	TypeClick           = "CLK"
	TypeTransmission    = "MSG"
)

// Transmission types (column 2), per the BaseStation protocol.
const (
	TransmissionIDAndCategory   = 1
	TransmissionSurfacePos      = 2
	TransmissionAirbornePos     = 3
	TransmissionAirborneVel     = 4
	TransmissionSurveillanceAlt = 5
	TransmissionSurveillanceID  = 6
	TransmissionAirToAir        = 7
	TransmissionAllCallReply    = 8
)

// Writer emits tracker events as BaseStation CSV rows through an
// io.Writer, typically the active file of a LogRotator.
type Writer struct {
	out        io.Writer
	logger     *logrus.Logger
	sessionID  int
	aircraftID int
}

// New creates a Writer over out. sessionID and aircraftID are constant
// for the life of the process, matching how the BaseStation format
// expects one session per connection.
func New(out io.Writer, logger *logrus.Logger, sessionID, aircraftID int) *Writer {
	return &Writer{out: out, logger: logger, sessionID: sessionID, aircraftID: aircraftID}
}

// WriteSnapshot emits zero or more MSG rows describing the fields
// present on snap, split by BaseStation transmission type the way a
// real BaseStation feed would split them across several messages.
func (w *Writer) WriteSnapshot(snap tracker.Snapshot) error {
	now := time.Now()

	if snap.Callsign != "" {
		if err := w.writeRow(snap, now, TransmissionIDAndCategory, func(row *row) {
			row.Callsign = snap.Callsign
		}); err != nil {
			return err
		}
	}

	if snap.Lat != nil && snap.Lon != nil {
		if err := w.writeRow(snap, now, TransmissionAirbornePos, func(row *row) {
			row.Latitude = fmt.Sprintf("%.6f", *snap.Lat)
			row.Longitude = fmt.Sprintf("%.6f", *snap.Lon)
			if snap.Altitude != nil {
				row.Altitude = strconv.Itoa(*snap.Altitude)
			}
		}); err != nil {
			return err
		}
	}

	if snap.GroundSpeed != nil && snap.Heading != nil {
		if err := w.writeRow(snap, now, TransmissionAirborneVel, func(row *row) {
			row.GroundSpeed = strconv.Itoa(*snap.GroundSpeed)
			row.Track = fmt.Sprintf("%.1f", *snap.Heading)
			if snap.VerticalRate != nil {
				row.VerticalRate = strconv.Itoa(*snap.VerticalRate)
			}
		}); err != nil {
			return err
		}
	}

	if snap.Squawk != nil {
		if err := w.writeRow(snap, now, TransmissionSurveillanceID, func(r *row) {
			r.Squawk = *snap.Squawk
		}); err != nil {
			return err
		}
	}

	return nil
}

// row holds the mutable CSV columns for one message; the identity
// columns are filled in by writeRow.
type row struct {
	Callsign     string
	Altitude     string
	GroundSpeed  string
	Track        string
	Latitude     string
	Longitude    string
	VerticalRate string
	Squawk       string
}

func (w *Writer) writeRow(snap tracker.Snapshot, now time.Time, transmissionType int, fill func(*row)) error {
	r := &row{}
	fill(r)

	fields := []string{
		TypeTransmission,
		strconv.Itoa(transmissionType),
		strconv.Itoa(w.sessionID),
		strconv.Itoa(w.aircraftID),
		snap.ICAO,
		strconv.Itoa(w.aircraftID),
		now.Format("2006/01/02"),
		now.Format("15:04:05.000"),
		now.Format("2006/01/02"),
		now.Format("15:04:05.000"),
		r.Callsign,
		r.Altitude,
		r.GroundSpeed,
		r.Track,
		r.Latitude,
		r.Longitude,
		r.VerticalRate,
		r.Squawk,
		"", "", "", "", // alert, emergency, SPI, on-ground: not tracked
	}

	line := strings.Join(fields, ",") + "\n"
	if _, err := w.out.Write([]byte(line)); err != nil {
		return fmt.Errorf("write basestation row: %w", err)
	}
	return nil
}
