// Package history persists aircraft sightings to SQLite and serves the
// aggregate queries (recent ICAOs for short-frame recovery, coverage by
// bearing, busiest hours) that the live tracker state cannot answer on
// its own.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"go1090/internal/geo"
)

const schema = `
CREATE TABLE IF NOT EXISTS aircraft (
	icao TEXT PRIMARY KEY,
	callsign TEXT,
	first_seen TIMESTAMP NOT NULL,
	last_seen TIMESTAMP NOT NULL,
	sighting_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sightings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	icao TEXT NOT NULL,
	callsign TEXT,
	lat REAL,
	lon REAL,
	altitude_ft INTEGER,
	ground_speed_kt INTEGER,
	heading_deg REAL,
	squawk TEXT,
	signal_strength REAL,
	seen_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sightings_icao ON sightings(icao);
CREATE INDEX IF NOT EXISTS idx_sightings_seen_at ON sightings(seen_at);
CREATE INDEX IF NOT EXISTS idx_sightings_icao_seen_at ON sightings(icao, seen_at);
CREATE INDEX IF NOT EXISTS idx_sightings_lat_lon ON sightings(lat, lon);
CREATE INDEX IF NOT EXISTS idx_sightings_seen_at_lat_lon ON sightings(seen_at, lat, lon) WHERE lat IS NOT NULL AND lon IS NOT NULL;
`

// Store is a single long-lived handle onto the SQLite database, safe for
// concurrent use by multiple goroutines (the pool holds a single connection,
// so every statement from this process, read or write, runs one at a time;
// WAL mode only lets other connections read alongside a writer).
type Store struct {
	db     *sql.DB
	logger *logrus.Logger
}

// Open creates or migrates the database at path with WAL mode enabled and a
// single pooled connection, so this process's reads and writes are serialized.
func Open(path string, logger *logrus.Logger) (*Store, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // go-sqlite3 serializes writers regardless; keep it explicit

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Sighting is one row to persist: a snapshot of an aircraft at a moment.
type Sighting struct {
	ICAO           string
	Callsign       string
	Lat, Lon       *float64
	AltitudeFt     *int
	GroundSpeedKt  *int
	HeadingDeg     *float64
	Squawk         string
	SignalStrength *float64
	SeenAt         time.Time
}

// SaveSighting performs the aircraft upsert and inserts a sighting row.
// The upsert is update-then-insert-then-retry rather than a dialect
// upsert, so transient unique-constraint races resolve by falling back
// to UPDATE.
func (s *Store) SaveSighting(sighting Sighting) error {
	if err := s.upsertAircraft(sighting); err != nil {
		return fmt.Errorf("upsert aircraft %s: %w", sighting.ICAO, err)
	}

	_, err := s.db.Exec(
		`INSERT INTO sightings (icao, callsign, lat, lon, altitude_ft, ground_speed_kt, heading_deg, squawk, signal_strength, seen_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sighting.ICAO, sighting.Callsign, sighting.Lat, sighting.Lon, sighting.AltitudeFt,
		sighting.GroundSpeedKt, sighting.HeadingDeg, sighting.Squawk, sighting.SignalStrength, sighting.SeenAt,
	)
	if err != nil {
		return fmt.Errorf("insert sighting %s: %w", sighting.ICAO, err)
	}
	return nil
}

func (s *Store) upsertAircraft(sighting Sighting) error {
	res, err := s.db.Exec(
		`UPDATE aircraft
		 SET last_seen = ?,
		     callsign = CASE WHEN ? != '' THEN ? ELSE callsign END,
		     sighting_count = sighting_count + 1
		 WHERE icao = ?`,
		sighting.SeenAt, sighting.Callsign, sighting.Callsign, sighting.ICAO,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	_, err = s.db.Exec(
		`INSERT INTO aircraft (icao, callsign, first_seen, last_seen, sighting_count) VALUES (?, ?, ?, ?, 1)`,
		sighting.ICAO, sighting.Callsign, sighting.SeenAt, sighting.SeenAt,
	)
	if err == nil {
		return nil
	}

	// Another writer inserted the row between our UPDATE and INSERT; retry
	// the update rather than surfacing a unique-constraint error.
	_, retryErr := s.db.Exec(
		`UPDATE aircraft
		 SET last_seen = ?,
		     callsign = CASE WHEN ? != '' THEN ? ELSE callsign END,
		     sighting_count = sighting_count + 1
		 WHERE icao = ?`,
		sighting.SeenAt, sighting.Callsign, sighting.Callsign, sighting.ICAO,
	)
	if retryErr != nil {
		return fmt.Errorf("insert failed (%v), retry update failed: %w", err, retryErr)
	}
	return nil
}

// RecentICAOs returns ICAOs seen within the trailing window, for use as
// a short-frame ICAO-recovery candidate source.
func (s *Store) RecentICAOs(hours float64) ([]string, error) {
	since := time.Now().Add(-time.Duration(hours * float64(time.Hour)))
	rows, err := s.db.Query(`SELECT icao FROM aircraft WHERE last_seen > ?`, since)
	if err != nil {
		return nil, fmt.Errorf("query recent icaos: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var icao string
		if err := rows.Scan(&icao); err != nil {
			return nil, err
		}
		out = append(out, icao)
	}
	return out, rows.Err()
}

// PositionsByICAO returns every positioned sighting for an ICAO in
// chronological order.
func (s *Store) PositionsByICAO(icao string) ([]Sighting, error) {
	rows, err := s.db.Query(
		`SELECT icao, callsign, lat, lon, altitude_ft, ground_speed_kt, heading_deg, squawk, signal_strength, seen_at
		 FROM sightings WHERE icao = ? AND lat IS NOT NULL ORDER BY seen_at ASC`,
		icao,
	)
	if err != nil {
		return nil, fmt.Errorf("query positions by icao: %w", err)
	}
	defer rows.Close()
	return scanSightings(rows)
}

// PositionDensity is one grouped cell of the Positions aggregate: every
// sighting in the window that rounds to the same (lat, lon) at 2 decimal
// places, with its count.
type PositionDensity struct {
	Lat   float64
	Lon   float64
	Count int
}

// Positions groups every positioned sighting within the trailing window
// of hours into 0.01-degree lat/lon cells and returns the busiest cells
// first, capped at limit.
func (s *Store) Positions(hours float64, limit int) ([]PositionDensity, error) {
	since := time.Now().Add(-time.Duration(hours * float64(time.Hour)))
	rows, err := s.db.Query(
		`SELECT ROUND(lat, 2) AS glat, ROUND(lon, 2) AS glon, COUNT(*) AS n
		 FROM sightings
		 WHERE lat IS NOT NULL AND lon IS NOT NULL AND seen_at > ?
		 GROUP BY glat, glon
		 ORDER BY n DESC
		 LIMIT ?`,
		since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query position density: %w", err)
	}
	defer rows.Close()

	var out []PositionDensity
	for rows.Next() {
		var d PositionDensity
		if err := rows.Scan(&d.Lat, &d.Lon, &d.Count); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// AircraftHistory returns the most recent limit sightings for an ICAO,
// newest first.
func (s *Store) AircraftHistory(icao string, limit int) ([]Sighting, error) {
	rows, err := s.db.Query(
		`SELECT icao, callsign, lat, lon, altitude_ft, ground_speed_kt, heading_deg, squawk, signal_strength, seen_at
		 FROM sightings WHERE icao = ? ORDER BY seen_at DESC LIMIT ?`,
		icao, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query aircraft history: %w", err)
	}
	defer rows.Close()
	return scanSightings(rows)
}

func scanSightings(rows *sql.Rows) ([]Sighting, error) {
	var out []Sighting
	for rows.Next() {
		var sg Sighting
		if err := rows.Scan(&sg.ICAO, &sg.Callsign, &sg.Lat, &sg.Lon, &sg.AltitudeFt,
			&sg.GroundSpeedKt, &sg.HeadingDeg, &sg.Squawk, &sg.SignalStrength, &sg.SeenAt); err != nil {
			return nil, err
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}

// altitudeBandEdges are the fixed altitude-band boundaries in feet; the
// last band absorbs everything at or above 40000.
var altitudeBandEdges = []int{10000, 20000, 30000, 40000}

const (
	rangeBucketWidthNM = 10
	rangeBucketCount   = 30
)

// BearingSectorStats is the per-sector maximum observed range.
type BearingSectorStats struct {
	Sector    int
	MaxRangeNM float64
	Count      int
}

// AltitudeBandStats is the per-altitude-band sighting count and average range.
type AltitudeBandStats struct {
	Label      string
	Count      int
	AvgRangeNM float64
}

// TopRecord is one of the furthest sightings recorded by CoverageAnalysis.
type TopRecord struct {
	ICAO      string
	RangeNM   float64
	BearingDeg float64
	AltitudeFt int
	SeenAt    time.Time
}

// CoverageAnalysis projects every positioned sighting in the trailing
// window onto (distance, bearing, altitude) relative to rxLat/rxLon and
// summarizes reception coverage; signal strength is not read.
type CoverageAnalysis struct {
	MaxRangeNM     float64
	AvgRangeNM     float64
	Top            []TopRecord
	BySector       []BearingSectorStats
	ByAltitudeBand []AltitudeBandStats
	RangeHistogram [rangeBucketCount]int
}

// CoverageAnalysis computes a CoverageAnalysis over sightings within the
// trailing window of hours, relative to the given receiver position.
func (s *Store) CoverageAnalysis(rxLat, rxLon float64, hours float64) (CoverageAnalysis, error) {
	since := time.Now().Add(-time.Duration(hours * float64(time.Hour)))
	rows, err := s.db.Query(
		`SELECT icao, lat, lon, altitude_ft, seen_at FROM sightings
		 WHERE lat IS NOT NULL AND lon IS NOT NULL AND seen_at > ?`,
		since,
	)
	if err != nil {
		return CoverageAnalysis{}, fmt.Errorf("query coverage sightings: %w", err)
	}
	defer rows.Close()

	sectorMax := make([]float64, 8)
	sectorCount := make([]int, 8)
	bandSum := make([]float64, len(altitudeBandEdges)+1)
	bandCount := make([]int, len(altitudeBandEdges)+1)

	var analysis CoverageAnalysis
	var sumRange float64
	var n int

	for rows.Next() {
		var icao string
		var lat, lon float64
		var altFt sql.NullInt64
		var seenAt time.Time
		if err := rows.Scan(&icao, &lat, &lon, &altFt, &seenAt); err != nil {
			return CoverageAnalysis{}, err
		}

		rangeNM := geo.HaversineNM(rxLat, rxLon, lat, lon)
		bearing := geo.InitialBearing(rxLat, rxLon, lat, lon)
		sector := geo.BearingSector(bearing)

		n++
		sumRange += rangeNM
		if rangeNM > analysis.MaxRangeNM {
			analysis.MaxRangeNM = rangeNM
		}

		if rangeNM > sectorMax[sector] {
			sectorMax[sector] = rangeNM
		}
		sectorCount[sector]++

		bucket := int(rangeNM / rangeBucketWidthNM)
		if bucket >= rangeBucketCount {
			bucket = rangeBucketCount - 1
		}
		analysis.RangeHistogram[bucket]++

		alt := 0
		if altFt.Valid {
			alt = int(altFt.Int64)
		}
		band := altitudeBandIndex(alt)
		bandSum[band] += rangeNM
		bandCount[band]++

		analysis.Top = append(analysis.Top, TopRecord{
			ICAO: icao, RangeNM: rangeNM, BearingDeg: bearing, AltitudeFt: alt, SeenAt: seenAt,
		})
	}
	if err := rows.Err(); err != nil {
		return CoverageAnalysis{}, err
	}

	if n > 0 {
		analysis.AvgRangeNM = sumRange / float64(n)
	}

	for sector := 0; sector < 8; sector++ {
		analysis.BySector = append(analysis.BySector, BearingSectorStats{
			Sector: sector, MaxRangeNM: sectorMax[sector], Count: sectorCount[sector],
		})
	}
	for band, label := range altitudeBandLabels() {
		avg := 0.0
		if bandCount[band] > 0 {
			avg = bandSum[band] / float64(bandCount[band])
		}
		analysis.ByAltitudeBand = append(analysis.ByAltitudeBand, AltitudeBandStats{
			Label: label, Count: bandCount[band], AvgRangeNM: avg,
		})
	}

	sortTopDescending(analysis.Top)
	if len(analysis.Top) > 10 {
		analysis.Top = analysis.Top[:10]
	}

	return analysis, nil
}

func altitudeBandIndex(altFt int) int {
	for i, edge := range altitudeBandEdges {
		if altFt < edge {
			return i
		}
	}
	return len(altitudeBandEdges)
}

func altitudeBandLabels() []string {
	return []string{"0-10k", "10-20k", "20-30k", "30-40k", "40k+"}
}

func sortTopDescending(top []TopRecord) {
	for i := 1; i < len(top); i++ {
		for j := i; j > 0 && top[j].RangeNM > top[j-1].RangeNM; j-- {
			top[j], top[j-1] = top[j-1], top[j]
		}
	}
}

// HourCount is the sighting count for one hour-of-day bucket.
type HourCount struct {
	Hour  int
	Count int
}

// BusiestHours groups sighting counts by hour-of-day over the trailing
// days, descending by count.
func (s *Store) BusiestHours(days int) ([]HourCount, error) {
	since := time.Now().AddDate(0, 0, -days)
	rows, err := s.db.Query(`SELECT seen_at FROM sightings WHERE seen_at > ?`, since)
	if err != nil {
		return nil, fmt.Errorf("query busiest hours: %w", err)
	}
	defer rows.Close()

	var counts [24]int
	for rows.Next() {
		var seenAt time.Time
		if err := rows.Scan(&seenAt); err != nil {
			return nil, err
		}
		counts[seenAt.Hour()]++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]HourCount, 24)
	for h := 0; h < 24; h++ {
		out[h] = HourCount{Hour: h, Count: counts[h]}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Count > out[j-1].Count; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}
