package adsb

import (
	"math"
	"time"
)

// NL returns the number of longitude zones for a given latitude, per the
// CPR specification. NL is evaluated from the closed-form expression
// rather than a latitude-breakpoint table so it stays a pure, testable
// function independent of any lookup data.
func NL(lat float64) int {
	absLat := math.Abs(lat)
	if absLat >= 87.0 {
		return 1
	}
	cosTerm := 1 - (1-math.Cos(math.Pi/(2*CPRZones)))/(math.Cos(math.Pi*absLat/180)*math.Cos(math.Pi*absLat/180))
	if cosTerm < -1 {
		cosTerm = -1
	}
	if cosTerm > 1 {
		cosTerm = 1
	}
	nl := int(math.Floor(2 * math.Pi / math.Acos(cosTerm)))
	if nl < 1 {
		nl = 1
	}
	if nl > 59 {
		nl = 59
	}
	return nl
}

func cprMod(a, b int) int {
	r := a % b
	if r < 0 {
		r += b
	}
	return r
}

// CPRFrame is one half of an even/odd CPR pair, as cached by the
// tracker.
type CPRFrame struct {
	LatCPR    uint32
	LonCPR    uint32
	Timestamp time.Time
}

// GlobalDecode resolves an even/odd CPR pair into a WGS-84 lat/lon. Both
// frames must be fresh relative to each other within CPRFrameMaxAgeSec;
// the caller is responsible for that check (the tracker enforces it
// before calling in). ok is false if the pair straddles a latitude zone
// boundary or produces an out-of-range latitude.
func GlobalDecode(even, odd CPRFrame) (lat, lon float64, ok bool) {
	lat0 := float64(even.LatCPR) / CPRMax
	lat1 := float64(odd.LatCPR) / CPRMax
	lon0 := float64(even.LonCPR) / CPRMax
	lon1 := float64(odd.LonCPR) / CPRMax

	j := int(math.Floor(59*lat0 - 60*lat1 + 0.5))

	latEven := DLatEven * (float64(cprMod(j, 60)) + lat0)
	latOdd := DLatOdd * (float64(cprMod(j, 59)) + lat1)

	if latEven >= 270 {
		latEven -= 360
	}
	if latOdd >= 270 {
		latOdd -= 360
	}

	if latEven < -90 || latEven > 90 || latOdd < -90 || latOdd > 90 {
		return 0, 0, false
	}

	nlEven := NL(latEven)
	nlOdd := NL(latOdd)
	if nlEven != nlOdd {
		return 0, 0, false
	}

	useOdd := odd.Timestamp.After(even.Timestamp)

	nl := nlEven // nlEven == nlOdd, checked above
	rlat := latEven
	latestLon := lon0
	if useOdd {
		rlat = latOdd
		latestLon = lon1
	}

	ni := nl - 1
	if ni < 1 {
		ni = 1
	}
	m := cprMod(int(math.Floor(lon0*float64(nl-1)-lon1*float64(nl)+0.5)), ni)

	lonOut := (360.0 / float64(ni)) * (float64(m) + latestLon)
	if lonOut > 180 {
		lonOut -= 360
	}

	return round6(rlat), round6(lonOut), true
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
