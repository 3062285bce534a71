package adsb

import "math"

// EHS holds the enhanced-surveillance fields recovered from a single
// Comm-B register. Only one BDS candidate is accepted per message, so
// at most one group of fields is populated.
type EHS struct {
	BDS string // "4,0", "5,0", or "6,0"

	SelectedAltitude *int // ft, BDS 4,0

	Roll *float64 // degrees, signed, BDS 5,0

	MagneticHeading *float64 // degrees [0,360], BDS 6,0
	IAS             *int     // knots, BDS 6,0
}

// DecodeEHS infers the BDS register of a DF20/21 MB field by validating
// candidates in a fixed order and returning the first one whose status
// bits and range checks succeed. Returns ok=false if no candidate
// passes.
func DecodeEHS(mb [7]byte) (EHS, bool) {
	if ehs, ok := decodeBDS40(mb); ok {
		return ehs, true
	}
	if ehs, ok := decodeBDS50(mb); ok {
		return ehs, true
	}
	if ehs, ok := decodeBDS60(mb); ok {
		return ehs, true
	}
	return EHS{}, false
}

// decodeBDS40 decodes the selected vertical intention register.
func decodeBDS40(mb [7]byte) (EHS, bool) {
	status0 := getBit(mb[:], 0)
	status13 := getBit(mb[:], 13)
	if status0 == 0 && status13 == 0 {
		return EHS{}, false
	}
	ehs := EHS{BDS: "4,0"}
	if status0 == 1 {
		bits := int(getBits(mb[:], 1, 12))
		alt := bits * 16
		if alt < 0 || alt > 50000 {
			return EHS{}, false
		}
		ehs.SelectedAltitude = &alt
	}
	return ehs, true
}

// decodeBDS50 decodes the track and turn register.
func decodeBDS50(mb [7]byte) (EHS, bool) {
	status0 := getBit(mb[:], 0)
	status11 := getBit(mb[:], 11)
	if status0 == 0 && status11 == 0 {
		return EHS{}, false
	}
	ehs := EHS{BDS: "5,0"}
	if status0 == 1 {
		sign := getBit(mb[:], 1)
		mag := int(getBits(mb[:], 2, 9))
		roll := float64(mag) * 45.0 / 256.0
		if sign == 1 {
			roll = -roll
		}
		if math.Abs(roll) > 90 {
			return EHS{}, false
		}
		ehs.Roll = &roll
	}
	return ehs, true
}

// decodeBDS60 decodes the heading and speed register.
func decodeBDS60(mb [7]byte) (EHS, bool) {
	status0 := getBit(mb[:], 0)
	status12 := getBit(mb[:], 12)
	if status0 == 0 && status12 == 0 {
		return EHS{}, false
	}
	ehs := EHS{BDS: "6,0"}
	if status0 == 1 {
		sign := getBit(mb[:], 1)
		mag := int(getBits(mb[:], 2, 9))
		hdg := float64(mag) * 90.0 / 512.0
		if sign == 1 {
			hdg = 360 - hdg
		}
		if hdg < 0 || hdg > 360 {
			return EHS{}, false
		}
		ehs.MagneticHeading = &hdg
	}
	if status12 == 1 {
		ias := int(getBits(mb[:], 13, 10))
		if ias > 500 {
			return EHS{}, false
		}
		ehs.IAS = &ias
	}
	return ehs, true
}
