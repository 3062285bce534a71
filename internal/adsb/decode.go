package adsb

import (
	"math"
	"strings"
)

// Identification is the TC 1-4 aircraft identification report.
type Identification struct {
	Callsign string
}

// PositionReport is the TC 9-18 / 20-22 airborne (or TC 5-8 surface)
// position report. It carries the raw CPR fields; resolving them to a
// lat/lon requires an even/odd pair and is GlobalDecode's job.
type PositionReport struct {
	Altitude int
	OddFlag  uint8
	LatCPR   uint32
	LonCPR   uint32
	Surface  bool
}

// VelocityReport is the TC 19 airborne velocity report.
type VelocityReport struct {
	Subtype      uint8
	Speed        int     // knots: ground speed for subtypes 1/2, Airspeed for subtypes 3/4
	Heading      float64 // degrees, [0, 360)
	HeadingValid bool
	Airspeed     int // knots, subtypes 3/4
	IsTAS        bool
	VerticalRate int // ft/min, signed
}

// IdentityReply is the DF4/5/20/21 Mode-A squawk report.
type IdentityReply struct {
	Squawk string
}

// ParseIdentification decodes a TC 1-4 ME field into a callsign.
func ParseIdentification(me [7]byte) Identification {
	var cs [8]byte
	for i := 0; i < 8; i++ {
		code := getBits(me[:], 8+i*6, 6)
		cs[i] = ADSBCharset[code]
	}
	return Identification{Callsign: strings.TrimRight(string(cs[:]), " #")}
}

// ParseAirbornePosition decodes a TC 9-18 / 20-22 ME field (baro or GNSS
// altitude; this spec treats both ranges identically).
func ParseAirbornePosition(me [7]byte, surface bool) PositionReport {
	altField := getBits(me[:], 8, 12)
	altitude := decodeAltitude(altField)

	return PositionReport{
		Altitude: altitude,
		OddFlag:  uint8(getBits(me[:], 21, 1)), // bit 53 of the 112-bit frame = bit 21 of the ME field
		LatCPR:   getBits(me[:], 22, 17),
		LonCPR:   getBits(me[:], 39, 17),
		Surface:  surface,
	}
}

// decodeAltitude implements the TC 9-18/20-22 altitude code: a Q-bit at
// index 7 of the 12-bit altitude field selects between the 25ft-linear
// encoding and the (simplified, see DESIGN.md) Gillham 100ft encoding.
func decodeAltitude(altField uint32) int {
	q := (altField >> 4) & 1
	if q == 1 {
		upper7 := altField >> 5
		lower4 := altField & 0xF
		n := (upper7 << 4) | lower4
		return int(n)*25 - 1000
	}
	// Gillham (Q=0): simplified linear form per spec's open question.
	return int(altField)*100 - 1300
}

// ParseVelocity decodes a TC 19 ME field.
func ParseVelocity(me [7]byte) VelocityReport {
	v := VelocityReport{Subtype: uint8(getBits(me[:], 5, 3))}

	switch v.Subtype {
	case 1, 2:
		ewSign := getBit(me[:], 13)
		ewMag := int(getBits(me[:], 14, 10))
		nsSign := getBit(me[:], 24)
		nsMag := int(getBits(me[:], 25, 10))

		vew := ewMag - 1
		if ewSign == 1 {
			vew = -vew
		}
		vns := nsMag - 1
		if nsSign == 1 {
			vns = -vns
		}
		if v.Subtype == 2 {
			vew *= 4
			vns *= 4
		}

		speed := math.Sqrt(float64(vew*vew + vns*vns))
		v.Speed = int(math.Round(speed))

		heading := math.Atan2(float64(vew), float64(vns)) * 180 / math.Pi
		if heading < 0 {
			heading += 360
		}
		v.Heading = heading
		v.HeadingValid = true

	case 3, 4:
		statusBit := getBit(me[:], 13)
		if statusBit == 1 {
			hdgRaw := getBits(me[:], 14, 10)
			v.Heading = float64(hdgRaw) * 360.0 / 1024.0
			v.HeadingValid = true
		}
		v.IsTAS = getBit(me[:], 24) == 1
		asRaw := int(getBits(me[:], 25, 10))
		if asRaw > 0 {
			v.Airspeed = asRaw - 1
			if v.Subtype == 4 {
				v.Airspeed *= 4
			}
		}
		v.Speed = v.Airspeed
	}

	vrSign := getBit(me[:], 36)
	vrMag := int(getBits(me[:], 37, 9))
	if vrMag > 0 {
		rate := (vrMag - 1) * 64
		if vrSign == 1 {
			rate = -rate
		}
		v.VerticalRate = rate
	}

	return v
}

// ParseIdentityReply decodes the 13-bit Mode-A ID field of a DF4/5/20/21
// frame into a 4-digit octal squawk string.
func ParseIdentityReply(raw []byte) IdentityReply {
	field := getBits(raw, 19, 13)
	bit := func(pos int) uint32 { return (field >> uint(12-pos)) & 1 }

	a := bit(idBitA1) | bit(idBitA2)<<1 | bit(idBitA4)<<2
	b := bit(idBitB1) | bit(idBitB2)<<1 | bit(idBitB4)<<2
	c := bit(idBitC1) | bit(idBitC2)<<1 | bit(idBitC4)<<2
	d := bit(idBitD1) | bit(idBitD2)<<1 | bit(idBitD4)<<2

	digits := []byte{byte('0' + a), byte('0' + b), byte('0' + c), byte('0' + d)}
	return IdentityReply{Squawk: string(digits)}
}
