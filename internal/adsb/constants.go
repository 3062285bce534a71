package adsb

// ADSBCharset is the 6-bit character set used by DF17/18 identification
// messages (TC 1-4) to encode callsigns. Index with a 6-bit code to get
// the printable character; trailing '#' positions never appear in valid
// callsigns and are filtered by the caller.
const ADSBCharset = "#ABCDEFGHIJKLMNOPQRSTUVWXYZ##### ###############0123456789######"

// Message lengths, in bits.
const (
	ShortMessageBits = 56
	LongMessageBits  = 112
)

// SampleRateHz is the I/Q sample rate the demodulator expects.
const SampleRateHz = 2000000

// CPR decoding constants.
const (
	CPRLatBits = 17
	CPRLonBits = 17
	CPRMax     = 1 << CPRLatBits // 131072 = 2^17

	CPRZones          = 15 // NZ
	CPRFrameMaxAgeSec = 10

	DLatEven = 360.0 / (4.0 * CPRZones) // 6.0 degrees
	DLatOdd  = 360.0 / (4.0*CPRZones - 1.0)
)

// Tracker policy constants.
const (
	AircraftTimeoutSec      = 60
	MaxPositionHistory      = 100
	HistorySaveIntervalSec  = 30
	ICAOCandidateRefreshSec = 60
	ICAOCandidateHours      = 2
	WebsocketBroadcastSec   = 5
	DefaultMaxRangeNM       = 300.0
	SignalEMAOldWeight      = 0.7
	SignalEMANewWeight      = 0.3
)

// EarthRadiusNM is the mean Earth radius in nautical miles, used by the
// Haversine distance and initial-bearing calculations.
const EarthRadiusNM = 3440.065

// Squawk identity field bit weights. The 13-bit ID field is laid out
// (MSB first, bit 0 = most significant) as:
//
//	C1 A1 C2 A2 C4 A4 X B1 D1 B2 D2 B4 D4
//
// Each Mode-A octal digit (A, B, C, D) is reassembled from three
// non-adjacent bits of that field; these are the bit offsets within the
// 13-bit field (0-indexed, MSB-first) for each weighted bit.
const (
	idBitC1 = 0
	idBitA1 = 1
	idBitC2 = 2
	idBitA2 = 3
	idBitC4 = 4
	idBitA4 = 5
	// idBitX = 6 (spare, unused)
	idBitB1 = 7
	idBitD1 = 8
	idBitB2 = 9
	idBitD2 = 10
	idBitB4 = 11
	idBitD4 = 12
)
