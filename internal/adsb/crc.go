package adsb

import "sync"

// ModeSPoly is the Mode S CRC-24 generator polynomial.
const ModeSPoly = 0x1FFF409

// crcTable is a byte-at-a-time unrolling of the bit-serial CRC loop: for
// each input bit the spec captures the outgoing MSB of a 24-bit register,
// shifts left, injects the bit, and conditionally XORs the polynomial.
// Processing 8 bits at once via a lookup table is equivalent and is the
// form dump1090-derived decoders use.
var crcTable [256]uint32

func init() {
	for i := 0; i < 256; i++ {
		c := uint32(i) << 16
		for b := 0; b < 8; b++ {
			if c&0x800000 != 0 {
				c = (c << 1) ^ ModeSPoly
			} else {
				c <<= 1
			}
		}
		crcTable[i] = c & 0xFFFFFF
	}
}

// CRC24 computes the Mode S CRC-24 over a byte-aligned, MSB-first bit
// sequence. The register closes to zero iff the frame (CRC field
// included) is uncorrupted.
func CRC24(data []byte) uint32 {
	var rem uint32
	for _, b := range data {
		rem = (rem << 8) ^ crcTable[b^byte(rem>>16)]
		rem &= 0xFFFFFF
	}
	return rem
}

var (
	syndromeOnce  sync.Once
	syndromeTable map[uint32]int
)

// syndromeOf returns the CRC-24 syndrome of a LongMessageBits-long frame
// that is all-zero except for bit p (0-indexed, MSB-first).
func syndromeOf(p int) uint32 {
	var msg [LongMessageBits / 8]byte
	msg[p/8] = 1 << (7 - uint(p%8))
	return CRC24(msg[:])
}

// ensureSyndromeTable builds the single-bit error correction table the
// first time it is needed; concurrent callers block on the same build
// and every caller thereafter sees the finished table.
func ensureSyndromeTable() map[uint32]int {
	syndromeOnce.Do(func() {
		table := make(map[uint32]int, LongMessageBits)
		for p := 0; p < LongMessageBits; p++ {
			table[syndromeOf(p)] = p
		}
		syndromeTable = table
	})
	return syndromeTable
}

// CorrectSingleBit attempts to correct a single-bit error in a
// LongMessageBits frame given its nonzero CRC syndrome. It returns the
// corrected bit position and true on success. Short frames are never
// passed here — they are not CRC-correctable per spec.
func CorrectSingleBit(data []byte, syndrome uint32) (bitPos int, ok bool) {
	table := ensureSyndromeTable()
	p, found := table[syndrome]
	if !found {
		return 0, false
	}
	data[p/8] ^= 1 << (7 - uint(p%8))
	return p, true
}

// RecoverICAO reverse-engineers the ICAO address of a short (56-bit)
// reply from its AP field (the last 24 bits), given a set of candidate
// ICAOs. The AP field equals CRC(data[0:32 bits]) XOR ICAO, so the first
// candidate satisfying CRC(data[0:32]) XOR candidate == AP wins. data
// must be exactly 7 bytes (56 bits) with the AP field in the last 3.
func RecoverICAO(data []byte, candidates []uint32) (icao uint32, ok bool) {
	if len(data) != ShortMessageBits/8 {
		return 0, false
	}
	crc := CRC24(data[:4])
	ap := uint32(data[4])<<16 | uint32(data[5])<<8 | uint32(data[6])
	for _, c := range candidates {
		if crc^c == ap {
			return c, true
		}
	}
	return 0, false
}
