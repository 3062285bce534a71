// Package demod turns a stream of complex I/Q samples into raw Mode S bit
// frames. It is the hot path of the pipeline: the magnitude conversion and
// bit slicing below must not allocate per sample or per bit.
package demod

import (
	"math/cmplx"
	"sync"
	"time"

	"go1090/internal/adsb"
)

const (
	preambleSamples    = 16
	minSignalLevel     = 0.008
	lowConfidenceDelta = 0.004
	minBitDelta        = 0.003

	longMessageSamples  = adsb.LongMessageBits * 2
	shortMessageSamples = adsb.ShortMessageBits * 2
)

// Frame is a raw bit vector pulled out of the magnitude stream, ready for
// adsb.Decode. It carries no protocol semantics of its own.
type Frame struct {
	Raw       [14]byte
	BitLen    int
	Signal    float64
	Timestamp time.Time
}

// Stats are updated under a single mutex; the hot loop takes the lock once
// per buffer for the sample count and once per detected preamble and per
// emitted or rejected frame, never per sample or per bit; see §Stats.
type Stats struct {
	mu              sync.Mutex
	SamplesProcessed uint64
	PreamblesSeen    uint64
	LongDecoded      uint64
	ShortDecoded     uint64
	FramesRejected   uint64
}

func (s *Stats) addSamples(n int) {
	s.mu.Lock()
	s.SamplesProcessed += uint64(n)
	s.mu.Unlock()
}

func (s *Stats) addPreamble() {
	s.mu.Lock()
	s.PreamblesSeen++
	s.mu.Unlock()
}

func (s *Stats) addLong() {
	s.mu.Lock()
	s.LongDecoded++
	s.mu.Unlock()
}

func (s *Stats) addShort() {
	s.mu.Lock()
	s.ShortDecoded++
	s.mu.Unlock()
}

func (s *Stats) addRejected() {
	s.mu.Lock()
	s.FramesRejected++
	s.mu.Unlock()
}

// Snapshot returns a copy of the counters for reporting.
func (s *Stats) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		SamplesProcessed: s.SamplesProcessed,
		PreamblesSeen:    s.PreamblesSeen,
		LongDecoded:      s.LongDecoded,
		ShortDecoded:     s.ShortDecoded,
		FramesRejected:   s.FramesRejected,
	}
}

// Demodulator holds its configuration and stats across calls; the magnitude
// buffer is built afresh by each Process call, so it is otherwise stateless
// between buffers.
type Demodulator struct {
	SnipLevel float64
	CRCCheck  bool
	FixErrors bool
	Stats     *Stats
}

// New returns a Demodulator with snipLevel applied to incoming samples
// before preamble detection (0 disables snipping). crcCheck and
// fixErrors mirror the same-named decode options and gate whether a
// 112-bit recovery candidate must CRC-validate before it is accepted
// over a 56-bit retry at the same offset.
func New(snipLevel float64, crcCheck, fixErrors bool) *Demodulator {
	return &Demodulator{SnipLevel: snipLevel, CRCCheck: crcCheck, FixErrors: fixErrors, Stats: &Stats{}}
}

// Process converts a chunk of I/Q samples into magnitude once, then scans
// for preambles and emits every frame it can decode. now is stamped on
// each emitted frame as the receipt time.
func (d *Demodulator) Process(samples []complex128, now time.Time) []Frame {
	mag := make([]float64, len(samples))
	for i, s := range samples {
		m := cmplx.Abs(s)
		if d.SnipLevel > 0 && m < d.SnipLevel {
			m = 0
		}
		mag[i] = m
	}
	d.Stats.addSamples(len(mag))

	var frames []Frame
	i := 0
	for i+preambleSamples+shortMessageSamples < len(mag) {
		high, ok := detectPreamble(mag, i)
		if !ok {
			i++
			continue
		}
		d.Stats.addPreamble()

		msgStart := i + preambleSamples
		advanced := false

		if msgStart+longMessageSamples <= len(mag) {
			if raw, ok := recoverBits(mag, msgStart, adsb.LongMessageBits); ok && d.longFrameValid(raw) {
				frames = append(frames, Frame{Raw: raw, BitLen: adsb.LongMessageBits, Signal: high, Timestamp: now})
				d.Stats.addLong()
				i = msgStart + longMessageSamples
				advanced = true
			}
		}
		if !advanced && msgStart+shortMessageSamples <= len(mag) {
			if raw, ok := recoverBits(mag, msgStart, adsb.ShortMessageBits); ok {
				frames = append(frames, Frame{Raw: raw, BitLen: adsb.ShortMessageBits, Signal: high, Timestamp: now})
				d.Stats.addShort()
				i = msgStart + longMessageSamples
				advanced = true
			}
		}
		if !advanced {
			d.Stats.addRejected()
			i = msgStart + longMessageSamples
		}
	}

	return frames
}

// detectPreamble tests the dump1090-compatible 16-sample pattern starting
// at i: pulses at 0, 2, 7, 9; quiet elsewhere, with a minimum signal level
// and quiet-zone check.
func detectPreamble(m []float64, i int) (high float64, ok bool) {
	if i+16 > len(m) {
		return 0, false
	}
	if !(m[i] > m[i+1] && m[i+1] < m[i+2] && m[i+2] > m[i+3] && m[i+3] < m[i]) {
		return 0, false
	}
	for k := 4; k <= 6; k++ {
		if m[i+k] >= m[i] {
			return 0, false
		}
	}
	if !(m[i+7] > m[i+8] && m[i+8] < m[i+9] && m[i+9] > m[i+6]) {
		return 0, false
	}

	high = (m[i] + m[i+2] + m[i+7] + m[i+9]) / 6
	if high < minSignalLevel {
		return 0, false
	}

	if m[i+4] >= high || m[i+5] >= high {
		return 0, false
	}
	for k := 11; k <= 15; k++ {
		if m[i+k] >= high {
			return 0, false
		}
	}

	return high, true
}

// longFrameValid reports whether a recovered 112-bit candidate is a real
// frame rather than a 56-bit frame over-read into garbage: CRC-clean
// outright, or single-bit correctable when FixErrors is set. A candidate
// that fails this check is dropped in favor of a 56-bit recovery attempt
// at the same offset. Disabled when CRCCheck is off, matching decodeLong's
// own crcCheck bypass.
func (d *Demodulator) longFrameValid(raw [14]byte) bool {
	if !d.CRCCheck {
		return true
	}
	crc := adsb.CRC24(raw[:])
	if crc == 0 {
		return true
	}
	if d.FixErrors {
		if _, ok := adsb.CorrectSingleBit(raw[:14], crc); ok {
			return true
		}
	}
	return false
}

// recoverBits extracts numBits via PPM starting at sample offset base,
// applying dump1090-style phase correction and low-confidence bit
// carry-forward, and rejects the frame if the aggregate confidence is too
// low.
func recoverBits(m []float64, base, numBits int) (raw [14]byte, ok bool) {
	phaseCorrection := 1.0
	var deltaSum float64
	var prevBit uint8

	for k := 0; k < numBits; k++ {
		idx := base + k*2
		first := m[idx] * phaseCorrection
		second := m[idx+1]

		delta := first - second
		if delta < 0 {
			delta = -delta
		}
		deltaSum += delta

		var bit uint8
		if k > 0 && delta < lowConfidenceDelta {
			bit = prevBit
		} else if first > second {
			bit = 1
		} else {
			bit = 0
		}

		if bit == 1 {
			raw[k/8] |= 1 << uint(7-k%8)
			phaseCorrection = 1.25
		} else {
			phaseCorrection = 0.8
		}
		prevBit = bit
	}

	if deltaSum < minBitDelta*float64(numBits) {
		return raw, false
	}
	return raw, true
}
