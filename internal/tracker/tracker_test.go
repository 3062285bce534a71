package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go1090/internal/adsb"
)

func setBits(raw []byte, start, width int, value uint32) {
	for i := 0; i < width; i++ {
		bit := start + i
		byteIdx := bit / 8
		bitIdx := 7 - uint(bit%8)
		v := (value >> uint(width-1-i)) & 1
		if v == 1 {
			raw[byteIdx] |= 1 << bitIdx
		} else {
			raw[byteIdx] &^= 1 << bitIdx
		}
	}
}

func baseLongFrame(df, tc uint8, icao uint32) [14]byte {
	var raw [14]byte
	setBits(raw[:], 0, 5, uint32(df))
	setBits(raw[:], 5, 3, 0)
	setBits(raw[:], 8, 24, icao)
	setBits(raw[:], 32, 5, uint32(tc))
	return raw
}

func TestUpdateIgnoresInvalidCRC(t *testing.T) {
	tr := New(Anchor{}, 0)
	msg := &adsb.Message{ICAO: 0x4840D6, CRCValid: false, ReceivedAt: time.Now()}
	tr.Update(msg)
	assert.Empty(t, tr.Sweep(time.Now()))
}

func TestUpdateCallsign(t *testing.T) {
	raw := baseLongFrame(17, 4, 0x4840D6)
	// "KLM1023" encoded via the 6-bit charset, matching decode_test.go's fixture.
	copy(raw[4:], []byte{0x20, 0x2C, 0xC3, 0x71, 0xC3, 0x2C, 0xE0, 0x57, 0x60, 0x98})

	msg := adsb.Decode(raw, 112, -20, time.Now(), false, false)
	require.True(t, msg.CRCValid)

	tr := New(Anchor{}, 0)
	tr.Update(msg)

	snaps := tr.Sweep(time.Now())
	require.Len(t, snaps, 1)
	assert.Equal(t, "4840D6", snaps[0].ICAO)
	assert.Equal(t, "KLM1023", snaps[0].Callsign)
}

func TestMergePositionResolvesPair(t *testing.T) {
	evenRaw := mustHex(t, "8D40621D58C382D690C8AC2863A7")
	oddRaw := mustHex(t, "8D40621D58C386435CC412692AD6")

	now := time.Now()
	evenMsg := adsb.Decode(evenRaw, 112, -20, now, false, false)
	oddMsg := adsb.Decode(oddRaw, 112, -20, now.Add(time.Second), false, false)

	tr := New(Anchor{}, 0)
	tr.Update(evenMsg)
	tr.Update(oddMsg)

	snaps := tr.Sweep(now.Add(2 * time.Second))
	require.Len(t, snaps, 1)
	require.NotNil(t, snaps[0].Lat)
	require.NotNil(t, snaps[0].Lon)
	assert.NotZero(t, *snaps[0].Lat)
}

func TestMergePositionRejectsOutOfRange(t *testing.T) {
	evenRaw := mustHex(t, "8D40621D58C382D690C8AC2863A7")
	oddRaw := mustHex(t, "8D40621D58C386435CC412692AD6")

	now := time.Now()
	evenMsg := adsb.Decode(evenRaw, 112, -20, now, false, false)
	oddMsg := adsb.Decode(oddRaw, 112, -20, now.Add(time.Second), false, false)

	// An anchor on the other side of the globe from the decoded fix.
	tr := New(Anchor{Lat: -33.0, Lon: 151.0, Set: true}, 50)
	tr.Update(evenMsg)
	tr.Update(oddMsg)

	snaps := tr.Sweep(now.Add(2 * time.Second))
	require.Len(t, snaps, 1)
	assert.Nil(t, snaps[0].Lat)
}

func TestSweepExpiresStaleAircraft(t *testing.T) {
	raw := baseLongFrame(17, 1, 0xABCDEF)
	msg := &adsb.Message{Raw: raw, ICAO: 0xABCDEF, CRCValid: true, ReceivedAt: time.Now()}

	tr := New(Anchor{}, 0)
	tr.Update(msg)

	assert.Len(t, tr.Sweep(time.Now()), 1)
	assert.Empty(t, tr.Sweep(time.Now().Add(2*time.Minute)))
}

func TestCandidatesReturnsTrackedICAOs(t *testing.T) {
	msg := &adsb.Message{ICAO: 0x112233, CRCValid: true, ReceivedAt: time.Now()}
	tr := New(Anchor{}, 0)
	tr.Update(msg)

	cands := tr.Candidates()
	require.Len(t, cands, 1)
	assert.Equal(t, uint32(0x112233), cands[0])
}

func TestSubscribePublishesEvents(t *testing.T) {
	tr := New(Anchor{}, 0)
	ch, unsub := tr.Subscribe(4)
	defer unsub()

	msg := &adsb.Message{ICAO: 0x445566, CRCValid: true, ReceivedAt: time.Now()}
	tr.Update(msg)

	select {
	case ev := <-ch:
		assert.Equal(t, uint32(0x445566), ev.ICAO)
	case <-time.After(time.Second):
		t.Fatal("expected an event")
	}
}

func TestCommBWithNoMatchingBDSLeavesEHSFieldsNil(t *testing.T) {
	raw := baseLongFrame(20, 0, 0x778899)
	msg := &adsb.Message{Raw: raw, DF: 20, ICAO: 0x778899, CRCValid: true, ReceivedAt: time.Now()}

	tr := New(Anchor{}, 0)
	tr.Update(msg)

	snaps := tr.Sweep(time.Now())
	require.Len(t, snaps, 1)
	assert.Nil(t, snaps[0].SelectedAltitude)
}

// A DF20/21 frame carries both a Mode-A squawk (bits 19-32) and a Comm-B
// MB register (bits 32-88); both must be applied to the same Update, not
// treated as mutually exclusive.
func TestUpdateAppliesSquawkAndEHSFromSameCommBFrame(t *testing.T) {
	raw := baseLongFrame(20, 0, 0x778899)

	// Squawk 7700: ID field bits (C1 A1 C2 A2 C4 A4 X B1 D1 B2 D2 B4 D4).
	squawkBits := []uint8{0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0}
	for i, b := range squawkBits {
		if b == 1 {
			pos := 19 + i
			raw[pos/8] |= 1 << uint(7-pos%8)
		}
	}

	// BDS 4,0: status bit 0 set, altitude subfield (12 bits) = 2000 -> 32000 ft.
	// mb bit n lives at raw bit 32+n.
	setBits(raw[:], 32, 1, 1)
	setBits(raw[:], 33, 12, 2000)

	msg := &adsb.Message{Raw: raw, DF: 20, ICAO: 0x778899, CRCValid: true, ReceivedAt: time.Now()}

	tr := New(Anchor{}, 0)
	tr.Update(msg)

	snaps := tr.Sweep(time.Now())
	require.Len(t, snaps, 1)
	require.NotNil(t, snaps[0].Squawk)
	assert.Equal(t, "7700", *snaps[0].Squawk)
	require.NotNil(t, snaps[0].SelectedAltitude)
	assert.Equal(t, 32000, *snaps[0].SelectedAltitude)
}

func mustHex(t *testing.T, s string) [14]byte {
	t.Helper()
	var raw [14]byte
	for i := 0; i < len(s)/2; i++ {
		var hi, lo byte
		hi = hexNibble(t, s[i*2])
		lo = hexNibble(t, s[i*2+1])
		raw[i] = hi<<4 | lo
	}
	return raw
}

func hexNibble(t *testing.T, c byte) byte {
	t.Helper()
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	}
	t.Fatalf("invalid hex digit %q", c)
	return 0
}
