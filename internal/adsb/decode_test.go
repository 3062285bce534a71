package adsb

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// parseFrame decodes a hex-encoded Mode S frame into the packed [14]byte
// representation Decode expects, zero-padding short (56-bit) frames.
func parseFrame(t *testing.T, hexStr string) [14]byte {
	t.Helper()
	raw, err := hex.DecodeString(hexStr)
	require.NoError(t, err)
	var out [14]byte
	copy(out[:], raw)
	return out
}

func TestDecodeIdentification(t *testing.T) {
	raw := parseFrame(t, "8D4840D6202CC371C32CE0576098")
	msg := Decode(raw, LongMessageBits, 0.1, time.Now(), true, true)

	assert.Equal(t, uint8(17), msg.DF)
	assert.Equal(t, "4840D6", msg.HexICAO())
	assert.True(t, msg.CRCValid)
	assert.False(t, msg.CRCFixed)
	assert.True(t, msg.IsIdentification())

	id := ParseIdentification(msg.meField())
	assert.Equal(t, "KLM1023", id.Callsign)
}

func TestDecodeAirbornePositionPair(t *testing.T) {
	rawEven := parseFrame(t, "8D40621D58C382D690C8AC2863A7")
	rawOdd := parseFrame(t, "8D40621D58C386435CC412692AD6")

	msgEven := Decode(rawEven, LongMessageBits, 0.1, time.Now(), true, true)
	msgOdd := Decode(rawOdd, LongMessageBits, 0.1, msgEven.ReceivedAt.Add(time.Second), true, true)

	require.True(t, msgEven.CRCValid)
	require.True(t, msgOdd.CRCValid)
	assert.Equal(t, "40621D", msgEven.HexICAO())

	surface, ok := msgEven.IsPosition()
	require.True(t, ok)
	assert.False(t, surface)

	posEven := ParseAirbornePosition(msgEven.meField(), surface)
	posOdd := ParseAirbornePosition(msgOdd.meField(), surface)
	assert.Equal(t, uint8(0), posEven.OddFlag)
	assert.Equal(t, uint8(1), posOdd.OddFlag)
	assert.NotZero(t, posEven.Altitude)

	even := CPRFrame{LatCPR: posEven.LatCPR, LonCPR: posEven.LonCPR, Timestamp: msgEven.ReceivedAt}
	odd := CPRFrame{LatCPR: posOdd.LatCPR, LonCPR: posOdd.LonCPR, Timestamp: msgOdd.ReceivedAt}

	lat, lon, ok := GlobalDecode(even, odd)
	require.True(t, ok)
	assert.NotZero(t, lat)
	assert.NotZero(t, lon)
}

func TestDecodeVelocity(t *testing.T) {
	raw := parseFrame(t, "8DA05F219B06B6AF189400CBC33F")
	msg := Decode(raw, LongMessageBits, 0.1, time.Now(), true, true)

	require.True(t, msg.CRCValid)
	assert.Equal(t, "A05F21", msg.HexICAO())
	assert.True(t, msg.IsVelocity())

	v := ParseVelocity(msg.meField())
	assert.Greater(t, v.Speed, 0)
	assert.GreaterOrEqual(t, v.Heading, 0.0)
	assert.Less(t, v.Heading, 360.0)
}

func TestDecodeIdentityReplySquawk7700(t *testing.T) {
	// ID field bits (C1 A1 C2 A2 C4 A4 X B1 D1 B2 D2 B4 D4) = 0 1 0 1 0 1 0 1 0 1 0 1 0
	var raw [14]byte
	bits := []uint8{0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0}
	for i, b := range bits {
		if b == 1 {
			pos := 19 + i
			raw[pos/8] |= 1 << uint(7-pos%8)
		}
	}
	reply := ParseIdentityReply(raw[:])
	assert.Equal(t, "7700", reply.Squawk)
}

func TestDecodeSingleBitErrorCorrection(t *testing.T) {
	clean := parseFrame(t, "8D4840D6202CC371C32CE0576098")

	flipPos := 50
	corrupted := clean
	corrupted[flipPos/8] ^= 1 << (7 - uint(flipPos%8))

	fixed := Decode(corrupted, LongMessageBits, 0.1, time.Now(), true, true)
	require.True(t, fixed.CRCValid)
	assert.True(t, fixed.CRCFixed)
	assert.Equal(t, flipPos, fixed.ErrorBit)
	assert.Equal(t, clean, fixed.Raw)

	unfixed := Decode(corrupted, LongMessageBits, 0.1, time.Now(), true, false)
	assert.False(t, unfixed.CRCValid)
	assert.False(t, unfixed.CRCFixed)
}

func TestShortFrameICAORecoveryScenario(t *testing.T) {
	icao := uint32(0xA12345)
	msg := make([]byte, ShortMessageBits/8)
	msg[0] = 0x28 // DF5

	crc := CRC24(msg[:4])
	ap := crc ^ icao
	msg[4] = byte(ap >> 16)
	msg[5] = byte(ap >> 8)
	msg[6] = byte(ap)

	var raw [14]byte
	copy(raw[:7], msg)

	decoded := Decode(raw, ShortMessageBits, 0.1, time.Now(), true, true)
	assert.True(t, decoded.CRCValid)

	ok := decoded.ApplyICAORecovery([]uint32{0xFFFFFF, 0xA12345, 0x000000})
	require.True(t, ok)
	assert.Equal(t, icao, decoded.ICAO)
	assert.True(t, decoded.ICAORecovered)

	decoded2 := Decode(raw, ShortMessageBits, 0.1, time.Now(), true, true)
	ok = decoded2.ApplyICAORecovery([]uint32{0xB67890})
	assert.False(t, ok)
}
