package beast

import "fmt"

// Encoder frames Mode S/Mode A-C data into the Beast binary format, the
// inverse of Decoder, byte-for-byte compatible with existing Beast-format
// tooling. It is standalone: the capture pipeline does not call it, and the
// raw dump is written as raw I/Q bytes, not Beast frames.
type Encoder struct{}

// NewEncoder returns an Encoder. It carries no state; one instance is
// safe to share across goroutines.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode frames a single message. counter is the sender's 12MHz sample
// clock at the moment of reception, truncated to 48 bits, matching what
// Decoder.decodeMessage expects on the way back in.
func (e *Encoder) Encode(messageType byte, counter uint64, signal byte, data []byte) ([]byte, error) {
	expectedDataLen := map[byte]int{
		ModeAC:     2,
		ModeS:      7,
		ModeSLong:  14,
		ModeStatus: 2,
	}
	want, known := expectedDataLen[messageType]
	if !known {
		return nil, fmt.Errorf("unknown message type: 0x%02x", messageType)
	}
	if len(data) != want {
		return nil, fmt.Errorf("message type 0x%02x expects %d data bytes, got %d", messageType, want, len(data))
	}

	out := make([]byte, 0, 9+2*len(data))
	out = append(out, SyncByte, messageType)

	for i := 5; i >= 0; i-- {
		out = appendEscaped(out, byte(counter>>uint(i*8)))
	}
	out = appendEscaped(out, signal)
	for _, b := range data {
		out = appendEscaped(out, b)
	}

	return out, nil
}

// appendEscaped appends b to out, doubling it first if it collides with
// the sync byte, per the Beast wire escaping rule.
func appendEscaped(out []byte, b byte) []byte {
	if b == SyncByte {
		out = append(out, SyncByte)
	}
	return append(out, b)
}
