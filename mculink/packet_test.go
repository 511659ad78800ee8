package mculink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksum(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want byte
	}{
		{"empty", nil, 0x00},
		{"single", []byte{0x42}, 0x42},
		{"no overflow", []byte{0x10, 0x20, 0x30}, 0x60},
		{"truncated overflow", []byte{0xFF, 0xFF}, 0xFE},
		{"markers plus command", []byte{0xAA, 0x55, 0x01}, 0x00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Checksum(tt.data))
		})
	}
}

func TestPacket_Encode(t *testing.T) {
	pkt := &Packet{Command: CmdStateReport, Payload: [PayloadSize]byte{1, 2, 3, 4, 5, 6}}

	frame := pkt.Encode()
	require.Len(t, frame, FrameSize)

	assert.Equal(t, Marker0, frame[0])
	assert.Equal(t, Marker1, frame[1])
	assert.Equal(t, CmdStateReport, frame[2])
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, frame[3:9])
	assert.Equal(t, Checksum(frame[:9]), frame[9])
}

func TestPacket_EncodeDecode_RoundTrip(t *testing.T) {
	pkt := &Packet{Command: CmdNetworkStatus, Payload: [PayloadSize]byte{0x04, 0xFF, 0x00, 0x7F, 0x80, 0x20}}

	got, err := DecodeFrame(pkt.Encode())
	require.NoError(t, err)

	assert.Equal(t, pkt.Command, got.Command)
	assert.Equal(t, pkt.Payload, got.Payload)
}

func TestDecodeFrame_InvalidSize(t *testing.T) {
	_, err := DecodeFrame([]byte{0xAA, 0x55, 0x01})
	require.ErrorIs(t, err, ErrInvalidFrameSize)

	_, err = DecodeFrame(make([]byte, FrameSize+1))
	require.ErrorIs(t, err, ErrInvalidFrameSize)
}

func TestDecodeFrame_MarkerMismatch(t *testing.T) {
	frame := (&Packet{Command: 0x01}).Encode()
	frame[1] = 0xAA

	_, err := DecodeFrame(frame)
	require.ErrorIs(t, err, ErrMarkerMismatch)
}

func TestDecodeFrame_ChecksumMismatch(t *testing.T) {
	frame := (&Packet{Command: 0x01}).Encode()
	frame[FrameSize-1] ^= 0xFF

	_, err := DecodeFrame(frame)
	require.ErrorIs(t, err, ErrChecksumMismatch)
}

// Flipping any single bit of a valid frame must make decoding fail: marker
// bits break the marker check, and any other bit shifts the 8-bit sum by a
// power of two, which can never wrap to the same value.
func TestDecodeFrame_SingleBitFlip(t *testing.T) {
	base := (&Packet{Command: CmdStateReport, Payload: ReportPayload(0x0102, 0xDEADBEEF)}).Encode()

	for bytePos := 0; bytePos < FrameSize; bytePos++ {
		for bit := 0; bit < 8; bit++ {
			frame := make([]byte, FrameSize)
			copy(frame, base)
			frame[bytePos] ^= 1 << bit

			_, err := DecodeFrame(frame)
			assert.Error(t, err, "flip of byte %d bit %d must not decode", bytePos, bit)
		}
	}
}

func TestReportPayload(t *testing.T) {
	p := ReportPayload(0x0102, 0x11223344)
	assert.Equal(t, [PayloadSize]byte{0x02, 0x01, 0x44, 0x33, 0x22, 0x11}, p)

	kind, value := ParseReportPayload(p)
	assert.Equal(t, uint16(0x0102), kind)
	assert.Equal(t, uint32(0x11223344), value)
}

func TestStatusPayload(t *testing.T) {
	p := StatusPayload(StateConnectedServer, 0x66554433, -4)
	assert.Equal(t, byte(0x04), p[0])
	assert.Equal(t, [4]byte{0x33, 0x44, 0x55, 0x66}, [4]byte(p[1:5]))
	assert.Equal(t, byte(0xFC), p[5])

	state, utc, tz := ParseStatusPayload(p)
	assert.Equal(t, StateConnectedServer, state)
	assert.Equal(t, uint32(0x66554433), utc)
	assert.Equal(t, int8(-4), tz)
}

func TestTimeReplyPayload(t *testing.T) {
	p := TimeReplyPayload(0x01020304, 32)
	assert.Equal(t, [PayloadSize]byte{0x04, 0x03, 0x02, 0x01, 0x20, 0x00}, p)

	utc, tz := ParseTimeReplyPayload(p)
	assert.Equal(t, uint32(0x01020304), utc)
	assert.Equal(t, int8(32), tz)
}

func TestResponsePayload(t *testing.T) {
	p := ResponsePayload(0x02, CmdWiFiConfig)
	assert.Equal(t, [PayloadSize]byte{0x02, 0x01, 0x00, 0x00, 0x00, 0x00}, p)
}
