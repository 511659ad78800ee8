package mculink

import (
	"github.com/tinnet/go-mculink/logger"
)

// Framer reassembles the raw serial byte stream into validated frames.
//
// It is a byte-at-a-time state machine: pos tracks the index into the frame
// currently being assembled, with 0 meaning "waiting for the first marker
// byte". The framer never blocks and has no partial-frame timeout; a stalled
// transmitter simply parks it at an intermediate position until more bytes
// arrive. The underlying transport is a dedicated point-to-point wire with a
// single trusted peer, so that is acceptable.
//
// Framer is NOT goroutine-safe. It is owned by the receive task and must only
// be fed from there.
type Framer struct {
	logger   logger.Logger
	onPacket func(*Packet)

	// onFrameErr is called each time a completed frame fails validation.
	// Used for metrics collection. May be nil.
	onFrameErr func()

	buf [FrameSize]byte
	pos int
}

// NewFramer creates a Framer that invokes onPacket for every validated frame.
// onPacket runs synchronously on the caller of Feed.
func NewFramer(l logger.Logger, onPacket func(*Packet), onFrameErr func()) *Framer {
	return &Framer{
		logger:     l,
		onPacket:   onPacket,
		onFrameErr: onFrameErr,
	}
}

// Feed consumes a single byte from the wire.
//
// Positions 0 and 1 scan for the two marker bytes. A mismatch at position 1
// resets the scan to position 0 and discards the mismatching byte without
// re-evaluating it as a possible new first-marker byte; the peer firmware
// parses the stream the same way, and resynchronization behavior must match
// it exactly.
func (f *Framer) Feed(b byte) {
	switch f.pos {
	case 0:
		if b == Marker0 {
			f.buf[0] = b
			f.pos = 1
		}

	case 1:
		if b == Marker1 {
			f.buf[1] = b
			f.pos = 2
		} else {
			f.pos = 0
		}

	case FrameSize - 1:
		f.buf[f.pos] = b
		f.finishFrame()
		f.pos = 0

	default:
		f.buf[f.pos] = b
		f.pos++
	}
}

// FeedBytes consumes a chunk of bytes, one at a time.
func (f *Framer) FeedBytes(data []byte) {
	for _, b := range data {
		f.Feed(b)
	}
}

// finishFrame validates the accumulated frame and delivers the decoded packet.
// Invalid frames are logged and discarded; the sender retries at a higher
// protocol level if it cares.
func (f *Framer) finishFrame() {
	pkt, err := DecodeFrame(f.buf[:])
	if err != nil {
		f.logger.Error("mculink: discarding invalid frame", "error", err)

		if f.onFrameErr != nil {
			f.onFrameErr()
		}

		return
	}

	if f.onPacket != nil {
		f.onPacket(pkt)
	}
}
