package mculink

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// FrameSize is the fixed on-wire size of every frame:
// 2 marker bytes + 1 command byte + 6 payload bytes + 1 checksum byte.
const FrameSize = 10

// PayloadSize is the fixed size of the command-specific payload field.
const PayloadSize = 6

// Frame start markers. A frame is only accepted when both bytes match.
const (
	Marker0 byte = 0xAA
	Marker1 byte = 0x55
)

// Command codes of the MCU link protocol. The values are fixed by the peer
// firmware and must match it exactly.
const (
	// CmdWiFiConfig requests Wi-Fi provisioning (MCU → module).
	CmdWiFiConfig byte = 0x01

	// CmdResponse is the generic response/ack for MCU-originated requests.
	// Payload byte 0 carries the result (0x00 success, 0x02 failure),
	// byte 1 the request class being answered.
	CmdResponse byte = 0x02

	// CmdEventUpload uploads an application event (MCU → module).
	CmdEventUpload byte = 0x03

	// CmdPowerDownNotify announces an imminent power loss (MCU → module).
	CmdPowerDownNotify byte = 0x04

	// CmdFactoryReset requests a factory reset of the module (MCU → module).
	CmdFactoryReset byte = 0x05

	// CmdDeviceInfo requests module identity information (MCU → module).
	CmdDeviceInfo byte = 0x06

	// CmdDeviceInfoReply answers CmdDeviceInfo. The reply uses an extended
	// frame format that this link layer does not produce; the code is defined
	// so applications can route it.
	CmdDeviceInfoReply byte = 0x07

	// CmdTimeRequest asks for the current network time (MCU → module).
	CmdTimeRequest byte = 0x10

	// CmdTimeReply answers CmdTimeRequest with the cached reference time.
	// Payload bytes 0–3 carry the little-endian UTC seconds, byte 4 the
	// signed timezone offset in quarter hours.
	CmdTimeReply byte = 0x11

	// CmdExitProvisioning requests leaving provisioning mode (MCU → module).
	CmdExitProvisioning byte = 0x1A

	// CmdExitProvisioningAck acknowledges CmdExitProvisioning.
	CmdExitProvisioningAck byte = 0x1B

	// CmdNetworkStatus notifies the peer of a connectivity state change.
	// Payload byte 0 carries the state, bytes 1–4 the little-endian UTC
	// seconds and byte 5 the signed timezone offset in quarter hours.
	// Time fields are zero unless the state is StateConnectedServer.
	CmdNetworkStatus byte = 0x23

	// CmdStateReport uploads a (kind, value) state report subject to
	// acknowledgment and retransmission. Payload bytes 0–1 carry the
	// little-endian kind, bytes 2–5 the little-endian value.
	CmdStateReport byte = 0x42

	// CmdStateReportAck acknowledges the oldest outstanding CmdStateReport.
	CmdStateReportAck byte = 0x43
)

// Codec errors.
var (
	ErrInvalidFrameSize = errors.New("mculink: invalid frame size")
	ErrMarkerMismatch   = errors.New("mculink: frame marker mismatch")
	ErrChecksumMismatch = errors.New("mculink: checksum mismatch")
)

// Packet is one decoded protocol frame: a command code plus its 6-byte payload.
//
// Packets are transient; they are built on send and on receive and owned by
// the call stack that created them.
type Packet struct {
	Command byte
	Payload [PayloadSize]byte
}

// Checksum computes the 8-bit truncated arithmetic sum of data.
func Checksum(data []byte) byte {
	var sum uint16
	for _, v := range data {
		sum += uint16(v)
	}

	return byte(sum & 0xFF)
}

// Encode serializes the packet to its wire format:
//
//	[Marker0][Marker1][Command][Payload(6)][Checksum]
//
// The checksum covers all nine preceding bytes.
func (p *Packet) Encode() []byte {
	frame := make([]byte, FrameSize)
	frame[0] = Marker0
	frame[1] = Marker1
	frame[2] = p.Command
	copy(frame[3:3+PayloadSize], p.Payload[:])
	frame[FrameSize-1] = Checksum(frame[:FrameSize-1])

	return frame
}

// DecodeFrame deserializes and validates a complete wire frame.
//
// It validates:
//   - frame has exactly FrameSize bytes,
//   - both marker bytes match,
//   - the trailing checksum agrees with the recomputed one.
func DecodeFrame(frame []byte) (*Packet, error) {
	if len(frame) != FrameSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidFrameSize, len(frame), FrameSize)
	}

	if frame[0] != Marker0 || frame[1] != Marker1 {
		return nil, fmt.Errorf("%w: got 0x%02X 0x%02X", ErrMarkerMismatch, frame[0], frame[1])
	}

	calc := Checksum(frame[:FrameSize-1])
	if calc != frame[FrameSize-1] {
		return nil, fmt.Errorf("%w: wire=0x%02X, computed=0x%02X", ErrChecksumMismatch, frame[FrameSize-1], calc)
	}

	pkt := &Packet{Command: frame[2]}
	copy(pkt.Payload[:], frame[3:3+PayloadSize])

	return pkt, nil
}

// --- Payload layouts ---

// ReportPayload builds the CmdStateReport payload: little-endian kind in
// bytes 0–1 and little-endian value in bytes 2–5.
func ReportPayload(kind uint16, value uint32) [PayloadSize]byte {
	var p [PayloadSize]byte
	binary.LittleEndian.PutUint16(p[0:2], kind)
	binary.LittleEndian.PutUint32(p[2:6], value)

	return p
}

// ParseReportPayload extracts kind and value from a CmdStateReport payload.
func ParseReportPayload(p [PayloadSize]byte) (kind uint16, value uint32) {
	return binary.LittleEndian.Uint16(p[0:2]), binary.LittleEndian.Uint32(p[2:6])
}

// StatusPayload builds the CmdNetworkStatus payload: the connectivity state in
// byte 0, little-endian UTC seconds in bytes 1–4 and the signed quarter-hour
// timezone offset in byte 5.
func StatusPayload(state NetState, utc uint32, tz int8) [PayloadSize]byte {
	var p [PayloadSize]byte
	p[0] = byte(state)
	binary.LittleEndian.PutUint32(p[1:5], utc)
	p[5] = byte(tz)

	return p
}

// ParseStatusPayload extracts state, UTC seconds and timezone offset from a
// CmdNetworkStatus payload.
func ParseStatusPayload(p [PayloadSize]byte) (state NetState, utc uint32, tz int8) {
	return NetState(p[0]), binary.LittleEndian.Uint32(p[1:5]), int8(p[5])
}

// TimeReplyPayload builds the CmdTimeReply payload: little-endian UTC seconds
// in bytes 0–3 and the signed quarter-hour timezone offset in byte 4.
// Byte 5 is reserved and stays zero.
func TimeReplyPayload(utc uint32, tz int8) [PayloadSize]byte {
	var p [PayloadSize]byte
	binary.LittleEndian.PutUint32(p[0:4], utc)
	p[4] = byte(tz)

	return p
}

// ParseTimeReplyPayload extracts UTC seconds and timezone offset from a
// CmdTimeReply payload.
func ParseTimeReplyPayload(p [PayloadSize]byte) (utc uint32, tz int8) {
	return binary.LittleEndian.Uint32(p[0:4]), int8(p[4])
}

// ResponsePayload builds the generic CmdResponse payload. result is 0x00 for
// success or 0x02 for failure; class identifies the request being answered.
func ResponsePayload(result byte, class byte) [PayloadSize]byte {
	var p [PayloadSize]byte
	p[0] = result
	p[1] = class

	return p
}
