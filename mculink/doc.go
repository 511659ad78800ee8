// Package mculink implements the serial link protocol spoken between a host
// MCU and a network co-processor module, treating any byte-stream transport
// as the wire in place of a raw UART.
//
// # Protocol Overview
//
// Every exchange is a fixed 10-byte frame:
//
//	[0xAA][0x55][command][payload(6)][checksum]
//
// The two marker bytes delimit frame start, the checksum is the 8-bit
// truncated sum of the nine preceding bytes, and multi-byte payload fields are
// little-endian. There is no windowing, fragmentation or multiplexing; the
// protocol assumes a single logical peer and the fixed frame size.
//
// # Reliable State Reports
//
// CmdStateReport carries a (kind, value) pair that must reach the peer at
// least once. Reports are queued, sent immediately when the link is
// considered reachable, and retransmitted by a background task until the peer
// acknowledges with CmdStateReportAck or the retry budget is exhausted.
// Acknowledgments carry no identifier; each one resolves the oldest pending
// report, so correctness relies on the wire preserving ordering.
//
// # Connectivity Monitoring
//
// The link tracks an ordered connectivity state, from StateNotConfigured up
// to StateConnectedServer, and notifies the peer of every change with a
// CmdNetworkStatus packet. StartMonitor arms two single-shot watchdogs that
// flag a bring-up sequence stuck before the router or server milestone.
//
// # Transports
//
// Conn runs over any io.ReadWriteCloser. Production deployments use the
// serialport package; tests use net.Pipe.
package mculink
