package mculink

import (
	"sync/atomic"
)

// TimeSource supplies the best-known reference time for the link.
//
// The actual synchronization mechanism (HTTP, NTP, cloud push) lives outside
// this package; the link layer only reads the cached values. A zero reference
// time means "never synchronized" and doubles as the link-reachability
// heuristic used by the Reporter: a module that has obtained wall-clock time
// has, at some point, reached the network.
type TimeSource interface {
	// ReferenceTime returns the cached UTC time in seconds since the Unix
	// epoch, or 0 if no sync has succeeded yet.
	ReferenceTime() uint32

	// TimezoneOffset returns the cached timezone offset in signed
	// quarter-hour units, or 0 if no sync has succeeded yet.
	TimezoneOffset() int8
}

// CachedTime is a TimeSource backed by atomically cached values. The time-sync
// collaborator calls Set after each successful synchronization; all link tasks
// read it lock-free.
//
// The zero value is ready to use and reports "never synchronized".
type CachedTime struct {
	utc atomic.Uint32
	tz  atomic.Int32
}

var _ TimeSource = (*CachedTime)(nil)

// Set stores a new reference time and timezone offset.
func (c *CachedTime) Set(utc uint32, tz int8) {
	c.utc.Store(utc)
	c.tz.Store(int32(tz))
}

// ReferenceTime returns the cached UTC seconds, 0 until the first Set.
func (c *CachedTime) ReferenceTime() uint32 {
	return c.utc.Load()
}

// TimezoneOffset returns the cached timezone offset in quarter hours.
func (c *CachedTime) TimezoneOffset() int8 {
	return int8(c.tz.Load())
}
