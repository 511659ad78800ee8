package mculink

import (
	"sync"
	"time"

	"github.com/tinnet/go-mculink/logger"
)

// NetState represents the various stages of module connectivity.
//
// The states are strictly ordered; a higher value implies every lower
// milestone has been reached. The values are fixed by the peer firmware and
// travel on the wire in CmdNetworkStatus packets.
type NetState byte

// Connectivity states representing the progression from unconfigured to fully
// server-connected.
const (
	// StateNotConfigured indicates that no network credentials are present.
	StateNotConfigured NetState = 0x01
	// StateConnectingRouter indicates that the module is associating with the router.
	StateConnectingRouter NetState = 0x02
	// StateConnectedRouter indicates that the router link is up.
	StateConnectedRouter NetState = 0x03
	// StateConnectedServer indicates that the server session is established.
	StateConnectedServer NetState = 0x04
)

// RouterConnected returns if the state has reached the router milestone.
func (s NetState) RouterConnected() bool { return s >= StateConnectedRouter }

// ServerConnected returns if the state has reached the server milestone.
func (s NetState) ServerConnected() bool { return s >= StateConnectedServer }

// String returns string representation of the state.
func (s NetState) String() string {
	switch s {
	case StateNotConfigured:
		return "not-configured"
	case StateConnectingRouter:
		return "connecting-router"
	case StateConnectedRouter:
		return "connected-router"
	case StateConnectedServer:
		return "connected-server"
	default:
		return "unknown"
	}
}

// WatchdogTimeoutHandler is invoked when a connectivity watchdog fires before
// its milestone state was reached. state identifies the milestone that was
// missed. The recovery action (power-cycling the module, re-provisioning) is
// host-specific and left to the handler.
type WatchdogTimeoutHandler func(state NetState)

// netMonitor tracks the connectivity state of the link and runs the two
// bring-up watchdogs.
//
// All state mutation happens under mu, including watchdog cancellation; a
// watchdog callback that loses the race against a state update observes the
// updated state under the same lock and stands down.
type netMonitor struct {
	mu     sync.Mutex
	logger logger.Logger

	state      NetState
	timeSource TimeSource
	sendPacket func(*Packet) error

	routerTimeout time.Duration
	serverTimeout time.Duration
	onTimeout     WatchdogTimeoutHandler

	routerWatchdog *time.Timer
	serverWatchdog *time.Timer
}

func newNetMonitor(l logger.Logger, ts TimeSource, send func(*Packet) error, cfg *linkConfig) *netMonitor {
	return &netMonitor{
		logger:        l,
		state:         StateNotConfigured,
		timeSource:    ts,
		sendPacket:    send,
		routerTimeout: cfg.routerTimeout,
		serverTimeout: cfg.serverTimeout,
		onTimeout:     cfg.onWatchdogTimeout,
	}
}

// update records a new connectivity state and notifies the peer.
//
// It is a no-op when state equals the current state: no packet is sent and no
// watchdog is touched. Otherwise the new state is recorded, any watchdog whose
// milestone is now reached or passed is cancelled, and a CmdNetworkStatus
// packet is sent. The reference time fields of the packet are zero unless the
// new state is StateConnectedServer.
//
// Concurrent callers are serialized; notification packets go out in that
// serialization order.
func (m *netMonitor) update(state NetState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state == m.state {
		return nil
	}

	prev := m.state
	m.state = state

	if state.RouterConnected() {
		m.cancelRouterWatchdog()
	}

	if state.ServerConnected() {
		m.cancelServerWatchdog()
	}

	var utc uint32
	var tz int8
	if state == StateConnectedServer {
		utc = m.timeSource.ReferenceTime()
		tz = m.timeSource.TimezoneOffset()
	}

	m.logger.Info("mculink: connectivity state changed", "prev", prev, "state", state)

	pkt := &Packet{Command: CmdNetworkStatus, Payload: StatusPayload(state, utc, tz)}

	return m.sendPacket(pkt)
}

// current returns the current connectivity state.
func (m *netMonitor) current() NetState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// startMonitor arms the router and server watchdogs with their configured
// timeouts. Watchdogs already armed are left running; watchdogs whose
// milestone has already been reached are not armed. Each watchdog is
// single-shot and is never rearmed automatically.
func (m *netMonitor) startMonitor() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.routerWatchdog == nil && !m.state.RouterConnected() {
		m.routerWatchdog = time.AfterFunc(m.routerTimeout, func() {
			m.watchdogFired(StateConnectedRouter)
		})
	}

	if m.serverWatchdog == nil && !m.state.ServerConnected() {
		m.serverWatchdog = time.AfterFunc(m.serverTimeout, func() {
			m.watchdogFired(StateConnectedServer)
		})
	}
}

// stopMonitor cancels any armed watchdog. Called on link shutdown.
func (m *netMonitor) stopMonitor() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelRouterWatchdog()
	m.cancelServerWatchdog()
}

// watchdogFired runs on the timer goroutine when a watchdog expires. It
// re-checks the milestone under the lock, since the timer may have fired
// concurrently with an update that would have cancelled it.
func (m *netMonitor) watchdogFired(milestone NetState) {
	m.mu.Lock()

	switch milestone {
	case StateConnectedRouter:
		m.routerWatchdog = nil
	case StateConnectedServer:
		m.serverWatchdog = nil
	}

	if m.state >= milestone {
		m.mu.Unlock()
		return
	}

	state := m.state
	onTimeout := m.onTimeout
	m.mu.Unlock()

	m.logger.Error("mculink: connectivity watchdog expired",
		"milestone", milestone,
		"state", state,
	)

	if onTimeout != nil {
		onTimeout(milestone)
	}
}

// cancelRouterWatchdog stops the router watchdog if armed. Idempotent.
// Caller must hold mu.
func (m *netMonitor) cancelRouterWatchdog() {
	if m.routerWatchdog != nil {
		m.routerWatchdog.Stop()
		m.routerWatchdog = nil
	}
}

// cancelServerWatchdog stops the server watchdog if armed. Idempotent.
// Caller must hold mu.
func (m *netMonitor) cancelServerWatchdog() {
	if m.serverWatchdog != nil {
		m.serverWatchdog.Stop()
		m.serverWatchdog = nil
	}
}
