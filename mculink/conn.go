package mculink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinnet/go-mculink/internal/pool"
	"github.com/tinnet/go-mculink/internal/task"
	"github.com/tinnet/go-mculink/logger"
)

// ErrConnClosed indicates an operation on a closed connection.
var ErrConnClosed = errors.New("mculink: connection closed")

const (
	closeTimeout       = 3 * time.Second
	closeCheckInterval = 10 * time.Millisecond
)

// Conn is one MCU link connection over a byte-stream transport.
//
// Conn owns the receive task that feeds the framer, the retry task of the
// reliable delivery queue, and the connectivity monitor. All outbound frames,
// regardless of which task produced them, funnel through SendPacket, which
// serializes writes so every frame reaches the wire atomically.
//
// The transport is any io.ReadWriteCloser: a serial port in production, a
// net.Pipe end in tests.
type Conn struct {
	cfg       *linkConfig
	logger    logger.Logger
	transport io.ReadWriteCloser

	// writeMu serializes whole-frame writes to the transport.
	writeMu sync.Mutex

	framer     *Framer
	dispatcher *dispatcher
	reporter   *reporter
	netMon     *netMonitor

	taskMgr *task.Manager
	metrics *LinkMetrics

	opened   atomic.Bool
	shutdown atomic.Bool
	cancel   context.CancelFunc
}

// NewConn creates a connection over the given transport.
//
// The connection is inert until Open is called; built-in command handlers are
// registered immediately, so Handle may be used to add application handlers
// before any byte is read.
func NewConn(ctx context.Context, transport io.ReadWriteCloser, opts ...LinkOption) (*Conn, error) {
	if transport == nil {
		return nil, errors.New("mculink: transport is nil")
	}

	cfg, err := newLinkConfig(opts...)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)

	c := &Conn{
		cfg:       cfg,
		logger:    cfg.logger,
		transport: transport,
		metrics:   &LinkMetrics{},
		taskMgr:   task.NewManager(ctx, cfg.logger),
		cancel:    cancel,
	}

	c.dispatcher = newDispatcher(cfg.logger, c.metrics.incUnknownCmdCount)
	c.framer = NewFramer(cfg.logger, c.handlePacket, c.metrics.incFrameErrCount)
	c.reporter = newReporter(cfg.logger, cfg.timeSource, c.SendPacket, c.metrics, cfg)
	c.netMon = newNetMonitor(cfg.logger, cfg.timeSource, c.SendPacket, cfg)

	c.registerBuiltinHandlers()

	return c, nil
}

// Open starts the receive task and the retry task.
func (c *Conn) Open() error {
	if c.shutdown.Load() {
		return ErrConnClosed
	}

	if !c.opened.CompareAndSwap(false, true) {
		return errors.New("mculink: connection already open")
	}

	if err := c.taskMgr.Start("receiveLoop", c.receiveLoop()); err != nil {
		return err
	}

	_, err := c.taskMgr.StartInterval("reportRetry", func() bool {
		c.reporter.scan(time.Now())
		return true
	}, c.cfg.retryInterval, false)

	return err
}

// Close shuts the connection down: it cancels the connectivity watchdogs,
// stops all tasks, closes the transport and waits for the tasks to exit.
// Close is idempotent.
func (c *Conn) Close() error {
	if !c.shutdown.CompareAndSwap(false, true) {
		return nil
	}

	c.logger.Debug("mculink: closing connection")

	c.netMon.stopMonitor()
	c.taskMgr.Stop()
	c.cancel()

	// Closing the transport unblocks the receive task's pending read.
	if err := c.transport.Close(); err != nil {
		c.logger.Warn("mculink: transport close failed", "error", err)
	}

	done := make(chan struct{})
	go func() {
		c.taskMgr.Wait()
		close(done)
	}()

	closeTimer := pool.GetTimer(closeTimeout)
	defer pool.PutTimer(closeTimer)

	select {
	case <-done:
		return nil
	case <-closeTimer.C:
		c.logger.Error("mculink: close connection timeout", "timeout", closeTimeout)
		return errors.New("mculink: close connection timeout")
	}
}

// SendPacket encodes pkt and writes the frame to the transport.
//
// It may be called from any goroutine; writes are serialized so frames never
// interleave on the wire.
func (c *Conn) SendPacket(pkt *Packet) error {
	if c.shutdown.Load() {
		return ErrConnClosed
	}

	frame := pkt.Encode()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.transport.Write(frame); err != nil {
		return fmt.Errorf("mculink: frame write failed: %w", err)
	}

	c.metrics.incFrameSendCount()

	return nil
}

// Report queues a (kind, value) state report for reliable, at-least-once
// delivery to the peer. The call is fire and forget: delivery failures
// degrade to logged retries and, after the retry budget, a logged drop.
func (c *Conn) Report(kind uint16, value uint32) {
	c.reporter.report(kind, value)
}

// PendingReports returns the number of state reports awaiting acknowledgment.
func (c *Conn) PendingReports() int {
	return c.reporter.pendingCount()
}

// UpdateNetState records a new connectivity state and, unless the state is
// unchanged, notifies the peer with a CmdNetworkStatus packet.
func (c *Conn) UpdateNetState(state NetState) error {
	return c.netMon.update(state)
}

// NetState returns the current connectivity state.
func (c *Conn) NetState() NetState {
	return c.netMon.current()
}

// StartMonitor arms the connectivity bring-up watchdogs. Call it when the
// network bring-up sequence begins.
func (c *Conn) StartMonitor() {
	c.netMon.startMonitor()
}

// Handle registers h for the given command code, replacing any previously
// registered handler. Handlers run synchronously on the receive task and must
// not block for unbounded time.
//
// CmdTimeRequest, CmdStateReport, CmdStateReportAck and CmdNetworkStatus are
// pre-registered; replacing one of them disables the corresponding built-in
// link behavior.
func (c *Conn) Handle(cmd byte, h PacketHandler) {
	c.dispatcher.handle(cmd, h)
}

// GetLogger returns the connection's logger.
func (c *Conn) GetLogger() logger.Logger {
	return c.logger
}

// GetMetrics returns the connection metrics.
func (c *Conn) GetMetrics() *LinkMetrics {
	return c.metrics
}

// receiveLoop returns the receive task body. Each iteration performs one
// blocking read and feeds the bytes to the framer.
func (c *Conn) receiveLoop() task.Func {
	buf := make([]byte, c.cfg.readBufSize)

	return func() bool {
		n, err := c.transport.Read(buf)
		if n > 0 {
			c.framer.FeedBytes(buf[:n])
		}

		if err != nil {
			if !c.shutdown.Load() {
				c.logger.Error("mculink: transport read failed", "error", err)
			}

			return false
		}

		return true
	}
}

// handlePacket runs on the receive task for every validated frame.
func (c *Conn) handlePacket(pkt *Packet) {
	c.metrics.incFrameRecvCount()
	c.dispatcher.dispatch(pkt)
}

func (c *Conn) registerBuiltinHandlers() {
	c.dispatcher.handle(CmdTimeRequest, c.handleTimeRequest)
	c.dispatcher.handle(CmdStateReport, c.handleStateReport)
	c.dispatcher.handle(CmdStateReportAck, c.handleStateReportAck)
	c.dispatcher.handle(CmdNetworkStatus, c.handleNetworkStatus)
}

// handleTimeRequest answers CmdTimeRequest with the cached reference time.
// The reply carries zeros until the first successful time sync; the peer
// treats a zero time as "not synchronized yet" and asks again later.
func (c *Conn) handleTimeRequest(_ *Packet) {
	utc := c.cfg.timeSource.ReferenceTime()
	tz := c.cfg.timeSource.TimezoneOffset()

	reply := &Packet{Command: CmdTimeReply, Payload: TimeReplyPayload(utc, tz)}
	if err := c.SendPacket(reply); err != nil {
		c.logger.Warn("mculink: time reply send failed", "error", err)
	}
}

// handleStateReport processes a state report originated by the peer: it
// acknowledges the report on the wire, then forwards it to the application
// handler, if one is configured.
func (c *Conn) handleStateReport(pkt *Packet) {
	kind, value := ParseReportPayload(pkt.Payload)

	ack := &Packet{Command: CmdStateReportAck}
	if err := c.SendPacket(ack); err != nil {
		c.logger.Warn("mculink: report ack send failed", "error", err)
	}

	if c.cfg.onStateReport != nil {
		c.cfg.onStateReport(kind, value)
	}
}

// handleStateReportAck resolves the oldest outstanding report of ours.
func (c *Conn) handleStateReportAck(_ *Packet) {
	c.reporter.acknowledge()
}

// handleNetworkStatus logs a connectivity notification received from the
// peer. The local connectivity state is driven by UpdateNetState only; a
// peer-announced state is informational.
func (c *Conn) handleNetworkStatus(pkt *Packet) {
	state, utc, tz := ParseStatusPayload(pkt.Payload)

	c.logger.Debug("mculink: peer connectivity status",
		"state", state,
		"utc", utc,
		"tz", tz,
	)
}
