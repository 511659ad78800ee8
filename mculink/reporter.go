package mculink

import (
	"sync"
	"time"

	"github.com/tinnet/go-mculink/logger"
)

// pendingReport is one state report awaiting acknowledgment.
type pendingReport struct {
	kind       uint16
	value      uint32
	lastSentAt time.Time
	attempts   int
}

// reporter implements at-least-once delivery of state reports.
//
// Pending reports live in a FIFO deque guarded by mu. The retry task scans
// the deque at a fixed interval and retransmits reports whose acknowledgment
// timeout has elapsed, up to maxRetries transmissions, then drops them.
//
// Acknowledgments carry no correlation identifier; acknowledge always
// resolves the oldest pending report. The peer acknowledges in arrival order,
// which makes this correct as long as the wire preserves ordering.
type reporter struct {
	mu      sync.Mutex
	logger  logger.Logger
	pending []*pendingReport

	timeSource TimeSource
	sendPacket func(*Packet) error
	metrics    *LinkMetrics

	maxRetries int
	ackTimeout time.Duration
}

func newReporter(l logger.Logger, ts TimeSource, send func(*Packet) error, metrics *LinkMetrics, cfg *linkConfig) *reporter {
	return &reporter{
		logger:     l,
		timeSource: ts,
		sendPacket: send,
		metrics:    metrics,
		maxRetries: cfg.maxRetries,
		ackTimeout: cfg.ackTimeout,
	}
}

// connected reports whether the link is considered reachable. The time-sync
// collaborator caches a non-zero reference time only after a successful
// round trip to the network, so a non-zero value is used as the reachability
// heuristic.
func (r *reporter) connected() bool {
	return r.timeSource.ReferenceTime() != 0
}

// report queues a (kind, value) state report for reliable delivery.
//
// The report is always appended, even when an identical one is already
// pending; duplicates are tracked independently. If the link is currently
// considered connected it is also sent immediately. The immediate send does
// not count against the retry budget; retransmissions are owned entirely by
// the retry task.
//
// report is fire and forget. Send failures are logged and the report stays
// pending for the retry task.
func (r *reporter) report(kind uint16, value uint32) {
	item := &pendingReport{kind: kind, value: value}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending = append(r.pending, item)
	r.metrics.incReportPendingGauge()

	if !r.connected() {
		r.logger.Debug("mculink: link not ready, report deferred", "kind", kind, "value", value)
		return
	}

	item.lastSentAt = time.Now()

	if err := r.send(item); err != nil {
		// Stays pending; the retry task picks it up on its next pass.
		r.logger.Warn("mculink: initial report send failed", "kind", kind, "error", err)
	}
}

// acknowledge resolves the oldest pending report, if any.
func (r *reporter) acknowledge() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.pending) == 0 {
		r.logger.Warn("mculink: acknowledgment with no pending report")
		return
	}

	item := r.pending[0]
	r.pending[0] = nil
	r.pending = r.pending[1:]

	r.metrics.incReportAckCount()
	r.metrics.decReportPendingGauge()

	r.logger.Debug("mculink: report acknowledged",
		"kind", item.kind,
		"value", item.value,
		"attempts", item.attempts,
	)
}

// pendingCount returns the number of reports awaiting acknowledgment.
func (r *reporter) pendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.pending)
}

// scan is one pass of the retry task. Reports whose age since the last
// transmission exceeds the acknowledgment timeout are retransmitted with
// their attempt count bumped; reports that already used their full retry
// budget are dropped with a warning.
//
// The whole pass is skipped while the link is not considered connected, so
// deferred and timed-out reports wait, without burning retries, until the
// link comes up.
//
// now is injected by the caller; the interval task passes time.Now.
func (r *reporter) scan(now time.Time) {
	if !r.connected() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	retained := r.pending[:0]

	for _, item := range r.pending {
		if now.Sub(item.lastSentAt) <= r.ackTimeout {
			retained = append(retained, item)
			continue
		}

		if item.attempts >= r.maxRetries {
			r.metrics.incReportDropCount()
			r.metrics.decReportPendingGauge()

			r.logger.Warn("mculink: report dropped, retries exhausted",
				"kind", item.kind,
				"value", item.value,
				"attempts", item.attempts,
			)

			continue
		}

		item.attempts++
		item.lastSentAt = now
		r.metrics.incReportRetryCount()

		if err := r.send(item); err != nil {
			r.logger.Warn("mculink: report retransmission failed",
				"kind", item.kind,
				"attempts", item.attempts,
				"error", err,
			)
		}

		retained = append(retained, item)
	}

	// Clear the tail so dropped items do not linger in the backing array.
	for i := len(retained); i < len(r.pending); i++ {
		r.pending[i] = nil
	}

	r.pending = retained
}

// send transmits one report packet. Caller must hold mu.
func (r *reporter) send(item *pendingReport) error {
	pkt := &Packet{Command: CmdStateReport, Payload: ReportPayload(item.kind, item.value)}

	if err := r.sendPacket(pkt); err != nil {
		return err
	}

	r.metrics.incReportSendCount()

	return nil
}
