package mculink

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinnet/go-mculink/logger"
)

type reporterHarness struct {
	r       *reporter
	ts      *CachedTime
	metrics *LinkMetrics

	sent    []*Packet
	sendErr error
}

func newReporterHarness(t *testing.T, opts ...LinkOption) *reporterHarness {
	t.Helper()

	cfg, err := newLinkConfig(opts...)
	require.NoError(t, err)

	h := &reporterHarness{
		ts:      &CachedTime{},
		metrics: &LinkMetrics{},
	}

	send := func(pkt *Packet) error {
		if h.sendErr != nil {
			return h.sendErr
		}

		h.sent = append(h.sent, pkt)

		return nil
	}

	h.r = newReporter(logger.NewSlog(logger.ErrorLevel, false), h.ts, send, h.metrics, cfg)

	return h
}

func (h *reporterHarness) sentKinds() []uint16 {
	kinds := make([]uint16, 0, len(h.sent))
	for _, pkt := range h.sent {
		kind, _ := ParseReportPayload(pkt.Payload)
		kinds = append(kinds, kind)
	}

	return kinds
}

func TestReporter_ImmediateSendWhenConnected(t *testing.T) {
	h := newReporterHarness(t)
	h.ts.Set(1700000000, 0)

	h.r.report(0x0001, 0xCAFE)

	require.Len(t, h.sent, 1)
	assert.Equal(t, CmdStateReport, h.sent[0].Command)

	kind, value := ParseReportPayload(h.sent[0].Payload)
	assert.Equal(t, uint16(0x0001), kind)
	assert.Equal(t, uint32(0xCAFE), value)

	assert.Equal(t, 1, h.r.pendingCount())
	assert.Equal(t, uint64(1), h.metrics.ReportSendCount.Load())
	assert.Zero(t, h.metrics.ReportRetryCount.Load())
}

func TestReporter_DeferredWhileDisconnected(t *testing.T) {
	h := newReporterHarness(t)

	h.r.report(0x0001, 1)
	assert.Empty(t, h.sent)
	assert.Equal(t, 1, h.r.pendingCount())

	// The retry pass is skipped entirely until the link comes up; deferred
	// reports wait without burning retries.
	h.r.scan(time.Now().Add(time.Hour))
	assert.Empty(t, h.sent)
	assert.Equal(t, 1, h.r.pendingCount())

	h.ts.Set(1700000000, 0)
	h.r.scan(time.Now())

	require.Len(t, h.sent, 1)
	assert.Equal(t, 1, h.r.pendingCount())
}

func TestReporter_RetryBound(t *testing.T) {
	h := newReporterHarness(t)
	h.ts.Set(1700000000, 0)

	base := time.Now()
	h.r.report(0x0002, 7)
	require.Len(t, h.sent, 1, "immediate send")

	// Each pass past the ack timeout retransmits once, up to the retry
	// budget; the pass after that drops the report.
	for i := 1; i <= DefaultMaxRetries; i++ {
		h.r.scan(base.Add(time.Duration(i) * 200 * time.Millisecond))
		assert.Len(t, h.sent, 1+i, "retry %d", i)
		assert.Equal(t, 1, h.r.pendingCount())
	}

	h.r.scan(base.Add(time.Hour))
	assert.Len(t, h.sent, 1+DefaultMaxRetries, "no send past the budget")
	assert.Zero(t, h.r.pendingCount())

	h.r.scan(base.Add(2 * time.Hour))
	assert.Len(t, h.sent, 1+DefaultMaxRetries)

	assert.Equal(t, uint64(DefaultMaxRetries), h.metrics.ReportRetryCount.Load())
	assert.Equal(t, uint64(1), h.metrics.ReportDropCount.Load())
	assert.Zero(t, h.metrics.ReportPendingGauge.Load())
}

func TestReporter_AckResolvesOldest(t *testing.T) {
	h := newReporterHarness(t)
	h.ts.Set(1700000000, 0)

	h.r.report(0x000A, 1)
	h.r.report(0x000B, 2)
	require.Equal(t, []uint16{0x000A, 0x000B}, h.sentKinds())

	h.r.acknowledge()
	assert.Equal(t, 1, h.r.pendingCount())

	// Only B is left; a timed-out pass retransmits it, not A.
	h.r.scan(time.Now().Add(time.Second))
	require.Equal(t, []uint16{0x000A, 0x000B, 0x000B}, h.sentKinds())

	h.r.acknowledge()
	assert.Zero(t, h.r.pendingCount())
	assert.Equal(t, uint64(2), h.metrics.ReportAckCount.Load())
}

func TestReporter_AckWithoutPending(t *testing.T) {
	h := newReporterHarness(t)

	h.r.acknowledge()

	assert.Zero(t, h.metrics.ReportAckCount.Load())
}

func TestReporter_SendFailureStaysPending(t *testing.T) {
	h := newReporterHarness(t, WithMaxRetries(1))
	h.ts.Set(1700000000, 0)
	h.sendErr = errors.New("wire busy")

	base := time.Now()
	h.r.report(0x0003, 9)
	assert.Empty(t, h.sent)
	assert.Equal(t, 1, h.r.pendingCount())

	// Failed retransmissions count against the same budget.
	h.r.scan(base.Add(200 * time.Millisecond))
	assert.Empty(t, h.sent)
	assert.Equal(t, 1, h.r.pendingCount())

	h.r.scan(base.Add(400 * time.Millisecond))
	assert.Zero(t, h.r.pendingCount())
	assert.Equal(t, uint64(1), h.metrics.ReportDropCount.Load())
}

func TestReporter_DuplicateKindsTrackedIndependently(t *testing.T) {
	h := newReporterHarness(t)
	h.ts.Set(1700000000, 0)

	h.r.report(0x0001, 1)
	h.r.report(0x0001, 2)

	assert.Equal(t, 2, h.r.pendingCount())
	require.Len(t, h.sent, 2)

	_, v0 := ParseReportPayload(h.sent[0].Payload)
	_, v1 := ParseReportPayload(h.sent[1].Payload)
	assert.Equal(t, uint32(1), v0)
	assert.Equal(t, uint32(2), v1)
}
