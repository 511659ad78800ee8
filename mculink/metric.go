package mculink

import (
	"sync/atomic"
)

// LinkMetrics contains atomic metrics for a link connection.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type LinkMetrics struct {
	// FrameSendCount indicates the number of frames written to the transport.
	FrameSendCount atomic.Uint64
	// FrameRecvCount indicates the number of valid frames received.
	FrameRecvCount atomic.Uint64
	// FrameErrCount indicates the number of completed frames that failed validation.
	FrameErrCount atomic.Uint64
	// UnknownCmdCount indicates the number of packets received with an unregistered command code.
	UnknownCmdCount atomic.Uint64

	// ReportSendCount indicates the number of state-report transmissions, including retransmissions.
	ReportSendCount atomic.Uint64
	// ReportRetryCount indicates the number of state-report retransmissions.
	ReportRetryCount atomic.Uint64
	// ReportDropCount indicates the number of state reports dropped after exhausting retries.
	ReportDropCount atomic.Uint64
	// ReportAckCount indicates the number of state-report acknowledgments received.
	ReportAckCount atomic.Uint64
	// ReportPendingGauge indicates the number of state reports currently awaiting acknowledgment.
	ReportPendingGauge atomic.Int64
}

func (m *LinkMetrics) incFrameSendCount() {
	m.FrameSendCount.Add(1)
}

func (m *LinkMetrics) incFrameRecvCount() {
	m.FrameRecvCount.Add(1)
}

func (m *LinkMetrics) incFrameErrCount() {
	m.FrameErrCount.Add(1)
}

func (m *LinkMetrics) incUnknownCmdCount() {
	m.UnknownCmdCount.Add(1)
}

func (m *LinkMetrics) incReportSendCount() {
	m.ReportSendCount.Add(1)
}

func (m *LinkMetrics) incReportRetryCount() {
	m.ReportRetryCount.Add(1)
}

func (m *LinkMetrics) incReportDropCount() {
	m.ReportDropCount.Add(1)
}

func (m *LinkMetrics) incReportAckCount() {
	m.ReportAckCount.Add(1)
}

func (m *LinkMetrics) incReportPendingGauge() {
	m.ReportPendingGauge.Add(1)
}

func (m *LinkMetrics) decReportPendingGauge() {
	m.ReportPendingGauge.Add(-1)
}
