package mculink

import (
	"fmt"
	"time"

	"github.com/tinnet/go-mculink/logger"
)

// Default link parameters. They mirror the peer firmware's timings.
const (
	// DefaultMaxRetries is the retry budget of one state report.
	DefaultMaxRetries = 3

	// DefaultAckTimeout is how long a state report may stay unacknowledged
	// before it is retransmitted.
	DefaultAckTimeout = 100 * time.Millisecond

	// DefaultRetryInterval is the poll interval of the retry task.
	DefaultRetryInterval = 50 * time.Millisecond

	// DefaultRouterTimeout is the watchdog window for reaching StateConnectedRouter.
	DefaultRouterTimeout = 5 * time.Second

	// DefaultServerTimeout is the watchdog window for reaching StateConnectedServer.
	DefaultServerTimeout = 12 * time.Second

	// DefaultReadBufferSize is the size of the transport read buffer.
	DefaultReadBufferSize = 256
)

// Parameter range limits.
const (
	MaxRetryLimit = 31

	MinAckTimeout    = 10 * time.Millisecond
	MaxAckTimeout    = 10 * time.Second
	MinRetryInterval = 10 * time.Millisecond
	MaxRetryInterval = 10 * time.Second

	MinWatchdogTimeout = 100 * time.Millisecond
	MaxWatchdogTimeout = 10 * time.Minute
)

// StateReportHandler is invoked for every state report received from the
// peer, after the report has been acknowledged on the wire.
type StateReportHandler func(kind uint16, value uint32)

// linkConfig holds all configuration for a Conn.
type linkConfig struct {
	logger     logger.Logger
	timeSource TimeSource

	// Reliable delivery parameters.
	maxRetries    int
	ackTimeout    time.Duration
	retryInterval time.Duration

	// Connectivity watchdog windows.
	routerTimeout time.Duration
	serverTimeout time.Duration

	onWatchdogTimeout WatchdogTimeoutHandler
	onStateReport     StateReportHandler

	readBufSize int
}

func newLinkConfig(opts ...LinkOption) (*linkConfig, error) {
	cfg := &linkConfig{
		logger:        logger.GetLogger(),
		maxRetries:    DefaultMaxRetries,
		ackTimeout:    DefaultAckTimeout,
		retryInterval: DefaultRetryInterval,
		routerTimeout: DefaultRouterTimeout,
		serverTimeout: DefaultServerTimeout,
		readBufSize:   DefaultReadBufferSize,
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.timeSource == nil {
		cfg.timeSource = &CachedTime{}
	}

	return cfg, nil
}

// LinkOption is a functional option for configuring a Conn.
type LinkOption interface {
	apply(*linkConfig) error
}

type linkOptFunc func(*linkConfig) error

func (f linkOptFunc) apply(cfg *linkConfig) error { return f(cfg) }

// WithLogger sets the logger used by the connection and its tasks.
// Defaults to the package-level logger.
func WithLogger(l logger.Logger) LinkOption {
	return linkOptFunc(func(cfg *linkConfig) error {
		if l == nil {
			return fmt.Errorf("mculink: logger is nil")
		}
		cfg.logger = l

		return nil
	})
}

// WithTimeSource sets the time-sync collaborator the link consults for the
// reference time and the reachability heuristic. Defaults to an empty
// CachedTime, which reports "never synchronized" until its Set is called.
func WithTimeSource(ts TimeSource) LinkOption {
	return linkOptFunc(func(cfg *linkConfig) error {
		if ts == nil {
			return fmt.Errorf("mculink: time source is nil")
		}
		cfg.timeSource = ts

		return nil
	})
}

// WithMaxRetries sets the retry budget per state report. Must be in [0, 31].
func WithMaxRetries(n int) LinkOption {
	return linkOptFunc(func(cfg *linkConfig) error {
		if n < 0 || n > MaxRetryLimit {
			return fmt.Errorf("mculink: max retries %d out of range [0, %d]", n, MaxRetryLimit)
		}
		cfg.maxRetries = n

		return nil
	})
}

// WithAckTimeout sets how long a state report may stay unacknowledged before
// it is retransmitted.
func WithAckTimeout(d time.Duration) LinkOption {
	return linkOptFunc(func(cfg *linkConfig) error {
		if d < MinAckTimeout || d > MaxAckTimeout {
			return fmt.Errorf("mculink: ack timeout %v out of range [%v, %v]", d, MinAckTimeout, MaxAckTimeout)
		}
		cfg.ackTimeout = d

		return nil
	})
}

// WithRetryInterval sets the poll interval of the retry task.
func WithRetryInterval(d time.Duration) LinkOption {
	return linkOptFunc(func(cfg *linkConfig) error {
		if d < MinRetryInterval || d > MaxRetryInterval {
			return fmt.Errorf("mculink: retry interval %v out of range [%v, %v]", d, MinRetryInterval, MaxRetryInterval)
		}
		cfg.retryInterval = d

		return nil
	})
}

// WithRouterWatchdog sets the watchdog window for reaching StateConnectedRouter
// after StartMonitor.
func WithRouterWatchdog(d time.Duration) LinkOption {
	return linkOptFunc(func(cfg *linkConfig) error {
		if d < MinWatchdogTimeout || d > MaxWatchdogTimeout {
			return fmt.Errorf("mculink: router watchdog %v out of range [%v, %v]", d, MinWatchdogTimeout, MaxWatchdogTimeout)
		}
		cfg.routerTimeout = d

		return nil
	})
}

// WithServerWatchdog sets the watchdog window for reaching StateConnectedServer
// after StartMonitor.
func WithServerWatchdog(d time.Duration) LinkOption {
	return linkOptFunc(func(cfg *linkConfig) error {
		if d < MinWatchdogTimeout || d > MaxWatchdogTimeout {
			return fmt.Errorf("mculink: server watchdog %v out of range [%v, %v]", d, MinWatchdogTimeout, MaxWatchdogTimeout)
		}
		cfg.serverTimeout = d

		return nil
	})
}

// WithWatchdogTimeoutHandler sets the handler invoked when a connectivity
// watchdog expires before its milestone state was reached.
func WithWatchdogTimeoutHandler(h WatchdogTimeoutHandler) LinkOption {
	return linkOptFunc(func(cfg *linkConfig) error {
		cfg.onWatchdogTimeout = h
		return nil
	})
}

// WithStateReportHandler sets the handler invoked for state reports received
// from the peer.
func WithStateReportHandler(h StateReportHandler) LinkOption {
	return linkOptFunc(func(cfg *linkConfig) error {
		cfg.onStateReport = h
		return nil
	})
}

// WithReadBufferSize sets the size of the transport read buffer.
func WithReadBufferSize(size int) LinkOption {
	return linkOptFunc(func(cfg *linkConfig) error {
		if size < 1 {
			return fmt.Errorf("mculink: read buffer size %d must be positive", size)
		}
		cfg.readBufSize = size

		return nil
	})
}
