package mculink

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/tinnet/go-mculink/logger"
)

// PacketHandler processes one decoded packet.
//
// Handlers run synchronously on the receive task, in line with frame
// reception, and therefore must not block for unbounded time.
type PacketHandler func(*Packet)

// dispatcher maps command codes to registered handlers.
//
// Registration may happen from any goroutine; dispatch happens on the receive
// task. Unrecognized command codes are logged and otherwise produce no side
// effect.
type dispatcher struct {
	logger   logger.Logger
	handlers *xsync.MapOf[byte, PacketHandler]

	// onUnknownCmd is called for every packet without a registered handler.
	// Used for metrics collection. May be nil.
	onUnknownCmd func()
}

func newDispatcher(l logger.Logger, onUnknownCmd func()) *dispatcher {
	return &dispatcher{
		logger:       l,
		handlers:     xsync.NewMapOf[byte, PacketHandler](),
		onUnknownCmd: onUnknownCmd,
	}
}

// handle registers h for the given command code, replacing any previous
// handler for that code.
func (d *dispatcher) handle(cmd byte, h PacketHandler) {
	d.handlers.Store(cmd, h)
}

// dispatch routes pkt to the handler registered for its command code.
func (d *dispatcher) dispatch(pkt *Packet) {
	h, ok := d.handlers.Load(pkt.Command)
	if !ok || h == nil {
		d.logger.Warn("mculink: unknown command", "command", fmt.Sprintf("0x%02X", pkt.Command))

		if d.onUnknownCmd != nil {
			d.onUnknownCmd()
		}

		return
	}

	h(pkt)
}
