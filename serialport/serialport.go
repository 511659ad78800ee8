// Package serialport opens a UART device as the byte-stream transport of an
// mculink connection.
package serialport

import (
	"errors"
	"fmt"

	"go.bug.st/serial"
)

// DefaultBaudRate is the rate the peer firmware configures its UART with.
const DefaultBaudRate = 115200

// Config holds the UART parameters of a link transport.
type Config struct {
	// Device is the serial device path, e.g. "/dev/ttyUSB0" or "COM3".
	Device string
	// BaudRate is the line rate. Defaults to DefaultBaudRate.
	BaudRate int
	// DataBits is the word size. Defaults to 8.
	DataBits int
	// Parity defaults to none.
	Parity serial.Parity
	// StopBits defaults to one.
	StopBits serial.StopBits
}

// Open opens the configured serial device with 8N1 defaults.
//
// The returned port satisfies io.ReadWriteCloser and can be passed directly
// to mculink.NewConn.
func Open(cfg Config) (serial.Port, error) {
	if cfg.Device == "" {
		return nil, errors.New("serialport: device is required")
	}

	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}

	if cfg.DataBits == 0 {
		cfg.DataBits = 8
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   cfg.Parity,
		StopBits: cfg.StopBits,
	}

	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", cfg.Device, err)
	}

	return port, nil
}

// List returns the serial device paths present on the system.
func List() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("serialport: list ports: %w", err)
	}

	return ports, nil
}
