// Package serial opens the UART used as both the console input and the
// exclusive output resource.
package serial

import (
	"errors"
	"time"

	"github.com/goburrow/serial"
	"github.com/golang/glog"

	"github.com/robotalks/taskcore/pkg/transport/stream"
)

// DefaultReadTimeout bounds a single read so the source can observe
// cancellation.
const DefaultReadTimeout = 500 * time.Millisecond

// Config describes the UART.
type Config struct {
	Device   string
	BaudRate int
	Timeout  time.Duration
}

// Port is an open UART.
type Port struct {
	serial.Port
	*stream.Transmitter

	device string
}

// Open opens the UART in 8N1 mode.
func Open(c Config) (*Port, error) {
	if c.Device == "" {
		return nil, errors.New("serial: device is required")
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultReadTimeout
	}
	p, err := serial.Open(&serial.Config{
		Address:  c.Device,
		BaudRate: c.BaudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  c.Timeout,
	})
	if err != nil {
		return nil, err
	}
	glog.Infof("serial: opened %s at %d baud", c.Device, c.BaudRate)
	return &Port{Port: p, Transmitter: stream.New(p), device: c.Device}, nil
}

// Name implements framework.Named.
func (p *Port) Name() string { return p.device }

// Read implements io.Reader. A read timeout is reported as zero bytes.
func (p *Port) Read(b []byte) (int, error) {
	n, err := p.Port.Read(b)
	if errors.Is(err, serial.ErrTimeout) {
		return n, nil
	}
	return n, err
}
