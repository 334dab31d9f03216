// Package serial opens the serial port the fingerprint module is wired to.
package serial

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/tarm/serial"
)

// Defaults of the fingerprint module link.
const (
	DefaultDevice      = "/dev/ttyUSB0"
	DefaultBaud        = 19200
	DefaultReadTimeout = 2 * time.Second
)

// pollInterval is the read timeout of the device itself. Longer waits are
// made of several polls so a read deadline is honored within one poll.
const pollInterval = 100 * time.Millisecond

// Config holds serial port configuration.
type Config struct {
	// Device path, e.g. "/dev/ttyUSB0" or "COM3".
	Device string
	Baud   int
	// ReadTimeout bounds a single Read without a read deadline. A read
	// returning nothing within the timeout ends with io.EOF. 0 blocks.
	// Use SetReadDeadline to bound a whole reply across several reads.
	ReadTimeout time.Duration
}

// DefaultConfig returns the configuration expected by the module.
func DefaultConfig(device string) *Config {
	if device == "" {
		device = DefaultDevice
	}
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: DefaultReadTimeout,
	}
}

type device interface {
	io.ReadWriteCloser
	Flush() error
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "serial: read timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// Port is an opened serial port.
type Port struct {
	dev         device
	readTimeout time.Duration

	lock     sync.Mutex
	deadline time.Time
}

// Open opens a serial port.
func Open(cfg *Config) (*Port, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: pollInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Device, err)
	}
	glog.Infof("serial port %s opened at %d baud", cfg.Device, cfg.Baud)
	return newPort(port, cfg.ReadTimeout), nil
}

func newPort(dev device, readTimeout time.Duration) *Port {
	return &Port{dev: dev, readTimeout: readTimeout}
}

// SetReadDeadline sets the deadline for Read. Reads past the deadline fail
// with a timeout error. Zero means no deadline.
func (p *Port) SetReadDeadline(t time.Time) error {
	p.lock.Lock()
	p.deadline = t
	p.lock.Unlock()
	return nil
}

// Read implements io.Reader. It returns as soon as some data is received.
func (p *Port) Read(b []byte) (int, error) {
	p.lock.Lock()
	end, err := p.deadline, error(timeoutError{})
	p.lock.Unlock()
	if end.IsZero() {
		err = io.EOF
		if p.readTimeout > 0 {
			end = time.Now().Add(p.readTimeout)
		}
	}
	for {
		if !end.IsZero() && !time.Now().Before(end) {
			return 0, err
		}
		n, rerr := p.dev.Read(b)
		// the device reports an expired poll as an empty read, with or
		// without io.EOF depending on the platform.
		if n > 0 || (rerr != nil && rerr != io.EOF) {
			return n, rerr
		}
	}
}

// Write implements io.Writer.
func (p *Port) Write(b []byte) (int, error) {
	return p.dev.Write(b)
}

// Flush discards data received but not read.
func (p *Port) Flush() error {
	return p.dev.Flush()
}

// Close implements io.Closer.
func (p *Port) Close() error {
	return p.dev.Close()
}
