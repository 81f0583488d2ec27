// internal/protocol/serial.go
package protocol

import (
	"fmt"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// SerialSettings holds the transport parameters for one port. Series
// configuration supplies the defaults; callers may override individual
// fields when opening a controller.
type SerialSettings struct {
	BaudRate int           `yaml:"baud_rate"`
	DataBits int           `yaml:"data_bits"`
	StopBits int           `yaml:"stop_bits"`
	Parity   string        `yaml:"parity"`
	Timeout  time.Duration `yaml:"-"`
}

// Transport is a serial-like byte stream. Exactly one connection owns a
// Transport at a time. Tests inject in-memory implementations.
type Transport interface {
	Open() error
	Close() error
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	Flush() error
	ResetInputBuffer() error
	ResetOutputBuffer() error
	SetReadTimeout(d time.Duration) error
}

// serialTransport implements Transport on a real serial port.
type serialTransport struct {
	portURL  string
	settings SerialSettings
	logger   *zap.Logger
	port     serial.Port
}

// NewSerialTransport creates a Transport for the given port path (e.g.
// /dev/ttyUSB0). The port is not opened until Open is called.
func NewSerialTransport(portURL string, settings SerialSettings, logger *zap.Logger) Transport {
	return &serialTransport{
		portURL:  portURL,
		settings: settings,
		logger: logger.With(
			zap.String("transport", "serial"),
			zap.String("port", portURL),
		),
	}
}

func (t *serialTransport) Open() error {
	mode := &serial.Mode{
		BaudRate: t.settings.BaudRate,
		DataBits: t.settings.DataBits,
		StopBits: serial.StopBits(t.settings.StopBits),
	}

	switch t.settings.Parity {
	case "", "none":
		mode.Parity = serial.NoParity
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	default:
		return fmt.Errorf("unsupported parity %q", t.settings.Parity)
	}

	t.logger.Info("Opening serial port",
		zap.Int("baud_rate", t.settings.BaudRate),
		zap.Duration("timeout", t.settings.Timeout),
	)

	port, err := serial.Open(t.portURL, mode)
	if err != nil {
		t.logger.Error("Failed to open serial port", zap.Error(err))
		return fmt.Errorf("failed to open serial port %s: %w", t.portURL, err)
	}

	if t.settings.Timeout > 0 {
		if err := port.SetReadTimeout(t.settings.Timeout); err != nil {
			port.Close()
			return fmt.Errorf("failed to set read timeout: %w", err)
		}
	}

	t.port = port
	return nil
}

func (t *serialTransport) Close() error {
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	if err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	return nil
}

func (t *serialTransport) Write(p []byte) (int, error) {
	if t.port == nil {
		return 0, ErrNotConnected
	}
	return t.port.Write(p)
}

func (t *serialTransport) Read(p []byte) (int, error) {
	if t.port == nil {
		return 0, ErrNotConnected
	}
	return t.port.Read(p)
}

func (t *serialTransport) Flush() error {
	if t.port == nil {
		return ErrNotConnected
	}
	return t.port.Drain()
}

func (t *serialTransport) ResetInputBuffer() error {
	if t.port == nil {
		return ErrNotConnected
	}
	return t.port.ResetInputBuffer()
}

func (t *serialTransport) ResetOutputBuffer() error {
	if t.port == nil {
		return ErrNotConnected
	}
	return t.port.ResetOutputBuffer()
}

func (t *serialTransport) SetReadTimeout(d time.Duration) error {
	if t.port == nil {
		return ErrNotConnected
	}
	return t.port.SetReadTimeout(d)
}
