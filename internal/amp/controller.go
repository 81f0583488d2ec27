// internal/amp/controller.go
package amp

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rsnodgrass/goanthem/internal/config"
	"github.com/rsnodgrass/goanthem/internal/protocol"
	"github.com/rsnodgrass/goanthem/pkg/control"
)

// commandConn abstracts the two connection variants behind one send surface.
type commandConn interface {
	Send(ctx context.Context, frame []byte, wantReply bool) (string, error)
	Close() error
}

// syncConn adapts the blocking SyncConn, which needs no context: its waits
// are bounded by the port read timeout.
type syncConn struct {
	*protocol.SyncConn
}

func (s syncConn) Send(_ context.Context, frame []byte, wantReply bool) (string, error) {
	return s.SyncConn.Send(frame, wantReply)
}

// Overrides adjusts the series serial defaults for one controller. Zero
// values keep the defaults.
type Overrides struct {
	BaudRate int
	Timeout  time.Duration
}

// Controller implements control.AmpControl on top of a single connection.
// Every helper is a RunCommand call with the right argument map; the
// protocol layer owns ordering, throttling and framing.
type Controller struct {
	series  *config.Series
	dialect *protocol.Dialect
	conn    commandConn
	logger  *zap.Logger
}

var _ control.AmpControl = (*Controller)(nil)

// NewController opens a synchronous (blocking-I/O) controller for the given
// amplifier series on the given serial port.
func NewController(reg *config.Registry, series, portURL string, o Overrides, logger *zap.Logger) (*Controller, error) {
	s, err := reg.Series(series)
	if err != nil {
		return nil, err
	}

	transport := protocol.NewSerialTransport(portURL, settingsFor(s, o), logger)
	conn, err := protocol.DialSync(s.Dialect, transport, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", portURL, err)
	}
	return newController(s, syncConn{conn}, logger), nil
}

// NewAsyncController opens an asynchronous controller: the port is opened in
// the background and commands issued before the link is up wait for it.
func NewAsyncController(reg *config.Registry, series, portURL string, o Overrides, logger *zap.Logger) (*Controller, error) {
	s, err := reg.Series(series)
	if err != nil {
		return nil, err
	}

	transport := protocol.NewSerialTransport(portURL, settingsFor(s, o), logger)
	conn := protocol.DialAsync(s.Dialect, transport, logger)
	c := newController(s, conn, logger)
	return c, nil
}

// NewControllerWithConn builds a controller over an already-dialed
// connection. Used by tests and by callers that manage the transport
// themselves.
func NewControllerWithConn(s *config.Series, conn *protocol.AsyncConn, logger *zap.Logger) *Controller {
	return newController(s, conn, logger)
}

func newController(s *config.Series, conn commandConn, logger *zap.Logger) *Controller {
	return &Controller{
		series:  s,
		dialect: s.Dialect,
		conn:    conn,
		logger: logger.With(
			zap.String("series", s.Name),
			zap.String("dialect", s.Dialect.Name),
		),
	}
}

func settingsFor(s *config.Series, o Overrides) protocol.SerialSettings {
	settings := s.SerialDefaults
	settings.Timeout = s.Dialect.Timeout
	if o.BaudRate != 0 {
		settings.BaudRate = o.BaudRate
	}
	if o.Timeout != 0 {
		settings.Timeout = o.Timeout
	}
	return settings
}

// OnStatusLine registers a handler for unsolicited status lines the device
// echoes outside a request/reply cycle. Only the async variant observes
// them; must be set before the first command. The handler receives the raw
// line and its structured decoding, if any pattern matched.
func (c *Controller) OnStatusLine(fn func(line string, fields control.ParsedResponse)) {
	async, ok := c.conn.(*protocol.AsyncConn)
	if !ok {
		return
	}
	async.OnExtraLine(func(line string) {
		fields, _ := protocol.ParseResponse(c.dialect, line)
		fn(line, fields)
	})
}

// RunCommand formats and sends the named dialect command, returning the raw
// reply line.
func (c *Controller) RunCommand(ctx context.Context, command string, args map[string]interface{}) (string, error) {
	frame, err := protocol.FormatCommand(c.dialect, command, args)
	if err != nil {
		return "", err
	}

	reply, err := c.conn.Send(ctx, frame, true)
	if err != nil {
		return "", err
	}
	c.logger.Debug("Command completed",
		zap.String("command", command),
		zap.String("reply", reply),
	)
	return reply, nil
}

// SetPower turns a zone on or off.
func (c *Controller) SetPower(ctx context.Context, zone int, power bool) error {
	command := "power_off"
	if power {
		command = "power_on"
	}
	_, err := c.RunCommand(ctx, command, zoneArgs(zone))
	return err
}

// SetMute mutes or unmutes a zone.
func (c *Controller) SetMute(ctx context.Context, zone int, mute bool) error {
	command := "mute_off"
	if mute {
		command = "mute_on"
	}
	_, err := c.RunCommand(ctx, command, zoneArgs(zone))
	return err
}

// SetVolume sets the zone volume, clamped into the supported range before
// the frame is built.
func (c *Controller) SetVolume(ctx context.Context, zone int, volume int) error {
	frame, err := protocol.FormatVolumeCommand(c.dialect, zone, volume)
	if err != nil {
		return err
	}
	_, err = c.conn.Send(ctx, frame, true)
	return err
}

// VolumeUp increases the zone volume by one step.
func (c *Controller) VolumeUp(ctx context.Context, zone int) error {
	_, err := c.RunCommand(ctx, "volume_up", zoneArgs(zone))
	return err
}

// VolumeDown decreases the zone volume by one step.
func (c *Controller) VolumeDown(ctx context.Context, zone int) error {
	_, err := c.RunCommand(ctx, "volume_down", zoneArgs(zone))
	return err
}

// SetSource selects the zone input source.
func (c *Controller) SetSource(ctx context.Context, zone int, source int) error {
	_, err := c.RunCommand(ctx, "set_source", map[string]interface{}{
		"zone":   zone,
		"source": source,
	})
	return err
}

// ZoneStatus queries a zone and decodes the reply. A framed reply that
// matches no configured pattern is reported as ErrUnparsedResponse.
func (c *Controller) ZoneStatus(ctx context.Context, zone int) (control.ParsedResponse, error) {
	reply, err := c.RunCommand(ctx, "zone_status", zoneArgs(zone))
	if err != nil {
		return nil, err
	}

	fields, ok := protocol.ParseResponse(c.dialect, reply)
	if !ok {
		return nil, fmt.Errorf("%w: %q", protocol.ErrUnparsedResponse, reply)
	}
	return fields, nil
}

// Close releases the underlying serial port.
func (c *Controller) Close() error {
	return c.conn.Close()
}

func zoneArgs(zone int) map[string]interface{} {
	return map[string]interface{}{"zone": zone}
}
