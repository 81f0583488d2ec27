// internal/protocol/sync.go
package protocol

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// syncPortMu serializes every sync-variant request in the process. The
// devices accept only one outstanding request, and the sync path trades
// concurrency for that correctness.
var syncPortMu sync.Mutex

// SyncConn is the blocking-I/O peer of AsyncConn: buffer reset, write, and
// byte-at-a-time read-until-EOL directly on the port, under a mutex instead
// of an async scheduler. It applies the same throttle and post-power-on
// cooldown as the async path.
type SyncConn struct {
	dialect   *Dialect
	transport Transport
	logger    *zap.Logger
	lastSend  time.Time
}

// DialSync opens the transport and returns a ready connection.
func DialSync(dialect *Dialect, transport Transport, logger *zap.Logger) (*SyncConn, error) {
	if err := transport.Open(); err != nil {
		return nil, err
	}
	if err := transport.SetReadTimeout(dialect.Timeout); err != nil {
		transport.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}
	return &SyncConn{
		dialect:   dialect,
		transport: transport,
		logger:    logger.With(zap.String("dialect", dialect.Name)),
		lastSend:  time.Now().Add(-dialect.Timeout),
	}, nil
}

// Close releases the port.
func (c *SyncConn) Close() error {
	return c.transport.Close()
}

// Send transmits one frame and, if wantReply is set, reads the reply byte by
// byte until the trailing EOL. A read that yields no byte before the port
// timeout is fatal for the call and reported as a read timeout carrying the
// partial buffer.
func (c *SyncConn) Send(frame []byte, wantReply bool) (string, error) {
	syncPortMu.Lock()
	defer syncPortMu.Unlock()

	c.throttle()

	c.transport.ResetOutputBuffer()
	c.transport.ResetInputBuffer()

	c.logger.Debug("Sending frame", zap.ByteString("frame", frame))
	if _, err := c.transport.Write(frame); err != nil {
		return "", err
	}
	c.transport.Flush()

	c.lastSend = time.Now()
	if c.dialect.IsPowerOnFrame(frame) {
		c.lastSend = c.lastSend.Add(c.dialect.DelayAfterPowerOn)
	}

	if !wantReply {
		return "", nil
	}
	return c.readUntilEOL()
}

// DelayRequests pushes the throttle window out by the given duration, on top
// of whatever spacing the last send already imposes.
func (c *SyncConn) DelayRequests(d time.Duration) {
	syncPortMu.Lock()
	defer syncPortMu.Unlock()
	c.lastSend = c.lastSend.Add(d)
}

func (c *SyncConn) throttle() {
	var delay time.Duration

	elapsed := time.Since(c.lastSend)
	if elapsed < 0 {
		delay = -elapsed
		c.logger.Debug("Device is powering up, delaying send",
			zap.Duration("delay", delay),
		)
	} else if elapsed < c.dialect.MinTimeBetweenCommands {
		delay = c.dialect.MinTimeBetweenCommands - elapsed
	}

	if delay > 0 {
		time.Sleep(delay)
	}
}

func (c *SyncConn) readUntilEOL() (string, error) {
	var buf []byte
	one := make([]byte, 1)

	for {
		n, err := c.transport.Read(one)
		if err != nil {
			return "", fmt.Errorf("serial read failed: %w", err)
		}
		if n == 0 {
			c.logger.Error("Timeout receiving response", zap.ByteString("partial", buf))
			return "", &TimeoutError{Op: OpRead, Partial: buf}
		}
		buf = append(buf, one[0])

		if bytes.HasSuffix(buf, c.dialect.EOL) {
			line := string(buf[:len(buf)-len(c.dialect.EOL)])
			c.logger.Debug("Received response", zap.String("line", line))
			return line, nil
		}
	}
}
