// internal/protocol/async.go
package protocol

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ConnState tracks the transport lifecycle of a connection. Transitions are
// driven only by the transport (open result, read loop exit), never by
// application code.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// AsyncConn is the callback-driven connection variant. A background read
// loop feeds inbound bytes into an unbounded queue; Send serializes callers
// through a single-flight gate, applies inter-command throttling and the
// post-power-on cooldown, and frames replies on the dialect EOL.
type AsyncConn struct {
	dialect   *Dialect
	transport Transport
	logger    *zap.Logger

	queue     *chunkQueue
	connected chan struct{}
	closed    chan struct{}
	state     atomic.Int32
	closing   atomic.Bool
	closeOnce sync.Once

	// mu is the single-flight gate: at most one command is in flight
	// (sent, awaiting framed reply) at any instant.
	mu       sync.Mutex
	lastSend time.Time

	// extraLine, when set, receives complete reply lines beyond the first
	// one framed per read. The devices echo unsolicited status lines; the
	// line reader drops them, this hook observes them.
	extraLine func(line string)
}

// DialAsync starts opening the transport and returns immediately with the
// connection parked in the connecting state. Sends issued before the link is
// up block until connected or until the dialect timeout elapses.
func DialAsync(dialect *Dialect, transport Transport, logger *zap.Logger) *AsyncConn {
	c := &AsyncConn{
		dialect:   dialect,
		transport: transport,
		logger:    logger.With(zap.String("dialect", dialect.Name)),
		queue:     newChunkQueue(),
		connected: make(chan struct{}),
		closed:    make(chan struct{}),
		lastSend:  time.Now().Add(-time.Second),
	}
	c.state.Store(int32(StateConnecting))
	go c.connect()
	return c
}

// OnExtraLine registers a handler for discarded trailing reply lines. Must
// be called before the first Send.
func (c *AsyncConn) OnExtraLine(fn func(line string)) {
	c.extraLine = fn
}

// State returns the current connection state.
func (c *AsyncConn) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *AsyncConn) connect() {
	if err := c.transport.Open(); err != nil {
		c.logger.Error("Connection failed", zap.Error(err))
		c.markClosed()
		return
	}
	// Close may have landed while Open was in flight; never transition a
	// closed connection back to connected.
	if c.closing.Load() {
		c.transport.Close()
		c.markClosed()
		return
	}
	c.state.Store(int32(StateConnected))
	close(c.connected)
	c.logger.Debug("Connection established")
	go c.readLoop()
}

// readLoop is the single producer for the inbound queue. Delivery to the
// queue never blocks on the consumer, so the transport keeps draining.
func (c *AsyncConn) readLoop() {
	buf := make([]byte, 256)
	for {
		n, err := c.transport.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.queue.Put(chunk)
		}
		if err != nil {
			c.logger.Debug("Transport closed", zap.Error(err))
			c.markClosed()
			return
		}
	}
}

// markClosed runs only on the connect/read-loop goroutine, the queue's
// producer side, so closing the queue here cannot race a Put.
func (c *AsyncConn) markClosed() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		close(c.closed)
		c.queue.Close()
	})
}

// Close releases the transport. The produce side — the read loop, or the
// connect goroutine if the link never came up — observes the closure and
// drives the terminal state transition; closing the inbound queue from here
// would race the read loop's next Put.
func (c *AsyncConn) Close() error {
	c.closing.Store(true)
	return c.transport.Close()
}

// Send transmits one frame and, if wantReply is set, returns the first
// framed reply line (EOL stripped). The whole sequence — readiness wait,
// throttle, stale-buffer discard, write, reply read — runs under the
// single-flight gate, so two concurrent callers can never interleave their
// request/response cycles.
func (c *AsyncConn) Send(ctx context.Context, frame []byte, wantReply bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.waitConnected(ctx); err != nil {
		return "", err
	}

	if err := c.throttle(ctx); err != nil {
		return "", err
	}

	// Discard anything a previous interaction left behind so a stale
	// partial reply can never be mistaken for this command's reply.
	c.transport.ResetOutputBuffer()
	c.transport.ResetInputBuffer()
	c.queue.Drain()

	c.logger.Debug("Sending frame", zap.ByteString("frame", frame))
	if _, err := c.transport.Write(frame); err != nil {
		return "", err
	}
	c.recordSend(frame)

	if !wantReply {
		return "", nil
	}
	return c.readLine(frame)
}

func (c *AsyncConn) waitConnected(ctx context.Context) error {
	timer := time.NewTimer(c.dialect.Timeout)
	defer timer.Stop()

	select {
	case <-c.connected:
		return nil
	case <-c.closed:
		return ErrNotConnected
	case <-timer.C:
		c.logger.Debug("Timeout waiting for connection")
		return &TimeoutError{Op: OpConnect}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// throttle enforces the minimum spacing between sends. A lastSend recorded
// in the future is a power-on cooldown deadline: sleep until it passes.
func (c *AsyncConn) throttle(ctx context.Context) error {
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

	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *AsyncConn) recordSend(frame []byte) {
	c.lastSend = time.Now()
	// The units reject all input for several seconds after powering up, so
	// a power-on frame pushes the next send past that window.
	if c.dialect.IsPowerOnFrame(frame) {
		c.lastSend = c.lastSend.Add(c.dialect.DelayAfterPowerOn)
	}
}

// readLine drains the inbound queue until the EOL marker appears, bounded by
// one deadline for the whole read. Only the first framed line is returned;
// any further buffered lines are dropped (and handed to the extra-line hook).
func (c *AsyncConn) readLine(frame []byte) (string, error) {
	deadline := time.Now().Add(c.dialect.Timeout)
	var buf []byte

	for {
		chunk, ok, err := c.queue.Get(deadline)
		if err != nil {
			c.logger.Error("Timeout receiving response",
				zap.ByteString("request", frame),
				zap.ByteString("partial", buf),
			)
			return "", &TimeoutError{Op: OpRead, Partial: buf}
		}
		if !ok {
			return "", ErrNotConnected
		}
		buf = append(buf, chunk...)

		i := bytes.Index(buf, c.dialect.EOL)
		if i < 0 {
			continue
		}

		line := string(buf[:i])
		if rest := buf[i+len(c.dialect.EOL):]; len(rest) > 0 {
			c.dropExtraLines(rest)
		}
		return line, nil
	}
}

func (c *AsyncConn) dropExtraLines(rest []byte) {
	c.logger.Debug("Ignoring trailing response data", zap.ByteString("data", rest))
	if c.extraLine == nil {
		return
	}
	for _, raw := range bytes.Split(rest, c.dialect.EOL) {
		if len(raw) > 0 {
			c.extraLine(string(raw))
		}
	}
}
