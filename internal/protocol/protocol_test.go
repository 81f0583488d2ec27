// internal/protocol/protocol_test.go
package protocol

import (
	"errors"
	"io"
	"regexp"
	"sync"
	"time"
)

// testDialect returns a small gen1-shaped dialect used across the package
// tests.
func testDialect() *Dialect {
	return &Dialect{
		Name: "test_gen1",
		Commands: map[string]string{
			"power_on":    "P{zone}P1",
			"power_off":   "P{zone}P0",
			"set_volume":  "P{zone}VM{volume}",
			"zone_status": "P{zone}?",
			"noop":        "NOP",
		},
		Responses:              compileTestResponses(),
		EOL:                    []byte("\n"),
		BooleanFields:          map[string]struct{}{"power": {}, "mute": {}},
		Timeout:                200 * time.Millisecond,
		MinTimeBetweenCommands: 10 * time.Millisecond,
		DelayAfterPowerOn:      150 * time.Millisecond,
		PowerOnFrames:          [][]byte{[]byte("P1P1\n"), []byte("P2P1\n")},
	}
}

func compileTestResponses() []ResponsePattern {
	patterns := []struct{ name, expr string }{
		{"zone_status", `P(?P<zone>\d+)S(?P<source>\d+)V(?P<volume>-?\d+)M(?P<mute>[01])`},
		{"power_status", `P(?P<zone>\d+)P(?P<power>[01])`},
		{"source_status", `P(?P<zone>\d+)S(?P<source>\d+)`},
	}
	out := make([]ResponsePattern, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, ResponsePattern{
			Name:    p.name,
			Pattern: mustAnchored(p.expr),
		})
	}
	return out
}

// mustAnchored compiles expr anchored at the start of the line, the way the
// registry compiles configured patterns.
func mustAnchored(expr string) *regexp.Regexp {
	return regexp.MustCompile("^(?:" + expr + ")")
}

// fakeTransport is an in-memory Transport. Writes are recorded; reads are
// served from scripted chunks, blocking until a chunk is queued.
type fakeTransport struct {
	mu       sync.Mutex
	opened   bool
	closed   bool
	openErr  error
	writes   [][]byte
	reads    chan []byte
	pending  []byte
	resets   int
	openWait time.Duration
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{reads: make(chan []byte, 64)}
}

func (t *fakeTransport) Open() error {
	if t.openWait > 0 {
		time.Sleep(t.openWait)
	}
	if t.openErr != nil {
		return t.openErr
	}
	t.mu.Lock()
	t.opened = true
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		if t.reads != nil {
			close(t.reads)
		}
	}
	return nil
}

func (t *fakeTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	frame := make([]byte, len(p))
	copy(frame, p)
	t.writes = append(t.writes, frame)
	return len(p), nil
}

// Read serves one scripted chunk per call, byte-limited to len(p). Returns
// io.EOF once the transport is closed and the script is drained.
func (t *fakeTransport) Read(p []byte) (int, error) {
	t.mu.Lock()
	if len(t.pending) > 0 {
		n := copy(p, t.pending)
		t.pending = t.pending[n:]
		t.mu.Unlock()
		return n, nil
	}
	t.mu.Unlock()

	chunk, ok := <-t.reads
	if !ok {
		return 0, io.EOF
	}
	n := copy(p, chunk)
	if n < len(chunk) {
		t.mu.Lock()
		t.pending = append(t.pending, chunk[n:]...)
		t.mu.Unlock()
	}
	return n, nil
}

func (t *fakeTransport) Flush() error { return nil }

func (t *fakeTransport) ResetInputBuffer() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resets++
	return nil
}

func (t *fakeTransport) ResetOutputBuffer() error { return nil }

func (t *fakeTransport) SetReadTimeout(d time.Duration) error { return nil }

// respond scripts one inbound chunk.
func (t *fakeTransport) respond(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.reads <- []byte(data)
}

// written returns a copy of the recorded writes.
func (t *fakeTransport) written() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.writes))
	copy(out, t.writes)
	return out
}

var errOpenFailed = errors.New("open failed")
