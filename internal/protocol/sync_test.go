// internal/protocol/sync_test.go
package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// syncTransport serves scripted reply bytes one at a time, the way a serial
// port with a read timeout does, then reports timeouts as zero-byte reads.
type syncTransport struct {
	fakeTransport
	script []byte
}

func (t *syncTransport) Read(p []byte) (int, error) {
	if len(t.script) == 0 {
		return 0, nil // port read timeout
	}
	n := copy(p, t.script[:1])
	t.script = t.script[1:]
	return n, nil
}

func dialTestSync(t *testing.T, d *Dialect, tr Transport) *SyncConn {
	t.Helper()
	c, err := DialSync(d, tr, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSyncConn_SendAndReceive(t *testing.T) {
	d := testDialect()
	tr := &syncTransport{script: []byte("P1P1\n")}
	c := dialTestSync(t, d, tr)

	reply, err := c.Send([]byte("P1?\n"), true)
	require.NoError(t, err)
	assert.Equal(t, "P1P1", reply, "reply comes back with EOL stripped")

	writes := tr.written()
	require.Len(t, writes, 1)
	assert.Equal(t, "P1?\n", string(writes[0]))
}

func TestSyncConn_FireAndForget(t *testing.T) {
	d := testDialect()
	tr := &syncTransport{}
	c := dialTestSync(t, d, tr)

	reply, err := c.Send([]byte("P1P0\n"), false)
	require.NoError(t, err)
	assert.Empty(t, reply)
	require.Len(t, tr.written(), 1)
}

// A zero-byte read before the EOL arrives is a read timeout carrying whatever
// partial bytes were collected.
func TestSyncConn_TimeoutCarriesPartial(t *testing.T) {
	d := testDialect()
	tr := &syncTransport{script: []byte("P1S")}
	c := dialTestSync(t, d, tr)

	_, err := c.Send([]byte("P1?\n"), true)
	require.Error(t, err)
	require.True(t, IsReadTimeout(err))

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, []byte("P1S"), te.Partial)
}

func TestSyncConn_OpenFailure(t *testing.T) {
	d := testDialect()
	tr := newFakeTransport()
	tr.openErr = errOpenFailed

	_, err := DialSync(d, tr, zap.NewNop())
	assert.ErrorIs(t, err, errOpenFailed)
}

func TestSyncConn_Throttle(t *testing.T) {
	d := testDialect()
	d.MinTimeBetweenCommands = 60 * time.Millisecond
	tr := &syncTransport{}
	c := dialTestSync(t, d, tr)

	start := time.Now()
	_, err := c.Send([]byte("NOP\n"), false)
	require.NoError(t, err)
	_, err = c.Send([]byte("NOP\n"), false)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestSyncConn_PowerOnCooldown(t *testing.T) {
	d := testDialect()
	d.MinTimeBetweenCommands = 0
	d.DelayAfterPowerOn = 120 * time.Millisecond
	tr := &syncTransport{}
	c := dialTestSync(t, d, tr)

	_, err := c.Send([]byte("P1P1\n"), false)
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Send([]byte("NOP\n"), false)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestSyncConn_DelayRequests(t *testing.T) {
	d := testDialect()
	d.MinTimeBetweenCommands = 0
	tr := &syncTransport{}
	c := dialTestSync(t, d, tr)

	_, err := c.Send([]byte("NOP\n"), false)
	require.NoError(t, err)

	c.DelayRequests(80 * time.Millisecond)

	start := time.Now()
	_, err = c.Send([]byte("NOP\n"), false)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}
