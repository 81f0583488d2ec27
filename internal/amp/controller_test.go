// internal/amp/controller_test.go
package amp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rsnodgrass/goanthem/internal/config"
	"github.com/rsnodgrass/goanthem/internal/protocol"
)

// scriptedConn is a commandConn that records frames and replies from a
// script, one reply per Send.
type scriptedConn struct {
	frames  []string
	replies []string
	err     error
	closed  bool
}

func (s *scriptedConn) Send(_ context.Context, frame []byte, wantReply bool) (string, error) {
	s.frames = append(s.frames, string(frame))
	if s.err != nil {
		return "", s.err
	}
	if !wantReply || len(s.replies) == 0 {
		return "", nil
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

func (s *scriptedConn) Close() error {
	s.closed = true
	return nil
}

func testController(t *testing.T, series string, conn *scriptedConn) *Controller {
	t.Helper()
	reg, err := config.LoadRegistry(zap.NewNop())
	require.NoError(t, err)
	s, err := reg.Series(series)
	require.NoError(t, err)
	return newController(s, conn, zap.NewNop())
}

func TestController_SetPower(t *testing.T) {
	conn := &scriptedConn{replies: []string{"P1P1", "P1P0"}}
	c := testController(t, "d2", conn)
	ctx := context.Background()

	require.NoError(t, c.SetPower(ctx, 1, true))
	require.NoError(t, c.SetPower(ctx, 1, false))

	assert.Equal(t, []string{"P1P1\n", "P1P0\n"}, conn.frames)
}

func TestController_SetMute(t *testing.T) {
	conn := &scriptedConn{replies: []string{"P2M1", "P2M0"}}
	c := testController(t, "d2", conn)
	ctx := context.Background()

	require.NoError(t, c.SetMute(ctx, 2, true))
	require.NoError(t, c.SetMute(ctx, 2, false))

	assert.Equal(t, []string{"P2M1\n", "P2M0\n"}, conn.frames)
}

func TestController_SetVolume(t *testing.T) {
	tests := []struct {
		name   string
		volume int
		want   string
	}{
		{"in range", 42, "P1VM42\n"},
		{"clamped low", -10, "P1VM0\n"},
		{"clamped high", 250, "P1VM100\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &scriptedConn{replies: []string{"P1VM42"}}
			c := testController(t, "d2", conn)

			require.NoError(t, c.SetVolume(context.Background(), 1, tt.volume))
			require.Len(t, conn.frames, 1)
			assert.Equal(t, tt.want, conn.frames[0])
		})
	}
}

func TestController_VolumeSteps(t *testing.T) {
	conn := &scriptedConn{replies: []string{"P1VM43", "P1VM42"}}
	c := testController(t, "d2", conn)
	ctx := context.Background()

	require.NoError(t, c.VolumeUp(ctx, 1))
	require.NoError(t, c.VolumeDown(ctx, 1))

	assert.Equal(t, []string{"P1VMU\n", "P1VMD\n"}, conn.frames)
}

func TestController_SetSource(t *testing.T) {
	conn := &scriptedConn{replies: []string{"P1S5"}}
	c := testController(t, "d2", conn)

	require.NoError(t, c.SetSource(context.Background(), 1, 5))
	assert.Equal(t, []string{"P1S5\n"}, conn.frames)
}

func TestController_ZoneStatus(t *testing.T) {
	conn := &scriptedConn{replies: []string{"P1S3V-25M0"}}
	c := testController(t, "d2", conn)

	status, err := c.ZoneStatus(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"P1?\n"}, conn.frames)
	assert.Equal(t, "1", status["zone"])
	assert.Equal(t, "3", status["source"])
	assert.Equal(t, "-25", status["volume"])
	assert.Equal(t, false, status["mute"])
}

func TestController_ZoneStatus_UnparsedReply(t *testing.T) {
	conn := &scriptedConn{replies: []string{"GIBBERISH"}}
	c := testController(t, "d2", conn)

	_, err := c.ZoneStatus(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, protocol.ErrUnparsedResponse)
	assert.Contains(t, err.Error(), "GIBBERISH")
}

func TestController_RunCommand_UnknownCommand(t *testing.T) {
	conn := &scriptedConn{}
	c := testController(t, "d2", conn)

	_, err := c.RunCommand(context.Background(), "make_coffee", nil)
	assert.ErrorIs(t, err, protocol.ErrUnknownCommand)
	assert.Empty(t, conn.frames, "nothing is sent for an unknown command")
}

func TestController_RunCommand_ConnError(t *testing.T) {
	wantErr := errors.New("port vanished")
	conn := &scriptedConn{err: wantErr}
	c := testController(t, "d2", conn)

	_, err := c.RunCommand(context.Background(), "power_on", map[string]interface{}{"zone": 1})
	assert.ErrorIs(t, err, wantErr)
}

// The MRX series speaks the gen2 dialect with semicolon-terminated frames.
func TestController_Gen2Series(t *testing.T) {
	conn := &scriptedConn{replies: []string{"Z1POW1", "Z1VOL-20"}}
	c := testController(t, "mrx", conn)
	ctx := context.Background()

	require.NoError(t, c.SetPower(ctx, 1, true))
	require.NoError(t, c.SetVolume(ctx, 1, 80))

	assert.Equal(t, []string{"Z1POW1;", "Z1VOL80;"}, conn.frames)
}

func TestController_Close(t *testing.T) {
	conn := &scriptedConn{}
	c := testController(t, "d2", conn)

	require.NoError(t, c.Close())
	assert.True(t, conn.closed)
}

func TestSettingsFor_Overrides(t *testing.T) {
	reg, err := config.LoadRegistry(zap.NewNop())
	require.NoError(t, err)
	s, err := reg.Series("d2")
	require.NoError(t, err)

	// Defaults pass through untouched.
	settings := settingsFor(s, Overrides{})
	assert.Equal(t, 115200, settings.BaudRate)
	assert.Equal(t, s.Dialect.Timeout, settings.Timeout)

	// Overrides replace only what they set.
	settings = settingsFor(s, Overrides{BaudRate: 19200})
	assert.Equal(t, 19200, settings.BaudRate)
	assert.Equal(t, 8, settings.DataBits)
}
