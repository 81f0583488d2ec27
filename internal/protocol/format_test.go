// internal/protocol/format_test.go
package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatCommand(t *testing.T) {
	d := testDialect()

	tests := []struct {
		name    string
		command string
		args    map[string]interface{}
		want    string
	}{
		{
			name:    "power on zone 1",
			command: "power_on",
			args:    map[string]interface{}{"zone": 1},
			want:    "P1P1\n",
		},
		{
			name:    "set volume",
			command: "set_volume",
			args:    map[string]interface{}{"zone": 2, "volume": 55},
			want:    "P2VM55\n",
		},
		{
			name:    "no placeholders",
			command: "noop",
			args:    nil,
			want:    "NOP\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := FormatCommand(d, tt.command, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(frame))
		})
	}
}

func TestFormatCommand_UnknownCommand(t *testing.T) {
	d := testDialect()

	_, err := FormatCommand(d, "warp_drive", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestFormatCommand_MissingArgument(t *testing.T) {
	d := testDialect()

	_, err := FormatCommand(d, "set_volume", map[string]interface{}{"zone": 1})
	require.Error(t, err)

	var fe *FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "set_volume", fe.Command)
	assert.Contains(t, fe.Reason, "volume")
}

func TestFormatCommand_MalformedTemplates(t *testing.T) {
	d := testDialect()
	d.Commands["unclosed"] = "P{zone"
	d.Commands["unmatched"] = "Pzone}"

	for _, cmd := range []string{"unclosed", "unmatched"} {
		_, err := FormatCommand(d, cmd, map[string]interface{}{"zone": 1})
		var fe *FormatError
		require.True(t, errors.As(err, &fe), "command %s", cmd)
	}
}

func TestFormatCommand_RejectsNonASCII(t *testing.T) {
	d := testDialect()

	_, err := FormatCommand(d, "power_on", map[string]interface{}{"zone": "zöne"})
	var fe *FormatError
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, fe.Reason, "ASCII")
}

func TestFormatVolumeCommand_Clamps(t *testing.T) {
	d := testDialect()

	tests := []struct {
		name   string
		volume int
		want   string
	}{
		{"in range", 40, "P1VM40\n"},
		{"below floor", -5, "P1VM0\n"},
		{"above ceiling", MaxVolume + 50, "P1VM100\n"},
		{"at floor", 0, "P1VM0\n"},
		{"at ceiling", MaxVolume, "P1VM100\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := FormatVolumeCommand(d, 1, tt.volume)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(frame))
		})
	}
}

func TestClampVolume(t *testing.T) {
	assert.Equal(t, 0, ClampVolume(-1))
	assert.Equal(t, 0, ClampVolume(0))
	assert.Equal(t, 73, ClampVolume(73))
	assert.Equal(t, MaxVolume, ClampVolume(MaxVolume))
	assert.Equal(t, MaxVolume, ClampVolume(MaxVolume+1))
}
