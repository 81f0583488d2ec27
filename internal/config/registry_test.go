// internal/config/registry_test.go
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func loadTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := LoadRegistry(zap.NewNop())
	require.NoError(t, err)
	return r
}

func TestLoadRegistry_EmbeddedTrees(t *testing.T) {
	r := loadTestRegistry(t)

	assert.Equal(t, []string{"avm20", "avm30", "avm50", "d2", "mrx"}, r.SeriesNames())

	for _, name := range []string{"anthem_gen1", "anthem_gen2"} {
		d, err := r.Dialect(name)
		require.NoError(t, err)
		assert.NotEmpty(t, d.Commands)
		assert.NotEmpty(t, d.Responses)
		assert.NotEmpty(t, d.EOL)
	}
}

func TestLoadRegistry_Gen1Dialect(t *testing.T) {
	r := loadTestRegistry(t)

	d, err := r.Dialect("anthem_gen1")
	require.NoError(t, err)

	assert.Equal(t, []byte("\n"), d.EOL)
	assert.Equal(t, time.Second, d.Timeout)
	assert.Equal(t, 250*time.Millisecond, d.MinTimeBetweenCommands)
	assert.Equal(t, 5*time.Second, d.DelayAfterPowerOn)
	assert.True(t, d.IsBooleanField("power"))
	assert.True(t, d.IsBooleanField("mute"))
	assert.False(t, d.IsBooleanField("volume"))

	// Power-on frames carry the EOL, matching what goes over the wire.
	assert.True(t, d.IsPowerOnFrame([]byte("P1P1\n")))
	assert.False(t, d.IsPowerOnFrame([]byte("P1P1")))
	assert.False(t, d.IsPowerOnFrame([]byte("P1P0\n")))
}

// Response declaration order survives YAML parsing; the full zone status
// pattern must be tried before the shorter source status prefix.
func TestLoadRegistry_ResponseOrderPreserved(t *testing.T) {
	r := loadTestRegistry(t)

	d, err := r.Dialect("anthem_gen1")
	require.NoError(t, err)

	require.NotEmpty(t, d.Responses)
	assert.Equal(t, "zone_status", d.Responses[0].Name)

	var zoneIdx, sourceIdx int
	for i, rp := range d.Responses {
		switch rp.Name {
		case "zone_status":
			zoneIdx = i
		case "source_status":
			sourceIdx = i
		}
	}
	assert.Less(t, zoneIdx, sourceIdx)
}

// Configured patterns compile anchored: they match at the start of a line
// only.
func TestLoadRegistry_PatternsAnchored(t *testing.T) {
	r := loadTestRegistry(t)

	d, err := r.Dialect("anthem_gen1")
	require.NoError(t, err)

	for _, rp := range d.Responses {
		assert.Nil(t, rp.Pattern.FindStringSubmatch("xx P1P1"),
			"pattern %s matched mid-line", rp.Name)
	}
}

func TestRegistry_SeriesLookup(t *testing.T) {
	r := loadTestRegistry(t)

	s, err := r.Series("d2")
	require.NoError(t, err)
	assert.Equal(t, "anthem_gen1", s.Dialect.Name)
	assert.Equal(t, 115200, s.SerialDefaults.BaudRate)
	assert.Equal(t, 8, s.SerialDefaults.DataBits)
	assert.Equal(t, "none", s.SerialDefaults.Parity)

	s, err = r.Series("mrx")
	require.NoError(t, err)
	assert.Equal(t, "anthem_gen2", s.Dialect.Name)
}

func TestRegistry_UnknownLookups(t *testing.T) {
	r := loadTestRegistry(t)

	_, err := r.Series("betamax")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "betamax")
	assert.Contains(t, err.Error(), "d2", "error names the supported series")

	_, err = r.Dialect("morse_code")
	require.Error(t, err)
}

func TestParseDialect_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing command_eol",
			yaml: "commands:\n  noop: NOP\n",
		},
		{
			name: "no commands",
			yaml: "command_eol: \"\\n\"\n",
		},
		{
			name: "bad pattern",
			yaml: "command_eol: \"\\n\"\ncommands:\n  noop: NOP\nresponses:\n  broken: '(unclosed'\n",
		},
		{
			name: "bad duration",
			yaml: "command_eol: \"\\n\"\ntimeout: soon\ncommands:\n  noop: NOP\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseDialect("bad", []byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParseDialect_DefaultTimeout(t *testing.T) {
	d, err := parseDialect("minimal", []byte("command_eol: \"\\n\"\ncommands:\n  noop: NOP\n"))
	require.NoError(t, err)
	assert.Equal(t, time.Second, d.Timeout)
}
