// internal/protocol/parse_test.go
package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponse_ZoneStatus(t *testing.T) {
	d := testDialect()

	fields, ok := ParseResponse(d, "P1S3V-25M0")
	require.True(t, ok)

	assert.Equal(t, "1", fields["zone"])
	assert.Equal(t, "3", fields["source"])
	assert.Equal(t, "-25", fields["volume"])
	assert.Equal(t, false, fields["mute"])
}

func TestParseResponse_BooleanCoercion(t *testing.T) {
	d := testDialect()

	tests := []struct {
		name string
		line string
		want interface{}
	}{
		{"zero is false", "P1P0", false},
		{"one is true", "P1P1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields, ok := ParseResponse(d, tt.line)
			require.True(t, ok)
			assert.Equal(t, tt.want, fields["power"])
		})
	}
}

// Boolean fields that capture something other than 0 or 1 pass through as the
// raw string instead of being coerced.
func TestParseResponse_BooleanPassthrough(t *testing.T) {
	d := testDialect()
	d.Responses = append(d.Responses, ResponsePattern{
		Name:    "mute_word",
		Pattern: mustAnchored(`MUTE (?P<mute>\w+)`),
	})

	fields, ok := ParseResponse(d, "MUTE toggle")
	require.True(t, ok)
	assert.Equal(t, "toggle", fields["mute"])
}

// The first pattern in declaration order wins when several would match.
// zone_status must shadow source_status for full status lines.
func TestParseResponse_DeclarationOrderWins(t *testing.T) {
	d := testDialect()

	fields, ok := ParseResponse(d, "P1S3V-25M1")
	require.True(t, ok)
	// source_status would also match the "P1S3" prefix but must not win.
	assert.Contains(t, fields, "volume")
	assert.Equal(t, true, fields["mute"])

	fields, ok = ParseResponse(d, "P1S3")
	require.True(t, ok)
	assert.NotContains(t, fields, "volume")
	assert.Equal(t, "3", fields["source"])
}

// Patterns match anchored at the start of the line, not anywhere inside it.
func TestParseResponse_AnchoredAtStart(t *testing.T) {
	d := testDialect()

	_, ok := ParseResponse(d, "garbage P1P1")
	assert.False(t, ok)
}

func TestParseResponse_NoMatch(t *testing.T) {
	d := testDialect()

	fields, ok := ParseResponse(d, "UNRECOGNIZED")
	assert.False(t, ok)
	assert.Nil(t, fields)
}
