// internal/protocol/dialect.go
package protocol

import (
	"bytes"
	"regexp"
	"time"
)

// MaxVolume is the process-wide volume safety ceiling. Frames are never
// emitted with a volume outside [0, MaxVolume]. Not configurable per device;
// amplifiers that support finer ranges still pass through this clamp.
const MaxVolume = 100

// ResponsePattern is one named, precompiled reply pattern. Patterns are
// matched anchored at the start of the reply line.
type ResponsePattern struct {
	Name    string
	Pattern *regexp.Regexp
}

// Dialect describes the command/response text grammar understood by a family
// of amplifiers sharing the same RS232 language. Loaded once from
// configuration and shared read-only by every connection using it; patterns
// are compiled at load time and never mutated.
type Dialect struct {
	Name string

	// Commands maps command names to templates with {placeholder} fields.
	Commands map[string]string

	// Responses holds the reply patterns in configuration order. The first
	// pattern that matches a line wins; ties are an authoring concern.
	Responses []ResponsePattern

	// EOL terminates every frame in both directions.
	EOL []byte

	// BooleanFields names the capture groups decoded as booleans.
	BooleanFields map[string]struct{}

	// Timeout bounds every blocking wait: connection readiness, each inbound
	// chunk wait, and the overall line read.
	Timeout time.Duration

	// MinTimeBetweenCommands is the enforced spacing between sends.
	MinTimeBetweenCommands time.Duration

	// DelayAfterPowerOn is the extended cooldown applied after a power-on
	// frame. The units reject input for several seconds after powering up.
	DelayAfterPowerOn time.Duration

	// PowerOnFrames are the complete frames (EOL included) that trigger the
	// power-on cooldown.
	PowerOnFrames [][]byte
}

// IsBooleanField reports whether the named capture group decodes to a bool.
func (d *Dialect) IsBooleanField(name string) bool {
	_, ok := d.BooleanFields[name]
	return ok
}

// IsPowerOnFrame reports whether frame is one of the configured power-on
// frames.
func (d *Dialect) IsPowerOnFrame(frame []byte) bool {
	for _, f := range d.PowerOnFrames {
		if bytes.Equal(f, frame) {
			return true
		}
	}
	return false
}

// ClampVolume clamps a requested volume level into [0, MaxVolume].
func ClampVolume(volume int) int {
	if volume < 0 {
		return 0
	}
	if volume > MaxVolume {
		return MaxVolume
	}
	return volume
}
