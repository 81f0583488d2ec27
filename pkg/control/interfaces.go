// pkg/control/interfaces.go
package control

import "context"

// ParsedResponse is a decoded device reply: named capture groups mapped to
// their values. Fields declared boolean in the dialect are bool; everything
// else stays a string exactly as the device sent it.
type ParsedResponse map[string]interface{}

// Bool returns the named field as a boolean, or false if the field is
// missing or was not decoded as a boolean.
func (r ParsedResponse) Bool(field string) bool {
	v, ok := r[field].(bool)
	return ok && v
}

// String returns the named field as a string, or "" if missing.
func (r ParsedResponse) String(field string) string {
	v, _ := r[field].(string)
	return v
}

// AmpControl is the uniform amplifier control surface. All helpers are
// expressible purely as RunCommand calls with the appropriate argument maps;
// implementations add no behavior beyond command dispatch.
type AmpControl interface {
	// RunCommand formats and sends the named dialect command, returning the
	// raw framed reply line.
	RunCommand(ctx context.Context, command string, args map[string]interface{}) (string, error)

	// SetPower turns a zone on or off.
	SetPower(ctx context.Context, zone int, power bool) error

	// SetMute mutes or unmutes a zone.
	SetMute(ctx context.Context, zone int, mute bool) error

	// SetVolume sets the volume level for a zone. Levels outside the
	// supported range are clamped before transmission.
	SetVolume(ctx context.Context, zone int, volume int) error

	// VolumeUp increases the zone volume by one step.
	VolumeUp(ctx context.Context, zone int) error

	// VolumeDown decreases the zone volume by one step.
	VolumeDown(ctx context.Context, zone int) error

	// SetSource selects the input source for a zone.
	SetSource(ctx context.Context, zone int, source int) error

	// ZoneStatus queries a zone and returns its decoded status fields.
	ZoneStatus(ctx context.Context, zone int) (ParsedResponse, error)

	// Close releases the underlying serial port.
	Close() error
}
