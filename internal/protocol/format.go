// internal/protocol/format.go
package protocol

import (
	"fmt"
	"strings"
)

// FormatCommand renders the named command template with args into a complete
// ASCII frame, EOL included. Unknown command names and template failures are
// rejected before any I/O happens.
func FormatCommand(d *Dialect, name string, args map[string]interface{}) ([]byte, error) {
	tmpl, ok := d.Commands[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q in dialect %s", ErrUnknownCommand, name, d.Name)
	}

	rendered, err := substitute(tmpl+string(d.EOL), args)
	if err != nil {
		return nil, &FormatError{Command: name, Reason: err.Error()}
	}

	for i := 0; i < len(rendered); i++ {
		if rendered[i] > 0x7f {
			return nil, &FormatError{
				Command: name,
				Reason:  fmt.Sprintf("result %q is not ASCII", rendered),
			}
		}
	}
	return []byte(rendered), nil
}

// FormatVolumeCommand builds a set_volume frame, clamping the level into
// [0, MaxVolume] first.
func FormatVolumeCommand(d *Dialect, zone int, volume int) ([]byte, error) {
	return FormatCommand(d, "set_volume", map[string]interface{}{
		"zone":   zone,
		"volume": ClampVolume(volume),
	})
}

// substitute replaces every {name} placeholder in tmpl with the matching
// argument. A placeholder without an argument, or a brace that never closes,
// fails the whole render.
func substitute(tmpl string, args map[string]interface{}) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		if c != '{' {
			if c == '}' {
				return "", fmt.Errorf("unmatched %q at offset %d", "}", i)
			}
			b.WriteByte(c)
			continue
		}

		end := strings.IndexByte(tmpl[i:], '}')
		if end < 0 {
			return "", fmt.Errorf("unclosed placeholder at offset %d", i)
		}
		key := tmpl[i+1 : i+end]
		val, ok := args[key]
		if !ok {
			return "", fmt.Errorf("missing argument %q", key)
		}
		fmt.Fprintf(&b, "%v", val)
		i += end
	}
	return b.String(), nil
}
