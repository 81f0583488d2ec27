// internal/protocol/parse.go
package protocol

import (
	"github.com/rsnodgrass/goanthem/pkg/control"
)

// ParseResponse matches a reply line against the dialect's patterns in
// configuration order and returns the first match's named capture groups.
// Fields declared boolean decode "0"/"1" to false/true; any other capture
// for a boolean field passes through as the raw string rather than being
// silently coerced. Returns ok=false when no pattern matches; callers decide
// whether that is a failure.
//
// Parsing is pure: nothing in the dialect is mutated.
func ParseResponse(d *Dialect, line string) (control.ParsedResponse, bool) {
	for _, rp := range d.Responses {
		m := rp.Pattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		fields := make(control.ParsedResponse)
		for i, group := range rp.Pattern.SubexpNames() {
			if i == 0 || group == "" {
				continue
			}
			val := m[i]
			if d.IsBooleanField(group) {
				switch val {
				case "0":
					fields[group] = false
				case "1":
					fields[group] = true
				default:
					fields[group] = val
				}
			} else {
				fields[group] = val
			}
		}
		return fields, true
	}
	return nil, false
}
