// internal/config/registry.go
package config

import (
	"embed"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rsnodgrass/goanthem/internal/protocol"
)

//go:embed protocols/*.yaml
var protocolFS embed.FS

//go:embed series/*.yaml
var seriesFS embed.FS

const defaultTimeout = time.Second

// Series describes one amplifier series: which dialect it speaks and the
// serial defaults its RS232 port expects.
type Series struct {
	Name           string
	Dialect        *protocol.Dialect
	SerialDefaults protocol.SerialSettings
}

// Registry holds every dialect and series definition, loaded once from the
// embedded configuration trees and immutable afterwards.
type Registry struct {
	dialects map[string]*protocol.Dialect
	series   map[string]*Series
}

// dialectSpec is the raw YAML shape of a protocols/<name>.yaml file.
type dialectSpec struct {
	CommandEOL             string            `yaml:"command_eol"`
	Timeout                duration          `yaml:"timeout"`
	MinTimeBetweenCommands duration          `yaml:"min_time_between_commands"`
	DelayAfterPowerOn      duration          `yaml:"delay_after_power_on"`
	BooleanFields          []string          `yaml:"boolean_fields"`
	PowerOnFrames          []string          `yaml:"power_on_frames"`
	Commands               map[string]string `yaml:"commands"`
	Responses              orderedPatterns   `yaml:"responses"`
}

// seriesSpec is the raw YAML shape of a series/<name>.yaml file.
type seriesSpec struct {
	Protocol       string                  `yaml:"rs232_protocol"`
	SerialDefaults protocol.SerialSettings `yaml:"rs232_defaults"`
}

// duration decodes "250ms"-style YAML strings.
type duration time.Duration

func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = duration(v)
	return nil
}

// patternSpec is one named response pattern as authored.
type patternSpec struct {
	Name    string
	Pattern string
}

// orderedPatterns preserves the document order of the responses mapping.
// Match precedence is declaration order, so a plain map would lose the one
// thing the configuration author controls.
type orderedPatterns []patternSpec

func (o *orderedPatterns) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("responses must be a mapping, got %v", node.Kind)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		*o = append(*o, patternSpec{
			Name:    node.Content[i].Value,
			Pattern: node.Content[i+1].Value,
		})
	}
	return nil
}

// LoadRegistry parses the embedded protocols/ and series/ trees, compiles
// every response pattern, and validates series → dialect references.
func LoadRegistry(logger *zap.Logger) (*Registry, error) {
	r := &Registry{
		dialects: make(map[string]*protocol.Dialect),
		series:   make(map[string]*Series),
	}

	entries, err := protocolFS.ReadDir("protocols")
	if err != nil {
		return nil, fmt.Errorf("reading protocol configs: %w", err)
	}
	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name(), ".yaml")
		raw, err := protocolFS.ReadFile(path.Join("protocols", entry.Name()))
		if err != nil {
			return nil, err
		}
		dialect, err := parseDialect(name, raw)
		if err != nil {
			return nil, fmt.Errorf("protocol %s: %w", name, err)
		}
		r.dialects[name] = dialect
		logger.Debug("Loaded protocol dialect",
			zap.String("dialect", name),
			zap.Int("commands", len(dialect.Commands)),
			zap.Int("responses", len(dialect.Responses)),
		)
	}

	entries, err = seriesFS.ReadDir("series")
	if err != nil {
		return nil, fmt.Errorf("reading series configs: %w", err)
	}
	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name(), ".yaml")
		raw, err := seriesFS.ReadFile(path.Join("series", entry.Name()))
		if err != nil {
			return nil, err
		}

		var spec seriesSpec
		if err := yaml.Unmarshal(raw, &spec); err != nil {
			return nil, fmt.Errorf("series %s: %w", name, err)
		}
		dialect, ok := r.dialects[spec.Protocol]
		if !ok {
			return nil, fmt.Errorf("series %s references unknown protocol %q", name, spec.Protocol)
		}

		r.series[name] = &Series{
			Name:           name,
			Dialect:        dialect,
			SerialDefaults: spec.SerialDefaults,
		}
		logger.Debug("Loaded amplifier series",
			zap.String("series", name),
			zap.String("dialect", spec.Protocol),
		)
	}

	logger.Info("Device configuration loaded",
		zap.Int("dialects", len(r.dialects)),
		zap.Int("series", len(r.series)),
	)
	return r, nil
}

func parseDialect(name string, raw []byte) (*protocol.Dialect, error) {
	var spec dialectSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, err
	}
	if spec.CommandEOL == "" {
		return nil, fmt.Errorf("command_eol is required")
	}
	if len(spec.Commands) == 0 {
		return nil, fmt.Errorf("at least one command is required")
	}
	if spec.Timeout == 0 {
		spec.Timeout = duration(defaultTimeout)
	}

	d := &protocol.Dialect{
		Name:                   name,
		Commands:               spec.Commands,
		EOL:                    []byte(spec.CommandEOL),
		BooleanFields:          make(map[string]struct{}, len(spec.BooleanFields)),
		Timeout:                time.Duration(spec.Timeout),
		MinTimeBetweenCommands: time.Duration(spec.MinTimeBetweenCommands),
		DelayAfterPowerOn:      time.Duration(spec.DelayAfterPowerOn),
	}
	for _, f := range spec.BooleanFields {
		d.BooleanFields[f] = struct{}{}
	}
	for _, frame := range spec.PowerOnFrames {
		d.PowerOnFrames = append(d.PowerOnFrames, []byte(frame+spec.CommandEOL))
	}

	for _, ps := range spec.Responses {
		re, err := compilePattern(ps.Pattern)
		if err != nil {
			return nil, fmt.Errorf("response %s: %w", ps.Name, err)
		}
		d.Responses = append(d.Responses, protocol.ResponsePattern{
			Name:    ps.Name,
			Pattern: re,
		})
	}
	return d, nil
}

// compilePattern compiles a response pattern anchored at the start of the
// line. Authors may anchor explicitly; unanchored patterns are wrapped so a
// mid-line match can never fire.
func compilePattern(p string) (*regexp.Regexp, error) {
	if !strings.HasPrefix(p, "^") {
		p = "^(?:" + p + ")"
	}
	return regexp.Compile(p)
}

// Dialect returns the named dialect. Unknown names are an explicit error,
// never a nil result.
func (r *Registry) Dialect(name string) (*protocol.Dialect, error) {
	d, ok := r.dialects[name]
	if !ok {
		return nil, fmt.Errorf("unknown protocol dialect %q", name)
	}
	return d, nil
}

// Series returns the named amplifier series.
func (r *Registry) Series(name string) (*Series, error) {
	s, ok := r.series[name]
	if !ok {
		return nil, fmt.Errorf("unsupported amplifier series %q (supported: %s)",
			name, strings.Join(r.SeriesNames(), ", "))
	}
	return s, nil
}

// SeriesNames returns the supported series names, sorted.
func (r *Registry) SeriesNames() []string {
	names := make([]string, 0, len(r.series))
	for name := range r.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
