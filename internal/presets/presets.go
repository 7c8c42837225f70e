// Package presets provides named sets of directives which can be applied in one go.
package presets

import (
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"github.com/leonelquinteros/gotext"
	"github.com/ubuntu/decorate"
	"github.com/ubuntu/sshdconf/internal/sshdconfig"
	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var builtin []byte

// Preset is a named, ordered set of directives.
type Preset struct {
	ID          string
	Name        string
	Description string

	settings sshdconfig.Patch
}

// Patch returns the directives of the preset, in the order they are declared.
func (p Preset) Patch() sshdconfig.Patch {
	return append(sshdconfig.Patch(nil), p.settings...)
}

// Table is an immutable list of presets.
type Table struct {
	presets []Preset
}

type rawPreset struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Settings    yaml.Node `yaml:"settings"`
}

// Load parses a YAML list of presets. Directive order within each preset is kept.
func Load(data []byte) (t Table, err error) {
	defer decorate.OnError(&err, gotext.Get("can't load presets"))

	var raws []rawPreset
	if err := yaml.Unmarshal(data, &raws); err != nil {
		return Table{}, err
	}

	seen := make(map[string]bool)
	for _, r := range raws {
		if r.ID == "" {
			return Table{}, errors.New(gotext.Get("preset without id"))
		}
		if seen[r.ID] {
			return Table{}, errors.New(gotext.Get("duplicate preset %q", r.ID))
		}
		seen[r.ID] = true

		settings, err := decodeSettings(&r.Settings)
		if err != nil {
			return Table{}, fmt.Errorf("%s: %w", gotext.Get("preset %q", r.ID), err)
		}

		t.presets = append(t.presets, Preset{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			settings:    settings,
		})
	}

	return t, nil
}

// decodeSettings walks a mapping node, as decoding into a Go map would lose the order.
func decodeSettings(n *yaml.Node) (sshdconfig.Patch, error) {
	if n.Kind == 0 {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, errors.New(gotext.Get("line %d: settings must be a mapping", n.Line))
	}

	var p sshdconfig.Patch
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if k.Kind != yaml.ScalarNode || v.Kind != yaml.ScalarNode {
			return nil, errors.New(gotext.Get("line %d: directive and value must be scalars", k.Line))
		}
		if _, ok := p.Get(k.Value); ok {
			return nil, errors.New(gotext.Get("line %d: duplicate directive %s", k.Line, k.Value))
		}
		p = append(p, sshdconfig.Setting{Name: k.Value, Value: v.Value})
	}
	return p, nil
}

// Names returns the preset ids in declaration order.
func (t Table) Names() []string {
	names := make([]string, 0, len(t.presets))
	for _, p := range t.presets {
		names = append(names, p.ID)
	}
	return names
}

// Get returns the preset with the given id.
func (t Table) Get(id string) (Preset, error) {
	for _, p := range t.presets {
		if p.ID == id {
			return p, nil
		}
	}
	return Preset{}, errors.New(gotext.Get("unknown preset %q", id))
}

var builtinTable = sync.OnceValues(func() (Table, error) {
	return Load(builtin)
})

// Builtin returns the presets shipped with the program.
func Builtin() (Table, error) {
	return builtinTable()
}

// Names returns the ids of the built-in presets.
func Names() ([]string, error) {
	t, err := Builtin()
	if err != nil {
		return nil, err
	}
	return t.Names(), nil
}

// Get returns the built-in preset with the given id.
func Get(id string) (Preset, error) {
	t, err := Builtin()
	if err != nil {
		return Preset{}, err
	}
	return t.Get(id)
}
