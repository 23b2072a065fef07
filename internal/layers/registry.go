// Package layers holds the declarative per-service configuration that
// replaces one-off adapter code: each layer is a record naming a
// feature service endpoint, its geometry kind, its radius cap, and the
// attribute aliases its schema uses.
package layers

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AtoZ-LocIntel/enrichment-engine/internal/core/model"
)

// DefaultRadiusCapMiles bounds layers that do not declare their own cap.
const DefaultRadiusCapMiles = 25

// Layer is one feature collection the engine can query.
type Layer struct {
	Name           string              `yaml:"name"`
	ServiceURL     string              `yaml:"service_url"`
	LayerID        string              `yaml:"layer_id,omitempty"`
	GeometryKind   string              `yaml:"geometry_kind"`
	RadiusCapMiles float64             `yaml:"radius_cap_miles,omitempty"`
	BatchSize      int                 `yaml:"batch_size,omitempty"`
	Aliases        map[string][]string `yaml:"aliases,omitempty"`

	kind model.GeometryKind
}

// Kind is the validated geometry kind.
func (l Layer) Kind() model.GeometryKind { return l.kind }

type file struct {
	Layers []Layer `yaml:"layers"`
}

// Registry is the set of configured layers, keyed by name.
type Registry struct {
	byName map[string]Layer
	order  []string
}

// Load reads and validates the YAML layer file from the specified path.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layer file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Registry from raw YAML.
func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse layer file: %w", err)
	}
	if len(f.Layers) == 0 {
		return nil, fmt.Errorf("layer file defines no layers")
	}

	r := &Registry{byName: make(map[string]Layer, len(f.Layers))}
	for i, l := range f.Layers {
		l.Name = strings.TrimSpace(l.Name)
		if l.Name == "" {
			return nil, fmt.Errorf("layer %d: name is required", i)
		}
		if _, dup := r.byName[l.Name]; dup {
			return nil, fmt.Errorf("layer %q: duplicate name", l.Name)
		}
		if strings.TrimSpace(l.ServiceURL) == "" {
			return nil, fmt.Errorf("layer %q: service_url is required", l.Name)
		}
		kind, err := model.ParseGeometryKind(strings.ToLower(strings.TrimSpace(l.GeometryKind)))
		if err != nil {
			return nil, fmt.Errorf("layer %q: %w", l.Name, err)
		}
		l.kind = kind
		if l.RadiusCapMiles < 0 {
			return nil, fmt.Errorf("layer %q: radius_cap_miles must be >= 0", l.Name)
		}
		if l.RadiusCapMiles == 0 {
			l.RadiusCapMiles = DefaultRadiusCapMiles
		}
		r.byName[l.Name] = l
		r.order = append(r.order, l.Name)
	}
	return r, nil
}

// Get returns the layer with the given name.
func (r *Registry) Get(name string) (Layer, bool) {
	l, ok := r.byName[name]
	return l, ok
}

// All returns every layer in file order.
func (r *Registry) All() []Layer {
	out := make([]Layer, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.byName[n])
	}
	return out
}

// Select resolves a comma-separated subset of layer names, or every
// layer when names is empty. Unknown names are an error.
func (r *Registry) Select(names string) ([]Layer, error) {
	names = strings.TrimSpace(names)
	if names == "" {
		return r.All(), nil
	}
	var out []Layer
	for part := range strings.SplitSeq(names, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		l, ok := r.byName[part]
		if !ok {
			return nil, fmt.Errorf("unknown layer %q", part)
		}
		out = append(out, l)
	}
	if len(out) == 0 {
		return r.All(), nil
	}
	return out, nil
}
