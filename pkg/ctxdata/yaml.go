package ctxdata

import (
	"fmt"
	"io/fs"

	"github.com/goccy/go-yaml"
)

// YAML loads data files holding a single YAML mapping.
type YAML struct{}

// Extension implements Loader.
func (YAML) Extension() string { return "yaml" }

// Load implements Loader. The top-level mapping is decoded as a MapSlice so
// that its keys keep their file order.
func (YAML) Load(fsys fs.FS, name string) ([]Entry, error) {
	b, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("error reading yaml data %q: %w", name, err)
	}

	var ms yaml.MapSlice
	if err = yaml.Unmarshal(b, &ms); err != nil {
		return nil, fmt.Errorf("error parsing yaml data %q: %w", name, err)
	}

	om := newOrderedMap()
	for _, item := range ms {
		om.set(fmt.Sprint(item.Key), normalize(unslice(item.Value)))
	}
	return om.entries(), nil
}

// unslice turns nested ordered mappings into plain maps.
func unslice(v any) any {
	switch t := v.(type) {
	case yaml.MapSlice:
		out := make(map[string]any, len(t))
		for _, item := range t {
			out[fmt.Sprint(item.Key)] = unslice(item.Value)
		}
		return out
	case map[string]any:
		for k, val := range t {
			t[k] = unslice(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = unslice(val)
		}
		return t
	default:
		return v
	}
}
