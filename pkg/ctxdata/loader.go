package ctxdata

import (
	"fmt"
	"io/fs"
	"maps"
	"sort"
	"strings"
)

// Entry is one top-level key of a data file, in file order.
type Entry struct {
	Key   string
	Value any
}

// Loader reads one data file format.
type Loader interface {
	// Extension is the file extension handled by the loader, without a dot.
	Extension() string

	// Load reads the named file from fsys and returns its top-level entries
	// in file order. Nested mappings are map[string]any and sequences []any.
	Load(fsys fs.FS, name string) ([]Entry, error)
}

// ElementLocator is implemented by loaders whose sequences carry their own
// index tags. Locate returns the element of seq addressed by index.
type ElementLocator interface {
	Locate(seq []any, index int) (any, bool)
}

var formats = map[string]Loader{}

// RegisterFormat makes a loader available to LookupFormat under its extension.
func RegisterFormat(l Loader) {
	formats[strings.ToLower(l.Extension())] = l
}

// LookupFormat returns the loader registered for the extension.
func LookupFormat(ext string) (Loader, error) {
	l, ok := formats[strings.ToLower(strings.TrimPrefix(ext, "."))]
	if !ok {
		return nil, fmt.Errorf("ctxdata: no loader for format %q", ext)
	}
	return l, nil
}

// Formats returns the extensions of all registered loaders, sorted.
func Formats() []string {
	names := make([]string, 0, len(formats))
	for ext := range formats {
		names = append(names, ext)
	}
	sort.Strings(names)
	return names
}

func init() {
	RegisterFormat(JSON{})
	RegisterFormat(INI{})
	RegisterFormat(YAML{})
}

// orderedMap is a string-keyed mapping that remembers insertion order, so
// that directive resolution and meta derivation see keys in file order.
type orderedMap struct {
	keys []string
	vals map[string]any
}

func newOrderedMap() *orderedMap {
	return &orderedMap{vals: map[string]any{}}
}

func (m *orderedMap) get(key string) (any, bool) {
	v, ok := m.vals[key]
	return v, ok
}

func (m *orderedMap) set(key string, value any) {
	if _, ok := m.vals[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = value
}

func (m *orderedMap) entries() []Entry {
	out := make([]Entry, len(m.keys))
	for i, k := range m.keys {
		out[i] = Entry{Key: k, Value: m.vals[k]}
	}
	return out
}

func (m *orderedMap) toMap() map[string]any {
	out := make(map[string]any, len(m.vals))
	maps.Copy(out, m.vals)
	return out
}

// sortedEntries returns the entries of a plain map sorted by key.
func sortedEntries(m map[string]any) []Entry {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Entry, len(keys))
	for i, k := range keys {
		out[i] = Entry{Key: k, Value: m[k]}
	}
	return out
}
