package ctxdata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
)

// JSON loads data files holding a single JSON object.
type JSON struct{}

// Extension implements Loader.
func (JSON) Extension() string { return "json" }

// Load implements Loader. The top-level object is read token by token so
// that its keys keep their file order.
func (JSON) Load(fsys fs.FS, name string) ([]Entry, error) {
	b, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("error reading json data %q: %w", name, err)
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("error parsing json data %q: %w", name, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("error parsing json data %q: %w", name, ErrNotObject)
	}

	om := newOrderedMap()
	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return nil, fmt.Errorf("error parsing json data %q: %w", name, err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("error parsing json data %q: unexpected key %v", name, tok)
		}
		var v any
		if err = dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("error parsing json data %q, key %q: %w", name, key, err)
		}
		om.set(key, normalize(v))
	}
	if _, err = dec.Token(); err != nil {
		return nil, fmt.Errorf("error parsing json data %q: %w", name, err)
	}

	return om.entries(), nil
}
