package ctxdata

import (
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"
)

// update resolves entries in order into dst.
func (h *Handler) update(dst *orderedMap, entries []Entry) {
	for _, e := range entries {
		h.apply(dst, ParseDirective(e.Key), e.Value)
	}
}

func (h *Handler) apply(dst *orderedMap, d Directive, value any) {
	if d.crossTarget() && h.depth >= maxIncludeDepth {
		h.logger.Debug("Directive ignored in included document", "target", h.target, "key", d.Raw)
		dst.set(d.Raw, value)
		return
	}

	switch d.Kind {
	case Append:
		value = h.clean(value)
		if ex, ok := dst.get(d.Name); ok {
			value = appendValue(ex, value)
		}
		dst.set(d.Name, value)

	case Prepend:
		value = h.clean(value)
		if ex, ok := dst.get(d.Name); ok {
			value = prependValue(ex, value)
		}
		dst.set(d.Name, value)

	case Include:
		h.include(dst, d, value)

	case Get:
		h.get(dst, d, value)

	case Read:
		h.read(dst, d, value)

	default:
		dst.set(d.Raw, h.clean(value))
	}
}

// clean resolves directives found in nested mappings, including mappings
// held in sequences. Within one mapping, plain keys are applied before
// directive keys, each group in key order, so that "+name" always finds the
// plain "name" it extends.
func (h *Handler) clean(value any) any {
	switch v := value.(type) {
	case map[string]any:
		om := newOrderedMap()
		var directives []Entry
		for _, e := range sortedEntries(v) {
			d := ParseDirective(e.Key)
			if d.Kind != Plain {
				directives = append(directives, e)
				continue
			}
			h.apply(om, d, e.Value)
		}
		h.update(om, directives)
		return om.toMap()
	case []any:
		out := make([]any, len(v))
		for i, el := range v {
			out[i] = h.clean(el)
		}
		return out
	default:
		return value
	}
}

// sub returns the processed scope of another target, one level deeper.
func (h *Handler) sub(target string) *orderedMap {
	s := New(h.loader, h.fsys, target,
		WithLogger(h.logger),
		WithGlobalName(h.globalName),
		withDepth(h.depth+1),
	)
	// A failed load is already logged by ProcessScope and leaves it empty.
	_ = s.ProcessScope()
	return s.scope
}

func (h *Handler) include(dst *orderedMap, d Directive, value any) {
	target, ok := value.(string)
	if !ok {
		h.logger.Warn("Include directive expects a target", "key", d.Raw, "value", value)
		dst.set(d.Raw, value)
		return
	}
	dst.set(d.Name, h.sub(strings.TrimSpace(target)).toMap())
}

// get resolves "!get: target, field[, dest]". field may be "name:N" for a
// sequence element or "name.key" for a mapping entry. A failed lookup keeps
// the directive and its raw value.
func (h *Handler) get(dst *orderedMap, d Directive, value any) {
	raw, ok := value.(string)
	if !ok {
		h.logger.Warn("Get directive expects a string", "key", d.Raw, "value", value)
		dst.set(d.Raw, value)
		return
	}
	args := strings.Split(raw, ",")
	if len(args) < 2 {
		h.logger.Warn("Malformed get directive", "target", h.target, "value", raw)
		dst.set(d.Raw, value)
		return
	}
	target := strings.TrimSpace(args[0])
	field := strings.TrimSpace(args[1])

	name, sub, sep := splitField(field)
	dest := name
	if len(args) > 2 && strings.TrimSpace(args[2]) != "" {
		dest = strings.TrimSpace(args[2])
	}

	scope := h.sub(target)
	v, _ := scope.get(name)

	switch sep {
	case ':':
		el, ok := h.element(v, sub)
		if !ok {
			h.logger.Warn("Failed to resolve get directive", "target", target, "key", field)
			dst.set(d.Raw, value)
			return
		}
		v = el
	case '.':
		m, ok := v.(map[string]any)
		if ok {
			v, ok = m[sub]
		}
		if !ok {
			h.logger.Warn("Failed to resolve get directive", "target", target, "key", field)
			dst.set(d.Raw, value)
			return
		}
	}
	dst.set(dest, v)
}

// element looks up index in a sequence: through the loader's ElementLocator
// when it has one, by position otherwise. Negative positions count from the
// end.
func (h *Handler) element(v any, index string) (any, bool) {
	i, err := strconv.Atoi(index)
	if err != nil {
		return nil, false
	}
	seq, ok := v.([]any)
	if !ok {
		return nil, false
	}
	if loc, ok := h.loader.(ElementLocator); ok {
		return loc.Locate(seq, i)
	}
	if i < 0 {
		i += len(seq)
	}
	if i < 0 || i >= len(seq) {
		return nil, false
	}
	return seq[i], true
}

// splitField splits "name:sub" or "name.sub" at the first separator.
func splitField(field string) (name, sub string, sep byte) {
	if i := strings.IndexAny(field, ":."); i >= 0 {
		return field[:i], field[i+1:], field[i]
	}
	return field, "", 0
}

// read stores the contents of the file named by value under the directive
// name, or a placeholder when it cannot be read.
func (h *Handler) read(dst *orderedMap, d Directive, value any) {
	raw, ok := value.(string)
	if !ok {
		h.logger.Warn("Read directive expects a file name", "key", d.Raw, "value", value)
		dst.set(d.Raw, value)
		return
	}

	name := path.Clean(strings.TrimPrefix(strings.TrimSpace(raw), "/"))
	if fs.ValidPath(name) {
		if b, err := fs.ReadFile(h.fsys, name); err == nil {
			dst.set(d.Name, string(b))
			return
		}
	}
	h.logger.Warn("Read directive failed", "target", h.target, "file", raw)
	dst.set(d.Name, fmt.Sprintf("no such file: %s", raw))
}
