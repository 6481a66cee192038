package ctxdata

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// IndexKey tags every element of an INI "root:N" sequence with its N.
const IndexKey = "__index__"

// scopeSection holds keys that are hoisted to the top level of an INI file.
const scopeSection = "scope"

// maxInterpolationDepth bounds ${...} expansion chains.
const maxInterpolationDepth = 10

// ErrMissingSectionHeader is returned for an INI file with a key line before
// its first [section] header.
var ErrMissingSectionHeader = errors.New("file contains no section headers")

var (
	iniListRe   = regexp.MustCompile(`^([a-zA-Z_0-9]+):([0-9]+)$`)
	iniDictRe   = regexp.MustCompile(`^([a-zA-Z_0-9]+)\.([a-zA-Z_0-9]+)$`)
	iniInterpRe = regexp.MustCompile(`\$(\$|\{[^}]*\})`)
)

// INI loads sectioned INI data files.
//
// Every section becomes a mapping under its own name, except:
//
//	[scope]      keys are hoisted to the top level
//	[root:N]     becomes element N of the sequence "root", tagged with IndexKey
//	[root.key]   becomes entry "key" of the mapping "root"
//
// Keys are case-insensitive, values go through ParseValue, and
// ${option} / ${section:option} references are expanded first. Keys of the
// DEFAULT section are visible in every section. A ";#" preceded by
// whitespace starts an inline comment. Keys above the first section header
// are an error.
type INI struct{}

// Extension implements Loader.
func (INI) Extension() string { return "ini" }

type iniSection struct {
	name string
	keys []string
	raw  map[string]string
}

// Load implements Loader.
func (INI) Load(fsys fs.FS, name string) ([]Entry, error) {
	b, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("error reading ini data %q: %w", name, err)
	}
	if err = checkSectionHeader(b); err != nil {
		return nil, fmt.Errorf("error parsing ini data %q: %w", name, err)
	}

	f, err := ini.LoadSources(ini.LoadOptions{
		InsensitiveKeys:            true,
		IgnoreInlineComment:        true,
		AllowPythonMultilineValues: true,
		PreserveSurroundedQuote:    true,
	}, b)
	if err != nil {
		return nil, fmt.Errorf("error parsing ini data %q: %w", name, err)
	}

	sections := readSections(f)
	byName := make(map[string]*iniSection, len(sections))
	for _, s := range sections {
		byName[s.name] = s
	}

	type listItem struct {
		index   int
		section string
	}
	lists := map[string][]listItem{}
	dicts := map[string][]string{}
	var listOrder, dictOrder []string

	data := newOrderedMap()
	var scope []Entry
	for _, s := range sections {
		if m := iniListRe.FindStringSubmatch(s.name); m != nil {
			idx, err := strconv.Atoi(m[2])
			if err != nil {
				return nil, fmt.Errorf("error parsing ini data %q: section %q: %w", name, s.name, err)
			}
			if _, ok := lists[m[1]]; !ok {
				listOrder = append(listOrder, m[1])
			}
			lists[m[1]] = append(lists[m[1]], listItem{index: idx, section: s.name})
			continue
		}
		if m := iniDictRe.FindStringSubmatch(s.name); m != nil {
			if _, ok := dicts[m[1]]; !ok {
				dictOrder = append(dictOrder, m[1])
			}
			dicts[m[1]] = append(dicts[m[1]], m[2])
			continue
		}
		if s.name == scopeSection {
			scope = s.entries(byName)
			continue
		}
		data.set(s.name, s.values(byName))
	}

	for _, e := range scope {
		data.set(e.Key, e.Value)
	}

	for _, root := range dictOrder {
		m := map[string]any{}
		for _, key := range dicts[root] {
			m[key] = byName[root+"."+key].values(byName)
		}
		data.set(root, m)
	}

	for _, root := range listOrder {
		items := lists[root]
		sort.SliceStable(items, func(i, j int) bool { return items[i].index < items[j].index })
		seq := make([]any, 0, len(items))
		for _, it := range items {
			m := byName[it.section].values(byName)
			m[IndexKey] = it.index
			seq = append(seq, m)
		}
		data.set(root, seq)
	}

	return data.entries(), nil
}

// Locate implements ElementLocator: it matches the element whose IndexKey tag
// equals index, not the element at that position.
func (INI) Locate(seq []any, index int) (any, bool) {
	for _, el := range seq {
		m, ok := el.(map[string]any)
		if !ok {
			continue
		}
		if tag, ok := m[IndexKey].(int); ok && tag == index {
			return m, true
		}
	}
	return nil, false
}

// checkSectionHeader fails when the first line that is neither blank nor a
// comment is not a section header. gopkg.in/ini would file such keys under
// DEFAULT.
func checkSectionHeader(b []byte) error {
	sc := bufio.NewScanner(bytes.NewReader(bytes.TrimPrefix(b, []byte("\ufeff"))))
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == ';' || line[0] == '#' {
			continue
		}
		if line[0] == '[' {
			return nil
		}
		return fmt.Errorf("%w: line %d: %q", ErrMissingSectionHeader, n, line)
	}
	return sc.Err()
}

func readSections(f *ini.File) []*iniSection {
	var defaults *iniSection
	var out []*iniSection
	for _, sec := range f.Sections() {
		s := &iniSection{name: sec.Name(), raw: map[string]string{}}
		for _, k := range sec.Keys() {
			if _, ok := s.raw[k.Name()]; !ok {
				s.keys = append(s.keys, k.Name())
			}
			s.raw[k.Name()] = stripInlineComment(k.Value())
		}
		if s.name == ini.DefaultSection {
			defaults = s
			continue
		}
		out = append(out, s)
	}

	if defaults != nil {
		for _, s := range out {
			for _, k := range defaults.keys {
				if _, ok := s.raw[k]; !ok {
					s.keys = append(s.keys, k)
					s.raw[k] = defaults.raw[k]
				}
			}
		}
	}
	return out
}

func (s *iniSection) entries(all map[string]*iniSection) []Entry {
	out := make([]Entry, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, Entry{Key: k, Value: ParseValue(s.interpolate(all, s.raw[k], 0))})
	}
	return out
}

func (s *iniSection) values(all map[string]*iniSection) map[string]any {
	out := make(map[string]any, len(s.keys))
	for _, e := range s.entries(all) {
		out[e.Key] = e.Value
	}
	return out
}

// interpolate expands ${option} and ${section:option}; "$$" is a literal
// dollar. Unresolvable references are left as written.
func (s *iniSection) interpolate(all map[string]*iniSection, value string, depth int) string {
	if depth >= maxInterpolationDepth || !strings.Contains(value, "$") {
		return value
	}
	return iniInterpRe.ReplaceAllStringFunc(value, func(ref string) string {
		if ref == "$$" {
			return "$"
		}
		path := ref[2 : len(ref)-1]
		target, option := s, path
		if sec, opt, ok := strings.Cut(path, ":"); ok {
			target, option = all[sec], opt
		}
		if target == nil {
			return ref
		}
		v, ok := target.raw[strings.ToLower(option)]
		if !ok {
			return ref
		}
		return target.interpolate(all, v, depth+1)
	})
}

func stripInlineComment(v string) string {
	for i := 1; i+1 < len(v); i++ {
		if v[i] == ';' && v[i+1] == '#' && (v[i-1] == ' ' || v[i-1] == '\t') {
			return strings.TrimRight(v[:i], " \t")
		}
	}
	return v
}
