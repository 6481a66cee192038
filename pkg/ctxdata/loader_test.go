package ctxdata

import (
	"errors"
	"reflect"
	"testing"
	"testing/fstest"
)

func entryKeys(entries []Entry) []string {
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys
}

func entryMap(entries []Entry) map[string]any {
	m := make(map[string]any, len(entries))
	for _, e := range entries {
		m[e.Key] = e.Value
	}
	return m
}

func TestJSONLoader(t *testing.T) {
	fsys := fstest.MapFS{
		"data.json": {Data: []byte(`{"z": 1, "a": 2.5, "m": {"n": [1, "x"]}, "b": null}`)},
		"list.json": {Data: []byte(`[1, 2]`)},
		"bad.json":  {Data: []byte(`{"a": `)},
	}

	entries, err := JSON{}.Load(fsys, "data.json")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got, want := entryKeys(entries), []string{"z", "a", "m", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("keys = %v, want %v", got, want)
	}
	want := map[string]any{
		"z": 1,
		"a": 2.5,
		"m": map[string]any{"n": []any{1, "x"}},
		"b": nil,
	}
	if got := entryMap(entries); !reflect.DeepEqual(got, want) {
		t.Errorf("values = %#v, want %#v", got, want)
	}

	if _, err = (JSON{}).Load(fsys, "list.json"); !errors.Is(err, ErrNotObject) {
		t.Errorf("Load(list.json) error = %v, want ErrNotObject", err)
	}
	if _, err = (JSON{}).Load(fsys, "bad.json"); err == nil {
		t.Error("Load(bad.json) error = nil")
	}
	if _, err = (JSON{}).Load(fsys, "missing.json"); err == nil {
		t.Error("Load(missing.json) error = nil")
	}
}

func TestYAMLLoader(t *testing.T) {
	fsys := fstest.MapFS{
		"data.yaml": {Data: []byte(`title: Hello
count: 3
+tags:
  - a
nav:
  home: /
  sub:
    deep: true
`)},
	}
	entries, err := YAML{}.Load(fsys, "data.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got, want := entryKeys(entries), []string{"title", "count", "+tags", "nav"}; !reflect.DeepEqual(got, want) {
		t.Errorf("keys = %v, want %v", got, want)
	}
	want := map[string]any{
		"title": "Hello",
		"count": 3,
		"+tags": []any{"a"},
		"nav": map[string]any{
			"home": "/",
			"sub":  map[string]any{"deep": true},
		},
	}
	if got := entryMap(entries); !reflect.DeepEqual(got, want) {
		t.Errorf("values = %#v, want %#v", got, want)
	}
}

func TestINILoader(t *testing.T) {
	fsys := fstest.MapFS{
		"data.ini": {Data: []byte(`[DEFAULT]
lang = fr

[scope]
Title = Hello ;# trailing comment
count = 3
ratio = 0.5
published = Date(2023,1,15)
home = ${links:home}
price = $$5
self = ${lang}

[links]
home = /index.html

[items:2]
name = second

[items:1]
name = first

[cfg.db]
host = localhost
`)},
	}

	entries, err := INI{}.Load(fsys, "data.ini")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	got := entryMap(entries)

	checks := map[string]any{
		"title":     "Hello",
		"count":     3,
		"ratio":     0.5,
		"home":      "/index.html",
		"price":     "$5",
		"self":      "fr",
		"lang":      "fr",
		"published": NewDate(2023, 1, 15),
	}
	for k, want := range checks {
		if d, ok := want.(Date); ok {
			if gd, ok := got[k].(Date); !ok || !gd.Equal(d.Time) {
				t.Errorf("%s = %#v, want %v", k, got[k], d)
			}
			continue
		}
		if got[k] != want {
			t.Errorf("%s = %#v, want %#v", k, got[k], want)
		}
	}

	if _, ok := got["scope"]; ok {
		t.Error("scope section not hoisted")
	}
	if links, ok := got["links"].(map[string]any); !ok || links["home"] != "/index.html" {
		t.Errorf("links = %#v", got["links"])
	}

	wantItems := []any{
		map[string]any{"name": "first", "lang": "fr", IndexKey: 1},
		map[string]any{"name": "second", "lang": "fr", IndexKey: 2},
	}
	if !reflect.DeepEqual(got["items"], wantItems) {
		t.Errorf("items = %#v, want %#v", got["items"], wantItems)
	}

	wantCfg := map[string]any{"db": map[string]any{"host": "localhost", "lang": "fr"}}
	if !reflect.DeepEqual(got["cfg"], wantCfg) {
		t.Errorf("cfg = %#v, want %#v", got["cfg"], wantCfg)
	}
	for _, k := range []string{"items:1", "items:2", "cfg.db", "DEFAULT"} {
		if _, ok := got[k]; ok {
			t.Errorf("raw section %q left in data", k)
		}
	}
}

func TestINIMissingSectionHeader(t *testing.T) {
	testCases := map[string]string{
		"key first":          "title = Hello\n[scope]\ncount = 3\n",
		"after comments":     "; site data\n# generated\n\ntitle = Hello\n",
		"no sections at all": "title = Hello\n",
	}
	for name, data := range testCases {
		t.Run(name, func(t *testing.T) {
			fsys := fstest.MapFS{"data.ini": {Data: []byte(data)}}
			if _, err := (INI{}).Load(fsys, "data.ini"); !errors.Is(err, ErrMissingSectionHeader) {
				t.Errorf("Load() error = %v, want ErrMissingSectionHeader", err)
			}
		})
	}

	fsys := fstest.MapFS{"data.ini": {Data: []byte("; comment\n\n[scope]\ntitle = Hello\n")}}
	entries, err := INI{}.Load(fsys, "data.ini")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := entryMap(entries); got["title"] != "Hello" {
		t.Errorf("title = %#v, want Hello", got["title"])
	}
}

func TestINILocate(t *testing.T) {
	seq := []any{
		map[string]any{"name": "a", IndexKey: 3},
		map[string]any{"name": "b", IndexKey: 7},
	}
	el, ok := INI{}.Locate(seq, 7)
	if !ok || el.(map[string]any)["name"] != "b" {
		t.Errorf("Locate(7) = %v, %v", el, ok)
	}
	if _, ok = (INI{}).Locate(seq, 0); ok {
		t.Error("Locate(0) found an element with no matching tag")
	}
}

func TestLookupFormat(t *testing.T) {
	for _, ext := range []string{"json", ".ini", "YAML"} {
		if _, err := LookupFormat(ext); err != nil {
			t.Errorf("LookupFormat(%q) error = %v", ext, err)
		}
	}
	if _, err := LookupFormat("toml"); err == nil {
		t.Error("LookupFormat(toml) error = nil")
	}
	if got, want := Formats(), []string{"ini", "json", "yaml"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Formats() = %v, want %v", got, want)
	}
}
