package ctxdata

import (
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"testing/fstest"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func processJSON(t *testing.T, fsys fstest.MapFS, target string) *Handler {
	t.Helper()
	h := New(JSON{}, fsys, target, WithLogger(newTestLogger()))
	if err := h.Process(); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	return h
}

func mustScope(t *testing.T, h *Handler) map[string]any {
	t.Helper()
	scope, err := h.Scope()
	if err != nil {
		t.Fatalf("Scope() error = %v", err)
	}
	return scope
}

func TestHandlerEndToEnd(t *testing.T) {
	fsys := fstest.MapFS{
		"blog/post1.json":    {Data: []byte(`{"title": "Hello", "meta_title": "Hello | Blog"}`)},
		"blog/_global_.json": {Data: []byte(`{"author": "Jane"}`)},
	}
	h := processJSON(t, fsys, "blog/post1.html")

	global, err := h.Global()
	if err != nil {
		t.Fatalf("Global() error = %v", err)
	}
	if global["author"] != "Jane" {
		t.Errorf("global author = %v, want Jane", global["author"])
	}
	if global["target"] != "blog/post1" || global["base_target"] != "post1" {
		t.Errorf("global seeds = %v / %v", global["target"], global["base_target"])
	}

	wantScope := map[string]any{"title": "Hello", "meta_title": "Hello | Blog"}
	if scope := mustScope(t, h); !reflect.DeepEqual(scope, wantScope) {
		t.Errorf("scope = %v, want %v", scope, wantScope)
	}

	meta, err := h.Meta()
	if err != nil {
		t.Fatalf("Meta() error = %v", err)
	}
	if want := map[string]any{"title": "Hello | Blog"}; !reflect.DeepEqual(meta, want) {
		t.Errorf("meta = %v, want %v", meta, want)
	}
	if h.State() != StateReady {
		t.Errorf("State() = %v, want ready", h.State())
	}
}

func TestHandlerNotReady(t *testing.T) {
	h := New(JSON{}, fstest.MapFS{}, "index.html", WithLogger(newTestLogger()))
	if _, err := h.Global(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Global() error = %v, want ErrNotReady", err)
	}
	if _, err := h.Scope(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Scope() error = %v, want ErrNotReady", err)
	}
	if _, err := h.Meta(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Meta() error = %v, want ErrNotReady", err)
	}

	_ = h.ProcessGlobal()
	if _, err := h.Global(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Global() after ProcessGlobal error = %v, want ErrNotReady", err)
	}
}

func TestHandlerStagesAfterReady(t *testing.T) {
	fsys := fstest.MapFS{
		"_global_.json": {Data: []byte(`{"site": "Example", "meta_site": "Example"}`)},
		"index.json":    {Data: []byte(`{"title": "Home", "meta_title": "Home"}`)},
	}
	h := processJSON(t, fsys, "index.html")

	global, _ := h.Global()
	scope := mustScope(t, h)
	meta, _ := h.Meta()

	stages := []struct {
		name string
		run  func() error
	}{
		{"ProcessGlobal", h.ProcessGlobal},
		{"ProcessScope", h.ProcessScope},
		{"ProcessMeta", func() error { h.ProcessMeta(); return nil }},
		{"Process", h.Process},
	}
	for _, stage := range stages {
		if err := stage.run(); err != nil {
			t.Errorf("%s() error = %v", stage.name, err)
		}
		if h.State() != StateReady {
			t.Fatalf("State() after %s = %v, want ready", stage.name, h.State())
		}
		if got, err := h.Global(); err != nil || !reflect.DeepEqual(got, global) {
			t.Errorf("Global() after %s = %v, %v; want %v", stage.name, got, err, global)
		}
		if got, err := h.Scope(); err != nil || !reflect.DeepEqual(got, scope) {
			t.Errorf("Scope() after %s = %v, %v; want %v", stage.name, got, err, scope)
		}
		if got, err := h.Meta(); err != nil || !reflect.DeepEqual(got, meta) {
			t.Errorf("Meta() after %s = %v, %v; want %v", stage.name, got, err, meta)
		}
	}
}

func TestHandlerMissingScope(t *testing.T) {
	h := New(JSON{}, fstest.MapFS{}, "nowhere.html", WithLogger(newTestLogger()))
	if err := h.Process(); err == nil {
		t.Error("Process() error = nil, want scope load error")
	}
	if h.State() != StateReady {
		t.Fatalf("State() = %v, want ready", h.State())
	}
	if scope := mustScope(t, h); len(scope) != 0 {
		t.Errorf("scope = %v, want empty", scope)
	}
}

func TestHandlerGlobalOverride(t *testing.T) {
	fsys := fstest.MapFS{
		"_global_.json":       {Data: []byte(`{"color": "red", "lang": "fr"}`)},
		"a/_global_.json":     {Data: []byte(`{"color": "green"}`)},
		"a/b/_global_.json":   {Data: []byte(`{"color": "blue", "+tags": ["b"]}`)},
		"a/b/page.json":       {Data: []byte(`{}`)},
		"other/_global_.json": {Data: []byte(`{"color": "black"}`)},
	}
	h := processJSON(t, fsys, "a/b/page.html")
	global, _ := h.Global()
	if global["color"] != "blue" {
		t.Errorf("color = %v, want blue", global["color"])
	}
	if global["lang"] != "fr" {
		t.Errorf("lang = %v, want fr", global["lang"])
	}
	if !reflect.DeepEqual(global["tags"], []any{"b"}) {
		t.Errorf("tags = %v, want [b]", global["tags"])
	}
}

func TestHandlerAppendPrepend(t *testing.T) {
	testCases := []struct {
		name string
		data string
		key  string
		want any
	}{
		{"append sequence", `{"items": [1, 2], "+items": [3]}`, "items", []any{1, 2, 3}},
		{"prepend sequence", `{"items": [1, 2], "items+": [3]}`, "items", []any{3, 1, 2}},
		{"append mapping", `{"cfg": {"a": 1}, "+cfg": {"b": 2}}`, "cfg", map[string]any{"a": 1, "b": 2}},
		{"append mapping collision", `{"cfg": {"a": 1}, "+cfg": {"a": 2}}`, "cfg", map[string]any{"a": 2}},
		{"prepend mapping collision", `{"cfg": {"a": 1}, "cfg+": {"a": 2, "b": 3}}`, "cfg", map[string]any{"a": 1, "b": 3}},
		{"append string", `{"s": "foo", "+s": "bar"}`, "s", "foobar"},
		{"append absent", `{"+items": [3]}`, "items", []any{3}},
		{"append mismatched", `{"items": [1], "+items": "x"}`, "items", "x"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fsys := fstest.MapFS{"page.json": {Data: []byte(tc.data)}}
			scope := mustScope(t, processJSON(t, fsys, "page.html"))
			if !reflect.DeepEqual(scope[tc.key], tc.want) {
				t.Errorf("scope[%q] = %#v, want %#v", tc.key, scope[tc.key], tc.want)
			}
			for k := range scope {
				if k != tc.key {
					t.Errorf("unexpected key %q left in scope", k)
				}
			}
		})
	}
}

func TestHandlerNestedDirectives(t *testing.T) {
	fsys := fstest.MapFS{
		"page.json": {Data: []byte(`{"nav": {"+links": ["b"], "links": ["a"]}}`)},
	}
	scope := mustScope(t, processJSON(t, fsys, "page.html"))
	want := map[string]any{"links": []any{"a", "b"}}
	if !reflect.DeepEqual(scope["nav"], want) {
		t.Errorf("nav = %v, want %v", scope["nav"], want)
	}
}

func TestHandlerInclude(t *testing.T) {
	fsys := fstest.MapFS{
		"page.json":  {Data: []byte(`{"!include": "part.html"}`)},
		"part.json":  {Data: []byte(`{"x": 1, "!include": "third.html", "!get": "third.html, y"}`)},
		"third.json": {Data: []byte(`{"y": 2}`)},
	}
	scope := mustScope(t, processJSON(t, fsys, "page.html"))
	want := map[string]any{
		"x":        1,
		"!include": "third.html",
		"!get":     "third.html, y",
	}
	if !reflect.DeepEqual(scope["include"], want) {
		t.Errorf("include = %#v, want %#v", scope["include"], want)
	}
}

func TestHandlerIncludeMissing(t *testing.T) {
	fsys := fstest.MapFS{"page.json": {Data: []byte(`{"!include": "missing.html"}`)}}
	scope := mustScope(t, processJSON(t, fsys, "page.html"))
	if inc, ok := scope["include"].(map[string]any); !ok || len(inc) != 0 {
		t.Errorf("include = %#v, want empty mapping", scope["include"])
	}
}

func TestHandlerGet(t *testing.T) {
	data := fstest.MapFile{Data: []byte(`{"items": ["a", "b", "c"], "cfg": {"k": "v"}, "n": 5}`)}
	testCases := []struct {
		name    string
		get     string
		wantKey string
		want    any
	}{
		{"whole field", "data.html, n", "n", 5},
		{"whole field dest", "data.html, n, count", "count", 5},
		{"index", "data.html, items:1", "items", "b"},
		{"negative index", "data.html, items:-1", "items", "c"},
		{"index dest", "data.html, items:0, first", "first", "a"},
		{"key", "data.html, cfg.k", "cfg", "v"},
		{"key dest", "data.html, cfg.k, value", "value", "v"},
		{"missing field", "data.html, nope", "nope", nil},
		{"index miss", "data.html, items:9", "!get", "data.html, items:9"},
		{"key miss", "data.html, cfg.z", "!get", "data.html, cfg.z"},
		{"key on sequence", "data.html, items.1", "!get", "data.html, items.1"},
		{"malformed", "data.html", "!get", "data.html"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fsys := fstest.MapFS{
				"data.json": &data,
				"page.json": {Data: []byte(`{"!get": "` + tc.get + `"}`)},
			}
			scope := mustScope(t, processJSON(t, fsys, "page.html"))
			got, ok := scope[tc.wantKey]
			if !ok {
				t.Fatalf("key %q missing from scope %v", tc.wantKey, scope)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("scope[%q] = %#v, want %#v", tc.wantKey, got, tc.want)
			}
		})
	}
}

func TestHandlerRead(t *testing.T) {
	fsys := fstest.MapFS{
		"page.json":         {Data: []byte(`{"!read_body": "snippets/body.txt", "!read_gone": "missing.txt", "!read_up": "../etc/passwd"}`)},
		"snippets/body.txt": {Data: []byte("<p>hi</p>")},
	}
	scope := mustScope(t, processJSON(t, fsys, "page.html"))
	if scope["body"] != "<p>hi</p>" {
		t.Errorf("body = %q", scope["body"])
	}
	if scope["gone"] != "no such file: missing.txt" {
		t.Errorf("gone = %q", scope["gone"])
	}
	if scope["up"] != "no such file: ../etc/passwd" {
		t.Errorf("up = %q", scope["up"])
	}
	if _, ok := scope["!read_body"]; ok {
		t.Error("directive key left in scope")
	}
}

func TestHandlerMeta(t *testing.T) {
	fsys := fstest.MapFS{
		"_global_.json": {Data: []byte(`{"meta": {"site": "Example", "title": "Default"}}`)},
		"page.json":     {Data: []byte(`{"meta_title": "Page", "meta_meta_x": 1, "metadata_extra": "e", "other": 2}`)},
	}
	h := processJSON(t, fsys, "page.html")
	meta, _ := h.Meta()
	want := map[string]any{
		"site":           "Example",
		"title":          "Page",
		"x":              1,
		"metadata_extra": "e",
	}
	if !reflect.DeepEqual(meta, want) {
		t.Errorf("meta = %v, want %v", meta, want)
	}
}

func TestHandlerURIKwargs(t *testing.T) {
	t.Run("match", func(t *testing.T) {
		fsys := fstest.MapFS{
			"_global_.json":   {Data: []byte(`{"uri_kwargs": "(?P<section>[a-z]+)/(?P<slug>[^.]+)"}`)},
			"blog/post1.json": {Data: []byte(`{}`)},
		}
		h := processJSON(t, fsys, "blog/post1.html")
		want := map[string]string{"section": "blog", "slug": "post1"}
		if got := h.URIKwargs(); !reflect.DeepEqual(got, want) {
			t.Errorf("URIKwargs() = %v, want %v", got, want)
		}
	})
	t.Run("anchored", func(t *testing.T) {
		fsys := fstest.MapFS{
			"_global_.json":   {Data: []byte(`{"uri_kwargs": "post(?P<n>\\d+)"}`)},
			"blog/post1.json": {Data: []byte(`{}`)},
		}
		h := processJSON(t, fsys, "blog/post1.html")
		if got := h.URIKwargs(); got == nil || len(got) != 0 {
			t.Errorf("URIKwargs() = %#v, want empty map", got)
		}
	})
	t.Run("no pattern", func(t *testing.T) {
		fsys := fstest.MapFS{"page.json": {Data: []byte(`{}`)}}
		if got := processJSON(t, fsys, "page.html").URIKwargs(); got != nil {
			t.Errorf("URIKwargs() = %v, want nil", got)
		}
	})
}

func TestHandlerKwargs(t *testing.T) {
	fsys := fstest.MapFS{"page.json": {Data: []byte(`{}`)}}
	h := New(JSON{}, fsys, "/page.html", WithLogger(newTestLogger()), WithKwargs(map[string]any{"identifier": "page.html"}))
	if err := h.Process(); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	global, _ := h.Global()
	kw, ok := global["kwargs"].(map[string]any)
	if !ok || kw["identifier"] != "page.html" {
		t.Errorf("kwargs = %#v", global["kwargs"])
	}
	if h.Target() != "page.html" {
		t.Errorf("Target() = %q, want page.html", h.Target())
	}
}

func TestHandlerINI(t *testing.T) {
	fsys := fstest.MapFS{
		"_global_.ini": {Data: []byte("[site]\nname = Example\n")},
		"page.ini": {Data: []byte(`[scope]
title = Hello
!get = list.html, items:2
`)},
		"list.ini": {Data: []byte(`[items:2]
name = second

[items:1]
name = first
`)},
	}
	h := New(INI{}, fsys, "page.html", WithLogger(newTestLogger()))
	if err := h.Process(); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	scope := mustScope(t, h)

	want := map[string]any{"name": "second", IndexKey: 2}
	if !reflect.DeepEqual(scope["items"], want) {
		t.Errorf("items = %#v, want %#v", scope["items"], want)
	}
	if scope["title"] != "Hello" {
		t.Errorf("title = %v", scope["title"])
	}
	global, _ := h.Global()
	if site, ok := global["site"].(map[string]any); !ok || site["name"] != "Example" {
		t.Errorf("global site = %#v", global["site"])
	}
}

func TestHandlerINIIndexNotPositional(t *testing.T) {
	fsys := fstest.MapFS{
		"page.ini": {Data: []byte("[scope]\n!get = list.html, items:0\n")},
		"list.ini": {Data: []byte("[items:1]\nname = first\n")},
	}
	h := New(INI{}, fsys, "page.html", WithLogger(newTestLogger()))
	_ = h.Process()
	scope := mustScope(t, h)
	if scope["!get"] != "list.html, items:0" {
		t.Errorf("scope = %#v, want unresolved !get", scope)
	}
}
