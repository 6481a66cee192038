package ctxdata

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultGlobalName is the stem of the data file consulted at every directory
// level of a target.
const DefaultGlobalName = "_global_"

// maxIncludeDepth is the deepest level at which !include and !get are
// honoured. A handler created to serve one of them runs at depth 1 and passes
// its own cross-target directives through unresolved.
const maxIncludeDepth = 1

// State is the processing stage of a Handler.
type State int

const (
	StateNew State = iota
	StateGlobal
	StateScope
	StateMeta
	StateReady
)

func (s State) String() string {
	switch s {
	case StateGlobal:
		return "global"
	case StateScope:
		return "scope"
	case StateMeta:
		return "meta"
	case StateReady:
		return "ready"
	default:
		return "new"
	}
}

var metaStrip = strings.NewReplacer("+", "", "|", "", "_", "", "-", "", ".", "", "#", "")

// IsMetaKey reports whether key names page metadata: with the characters
// +|_-.# removed it must start with "meta".
func IsMetaKey(key string) bool {
	return strings.HasPrefix(metaStrip.Replace(key), "meta")
}

// patterns memoises compiled uri_kwargs expressions across handlers.
var patterns, _ = lru.New[string, *regexp.Regexp](256)

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger used for recoverable resolution failures.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithKwargs seeds the global "kwargs" value with request keyword arguments.
func WithKwargs(kwargs map[string]any) Option {
	return func(h *Handler) {
		h.kwargs = kwargs
	}
}

// WithGlobalName overrides DefaultGlobalName.
func WithGlobalName(name string) Option {
	return func(h *Handler) {
		if name != "" {
			h.globalName = name
		}
	}
}

func withDepth(depth int) Option {
	return func(h *Handler) {
		h.depth = depth
	}
}

// Handler assembles the global, scope and meta data of one target. It is
// used for a single request and is not safe for concurrent use.
type Handler struct {
	loader     Loader
	fsys       fs.FS
	target     string
	kwargs     map[string]any
	globalName string
	depth      int
	logger     *slog.Logger

	state  State
	global *orderedMap
	scope  *orderedMap
	meta   *orderedMap
}

// New returns a handler for target, reading data files of the loader's
// format from fsys. The target is a slash separated path relative to the
// data root, such as "blog/post1.html".
func New(loader Loader, fsys fs.FS, target string, opts ...Option) *Handler {
	h := &Handler{
		loader:     loader,
		fsys:       fsys,
		target:     cleanTarget(target),
		globalName: DefaultGlobalName,
		logger:     slog.Default(),
		global:     newOrderedMap(),
		scope:      newOrderedMap(),
		meta:       newOrderedMap(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.kwargs == nil {
		h.kwargs = map[string]any{}
	}

	stem := h.stem()
	h.global.set("target", stem)
	h.global.set("base_target", path.Base(stem))
	h.global.set("kwargs", h.kwargs)
	return h
}

func cleanTarget(target string) string {
	t := path.Clean("/" + target)
	return strings.TrimPrefix(t, "/")
}

// Target returns the cleaned target path.
func (h *Handler) Target() string { return h.target }

// State returns the current processing stage.
func (h *Handler) State() State { return h.state }

func (h *Handler) stem() string {
	return strings.TrimSuffix(h.target, path.Ext(h.target))
}

// ScopeFile is the data file that mirrors the target.
func (h *Handler) ScopeFile() string {
	return h.stem() + "." + h.loader.Extension()
}

// Process runs ProcessGlobal, ProcessScope and ProcessMeta in order and marks
// the handler ready. The handler is ready even when an error is returned;
// the failing stage contributes nothing. Processing a ready handler is a
// no-op.
func (h *Handler) Process() error {
	if h.state == StateReady {
		return nil
	}
	errG := h.ProcessGlobal()
	errS := h.ProcessScope()
	h.ProcessMeta()
	h.state = StateReady
	return errors.Join(errG, errS)
}

// ProcessGlobal merges the global data file of the data root and of every
// directory leading to the target, shallowest first. Stages only move the
// state forward: a stage already reached or passed is a no-op.
func (h *Handler) ProcessGlobal() error {
	if h.state >= StateGlobal {
		return nil
	}
	h.state = StateGlobal
	name := h.globalName + "." + h.loader.Extension()

	var errs []error
	dir := "."
	for _, seg := range append([]string{""}, strings.Split(path.Dir(h.target), "/")...) {
		if seg == "." {
			continue
		}
		dir = path.Join(dir, seg)
		file := path.Join(dir, name)
		if _, err := fs.Stat(h.fsys, file); err != nil {
			continue
		}
		entries, err := h.loader.Load(h.fsys, file)
		if err != nil {
			h.logger.Warn("Failed to load global data", "file", file, "error", err)
			errs = append(errs, err)
			continue
		}
		h.update(h.global, entries)
	}
	return errors.Join(errs...)
}

// ProcessScope loads the target's own data file. On failure the scope stays
// empty and the error is logged and returned.
func (h *Handler) ProcessScope() error {
	if h.state >= StateScope {
		return nil
	}
	h.state = StateScope
	file := h.ScopeFile()
	entries, err := h.loader.Load(h.fsys, file)
	if err != nil {
		h.logger.Error("Processing scope error", "target", h.target, "file", file, "error", err)
		return fmt.Errorf("processing scope of %q: %w", h.target, err)
	}
	h.update(h.scope, entries)
	return nil
}

// ProcessMeta scans global, scope and meta, in that order, for meta keys.
// Mapping values are merged wholesale; other values are stored under the key
// with "meta_" removed.
func (h *Handler) ProcessMeta() {
	if h.state >= StateMeta {
		return
	}
	h.state = StateMeta
	for _, src := range []*orderedMap{h.global, h.scope, h.meta} {
		h.update(h.meta, metaEntries(src.entries()))
	}
}

func metaEntries(entries []Entry) []Entry {
	om := newOrderedMap()
	for _, e := range entries {
		if !IsMetaKey(e.Key) {
			continue
		}
		if m, ok := e.Value.(map[string]any); ok {
			for _, sub := range sortedEntries(m) {
				om.set(sub.Key, sub.Value)
			}
			continue
		}
		om.set(strings.ReplaceAll(e.Key, "meta_", ""), e.Value)
	}
	return om.entries()
}

// Global returns a copy of the global data.
func (h *Handler) Global() (map[string]any, error) {
	return h.snapshot(h.global)
}

// Scope returns a copy of the scope data.
func (h *Handler) Scope() (map[string]any, error) {
	return h.snapshot(h.scope)
}

// Meta returns a copy of the meta data.
func (h *Handler) Meta() (map[string]any, error) {
	return h.snapshot(h.meta)
}

func (h *Handler) snapshot(m *orderedMap) (map[string]any, error) {
	if h.state != StateReady {
		return nil, ErrNotReady
	}
	return m.toMap(), nil
}

// URIKwargs matches the global "uri_kwargs" pattern against the start of the
// target and returns its named groups. It returns nil when no pattern is set
// or the pattern does not compile, and an empty map when it does not match.
// Groups that did not participate in the match map to "".
func (h *Handler) URIKwargs() map[string]string {
	v, _ := h.global.get("uri_kwargs")
	expr, ok := v.(string)
	if !ok || expr == "" {
		return nil
	}

	re, err := compilePattern(expr)
	if err != nil {
		h.logger.Warn("Invalid uri_kwargs pattern", "pattern", expr, "error", err)
		return nil
	}
	kw := MatchNamed(re, h.target)
	if kw == nil {
		kw = map[string]string{}
	}
	return kw
}

// MatchNamed returns the named groups of re matched against s, or nil when
// re does not match.
func MatchNamed(re *regexp.Regexp, s string) map[string]string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	out := map[string]string{}
	for i, name := range re.SubexpNames() {
		if name != "" {
			out[name] = m[i]
		}
	}
	return out
}

// CompilePattern compiles expr anchored at the start of the input, the way
// uri_kwargs patterns are matched. Compiled patterns are cached.
func CompilePattern(expr string) (*regexp.Regexp, error) {
	return compilePattern(expr)
}

func compilePattern(expr string) (*regexp.Regexp, error) {
	if re, ok := patterns.Get(expr); ok {
		return re, nil
	}
	re, err := regexp.Compile(`^(?:` + expr + `)`)
	if err != nil {
		return nil, err
	}
	patterns.Add(expr, re)
	return re, nil
}
