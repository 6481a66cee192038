package view

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/CTAG07/dynrender/pkg/ctxdata"
	"github.com/CTAG07/dynrender/pkg/templating"
	"github.com/sahilm/fuzzy"
)

// maxSuggestions bounds the template names offered when a template is missing
// in debug mode.
const maxSuggestions = 5

// Renderer is the part of the template manager a View needs.
type Renderer interface {
	Lookup(names ...string) (string, error)
	Execute(w io.Writer, name string, data any) error
	GetConfig() templating.TemplateConfig
	GetTemplateNames() []string
}

// Page is everything a template is rendered with.
type Page struct {
	Target   string
	Template string
	Global   map[string]any
	Scope    map[string]any
	Meta     map[string]any
	Kwargs   map[string]string
}

// Data returns the template data: the scope keys at the top level, plus
// META, KWARGS, SCOPE and G (the global data).
func (p *Page) Data() map[string]any {
	data := make(map[string]any, len(p.Scope)+4)
	maps.Copy(data, p.Scope)
	data["META"] = p.Meta
	data["KWARGS"] = p.Kwargs
	data["SCOPE"] = p.Scope
	data["G"] = p.Global
	return data
}

// View serves targets of one data format through the template renderer.
type View struct {
	logger   *slog.Logger
	renderer Renderer
	loader   ctxdata.Loader
	config   *Config
	dataFS   fs.FS
}

// New returns a View reading data files with loader from the format's data
// root.
func New(logger *slog.Logger, renderer Renderer, loader ctxdata.Loader, config *Config) *View {
	if config == nil {
		config = DefaultConfig()
	}
	return &View{
		logger:   logger,
		renderer: renderer,
		loader:   loader,
		config:   config,
		dataFS:   os.DirFS(config.DataDirFor(loader.Extension())),
	}
}

// Format returns the data file extension the view reads.
func (v *View) Format() string {
	return v.loader.Extension()
}

func (v *View) hasExt(target string) bool {
	ext := "." + v.config.URIExtension
	if v.config.CaseSensitiveExtension {
		return strings.HasSuffix(target, ext)
	}
	return strings.HasSuffix(strings.ToLower(target), strings.ToLower(ext))
}

// Target maps a request path to a target. It reports false when the target
// has a hidden segment or lacks the URI extension.
func (v *View) Target(raw string) (string, bool) {
	target := strings.TrimPrefix(path.Clean("/"+raw), "/")
	if v.config.AutoIndex && !v.hasExt(target) {
		target = path.Join(target, "index."+v.config.URIExtension)
	}

	for _, seg := range strings.Split(target, "/") {
		for _, prefix := range v.config.HiddenPrefixes {
			if prefix != "" && strings.HasPrefix(seg, prefix) {
				return target, false
			}
		}
	}
	return target, v.hasExt(target)
}

// Handler returns an unprocessed context handler for target.
func (v *View) Handler(target string, kwargs map[string]any) *ctxdata.Handler {
	return ctxdata.New(v.loader, v.dataFS, target,
		ctxdata.WithLogger(v.logger),
		ctxdata.WithKwargs(kwargs),
		ctxdata.WithGlobalName(v.config.GlobalName),
	)
}

// Context processes the data of target. Processing failures are logged by
// the handler and leave the failing part empty.
func (v *View) Context(target string, kwargs map[string]any) *Page {
	h := v.Handler(target, kwargs)
	if err := h.Process(); err != nil {
		v.logger.Debug("Context processed with errors", "target", target, "error", err)
	}

	// The handler is ready, so these cannot fail.
	global, _ := h.Global()
	scope, _ := h.Scope()
	meta, _ := h.Meta()
	return &Page{
		Target: target,
		Global: global,
		Scope:  scope,
		Meta:   meta,
		Kwargs: h.URIKwargs(),
	}
}

// Template returns the template serving target: the template mirroring it,
// or else the pattern template of its directory.
func (v *View) Template(target string) (string, error) {
	cfg := v.renderer.GetConfig()
	stem := target[:len(target)-len(path.Ext(target))]
	return v.renderer.Lookup(stem+"."+cfg.Extension, cfg.PatternFile(path.Dir(target)))
}

// Render executes the page template into w.
func (v *View) Render(w io.Writer, page *Page) error {
	return v.renderer.Execute(w, page.Template, page.Data())
}

// ServeHTTP renders the target named by the request path.
func (v *View) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc, ok := FromContext(r.Context())
	if !ok {
		rc = &RequestContext{}
	}

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	target, valid := v.Target(r.URL.Path)
	rc.Target = target
	if !valid {
		v.logger.Debug("Rejected target", "target", target)
		http.NotFound(w, r)
		return
	}

	page := v.Context(target, map[string]any{"identifier": target})
	rc.Globals = page.Global

	tpl, err := v.Template(target)
	if err != nil {
		v.templateNotFound(w, r, target, err)
		return
	}
	page.Template = tpl
	rc.Template = tpl

	var buf bytes.Buffer
	if err = v.Render(&buf, page); err != nil {
		v.logger.Error("Failed to execute template", "template", tpl, "target", target, "error", err)
		v.fail(w, fmt.Sprintf("failed to execute template %s: %v", tpl, err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = buf.WriteTo(w)
}

func (v *View) templateNotFound(w http.ResponseWriter, r *http.Request, target string, err error) {
	v.logger.Debug("No template for target", "target", target, "error", err)
	if !v.config.Debug {
		http.NotFound(w, r)
		return
	}

	var b strings.Builder
	b.WriteString(err.Error())
	if names := v.Suggest(target); len(names) > 0 {
		b.WriteString("\n\nclosest templates:\n")
		for _, name := range names {
			b.WriteString("  ")
			b.WriteString(name)
			b.WriteByte('\n')
		}
	}
	v.fail(w, b.String())
}

// fail answers 500, with detail in debug mode.
func (v *View) fail(w http.ResponseWriter, detail string) {
	if !v.config.Debug {
		detail = http.StatusText(http.StatusInternalServerError)
	}
	http.Error(w, detail, http.StatusInternalServerError)
}

// Suggest returns the loaded template names closest to target.
func (v *View) Suggest(target string) []string {
	stem := target[:len(target)-len(path.Ext(target))]
	matches := fuzzy.Find(stem, v.renderer.GetTemplateNames())
	names := make([]string, 0, min(len(matches), maxSuggestions))
	for i := 0; i < len(matches) && i < maxSuggestions; i++ {
		names = append(names, matches[i].Str)
	}
	return names
}
