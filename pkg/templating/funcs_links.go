package templating

import (
	"html/template"
	"path"
	"strings"

	"github.com/CTAG07/dynrender/pkg/ctxdata"
)

// urlStatic returns the public URL of a file under the static prefix.
func (tm *TemplateManager) urlStatic(file string) string {
	prefix := tm.config.StaticURL
	if prefix == "" {
		prefix = "/"
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + strings.TrimPrefix(path.Clean("/"+file), "/")
}

// scriptURL renders a script tag for a static file. Extra arguments are
// attribute name/value pairs; a trailing name without value is written as a
// boolean attribute.
func (tm *TemplateManager) scriptURL(file string, attrs ...string) template.HTML {
	var b strings.Builder
	b.WriteString(`<script src="`)
	b.WriteString(template.HTMLEscapeString(tm.urlStatic(file)))
	b.WriteByte('"')
	for i := 0; i < len(attrs); i += 2 {
		b.WriteByte(' ')
		b.WriteString(template.HTMLEscapeString(attrs[i]))
		if i+1 < len(attrs) {
			b.WriteString(`="`)
			b.WriteString(template.HTMLEscapeString(attrs[i+1]))
			b.WriteByte('"')
		}
	}
	b.WriteString(`></script>`)
	return template.HTML(b.String())
}

// kwTarget matches pattern against the start of target and returns its
// named groups, or nil when it does not match.
//
//	{{with kwTarget `(?P<year>\d{4})/` .G.target}}{{.year}}{{end}}
func kwTarget(pattern, target string) (map[string]string, error) {
	re, err := ctxdata.CompilePattern(pattern)
	if err != nil {
		return nil, err
	}
	return ctxdata.MatchNamed(re, target), nil
}

// kwBaseTarget is kwTarget applied to the last segment of target.
func kwBaseTarget(pattern, target string) (map[string]string, error) {
	return kwTarget(pattern, path.Base(target))
}
