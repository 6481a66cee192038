package templating

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var sanitationPolicy = bluemonday.UGCPolicy()

const mkdExtensions = blackfriday.EXTENSION_NO_INTRA_EMPHASIS |
	blackfriday.EXTENSION_TABLES |
	blackfriday.EXTENSION_AUTOLINK |
	blackfriday.EXTENSION_FENCED_CODE |
	blackfriday.EXTENSION_HEADER_IDS |
	blackfriday.EXTENSION_STRIKETHROUGH

// split cuts values at sep (default ","), dropping blank items. Items are
// trimmed unless a second argument false is given.
func split(values string, opts ...any) []string {
	sep, strip := ",", true
	if len(opts) > 0 {
		if s, ok := opts[0].(string); ok && s != "" {
			sep = s
		}
	}
	if len(opts) > 1 {
		if b, ok := opts[1].(bool); ok {
			strip = b
		}
	}

	var out []string
	for _, v := range strings.Split(values, sep) {
		if strings.TrimSpace(v) == "" {
			continue
		}
		if strip {
			v = strings.TrimSpace(v)
		}
		out = append(out, v)
	}
	return out
}

// lowerLikeID lowercases a label and replaces spaces with underscores, for
// use as an element id. Casers are stateful and are not shared.
func lowerLikeID(val string) string {
	return strings.ReplaceAll(cases.Lower(language.Und).String(val), " ", "_")
}

// markdown renders markdown to sanitized HTML. Renderers keep per-document
// state, so each call gets its own.
func markdown(src string) template.HTML {
	renderer := blackfriday.HtmlRenderer(blackfriday.HTML_SAFELINK|blackfriday.HTML_NOFOLLOW_LINKS, "", "")
	md := blackfriday.Markdown([]byte(src), renderer, mkdExtensions)
	return template.HTML(sanitationPolicy.SanitizeBytes(md))
}

// read returns the contents of a file under the data directory, or def (or
// a placeholder) when it cannot be read.
func (tm *TemplateManager) read(name string, def ...string) string {
	p := path.Clean(strings.TrimPrefix(name, "/"))
	if fs.ValidPath(p) {
		if content, err := tm.readLimited(p); err == nil {
			return content
		}
	}
	if len(def) > 0 && def[0] != "" {
		return def[0]
	}
	return fmt.Sprintf("no such file %s", name)
}

func (tm *TemplateManager) readLimited(name string) (string, error) {
	f, err := tm.dataFS.Open(name)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	limit := tm.config.MaxReadSize
	if limit <= 0 {
		limit = DefaultConfig().MaxReadSize
	}
	var buf bytes.Buffer
	if _, err = io.Copy(&buf, io.LimitReader(f, limit)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// formatNumber formats a number with the digit grouping of a locale
// (the configured one by default).
func (tm *TemplateManager) formatNumber(v any, lcl ...string) string {
	p := message.NewPrinter(tm.localeTag(lcl...))
	n := toNumber(v)
	if n.isFloat {
		return p.Sprintf("%.2f", n.f)
	}
	return p.Sprintf("%d", n.i)
}

// filesize renders a byte count the way humans read it: "82 kB".
func filesize(v any) string {
	n := toNumber(v)
	if n.i < 0 {
		return "-" + humanize.Bytes(uint64(-n.i))
	}
	return humanize.Bytes(uint64(n.i))
}

func (tm *TemplateManager) localeTag(lcl ...string) language.Tag {
	name := tm.config.Locale
	if len(lcl) > 0 && lcl[0] != "" {
		name = lcl[0]
	}
	tag, err := language.Parse(name)
	if err != nil {
		return language.English
	}
	return tag
}
