package ctxdata

import "regexp"

// DirectiveKind tags a data-file key with the way its value is resolved.
type DirectiveKind int

const (
	// Plain keys are stored as-is.
	Plain DirectiveKind = iota
	// Append keys ("+name") extend the existing value of name.
	Append
	// Prepend keys ("name+") extend the existing value of name from the front.
	Prepend
	// Include ("!include") splices the scope of another target under "include".
	Include
	// Get ("!get") copies a single field of another target's scope.
	Get
	// Read ("!read_name") stores the contents of a file under name.
	Read
)

func (k DirectiveKind) String() string {
	switch k {
	case Append:
		return "append"
	case Prepend:
		return "prepend"
	case Include:
		return "include"
	case Get:
		return "get"
	case Read:
		return "read"
	default:
		return "plain"
	}
}

var (
	appendRe  = regexp.MustCompile(`^\+[\w\s\-]+[^-_+]$`)
	prependRe = regexp.MustCompile(`^[^-_+][\w\s\-]+\+$`)
	includeRe = regexp.MustCompile(`^!include$`)
	getRe     = regexp.MustCompile(`^!get$`)
	readRe    = regexp.MustCompile(`^!read_(.+)$`)
)

// Directive is a classified data-file key.
type Directive struct {
	Kind DirectiveKind

	// Raw is the key as written in the data file.
	Raw string

	// Name is the key the resolved value is stored under: the stripped name
	// for Append/Prepend, "include" for Include, the suffix for Read. It is
	// empty for Get, whose destination comes from its value, and equal to Raw
	// for Plain keys.
	Name string
}

// ParseDirective classifies a key. The shapes are tested in a fixed order:
// append, prepend, include, get, read.
func ParseDirective(key string) Directive {
	d := Directive{Kind: Plain, Raw: key, Name: key}

	switch {
	case appendRe.MatchString(key):
		d.Kind, d.Name = Append, key[1:]
	case prependRe.MatchString(key):
		d.Kind, d.Name = Prepend, key[:len(key)-1]
	case includeRe.MatchString(key):
		d.Kind, d.Name = Include, "include"
	case getRe.MatchString(key):
		d.Kind, d.Name = Get, ""
	default:
		if m := readRe.FindStringSubmatch(key); m != nil {
			d.Kind, d.Name = Read, m[1]
		}
	}

	return d
}

// crossTarget reports whether the directive loads another target.
func (d Directive) crossTarget() bool {
	return d.Kind == Include || d.Kind == Get
}
