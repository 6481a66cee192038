package templating

// TemplateConfig holds all configuration options for the templating engine.
type TemplateConfig struct {
	// Extension is the file extension of template files, without a dot.
	Extension string `json:"extension"`

	// PartialSuffix marks shared templates: "nav.part.gohtml" is parsed into
	// every page set instead of being served as a page of its own.
	PartialSuffix string `json:"partial_suffix"`

	// PatternName is the stem of the per-directory fallback template.
	PatternName string `json:"pattern_name"`

	// Locale is the default locale of the date and number helpers.
	Locale string `json:"locale"`

	// StaticURL is the URL prefix urlStatic and scriptURL build on.
	StaticURL string `json:"static_url"`

	// MaxReadSize caps the number of bytes the read helper returns.
	MaxReadSize int64 `json:"max_read_size"`
}

// DefaultConfig returns a TemplateConfig with default values.
func DefaultConfig() *TemplateConfig {
	return &TemplateConfig{
		Extension:     "gohtml",
		PartialSuffix: ".part",
		PatternName:   "_pattern_",
		Locale:        "fr",
		StaticURL:     "/static/",
		MaxReadSize:   1 << 20, // 1MB
	}
}

// PatternFile returns the fallback template name for a directory ("." or ""
// for the root).
func (c *TemplateConfig) PatternFile(dir string) string {
	name := c.PatternName + "." + c.Extension
	if dir == "" || dir == "." {
		return name
	}
	return dir + "/" + name
}
