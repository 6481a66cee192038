package view

// Config controls how request paths map to targets and where the data files
// of each format live.
type Config struct {
	// ViewClass names the registry entry used to build the site view.
	ViewClass string `json:"view_class"`
	// DataDir is the data root shared by every format.
	DataDir string `json:"data_dir"`
	// DataDirs overrides DataDir per format extension ("json", "ini", "yaml").
	DataDirs map[string]string `json:"data_dirs,omitempty"`
	// URIExtension is the extension every page URL carries, without a dot.
	URIExtension string `json:"uri_extension"`
	// CaseSensitiveExtension makes "Post.HTML" a miss when URIExtension is "html".
	CaseSensitiveExtension bool `json:"case_sensitive_extension"`
	// AutoIndex appends "index.<ext>" to paths that do not carry the extension.
	AutoIndex bool `json:"auto_index"`
	// HiddenPrefixes reject any path segment starting with one of them.
	HiddenPrefixes []string `json:"hidden_prefixes"`
	// GlobalName is the stem of the per-directory global data file.
	GlobalName string `json:"global_name"`
	// Debug reports template errors in the response body.
	Debug bool `json:"debug"`
}

// DefaultConfig returns a Config with the stock settings.
func DefaultConfig() *Config {
	return &Config{
		ViewClass:              "JsonHtmlView",
		DataDir:                "./data",
		URIExtension:           "html",
		CaseSensitiveExtension: true,
		AutoIndex:              true,
		HiddenPrefixes:         []string{".", "_"},
		GlobalName:             "_global_",
	}
}

// DataDirFor returns the data root of a format.
func (c *Config) DataDirFor(ext string) string {
	if dir, ok := c.DataDirs[ext]; ok && dir != "" {
		return dir
	}
	return c.DataDir
}
