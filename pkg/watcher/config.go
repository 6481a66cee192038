package watcher

import "time"

// Config controls the template hot reload.
type Config struct {
	Enabled bool `json:"enabled"`
	// DebounceMs is how long the tree must stay quiet before a reload.
	DebounceMs int `json:"debounce_ms"`
	// IgnorePatterns are doublestar globs matched against slash separated
	// paths relative to the watched root.
	IgnorePatterns []string `json:"ignore_patterns"`
	WatchHidden    bool     `json:"watch_hidden"`
}

// DefaultConfig returns the stock watcher settings.
func DefaultConfig() *Config {
	return &Config{
		Enabled:    true,
		DebounceMs: 300,
		IgnorePatterns: []string{
			"**/*.swp",
			"**/*~",
			"**/.#*",
			"**/4913",
		},
	}
}

func (c *Config) window() time.Duration {
	if c.DebounceMs <= 0 {
		return 300 * time.Millisecond
	}
	return time.Duration(c.DebounceMs) * time.Millisecond
}
