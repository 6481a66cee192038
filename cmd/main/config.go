package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/CTAG07/dynrender/pkg/templating"
	"github.com/CTAG07/dynrender/pkg/view"
	"github.com/CTAG07/dynrender/pkg/watcher"
	"github.com/natefinch/atomic"
)

// ServerConfig holds the configuration for the HTTP servers.
type ServerConfig struct {
	ServerAddr     string   `json:"server_addr"`
	ApiAddr        string   `json:"api_addr"`
	LogLevel       string   `json:"log_level"`
	TrustedProxies []string `json:"trusted_proxies"`
	TemplateDir    string   `json:"template_dir"`
	StaticDir      string   `json:"static_dir"`
	DatabasePath   string   `json:"database_path"`
	// AccessLog is a file receiving the combined access log. "-" means
	// stdout and an empty value disables the log.
	AccessLog    string `json:"access_log"`
	StatsEnabled bool   `json:"stats_enabled"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server    *ServerConfig              `json:"server_config"`
	Templates *templating.TemplateConfig `json:"template_config"`
	View      *view.Config               `json:"view_config"`
	Watcher   *watcher.Config            `json:"watcher_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ServerAddr:     ":7277",
		ApiAddr:        "127.0.0.1:7278",
		LogLevel:       "info",
		TrustedProxies: []string{},
		TemplateDir:    "./templates",
		StaticDir:      "./static",
		DatabasePath:   "./dynrender.db",
		AccessLog:      "-",
		StatsEnabled:   true,
	}
}

// DefaultConfig returns the full configuration with every section defaulted.
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Templates: templating.DefaultConfig(),
		View:      view.DefaultConfig(),
		Watcher:   watcher.DefaultConfig(),
	}
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err = writeConfig(path, config); err != nil {
			// The server can still run with defaults.
			fmt.Printf("warning: failed to write default config file: %v\n", err)
		}
		return config, nil
	}

	if err = json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Sections missing from the file keep their defaults.
	defaults := DefaultConfig()
	if config.Server == nil {
		config.Server = defaults.Server
	}
	if config.Templates == nil {
		config.Templates = defaults.Templates
	}
	if config.View == nil {
		config.View = defaults.View
	}
	if config.Watcher == nil {
		config.Watcher = defaults.Watcher
	}
	return config, nil
}

func writeConfig(path string, config *Config) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ConfigManager handles thread-safe access to configuration and derived state (trusted proxies).
type ConfigManager struct {
	config       *Config
	mu           sync.RWMutex
	trustedCIDRs []*net.IPNet
	trustedIPs   []net.IP
	configPath   string
	logger       *slog.Logger
	tm           *templating.TemplateManager
}

// NewConfigManager loads the config and initializes the manager.
func NewConfigManager(path string) (*ConfigManager, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	cm := &ConfigManager{
		config:     cfg,
		configPath: path,
		// Log to stdout before the application-specific logger is set.
		logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{})),
	}
	cm.refreshCache()

	return cm, nil
}

// SetTemplateManager registers the template manager to receive config updates.
func (cm *ConfigManager) SetTemplateManager(tm *templating.TemplateManager) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.tm = tm
	if tm != nil {
		tm.SetConfig(cm.config.Templates)
	}
}

// SetLogger replaces the bootstrap logger.
func (cm *ConfigManager) SetLogger(logger *slog.Logger) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.logger = logger
}

// Get returns a copy of the current configuration. The sections are shared
// and must not be modified; use Update instead.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return *cm.config
}

// Update validates the new configuration against the template manager,
// saves it to disk and refreshes the derived state. View and server settings
// apply on the next restart.
func (cm *ConfigManager) Update(newConfig Config) error {
	if newConfig.Server == nil || newConfig.Templates == nil || newConfig.View == nil || newConfig.Watcher == nil {
		return fmt.Errorf("configuration is missing a section")
	}
	if newConfig.Templates.Extension == "" {
		return fmt.Errorf("template extension must not be empty")
	}
	if newConfig.View.URIExtension == "" {
		return fmt.Errorf("uri extension must not be empty")
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.tm != nil {
		oldTmplConfig := cm.config.Templates

		cm.tm.SetConfig(newConfig.Templates)
		if err := cm.tm.Refresh(); err != nil {
			cm.tm.SetConfig(oldTmplConfig)
			_ = cm.tm.Refresh()
			return fmt.Errorf("template configuration rejected: %w", err)
		}
	}

	*cm.config = newConfig
	cm.refreshCache()

	return writeConfig(cm.configPath, cm.config)
}

// IsTrusted checks if an IP is in the trusted proxies list using the cache.
func (cm *ConfigManager) IsTrusted(ipAddr string) bool {
	parsedIP := net.ParseIP(ipAddr)
	if parsedIP == nil {
		return false
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()

	for _, ipNet := range cm.trustedCIDRs {
		if ipNet.Contains(parsedIP) {
			return true
		}
	}
	for _, trustedIP := range cm.trustedIPs {
		if trustedIP.Equal(parsedIP) {
			return true
		}
	}
	return false
}

// HasTrustedProxies reports whether any proxy is configured at all.
func (cm *ConfigManager) HasTrustedProxies() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.trustedCIDRs)+len(cm.trustedIPs) > 0
}

// refreshCache rebuilds the binary IP lists from the config strings.
func (cm *ConfigManager) refreshCache() {
	var cidrs []*net.IPNet
	var ips []net.IP

	for _, t := range cm.config.Server.TrustedProxies {
		if strings.Contains(t, "/") {
			_, ipNet, err := net.ParseCIDR(t)
			if err != nil {
				cm.logger.Warn("Failed to parse trusted proxy CIDR", "cidr", t, "error", err)
				continue
			}
			cidrs = append(cidrs, ipNet)
		} else if ip := net.ParseIP(t); ip != nil {
			ips = append(ips, ip)
		} else {
			cm.logger.Warn("Failed to parse trusted proxy IP", "ip", t)
		}
	}
	cm.trustedCIDRs = cidrs
	cm.trustedIPs = ips
}

// parseLogLevel maps a configured level name to a slog level, defaulting to
// info.
func parseLogLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
