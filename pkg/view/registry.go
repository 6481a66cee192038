package view

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/CTAG07/dynrender/pkg/ctxdata"
)

// ErrUnknownView is returned by Registry.New for a name nobody registered.
var ErrUnknownView = errors.New("unknown view")

// Factory builds a View.
type Factory func(logger *slog.Logger, renderer Renderer, config *Config) *View

// Registry maps view class names, as found in the configuration, to
// factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a Registry holding one HTML view per data format:
// JsonHtmlView, IniHtmlView and YamlHtmlView.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("JsonHtmlView", ForFormat(ctxdata.JSON{}))
	r.Register("IniHtmlView", ForFormat(ctxdata.INI{}))
	r.Register("YamlHtmlView", ForFormat(ctxdata.YAML{}))
	return r
}

// ForFormat returns a Factory for views reading data files with loader.
func ForFormat(loader ctxdata.Loader) Factory {
	return func(logger *slog.Logger, renderer Renderer, config *Config) *View {
		return New(logger, renderer, loader, config)
	}
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Names returns the registered view class names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the view registered under name.
func (r *Registry) New(name string, logger *slog.Logger, renderer Renderer, config *Config) (*View, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownView, name)
	}
	return f(logger, renderer, config), nil
}
