package templating

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrNotFound is returned when none of the requested templates is loaded.
var ErrNotFound = errors.New("template not found")

// TemplateManager is the central controller for the templating engine.
// It owns the parsed template sets, the configuration and the function map,
// and reloads templates from disk on Refresh.
// All methods are concurrent-safe.
type TemplateManager struct {
	logger         *slog.Logger
	config         *TemplateConfig
	base           *template.Template
	cleanTemplates *template.Template
	pages          map[string]*template.Template
	templateNames  []string
	partialNames   []string
	funcMap        template.FuncMap
	templateDir    string
	dataDir        string
	dataFS         fs.FS
	mu             sync.RWMutex
}

// NewTemplateManager creates, initializes, and returns a new TemplateManager
// serving the templates under templateDir. Files read by the read helper are
// resolved against dataDir. It performs an initial Refresh.
func NewTemplateManager(logger *slog.Logger, config *TemplateConfig, templateDir, dataDir string) (*TemplateManager, error) {
	if config == nil {
		config = DefaultConfig()
	}
	tm := &TemplateManager{
		logger:      logger,
		config:      config,
		templateDir: templateDir,
		dataDir:     dataDir,
		dataFS:      os.DirFS(dataDir),
	}
	tm.funcMap = tm.makeFuncMap()

	if err := tm.Refresh(); err != nil {
		return nil, err
	}

	logger.Info("Template manager initialized", "template_dir", templateDir)
	return tm, nil
}

func (tm *TemplateManager) makeFuncMap() template.FuncMap {
	return template.FuncMap{
		// Dates & durations (from funcs_dates.go)
		"formatDate":      tm.formatDate,
		"formatDatetime":  tm.formatDatetime,
		"formatTime":      tm.formatTime,
		"formatTimedelta": tm.formatTimedelta,

		// Text (from funcs_text.go)
		"split":        split,
		"lowerLikeID":  lowerLikeID,
		"markdown":     markdown,
		"read":         tm.read,
		"formatNumber": tm.formatNumber,
		"filesize":     filesize,

		// Links & targets (from funcs_links.go)
		"urlStatic":    tm.urlStatic,
		"scriptURL":    tm.scriptURL,
		"kwTarget":     kwTarget,
		"kwBaseTarget": kwBaseTarget,

		// Logic & control (from funcs_logic.go)
		"repeat":  repeat,
		"list":    list,
		"dict":    dict,
		"default": defaultValue,
		"join":    join,

		// Simple (from funcs_simple.go)
		"add":   add,
		"sub":   sub,
		"div":   div,
		"mult":  mult,
		"max":   maxOf,
		"min":   minOf,
		"mod":   mod,
		"inc":   inc,
		"dec":   dec,
		"and":   and,
		"or":    or,
		"not":   not,
		"isSet": isSet,
	}
}

// SetConfig applies a new configuration. Changes to the extension or the
// partial suffix take effect on the next Refresh.
func (tm *TemplateManager) SetConfig(config *TemplateConfig) {
	if config == nil {
		return
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.config = config
}

// Refresh reloads all templates from the filesystem. On error the previously
// loaded templates stay in place.
func (tm *TemplateManager) Refresh() error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	fsys := os.DirFS(tm.templateDir)
	ext := "." + tm.config.Extension
	partialExt := tm.config.PartialSuffix + ext

	tm.logger.Info("Loading template files...", "dir", tm.templateDir)
	files, err := doublestar.Glob(fsys, "**/*"+ext)
	if err != nil {
		tm.logger.Error("failed to list template files", "error", err)
		return fmt.Errorf("failed to list template files: %w", err)
	}

	var pageFiles, partialFiles []string
	for _, f := range files {
		if strings.HasSuffix(f, partialExt) {
			partialFiles = append(partialFiles, f)
		} else {
			pageFiles = append(pageFiles, f)
		}
	}
	sort.Strings(pageFiles)
	sort.Strings(partialFiles)

	base := template.New("").Funcs(tm.funcMap)
	for _, name := range partialFiles {
		if err = parseFile(fsys, base.New(name), name); err != nil {
			tm.logger.Error("failed to parse partial file", "file", name, "error", err)
			return err
		}
	}

	pages := make(map[string]*template.Template, len(pageFiles))
	for _, name := range pageFiles {
		var set *template.Template
		set, err = base.Clone()
		if err != nil {
			return fmt.Errorf("failed to clone partials for %q: %w", name, err)
		}
		if err = parseFile(fsys, set.New(name), name); err != nil {
			tm.logger.Error("failed to parse template file", "file", name, "error", err)
			return err
		}
		pages[name] = set
	}

	if len(pageFiles) == 0 {
		tm.logger.Warn("No template files found", "dir", tm.templateDir, "extension", tm.config.Extension)
	}

	// Create a clean clone for string executions after all parsing is complete.
	clean, err := base.Clone()
	if err != nil {
		tm.logger.Error("failed to create a clean clone of templates", "error", err)
		return err
	}

	tm.base = base
	tm.cleanTemplates = clean
	tm.pages = pages
	tm.templateNames = pageFiles
	tm.partialNames = partialFiles
	tm.logger.Info("Loaded template and partial files", "templates", len(pageFiles), "partials", len(partialFiles))
	return nil
}

func parseFile(fsys fs.FS, t *template.Template, name string) error {
	b, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("failed to read template %q: %w", name, err)
	}
	if _, err = t.Parse(string(b)); err != nil {
		return fmt.Errorf("failed to parse template %q: %w", name, err)
	}
	return nil
}

// Lookup returns the first of names that is a loaded page template.
func (tm *TemplateManager) Lookup(names ...string) (string, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	for _, name := range names {
		if _, ok := tm.pages[name]; ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, strings.Join(names, ", "))
}

// Execute renders a page template by name, writing the output to w.
// Partials can be executed by name as well.
func (tm *TemplateManager) Execute(w io.Writer, name string, data any) error {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	if set, ok := tm.pages[name]; ok {
		return set.ExecuteTemplate(w, name, data)
	}
	if t := tm.base.Lookup(name); t != nil && name != "" {
		set, err := tm.base.Clone()
		if err != nil {
			return fmt.Errorf("failed to clone partials: %w", err)
		}
		return set.ExecuteTemplate(w, name, data)
	}
	return fmt.Errorf("%w: %s", ErrNotFound, name)
}

// GetConfig returns a copy of the current configuration.
// This mainly exists for concurrency-safety reasons.
func (tm *TemplateManager) GetConfig() TemplateConfig {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return *tm.config
}

// GetTemplateNames returns the loaded page template names, sorted.
func (tm *TemplateManager) GetTemplateNames() []string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return append([]string(nil), tm.templateNames...)
}

// GetPartialNames returns the loaded partial template names, sorted.
func (tm *TemplateManager) GetPartialNames() []string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return append([]string(nil), tm.partialNames...)
}

// GetTemplateDir returns the template dir that the TemplateManager uses.
func (tm *TemplateManager) GetTemplateDir() string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.templateDir
}

// ExecuteTemplateString parses and executes a raw template string using the
// manager's function map and partials. This is ideal for testing or
// previewing templates without saving them to disk.
func (tm *TemplateManager) ExecuteTemplateString(w io.Writer, content string, data any) error {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	// Clone the clean, unexecuted template set to avoid race conditions and execution state issues.
	tempSet, err := tm.cleanTemplates.Clone()
	if err != nil {
		return fmt.Errorf("failed to clone clean templates for string execution: %w", err)
	}

	// Parse the user-provided content string into this fresh clone.
	t, err := tempSet.Parse(content)
	if err != nil {
		return fmt.Errorf("failed to parse string template: %w", err)
	}

	return t.Execute(w, data)
}
