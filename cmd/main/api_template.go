package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/CTAG07/dynrender/pkg/templating"
	"github.com/CTAG07/dynrender/pkg/view"
	"github.com/natefinch/atomic"
)

// maxTemplateBody bounds uploaded and tested template sources.
const maxTemplateBody = 1 << 20

// TemplateAPI holds the dependencies for the template API handlers.
type TemplateAPI struct {
	tm     *templating.TemplateManager
	view   *view.View
	logger *slog.Logger
}

// NewTemplateAPI creates a new instance of the TemplateAPI.
func NewTemplateAPI(tm *templating.TemplateManager, v *view.View, logger *slog.Logger) *TemplateAPI {
	return &TemplateAPI{
		tm:     tm,
		view:   v,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for all /api/templates endpoints.
func (t *TemplateAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/templates", requireScope(scopeTemplatesRead, t.handleList))
	mux.HandleFunc("POST /api/templates/refresh", requireScope(scopeTemplatesWrite, t.handleRefresh))
	mux.HandleFunc("GET /api/templates/preview", requireScope(scopeTemplatesRead, t.handlePreview))
	mux.HandleFunc("POST /api/templates/test", requireScope(scopeTemplatesRead, t.handleTest))
	mux.HandleFunc("GET /api/templates/file/{name...}", requireScope(scopeTemplatesRead, t.getFile))
	mux.HandleFunc("PUT /api/templates/file/{name...}", requireScope(scopeTemplatesWrite, t.putFile))
	mux.HandleFunc("DELETE /api/templates/file/{name...}", requireScope(scopeTemplatesWrite, t.deleteFile))
}

// handleList returns the page and partial template names.
func (t *TemplateAPI) handleList(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string][]string{
		"templates": t.tm.GetTemplateNames(),
		"partials":  t.tm.GetPartialNames(),
	})
}

// handleRefresh triggers a manual refresh of templates from disk.
func (t *TemplateAPI) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	if err := t.tm.Refresh(); err != nil {
		t.logger.Error("API triggered refresh failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to refresh templates: %v", err))
		return
	}
	t.logger.Info("Templates refreshed via API")
	w.WriteHeader(http.StatusNoContent)
}

// handlePreview renders a target exactly as the site would, without
// counting it in the statistics.
func (t *TemplateAPI) handlePreview(w http.ResponseWriter, r *http.Request) {
	target, ok := t.view.Target(r.URL.Query().Get("target"))
	if !ok {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid target %q", target))
		return
	}

	page := t.view.Context(target, map[string]any{"identifier": target})
	tpl, err := t.view.Template(target)
	if err != nil {
		respondWithJSON(w, http.StatusNotFound, map[string]any{
			"error":       err.Error(),
			"suggestions": t.view.Suggest(target),
		})
		return
	}
	page.Template = tpl

	var buf bytes.Buffer
	if err = t.view.Render(&buf, page); err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to render preview: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// handleTest executes the request body as a template. With a target query
// parameter the body sees that target's data, as a page template would.
func (t *TemplateAPI) handleTest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxTemplateBody))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read request body: %v", err))
		return
	}

	var data any
	if raw := r.URL.Query().Get("target"); raw != "" {
		target, ok := t.view.Target(raw)
		if !ok {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid target %q", target))
			return
		}
		data = t.view.Context(target, map[string]any{"identifier": target}).Data()
	}

	var buf bytes.Buffer
	if err = t.tm.ExecuteTemplateString(&buf, string(body), data); err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Template execution failed: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

var errBadTemplateName = errors.New("invalid template name")

// templateFile resolves a template name to a path inside the template
// directory.
func (t *TemplateAPI) templateFile(name string) (string, error) {
	ext := "." + t.tm.GetConfig().Extension
	if name == "" || !strings.HasSuffix(name, ext) {
		return "", errBadTemplateName
	}

	templateDir, err := filepath.Abs(t.tm.GetTemplateDir())
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(filepath.Join(templateDir, filepath.FromSlash(name)))
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(absPath, templateDir+string(filepath.Separator)) {
		return "", errBadTemplateName
	}
	return absPath, nil
}

func (t *TemplateAPI) resolve(w http.ResponseWriter, r *http.Request) (string, bool) {
	p, err := t.templateFile(r.PathValue("name"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid template name")
		return "", false
	}
	return p, true
}

func (t *TemplateAPI) getFile(w http.ResponseWriter, r *http.Request) {
	p, ok := t.resolve(w, r)
	if !ok {
		return
	}
	content, err := os.ReadFile(p)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Template not found")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(content)
}

// putFile writes a template and reloads the set. A template that fails to
// parse is rolled back.
func (t *TemplateAPI) putFile(w http.ResponseWriter, r *http.Request) {
	p, ok := t.resolve(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxTemplateBody))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read request body: %v", err))
		return
	}

	previous, readErr := os.ReadFile(p)
	if err = os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to create directory: %v", err))
		return
	}
	if err = atomic.WriteFile(p, bytes.NewReader(body)); err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to write template file: %v", err))
		return
	}

	if err = t.tm.Refresh(); err != nil {
		if readErr == nil {
			_ = atomic.WriteFile(p, bytes.NewReader(previous))
		} else {
			_ = os.Remove(p)
		}
		_ = t.tm.Refresh()
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Template rejected: %v", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (t *TemplateAPI) deleteFile(w http.ResponseWriter, r *http.Request) {
	p, ok := t.resolve(w, r)
	if !ok {
		return
	}
	if err := os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			respondWithError(w, http.StatusNotFound, "Template not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to delete template file: %v", err))
		return
	}
	if err := t.tm.Refresh(); err != nil {
		t.logger.Error("Refresh after template deletion failed", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}
