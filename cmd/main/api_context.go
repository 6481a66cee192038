package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/CTAG07/dynrender/pkg/ctxdata"
	"github.com/CTAG07/dynrender/pkg/view"
)

// ContextAPI exposes the processed data of a target, so that data file
// authors can see what their templates receive.
type ContextAPI struct {
	site   *view.View
	config *view.Config
	logger *slog.Logger
}

// ContextResponse is the processed data of one target.
type ContextResponse struct {
	Target    string            `json:"target"`
	Format    string            `json:"format"`
	ScopeFile string            `json:"scope_file"`
	Global    map[string]any    `json:"global"`
	Scope     map[string]any    `json:"scope"`
	Meta      map[string]any    `json:"meta"`
	URIKwargs map[string]string `json:"uri_kwargs"`
	Error     string            `json:"error,omitempty"`
}

func NewContextAPI(site *view.View, config *view.Config, logger *slog.Logger) *ContextAPI {
	return &ContextAPI{site: site, config: config, logger: logger}
}

func (c *ContextAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/context", requireScope(scopeContextRead, c.handleContext))
	mux.HandleFunc("GET /api/context/formats", requireScope(scopeContextRead, c.handleFormats))
}

// viewFor returns the site view, or a view over another data format.
func (c *ContextAPI) viewFor(format string) (*view.View, error) {
	if format == "" || format == c.site.Format() {
		return c.site, nil
	}
	loader, err := ctxdata.LookupFormat(format)
	if err != nil {
		return nil, err
	}
	return view.New(c.logger, nil, loader, c.config), nil
}

func (c *ContextAPI) handleContext(w http.ResponseWriter, r *http.Request) {
	v, err := c.viewFor(r.URL.Query().Get("format"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	target, ok := v.Target(r.URL.Query().Get("target"))
	if !ok {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid target %q", target))
		return
	}

	h := v.Handler(target, map[string]any{"identifier": target})
	resp := ContextResponse{
		Target:    h.Target(),
		Format:    v.Format(),
		ScopeFile: h.ScopeFile(),
	}
	if err = h.Process(); err != nil {
		resp.Error = err.Error()
	}
	resp.Global, _ = h.Global()
	resp.Scope, _ = h.Scope()
	resp.Meta, _ = h.Meta()
	resp.URIKwargs = h.URIKwargs()

	respondWithJSON(w, http.StatusOK, resp)
}

func (c *ContextAPI) handleFormats(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]any{
		"site":    c.site.Format(),
		"formats": ctxdata.Formats(),
	})
}
