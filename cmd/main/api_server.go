package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	actionShutdown = "shutdown"
	actionRestart  = "restart"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// ServerAPI holds the dependencies for the main application API handlers.
type ServerAPI struct {
	cm         *ConfigManager
	actionChan chan string
	started    time.Time
	logger     *slog.Logger
}

// VersionInfo defines the structure for build/version information.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// NewServerAPI creates a new instance of the ServerAPI.
func NewServerAPI(cm *ConfigManager, actionChan chan string, logger *slog.Logger) *ServerAPI {
	return &ServerAPI{
		cm:         cm,
		actionChan: actionChan,
		started:    time.Now(),
		logger:     logger,
	}
}

// RegisterRoutes sets up the routing for all /api/server endpoints.
func (a *ServerAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/server/config", requireScope(scopeServerConfig, a.getConfig))
	mux.HandleFunc("PUT /api/server/config", requireScope(scopeServerConfig, a.putConfig))
	mux.HandleFunc("GET /api/server/version", requireScope(scopeServerConfig, a.handleVersion))
	mux.HandleFunc("POST /api/server/shutdown", requireScope(scopeServerControl, a.handleAction(actionShutdown)))
	mux.HandleFunc("POST /api/server/restart", requireScope(scopeServerControl, a.handleAction(actionRestart)))
}

// handleHealthCheck is left unauthenticated so container probes can use it.
func (a *ServerAPI) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(a.started).Round(time.Second).String(),
	})
}

func (a *ServerAPI) getConfig(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, a.cm.Get())
}

func (a *ServerAPI) putConfig(w http.ResponseWriter, r *http.Request) {
	newConfig := *DefaultConfig()
	if err := json.NewDecoder(r.Body).Decode(&newConfig); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}

	if err := a.cm.Update(newConfig); err != nil {
		a.logger.Error("Failed to apply configuration", "error", err)
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to apply configuration: %v", err))
		return
	}

	a.logger.Info("Application configuration updated and saved via API. Some changes may require a restart.")
	respondWithJSON(w, http.StatusOK, a.cm.Get())
}

// handleVersion returns the application's build information.
func (a *ServerAPI) handleVersion(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, VersionInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
	})
}

// handleAction answers 202 and then hands action to the run loop.
func (a *ServerAPI) handleAction(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		a.logger.Warn("Server action initiated via API", "action", action)
		respondWithJSON(w, http.StatusAccepted, map[string]string{"message": "Server action accepted: " + action})

		go func() {
			a.actionChan <- action
		}()
	}
}
