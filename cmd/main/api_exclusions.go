package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

const exclusionSchema = `
CREATE TABLE IF NOT EXISTS stats_exclusions (
    id     INTEGER PRIMARY KEY,
    kind   TEXT NOT NULL CHECK(kind IN ('ip', 'target')),
    value  TEXT NOT NULL,
    UNIQUE(kind, value)
);
`

// Exclusion kinds: an IP address or CIDR block, or a doublestar glob over
// targets ("drafts/**").
const (
	exclusionIP     = "ip"
	exclusionTarget = "target"
)

func setupExclusionSchema(db *sql.DB) error {
	_, err := db.Exec(exclusionSchema)
	return err
}

// ExclusionCache keeps the stats exclusions in memory, so that recording a
// hit does not query them.
type ExclusionCache struct {
	mu       sync.RWMutex
	ips      map[string]struct{}
	networks map[string]*net.IPNet
	targets  map[string]struct{}
}

func NewExclusionCache() *ExclusionCache {
	return &ExclusionCache{
		ips:      make(map[string]struct{}),
		networks: make(map[string]*net.IPNet),
		targets:  make(map[string]struct{}),
	}
}

// LoadFromDB replaces the cache content with the stored exclusions.
func (c *ExclusionCache) LoadFromDB(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, "SELECT kind, value FROM stats_exclusions")
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	fresh := NewExclusionCache()
	for rows.Next() {
		var kind, value string
		if err = rows.Scan(&kind, &value); err != nil {
			return err
		}
		fresh.add(kind, value)
	}
	if err = rows.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ips, c.networks, c.targets = fresh.ips, fresh.networks, fresh.targets
	return nil
}

func (c *ExclusionCache) add(kind, value string) {
	switch kind {
	case exclusionIP:
		if _, ipNet, err := net.ParseCIDR(value); err == nil {
			c.networks[value] = ipNet
		} else {
			c.ips[value] = struct{}{}
		}
	case exclusionTarget:
		c.targets[value] = struct{}{}
	}
}

// Add inserts a single entry into the cache.
func (c *ExclusionCache) Add(kind, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.add(kind, value)
}

// Remove drops a single entry from the cache.
func (c *ExclusionCache) Remove(kind, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch kind {
	case exclusionIP:
		delete(c.ips, value)
		delete(c.networks, value)
	case exclusionTarget:
		delete(c.targets, value)
	}
}

// IsExcluded reports whether a hit from ip on target must not be counted.
func (c *ExclusionCache) IsExcluded(ip, target string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, found := c.ips[ip]; found {
		return true
	}
	if parsed := net.ParseIP(ip); parsed != nil {
		for _, ipNet := range c.networks {
			if ipNet.Contains(parsed) {
				return true
			}
		}
	}
	for pattern := range c.targets {
		if ok, _ := doublestar.Match(pattern, target); ok {
			return true
		}
	}
	return false
}

// validateExclusion checks a value before it is stored.
func validateExclusion(kind, value string) error {
	switch kind {
	case exclusionIP:
		if strings.Contains(value, "/") {
			if _, _, err := net.ParseCIDR(value); err != nil {
				return fmt.Errorf("invalid CIDR %q", value)
			}
		} else if net.ParseIP(value) == nil {
			return fmt.Errorf("invalid IP address %q", value)
		}
	case exclusionTarget:
		if !doublestar.ValidatePattern(value) {
			return fmt.Errorf("invalid target pattern %q", value)
		}
	default:
		return fmt.Errorf("unknown exclusion kind %q", kind)
	}
	return nil
}

// ExclusionAPI manages the addresses and targets left out of the statistics.
type ExclusionAPI struct {
	db     *sql.DB
	logger *slog.Logger
	cache  *ExclusionCache
}

func NewExclusionAPI(db *sql.DB, logger *slog.Logger, cache *ExclusionCache) *ExclusionAPI {
	return &ExclusionAPI{
		db:     db,
		logger: logger,
		cache:  cache,
	}
}

// RegisterRoutes sets up the routing for all /api/stats/exclusions endpoints.
func (a *ExclusionAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/stats/exclusions/{kind}", requireScope(scopeStatsRead, a.getList))
	mux.HandleFunc("POST /api/stats/exclusions/{kind}", requireScope(scopeStatsWrite, a.addToList))
	mux.HandleFunc("DELETE /api/stats/exclusions/{kind}", requireScope(scopeStatsWrite, a.removeFromList))
}

type exclusionPayload struct {
	Value string `json:"value"`
}

func (a *ExclusionAPI) decode(w http.ResponseWriter, r *http.Request) (kind, value string, ok bool) {
	kind = r.PathValue("kind")
	var payload exclusionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return "", "", false
	}
	value = strings.TrimSpace(payload.Value)
	if err := validateExclusion(kind, value); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	return kind, value, true
}

func (a *ExclusionAPI) getList(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	if kind != exclusionIP && kind != exclusionTarget {
		respondWithError(w, http.StatusNotFound, fmt.Sprintf("Unknown exclusion kind %q", kind))
		return
	}

	rows, err := a.db.QueryContext(r.Context(), "SELECT value FROM stats_exclusions WHERE kind = ? ORDER BY value", kind)
	if err != nil {
		a.logger.Error("Failed to query exclusions", "kind", kind, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve exclusions")
		return
	}
	defer func() { _ = rows.Close() }()

	values := []string{}
	for rows.Next() {
		var value string
		if err = rows.Scan(&value); err != nil {
			a.logger.Error("Failed to scan exclusion value", "error", err)
			continue
		}
		values = append(values, value)
	}
	respondWithJSON(w, http.StatusOK, values)
}

func (a *ExclusionAPI) addToList(w http.ResponseWriter, r *http.Request) {
	kind, value, ok := a.decode(w, r)
	if !ok {
		return
	}

	res, err := a.db.ExecContext(r.Context(), "INSERT OR IGNORE INTO stats_exclusions (kind, value) VALUES (?, ?)", kind, value)
	if err != nil {
		a.logger.Error("Failed to insert exclusion", "kind", kind, "value", value, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to add exclusion")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		respondWithError(w, http.StatusConflict, "Value is already excluded")
		return
	}

	a.cache.Add(kind, value)
	a.logger.Info("Added stats exclusion", "kind", kind, "value", value)
	respondWithJSON(w, http.StatusCreated, map[string]string{"message": "Exclusion added"})
}

func (a *ExclusionAPI) removeFromList(w http.ResponseWriter, r *http.Request) {
	kind, value, ok := a.decode(w, r)
	if !ok {
		return
	}

	res, err := a.db.ExecContext(r.Context(), "DELETE FROM stats_exclusions WHERE kind = ? AND value = ?", kind, value)
	if err != nil {
		a.logger.Error("Failed to delete exclusion", "kind", kind, "value", value, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to remove exclusion")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		respondWithError(w, http.StatusNotFound, "Value is not excluded")
		return
	}

	a.cache.Remove(kind, value)
	a.logger.Info("Removed stats exclusion", "kind", kind, "value", value)
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Exclusion removed"})
}
