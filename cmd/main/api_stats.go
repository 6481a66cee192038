package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const statsSchema = `
CREATE TABLE IF NOT EXISTS stats_target (
    target        TEXT PRIMARY KEY,
    total_hits    INTEGER NOT NULL DEFAULT 1,
    not_found     INTEGER NOT NULL DEFAULT 0,
    errors        INTEGER NOT NULL DEFAULT 0,
    first_seen    DATETIME NOT NULL,
    last_seen     DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS stats_client (
    ip_address    TEXT PRIMARY KEY,
    total_hits    INTEGER NOT NULL DEFAULT 1,
    first_seen    DATETIME NOT NULL,
    last_seen     DATETIME NOT NULL
);
`

// defaultTopLimit and maxTopLimit bound the top_* listings.
const (
	defaultTopLimit = 20
	maxTopLimit     = 500
)

// Hit is one served page request.
type Hit struct {
	Target    string
	IPAddress string
	Status    int
	Time      time.Time
}

// StatsSummary provides a high-level overview of all collected stats.
type StatsSummary struct {
	TotalRequests int64 `json:"total_requests"`
	NotFound      int64 `json:"not_found"`
	Errors        int64 `json:"errors"`
	UniqueTargets int64 `json:"unique_targets"`
	UniqueClients int64 `json:"unique_clients"`
}

// TargetStats is one row of the top_targets listing.
type TargetStats struct {
	Target    string    `json:"target"`
	TotalHits int64     `json:"total_hits"`
	NotFound  int64     `json:"not_found"`
	Errors    int64     `json:"errors"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// ClientStats is one row of the top_clients listing.
type ClientStats struct {
	IPAddress string    `json:"ip_address"`
	TotalHits int64     `json:"total_hits"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// StatsAPI records page hits and serves the statistics handlers.
type StatsAPI struct {
	db     *sql.DB
	logger *slog.Logger
}

func setupStatsSchema(db *sql.DB) error {
	_, err := db.Exec(statsSchema)
	return err
}

func NewStatsAPI(db *sql.DB, logger *slog.Logger) *StatsAPI {
	return &StatsAPI{
		db:     db,
		logger: logger,
	}
}

func (s *StatsAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/stats/summary", requireScope(scopeStatsRead, s.handleSummary))
	mux.HandleFunc("GET /api/stats/top_targets", requireScope(scopeStatsRead, s.handleTopTargets))
	mux.HandleFunc("GET /api/stats/top_clients", requireScope(scopeStatsRead, s.handleTopClients))
	mux.HandleFunc("DELETE /api/stats", requireScope(scopeStatsWrite, s.handleReset))
}

// Record counts a hit against its target and its client in one transaction.
func (s *StatsAPI) Record(ctx context.Context, hit Hit) error {
	var notFound, failed int
	switch {
	case hit.Status == http.StatusNotFound:
		notFound = 1
	case hit.Status >= http.StatusInternalServerError:
		failed = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
        INSERT INTO stats_target (target, not_found, errors, first_seen, last_seen) VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(target) DO UPDATE SET
            total_hits = total_hits + 1,
            not_found = not_found + excluded.not_found,
            errors = errors + excluded.errors,
            last_seen = excluded.last_seen
    `, hit.Target, notFound, failed, hit.Time, hit.Time)
	if err != nil {
		return fmt.Errorf("failed to upsert stats_target: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO stats_client (ip_address, first_seen, last_seen) VALUES (?, ?, ?)
        ON CONFLICT(ip_address) DO UPDATE SET total_hits = total_hits + 1, last_seen = excluded.last_seen
    `, hit.IPAddress, hit.Time, hit.Time)
	if err != nil {
		return fmt.Errorf("failed to upsert stats_client: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit stats transaction: %w", err)
	}
	return nil
}

// Summary aggregates the target and client tables.
func (s *StatsAPI) Summary(ctx context.Context) (StatsSummary, error) {
	var summary StatsSummary
	err := s.db.QueryRowContext(ctx, `
        SELECT COALESCE(SUM(total_hits), 0), COALESCE(SUM(not_found), 0), COALESCE(SUM(errors), 0), COUNT(*)
        FROM stats_target
    `).Scan(&summary.TotalRequests, &summary.NotFound, &summary.Errors, &summary.UniqueTargets)
	if err != nil {
		return summary, fmt.Errorf("failed to summarise targets: %w", err)
	}
	if err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM stats_client").Scan(&summary.UniqueClients); err != nil {
		return summary, fmt.Errorf("failed to count clients: %w", err)
	}
	return summary, nil
}

// TopTargets returns the most requested targets.
func (s *StatsAPI) TopTargets(ctx context.Context, limit int) ([]TargetStats, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT target, total_hits, not_found, errors, first_seen, last_seen
        FROM stats_target ORDER BY total_hits DESC, target LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top targets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := []TargetStats{}
	for rows.Next() {
		var t TargetStats
		if err = rows.Scan(&t.Target, &t.TotalHits, &t.NotFound, &t.Errors, &t.FirstSeen, &t.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan top targets: %w", err)
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

// TopClients returns the clients with the most requests.
func (s *StatsAPI) TopClients(ctx context.Context, limit int) ([]ClientStats, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT ip_address, total_hits, first_seen, last_seen
        FROM stats_client ORDER BY total_hits DESC, ip_address LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top clients: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := []ClientStats{}
	for rows.Next() {
		var c ClientStats
		if err = rows.Scan(&c.IPAddress, &c.TotalHits, &c.FirstSeen, &c.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan top clients: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultTopLimit
	}
	return min(n, maxTopLimit)
}

func (s *StatsAPI) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.Summary(r.Context())
	if err != nil {
		s.logger.Error("Failed to summarise stats", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database error")
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

func (s *StatsAPI) handleTopTargets(w http.ResponseWriter, r *http.Request) {
	results, err := s.TopTargets(r.Context(), limitParam(r))
	if err != nil {
		s.logger.Error("Failed to query top targets", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database error")
		return
	}
	respondWithJSON(w, http.StatusOK, results)
}

func (s *StatsAPI) handleTopClients(w http.ResponseWriter, r *http.Request) {
	results, err := s.TopClients(r.Context(), limitParam(r))
	if err != nil {
		s.logger.Error("Failed to query top clients", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database error")
		return
	}
	respondWithJSON(w, http.StatusOK, results)
}

func (s *StatsAPI) handleReset(w http.ResponseWriter, r *http.Request) {
	if _, err := s.db.ExecContext(r.Context(), "DELETE FROM stats_target; DELETE FROM stats_client;"); err != nil {
		s.logger.Error("Failed to reset stats", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database error")
		return
	}
	s.logger.Warn("Statistics reset via API")
	w.WriteHeader(http.StatusNoContent)
}
