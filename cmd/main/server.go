package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/CTAG07/dynrender/pkg/templating"
	"github.com/CTAG07/dynrender/pkg/view"
	"github.com/CTAG07/dynrender/pkg/watcher"
	"github.com/felixge/httpsnoop"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// staticRedirects are requested by browsers at the site root and live under
// the static URL.
var staticRedirects = []string{"favicon.ico", "apple-touch-icon.png"}

type Server struct {
	cm           *ConfigManager
	db           *sql.DB
	logger       *slog.Logger
	tm           *templating.TemplateManager
	site         *view.View
	watcher      *watcher.Watcher
	exclusions   *ExclusionCache
	authAPI      *AuthAPI
	templateAPI  *TemplateAPI
	contextAPI   *ContextAPI
	statsAPI     *StatsAPI
	serverAPI    *ServerAPI
	exclusionAPI *ExclusionAPI
	siteHandler  http.Handler
	apiMux       *http.ServeMux
	accessLog    io.WriteCloser
}

func NewServer(cm *ConfigManager, logger *slog.Logger, db *sql.DB, actionChan chan string, debug bool) (*Server, error) {
	cfg := cm.Get()

	tm, err := templating.NewTemplateManager(logger, cfg.Templates, cfg.Server.TemplateDir, cfg.View.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create template manager: %w", err)
	}
	cm.SetTemplateManager(tm)

	viewConfig := *cfg.View
	viewConfig.Debug = viewConfig.Debug || debug
	site, err := view.DefaultRegistry().New(viewConfig.ViewClass, logger, tm, &viewConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create view: %w", err)
	}

	exclusions := NewExclusionCache()
	if err = exclusions.LoadFromDB(context.Background(), db); err != nil {
		return nil, fmt.Errorf("failed to load stats exclusions from db: %w", err)
	}

	server := &Server{
		cm:           cm,
		db:           db,
		logger:       logger,
		tm:           tm,
		site:         site,
		exclusions:   exclusions,
		authAPI:      NewAuthAPI(db, logger),
		templateAPI:  NewTemplateAPI(tm, site, logger),
		contextAPI:   NewContextAPI(site, &viewConfig, logger),
		statsAPI:     NewStatsAPI(db, logger),
		serverAPI:    NewServerAPI(cm, actionChan, logger),
		exclusionAPI: NewExclusionAPI(db, logger, exclusions),
		apiMux:       http.NewServeMux(),
	}

	if cfg.Watcher.Enabled {
		server.watcher, err = watcher.New(logger, cfg.Server.TemplateDir, cfg.Watcher, server.templatesChanged)
		if err != nil {
			return nil, fmt.Errorf("failed to create template watcher: %w", err)
		}
	}

	if server.accessLog, err = openAccessLog(cfg.Server.AccessLog); err != nil {
		_ = server.Close()
		return nil, err
	}

	server.siteHandler = server.proxyHeaders(server.logAccess(server.router(cfg)))

	apiMux := http.NewServeMux()
	server.authAPI.RegisterRoutes(apiMux)
	server.templateAPI.RegisterRoutes(apiMux)
	server.contextAPI.RegisterRoutes(apiMux)
	server.statsAPI.RegisterRoutes(apiMux)
	server.exclusionAPI.RegisterRoutes(apiMux)
	server.serverAPI.RegisterRoutes(apiMux)

	// The health check stays unauthenticated so container probes can use it.
	server.apiMux.HandleFunc("/api/health", server.serverAPI.handleHealthCheck)
	server.apiMux.Handle("/api/", server.authAPI.Authenticate(apiMux))

	return server, nil
}

// router routes static files and redirects, and hands every other path to
// the view.
func (s *Server) router(cfg Config) *mux.Router {
	r := mux.NewRouter()

	staticURL := cfg.Templates.StaticURL
	if strings.HasPrefix(staticURL, "/") && staticURL != "/" {
		prefix := strings.TrimSuffix(staticURL, "/") + "/"
		r.PathPrefix(prefix).Handler(http.StripPrefix(prefix, http.FileServer(http.Dir(cfg.Server.StaticDir))))
	}
	for _, name := range staticRedirects {
		target := strings.TrimSuffix(staticURL, "/") + "/" + name
		r.Handle("/"+name, http.RedirectHandler(target, http.StatusMovedPermanently))
	}

	r.Handle("/{target:.*}", s.recordStats(s.site))
	return r
}

// Start starts the template watcher, if enabled.
func (s *Server) Start(ctx context.Context) error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Start(ctx)
}

// Close releases the watcher and the access log. The database belongs to
// the caller.
func (s *Server) Close() error {
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			s.logger.Error("Failed to close template watcher", "error", err)
		}
	}
	if s.accessLog != nil {
		return s.accessLog.Close()
	}
	return nil
}

func (s *Server) templatesChanged(paths []string) {
	s.logger.Info("Template change detected, refreshing", "paths", paths)
	if err := s.tm.Refresh(); err != nil {
		s.logger.Error("Template refresh failed, keeping previous templates", "error", err)
	}
}

// recordStats counts every request the view answered, unless statistics are
// disabled or the client or target is excluded.
func (s *Server) recordStats(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, rc := view.NewContext(r.Context())
		m := httpsnoop.CaptureMetrics(next, w, r.WithContext(ctx))

		if rc.Target == "" || !s.cm.Get().Server.StatsEnabled {
			return
		}
		ip := getClientIP(r)
		if s.exclusions.IsExcluded(ip, rc.Target) {
			s.logger.Debug("Request excluded from stats", "remote_addr", ip, "target", rc.Target)
			return
		}

		hit := Hit{Target: rc.Target, IPAddress: ip, Status: m.Code, Time: time.Now().UTC()}
		if err := s.statsAPI.Record(r.Context(), hit); err != nil {
			s.logger.Warn("Failed to record hit", "target", rc.Target, "error", err)
		}
	})
}

// logAccess writes the combined log format to the configured access log.
func (s *Server) logAccess(next http.Handler) http.Handler {
	if s.accessLog == nil {
		return next
	}
	return handlers.CombinedLoggingHandler(s.accessLog, next)
}

// proxyHeaders trusts X-Forwarded-For and friends only from configured
// proxies.
func (s *Server) proxyHeaders(next http.Handler) http.Handler {
	proxied := handlers.ProxyHeaders(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cm.HasTrustedProxies() && s.cm.IsTrusted(getClientIP(r)) {
			proxied.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// getClientIP strips the port from the remote address. Forwarded headers
// have already been applied by proxyHeaders when they can be trusted.
func getClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// openAccessLog opens the access log for appending. "-" is stdout and an
// empty name disables the log.
func openAccessLog(name string) (io.WriteCloser, error) {
	switch name {
	case "":
		return nil, nil
	case "-":
		return nopWriteCloser{os.Stdout}, nil
	}
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open access log: %w", err)
	}
	return f, nil
}
