// Package web serves scriptflow projects over a local JSON API.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/hpungsan/scriptflow/internal/ai"
	"github.com/hpungsan/scriptflow/internal/config"
	"github.com/hpungsan/scriptflow/internal/db"
	"github.com/hpungsan/scriptflow/internal/scriptfile"
)

// Deps are the collaborators the HTTP handlers run against.
type Deps struct {
	Store  *db.Store
	Config *config.Config
	// AI is nil when no API key is configured
	AI     ai.Provider
	Files  *scriptfile.Reader
	Logger *slog.Logger
}

// NewServer creates and configures the HTTP server for the scriptflow API.
func NewServer(deps Deps, version, bind string, port int) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           NewHandler(deps, version),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// NewHandler builds the routed, wrapped handler tree.
func NewHandler(deps Deps, version string) http.Handler {
	h := newHandlers(deps, version)

	r := mux.NewRouter()
	r.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/projects", h.HandleList).Methods(http.MethodGet)
	api.HandleFunc("/projects", h.HandleCreate).Methods(http.MethodPost)
	api.HandleFunc("/projects/convert", h.HandleConvert).Methods(http.MethodPost)
	api.HandleFunc("/projects/{id:[0-9]+}", h.HandleGet).Methods(http.MethodGet)
	api.HandleFunc("/projects/{id:[0-9]+}", h.HandleUpdate).Methods(http.MethodPatch)
	api.HandleFunc("/projects/{id:[0-9]+}/script", h.HandleUpload).Methods(http.MethodPut)
	api.HandleFunc("/projects/{id:[0-9]+}/chat", h.HandleChatView).Methods(http.MethodGet)
	api.HandleFunc("/projects/{id:[0-9]+}/chat", h.HandleChatSend).Methods(http.MethodPost)
	api.HandleFunc("/projects/{id:[0-9]+}/transcript", h.HandleTranscript).Methods(http.MethodGet)
	api.HandleFunc("/projects/{id:[0-9]+}/cleanup", h.HandleCleanup).Methods(http.MethodPost)
	api.HandleFunc("/projects/{id:[0-9]+}/rewrite", h.HandleRewrite).Methods(http.MethodPost)
	api.HandleFunc("/projects/{id:[0-9]+}/metadata", h.HandleMetadata).Methods(http.MethodPost)
	api.HandleFunc("/projects/{id:[0-9]+}/export", h.HandleExport).Methods(http.MethodPost)
	api.HandleFunc("/projects/{id:[0-9]+}/export.md", h.HandleDownload).Methods(http.MethodGet)
	api.HandleFunc("/images", h.HandleImage).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(h.HandleNotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(h.HandleMethodNotAllowed)

	var handler http.Handler = securityHeaders(r)
	if deps.Config != nil && len(deps.Config.Web.AllowedOrigins) > 0 {
		cors := handlers.CORS(
			handlers.AllowedOrigins(deps.Config.Web.AllowedOrigins),
			handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "OPTIONS"}),
			handlers.AllowedHeaders([]string{"Content-Type", "Accept"}),
		)
		handler = cors(handler)
	}
	return handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{h.logger}))(handler)
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'none'; style-src 'self' 'unsafe-inline'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// recoveryLogger adapts slog to gorilla's RecoveryHandlerLogger.
type recoveryLogger struct {
	logger *slog.Logger
}

func (l recoveryLogger) Println(v ...any) {
	l.logger.Error("handler panic", "panic", fmt.Sprint(v...))
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("scriptflow API running", "url", "http://"+srv.Addr+"/api/v1")

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		logger.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
