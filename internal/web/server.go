package web

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hpungsan/arcana/internal/logging"
	"github.com/hpungsan/arcana/internal/state"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// NewHandler builds the routed, middleware-wrapped handler for the web UI.
func NewHandler(facade *state.Facade, logger *slog.Logger, version string) (http.Handler, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("template sub-FS: %w", err)
	}
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static sub-FS: %w", err)
	}

	h := &Handlers{
		facade:   facade,
		renderer: NewRenderer(templateSub, version, logger),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/daily", http.StatusFound)
	})
	mux.HandleFunc("GET /daily", h.HandleDaily)
	mux.HandleFunc("POST /daily/reflection", h.HandleReflect)
	mux.HandleFunc("GET /cards", h.HandleCards)
	mux.HandleFunc("GET /cards/{id}", h.HandleCard)
	mux.HandleFunc("GET /spreads", h.HandleSpreads)
	mux.HandleFunc("GET /spreads/{id}", h.HandleSpread)
	mux.HandleFunc("POST /spreads/{id}/draw", h.HandleDraw)
	mux.HandleFunc("GET /readings", h.HandleReadings)
	mux.HandleFunc("GET /readings/{id}", h.HandleReading)
	mux.HandleFunc("POST /readings/{id}/notes", h.HandleNotes)
	mux.HandleFunc("DELETE /readings/{id}", h.HandleDeleteReading)
	mux.HandleFunc("GET /journal", h.HandleJournal)
	mux.HandleFunc("POST /journal", h.HandleAddJournal)

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	return chain(mux,
		requestID,
		requestLogger(logger),
		recovery(logger),
		securityHeaders,
	), nil
}

// NewServer creates and configures the HTTP server for the arcana web UI.
func NewServer(facade *state.Facade, logger *slog.Logger, version, bind string, port int) (*http.Server, error) {
	handler, err := NewHandler(facade, logger, version)
	if err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.Discard()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("arcana UI running", "url", "http://"+srv.Addr)

	if strings.HasPrefix(srv.Addr, "0.0.0.0:") || strings.HasPrefix(srv.Addr, "[::]:") || strings.HasPrefix(srv.Addr, ":") {
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
