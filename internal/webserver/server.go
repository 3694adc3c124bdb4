// SPDX-FileCopyrightText: 2026 The pathprobe authors
//
// SPDX-License-Identifier: Apache-2.0

// Package webserver provides the HTTP side services of the tool: a simple
// single-file web server and a forwarding proxy with a whole-response cache.
package webserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pathprobe/pathprobe/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// notFoundBody is the response body served for missing files.
const notFoundBody = "<html><head></head><body><h1>404 Not Found</h1></body></html>\r\n"

// Config is the configuration of the file server.
type Config struct {
	// Port is the port the server listens on.
	Port int `json:"port" yaml:"port" mapstructure:"port"`
	// Root is the directory files are served from.
	Root string `json:"root" yaml:"root" mapstructure:"root"`
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d, must be between 1 and 65535", c.Port)
	}
	if c.Root == "" {
		return errors.New("root directory cannot be empty")
	}
	return nil
}

// Server serves single files from a root directory over HTTP.
type Server struct {
	cfg      Config
	registry *prometheus.Registry
}

// New creates a file server. The registry is exposed on /metrics and may
// carry the probing engine's collectors.
func New(cfg Config, registry *prometheus.Registry) *Server {
	return &Server{cfg: cfg, registry: registry}
}

// Run starts the server and blocks until the context is canceled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router(ctx),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.InfoContext(ctx, "Web server listening", "port", s.cfg.Port, "root", s.cfg.Root)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("web server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down web server: %w", err)
		}
		return ctx.Err()
	}
}

// router assembles the request routing: an optional /metrics endpoint on
// the configured registry, and the file handler for everything else.
func (s *Server) router(ctx context.Context) http.Handler {
	router := chi.NewRouter()
	router.Use(logRequests(ctx))
	if s.registry != nil {
		router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	router.Get("/*", s.serveFile)
	return router
}

// serveFile reads the requested file from the root directory and writes it
// out, answering 404 for anything that cannot be read.
func (s *Server) serveFile(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	// Clean resolves any ".." segments against the request root, so the
	// joined path cannot escape the configured directory.
	name := path.Clean("/" + r.URL.Path)
	content, err := os.ReadFile(filepath.Join(s.cfg.Root, filepath.FromSlash(name)))
	if err != nil {
		log.DebugContext(r.Context(), "File not found", "path", name, "error", err)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(notFoundBody))
		return
	}

	_, _ = w.Write(content)
}

// logRequests logs every request with the server's context logger.
func logRequests(ctx context.Context) func(http.Handler) http.Handler {
	log := logger.FromContext(ctx)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.DebugContext(r.Context(), "Handling request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
			next.ServeHTTP(w, r)
		})
	}
}
