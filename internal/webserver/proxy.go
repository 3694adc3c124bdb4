// SPDX-FileCopyrightText: 2026 The pathprobe authors
//
// SPDX-License-Identifier: Apache-2.0

package webserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/pathprobe/pathprobe/internal/helper"
	"github.com/pathprobe/pathprobe/internal/logger"
)

// ProxyConfig is the configuration of the forwarding proxy.
type ProxyConfig struct {
	// Port is the port the proxy listens on.
	Port int `json:"port" yaml:"port" mapstructure:"port"`
	// Timeout bounds each upstream fetch.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	// Retry configures retries of failed upstream fetches.
	Retry helper.RetryConfig `json:"retry" yaml:"retry" mapstructure:"retry"`
}

func (c *ProxyConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d, must be between 1 and 65535", c.Port)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("invalid timeout: %v, must be greater than 0", c.Timeout)
	}
	return nil
}

// cachedResponse is one whole upstream response held in the cache.
type cachedResponse struct {
	status int
	header http.Header
	body   []byte
}

// Proxy forwards plain HTTP requests to their origin and caches whole
// responses by URL. Cached entries are served without contacting the
// upstream and never expire for the lifetime of the process.
type Proxy struct {
	cfg    ProxyConfig
	client *http.Client

	mu    sync.RWMutex
	cache map[string]*cachedResponse
}

// NewProxy creates a forwarding proxy.
func NewProxy(cfg ProxyConfig) *Proxy {
	return &Proxy{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		cache:  make(map[string]*cachedResponse),
	}
}

// Run starts the proxy and blocks until the context is canceled, then
// shuts down gracefully.
func (p *Proxy) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", p.cfg.Port),
		Handler:           p,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.InfoContext(ctx, "Proxy listening", "port", p.cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("proxy failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down proxy: %w", err)
		}
		return ctx.Err()
	}
}

// ServeHTTP answers from the cache when possible and forwards the request
// upstream otherwise, caching whatever comes back.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	target, err := upstreamURL(r)
	if err != nil {
		log.ErrorContext(r.Context(), "Cannot determine upstream", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	key := target.String()

	p.mu.RLock()
	cached, hit := p.cache[key]
	p.mu.RUnlock()
	if hit {
		log.DebugContext(r.Context(), "Cache hit", "url", key)
		writeCached(w, cached)
		return
	}

	log.DebugContext(r.Context(), "Cache miss, fetching from upstream", "url", key)
	cached, err = p.fetch(r.Context(), target)
	if err != nil {
		log.ErrorContext(r.Context(), "Upstream fetch failed", "url", key, "error", err)
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}

	p.mu.Lock()
	p.cache[key] = cached
	p.mu.Unlock()

	writeCached(w, cached)
}

// fetch retrieves the whole upstream response, retrying per configuration.
func (p *Proxy) fetch(ctx context.Context, target *url.URL) (*cachedResponse, error) {
	var cached *cachedResponse

	retry := helper.Retry(func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), http.NoBody)
		if err != nil {
			return fmt.Errorf("failed to build upstream request: %w", err)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to fetch %s: %w", target, err)
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read upstream response: %w", err)
		}

		cached = &cachedResponse{
			status: resp.StatusCode,
			header: resp.Header.Clone(),
			body:   body,
		}
		return nil
	}, p.cfg.Retry)

	if err := retry(ctx); err != nil {
		return nil, err
	}
	return cached, nil
}

// upstreamURL derives the origin URL of a proxied request, either from the
// absolute request URL or from the Host header.
func upstreamURL(r *http.Request) (*url.URL, error) {
	if r.URL.IsAbs() {
		return r.URL, nil
	}
	if r.Host == "" {
		return nil, fmt.Errorf("request carries no host")
	}
	return &url.URL{Scheme: "http", Host: r.Host, Path: r.URL.Path, RawQuery: r.URL.RawQuery}, nil
}

// writeCached writes a cached response out to the client.
func writeCached(w http.ResponseWriter, c *cachedResponse) {
	for k, vals := range c.header {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(c.status)
	_, _ = w.Write(c.body)
}
