// SPDX-FileCopyrightText: 2026 The pathprobe authors
//
// SPDX-License-Identifier: Apache-2.0

package webserver

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "Valid", cfg: Config{Port: 8080, Root: "."}},
		{name: "Zero port", cfg: Config{Root: "."}, wantErr: true},
		{name: "Port out of range", cfg: Config{Port: 70000, Root: "."}, wantErr: true},
		{name: "Empty root", cfg: Config{Port: 8080}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestServer_ServeFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<html>hello</html>"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "page.txt"), []byte("nested"), 0o644))

	s := New(Config{Port: 8080, Root: root}, nil)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "Existing file",
			path:       "/index.html",
			wantStatus: http.StatusOK,
			wantBody:   "<html>hello</html>",
		},
		{
			name:       "Nested file",
			path:       "/sub/page.txt",
			wantStatus: http.StatusOK,
			wantBody:   "nested",
		},
		{
			name:       "Missing file",
			path:       "/nope.html",
			wantStatus: http.StatusNotFound,
			wantBody:   notFoundBody,
		},
		{
			name:       "Traversal stays inside the root",
			path:       "/../../etc/passwd",
			wantStatus: http.StatusNotFound,
			wantBody:   notFoundBody,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			s.serveFile(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body, err := io.ReadAll(rec.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBody, string(body))
		})
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "pathprobe_test_total"})
	registry.MustRegister(counter)
	counter.Inc()

	// Exercise the full router wiring without binding a port.
	s := New(Config{Port: 8080, Root: t.TempDir()}, registry)
	srv := httptest.NewServer(s.router(t.Context()))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "pathprobe_test_total 1")
}
