// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NVIDIA/cluster-watchdog/pkg/logging"
	"github.com/NVIDIA/cluster-watchdog/pkg/serializer"
)

// setupRoutes configures all HTTP routes and middleware.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	metricsHandler := promhttp.HandlerFor(s.registry.Gatherer(), promhttp.HandlerOpts{
		ErrorLog:          logging.NewLogLogger(slog.LevelError, false),
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: false,
	})

	routes := map[string]http.HandlerFunc{
		"/metrics": s.withMiddleware("/metrics", methodMiddleware(metricsHandler.ServeHTTP), false),
		"/health":  s.withMiddleware("/health", methodMiddleware(s.handleHealth), false),
		"/ready":   s.withMiddleware("/ready", methodMiddleware(s.handleReady), false),
		"/":        s.withMiddleware("/", methodMiddleware(s.handleDefault), true),
	}
	for path, h := range s.handlers {
		routes[path] = s.withMiddleware(path, h, true)
	}

	for path, h := range routes {
		mux.HandleFunc(path, h)
		s.routes = append(s.routes, path)
	}
	slices.Sort(s.routes)

	return mux
}

// handleDefault serves the index and 404 for unknown paths.
func (s *Server) handleDefault(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, r, http.StatusNotFound, ErrCodeNotFound, "Not found", false,
			map[string]any{"path": r.URL.Path})
		return
	}

	resp := struct {
		Name      string         `json:"name"`
		Version   string         `json:"version"`
		Ready     bool           `json:"ready"`
		Timestamp string         `json:"timestamp"`
		Routes    []string       `json:"routes"`
		Families  map[string]int `json:"families,omitempty"`
	}{
		Name:      s.config.Name,
		Version:   s.config.Version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Routes:    s.routes,
	}
	if snap, ok := s.ref.Load(); ok {
		resp.Ready = true
		resp.Families = make(map[string]int)
		for _, c := range snap.Collections() {
			resp.Families[c.Family().Name] = c.Len()
		}
	}

	serializer.RespondJSON(w, http.StatusOK, resp)
}
