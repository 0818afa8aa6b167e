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

// Package server serves the watchdog's metrics endpoint.
//
// The server never probes anything itself. Every /metrics request renders
// the snapshot most recently published by the collection loop plus the live
// instruments of the metric registry, so scrape latency does not depend on
// the health of the sources being probed.
//
// # Architecture
//
//   - promhttp over the process's own metrics.Registry (no global registry)
//   - Rate limiting of /metrics using a token bucket (golang.org/x/time/rate)
//   - Request ID tracking (X-Request-Id, UUID)
//   - Panic recovery
//   - RED metrics: watchdog_http_requests_total, watchdog_http_request_duration_seconds,
//     watchdog_http_requests_in_flight
//   - Graceful shutdown on context cancellation
//
// # Usage
//
//	reg := metrics.NewRegistry()
//	ref := &snapshot.Ref{}
//
//	s, err := server.New(reg, ref,
//	    server.WithName("cluster-watchdog"),
//	    server.WithVersion(version),
//	    server.WithPort(9101),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := s.Start(ctx); err != nil {
//	    return err
//	}
//
// # Endpoints
//
// GET /metrics - Prometheus text exposition
//
//	Empty but valid before the first snapshot is published.
//	Never rate limited; every scrape gets the current snapshot.
//
// GET /health - Liveness probe
//
//	Always returns 200 OK with {"status": "healthy", "timestamp": "..."}
//
// GET /ready - Readiness probe
//
//	Returns 503 until the first snapshot is published, then 200 OK with the
//	iteration and capture time of the current snapshot.
//
// GET / - Index with name, version, routes and the point count of each
// family in the current snapshot
//
//	Rate limited together with custom handlers; 429 with Retry-After when
//	exceeded.
//
// # Error Responses
//
// Errors other than those of the metrics handler are JSON:
//
//	{
//	  "code": "RATE_LIMIT_EXCEEDED",
//	  "message": "Rate limit exceeded",
//	  "requestId": "550e8400-e29b-41d4-a716-446655440000",
//	  "timestamp": "2025-01-01T00:00:00Z",
//	  "retryable": true
//	}
package server
