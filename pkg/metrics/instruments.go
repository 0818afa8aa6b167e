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

package metrics

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/NVIDIA/cluster-watchdog/pkg/errors"
)

// LatencyBuckets covers probe latencies from a fast local healthz to an SSH
// session that runs into its timeout.
var LatencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// ErrorCounter counts recovered errors by source and error kind.
// A nil *ErrorCounter drops increments.
type ErrorCounter struct {
	vec *prometheus.CounterVec
}

// NewErrorCounter registers watchdog_errors_total on r.
func NewErrorCounter(r *Registry) *ErrorCounter {
	r.reserve("watchdog_errors_total")
	return &ErrorCounter{
		vec: r.Factory().NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchdog_errors_total",
				Help: "Total number of recovered errors by source and kind",
			},
			[]string{"source", "kind"},
		),
	}
}

// Inc increments the counter for source and code.
func (e *ErrorCounter) Inc(source string, code errors.ErrorCode) {
	if e == nil {
		return
	}
	e.vec.WithLabelValues(source, errors.Label(code)).Inc()
}

// Record classifies err, counts it and logs it. It is a no-op for nil errors.
func (e *ErrorCounter) Record(source string, err error, attrs ...any) {
	if err == nil {
		return
	}
	code := errors.Classify(err)
	e.Inc(source, code)
	slog.Warn("recovered error",
		append([]any{"source", source, "kind", errors.Label(code), "error", err}, attrs...)...)
}

// With returns the underlying counter for source and code.
func (e *ErrorCounter) With(source string, code errors.ErrorCode) prometheus.Counter {
	return e.vec.WithLabelValues(source, errors.Label(code))
}

// NewFetchResultCounter registers watchdog_fetch_results_total on r.
func NewFetchResultCounter(r *Registry) *prometheus.CounterVec {
	r.reserve("watchdog_fetch_results_total")
	return r.Factory().NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchdog_fetch_results_total",
			Help: "Single-flight fetch results by fetcher and result (fresh, cached, unavailable)",
		},
		[]string{"fetcher", "result"},
	)
}
