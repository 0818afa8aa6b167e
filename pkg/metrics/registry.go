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
	"fmt"
	"regexp"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/NVIDIA/cluster-watchdog/pkg/errors"
)

var (
	metricNameRE = regexp.MustCompile(`^[a-zA-Z_:][a-zA-Z0-9_:]*$`)
	labelNameRE  = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// Registry owns every metric family of the process. It wraps a dedicated
// prometheus.Registry so nothing leaks into the global default registry.
type Registry struct {
	prom    *prometheus.Registry
	factory promauto.Factory

	mu       sync.RWMutex
	families []*Family
	names    map[string]struct{}
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	runtime bool
}

// WithRuntimeCollectors toggles the go and process collectors. Enabled by default.
func WithRuntimeCollectors(enabled bool) RegistryOption {
	return func(o *registryOptions) {
		o.runtime = enabled
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	o := registryOptions{runtime: true}
	for _, opt := range opts {
		opt(&o)
	}

	prom := prometheus.NewRegistry()
	if o.runtime {
		prom.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return &Registry{
		prom:    prom,
		factory: promauto.With(prom),
		names:   make(map[string]struct{}),
	}
}

// Declare adds a snapshot family. Only gauge and counter families can be
// carried by snapshots; histograms are live instruments, see Histogram.
func (r *Registry) Declare(name, help string, kind Kind, labels ...string) (*Family, error) {
	if kind != KindGauge && kind != KindCounter {
		return nil, errors.New(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("family %s: kind %s cannot be carried by a snapshot", name, kind))
	}
	if err := validateNames(name, labels); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.names[name]; ok {
		return nil, errors.New(errors.ErrCodeInvalidRequest, fmt.Sprintf("family %s already declared", name))
	}

	f := &Family{
		Name:   name,
		Help:   help,
		Kind:   kind,
		Labels: slices.Clone(labels),
		desc:   prometheus.NewDesc(name, help, labels, nil),
	}
	r.names[name] = struct{}{}
	r.families = append(r.families, f)
	return f, nil
}

// MustDeclare is like Declare but panics on error. Intended for startup wiring.
func (r *Registry) MustDeclare(name, help string, kind Kind, labels ...string) *Family {
	f, err := r.Declare(name, help, kind, labels...)
	if err != nil {
		panic(err)
	}
	return f
}

// Histogram creates and registers a live latency histogram.
func (r *Registry) Histogram(name, help string, buckets []float64) prometheus.Histogram {
	r.reserve(name)
	if buckets == nil {
		buckets = prometheus.DefBuckets
	}
	return r.factory.NewHistogram(prometheus.HistogramOpts{
		Name:    name,
		Help:    help,
		Buckets: buckets,
	})
}

func (r *Registry) reserve(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[name]; ok {
		panic(fmt.Sprintf("metric %s already declared", name))
	}
	r.names[name] = struct{}{}
}

// Factory returns a promauto factory bound to this registry.
func (r *Registry) Factory() promauto.Factory {
	return r.factory
}

// Register adds a custom collector such as the snapshot exporter.
func (r *Registry) Register(c prometheus.Collector) error {
	return r.prom.Register(c)
}

// Gatherer returns the gatherer used by the exposition endpoint.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.prom
}

// Families returns the declared snapshot families in declaration order.
func (r *Registry) Families() []*Family {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.families)
}

// NewCollections returns one empty collection per declared family, in
// declaration order.
func (r *Registry) NewCollections() []*Collection {
	fams := r.Families()
	cols := make([]*Collection, len(fams))
	for i, f := range fams {
		cols[i] = NewCollection(f)
	}
	return cols
}

func validateNames(name string, labels []string) error {
	if !metricNameRE.MatchString(name) {
		return errors.New(errors.ErrCodeInvalidRequest, fmt.Sprintf("invalid metric name %q", name))
	}
	seen := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		if !labelNameRE.MatchString(l) {
			return errors.New(errors.ErrCodeInvalidRequest, fmt.Sprintf("family %s: invalid label name %q", name, l))
		}
		if _, dup := seen[l]; dup {
			return errors.New(errors.ErrCodeInvalidRequest, fmt.Sprintf("family %s: duplicate label %q", name, l))
		}
		seen[l] = struct{}{}
	}
	return nil
}
