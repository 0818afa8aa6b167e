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

package snapshot

import (
	"slices"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/NVIDIA/cluster-watchdog/pkg/metrics"
)

// Snapshot is the immutable result of one collection iteration.
type Snapshot struct {
	Iteration uint64
	CreatedAt time.Time

	collections []*metrics.Collection
}

// New freezes cols and wraps them in a Snapshot.
func New(iteration uint64, createdAt time.Time, cols []*metrics.Collection) *Snapshot {
	for _, c := range cols {
		c.Freeze()
	}
	return &Snapshot{
		Iteration:   iteration,
		CreatedAt:   createdAt,
		collections: slices.Clone(cols),
	}
}

// Collections returns the frozen collections in declaration order.
func (s *Snapshot) Collections() []*metrics.Collection {
	return slices.Clone(s.collections)
}

// Collection returns the collection for family f, or nil.
func (s *Snapshot) Collection(f *metrics.Family) *metrics.Collection {
	return metrics.Find(s.collections, f)
}

// Points returns the number of points across all collections.
func (s *Snapshot) Points() int {
	n := 0
	for _, c := range s.collections {
		n += c.Len()
	}
	return n
}

// Ref is the exchange cell between the single producer and any number of readers.
// The zero value holds no snapshot.
type Ref struct {
	p atomic.Pointer[Snapshot]
}

// Publish installs s and returns the snapshot it replaced, nil on first publish.
func (r *Ref) Publish(s *Snapshot) *Snapshot {
	return r.p.Swap(s)
}

// Load returns the current snapshot, false when nothing was published yet.
func (r *Ref) Load() (*Snapshot, bool) {
	s := r.p.Load()
	return s, s != nil
}

// Exporter renders the current snapshot of a Ref on every scrape.
// It is an unchecked collector since label values are only known at collect time.
type Exporter struct {
	ref *Ref
}

// NewExporter returns a collector reading from ref.
func NewExporter(ref *Ref) *Exporter {
	return &Exporter{ref: ref}
}

// Describe sends nothing, which marks the collector unchecked.
func (e *Exporter) Describe(chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	s, ok := e.ref.Load()
	if !ok {
		return
	}
	for _, c := range s.collections {
		c.Collect(ch)
	}
}
