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
	"slices"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/NVIDIA/cluster-watchdog/pkg/errors"
)

// Kind is the metric kind of a Family.
type Kind string

const (
	KindGauge     Kind = "gauge"
	KindCounter   Kind = "counter"
	KindHistogram Kind = "histogram"
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	return string(k)
}

func (k Kind) valueType() prometheus.ValueType {
	if k == KindCounter {
		return prometheus.CounterValue
	}
	return prometheus.GaugeValue
}

// Family describes one metric family: its name, help text, kind and the
// ordered label keys every point must supply.
type Family struct {
	Name   string
	Help   string
	Kind   Kind
	Labels []string

	desc *prometheus.Desc
}

// Desc returns the prometheus descriptor for the family.
func (f *Family) Desc() *prometheus.Desc {
	return f.desc
}

// Point is one sample. Labels holds values ordered by Family.Labels.
type Point struct {
	Labels []string
	Value  float64
}

// Collection holds the points gathered for one family during one iteration.
// It is safe for concurrent Add calls until frozen.
type Collection struct {
	family *Family

	mu     sync.Mutex
	points []Point
	seen   map[string]struct{}
	frozen bool
}

// NewCollection returns an empty collection for the family.
func NewCollection(f *Family) *Collection {
	return &Collection{
		family: f,
		seen:   make(map[string]struct{}),
	}
}

// Family returns the family the collection belongs to.
func (c *Collection) Family() *Family {
	return c.family
}

// Add appends a point. It fails when the label value count does not match
// the family, when the same label set was already added, or after Freeze.
func (c *Collection) Add(value float64, labelValues ...string) error {
	if len(labelValues) != len(c.family.Labels) {
		return errors.NewWithContext(errors.ErrCodeInvalidRequest, "label value count mismatch", map[string]any{
			"family":   c.family.Name,
			"expected": len(c.family.Labels),
			"got":      len(labelValues),
		})
	}

	key := strings.Join(labelValues, "\xff")

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return errors.New(errors.ErrCodeInternal, fmt.Sprintf("collection %s is frozen", c.family.Name))
	}
	if _, dup := c.seen[key]; dup {
		return errors.NewWithContext(errors.ErrCodeInvalidRequest, "duplicate label set", map[string]any{
			"family": c.family.Name,
			"labels": labelValues,
		})
	}

	c.seen[key] = struct{}{}
	c.points = append(c.points, Point{Labels: slices.Clone(labelValues), Value: value})
	return nil
}

// Freeze makes the collection read-only.
func (c *Collection) Freeze() {
	c.mu.Lock()
	c.frozen = true
	c.seen = nil
	c.mu.Unlock()
}

// Len returns the number of points.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.points)
}

// Points returns a copy of the points in insertion order.
func (c *Collection) Points() []Point {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Point, len(c.points))
	for i, p := range c.points {
		out[i] = Point{Labels: slices.Clone(p.Labels), Value: p.Value}
	}
	return out
}

// Collect sends every point as a const metric. Points that prometheus
// rejects are sent as invalid metrics so the scrape reports them.
func (c *Collection) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	vt := c.family.Kind.valueType()
	for _, p := range c.points {
		m, err := prometheus.NewConstMetric(c.family.desc, vt, p.Value, p.Labels...)
		if err != nil {
			ch <- prometheus.NewInvalidMetric(c.family.desc, err)
			continue
		}
		ch <- m
	}
}

// Find returns the collection for family f, or nil.
func Find(cols []*Collection, f *Family) *Collection {
	for _, c := range cols {
		if c.family == f {
			return c
		}
	}
	return nil
}

// MustFind is like Find but panics when f has no collection in cols,
// which means f was declared on another registry.
func MustFind(cols []*Collection, f *Family) *Collection {
	c := Find(cols, f)
	if c == nil {
		panic(fmt.Sprintf("no collection for family %s", f.Name))
	}
	return c
}
