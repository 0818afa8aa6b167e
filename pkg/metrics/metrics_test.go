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
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/cluster-watchdog/pkg/errors"
)

func TestDeclare(t *testing.T) {
	reg := NewRegistry(WithRuntimeCollectors(false))

	tests := []struct {
		name    string
		metric  string
		kind    Kind
		labels  []string
		wantErr bool
	}{
		{"gauge", "pai_node_count", KindGauge, []string{"name", "ready"}, false},
		{"counter", "restarts_total", KindCounter, nil, false},
		{"mixed case name", "container_CPUPerc", KindGauge, []string{"container_id"}, false},
		{"histogram rejected", "latency_seconds", KindHistogram, nil, true},
		{"bad name", "1bad", KindGauge, nil, true},
		{"bad label", "ok_name", KindGauge, []string{"bad-label"}, true},
		{"duplicate label", "dup_label", KindGauge, []string{"a", "a"}, true},
		{"duplicate family", "pai_node_count", KindGauge, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := reg.Declare(tt.metric, "help", tt.kind, tt.labels...)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.ErrCodeInvalidRequest, errors.Classify(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.metric, f.Name)
			assert.NotNil(t, f.Desc())
		})
	}

	names := make([]string, 0)
	for _, f := range reg.Families() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"pai_node_count", "restarts_total", "container_CPUPerc"}, names)
}

func TestCollectionAdd(t *testing.T) {
	reg := NewRegistry(WithRuntimeCollectors(false))
	f := reg.MustDeclare("pai_node_count", "count of pai node", KindGauge, "name", "ready")
	c := NewCollection(f)

	require.NoError(t, c.Add(1, "node-1", "true"))
	require.NoError(t, c.Add(1, "node-2", "false"))

	err := c.Add(1, "node-1", "true")
	require.Error(t, err, "duplicate label set must be rejected")

	err = c.Add(1, "node-3")
	require.Error(t, err, "label count mismatch must be rejected")

	assert.Equal(t, 2, c.Len())

	c.Freeze()
	require.Error(t, c.Add(1, "node-4", "true"))
	assert.Equal(t, 2, c.Len())
}

func TestCollectionPointsIsCopy(t *testing.T) {
	reg := NewRegistry(WithRuntimeCollectors(false))
	f := reg.MustDeclare("x", "x", KindGauge, "a")
	c := NewCollection(f)
	require.NoError(t, c.Add(3, "v"))

	pts := c.Points()
	pts[0].Labels[0] = "mutated"
	pts[0].Value = 99

	again := c.Points()
	assert.Equal(t, "v", again[0].Labels[0])
	assert.InDelta(t, 3, again[0].Value, 0)
}

func TestCollectionConcurrentAdd(t *testing.T) {
	reg := NewRegistry(WithRuntimeCollectors(false))
	f := reg.MustDeclare("k8s_component_count", "count of k8s component", KindGauge, "host_ip")
	c := NewCollection(f)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = c.Add(1, strings.Repeat("x", i+1))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, c.Len())
}

func TestNewCollectionsOrder(t *testing.T) {
	reg := NewRegistry(WithRuntimeCollectors(false))
	a := reg.MustDeclare("a_count", "a", KindGauge)
	b := reg.MustDeclare("b_count", "b", KindCounter)

	cols := reg.NewCollections()
	require.Len(t, cols, 2)
	assert.Same(t, a, cols[0].Family())
	assert.Same(t, b, cols[1].Family())
	assert.Same(t, cols[1], Find(cols, b))
	assert.Nil(t, Find(cols, &Family{}))

	// each call yields fresh, empty collections
	require.NoError(t, cols[0].Add(1))
	assert.Equal(t, 0, reg.NewCollections()[0].Len())
}

func TestCollectionCollect(t *testing.T) {
	reg := NewRegistry(WithRuntimeCollectors(false))
	f := reg.MustDeclare("docker_daemon_count", "count of docker daemon", KindGauge, "host_ip", "error")
	c := NewCollection(f)
	require.NoError(t, c.Add(1, "10.0.0.1", "ok"))
	require.NoError(t, c.Add(1, "10.0.0.2", "inactive"))

	ch := make(chan prometheus.Metric, 4)
	c.Collect(ch)
	close(ch)

	n := 0
	for range ch {
		n++
	}
	assert.Equal(t, 2, n)
}

func TestErrorCounter(t *testing.T) {
	reg := NewRegistry(WithRuntimeCollectors(false))
	ec := NewErrorCounter(reg)

	ec.Inc("nodes", errors.ErrCodeParseFailure)
	ec.Inc("nodes", errors.ErrCodeParseFailure)
	ec.Record("ssh", errors.New(errors.ErrCodeTimeout, "dial"))
	ec.Record("ssh", nil)

	assert.InDelta(t, 2, testutil.ToFloat64(ec.With("nodes", errors.ErrCodeParseFailure)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(ec.With("ssh", errors.ErrCodeTimeout)), 0)

	var nilCounter *ErrorCounter
	assert.NotPanics(t, func() { nilCounter.Inc("x", errors.ErrCodeInternal) })
}

func TestHistogramRegistered(t *testing.T) {
	reg := NewRegistry(WithRuntimeCollectors(false))
	h := reg.Histogram("ssh_resp_latency_seconds", "Response latency for ssh (seconds)", LatencyBuckets)
	h.Observe(0.2)

	n, err := testutil.GatherAndCount(reg.Gatherer(), "ssh_resp_latency_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Panics(t, func() { reg.Histogram("ssh_resp_latency_seconds", "dup", nil) })
}
