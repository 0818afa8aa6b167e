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

package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/cluster-watchdog/pkg/collector/gpu"
	"github.com/NVIDIA/cluster-watchdog/pkg/errors"
	"github.com/NVIDIA/cluster-watchdog/pkg/metrics"
)

const statsJSON = `{
  "cpu_stats": {"cpu_usage": {"total_usage": 400}, "system_cpu_usage": 2000, "online_cpus": 4},
  "precpu_stats": {"cpu_usage": {"total_usage": 200}, "system_cpu_usage": 1000},
  "memory_stats": {"usage": 1000, "limit": 1600, "stats": {"inactive_file": 200}},
  "networks": {"eth0": {"rx_bytes": 10, "tx_bytes": 20}, "eth1": {"rx_bytes": 5, "tx_bytes": 5}},
  "blkio_stats": {"io_service_bytes_recursive": [
    {"major": 8, "minor": 0, "op": "Read", "value": 100},
    {"major": 8, "minor": 0, "op": "Write", "value": 50},
    {"major": 8, "minor": 16, "op": "read", "value": 1},
    {"major": 8, "minor": 0, "op": "Total", "value": 151}
  ]}
}`

type fakeAPI struct {
	list    []container.Summary
	listErr error
	stats   map[string]string
	inspect map[string]container.InspectResponse
}

func (f *fakeAPI) ContainerList(context.Context, container.ListOptions) ([]container.Summary, error) {
	return f.list, f.listErr
}

func (f *fakeAPI) ContainerStats(_ context.Context, id string, stream bool) (container.StatsResponseReader, error) {
	if stream {
		return container.StatsResponseReader{}, fmt.Errorf("unexpected stream request")
	}
	body, ok := f.stats[id]
	if !ok {
		return container.StatsResponseReader{}, fmt.Errorf("no such container: %s", id)
	}
	return container.StatsResponseReader{Body: io.NopCloser(strings.NewReader(body)), OSType: "linux"}, nil
}

func (f *fakeAPI) ContainerInspect(_ context.Context, id string) (container.InspectResponse, error) {
	ins, ok := f.inspect[id]
	if !ok {
		return container.InspectResponse{}, fmt.Errorf("no such container: %s", id)
	}
	return ins, nil
}

func inspectResponse(name, image string, labels map[string]string, env ...string) container.InspectResponse {
	return container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{Name: "/" + name},
		Config:            &container.Config{Image: image, Labels: labels, Env: env},
	}
}

func TestParseLabels(t *testing.T) {
	ids, rest := ParseLabels(map[string]string{
		"container_label_GPU_ID":        "0,1,",
		"container_label_PAI_USER_NAME": "alice",
	})
	assert.Equal(t, []string{"0", "1"}, ids)
	assert.Equal(t, map[string]string{"container_label_PAI_USER_NAME": "alice"}, rest)
}

func TestParseLabels_Variants(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"quoted", `"2","3"`, []string{"2", "3"}},
		{"spaces", " 4 , 5", []string{"4", "5"}},
		{"empty", "", nil},
		{"only commas", ",,", nil},
		{"uuid", "GPU-e511a7b2-f9d5-ba47-9b98-853732ca6c1b", []string{"GPU-e511a7b2-f9d5-ba47-9b98-853732ca6c1b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, rest := ParseLabels(map[string]string{GPULabel: tt.in})
			assert.Equal(t, tt.want, ids)
			assert.Empty(t, rest)
		})
	}
}

func TestProjection(t *testing.T) {
	assert.Equal(t, map[string]string{
		"container_label_GPU_ID":                           "0",
		"container_label_org_opencontainers_image_version": "1.0",
	}, projectLabels(map[string]string{"GPU_ID": "0", "org.opencontainers.image.version": "1.0"}))

	assert.Equal(t, map[string]string{
		"container_env_PAI_TASK_INDEX": "3",
		"container_env_PAI_JOB_NAME":   "a=b",
	}, projectEnv([]string{"PAI_TASK_INDEX=3", "PAI_JOB_NAME=a=b", "HOME=/root", "PAI_BROKEN"}, "PAI_"))
}

func TestComputeUsage(t *testing.T) {
	var s container.StatsResponse
	require.NoError(t, json.Unmarshal([]byte(statsJSON), &s))

	u := computeUsage(&s)
	assert.InDelta(t, 80, u.CPUPerc, 1e-9)
	assert.InDelta(t, 800, u.MemUsage, 0)
	assert.InDelta(t, 1600, u.MemLimit, 0)
	assert.InDelta(t, 50, u.MemPerc, 1e-9)
	assert.InDelta(t, 15, u.NetIn, 0)
	assert.InDelta(t, 25, u.NetOut, 0)
	assert.InDelta(t, 101, u.BlockIn, 0)
	assert.InDelta(t, 50, u.BlockOut, 0)
}

func TestComputeUsage_NoPreviousSample(t *testing.T) {
	s := container.StatsResponse{}
	s.CPUStats.CPUUsage.TotalUsage = 100
	s.CPUStats.CPUUsage.PercpuUsage = []uint64{50, 50}
	s.CPUStats.SystemUsage = 1000

	u := computeUsage(&s)
	assert.InDelta(t, 20, u.CPUPerc, 1e-9)
	assert.InDelta(t, 0, u.MemPerc, 0)
}

func newTestCollector(t *testing.T, api API) (*Collector, *metrics.Registry, *metrics.ErrorCounter) {
	t.Helper()
	reg := metrics.NewRegistry(metrics.WithRuntimeCollectors(false))
	errs := metrics.NewErrorCounter(reg)
	c, err := NewCollector(api, reg, errs,
		WithJobLabels([]string{"container_label_PAI_USER_NAME", "container_env_PAI_TASK_INDEX"}))
	require.NoError(t, err)
	return c, reg, errs
}

func TestCollectAndExport(t *testing.T) {
	api := &fakeAPI{
		list: []container.Summary{
			{ID: "job", Names: []string{"/job-1"}, Image: "sha256:0123"},
			{ID: "plain", Names: []string{"/plain"}, Image: "nginx"},
			{ID: "broken", Names: []string{"/broken"}},
		},
		stats: map[string]string{"job": statsJSON, "plain": statsJSON},
		inspect: map[string]container.InspectResponse{
			"job": inspectResponse("job-1", "nvcr.io/nvidia/pytorch:24.01-py3", map[string]string{
				"GPU_ID":                           "0,1,",
				"PAI_USER_NAME":                    "alice",
				"org.opencontainers.image.version": "2.3.0",
			}, "PAI_TASK_INDEX=0", "HOME=/root"),
			"plain": inspectResponse("plain", "nginx", nil),
		},
	}
	c, reg, errs := newTestCollector(t, api)

	containers, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, containers, 2)
	assert.Equal(t, "job-1", containers[0].Name)
	assert.Equal(t, "2.3.0", containers[0].ImageVersion)
	assert.Equal(t, map[string]string{"container_env_PAI_TASK_INDEX": "0"}, containers[0].Env)
	assert.InDelta(t, 1, testutil.ToFloat64(errs.With(source, errors.ErrCodeTransportFailure)), 0)

	inv := &gpu.Inventory{
		ByMinor: map[int]*gpu.Status{0: {Minor: 0, GPUUtil: 98, MemUtil: 50}},
		ByUUID:  map[string]*gpu.Status{},
	}
	cols := reg.NewCollections()
	c.Export(cols, containers, inv)

	job := []string{"job", "job-1", "alice", "0"}
	assert.Equal(t, []metrics.Point{{Labels: job, Value: 80}}, metrics.Find(cols, c.cpuFamily).Points())
	assert.Equal(t, []metrics.Point{{Labels: job, Value: 800}}, metrics.Find(cols, c.memUsageFamily).Points())
	assert.Equal(t, []metrics.Point{{Labels: job, Value: 101}}, metrics.Find(cols, c.blockInFamily).Points())
	assert.Equal(t, []metrics.Point{{Labels: append(job, "0"), Value: 98}}, metrics.Find(cols, c.gpuFamily).Points())
	assert.Equal(t, []metrics.Point{{Labels: append(job, "0"), Value: 50}}, metrics.Find(cols, c.gpuMemFamily).Points())
	assert.Equal(t, []metrics.Point{{
		Labels: []string{"job", "job-1", "nvcr.io/nvidia/pytorch:24.01-py3", "2.3.0"},
		Value:  1,
	}}, metrics.Find(cols, c.imageFamily).Points())

	// GPU 1 is not in the inventory
	assert.InDelta(t, 1, testutil.ToFloat64(errs.With(source, errors.ErrCodeUnrecognizedSchema)), 0)
}

func TestExport_WithoutInventory(t *testing.T) {
	c, reg, errs := newTestCollector(t, &fakeAPI{})
	cols := reg.NewCollections()

	c.Export(cols, []Container{{
		ID:     "abc",
		Name:   "worker",
		Image:  "busybox",
		Labels: map[string]string{GPULabel: "0", "container_label_PAI_USER_NAME": "bob"},
	}}, nil)

	assert.Equal(t, 1, metrics.Find(cols, c.cpuFamily).Len())
	assert.Equal(t, 0, metrics.Find(cols, c.gpuFamily).Len())
	assert.Equal(t, []metrics.Point{{
		Labels: []string{"abc", "worker", "docker.io/library/busybox:latest", "latest"},
		Value:  1,
	}}, metrics.Find(cols, c.imageFamily).Points())
	assert.InDelta(t, 0, testutil.ToFloat64(errs.With(source, errors.ErrCodeUnrecognizedSchema)), 0)
}

func TestCollect_ListFailure(t *testing.T) {
	c, _, _ := newTestCollector(t, &fakeAPI{listErr: fmt.Errorf("Cannot connect to the Docker daemon")})

	_, err := c.Collect(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeTransportFailure, errors.Classify(err))
}

func TestNewCollector_InvalidJobLabel(t *testing.T) {
	reg := metrics.NewRegistry(metrics.WithRuntimeCollectors(false))
	_, err := NewCollector(&fakeAPI{}, reg, metrics.NewErrorCounter(reg), WithJobLabels([]string{"not-valid"}))
	require.Error(t, err)
}

func TestImageHelpers(t *testing.T) {
	assert.Equal(t, "docker.io/library/nginx:latest", normalizeImage("nginx"))
	assert.Equal(t, "ghcr.io/org/app:v1", normalizeImage("ghcr.io/org/app:v1"))
	assert.Equal(t, "Not A Ref", normalizeImage("Not A Ref"))

	assert.Equal(t, "v1", imageVersion(Container{Image: "ghcr.io/org/app:v1"}))
	assert.Equal(t, "9", imageVersion(Container{Image: "ghcr.io/org/app:v1", ImageVersion: "9"}))
	assert.Equal(t, unknown, imageVersion(Container{Image: "::"}))
}
