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
	"strconv"
	"strings"
	"time"

	"github.com/distribution/reference"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	ociv1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/NVIDIA/cluster-watchdog/pkg/collector/gpu"
	"github.com/NVIDIA/cluster-watchdog/pkg/defaults"
	"github.com/NVIDIA/cluster-watchdog/pkg/errors"
	"github.com/NVIDIA/cluster-watchdog/pkg/metrics"
	"github.com/NVIDIA/cluster-watchdog/pkg/probe"
)

const (
	source  = "docker"
	unknown = "unknown"
)

// API is the subset of the Docker client the collector uses.
type API interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerStats(ctx context.Context, containerID string, stream bool) (container.StatsResponseReader, error)
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
}

// NewClient connects to the daemon configured by the DOCKER_* environment.
func NewClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "failed to create docker client", err)
	}
	return cli, nil
}

// Container is one running container with its resource usage.
type Container struct {
	ID       string
	Name     string
	Image    string
	CPUPerc  float64
	MemUsage float64
	MemLimit float64
	MemPerc  float64
	NetIn    float64
	NetOut   float64
	BlockIn  float64
	BlockOut float64
	// Labels and Env hold projected metric label names.
	Labels map[string]string
	Env    map[string]string
	// ImageVersion comes from the org.opencontainers.image.version label.
	ImageVersion string
}

// Collector reads container stats from the runtime.
type Collector struct {
	api        API
	errs       *metrics.ErrorCounter
	jobLabels  []string
	envPrefix  string
	timeout    time.Duration
	probeLimit int

	cpuFamily      *metrics.Family
	memUsageFamily *metrics.Family
	memLimitFamily *metrics.Family
	memPercFamily  *metrics.Family
	netInFamily    *metrics.Family
	netOutFamily   *metrics.Family
	blockInFamily  *metrics.Family
	blockOutFamily *metrics.Family
	gpuFamily      *metrics.Family
	gpuMemFamily   *metrics.Family
	imageFamily    *metrics.Family

	listLatency prometheus.Histogram
}

// Option configures a Collector.
type Option func(*Collector)

// WithJobLabels sets the projected label names exported on job metrics.
func WithJobLabels(keys []string) Option {
	return func(c *Collector) {
		c.jobLabels = keys
	}
}

// WithEnvPrefix sets the prefix of environment variables that are projected.
func WithEnvPrefix(prefix string) Option {
	return func(c *Collector) {
		c.envPrefix = prefix
	}
}

// WithTimeout bounds the list call and each per-container probe.
func WithTimeout(d time.Duration) Option {
	return func(c *Collector) {
		c.timeout = d
	}
}

// WithProbeLimit bounds concurrent per-container probes, 0 means no limit.
func WithProbeLimit(n int) Option {
	return func(c *Collector) {
		c.probeLimit = n
	}
}

// NewCollector declares the container_* families. It fails when a job label
// is not a valid metric label name.
func NewCollector(api API, reg *metrics.Registry, errs *metrics.ErrorCounter, opts ...Option) (*Collector, error) {
	c := &Collector{
		api:       api,
		errs:      errs,
		envPrefix: defaults.EnvPrefix,
		timeout:   defaults.DockerTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	base := append([]string{"container_id", "container_name"}, c.jobLabels...)
	withMinor := append(append([]string{}, base...), "minor_number")

	declare := []struct {
		dst    **metrics.Family
		name   string
		help   string
		labels []string
	}{
		{&c.cpuFamily, "container_CPUPerc", "container cpu usage in percent", base},
		{&c.memUsageFamily, "container_MemUsage", "container memory usage in bytes", base},
		{&c.memLimitFamily, "container_MemLimit", "container memory limit in bytes", base},
		{&c.memPercFamily, "container_MemPerc", "container memory usage in percent of the limit", base},
		{&c.netInFamily, "container_NetIn", "container network bytes received", base},
		{&c.netOutFamily, "container_NetOut", "container network bytes sent", base},
		{&c.blockInFamily, "container_BlockIn", "container block device bytes read", base},
		{&c.blockOutFamily, "container_BlockOut", "container block device bytes written", base},
		{&c.gpuFamily, "container_GPUPerc", "utilization of gpus assigned to the container", withMinor},
		{&c.gpuMemFamily, "container_GPUMemPerc", "memory utilization of gpus assigned to the container", withMinor},
		{&c.imageFamily, "container_image_info", "image of the container", []string{"container_id", "container_name", "image", "version"}},
	}
	for _, d := range declare {
		f, err := reg.Declare(d.name, d.help, metrics.KindGauge, d.labels...)
		if err != nil {
			return nil, err
		}
		*d.dst = f
	}

	c.listLatency = reg.Histogram("docker_list_latency_seconds",
		"Response latency for listing containers from the runtime (seconds)", metrics.LatencyBuckets)

	return c, nil
}

// Collect lists running containers and reads stats and inspect data for
// each. Per-container failures are counted and the container is skipped.
func (c *Collector) Collect(ctx context.Context) ([]Container, error) {
	list := probe.Probe[[]container.Summary]{
		Name:    "docker_list",
		Target:  "local",
		Timeout: c.timeout,
		Latency: c.listLatency,
		Run: func(ctx context.Context) ([]container.Summary, error) {
			return c.api.ContainerList(ctx, container.ListOptions{})
		},
	}
	out := list.Execute(ctx)
	if !out.Ok() {
		return nil, out.Err
	}

	probes := make([]probe.Probe[Container], 0, len(out.Record))
	for _, s := range out.Record {
		probes = append(probes, c.containerProbe(s))
	}

	containers := make([]Container, 0, len(probes))
	for _, o := range probe.RunAll(ctx, probes, c.probeLimit) {
		if !o.Ok() {
			c.errs.Record(source, o.Err, "container", o.Target)
			continue
		}
		containers = append(containers, o.Record)
	}
	return containers, nil
}

func (c *Collector) containerProbe(s container.Summary) probe.Probe[Container] {
	return probe.Probe[Container]{
		Name:    "docker_container",
		Target:  s.ID,
		Timeout: c.timeout,
		Run: func(ctx context.Context) (Container, error) {
			return c.inspect(ctx, s)
		},
	}
}

func (c *Collector) inspect(ctx context.Context, s container.Summary) (Container, error) {
	stats, err := c.api.ContainerStats(ctx, s.ID, false)
	if err != nil {
		return Container{}, fmt.Errorf("stats of %s: %w", s.ID, err)
	}
	defer stats.Body.Close()

	var sr container.StatsResponse
	if err := json.NewDecoder(io.LimitReader(stats.Body, 1<<20)).Decode(&sr); err != nil {
		return Container{}, errors.Wrap(errors.ErrCodeParseFailure, "undecodable stats response", err)
	}

	ins, err := c.api.ContainerInspect(ctx, s.ID)
	if err != nil {
		return Container{}, fmt.Errorf("inspect of %s: %w", s.ID, err)
	}

	u := computeUsage(&sr)
	ct := Container{
		ID:       s.ID,
		Name:     containerName(s, ins),
		Image:    s.Image,
		CPUPerc:  u.CPUPerc,
		MemUsage: u.MemUsage,
		MemLimit: u.MemLimit,
		MemPerc:  u.MemPerc,
		NetIn:    u.NetIn,
		NetOut:   u.NetOut,
		BlockIn:  u.BlockIn,
		BlockOut: u.BlockOut,
		Labels:   map[string]string{},
		Env:      map[string]string{},
	}
	if ins.Config != nil {
		if ins.Config.Image != "" {
			ct.Image = ins.Config.Image
		}
		ct.Labels = projectLabels(ins.Config.Labels)
		ct.Env = projectEnv(ins.Config.Env, c.envPrefix)
		ct.ImageVersion = ins.Config.Labels[ociv1.AnnotationVersion]
	}
	return ct, nil
}

func containerName(s container.Summary, ins container.InspectResponse) string {
	if ins.ContainerJSONBase != nil && ins.Name != "" {
		return strings.TrimPrefix(ins.Name, "/")
	}
	if len(s.Names) > 0 {
		return strings.TrimPrefix(s.Names[0], "/")
	}
	if len(s.ID) > 12 {
		return s.ID[:12]
	}
	return s.ID
}

// Export adds the job families for containers that carry labels. GPU
// metrics are joined from inv when it is available.
func (c *Collector) Export(cols []*metrics.Collection, containers []Container, inv *gpu.Inventory) {
	for _, ct := range containers {
		if len(ct.Labels) == 0 {
			continue
		}

		gpuIDs, rest := ParseLabels(ct.Labels)
		for k, v := range ct.Env {
			rest[k] = v
		}

		values := []string{ct.ID, ct.Name}
		for _, k := range c.jobLabels {
			values = append(values, rest[k])
		}

		c.add(cols, c.cpuFamily, ct.CPUPerc, values...)
		c.add(cols, c.memUsageFamily, ct.MemUsage, values...)
		c.add(cols, c.memLimitFamily, ct.MemLimit, values...)
		c.add(cols, c.memPercFamily, ct.MemPerc, values...)
		c.add(cols, c.netInFamily, ct.NetIn, values...)
		c.add(cols, c.netOutFamily, ct.NetOut, values...)
		c.add(cols, c.blockInFamily, ct.BlockIn, values...)
		c.add(cols, c.blockOutFamily, ct.BlockOut, values...)
		c.add(cols, c.imageFamily, 1, ct.ID, ct.Name, normalizeImage(ct.Image), imageVersion(ct))

		if inv == nil {
			continue
		}
		for _, id := range gpuIDs {
			s := lookupGPU(inv, id)
			if s == nil {
				c.errs.Record(source, errors.NewWithContext(errors.ErrCodeUnrecognizedSchema, "container refers to unknown gpu",
					map[string]any{"container": ct.Name, "gpu": id}))
				continue
			}
			withMinor := append(append([]string{}, values...), strconv.Itoa(s.Minor))
			c.add(cols, c.gpuFamily, s.GPUUtil, withMinor...)
			c.add(cols, c.gpuMemFamily, s.MemUtil, withMinor...)
		}
	}
}

func (c *Collector) add(cols []*metrics.Collection, f *metrics.Family, v float64, labels ...string) {
	if err := metrics.MustFind(cols, f).Add(v, labels...); err != nil {
		c.errs.Record(source, err, "family", f.Name)
	}
}

// lookupGPU accepts a UUID or a minor number.
func lookupGPU(inv *gpu.Inventory, id string) *gpu.Status {
	if s, ok := inv.ByUUID[id]; ok {
		return s
	}
	minor, err := strconv.Atoi(id)
	if err != nil {
		return nil
	}
	return inv.ByMinor[minor]
}

// normalizeImage expands short names, e.g. "nginx" to "docker.io/library/nginx:latest".
// Image IDs and unparsable names are returned as is.
func normalizeImage(image string) string {
	named, err := reference.ParseNormalizedNamed(image)
	if err != nil {
		return image
	}
	return reference.TagNameOnly(named).String()
}

func imageVersion(ct Container) string {
	if ct.ImageVersion != "" {
		return ct.ImageVersion
	}
	named, err := reference.ParseNormalizedNamed(ct.Image)
	if err != nil {
		return unknown
	}
	if tagged, ok := reference.TagNameOnly(named).(reference.Tagged); ok {
		return tagged.Tag()
	}
	return unknown
}
