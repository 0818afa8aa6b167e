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

package gpu

import (
	"bytes"
	"context"
	stderrors "errors"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/NVIDIA/cluster-watchdog/pkg/defaults"
	"github.com/NVIDIA/cluster-watchdog/pkg/errors"
	"github.com/NVIDIA/cluster-watchdog/pkg/fetcher"
	"github.com/NVIDIA/cluster-watchdog/pkg/metrics"
)

const (
	nvidiaSMICommand = "nvidia-smi"
	source           = "gpu"
)

var errNotInstalled = stderrors.New("nvidia-smi not installed")

// runner executes a command and returns its stdout.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, errNotInstalled
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, errors.WrapWithContext(errors.ErrCodeTransportFailure, "nvidia-smi failed", err,
			map[string]any{"stderr": strings.TrimSpace(stderr.String())})
	}
	return out, nil
}

// Collector queries nvidia-smi through a single-flight fetcher.
type Collector struct {
	path      string
	timeout   time.Duration
	supported []string
	run       runner
	errs      *metrics.ErrorCounter
	fetcher   *fetcher.Fetcher[*Inventory]

	attachedFamily *metrics.Family
	gpuUtilFamily  *metrics.Family
	memUtilFamily  *metrics.Family
	memUsedFamily  *metrics.Family
	memTotalFamily *metrics.Family
	eccFamily      *metrics.Family
}

// Option configures a Collector.
type Option func(*Collector)

// WithPath sets the nvidia-smi binary name or path.
func WithPath(path string) Option {
	return func(c *Collector) {
		c.path = path
	}
}

// WithTimeout bounds a single nvidia-smi invocation.
func WithTimeout(d time.Duration) Option {
	return func(c *Collector) {
		c.timeout = d
	}
}

// WithSupportedArchitectures sets the architectures whose devices are exported.
func WithSupportedArchitectures(archs []string) Option {
	return func(c *Collector) {
		c.supported = archs
	}
}

// NewCollector declares the nvidiasmi_* families on reg. Fetcher options
// control the wait timeout and staleness of the wrapped query.
func NewCollector(reg *metrics.Registry, errs *metrics.ErrorCounter, fopts []fetcher.Option, opts ...Option) *Collector {
	c := &Collector{
		path:      nvidiaSMICommand,
		timeout:   defaults.NvidiaSMITimeout,
		supported: defaults.SupportedArchitectures,
		run:       execRunner,
		errs:      errs,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.fetcher = fetcher.New(nvidiaSMICommand, c.Query, fopts...)

	c.attachedFamily = reg.MustDeclare("nvidiasmi_attached_gpus", "number of gpus attached to the node", metrics.KindGauge)
	c.gpuUtilFamily = reg.MustDeclare("nvidiasmi_utilization_gpu", "gpu utilization in percent", metrics.KindGauge, "minor_number")
	c.memUtilFamily = reg.MustDeclare("nvidiasmi_utilization_memory", "gpu memory utilization in percent", metrics.KindGauge, "minor_number")
	c.memUsedFamily = reg.MustDeclare("nvidiasmi_memory_used_mib", "used framebuffer memory in MiB", metrics.KindGauge, "minor_number")
	c.memTotalFamily = reg.MustDeclare("nvidiasmi_memory_total_mib", "total framebuffer memory in MiB", metrics.KindGauge, "minor_number")
	c.eccFamily = reg.MustDeclare("nvidiasmi_ecc_errors", "volatile ecc error count", metrics.KindGauge, "minor_number", "type")

	return c
}

// Fetcher exposes the wrapped fetcher.
func (c *Collector) Fetcher() *fetcher.Fetcher[*Inventory] {
	return c.fetcher
}

// Query runs nvidia-smi once and parses its report. A missing binary yields
// an empty inventory. Devices that fail conversion are counted here, once
// per invocation.
func (c *Collector) Query(ctx context.Context) (*Inventory, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := c.run(ctx, c.path, "-q", "-x")
	if err != nil {
		if stderrors.Is(err, errNotInstalled) {
			slog.Warn("nvidia-smi not found, reporting no GPUs", "path", c.path)
			return newInventory(), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Wrap(errors.ErrCodeTimeout, "nvidia-smi did not finish", ctxErr)
		}
		return nil, err
	}

	inv, err := Parse(out, c.supported)
	if err != nil {
		return nil, err
	}
	for _, ie := range inv.Invalid {
		c.errs.Record(source, ie, "item", ie.Index)
	}

	slog.Debug("nvidia-smi queried",
		"attached", inv.Attached,
		"supported", len(inv.ByMinor),
		"unsupported", inv.Unsupported,
		"duration", time.Since(start))
	return inv, nil
}

// Collect obtains the current inventory through the fetcher and fills the
// nvidiasmi_* collections. It returns nil when no inventory is available.
func (c *Collector) Collect(ctx context.Context, cols []*metrics.Collection) *Inventory {
	inv, err := c.fetcher.TryGet(ctx)
	if err != nil {
		c.errs.Record(source, err)
		return nil
	}

	c.add(cols, c.attachedFamily, float64(inv.Attached))
	for _, minor := range inv.Minors() {
		s := inv.ByMinor[minor]
		m := strconv.Itoa(minor)
		c.add(cols, c.gpuUtilFamily, s.GPUUtil, m)
		c.add(cols, c.memUtilFamily, s.MemUtil, m)
		c.add(cols, c.memUsedFamily, s.MemUsedMiB, m)
		c.add(cols, c.memTotalFamily, s.MemTotalMiB, m)
		if s.ECC != nil {
			c.add(cols, c.eccFamily, s.ECC.VolatileSingle, m, "volatile_single")
			c.add(cols, c.eccFamily, s.ECC.VolatileDouble, m, "volatile_double")
		}
	}
	return inv
}

func (c *Collector) add(cols []*metrics.Collection, f *metrics.Family, v float64, labels ...string) {
	if err := metrics.MustFind(cols, f).Add(v, labels...); err != nil {
		c.errs.Record(source, err, "family", f.Name)
	}
}
