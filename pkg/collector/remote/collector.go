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

package remote

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/NVIDIA/cluster-watchdog/pkg/config"
	"github.com/NVIDIA/cluster-watchdog/pkg/defaults"
	"github.com/NVIDIA/cluster-watchdog/pkg/errors"
	"github.com/NVIDIA/cluster-watchdog/pkg/metrics"
	"github.com/NVIDIA/cluster-watchdog/pkg/probe"
)

const (
	source = "docker_daemon"

	// DefaultUnit is the unit checked on every host.
	DefaultUnit = "docker.service"

	stateActive = "active"
)

// Collector checks the daemon unit on every roster host.
type Collector struct {
	hosts      []config.Host
	exec       Executor
	local      UnitStater
	errs       *metrics.ErrorCounter
	unit       string
	timeout    time.Duration
	probeLimit int

	breakerFailures uint32
	breakerTimeout  time.Duration
	breakers        map[string]*gobreaker.CircuitBreaker[string]

	family  *metrics.Family
	latency prometheus.Histogram
}

// Option configures a Collector.
type Option func(*Collector)

// WithUnit sets the systemd unit to check.
func WithUnit(unit string) Option {
	return func(c *Collector) {
		c.unit = unit
	}
}

// WithTimeout bounds one host check including connection setup.
func WithTimeout(d time.Duration) Option {
	return func(c *Collector) {
		c.timeout = d
	}
}

// WithLocalStater replaces the D-Bus client used for local hosts.
func WithLocalStater(s UnitStater) Option {
	return func(c *Collector) {
		c.local = s
	}
}

// WithBreaker sets the consecutive failures that open a host's breaker and
// how long it stays open.
func WithBreaker(failures uint32, open time.Duration) Option {
	return func(c *Collector) {
		c.breakerFailures = failures
		c.breakerTimeout = open
	}
}

// WithProbeLimit bounds concurrent host checks, 0 means no limit.
func WithProbeLimit(n int) Option {
	return func(c *Collector) {
		c.probeLimit = n
	}
}

// NewCollector declares docker_daemon_count and ssh_resp_latency_seconds.
func NewCollector(hosts []config.Host, exec Executor, reg *metrics.Registry, errs *metrics.ErrorCounter, opts ...Option) *Collector {
	c := &Collector{
		hosts:           hosts,
		exec:            exec,
		local:           SystemdStater{},
		errs:            errs,
		unit:            DefaultUnit,
		timeout:         defaults.SSHTimeout,
		breakerFailures: defaults.BreakerFailures,
		breakerTimeout:  defaults.BreakerOpenTimeout,
		breakers:        make(map[string]*gobreaker.CircuitBreaker[string], len(hosts)),
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, h := range hosts {
		if _, ok := c.breakers[h.HostIP]; ok {
			continue
		}
		c.breakers[h.HostIP] = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
			Name:    h.HostIP,
			Timeout: c.breakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= c.breakerFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Info("host breaker state changed", "host", name, "from", from.String(), "to", to.String())
			},
		})
	}

	c.family = reg.MustDeclare("docker_daemon_count", "count of docker daemon", metrics.KindGauge, "host_ip", "error")
	c.latency = reg.Histogram("ssh_resp_latency_seconds", "Response latency for ssh (seconds)", metrics.LatencyBuckets)
	return c
}

// Collect checks every host in parallel and adds one point per host.
func (c *Collector) Collect(ctx context.Context, cols []*metrics.Collection) {
	probes := make([]probe.Probe[string], 0, len(c.hosts))
	for _, h := range c.hosts {
		probes = append(probes, c.hostProbe(h))
	}

	col := metrics.MustFind(cols, c.family)
	for _, o := range probe.RunAll(ctx, probes, c.probeLimit) {
		label := "ok"
		switch {
		case !o.Ok():
			label = errors.Label(o.Code)
			c.errs.Record(source, o.Err, "host", o.Target)
		case o.Record != stateActive:
			label = "inactive"
		}
		if err := col.Add(1, o.Target, label); err != nil {
			c.errs.Record(source, err, "host", o.Target)
		}
	}
}

func (c *Collector) hostProbe(h config.Host) probe.Probe[string] {
	p := probe.Probe[string]{
		Name:    source,
		Target:  h.HostIP,
		Timeout: c.timeout,
		Run: func(ctx context.Context) (string, error) {
			state, err := c.breakers[h.HostIP].Execute(func() (string, error) {
				return c.state(ctx, h)
			})
			if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
				return "", errors.Wrap(errors.ErrCodeUnavailable, "host breaker open", err)
			}
			return state, err
		},
	}
	if !h.Local {
		p.Latency = c.latency
	}
	return p
}

// state returns the unit's ActiveState, e.g. active or inactive.
func (c *Collector) state(ctx context.Context, h config.Host) (string, error) {
	if h.Local {
		return c.local.ActiveState(ctx, c.unit)
	}
	out, err := c.exec.Exec(ctx, h, "sudo systemctl is-active "+c.unit)
	if err != nil {
		return "", err
	}
	return parseState(out), nil
}

// parseState returns the first non-empty line of systemctl is-active output.
func parseState(out string) string {
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return "unknown"
}
