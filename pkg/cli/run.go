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

package cli

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/NVIDIA/cluster-watchdog/pkg/collector/docker"
	"github.com/NVIDIA/cluster-watchdog/pkg/collector/gpu"
	"github.com/NVIDIA/cluster-watchdog/pkg/collector/k8s"
	"github.com/NVIDIA/cluster-watchdog/pkg/collector/remote"
	"github.com/NVIDIA/cluster-watchdog/pkg/config"
	"github.com/NVIDIA/cluster-watchdog/pkg/fetcher"
	"github.com/NVIDIA/cluster-watchdog/pkg/k8s/client"
	"github.com/NVIDIA/cluster-watchdog/pkg/metrics"
	"github.com/NVIDIA/cluster-watchdog/pkg/server"
	"github.com/NVIDIA/cluster-watchdog/pkg/snapshot"
	"github.com/NVIDIA/cluster-watchdog/pkg/watchdog"
)

// run wires the collectors, the loop and the server and blocks until ctx
// is canceled or the server fails.
func run(ctx context.Context, cfg *config.Config) error {
	reg := metrics.NewRegistry()
	errs := metrics.NewErrorCounter(reg)
	ref := &snapshot.Ref{}

	checks, closers, err := buildChecks(cfg, reg, errs)
	defer func() {
		for _, c := range closers {
			if cerr := c(); cerr != nil {
				slog.Warn("failed to close client", "error", cerr)
			}
		}
	}()
	if err != nil {
		return err
	}

	srv, err := server.New(reg, ref,
		server.WithName(name),
		server.WithVersion(version),
		server.WithAddress(cfg.Address),
		server.WithPort(cfg.Port),
	)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	loop := watchdog.New(reg, errs, ref,
		watchdog.WithInterval(cfg.Interval),
		watchdog.WithChecks(checks...),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		return loop.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("watchdog error: %w", err)
	}

	slog.Info("watchdog stopped gracefully")
	return nil
}

// buildChecks creates the collectors of every enabled check group. The
// returned closers must be called even when an error is returned.
func buildChecks(cfg *config.Config, reg *metrics.Registry, errs *metrics.ErrorCounter) ([]watchdog.Check, []func() error, error) {
	var (
		checks  []watchdog.Check
		closers []func() error
	)

	if cfg.EnableKubernetes {
		cs, restCfg, err := client.BuildKubeClient(cfg.APIServer, cfg.Kubeconfig)
		if err != nil {
			return nil, closers, err
		}
		if cfg.APIServer == "" {
			cfg.APIServer = restCfg.Host
		}

		kc := k8s.NewCollector(cs.CoreV1().RESTClient(), reg, errs,
			k8s.WithNamespace(cfg.PodNamespace),
			k8s.WithServiceLabel(cfg.ServiceLabel),
			k8s.WithAPIHost(cfg.APIHost()),
			k8s.WithKubeletPort(cfg.KubeletPort),
			k8s.WithTimeouts(cfg.HealthzTimeout, cfg.ListTimeout),
			k8s.WithProbeLimit(cfg.ProbeLimit),
		)
		checks = append(checks, watchdog.KubernetesChecks(kc, errs)...)
		slog.Debug("kubernetes checks enabled", "apiServer", cfg.APIServer, "namespace", cfg.PodNamespace)
	}

	if cfg.EnableSSH {
		hosts, err := config.LoadHosts(cfg.HostsFile)
		if err != nil {
			return nil, closers, err
		}
		exec, err := remote.NewSSHExecutor(cfg.KnownHostsFile, cfg.SSHTimeout)
		if err != nil {
			return nil, closers, err
		}

		rc := remote.NewCollector(hosts, exec, reg, errs,
			remote.WithTimeout(cfg.SSHTimeout),
			remote.WithProbeLimit(cfg.ProbeLimit),
		)
		checks = append(checks, watchdog.DaemonCheck(rc))
		slog.Debug("daemon checks enabled", "hosts", len(hosts))
	}

	var gc *gpu.Collector
	if cfg.EnableGPU {
		gc = gpu.NewCollector(reg, errs,
			[]fetcher.Option{
				fetcher.WithWaitTimeout(cfg.GPUWaitTimeout),
				fetcher.WithStaleness(cfg.GPUStaleness),
				fetcher.WithResultCounter(metrics.NewFetchResultCounter(reg)),
			},
			gpu.WithPath(cfg.NvidiaSMIPath),
			gpu.WithSupportedArchitectures(cfg.SupportedArchitectures),
		)
	}

	var dc *docker.Collector
	if cfg.EnableDocker {
		api, err := docker.NewClient()
		if err != nil {
			return nil, closers, err
		}
		closers = append(closers, api.Close)

		dc, err = docker.NewCollector(api, reg, errs,
			docker.WithJobLabels(cfg.JobLabels),
			docker.WithEnvPrefix(cfg.EnvPrefix),
			docker.WithTimeout(cfg.DockerTimeout),
			docker.WithProbeLimit(cfg.ProbeLimit),
		)
		if err != nil {
			return nil, closers, err
		}
	}

	if gc != nil || dc != nil {
		checks = append(checks, watchdog.JobCheck(gc, dc, errs))
	}

	return checks, closers, nil
}
