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
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/cluster-watchdog/pkg/config"
	"github.com/NVIDIA/cluster-watchdog/pkg/logging"
)

const (
	name           = "cluster-watchdog"
	versionDefault = "dev"
)

var (
	// overridden during build with ldflags
	version = versionDefault
	commit  = "unknown"
	date    = "unknown"
)

// Execute runs the root command and exits non-zero on failure.
// This is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1) //nolint:gocritic // stop is called explicitly above
	}
}

func newRootCmd() *cli.Command {
	return &cli.Command{
		Name:    name,
		Usage:   "GPU cluster health and utilization exporter",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Description: `Periodically probes the Kubernetes control plane, kubelets, node and pod
status, the container runtime on every roster host, nvidia-smi and running
containers, and exposes the latest snapshot on /metrics for Prometheus.

Slow or failing sources never block a scrape: each source is probed with its
own timeout and the endpoint always serves the last published snapshot.`,
		Flags: watchdogFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			logging.SetDefaultStructuredLoggerWithLevel(name, version, cfg.LogLevel)
			slog.Info("starting",
				"name", name,
				"version", version,
				"commit", commit,
				"date", date,
				"logLevel", cfg.LogLevel)

			return run(ctx, cfg)
		},
	}
}

// loadConfig resolves defaults, config file, environment and flags.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String(flagConfig))
	if err != nil {
		return nil, err
	}

	applyFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
