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
	"time"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/cluster-watchdog/pkg/config"
)

const (
	flagConfig                 = "config"
	flagAddress                = "address"
	flagPort                   = "port"
	flagInterval               = "interval"
	flagProbeLimit             = "probe-limit"
	flagHostsFile              = "hosts-file"
	flagKnownHostsFile         = "known-hosts-file"
	flagAPIServer              = "api-server"
	flagKubeconfig             = "kubeconfig"
	flagNamespace              = "namespace"
	flagServiceLabel           = "service-label"
	flagKubeletPort            = "kubelet-port"
	flagNvidiaSMI              = "nvidia-smi"
	flagGPUWaitTimeout         = "gpu-wait-timeout"
	flagGPUStaleness           = "gpu-staleness"
	flagSupportedArchitectures = "supported-architectures"
	flagJobLabels              = "job-labels"
	flagEnvPrefix              = "env-prefix"
	flagHealthzTimeout         = "healthz-timeout"
	flagListTimeout            = "list-timeout"
	flagSSHTimeout             = "ssh-timeout"
	flagDockerTimeout          = "docker-timeout"
	flagEnableKubernetes       = "enable-kubernetes"
	flagEnableSSH              = "enable-ssh"
	flagEnableGPU              = "enable-gpu"
	flagEnableDocker           = "enable-docker"
	flagLogLevel               = "log-level"
)

// watchdogFlags lists every flag. Defaults live in config.Default; a flag
// only overrides the loaded config when it is set.
func watchdogFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    flagConfig,
			Aliases: []string{"c"},
			Usage:   "Path to the YAML config file",
			Sources: cli.EnvVars(config.EnvPrefix + "CONFIG"),
		},
		&cli.StringFlag{
			Name:  flagAddress,
			Usage: "Listen host of the metrics endpoint (default: all interfaces)",
		},
		&cli.IntFlag{
			Name:  flagPort,
			Usage: "Listen port of the metrics endpoint (default: 9101)",
		},
		&cli.DurationFlag{
			Name:  flagInterval,
			Usage: "Sleep between collection iterations (default: 30s)",
		},
		&cli.IntFlag{
			Name:  flagProbeLimit,
			Usage: "Maximum concurrent probes per check, 0 for unlimited",
		},
		&cli.StringFlag{
			Name:  flagHostsFile,
			Usage: "Host roster YAML for container runtime checks (default: /etc/watchdog/config.yml)",
		},
		&cli.StringFlag{
			Name:  flagKnownHostsFile,
			Usage: "known_hosts file for SSH host key verification (default: no verification)",
		},
		&cli.StringFlag{
			Name:  flagAPIServer,
			Usage: "Kubernetes API server URL (default: kubeconfig or in-cluster)",
		},
		&cli.StringFlag{
			Name:  flagKubeconfig,
			Usage: "Path to kubeconfig file (overrides KUBECONFIG env)",
		},
		&cli.StringFlag{
			Name:  flagNamespace,
			Usage: "Namespace whose pods are enumerated (default: default)",
		},
		&cli.StringFlag{
			Name:  flagServiceLabel,
			Usage: "Pod label naming the owning service (default: app)",
		},
		&cli.IntFlag{
			Name:  flagKubeletPort,
			Usage: "Kubelet read-only port (default: 10255)",
		},
		&cli.StringFlag{
			Name:  flagNvidiaSMI,
			Usage: "nvidia-smi binary (default: nvidia-smi on PATH)",
		},
		&cli.DurationFlag{
			Name:  flagGPUWaitTimeout,
			Usage: "How long an iteration waits for fresh GPU data (default: 3s)",
		},
		&cli.DurationFlag{
			Name:  flagGPUStaleness,
			Usage: "Maximum age of cached GPU data (default: 60s)",
		},
		&cli.StringSliceFlag{
			Name:  flagSupportedArchitectures,
			Usage: "GPU architectures whose metrics are exported (can be repeated)",
		},
		&cli.StringSliceFlag{
			Name:  flagJobLabels,
			Usage: "Projected container labels exported on job metrics (can be repeated)",
		},
		&cli.StringFlag{
			Name:  flagEnvPrefix,
			Usage: "Container environment prefix exported as job labels (default: PAI_)",
		},
		&cli.DurationFlag{
			Name:  flagHealthzTimeout,
			Usage: "Timeout of API server, etcd and kubelet healthz probes",
		},
		&cli.DurationFlag{
			Name:  flagListTimeout,
			Usage: "Timeout of pod and node list calls, retries included",
		},
		&cli.DurationFlag{
			Name:  flagSSHTimeout,
			Usage: "Timeout of one remote host check",
		},
		&cli.DurationFlag{
			Name:  flagDockerTimeout,
			Usage: "Timeout of container list, stats and inspect calls",
		},
		&cli.BoolFlag{
			Name:  flagEnableKubernetes,
			Usage: "Enable pod, node and component checks",
		},
		&cli.BoolFlag{
			Name:  flagEnableSSH,
			Usage: "Enable container runtime checks on roster hosts",
		},
		&cli.BoolFlag{
			Name:  flagEnableGPU,
			Usage: "Enable nvidia-smi metrics",
		},
		&cli.BoolFlag{
			Name:  flagEnableDocker,
			Usage: "Enable container job metrics",
		},
		&cli.StringFlag{
			Name:    flagLogLevel,
			Usage:   "Log level (debug, info, warn, error)",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
	}
}

// applyFlags overrides cfg with every flag set on cmd.
func applyFlags(cmd *cli.Command, cfg *config.Config) {
	strs := map[string]*string{
		flagAddress:        &cfg.Address,
		flagHostsFile:      &cfg.HostsFile,
		flagKnownHostsFile: &cfg.KnownHostsFile,
		flagAPIServer:      &cfg.APIServer,
		flagKubeconfig:     &cfg.Kubeconfig,
		flagNamespace:      &cfg.PodNamespace,
		flagServiceLabel:   &cfg.ServiceLabel,
		flagNvidiaSMI:      &cfg.NvidiaSMIPath,
		flagEnvPrefix:      &cfg.EnvPrefix,
		flagLogLevel:       &cfg.LogLevel,
	}
	for name, dst := range strs {
		if cmd.IsSet(name) {
			*dst = cmd.String(name)
		}
	}

	ints := map[string]*int{
		flagPort:        &cfg.Port,
		flagProbeLimit:  &cfg.ProbeLimit,
		flagKubeletPort: &cfg.KubeletPort,
	}
	for name, dst := range ints {
		if cmd.IsSet(name) {
			*dst = cmd.Int(name)
		}
	}

	durations := map[string]*time.Duration{
		flagInterval:       &cfg.Interval,
		flagGPUWaitTimeout: &cfg.GPUWaitTimeout,
		flagGPUStaleness:   &cfg.GPUStaleness,
		flagHealthzTimeout: &cfg.HealthzTimeout,
		flagListTimeout:    &cfg.ListTimeout,
		flagSSHTimeout:     &cfg.SSHTimeout,
		flagDockerTimeout:  &cfg.DockerTimeout,
	}
	for name, dst := range durations {
		if cmd.IsSet(name) {
			*dst = cmd.Duration(name)
		}
	}

	lists := map[string]*[]string{
		flagSupportedArchitectures: &cfg.SupportedArchitectures,
		flagJobLabels:              &cfg.JobLabels,
	}
	for name, dst := range lists {
		if cmd.IsSet(name) {
			*dst = cmd.StringSlice(name)
		}
	}

	bools := map[string]*bool{
		flagEnableKubernetes: &cfg.EnableKubernetes,
		flagEnableSSH:        &cfg.EnableSSH,
		flagEnableGPU:        &cfg.EnableGPU,
		flagEnableDocker:     &cfg.EnableDocker,
	}
	for name, dst := range bools {
		if cmd.IsSet(name) {
			*dst = cmd.Bool(name)
		}
	}
}
