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

package watchdog

import (
	"context"

	"github.com/NVIDIA/cluster-watchdog/pkg/collector/docker"
	"github.com/NVIDIA/cluster-watchdog/pkg/collector/gpu"
	"github.com/NVIDIA/cluster-watchdog/pkg/collector/k8s"
	"github.com/NVIDIA/cluster-watchdog/pkg/collector/remote"
	"github.com/NVIDIA/cluster-watchdog/pkg/metrics"
)

// Check names, also used as error sources for failures they recover.
const (
	CheckPods         = "pods"
	CheckNodes        = "nodes"
	CheckDockerDaemon = "docker_daemon"
	CheckJobs         = "jobs"
)

// KubernetesChecks returns the pod enumeration check and the node check.
// The node check probes component health after listing nodes so kubelets
// are probed on the nodes of the current iteration.
func KubernetesChecks(c *k8s.Collector, errs *metrics.ErrorCounter) []Check {
	return []Check{
		{
			Name: CheckPods,
			Run: func(ctx context.Context, cols []*metrics.Collection) {
				errs.Record(CheckPods, c.CollectPods(ctx, cols))
			},
		},
		{
			Name: CheckNodes,
			Run: func(ctx context.Context, cols []*metrics.Collection) {
				nodes, err := c.CollectNodes(ctx, cols)
				errs.Record(CheckNodes, err)
				c.CollectComponents(ctx, cols, nodes)
			},
		},
	}
}

// DaemonCheck returns the container runtime liveness check.
func DaemonCheck(c *remote.Collector) Check {
	return Check{
		Name: CheckDockerDaemon,
		Run:  c.Collect,
	}
}

// JobCheck returns the GPU and job metrics check. Either collector may be
// nil; without a GPU collector containers are exported without GPU metrics.
func JobCheck(g *gpu.Collector, d *docker.Collector, errs *metrics.ErrorCounter) Check {
	return Check{
		Name: CheckJobs,
		Run: func(ctx context.Context, cols []*metrics.Collection) {
			var inv *gpu.Inventory
			if g != nil {
				inv = g.Collect(ctx, cols)
			}
			if d == nil {
				return
			}

			containers, err := d.Collect(ctx)
			if err != nil {
				errs.Record(CheckJobs, err)
				return
			}
			d.Export(cols, containers, inv)
		},
	}
}
