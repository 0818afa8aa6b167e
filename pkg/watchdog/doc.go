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

// Package watchdog runs the collection loop of the cluster watchdog.
//
// A Loop owns a list of checks. Every iteration builds fresh collections
// from the metric registry, runs all checks concurrently, freezes the
// result into a snapshot and publishes it through a snapshot.Ref that the
// exposition endpoint reads from. Then it sleeps for the configured
// interval.
//
// # Checks
//
// The built-in check groups are:
//
//   - pods: pod and container status enumeration
//   - nodes: node status enumeration followed by API server, etcd and
//     kubelet liveness probes for the nodes just listed
//   - docker_daemon: container runtime liveness on every roster host
//   - jobs: nvidia-smi inventory joined with container stats
//
// Every check runs under its own recover. A panicking check loses the points it
// had not added yet and increments watchdog_errors_total with the
// check name as source; the other checks and the publish still happen.
// Anything escaping the checks is caught at the iteration boundary and
// counted with source "iteration".
//
// # Self Metrics
//
//   - watchdog_iteration_duration_seconds: histogram of iteration time
//   - watchdog_iterations_total{status}: success or error
//   - watchdog_last_publish_timestamp_seconds: unix time of the last publish
//
// Usage:
//
//	loop := watchdog.New(reg, errs, ref,
//	    watchdog.WithInterval(30*time.Second),
//	    watchdog.WithChecks(watchdog.KubernetesChecks(kc, errs)...),
//	)
//	if err := loop.Run(ctx); err != nil {
//	    return err
//	}
package watchdog
