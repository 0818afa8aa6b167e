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

// Package k8s collects cluster status and component health from the
// Kubernetes API server and the kubelets.
//
// # Checks
//
// Pods: one list call per iteration against the configured namespace. Items
// are decoded one at a time so a malformed item only costs its own point.
// Emits pai_pod_count and pai_container_count.
//
// Nodes: one list call per iteration. Emits pai_node_count and returns the
// node addresses used by the kubelet probes.
//
// Components: GET /healthz and /healthz/etcd on the API server plus
// GET http://<node>:10255/healthz per node, all in parallel. Emits
// k8s_component_count with error="ok", an error kind or http_<status>.
//
// # Parsing Policy
//
// Missing optional fields become "unknown". Unrecognized condition types
// are counted as unrecognized_schema and skipped. A container state with
// other than exactly one variant is counted the same way and exported as
// "unknown". An item that cannot be decoded is counted as parse_failure
// and produces no point. A node without status.conditions still produces a
// point with unknown values and is counted as parse_failure.
//
// # Usage
//
//	c := k8s.NewCollector(cs.CoreV1().RESTClient(), reg, errs,
//	    k8s.WithAPIHost("10.151.40.133"),
//	)
//	nodes, err := c.CollectNodes(ctx, cols)
//	c.CollectComponents(ctx, cols, nodes)
package k8s
