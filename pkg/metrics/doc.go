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

// Package metrics defines the typed metric model shared by the collection
// loop and the exposition endpoint.
//
// A Family is declared once at startup through a Registry and never changes
// afterwards. Each collection iteration asks the Registry for a fresh set of
// empty Collections, one per declared family, fills them with Points and
// hands them to pkg/snapshot for publishing.
//
// Latency histograms and error counters are not part of snapshots. They are
// live instruments created from the same Registry through its promauto
// Factory and accumulate over the process lifetime.
//
// # Usage
//
//	reg := metrics.NewRegistry()
//	nodes := reg.MustDeclare("pai_node_count", "count of pai node", metrics.KindGauge, "name", "ready")
//
//	cols := reg.NewCollections()
//	col := metrics.Find(cols, nodes)
//	if err := col.Add(1, "node-1", "true"); err != nil {
//	    errs.Inc("nodes", errors.Classify(err))
//	}
//
// The Registry is an explicit object passed to every component that needs
// it. Nothing in this package registers into the prometheus default registry.
package metrics
