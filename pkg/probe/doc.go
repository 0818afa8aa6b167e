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

// Package probe runs independent health and metric checks with per-probe
// timeouts and failure isolation.
//
// A Probe wraps one call against one target. Execute always returns an
// Outcome within the probe timeout: a Run function that ignores its context
// is left behind and the outcome reports ErrCodeTimeout. Panics inside Run
// become ErrCodeInternal outcomes.
//
// RunAll fans a roster of probes out over an errgroup and returns outcomes
// in roster order. Each isolates per-item parsing in list results so one
// malformed item never hides the rest.
package probe
