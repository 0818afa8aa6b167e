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

// Package defaults provides centralized configuration constants for the watchdog.
//
// This package defines timeout values, collection cadence, ports and other
// defaults used across the codebase. Every value here can be overridden
// through pkg/config.
//
// # Timeout Categories
//
// Timeouts are organized by component:
//
//   - Collection timeouts: interval and single-flight bounds
//   - Probe timeouts: per-transport bounds for health checks
//   - Server timeouts: for the exposition HTTP server
//   - HTTP client timeouts: for outbound kubelet requests
//
// # Usage
//
//	ctx, cancel := context.WithTimeout(ctx, defaults.HealthzTimeout)
//	defer cancel()
//
// # Timeout Guidelines
//
//   - Every probe timeout is shorter than CollectionInterval so an
//     iteration always finishes before the next tick.
//   - GPUWaitTimeout is short; GPUStaleness bounds how long a wedged
//     nvidia-smi can be papered over with cached data.
package defaults
