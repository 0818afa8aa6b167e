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

// Package cli implements the cluster-watchdog command line.
//
// The command starts the collection loop and the metrics endpoint and
// runs until SIGINT or SIGTERM.
//
// # Configuration
//
// Settings are resolved in order, later wins:
//
//  1. Built-in defaults
//  2. YAML config file (--config, WATCHDOG_CONFIG)
//  3. WATCHDOG_* environment variables
//  4. Command line flags
//
// # Usage Examples
//
// Run in a pod with in-cluster credentials:
//
//	cluster-watchdog --hosts-file /etc/watchdog/config.yml
//
// Run against a remote API server without SSH or GPU checks:
//
//	cluster-watchdog --api-server https://10.0.0.1:6443 --enable-ssh=false --enable-gpu=false
//
// Scrape:
//
//	curl http://localhost:9101/metrics
//
// # Environment Variables
//
//	LOG_LEVEL         Set logging verbosity (debug, info, warn, error)
//	KUBECONFIG        Kubeconfig used when --kubeconfig is not set
//	WATCHDOG_*        Override any config file setting, e.g. WATCHDOG_PORT
//
// # Exit Codes
//
//	0  Clean shutdown after a signal
//	1  Invalid configuration or startup failure
package cli
