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

package defaults

import "time"

// Collection cadence and single-flight bounds.
const (
	// CollectionInterval is the sleep between two collection iterations.
	CollectionInterval = 30 * time.Second

	// GPUWaitTimeout is how long an iteration waits for a fresh nvidia-smi result.
	GPUWaitTimeout = 3 * time.Second

	// GPUStaleness is the maximum age of a cached GPU inventory that may still be served.
	GPUStaleness = 60 * time.Second
)

// Probe timeouts, one per transport.
const (
	// HealthzTimeout bounds API server, etcd and kubelet healthz requests.
	HealthzTimeout = 5 * time.Second

	// ListTimeout bounds a single pod or node list call, retries included.
	ListTimeout = 15 * time.Second

	// ListRetries is the number of retries for a failed list call.
	ListRetries = 2

	// ListRetryBase is the initial backoff between list retries.
	ListRetryBase = 200 * time.Millisecond

	// SSHTimeout bounds dialing and running the daemon check on one host.
	SSHTimeout = 10 * time.Second

	// DockerTimeout bounds the container list plus per-container stats and inspect.
	DockerTimeout = 20 * time.Second

	// NvidiaSMITimeout is passed to the nvidia-smi command context.
	// The fetcher never waits this long; it only caps the abandoned worker.
	NvidiaSMITimeout = 2 * time.Minute
)

// Circuit breaker settings for remote host checks.
const (
	// BreakerFailures is the number of consecutive failures that opens a host breaker.
	BreakerFailures = 3

	// BreakerOpenTimeout is how long a host breaker stays open before a trial call.
	BreakerOpenTimeout = 2 * time.Minute
)

// Server timeouts for the exposition HTTP server.
const (
	// ServerReadTimeout is the maximum duration for reading the entire request.
	ServerReadTimeout = 10 * time.Second

	// ServerReadHeaderTimeout prevents slow header attacks.
	ServerReadHeaderTimeout = 5 * time.Second

	// ServerWriteTimeout is the maximum duration for writing a response.
	ServerWriteTimeout = 30 * time.Second

	// ServerIdleTimeout is the maximum duration to wait for the next request.
	ServerIdleTimeout = 120 * time.Second

	// ServerShutdownTimeout is the maximum duration for graceful shutdown.
	ServerShutdownTimeout = 30 * time.Second
)

// HTTP client timeouts for outbound requests.
const (
	// HTTPClientTimeout is the default total timeout for HTTP requests.
	HTTPClientTimeout = 30 * time.Second

	// HTTPConnectTimeout is the timeout for establishing connections.
	HTTPConnectTimeout = 5 * time.Second

	// HTTPTLSHandshakeTimeout is the timeout for TLS handshake.
	HTTPTLSHandshakeTimeout = 5 * time.Second

	// HTTPResponseHeaderTimeout is the timeout for reading response headers.
	HTTPResponseHeaderTimeout = 10 * time.Second

	// HTTPIdleConnTimeout is the timeout for idle connections in the pool.
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPKeepAlive is the keep-alive duration for connections.
	HTTPKeepAlive = 30 * time.Second

	// HTTPExpectContinueTimeout is the timeout for Expect: 100-continue.
	HTTPExpectContinueTimeout = 1 * time.Second
)

// Network and filesystem defaults.
const (
	// ServerPort is the default port the metrics endpoint listens on.
	ServerPort = 9101

	// KubeletReadOnlyPort is the kubelet read-only port serving /healthz.
	KubeletReadOnlyPort = 10255

	// SSHPort is used when a roster host does not set sshport.
	SSHPort = 22

	// HostsFile is the default host roster location.
	HostsFile = "/etc/watchdog/config.yml"

	// PodNamespace is the namespace whose pods are enumerated.
	PodNamespace = "default"

	// ServiceLabel is the pod label that names the owning service.
	ServiceLabel = "app"

	// NvidiaSMIPath is the nvidia-smi binary looked up on PATH.
	NvidiaSMIPath = "nvidia-smi"

	// EnvPrefix selects container environment variables exported as job labels.
	EnvPrefix = "PAI_"

	// IndexRateLimit is the sustained request rate per second for the index
	// and custom handlers. Scrape and probe routes are not limited.
	IndexRateLimit = 20

	// IndexRateBurst is the index burst size.
	IndexRateBurst = 40
)

// SupportedArchitectures lists nvidia-smi product architectures whose
// utilization metrics are exported.
var SupportedArchitectures = []string{
	"Maxwell", "Pascal", "Volta", "Turing", "Ampere", "Ada Lovelace", "Hopper", "Blackwell",
}
