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

package k8s

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goretry "github.com/sethvargo/go-retry"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/client-go/rest"

	"github.com/NVIDIA/cluster-watchdog/pkg/defaults"
	"github.com/NVIDIA/cluster-watchdog/pkg/errors"
	"github.com/NVIDIA/cluster-watchdog/pkg/metrics"
	"github.com/NVIDIA/cluster-watchdog/pkg/probe"
	"github.com/NVIDIA/cluster-watchdog/pkg/serializer"
)

const unknown = "unknown"

// Service names used in k8s_component_count.
const (
	ServiceAPIServer = "k8s_api_server"
	ServiceEtcd      = "k8s_etcd"
	ServiceKubelet   = "k8s_kubelet"
)

// Collector talks to the API server through a REST client and to kubelets
// through plain HTTP.
type Collector struct {
	rc      rest.Interface
	kubelet *serializer.HttpReader
	errs    *metrics.ErrorCounter

	namespace      string
	serviceLabel   string
	apiHost        string
	kubeletPort    int
	healthzTimeout time.Duration
	listTimeout    time.Duration
	retries        uint64
	retryBase      time.Duration
	probeLimit     int

	componentFamily *metrics.Family
	podFamily       *metrics.Family
	containerFamily *metrics.Family
	nodeFamily      *metrics.Family

	apiHealthzLatency prometheus.Histogram
	etcdLatency       prometheus.Histogram
	kubeletLatency    prometheus.Histogram
	listPodsLatency   prometheus.Histogram
	listNodesLatency  prometheus.Histogram
}

// Option configures a Collector.
type Option func(*Collector)

// WithNamespace sets the namespace whose pods are enumerated.
func WithNamespace(ns string) Option {
	return func(c *Collector) {
		c.namespace = ns
	}
}

// WithServiceLabel sets the pod label naming the owning service.
func WithServiceLabel(label string) Option {
	return func(c *Collector) {
		c.serviceLabel = label
	}
}

// WithAPIHost sets the host_ip label used for API server and etcd probes.
func WithAPIHost(host string) Option {
	return func(c *Collector) {
		c.apiHost = host
	}
}

// WithKubeletPort sets the kubelet read-only port.
func WithKubeletPort(port int) Option {
	return func(c *Collector) {
		c.kubeletPort = port
	}
}

// WithKubeletReader replaces the HTTP reader used for kubelet probes.
func WithKubeletReader(r *serializer.HttpReader) Option {
	return func(c *Collector) {
		c.kubelet = r
	}
}

// WithTimeouts sets the healthz and list timeouts.
func WithTimeouts(healthz, list time.Duration) Option {
	return func(c *Collector) {
		c.healthzTimeout = healthz
		c.listTimeout = list
	}
}

// WithRetry sets the retry count and initial backoff for list calls.
func WithRetry(retries uint64, base time.Duration) Option {
	return func(c *Collector) {
		c.retries = retries
		c.retryBase = base
	}
}

// WithProbeLimit bounds how many component probes run at once, 0 means no limit.
func WithProbeLimit(n int) Option {
	return func(c *Collector) {
		c.probeLimit = n
	}
}

// NewCollector declares the collector's families and histograms on reg.
func NewCollector(rc rest.Interface, reg *metrics.Registry, errs *metrics.ErrorCounter, opts ...Option) *Collector {
	c := &Collector{
		rc:             rc,
		errs:           errs,
		namespace:      defaults.PodNamespace,
		serviceLabel:   defaults.ServiceLabel,
		apiHost:        unknown,
		kubeletPort:    defaults.KubeletReadOnlyPort,
		healthzTimeout: defaults.HealthzTimeout,
		listTimeout:    defaults.ListTimeout,
		retries:        defaults.ListRetries,
		retryBase:      defaults.ListRetryBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.kubelet == nil {
		c.kubelet = serializer.NewHttpReader(serializer.WithTotalTimeout(c.healthzTimeout))
	}

	c.podFamily = reg.MustDeclare("pai_pod_count", "count of pai pod", metrics.KindGauge,
		"service_name", "name", "phase", "host_ip", "initialized", "pod_scheduled", "containers_ready", "ready")
	c.containerFamily = reg.MustDeclare("pai_container_count", "count of container pod", metrics.KindGauge,
		"service_name", "pod_name", "name", "state", "host_ip", "ready")
	c.nodeFamily = reg.MustDeclare("pai_node_count", "count of pai node", metrics.KindGauge,
		"name", "disk_pressure", "memory_pressure", "pid_pressure", "out_of_disk", "network_unavailable", "ready")
	c.componentFamily = reg.MustDeclare("k8s_component_count", "count of k8s component", metrics.KindGauge,
		"service_name", "error", "host_ip")

	c.apiHealthzLatency = reg.Histogram("k8s_api_healthz_resp_latency_seconds",
		"Response latency for requesting k8s api healthz (seconds)", metrics.LatencyBuckets)
	c.etcdLatency = reg.Histogram("k8s_etcd_resp_latency_seconds",
		"Response latency for requesting etcd healthz (seconds)", metrics.LatencyBuckets)
	c.kubeletLatency = reg.Histogram("k8s_kubelet_resp_latency_seconds",
		"Response latency for requesting kubelet healthz (seconds)", metrics.LatencyBuckets)
	c.listPodsLatency = reg.Histogram("k8s_api_list_pods_latency_seconds",
		"Response latency for list pods from k8s api (seconds)", metrics.LatencyBuckets)
	c.listNodesLatency = reg.Histogram("k8s_api_list_nodes_latency_seconds",
		"Response latency for list nodes from k8s api (seconds)", metrics.LatencyBuckets)

	return c
}

type itemList struct {
	Items []json.RawMessage `json:"items"`
}

// list fetches a list endpoint and splits it into raw items, retrying
// transient failures.
func (c *Collector) list(ctx context.Context, name string, latency prometheus.Histogram, path ...string) ([]json.RawMessage, error) {
	p := probe.Probe[[]json.RawMessage]{
		Name:    name,
		Target:  strings.Join(path, "/"),
		Timeout: c.listTimeout,
		Latency: latency,
		Run: func(ctx context.Context) ([]json.RawMessage, error) {
			var body []byte
			backoff := goretry.WithMaxRetries(c.retries, goretry.NewExponential(c.retryBase))
			err := goretry.Do(ctx, backoff, func(ctx context.Context) error {
				var err error
				body, err = c.rc.Get().AbsPath(path...).DoRaw(ctx)
				if err != nil && retryable(err) {
					return goretry.RetryableError(err)
				}
				return err
			})
			if err != nil {
				return nil, err
			}

			var l itemList
			if err := json.Unmarshal(body, &l); err != nil {
				return nil, errors.Wrap(errors.ErrCodeParseFailure, "undecodable list response", err)
			}
			return l.Items, nil
		},
	}

	out := p.Execute(ctx)
	return out.Record, out.Err
}

func retryable(err error) bool {
	if apierrors.IsTooManyRequests(err) ||
		apierrors.IsServerTimeout(err) ||
		apierrors.IsTimeout(err) ||
		apierrors.IsInternalError(err) ||
		apierrors.IsServiceUnavailable(err) {
		return true
	}

	// other API statuses (403, 404) will not heal by retrying
	var status apierrors.APIStatus
	if stderrors.As(err, &status) {
		return false
	}

	return !stderrors.Is(err, context.Canceled) && !stderrors.Is(err, context.DeadlineExceeded)
}
