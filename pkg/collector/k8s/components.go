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
	"fmt"
	"net"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/NVIDIA/cluster-watchdog/pkg/errors"
	"github.com/NVIDIA/cluster-watchdog/pkg/metrics"
	"github.com/NVIDIA/cluster-watchdog/pkg/probe"
)

// CollectComponents probes API server, etcd and every kubelet in parallel
// and adds one k8s_component_count point per probe.
func (c *Collector) CollectComponents(ctx context.Context, cols []*metrics.Collection, nodes []Node) {
	probes := []probe.Probe[int]{
		c.apiProbe(ServiceAPIServer, "/healthz", c.apiHealthzLatency),
		c.apiProbe(ServiceEtcd, "/healthz/etcd", c.etcdLatency),
	}
	for _, n := range nodes {
		probes = append(probes, c.kubeletProbe(n))
	}

	col := metrics.MustFind(cols, c.componentFamily)
	for _, o := range probe.RunAll(ctx, probes, c.probeLimit) {
		label := componentLabel(o)
		switch {
		case !o.Ok():
			c.errs.Record(o.Probe, o.Err, "host", o.Target)
		case label != "ok":
			c.errs.Inc(o.Probe, errors.ErrCodeTransportFailure)
		}
		if err := col.Add(1, o.Probe, label, o.Target); err != nil {
			c.errs.Record(o.Probe, err)
		}
	}
}

func (c *Collector) apiProbe(service, path string, latency prometheus.Histogram) probe.Probe[int] {
	return probe.Probe[int]{
		Name:    service,
		Target:  c.apiHost,
		Timeout: c.healthzTimeout,
		Latency: latency,
		Run: func(ctx context.Context) (int, error) {
			var code int
			res := c.rc.Get().AbsPath(path).Do(ctx).StatusCode(&code)
			if err := res.Error(); err != nil && code == 0 {
				return 0, err
			}
			return code, nil
		},
	}
}

func (c *Collector) kubeletProbe(n Node) probe.Probe[int] {
	url := fmt.Sprintf("http://%s/healthz", net.JoinHostPort(n.Address, strconv.Itoa(c.kubeletPort)))
	return probe.Probe[int]{
		Name:    ServiceKubelet,
		Target:  n.Address,
		Timeout: c.healthzTimeout,
		Latency: c.kubeletLatency,
		Run: func(ctx context.Context) (int, error) {
			resp, err := c.kubelet.Get(ctx, url)
			if err != nil {
				return 0, err
			}
			return resp.StatusCode, nil
		},
	}
}

// componentLabel renders the error label: "ok", http_<status> or an error kind.
func componentLabel(o probe.Outcome[int]) string {
	if !o.Ok() {
		return errors.Label(o.Code)
	}
	if o.Record >= 200 && o.Record < 300 {
		return "ok"
	}
	return "http_" + strconv.Itoa(o.Record)
}
