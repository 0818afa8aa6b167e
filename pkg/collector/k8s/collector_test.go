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
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	restfake "k8s.io/client-go/rest/fake"

	"github.com/NVIDIA/cluster-watchdog/pkg/errors"
	"github.com/NVIDIA/cluster-watchdog/pkg/metrics"
	"github.com/NVIDIA/cluster-watchdog/pkg/probe"
)

const podList = `{
  "kind": "PodList",
  "items": [
    {
      "metadata": {"name": "launcher-0", "labels": {"app": "frameworklauncher"}},
      "status": {
        "phase": "Running",
        "hostIP": "10.0.0.1",
        "conditions": [
          {"type": "Initialized", "status": "True"},
          {"type": "PodScheduled", "status": "True"},
          {"type": "ContainersReady", "status": "True"},
          {"type": "Ready", "status": "False"},
          {"type": "Weird", "status": "True"}
        ],
        "containerStatuses": [
          {"name": "launcher", "ready": true, "state": {"running": {"startedAt": "2025-01-01T00:00:00Z"}}},
          {"name": "sidecar", "ready": false, "state": {}}
        ]
      }
    },
    {"metadata": {"name": "unlabeled", "labels": {"tier": "x"}}, "status": {"phase": "Running"}},
    {"metadata": "not-an-object"},
    {"metadata": {"name": "pending-0", "labels": {"app": "grafana"}}}
  ]
}`

const nodeList = `{
  "kind": "NodeList",
  "items": [
    {
      "metadata": {"name": "node-1"},
      "status": {
        "addresses": [{"type": "Hostname", "address": "node-1"}, {"type": "InternalIP", "address": "10.0.0.1"}],
        "conditions": [
          {"type": "Ready", "status": "True"},
          {"type": "DiskPressure", "status": "False"},
          {"type": "MemoryPressure", "status": "False"},
          {"type": "PIDPressure", "status": "False"},
          {"type": "NetworkUnavailable", "status": "False"},
          {"type": "KernelDeadlock", "status": "False"}
        ]
      }
    },
    {"metadata": {"name": "node-2"}, "status": {"addresses": [{"type": "Hostname", "address": "node-2.local"}]}},
    {"metadata": {"name": "node-3"}, "status": {"conditions": "broken"}}
  ]
}`

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func fakeREST(fn func(*http.Request) (*http.Response, error)) *restfake.RESTClient {
	return &restfake.RESTClient{
		NegotiatedSerializer: scheme.Codecs.WithoutConversion(),
		GroupVersion:         schema.GroupVersion{Version: "v1"},
		Client:               restfake.CreateHTTPClient(fn),
	}
}

func newTestCollector(t *testing.T, rc rest.Interface, opts ...Option) (*Collector, *metrics.Registry, *metrics.ErrorCounter) {
	t.Helper()
	reg := metrics.NewRegistry(metrics.WithRuntimeCollectors(false))
	errs := metrics.NewErrorCounter(reg)
	opts = append([]Option{WithRetry(2, time.Millisecond), WithTimeouts(2*time.Second, 2*time.Second)}, opts...)
	return NewCollector(rc, reg, errs, opts...), reg, errs
}

func labels(c *metrics.Collection) []string {
	var out []string
	for _, p := range c.Points() {
		out = append(out, strings.Join(p.Labels, ","))
	}
	return out
}

func TestCollectPods(t *testing.T) {
	rc := fakeREST(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/api/v1/namespaces/default/pods", req.URL.Path)
		return jsonResponse(http.StatusOK, podList), nil
	})
	c, reg, errs := newTestCollector(t, rc)
	cols := reg.NewCollections()

	require.NoError(t, c.CollectPods(context.Background(), cols))

	pods := metrics.Find(cols, c.podFamily)
	assert.Equal(t, []string{
		"frameworklauncher,launcher-0,running,10.0.0.1,true,true,true,false",
		"grafana,pending-0,unknown,unknown,unknown,unknown,unknown,unknown",
	}, labels(pods))

	containers := metrics.Find(cols, c.containerFamily)
	assert.Equal(t, []string{
		"frameworklauncher,launcher-0,launcher,running,10.0.0.1,true",
		"frameworklauncher,launcher-0,sidecar,unknown,10.0.0.1,false",
	}, labels(containers))

	// one unexpected condition, one container without a state variant
	assert.InDelta(t, 2, testutil.ToFloat64(errs.With(sourcePods, errors.ErrCodeUnrecognizedSchema)), 0)
	// the undecodable item
	assert.InDelta(t, 1, testutil.ToFloat64(errs.With(sourcePods, errors.ErrCodeParseFailure)), 0)
}

func TestCollectNodes(t *testing.T) {
	rc := fakeREST(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/api/v1/nodes", req.URL.Path)
		return jsonResponse(http.StatusOK, nodeList), nil
	})
	c, reg, errs := newTestCollector(t, rc)
	cols := reg.NewCollections()

	nodes, err := c.CollectNodes(context.Background(), cols)
	require.NoError(t, err)

	assert.Equal(t, []Node{
		{Name: "node-1", Address: "10.0.0.1"},
		{Name: "node-2", Address: "node-2.local"},
	}, nodes)

	assert.Equal(t, []string{
		"node-1,false,false,false,unknown,false,true",
		"node-2,unknown,unknown,unknown,unknown,unknown,unknown",
	}, labels(metrics.Find(cols, c.nodeFamily)))

	// node-2 has no conditions, node-3 does not decode
	assert.InDelta(t, 2, testutil.ToFloat64(errs.With(sourceNodes, errors.ErrCodeParseFailure)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(errs.With(sourceNodes, errors.ErrCodeUnrecognizedSchema)), 0)
}

func TestListRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	rc := fakeREST(func(*http.Request) (*http.Response, error) {
		if calls.Add(1) == 1 {
			return jsonResponse(http.StatusServiceUnavailable, `{"kind":"Status","apiVersion":"v1","status":"Failure","code":503,"reason":"ServiceUnavailable"}`), nil
		}
		return jsonResponse(http.StatusOK, `{"items":[]}`), nil
	})
	c, reg, _ := newTestCollector(t, rc)

	_, err := c.CollectNodes(context.Background(), reg.NewCollections())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestListDoesNotRetryForbidden(t *testing.T) {
	var calls atomic.Int32
	rc := fakeREST(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return jsonResponse(http.StatusForbidden, `{"kind":"Status","apiVersion":"v1","status":"Failure","code":403,"reason":"Forbidden"}`), nil
	})
	c, reg, _ := newTestCollector(t, rc)

	err := c.CollectPods(context.Background(), reg.NewCollections())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestListUndecodableBody(t *testing.T) {
	rc := fakeREST(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `<html>`), nil
	})
	c, reg, _ := newTestCollector(t, rc)

	_, err := c.CollectNodes(context.Background(), reg.NewCollections())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeParseFailure, errors.Classify(err))
}

func TestCollectComponents(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz":
			_, _ = w.Write([]byte("ok"))
		case "/healthz/etcd":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("[-]etcd failed"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer api.Close()

	kubelet := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/healthz", r.URL.Path)
		_, _ = w.Write([]byte("ok"))
	}))
	defer kubelet.Close()

	ku, err := url.Parse(kubelet.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(ku.Port())
	require.NoError(t, err)

	rc, err := rest.RESTClientFor(&rest.Config{
		Host:    api.URL,
		APIPath: "/api",
		ContentConfig: rest.ContentConfig{
			GroupVersion:         &corev1.SchemeGroupVersion,
			NegotiatedSerializer: scheme.Codecs.WithoutConversion(),
		},
	})
	require.NoError(t, err)

	c, reg, errs := newTestCollector(t, rc, WithAPIHost("10.151.40.133"), WithKubeletPort(port))
	cols := reg.NewCollections()

	c.CollectComponents(context.Background(), cols, []Node{
		{Name: "node-1", Address: "127.0.0.1"},
		{Name: "node-2", Address: "127.0.0.2"},
	})

	assert.ElementsMatch(t, []string{
		"k8s_api_server,ok,10.151.40.133",
		"k8s_etcd,http_500,10.151.40.133",
		"k8s_kubelet,ok,127.0.0.1",
		"k8s_kubelet,transport_failure,127.0.0.2",
	}, labels(metrics.Find(cols, c.componentFamily)))

	assert.InDelta(t, 1, testutil.ToFloat64(errs.With(ServiceEtcd, errors.ErrCodeTransportFailure)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(errs.With(ServiceKubelet, errors.ErrCodeTransportFailure)), 0)

	n, err := testutil.GatherAndCount(reg.Gatherer(), "k8s_kubelet_resp_latency_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestComponentLabel(t *testing.T) {
	tests := []struct {
		name string
		code errors.ErrorCode
		err  error
		rec  int
		want string
	}{
		{"ok", "", nil, 200, "ok"},
		{"no content", "", nil, 204, "ok"},
		{"server error", "", nil, 503, "http_503"},
		{"timeout", errors.ErrCodeTimeout, context.DeadlineExceeded, 0, "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := probe.Outcome[int]{Probe: ServiceKubelet, Record: tt.rec, Err: tt.err, Code: tt.code}
			assert.Equal(t, tt.want, componentLabel(o))
		})
	}
}

func TestContainerState(t *testing.T) {
	s, err := containerState(corev1.ContainerState{Waiting: &corev1.ContainerStateWaiting{}})
	require.NoError(t, err)
	assert.Equal(t, "waiting", s)

	s, err = containerState(corev1.ContainerState{
		Running:    &corev1.ContainerStateRunning{},
		Terminated: &corev1.ContainerStateTerminated{},
	})
	require.Error(t, err)
	assert.Equal(t, unknown, s)
}
