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
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	corev1 "k8s.io/api/core/v1"

	"github.com/NVIDIA/cluster-watchdog/pkg/errors"
	"github.com/NVIDIA/cluster-watchdog/pkg/metrics"
	"github.com/NVIDIA/cluster-watchdog/pkg/probe"
)

const (
	sourcePods  = "pods"
	sourceNodes = "nodes"
)

// Node is the part of a listed node the component probes need.
type Node struct {
	Name    string
	Address string
}

// lower normalizes a status string, mapping empty to unknown.
// A Caser is not safe for concurrent use, so each call gets its own.
func lower(s string) string {
	if s == "" {
		return unknown
	}
	return cases.Lower(language.Und).String(s)
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}

// CollectPods lists pods and fills pai_pod_count and pai_container_count.
// Item failures are counted and skipped; only a failed list is returned.
func (c *Collector) CollectPods(ctx context.Context, cols []*metrics.Collection) error {
	items, err := c.list(ctx, "list_pods", c.listPodsLatency, "/api/v1/namespaces", c.namespace, "pods")
	if err != nil {
		return err
	}

	pods := metrics.MustFind(cols, c.podFamily)
	containers := metrics.MustFind(cols, c.containerFamily)

	for _, ie := range probe.Each(items, func(raw json.RawMessage) error {
		return c.addPod(pods, containers, raw)
	}) {
		c.errs.Record(sourcePods, ie, "item", ie.Index)
	}
	return nil
}

func (c *Collector) addPod(pods, containers *metrics.Collection, raw json.RawMessage) error {
	var pod corev1.Pod
	if err := json.Unmarshal(raw, &pod); err != nil {
		return errors.Wrap(errors.ErrCodeParseFailure, "undecodable pod item", err)
	}
	if pod.Name == "" {
		return errors.New(errors.ErrCodeParseFailure, "pod item without metadata.name")
	}

	service, ok := pod.Labels[c.serviceLabel]
	if !ok {
		slog.Warn("unknown pod", "pod", pod.Name, "label", c.serviceLabel)
		return nil
	}

	phase := lower(string(pod.Status.Phase))
	hostIP := orUnknown(pod.Status.HostIP)

	initialized, scheduled, containersReady, ready := unknown, unknown, unknown, unknown
	for _, cond := range pod.Status.Conditions {
		status := lower(string(cond.Status))
		switch cond.Type {
		case corev1.PodInitialized:
			initialized = status
		case corev1.PodScheduled:
			scheduled = status
		case corev1.ContainersReady:
			containersReady = status
		case corev1.PodReady:
			ready = status
		case corev1.PodReadyToStartContainers, corev1.DisruptionTarget:
			// known, not exported
		default:
			c.errs.Record(sourcePods, errors.NewWithContext(errors.ErrCodeUnrecognizedSchema, "unexpected pod condition",
				map[string]any{"pod": pod.Name, "condition": string(cond.Type)}))
		}
	}

	if err := pods.Add(1, service, pod.Name, phase, hostIP, initialized, scheduled, containersReady, ready); err != nil {
		return err
	}

	for _, cs := range pod.Status.ContainerStatuses {
		state, err := containerState(cs.State)
		if err != nil {
			c.errs.Record(sourcePods, errors.WrapWithContext(errors.ErrCodeUnrecognizedSchema, "unexpected container state", err,
				map[string]any{"pod": pod.Name, "container": cs.Name}))
		}
		if err := containers.Add(1, service, pod.Name, cs.Name, state, hostIP, strconv.FormatBool(cs.Ready)); err != nil {
			c.errs.Record(sourcePods, err)
		}
	}
	return nil
}

func containerState(s corev1.ContainerState) (string, error) {
	var states []string
	if s.Waiting != nil {
		states = append(states, "waiting")
	}
	if s.Running != nil {
		states = append(states, "running")
	}
	if s.Terminated != nil {
		states = append(states, "terminated")
	}
	if len(states) != 1 {
		return unknown, fmt.Errorf("container state has %d variants %v", len(states), states)
	}
	return states[0], nil
}

// CollectNodes lists nodes, fills pai_node_count and returns the nodes for
// kubelet probing.
func (c *Collector) CollectNodes(ctx context.Context, cols []*metrics.Collection) ([]Node, error) {
	items, err := c.list(ctx, "list_nodes", c.listNodesLatency, "/api/v1/nodes")
	if err != nil {
		return nil, err
	}

	col := metrics.MustFind(cols, c.nodeFamily)
	nodes := make([]Node, 0, len(items))

	for _, ie := range probe.Each(items, func(raw json.RawMessage) error {
		n, err := c.addNode(col, raw)
		if n != nil {
			nodes = append(nodes, *n)
		}
		return err
	}) {
		c.errs.Record(sourceNodes, ie, "item", ie.Index)
	}
	return nodes, nil
}

func (c *Collector) addNode(col *metrics.Collection, raw json.RawMessage) (*Node, error) {
	var node corev1.Node
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, errors.Wrap(errors.ErrCodeParseFailure, "undecodable node item", err)
	}
	if node.Name == "" {
		return nil, errors.New(errors.ErrCodeParseFailure, "node item without metadata.name")
	}

	disk, memory, pid, outOfDisk, network, ready := unknown, unknown, unknown, unknown, unknown, unknown

	var missing error
	if len(node.Status.Conditions) == 0 {
		missing = errors.NewWithContext(errors.ErrCodeParseFailure, "node without status.conditions",
			map[string]any{"node": node.Name})
	}

	for _, cond := range node.Status.Conditions {
		status := lower(string(cond.Status))
		switch cond.Type {
		case corev1.NodeDiskPressure:
			disk = status
		case corev1.NodeMemoryPressure:
			memory = status
		case corev1.NodePIDPressure:
			pid = status
		case "OutOfDisk":
			outOfDisk = status
		case corev1.NodeNetworkUnavailable:
			network = status
		case corev1.NodeReady:
			ready = status
		default:
			c.errs.Record(sourceNodes, errors.NewWithContext(errors.ErrCodeUnrecognizedSchema, "unexpected node condition",
				map[string]any{"node": node.Name, "condition": string(cond.Type)}))
		}
	}

	if err := col.Add(1, node.Name, disk, memory, pid, outOfDisk, network, ready); err != nil {
		return nil, err
	}

	return &Node{Name: node.Name, Address: nodeAddress(&node)}, missing
}

// nodeAddress prefers the InternalIP, then the hostname, then the node name.
func nodeAddress(n *corev1.Node) string {
	var hostname string
	for _, a := range n.Status.Addresses {
		switch a.Type {
		case corev1.NodeInternalIP:
			return a.Address
		case corev1.NodeHostName:
			hostname = a.Address
		}
	}
	if hostname != "" {
		return hostname
	}
	return n.Name
}
