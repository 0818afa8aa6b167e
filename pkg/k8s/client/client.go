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

package client

import (
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
)

const (
	// UserAgent identifies watchdog requests in API server audit logs.
	UserAgent = "cluster-watchdog"

	defaultQPS   = 20
	defaultBurst = 40
)

// Interface is an alias for kubernetes.Interface to allow easier mocking in tests.
type Interface = kubernetes.Interface

// BuildKubeClient creates a Kubernetes client.
//
// Parameters:
//   - apiServer: API server URL. Overrides the host from the resolved
//     configuration; used alone when no kubeconfig can be found.
//   - kubeconfig: Path to kubeconfig file. If empty, uses automatic discovery.
func BuildKubeClient(apiServer, kubeconfig string) (*kubernetes.Clientset, *rest.Config, error) {
	config, err := BuildConfig(apiServer, kubeconfig)
	if err != nil {
		return nil, nil, err
	}

	client, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	return client, config, nil
}

// BuildConfig resolves the rest configuration, see BuildKubeClient.
func BuildConfig(apiServer, kubeconfig string) (*rest.Config, error) {
	var config *rest.Config
	var err error

	if kubeconfig == "" {
		kubeconfig = discoverKubeconfig()
	}

	switch {
	case kubeconfig != "":
		config, err = clientcmd.BuildConfigFromFlags(apiServer, kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to build kube config from %s: %w", kubeconfig, err)
		}
	case apiServer != "":
		config = &rest.Config{Host: apiServer}
	default:
		config, err = rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to get in-cluster config: %w", err)
		}
	}

	config.UserAgent = UserAgent
	if config.QPS == 0 {
		config.QPS = defaultQPS
	}
	if config.Burst == 0 {
		config.Burst = defaultBurst
	}

	return config, nil
}

func discoverKubeconfig() string {
	if p := os.Getenv("KUBECONFIG"); p != "" {
		return p
	}
	p := filepath.Join(homedir.HomeDir(), ".kube", "config")
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}
