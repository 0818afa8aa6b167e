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

// Package client builds the Kubernetes client used by the watchdog collectors.
//
// # Configuration Sources
//
// BuildKubeClient resolves the API server connection in this order:
//
//  1. An explicit kubeconfig path
//  2. The KUBECONFIG environment variable
//  3. ~/.kube/config, when it exists
//  4. In-cluster service account configuration
//
// An explicit API server URL overrides the host from any of these. With a
// URL and no kubeconfig at all, the client talks to that URL unauthenticated,
// which matches clusters exposing the insecure API port.
//
// # Usage
//
//	cs, cfg, err := client.BuildKubeClient("http://10.151.40.133:8080", "")
//	if err != nil {
//	    return fmt.Errorf("failed to build client: %w", err)
//	}
//	rc := cs.CoreV1().RESTClient()
//
// The client is an explicit dependency handed to the collectors. Tests use
// k8s.io/client-go/rest/fake for the REST client instead.
package client
