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

package docker

import (
	"regexp"
	"strings"
)

const (
	// GPULabel carries the devices assigned to a container.
	GPULabel = "container_label_GPU_ID"

	labelPrefix = "container_label_"
	envPrefix   = "container_env_"
)

var invalidLabelChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// ParseLabels splits the GPU assignment from the other labels. The GPU list
// is comma separated, quotes are removed and empty entries dropped. Every
// other key is copied verbatim.
func ParseLabels(labels map[string]string) ([]string, map[string]string) {
	var gpuIDs []string
	rest := make(map[string]string, len(labels))

	for k, v := range labels {
		if k != GPULabel {
			rest[k] = v
			continue
		}
		for _, id := range strings.Split(strings.ReplaceAll(v, `"`, ""), ",") {
			if id = strings.TrimSpace(id); id != "" {
				gpuIDs = append(gpuIDs, id)
			}
		}
	}
	return gpuIDs, rest
}

// labelKey maps a container label to its metric label name.
func labelKey(k string) string {
	return labelPrefix + invalidLabelChars.ReplaceAllString(k, "_")
}

// projectLabels prefixes every container label.
func projectLabels(labels map[string]string) map[string]string {
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[labelKey(k)] = v
	}
	return out
}

// projectEnv keeps the KEY=VALUE entries whose key starts with prefix.
func projectEnv(env []string, prefix string) map[string]string {
	out := make(map[string]string)
	for _, e := range env {
		k, v, ok := strings.Cut(e, "=")
		if !ok || !strings.HasPrefix(k, prefix) {
			continue
		}
		out[envPrefix+invalidLabelChars.ReplaceAllString(k, "_")] = v
	}
	return out
}
