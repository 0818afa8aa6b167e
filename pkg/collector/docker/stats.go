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
	"strings"

	"github.com/docker/docker/api/types/container"
)

// usage is the resource view of one stats sample.
type usage struct {
	CPUPerc  float64
	MemUsage float64
	MemLimit float64
	MemPerc  float64
	NetIn    float64
	NetOut   float64
	BlockIn  float64
	BlockOut float64
}

// computeUsage follows the formulas of `docker stats`.
func computeUsage(s *container.StatsResponse) usage {
	u := usage{
		CPUPerc:  cpuPercent(s),
		MemUsage: memoryUsage(s.MemoryStats),
		MemLimit: float64(s.MemoryStats.Limit),
	}
	if u.MemLimit > 0 {
		u.MemPerc = u.MemUsage / u.MemLimit * 100
	}
	for _, n := range s.Networks {
		u.NetIn += float64(n.RxBytes)
		u.NetOut += float64(n.TxBytes)
	}
	for _, e := range s.BlkioStats.IoServiceBytesRecursive {
		switch strings.ToLower(e.Op) {
		case "read":
			u.BlockIn += float64(e.Value)
		case "write":
			u.BlockOut += float64(e.Value)
		}
	}
	return u
}

func cpuPercent(s *container.StatsResponse) float64 {
	cpuDelta := float64(s.CPUStats.CPUUsage.TotalUsage) - float64(s.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(s.CPUStats.SystemUsage) - float64(s.PreCPUStats.SystemUsage)
	if cpuDelta <= 0 || systemDelta <= 0 {
		return 0
	}

	cpus := float64(s.CPUStats.OnlineCPUs)
	if cpus == 0 {
		cpus = float64(len(s.CPUStats.CPUUsage.PercpuUsage))
	}
	return cpuDelta / systemDelta * cpus * 100
}

// memoryUsage excludes the page cache: inactive_file on cgroup v2,
// total_inactive_file on cgroup v1.
func memoryUsage(m container.MemoryStats) float64 {
	cache, ok := m.Stats["inactive_file"]
	if !ok {
		cache = m.Stats["total_inactive_file"]
	}
	if cache < m.Usage {
		return float64(m.Usage - cache)
	}
	return float64(m.Usage)
}
