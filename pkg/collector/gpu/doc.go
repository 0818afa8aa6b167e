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

// Package gpu reads GPU utilization, memory and ECC counters from nvidia-smi.
//
// The collector executes nvidia-smi in XML report mode:
//
//	nvidia-smi -q -x
//
// and converts every supported device into a Status record indexed both by
// minor number and by UUID. nvidia-smi is known to block indefinitely on
// unhealthy hosts, so the query is wrapped in a fetcher.Fetcher: a scrape
// iteration waits at most a few seconds and otherwise reuses the last good
// inventory while it is fresh enough.
//
// # Supported Devices
//
// Devices are dropped from the inventory, and counted as unsupported, when:
//   - their product architecture is reported and not in the supported list
//   - their GPU or memory utilization is reported as N/A
//
// Unsupported devices are not errors.
//
// # Graceful Degradation
//
// When nvidia-smi is not installed the collector returns an empty inventory
// and nvidiasmi_attached_gpus reports 0.
//
// # Exported Families
//
//	nvidiasmi_attached_gpus
//	nvidiasmi_utilization_gpu{minor_number}
//	nvidiasmi_utilization_memory{minor_number}
//	nvidiasmi_memory_used_mib{minor_number}
//	nvidiasmi_memory_total_mib{minor_number}
//	nvidiasmi_ecc_errors{minor_number,type}
//
// # Usage
//
//	c := gpu.NewCollector(reg, errs, gpu.WithSupportedArchitectures(cfg.SupportedArchitectures))
//	inv := c.Collect(ctx, cols)
//	if s, ok := inv.ByMinor[0]; ok {
//	    fmt.Println(s.UUID, s.GPUUtil)
//	}
package gpu
