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

// Package docker collects per-container resource usage from the local
// container runtime and joins it with GPU utilization.
//
// Each iteration lists running containers, then fetches stats and inspect
// data for every container in parallel. A container whose stats or inspect
// call fails is skipped and counted; the others are still reported.
//
// Container labels and environment variables are projected into metric
// labels. Labels become container_label_<KEY>, environment variables whose
// name starts with the configured prefix become container_env_<NAME>:
//
//	GPU_ID=0,1          -> container_label_GPU_ID="0,1"
//	PAI_USER_NAME=alice -> container_label_PAI_USER_NAME="alice"
//
// container_label_GPU_ID lists the minor numbers (or UUIDs) of the devices
// assigned to the container. It drives the GPU join and is never exported as
// a label itself. Containers without labels do not belong to a job and are
// skipped.
package docker
