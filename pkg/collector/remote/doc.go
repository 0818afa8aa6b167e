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

// Package remote checks the container runtime daemon on every host of the
// roster.
//
// Remote hosts are reached over SSH and asked for the unit state with
// systemctl. Hosts marked local are asked through the systemd D-Bus API
// instead, which needs no credentials. Each host has its own circuit
// breaker: after repeated transport failures the host is reported as
// unavailable without dialing until the breaker half-opens again.
//
// Every host yields exactly one docker_daemon_count point whose error label
// is ok, inactive, or the kind of failure.
package remote
