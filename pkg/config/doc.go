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

// Package config assembles the watchdog configuration.
//
// Values are resolved in order, later sources win:
//
//  1. defaults from pkg/defaults
//  2. an optional YAML file (--config)
//  3. WATCHDOG_* environment variables
//  4. command line flags
//
// The host roster is a separate YAML file in the format used by the
// cluster deployment tooling:
//
//	hosts:
//	  - hostip: 10.0.0.1
//	    username: admin
//	    password: secret
//	    sshport: 22
//	  - hostip: 10.0.0.2
//	    username: admin
//	    keyfile: /etc/watchdog/id_ed25519
//	  - hostip: 127.0.0.1
//	    local: true
package config
