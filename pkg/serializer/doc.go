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

// Package serializer provides the HTTP plumbing shared by the watchdog: a
// tuned outbound reader used by the kubelet health probes and a buffered JSON
// responder used by the server's auxiliary endpoints.
//
// # HttpReader
//
// HttpReader wraps an *http.Client with connection pooling and per-phase
// timeouts. Get returns the status code and body instead of turning non-2xx
// responses into errors, so callers can label an unhealthy endpoint by its
// status:
//
//	r := serializer.NewHttpReader(serializer.WithTotalTimeout(5 * time.Second))
//	resp, err := r.Get(ctx, "http://10.0.0.7:10255/healthz")
//	if err != nil {
//	    // transport failure or timeout
//	}
//	if !resp.OK() {
//	    // e.g. 500
//	}
//
// # RespondJSON
//
// RespondJSON encodes into a buffer before writing headers, so an encoding
// failure yields a clean 500 instead of a truncated 200.
package serializer
