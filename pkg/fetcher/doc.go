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

// Package fetcher wraps a slow and possibly blocking data source so that
// callers never wait on it for more than a fixed bound.
//
// # Overview
//
// A Fetcher runs at most one invocation of its fetch function at a time.
// TryGet starts a background worker when none is running, then waits for the
// nearer of the worker result, the wait timeout or context cancellation. When
// no fresh result arrives in time, the last successful result is returned as
// long as it is younger than the staleness bound; after that TryGet reports
// ErrCodeUnavailable.
//
// A worker that never returns is abandoned, not killed. The gate guarantees
// there is never more than one such worker per Fetcher.
//
// # Usage
//
//	f := fetcher.New("gpu", smi.Query,
//	    fetcher.WithWaitTimeout(3*time.Second),
//	    fetcher.WithStaleness(time.Minute),
//	)
//
//	inv, err := f.TryGet(ctx)
//	if err != nil {
//	    // errors.ErrCodeUnavailable: neither fresh nor cached data
//	}
//
// Every caller waiting on the same worker returns as soon as it completes.
// Results delivered after the callers stopped waiting still refresh the
// cache; the next TryGet starts a new worker rather than reading them.
package fetcher
