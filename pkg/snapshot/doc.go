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

// Package snapshot holds the state published by one collection iteration and
// the reference cell through which the exposition endpoint reads it.
//
// A Snapshot is assembled by the collection loop, frozen by New and then
// handed to Ref.Publish. From that point it is shared read-only: scrapes
// call Ref.Load and render whatever they got, while the loop keeps building
// the next one. Publish only swaps a pointer, so readers never wait on the
// producer and never see a half-built snapshot.
//
// Exporter adapts a Ref to prometheus.Collector. Before the first publish it
// emits nothing, which renders as an empty but valid exposition.
package snapshot
