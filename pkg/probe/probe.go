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

package probe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/NVIDIA/cluster-watchdog/pkg/errors"
)

// Probe is one bounded call against one target.
type Probe[T any] struct {
	// Name identifies the check, e.g. "k8s_kubelet".
	Name string
	// Target is the URL, host or command the probe talks to.
	Target string
	// Timeout bounds Execute. Zero means the parent context bounds it.
	Timeout time.Duration
	// Latency, when set, observes the duration of every execution.
	Latency prometheus.Observer
	// Run performs the check.
	Run func(ctx context.Context) (T, error)
}

// Outcome is the result of exactly one probe execution.
type Outcome[T any] struct {
	Probe   string
	Target  string
	Record  T
	Err     error
	Code    errors.ErrorCode
	Latency time.Duration
}

// Ok reports whether the probe produced a record.
func (o Outcome[T]) Ok() bool {
	return o.Err == nil
}

type result[T any] struct {
	rec T
	err error
}

// Execute runs the probe and returns its outcome.
func (p Probe[T]) Execute(ctx context.Context) Outcome[T] {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan result[T], 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result[T]{err: errors.New(errors.ErrCodeInternal, fmt.Sprintf("probe %s panicked: %v", p.Name, r))}
			}
		}()
		rec, err := p.Run(ctx)
		done <- result[T]{rec: rec, err: err}
	}()

	var res result[T]
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = errors.WrapWithContext(errors.ErrCodeTimeout, "probe did not complete", ctx.Err(), map[string]any{
			"probe":  p.Name,
			"target": p.Target,
		})
	}

	elapsed := time.Since(start)
	if p.Latency != nil {
		p.Latency.Observe(elapsed.Seconds())
	}

	out := Outcome[T]{
		Probe:   p.Name,
		Target:  p.Target,
		Record:  res.rec,
		Err:     res.err,
		Latency: elapsed,
	}
	if res.err != nil {
		out.Code = errors.Classify(res.err)
		slog.Debug("probe failed", "probe", p.Name, "target", p.Target, "kind", errors.Label(out.Code), "error", res.err)
	}
	return out
}

// RunAll executes every probe concurrently, at most limit at a time
// (limit <= 0 means no limit). Outcomes are returned in probe order.
func RunAll[T any](ctx context.Context, probes []Probe[T], limit int) []Outcome[T] {
	out := make([]Outcome[T], len(probes))

	g := new(errgroup.Group)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, p := range probes {
		g.Go(func() error {
			out[i] = p.Execute(ctx)
			return nil
		})
	}

	// Execute never returns an error to the group
	_ = g.Wait()
	return out
}

// ItemError reports a failure while processing one list item.
type ItemError struct {
	Index int
	Err   error
}

// Error implements the error interface.
func (e ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

// Unwrap returns the underlying error.
func (e ItemError) Unwrap() error {
	return e.Err
}

// Each calls fn for every item, recovering panics, and returns the
// failures. Processing always continues with the next item.
func Each[I any](items []I, fn func(I) error) []ItemError {
	var errs []ItemError
	for i, item := range items {
		if err := safeCall(item, fn); err != nil {
			errs = append(errs, ItemError{Index: i, Err: err})
		}
	}
	return errs
}

func safeCall[I any](item I, fn func(I) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.ErrCodeParseFailure, fmt.Sprintf("item processing panicked: %v", r))
		}
	}()
	return fn(item)
}
