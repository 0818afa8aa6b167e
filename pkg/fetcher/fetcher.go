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

package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/utils/clock"

	"github.com/NVIDIA/cluster-watchdog/pkg/defaults"
	"github.com/NVIDIA/cluster-watchdog/pkg/errors"
)

const (
	ResultFresh       = "fresh"
	ResultCached      = "cached"
	ResultUnavailable = "unavailable"
)

// Result is a successfully fetched value and the time it was captured.
type Result[T any] struct {
	Value      T
	CapturedAt time.Time
}

type attempt[T any] struct {
	value T
	err   error
}

// flight is one worker invocation. done is closed once a is set.
type flight[T any] struct {
	done chan struct{}
	a    attempt[T]
}

// Option configures a Fetcher.
type Option func(*options)

type options struct {
	waitTimeout  time.Duration
	staleness    time.Duration
	fetchTimeout time.Duration
	clock        clock.PassiveClock
	results      *prometheus.CounterVec
}

// WithWaitTimeout sets how long TryGet waits for a fresh result.
func WithWaitTimeout(d time.Duration) Option {
	return func(o *options) {
		o.waitTimeout = d
	}
}

// WithStaleness sets the maximum age of a cached result that may be served.
func WithStaleness(d time.Duration) Option {
	return func(o *options) {
		o.staleness = d
	}
}

// WithFetchTimeout bounds the context handed to the fetch function.
// Zero leaves the worker context without a deadline.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *options) {
		o.fetchTimeout = d
	}
}

// WithClock sets the clock used to stamp and age cached results.
func WithClock(c clock.PassiveClock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithResultCounter counts TryGet results by fetcher name and result.
func WithResultCounter(vec *prometheus.CounterVec) Option {
	return func(o *options) {
		o.results = vec
	}
}

// Fetcher deduplicates calls to one expensive data source.
type Fetcher[T any] struct {
	name  string
	fetch func(context.Context) (T, error)
	opts  options

	// gate is held by the running worker. It is acquired by the caller that
	// spawns the worker and released by the worker itself.
	gate     sync.Mutex
	inFlight atomic.Bool

	// mu guards cached and slot. slot holds the newest flight; starting a
	// flight replaces a completed one nobody read.
	mu     sync.RWMutex
	cached *Result[T]
	slot   *flight[T]
}

// New returns a Fetcher around fetch.
func New[T any](name string, fetch func(context.Context) (T, error), opts ...Option) *Fetcher[T] {
	o := options{
		waitTimeout: defaults.GPUWaitTimeout,
		staleness:   defaults.GPUStaleness,
		clock:       clock.RealClock{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Fetcher[T]{
		name:  name,
		fetch: fetch,
		opts:  o,
	}
}

// Name returns the fetcher name.
func (f *Fetcher[T]) Name() string {
	return f.name
}

// InFlight reports whether a worker is currently running.
func (f *Fetcher[T]) InFlight() bool {
	return f.inFlight.Load()
}

// Cached returns the last successful result, false if there is none.
func (f *Fetcher[T]) Cached() (Result[T], bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.cached == nil {
		return Result[T]{}, false
	}
	return *f.cached, true
}

// TryGet returns a fresh value when one arrives within the wait timeout,
// otherwise the cached value if it is within the staleness bound, otherwise
// an ErrCodeUnavailable error. It never blocks longer than the wait timeout.
func (f *Fetcher[T]) TryGet(ctx context.Context) (T, error) {
	fl := f.join()

	timer := time.NewTimer(f.opts.waitTimeout)
	defer timer.Stop()

	select {
	case <-fl.done:
		if fl.a.err == nil {
			f.count(ResultFresh)
			return fl.a.value, nil
		}
	case <-timer.C:
		slog.Debug("fetch wait timed out", "fetcher", f.name, "timeout", f.opts.waitTimeout)
	case <-ctx.Done():
	}

	return f.fallback()
}

// join returns the running flight, or starts one when the gate is free.
// The gate is only taken and released under mu, so a held gate always
// pairs with an unfinished slot.
func (f *Fetcher[T]) join() *flight[T] {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.gate.TryLock() {
		slog.Debug("fetch still in flight", "fetcher", f.name)
		return f.slot
	}

	fl := &flight[T]{done: make(chan struct{})}
	f.slot = fl
	f.inFlight.Store(true)
	go f.work(fl)
	return fl
}

func (f *Fetcher[T]) fallback() (T, error) {
	var zero T

	r, ok := f.Cached()
	if !ok {
		f.count(ResultUnavailable)
		return zero, errors.NewWithContext(errors.ErrCodeUnavailable, "no fresh or cached result", map[string]any{
			"fetcher": f.name,
		})
	}

	age := f.opts.clock.Since(r.CapturedAt)
	if age > f.opts.staleness {
		f.count(ResultUnavailable)
		slog.Info("cached result too old", "fetcher", f.name, "age", age)
		return zero, errors.NewWithContext(errors.ErrCodeUnavailable, "cached result exceeds staleness bound", map[string]any{
			"fetcher":   f.name,
			"age":       age.String(),
			"staleness": f.opts.staleness.String(),
		})
	}

	f.count(ResultCached)
	return r.Value, nil
}

func (f *Fetcher[T]) work(fl *flight[T]) {
	start := time.Now()
	a := f.invoke()

	if a.err != nil {
		slog.Warn("fetch failed", "fetcher", f.name, "error", a.err, "duration", time.Since(start))
	} else {
		slog.Debug("fetch completed", "fetcher", f.name, "duration", time.Since(start))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if a.err == nil {
		f.cached = &Result[T]{Value: a.value, CapturedAt: f.opts.clock.Now()}
	}
	fl.a = a
	close(fl.done)
	f.inFlight.Store(false)
	f.gate.Unlock()
}

func (f *Fetcher[T]) invoke() (a attempt[T]) {
	defer func() {
		if r := recover(); r != nil {
			a = attempt[T]{err: errors.New(errors.ErrCodeInternal, fmt.Sprintf("fetch panicked: %v", r))}
		}
	}()

	ctx := context.Background()
	if f.opts.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.fetchTimeout)
		defer cancel()
	}

	v, err := f.fetch(ctx)
	return attempt[T]{value: v, err: err}
}

func (f *Fetcher[T]) count(result string) {
	if f.opts.results != nil {
		f.opts.results.WithLabelValues(f.name, result).Inc()
	}
}
