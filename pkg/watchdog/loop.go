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

package watchdog

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/NVIDIA/cluster-watchdog/pkg/defaults"
	"github.com/NVIDIA/cluster-watchdog/pkg/errors"
	"github.com/NVIDIA/cluster-watchdog/pkg/metrics"
	"github.com/NVIDIA/cluster-watchdog/pkg/snapshot"
)

const (
	sourceIteration = "iteration"

	statusSuccess = "success"
	statusError   = "error"
)

// State is the phase the loop is in.
type State int32

const (
	// StateSleeping is the state between iterations and before the first one.
	StateSleeping State = iota
	// StateCollecting is the state while an iteration runs.
	StateCollecting
)

// String returns the lowercase state name.
func (s State) String() string {
	if s == StateCollecting {
		return "collecting"
	}
	return "sleeping"
}

// Check fills the families it owns in cols. Checks run concurrently and
// must only touch their own families.
type Check struct {
	Name string
	Run  func(ctx context.Context, cols []*metrics.Collection)
}

// Loop periodically runs checks and publishes the resulting snapshot.
type Loop struct {
	reg      *metrics.Registry
	errs     *metrics.ErrorCounter
	ref      *snapshot.Ref
	interval time.Duration
	clock    clock.Clock
	checks   []Check

	iteration atomic.Uint64
	state     atomic.Int32

	duration    prometheus.Histogram
	iterations  *prometheus.CounterVec
	lastPublish prometheus.Gauge
}

// Option configures a Loop.
type Option func(*Loop)

// WithInterval sets the sleep between iterations.
func WithInterval(d time.Duration) Option {
	return func(l *Loop) {
		l.interval = d
	}
}

// WithClock replaces the real clock, used for timestamps and the sleep timer.
func WithClock(c clock.Clock) Option {
	return func(l *Loop) {
		l.clock = c
	}
}

// WithChecks appends checks to the loop.
func WithChecks(checks ...Check) Option {
	return func(l *Loop) {
		l.checks = append(l.checks, checks...)
	}
}

// New creates a loop publishing to ref. The self metrics are registered on reg.
func New(reg *metrics.Registry, errs *metrics.ErrorCounter, ref *snapshot.Ref, opts ...Option) *Loop {
	l := &Loop{
		reg:      reg,
		errs:     errs,
		ref:      ref,
		interval: defaults.CollectionInterval,
		clock:    clock.RealClock{},
	}
	for _, opt := range opts {
		opt(l)
	}

	l.duration = reg.Histogram("watchdog_iteration_duration_seconds",
		"Time taken by one collection iteration",
		[]float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60})
	l.iterations = reg.Factory().NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchdog_iterations_total",
			Help: "Total number of collection iterations",
		},
		[]string{"status"}, // success or error
	)
	l.lastPublish = reg.Factory().NewGauge(
		prometheus.GaugeOpts{
			Name: "watchdog_last_publish_timestamp_seconds",
			Help: "Unix time of the last published snapshot",
		},
	)

	return l
}

// State returns the current phase of the loop.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Run collects until ctx is canceled. Iteration failures are counted and
// logged, never returned.
func (l *Loop) Run(ctx context.Context) error {
	names := make([]string, 0, len(l.checks))
	for _, c := range l.checks {
		names = append(names, c.Name)
	}
	slog.Info("collection loop started",
		slog.Duration("interval", l.interval),
		slog.Any("checks", names))

	for ctx.Err() == nil {
		if _, err := l.RunOnce(ctx); err != nil {
			slog.Error("collection iteration failed", slog.String("error", err.Error()))
		}

		timer := l.clock.NewTimer(l.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C():
		}
	}

	slog.Info("collection loop stopped", slog.Uint64("iterations", l.iteration.Load()))
	return nil
}

// RunOnce runs one iteration and publishes its snapshot. It returns an error
// only when the iteration could not be assembled; the previous snapshot then
// stays published.
func (l *Loop) RunOnce(ctx context.Context) (snap *snapshot.Snapshot, err error) {
	l.state.Store(int32(StateCollecting))
	defer l.state.Store(int32(StateSleeping))

	iteration := l.iteration.Add(1)
	start := l.clock.Now()

	defer func() {
		if r := recover(); r != nil {
			snap = nil
			err = errors.NewWithContext(errors.ErrCodeInternal, "collection iteration panicked", map[string]any{
				"iteration": iteration,
				"panic":     r,
			})
		}

		l.duration.Observe(l.clock.Since(start).Seconds())
		if err != nil {
			l.errs.Record(sourceIteration, err, "iteration", iteration)
			l.iterations.WithLabelValues(statusError).Inc()
			return
		}
		l.iterations.WithLabelValues(statusSuccess).Inc()
	}()

	cols := l.reg.NewCollections()

	var g errgroup.Group
	for _, c := range l.checks {
		g.Go(func() error {
			l.runCheck(ctx, c, cols)
			return nil
		})
	}
	// checks recover their own failures
	_ = g.Wait()

	now := l.clock.Now()
	snap = snapshot.New(iteration, now, cols)
	l.ref.Publish(snap)
	l.lastPublish.Set(float64(now.Unix()))

	slog.Debug("snapshot published",
		slog.Uint64("iteration", iteration),
		slog.Int("points", snap.Points()),
		slog.Duration("duration", l.clock.Since(start)))

	return snap, nil
}

func (l *Loop) runCheck(ctx context.Context, c Check, cols []*metrics.Collection) {
	start := l.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			l.errs.Record(c.Name, errors.NewWithContext(errors.ErrCodeInternal, "check panicked", map[string]any{
				"panic": r,
			}))
		}
		slog.Debug("check complete",
			slog.String("check", c.Name),
			slog.Duration("duration", l.clock.Since(start)))
	}()

	c.Run(ctx, cols)
}
