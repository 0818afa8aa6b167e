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

package gpu

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/cluster-watchdog/pkg/defaults"
	"github.com/NVIDIA/cluster-watchdog/pkg/errors"
	"github.com/NVIDIA/cluster-watchdog/pkg/fetcher"
	"github.com/NVIDIA/cluster-watchdog/pkg/metrics"
)

func readFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/nvidia-smi.xml")
	require.NoError(t, err)
	return data
}

func TestParse(t *testing.T) {
	inv, err := Parse(readFixture(t), defaults.SupportedArchitectures)
	require.NoError(t, err)

	assert.Equal(t, "570.86.15", inv.Driver)
	assert.Equal(t, 4, inv.Attached)
	// Kepler is not supported, the GeForce card reports N/A utilization
	assert.Equal(t, 2, inv.Unsupported)
	assert.Empty(t, inv.Invalid)
	assert.Equal(t, []int{0, 2}, inv.Minors())

	h100 := inv.ByMinor[0]
	require.NotNil(t, h100)
	assert.Equal(t, "GPU-e511a7b2-f9d5-ba47-9b98-853732ca6c1b", h100.UUID)
	assert.Equal(t, "NVIDIA H100 80GB HBM3", h100.ProductName)
	assert.Equal(t, "Hopper", h100.Architecture)
	assert.InDelta(t, 98, h100.GPUUtil, 0)
	assert.InDelta(t, 50, h100.MemUtil, 0)
	assert.InDelta(t, 40960, h100.MemUsedMiB, 0)
	assert.InDelta(t, 81559, h100.MemTotalMiB, 0)
	assert.Equal(t, []int{4242}, h100.PIDs)
	require.NotNil(t, h100.ECC)
	assert.Equal(t, ECC{VolatileSingle: 3, VolatileDouble: 0}, *h100.ECC)

	p100 := inv.ByUUID["GPU-28daffaf-8abe-aaf8-c298-4bd13aecb5e6"]
	require.NotNil(t, p100)
	assert.Same(t, inv.ByMinor[2], p100)
	assert.Empty(t, p100.PIDs)
	assert.Equal(t, ECC{VolatileSingle: 3, VolatileDouble: 1}, *p100.ECC)

	assert.NotContains(t, inv.ByMinor, 1)
	assert.NotContains(t, inv.ByMinor, 3)
}

func TestParse_AllArchitectures(t *testing.T) {
	inv, err := Parse(readFixture(t), nil)
	require.NoError(t, err)

	// only the N/A device is dropped
	assert.Equal(t, []int{0, 1, 2}, inv.Minors())
	assert.Equal(t, 1, inv.Unsupported)
	assert.Nil(t, inv.ByMinor[1].ECC)
}

func TestParse_NoGPUs(t *testing.T) {
	inv, err := Parse([]byte(`<?xml version="1.0" ?>
<nvidia_smi_log>
	<driver_version>550.0</driver_version>
	<attached_gpus>0</attached_gpus>
</nvidia_smi_log>`), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, inv.Attached)
	assert.Empty(t, inv.ByMinor)
	assert.Empty(t, inv.ByUUID)
}

func TestParse_InvalidXML(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{"empty", []byte("")},
		{"not xml", []byte("not xml at all")},
		{"malformed xml", []byte("<nvidia_smi_log><unclosed>")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.data, nil)
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeParseFailure, errors.Classify(err))
		})
	}
}

func TestParse_InvalidDevice(t *testing.T) {
	inv, err := Parse([]byte(`<nvidia_smi_log>
	<gpu>
		<uuid>GPU-a</uuid>
		<minor_number>zero</minor_number>
		<utilization><gpu_util>1 %</gpu_util><memory_util>1 %</memory_util></utilization>
	</gpu>
	<gpu>
		<uuid>GPU-b</uuid>
		<minor_number>1</minor_number>
		<fb_memory_usage><total>100 MiB</total><used>lots</used></fb_memory_usage>
		<utilization><gpu_util>1 %</gpu_util><memory_util>1 %</memory_util></utilization>
	</gpu>
	<gpu>
		<uuid>GPU-c</uuid>
		<minor_number>2</minor_number>
		<fb_memory_usage><total>100 MiB</total><used>10 MiB</used></fb_memory_usage>
		<utilization><gpu_util>7 %</gpu_util><memory_util>3 %</memory_util></utilization>
	</gpu>
</nvidia_smi_log>`), nil)
	require.NoError(t, err)

	require.Len(t, inv.Invalid, 2)
	assert.Equal(t, 0, inv.Invalid[0].Index)
	assert.Equal(t, 1, inv.Invalid[1].Index)
	assert.Equal(t, errors.ErrCodeParseFailure, errors.Classify(inv.Invalid[1]))
	assert.Equal(t, []int{2}, inv.Minors())
	assert.Equal(t, 3, inv.Attached)
}

func TestNumber(t *testing.T) {
	tests := []struct {
		raw     string
		want    float64
		wantErr bool
	}{
		{"37 %", 37, false},
		{"81559 MiB", 81559, false},
		{" 4 ", 4, false},
		{"N/A", 0, true},
		{"", 0, true},
		{"lots", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := number(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 0)
		})
	}
}

func newTestCollector(t *testing.T, run runner, opts ...Option) (*Collector, *metrics.Registry, *metrics.ErrorCounter) {
	t.Helper()
	reg := metrics.NewRegistry(metrics.WithRuntimeCollectors(false))
	errs := metrics.NewErrorCounter(reg)
	c := NewCollector(reg, errs, []fetcher.Option{fetcher.WithWaitTimeout(time.Second)}, opts...)
	c.run = run
	return c, reg, errs
}

func TestCollector_Collect(t *testing.T) {
	data := readFixture(t)
	c, reg, _ := newTestCollector(t, func(_ context.Context, name string, args ...string) ([]byte, error) {
		assert.Equal(t, nvidiaSMICommand, name)
		assert.Equal(t, []string{"-q", "-x"}, args)
		return data, nil
	})
	cols := reg.NewCollections()

	inv := c.Collect(context.Background(), cols)
	require.NotNil(t, inv)

	assert.Equal(t, []metrics.Point{{Value: 4}},
		metrics.Find(cols, c.attachedFamily).Points())
	assert.Equal(t, []metrics.Point{
		{Labels: []string{"0"}, Value: 98},
		{Labels: []string{"2"}, Value: 0},
	}, metrics.Find(cols, c.gpuUtilFamily).Points())
	assert.Equal(t, []metrics.Point{
		{Labels: []string{"0"}, Value: 81559},
		{Labels: []string{"2"}, Value: 16280},
	}, metrics.Find(cols, c.memTotalFamily).Points())
	assert.Equal(t, []metrics.Point{
		{Labels: []string{"0", "volatile_single"}, Value: 3},
		{Labels: []string{"0", "volatile_double"}, Value: 0},
		{Labels: []string{"2", "volatile_single"}, Value: 3},
		{Labels: []string{"2", "volatile_double"}, Value: 1},
	}, metrics.Find(cols, c.eccFamily).Points())
}

func TestCollector_GracefulDegradation_WhenNvidiaSmiMissing(t *testing.T) {
	c, reg, _ := newTestCollector(t, execRunner, WithPath("/nonexistent/bin/nvidia-smi"))

	inv, err := c.Query(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, inv.Attached)

	cols := reg.NewCollections()
	require.NotNil(t, c.Collect(context.Background(), cols))
	assert.Equal(t, []metrics.Point{{Value: 0}},
		metrics.Find(cols, c.attachedFamily).Points())
	assert.Equal(t, 0, metrics.Find(cols, c.gpuUtilFamily).Len())
}

func TestCollector_QueryTimeout(t *testing.T) {
	c, _, _ := newTestCollector(t, func(ctx context.Context, _ string, _ ...string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, WithTimeout(20*time.Millisecond))

	_, err := c.Query(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeTimeout, errors.Classify(err))
}

func TestCollector_Unavailable(t *testing.T) {
	c, reg, errs := newTestCollector(t, func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New(errors.ErrCodeTransportFailure, "driver not loaded")
	})
	cols := reg.NewCollections()

	assert.Nil(t, c.Collect(context.Background(), cols))
	assert.Equal(t, 0, metrics.Find(cols, c.attachedFamily).Len())
	assert.InDelta(t, 1, testutil.ToFloat64(errs.With(source, errors.ErrCodeUnavailable)), 0)
}

func TestCollector_CountsInvalidDevicesPerQuery(t *testing.T) {
	c, _, errs := newTestCollector(t, func(context.Context, string, ...string) ([]byte, error) {
		return []byte(`<nvidia_smi_log><gpu><minor_number>x</minor_number></gpu></nvidia_smi_log>`), nil
	})

	_, err := c.Query(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1, testutil.ToFloat64(errs.With(source, errors.ErrCodeParseFailure)), 0)
}
