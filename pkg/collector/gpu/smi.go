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
	"encoding/xml"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/NVIDIA/cluster-watchdog/pkg/errors"
	"github.com/NVIDIA/cluster-watchdog/pkg/probe"
)

const notAvailable = "N/A"

// NVSMIDevice is the root element of an nvidia-smi XML report.
type NVSMIDevice struct {
	Timestamp     string     `xml:"timestamp"`
	DriverVersion string     `xml:"driver_version"`
	CudaVersion   string     `xml:"cuda_version"`
	AttachedGPUs  string     `xml:"attached_gpus"`
	GPUs          []NVSMIGPU `xml:"gpu"`
}

// NVSMIGPU is a single <gpu> element.
type NVSMIGPU struct {
	ID                  string        `xml:"id,attr"`
	ProductName         string        `xml:"product_name"`
	ProductArchitecture string        `xml:"product_architecture"`
	Serial              string        `xml:"serial"`
	UUID                string        `xml:"uuid"`
	MinorNumber         string        `xml:"minor_number"`
	FbMemoryUsage       MemoryUsage   `xml:"fb_memory_usage"`
	Utilization         Utilization   `xml:"utilization"`
	ECCErrors           ECCErrors     `xml:"ecc_errors"`
	Processes           []ProcessInfo `xml:"processes>process_info"`
}

// MemoryUsage values carry a unit suffix, e.g. "81559 MiB".
type MemoryUsage struct {
	Total string `xml:"total"`
	Used  string `xml:"used"`
	Free  string `xml:"free"`
}

// Utilization values carry a percent suffix, e.g. "37 %".
type Utilization struct {
	GPUUtil    string `xml:"gpu_util"`
	MemoryUtil string `xml:"memory_util"`
}

// ECCErrors holds the volatile ECC counters. Older drivers report
// single_bit/double_bit totals, newer ones split SRAM and DRAM.
type ECCErrors struct {
	Volatile struct {
		SingleBitTotal    string `xml:"single_bit>total"`
		DoubleBitTotal    string `xml:"double_bit>total"`
		SRAMCorrectable   string `xml:"sram_correctable"`
		SRAMUncorrectable string `xml:"sram_uncorrectable"`
		DRAMCorrectable   string `xml:"dram_correctable"`
		DRAMUncorrectable string `xml:"dram_uncorrectable"`
	} `xml:"volatile"`
}

// ProcessInfo is one process using the device.
type ProcessInfo struct {
	PID         string `xml:"pid"`
	ProcessName string `xml:"process_name"`
	UsedMemory  string `xml:"used_memory"`
}

// ECC is the pair of volatile ECC error counts.
type ECC struct {
	VolatileSingle float64
	VolatileDouble float64
}

// Status is the exported view of one supported device.
type Status struct {
	Minor        int
	UUID         string
	ProductName  string
	Architecture string
	GPUUtil      float64
	MemUtil      float64
	MemUsedMiB   float64
	MemTotalMiB  float64
	PIDs         []int
	// ECC is nil when the device does not report ECC counters.
	ECC *ECC
}

// Inventory is the parsed result of one nvidia-smi invocation.
// ByMinor and ByUUID index the same records.
type Inventory struct {
	Driver      string
	Attached    int
	Unsupported int
	ByMinor     map[int]*Status
	ByUUID      map[string]*Status
	// Invalid lists devices that could not be converted.
	Invalid []probe.ItemError
}

func newInventory() *Inventory {
	return &Inventory{
		ByMinor: make(map[int]*Status),
		ByUUID:  make(map[string]*Status),
	}
}

// Minors returns the minor numbers of all supported devices in ascending order.
func (inv *Inventory) Minors() []int {
	if inv == nil {
		return nil
	}
	minors := make([]int, 0, len(inv.ByMinor))
	for m := range inv.ByMinor {
		minors = append(minors, m)
	}
	sort.Ints(minors)
	return minors
}

// Parse converts an nvidia-smi XML report into an Inventory.
// An empty supported list accepts every architecture.
func Parse(data []byte, supported []string) (*Inventory, error) {
	var d NVSMIDevice
	if err := xml.Unmarshal(data, &d); err != nil {
		return nil, errors.Wrap(errors.ErrCodeParseFailure, "failed to unmarshal nvidia-smi report", err)
	}

	inv := newInventory()
	inv.Driver = d.DriverVersion
	inv.Attached = len(d.GPUs)

	inv.Invalid = probe.Each(d.GPUs, func(g NVSMIGPU) error {
		s, err := toStatus(g, supported)
		if err != nil {
			return err
		}
		if s == nil {
			inv.Unsupported++
			return nil
		}
		if _, dup := inv.ByMinor[s.Minor]; dup {
			return errors.NewWithContext(errors.ErrCodeParseFailure, "duplicate minor number",
				map[string]any{"minor": s.Minor, "uuid": s.UUID})
		}
		inv.ByMinor[s.Minor] = s
		if s.UUID != "" {
			inv.ByUUID[s.UUID] = s
		}
		return nil
	})

	return inv, nil
}

// toStatus returns nil for unsupported devices.
func toStatus(g NVSMIGPU, supported []string) (*Status, error) {
	arch := strings.TrimSpace(g.ProductArchitecture)
	if !isSupported(arch, supported) {
		return nil, nil
	}

	gpuUtil := strings.TrimSpace(g.Utilization.GPUUtil)
	memUtil := strings.TrimSpace(g.Utilization.MemoryUtil)
	if gpuUtil == notAvailable || memUtil == notAvailable {
		return nil, nil
	}

	ctx := map[string]any{"uuid": g.UUID, "minor": g.MinorNumber}

	minor, err := strconv.Atoi(strings.TrimSpace(g.MinorNumber))
	if err != nil {
		return nil, errors.WrapWithContext(errors.ErrCodeParseFailure, "invalid minor_number", err, ctx)
	}

	s := &Status{
		Minor:        minor,
		UUID:         strings.TrimSpace(g.UUID),
		ProductName:  strings.TrimSpace(g.ProductName),
		Architecture: arch,
	}

	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"gpu_util", gpuUtil, &s.GPUUtil},
		{"memory_util", memUtil, &s.MemUtil},
		{"fb_memory_usage.used", g.FbMemoryUsage.Used, &s.MemUsedMiB},
		{"fb_memory_usage.total", g.FbMemoryUsage.Total, &s.MemTotalMiB},
	}
	for _, f := range fields {
		v, err := number(f.raw)
		if err != nil {
			return nil, errors.WrapWithContext(errors.ErrCodeParseFailure, "invalid "+f.name, err, ctx)
		}
		*f.dst = v
	}

	for _, p := range g.Processes {
		pid, err := strconv.Atoi(strings.TrimSpace(p.PID))
		if err != nil {
			return nil, errors.WrapWithContext(errors.ErrCodeParseFailure, "invalid process pid", err, ctx)
		}
		s.PIDs = append(s.PIDs, pid)
	}

	s.ECC = volatileECC(g.ECCErrors)
	return s, nil
}

func isSupported(arch string, supported []string) bool {
	if len(supported) == 0 || arch == "" || arch == notAvailable {
		return true
	}
	return slices.ContainsFunc(supported, func(a string) bool {
		return strings.EqualFold(a, arch)
	})
}

// volatileECC returns nil when no counter is readable.
func volatileECC(e ECCErrors) *ECC {
	v := e.Volatile
	single, okS := sum(v.SingleBitTotal)
	double, okD := sum(v.DoubleBitTotal)
	if !okS && !okD {
		single, okS = sum(v.SRAMCorrectable, v.DRAMCorrectable)
		double, okD = sum(v.SRAMUncorrectable, v.DRAMUncorrectable)
	}
	if !okS && !okD {
		return nil
	}
	return &ECC{VolatileSingle: single, VolatileDouble: double}
}

// sum adds the readable values and reports whether any was readable.
func sum(raw ...string) (float64, bool) {
	var total float64
	var ok bool
	for _, r := range raw {
		if v, err := number(r); err == nil {
			total += v
			ok = true
		}
	}
	return total, ok
}

// number parses values such as "37 %" or "1024 MiB".
func number(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	for _, suffix := range []string{"%", "MiB"} {
		s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
	}
	if s == "" || s == notAvailable {
		return 0, fmt.Errorf("value %q is not a number", raw)
	}
	return strconv.ParseFloat(s, 64)
}
