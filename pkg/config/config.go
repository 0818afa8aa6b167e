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

package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NVIDIA/cluster-watchdog/pkg/defaults"
	"github.com/NVIDIA/cluster-watchdog/pkg/errors"
)

// EnvPrefix prefixes every environment override, e.g. WATCHDOG_PORT.
const EnvPrefix = "WATCHDOG_"

// Host is one roster entry.
type Host struct {
	HostIP   string `yaml:"hostip"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	SSHPort  int    `yaml:"sshport"`
	KeyFile  string `yaml:"keyfile"`
	// Local hosts are checked through systemd on this machine.
	Local bool `yaml:"local"`
}

// Config holds the watchdog configuration.
type Config struct {
	// Exposition endpoint
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`

	// Collection loop
	Interval   time.Duration `yaml:"interval"`
	ProbeLimit int           `yaml:"probeLimit"`

	// Roster
	HostsFile      string `yaml:"hostsFile"`
	KnownHostsFile string `yaml:"knownHostsFile"`

	// Orchestrator
	APIServer    string `yaml:"apiServer"`
	Kubeconfig   string `yaml:"kubeconfig"`
	PodNamespace string `yaml:"podNamespace"`
	ServiceLabel string `yaml:"serviceLabel"`
	KubeletPort  int    `yaml:"kubeletPort"`

	// GPU
	NvidiaSMIPath          string        `yaml:"nvidiaSmiPath"`
	GPUWaitTimeout         time.Duration `yaml:"gpuWaitTimeout"`
	GPUStaleness           time.Duration `yaml:"gpuStaleness"`
	SupportedArchitectures []string      `yaml:"supportedArchitectures"`

	// Jobs
	JobLabels []string `yaml:"jobLabels"`
	EnvPrefix string   `yaml:"envPrefix"`

	// Probe timeouts
	HealthzTimeout time.Duration `yaml:"healthzTimeout"`
	ListTimeout    time.Duration `yaml:"listTimeout"`
	SSHTimeout     time.Duration `yaml:"sshTimeout"`
	DockerTimeout  time.Duration `yaml:"dockerTimeout"`

	// Check groups
	EnableKubernetes bool `yaml:"enableKubernetes"`
	EnableSSH        bool `yaml:"enableSsh"`
	EnableGPU        bool `yaml:"enableGpu"`
	EnableDocker     bool `yaml:"enableDocker"`

	LogLevel string `yaml:"logLevel"`
}

// DefaultJobLabels are the projected container labels exported on job metrics.
var DefaultJobLabels = []string{
	"container_label_PAI_USER_NAME",
	"container_label_PAI_JOB_NAME",
	"container_label_PAI_CURRENT_TASK_ROLE_NAME",
	"container_env_PAI_TASK_INDEX",
}

// Default returns a Config populated from pkg/defaults.
func Default() *Config {
	return &Config{
		Port:                   defaults.ServerPort,
		Interval:               defaults.CollectionInterval,
		HostsFile:              defaults.HostsFile,
		PodNamespace:           defaults.PodNamespace,
		ServiceLabel:           defaults.ServiceLabel,
		KubeletPort:            defaults.KubeletReadOnlyPort,
		NvidiaSMIPath:          defaults.NvidiaSMIPath,
		GPUWaitTimeout:         defaults.GPUWaitTimeout,
		GPUStaleness:           defaults.GPUStaleness,
		SupportedArchitectures: append([]string{}, defaults.SupportedArchitectures...),
		JobLabels:              append([]string{}, DefaultJobLabels...),
		EnvPrefix:              defaults.EnvPrefix,
		HealthzTimeout:         defaults.HealthzTimeout,
		ListTimeout:            defaults.ListTimeout,
		SSHTimeout:             defaults.SSHTimeout,
		DockerTimeout:          defaults.DockerTimeout,
		EnableKubernetes:       true,
		EnableSSH:              true,
		EnableGPU:              true,
		EnableDocker:           true,
		LogLevel:               "info",
	}
}

// Load returns the defaults overlaid with the YAML file at path (if any)
// and the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeNotFound, "failed to read config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidRequest, "failed to parse config file", err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from WATCHDOG_* variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, b := range c.bindings() {
		v, ok := lookup(EnvPrefix + b.env)
		if !ok {
			continue
		}
		if err := b.set(v); err != nil {
			return errors.WrapWithContext(errors.ErrCodeInvalidRequest, "invalid environment override", err,
				map[string]any{"variable": EnvPrefix + b.env})
		}
	}
	return nil
}

type binding struct {
	env string
	set func(string) error
}

func (c *Config) bindings() []binding {
	return []binding{
		{"ADDRESS", setString(&c.Address)},
		{"PORT", setInt(&c.Port)},
		{"INTERVAL", setDuration(&c.Interval)},
		{"PROBE_LIMIT", setInt(&c.ProbeLimit)},
		{"HOSTS_FILE", setString(&c.HostsFile)},
		{"KNOWN_HOSTS_FILE", setString(&c.KnownHostsFile)},
		{"API_SERVER", setString(&c.APIServer)},
		{"KUBECONFIG", setString(&c.Kubeconfig)},
		{"POD_NAMESPACE", setString(&c.PodNamespace)},
		{"SERVICE_LABEL", setString(&c.ServiceLabel)},
		{"KUBELET_PORT", setInt(&c.KubeletPort)},
		{"NVIDIA_SMI_PATH", setString(&c.NvidiaSMIPath)},
		{"GPU_WAIT_TIMEOUT", setDuration(&c.GPUWaitTimeout)},
		{"GPU_STALENESS", setDuration(&c.GPUStaleness)},
		{"SUPPORTED_ARCHITECTURES", setList(&c.SupportedArchitectures)},
		{"JOB_LABELS", setList(&c.JobLabels)},
		{"ENV_PREFIX", setString(&c.EnvPrefix)},
		{"HEALTHZ_TIMEOUT", setDuration(&c.HealthzTimeout)},
		{"LIST_TIMEOUT", setDuration(&c.ListTimeout)},
		{"SSH_TIMEOUT", setDuration(&c.SSHTimeout)},
		{"DOCKER_TIMEOUT", setDuration(&c.DockerTimeout)},
		{"ENABLE_KUBERNETES", setBool(&c.EnableKubernetes)},
		{"ENABLE_SSH", setBool(&c.EnableSSH)},
		{"ENABLE_GPU", setBool(&c.EnableGPU)},
		{"ENABLE_DOCKER", setBool(&c.EnableDocker)},
		{"LOG_LEVEL", setString(&c.LogLevel)},
	}
}

func setString(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func setInt(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func setBool(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func setDuration(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

// setList splits on commas and drops empty entries.
func setList(dst *[]string) func(string) error {
	return func(v string) error {
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		*dst = out
		return nil
	}
}

// Validate rejects non-positive durations and out of range ports.
func (c *Config) Validate() error {
	durations := map[string]time.Duration{
		"interval":       c.Interval,
		"gpuWaitTimeout": c.GPUWaitTimeout,
		"gpuStaleness":   c.GPUStaleness,
		"healthzTimeout": c.HealthzTimeout,
		"listTimeout":    c.ListTimeout,
		"sshTimeout":     c.SSHTimeout,
		"dockerTimeout":  c.DockerTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return errors.NewWithContext(errors.ErrCodeInvalidRequest, "duration must be positive",
				map[string]any{"field": name, "value": d.String()})
		}
	}

	ports := map[string]int{"port": c.Port, "kubeletPort": c.KubeletPort}
	for name, p := range ports {
		if p < 1 || p > 65535 {
			return errors.NewWithContext(errors.ErrCodeInvalidRequest, "port out of range",
				map[string]any{"field": name, "value": p})
		}
	}

	if c.ProbeLimit < 0 {
		return errors.New(errors.ErrCodeInvalidRequest, "probeLimit must not be negative")
	}
	if c.EnableKubernetes && c.ServiceLabel == "" {
		return errors.New(errors.ErrCodeInvalidRequest, "serviceLabel is required")
	}
	if c.APIServer != "" {
		if _, err := url.Parse(c.APIServer); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidRequest, "invalid apiServer", err)
		}
	}
	return nil
}

// APIHost returns the host used as host_ip label for control plane probes.
func (c *Config) APIHost() string {
	if c.APIServer == "" {
		return "unknown"
	}
	u, err := url.Parse(c.APIServer)
	if err != nil || u.Hostname() == "" {
		return c.APIServer
	}
	return u.Hostname()
}

// ListenAddress returns the listen address of the exposition endpoint.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Address, c.Port)
}

type roster struct {
	Hosts []Host `yaml:"hosts"`
}

// LoadHosts reads the host roster. Entries without hostip are rejected.
func LoadHosts(path string) ([]Host, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNotFound, "failed to read host roster", err)
	}

	var r roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidRequest, "failed to parse host roster", err)
	}

	for i, h := range r.Hosts {
		if h.HostIP == "" {
			return nil, errors.NewWithContext(errors.ErrCodeInvalidRequest, "roster entry without hostip",
				map[string]any{"index": i})
		}
		if h.SSHPort == 0 {
			r.Hosts[i].SSHPort = defaults.SSHPort
		}
	}
	return r.Hosts, nil
}
