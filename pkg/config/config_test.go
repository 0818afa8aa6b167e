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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/cluster-watchdog/pkg/defaults"
	"github.com/NVIDIA/cluster-watchdog/pkg/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, defaults.ServerPort, cfg.Port)
	assert.Equal(t, defaults.CollectionInterval, cfg.Interval)
	assert.Equal(t, defaults.GPUWaitTimeout, cfg.GPUWaitTimeout)
	assert.Equal(t, defaults.GPUStaleness, cfg.GPUStaleness)
	assert.Equal(t, DefaultJobLabels, cfg.JobLabels)
	assert.True(t, cfg.EnableGPU)
	assert.Equal(t, ":9101", cfg.ListenAddress())

	// the defaults must not alias the package level slices
	cfg.SupportedArchitectures[0] = "changed"
	assert.NotEqual(t, "changed", defaults.SupportedArchitectures[0])
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "watchdog.yaml", `
port: 9200
interval: 15s
apiServer: https://10.151.40.133:6443
gpuStaleness: 2m
jobLabels: [container_label_PAI_USER_NAME]
enableSsh: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9200, cfg.Port)
	assert.Equal(t, 15*time.Second, cfg.Interval)
	assert.Equal(t, 2*time.Minute, cfg.GPUStaleness)
	assert.Equal(t, []string{"container_label_PAI_USER_NAME"}, cfg.JobLabels)
	assert.False(t, cfg.EnableSSH)
	assert.True(t, cfg.EnableGPU)
	assert.Equal(t, "10.151.40.133", cfg.APIHost())
	// untouched fields keep their defaults
	assert.Equal(t, defaults.KubeletReadOnlyPort, cfg.KubeletPort)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNotFound, errors.Classify(err))

	_, err = Load(writeFile(t, "bad.yaml", "port: [not, a, number]"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidRequest, errors.Classify(err))
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"WATCHDOG_PORT":                    "9300",
		"WATCHDOG_INTERVAL":                "45s",
		"WATCHDOG_ENABLE_DOCKER":           "false",
		"WATCHDOG_SUPPORTED_ARCHITECTURES": "Hopper, Blackwell,,",
		"WATCHDOG_API_SERVER":              "http://master:8080",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, 9300, cfg.Port)
	assert.Equal(t, 45*time.Second, cfg.Interval)
	assert.False(t, cfg.EnableDocker)
	assert.Equal(t, []string{"Hopper", "Blackwell"}, cfg.SupportedArchitectures)
	assert.Equal(t, "master", cfg.APIHost())
}

func TestApplyEnv_Invalid(t *testing.T) {
	tests := map[string]string{
		"WATCHDOG_PORT":          "http",
		"WATCHDOG_INTERVAL":      "30",
		"WATCHDOG_ENABLE_GPU":    "maybe",
		"WATCHDOG_SSH_TIMEOUT":   "soon",
		"WATCHDOG_KUBELET_PORT":  "",
		"WATCHDOG_GPU_STALENESS": "1 minute",
	}
	for k, v := range tests {
		t.Run(k, func(t *testing.T) {
			err := Default().ApplyEnv(func(name string) (string, bool) {
				if name == k {
					return v, true
				}
				return "", false
			})
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeInvalidRequest, errors.Classify(err))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero interval", func(c *Config) { c.Interval = 0 }},
		{"negative staleness", func(c *Config) { c.GPUStaleness = -time.Second }},
		{"zero wait", func(c *Config) { c.GPUWaitTimeout = 0 }},
		{"port too large", func(c *Config) { c.Port = 70000 }},
		{"kubelet port zero", func(c *Config) { c.KubeletPort = 0 }},
		{"negative probe limit", func(c *Config) { c.ProbeLimit = -1 }},
		{"missing service label", func(c *Config) { c.ServiceLabel = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeInvalidRequest, errors.Classify(err))
		})
	}
}

func TestLoadHosts(t *testing.T) {
	path := writeFile(t, "config.yml", `
hosts:
  - hostip: 10.0.0.1
    username: admin
    password: secret
  - hostip: 10.0.0.2
    username: admin
    keyfile: /etc/watchdog/id_ed25519
    sshport: 2222
  - hostip: 127.0.0.1
    local: true
`)

	hosts, err := LoadHosts(path)
	require.NoError(t, err)
	assert.Equal(t, []Host{
		{HostIP: "10.0.0.1", Username: "admin", Password: "secret", SSHPort: 22},
		{HostIP: "10.0.0.2", Username: "admin", KeyFile: "/etc/watchdog/id_ed25519", SSHPort: 2222},
		{HostIP: "127.0.0.1", SSHPort: 22, Local: true},
	}, hosts)
}

func TestLoadHosts_Errors(t *testing.T) {
	_, err := LoadHosts(writeFile(t, "config.yml", "hosts:\n  - username: admin\n"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidRequest, errors.Classify(err))

	_, err = LoadHosts(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNotFound, errors.Classify(err))
}

func TestLoadHosts_Empty(t *testing.T) {
	hosts, err := LoadHosts(writeFile(t, "config.yml", "hosts: []\n"))
	require.NoError(t, err)
	assert.Empty(t, hosts)
}
