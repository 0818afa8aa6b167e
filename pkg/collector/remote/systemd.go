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

package remote

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/dbus"

	"github.com/NVIDIA/cluster-watchdog/pkg/errors"
)

// UnitStater reports the ActiveState of a systemd unit on this machine.
type UnitStater interface {
	ActiveState(ctx context.Context, unit string) (string, error)
}

// SystemdStater queries systemd over D-Bus.
type SystemdStater struct{}

// ActiveState implements UnitStater.
func (SystemdStater) ActiveState(ctx context.Context, unit string) (string, error) {
	conn, err := dbus.NewSystemdConnectionContext(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to connect to systemd: %w", err)
	}
	defer conn.Close()

	p, err := conn.GetUnitPropertyContext(ctx, unit, "ActiveState")
	if err != nil {
		return "", fmt.Errorf("failed to get unit property: %w", err)
	}

	state, ok := p.Value.Value().(string)
	if !ok {
		return "", errors.NewWithContext(errors.ErrCodeUnrecognizedSchema, "ActiveState is not a string",
			map[string]any{"unit": unit, "value": p.Value.String()})
	}
	return state, nil
}
