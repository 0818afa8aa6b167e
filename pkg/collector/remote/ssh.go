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
	stderrors "errors"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/NVIDIA/cluster-watchdog/pkg/config"
	"github.com/NVIDIA/cluster-watchdog/pkg/defaults"
	"github.com/NVIDIA/cluster-watchdog/pkg/errors"
)

// Executor runs a command on a host and returns its output. A non-zero exit
// status is not an error; the caller interprets the output.
type Executor interface {
	Exec(ctx context.Context, h config.Host, cmd string) (string, error)
}

// SSHExecutor runs commands over SSH with password or key authentication.
type SSHExecutor struct {
	hostKeys ssh.HostKeyCallback
	timeout  time.Duration
}

// NewSSHExecutor returns an executor that verifies host keys against
// knownHostsFile, or accepts any host key when it is empty.
func NewSSHExecutor(knownHostsFile string, timeout time.Duration) (*SSHExecutor, error) {
	cb := ssh.InsecureIgnoreHostKey() //nolint:gosec // hosts come from the operator-managed roster
	if knownHostsFile != "" {
		var err error
		if cb, err = knownhosts.New(knownHostsFile); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidRequest, "failed to load known hosts", err)
		}
	}
	if timeout <= 0 {
		timeout = defaults.SSHTimeout
	}
	return &SSHExecutor{hostKeys: cb, timeout: timeout}, nil
}

// Exec dials the host, requests a pty (sudo may require one) and runs cmd.
func (e *SSHExecutor) Exec(ctx context.Context, h config.Host, cmd string) (string, error) {
	auth, err := authMethods(h)
	if err != nil {
		return "", err
	}

	port := h.SSHPort
	if port == 0 {
		port = defaults.SSHPort
	}
	addr := net.JoinHostPort(h.HostIP, strconv.Itoa(port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	cc, chans, reqs, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            h.Username,
		Auth:            auth,
		HostKeyCallback: e.hostKeys,
		Timeout:         e.timeout,
	})
	if err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return "", errors.Wrap(errors.ErrCodeTimeout, "ssh handshake timed out", ctx.Err())
		}
		if strings.Contains(err.Error(), "unable to authenticate") {
			return "", errors.Wrap(errors.ErrCodeUnauthorized, "ssh authentication failed", err)
		}
		return "", errors.Wrap(errors.ErrCodeTransportFailure, "ssh handshake failed", err)
	}
	client := ssh.NewClient(cc, chans, reqs)
	defer client.Close()

	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	sess, err := client.NewSession()
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeTransportFailure, "failed to open ssh session", err)
	}
	defer sess.Close()

	if err := sess.RequestPty("xterm", 40, 80, ssh.TerminalModes{}); err != nil {
		return "", errors.Wrap(errors.ErrCodeTransportFailure, "failed to request pty", err)
	}

	out, err := sess.Output(cmd)
	var exitErr *ssh.ExitError
	if err != nil && !stderrors.As(err, &exitErr) {
		if ctx.Err() != nil {
			return "", errors.Wrap(errors.ErrCodeTimeout, "ssh command timed out", ctx.Err())
		}
		return "", errors.Wrap(errors.ErrCodeTransportFailure, "ssh command failed", err)
	}
	return string(out), nil
}

func authMethods(h config.Host) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if h.KeyFile != "" {
		pem, err := os.ReadFile(h.KeyFile)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidRequest, "failed to read ssh key", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidRequest, "failed to parse ssh key", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if h.Password != "" {
		methods = append(methods, ssh.Password(h.Password))
	}
	if len(methods) == 0 {
		return nil, errors.NewWithContext(errors.ErrCodeInvalidRequest, "host has neither password nor keyfile",
			map[string]any{"host": h.HostIP})
	}
	return methods, nil
}
