/*
Copyright 2024 CloudPunch Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package workload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// runCommand executes one subprocess, feeding it stdin and returning
// stdout. On failure the stderr tail is attached to the error, which
// Execute then captures as the test's result string.
func runCommand(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	if err := cmd.Run(); err != nil {
		tail := stderr.String()
		if len(tail) > 512 {
			tail = tail[len(tail)-512:]
		}

		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(tail))
	}

	return stdout.Bytes(), nil
}

// decodeOutput interprets a workload's stdout: JSON when it parses,
// the trimmed raw text otherwise.
func decodeOutput(out []byte) interface{} {
	var value interface{}

	if err := json.Unmarshal(bytes.TrimSpace(out), &value); err == nil {
		return value
	}

	return strings.TrimSpace(string(out))
}

// External runs a saved ad-hoc test program under the out-of-process
// contract: the full Params are written to stdin as JSON, and stdout is
// parsed as the test's final results. This replaces the legacy
// import-arbitrary-source plugin mechanism with a process boundary.
type External struct {
	name string
	path string
}

// NewExternal returns a runner executing the program at path.
func NewExternal(name, path string) *External {
	return &External{name: name, path: path}
}

// Name implements the Runner interface.
func (e *External) Name() string {
	return e.name
}

// Run implements the Runner interface.
func (e *External) Run(ctx context.Context, params Params) (interface{}, error) {
	stdin, err := json.Marshal(map[string]interface{}{
		"role":               params.Role,
		"server_client_mode": params.ServerClientMode,
		"overtime_results":   params.OvertimeResults,
		"match_ip":           params.MatchIP,
		e.name:               params.Options,
	})
	if err != nil {
		return nil, err
	}

	out, err := runCommand(ctx, stdin, e.path)
	if err != nil {
		return nil, err
	}

	return decodeOutput(out), nil
}
