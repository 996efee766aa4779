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

// Package workload is the registry of test implementations a worker can
// run. Built-ins are thin wrappers around the actual load generators
// (fio, iperf3, ping, stress-ng, jmeter); ad-hoc tests shipped in the
// run configuration are executed out of process under a stdin-JSON /
// stdout-JSON contract. Either way the workload itself is a subprocess:
// CloudPunch only sequences it and captures its results.
package workload

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/target/cloudpunch/pkg/model"
)

// Params is everything a runner learns from the enriched run
// configuration the control plane hands out.
type Params struct {
	// Role is this worker's role, recovered from its hostname.
	Role model.Role

	// ServerClientMode reports whether the run pairs servers with
	// clients; servers typically flip their workload into listen mode.
	ServerClientMode bool

	// OvertimeResults selects a per-sample time series over a single
	// summary object.
	OvertimeResults bool

	// MatchIP is the paired instance's address, empty when pairing is
	// disabled and no load balancer fronts the peer fleet.
	MatchIP string

	// Options is the per-test dictionary from the configuration,
	// opaque to everything but the runner that consumes it.
	Options map[string]interface{}
}

// Runner executes one test and produces the value reported as its
// final_results: a summary object, an overtime array, or a string.
type Runner interface {
	Name() string
	Run(ctx context.Context, params Params) (interface{}, error)
}

// Registry maps test names to runners.
type Registry struct {
	mu      sync.RWMutex
	runners map[string]Runner
}

// NewRegistry returns a registry pre-populated with every built-in.
func NewRegistry() *Registry {
	r := &Registry{runners: map[string]Runner{}}

	for _, runner := range builtins() {
		r.Register(runner)
	}

	return r
}

// Register adds or replaces a runner. Ad-hoc tests shipped in
// config.test_files are registered here after being saved to disk, so a
// user test can shadow a built-in of the same name, matching the legacy
// import behaviour.
func (r *Registry) Register(runner Runner) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runners[runner.Name()] = runner
}

// Lookup returns the runner for a test name.
func (r *Registry) Lookup(name string) (Runner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runner, ok := r.runners[name]
	if !ok {
		return nil, fmt.Errorf("unknown test %q (have %v)", name, r.names())
	}

	return runner, nil
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.runners))
	for name := range r.runners {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Execute runs a test with full failure isolation: any error (or panic
// inside the runner) is captured and returned as the test's result
// string so one broken workload never aborts the run.
func Execute(ctx context.Context, runner Runner, params Params) (result interface{}) {
	defer func() {
		if r := recover(); r != nil {
			result = fmt.Sprintf("panic: %v", r)
		}
	}()

	value, err := runner.Run(ctx, params)
	if err != nil {
		return err.Error()
	}

	return value
}
