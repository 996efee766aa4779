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

package agent

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/cloudpunch/pkg/config"
	"github.com/target/cloudpunch/pkg/model"
	"github.com/target/cloudpunch/pkg/workload"
)

// orderedRunner records the order tests actually started in.
type orderedRunner struct {
	name  string
	mu    *sync.Mutex
	order *[]string
	value interface{}
}

func (r *orderedRunner) Name() string { return r.name }

func (r *orderedRunner) Run(ctx context.Context, params workload.Params) (interface{}, error) {
	r.mu.Lock()
	*r.order = append(*r.order, r.name)
	r.mu.Unlock()

	return r.value, nil
}

func testAgent(runners ...workload.Runner) *Agent {
	registry := workload.NewRegistry()

	for _, runner := range runners {
		registry.Register(runner)
	}

	return &Agent{
		identity: &Identity{Hostname: "cloudpunch-1234567-s-r1-n1-s1"},
		role:     model.RoleServer,
		registry: registry,
	}
}

func TestShouldReport(t *testing.T) {
	t.Parallel()

	server := testAgent()

	client := testAgent()
	client.role = model.RoleClient

	// Unpaired: everyone reports.
	assert.True(t, server.shouldReport(&config.Config{}))

	// Paired, servers quiet: only clients.
	paired := &config.Config{ServerClientMode: true}
	assert.False(t, server.shouldReport(paired))
	assert.True(t, client.shouldReport(paired))

	// Paired but servers report too.
	chatty := &config.Config{ServerClientMode: true, ServersGiveResults: true}
	assert.True(t, server.shouldReport(chatty))
}

// TestRunTestsListMode checks list mode runs tests sequentially in
// configuration order and aggregates every result.
func TestRunTestsListMode(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex

	var order []string

	a := testAgent(
		&orderedRunner{name: "first", mu: &mu, order: &order, value: map[string]interface{}{"ok": 1.0}},
		&orderedRunner{name: "second", mu: &mu, order: &order, value: "done"},
	)

	cfg := &enrichedConfig{Config: config.Config{
		Test:     []string{"first", "second"},
		TestMode: config.TestModeList,
	}}

	results := a.runTests(context.Background(), cfg, map[string]interface{}{})

	require.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, map[string]interface{}{"ok": 1.0}, results["first"])
	assert.Equal(t, "done", results["second"])
}

// TestRunTestsConcurrent checks every test still lands in the results
// map when started together.
func TestRunTestsConcurrent(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex

	var order []string

	a := testAgent(
		&orderedRunner{name: "first", mu: &mu, order: &order, value: "a"},
		&orderedRunner{name: "second", mu: &mu, order: &order, value: "b"},
	)

	cfg := &enrichedConfig{Config: config.Config{
		Test:     []string{"first", "second"},
		TestMode: config.TestModeConcurrent,
	}}

	results := a.runTests(context.Background(), cfg, map[string]interface{}{})

	assert.Len(t, results, 2)
	assert.Equal(t, "a", results["first"])
	assert.Equal(t, "b", results["second"])
}

// TestRunTestsUnknownTest checks a missing test contributes its lookup
// error as the result rather than failing the run.
func TestRunTestsUnknownTest(t *testing.T) {
	t.Parallel()

	a := testAgent()

	cfg := &enrichedConfig{Config: config.Config{
		Test:     []string{"bonnie"},
		TestMode: config.TestModeList,
	}}

	results := a.runTests(context.Background(), cfg, map[string]interface{}{})

	require.Contains(t, results, "bonnie")
	assert.Contains(t, results["bonnie"], "unknown test")
}
