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

// Package agent implements the worker run-loop: register
// with the control plane, wait at the start gate, fetch the enriched
// configuration, execute the configured test mix, and report results,
// forever. The agent has no cancellation channel of its own; it dies
// with its VM.
package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/target/cloudpunch/pkg/config"
	"github.com/target/cloudpunch/pkg/controlplane"
	"github.com/target/cloudpunch/pkg/model"
	"github.com/target/cloudpunch/pkg/provisioners"
	"github.com/target/cloudpunch/pkg/provisioners/concurrent"
	"github.com/target/cloudpunch/pkg/provisioners/serial"
	"github.com/target/cloudpunch/pkg/retry"
	"github.com/target/cloudpunch/pkg/topology"
	"github.com/target/cloudpunch/pkg/workload"
)

// pollPeriod is the delay between agent-side control plane polls; every
// network error retries indefinitely on the same cadence.
const pollPeriod = time.Second

// errHold keeps the start-gate poll spinning until the control plane
// answers go.
var errHold = errors.New("holding at start gate")

// Agent is one worker's connection to the run.
type Agent struct {
	client   *controlplane.Client
	identity *Identity
	role     model.Role
	registry *workload.Registry

	// testDir is where ad-hoc test programs shipped in the config are
	// saved before execution.
	testDir string
}

// New returns an agent for the worker identified by identity, talking
// to the control plane client wraps. The role is recovered from the
// hostname, the single source of truth for position.
func New(client *controlplane.Client, identity *Identity) (*Agent, error) {
	parsed, err := topology.ParseName(identity.Hostname)
	if err != nil {
		return nil, err
	}

	return &Agent{
		client:   client,
		identity: identity,
		role:     parsed.Role,
		registry: workload.NewRegistry(),
		testDir:  filepath.Join(os.TempDir(), "cloudpunch-tests"),
	}, nil
}

// enrichedConfig is the /test/run response: the run configuration plus
// the worker's match_ip.
type enrichedConfig struct {
	config.Config
	MatchIP string `json:"match_ip"`
}

// Run is the infinite worker loop. It only returns if the initial
// registration cannot be constructed; every network failure inside the
// loop retries forever.
func (a *Agent) Run(ctx context.Context) error {
	logger := log.FromContext(ctx)

	logger.Info("worker starting", "hostname", a.identity.Hostname, "role", a.role)

	if err := a.register(ctx); err != nil {
		return err
	}

	for {
		if err := a.waitForGo(ctx); err != nil {
			return err
		}

		var cfg enrichedConfig

		var rawCfg map[string]interface{}

		err := retry.WithContext(ctx).WithPeriod(pollPeriod).Do(func() error {
			if err := a.client.FetchRunConfig(ctx, a.identity.Hostname, &cfg); err != nil {
				return err
			}

			return a.client.FetchRunConfig(ctx, a.identity.Hostname, &rawCfg)
		})
		if err != nil {
			return err
		}

		results := a.runTests(ctx, &cfg, rawCfg)

		if a.shouldReport(&cfg.Config) {
			report := model.TestResult{Hostname: a.identity.Hostname, Results: results}

			if err := retry.WithContext(ctx).WithPeriod(pollPeriod).Do(func() error {
				return a.client.PostResults(ctx, report)
			}); err != nil {
				return err
			}

			logger.Info("results reported", "tests", len(results))
		}
	}
}

// register polls for control plane liveness and then posts this
// worker's identity, both retried indefinitely.
func (a *Agent) register(ctx context.Context) error {
	if err := retry.WithContext(ctx).WithPeriod(pollPeriod).Do(func() error {
		return a.client.Health(ctx)
	}); err != nil {
		return err
	}

	return retry.WithContext(ctx).WithPeriod(pollPeriod).Do(func() error {
		return a.client.Register(ctx, model.RegistrationRecord{
			Hostname:   a.identity.Hostname,
			InternalIP: a.identity.InternalIP,
			ExternalIP: a.identity.ExternalIP,
			Role:       a.role,
		})
	})
}

// waitForGo polls the start gate until this worker is admitted.
func (a *Agent) waitForGo(ctx context.Context) error {
	return retry.WithContext(ctx).WithPeriod(pollPeriod).Do(func() error {
		ok, err := a.client.AskStatus(ctx, a.identity.Hostname)
		if err != nil {
			return err
		}

		if !ok {
			return errHold
		}

		return nil
	})
}

// shouldReport applies the reporter rule: everyone reports unless
// pairing is on and servers were told to stay quiet.
func (a *Agent) shouldReport(cfg *config.Config) bool {
	return !cfg.ServerClientMode || a.role == model.RoleClient || cfg.ServersGiveResults
}

// saveTestFiles writes ad-hoc test programs shipped in the config to
// local disk and registers them, before any test is looked up.
func (a *Agent) saveTestFiles(ctx context.Context, files map[string]string) {
	logger := log.FromContext(ctx)

	if len(files) == 0 {
		return
	}

	if err := os.MkdirAll(a.testDir, 0o755); err != nil {
		logger.Error(err, "failed to create test directory", "dir", a.testDir)

		return
	}

	for name, source := range files {
		path := filepath.Join(a.testDir, filepath.Base(name))

		if err := os.WriteFile(path, []byte(source), 0o755); err != nil { //nolint:gosec
			logger.Error(err, "failed to save test file", "name", name)

			continue
		}

		testName := filepath.Base(name)
		if ext := filepath.Ext(testName); ext != "" {
			testName = testName[:len(testName)-len(ext)]
		}

		a.registry.Register(workload.NewExternal(testName, path))
	}
}

// testProvisioner adapts one workload execution to the Provisioner
// interface so the serial/concurrent groups can sequence it. delay
// staggers the start (test_start_delay).
type testProvisioner struct {
	name     string
	delay    time.Duration
	runner   workload.Runner
	params   workload.Params
	mu       *sync.Mutex
	results  map[string]interface{}
}

func (p *testProvisioner) ProvisionerName() string { return p.name }

func (p *testProvisioner) Provision(ctx context.Context) error {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	value := workload.Execute(ctx, p.runner, p.params)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.results[p.name] = value

	return nil
}

func (p *testProvisioner) Deprovision(ctx context.Context) error { return nil }

// runTests executes the configured test mix and returns the aggregate
// {test_name: final_results} mapping. A test that can't be found, or
// that fails, contributes its error string; the run always completes.
func (a *Agent) runTests(ctx context.Context, cfg *enrichedConfig, rawCfg map[string]interface{}) map[string]interface{} {
	logger := log.FromContext(ctx)

	a.saveTestFiles(ctx, cfg.TestFiles)

	results := map[string]interface{}{}

	var mu sync.Mutex

	var members []provisioners.Provisioner

	for i, name := range cfg.Test {
		runner, err := a.registry.Lookup(name)
		if err != nil {
			results[name] = err.Error()
			continue
		}

		options, _ := rawCfg[name].(map[string]interface{})

		params := workload.Params{
			Role:             a.role,
			ServerClientMode: cfg.ServerClientMode,
			OvertimeResults:  cfg.OvertimeResults,
			MatchIP:          cfg.MatchIP,
			Options:          options,
		}

		delay := time.Duration(cfg.TestStartDelay) * time.Second
		if cfg.TestMode == config.TestModeConcurrent {
			// Stagger concurrent starts; in list mode the group is
			// already sequential so every member gets the same delay.
			delay *= time.Duration(i)
		}

		members = append(members, &testProvisioner{
			name:    name,
			delay:   delay,
			runner:  runner,
			params:  params,
			mu:      &mu,
			results: results,
		})
	}

	if len(members) == 0 {
		return results
	}

	var group provisioners.Provisioner

	if cfg.TestMode == config.TestModeConcurrent {
		group = concurrent.New("tests", members...)
	} else {
		group = serial.New("tests", members...)
	}

	// Group members never return an error; failures are captured into
	// the results map by workload.Execute.
	if err := group.Provision(ctx); err != nil {
		logger.Error(err, "test group failed")
	}

	return results
}
