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

// Package driver sequences a run end to end: stage the
// environments, wait for the control plane, hold the registration
// barrier (with policy-driven recovery), publish config, seal pairing,
// collect results, and guarantee cleanup on every exit path.
package driver

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/target/cloudpunch/pkg/cleanup"
	"github.com/target/cloudpunch/pkg/config"
	"github.com/target/cloudpunch/pkg/constants"
	"github.com/target/cloudpunch/pkg/controlplane"
	"github.com/target/cloudpunch/pkg/errorkinds"
	"github.com/target/cloudpunch/pkg/inventory"
	"github.com/target/cloudpunch/pkg/model"
	"github.com/target/cloudpunch/pkg/providers"
	"github.com/target/cloudpunch/pkg/provisioners"
	"github.com/target/cloudpunch/pkg/provisioners/serial"
	"github.com/target/cloudpunch/pkg/stage"
	"github.com/target/cloudpunch/pkg/topology"
)

// deleteRetries is the per-resource retry budget cleanup runs with.
const deleteRetries = 10

// Environment is one target cloud the driver stages into.
type Environment struct {
	Label   model.EnvLabel
	Adapter providers.Adapter
	Spec    *config.Environment
}

// Prompter answers the driver's interactive questions: the recovery
// "ask" policy, the optional manual start gate, and the reuse prompt.
type Prompter interface {
	// Ask poses a question and returns one of choices, or the raw line
	// typed when no choices constrain the answer.
	Ask(question string, choices ...string) (string, error)
}

// Options is the operator-facing configuration that doesn't belong in
// the run config file.
type Options struct {
	// Output is a path for raw results JSON; empty prints a summary to
	// stdout instead.
	Output string

	// ReuseMode keeps the environment staged after results and offers
	// another test cycle.
	ReuseMode bool

	// ManualGate pauses between config publication and pairing until
	// the operator confirms.
	ManualGate bool

	// Insecure disables TLS verification on control plane calls.
	Insecure bool

	// MasterAddress overrides the derived master address, for runs
	// whose floating IP isn't reachable from the driver's network.
	MasterAddress string
}

// Driver runs the pipeline.
type Driver struct {
	cfg      *config.Config
	envs     []*Environment
	options  Options
	prompter Prompter

	runID   string
	runName string
	inv     *inventory.Inventory

	// plans holds each environment's instance list, kept across the
	// barrier for recovery re-staging.
	plans map[model.EnvLabel][]topology.InstanceDescriptor

	executors map[model.EnvLabel]*stage.Executor

	client *controlplane.Client

	numServers int
	numClients int
}

// New returns a driver for one run. envs carries env1 and, for split
// runs, env2 (clients only).
func New(cfg *config.Config, envs []*Environment, options Options, prompter Prompter) (*Driver, error) {
	if len(envs) == 0 || envs[0].Label != model.Env1 {
		return nil, fmt.Errorf("%w: env1 is required", errorkinds.ErrConfiguration)
	}

	if len(envs) > 1 && !cfg.ServerClientMode {
		return nil, fmt.Errorf("%w: a split run requires server_client_mode", errorkinds.ErrConfiguration)
	}

	id := rand.Intn(9000000) + 1000000 //nolint:gosec

	return &Driver{
		cfg:       cfg,
		envs:      envs,
		options:   options,
		prompter:  prompter,
		runID:     strconv.Itoa(id),
		runName:   fmt.Sprintf("%s-%d", constants.NamePrefix, id),
		inv:       inventory.New(),
		plans:     map[model.EnvLabel][]topology.InstanceDescriptor{},
		executors: map[model.EnvLabel]*stage.Executor{},
	}, nil
}

// RunName returns the cloudpunch-<id> name resources carry.
func (d *Driver) RunName() string {
	return d.runName
}

// plan lays out every environment's instance list. env1 always owns the
// master and the server fleet; clients land in env2 when the run is
// split, env1 otherwise.
func (d *Driver) plan() error {
	env1 := d.envs[0]

	clientSpec := env1.Spec.Client
	if len(d.envs) > 1 {
		clientSpec = d.envs[1].Spec.Client
	}

	plan, err := topology.BuildWithSpecs(d.cfg, env1.Spec.Server, clientSpec, d.runID)
	if err != nil {
		return fmt.Errorf("%w: %w", errorkinds.ErrConfiguration, err)
	}

	d.numServers = len(plan.Servers)
	d.numClients = len(plan.Clients)

	master := topology.MasterDescriptor(plan.Servers, env1.Spec.Master, d.runID, d.cfg.NetworkMode)

	env1Instances := append([]topology.InstanceDescriptor{master}, plan.Servers...)

	if len(d.envs) > 1 {
		d.plans[model.Env1] = env1Instances
		d.plans[d.envs[1].Label] = plan.Clients
	} else {
		d.plans[model.Env1] = append(env1Instances, plan.Clients...)
	}

	return nil
}

// stageProvisioner adapts one environment's stage/cleanup pair to the
// Provisioner interface so the serial group sequences env1 before env2
// and tears down in reverse.
type stageProvisioner struct {
	driver *Driver
	env    *Environment
}

func (p *stageProvisioner) ProvisionerName() string {
	return string(p.env.Label)
}

func (p *stageProvisioner) Provision(ctx context.Context) error {
	executor := stage.New(p.env.Adapter, p.driver.inv)
	p.driver.executors[p.env.Label] = executor

	return executor.Stage(ctx, p.driver.stageInput(p.env))
}

func (p *stageProvisioner) Deprovision(ctx context.Context) error {
	engine := cleanup.New(p.env.Adapter, p.driver.inv)

	leftovers := engine.Run(ctx, p.env.Label, deleteRetries)

	path := cleanup.FilePath(p.driver.runName, p.env.Label)

	if err := cleanup.WriteFile(path, p.env.Spec.APIVersions, leftovers); err != nil {
		return fmt.Errorf("%w: %w", errorkinds.ErrResourceDeletion, err)
	}

	if len(leftovers) > 0 {
		return fmt.Errorf("%w: %d resources persisted to %s", errorkinds.ErrResourceDeletion, len(leftovers), path)
	}

	return nil
}

func (d *Driver) stageInput(env *Environment) stage.Input {
	return stage.Input{
		RunID:       d.runID,
		Env:         env.Label,
		Environment: env.Spec,
		Config:      d.cfg,
		Instances:   d.plans[env.Label],
	}
}

// environmentGroup builds the serial provisioner group covering every
// environment, in order.
func (d *Driver) environmentGroup() provisioners.Provisioner {
	members := make([]provisioners.Provisioner, len(d.envs))

	for i, env := range d.envs {
		members[i] = &stageProvisioner{driver: d, env: env}
	}

	return serial.New(d.runName, members...)
}

// Run executes the full pipeline. Cleanup runs on every exit path,
// including a cancelled context (SIGINT at the CLI layer).
func (d *Driver) Run(ctx context.Context) error {
	logger := log.FromContext(ctx)

	if err := d.plan(); err != nil {
		return err
	}

	logger.Info("run starting", "run", d.runName, "servers", d.numServers, "clients", d.numClients)

	group := d.environmentGroup()

	err := d.runStaged(ctx, group)

	// Cleanup is unconditional: success, failure, user stop, or
	// interrupt all release every created handle. A fresh
	// background context tears down even when ctx was cancelled.
	cleanupCtx := log.IntoContext(context.Background(), logger)

	if derr := group.Deprovision(cleanupCtx); derr != nil {
		logger.Error(derr, "cleanup left residual resources")

		if err == nil {
			err = derr
		}
	}

	return err
}

// runStaged is the body between staging and cleanup.
func (d *Driver) runStaged(ctx context.Context, group provisioners.Provisioner) error {
	logger := log.FromContext(ctx)

	if err := group.Provision(ctx); err != nil {
		return err
	}

	d.printInventory()

	master := d.masterHandle()
	if master == nil {
		return fmt.Errorf("%w: master instance not staged", errorkinds.ErrResourceCreation)
	}

	address := d.options.MasterAddress
	if address == "" {
		ip := master.ExternalIP
		if ip == "" {
			ip = master.InternalIP
		}

		address = fmt.Sprintf("%s:%d", ip, constants.DefaultControlPlanePort)
	}

	d.client = controlplane.NewClient(address, d.options.Insecure)

	logger.Info("connecting to control plane", "address", address)

	if err := d.connect(ctx); err != nil {
		return err
	}

	if err := d.registrationBarrier(ctx); err != nil {
		return err
	}

	if err := d.publishConfig(ctx); err != nil {
		return err
	}

	if d.options.ManualGate && d.prompter != nil {
		if _, err := d.prompter.Ask("environment ready, start test?", "start"); err != nil {
			return err
		}
	}

	for {
		if err := d.match(ctx); err != nil {
			return err
		}

		results, err := d.collect(ctx)
		if err != nil {
			return err
		}

		if err := d.emit(results); err != nil {
			return err
		}

		again, err := d.reuse(ctx)
		if err != nil {
			return err
		}

		if !again {
			return nil
		}
	}
}

// masterHandle finds the staged master instance in env1.
func (d *Driver) masterHandle() *providers.InstanceHandle {
	masterName := topology.MasterName(d.runID)

	for _, entry := range d.inv.List(inventory.KindInstance, model.Env1) {
		handle, ok := entry.Handle.(*providers.InstanceHandle)
		if ok && handle.Name == masterName {
			return handle
		}
	}

	return nil
}

// workerTarget is the registration barrier's goal: every planned
// instance except the master.
func (d *Driver) workerTarget() int {
	return d.numServers + d.numClients
}
