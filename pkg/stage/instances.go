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

package stage

import (
	"context"
	"fmt"

	"github.com/target/cloudpunch/pkg/config"
	"github.com/target/cloudpunch/pkg/errorkinds"
	"github.com/target/cloudpunch/pkg/inventory"
	"github.com/target/cloudpunch/pkg/model"
	"github.com/target/cloudpunch/pkg/providers"
	"github.com/target/cloudpunch/pkg/topology"
)

// roleSpec resolves the per-role provisioning policy (userdata, volume,
// boot-from-volume) a descriptor's role maps to within the environment.
func roleSpec(env *config.Environment, role model.Role) config.RoleSpec {
	switch role {
	case model.RoleMaster:
		return env.Master
	case model.RoleClient:
		return env.Client
	default:
		return env.Server
	}
}

func userdataFor(env *config.Environment, role model.Role) string {
	lines := append([]string{}, env.SharedUserdata...)
	lines = append(lines, roleSpec(env, role).Userdata...)

	out := ""

	for _, l := range lines {
		out += l + "\n"
	}

	return out
}

func (e *Executor) resolveFlavorID(ctx context.Context, res *resolved, name string) (string, error) {
	if id, ok := res.flavorIDs[name]; ok {
		return id, nil
	}

	flavor, err := e.adapter.Flavors().ByName(ctx, name)
	if err != nil {
		return "", fmt.Errorf("%w: flavor %q: %w", errorkinds.ErrResourceCreation, name, err)
	}

	res.flavorIDs[name] = flavor.ID

	return flavor.ID, nil
}

// createInstance builds and records one instance, master or worker.
// Master and worker creation share this path since both need the same
// flavor/network/keypair/security-group resolution; only the caller's
// concurrency (sequential for master, pooled for workers) differs.
func (e *Executor) createInstance(ctx context.Context, in Input, res *resolved, d topology.InstanceDescriptor) error {
	flavorID, err := e.resolveFlavorID(ctx, res, d.Flavor)
	if err != nil {
		return err
	}

	nk := networkKey{role: gridRole(d.Role), router: d.Router, network: d.Network}

	network := res.networks[nk]
	if network == nil {
		return fmt.Errorf("%w: instance %s: no network planned for %+v", errorkinds.ErrResourceCreation, d.Name, nk)
	}

	spec := roleSpec(in.Environment, d.Role)

	opts := providers.InstanceCreateOpts{
		Name:             d.Name,
		FlavorID:         flavorID,
		ImageID:          res.imageID,
		NetworkIDs:       []string{network.ID},
		SecurityGroupIDs: []string{res.secgroupID},
		KeypairName:      res.keypairName,
		AvailabilityZone: d.AvailabilityZone,
		Userdata:         userdataFor(in.Environment, d.Role),
	}

	if spec.BootFromVol != nil && spec.BootFromVol.Enable {
		opts.BootFromVolume = true
		opts.BootVolumeSizeGB = spec.BootFromVol.Size
	}

	instance, err := e.adapter.Instances().Create(ctx, opts)
	if err != nil {
		return fmt.Errorf("%w: instance %s: %w", errorkinds.ErrResourceCreation, d.Name, err)
	}

	e.inv.Append(inventory.KindInstance, in.Env, d.Role, instance)

	return nil
}

func (e *Executor) stageInstances(ctx context.Context, in Input, res *resolved) error {
	var master *topology.InstanceDescriptor

	var workers []topology.InstanceDescriptor

	for i := range in.Instances {
		d := in.Instances[i]
		if d.Role == model.RoleMaster {
			master = &in.Instances[i]
			continue
		}

		workers = append(workers, d)
	}

	if master != nil {
		if err := e.createInstance(ctx, in, res, *master); err != nil {
			return err
		}
	}

	return e.stageWorkerInstances(ctx, in, res, workers)
}

// stageWorkerInstances fans instance creation for descriptors out across
// a pool bounded by Config.InstanceThreads. Used both for
// the initial worker fleet and for Recover's re-staging of the subset
// that never registered.
func (e *Executor) stageWorkerInstances(ctx context.Context, in Input, res *resolved, descriptors []topology.InstanceDescriptor) error {
	threads := in.Config.InstanceThreads
	if threads < 1 {
		threads = 1
	}

	tasks := make([]func(context.Context) error, len(descriptors))

	for idx, d := range descriptors {
		d := d
		tasks[idx] = func(ctx context.Context) error { return e.createInstance(ctx, in, res, d) }
	}

	return runBounded(ctx, threads, tasks)
}

func (e *Executor) stageVolumes(ctx context.Context, in Input, res *resolved) error {
	return e.stageVolumesFor(ctx, in, res, in.Instances)
}

func (e *Executor) stageVolumesFor(ctx context.Context, in Input, res *resolved, instances []topology.InstanceDescriptor) error {
	for _, d := range instances {
		if d.VolumeSizeGB <= 0 {
			continue
		}

		instance := e.findInstanceHandle(in.Env, d)
		if instance == nil {
			continue
		}

		volume, err := e.adapter.Volumes().Create(ctx, d.Name+"-vol", d.VolumeSizeGB, d.VolumeAZ, d.VolumeType)
		if err != nil {
			return fmt.Errorf("%w: volume %s: %w", errorkinds.ErrResourceCreation, d.Name, err)
		}

		e.inv.Append(inventory.KindVolume, in.Env, d.Role, volume)
		e.recordAttachment(instance.ID, volume.ID, "")

		if err := e.adapter.Volumes().Attach(ctx, instance.ID, volume.ID); err != nil {
			return fmt.Errorf("%w: volume attach %s: %w", errorkinds.ErrResourceCreation, d.Name, err)
		}
	}

	return nil
}

// stageFloatingIPs allocates the master's floater (every mode) and, in
// full mode only, one per worker instance.
func (e *Executor) stageFloatingIPs(ctx context.Context, in Input, res *resolved) error {
	return e.stageFloatingIPsFor(ctx, in, res, in.Instances)
}

func (e *Executor) stageFloatingIPsFor(ctx context.Context, in Input, res *resolved, instances []topology.InstanceDescriptor) error {
	for _, d := range instances {
		if d.Role != model.RoleMaster && in.Config.NetworkMode != model.ModeFull {
			continue
		}

		instance := e.findInstanceHandle(in.Env, d)
		if instance == nil {
			continue
		}

		floater, err := e.adapter.FloatingIPs().Allocate(ctx, res.externalNetworkID)
		if err != nil {
			return fmt.Errorf("%w: floating ip %s: %w", errorkinds.ErrResourceCreation, d.Name, err)
		}

		e.inv.Append(inventory.KindFloatingIP, in.Env, d.Role, floater)
		e.recordAttachment(instance.ID, "", floater.ID)

		if err := e.adapter.FloatingIPs().Associate(ctx, floater.ID, instance.ID); err != nil {
			return fmt.Errorf("%w: floating ip associate %s: %w", errorkinds.ErrResourceCreation, d.Name, err)
		}

		instance.ExternalIP = floater.Address
	}

	return nil
}

// findInstanceHandle looks up the handle stage already recorded for a
// descriptor, by name, since the inventory doesn't index by name.
func (e *Executor) findInstanceHandle(env model.EnvLabel, d topology.InstanceDescriptor) *providers.InstanceHandle {
	for _, entry := range e.inv.List(inventory.KindInstance, env) {
		handle, ok := entry.Handle.(*providers.InstanceHandle)
		if ok && handle.Name == d.Name {
			return handle
		}
	}

	return nil
}
