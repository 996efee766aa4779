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

	"github.com/go-logr/logr"

	"github.com/target/cloudpunch/pkg/errorkinds"
	"github.com/target/cloudpunch/pkg/inventory"
	"github.com/target/cloudpunch/pkg/model"
	"github.com/target/cloudpunch/pkg/providers"
	"github.com/target/cloudpunch/pkg/topology"
)

// missingDescriptors returns every non-master instance in in.Instances
// whose hostname never appeared in registered, preserving in.Instances'
// canonical order. The master is never recovered: the driver treats a
// missing master as a fatal staging failure, not a recoverable gap, and
// it's cheap to recognize structurally (topology.IsMasterName).
func missingDescriptors(in Input, registered map[string]bool) []topology.InstanceDescriptor {
	var missing []topology.InstanceDescriptor

	for _, d := range in.Instances {
		if d.Role == model.RoleMaster || topology.IsMasterName(d.Name, in.RunID) {
			continue
		}

		if !registered[d.Name] {
			missing = append(missing, d)
		}
	}

	return missing
}

// rebuildResolved re-derives the resolved provider IDs Stage computed
// for this environment, by re-reading the external network/image (cheap
// idempotent lookups) and re-deriving the router/network keys Stage
// already created by replaying the same traversal over in.Instances,
// then zipping that key order against the Inventory's creation-ordered
// handles. Recover never creates a new router/network/subnet/secgroup/
// keypair; it only needs to know the IDs Stage already recorded.
func (e *Executor) rebuildResolved(ctx context.Context, in Input) (*resolved, error) {
	res := &resolved{
		flavorIDs: map[string]string{},
		routers:   map[routerKey]*providers.RouterHandle{},
		networks:  map[networkKey]*providers.NetworkHandle{},
		subnets:   map[networkKey]*providers.SubnetHandle{},
	}

	extNet, err := e.adapter.Networks().ExternalNetworkByName(ctx, in.Environment.ExternalNetwork)
	if err != nil {
		return nil, fmt.Errorf("%w: external network: %w", errorkinds.ErrResourceCreation, err)
	}

	res.externalNetworkID = extNet.ID

	image, err := e.adapter.Images().ByName(ctx, in.Environment.ImageName)
	if err != nil {
		return nil, fmt.Errorf("%w: image: %w", errorkinds.ErrResourceCreation, err)
	}

	res.imageID = image.ID

	if secgroups := e.inv.List(inventory.KindSecurityGroup, in.Env); len(secgroups) > 0 {
		res.secgroupID = secgroups[0].Handle.(*providers.SecurityGroupHandle).ID
	}

	if keypairs := e.inv.List(inventory.KindKeypair, in.Env); len(keypairs) > 0 {
		res.keypairName = keypairs[0].Handle.(*providers.KeypairHandle).Name
	}

	var routerOrder []routerKey

	var networkOrder []networkKey

	seenRouter := map[routerKey]bool{}
	seenNetwork := map[networkKey]bool{}

	for _, d := range in.Instances {
		rk := routerKey{role: gridRole(d.Role), index: d.Router}
		if !seenRouter[rk] {
			seenRouter[rk] = true
			routerOrder = append(routerOrder, rk)
		}

		nk := networkKey{role: gridRole(d.Role), router: d.Router, network: d.Network}
		if !seenNetwork[nk] {
			seenNetwork[nk] = true
			networkOrder = append(networkOrder, nk)
		}
	}

	routers := e.inv.List(inventory.KindRouter, in.Env)
	for i, rk := range routerOrder {
		if i >= len(routers) {
			break
		}

		res.routers[rk] = routers[i].Handle.(*providers.RouterHandle)
	}

	networks := e.inv.List(inventory.KindNetwork, in.Env)
	subnets := e.inv.List(inventory.KindSubnet, in.Env)

	for i, nk := range networkOrder {
		if i >= len(networks) {
			break
		}

		res.networks[nk] = networks[i].Handle.(*providers.NetworkHandle)

		if i < len(subnets) {
			res.subnets[nk] = subnets[i].Handle.(*providers.SubnetHandle)
		}
	}

	return res, nil
}

// teardownStale deletes any instance (and its volume/floating IP) the
// inventory still tracks under one of the missing descriptors' names,
// so Recover never leaves a half-built instance behind when it rebuilds
// that position. Deletion is reverse-dependency order: floater, volume,
// then the instance itself (inventory.DeletionOrder for a single slot).
func (e *Executor) teardownStale(ctx context.Context, in Input, missing []topology.InstanceDescriptor) error {
	names := make(map[string]bool, len(missing))
	for _, d := range missing {
		names[d.Name] = true
	}

	staleInstanceIDs := map[string]bool{}
	staleVolumeIDs := map[string]bool{}
	staleFloatingIPIDs := map[string]bool{}

	for _, entry := range e.inv.List(inventory.KindInstance, in.Env) {
		handle := entry.Handle.(*providers.InstanceHandle)
		if !names[handle.Name] {
			continue
		}

		if a := e.takeAttachments(handle.ID); a != nil {
			for _, id := range a.floatingIPIDs {
				if err := e.adapter.FloatingIPs().Delete(ctx, id); err != nil && !providers.IsNotFound(err) {
					return fmt.Errorf("%w: floating ip %s: %w", errorkinds.ErrResourceDeletion, id, err)
				}

				staleFloatingIPIDs[id] = true
			}

			for _, id := range a.volumeIDs {
				if err := e.adapter.Volumes().Delete(ctx, id); err != nil && !providers.IsNotFound(err) {
					return fmt.Errorf("%w: volume %s: %w", errorkinds.ErrResourceDeletion, id, err)
				}

				staleVolumeIDs[id] = true
			}
		}

		if err := e.adapter.Instances().Delete(ctx, handle.ID); err != nil && !providers.IsNotFound(err) {
			return fmt.Errorf("%w: instance %s: %w", errorkinds.ErrResourceDeletion, handle.ID, err)
		}

		staleInstanceIDs[handle.ID] = true
	}

	e.inv.Remove(inventory.KindInstance, in.Env, staleInstanceIDs)
	e.inv.Remove(inventory.KindVolume, in.Env, staleVolumeIDs)
	e.inv.Remove(inventory.KindFloatingIP, in.Env, staleFloatingIPIDs)

	return nil
}

// Recover implements the re-staging path: given the set of
// hostnames that registered with the control plane before the barrier's
// threshold elapsed, it tears down whatever got built for every missing
// position, re-plans nothing (positions are fixed by the original Plan),
// and re-creates exactly those instances, their volumes, and their
// floating IPs.
func (e *Executor) Recover(ctx context.Context, in Input, registered map[string]bool) error {
	missing := missingDescriptors(in, registered)
	if len(missing) == 0 {
		return nil
	}

	logr.FromContextOrDiscard(ctx).Info("recovering unregistered instances", "env", in.Env, "run_id", in.RunID, "missing", len(missing))

	res, err := e.rebuildResolved(ctx, in)
	if err != nil {
		return err
	}

	if err := e.teardownStale(ctx, in, missing); err != nil {
		return err
	}

	if err := e.stageWorkerInstances(ctx, in, res, missing); err != nil {
		return err
	}

	if err := e.stageVolumesFor(ctx, in, res, missing); err != nil {
		return err
	}

	return e.stageFloatingIPsFor(ctx, in, res, missing)
}
