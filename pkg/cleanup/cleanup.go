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

// Package cleanup implements the Cleanup Engine: it tears
// down everything the Resource Inventory tracks in reverse dependency
// order, tolerates a resource already being gone, retries a transient
// failure a bounded number of times, and persists whatever survives
// every retry to a cleanup file so a later run can finish the job.
package cleanup

import (
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"

	"github.com/target/cloudpunch/pkg/inventory"
	"github.com/target/cloudpunch/pkg/model"
	"github.com/target/cloudpunch/pkg/providers"
	"github.com/target/cloudpunch/pkg/retry"
)

// backoffPeriod is the fixed delay between delete retries.
const backoffPeriod = time.Second

// Engine tears down one environment's tracked resources against a
// Resource Adapter.
type Engine struct {
	adapter providers.Adapter
	inv     *inventory.Inventory
}

// New returns an Engine operating against adapter, reading and mutating inv.
func New(adapter providers.Adapter, inv *inventory.Inventory) *Engine {
	return &Engine{adapter: adapter, inv: inv}
}

// Leftover is one resource that survived every retry, named the way the
// cleanup file schema records it: provider ID for everything except
// keypairs, which have no ID and are tracked by name.
type Leftover struct {
	Kind inventory.Kind
	ID   string
}

// Run tears down every resource Run's inventory tracks for env, in
// reverse dependency order (inventory.DeletionOrder), retrying a
// transient failure up to retries times before giving up on that
// resource and moving on to the next. Resources that are deleted (or
// already gone) are removed from the inventory as they're confirmed;
// whatever's left after the full pass is returned so the caller can
// decide whether to persist a cleanup file.
func (e *Engine) Run(ctx context.Context, env model.EnvLabel, retries int) []Leftover {
	log := logr.FromContextOrDiscard(ctx)
	log.Info("cleaning up environment", "env", env)

	var leftovers []Leftover

	for _, kind := range inventory.DeletionOrder() {
		entries := e.inv.List(kind, env)
		if len(entries) == 0 {
			continue
		}

		var failedIDs map[string]bool

		for _, entry := range entries {
			id := inventory.HandleID(kind, entry.Handle)

			if err := e.deleteEntry(ctx, kind, entry, retries); err != nil {
				log.Error(err, "failed to delete resource after retries", "kind", kind, "id", id)

				if failedIDs == nil {
					failedIDs = map[string]bool{}
				}

				failedIDs[id] = true

				leftovers = append(leftovers, Leftover{Kind: kind, ID: id})

				continue
			}
		}

		// Remove everything that did NOT fail: every entry whose ID isn't
		// in failedIDs was deleted (or already gone), so Remove keeps the
		// inventory accurate for a subsequent cleanup pass (e.g. Driver's
		// reuse-mode same-environment rerun).
		toRemove := map[string]bool{}

		for _, entry := range entries {
			id := inventory.HandleID(kind, entry.Handle)
			if !failedIDs[id] {
				toRemove[id] = true
			}
		}

		e.inv.Remove(kind, env, toRemove)
	}

	log.Info("cleanup pass complete", "env", env, "leftover", len(leftovers))

	return leftovers
}

func (e *Engine) deleteEntry(ctx context.Context, kind inventory.Kind, entry inventory.Entry, retries int) error {
	return retry.WithAttempts(retries).WithPeriod(backoffPeriod).Do(func() error {
		err := e.deleteOnce(ctx, kind, entry)
		if err == nil {
			return nil
		}

		if providers.IsNotFound(err) {
			return nil
		}

		var perr *providers.Error
		if errors.As(err, &perr) && !perr.Retryable() {
			return retry.Permanent(err)
		}

		return err
	})
}

func (e *Engine) deleteOnce(ctx context.Context, kind inventory.Kind, entry inventory.Entry) error {
	switch kind {
	case inventory.KindSecurityGroup:
		return e.adapter.SecurityGroups().Delete(ctx, entry.Handle.(*providers.SecurityGroupHandle).ID)
	case inventory.KindKeypair:
		return e.adapter.Keypairs().Delete(ctx, entry.Handle.(*providers.KeypairHandle).Name)
	case inventory.KindRouter:
		return e.deleteRouter(ctx, entry.Handle.(*providers.RouterHandle))
	case inventory.KindNetwork:
		return e.adapter.Networks().Delete(ctx, entry.Handle.(*providers.NetworkHandle).ID)
	case inventory.KindSubnet:
		return e.adapter.Subnets().Delete(ctx, entry.Handle.(*providers.SubnetHandle).ID)
	case inventory.KindInstance:
		return e.adapter.Instances().Delete(ctx, entry.Handle.(*providers.InstanceHandle).ID)
	case inventory.KindVolume:
		return e.adapter.Volumes().Delete(ctx, entry.Handle.(*providers.VolumeHandle).ID)
	case inventory.KindFloatingIP:
		return e.adapter.FloatingIPs().Delete(ctx, entry.Handle.(*providers.FloatingIPHandle).ID)
	case inventory.KindLoadBalancer:
		return e.adapter.LoadBalancers().Delete(ctx, entry.Handle.(*providers.LoadBalancerHandle))
	default:
		return nil
	}
}

// deleteRouter detaches every subnet the staging attach step recorded
// before deleting the router itself: Neutron refuses to delete a router
// that still has an interface attached.
func (e *Engine) deleteRouter(ctx context.Context, router *providers.RouterHandle) error {
	for _, subnetID := range router.AttachedSubnetIDs {
		if err := e.adapter.Routers().RemoveInterface(ctx, router.ID, subnetID); err != nil && !providers.IsNotFound(err) {
			return err
		}
	}

	return e.adapter.Routers().Delete(ctx, router.ID)
}
