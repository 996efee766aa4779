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

// Package inventory implements the Resource Inventory: the
// mapping from resource kind to environment to an ordered sequence of
// provider handles. The Staging Executor appends to it as resources are
// created, before any error from that creation is raised, so the
// Cleanup Engine can always reach what was actually built.
package inventory

import (
	"sync"

	"github.com/target/cloudpunch/pkg/model"
	"github.com/target/cloudpunch/pkg/providers"
)

// Kind identifies one resource type tracked by the inventory.
type Kind string

const (
	KindSecurityGroup Kind = "security_group"
	KindKeypair       Kind = "keypair"
	KindRouter        Kind = "router"
	KindNetwork       Kind = "network"
	KindSubnet        Kind = "subnet"
	KindInstance      Kind = "instance"
	KindVolume        Kind = "volume"
	KindFloatingIP    Kind = "floating_ip"
	KindLoadBalancer  Kind = "load_balancer"
)

// CreationOrder is the dependency order resources are created in,
// per environment: security group, keypair, routers,
// networks, subnets, instances, volumes, floaters, load balancers.
// Router<->subnet attachment and volume<->instance attachment are
// mutations on already-tracked handles, not separate inventory kinds.
var CreationOrder = []Kind{
	KindSecurityGroup,
	KindKeypair,
	KindRouter,
	KindNetwork,
	KindSubnet,
	KindInstance,
	KindVolume,
	KindFloatingIP,
	KindLoadBalancer,
}

// DeletionOrder returns CreationOrder reversed, the order the Cleanup
// Engine tears resources down in.
func DeletionOrder() []Kind {
	order := make([]Kind, len(CreationOrder))

	for i, kind := range CreationOrder {
		order[len(CreationOrder)-1-i] = kind
	}

	return order
}

// Entry is one tracked handle. Role is only meaningful for KindNetwork,
// which is additionally keyed by
// master|server|client.
type Entry struct {
	Role   model.Role
	Handle interface{}
}

// Inventory is the Resource Inventory: kind -> environment -> ordered
// handles. All mutation goes through Append/Remove, which serialise
// access per the single-writer discipline staging relies on; reads
// (List) may run concurrently with each other but not with a
// mutation.
type Inventory struct {
	mu      sync.RWMutex
	entries map[Kind]map[model.EnvLabel][]Entry
}

// New returns an empty inventory.
func New() *Inventory {
	return &Inventory{entries: map[Kind]map[model.EnvLabel][]Entry{}}
}

// Append records a newly created handle. Creation order within a kind
// is preserved since Append only ever adds to the tail.
func (inv *Inventory) Append(kind Kind, env model.EnvLabel, role model.Role, handle interface{}) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.entries[kind] == nil {
		inv.entries[kind] = map[model.EnvLabel][]Entry{}
	}

	inv.entries[kind][env] = append(inv.entries[kind][env], Entry{Role: role, Handle: handle})
}

// List returns every handle tracked for a kind and environment, in
// creation order. The returned slice is a copy; callers may not mutate
// the inventory through it.
func (inv *Inventory) List(kind Kind, env model.EnvLabel) []Entry {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	entries := inv.entries[kind][env]
	out := make([]Entry, len(entries))
	copy(out, entries)

	return out
}

// Remove drops every entry for a kind/environment whose handle ID
// matches one of the given IDs, used by Recovery to retire stale
// instance handles before re-staging and by Cleanup once a resource is
// confirmed gone.
func (inv *Inventory) Remove(kind Kind, env model.EnvLabel, ids map[string]bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	entries := inv.entries[kind][env]
	if entries == nil {
		return
	}

	kept := entries[:0:0]

	for _, e := range entries {
		if !ids[HandleID(kind, e.Handle)] {
			kept = append(kept, e)
		}
	}

	inv.entries[kind][env] = kept
}

// Environments returns every environment label that has at least one
// tracked handle, in a stable order (env1 before env2).
func (inv *Inventory) Environments() []model.EnvLabel {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	seen := map[model.EnvLabel]bool{}

	for _, byEnv := range inv.entries {
		for env := range byEnv {
			seen[env] = true
		}
	}

	var out []model.EnvLabel

	for _, env := range []model.EnvLabel{model.Env1, model.Env2} {
		if seen[env] {
			out = append(out, env)
		}
	}

	return out
}

// HandleID extracts the provider identifier used for persistence and
// comparison: a name for keypairs, a provider-assigned ID for
// everything else, matching the cleanup file schema.
func HandleID(kind Kind, handle interface{}) string {
	switch kind {
	case KindSecurityGroup:
		return handle.(*providers.SecurityGroupHandle).ID
	case KindKeypair:
		return handle.(*providers.KeypairHandle).Name
	case KindRouter:
		return handle.(*providers.RouterHandle).ID
	case KindNetwork:
		return handle.(*providers.NetworkHandle).ID
	case KindSubnet:
		return handle.(*providers.SubnetHandle).ID
	case KindInstance:
		return handle.(*providers.InstanceHandle).ID
	case KindVolume:
		return handle.(*providers.VolumeHandle).ID
	case KindFloatingIP:
		return handle.(*providers.FloatingIPHandle).ID
	case KindLoadBalancer:
		return handle.(*providers.LoadBalancerHandle).ID
	default:
		return ""
	}
}
