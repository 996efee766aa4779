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

// Package stage implements the Staging Executor: it
// drives a Resource Adapter through the fixed dependency order one
// environment's resources must be created in, fans instance creation
// out across a bounded worker pool, and records every successfully
// created handle in the Resource Inventory before surfacing the first
// fatal error so Cleanup can always reach what was actually built.
package stage

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/go-logr/logr"

	"github.com/target/cloudpunch/pkg/config"
	"github.com/target/cloudpunch/pkg/errorkinds"
	"github.com/target/cloudpunch/pkg/inventory"
	"github.com/target/cloudpunch/pkg/model"
	"github.com/target/cloudpunch/pkg/providers"
	"github.com/target/cloudpunch/pkg/topology"
)

// Executor stages one environment's resources against a Resource
// Adapter, recording everything it creates into a shared Inventory.
type Executor struct {
	adapter providers.Adapter
	inv     *inventory.Inventory

	// attached tracks which volume/floating-IP IDs belong to which
	// instance ID, since neither handle records the association itself.
	// Recover uses it to tear down exactly the resources a stale
	// instance owns rather than guessing from naming conventions.
	attachedMu sync.Mutex
	attached   map[string]*instanceAttachments
}

type instanceAttachments struct {
	volumeIDs     []string
	floatingIPIDs []string
}

// New returns an Executor that stages against adapter and records into
// inv. The same inv is shared across both environments of a split run
// so Cleanup has one place to look.
func New(adapter providers.Adapter, inv *inventory.Inventory) *Executor {
	return &Executor{adapter: adapter, inv: inv, attached: map[string]*instanceAttachments{}}
}

func (e *Executor) recordAttachment(instanceID string, volumeID, floatingIPID string) {
	e.attachedMu.Lock()
	defer e.attachedMu.Unlock()

	a := e.attached[instanceID]
	if a == nil {
		a = &instanceAttachments{}
		e.attached[instanceID] = a
	}

	if volumeID != "" {
		a.volumeIDs = append(a.volumeIDs, volumeID)
	}

	if floatingIPID != "" {
		a.floatingIPIDs = append(a.floatingIPIDs, floatingIPID)
	}
}

// takeAttachments removes and returns the attachments recorded for an
// instance, so a single teardown pass can't double-delete them.
func (e *Executor) takeAttachments(instanceID string) *instanceAttachments {
	e.attachedMu.Lock()
	defer e.attachedMu.Unlock()

	a := e.attached[instanceID]
	delete(e.attached, instanceID)

	return a
}

// Input is everything one environment's staging pass needs.
type Input struct {
	RunID       string
	Env         model.EnvLabel
	Environment *config.Environment
	Config      *config.Config

	// Instances is every instance (server/client, optionally the
	// master) that belongs in this environment, in canonical creation
	// order. Routers/networks/subnets are derived from the distinct
	// (role, router, network) tuples this list touches.
	Instances []topology.InstanceDescriptor
}

// resolved carries the provider IDs looked up once per environment and
// threaded through every per-instance task.
type resolved struct {
	externalNetworkID string
	imageID           string
	secgroupID        string
	keypairName       string
	flavorIDs         map[string]string
	routers           map[routerKey]*providers.RouterHandle
	networks          map[networkKey]*providers.NetworkHandle
	subnets           map[networkKey]*providers.SubnetHandle
}

type routerKey struct {
	role  model.Role
	index int
}

type networkKey struct {
	role    model.Role
	router  int
	network int
}

// gridRole maps an instance's role to the fleet whose networking it
// rides: the master shares the server fleet's first network rather than
// getting a router/network of its own (the master is
// outside the grid).
func gridRole(role model.Role) model.Role {
	if role == model.RoleMaster {
		return model.RoleServer
	}

	return role
}

// Stage drives the full dependency order for one environment:
// security group, keypair, routers, networks, subnets, router<->subnet
// attachment, instances (master first, then the bounded worker pool),
// volumes, volume attachment, floating IPs (the master's in every mode,
// workers' in full mode), and load balancers.
func (e *Executor) Stage(ctx context.Context, in Input) error {
	log := logr.FromContextOrDiscard(ctx)
	log.Info("staging environment", "env", in.Env, "run_id", in.RunID, "instances", len(in.Instances))

	res := &resolved{flavorIDs: map[string]string{}, routers: map[routerKey]*providers.RouterHandle{}, networks: map[networkKey]*providers.NetworkHandle{}, subnets: map[networkKey]*providers.SubnetHandle{}}

	extNet, err := e.adapter.Networks().ExternalNetworkByName(ctx, in.Environment.ExternalNetwork)
	if err != nil {
		return fmt.Errorf("%w: external network: %w", errorkinds.ErrResourceCreation, err)
	}

	res.externalNetworkID = extNet.ID

	image, err := e.adapter.Images().ByName(ctx, in.Environment.ImageName)
	if err != nil {
		return fmt.Errorf("%w: image: %w", errorkinds.ErrResourceCreation, err)
	}

	res.imageID = image.ID

	if err := e.stageSecurityGroup(ctx, in, res); err != nil {
		return err
	}

	if err := e.stageKeypair(ctx, in, res); err != nil {
		return err
	}

	if err := e.stageNetworking(ctx, in, res); err != nil {
		return err
	}

	if err := e.stageInstances(ctx, in, res); err != nil {
		return err
	}

	if err := e.stageVolumes(ctx, in, res); err != nil {
		return err
	}

	if err := e.stageFloatingIPs(ctx, in, res); err != nil {
		return err
	}

	if err := e.stageLoadBalancers(ctx, in, res); err != nil {
		return err
	}

	log.Info("environment staged", "env", in.Env, "run_id", in.RunID)

	return nil
}

func (e *Executor) stageSecurityGroup(ctx context.Context, in Input, res *resolved) error {
	name := fmt.Sprintf("cloudpunch-%s-secgroup", in.RunID)

	group, err := e.adapter.SecurityGroups().Create(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: security group: %w", errorkinds.ErrResourceCreation, err)
	}

	e.inv.Append(inventory.KindSecurityGroup, in.Env, "", group)
	res.secgroupID = group.ID

	for _, rule := range in.Environment.SecgroupRules {
		portRange := "all"
		if rule.From != "" {
			portRange = rule.From + "-" + rule.To
		}

		if err := e.adapter.SecurityGroups().AddRule(ctx, group.ID, rule.Protocol, portRange); err != nil {
			return fmt.Errorf("%w: security group rule: %w", errorkinds.ErrResourceCreation, err)
		}
	}

	return nil
}

func (e *Executor) stageKeypair(ctx context.Context, in Input, res *resolved) error {
	name := fmt.Sprintf("cloudpunch-%s", in.RunID)

	publicKey, err := os.ReadFile(in.Environment.PublicKeyFile)
	if err != nil {
		return fmt.Errorf("%w: public key file: %w", errorkinds.ErrConfiguration, err)
	}

	keypair, err := e.adapter.Keypairs().Import(ctx, name, strings.TrimSpace(string(publicKey)))
	if err != nil {
		return fmt.Errorf("%w: keypair: %w", errorkinds.ErrResourceCreation, err)
	}

	e.inv.Append(inventory.KindKeypair, in.Env, "", keypair)
	res.keypairName = keypair.Name

	return nil
}

// routerName/networkName are CloudPunch-internal; nothing
// requires them to follow the instance naming scheme, only that
// creation order is deterministic, which iterating the instance list in
// canonical order already guarantees.
func routerName(runID string, key routerKey) string {
	return fmt.Sprintf("cloudpunch-%s-%s-r%d", runID, key.role.Initial(), key.index)
}

func networkName(runID string, key networkKey) string {
	return fmt.Sprintf("cloudpunch-%s-%s-r%d-n%d", runID, key.role.Initial(), key.router, key.network)
}

func (e *Executor) stageNetworking(ctx context.Context, in Input, res *resolved) error {
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

	for _, rk := range routerOrder {
		router, err := e.adapter.Routers().Create(ctx, routerName(in.RunID, rk), res.externalNetworkID)
		if err != nil {
			return fmt.Errorf("%w: router: %w", errorkinds.ErrResourceCreation, err)
		}

		e.inv.Append(inventory.KindRouter, in.Env, rk.role, router)
		res.routers[rk] = router
	}

	for _, nk := range networkOrder {
		network, err := e.adapter.Networks().Create(ctx, networkName(in.RunID, nk))
		if err != nil {
			return fmt.Errorf("%w: network: %w", errorkinds.ErrResourceCreation, err)
		}

		e.inv.Append(inventory.KindNetwork, in.Env, nk.role, network)
		res.networks[nk] = network

		cidr := cidrForKey(in.Config, nk)

		subnet, err := e.adapter.Subnets().Create(ctx, network.ID, networkName(in.RunID, nk)+"-subnet", cidr, in.Environment.DNSNameservers)
		if err != nil {
			return fmt.Errorf("%w: subnet: %w", errorkinds.ErrResourceCreation, err)
		}

		e.inv.Append(inventory.KindSubnet, in.Env, nk.role, subnet)
		res.subnets[nk] = subnet

		rk := routerKey{role: nk.role, index: nk.router}

		router := res.routers[rk]
		if router == nil {
			continue
		}

		if err := e.adapter.Routers().AddInterface(ctx, router.ID, subnet.ID); err != nil {
			return fmt.Errorf("%w: router interface: %w", errorkinds.ErrResourceCreation, err)
		}

		router.AttachedSubnetIDs = append(router.AttachedSubnetIDs, subnet.ID)
	}

	return nil
}

func cidrForKey(cfg *config.Config, nk networkKey) string {
	return topology.CIDR(cfg.NetworkMode, nk.role, nk.router, nk.network)
}

// stageLoadBalancers creates one load balancer per network for each
// role whose environment spec asks for one, registers that network's
// instances as pool members, and publishes the VIP addresses back into
// the run configuration so the control plane can hand them out as
// match_ip. Address order follows network creation
// order, which is what the network index in a worker's hostname
// selects by.
func (e *Executor) stageLoadBalancers(ctx context.Context, in Input, res *resolved) error {
	for _, role := range []model.Role{model.RoleServer, model.RoleClient} {
		spec := roleSpec(in.Environment, role)
		if spec.LoadBalancer == nil || !spec.LoadBalancer.Enable {
			continue
		}

		protocol := spec.LoadBalancer.Protocol
		if protocol == "" {
			protocol = "TCP"
		}

		port := spec.LoadBalancer.Port
		if port == 0 {
			port = 80
		}

		var keys []networkKey

		seen := map[networkKey]bool{}

		for _, d := range in.Instances {
			if d.Role != role {
				continue
			}

			nk := networkKey{role: d.Role, router: d.Router, network: d.Network}
			if !seen[nk] {
				seen[nk] = true
				keys = append(keys, nk)
			}
		}

		var addresses []string

		for _, nk := range keys {
			subnet := res.subnets[nk]
			if subnet == nil {
				continue
			}

			name := fmt.Sprintf("cloudpunch-%s-%s-lb-n%d", in.RunID, role.Initial(), nk.network)

			lb, err := e.adapter.LoadBalancers().Create(ctx, name, subnet.ID, protocol, port)
			if err != nil {
				return fmt.Errorf("%w: load balancer %s: %w", errorkinds.ErrResourceCreation, name, err)
			}

			e.inv.Append(inventory.KindLoadBalancer, in.Env, role, lb)

			for _, d := range in.Instances {
				if d.Role != role || d.Router != nk.router || d.Network != nk.network {
					continue
				}

				instance := e.findInstanceHandle(in.Env, d)
				if instance == nil {
					continue
				}

				if err := e.adapter.LoadBalancers().AddMember(ctx, lb, subnet.ID, instance.InternalIP, port); err != nil {
					return fmt.Errorf("%w: load balancer member %s: %w", errorkinds.ErrResourceCreation, d.Name, err)
				}
			}

			addresses = append(addresses, lb.VIPAddress)
		}

		if len(addresses) == 0 {
			continue
		}

		if in.Config.LoadBalancers == nil {
			in.Config.LoadBalancers = &config.LoadBalancers{}
		}

		if role == model.RoleServer {
			in.Config.LoadBalancers.Server = addresses
		} else {
			in.Config.LoadBalancers.Client = addresses
		}
	}

	return nil
}
