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

package topology

import (
	"errors"
	"fmt"

	"github.com/target/cloudpunch/pkg/config"
	"github.com/target/cloudpunch/pkg/model"
)

// ErrTopology is wrapped by every topology-shape validation failure.
var ErrTopology = errors.New("invalid topology")

// InstanceDescriptor is one instance's full provisioning plan: its
// canonical name/position, the subnet it lands on, and the
// flavor/availability-zone the planner resolved for it.
type InstanceDescriptor struct {
	Name     string
	Role     model.Role
	Router   int
	Network  int
	Instance int

	// PairIndex is the 1-based canonical position within the fleet,
	// shared by a server and the client at the same position and used
	// for the host-map availability-zone lookup. pkg/controlplane pairs
	// by the (router, network, instance) tuple in the hostname instead.
	PairIndex int

	CIDR             string
	Flavor           string
	AvailabilityZone string

	// BootFromVolumeSizeGB is 0 unless the environment's role spec asked
	// to boot from a volume instead of an ephemeral disk.
	BootFromVolumeSizeGB int

	// VolumeSizeGB is 0 unless the role spec attaches a post-boot data
	// volume.
	VolumeSizeGB int
	VolumeType   string
	VolumeAZ     string
}

// Plan is every worker instance a run needs, split by role. The master
// is planned separately (topology.MasterName) since it's always exactly
// one instance in env1, outside the router/network/instance grid.
type Plan struct {
	Servers []InstanceDescriptor
	Clients []InstanceDescriptor
}

// gridDimensions derives the router, per-router network, and
// per-network instance counts for one fleet from the flat config
// fields, per mode.
func gridDimensions(cfg *config.Config) (routers, networksPerRouter, instancesPerNetwork int) {
	switch cfg.NetworkMode {
	case model.ModeSingleNetwork:
		return 1, 1, cfg.InstancesPerNetwork
	case model.ModeSingleRouter:
		return 1, cfg.NetworksPerRouter, cfg.InstancesPerNetwork
	default:
		return cfg.NumberRouters, cfg.NetworksPerRouter, cfg.InstancesPerNetwork
	}
}

// ValidateShape enforces the per-mode topology caps, which depend
// on both the mode and whether pairing halves the usable router/network
// space.
func ValidateShape(cfg *config.Config) error {
	routers, networksPerRouter, instancesPerNetwork := gridDimensions(cfg)

	switch cfg.NetworkMode {
	case model.ModeFull:
		maxRouters := 254
		if cfg.ServerClientMode {
			maxRouters = 126
		}

		if routers > maxRouters {
			return fmt.Errorf("%w: number_routers %d exceeds %d for network_mode=full (pairing=%v)", ErrTopology, routers, maxRouters, cfg.ServerClientMode)
		}

		if instancesPerNetwork > 250 {
			return fmt.Errorf("%w: instances_per_network %d exceeds 250 for network_mode=full", ErrTopology, instancesPerNetwork)
		}
	case model.ModeSingleRouter:
		maxNetworks := 254
		if cfg.ServerClientMode {
			maxNetworks = 126
		}

		if networksPerRouter > maxNetworks {
			return fmt.Errorf("%w: networks_per_router %d exceeds %d for network_mode=single-router (pairing=%v)", ErrTopology, networksPerRouter, maxNetworks, cfg.ServerClientMode)
		}

		if instancesPerNetwork > 62500 {
			return fmt.Errorf("%w: instances_per_network %d exceeds 62500 for network_mode=single-router", ErrTopology, instancesPerNetwork)
		}
	case model.ModeSingleNetwork:
		if instancesPerNetwork > 62500 {
			return fmt.Errorf("%w: instances_per_network %d exceeds 62500 for network_mode=single-network", ErrTopology, instancesPerNetwork)
		}
	}

	return nil
}

// planFleet lays out every instance for one role in canonical creation
// order: router-major, then network, then instance.
func planFleet(cfg *config.Config, role model.Role, spec config.RoleSpec, runID string, hostMap *config.HostMap) ([]InstanceDescriptor, error) {
	routers, networksPerRouter, instancesPerNetwork := gridDimensions(cfg)

	var descriptors []InstanceDescriptor

	pairIndex := 0

	for r := 1; r <= routers; r++ {
		for n := 1; n <= networksPerRouter; n++ {
			for i := 1; i <= instancesPerNetwork; i++ {
				pairIndex++

				desc := InstanceDescriptor{
					Name:      Name(runID, role, cfg.NetworkMode, r, n, i),
					Role:      role,
					Router:    r,
					Network:   n,
					Instance:  i,
					PairIndex: pairIndex,
					CIDR:      CIDR(cfg.NetworkMode, role, r, n),
					Flavor:    spec.Flavor,
				}

				az, err := ResolveAvailabilityZone(hostMap, role, pairIndex)
				if err != nil {
					return nil, err
				}

				if az != "" {
					desc.AvailabilityZone = az
				} else {
					desc.AvailabilityZone = spec.AvailabilityZone
				}

				if spec.BootFromVol != nil && spec.BootFromVol.Enable {
					desc.BootFromVolumeSizeGB = spec.BootFromVol.Size
				}

				if spec.Volume != nil && spec.Volume.Enable {
					desc.VolumeSizeGB = spec.Volume.Size
					desc.VolumeType = spec.Volume.Type
					desc.VolumeAZ = spec.Volume.AvailabilityZone
				}

				descriptors = append(descriptors, desc)
			}
		}
	}

	if len(cfg.FlavorFile) > 0 {
		flavors := AssignFlavors(cfg.FlavorFile, len(descriptors))
		for k := range descriptors {
			descriptors[k].Flavor = flavors[k]
		}
	}

	return descriptors, nil
}

// BuildWithSpecs lays out the full worker plan: a server fleet always,
// and a client fleet too when server_client_mode pairs them. Master is
// planned by the caller via MasterName, since it never joins this grid.
// The caller (pkg/driver) has already resolved which config.Environment
// owns each role (env1 always owns server+master, env2 owns client only
// when the run is split), and passes in that role's RoleSpec.
func BuildWithSpecs(cfg *config.Config, serverSpec, clientSpec config.RoleSpec, runID string) (*Plan, error) {
	if err := ValidateShape(cfg); err != nil {
		return nil, err
	}

	servers, err := planFleet(cfg, model.RoleServer, serverSpec, runID, cfg.HostMap)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Servers: servers}

	if cfg.ServerClientMode {
		clients, err := planFleet(cfg, model.RoleClient, clientSpec, runID, cfg.HostMap)
		if err != nil {
			return nil, err
		}

		plan.Clients = clients
	}

	return plan, nil
}

// MasterDescriptor builds the single master instance's descriptor. The
// master rides on the server fleet's first router/network rather than
// getting a grid position of its own, since only worker positions are
// name-encoded; it gets the literal three-segment hostname instead.
func MasterDescriptor(servers []InstanceDescriptor, spec config.RoleSpec, runID string, mode model.NetworkMode) InstanceDescriptor {
	router, network := 1, 1

	if len(servers) > 0 {
		router, network = servers[0].Router, servers[0].Network
	}

	return InstanceDescriptor{
		Name:             MasterName(runID),
		Role:             model.RoleMaster,
		Router:           router,
		Network:          network,
		CIDR:             CIDR(mode, model.RoleServer, router, network),
		Flavor:           spec.Flavor,
		AvailabilityZone: spec.AvailabilityZone,
	}
}
