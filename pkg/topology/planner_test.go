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

package topology_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/cloudpunch/pkg/config"
	"github.com/target/cloudpunch/pkg/model"
	"github.com/target/cloudpunch/pkg/topology"
)

func pairedConfig() *config.Config {
	return &config.Config{
		NetworkMode:         model.ModeFull,
		NumberRouters:       1,
		NetworksPerRouter:   1,
		InstancesPerNetwork: 1,
		ServerClientMode:    true,
	}
}

// TestPlanTrivialPair lays out the minimal paired topology: one router,
// one network, one instance per network.
func TestPlanTrivialPair(t *testing.T) {
	t.Parallel()

	plan, err := topology.BuildWithSpecs(pairedConfig(), config.RoleSpec{Flavor: "m1.small"}, config.RoleSpec{Flavor: "m1.small"}, runID)
	require.NoError(t, err)

	require.Len(t, plan.Servers, 1)
	require.Len(t, plan.Clients, 1)

	assert.Equal(t, "cloudpunch-1234567-s-r1-n1-s1", plan.Servers[0].Name)
	assert.Equal(t, "cloudpunch-1234567-c-r1-n1-c1", plan.Clients[0].Name)
	assert.Equal(t, "10.1.1.0/24", plan.Servers[0].CIDR)
	assert.Equal(t, "10.128.1.0/24", plan.Clients[0].CIDR)
	assert.Equal(t, plan.Servers[0].PairIndex, plan.Clients[0].PairIndex)
}

// TestPlanSingleNetwork lays out three unpaired instances on the one
// fixed subnet.
func TestPlanSingleNetwork(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		NetworkMode:         model.ModeSingleNetwork,
		NumberRouters:       1,
		NetworksPerRouter:   1,
		InstancesPerNetwork: 3,
	}

	plan, err := topology.BuildWithSpecs(cfg, config.RoleSpec{Flavor: "m1.small"}, config.RoleSpec{}, runID)
	require.NoError(t, err)

	require.Len(t, plan.Servers, 3)
	assert.Empty(t, plan.Clients)

	for i, suffix := range []string{"-s1", "-s2", "-s3"} {
		assert.Equal(t, "cloudpunch-1234567"+suffix, plan.Servers[i].Name)
		assert.Equal(t, "10.0.0.0/16", plan.Servers[i].CIDR)
	}
}

// TestPlanCanonicalOrder checks the creation order is router-major and
// that the hostname's parsed position matches the slot it was planned
// into.
func TestPlanCanonicalOrder(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		NetworkMode:         model.ModeFull,
		NumberRouters:       2,
		NetworksPerRouter:   2,
		InstancesPerNetwork: 2,
	}

	plan, err := topology.BuildWithSpecs(cfg, config.RoleSpec{Flavor: "m1.small"}, config.RoleSpec{}, runID)
	require.NoError(t, err)
	require.Len(t, plan.Servers, 8)

	for i, d := range plan.Servers {
		assert.Equal(t, i+1, d.PairIndex)

		parsed, err := topology.ParseName(d.Name)
		require.NoError(t, err)
		assert.Equal(t, d.Router, parsed.Router)
		assert.Equal(t, d.Network, parsed.Network)
		assert.Equal(t, d.Instance, parsed.Instance)
	}

	// Router-major: the first four descriptors live on router 1.
	assert.Equal(t, 1, plan.Servers[3].Router)
	assert.Equal(t, 2, plan.Servers[4].Router)
}

// TestPlanFlavorWeights checks a 50/50 split over four
// instances assigns the first flavor to instances 1-2 and the second to
// 3-4.
func TestPlanFlavorWeights(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		NetworkMode:         model.ModeFull,
		NumberRouters:       1,
		NetworksPerRouter:   1,
		InstancesPerNetwork: 4,
		FlavorFile: config.FlavorWeights{
			{Name: "small", Weight: 50},
			{Name: "large", Weight: 50},
		},
	}

	plan, err := topology.BuildWithSpecs(cfg, config.RoleSpec{Flavor: "default"}, config.RoleSpec{}, runID)
	require.NoError(t, err)
	require.Len(t, plan.Servers, 4)

	assert.Equal(t, []string{"small", "small", "large", "large"}, []string{
		plan.Servers[0].Flavor,
		plan.Servers[1].Flavor,
		plan.Servers[2].Flavor,
		plan.Servers[3].Flavor,
	})
}

// TestPlanShapeCaps checks the per-mode topology caps, including the
// pairing-halved router space.
func TestPlanShapeCaps(t *testing.T) {
	t.Parallel()

	cfg := pairedConfig()
	cfg.NumberRouters = 127

	_, err := topology.BuildWithSpecs(cfg, config.RoleSpec{}, config.RoleSpec{}, runID)
	assert.ErrorIs(t, err, topology.ErrTopology)

	cfg = pairedConfig()
	cfg.ServerClientMode = false
	cfg.NumberRouters = 127

	_, err = topology.BuildWithSpecs(cfg, config.RoleSpec{}, config.RoleSpec{}, runID)
	assert.NoError(t, err)

	cfg = pairedConfig()
	cfg.InstancesPerNetwork = 251

	_, err = topology.BuildWithSpecs(cfg, config.RoleSpec{}, config.RoleSpec{}, runID)
	assert.ErrorIs(t, err, topology.ErrTopology)
}

// TestPlanHostMap checks the availability zone walk resolves rows and
// tags by pairing index.
func TestPlanHostMap(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		NetworkMode:         model.ModeFull,
		NumberRouters:       1,
		NetworksPerRouter:   1,
		InstancesPerNetwork: 3,
		ServerClientMode:    true,
		HostMap: &config.HostMap{
			Map:  []string{"a,b", "b,a"},
			Tags: map[string]string{"a": "zone-a", "b": "zone-b"},
		},
	}

	plan, err := topology.BuildWithSpecs(cfg, config.RoleSpec{Flavor: "f"}, config.RoleSpec{Flavor: "f"}, runID)
	require.NoError(t, err)

	// Servers walk the first column, clients the second, row index
	// (k-1) mod len(map).
	assert.Equal(t, "zone-a", plan.Servers[0].AvailabilityZone)
	assert.Equal(t, "zone-b", plan.Servers[1].AvailabilityZone)
	assert.Equal(t, "zone-a", plan.Servers[2].AvailabilityZone)
	assert.Equal(t, "zone-b", plan.Clients[0].AvailabilityZone)
	assert.Equal(t, "zone-a", plan.Clients[1].AvailabilityZone)
}

// TestMasterDescriptor checks the master rides the server fleet's first
// network with the literal three-segment name.
func TestMasterDescriptor(t *testing.T) {
	t.Parallel()

	plan, err := topology.BuildWithSpecs(pairedConfig(), config.RoleSpec{Flavor: "f"}, config.RoleSpec{Flavor: "f"}, runID)
	require.NoError(t, err)

	master := topology.MasterDescriptor(plan.Servers, config.RoleSpec{Flavor: "m1.master"}, runID, model.ModeFull)

	assert.Equal(t, "cloudpunch-1234567-master", master.Name)
	assert.Equal(t, model.RoleMaster, master.Role)
	assert.Equal(t, plan.Servers[0].CIDR, master.CIDR)
	assert.Equal(t, "m1.master", master.Flavor)
}
