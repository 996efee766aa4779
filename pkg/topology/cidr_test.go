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

	"github.com/target/cloudpunch/pkg/model"
	"github.com/target/cloudpunch/pkg/topology"
)

// TestCIDRScenarios pins the derived ranges: the paired full-mode
// server/client /24s and the fixed single-network /16.
func TestCIDRScenarios(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "10.1.1.0/24", topology.CIDR(model.ModeFull, model.RoleServer, 1, 1))
	assert.Equal(t, "10.128.1.0/24", topology.CIDR(model.ModeFull, model.RoleClient, 1, 1))
	assert.Equal(t, "10.0.0.0/16", topology.CIDR(model.ModeSingleNetwork, model.RoleServer, 1, 1))
	assert.Equal(t, "10.2.0.0/16", topology.CIDR(model.ModeSingleRouter, model.RoleServer, 1, 2))
	assert.Equal(t, "10.129.0.0/16", topology.CIDR(model.ModeSingleRouter, model.RoleClient, 1, 2))
}

// TestCIDRUniqueness sweeps the largest paired full-mode topology and
// asserts no two subnets share a range across both roles.
func TestCIDRUniqueness(t *testing.T) {
	t.Parallel()

	seen := map[string]string{}

	for _, role := range []model.Role{model.RoleServer, model.RoleClient} {
		for router := 1; router <= 126; router++ {
			for network := 1; network <= 4; network++ {
				cidr := topology.CIDR(model.ModeFull, role, router, network)

				if previous, ok := seen[cidr]; ok {
					t.Fatalf("%s collides: %s vs %s/r%d/n%d", cidr, previous, role, router, network)
				}

				seen[cidr] = string(role)
			}
		}
	}
}
