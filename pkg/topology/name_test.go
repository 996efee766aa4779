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

	"github.com/target/cloudpunch/pkg/model"
	"github.com/target/cloudpunch/pkg/topology"
)

const runID = "1234567"

// TestNameRoundTrip checks the formatter and parser against each other
// for every mode, role, and a spread of positions: parse(name(k)) must
// recover exactly k.
func TestNameRoundTrip(t *testing.T) {
	t.Parallel()

	modes := []model.NetworkMode{model.ModeFull, model.ModeSingleRouter, model.ModeSingleNetwork}
	roles := []model.Role{model.RoleServer, model.RoleClient}

	for _, mode := range modes {
		for _, role := range roles {
			for _, pos := range [][3]int{{1, 1, 1}, {2, 3, 4}, {126, 254, 250}} {
				name := topology.Name(runID, role, mode, pos[0], pos[1], pos[2])

				parsed, err := topology.ParseName(name)
				require.NoError(t, err, name)

				assert.Equal(t, runID, parsed.RunID)
				assert.Equal(t, role, parsed.Role)
				assert.False(t, parsed.IsMaster)
				assert.Equal(t, pos[2], parsed.Instance)

				// Modes without a router/network segment normalise to 1.
				switch mode {
				case model.ModeFull:
					assert.Equal(t, pos[0], parsed.Router)
					assert.Equal(t, pos[1], parsed.Network)
				case model.ModeSingleRouter:
					assert.Equal(t, 1, parsed.Router)
					assert.Equal(t, pos[1], parsed.Network)
				case model.ModeSingleNetwork:
					assert.Equal(t, 1, parsed.Router)
					assert.Equal(t, 1, parsed.Network)
				}
			}
		}
	}
}

// TestNameEncodings pins the exact hostnames the wire format dictates.
func TestNameEncodings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "cloudpunch-1234567-s-r1-n1-s1", topology.Name(runID, model.RoleServer, model.ModeFull, 1, 1, 1))
	assert.Equal(t, "cloudpunch-1234567-c-r1-n1-c1", topology.Name(runID, model.RoleClient, model.ModeFull, 1, 1, 1))
	assert.Equal(t, "cloudpunch-1234567-s-master-n2-s3", topology.Name(runID, model.RoleServer, model.ModeSingleRouter, 1, 2, 3))
	assert.Equal(t, "cloudpunch-1234567-s2", topology.Name(runID, model.RoleServer, model.ModeSingleNetwork, 1, 1, 2))
}

// TestMasterName checks the master's literal three-segment form is
// recognised as structurally distinct from every worker encoding.
func TestMasterName(t *testing.T) {
	t.Parallel()

	name := topology.MasterName(runID)
	assert.Equal(t, "cloudpunch-1234567-master", name)
	assert.True(t, topology.IsMasterName(name, runID))
	assert.False(t, topology.IsMasterName("cloudpunch-1234567-s1", runID))

	parsed, err := topology.ParseName(name)
	require.NoError(t, err)
	assert.True(t, parsed.IsMaster)
	assert.Equal(t, model.RoleMaster, parsed.Role)
}

// TestParseNameRejectsGarbage ensures unknown shapes fail rather than
// mis-index.
func TestParseNameRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", "cloudpunch", "cloudpunch-abc-s1", "other-1234567-s1", "cloudpunch-1234567-x-r1-n1-x1"} {
		_, err := topology.ParseName(name)
		assert.Error(t, err, name)
	}
}
