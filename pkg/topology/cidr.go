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
	"fmt"

	"github.com/target/cloudpunch/pkg/model"
)

// clientIndexOffset is added to a client fleet's router (full mode) or
// network (single-router mode) index so its subnets never collide with
// the server fleet's.
const clientIndexOffset = 127

// CIDR computes the subnet range for one instance's position, one
// derivation per network mode. router/network are the role-local,
// 1-based indices topology.Name was given — the client offset is
// applied here, not baked into the caller's numbering.
func CIDR(mode model.NetworkMode, role model.Role, router, network int) string {
	offset := 0
	if role == model.RoleClient {
		offset = clientIndexOffset
	}

	switch mode {
	case model.ModeSingleNetwork:
		return "10.0.0.0/16"
	case model.ModeSingleRouter:
		return fmt.Sprintf("10.%d.0.0/16", network+offset)
	default: // model.ModeFull
		return fmt.Sprintf("10.%d.%d.0/24", router+offset, network)
	}
}
