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

package cleanup

import (
	"context"

	"github.com/target/cloudpunch/pkg/constants"
	"github.com/target/cloudpunch/pkg/inventory"
	"github.com/target/cloudpunch/pkg/model"
	"github.com/target/cloudpunch/pkg/providers"
)

// Search reconstructs an inventory by enumerating provider-side
// resources whose names carry the cloudpunch- prefix, for when a run's
// cleanup file was lost.
func Search(ctx context.Context, adapter providers.Adapter, env model.EnvLabel) (*inventory.Inventory, error) {
	discovered, err := adapter.Search().ByPrefix(ctx, constants.NamePrefix+"-")
	if err != nil {
		return nil, err
	}

	inv := inventory.New()

	for _, h := range discovered.SecurityGroups {
		inv.Append(inventory.KindSecurityGroup, env, "", h)
	}

	for _, h := range discovered.Keypairs {
		inv.Append(inventory.KindKeypair, env, "", h)
	}

	for _, h := range discovered.Routers {
		inv.Append(inventory.KindRouter, env, "", h)
	}

	for _, h := range discovered.Networks {
		inv.Append(inventory.KindNetwork, env, "", h)
	}

	for _, h := range discovered.Subnets {
		inv.Append(inventory.KindSubnet, env, "", h)
	}

	for _, h := range discovered.Instances {
		inv.Append(inventory.KindInstance, env, "", h)
	}

	for _, h := range discovered.Volumes {
		inv.Append(inventory.KindVolume, env, "", h)
	}

	for _, h := range discovered.FloatingIPs {
		inv.Append(inventory.KindFloatingIP, env, "", h)
	}

	return inv, nil
}
