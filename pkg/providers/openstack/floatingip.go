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

package openstack

import (
	"context"

	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/layer3/floatingips"

	"github.com/target/cloudpunch/pkg/providers"
)

type floatingIPAPI struct{ a *Adapter }

func (f *floatingIPAPI) Allocate(ctx context.Context, externalNetworkID string) (*providers.FloatingIPHandle, error) {
	client, err := f.a.networkClient()
	if err != nil {
		return nil, err
	}

	result, err := floatingips.Create(client, floatingips.CreateOpts{
		FloatingNetworkID: externalNetworkID,
	}).Extract()
	if err != nil {
		return nil, classify("floatingip", err)
	}

	return &providers.FloatingIPHandle{ID: result.ID, Address: result.FloatingIP}, nil
}

func (f *floatingIPAPI) Associate(ctx context.Context, floatingIPID, instanceID string) error {
	client, err := f.a.networkClient()
	if err != nil {
		return err
	}

	port, err := instancePortID(client, instanceID)
	if err != nil {
		return err
	}

	_, err = floatingips.Update(client, floatingIPID, floatingips.UpdateOpts{
		PortID: &port,
	}).Extract()
	if err != nil {
		return classify("floatingip:"+floatingIPID, err)
	}

	return nil
}

func (f *floatingIPAPI) Delete(ctx context.Context, id string) error {
	client, err := f.a.networkClient()
	if err != nil {
		return err
	}

	if err := floatingips.Delete(client, id).ExtractErr(); err != nil {
		return classify("floatingip:"+id, err)
	}

	return nil
}
