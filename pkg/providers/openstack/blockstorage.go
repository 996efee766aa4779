/*
Copyright 2022-2024 EscherCloud, CloudPunch Authors.

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

	"github.com/gophercloud/gophercloud/openstack/blockstorage/v3/volumes"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/volumeattach"

	"github.com/target/cloudpunch/pkg/providers"
)

type volumeAPI struct{ a *Adapter }

func (v *volumeAPI) Create(ctx context.Context, name string, sizeGB int, availabilityZone, volumeType string) (*providers.VolumeHandle, error) {
	client, err := v.a.volumeClient()
	if err != nil {
		return nil, err
	}

	result, err := volumes.Create(client, volumes.CreateOpts{
		Name:             name,
		Size:             sizeGB,
		AvailabilityZone: availabilityZone,
		VolumeType:       volumeType,
	}).Extract()
	if err != nil {
		return nil, classify("volume:"+name, err)
	}

	return &providers.VolumeHandle{ID: result.ID, Name: result.Name, Status: result.Status}, nil
}

func (v *volumeAPI) Attach(ctx context.Context, instanceID, volumeID string) error {
	client, err := v.a.computeClient()
	if err != nil {
		return err
	}

	if _, err := volumeattach.Create(client, instanceID, volumeattach.CreateOpts{
		VolumeID: volumeID,
	}).Extract(); err != nil {
		return classify("volume-attachment:"+volumeID, err)
	}

	return nil
}

func (v *volumeAPI) Delete(ctx context.Context, id string) error {
	client, err := v.a.volumeClient()
	if err != nil {
		return err
	}

	if err := volumes.Delete(client, id, volumes.DeleteOpts{}).ExtractErr(); err != nil {
		return classify("volume:"+id, err)
	}

	return nil
}
