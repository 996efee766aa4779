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
	"fmt"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/ports"

	"github.com/target/cloudpunch/pkg/providers"
)

// instancePortID finds the Neutron port Nova created for an instance's
// first network attachment, needed to associate a floating IP with it.
func instancePortID(client *gophercloud.ServiceClient, instanceID string) (string, error) {
	page, err := ports.List(client, ports.ListOpts{DeviceID: instanceID}).AllPages()
	if err != nil {
		return "", classify("port:"+instanceID, err)
	}

	all, err := ports.ExtractPorts(page)
	if err != nil {
		return "", classify("port:"+instanceID, err)
	}

	if len(all) == 0 {
		return "", &providers.Error{
			Kind:     providers.KindNotFound,
			Resource: "port:" + instanceID,
			Err:      fmt.Errorf("instance %s has no attached port", instanceID),
		}
	}

	return all[0].ID, nil
}
