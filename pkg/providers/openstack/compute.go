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
	"fmt"
	"time"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/availabilityzones"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/bootfromvolume"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/keypairs"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/flavors"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/servers"

	"github.com/target/cloudpunch/pkg/providers"
	"github.com/target/cloudpunch/pkg/retry"
)

const (
	// instanceActivePollInterval is how often instance Create polls Nova
	// while a server is BUILDing (poll until ready).
	instanceActivePollInterval = 5 * time.Second

	// instanceActivePollAttempts bounds that poll so a stuck hypervisor
	// fails the stage rather than hanging it forever.
	instanceActivePollAttempts = 120
)

func listAvailabilityZones(client *gophercloud.ServiceClient) ([]string, error) {
	page, err := availabilityzones.List(client).AllPages()
	if err != nil {
		return nil, classify("availability-zones", err)
	}

	zones, err := availabilityzones.ExtractAvailabilityZones(page)
	if err != nil {
		return nil, classify("availability-zones", err)
	}

	names := make([]string, 0, len(zones))
	for _, z := range zones {
		names = append(names, z.ZoneName)
	}

	return names, nil
}

type keypairAPI struct{ a *Adapter }

func (k *keypairAPI) Import(ctx context.Context, name, publicKey string) (*providers.KeypairHandle, error) {
	client, err := k.a.computeClient()
	if err != nil {
		return nil, err
	}

	result, err := keypairs.Create(client, keypairs.CreateOpts{
		Name:      name,
		PublicKey: publicKey,
	}).Extract()
	if err != nil {
		return nil, classify("keypair:"+name, err)
	}

	return &providers.KeypairHandle{Name: result.Name}, nil
}

func (k *keypairAPI) Delete(ctx context.Context, name string) error {
	client, err := k.a.computeClient()
	if err != nil {
		return err
	}

	if err := keypairs.Delete(client, name, keypairs.DeleteOpts{}).ExtractErr(); err != nil {
		return classify("keypair:"+name, err)
	}

	return nil
}

type flavorAPI struct{ a *Adapter }

func (f *flavorAPI) ByName(ctx context.Context, name string) (*providers.FlavorHandle, error) {
	if handle, ok := f.a.flavorCache.Get(name); ok {
		return handle, nil
	}

	client, err := f.a.computeClient()
	if err != nil {
		return nil, err
	}

	page, err := flavors.ListDetail(client, flavors.ListOpts{}).AllPages()
	if err != nil {
		return nil, classify("flavor:"+name, err)
	}

	all, err := flavors.ExtractFlavors(page)
	if err != nil {
		return nil, classify("flavor:"+name, err)
	}

	for _, flavor := range all {
		if flavor.Name == name {
			handle := &providers.FlavorHandle{ID: flavor.ID, Name: flavor.Name}
			f.a.flavorCache.Add(name, handle)

			return handle, nil
		}
	}

	return nil, &providers.Error{
		Kind:     providers.KindNotFound,
		Resource: "flavor:" + name,
		Err:      fmt.Errorf("no flavor named %q", name),
	}
}

type instanceAPI struct{ a *Adapter }

func (i *instanceAPI) Create(ctx context.Context, opts providers.InstanceCreateOpts) (*providers.InstanceHandle, error) {
	client, err := i.a.computeClient()
	if err != nil {
		return nil, err
	}

	nets := make([]servers.Network, 0, len(opts.NetworkIDs))
	for _, id := range opts.NetworkIDs {
		nets = append(nets, servers.Network{UUID: id})
	}

	createOpts := servers.CreateOpts{
		Name:             opts.Name,
		FlavorRef:        opts.FlavorID,
		ImageRef:         opts.ImageID,
		Networks:         nets,
		SecurityGroups:   opts.SecurityGroupIDs,
		AvailabilityZone: opts.AvailabilityZone,
		UserData:         []byte(opts.Userdata),
	}

	createWithKeypair := keypairs.CreateOptsExt{
		CreateOptsBuilder: createOpts,
		KeyName:           opts.KeypairName,
	}

	var result *servers.Server

	if opts.BootFromVolume {
		blockDevice := []bootfromvolume.BlockDevice{
			{
				SourceType:          bootfromvolume.SourceImage,
				UUID:                opts.ImageID,
				DestinationType:     bootfromvolume.DestinationVolume,
				VolumeSize:          opts.BootVolumeSizeGB,
				DeleteOnTermination: true,
			},
		}

		result, err = bootfromvolume.Create(client, bootfromvolume.CreateOptsExt{
			CreateOptsBuilder: createWithKeypair,
			BlockDevice:       blockDevice,
		}).Extract()
	} else {
		result, err = servers.Create(client, createWithKeypair).Extract()
	}

	if err != nil {
		return nil, classify("instance:"+opts.Name, err)
	}

	handle, err := waitInstanceActive(client, result.ID, opts.Name)
	if err != nil {
		return nil, err
	}

	handle.AvailabilityZone = opts.AvailabilityZone

	return handle, nil
}

// waitInstanceActive polls a freshly-created instance until it reaches
// ACTIVE (returning its assigned addresses) or ERROR (a permanent
// failure carrying Nova's fault message).
func waitInstanceActive(client *gophercloud.ServiceClient, id, name string) (*providers.InstanceHandle, error) {
	var handle *providers.InstanceHandle

	err := retry.WithAttempts(instanceActivePollAttempts).WithPeriod(instanceActivePollInterval).Do(func() error {
		result, err := servers.Get(client, id).Extract()
		if err != nil {
			return classify("instance:"+id, err)
		}

		switch result.Status {
		case "ACTIVE":
			handle = instanceHandleFromServer(result)
			return nil
		case "ERROR":
			fault := "no fault detail reported"
			if result.Fault.Message != "" {
				fault = result.Fault.Message
			}

			return retry.Permanent(&providers.Error{
				Kind:     providers.KindPermanent,
				Resource: "instance:" + name,
				Err:      fmt.Errorf("instance entered ERROR state: %s", fault),
			})
		default:
			return &providers.Error{Kind: providers.KindTransient, Resource: "instance:" + name, Err: fmt.Errorf("instance is %s", result.Status)}
		}
	})
	if err != nil {
		return nil, err
	}

	return handle, nil
}

// instanceHandleFromServer extracts the provider-agnostic handle,
// including fixed/floating addresses, from a gophercloud server.
func instanceHandleFromServer(result *servers.Server) *providers.InstanceHandle {
	handle := &providers.InstanceHandle{
		ID:     result.ID,
		Name:   result.Name,
		Status: result.Status,
	}

	for _, addrs := range result.Addresses {
		entries, ok := addrs.([]interface{})
		if !ok {
			continue
		}

		for _, e := range entries {
			addr, ok := e.(map[string]interface{})
			if !ok {
				continue
			}

			ip, _ := addr["addr"].(string)                  //nolint:errcheck
			addrType, _ := addr["OS-EXT-IPS:type"].(string) //nolint:errcheck

			switch addrType {
			case "floating":
				handle.ExternalIP = ip
			default:
				if handle.InternalIP == "" {
					handle.InternalIP = ip
				}
			}
		}
	}

	return handle
}

func (i *instanceAPI) Get(ctx context.Context, id string) (*providers.InstanceHandle, error) {
	client, err := i.a.computeClient()
	if err != nil {
		return nil, err
	}

	result, err := servers.Get(client, id).Extract()
	if err != nil {
		return nil, classify("instance:"+id, err)
	}

	return instanceHandleFromServer(result), nil
}

func (i *instanceAPI) Delete(ctx context.Context, id string) error {
	client, err := i.a.computeClient()
	if err != nil {
		return err
	}

	if err := servers.Delete(client, id).ExtractErr(); err != nil {
		return classify("instance:"+id, err)
	}

	return nil
}
