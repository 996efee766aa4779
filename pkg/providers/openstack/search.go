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
	"strings"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack/blockstorage/v3/volumes"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/keypairs"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/servers"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/layer3/floatingips"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/layer3/routers"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/security/groups"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/networks"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/ports"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/subnets"

	"github.com/target/cloudpunch/pkg/providers"
)

type searchAPI struct{ a *Adapter }

// ByPrefix implements the Cleanup Engine's search mode:
// when a run's cleanup file is lost, every resource CloudPunch ever
// creates carries a name starting with prefix (the
// "cloudpunch-<run-id>" convention), except floating IPs, which Neutron
// never names at all. Those are instead recovered by matching the port
// of every discovered instance, which is how Associate found them in
// the first place.
func (s *searchAPI) ByPrefix(ctx context.Context, prefix string) (*providers.Discovered, error) {
	out := &providers.Discovered{}

	networkClient, err := s.a.networkClient()
	if err != nil {
		return nil, err
	}

	computeClient, err := s.a.computeClient()
	if err != nil {
		return nil, err
	}

	volumeClient, err := s.a.volumeClient()
	if err != nil {
		return nil, err
	}

	if err := searchSecurityGroups(networkClient, prefix, out); err != nil {
		return nil, err
	}

	if err := searchKeypairs(computeClient, prefix, out); err != nil {
		return nil, err
	}

	if err := searchRouters(networkClient, prefix, out); err != nil {
		return nil, err
	}

	if err := searchNetworks(networkClient, prefix, out); err != nil {
		return nil, err
	}

	if err := searchSubnets(networkClient, out); err != nil {
		return nil, err
	}

	if err := searchInstances(computeClient, prefix, out); err != nil {
		return nil, err
	}

	if err := searchVolumes(volumeClient, prefix, out); err != nil {
		return nil, err
	}

	if err := searchFloatingIPs(networkClient, out); err != nil {
		return nil, err
	}

	return out, nil
}

func searchSecurityGroups(client *gophercloud.ServiceClient, prefix string, out *providers.Discovered) error {
	page, err := groups.List(client, groups.ListOpts{}).AllPages()
	if err != nil {
		return classify("search:secgroups", err)
	}

	all, err := groups.ExtractGroups(page)
	if err != nil {
		return classify("search:secgroups", err)
	}

	for _, g := range all {
		if strings.HasPrefix(g.Name, prefix) {
			out.SecurityGroups = append(out.SecurityGroups, &providers.SecurityGroupHandle{ID: g.ID, Name: g.Name})
		}
	}

	return nil
}

func searchKeypairs(client *gophercloud.ServiceClient, prefix string, out *providers.Discovered) error {
	page, err := keypairs.List(client, keypairs.ListOpts{}).AllPages()
	if err != nil {
		return classify("search:keypairs", err)
	}

	all, err := keypairs.ExtractKeyPairs(page)
	if err != nil {
		return classify("search:keypairs", err)
	}

	for _, k := range all {
		if strings.HasPrefix(k.Name, prefix) {
			out.Keypairs = append(out.Keypairs, &providers.KeypairHandle{Name: k.Name})
		}
	}

	return nil
}

func searchRouters(client *gophercloud.ServiceClient, prefix string, out *providers.Discovered) error {
	page, err := routers.List(client, routers.ListOpts{}).AllPages()
	if err != nil {
		return classify("search:routers", err)
	}

	all, err := routers.ExtractRouters(page)
	if err != nil {
		return classify("search:routers", err)
	}

	for _, r := range all {
		if !strings.HasPrefix(r.Name, prefix) {
			continue
		}

		handle := &providers.RouterHandle{ID: r.ID, Name: r.Name}

		if r.GatewayInfo.NetworkID != "" {
			handle.ExternalNetworkID = r.GatewayInfo.NetworkID
			handle.HasExternalGateway = true
		}

		out.Routers = append(out.Routers, handle)
	}

	return nil
}

func searchNetworks(client *gophercloud.ServiceClient, prefix string, out *providers.Discovered) error {
	page, err := networks.List(client, networks.ListOpts{}).AllPages()
	if err != nil {
		return classify("search:networks", err)
	}

	all, err := networks.ExtractNetworks(page)
	if err != nil {
		return classify("search:networks", err)
	}

	for _, n := range all {
		if strings.HasPrefix(n.Name, prefix) {
			out.Networks = append(out.Networks, &providers.NetworkHandle{ID: n.ID, Name: n.Name})
		}
	}

	return nil
}

// searchSubnets lists every subnet belonging to a network search already
// found, since subnets (like floating IPs) carry no CloudPunch-specific
// name by default.
func searchSubnets(client *gophercloud.ServiceClient, out *providers.Discovered) error {
	for _, n := range out.Networks {
		page, err := subnets.List(client, subnets.ListOpts{NetworkID: n.ID}).AllPages()
		if err != nil {
			return classify("search:subnets", err)
		}

		all, err := subnets.ExtractSubnets(page)
		if err != nil {
			return classify("search:subnets", err)
		}

		for _, sn := range all {
			out.Subnets = append(out.Subnets, &providers.SubnetHandle{ID: sn.ID, NetworkID: sn.NetworkID, CIDR: sn.CIDR})
		}
	}

	return nil
}

func searchInstances(client *gophercloud.ServiceClient, prefix string, out *providers.Discovered) error {
	page, err := servers.List(client, servers.ListOpts{}).AllPages()
	if err != nil {
		return classify("search:instances", err)
	}

	all, err := servers.ExtractServers(page)
	if err != nil {
		return classify("search:instances", err)
	}

	for i := range all {
		if strings.HasPrefix(all[i].Name, prefix) {
			out.Instances = append(out.Instances, instanceHandleFromServer(&all[i]))
		}
	}

	return nil
}

func searchVolumes(client *gophercloud.ServiceClient, prefix string, out *providers.Discovered) error {
	page, err := volumes.List(client, volumes.ListOpts{}).AllPages()
	if err != nil {
		return classify("search:volumes", err)
	}

	all, err := volumes.ExtractVolumes(page)
	if err != nil {
		return classify("search:volumes", err)
	}

	for _, v := range all {
		if strings.HasPrefix(v.Name, prefix) {
			out.Volumes = append(out.Volumes, &providers.VolumeHandle{ID: v.ID, Name: v.Name, Status: v.Status})
		}
	}

	return nil
}

// searchFloatingIPs keeps only the floating IPs whose port belongs to an
// instance search already discovered, since floating IPs have no name.
func searchFloatingIPs(client *gophercloud.ServiceClient, out *providers.Discovered) error {
	if len(out.Instances) == 0 {
		return nil
	}

	portIDs := map[string]bool{}

	for _, instance := range out.Instances {
		page, err := ports.List(client, ports.ListOpts{DeviceID: instance.ID}).AllPages()
		if err != nil {
			return classify("search:ports", err)
		}

		all, err := ports.ExtractPorts(page)
		if err != nil {
			return classify("search:ports", err)
		}

		for _, p := range all {
			portIDs[p.ID] = true
		}
	}

	page, err := floatingips.List(client, floatingips.ListOpts{}).AllPages()
	if err != nil {
		return classify("search:floatingips", err)
	}

	all, err := floatingips.ExtractFloatingIPs(page)
	if err != nil {
		return classify("search:floatingips", err)
	}

	for _, f := range all {
		if portIDs[f.PortID] {
			out.FloatingIPs = append(out.FloatingIPs, &providers.FloatingIPHandle{ID: f.ID, Address: f.FloatingIP})
		}
	}

	return nil
}
