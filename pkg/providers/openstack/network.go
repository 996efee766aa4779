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
	"encoding/json"
	"fmt"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/layer3/routers"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/security/groups"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/security/rules"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/networks"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/subnets"

	"github.com/target/cloudpunch/pkg/providers"
)

// externalNetwork extends gophercloud's network type with the
// router:external field, which isn't exposed by the base type.
type externalNetwork struct {
	networks.Network
	External bool `json:"router:external"`
}

func (n *externalNetwork) UnmarshalJSON(b []byte) error {
	if err := json.Unmarshal(b, &n.Network); err != nil {
		return err
	}

	type tmp externalNetwork

	var s struct {
		tmp
	}

	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	n.External = s.tmp.External

	return nil
}

type networkAPI struct{ a *Adapter }

func (n *networkAPI) Create(ctx context.Context, name string) (*providers.NetworkHandle, error) {
	client, err := n.a.networkClient()
	if err != nil {
		return nil, err
	}

	result, err := networks.Create(client, networks.CreateOpts{Name: name}).Extract()
	if err != nil {
		return nil, classify("network:"+name, err)
	}

	return &providers.NetworkHandle{ID: result.ID, Name: result.Name}, nil
}

func (n *networkAPI) Delete(ctx context.Context, id string) error {
	client, err := n.a.networkClient()
	if err != nil {
		return err
	}

	if err := networks.Delete(client, id).ExtractErr(); err != nil {
		return classify("network:"+id, err)
	}

	return nil
}

// ExternalNetworkByName finds the operator-named external network used
// as every router's gateway. Neutron can't filter on router:external
// directly, so this lists everything and extracts the extension field.
func (n *networkAPI) ExternalNetworkByName(ctx context.Context, name string) (*providers.NetworkHandle, error) {
	client, err := n.a.networkClient()
	if err != nil {
		return nil, err
	}

	page, err := networks.List(client, networks.ListOpts{Name: name}).AllPages()
	if err != nil {
		return nil, classify("network:"+name, err)
	}

	var results []externalNetwork

	if err := networks.ExtractNetworksInto(page, &results); err != nil {
		return nil, classify("network:"+name, err)
	}

	for _, net := range results {
		if net.External {
			return &providers.NetworkHandle{ID: net.ID, Name: net.Name}, nil
		}
	}

	return nil, &providers.Error{
		Kind:     providers.KindNotFound,
		Resource: "external network:" + name,
		Err:      fmt.Errorf("no external network named %q", name),
	}
}

type subnetAPI struct{ a *Adapter }

func (s *subnetAPI) Create(ctx context.Context, networkID, name, cidr string, dnsNameservers []string) (*providers.SubnetHandle, error) {
	client, err := s.a.networkClient()
	if err != nil {
		return nil, err
	}

	result, err := subnets.Create(client, subnets.CreateOpts{
		NetworkID:      networkID,
		CIDR:           cidr,
		IPVersion:      gophercloud.IPv4,
		Name:           name,
		DNSNameservers: dnsNameservers,
	}).Extract()
	if err != nil {
		return nil, classify("subnet:"+name, err)
	}

	return &providers.SubnetHandle{ID: result.ID, NetworkID: result.NetworkID, CIDR: result.CIDR}, nil
}

func (s *subnetAPI) Delete(ctx context.Context, id string) error {
	client, err := s.a.networkClient()
	if err != nil {
		return err
	}

	if err := subnets.Delete(client, id).ExtractErr(); err != nil {
		return classify("subnet:"+id, err)
	}

	return nil
}

type routerAPI struct{ a *Adapter }

func (r *routerAPI) Create(ctx context.Context, name, externalNetworkID string) (*providers.RouterHandle, error) {
	client, err := r.a.networkClient()
	if err != nil {
		return nil, err
	}

	opts := routers.CreateOpts{Name: name}

	if externalNetworkID != "" {
		opts.GatewayInfo = &routers.GatewayInfo{NetworkID: externalNetworkID}
	}

	result, err := routers.Create(client, opts).Extract()
	if err != nil {
		return nil, classify("router:"+name, err)
	}

	return &providers.RouterHandle{
		ID:                 result.ID,
		Name:               result.Name,
		ExternalNetworkID:  externalNetworkID,
		HasExternalGateway: externalNetworkID != "",
	}, nil
}

func (r *routerAPI) AddInterface(ctx context.Context, routerID, subnetID string) error {
	client, err := r.a.networkClient()
	if err != nil {
		return err
	}

	if _, err := routers.AddInterface(client, routerID, routers.AddInterfaceOpts{SubnetID: subnetID}).Extract(); err != nil {
		return classify("router-interface:"+routerID, err)
	}

	return nil
}

func (r *routerAPI) RemoveInterface(ctx context.Context, routerID, subnetID string) error {
	client, err := r.a.networkClient()
	if err != nil {
		return err
	}

	if _, err := routers.RemoveInterface(client, routerID, routers.RemoveInterfaceOpts{SubnetID: subnetID}).Extract(); err != nil {
		return classify("router-interface:"+routerID, err)
	}

	return nil
}

func (r *routerAPI) Delete(ctx context.Context, id string) error {
	client, err := r.a.networkClient()
	if err != nil {
		return err
	}

	if err := routers.Delete(client, id).ExtractErr(); err != nil {
		return classify("router:"+id, err)
	}

	return nil
}

type securityGroupAPI struct{ a *Adapter }

func (s *securityGroupAPI) Create(ctx context.Context, name string) (*providers.SecurityGroupHandle, error) {
	client, err := s.a.networkClient()
	if err != nil {
		return nil, err
	}

	result, err := groups.Create(client, groups.CreateOpts{Name: name}).Extract()
	if err != nil {
		return nil, classify("secgroup:"+name, err)
	}

	return &providers.SecurityGroupHandle{ID: result.ID, Name: result.Name}, nil
}

// AddRule adds one ingress rule. portRange is either "all" or a
// "from-to" pair, matching environment.yaml's secgroup_rules shape.
func (s *securityGroupAPI) AddRule(ctx context.Context, groupID, protocol, portRange string) error {
	client, err := s.a.networkClient()
	if err != nil {
		return err
	}

	opts := rules.CreateOpts{
		Direction:      rules.DirIngress,
		EtherType:      rules.EtherType4,
		SecGroupID:     groupID,
		PortRangeMin:   0,
		PortRangeMax:   0,
		Protocol:       rules.RuleProtocol(protocol),
	}

	if protocol == "icmp" {
		opts.Protocol = rules.ProtocolICMP
	}

	fromPort, toPort, ok := parsePortRange(portRange)
	if ok {
		opts.PortRangeMin = fromPort
		opts.PortRangeMax = toPort
	}

	if _, err := rules.Create(client, opts).Extract(); err != nil {
		return classify("secgroup-rule:"+groupID, err)
	}

	return nil
}

func parsePortRange(s string) (from, to int, ok bool) {
	if s == "" || s == "all" {
		return 0, 0, false
	}

	if _, err := fmt.Sscanf(s, "%d-%d", &from, &to); err == nil {
		return from, to, true
	}

	if _, err := fmt.Sscanf(s, "%d", &from); err == nil {
		return from, from, true
	}

	return 0, 0, false
}

func (s *securityGroupAPI) Delete(ctx context.Context, id string) error {
	client, err := s.a.networkClient()
	if err != nil {
		return err
	}

	if err := groups.Delete(client, id).ExtractErr(); err != nil {
		return classify("secgroup:"+id, err)
	}

	return nil
}

type azAPI struct{ a *Adapter }

func (z *azAPI) List(ctx context.Context) ([]string, error) {
	client, err := z.a.computeClient()
	if err != nil {
		return nil, err
	}

	return listAvailabilityZones(client)
}
