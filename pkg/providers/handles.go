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

package providers

// Every handle type below is the provider-agnostic shape the rest of
// CloudPunch (inventory, cleanup, topology) deals in. Nothing outside
// pkg/providers/openstack ever sees a gophercloud type directly.

// NetworkHandle identifies a created network.
type NetworkHandle struct {
	ID   string
	Name string
}

// SubnetHandle identifies a created subnet.
type SubnetHandle struct {
	ID        string
	NetworkID string
	CIDR      string
}

// RouterHandle identifies a created router, along with the external
// network it was given a gateway onto, if any.
type RouterHandle struct {
	ID                  string
	Name                string
	ExternalNetworkID   string
	HasExternalGateway  bool
	AttachedSubnetIDs   []string
}

// SecurityGroupHandle identifies a created security group.
type SecurityGroupHandle struct {
	ID   string
	Name string
}

// KeypairHandle identifies an imported SSH keypair.
type KeypairHandle struct {
	Name string
}

// InstanceHandle identifies a created server, with the addresses
// assigned once it reaches ACTIVE.
type InstanceHandle struct {
	ID               string
	Name             string
	Status           string
	AvailabilityZone string
	InternalIP       string
	ExternalIP       string
}

// VolumeHandle identifies a created block storage volume.
type VolumeHandle struct {
	ID     string
	Name   string
	Status string
}

// FloatingIPHandle identifies an allocated floating IP.
type FloatingIPHandle struct {
	ID      string
	Address string
}

// LoadBalancerHandle identifies a created load balancer along with its
// listener, pool, and health monitor, created as one logical unit.
type LoadBalancerHandle struct {
	ID          string
	Name        string
	VIPAddress  string
	ListenerID  string
	PoolID      string
	MonitorID   string
}

// FlavorHandle describes a compute flavor available for selection.
type FlavorHandle struct {
	ID   string
	Name string
}

// ImageHandle describes an image available for selection.
type ImageHandle struct {
	ID   string
	Name string
}
