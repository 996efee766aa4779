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

// Package providers defines the Resource Adapter contract: the single
// seam between CloudPunch's domain logic (topology, staging, cleanup)
// and whatever cloud SDK actually creates resources. pkg/providers/openstack
// is the only implementation today; adding a second cloud means adding a
// second implementation of Adapter, not touching pkg/stage or pkg/cleanup.
package providers

import "context"

// Adapter is implemented once per target cloud. Every method is
// idempotent-ish from the caller's point of view: a KindNotFound error
// from a Delete call means the resource is already gone, not a failure.
type Adapter interface {
	Networks() NetworkAPI
	Subnets() SubnetAPI
	Routers() RouterAPI
	SecurityGroups() SecurityGroupAPI
	Keypairs() KeypairAPI
	Instances() InstanceAPI
	Volumes() VolumeAPI
	FloatingIPs() FloatingIPAPI
	LoadBalancers() LoadBalancerAPI
	Flavors() FlavorAPI
	Images() ImageAPI
	AvailabilityZones() AvailabilityZoneAPI
	Search() SearchAPI
}

// SearchAPI discovers resources already present in the cloud by name
// prefix, used by the Cleanup Engine's search mode to
// reconstruct an Inventory when a run's cleanup file was lost.
type SearchAPI interface {
	ByPrefix(ctx context.Context, prefix string) (*Discovered, error)
}

// Discovered is every resource Search found matching a prefix, already
// converted to the provider-agnostic handle types the rest of
// CloudPunch deals in.
type Discovered struct {
	SecurityGroups []*SecurityGroupHandle
	Keypairs       []*KeypairHandle
	Routers        []*RouterHandle
	Networks       []*NetworkHandle
	Subnets        []*SubnetHandle
	Instances      []*InstanceHandle
	Volumes        []*VolumeHandle
	FloatingIPs    []*FloatingIPHandle
}

// NetworkAPI creates and destroys networks.
type NetworkAPI interface {
	Create(ctx context.Context, name string) (*NetworkHandle, error)
	Delete(ctx context.Context, id string) error
	ExternalNetworkByName(ctx context.Context, name string) (*NetworkHandle, error)
}

// SubnetAPI creates and destroys subnets.
type SubnetAPI interface {
	Create(ctx context.Context, networkID, name, cidr string, dnsNameservers []string) (*SubnetHandle, error)
	Delete(ctx context.Context, id string) error
}

// RouterAPI creates routers and wires subnets/gateways onto them.
type RouterAPI interface {
	Create(ctx context.Context, name, externalNetworkID string) (*RouterHandle, error)
	AddInterface(ctx context.Context, routerID, subnetID string) error
	RemoveInterface(ctx context.Context, routerID, subnetID string) error
	Delete(ctx context.Context, id string) error
}

// SecurityGroupAPI creates a security group and its ingress rules.
type SecurityGroupAPI interface {
	Create(ctx context.Context, name string) (*SecurityGroupHandle, error)
	AddRule(ctx context.Context, groupID, protocol, portRange string) error
	Delete(ctx context.Context, id string) error
}

// KeypairAPI imports the operator's public key for injection into
// created instances.
type KeypairAPI interface {
	Import(ctx context.Context, name, publicKey string) (*KeypairHandle, error)
	Delete(ctx context.Context, name string) error
}

// InstanceAPI creates, inspects, and destroys compute instances.
type InstanceAPI interface {
	Create(ctx context.Context, opts InstanceCreateOpts) (*InstanceHandle, error)
	Get(ctx context.Context, id string) (*InstanceHandle, error)
	Delete(ctx context.Context, id string) error
}

// InstanceCreateOpts is the full set of parameters needed to boot one
// instance, already resolved to provider IDs by the caller.
type InstanceCreateOpts struct {
	Name             string
	FlavorID         string
	ImageID          string
	NetworkIDs       []string
	SecurityGroupIDs []string
	KeypairName      string
	AvailabilityZone string
	Userdata         string
	BootFromVolume   bool
	BootVolumeSizeGB int
}

// VolumeAPI creates and attaches block storage volumes.
type VolumeAPI interface {
	Create(ctx context.Context, name string, sizeGB int, availabilityZone, volumeType string) (*VolumeHandle, error)
	Attach(ctx context.Context, instanceID, volumeID string) error
	Delete(ctx context.Context, id string) error
}

// FloatingIPAPI allocates and associates floating IPs.
type FloatingIPAPI interface {
	Allocate(ctx context.Context, externalNetworkID string) (*FloatingIPHandle, error)
	Associate(ctx context.Context, floatingIPID, instanceID string) error
	Delete(ctx context.Context, id string) error
}

// LoadBalancerAPI creates a load balancer plus its listener, pool, and
// monitor as one logical unit, and registers pool members.
type LoadBalancerAPI interface {
	Create(ctx context.Context, name, subnetID, protocol string, port int) (*LoadBalancerHandle, error)
	AddMember(ctx context.Context, lb *LoadBalancerHandle, subnetID, address string, port int) error
	Delete(ctx context.Context, lb *LoadBalancerHandle) error
}

// FlavorAPI resolves flavor names to IDs.
type FlavorAPI interface {
	ByName(ctx context.Context, name string) (*FlavorHandle, error)
}

// ImageAPI resolves image names to IDs.
type ImageAPI interface {
	ByName(ctx context.Context, name string) (*ImageHandle, error)
}

// AvailabilityZoneAPI lists the zones a cloud exposes, used by
// pkg/topology's host-map resolution.
type AvailabilityZoneAPI interface {
	List(ctx context.Context) ([]string, error)
}
