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

package stage

import (
	"context"
	"fmt"
	"sync"

	"github.com/target/cloudpunch/pkg/providers"
)

// fakeCloud is an in-memory Resource Adapter for executor and recovery
// tests: it hands out sequential IDs, remembers everything created and
// deleted, and can be told to fail specific instance names.
type fakeCloud struct {
	mu     sync.Mutex
	nextID int

	instances map[string]*providers.InstanceHandle
	deleted   map[string]bool

	// failInstances makes Create fail permanently for these names.
	failInstances map[string]bool

	createdInstanceNames []string
}

func newFakeCloud() *fakeCloud {
	return &fakeCloud{
		instances:     map[string]*providers.InstanceHandle{},
		deleted:       map[string]bool{},
		failInstances: map[string]bool{},
	}
}

func (c *fakeCloud) id(prefix string) string {
	c.nextID++
	return fmt.Sprintf("%s-%04d", prefix, c.nextID)
}

func (c *fakeCloud) Networks() providers.NetworkAPI                   { return &fakeNetworks{c} }
func (c *fakeCloud) Subnets() providers.SubnetAPI                     { return &fakeSubnets{c} }
func (c *fakeCloud) Routers() providers.RouterAPI                     { return &fakeRouters{c} }
func (c *fakeCloud) SecurityGroups() providers.SecurityGroupAPI       { return &fakeSecurityGroups{c} }
func (c *fakeCloud) Keypairs() providers.KeypairAPI                   { return &fakeKeypairs{c} }
func (c *fakeCloud) Instances() providers.InstanceAPI                 { return &fakeInstances{c} }
func (c *fakeCloud) Volumes() providers.VolumeAPI                     { return &fakeVolumes{c} }
func (c *fakeCloud) FloatingIPs() providers.FloatingIPAPI             { return &fakeFloatingIPs{c} }
func (c *fakeCloud) LoadBalancers() providers.LoadBalancerAPI         { return &fakeLoadBalancers{c} }
func (c *fakeCloud) Flavors() providers.FlavorAPI                     { return &fakeFlavors{c} }
func (c *fakeCloud) Images() providers.ImageAPI                       { return &fakeImages{c} }
func (c *fakeCloud) AvailabilityZones() providers.AvailabilityZoneAPI { return &fakeZones{c} }
func (c *fakeCloud) Search() providers.SearchAPI                      { return &fakeSearch{c} }

type fakeNetworks struct{ c *fakeCloud }

func (f *fakeNetworks) Create(ctx context.Context, name string) (*providers.NetworkHandle, error) {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()

	return &providers.NetworkHandle{ID: f.c.id("net"), Name: name}, nil
}

func (f *fakeNetworks) Delete(ctx context.Context, id string) error {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()

	f.c.deleted[id] = true

	return nil
}

func (f *fakeNetworks) ExternalNetworkByName(ctx context.Context, name string) (*providers.NetworkHandle, error) {
	return &providers.NetworkHandle{ID: "ext-0001", Name: name}, nil
}

type fakeSubnets struct{ c *fakeCloud }

func (f *fakeSubnets) Create(ctx context.Context, networkID, name, cidr string, dns []string) (*providers.SubnetHandle, error) {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()

	return &providers.SubnetHandle{ID: f.c.id("subnet"), NetworkID: networkID, CIDR: cidr}, nil
}

func (f *fakeSubnets) Delete(ctx context.Context, id string) error {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()

	f.c.deleted[id] = true

	return nil
}

type fakeRouters struct{ c *fakeCloud }

func (f *fakeRouters) Create(ctx context.Context, name, externalNetworkID string) (*providers.RouterHandle, error) {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()

	return &providers.RouterHandle{ID: f.c.id("router"), Name: name, ExternalNetworkID: externalNetworkID, HasExternalGateway: true}, nil
}

func (f *fakeRouters) AddInterface(ctx context.Context, routerID, subnetID string) error {
	return nil
}

func (f *fakeRouters) RemoveInterface(ctx context.Context, routerID, subnetID string) error {
	return nil
}

func (f *fakeRouters) Delete(ctx context.Context, id string) error {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()

	f.c.deleted[id] = true

	return nil
}

type fakeSecurityGroups struct{ c *fakeCloud }

func (f *fakeSecurityGroups) Create(ctx context.Context, name string) (*providers.SecurityGroupHandle, error) {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()

	return &providers.SecurityGroupHandle{ID: f.c.id("secgroup"), Name: name}, nil
}

func (f *fakeSecurityGroups) AddRule(ctx context.Context, groupID, protocol, portRange string) error {
	return nil
}

func (f *fakeSecurityGroups) Delete(ctx context.Context, id string) error {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()

	f.c.deleted[id] = true

	return nil
}

type fakeKeypairs struct{ c *fakeCloud }

func (f *fakeKeypairs) Import(ctx context.Context, name, publicKey string) (*providers.KeypairHandle, error) {
	return &providers.KeypairHandle{Name: name}, nil
}

func (f *fakeKeypairs) Delete(ctx context.Context, name string) error {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()

	f.c.deleted[name] = true

	return nil
}

type fakeInstances struct{ c *fakeCloud }

func (f *fakeInstances) Create(ctx context.Context, opts providers.InstanceCreateOpts) (*providers.InstanceHandle, error) {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()

	if f.c.failInstances[opts.Name] {
		return nil, &providers.Error{Kind: providers.KindPermanent, Resource: "instance " + opts.Name, Err: fmt.Errorf("fault injected")}
	}

	handle := &providers.InstanceHandle{
		ID:         f.c.id("server"),
		Name:       opts.Name,
		Status:     "ACTIVE",
		InternalIP: fmt.Sprintf("10.0.0.%d", f.c.nextID%250),
	}

	f.c.instances[handle.ID] = handle
	f.c.createdInstanceNames = append(f.c.createdInstanceNames, opts.Name)

	return handle, nil
}

func (f *fakeInstances) Get(ctx context.Context, id string) (*providers.InstanceHandle, error) {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()

	handle, ok := f.c.instances[id]
	if !ok || f.c.deleted[id] {
		return nil, &providers.Error{Kind: providers.KindNotFound, Resource: "instance " + id, Err: fmt.Errorf("not found")}
	}

	return handle, nil
}

func (f *fakeInstances) Delete(ctx context.Context, id string) error {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()

	f.c.deleted[id] = true
	delete(f.c.instances, id)

	return nil
}

type fakeVolumes struct{ c *fakeCloud }

func (f *fakeVolumes) Create(ctx context.Context, name string, sizeGB int, availabilityZone, volumeType string) (*providers.VolumeHandle, error) {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()

	return &providers.VolumeHandle{ID: f.c.id("volume"), Name: name, Status: "available"}, nil
}

func (f *fakeVolumes) Attach(ctx context.Context, instanceID, volumeID string) error {
	return nil
}

func (f *fakeVolumes) Delete(ctx context.Context, id string) error {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()

	f.c.deleted[id] = true

	return nil
}

type fakeFloatingIPs struct{ c *fakeCloud }

func (f *fakeFloatingIPs) Allocate(ctx context.Context, externalNetworkID string) (*providers.FloatingIPHandle, error) {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()

	id := f.c.id("float")

	return &providers.FloatingIPHandle{ID: id, Address: fmt.Sprintf("198.51.100.%d", f.c.nextID%250)}, nil
}

func (f *fakeFloatingIPs) Associate(ctx context.Context, floatingIPID, instanceID string) error {
	return nil
}

func (f *fakeFloatingIPs) Delete(ctx context.Context, id string) error {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()

	f.c.deleted[id] = true

	return nil
}

type fakeLoadBalancers struct{ c *fakeCloud }

func (f *fakeLoadBalancers) Create(ctx context.Context, name, subnetID, protocol string, port int) (*providers.LoadBalancerHandle, error) {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()

	id := f.c.id("lb")

	return &providers.LoadBalancerHandle{ID: id, Name: name, VIPAddress: fmt.Sprintf("10.99.0.%d", f.c.nextID%250)}, nil
}

func (f *fakeLoadBalancers) AddMember(ctx context.Context, lb *providers.LoadBalancerHandle, subnetID, address string, port int) error {
	return nil
}

func (f *fakeLoadBalancers) Delete(ctx context.Context, lb *providers.LoadBalancerHandle) error {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()

	f.c.deleted[lb.ID] = true

	return nil
}

type fakeFlavors struct{ c *fakeCloud }

func (f *fakeFlavors) ByName(ctx context.Context, name string) (*providers.FlavorHandle, error) {
	return &providers.FlavorHandle{ID: "flavor-" + name, Name: name}, nil
}

type fakeImages struct{ c *fakeCloud }

func (f *fakeImages) ByName(ctx context.Context, name string) (*providers.ImageHandle, error) {
	return &providers.ImageHandle{ID: "image-0001", Name: name}, nil
}

type fakeZones struct{ c *fakeCloud }

func (f *fakeZones) List(ctx context.Context) ([]string, error) {
	return []string{"nova"}, nil
}

type fakeSearch struct{ c *fakeCloud }

func (f *fakeSearch) ByPrefix(ctx context.Context, prefix string) (*providers.Discovered, error) {
	return &providers.Discovered{}, nil
}
