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
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/cloudpunch/pkg/config"
	"github.com/target/cloudpunch/pkg/inventory"
	"github.com/target/cloudpunch/pkg/model"
	"github.com/target/cloudpunch/pkg/providers"
)

// fakeAdapter is a delete-only Resource Adapter double: deletions are
// recorded, and IDs present in fail return that error kind instead.
type fakeAdapter struct {
	mu      sync.Mutex
	deleted map[string]bool
	fail    map[string]providers.Kind

	// attempts counts delete calls per ID, for retry assertions.
	attempts map[string]int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{deleted: map[string]bool{}, fail: map[string]providers.Kind{}, attempts: map[string]int{}}
}

func (a *fakeAdapter) delete(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.attempts[id]++

	if kind, ok := a.fail[id]; ok {
		return &providers.Error{Kind: kind, Resource: id, Err: fmt.Errorf("fault injected")}
	}

	a.deleted[id] = true

	return nil
}

// The Engine only exercises deletion paths, so the per-kind fakes below
// stub creation and the unused lookup APIs are left nil.
func (a *fakeAdapter) Networks() providers.NetworkAPI                   { return &fakeNetworks{a} }
func (a *fakeAdapter) Subnets() providers.SubnetAPI                     { return &fakeSubnets{a} }
func (a *fakeAdapter) Routers() providers.RouterAPI                     { return &fakeRouters{a} }
func (a *fakeAdapter) SecurityGroups() providers.SecurityGroupAPI       { return &fakeSecurityGroups{a} }
func (a *fakeAdapter) Keypairs() providers.KeypairAPI                   { return &fakeKeypairs{a} }
func (a *fakeAdapter) Instances() providers.InstanceAPI                 { return &fakeInstances{a} }
func (a *fakeAdapter) Volumes() providers.VolumeAPI                     { return &fakeVolumes{a} }
func (a *fakeAdapter) FloatingIPs() providers.FloatingIPAPI             { return &fakeFloatingIPs{a} }
func (a *fakeAdapter) LoadBalancers() providers.LoadBalancerAPI         { return &fakeLoadBalancers{a} }
func (a *fakeAdapter) Flavors() providers.FlavorAPI                     { return nil }
func (a *fakeAdapter) Images() providers.ImageAPI                       { return nil }
func (a *fakeAdapter) AvailabilityZones() providers.AvailabilityZoneAPI { return nil }
func (a *fakeAdapter) Search() providers.SearchAPI                      { return nil }

type fakeNetworks struct{ a *fakeAdapter }

func (f *fakeNetworks) Create(ctx context.Context, name string) (*providers.NetworkHandle, error) {
	return nil, nil
}

func (f *fakeNetworks) ExternalNetworkByName(ctx context.Context, name string) (*providers.NetworkHandle, error) {
	return nil, nil
}

func (f *fakeNetworks) Delete(ctx context.Context, id string) error { return f.a.delete(id) }

type fakeSubnets struct{ a *fakeAdapter }

func (f *fakeSubnets) Create(ctx context.Context, networkID, name, cidr string, dns []string) (*providers.SubnetHandle, error) {
	return nil, nil
}

func (f *fakeSubnets) Delete(ctx context.Context, id string) error { return f.a.delete(id) }

type fakeRouters struct{ a *fakeAdapter }

func (f *fakeRouters) Create(ctx context.Context, name, externalNetworkID string) (*providers.RouterHandle, error) {
	return nil, nil
}

func (f *fakeRouters) AddInterface(ctx context.Context, routerID, subnetID string) error {
	return nil
}

func (f *fakeRouters) RemoveInterface(ctx context.Context, routerID, subnetID string) error {
	return nil
}

func (f *fakeRouters) Delete(ctx context.Context, id string) error { return f.a.delete(id) }

type fakeSecurityGroups struct{ a *fakeAdapter }

func (f *fakeSecurityGroups) Create(ctx context.Context, name string) (*providers.SecurityGroupHandle, error) {
	return nil, nil
}

func (f *fakeSecurityGroups) AddRule(ctx context.Context, groupID, protocol, portRange string) error {
	return nil
}

func (f *fakeSecurityGroups) Delete(ctx context.Context, id string) error { return f.a.delete(id) }

type fakeKeypairs struct{ a *fakeAdapter }

func (f *fakeKeypairs) Import(ctx context.Context, name, publicKey string) (*providers.KeypairHandle, error) {
	return nil, nil
}

func (f *fakeKeypairs) Delete(ctx context.Context, name string) error { return f.a.delete(name) }

type fakeInstances struct{ a *fakeAdapter }

func (f *fakeInstances) Create(ctx context.Context, opts providers.InstanceCreateOpts) (*providers.InstanceHandle, error) {
	return nil, nil
}

func (f *fakeInstances) Get(ctx context.Context, id string) (*providers.InstanceHandle, error) {
	if f.a.deleted[id] {
		return nil, &providers.Error{Kind: providers.KindNotFound, Resource: id, Err: fmt.Errorf("not found")}
	}

	return &providers.InstanceHandle{ID: id}, nil
}

func (f *fakeInstances) Delete(ctx context.Context, id string) error { return f.a.delete(id) }

type fakeVolumes struct{ a *fakeAdapter }

func (f *fakeVolumes) Create(ctx context.Context, name string, sizeGB int, availabilityZone, volumeType string) (*providers.VolumeHandle, error) {
	return nil, nil
}

func (f *fakeVolumes) Attach(ctx context.Context, instanceID, volumeID string) error {
	return nil
}

func (f *fakeVolumes) Delete(ctx context.Context, id string) error { return f.a.delete(id) }

type fakeFloatingIPs struct{ a *fakeAdapter }

func (f *fakeFloatingIPs) Allocate(ctx context.Context, externalNetworkID string) (*providers.FloatingIPHandle, error) {
	return nil, nil
}

func (f *fakeFloatingIPs) Associate(ctx context.Context, floatingIPID, instanceID string) error {
	return nil
}

func (f *fakeFloatingIPs) Delete(ctx context.Context, id string) error { return f.a.delete(id) }

type fakeLoadBalancers struct{ a *fakeAdapter }

func (f *fakeLoadBalancers) Create(ctx context.Context, name, subnetID, protocol string, port int) (*providers.LoadBalancerHandle, error) {
	return nil, nil
}

func (f *fakeLoadBalancers) AddMember(ctx context.Context, lb *providers.LoadBalancerHandle, subnetID, address string, port int) error {
	return nil
}

func (f *fakeLoadBalancers) Delete(ctx context.Context, lb *providers.LoadBalancerHandle) error {
	return f.a.delete(lb.ID)
}

func populatedInventory() *inventory.Inventory {
	inv := inventory.New()

	inv.Append(inventory.KindSecurityGroup, model.Env1, "", &providers.SecurityGroupHandle{ID: "secgroup-1"})
	inv.Append(inventory.KindKeypair, model.Env1, "", &providers.KeypairHandle{Name: "cloudpunch-1234567"})
	inv.Append(inventory.KindRouter, model.Env1, model.RoleServer, &providers.RouterHandle{ID: "router-1", AttachedSubnetIDs: []string{"subnet-1"}})
	inv.Append(inventory.KindNetwork, model.Env1, model.RoleServer, &providers.NetworkHandle{ID: "net-1"})
	inv.Append(inventory.KindSubnet, model.Env1, model.RoleServer, &providers.SubnetHandle{ID: "subnet-1"})
	inv.Append(inventory.KindInstance, model.Env1, model.RoleServer, &providers.InstanceHandle{ID: "server-1", Name: "cloudpunch-1234567-s1"})
	inv.Append(inventory.KindFloatingIP, model.Env1, model.RoleMaster, &providers.FloatingIPHandle{ID: "float-1"})

	return inv
}

// TestCleanupCompleteness checks that after a sweep with no
// failures every tracked handle is gone provider-side and the inventory
// is empty.
func TestCleanupCompleteness(t *testing.T) {
	t.Parallel()

	adapter := newFakeAdapter()
	inv := populatedInventory()

	leftovers := New(adapter, inv).Run(context.Background(), model.Env1, 3)
	assert.Empty(t, leftovers)

	for _, id := range []string{"secgroup-1", "cloudpunch-1234567", "router-1", "net-1", "subnet-1", "server-1", "float-1"} {
		assert.True(t, adapter.deleted[id], id)
	}

	for _, kind := range inventory.DeletionOrder() {
		assert.Empty(t, inv.List(kind, model.Env1), kind)
	}
}

// TestCleanupNotFoundIsSuccess checks an already-gone resource doesn't
// count as a leftover.
func TestCleanupNotFoundIsSuccess(t *testing.T) {
	t.Parallel()

	adapter := newFakeAdapter()
	adapter.fail["net-1"] = providers.KindNotFound

	inv := inventory.New()
	inv.Append(inventory.KindNetwork, model.Env1, model.RoleServer, &providers.NetworkHandle{ID: "net-1"})

	leftovers := New(adapter, inv).Run(context.Background(), model.Env1, 3)
	assert.Empty(t, leftovers)
	assert.Empty(t, inv.List(inventory.KindNetwork, model.Env1))

	// Not-found short-circuits, no retries burned.
	assert.Equal(t, 1, adapter.attempts["net-1"])
}

// TestCleanupDemotesFailures checks a permanently failing resource is
// demoted to a leftover without aborting the rest of the sweep, and a
// permanent error doesn't burn the retry budget.
func TestCleanupDemotesFailures(t *testing.T) {
	t.Parallel()

	adapter := newFakeAdapter()
	adapter.fail["float-1"] = providers.KindPermanent

	inv := populatedInventory()

	leftovers := New(adapter, inv).Run(context.Background(), model.Env1, 5)

	require.Len(t, leftovers, 1)
	assert.Equal(t, inventory.KindFloatingIP, leftovers[0].Kind)
	assert.Equal(t, "float-1", leftovers[0].ID)
	assert.Equal(t, 1, adapter.attempts["float-1"])

	// Everything else was still swept.
	assert.True(t, adapter.deleted["server-1"])
	assert.True(t, adapter.deleted["router-1"])

	// The failed handle stays tracked; the rest were removed.
	assert.Len(t, inv.List(inventory.KindFloatingIP, model.Env1), 1)
	assert.Empty(t, inv.List(inventory.KindInstance, model.Env1))
}

// TestCleanupRetriesTransient checks transient errors burn the attempt
// budget before demotion.
func TestCleanupRetriesTransient(t *testing.T) {
	t.Parallel()

	adapter := newFakeAdapter()
	adapter.fail["net-1"] = providers.KindTransient

	inv := inventory.New()
	inv.Append(inventory.KindNetwork, model.Env1, model.RoleServer, &providers.NetworkHandle{ID: "net-1"})

	leftovers := New(adapter, inv).Run(context.Background(), model.Env1, 3)

	require.Len(t, leftovers, 1)
	assert.Equal(t, 3, adapter.attempts["net-1"])
}

// TestCleanupFileRoundTrip checks three floating IP
// residuals are persisted, a later sweep consumes the file, deletes
// them, and removes the file.
func TestCleanupFileRoundTrip(t *testing.T) {
	t.Parallel()

	adapter := newFakeAdapter()

	inv := inventory.New()

	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("float-%d", i)
		adapter.fail[id] = providers.KindPermanent

		inv.Append(inventory.KindFloatingIP, model.Env1, "", &providers.FloatingIPHandle{ID: id})
	}

	leftovers := New(adapter, inv).Run(context.Background(), model.Env1, 2)
	require.Len(t, leftovers, 3)

	path := filepath.Join(t.TempDir(), FilePath("cloudpunch-1234567", model.Env1))
	apiVersions := config.APIVersions{Neutron: "2"}

	require.NoError(t, WriteFile(path, apiVersions, leftovers))

	// Round trip.
	file, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2", file.APIVersions.Neutron)
	assert.ElementsMatch(t, []string{"float-1", "float-2", "float-3"}, file.Resources[inventory.KindFloatingIP])

	// A later sweep against a healthy cloud clears everything.
	sweeper := newFakeAdapter()

	leftovers = New(sweeper, file.Inventory(model.Env1)).Run(context.Background(), model.Env1, 2)
	assert.Empty(t, leftovers)

	for i := 1; i <= 3; i++ {
		assert.True(t, sweeper.deleted[fmt.Sprintf("float-%d", i)])
	}

	// Nothing remains: the file is removed.
	require.NoError(t, WriteFile(path, apiVersions, leftovers))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
