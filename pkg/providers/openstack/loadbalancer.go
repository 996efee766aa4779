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
	"fmt"
	"time"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/lbaas_v2/listeners"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/lbaas_v2/loadbalancers"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/lbaas_v2/monitors"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/lbaas_v2/pools"

	"github.com/target/cloudpunch/pkg/providers"
	"github.com/target/cloudpunch/pkg/retry"
)

// loadBalancerAPI implements providers.LoadBalancerAPI against Neutron's
// lbaas_v2 extension. The classic v1 pool/vip/member/monitor API is
// dropped in favour of the extension every OpenStack cloud built after
// ~2018 actually runs.
type loadBalancerAPI struct{ a *Adapter }

const (
	lbPollInterval = 2 * time.Second
	lbPollAttempts = 60
)

// waitForLoadBalancer polls until the load balancer's provisioning
// status leaves PENDING_*, since every lbaas_v2 mutation (listener,
// pool, member, monitor) is rejected while one is outstanding.
func waitForLoadBalancer(client *gophercloud.ServiceClient, id string) error {
	return retry.WithAttempts(lbPollAttempts).WithPeriod(lbPollInterval).Do(func() error {
		lb, err := loadbalancers.Get(client, id).Extract()
		if err != nil {
			return classify("loadbalancer:"+id, err)
		}

		switch lb.ProvisioningStatus {
		case "ACTIVE":
			return nil
		case "ERROR":
			return retry.Permanent(&providers.Error{
				Kind:     providers.KindPermanent,
				Resource: "loadbalancer:" + id,
				Err:      fmt.Errorf("load balancer %s entered ERROR state", id),
			})
		default:
			return &providers.Error{
				Kind:     providers.KindTransient,
				Resource: "loadbalancer:" + id,
				Err:      fmt.Errorf("load balancer %s is %s", id, lb.ProvisioningStatus),
			}
		}
	})
}

func (l *loadBalancerAPI) Create(ctx context.Context, name, subnetID, protocol string, port int) (*providers.LoadBalancerHandle, error) {
	client, err := l.a.networkClient()
	if err != nil {
		return nil, err
	}

	lb, err := loadbalancers.Create(client, loadbalancers.CreateOpts{
		Name:         name,
		VipSubnetID:  subnetID,
	}).Extract()
	if err != nil {
		return nil, classify("loadbalancer:"+name, err)
	}

	if err := waitForLoadBalancer(client, lb.ID); err != nil {
		return nil, err
	}

	listener, err := listeners.Create(client, listeners.CreateOpts{
		Name:           name + "-listener",
		Protocol:       listeners.Protocol(protocol),
		ProtocolPort:   port,
		LoadbalancerID: lb.ID,
	}).Extract()
	if err != nil {
		return nil, classify("listener:"+name, err)
	}

	if err := waitForLoadBalancer(client, lb.ID); err != nil {
		return nil, err
	}

	pool, err := pools.Create(client, pools.CreateOpts{
		Name:       name + "-pool",
		Protocol:   pools.Protocol(protocol),
		LBMethod:   pools.LBMethodRoundRobin,
		ListenerID: listener.ID,
	}).Extract()
	if err != nil {
		return nil, classify("pool:"+name, err)
	}

	if err := waitForLoadBalancer(client, lb.ID); err != nil {
		return nil, err
	}

	monitor, err := monitors.Create(client, monitors.CreateOpts{
		Name:       name + "-monitor",
		PoolID:     pool.ID,
		Type:       monitors.TypeTCP,
		Delay:      10,
		Timeout:    5,
		MaxRetries: 3,
	}).Extract()
	if err != nil {
		return nil, classify("monitor:"+name, err)
	}

	if err := waitForLoadBalancer(client, lb.ID); err != nil {
		return nil, err
	}

	return &providers.LoadBalancerHandle{
		ID:         lb.ID,
		Name:       lb.Name,
		VIPAddress: lb.VipAddress,
		ListenerID: listener.ID,
		PoolID:     pool.ID,
		MonitorID:  monitor.ID,
	}, nil
}

func (l *loadBalancerAPI) AddMember(ctx context.Context, lb *providers.LoadBalancerHandle, subnetID, address string, port int) error {
	client, err := l.a.networkClient()
	if err != nil {
		return err
	}

	if err := waitForLoadBalancer(client, lb.ID); err != nil {
		return err
	}

	if _, err := pools.CreateMember(client, lb.PoolID, pools.CreateMemberOpts{
		SubnetID:     subnetID,
		Address:      address,
		ProtocolPort: port,
	}).Extract(); err != nil {
		return classify("pool-member:"+lb.PoolID, err)
	}

	return waitForLoadBalancer(client, lb.ID)
}

// Delete tears down the listener/pool/monitor the load balancer owns,
// then the load balancer itself, tolerating not-found at every step so
// a partially-created LB (e.g. the monitor step failed) still cleans up.
func (l *loadBalancerAPI) Delete(ctx context.Context, lb *providers.LoadBalancerHandle) error {
	client, err := l.a.networkClient()
	if err != nil {
		return err
	}

	if lb.MonitorID != "" {
		if err := monitors.Delete(client, lb.MonitorID).ExtractErr(); err != nil && !providers.IsNotFound(classify("monitor:"+lb.MonitorID, err)) {
			return classify("monitor:"+lb.MonitorID, err)
		}

		_ = waitForLoadBalancer(client, lb.ID)
	}

	if lb.PoolID != "" {
		if err := pools.Delete(client, lb.PoolID).ExtractErr(); err != nil && !providers.IsNotFound(classify("pool:"+lb.PoolID, err)) {
			return classify("pool:"+lb.PoolID, err)
		}

		_ = waitForLoadBalancer(client, lb.ID)
	}

	if lb.ListenerID != "" {
		if err := listeners.Delete(client, lb.ListenerID).ExtractErr(); err != nil && !providers.IsNotFound(classify("listener:"+lb.ListenerID, err)) {
			return classify("listener:"+lb.ListenerID, err)
		}

		_ = waitForLoadBalancer(client, lb.ID)
	}

	if err := loadbalancers.Delete(client, lb.ID).ExtractErr(); err != nil {
		if providers.IsNotFound(classify("loadbalancer:"+lb.ID, err)) {
			return nil
		}

		return classify("loadbalancer:"+lb.ID, err)
	}

	return nil
}
