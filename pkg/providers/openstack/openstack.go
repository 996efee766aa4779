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

// Package openstack implements providers.Adapter against a real
// OpenStack cloud via gophercloud, one file per resource kind mirroring
// the service catalog (compute, network, block storage, image).
package openstack

import (
	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"
	"github.com/gophercloud/utils/openstack/clientconfig"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/target/cloudpunch/pkg/model"
	"github.com/target/cloudpunch/pkg/providers"
)

// Provider abstracts how a gophercloud.ProviderClient is obtained, so
// Adapter construction doesn't care whether auth came from clouds.yaml
// or an OpenRC-derived model.Credentials.
type Provider interface {
	Client() (*gophercloud.ProviderClient, error)
}

// authenticatedClient performs the Keystone handshake once and hands
// back a client every service client is built from.
func authenticatedClient(options gophercloud.AuthOptions, insecure bool) (*gophercloud.ProviderClient, error) {
	client, err := openstack.NewClient(options.IdentityEndpoint)
	if err != nil {
		return nil, err
	}

	if insecure {
		client.HTTPClient.Transport = insecureTransport()
	}

	if err := openstack.Authenticate(client, options); err != nil {
		return nil, err
	}

	return client, nil
}

// CredentialsProvider builds a client from a resolved model.Credentials,
// the OpenRC/environment path. It supports both Keystone v2 tenant
// scoping and v3 project/domain scoping, picked by which fields are set.
type CredentialsProvider struct {
	creds *model.Credentials
}

var _ Provider = &CredentialsProvider{}

// NewCredentialsProvider wraps resolved credentials for client construction.
func NewCredentialsProvider(creds *model.Credentials) *CredentialsProvider {
	return &CredentialsProvider{creds: creds}
}

func (p *CredentialsProvider) Client() (*gophercloud.ProviderClient, error) {
	options := gophercloud.AuthOptions{
		IdentityEndpoint: p.creds.AuthURL,
		Username:         p.creds.Username,
		Password:         p.creds.Password,
		DomainName:       p.creds.Domain,
		AllowReauth:      true,
	}

	switch {
	case p.creds.ProjectID != "":
		options.TenantID = p.creds.ProjectID
	case p.creds.ProjectName != "":
		options.TenantName = p.creds.ProjectName
		options.Scope = &gophercloud.AuthScope{
			ProjectName: p.creds.ProjectName,
			DomainName:  firstNonEmpty(p.creds.ProjectDomain, p.creds.Domain),
		}
	}

	return authenticatedClient(options, p.creds.Insecure)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}

// CloudsProvider builds a client from a clouds.yaml entry.
type CloudsProvider struct {
	cloud string
}

var _ Provider = &CloudsProvider{}

// NewCloudsProvider wraps a clouds.yaml cloud name for client construction.
func NewCloudsProvider(cloud string) *CloudsProvider {
	return &CloudsProvider{cloud: cloud}
}

func (p *CloudsProvider) Client() (*gophercloud.ProviderClient, error) {
	clientOpts := &clientconfig.ClientOpts{Cloud: p.cloud}

	options, err := clientconfig.AuthOptions(clientOpts)
	if err != nil {
		return nil, err
	}

	return authenticatedClient(*options, false)
}

// ProviderForCredentials picks clouds.yaml or OpenRC-style resolution
// based on which field of the model.Credentials was populated.
func ProviderForCredentials(creds *model.Credentials) Provider {
	if creds.Cloud != "" {
		return NewCloudsProvider(creds.Cloud)
	}

	return NewCredentialsProvider(creds)
}

// Adapter implements providers.Adapter against a live OpenStack cloud,
// lazily building the per-service clients it needs from one
// authenticated provider client.
type Adapter struct {
	provider Provider
	region   string

	compute *gophercloud.ServiceClient
	network *gophercloud.ServiceClient
	volume  *gophercloud.ServiceClient
	image   *gophercloud.ServiceClient

	// Cache name lookups, they're paginated list calls and the flavor
	// file resolves the same handful of names once per instance.
	flavorCache *lru.Cache[string, *providers.FlavorHandle]
	imageCache  *lru.Cache[string, *providers.ImageHandle]
}

var _ providers.Adapter = &Adapter{}

// cacheSize bounds the name-lookup caches; a run touches a few flavors
// and one image, so this is generous.
const cacheSize = 128

// New builds an Adapter. Service clients are created on first use so a
// run that never touches, say, block storage never needs Cinder to be
// in the catalog.
func New(provider Provider, region string) *Adapter {
	// lru.New only fails on a non-positive size.
	flavorCache, _ := lru.New[string, *providers.FlavorHandle](cacheSize) //nolint:errcheck
	imageCache, _ := lru.New[string, *providers.ImageHandle](cacheSize)   //nolint:errcheck

	return &Adapter{provider: provider, region: region, flavorCache: flavorCache, imageCache: imageCache}
}

func (a *Adapter) endpointOpts() gophercloud.EndpointOpts {
	return gophercloud.EndpointOpts{Region: a.region}
}

func (a *Adapter) computeClient() (*gophercloud.ServiceClient, error) {
	if a.compute != nil {
		return a.compute, nil
	}

	pc, err := a.provider.Client()
	if err != nil {
		return nil, err
	}

	client, err := openstack.NewComputeV2(pc, a.endpointOpts())
	if err != nil {
		return nil, err
	}

	a.compute = client

	return client, nil
}

func (a *Adapter) networkClient() (*gophercloud.ServiceClient, error) {
	if a.network != nil {
		return a.network, nil
	}

	pc, err := a.provider.Client()
	if err != nil {
		return nil, err
	}

	client, err := openstack.NewNetworkV2(pc, a.endpointOpts())
	if err != nil {
		return nil, err
	}

	a.network = client

	return client, nil
}

func (a *Adapter) volumeClient() (*gophercloud.ServiceClient, error) {
	if a.volume != nil {
		return a.volume, nil
	}

	pc, err := a.provider.Client()
	if err != nil {
		return nil, err
	}

	client, err := openstack.NewBlockStorageV3(pc, a.endpointOpts())
	if err != nil {
		return nil, err
	}

	a.volume = client

	return client, nil
}

func (a *Adapter) imageClient() (*gophercloud.ServiceClient, error) {
	if a.image != nil {
		return a.image, nil
	}

	pc, err := a.provider.Client()
	if err != nil {
		return nil, err
	}

	client, err := openstack.NewImageServiceV2(pc, a.endpointOpts())
	if err != nil {
		return nil, err
	}

	a.image = client

	return client, nil
}

func (a *Adapter) Networks() providers.NetworkAPI             { return &networkAPI{a} }
func (a *Adapter) Subnets() providers.SubnetAPI                { return &subnetAPI{a} }
func (a *Adapter) Routers() providers.RouterAPI                { return &routerAPI{a} }
func (a *Adapter) SecurityGroups() providers.SecurityGroupAPI  { return &securityGroupAPI{a} }
func (a *Adapter) Keypairs() providers.KeypairAPI              { return &keypairAPI{a} }
func (a *Adapter) Instances() providers.InstanceAPI            { return &instanceAPI{a} }
func (a *Adapter) Volumes() providers.VolumeAPI                { return &volumeAPI{a} }
func (a *Adapter) FloatingIPs() providers.FloatingIPAPI        { return &floatingIPAPI{a} }
func (a *Adapter) LoadBalancers() providers.LoadBalancerAPI    { return &loadBalancerAPI{a} }
func (a *Adapter) Flavors() providers.FlavorAPI                { return &flavorAPI{a} }
func (a *Adapter) Images() providers.ImageAPI                  { return &imageAPI{a} }
func (a *Adapter) AvailabilityZones() providers.AvailabilityZoneAPI { return &azAPI{a} }
func (a *Adapter) Search() providers.SearchAPI                      { return &searchAPI{a} }
