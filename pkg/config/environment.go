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

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// APIVersions pins the OpenStack service microversions/API versions
// CloudPunch expects.
type APIVersions struct {
	Cinder  string `yaml:"cinder,omitempty"`
	Glance  string `yaml:"glance,omitempty"`
	Neutron string `yaml:"neutron,omitempty"`
	Nova    string `yaml:"nova,omitempty"`
	LBaaS   string `yaml:"lbaas,omitempty"`
}

// Volume configures a Cinder volume attached to an instance post-boot.
type Volume struct {
	Enable           bool   `yaml:"enable"`
	Size             int    `yaml:"size"`
	Type             string `yaml:"type,omitempty"`
	AvailabilityZone string `yaml:"az,omitempty"`
}

// BootFromVolume configures boot-from-volume instead of an ephemeral
// image-backed root disk.
type BootFromVolume struct {
	Enable bool `yaml:"enable"`
	Size   int  `yaml:"size"`
}

// RoleLoadBalancer configures the per-role load balancers the Staging
// Executor creates, one per network of that role, in any network mode.
type RoleLoadBalancer struct {
	Enable   bool   `yaml:"enable"`
	Protocol string `yaml:"protocol,omitempty"`
	Port     int    `yaml:"port,omitempty"`
}

// RoleSpec is the per-role (master/server/client) provisioning
// configuration within an Environment.
type RoleSpec struct {
	Flavor           string            `yaml:"flavor"`
	AvailabilityZone string            `yaml:"availability_zone,omitempty"`
	Userdata         []string          `yaml:"userdata,omitempty"`
	Volume           *Volume           `yaml:"volume,omitempty"`
	BootFromVol      *BootFromVolume   `yaml:"boot_from_vol,omitempty"`
	LoadBalancer     *RoleLoadBalancer `yaml:"loadbalancer,omitempty"`
}

// SecurityGroupRule is a single [protocol, from, to] ingress rule, as
// the environment file's secgroup_rules entries arrive.
type SecurityGroupRule struct {
	Protocol string
	From     string
	To       string
}

// UnmarshalYAML decodes a 3-element sequence into a SecurityGroupRule.
func (r *SecurityGroupRule) UnmarshalYAML(value *yaml.Node) error {
	var triple [3]string

	if err := value.Decode(&triple); err != nil {
		return fmt.Errorf("secgroup_rules entry must be [protocol, from, to]: %w", err)
	}

	r.Protocol, r.From, r.To = triple[0], triple[1], triple[2]

	return nil
}

// Environment is the per-cloud configuration: image selection, flavors,
// and network policy for the master/server/client roles.
type Environment struct {
	ImageName       string              `yaml:"image_name"`
	PublicKeyFile   string              `yaml:"public_key_file"`
	APIVersions     APIVersions         `yaml:"api_versions,omitempty"`
	Master          RoleSpec            `yaml:"master"`
	Server          RoleSpec            `yaml:"server"`
	Client          RoleSpec            `yaml:"client"`
	SecgroupRules   []SecurityGroupRule `yaml:"secgroup_rules,omitempty"`
	DNSNameservers  []string            `yaml:"dns_nameservers,omitempty"`
	SharedUserdata  []string            `yaml:"shared_userdata,omitempty"`
	ExternalNetwork string              `yaml:"external_network"`
}

// LoadEnvironment parses and validates a per-environment file.
func LoadEnvironment(path string) (*Environment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	env := &Environment{}

	if err := yaml.Unmarshal(data, env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if err := env.Validate(); err != nil {
		return nil, err
	}

	return env, nil
}

// Validate checks the fields every stage of planning depends on are present.
func (e *Environment) Validate() error {
	if e.ImageName == "" {
		return fmt.Errorf("%w: image_name is required", ErrInvalid)
	}

	if e.ExternalNetwork == "" {
		return fmt.Errorf("%w: external_network is required", ErrInvalid)
	}

	if e.Master.Flavor == "" {
		return fmt.Errorf("%w: master.flavor is required", ErrInvalid)
	}

	return nil
}
