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

// Package config loads and validates the two YAML files CloudPunch
// operates from: the run configuration (topology, test mix, recovery
// policy) and the per-environment file (images, flavors, security
// groups). Thin wrappers only — the heavy lifting is in pkg/topology
// and pkg/stage, which consume these structs.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/target/cloudpunch/pkg/model"
)

var (
	// ErrInvalid is wrapped by every validation failure so callers can
	// distinguish a bad config from an I/O or parse error.
	ErrInvalid = errors.New("invalid configuration")
)

// RecoveryType selects what the Driver does when the registration
// barrier doesn't close in time.
type RecoveryType string

const (
	RecoveryAsk     RecoveryType = "ask"
	RecoveryRebuild RecoveryType = "rebuild"
	RecoveryAbort   RecoveryType = "abort"
	RecoveryIgnore  RecoveryType = "ignore"
)

// TestMode selects whether a worker runs its configured tests one after
// another or all at once.
type TestMode string

const (
	TestModeList       TestMode = "list"
	TestModeConcurrent TestMode = "concurrent"
)

// Recovery is the operator's policy for a stalled registration barrier.
type Recovery struct {
	Enable    bool         `yaml:"enable" json:"enable"`
	Type      RecoveryType `yaml:"type" json:"type"`
	Threshold int          `yaml:"threshold" json:"threshold"`
	Retries   int          `yaml:"retries" json:"retries"`
}

// HostMap pairs availability-zone tags by index, resolved through Tags
// to the provider's actual zone names.
type HostMap struct {
	// Map holds "server_tag,client_tag" rows, one per host.
	Map []string `yaml:"map" json:"map"`

	// Tags resolves a tag name to the provider's real availability zone.
	Tags map[string]string `yaml:"tags" json:"tags"`
}

// FlavorWeight is one flavor_file entry: a flavor name and its
// percentage weight (the entries' weights sum to 99-100).
type FlavorWeight struct {
	Name   string
	Weight float64
}

// FlavorWeights preserves declaration order, which the cumulative-walk
// assignment in pkg/topology depends on: yaml.v3 decoding straight into
// a map would lose it, so this type decodes the mapping node's keys in
// the order they appear in the file instead.
type FlavorWeights []FlavorWeight

// UnmarshalYAML decodes a flavor_file mapping node while preserving key
// declaration order.
func (w *FlavorWeights) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("flavor_file must be a mapping")
	}

	out := make(FlavorWeights, 0, len(value.Content)/2)

	for i := 0; i+1 < len(value.Content); i += 2 {
		var weight float64

		if err := value.Content[i+1].Decode(&weight); err != nil {
			return fmt.Errorf("flavor_file entry %q: %w", value.Content[i].Value, err)
		}

		out = append(out, FlavorWeight{Name: value.Content[i].Value, Weight: weight})
	}

	*w = out

	return nil
}

// MarshalJSON renders flavor_file as an object in declaration order, so
// a config published to the control plane survives a round trip.
func (w FlavorWeights) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, entry := range w {
		if i > 0 {
			buf.WriteByte(',')
		}

		key, err := json.Marshal(entry.Name)
		if err != nil {
			return nil, err
		}

		buf.Write(key)
		buf.WriteByte(':')
		fmt.Fprintf(&buf, "%g", entry.Weight)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// UnmarshalJSON walks the object token stream directly, for the same
// reason UnmarshalYAML does: decoding through a map would lose key
// declaration order.
func (w *FlavorWeights) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}

	if tok != json.Delim('{') {
		return fmt.Errorf("flavor_file must be an object")
	}

	var out FlavorWeights

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}

		var weight float64

		if err := dec.Decode(&weight); err != nil {
			return fmt.Errorf("flavor_file entry %v: %w", keyTok, err)
		}

		out = append(out, FlavorWeight{Name: keyTok.(string), Weight: weight})
	}

	*w = out

	return nil
}

// LoadBalancers holds the load balancer addresses created at stage time,
// keyed by role. Populated by the Staging Executor, not the operator,
// though nothing stops a config file from pre-seeding it for a reuse run.
type LoadBalancers struct {
	Server []string `yaml:"server,omitempty" json:"server,omitempty"`
	Client []string `yaml:"client,omitempty" json:"client,omitempty"`
}

// Config is the run configuration: topology shape, test mix, and the
// operational knobs.
type Config struct {
	NetworkMode         model.NetworkMode `yaml:"network_mode" json:"network_mode"`
	NumberRouters       int               `yaml:"number_routers" json:"number_routers"`
	NetworksPerRouter   int               `yaml:"networks_per_router" json:"networks_per_router"`
	InstancesPerNetwork int               `yaml:"instances_per_network" json:"instances_per_network"`
	ServerClientMode    bool              `yaml:"server_client_mode" json:"server_client_mode"`
	ServersGiveResults  bool              `yaml:"servers_give_results" json:"servers_give_results"`
	OvertimeResults     bool              `yaml:"overtime_results" json:"overtime_results"`
	InstanceThreads     int               `yaml:"instance_threads" json:"instance_threads"`
	RetryCount          int               `yaml:"retry_count" json:"retry_count"`

	Test           []string `yaml:"test" json:"test"`
	TestMode       TestMode `yaml:"test_mode" json:"test_mode"`
	TestStartDelay int      `yaml:"test_start_delay" json:"test_start_delay"`

	// TestFiles ships ad-hoc workload plugin source, keyed by filename,
	// that the worker writes to disk before executing it.
	TestFiles map[string]string `yaml:"test_files,omitempty" json:"test_files,omitempty"`

	Recovery Recovery `yaml:"recovery" json:"recovery"`

	// FlavorFile maps flavor name to a percentage weight, in declaration
	// order; a nil/empty value means every instance uses the
	// environment's default flavor.
	FlavorFile FlavorWeights `yaml:"flavor_file,omitempty" json:"flavor_file,omitempty"`

	HostMap *HostMap `yaml:"hostmap,omitempty" json:"hostmap,omitempty"`

	// Per-workload option dictionaries, opaque to everything except the
	// pkg/workload implementation that consumes them.
	Fio    map[string]interface{} `yaml:"fio,omitempty" json:"fio,omitempty"`
	Iperf  map[string]interface{} `yaml:"iperf,omitempty" json:"iperf,omitempty"`
	Stress map[string]interface{} `yaml:"stress,omitempty" json:"stress,omitempty"`
	Ping   map[string]interface{} `yaml:"ping,omitempty" json:"ping,omitempty"`
	Jmeter map[string]interface{} `yaml:"jmeter,omitempty" json:"jmeter,omitempty"`

	LoadBalancers *LoadBalancers `yaml:"loadbalancers,omitempty" json:"loadbalancers,omitempty"`
}

// Load parses and validates a run configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		NetworkMode:         model.ModeFull,
		NumberRouters:       1,
		NetworksPerRouter:   1,
		InstancesPerNetwork: 1,
		InstanceThreads:     4,
		RetryCount:          50,
		TestMode:            TestModeList,
	}
}

// Validate checks the structural invariants that must hold before
// any resource is created. Topology-shape caps that depend on the
// combination of mode/pairing live in pkg/topology instead, since they
// need the environment too.
func (c *Config) Validate() error {
	switch c.NetworkMode {
	case model.ModeFull, model.ModeSingleRouter, model.ModeSingleNetwork:
	default:
		return fmt.Errorf("%w: unknown network_mode %q", ErrInvalid, c.NetworkMode)
	}

	if c.NumberRouters < 1 || c.NetworksPerRouter < 1 || c.InstancesPerNetwork < 1 {
		return fmt.Errorf("%w: router/network/instance counts must be >= 1", ErrInvalid)
	}

	if c.InstanceThreads < 1 {
		return fmt.Errorf("%w: instance_threads must be >= 1", ErrInvalid)
	}

	if c.RetryCount < 1 {
		return fmt.Errorf("%w: retry_count must be >= 1", ErrInvalid)
	}

	switch c.TestMode {
	case TestModeList, TestModeConcurrent:
	default:
		return fmt.Errorf("%w: unknown test_mode %q", ErrInvalid, c.TestMode)
	}

	if c.TestStartDelay < 0 {
		return fmt.Errorf("%w: test_start_delay must be >= 0", ErrInvalid)
	}

	if c.Recovery.Enable {
		switch c.Recovery.Type {
		case RecoveryAsk, RecoveryRebuild, RecoveryAbort, RecoveryIgnore:
		default:
			return fmt.Errorf("%w: unknown recovery.type %q", ErrInvalid, c.Recovery.Type)
		}

		if c.Recovery.Threshold < 0 || c.Recovery.Threshold > 100 {
			return fmt.Errorf("%w: recovery.threshold must be 0-100", ErrInvalid)
		}

		if c.Recovery.Retries < 1 {
			return fmt.Errorf("%w: recovery.retries must be >= 1", ErrInvalid)
		}
	}

	if len(c.FlavorFile) > 0 {
		if err := validateFlavorWeights(c.FlavorFile); err != nil {
			return err
		}
	}

	return nil
}

// validateFlavorWeights enforces the [99, 100] total, after stripping
// zero-weight entries.
func validateFlavorWeights(weights FlavorWeights) error {
	total := 0.0

	for _, entry := range weights {
		if entry.Weight == 0 {
			continue
		}

		if entry.Weight < 0 {
			return fmt.Errorf("%w: flavor_file weight for %q is negative", ErrInvalid, entry.Name)
		}

		total += entry.Weight
	}

	if total < 99 || total > 100 {
		return fmt.Errorf("%w: flavor_file weights must sum to 99-100%%, got %.2f", ErrInvalid, total)
	}

	return nil
}

// ExpectedReporters sidesteps the legacy reporter-count off-by-one:
// rather than integer-dividing (total-1)/2 and
// silently tolerating a stuck barrier when servers and clients are
// unequal, the caller passes the actual per-role counts from the
// planned topology and gets back the exact reporter count.
func (c *Config) ExpectedReporters(numServers, numClients int) int {
	if !c.ServerClientMode || c.ServersGiveResults {
		return numServers + numClients
	}

	// Only clients report.
	return numClients
}
