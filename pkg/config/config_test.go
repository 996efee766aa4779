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

package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/cloudpunch/pkg/config"
	"github.com/target/cloudpunch/pkg/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load(writeConfig(t, "test: [iperf]\n"))
	require.NoError(t, err)

	assert.Equal(t, model.ModeFull, cfg.NetworkMode)
	assert.Equal(t, 1, cfg.NumberRouters)
	assert.Equal(t, 50, cfg.RetryCount)
	assert.Equal(t, config.TestModeList, cfg.TestMode)
	assert.Equal(t, []string{"iperf"}, cfg.Test)
}

func TestLoadFull(t *testing.T) {
	t.Parallel()

	body := `
network_mode: single-router
networks_per_router: 3
instances_per_network: 2
server_client_mode: true
instance_threads: 8
test: [iperf, ping]
test_mode: concurrent
test_start_delay: 5
recovery:
  enable: true
  type: rebuild
  threshold: 75
  retries: 3
iperf:
  duration: 30
`

	cfg, err := config.Load(writeConfig(t, body))
	require.NoError(t, err)

	assert.Equal(t, model.ModeSingleRouter, cfg.NetworkMode)
	assert.Equal(t, 3, cfg.NetworksPerRouter)
	assert.True(t, cfg.ServerClientMode)
	assert.Equal(t, config.RecoveryRebuild, cfg.Recovery.Type)
	assert.Equal(t, 75, cfg.Recovery.Threshold)
	assert.Equal(t, 30, cfg.Iperf["duration"])
}

func TestValidateRejections(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"bad mode":       "network_mode: mesh\n",
		"zero routers":   "number_routers: 0\n",
		"zero threads":   "instance_threads: 0\n",
		"bad test mode":  "test_mode: staggered\n",
		"negative delay": "test_start_delay: -1\n",
		"bad recovery":   "recovery: {enable: true, type: panic, threshold: 50, retries: 1}\n",
		"bad threshold":  "recovery: {enable: true, type: rebuild, threshold: 101, retries: 1}\n",
	}

	for name, body := range cases {
		body := body

		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := config.Load(writeConfig(t, body))
			assert.ErrorIs(t, err, config.ErrInvalid)
		})
	}
}

// TestFlavorWeights checks the weight-sum rule: 100 passes,
// 60 is rejected, and zero-weight entries are stripped before summing.
func TestFlavorWeights(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load(writeConfig(t, "flavor_file: {small: 50, large: 50}\n"))
	require.NoError(t, err)
	require.Len(t, cfg.FlavorFile, 2)

	// Declaration order, not alphabetical, drives the assignment walk.
	assert.Equal(t, "small", cfg.FlavorFile[0].Name)
	assert.Equal(t, "large", cfg.FlavorFile[1].Name)

	_, err = config.Load(writeConfig(t, "flavor_file: {small: 30, large: 30}\n"))
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, err = config.Load(writeConfig(t, "flavor_file: {small: 0, medium: 49.5, large: 50}\n"))
	assert.NoError(t, err)
}

// TestConfigJSONRoundTrip checks the wire encoding the control plane
// stores and hands back preserves snake_case keys and flavor order.
func TestConfigJSONRoundTrip(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load(writeConfig(t, `
network_mode: full
server_client_mode: true
test: [iperf]
flavor_file: {small: 50, large: 50}
loadbalancers:
  server: [10.1.1.10]
`))
	require.NoError(t, err)

	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	var keys map[string]interface{}

	require.NoError(t, json.Unmarshal(data, &keys))
	assert.Contains(t, keys, "network_mode")
	assert.Contains(t, keys, "server_client_mode")
	assert.Contains(t, keys, "flavor_file")

	var back config.Config

	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, cfg.NetworkMode, back.NetworkMode)
	assert.Equal(t, cfg.FlavorFile, back.FlavorFile)
	require.NotNil(t, back.LoadBalancers)
	assert.Equal(t, []string{"10.1.1.10"}, back.LoadBalancers.Server)
}

func TestExpectedReporters(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{ServerClientMode: true}
	assert.Equal(t, 5, cfg.ExpectedReporters(5, 5))

	cfg.ServersGiveResults = true
	assert.Equal(t, 10, cfg.ExpectedReporters(5, 5))

	cfg = &config.Config{}
	assert.Equal(t, 3, cfg.ExpectedReporters(3, 0))
}
