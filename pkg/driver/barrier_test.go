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

package driver

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/cloudpunch/pkg/config"
	"github.com/target/cloudpunch/pkg/controlplane"
	"github.com/target/cloudpunch/pkg/errorkinds"
	"github.com/target/cloudpunch/pkg/model"
)

// controlHarness runs the real control plane and returns a driver wired
// at it, with the given worker fleet size planned.
func controlHarness(t *testing.T, cfg *config.Config, servers, clients int) (*Driver, *controlplane.Store) {
	t.Helper()

	store := controlplane.NewStore()
	server := httptest.NewServer(controlplane.NewRouter(controlplane.NewHandler(store)))
	t.Cleanup(server.Close)

	return &Driver{
		cfg:        cfg,
		client:     controlplane.NewClient(strings.TrimPrefix(server.URL, "http://"), false),
		numServers: servers,
		numClients: clients,
	}, store
}

func TestConnect(t *testing.T) {
	t.Parallel()

	d, _ := controlHarness(t, &config.Config{RetryCount: 2}, 1, 0)

	require.NoError(t, d.connect(context.Background()))
}

// TestRegistrationBarrierCloses checks the barrier returns once every
// worker has registered.
func TestRegistrationBarrierCloses(t *testing.T) {
	t.Parallel()

	d, store := controlHarness(t, &config.Config{RetryCount: 3}, 2, 0)

	store.Register(model.RegistrationRecord{Hostname: "cloudpunch-1234567-s1", Role: model.RoleServer})
	store.Register(model.RegistrationRecord{Hostname: "cloudpunch-1234567-s2", Role: model.RoleServer})

	require.NoError(t, d.registrationBarrier(context.Background()))
}

// TestRegistrationBarrierTimeout checks the retry budget surfaces as a
// registration timeout.
func TestRegistrationBarrierTimeout(t *testing.T) {
	t.Parallel()

	d, _ := controlHarness(t, &config.Config{RetryCount: 1}, 2, 0)

	err := d.registrationBarrier(context.Background())
	assert.ErrorIs(t, err, errorkinds.ErrRegistrationTimeout)
}

// TestRegistrationBarrierIgnore checks the ignore policy proceeds with
// the partial fleet and shrinks the reporter expectations accordingly.
func TestRegistrationBarrierIgnore(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		RetryCount: 5,
		Recovery:   config.Recovery{Enable: true, Type: config.RecoveryIgnore, Threshold: 50, Retries: 1},
	}

	d, store := controlHarness(t, cfg, 2, 0)

	store.Register(model.RegistrationRecord{Hostname: "cloudpunch-1234567-s1", Role: model.RoleServer})

	require.NoError(t, d.registrationBarrier(context.Background()))
	assert.Equal(t, 1, d.numServers)
	assert.Equal(t, 0, d.numClients)
}

// TestRegistrationBarrierAbort checks the abort policy raises a user
// stop.
func TestRegistrationBarrierAbort(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		RetryCount: 5,
		Recovery:   config.Recovery{Enable: true, Type: config.RecoveryAbort, Threshold: 50, Retries: 1},
	}

	d, store := controlHarness(t, cfg, 2, 0)

	store.Register(model.RegistrationRecord{Hostname: "cloudpunch-1234567-s1", Role: model.RoleServer})

	err := d.registrationBarrier(context.Background())
	assert.ErrorIs(t, err, errorkinds.ErrUserStop)
}

// TestCollect checks result collection closes at the expected reporter
// count.
func TestCollect(t *testing.T) {
	t.Parallel()

	d, store := controlHarness(t, &config.Config{RetryCount: 3}, 2, 0)

	store.AddResult(model.TestResult{Hostname: "cloudpunch-1234567-s1", Results: map[string]interface{}{"iperf": "ServerMode"}})
	store.AddResult(model.TestResult{Hostname: "cloudpunch-1234567-s2", Results: map[string]interface{}{"iperf": "ServerMode"}})

	results, err := d.collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

// TestPublishConfigRoundTrips checks the driver's published config is
// what the control plane hands back to workers.
func TestPublishConfigRoundTrips(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		NetworkMode: model.ModeFull,
		RetryCount:  2,
		Test:        []string{"iperf"},
	}

	d, store := controlHarness(t, cfg, 1, 1)

	require.NoError(t, d.publishConfig(context.Background()))
	assert.NotNil(t, store.Config())

	var fetched config.Config

	require.NoError(t, d.client.FetchConfig(context.Background(), &fetched))
	assert.Equal(t, cfg.Test, fetched.Test)
	assert.Equal(t, model.ModeFull, fetched.NetworkMode)
}
