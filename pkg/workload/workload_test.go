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

package workload

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryBuiltins(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()

	for _, name := range []string{"fio", "iperf", "stress", "ping", "jmeter"} {
		runner, err := registry.Lookup(name)
		require.NoError(t, err)
		assert.Equal(t, name, runner.Name())
	}

	_, err := registry.Lookup("bonnie")
	assert.Error(t, err)
}

// TestRegistryShadowing checks an ad-hoc test can replace a built-in of
// the same name, matching the legacy import behaviour.
func TestRegistryShadowing(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.Register(NewExternal("iperf", "/tmp/iperf-custom"))

	runner, err := registry.Lookup("iperf")
	require.NoError(t, err)

	external, ok := runner.(*External)
	require.True(t, ok)
	assert.Equal(t, "iperf", external.Name())
}

type stubRunner struct {
	value interface{}
	err   error
	panic bool
}

func (r *stubRunner) Name() string { return "stub" }

func (r *stubRunner) Run(ctx context.Context, params Params) (interface{}, error) {
	if r.panic {
		panic("workload blew up")
	}

	return r.value, r.err
}

// TestExecuteFailureIsolation checks errors and panics become result
// strings rather than propagating.
func TestExecuteFailureIsolation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	assert.Equal(t, map[string]interface{}{"bps": 1.0}, Execute(ctx, &stubRunner{value: map[string]interface{}{"bps": 1.0}}, Params{}))
	assert.Equal(t, "broken pipe", Execute(ctx, &stubRunner{err: errors.New("broken pipe")}, Params{}))
	assert.Equal(t, "panic: workload blew up", Execute(ctx, &stubRunner{panic: true}, Params{}))
}

func TestTargetResolution(t *testing.T) {
	t.Parallel()

	// Pairing on: match_ip wins.
	addr, err := target(Params{ServerClientMode: true, MatchIP: "10.1.1.5"})
	require.NoError(t, err)
	assert.Equal(t, "10.1.1.5", addr)

	// Pairing on but unmatched: error.
	_, err = target(Params{ServerClientMode: true})
	assert.ErrorIs(t, err, ErrMissingTarget)

	// Pairing off: the explicit option.
	addr, err = target(Params{Options: map[string]interface{}{"target": "192.0.2.1"}})
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1", addr)

	_, err = target(Params{})
	assert.ErrorIs(t, err, ErrMissingTarget)
}

func TestDecodeOutput(t *testing.T) {
	t.Parallel()

	assert.Equal(t, map[string]interface{}{"bps": 1.0}, decodeOutput([]byte(`{"bps": 1}`)))
	assert.Equal(t, "plain text", decodeOutput([]byte("plain text\n")))
}

func TestOptionHelpers(t *testing.T) {
	t.Parallel()

	options := map[string]interface{}{"duration": 30.0, "plan": "load.jmx"}

	assert.Equal(t, 30, optInt(options, "duration", 10))
	assert.Equal(t, 10, optInt(options, "missing", 10))
	assert.Equal(t, "load.jmx", optString(options, "plan", ""))
	assert.Equal(t, "fallback", optString(options, "missing", "fallback"))
}

func TestPingOutputParsing(t *testing.T) {
	t.Parallel()

	text := `64 bytes from 192.0.2.1: icmp_seq=1 ttl=64 time=0.5 ms
64 bytes from 192.0.2.1: icmp_seq=2 ttl=64 time=1.5 ms

--- 192.0.2.1 ping statistics ---
2 packets transmitted, 2 received, 0% packet loss, time 1001ms
rtt min/avg/max/mdev = 0.5/1.0/1.5/0.5 ms`

	assert.Equal(t, []string{"0.5", "1.0", "1.5"}, pingRTTRE.FindStringSubmatch(text)[1:])
	assert.Equal(t, "0", pingLossRE.FindStringSubmatch(text)[1])
	assert.Len(t, pingSampleRE.FindAllStringSubmatch(text, -1), 2)
}
