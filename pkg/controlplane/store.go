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

// Package controlplane implements the rendezvous HTTP API
// the master instance serves: worker registration, config distribution,
// deterministic server/client pairing, the start gate, and the results
// sink. State is in-memory only; a crashed control plane aborts the run.
package controlplane

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/target/cloudpunch/pkg/model"
)

// Store holds the control plane's five shared collections/values. Each
// collection is guarded independently by a single-writer
// discipline: registration order is preserved in instances, results are
// arrival order, matched is a compare-and-set latch so /test/match is
// idempotent.
type Store struct {
	instancesMu sync.RWMutex
	instances   []model.RegistrationRecord

	runningMu sync.Mutex
	running   map[string]struct{}

	resultsMu sync.RWMutex
	results   []model.TestResult

	matched atomic.Bool

	configMu sync.RWMutex
	config   json.RawMessage
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{running: map[string]struct{}{}}
}

// Register records a worker's identity. A hostname that registers twice
// (e.g. the agent restarted before the run began) keeps its original
// arrival slot with the fresher addresses.
func (s *Store) Register(rec model.RegistrationRecord) {
	s.instancesMu.Lock()
	defer s.instancesMu.Unlock()

	for i := range s.instances {
		if s.instances[i].Hostname == rec.Hostname {
			s.instances[i] = rec
			return
		}
	}

	s.instances = append(s.instances, rec)
}

// Instances returns every registered worker in arrival order.
func (s *Store) Instances() []model.RegistrationRecord {
	s.instancesMu.RLock()
	defer s.instancesMu.RUnlock()

	out := make([]model.RegistrationRecord, len(s.instances))
	copy(out, s.instances)

	return out
}

// InstanceByHostname returns the registration record for a hostname, or
// nil if it never registered.
func (s *Store) InstanceByHostname(hostname string) *model.RegistrationRecord {
	s.instancesMu.RLock()
	defer s.instancesMu.RUnlock()

	for i := range s.instances {
		if s.instances[i].Hostname == hostname {
			rec := s.instances[i]
			return &rec
		}
	}

	return nil
}

// SetConfig stores the published run configuration verbatim.
func (s *Store) SetConfig(raw json.RawMessage) {
	s.configMu.Lock()
	defer s.configMu.Unlock()

	s.config = raw
}

// Config returns the stored configuration, or nil if none was published.
func (s *Store) Config() json.RawMessage {
	s.configMu.RLock()
	defer s.configMu.RUnlock()

	return s.config
}

// Match latches the MATCHED flag. Compare-and-set semantics make
// re-invocation idempotent.
func (s *Store) Match() {
	s.matched.CompareAndSwap(false, true)
}

// Matched reports whether pairing has been sealed.
func (s *Store) Matched() bool {
	return s.matched.Load()
}

// ClaimStart implements the status arbitration: it
// returns true iff MATCHED is latched and hostname isn't already in the
// RUNNING set, inserting it atomically on success.
func (s *Store) ClaimStart(hostname string) bool {
	if !s.matched.Load() {
		return false
	}

	s.runningMu.Lock()
	defer s.runningMu.Unlock()

	if _, ok := s.running[hostname]; ok {
		return false
	}

	s.running[hostname] = struct{}{}

	return true
}

// Reset clears RUNNING and RESULTS, preserving INSTANCES and CONFIG, so
// the same staged environment can host another test
// (DELETE /test/status).
func (s *Store) Reset() {
	s.runningMu.Lock()
	s.running = map[string]struct{}{}
	s.runningMu.Unlock()

	s.resultsMu.Lock()
	s.results = nil
	s.resultsMu.Unlock()
}

// AddResult appends a worker's report. Arrival order is preserved.
func (s *Store) AddResult(result model.TestResult) {
	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()

	s.results = append(s.results, result)
}

// Results returns every report received since the last Reset.
func (s *Store) Results() []model.TestResult {
	s.resultsMu.RLock()
	defer s.resultsMu.RUnlock()

	out := make([]model.TestResult, len(s.results))
	copy(out, s.results)

	return out
}
