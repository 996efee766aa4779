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

// Package model holds the data types shared across every CloudPunch
// component: the roles a worker can take, the two environment labels a
// run can span, the network topology modes, and the small wire-level
// records the control plane and driver exchange with workers.
package model

import "fmt"

// Role is the workload role of an instance or worker.
type Role string

const (
	RoleMaster Role = "master"
	RoleServer Role = "server"
	RoleClient Role = "client"
)

// Initial returns the single character used to encode the role in an
// instance hostname, e.g. "s" for RoleServer.
func (r Role) Initial() string {
	if len(r) == 0 {
		return ""
	}

	return string(r[0])
}

// EnvLabel identifies which of the (at most two) target clouds a
// resource or credential set belongs to.
type EnvLabel string

const (
	Env1 EnvLabel = "env1"
	Env2 EnvLabel = "env2"
)

// NetworkMode selects one of the three topology shapes a run can stage.
type NetworkMode string

const (
	ModeFull          NetworkMode = "full"
	ModeSingleRouter  NetworkMode = "single-router"
	ModeSingleNetwork NetworkMode = "single-network"
)

// RunOutcome records how a run ended, for reporting and exit-code
// purposes.
type RunOutcome int

const (
	OutcomeUnknown RunOutcome = iota
	OutcomeSuccess
	OutcomeFailure
	OutcomeAborted
)

func (o RunOutcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Credentials is the resolved, provider-agnostic authentication material
// for one environment. Exactly one of the scoped fields is populated
// depending on how the operator supplied credentials (see pkg/credentials).
type Credentials struct {
	// AuthURL is the Keystone identity endpoint.
	AuthURL string

	// Cloud names an entry in clouds.yaml, when that's how auth was
	// resolved. If set, the other fields are ignored.
	Cloud string

	// Region restricts service discovery to a single region.
	Region string

	// Domain is the user's domain (v3) or ignored (v2).
	Domain string

	// ProjectDomain is the scope's domain (v3) or ignored (v2).
	ProjectDomain string

	// Username/Password is the basic login pair.
	Username string
	Password string

	// ProjectName/ProjectID scopes the token; ProjectID wins if both set.
	ProjectName string
	ProjectID   string

	// Insecure disables TLS certificate verification.
	Insecure bool
}

func (c *Credentials) String() string {
	if c == nil {
		return "<nil>"
	}

	if c.Cloud != "" {
		return fmt.Sprintf("cloud=%s", c.Cloud)
	}

	return fmt.Sprintf("auth_url=%s project=%s user=%s", c.AuthURL, c.ProjectName, c.Username)
}

// RegistrationRecord is what a worker POSTs to /api/register, and what
// the control plane hands back from GET /api/register.
type RegistrationRecord struct {
	Hostname   string `json:"hostname"`
	InternalIP string `json:"internal_ip"`
	ExternalIP string `json:"external_ip"`
	Role       Role   `json:"role"`
}

// TestResult is a single worker's report, posted to POST /api/test/results.
// Results maps test name to either a Summary object or an Overtime array;
// see pkg/results for the typed aggregation of this payload.
type TestResult struct {
	Hostname string                 `json:"hostname"`
	Results  map[string]interface{} `json:"results"`
}
