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

// Package topology implements the Topology Planner: it
// turns a configuration into the canonically ordered Instance
// Descriptor list, encoding each instance's position in its hostname
// since no separate counter or roster exists. The naming
// scheme is the single source of truth for ordering, so the formatter
// here and the parser below are kept deliberately adjacent and
// round-trip-tested.
package topology

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/target/cloudpunch/pkg/model"
)

// MasterName returns the master instance's hostname. The master always
// gets the literal three-segment form, distinguishing it structurally from every
// other instance for both pairing and recovery purposes.
func MasterName(runID string) string {
	return fmt.Sprintf("cloudpunch-%s-master", runID)
}

// IsMasterName reports whether name is the literal three-segment master
// hostname for runID.
func IsMasterName(name, runID string) bool {
	return name == MasterName(runID)
}

// Name formats a worker instance's hostname from its position, one
// encoding per network mode. router/network are 1-based and are
// ignored where the mode doesn't carry them.
func Name(runID string, role model.Role, mode model.NetworkMode, router, network, instance int) string {
	c := role.Initial()

	switch mode {
	case model.ModeSingleNetwork:
		return fmt.Sprintf("cloudpunch-%s-%s%d", runID, c, instance)
	case model.ModeSingleRouter:
		return fmt.Sprintf("cloudpunch-%s-%s-master-n%d-%s%d", runID, c, network, c, instance)
	default: // model.ModeFull
		return fmt.Sprintf("cloudpunch-%s-%s-r%d-n%d-%s%d", runID, c, router, network, c, instance)
	}
}

// ParsedName is the result of recovering an instance's position from
// its hostname: the sole index reservation mechanism.
type ParsedName struct {
	RunID    string
	Role     model.Role
	IsMaster bool
	Router   int
	Network  int
	Instance int
}

var (
	fullNameRE         = regexp.MustCompile(`^cloudpunch-(\d+)-([sc])-r(\d+)-n(\d+)-[sc](\d+)$`)
	singleRouterNameRE = regexp.MustCompile(`^cloudpunch-(\d+)-([sc])-master-n(\d+)-[sc](\d+)$`)
	singleNetworkRE    = regexp.MustCompile(`^cloudpunch-(\d+)-([sc])(\d+)$`)
	masterNameRE       = regexp.MustCompile(`^cloudpunch-(\d+)-master$`)
)

func roleFromInitial(c string) model.Role {
	if c == "c" {
		return model.RoleClient
	}

	return model.RoleServer
}

// ParseName recovers role, router, network, and instance index from a
// hostname produced by Name or MasterName, trying the master form
// first since it's structurally distinct from every worker encoding
// regardless of mode.
func ParseName(name string) (*ParsedName, error) {
	if m := masterNameRE.FindStringSubmatch(name); m != nil {
		return &ParsedName{RunID: m[1], Role: model.RoleMaster, IsMaster: true}, nil
	}

	if m := fullNameRE.FindStringSubmatch(name); m != nil {
		router, _ := strconv.Atoi(m[3])   //nolint:errcheck
		network, _ := strconv.Atoi(m[4])  //nolint:errcheck
		instance, _ := strconv.Atoi(m[5]) //nolint:errcheck

		return &ParsedName{RunID: m[1], Role: roleFromInitial(m[2]), Router: router, Network: network, Instance: instance}, nil
	}

	if m := singleRouterNameRE.FindStringSubmatch(name); m != nil {
		network, _ := strconv.Atoi(m[3])  //nolint:errcheck
		instance, _ := strconv.Atoi(m[4]) //nolint:errcheck

		return &ParsedName{RunID: m[1], Role: roleFromInitial(m[2]), Router: 1, Network: network, Instance: instance}, nil
	}

	if m := singleNetworkRE.FindStringSubmatch(name); m != nil {
		instance, _ := strconv.Atoi(m[3]) //nolint:errcheck

		return &ParsedName{RunID: m[1], Role: roleFromInitial(m[2]), Router: 1, Network: 1, Instance: instance}, nil
	}

	return nil, fmt.Errorf("%q does not match any known instance naming scheme", name)
}
