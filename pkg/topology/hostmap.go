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

package topology

import (
	"fmt"
	"strings"

	"github.com/target/cloudpunch/pkg/config"
	"github.com/target/cloudpunch/pkg/model"
)

// ResolveAvailabilityZone implements the host-map lookup: row
// hostmap[(index-1) mod len], with index 0 mapping to the last row,
// picks a "server_az,client_az" pair, and the half matching role is
// resolved through the tag table to the provider's real zone name.
func ResolveAvailabilityZone(hm *config.HostMap, role model.Role, index int) (string, error) {
	if hm == nil || len(hm.Map) == 0 {
		return "", nil
	}

	n := len(hm.Map)

	var row string

	if index == 0 {
		row = hm.Map[n-1]
	} else {
		row = hm.Map[((index-1)%n+n)%n]
	}

	parts := strings.SplitN(row, ",", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("hostmap row %q must be \"server_az,client_az\"", row)
	}

	tag := strings.TrimSpace(parts[0])
	if role == model.RoleClient {
		tag = strings.TrimSpace(parts[1])
	}

	az, ok := hm.Tags[tag]
	if !ok {
		return "", fmt.Errorf("hostmap tag %q has no entry in tags", tag)
	}

	return az, nil
}
