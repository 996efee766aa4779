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

package cleanup

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/target/cloudpunch/pkg/config"
	"github.com/target/cloudpunch/pkg/inventory"
	"github.com/target/cloudpunch/pkg/model"
	"github.com/target/cloudpunch/pkg/providers"
)

// File is the persisted residual inventory: API versions
// plus one ID list per resource kind. Keypair entries are names, all
// others provider IDs.
type File struct {
	APIVersions config.APIVersions
	Resources   map[inventory.Kind][]string
}

// FilePath is the conventional cleanup file name for a run/environment.
func FilePath(runName string, env model.EnvLabel) string {
	return fmt.Sprintf("%s-%s-cleanup.json", runName, env)
}

// MarshalJSON flattens the per-kind lists to top-level keys, the schema
// the legacy tooling consumes: {"api_versions": {...}, "floating_ip":
// ["id", ...], ...}.
func (f *File) MarshalJSON() ([]byte, error) {
	flat := map[string]interface{}{
		"api_versions": f.APIVersions,
	}

	for kind, ids := range f.Resources {
		if len(ids) > 0 {
			flat[string(kind)] = ids
		}
	}

	return json.Marshal(flat)
}

// UnmarshalJSON is the inverse of MarshalJSON: every key other than
// api_versions is a resource kind.
func (f *File) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage

	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}

	f.Resources = map[inventory.Kind][]string{}

	for key, raw := range flat {
		if key == "api_versions" {
			if err := json.Unmarshal(raw, &f.APIVersions); err != nil {
				return err
			}

			continue
		}

		var ids []string

		if err := json.Unmarshal(raw, &ids); err != nil {
			return fmt.Errorf("cleanup file key %q: %w", key, err)
		}

		f.Resources[inventory.Kind(key)] = ids
	}

	return nil
}

// WriteFile persists leftovers to path, or removes the file when
// nothing is left.
func WriteFile(path string, apiVersions config.APIVersions, leftovers []Leftover) error {
	if len(leftovers) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}

		return nil
	}

	file := &File{APIVersions: apiVersions, Resources: map[inventory.Kind][]string{}}

	for _, leftover := range leftovers {
		file.Resources[leftover.Kind] = append(file.Resources[leftover.Kind], leftover.ID)
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// LoadFile reads a persisted cleanup file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	file := &File{}

	if err := json.Unmarshal(data, file); err != nil {
		return nil, err
	}

	return file, nil
}

// Inventory reconstructs a Resource Inventory from the file's ID lists
// so the Engine can consume a persisted residual the same way it
// consumes a live run's bookkeeping. Only the identifier field of each
// handle is populated; that is all deletion needs.
func (f *File) Inventory(env model.EnvLabel) *inventory.Inventory {
	inv := inventory.New()

	for kind, ids := range f.Resources {
		for _, id := range ids {
			inv.Append(kind, env, "", handleForID(kind, id))
		}
	}

	return inv
}

func handleForID(kind inventory.Kind, id string) interface{} {
	switch kind {
	case inventory.KindSecurityGroup:
		return &providers.SecurityGroupHandle{ID: id}
	case inventory.KindKeypair:
		return &providers.KeypairHandle{Name: id}
	case inventory.KindRouter:
		return &providers.RouterHandle{ID: id}
	case inventory.KindNetwork:
		return &providers.NetworkHandle{ID: id}
	case inventory.KindSubnet:
		return &providers.SubnetHandle{ID: id}
	case inventory.KindInstance:
		return &providers.InstanceHandle{ID: id}
	case inventory.KindVolume:
		return &providers.VolumeHandle{ID: id}
	case inventory.KindFloatingIP:
		return &providers.FloatingIPHandle{ID: id}
	case inventory.KindLoadBalancer:
		return &providers.LoadBalancerHandle{ID: id}
	default:
		return nil
	}
}
