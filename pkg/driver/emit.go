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
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/target/cloudpunch/pkg/inventory"
	"github.com/target/cloudpunch/pkg/model"
	"github.com/target/cloudpunch/pkg/providers"
	"github.com/target/cloudpunch/pkg/results"
)

// printInventory renders the staged fleet as a (hostname, fixed IP,
// floating IP) table.
func (d *Driver) printInventory() {
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)

	fmt.Fprintln(w, "HOSTNAME\tFIXED IP\tFLOATING IP")

	for _, env := range []model.EnvLabel{model.Env1, model.Env2} {
		for _, entry := range d.inv.List(inventory.KindInstance, env) {
			handle, ok := entry.Handle.(*providers.InstanceHandle)
			if !ok {
				continue
			}

			floating := handle.ExternalIP
			if floating == "" {
				floating = "-"
			}

			fmt.Fprintf(w, "%s\t%s\t%s\n", handle.Name, handle.InternalIP, floating)
		}
	}

	w.Flush() //nolint:errcheck
}

// emit writes the collected reports: raw JSON to the configured output
// file, or an aggregated summary to stdout.
func (d *Driver) emit(reports []model.TestResult) error {
	if d.options.Output != "" {
		data, err := json.MarshalIndent(reports, "", "  ")
		if err != nil {
			return err
		}

		return os.WriteFile(d.options.Output, data, 0o600)
	}

	for _, line := range results.Summarize(results.Aggregate(reports)) {
		fmt.Println(line)
	}

	return nil
}
