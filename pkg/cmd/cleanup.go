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

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/target/cloudpunch/pkg/cleanup"
	cmderrors "github.com/target/cloudpunch/pkg/cmd/errors"
	"github.com/target/cloudpunch/pkg/config"
	"github.com/target/cloudpunch/pkg/credentials"
	"github.com/target/cloudpunch/pkg/inventory"
	"github.com/target/cloudpunch/pkg/model"
	"github.com/target/cloudpunch/pkg/providers/openstack"
)

// cleanupRetries is the per-resource retry budget for a standalone
// sweep, matching the run-time cleanup's.
const cleanupRetries = 10

type cleanupOptions struct {
	openRC   string
	cloud    string
	noEnv    bool
	insecure bool
	search   bool
}

func (o *cleanupOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.openRC, "openrc", "", "OpenRC credentials file; OS_* environment variables otherwise.")
	cmd.Flags().StringVar(&o.cloud, "cloud", "", "clouds.yaml cloud name.")
	cmd.Flags().BoolVar(&o.noEnv, "no-env", false, "Ignore OS_* environment variables.")
	cmd.Flags().BoolVar(&o.insecure, "insecure", false, "Disable TLS certificate verification.")
	cmd.Flags().BoolVar(&o.search, "search", false, "Discover cloudpunch-prefixed resources instead of reading a cleanup file.")
}

func (o *cleanupOptions) run(cmd *cobra.Command, args []string) error {
	creds, err := credentials.Resolve(credentials.Options{
		OpenRCFile:  o.openRC,
		CloudName:   o.cloud,
		NoEnv:       o.noEnv,
		Interactive: true,
	})
	if err != nil {
		return err
	}

	creds.Insecure = o.insecure

	adapter := openstack.New(openstack.ProviderForCredentials(creds), creds.Region)

	var inv *inventory.Inventory

	var apiVersions config.APIVersions

	path := ""

	if o.search {
		inv, err = cleanup.Search(cmd.Context(), adapter, model.Env1)
		if err != nil {
			return err
		}
	} else {
		if len(args) != 1 {
			return fmt.Errorf("%w: expected a cleanup file path", cmderrors.ErrIncorrectArgumentNum)
		}

		path = args[0]

		file, err := cleanup.LoadFile(path)
		if err != nil {
			return err
		}

		apiVersions = file.APIVersions
		inv = file.Inventory(model.Env1)
	}

	engine := cleanup.New(adapter, inv)

	leftovers := engine.Run(cmd.Context(), model.Env1, cleanupRetries)

	if path != "" {
		if err := cleanup.WriteFile(path, apiVersions, leftovers); err != nil {
			return err
		}
	}

	if len(leftovers) > 0 {
		return fmt.Errorf("%d resources could not be deleted", len(leftovers))
	}

	return nil
}

// newCleanupCommand returns the cleanup command: sweep residual
// resources from a cleanup file or by name-prefix search.
func newCleanupCommand() *cobra.Command {
	o := &cleanupOptions{}

	cmd := &cobra.Command{
		Use:   "cleanup [cleanup-file]",
		Short: "Delete residual resources from an earlier run.",
		Long: `Delete residual resources from an earlier run.

Consumes the cleanup file a run leaves behind when teardown couldn't
delete everything, or (with --search) discovers cloudpunch-prefixed
resources directly from the cloud. Successfully deleted entries are
removed from the file; the file itself is removed once empty.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, args)
		},
	}

	o.addFlags(cmd)

	return cmd
}
