/*
Copyright 2022-2024 EscherCloud, CloudPunch Authors.

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

// Package cmd builds the cloudpunch command hierarchy: run (the full
// driver pipeline), cleanup (residual sweep), post (results
// aggregation), master (the control plane service), and worker (the
// agent loop).
package cmd

import (
	"flag"

	"github.com/spf13/cobra"

	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/target/cloudpunch/pkg/constants"
)

var rootLongDesc = `CloudPunch distributed performance testing.

This CLI stages an ephemeral OpenStack environment, boots a fleet of
worker instances, sequences a distributed test mix across them, and
collects per-worker results. Staging, the control plane the workers
rendezvous on, and the worker agent itself are all subcommands of this
one binary; the master and worker subcommands are what the staged
instances run via userdata.`

// newRootCommand returns the root command and all its subordinates.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   constants.Application,
		Short: "CloudPunch distributed performance testing.",
		Long:  rootLongDesc,
	}

	zapOptions := &zap.Options{}
	zapOptions.BindFlags(flag.CommandLine)
	cmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		log.SetLogger(zap.New(zap.UseFlagOptions(zapOptions)))
	}

	commands := []*cobra.Command{
		newVersionCommand(),
		newRunCommand(),
		newCleanupCommand(),
		newPostCommand(),
		newMasterCommand(),
		newWorkerCommand(),
	}

	cmd.AddCommand(commands...)

	return cmd
}

// Generate creates a hierarchy of cobra commands for the application.  It can
// also be used to walk the structure and generate HTML documentation for example.
func Generate() *cobra.Command {
	return newRootCommand()
}
