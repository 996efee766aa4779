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

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/target/cloudpunch/pkg/agent"
	"github.com/target/cloudpunch/pkg/constants"
	"github.com/target/cloudpunch/pkg/controlplane"
)

type workerOptions struct {
	masterAddress string
	insecure      bool
}

func (o *workerOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.masterAddress, "master", fmt.Sprintf("localhost:%d", constants.DefaultControlPlanePort), "Control plane address (host:port).")
	cmd.Flags().BoolVar(&o.insecure, "insecure", false, "Disable TLS certificate verification.")
}

func (o *workerOptions) run(cmd *cobra.Command) error {
	ctx := log.IntoContext(cmd.Context(), log.Log.WithName(constants.Application))

	identity, err := agent.DiscoverIdentity(ctx, o.masterAddress)
	if err != nil {
		return err
	}

	worker, err := agent.New(controlplane.NewClient(o.masterAddress, o.insecure), identity)
	if err != nil {
		return err
	}

	return worker.Run(ctx)
}

// newWorkerCommand returns the worker command: the agent loop run by
// every staged server/client instance via userdata.
func newWorkerCommand() *cobra.Command {
	o := &workerOptions{}

	cmd := &cobra.Command{
		Use:     "worker",
		Aliases: []string{"slave"},
		Short:   "Run the worker agent loop.",
		Long: `Run the worker agent loop.

Registers this instance with the control plane, waits at the start
gate, executes the configured test mix, reports results, and loops
forever. The agent has no exit path of its own; it dies with its VM.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd)
		},
	}

	o.addFlags(cmd)

	return cmd
}
