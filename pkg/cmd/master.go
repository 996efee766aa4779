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

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/target/cloudpunch/pkg/constants"
	"github.com/target/cloudpunch/pkg/controlplane"
)

// masterOptions allows server options to be overridden.
type masterOptions struct {
	// listenAddress tells the server what to listen on.
	listenAddress string

	// readTimeout defines how long before we give up on the client,
	// this should be fairly short.
	readTimeout time.Duration

	// readHeaderTimeout defines how long before we give up on the client,
	// this should be fairly short.
	readHeaderTimeout time.Duration

	// writeTimeout defines how long we take to respond before we give up.
	writeTimeout time.Duration
}

func (o *masterOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.listenAddress, "listen-address", fmt.Sprintf(":%d", constants.DefaultControlPlanePort), "API listener address.")
	cmd.Flags().DurationVar(&o.readTimeout, "read-timeout", time.Second, "How long to wait for the client to send the request body.")
	cmd.Flags().DurationVar(&o.readHeaderTimeout, "read-header-timeout", time.Second, "How long to wait for the client to send headers.")
	cmd.Flags().DurationVar(&o.writeTimeout, "write-timeout", 10*time.Second, "How long to wait for the API to respond to the client.")
}

func (o *masterOptions) run() error {
	logger := log.Log.WithName(constants.Application)

	logger.Info("control plane starting", "version", constants.Version, "revision", constants.Revision, "address", o.listenAddress)

	store := controlplane.NewStore()
	handler := controlplane.NewHandler(store)

	server := &http.Server{
		Addr:              o.listenAddress,
		ReadTimeout:       o.readTimeout,
		ReadHeaderTimeout: o.readHeaderTimeout,
		WriteTimeout:      o.writeTimeout,
		Handler:           controlplane.NewRouter(handler),
	}

	// Register a signal handler to trigger a graceful shutdown.
	stop := make(chan os.Signal, 1)

	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		<-stop

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error(err, "server shutdown error")
		}
	}()

	if err := server.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	}

	return nil
}

// newMasterCommand returns the master command: the control plane HTTP
// service every staged worker rendezvouses on.
func newMasterCommand() *cobra.Command {
	o := &masterOptions{}

	cmd := &cobra.Command{
		Use:   "master",
		Short: "Serve the control plane API.",
		Long: `Serve the control plane API.

Run by the master instance via userdata. Holds worker registrations,
the run configuration, the pairing latch, the start gate, and the
results sink, all in memory; a restart aborts the run.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run()
		},
	}

	o.addFlags(cmd)

	return cmd
}
