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
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	cmderrors "github.com/target/cloudpunch/pkg/cmd/errors"
	"github.com/target/cloudpunch/pkg/config"
	"github.com/target/cloudpunch/pkg/credentials"
	"github.com/target/cloudpunch/pkg/driver"
	"github.com/target/cloudpunch/pkg/flags"
	"github.com/target/cloudpunch/pkg/model"
	"github.com/target/cloudpunch/pkg/providers/openstack"
)

// runOptions carries every run flag.
type runOptions struct {
	configPath string
	envPath    string
	env2Path   string

	openRC  string
	openRC2 string
	cloud   string
	cloud2  string
	noEnv   bool

	output        string
	reuse         bool
	hold          bool
	insecure      bool
	masterAddress string

	testStartDelay    flags.DurationFlag
	hostmapTags       flags.StringMapFlag
	recoveryThreshold flags.ThresholdFlag
}

func (o *runOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.configPath, "config", "c", "", "Run configuration file (YAML).")
	cmd.Flags().StringVarP(&o.envPath, "env", "e", "", "env1 environment file (YAML).")
	cmd.Flags().StringVar(&o.env2Path, "env2", "", "env2 environment file for split runs (clients only).")
	cmd.Flags().StringVar(&o.openRC, "openrc", "", "OpenRC credentials file for env1; OS_* environment variables otherwise.")
	cmd.Flags().StringVar(&o.openRC2, "openrc2", "", "OpenRC credentials file for env2.")
	cmd.Flags().StringVar(&o.cloud, "cloud", "", "clouds.yaml cloud name for env1.")
	cmd.Flags().StringVar(&o.cloud2, "cloud2", "", "clouds.yaml cloud name for env2.")
	cmd.Flags().BoolVar(&o.noEnv, "no-env", false, "Ignore OS_* environment variables.")
	cmd.Flags().StringVarP(&o.output, "output", "o", "", "Write raw results JSON here instead of a stdout summary.")
	cmd.Flags().BoolVar(&o.reuse, "reuse", false, "Offer further test cycles against the staged environment.")
	cmd.Flags().BoolVar(&o.hold, "hold", false, "Pause for confirmation before the test starts.")
	cmd.Flags().BoolVar(&o.insecure, "insecure", false, "Disable TLS certificate verification.")
	cmd.Flags().StringVar(&o.masterAddress, "master-address", "", "Override the derived control plane address (host:port).")
	cmd.Flags().Var(&o.testStartDelay, "test-start-delay", "Override the configured delay between test starts.")
	cmd.Flags().Var(&o.hostmapTags, "hostmap-tag", "Additional hostmap tag resolution, tag=zone, repeatable.")
	cmd.Flags().Var(&o.recoveryThreshold, "recovery-threshold", "Override the configured recovery threshold percentage.")

	if err := cmd.MarkFlagRequired("config"); err != nil {
		panic(err)
	}

	if err := cmd.MarkFlagRequired("env"); err != nil {
		panic(err)
	}
}

// environment builds one target cloud's runtime from its files/flags.
func environment(label model.EnvLabel, envPath, openRC, cloud string, noEnv, insecure bool) (*driver.Environment, error) {
	spec, err := config.LoadEnvironment(envPath)
	if err != nil {
		return nil, err
	}

	creds, err := credentials.Resolve(credentials.Options{
		OpenRCFile:  openRC,
		CloudName:   cloud,
		NoEnv:       noEnv,
		Interactive: true,
	})
	if err != nil {
		return nil, err
	}

	creds.Insecure = insecure

	adapter := openstack.New(openstack.ProviderForCredentials(creds), creds.Region)

	return &driver.Environment{Label: label, Adapter: adapter, Spec: spec}, nil
}

func (o *runOptions) run(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}

	if o.testStartDelay.Duration > 0 {
		cfg.TestStartDelay = int(o.testStartDelay.Duration / time.Second)
	}

	if o.recoveryThreshold.IsSet() {
		cfg.Recovery.Threshold = o.recoveryThreshold.Percent
	}

	if len(o.hostmapTags.Map) > 0 {
		if cfg.HostMap == nil {
			return fmt.Errorf("%w: --hostmap-tag requires a hostmap in the configuration", cmderrors.ErrInvalidFlag)
		}

		if cfg.HostMap.Tags == nil {
			cfg.HostMap.Tags = map[string]string{}
		}

		for tag, zone := range o.hostmapTags.Map {
			cfg.HostMap.Tags[tag] = zone
		}
	}

	env1, err := environment(model.Env1, o.envPath, o.openRC, o.cloud, o.noEnv, o.insecure)
	if err != nil {
		return err
	}

	envs := []*driver.Environment{env1}

	if o.env2Path != "" {
		env2, err := environment(model.Env2, o.env2Path, o.openRC2, o.cloud2, o.noEnv, o.insecure)
		if err != nil {
			return err
		}

		envs = append(envs, env2)
	}

	options := driver.Options{
		Output:        o.output,
		ReuseMode:     o.reuse,
		ManualGate:    o.hold,
		Insecure:      o.insecure,
		MasterAddress: o.masterAddress,
	}

	d, err := driver.New(cfg, envs, options, newStdinPrompter())
	if err != nil {
		return err
	}

	// An interrupt cancels the pipeline; the driver still runs cleanup
	// on its own background context before returning.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return d.Run(ctx)
}

// newRunCommand returns the run command: the full stage -> test ->
// collect -> cleanup pipeline.
func newRunCommand() *cobra.Command {
	o := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Stage an environment and run a distributed test.",
		Long: `Stage an environment and run a distributed test.

Provisions the configured topology, waits for every worker to register
with the master's control plane, sequences the test mix, collects
per-worker results, and tears everything down. Residual resources that
survive teardown are persisted to a cleanup file for the cleanup
subcommand.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd)
		},
	}

	o.addFlags(cmd)

	return cmd
}
