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
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	cmderrors "github.com/target/cloudpunch/pkg/cmd/errors"
	"github.com/target/cloudpunch/pkg/model"
	"github.com/target/cloudpunch/pkg/results"
)

type postOptions struct {
	format string
}

func (o *postOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.format, "format", "f", "table", "Output format: table, json, or yaml.")
}

func (o *postOptions) run(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: expected a results file path", cmderrors.ErrIncorrectArgumentNum)
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	var reports []model.TestResult

	if err := json.Unmarshal(data, &reports); err != nil {
		return err
	}

	aggregates := results.Aggregate(reports)

	switch o.format {
	case "json":
		out, err := json.MarshalIndent(aggregates, "", "  ")
		if err != nil {
			return err
		}

		fmt.Println(string(out))
	case "yaml":
		out, err := yaml.Marshal(aggregates)
		if err != nil {
			return err
		}

		fmt.Print(string(out))
	case "table":
		for _, line := range results.Summarize(aggregates) {
			fmt.Println(line)
		}
	default:
		return fmt.Errorf("%w: unknown format %q", cmderrors.ErrInvalidFlag, o.format)
	}

	return nil
}

// newPostCommand returns the post command: aggregate a saved results
// file into fleet-wide statistics.
func newPostCommand() *cobra.Command {
	o := &postOptions{}

	cmd := &cobra.Command{
		Use:          "post <results-file>",
		Short:        "Aggregate a saved results file.",
		Long:         "Aggregate a saved results file into per-test fleet statistics.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(args)
		},
	}

	o.addFlags(cmd)

	return cmd
}
