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

// Package credentials resolves OpenStack authentication material the
// way an operator's shell would supply it: an OpenRC file, the process
// environment, a clouds.yaml entry, or (failing all of those) an
// interactive prompt. It hands back the provider-agnostic model.Credentials
// the rest of CloudPunch deals in, never a raw env map.
package credentials

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
	"gopkg.in/ini.v1"

	"github.com/target/cloudpunch/pkg/model"
)

var (
	// ErrMissing is wrapped by every resolution failure.
	ErrMissing = errors.New("missing OpenStack credentials")
)

// Options controls how Resolve gathers credentials, mirroring the knobs
// the original CLI exposed: an optional OpenRC file, an optional
// pre-supplied password/token, whether to fall back to the environment,
// and whether to prompt interactively as a last resort.
type Options struct {
	OpenRCFile  string
	Password    string
	NoEnv       bool
	Interactive bool
	CloudName   string
}

// Resolve builds a model.Credentials from an OpenRC file, the process
// environment, or a clouds.yaml cloud name, prompting for a password
// when nothing else supplied one and interactive mode is allowed.
func Resolve(opts Options) (*model.Credentials, error) {
	if opts.CloudName != "" {
		return &model.Credentials{Cloud: opts.CloudName}, nil
	}

	raw := map[string]string{}

	if opts.OpenRCFile != "" {
		fileVars, err := parseOpenRC(opts.OpenRCFile)
		if err != nil {
			return nil, err
		}

		for k, v := range fileVars {
			raw[k] = v
		}
	}

	if !opts.NoEnv {
		for k, v := range envVars() {
			raw[k] = v
		}
	}

	if opts.OpenRCFile == "" && opts.NoEnv {
		return nil, fmt.Errorf("%w: no OpenRC file specified and environment loading disabled", ErrMissing)
	}

	creds := fromRawVars(raw)

	if opts.Password != "" {
		creds.Password = opts.Password
	}

	if creds.AuthURL == "" {
		return nil, fmt.Errorf("%w: OS_AUTH_URL is missing from OpenRC file and environment", ErrMissing)
	}

	if creds.ProjectName == "" && creds.ProjectID == "" {
		return nil, fmt.Errorf("%w: project information is missing from OpenRC file and environment", ErrMissing)
	}

	if creds.Password == "" {
		if !opts.Interactive {
			return nil, fmt.Errorf("%w: OS_PASSWORD is missing from OpenRC file and environment", ErrMissing)
		}

		password, err := promptPassword(creds)
		if err != nil {
			return nil, err
		}

		creds.Password = password
	}

	return creds, nil
}

// parseOpenRC extracts `export OS_KEY="value"` assignments. OpenRC
// files aren't valid INI on their own, so the "export " prefix is
// stripped from each assignment line first; the remaining `OS_KEY=value`
// lines are flat, section-less INI that ini.v1 parses directly,
// including its usual quote and inline-comment stripping. Any value
// that references another shell variable is skipped, since CloudPunch
// has no shell to expand it in.
func parseOpenRC(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: OpenRC file %s not found", ErrMissing, path)
	}
	defer f.Close()

	var buf bytes.Buffer

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimPrefix(line, "export ")

		if !strings.HasPrefix(line, "OS_") {
			continue
		}

		if idx := strings.Index(line, "="); idx >= 0 && strings.HasPrefix(strings.TrimSpace(line[idx+1:]), "$") {
			continue
		}

		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	cfg, err := ini.Load(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("parsing OpenRC file %s: %w", path, err)
	}

	vars := map[string]string{}

	for _, key := range cfg.Section("").Keys() {
		vars[strings.TrimPrefix(key.Name(), "OS_")] = key.String()
	}

	return vars, nil
}

// envVars collects OS_* variables from the process environment, in the
// same shape parseOpenRC returns.
func envVars() map[string]string {
	vars := map[string]string{}

	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, "OS_") {
			continue
		}

		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}

		vars[strings.TrimPrefix(parts[0], "OS_")] = parts[1]
	}

	return vars
}

// fromRawVars maps OS_* variable names onto model.Credentials, keystone
// v3 fields taking precedence over their v2 tenant_* equivalents.
func fromRawVars(raw map[string]string) *model.Credentials {
	creds := &model.Credentials{
		AuthURL:       raw["AUTH_URL"],
		Region:        raw["REGION_NAME"],
		Username:      raw["USERNAME"],
		Password:      raw["PASSWORD"],
		Domain:        firstNonEmpty(raw["USER_DOMAIN_NAME"], raw["USER_DOMAIN_ID"]),
		ProjectDomain: firstNonEmpty(raw["PROJECT_DOMAIN_NAME"], raw["PROJECT_DOMAIN_ID"]),
		ProjectName:   firstNonEmpty(raw["PROJECT_NAME"], raw["TENANT_NAME"]),
		ProjectID:     firstNonEmpty(raw["PROJECT_ID"], raw["TENANT_ID"]),
	}

	if strings.EqualFold(raw["INSECURE"], "true") || raw["INSECURE"] == "1" {
		creds.Insecure = true
	}

	return creds
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}

// promptPassword asks for a password on the controlling terminal, the
// way the original tool did via getpass, refusing to proceed with an
// empty entry.
func promptPassword(creds *model.Credentials) (string, error) {
	fmt.Fprintf(os.Stderr, "Enter your OpenStack password for %s on region %s: ", creds.AuthURL, creds.Region)

	password, err := term.ReadPassword(int(os.Stdin.Fd()))

	fmt.Fprintln(os.Stderr)

	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	if len(password) == 0 {
		return "", fmt.Errorf("%w: empty password entered", ErrMissing)
	}

	return string(password), nil
}
