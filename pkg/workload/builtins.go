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

package workload

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/target/cloudpunch/pkg/model"
)

// ErrMissingTarget is returned when a network workload has neither a
// paired instance nor an explicit target option.
var ErrMissingTarget = errors.New("missing target address")

func builtins() []Runner {
	return []Runner{&iperfRunner{}, &fioRunner{}, &pingRunner{}, &stressRunner{}, &jmeterRunner{}}
}

func optInt(options map[string]interface{}, key string, fallback int) int {
	switch v := options[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func optString(options map[string]interface{}, key, fallback string) string {
	if v, ok := options[key].(string); ok {
		return v
	}

	return fallback
}

// target resolves the address a network workload drives: the paired
// instance when pairing is on, an explicit option otherwise.
func target(params Params) (string, error) {
	if params.ServerClientMode {
		if params.MatchIP == "" {
			return "", ErrMissingTarget
		}

		return params.MatchIP, nil
	}

	if t := optString(params.Options, "target", ""); t != "" {
		return t, nil
	}

	return "", ErrMissingTarget
}

// iperfRunner wraps iperf3. Servers sit in daemon mode; clients drive
// throughput at the paired server and report bits per second.
type iperfRunner struct{}

func (r *iperfRunner) Name() string { return "iperf" }

func (r *iperfRunner) Run(ctx context.Context, params Params) (interface{}, error) {
	if params.Role == model.RoleServer && params.ServerClientMode {
		if _, err := runCommand(ctx, nil, "iperf3", "-s", "-D"); err != nil {
			return nil, err
		}

		return "ServerMode", nil
	}

	server, err := target(params)
	if err != nil {
		return nil, err
	}

	duration := optInt(params.Options, "duration", 10)
	threads := optInt(params.Options, "threads", 1)
	mss := optInt(params.Options, "mss", 1460)

	out, err := runCommand(ctx, nil, "iperf3",
		"-c", server,
		"-i", "1",
		"-t", strconv.Itoa(duration),
		"-P", strconv.Itoa(threads),
		"-M", strconv.Itoa(mss),
		"-J")
	if err != nil {
		return nil, err
	}

	parsed, ok := decodeOutput(out).(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("iperf3 produced no JSON")
	}

	if params.OvertimeResults {
		if intervals, ok := parsed["intervals"]; ok {
			return intervals, nil
		}
	}

	if end, ok := parsed["end"].(map[string]interface{}); ok {
		summary := map[string]interface{}{}

		if recv, ok := end["sum_received"].(map[string]interface{}); ok {
			summary["bps"] = recv["bits_per_second"]
		}

		if sent, ok := end["sum_sent"].(map[string]interface{}); ok {
			summary["retransmits"] = sent["retransmits"]
		}

		return summary, nil
	}

	return parsed, nil
}

// fioRunner wraps fio, always in JSON output mode. The options dict is
// passed through as --key=value job arguments, so the full fio surface
// stays reachable without CloudPunch modelling it.
type fioRunner struct{}

func (r *fioRunner) Name() string { return "fio" }

func (r *fioRunner) Run(ctx context.Context, params Params) (interface{}, error) {
	args := []string{"--output-format=json", "--name=cloudpunch"}

	for key, value := range params.Options {
		args = append(args, fmt.Sprintf("--%s=%v", key, value))
	}

	out, err := runCommand(ctx, nil, "fio", args...)
	if err != nil {
		return nil, err
	}

	parsed, ok := decodeOutput(out).(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("fio produced no JSON")
	}

	if jobs, ok := parsed["jobs"].([]interface{}); ok && len(jobs) > 0 {
		return jobs[0], nil
	}

	return parsed, nil
}

// pingRunner wraps the system ping and extracts ICMP latency.
type pingRunner struct{}

func (r *pingRunner) Name() string { return "ping" }

var (
	pingRTTRE    = regexp.MustCompile(`= ([\d.]+)/([\d.]+)/([\d.]+)`)
	pingLossRE   = regexp.MustCompile(`([\d.]+)% packet loss`)
	pingSampleRE = regexp.MustCompile(`time=([\d.]+) ms`)
)

func (r *pingRunner) Run(ctx context.Context, params Params) (interface{}, error) {
	peer, err := target(params)
	if err != nil {
		return nil, err
	}

	count := optInt(params.Options, "count", 10)

	out, err := runCommand(ctx, nil, "ping", "-c", strconv.Itoa(count), peer)
	if err != nil {
		return nil, err
	}

	text := string(out)

	if params.OvertimeResults {
		var samples []interface{}

		for _, m := range pingSampleRE.FindAllStringSubmatch(text, -1) {
			latency, _ := strconv.ParseFloat(m[1], 64) //nolint:errcheck
			samples = append(samples, map[string]interface{}{"latency": latency})
		}

		return samples, nil
	}

	summary := map[string]interface{}{}

	if m := pingRTTRE.FindStringSubmatch(text); m != nil {
		summary["latency_min"], _ = strconv.ParseFloat(m[1], 64) //nolint:errcheck
		summary["latency"], _ = strconv.ParseFloat(m[2], 64)     //nolint:errcheck
		summary["latency_max"], _ = strconv.ParseFloat(m[3], 64) //nolint:errcheck
	}

	if m := pingLossRE.FindStringSubmatch(text); m != nil {
		summary["loss"], _ = strconv.ParseFloat(m[1], 64) //nolint:errcheck
	}

	if len(summary) == 0 {
		return nil, fmt.Errorf("unparseable ping output: %s", strings.TrimSpace(text))
	}

	return summary, nil
}

// stressRunner wraps stress-ng's CPU load generation.
type stressRunner struct{}

func (r *stressRunner) Name() string { return "stress" }

func (r *stressRunner) Run(ctx context.Context, params Params) (interface{}, error) {
	cpus := optInt(params.Options, "cpu", 0)
	timeout := optInt(params.Options, "duration", 30)

	out, err := runCommand(ctx, nil, "stress-ng",
		"--cpu", strconv.Itoa(cpus),
		"--timeout", fmt.Sprintf("%ds", timeout),
		"--metrics-brief")
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"duration": timeout,
		"output":   strings.TrimSpace(string(out)),
	}, nil
}

// jmeterRunner wraps a headless jmeter run over a shipped test plan.
type jmeterRunner struct{}

func (r *jmeterRunner) Name() string { return "jmeter" }

var jmeterSummaryRE = regexp.MustCompile(`summary =\s+(\d+) in [\d:.]+ =\s+([\d.]+)/s Avg:\s+(\d+) Min:\s+(\d+) Max:\s+(\d+) Err:\s+(\d+)`)

func (r *jmeterRunner) Run(ctx context.Context, params Params) (interface{}, error) {
	plan := optString(params.Options, "plan", "")
	if plan == "" {
		return nil, fmt.Errorf("jmeter requires a plan option")
	}

	out, err := runCommand(ctx, nil, "jmeter", "-n", "-t", plan)
	if err != nil {
		return nil, err
	}

	matches := jmeterSummaryRE.FindAllStringSubmatch(string(out), -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("no summary in jmeter output")
	}

	last := matches[len(matches)-1]

	samples, _ := strconv.ParseFloat(last[1], 64) //nolint:errcheck
	rate, _ := strconv.ParseFloat(last[2], 64)    //nolint:errcheck
	avg, _ := strconv.ParseFloat(last[3], 64)     //nolint:errcheck
	errs, _ := strconv.ParseFloat(last[6], 64)    //nolint:errcheck

	return map[string]interface{}{
		"requests": samples,
		"rate":     rate,
		"latency":  avg,
		"errors":   errs,
	}, nil
}
