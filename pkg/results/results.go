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

// Package results types the payloads workers report and aggregates them
// across the fleet. A test's value is either a summary (one object of
// metrics) or an overtime series (an array of samples); rendering to
// table/CSV/graph is out of scope, but the Driver persists these and
// the post subcommand needs typed arithmetic over them.
package results

import (
	"fmt"
	"sort"

	"github.com/target/cloudpunch/pkg/model"
)

// Stat is the aggregate of one metric across every reporting worker.
type Stat struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	Total float64 `json:"total"`
}

// TestAggregate is one test's fleet-wide statistics, one Stat per
// numeric metric the workers reported.
type TestAggregate struct {
	Test    string          `json:"test"`
	Workers int             `json:"workers"`
	Stats   map[string]Stat `json:"stats"`
}

// numericMetrics flattens one worker's value for a test into metric ->
// sample. A summary object contributes its numeric fields directly; an
// overtime array contributes the per-metric mean of its samples, which
// is what the fleet-wide statistics are defined over.
func numericMetrics(value interface{}) map[string]float64 {
	switch v := value.(type) {
	case map[string]interface{}:
		out := map[string]float64{}

		for key, raw := range v {
			if f, ok := toFloat(raw); ok {
				out[key] = f
			}
		}

		return out
	case []interface{}:
		sums := map[string]float64{}
		counts := map[string]int{}

		for _, sample := range v {
			for key, f := range numericMetrics(sample) {
				sums[key] += f
				counts[key]++
			}
		}

		out := map[string]float64{}

		for key, sum := range sums {
			out[key] = sum / float64(counts[key])
		}

		return out
	default:
		return nil
	}
}

func toFloat(raw interface{}) (float64, bool) {
	switch f := raw.(type) {
	case float64:
		return f, true
	case int:
		return float64(f), true
	default:
		return 0, false
	}
}

// Aggregate folds every worker's report into per-test fleet statistics.
// Workers whose value for a test is a bare string (a captured workload
// failure) are counted in Workers but contribute no
// metrics.
func Aggregate(reports []model.TestResult) []TestAggregate {
	type accumulator struct {
		workers int
		samples map[string][]float64
	}

	byTest := map[string]*accumulator{}

	for _, report := range reports {
		for test, value := range report.Results {
			acc := byTest[test]
			if acc == nil {
				acc = &accumulator{samples: map[string][]float64{}}
				byTest[test] = acc
			}

			acc.workers++

			for metric, sample := range numericMetrics(value) {
				acc.samples[metric] = append(acc.samples[metric], sample)
			}
		}
	}

	tests := make([]string, 0, len(byTest))
	for test := range byTest {
		tests = append(tests, test)
	}

	sort.Strings(tests)

	out := make([]TestAggregate, 0, len(tests))

	for _, test := range tests {
		acc := byTest[test]
		agg := TestAggregate{Test: test, Workers: acc.workers, Stats: map[string]Stat{}}

		for metric, samples := range acc.samples {
			stat := Stat{Min: samples[0], Max: samples[0]}

			for _, s := range samples {
				if s < stat.Min {
					stat.Min = s
				}

				if s > stat.Max {
					stat.Max = s
				}

				stat.Total += s
			}

			stat.Mean = stat.Total / float64(len(samples))
			agg.Stats[metric] = stat
		}

		out = append(out, agg)
	}

	return out
}

// Summarize renders one line per test/metric, the minimal human-readable
// view the Driver prints when no results file is requested.
func Summarize(aggregates []TestAggregate) []string {
	var lines []string

	for _, agg := range aggregates {
		metrics := make([]string, 0, len(agg.Stats))
		for metric := range agg.Stats {
			metrics = append(metrics, metric)
		}

		sort.Strings(metrics)

		for _, metric := range metrics {
			stat := agg.Stats[metric]
			lines = append(lines, fmt.Sprintf("%s %s: min %.2f max %.2f mean %.2f total %.2f (%d workers)", agg.Test, metric, stat.Min, stat.Max, stat.Mean, stat.Total, agg.Workers))
		}
	}

	return lines
}
