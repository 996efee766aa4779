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

package topology

import "github.com/target/cloudpunch/pkg/config"

// weightedFlavor is one non-zero flavor_file entry, turned into a
// cumulative-percentage ladder in the file's declaration order.
type weightedFlavor struct {
	name       string
	cumulative float64
}

// flavorLadder strips zero-weight entries and accumulates the rest in
// declaration order, implementing the "k-th instance receives
// flavor f iff k/N*100 <= sum of weight up to f" walk.
func flavorLadder(weights config.FlavorWeights) []weightedFlavor {
	ladder := make([]weightedFlavor, 0, len(weights))

	running := 0.0

	for _, entry := range weights {
		if entry.Weight <= 0 {
			continue
		}

		running += entry.Weight
		ladder = append(ladder, weightedFlavor{name: entry.Name, cumulative: running})
	}

	return ladder
}

// AssignFlavors implements the cumulative-percentage walk:
// the k-th instance (1-based) of n total receives the first flavor f,
// in declaration order, such that k/n*100 <= the cumulative weight
// through f. Callers must have already validated the weights sum to
// [99,100] (config.Validate does this before the planner ever runs).
func AssignFlavors(weights config.FlavorWeights, n int) []string {
	ladder := flavorLadder(weights)
	if len(ladder) == 0 || n == 0 {
		return nil
	}

	assignments := make([]string, n)

	for k := 1; k <= n; k++ {
		pct := float64(k) / float64(n) * 100

		flavor := ladder[len(ladder)-1].name

		for _, entry := range ladder {
			if pct <= entry.cumulative {
				flavor = entry.name
				break
			}
		}

		assignments[k-1] = flavor
	}

	return assignments
}
