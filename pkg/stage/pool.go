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

package stage

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// runBounded fans tasks out across at most limit concurrent goroutines,
// a worker-pool so a provider poll
// blocking on one instance never starves its siblings. The first
// non-nil error cancels the group's context; tasks not yet started
// still run, but receive the cancelled context. Every task runs to
// completion and has already
// recorded their handle in the Inventory by the time they return, so
// Cleanup can reach them regardless of how the fan-out ended.
func runBounded(ctx context.Context, limit int, tasks []func(context.Context) error) error {
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(limit)

	for _, task := range tasks {
		task := task

		group.Go(func() error { return task(gctx) })
	}

	return group.Wait()
}
