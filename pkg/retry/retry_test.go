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

package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/target/cloudpunch/pkg/retry"
)

var errFlaky = errors.New("flaky")

func TestDoSucceedsEventually(t *testing.T) {
	t.Parallel()

	calls := 0

	err := retry.WithAttempts(5).WithPeriod(time.Millisecond).Do(func() error {
		calls++
		if calls < 3 {
			return errFlaky
		}

		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0

	err := retry.WithAttempts(3).WithPeriod(time.Millisecond).Do(func() error {
		calls++
		return errFlaky
	})

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
}

// TestPermanentShortCircuits checks a permanent error skips the
// remaining attempt budget and unwraps to the original error.
func TestPermanentShortCircuits(t *testing.T) {
	t.Parallel()

	calls := 0

	err := retry.WithAttempts(10).WithPeriod(time.Millisecond).Do(func() error {
		calls++
		return retry.Permanent(errFlaky)
	})

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
}

func TestContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retry.WithContext(ctx).WithPeriod(time.Millisecond).Do(func() error {
		return errFlaky
	})

	assert.ErrorIs(t, err, context.Canceled)
}
