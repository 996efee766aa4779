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

// Package errorkinds holds the cross-cutting error taxonomy. Every
// fatal path in the Driver, Staging Executor, Cleanup
// Engine, and Control Plane client wraps one of these sentinels so a
// caller can branch on kind with errors.Is instead of string matching.
package errorkinds

import "errors"

var (
	// ErrConfiguration means an invalid config/env/credentials file was
	// supplied; fatal, surfaced before any resource is created.
	ErrConfiguration = errors.New("configuration error")

	// ErrResourceCreation means the provider refused, timed out, or
	// reported an error state while staging; fatal to the run, triggers
	// Cleanup.
	ErrResourceCreation = errors.New("resource creation error")

	// ErrResourceDeletion is per-resource and demoted to a warning by
	// the Cleanup Engine; the failing handle is persisted as a leftover.
	ErrResourceDeletion = errors.New("resource deletion error")

	// ErrControlPlaneUnavailable is transient and retried up to
	// retry_count; terminal once the budget is exhausted.
	ErrControlPlaneUnavailable = errors.New("control plane unavailable")

	// ErrRegistrationTimeout means some workers never registered within
	// the barrier's attempt budget; triggers Recovery if enabled,
	// otherwise terminal.
	ErrRegistrationTimeout = errors.New("registration timeout")

	// ErrUserStop is raised by a recovery abort; Cleanup still runs and
	// the command returns it like any other error. An "abort" answer at
	// the reuse prompt returns no error: the Driver logs it at INFO and
	// the run ends through Cleanup.
	ErrUserStop = errors.New("user requested stop")

	// ErrInterrupt is raised on SIGINT/SIGTERM; Cleanup runs, the
	// process exits non-zero.
	ErrInterrupt = errors.New("interrupted")
)
