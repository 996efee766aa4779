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

package driver

import (
	"context"
	"fmt"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/target/cloudpunch/pkg/config"
	"github.com/target/cloudpunch/pkg/errorkinds"
	"github.com/target/cloudpunch/pkg/model"
	"github.com/target/cloudpunch/pkg/retry"
)

const (
	// registrationPeriod is the sleep between registration barrier polls.
	registrationPeriod = 5 * time.Second

	// pollPeriod is the sleep between config/match/results polls.
	pollPeriod = time.Second
)

// RecoveryDecision is the explicit result variant the registration
// barrier resolves a stall into, replacing exception-driven control
// flow.
type RecoveryDecision int

const (
	// Proceed means the barrier closed normally.
	Proceed RecoveryDecision = iota

	// Rebuild means delete and re-create the unregistered instances,
	// then re-enter the barrier.
	Rebuild

	// Abort means stop the run; cleanup still happens.
	Abort

	// Ignore means continue with the partial fleet.
	Ignore
)

// connect polls the control plane's health endpoint until it answers.
func (d *Driver) connect(ctx context.Context) error {
	err := retry.WithContext(ctx).WithAttempts(d.cfg.RetryCount).WithPeriod(registrationPeriod).Do(func() error {
		return d.client.Health(ctx)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", errorkinds.ErrControlPlaneUnavailable, err)
	}

	return nil
}

// resolveRecoveryType maps the configured policy to a decision,
// consulting the operator for the ask policy.
func (d *Driver) resolveRecoveryType(registered, target int) (RecoveryDecision, error) {
	recoveryType := d.cfg.Recovery.Type

	if recoveryType == config.RecoveryAsk && d.prompter != nil {
		question := fmt.Sprintf("%d of %d workers registered; recover how?", registered, target)

		answer, err := d.prompter.Ask(question, "rebuild", "abort", "ignore")
		if err != nil {
			return Abort, err
		}

		recoveryType = config.RecoveryType(answer)
	}

	switch recoveryType {
	case config.RecoveryRebuild:
		return Rebuild, nil
	case config.RecoveryIgnore:
		return Ignore, nil
	default:
		return Abort, nil
	}
}

// registrationBarrier waits for every planned worker to register,
// applying the configured recovery policy when the barrier stalls.
func (d *Driver) registrationBarrier(ctx context.Context) error {
	logger := log.FromContext(ctx)

	target := d.workerTarget()
	attempts := 0

	for {
		instances, err := d.client.Instances(ctx)
		if err != nil {
			logger.V(1).Info("registration poll failed", "error", err.Error())

			instances = nil
		}

		if len(instances) >= target {
			logger.Info("registration barrier closed", "registered", len(instances))

			return nil
		}

		attempts++

		logger.Info("waiting for registration", "registered", len(instances), "target", target, "attempt", attempts)

		if d.cfg.Recovery.Enable && attempts >= d.cfg.Recovery.Retries {
			percent := float64(len(instances)) / float64(target) * 100

			if percent >= float64(d.cfg.Recovery.Threshold) {
				decision, err := d.resolveRecoveryType(len(instances), target)
				if err != nil {
					return err
				}

				switch decision {
				case Rebuild:
					if err := d.rebuild(ctx, instances); err != nil {
						return err
					}

					attempts = 0

					continue
				case Abort:
					return fmt.Errorf("%w: recovery aborted with %d/%d registered", errorkinds.ErrUserStop, len(instances), target)
				case Ignore:
					d.adoptPartialFleet(instances)

					logger.Info("proceeding with partial fleet", "registered", len(instances), "planned", target)

					return nil
				case Proceed:
				}
			}
		}

		if attempts >= d.cfg.RetryCount {
			return fmt.Errorf("%w: %d of %d workers registered", errorkinds.ErrRegistrationTimeout, len(instances), target)
		}

		if err := sleep(ctx, registrationPeriod); err != nil {
			return err
		}
	}
}

// rebuild re-stages every planned instance that never registered, per
// environment.
func (d *Driver) rebuild(ctx context.Context, instances []model.RegistrationRecord) error {
	registered := make(map[string]bool, len(instances))
	for _, rec := range instances {
		registered[rec.Hostname] = true
	}

	for _, env := range d.envs {
		executor := d.executors[env.Label]
		if executor == nil {
			continue
		}

		if err := executor.Recover(ctx, d.stageInput(env), registered); err != nil {
			return err
		}
	}

	return nil
}

// adoptPartialFleet shrinks the expected server/client counts to what
// actually registered, so results collection doesn't wait for workers
// that will never report.
func (d *Driver) adoptPartialFleet(instances []model.RegistrationRecord) {
	servers, clients := 0, 0

	for _, rec := range instances {
		switch rec.Role {
		case model.RoleServer:
			servers++
		case model.RoleClient:
			clients++
		case model.RoleMaster:
		}
	}

	d.numServers, d.numClients = servers, clients
}

// publishConfig pushes the run configuration, including any load
// balancer addresses filled in at staging, to the control plane.
func (d *Driver) publishConfig(ctx context.Context) error {
	return retry.WithContext(ctx).WithAttempts(d.cfg.RetryCount).WithPeriod(pollPeriod).Do(func() error {
		return d.client.PublishConfig(ctx, d.cfg)
	})
}

// match seals pairing.
func (d *Driver) match(ctx context.Context) error {
	return retry.WithContext(ctx).WithAttempts(d.cfg.RetryCount).WithPeriod(pollPeriod).Do(func() error {
		return d.client.Match(ctx)
	})
}

// collect polls the results sink until every expected reporter has
// checked in.
func (d *Driver) collect(ctx context.Context) ([]model.TestResult, error) {
	expected := d.cfg.ExpectedReporters(d.numServers, d.numClients)

	var results []model.TestResult

	err := retry.WithContext(ctx).WithAttempts(d.cfg.RetryCount).WithPeriod(pollPeriod).Do(func() error {
		collected, err := d.client.Results(ctx)
		if err != nil {
			return err
		}

		if len(collected) < expected {
			return fmt.Errorf("%d of %d reports received", len(collected), expected)
		}

		results = collected

		return nil
	})
	if err != nil {
		return nil, err
	}

	return results, nil
}

// reuse offers another test cycle against the staged environment.
// Returns true to run again.
func (d *Driver) reuse(ctx context.Context) (bool, error) {
	if !d.options.ReuseMode || d.prompter == nil {
		return false, nil
	}

	logger := log.FromContext(ctx)

	answer, err := d.prompter.Ask("run another test against this environment?", "same", "different", "abort")
	if err != nil {
		return false, err
	}

	switch answer {
	case "same":
	case "different":
		path, err := d.prompter.Ask("path to the new configuration file?")
		if err != nil {
			return false, err
		}

		fresh, err := config.Load(path)
		if err != nil {
			return false, err
		}

		// The staged topology, and therefore the staged load balancer
		// addresses, carries over to the new test mix.
		fresh.LoadBalancers = d.cfg.LoadBalancers
		d.cfg = fresh
	default:
		logger.Info("operator ended the run at the reuse prompt")

		return false, nil
	}

	if err := retry.WithContext(ctx).WithAttempts(d.cfg.RetryCount).WithPeriod(pollPeriod).Do(func() error {
		return d.client.ResetStatus(ctx)
	}); err != nil {
		return false, err
	}

	return true, d.publishConfig(ctx)
}

func sleep(ctx context.Context, period time.Duration) error {
	t := time.NewTimer(period)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", errorkinds.ErrInterrupt, ctx.Err())
	case <-t.C:
		return nil
	}
}
