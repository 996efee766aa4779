/*
Copyright 2022-2024 EscherCloud, CloudPunch Authors.

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

package serial

import (
	"context"
	"fmt"

	"github.com/target/cloudpunch/pkg/provisioners"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

// Provisioner runs its members one after another, and tears them down
// in reverse. The Driver uses this to express "stage env1, then env2"
// and the worker agent uses it for test_mode=list.
type Provisioner struct {
	// name is the group name.
	name string

	// provisioners are the members to provision in order.
	provisioners []provisioners.Provisioner
}

// New returns a serial group with the given name and members.
func New(name string, p ...provisioners.Provisioner) *Provisioner {
	return &Provisioner{
		name:         name,
		provisioners: p,
	}
}

// Ensure the Provisioner interface is implemented.
var _ provisioners.Provisioner = &Provisioner{}

// ProvisionerName implements the Provisioner interface.
func (p *Provisioner) ProvisionerName() string {
	return p.name
}

// Provision implements the Provisioner interface.
func (p *Provisioner) Provision(ctx context.Context) error {
	log := log.FromContext(ctx)

	log.Info("provisioning serial group", "group", p.name)

	for _, provisioner := range p.provisioners {
		if err := provisioner.Provision(ctx); err != nil {
			log.Info("serial group member failed", "group", p.name, "member", provisioner.ProvisionerName())

			return err
		}
	}

	log.Info("serial group provisioned", "group", p.name)

	return nil
}

// Deprovision implements the Provisioner interface.
// Note: things happen in the reverse order to provisioning, this assumes
// that the same code that generates the provisioner, generates the
// deprovisioner and ordering constraints matter. Unlike Provision, every
// member is attempted even when an earlier one fails, so a tear-down
// error in one environment never strands resources in another.
func (p *Provisioner) Deprovision(ctx context.Context) error {
	log := log.FromContext(ctx)

	log.Info("deprovisioning serial group", "group", p.name)

	var failed []string

	for i := range p.provisioners {
		provisioner := p.provisioners[len(p.provisioners)-(i+1)]

		if err := provisioner.Deprovision(ctx); err != nil {
			member := provisioner.ProvisionerName()

			log.Error(err, "serial group member deprovision failed", "group", p.name, "member", member)

			failed = append(failed, member)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%w: %v", provisioners.ErrDeprovision, failed)
	}

	log.Info("serial group deprovisioned", "group", p.name)

	return nil
}
