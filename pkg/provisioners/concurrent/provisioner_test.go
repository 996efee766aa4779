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

package concurrent_test

import (
	"context"
	"errors"
	"flag"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/target/cloudpunch/pkg/provisioners/concurrent"
	"github.com/target/cloudpunch/pkg/provisioners/mock"

	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

func TestMain(m *testing.M) {
	var debug bool

	flag.BoolVar(&debug, "debug", false, "Enables debug logging")
	flag.Parse()

	if debug {
		log.SetLogger(zap.New(zap.WriteTo(os.Stdout)))
	}

	m.Run()
}

var errWorkload = errors.New("workload failed")

// TestConcurrentProvision expects every member to run when none fail.
func TestConcurrentProvision(t *testing.T) {
	t.Parallel()

	c := gomock.NewController(t)
	defer c.Finish()

	ctx := context.Background()

	p := mock.NewMockProvisioner(c)
	p.EXPECT().Provision(gomock.Any()).Return(nil).Times(2)

	assert.NoError(t, concurrent.New("test", p, p).Provision(ctx))
}

// TestConcurrentProvisionError expects the group to surface a member's
// error after every member has been started.
func TestConcurrentProvisionError(t *testing.T) {
	t.Parallel()

	c := gomock.NewController(t)
	defer c.Finish()

	ctx := context.Background()

	good := mock.NewMockProvisioner(c)
	good.EXPECT().Provision(gomock.Any()).Return(nil)

	bad := mock.NewMockProvisioner(c)
	bad.EXPECT().Provision(gomock.Any()).Return(errWorkload)

	assert.ErrorIs(t, concurrent.New("test", good, bad).Provision(ctx), errWorkload)
}

// TestConcurrentDeprovision expects every member to be torn down.
func TestConcurrentDeprovision(t *testing.T) {
	t.Parallel()

	c := gomock.NewController(t)
	defer c.Finish()

	ctx := context.Background()

	p := mock.NewMockProvisioner(c)
	p.EXPECT().Deprovision(gomock.Any()).Return(nil).Times(2)

	assert.NoError(t, concurrent.New("test", p, p).Deprovision(ctx))
}
