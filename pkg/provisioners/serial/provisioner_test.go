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

package serial_test

import (
	"context"
	"errors"
	"flag"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/target/cloudpunch/pkg/provisioners"
	"github.com/target/cloudpunch/pkg/provisioners/mock"
	"github.com/target/cloudpunch/pkg/provisioners/serial"

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

var errStage = errors.New("staging failed")

// TestSerialProvision expects the serial provisioner to succeed when
// both members do.
func TestSerialProvision(t *testing.T) {
	t.Parallel()

	c := gomock.NewController(t)
	defer c.Finish()

	ctx := context.Background()

	p := mock.NewMockProvisioner(c)
	p.EXPECT().Provision(ctx).Return(nil).Times(2)

	assert.NoError(t, serial.New("test", p, p).Provision(ctx))
}

// TestSerialProvisionFailFirst ensures only the first member is called
// when it fails, and the error propagates.
func TestSerialProvisionFailFirst(t *testing.T) {
	t.Parallel()

	c := gomock.NewController(t)
	defer c.Finish()

	ctx := context.Background()

	p := mock.NewMockProvisioner(c)
	p.EXPECT().Provision(ctx).Return(errStage)
	p.EXPECT().ProvisionerName().Return("")

	assert.ErrorIs(t, serial.New("test", p, p).Provision(ctx), errStage)
}

// TestSerialDeprovision expects reverse-order tear-down of every member.
func TestSerialDeprovision(t *testing.T) {
	t.Parallel()

	c := gomock.NewController(t)
	defer c.Finish()

	ctx := context.Background()

	first := mock.NewMockProvisioner(c)
	second := mock.NewMockProvisioner(c)

	gomock.InOrder(
		second.EXPECT().Deprovision(ctx).Return(nil),
		first.EXPECT().Deprovision(ctx).Return(nil),
	)

	assert.NoError(t, serial.New("test", first, second).Deprovision(ctx))
}

// TestSerialDeprovisionContinuesOnError ensures a failing member doesn't
// stop the remaining members from being torn down, and the aggregate
// error is reported.
func TestSerialDeprovisionContinuesOnError(t *testing.T) {
	t.Parallel()

	c := gomock.NewController(t)
	defer c.Finish()

	ctx := context.Background()

	first := mock.NewMockProvisioner(c)
	second := mock.NewMockProvisioner(c)

	second.EXPECT().Deprovision(ctx).Return(errStage)
	second.EXPECT().ProvisionerName().Return("second")
	first.EXPECT().Deprovision(ctx).Return(nil)

	assert.ErrorIs(t, serial.New("test", first, second).Deprovision(ctx), provisioners.ErrDeprovision)
}
