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

package openstack

import (
	"context"
	"fmt"

	"github.com/gophercloud/gophercloud/openstack/imageservice/v2/images"

	"github.com/target/cloudpunch/pkg/providers"
)

type imageAPI struct{ a *Adapter }

func (i *imageAPI) ByName(ctx context.Context, name string) (*providers.ImageHandle, error) {
	if handle, ok := i.a.imageCache.Get(name); ok {
		return handle, nil
	}

	client, err := i.a.imageClient()
	if err != nil {
		return nil, err
	}

	page, err := images.List(client, images.ListOpts{Name: name, Status: images.ImageStatusActive}).AllPages()
	if err != nil {
		return nil, classify("image:"+name, err)
	}

	result, err := images.ExtractImages(page)
	if err != nil {
		return nil, classify("image:"+name, err)
	}

	if len(result) == 0 {
		return nil, &providers.Error{
			Kind:     providers.KindNotFound,
			Resource: "image:" + name,
			Err:      fmt.Errorf("no active image named %q", name),
		}
	}

	handle := &providers.ImageHandle{ID: result[0].ID, Name: result[0].Name}
	i.a.imageCache.Add(name, handle)

	return handle, nil
}
