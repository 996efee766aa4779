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

package openstack

import (
	"github.com/gophercloud/gophercloud"

	"github.com/target/cloudpunch/pkg/providers"
)

// classify turns a gophercloud error into a providers.Error with a
// Kind the rest of CloudPunch can act on without importing gophercloud.
func classify(resource string, err error) error {
	if err == nil {
		return nil
	}

	kind := providers.KindUnknown

	switch e := err.(type) { //nolint:errorlint
	case gophercloud.ErrDefault404:
		kind = providers.KindNotFound
	case gophercloud.ErrDefault403:
		kind = providers.KindForbidden
	case gophercloud.ErrDefault409:
		kind = providers.KindConflict
	case gophercloud.ErrDefault400:
		kind = providers.KindPermanent
	case gophercloud.ErrDefault500, gophercloud.ErrDefault503, gophercloud.ErrDefault429:
		kind = providers.KindTransient
	case gophercloud.ErrTimeOut:
		kind = providers.KindTransient
	default:
		if sce, ok := e.(gophercloud.StatusCodeError); ok && sce.GetStatusCode() == 422 {
			kind = providers.KindPermanent
		}
	}

	return &providers.Error{Kind: kind, Resource: resource, Err: err}
}
