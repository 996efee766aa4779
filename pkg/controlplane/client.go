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

package controlplane

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/target/cloudpunch/pkg/errorkinds"
	"github.com/target/cloudpunch/pkg/model"
)

// callTimeout bounds every individual HTTP call.
const callTimeout = 3 * time.Second

// Client is the Driver's and worker agent's view of the control plane.
// Every method is a single attempt; callers own the retry policy, which
// differs per barrier (5s registration polls, 1s everything else).
type Client struct {
	base string
	http *http.Client
}

// NewClient returns a client for the control plane at address
// (host:port, no scheme). insecure sets InsecureSkipVerify on the
// transport; requests go to an http:// URL, so no TLS is negotiated.
func NewClient(address string, insecure bool) *Client {
	transport := &http.Transport{}
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &Client{
		base: "http://" + address,
		http: &http.Client{Timeout: callTimeout, Transport: transport},
	}
}

func (c *Client) do(ctx context.Context, method, path string, request, response interface{}) error {
	var body io.Reader

	if request != nil {
		payload, err := json.Marshal(request)
		if err != nil {
			return err
		}

		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}

	if request != nil {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", errorkinds.ErrControlPlaneUnavailable, err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var failure errorResponse

		if err := json.NewDecoder(resp.Body).Decode(&failure); err == nil && failure.Error != "" {
			return fmt.Errorf("%s %s: %d: %s", method, path, resp.StatusCode, failure.Error)
		}

		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if response == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(response)
}

// Health probes GET /api/system/health once.
func (c *Client) Health(ctx context.Context) error {
	var status statusResponse

	return c.do(ctx, http.MethodGet, "/api/system/health", nil, &status)
}

// Register posts the worker's identity.
func (c *Client) Register(ctx context.Context, rec model.RegistrationRecord) error {
	return c.do(ctx, http.MethodPost, "/api/register", rec, nil)
}

// Instances lists every registered worker.
func (c *Client) Instances(ctx context.Context) ([]model.RegistrationRecord, error) {
	var resp registerResponse

	if err := c.do(ctx, http.MethodGet, "/api/register", nil, &resp); err != nil {
		return nil, err
	}

	return resp.Instances, nil
}

// PublishConfig stores the run configuration on the control plane.
func (c *Client) PublishConfig(ctx context.Context, cfg interface{}) error {
	return c.do(ctx, http.MethodPost, "/api/config", cfg, nil)
}

// FetchConfig retrieves the stored configuration into the given value.
func (c *Client) FetchConfig(ctx context.Context, into interface{}) error {
	return c.do(ctx, http.MethodGet, "/api/config", nil, into)
}

// Match seals pairing, latching the MATCHED gate.
func (c *Client) Match(ctx context.Context) error {
	var status statusResponse

	return c.do(ctx, http.MethodGet, "/api/test/match", nil, &status)
}

// AskStatus asks permission to start; true means go.
func (c *Client) AskStatus(ctx context.Context, hostname string) (bool, error) {
	var status statusResponse

	if err := c.do(ctx, http.MethodPost, "/api/test/status", hostnameRequest{Hostname: hostname}, &status); err != nil {
		return false, err
	}

	return status.Status == "go", nil
}

// ResetStatus clears RUNNING and RESULTS for a reuse cycle.
func (c *Client) ResetStatus(ctx context.Context) error {
	var status statusResponse

	return c.do(ctx, http.MethodDelete, "/api/test/status", nil, &status)
}

// FetchRunConfig retrieves the enriched per-worker configuration.
func (c *Client) FetchRunConfig(ctx context.Context, hostname string, into interface{}) error {
	return c.do(ctx, http.MethodPost, "/api/test/run", hostnameRequest{Hostname: hostname}, into)
}

// Results lists every received report.
func (c *Client) Results(ctx context.Context) ([]model.TestResult, error) {
	var results []model.TestResult

	if err := c.do(ctx, http.MethodGet, "/api/test/results", nil, &results); err != nil {
		return nil, err
	}

	return results, nil
}

// PostResults submits a worker's aggregate report.
func (c *Client) PostResults(ctx context.Context, result model.TestResult) error {
	return c.do(ctx, http.MethodPost, "/api/test/results", result, nil)
}
