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

package agent

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"
)

// metadataURL is the EC2-compatible metadata endpoint OpenStack exposes
// to instances, used to discover the floating IP associated with this
// worker, if any.
const metadataURL = "http://169.254.169.254/latest/meta-data/public-ipv4"

// Identity is what the worker self-reports on registration.
type Identity struct {
	Hostname   string
	InternalIP string
	ExternalIP string
}

// DiscoverIdentity builds the worker's registration record: the kernel
// hostname, the local address used to reach the master, and the
// floating IP from the metadata service when one is attached.
func DiscoverIdentity(ctx context.Context, masterAddress string) (*Identity, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, err
	}

	// Strip any domain suffix cloud-init may have appended; the naming
	// scheme operates on the bare instance name.
	hostname = strings.Split(hostname, ".")[0]

	identity := &Identity{Hostname: hostname}

	if conn, err := net.Dial("udp", masterAddress); err == nil {
		identity.InternalIP = conn.LocalAddr().(*net.UDPAddr).IP.String()

		conn.Close()
	}

	identity.ExternalIP = fetchPublicIP(ctx)
	if identity.ExternalIP == "" {
		identity.ExternalIP = identity.InternalIP
	}

	return identity, nil
}

func fetchPublicIP(ctx context.Context) string {
	client := &http.Client{Timeout: 2 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return ""
	}

	resp, err := client.Do(req)
	if err != nil {
		return ""
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(body))
}
