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
	"encoding/json"
	"net/http"

	"github.com/target/cloudpunch/pkg/model"
	"github.com/target/cloudpunch/pkg/topology"
)

// Handler implements one method per control plane endpoint against a
// shared Store.
type Handler struct {
	store *Store
}

// NewHandler returns a handler over store.
func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

// hostnameRequest is the {hostname} payload /test/status and /test/run
// take.
type hostnameRequest struct {
	Hostname string `json:"hostname"`
}

func decodeJSON(r *http.Request, into interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return HTTPBadRequestWithError(err, "malformed request body")
	}

	return nil
}

// Health implements GET /api/system/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSONResponse(w, r, http.StatusOK, statusResponse{Status: "OK"})
}

// registerResponse is GET /api/register's payload.
type registerResponse struct {
	Count     int                        `json:"count"`
	Instances []model.RegistrationRecord `json:"instances"`
}

// ListInstances implements GET /api/register.
func (h *Handler) ListInstances(w http.ResponseWriter, r *http.Request) {
	instances := h.store.Instances()

	WriteJSONResponse(w, r, http.StatusOK, registerResponse{Count: len(instances), Instances: instances})
}

// Register implements POST /api/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var rec model.RegistrationRecord

	if err := decodeJSON(r, &rec); err != nil {
		HandleError(w, r, err)
		return
	}

	if rec.Hostname == "" {
		HandleError(w, r, HTTPBadRequest("hostname is required"))
		return
	}

	h.store.Register(rec)

	WriteJSONResponse(w, r, http.StatusOK, statusResponse{Status: "registered"})
}

// GetConfig implements GET /api/config. An empty object, not an error,
// signals that no config was published yet so workers can poll it.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	raw := h.store.Config()
	if raw == nil {
		raw = json.RawMessage("{}")
	}

	w.Header().Add("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)

	_, _ = w.Write(raw) //nolint:errcheck
}

// SetConfig implements POST /api/config.
func (h *Handler) SetConfig(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage

	if err := decodeJSON(r, &raw); err != nil {
		HandleError(w, r, err)
		return
	}

	h.store.SetConfig(raw)

	WriteJSONResponse(w, r, http.StatusOK, statusResponse{Status: "saved"})
}

// Match implements GET /api/test/match: it latches MATCHED, after which
// /test/status starts answering go.
func (h *Handler) Match(w http.ResponseWriter, r *http.Request) {
	h.store.Match()

	WriteJSONResponse(w, r, http.StatusOK, statusResponse{Status: "matched"})
}

// Status implements POST /api/test/status: the start gate. A worker
// receives go exactly once per run; a second ask before a reset holds.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	var req hostnameRequest

	if err := decodeJSON(r, &req); err != nil {
		HandleError(w, r, err)
		return
	}

	if req.Hostname == "" {
		HandleError(w, r, HTTPBadRequest("hostname is required"))
		return
	}

	status := "hold"
	if h.store.ClaimStart(req.Hostname) {
		status = "go"
	}

	WriteJSONResponse(w, r, http.StatusOK, statusResponse{Status: status})
}

// ResetStatus implements DELETE /api/test/status: clears RUNNING and
// RESULTS while preserving INSTANCES and CONFIG, enabling reuse mode.
func (h *Handler) ResetStatus(w http.ResponseWriter, r *http.Request) {
	h.store.Reset()

	WriteJSONResponse(w, r, http.StatusOK, statusResponse{Status: "deleted"})
}

// runConfigView is the subset of the published configuration the
// match_ip derivation needs.
type runConfigView struct {
	NetworkMode      model.NetworkMode `json:"network_mode"`
	ServerClientMode bool              `json:"server_client_mode"`
	LoadBalancers    *struct {
		Server []string `json:"server"`
		Client []string `json:"client"`
	} `json:"loadbalancers"`
}

// Run implements POST /api/test/run: it returns the stored config
// enriched with the caller's match_ip.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	var req hostnameRequest

	if err := decodeJSON(r, &req); err != nil {
		HandleError(w, r, err)
		return
	}

	raw := h.store.Config()
	if raw == nil {
		HandleError(w, r, HTTPNotFound("no configuration published"))
		return
	}

	var enriched map[string]interface{}

	if err := json.Unmarshal(raw, &enriched); err != nil {
		HandleError(w, r, HTTPInternalServerError("stored configuration is not an object"))
		return
	}

	matchIP, err := h.matchIP(raw, req.Hostname)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	if matchIP != "" {
		enriched["match_ip"] = matchIP
	}

	WriteJSONResponse(w, r, http.StatusOK, enriched)
}

func peerRole(role model.Role) model.Role {
	if role == model.RoleServer {
		return model.RoleClient
	}

	return model.RoleServer
}

// matchIP derives the caller's peer address: a load-balancer VIP for the
// peer role on the caller's network index if one is configured, the
// paired instance's address otherwise. Pairing is deterministic by the
// (router, network, instance) tuple recovered from the hostname, so
// server k and client k always match regardless of registration arrival
// order. Hostname parsing is the single source
// of truth; no separate counter exists.
func (h *Handler) matchIP(raw json.RawMessage, hostname string) (string, error) {
	parsed, err := topology.ParseName(hostname)
	if err != nil {
		return "", HTTPBadRequestWithError(err, "unparseable hostname")
	}

	if parsed.IsMaster {
		return "", HTTPBadRequest("master has no peer")
	}

	var view runConfigView

	if err := json.Unmarshal(raw, &view); err != nil {
		return "", HTTPInternalServerError("stored configuration is not an object")
	}

	peer := peerRole(parsed.Role)

	if view.LoadBalancers != nil {
		addresses := view.LoadBalancers.Server
		if peer == model.RoleClient {
			addresses = view.LoadBalancers.Client
		}

		if idx := parsed.Network - 1; idx >= 0 && idx < len(addresses) {
			return addresses[idx], nil
		}
	}

	if !view.ServerClientMode {
		return "", nil
	}

	for _, rec := range h.store.Instances() {
		candidate, err := topology.ParseName(rec.Hostname)
		if err != nil || candidate.IsMaster || candidate.Role != peer {
			continue
		}

		if candidate.Router == parsed.Router && candidate.Network == parsed.Network && candidate.Instance == parsed.Instance {
			if view.NetworkMode == model.ModeFull {
				return rec.ExternalIP, nil
			}

			return rec.InternalIP, nil
		}
	}

	return "", HTTPNotFound("no paired instance registered", "hostname", hostname)
}

// ListResults implements GET /api/test/results.
func (h *Handler) ListResults(w http.ResponseWriter, r *http.Request) {
	results := h.store.Results()
	if results == nil {
		results = []model.TestResult{}
	}

	WriteJSONResponse(w, r, http.StatusOK, results)
}

// AddResult implements POST /api/test/results.
func (h *Handler) AddResult(w http.ResponseWriter, r *http.Request) {
	var result model.TestResult

	if err := decodeJSON(r, &result); err != nil {
		HandleError(w, r, err)
		return
	}

	if result.Hostname == "" {
		HandleError(w, r, HTTPBadRequest("hostname is required"))
		return
	}

	h.store.AddResult(result)

	WriteJSONResponse(w, r, http.StatusOK, statusResponse{Status: "saved"})
}
