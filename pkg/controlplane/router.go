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
	"net/http"

	chi "github.com/go-chi/chi/v5"
)

// NotFound handles any unmatched path.
func NotFound(w http.ResponseWriter, r *http.Request) {
	HTTPNotFound("not found").Write(w, r)
}

// MethodNotAllowed handles a matched path with the wrong verb.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	newHTTPError(http.StatusMethodNotAllowed, "method not allowed").Write(w, r)
}

// NewRouter wires every control plane endpoint onto a chi
// router with the logging middleware applied pre-routing.
func NewRouter(handler *Handler) http.Handler {
	router := chi.NewRouter()
	router.Use(Logger)
	router.NotFound(http.HandlerFunc(NotFound))
	router.MethodNotAllowed(http.HandlerFunc(MethodNotAllowed))

	router.Get("/api/system/health", handler.Health)
	router.Get("/api/register", handler.ListInstances)
	router.Post("/api/register", handler.Register)
	router.Get("/api/config", handler.GetConfig)
	router.Post("/api/config", handler.SetConfig)
	router.Get("/api/test/match", handler.Match)
	router.Post("/api/test/status", handler.Status)
	router.Delete("/api/test/status", handler.ResetStatus)
	router.Post("/api/test/run", handler.Run)
	router.Get("/api/test/results", handler.ListResults)
	router.Post("/api/test/results", handler.AddResult)

	return router
}
