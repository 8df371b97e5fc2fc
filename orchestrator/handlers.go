// Copyright 2025 AdmitFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orchestrator

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"admitflow/platform/shared/logger"
	"admitflow/platform/shared/types"
)

// Server is the HTTP boundary over the state machine. It translates the
// lifecycle error taxonomy into status codes; everything else is decode,
// dispatch, encode.
type Server struct {
	machine *StateMachine
	log     *logger.Logger
}

// NewServer creates the HTTP server over the state machine.
func NewServer(machine *StateMachine, log *logger.Logger) *Server {
	return &Server{machine: machine, log: log}
}

// Router wires all routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	r.HandleFunc("/api/v1/applications", s.handleCreateApplication).Methods("POST")
	r.HandleFunc("/api/v1/applications/{id}", s.handleGetApplication).Methods("GET")
	r.HandleFunc("/api/v1/applications/{id}/events", s.handleListEvents).Methods("GET")
	r.HandleFunc("/api/v1/applications/{id}/commands", s.handleCommand).Methods("POST")
	r.HandleFunc("/api/v1/artifacts/{fingerprint}", s.handleGetArtifact).Methods("GET")

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   "admitflow-orchestrator",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type createApplicationRequest struct {
	StudentID string `json:"student_id"`
}

func (s *Server) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	var req createApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.StudentID == "" {
		s.writeError(w, http.StatusBadRequest, "student_id is required")
		return
	}

	app, err := s.machine.CreateApplication(r.Context(), req.StudentID)
	if err != nil {
		s.writeLifecycleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, app)
}

func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	app, err := s.machine.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeLifecycleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, app)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	afterSeq, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	events, err := s.machine.Events(r.Context(), mux.Vars(r)["id"], afterSeq, limit)
	if err != nil {
		s.writeLifecycleError(w, err)
		return
	}
	if events == nil {
		events = []types.Event{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd types.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid command body")
		return
	}
	cmd.ApplicationID = mux.Vars(r)["id"]
	if cmd.Kind == "" {
		s.writeError(w, http.StatusBadRequest, "command kind is required")
		return
	}

	app, err := s.machine.RequestTransition(r.Context(), cmd)
	if err != nil {
		s.writeLifecycleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, app)
}

func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	artifact, err := s.machine.Artifact(r.Context(), mux.Vars(r)["fingerprint"])
	if err != nil {
		s.writeLifecycleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, artifact)
}

// writeLifecycleError maps the error taxonomy onto HTTP status codes.
func (s *Server) writeLifecycleError(w http.ResponseWriter, err error) {
	code := CodeOf(err)

	status := http.StatusInternalServerError
	switch code {
	case ErrCodeVersionConflict:
		status = http.StatusConflict
	case ErrCodeIllegalTransition:
		status = http.StatusUnprocessableEntity
	case ErrCodeNotFound:
		status = http.StatusNotFound
	case ErrCodeProviderFatal, ErrCodeProviderRetryable, ErrCodeLeaseTimeout:
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		s.log.ErrorWithErr("", "", "request failed", err, map[string]interface{}{"code": string(code)})
	}

	s.writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  string(code),
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.ErrorWithErr("", "", "failed to encode response", err, nil)
	}
}
