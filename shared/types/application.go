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

package types

import (
	"encoding/json"
	"time"
)

// Application is the root aggregate of the lifecycle core. The version
// counter strictly increases on every accepted state transition and on
// every accepted artifact recording; callers must present the current
// version with each command (optimistic concurrency).
type Application struct {
	// ID is the unique application identifier.
	ID string `json:"id"`

	// StudentID references the owning student (managed by the CRUD layer).
	StudentID string `json:"student_id"`

	// State is the current lifecycle state.
	State ApplicationState `json:"state"`

	// Version is the optimistic concurrency counter.
	Version int64 `json:"version"`

	// Artifacts maps each agent type to the fingerprint of its latest
	// accepted artifact. The Application never holds artifact payloads.
	Artifacts map[AgentType]string `json:"artifacts"`

	// BlockedFrom is the state the application was in when it became
	// Blocked. Empty unless State == StateBlocked.
	BlockedFrom ApplicationState `json:"blocked_from,omitempty"`

	// BlockedAgent is the agent type whose job exhausted its retries.
	BlockedAgent AgentType `json:"blocked_agent,omitempty"`

	// BlockedReason is a summary of the last error.
	BlockedReason string `json:"blocked_reason,omitempty"`

	// BlockedCommand is the command that blocked, re-dispatched on Override.
	BlockedCommand CommandKind `json:"blocked_command,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the application.
func (a Application) Clone() Application {
	out := a
	out.Artifacts = make(map[AgentType]string, len(a.Artifacts))
	for k, v := range a.Artifacts {
		out.Artifacts[k] = v
	}
	return out
}

// JobStatus represents the status of an orchestrated unit of work.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// IsTerminal returns true once a job can no longer change status.
// A retry creates a new attempt under the same job, never a new job.
func (s JobStatus) IsTerminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobCancelled
}

// Job is a unit of orchestrated work: one agent invocation for one
// application, including its automatic retries.
type Job struct {
	ID            string     `json:"id"`
	ApplicationID string     `json:"application_id"`
	AgentType     AgentType  `json:"agent_type"`
	Fingerprint   string     `json:"fingerprint"`
	Status        JobStatus  `json:"status"`
	Attempts      int        `json:"attempts"`
	LastError     string     `json:"last_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// Artifact is the immutable output of a successful agent invocation,
// keyed by the fingerprint of its normalized input. Applications hold
// only the fingerprint, so identical inputs share one artifact.
type Artifact struct {
	Fingerprint string          `json:"fingerprint"`
	AgentType   AgentType       `json:"agent_type"`
	Payload     json.RawMessage `json:"payload"`

	// Checksum is the hex sha256 of Payload, verified on every read.
	Checksum string `json:"checksum"`

	CreatedAt time.Time `json:"created_at"`
}

// EventKind classifies an audit trail entry.
type EventKind string

const (
	EventStateChanged EventKind = "state_changed"
	EventJobStarted   EventKind = "job_started"
	EventJobSucceeded EventKind = "job_succeeded"
	EventJobFailed    EventKind = "job_failed"
	EventJobRetried   EventKind = "job_retried"
)

// Event is an append-only audit record. Events for one application are
// strictly ordered by Seq and are never mutated or deleted.
type Event struct {
	ID            string          `json:"id"`
	ApplicationID string          `json:"application_id"`
	Seq           int64           `json:"seq"`
	Kind          EventKind       `json:"kind"`
	Payload       json.RawMessage `json:"payload"`
	Timestamp     time.Time       `json:"timestamp"`
}

// StateChangedPayload is the payload of an EventStateChanged event.
type StateChangedPayload struct {
	From    ApplicationState `json:"from"`
	To      ApplicationState `json:"to"`
	Version int64            `json:"version"`
	Command CommandKind      `json:"command,omitempty"`
	Reason  string           `json:"reason,omitempty"`
}

// JobStartedPayload is the payload of an EventJobStarted event.
type JobStartedPayload struct {
	JobID       string    `json:"job_id"`
	AgentType   AgentType `json:"agent_type"`
	Fingerprint string    `json:"fingerprint"`
	Attempt     int       `json:"attempt"`
}

// JobRetriedPayload is the payload of an EventJobRetried event.
type JobRetriedPayload struct {
	JobID     string    `json:"job_id"`
	AgentType AgentType `json:"agent_type"`
	Attempt   int       `json:"attempt"`
	Error     string    `json:"error"`
	BackoffMS int64     `json:"backoff_ms"`
}

// JobSucceededPayload is the payload of an EventJobSucceeded event.
// Version is the application version at which the artifact reference
// was committed, so replay reconstructs the artifact set exactly.
type JobSucceededPayload struct {
	JobID       string    `json:"job_id"`
	AgentType   AgentType `json:"agent_type"`
	Fingerprint string    `json:"fingerprint"`
	Attempts    int       `json:"attempts"`
	Version     int64     `json:"version"`
	CacheHit    bool      `json:"cache_hit,omitempty"`
}

// JobFailedPayload is the payload of an EventJobFailed event.
type JobFailedPayload struct {
	JobID     string    `json:"job_id"`
	AgentType AgentType `json:"agent_type"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error"`
	Code      string    `json:"code"`
}

// Lease is the concurrency guard's record of an in-flight job for one
// (application, agent type) pair. It exists only while the job runs and
// expires automatically so a crashed worker cannot deadlock the pair.
type Lease struct {
	ApplicationID string    `json:"application_id"`
	AgentType     AgentType `json:"agent_type"`
	JobID         string    `json:"job_id"`
	HolderToken   string    `json:"holder_token"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Key returns the guard key for the (application, agent type) pair.
func (l Lease) Key() string {
	return LeaseKey(l.ApplicationID, l.AgentType)
}

// LeaseKey builds the guard key for an (application, agent type) pair.
func LeaseKey(applicationID string, agent AgentType) string {
	return applicationID + "/" + string(agent)
}
