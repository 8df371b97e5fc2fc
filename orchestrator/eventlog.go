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
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"admitflow/platform/shared/logger"
	"admitflow/platform/shared/types"
)

// EventLog writes the append-only audit trail. Events are appended
// synchronously with the state or version change they describe, after the
// change is durably committed, so the trail never references an
// uncommitted version.
type EventLog struct {
	store EventStore
	log   *logger.Logger
}

// NewEventLog creates the event log over the given store.
func NewEventLog(store EventStore, log *logger.Logger) *EventLog {
	return &EventLog{store: store, log: log}
}

// Record marshals the payload and appends the event. The store assigns the
// per-application sequence number.
func (l *EventLog) Record(ctx context.Context, applicationID string, kind types.EventKind, payload any) (types.Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return types.Event{}, wrapError(ErrCodeInternal, err, "failed to encode %s event", kind)
	}

	event := types.Event{
		ID:            uuid.NewString(),
		ApplicationID: applicationID,
		Kind:          kind,
		Payload:       raw,
		Timestamp:     time.Now().UTC(),
	}

	stored, err := l.store.Append(ctx, event)
	if err != nil {
		return types.Event{}, wrapError(ErrCodeInternal, err, "failed to append %s event", kind)
	}

	l.log.Debug(applicationID, "", "event appended", map[string]interface{}{
		"kind": string(kind),
		"seq":  stored.Seq,
	})
	return stored, nil
}

// List returns up to limit events with Seq > afterSeq.
func (l *EventLog) List(ctx context.Context, applicationID string, afterSeq int64, limit int) ([]types.Event, error) {
	return l.store.List(ctx, applicationID, afterSeq, limit)
}

// ReplayState is the aggregate view reconstructed from an event stream.
type ReplayState struct {
	State     types.ApplicationState
	Version   int64
	Artifacts map[types.AgentType]string
}

// Replay folds an ordered event stream into (state, version, artifact set).
// Applications are created in Draft at version 1; StateChanged moves state
// and version, JobSucceeded records an artifact reference at the version it
// was committed.
func Replay(events []types.Event) (ReplayState, error) {
	out := ReplayState{
		State:     types.StateDraft,
		Version:   1,
		Artifacts: make(map[types.AgentType]string),
	}

	for _, event := range events {
		switch event.Kind {
		case types.EventStateChanged:
			var p types.StateChangedPayload
			if err := json.Unmarshal(event.Payload, &p); err != nil {
				return out, wrapError(ErrCodeInternal, err, "corrupt state_changed payload at seq %d", event.Seq)
			}
			out.State = p.To
			out.Version = p.Version
		case types.EventJobSucceeded:
			var p types.JobSucceededPayload
			if err := json.Unmarshal(event.Payload, &p); err != nil {
				return out, wrapError(ErrCodeInternal, err, "corrupt job_succeeded payload at seq %d", event.Seq)
			}
			out.Artifacts[p.AgentType] = p.Fingerprint
			if p.Version > out.Version {
				out.Version = p.Version
			}
		}
	}

	return out, nil
}
