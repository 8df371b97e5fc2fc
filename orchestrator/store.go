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
	"sync"
	"time"

	"admitflow/platform/shared/types"
)

// ApplicationStore persists the root aggregate. Updates go through
// CompareAndSwap so concurrent writers serialize on the version counter.
type ApplicationStore interface {
	Create(ctx context.Context, app types.Application) error
	Get(ctx context.Context, id string) (types.Application, error)

	// CompareAndSwap replaces the stored application only if its current
	// version equals expectedVersion. Fails with ErrCodeVersionConflict
	// otherwise.
	CompareAndSwap(ctx context.Context, app types.Application, expectedVersion int64) error
}

// EventStore is the append-only audit store. Append assigns the next
// per-application sequence number atomically.
type EventStore interface {
	Append(ctx context.Context, event types.Event) (types.Event, error)
	List(ctx context.Context, applicationID string, afterSeq int64, limit int) ([]types.Event, error)
}

// JobStore persists job records. Cross-replica callers poll it to join an
// in-flight job they cannot wait on in-process.
type JobStore interface {
	Create(ctx context.Context, job types.Job) error
	Get(ctx context.Context, id string) (types.Job, error)
	Update(ctx context.Context, job types.Job) error
}

// ArtifactStore is the raw content-addressed keyspace under the artifact
// cache. Put is first-writer-wins: when the fingerprint already exists the
// stored artifact is returned and the argument is discarded.
type ArtifactStore interface {
	Get(ctx context.Context, fingerprint string) (types.Artifact, bool, error)
	Put(ctx context.Context, artifact types.Artifact) (types.Artifact, error)
}

// MemoryApplicationStore is the in-memory ApplicationStore used by tests
// and single-node deployments without Postgres.
type MemoryApplicationStore struct {
	mu   sync.RWMutex
	apps map[string]types.Application
}

var _ ApplicationStore = (*MemoryApplicationStore)(nil)

// NewMemoryApplicationStore creates an empty in-memory application store.
func NewMemoryApplicationStore() *MemoryApplicationStore {
	return &MemoryApplicationStore{apps: make(map[string]types.Application)}
}

// Create stores a new application.
func (s *MemoryApplicationStore) Create(ctx context.Context, app types.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.apps[app.ID]; exists {
		return newError(ErrCodeVersionConflict, "application %s already exists", app.ID)
	}
	s.apps[app.ID] = app.Clone()
	return nil
}

// Get returns the application by id.
func (s *MemoryApplicationStore) Get(ctx context.Context, id string) (types.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, ok := s.apps[id]
	if !ok {
		return types.Application{}, newError(ErrCodeNotFound, "application %s not found", id)
	}
	return app.Clone(), nil
}

// CompareAndSwap replaces the stored application if the version matches.
func (s *MemoryApplicationStore) CompareAndSwap(ctx context.Context, app types.Application, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.apps[app.ID]
	if !ok {
		return newError(ErrCodeNotFound, "application %s not found", app.ID)
	}
	if current.Version != expectedVersion {
		return newError(ErrCodeVersionConflict, "application %s is at version %d, expected %d",
			app.ID, current.Version, expectedVersion)
	}
	s.apps[app.ID] = app.Clone()
	return nil
}

// MemoryEventStore is the in-memory append-only EventStore.
type MemoryEventStore struct {
	mu     sync.RWMutex
	events map[string][]types.Event
}

var _ EventStore = (*MemoryEventStore)(nil)

// NewMemoryEventStore creates an empty in-memory event store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{events: make(map[string][]types.Event)}
}

// Append assigns the next sequence number and stores the event.
func (s *MemoryEventStore) Append(ctx context.Context, event types.Event) (types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.events[event.ApplicationID]
	event.Seq = int64(len(stream)) + 1
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	s.events[event.ApplicationID] = append(stream, event)
	return event, nil
}

// List returns up to limit events with Seq > afterSeq, in sequence order.
func (s *MemoryEventStore) List(ctx context.Context, applicationID string, afterSeq int64, limit int) ([]types.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Event
	for _, e := range s.events[applicationID] {
		if e.Seq <= afterSeq {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// MemoryJobStore is the in-memory JobStore.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]types.Job
}

var _ JobStore = (*MemoryJobStore)(nil)

// NewMemoryJobStore creates an empty in-memory job store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]types.Job)}
}

// Create stores a new job record.
func (s *MemoryJobStore) Create(ctx context.Context, job types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

// Get returns the job by id.
func (s *MemoryJobStore) Get(ctx context.Context, id string) (types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return types.Job{}, newError(ErrCodeNotFound, "job %s not found", id)
	}
	return job, nil
}

// Update replaces the stored job record.
func (s *MemoryJobStore) Update(ctx context.Context, job types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return newError(ErrCodeNotFound, "job %s not found", job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

// MemoryArtifactStore is the in-memory ArtifactStore.
type MemoryArtifactStore struct {
	mu        sync.RWMutex
	artifacts map[string]types.Artifact
}

var _ ArtifactStore = (*MemoryArtifactStore)(nil)

// NewMemoryArtifactStore creates an empty in-memory artifact store.
func NewMemoryArtifactStore() *MemoryArtifactStore {
	return &MemoryArtifactStore{artifacts: make(map[string]types.Artifact)}
}

// Get returns the artifact for a fingerprint.
func (s *MemoryArtifactStore) Get(ctx context.Context, fingerprint string) (types.Artifact, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	artifact, ok := s.artifacts[fingerprint]
	return artifact, ok, nil
}

// Put stores the artifact unless the fingerprint is already present, in
// which case the existing artifact wins.
func (s *MemoryArtifactStore) Put(ctx context.Context, artifact types.Artifact) (types.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.artifacts[artifact.Fingerprint]; ok {
		return existing, nil
	}
	s.artifacts[artifact.Fingerprint] = artifact
	return artifact, nil
}
