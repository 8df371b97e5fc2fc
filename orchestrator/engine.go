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
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"admitflow/platform/orchestrator/agents"
	"admitflow/platform/orchestrator/llm"
	"admitflow/platform/shared/logger"
	"admitflow/platform/shared/types"
)

// EngineConfig is the explicit configuration injected into the job engine
// at construction. No process-wide registries.
type EngineConfig struct {
	// Retry is the per-job retry policy for retryable provider failures.
	Retry llm.RetryConfig

	// LeaseTTL bounds how long a single holder may keep an
	// (application, agent) pair without renewing.
	LeaseTTL time.Duration

	// AttemptTimeout bounds one adapter invocation.
	AttemptTimeout time.Duration

	// JoinPoll is the polling interval when joining a job held by another
	// replica through the job store.
	JoinPoll time.Duration
}

// DefaultEngineConfig returns the standard engine policy.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Retry:          llm.DefaultRetryConfig(),
		LeaseTTL:       2 * time.Minute,
		AttemptTimeout: 90 * time.Second,
		JoinPoll:       250 * time.Millisecond,
	}
}

// CommitFunc records the artifact reference on the application once the
// job succeeds, returning the application version at which it committed.
// The engine calls it exactly once per successful job (cache hits
// included), before the JobSucceeded event is appended.
type CommitFunc func(ctx context.Context, fingerprint string) (int64, error)

// JobResult is the outcome of a successful RunJob call.
type JobResult struct {
	JobID       string
	Fingerprint string
	Artifact    types.Artifact
	Attempts    int
	Version     int64
	CacheHit    bool
}

// flight is an in-process rendezvous for callers joining a job this
// replica owns or is already observing.
type flight struct {
	done   chan struct{}
	result *JobResult
	err    error
}

// JobEngine schedules, dispatches, retries, and records agent jobs.
type JobEngine struct {
	adapters agents.Registry
	cache    *ArtifactCache
	guard    Guard
	events   *EventLog
	jobs     JobStore
	cfg      EngineConfig
	log      *logger.Logger

	mu       sync.Mutex
	inflight map[string]*flight
}

// NewJobEngine creates the engine over its collaborators.
func NewJobEngine(adapters agents.Registry, cache *ArtifactCache, guard Guard, events *EventLog, jobs JobStore, cfg EngineConfig, log *logger.Logger) *JobEngine {
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = llm.DefaultRetryConfig()
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = DefaultEngineConfig().LeaseTTL
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultEngineConfig().AttemptTimeout
	}
	if cfg.JoinPoll <= 0 {
		cfg.JoinPoll = DefaultEngineConfig().JoinPoll
	}

	return &JobEngine{
		adapters: adapters,
		cache:    cache,
		guard:    guard,
		events:   events,
		jobs:     jobs,
		cfg:      cfg,
		log:      log,
		inflight: make(map[string]*flight),
	}
}

// RunJob executes one agent job for an application: cache lookup, lease
// acquisition (or join), bounded adapter invocation with retries, artifact
// commit, and audit events. Identical inputs converge on one artifact; at
// most one adapter invocation runs per (application, agent) at a time.
func (e *JobEngine) RunJob(ctx context.Context, applicationID string, input agents.Input, commit CommitFunc) (*JobResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapError(ErrCodeProviderRetryable, err, "job cancelled before dispatch")
	}

	normalized, err := input.Normalize()
	if err != nil {
		return nil, wrapError(ErrCodeProviderFatal, err, "invalid %s input", input.Agent)
	}
	fingerprint := Fingerprint(input.Agent, normalized)

	// Fast path: the artifact already exists for this exact input.
	if cached, err := e.cache.Lookup(ctx, fingerprint); err != nil {
		return nil, err
	} else if cached != nil {
		metricCacheLookups.WithLabelValues(string(input.Agent), "hit").Inc()
		return e.completeCached(ctx, applicationID, input.Agent, *cached, commit)
	}
	metricCacheLookups.WithLabelValues(string(input.Agent), "miss").Inc()

	key := types.LeaseKey(applicationID, input.Agent)

	e.mu.Lock()
	if fl, ok := e.inflight[key]; ok {
		e.mu.Unlock()
		metricJoinedJobs.Inc()
		return e.waitFlight(ctx, fl)
	}
	fl := &flight{done: make(chan struct{})}
	e.inflight[key] = fl
	e.mu.Unlock()

	result, err := e.runOwned(ctx, applicationID, input, fingerprint, commit)

	fl.result, fl.err = result, err
	close(fl.done)
	e.mu.Lock()
	delete(e.inflight, key)
	e.mu.Unlock()

	return result, err
}

// waitFlight blocks until an in-process flight completes.
func (e *JobEngine) waitFlight(ctx context.Context, fl *flight) (*JobResult, error) {
	select {
	case <-fl.done:
		return fl.result, fl.err
	case <-ctx.Done():
		return nil, wrapError(ErrCodeProviderRetryable, ctx.Err(), "gave up waiting for in-flight job")
	}
}

// completeCached commits a cache hit and records it. No new job attempt is
// made beyond the cache-hit record.
func (e *JobEngine) completeCached(ctx context.Context, applicationID string, agent types.AgentType, artifact types.Artifact, commit CommitFunc) (*JobResult, error) {
	version, err := commit(ctx, artifact.Fingerprint)
	if err != nil {
		return nil, err
	}

	if _, err := e.events.Record(ctx, applicationID, types.EventJobSucceeded, types.JobSucceededPayload{
		AgentType:   agent,
		Fingerprint: artifact.Fingerprint,
		Version:     version,
		CacheHit:    true,
	}); err != nil {
		return nil, err
	}

	return &JobResult{
		Fingerprint: artifact.Fingerprint,
		Artifact:    artifact,
		Version:     version,
		CacheHit:    true,
	}, nil
}

// runOwned holds the in-process flight and either acquires the lease and
// dispatches the job, or observes a lease held by another replica until
// its job reaches a terminal status.
func (e *JobEngine) runOwned(ctx context.Context, applicationID string, input agents.Input, fingerprint string, commit CommitFunc) (*JobResult, error) {
	lease := types.Lease{
		ApplicationID: applicationID,
		AgentType:     input.Agent,
		JobID:         uuid.NewString(),
		HolderToken:   uuid.NewString(),
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, wrapError(ErrCodeProviderRetryable, err, "job cancelled before dispatch")
		}

		acquired, current, err := e.guard.Acquire(ctx, lease, e.cfg.LeaseTTL)
		if err != nil {
			return nil, wrapError(ErrCodeInternal, err, "lease acquisition failed")
		}
		if acquired {
			return e.dispatch(ctx, applicationID, input, fingerprint, lease, commit)
		}

		metricJoinedJobs.Inc()
		result, err := e.joinRemote(ctx, applicationID, input.Agent, current, commit)
		if err == nil && result == nil {
			// The remote lease expired without a terminal job; reclaim it.
			continue
		}
		return result, err
	}
}

// joinRemote polls the job store for a job held by another replica. It
// returns (nil, nil) when the observed lease expires without the job
// reaching a terminal status, signalling the caller to retry acquisition.
func (e *JobEngine) joinRemote(ctx context.Context, applicationID string, agent types.AgentType, lease types.Lease, commit CommitFunc) (*JobResult, error) {
	ticker := time.NewTicker(e.cfg.JoinPoll)
	defer ticker.Stop()

	for {
		job, err := e.jobs.Get(ctx, lease.JobID)
		if err == nil && job.Status.IsTerminal() {
			switch job.Status {
			case types.JobSucceeded:
				cached, err := e.cache.Lookup(ctx, job.Fingerprint)
				if err != nil {
					return nil, err
				}
				if cached == nil {
					return nil, newError(ErrCodeCacheCorruption, "artifact %s missing after joined job %s succeeded", job.Fingerprint, job.ID)
				}
				return e.completeCached(ctx, applicationID, agent, *cached, commit)
			case types.JobCancelled:
				return nil, nil
			default:
				return nil, newError(ErrCodeProviderFatal, "joined job %s failed after %d attempts: %s", job.ID, job.Attempts, job.LastError)
			}
		}

		if time.Now().After(lease.ExpiresAt) {
			return nil, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, wrapError(ErrCodeProviderRetryable, ctx.Err(), "gave up waiting for job %s", lease.JobID)
		}
	}
}

// dispatch runs the job this replica owns: one JobStarted event, bounded
// adapter attempts with backoff, then the terminal bookkeeping.
func (e *JobEngine) dispatch(ctx context.Context, applicationID string, input agents.Input, fingerprint string, lease types.Lease, commit CommitFunc) (*JobResult, error) {
	start := time.Now()
	defer func() {
		metricJobDuration.WithLabelValues(string(input.Agent)).Observe(float64(time.Since(start).Milliseconds()))
	}()
	defer func() {
		if err := e.guard.Release(context.Background(), applicationID, input.Agent, lease.HolderToken); err != nil {
			e.log.Warn(applicationID, lease.JobID, "lease release failed", map[string]interface{}{"key": lease.Key(), "error": err.Error()})
		}
	}()

	adapter, err := e.adapters.ForType(input.Agent)
	if err != nil {
		return nil, wrapError(ErrCodeProviderFatal, err, "no adapter for job")
	}

	now := time.Now().UTC()
	job := types.Job{
		ID:            lease.JobID,
		ApplicationID: applicationID,
		AgentType:     input.Agent,
		Fingerprint:   fingerprint,
		Status:        types.JobRunning,
		CreatedAt:     now,
		StartedAt:     &now,
	}
	if err := e.jobs.Create(ctx, job); err != nil {
		return nil, wrapError(ErrCodeInternal, err, "failed to create job record")
	}

	if _, err := e.events.Record(ctx, applicationID, types.EventJobStarted, types.JobStartedPayload{
		JobID:       job.ID,
		AgentType:   input.Agent,
		Fingerprint: fingerprint,
		Attempt:     1,
	}); err != nil {
		return nil, err
	}

	attempts := 0
	retry := e.cfg.Retry
	retry.RetryIf = llm.IsRetryable
	retry.OnRetry = func(attempt int, attemptErr error, backoff time.Duration) {
		metricJobAttempts.WithLabelValues(string(input.Agent), "retried").Inc()
		if _, err := e.events.Record(ctx, applicationID, types.EventJobRetried, types.JobRetriedPayload{
			JobID:     job.ID,
			AgentType: input.Agent,
			Attempt:   attempt,
			Error:     attemptErr.Error(),
			BackoffMS: backoff.Milliseconds(),
		}); err != nil {
			e.log.Warn(applicationID, job.ID, "failed to record retry event", map[string]interface{}{"error": err.Error()})
		}
		if err := e.guard.Renew(ctx, applicationID, input.Agent, lease.HolderToken, e.cfg.LeaseTTL); err != nil {
			e.log.Warn(applicationID, job.ID, "lease renewal failed mid-retry", map[string]interface{}{"error": err.Error()})
		}
		job.Attempts = attempts
		job.LastError = attemptErr.Error()
		if err := e.jobs.Update(ctx, job); err != nil {
			e.log.Warn(applicationID, job.ID, "failed to update job attempts", map[string]interface{}{"error": err.Error()})
		}
	}

	payload, invokeErr := llm.RetryWithBackoff(ctx, retry, func(ctx context.Context) (json.RawMessage, error) {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
		defer cancel()
		return adapter.Invoke(attemptCtx, input)
	})

	finished := time.Now().UTC()
	job.Attempts = attempts
	job.FinishedAt = &finished

	if invokeErr != nil {
		return nil, e.finishFailed(ctx, applicationID, job, invokeErr)
	}

	artifact, err := e.cache.Commit(ctx, fingerprint, input.Agent, payload)
	if err != nil {
		return nil, e.finishFailed(ctx, applicationID, job, err)
	}

	job.Status = types.JobSucceeded
	job.LastError = ""
	if err := e.jobs.Update(ctx, job); err != nil {
		e.log.Warn(applicationID, job.ID, "failed to finalize job record", map[string]interface{}{"error": err.Error()})
	}
	metricJobAttempts.WithLabelValues(string(input.Agent), "succeeded").Inc()

	version, err := commit(ctx, fingerprint)
	if err != nil {
		return nil, err
	}

	if _, err := e.events.Record(ctx, applicationID, types.EventJobSucceeded, types.JobSucceededPayload{
		JobID:       job.ID,
		AgentType:   input.Agent,
		Fingerprint: fingerprint,
		Attempts:    attempts,
		Version:     version,
	}); err != nil {
		return nil, err
	}

	return &JobResult{
		JobID:       job.ID,
		Fingerprint: fingerprint,
		Artifact:    artifact,
		Attempts:    attempts,
		Version:     version,
	}, nil
}

// finishFailed records a terminal failure: job status, JobFailed event,
// and the classified error surfaced to the state machine.
func (e *JobEngine) finishFailed(ctx context.Context, applicationID string, job types.Job, cause error) error {
	code := classifyFailure(cause)

	job.Status = types.JobFailed
	if errors.Is(cause, context.Canceled) {
		job.Status = types.JobCancelled
	}
	job.LastError = cause.Error()
	if err := e.jobs.Update(ctx, job); err != nil {
		e.log.Warn(applicationID, job.ID, "failed to finalize job record", map[string]interface{}{"error": err.Error()})
	}
	metricJobAttempts.WithLabelValues(string(job.AgentType), "failed").Inc()

	// Event append uses a detached context so a caller timeout cannot
	// leave the audit trail behind the observed failure.
	if _, err := e.events.Record(context.Background(), applicationID, types.EventJobFailed, types.JobFailedPayload{
		JobID:     job.ID,
		AgentType: job.AgentType,
		Attempts:  job.Attempts,
		Error:     cause.Error(),
		Code:      string(code),
	}); err != nil {
		e.log.Error(applicationID, job.ID, "failed to record job failure event", map[string]interface{}{"error": err.Error()})
	}

	return wrapError(code, cause, "%s job failed after %d attempts", job.AgentType, job.Attempts)
}

// classifyFailure maps a terminal adapter error to the lifecycle taxonomy.
func classifyFailure(err error) ErrorCode {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeLeaseTimeout
	case errors.Is(err, context.Canceled):
		return ErrCodeProviderRetryable
	case llm.IsRetryable(err):
		return ErrCodeProviderRetryable
	default:
		return ErrCodeProviderFatal
	}
}
