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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"admitflow/platform/shared/types"
)

// PostgresStore backs the application, event, and job stores with one
// Postgres database. The version column carries the optimistic
// concurrency check; events get their per-application sequence inside the
// append transaction.
type PostgresStore struct {
	db *sql.DB
}

var (
	_ ApplicationStore = (*PostgresStore)(nil)
	_ EventStore       = (*PostgresStore)(nil)
	_ JobStore         = postgresJobs{}
)

// NewPostgresStore connects and ensures the schema exists.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

// NewPostgresStoreWithDB wraps an existing connection (tests).
func NewPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS applications (
		id VARCHAR(64) PRIMARY KEY,
		student_id VARCHAR(64) NOT NULL,
		state VARCHAR(32) NOT NULL,
		version BIGINT NOT NULL,
		artifacts JSONB NOT NULL DEFAULT '{}',
		blocked_from VARCHAR(32) NOT NULL DEFAULT '',
		blocked_agent VARCHAR(32) NOT NULL DEFAULT '',
		blocked_reason TEXT NOT NULL DEFAULT '',
		blocked_command VARCHAR(64) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS application_events (
		id VARCHAR(64) PRIMARY KEY,
		application_id VARCHAR(64) NOT NULL,
		seq BIGINT NOT NULL,
		kind VARCHAR(32) NOT NULL,
		payload JSONB NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		UNIQUE (application_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_application_events_app_seq
		ON application_events(application_id, seq);

	CREATE TABLE IF NOT EXISTS jobs (
		id VARCHAR(64) PRIMARY KEY,
		application_id VARCHAR(64) NOT NULL,
		agent_type VARCHAR(32) NOT NULL,
		fingerprint VARCHAR(64) NOT NULL,
		status VARCHAR(16) NOT NULL,
		attempts INT NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_application ON jobs(application_id, agent_type);
	`
	_, err := s.db.Exec(query)
	return err
}

// Create inserts a new application row.
func (s *PostgresStore) Create(ctx context.Context, app types.Application) error {
	artifacts, err := json.Marshal(app.Artifacts)
	if err != nil {
		return wrapError(ErrCodeInternal, err, "failed to encode artifacts")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO applications (
			id, student_id, state, version, artifacts,
			blocked_from, blocked_agent, blocked_reason, blocked_command,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		app.ID, app.StudentID, string(app.State), app.Version, artifacts,
		string(app.BlockedFrom), string(app.BlockedAgent), app.BlockedReason, string(app.BlockedCommand),
		app.CreatedAt, app.UpdatedAt,
	)
	if err != nil {
		return wrapError(ErrCodeInternal, err, "failed to insert application %s", app.ID)
	}
	return nil
}

// Get returns the application by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (types.Application, error) {
	var (
		app       types.Application
		state     string
		artifacts []byte
		bFrom     string
		bAgent    string
		bCommand  string
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, student_id, state, version, artifacts,
		       blocked_from, blocked_agent, blocked_reason, blocked_command,
		       created_at, updated_at
		FROM applications WHERE id = $1`, id,
	).Scan(&app.ID, &app.StudentID, &state, &app.Version, &artifacts,
		&bFrom, &bAgent, &app.BlockedReason, &bCommand,
		&app.CreatedAt, &app.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Application{}, newError(ErrCodeNotFound, "application %s not found", id)
	}
	if err != nil {
		return types.Application{}, wrapError(ErrCodeInternal, err, "failed to load application %s", id)
	}

	app.State = types.ApplicationState(state)
	app.BlockedFrom = types.ApplicationState(bFrom)
	app.BlockedAgent = types.AgentType(bAgent)
	app.BlockedCommand = types.CommandKind(bCommand)
	app.Artifacts = make(map[types.AgentType]string)
	if err := json.Unmarshal(artifacts, &app.Artifacts); err != nil {
		return types.Application{}, wrapError(ErrCodeInternal, err, "corrupt artifacts column for %s", id)
	}
	return app, nil
}

// CompareAndSwap replaces the row only if the stored version equals
// expectedVersion.
func (s *PostgresStore) CompareAndSwap(ctx context.Context, app types.Application, expectedVersion int64) error {
	artifacts, err := json.Marshal(app.Artifacts)
	if err != nil {
		return wrapError(ErrCodeInternal, err, "failed to encode artifacts")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE applications SET
			state = $1, version = $2, artifacts = $3,
			blocked_from = $4, blocked_agent = $5, blocked_reason = $6, blocked_command = $7,
			updated_at = $8
		WHERE id = $9 AND version = $10`,
		string(app.State), app.Version, artifacts,
		string(app.BlockedFrom), string(app.BlockedAgent), app.BlockedReason, string(app.BlockedCommand),
		app.UpdatedAt, app.ID, expectedVersion,
	)
	if err != nil {
		return wrapError(ErrCodeInternal, err, "failed to update application %s", app.ID)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return wrapError(ErrCodeInternal, err, "failed to read update result for %s", app.ID)
	}
	if affected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM applications WHERE id = $1)`, app.ID).Scan(&exists); err != nil {
			return wrapError(ErrCodeInternal, err, "failed to check application %s", app.ID)
		}
		if !exists {
			return newError(ErrCodeNotFound, "application %s not found", app.ID)
		}
		return newError(ErrCodeVersionConflict, "application %s changed concurrently, expected version %d", app.ID, expectedVersion)
	}
	return nil
}

// Append assigns the next per-application sequence inside a transaction
// and inserts the event. The UNIQUE (application_id, seq) constraint makes
// a lost race surface as an error instead of a duplicate sequence.
func (s *PostgresStore) Append(ctx context.Context, event types.Event) (types.Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Event{}, wrapError(ErrCodeInternal, err, "failed to begin event transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM application_events WHERE application_id = $1`,
		event.ApplicationID,
	).Scan(&event.Seq); err != nil {
		return types.Event{}, wrapError(ErrCodeInternal, err, "failed to allocate event sequence")
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO application_events (id, application_id, seq, kind, payload, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.ApplicationID, event.Seq, string(event.Kind), []byte(event.Payload), event.Timestamp,
	); err != nil {
		return types.Event{}, wrapError(ErrCodeInternal, err, "failed to insert event")
	}

	if err := tx.Commit(); err != nil {
		return types.Event{}, wrapError(ErrCodeInternal, err, "failed to commit event")
	}
	return event, nil
}

// List returns up to limit events with seq > afterSeq in sequence order.
func (s *PostgresStore) List(ctx context.Context, applicationID string, afterSeq int64, limit int) ([]types.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, application_id, seq, kind, payload, timestamp
		FROM application_events
		WHERE application_id = $1 AND seq > $2
		ORDER BY seq ASC
		LIMIT $3`, applicationID, afterSeq, limit)
	if err != nil {
		return nil, wrapError(ErrCodeInternal, err, "failed to list events for %s", applicationID)
	}
	defer func() { _ = rows.Close() }()

	var events []types.Event
	for rows.Next() {
		var (
			event   types.Event
			kind    string
			payload []byte
		)
		if err := rows.Scan(&event.ID, &event.ApplicationID, &event.Seq, &kind, &payload, &event.Timestamp); err != nil {
			return nil, wrapError(ErrCodeInternal, err, "failed to scan event row")
		}
		event.Kind = types.EventKind(kind)
		event.Payload = payload
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *PostgresStore) createJob(ctx context.Context, job types.Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, application_id, agent_type, fingerprint, status, attempts, last_error, created_at, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		job.ID, job.ApplicationID, string(job.AgentType), job.Fingerprint, string(job.Status),
		job.Attempts, job.LastError, job.CreatedAt, job.StartedAt, job.FinishedAt,
	)
	if err != nil {
		return wrapError(ErrCodeInternal, err, "failed to insert job %s", job.ID)
	}
	return nil
}

func (s *PostgresStore) getJob(ctx context.Context, id string) (types.Job, error) {
	var (
		job    types.Job
		agent  string
		status string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, application_id, agent_type, fingerprint, status, attempts, last_error, created_at, started_at, finished_at
		FROM jobs WHERE id = $1`, id,
	).Scan(&job.ID, &job.ApplicationID, &agent, &job.Fingerprint, &status,
		&job.Attempts, &job.LastError, &job.CreatedAt, &job.StartedAt, &job.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Job{}, newError(ErrCodeNotFound, "job %s not found", id)
	}
	if err != nil {
		return types.Job{}, wrapError(ErrCodeInternal, err, "failed to load job %s", id)
	}
	job.AgentType = types.AgentType(agent)
	job.Status = types.JobStatus(status)
	return job, nil
}

func (s *PostgresStore) updateJob(ctx context.Context, job types.Job) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = $1, attempts = $2, last_error = $3, started_at = $4, finished_at = $5
		WHERE id = $6`,
		string(job.Status), job.Attempts, job.LastError, job.StartedAt, job.FinishedAt, job.ID,
	)
	if err != nil {
		return wrapError(ErrCodeInternal, err, "failed to update job %s", job.ID)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return wrapError(ErrCodeInternal, err, "failed to read update result for job %s", job.ID)
	}
	if affected == 0 {
		return newError(ErrCodeNotFound, "job %s not found", job.ID)
	}
	return nil
}

// Jobs returns the store as a JobStore. The wrapper keeps the three
// interface method sets from colliding on the shared receiver.
func (s *PostgresStore) Jobs() JobStore { return postgresJobs{s} }

type postgresJobs struct{ s *PostgresStore }

func (j postgresJobs) Create(ctx context.Context, job types.Job) error { return j.s.createJob(ctx, job) }
func (j postgresJobs) Get(ctx context.Context, id string) (types.Job, error) {
	return j.s.getJob(ctx, id)
}
func (j postgresJobs) Update(ctx context.Context, job types.Job) error { return j.s.updateJob(ctx, job) }
