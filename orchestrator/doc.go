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

/*
Package orchestrator is the application lifecycle core: the state machine
that drives each study-abroad application through its AI-assisted pipeline
(essay generation, essay scoring, requirement parsing, program matching)
while keeping an auditable, consistent history of every change.

The moving parts, leaves first:

  - ArtifactCache: content-addressed store mapping an input fingerprint to
    a previously produced artifact, with integrity checks on read.
  - Guard: per-(application, agent type) lease table guaranteeing at most
    one concurrent job per pair, with TTL expiry for crashed workers.
  - EventLog: append-only audit trail; Replay reconstructs an
    application's (state, version, artifact set) from its events.
  - JobEngine: schedules, dispatches, retries, and records agent jobs;
    concurrent identical requests join one in-flight job.
  - StateMachine: owns canonical lifecycle state under optimistic
    concurrency; commands are rejected on stale versions, agent-backed
    commands run a job before the transition commits.

Storage is pluggable: Postgres (applications, events, jobs), Redis or
MongoDB (artifacts), Redis (leases), with in-memory implementations for
tests and single-node use. Run wires everything and serves the HTTP API.
*/
package orchestrator
