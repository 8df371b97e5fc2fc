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
Package types provides shared type definitions used across AdmitFlow components.

# Overview

This package contains common types that are shared between the Orchestrator,
the HTTP boundary, and the agent adapters. It provides a single source of
truth for the application lifecycle vocabulary.

# Application Lifecycle

An Application is the root aggregate. It moves forward through the lifecycle
graph (Draft -> ProfileReady -> EssayDrafting -> ... -> Archived) and carries
a monotonically increasing version counter for optimistic concurrency. The
side state Blocked is reachable from any non-terminal state when an agent job
exhausts its retries; it exits only via an explicit Override command.

# Events

Every accepted state transition and every job outcome is recorded as an
append-only Event with a per-application, strictly increasing sequence
number. Replaying the Event stream reconstructs the application's state,
version, and artifact references exactly.

# Thread Safety

All types in this package are value types and are safe for concurrent use.
*/
package types
